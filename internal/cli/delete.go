package cli

import (
	"github.com/spf13/cobra"

	"github.com/vitalbase/healthstore/internal/datatypes"
)

// DeleteOptions holds flags for the delete command.
type DeleteOptions struct {
	*RootOptions
	IDs              []string
	Start            string
	End              string
	EnforceOwnership bool
}

// NewDeleteCommand creates the delete command.
func NewDeleteCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &DeleteOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "delete <record-type>",
		Short: "Delete records of one type",
		Long: `Delete records of one type, either by UUID or by start-time range.
Range deletes only touch records written by --app; UUID deletes touch
any record unless --own restricts them to the caller's.

Example:
  healthstore delete steps --ids 018e1f6e-... --own`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDelete(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringSliceVar(&opts.IDs, "ids", nil, "record UUIDs to delete")
	cmd.Flags().StringVar(&opts.Start, "start", "", "range start (RFC 3339, inclusive)")
	cmd.Flags().StringVar(&opts.End, "end", "", "range end (RFC 3339, exclusive)")
	cmd.Flags().BoolVar(&opts.EnforceOwnership, "own", false, "fail if any matched record belongs to another app")
	return cmd
}

func runDelete(opts *DeleteOptions, typeName string, cmd *cobra.Command) error {
	ctx := cmd.Context()
	f := formatter(opts.RootOptions, cmd.OutOrStdout())

	t, err := datatypes.ParseRecordType(typeName)
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid record type", err)
	}

	udm, tm, err := openStore(ctx, opts.RootOptions)
	if err != nil {
		return err
	}
	defer udm.CloseAll()

	if len(opts.IDs) > 0 {
		count, err := tm.DeleteByIDs(ctx, opts.App, t, opts.IDs, opts.EnforceOwnership)
		if err != nil {
			return reportStoreError(f, err)
		}
		return f.Success(map[string]any{"deleted": count})
	}

	start, err := parseTime(opts.Start)
	if err != nil {
		return err
	}
	end, err := parseTime(opts.End)
	if err != nil {
		return err
	}
	if start.IsZero() || end.IsZero() {
		return WrapExitError(ExitCommandError, "either --ids or both --start and --end are required", nil)
	}

	count, err := tm.DeleteByTimeRange(ctx, opts.App, t, start, end)
	if err != nil {
		return reportStoreError(f, err)
	}
	return f.Success(map[string]any{"deleted": count})
}
