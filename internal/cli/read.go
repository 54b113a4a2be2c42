package cli

import (
	"github.com/spf13/cobra"

	"github.com/vitalbase/healthstore/internal/datatypes"
	"github.com/vitalbase/healthstore/internal/store"
)

// ReadOptions holds flags for the read command.
type ReadOptions struct {
	*RootOptions
	IDs       []string
	Start     string
	End       string
	PageSize  int
	PageToken string
	Ascending bool
}

// NewReadCommand creates the read command.
func NewReadCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ReadOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "read <record-type>",
		Short: "Read records of one type",
		Long: `Read records of one type, either by UUID or as a paged time-range
scan. Paged output includes the token resuming after the page; "-1"
means no further pages.

Example:
  healthstore read steps --start 2024-03-01T00:00:00Z --end 2024-03-02T00:00:00Z
  healthstore read heart_rate --ids 018e1f6e-...,018e1f6f-...`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRead(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringSliceVar(&opts.IDs, "ids", nil, "record UUIDs to read")
	cmd.Flags().StringVar(&opts.Start, "start", "", "range start (RFC 3339, inclusive)")
	cmd.Flags().StringVar(&opts.End, "end", "", "range end (RFC 3339, exclusive)")
	cmd.Flags().IntVar(&opts.PageSize, "page-size", 0, "page size, 0 for the default")
	cmd.Flags().StringVar(&opts.PageToken, "token", "", "resume token from a previous page")
	cmd.Flags().BoolVar(&opts.Ascending, "asc", true, "scan in ascending insertion order")
	return cmd
}

func runRead(opts *ReadOptions, typeName string, cmd *cobra.Command) error {
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
		records, err := tm.ReadByIDs(ctx, opts.App, t, opts.IDs)
		if err != nil {
			return reportStoreError(f, err)
		}
		return f.SuccessJSON(map[string]any{"records": encodeRecords(records)})
	}

	start, err := parseTime(opts.Start)
	if err != nil {
		return err
	}
	end, err := parseTime(opts.End)
	if err != nil {
		return err
	}

	records, next, err := tm.ReadPage(ctx, opts.App, t, store.ReadQuery{
		Start:     start,
		End:       end,
		PageSize:  opts.PageSize,
		PageToken: opts.PageToken,
		Ascending: opts.Ascending,
	})
	if err != nil {
		return reportStoreError(f, err)
	}
	return f.SuccessJSON(map[string]any{
		"records":    encodeRecords(records),
		"next_token": next,
	})
}
