package cli

import (
	"github.com/spf13/cobra"

	"github.com/vitalbase/healthstore/internal/changelog"
	"github.com/vitalbase/healthstore/internal/datatypes"
)

// NewChangesCommand creates the changes command group.
func NewChangesCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "changes",
		Short: "Work with the incremental change stream",
	}
	cmd.AddCommand(newChangesTokenCommand(rootOpts))
	cmd.AddCommand(newChangesGetCommand(rootOpts))
	return cmd
}

func newChangesTokenCommand(rootOpts *RootOptions) *cobra.Command {
	var typeNames []string
	var pkg string

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue a token positioned at the current end of the change stream",
		Long: `Issue a change token. A later "changes get" with the token returns
only changes made after this call, optionally filtered to the given
record types and writing package.

Example:
  healthstore changes token --types steps,heart_rate`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			f := formatter(rootOpts, cmd.OutOrStdout())

			var types []datatypes.RecordType
			for _, name := range typeNames {
				t, err := datatypes.ParseRecordType(name)
				if err != nil {
					return WrapExitError(ExitCommandError, "invalid record type", err)
				}
				types = append(types, t)
			}

			udm, tm, err := openStore(ctx, rootOpts)
			if err != nil {
				return err
			}
			defer udm.CloseAll()

			token, err := tm.GetChangeToken(ctx, changelog.TokenRequest{
				Types:       types,
				PackageName: pkg,
			})
			if err != nil {
				return reportStoreError(f, err)
			}
			return f.Success(map[string]any{"token": token})
		},
	}

	cmd.Flags().StringSliceVar(&typeNames, "types", nil, "record types to observe, all when empty")
	cmd.Flags().StringVar(&pkg, "package", "", "only observe changes written by this package")
	return cmd
}

func newChangesGetCommand(rootOpts *RootOptions) *cobra.Command {
	var pageSize int

	cmd := &cobra.Command{
		Use:   "get <token>",
		Short: "Read one page of changes after a token",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			f := formatter(rootOpts, cmd.OutOrStdout())

			udm, tm, err := openStore(ctx, rootOpts)
			if err != nil {
				return err
			}
			defer udm.CloseAll()

			changes, err := tm.GetChanges(ctx, args[0], pageSize)
			if err != nil {
				return reportStoreError(f, err)
			}
			return f.SuccessJSON(map[string]any{
				"upserts":    changes.Upserts,
				"deletes":    changes.Deletes,
				"next_token": changes.NextToken,
				"has_more":   changes.HasMore,
			})
		},
	}

	cmd.Flags().IntVar(&pageSize, "page-size", 0, "change rows per page, 0 for the default")
	return cmd
}
