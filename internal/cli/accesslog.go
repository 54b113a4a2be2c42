package cli

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

// NewAccessLogCommand creates the accesslog command group.
func NewAccessLogCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "accesslog",
		Short: "Inspect and prune the data access log",
	}
	cmd.AddCommand(newAccessLogListCommand(rootOpts))
	cmd.AddCommand(newAccessLogPruneCommand(rootOpts))
	return cmd
}

func newAccessLogListCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "list",
		Short:         "Print access entries, newest first",
		Args:          cobra.NoArgs,
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

			entries, err := tm.AccessLogs(ctx)
			if err != nil {
				return reportStoreError(f, err)
			}

			if rootOpts.Format == "json" {
				return f.Success(map[string]any{"entries": entries})
			}
			for _, e := range entries {
				var types []string
				for _, t := range e.RecordTypes {
					types = append(types, string(t))
				}
				types = append(types, e.MedicalResourceTypes...)
				fmt.Fprintf(cmd.OutOrStdout(), "%s  %-7s %-32s %s\n",
					e.AccessTime.Format(time.RFC3339), e.Op, e.PackageName,
					strings.Join(types, ","))
			}
			return nil
		},
	}
}

func newAccessLogPruneCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "prune",
		Short:         "Delete access entries older than the retention window",
		Args:          cobra.NoArgs,
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

			removed, err := tm.PruneAccessLogs(ctx)
			if err != nil {
				return reportStoreError(f, err)
			}
			return f.Success(map[string]any{"removed": removed})
		},
	}
}
