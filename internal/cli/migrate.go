package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/vitalbase/healthstore/internal/store"
)

// NewMigrateCommand creates the migrate command. Opening a database
// always migrates it; this command exists to do so explicitly and report
// the outcome.
func NewMigrateCommand(rootOpts *RootOptions) *cobra.Command {
	watch := false

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Open the user database, applying any pending schema upgrades",
		Long: `Open the user database, applying any pending schema upgrades, and
report the capabilities of the resulting schema.

With --watch the command keeps running and re-applies flag-guarded
upgrades when the flag file changes.

Example:
  healthstore migrate --user 0 --flags /etc/healthstore/flags.yaml`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMigrate(rootOpts, watch, cmd)
		},
	}

	cmd.Flags().BoolVar(&watch, "watch", false, "keep running and reload flags on file change")
	return cmd
}

func runMigrate(opts *RootOptions, watch bool, cmd *cobra.Command) error {
	ctx := cmd.Context()

	udm, tm, err := openStore(ctx, opts)
	if err != nil {
		return err
	}
	defer udm.CloseAll()

	f := formatter(opts, cmd.OutOrStdout())
	caps := tm.Capabilities()
	if err := f.Success(map[string]any{
		"database":               udm.DatabasePath(opts.User),
		"planned_exercise":       caps.PlannedExercise,
		"personal_health_record": caps.PersonalHealthRecord,
	}); err != nil {
		return err
	}

	if !watch {
		return nil
	}
	if opts.FlagsFile == "" {
		return WrapExitError(ExitCommandError, "--watch requires --flags", nil)
	}

	fmt.Fprintln(cmd.OutOrStdout(), "watching flag file, ctrl-c to stop")
	watcher := store.NewFlagReopener(udm, udm.Flags(), opts.User)
	return watcher.Run(ctx, opts.FlagsFile)
}
