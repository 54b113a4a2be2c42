package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

// NewPrefsCommand creates the prefs command group.
func NewPrefsCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "prefs",
		Short: "Read and write the preference key-value store",
	}
	cmd.AddCommand(newPrefsGetCommand(rootOpts))
	cmd.AddCommand(newPrefsSetCommand(rootOpts))
	cmd.AddCommand(newPrefsRemoveCommand(rootOpts))
	return cmd
}

func newPrefsGetCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "get <key>",
		Short:         "Print a preference value",
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

			value, ok, err := tm.PreferenceGet(ctx, args[0])
			if err != nil {
				return reportStoreError(f, err)
			}
			if !ok {
				f.Error("NOT_FOUND", fmt.Sprintf("no preference %q", args[0]))
				return WrapExitError(ExitFailure, "preference not found", nil)
			}
			return f.Success(map[string]any{"key": args[0], "value": value})
		},
	}
}

func newPrefsSetCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "set <key> <value>",
		Short:         "Set a preference value",
		Args:          cobra.ExactArgs(2),
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

			if err := tm.PreferenceSet(ctx, args[0], args[1]); err != nil {
				return reportStoreError(f, err)
			}
			return f.Success(map[string]any{"key": args[0], "value": args[1]})
		},
	}
}

func newPrefsRemoveCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "rm <key>",
		Short:         "Remove a preference key",
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

			if err := tm.PreferenceRemove(ctx, args[0]); err != nil {
				return reportStoreError(f, err)
			}
			return f.Success(map[string]any{"removed": args[0]})
		},
	}
}
