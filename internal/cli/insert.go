package cli

import (
	"os"

	"github.com/spf13/cobra"
)

// InsertOptions holds flags for the insert command.
type InsertOptions struct {
	*RootOptions
	Replace bool
	Update  bool
}

// NewInsertCommand creates the insert command.
func NewInsertCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &InsertOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "insert <records.json>",
		Short: "Insert records from a JSON file",
		Long: `Insert records from a JSON file containing an array of envelopes:

  [{"type": "steps", "record": {"StartTime": "...", "EndTime": "...", "Count": 1200}}]

By default a conflicting record fails the whole batch. With --replace
the conflicting stored record is replaced in place; with --update every
record must already exist and is rewritten.

Example:
  healthstore insert workout.json --app com.example.fit --replace`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInsert(opts, args[0], cmd)
		},
	}

	cmd.Flags().BoolVar(&opts.Replace, "replace", false, "replace records that collide on uuid or client record id")
	cmd.Flags().BoolVar(&opts.Update, "update", false, "rewrite existing records; fails on records that do not exist")
	return cmd
}

func runInsert(opts *InsertOptions, path string, cmd *cobra.Command) error {
	ctx := cmd.Context()
	f := formatter(opts.RootOptions, cmd.OutOrStdout())

	if opts.Replace && opts.Update {
		return WrapExitError(ExitCommandError, "--replace and --update are mutually exclusive", nil)
	}

	file, err := os.Open(path)
	if err != nil {
		return WrapExitError(ExitCommandError, "opening records file", err)
	}
	defer file.Close()

	records, err := decodeRecords(file)
	if err != nil {
		return WrapExitError(ExitCommandError, "reading records file", err)
	}

	udm, tm, err := openStore(ctx, opts.RootOptions)
	if err != nil {
		return err
	}
	defer udm.CloseAll()

	switch {
	case opts.Update:
		if err := tm.UpdateAll(ctx, opts.App, records); err != nil {
			return reportStoreError(f, err)
		}
		return f.Success(map[string]any{"updated": len(records)})

	case opts.Replace:
		uuids, err := tm.InsertOrReplaceAll(ctx, opts.App, records)
		if err != nil {
			return reportStoreError(f, err)
		}
		return f.Success(map[string]any{"upserted": len(uuids), "uuids": uuids})

	default:
		uuids, err := tm.InsertAll(ctx, opts.App, records)
		if err != nil {
			return reportStoreError(f, err)
		}
		return f.Success(map[string]any{"inserted": len(uuids), "uuids": uuids})
	}
}
