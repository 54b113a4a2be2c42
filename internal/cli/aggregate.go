package cli

import (
	"strings"

	"github.com/spf13/cobra"

	"github.com/vitalbase/healthstore/internal/datatypes"
	"github.com/vitalbase/healthstore/internal/record"
)

// AggregateOptions holds flags for the aggregate command.
type AggregateOptions struct {
	*RootOptions
	Start string
	End   string
}

// NewAggregateCommand creates the aggregate command.
func NewAggregateCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &AggregateOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "aggregate <record-type> <total|min|max|avg|count|duration>",
		Short: "Compute an aggregate over a time range",
		Long: `Compute one aggregation for a record type over a time range. Which
aggregations a type supports depends on the type: steps support total,
heart rate min/max/avg, exercise sessions count and duration.

Example:
  healthstore aggregate steps total --start 2024-03-01T00:00:00Z --end 2024-03-02T00:00:00Z`,
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAggregate(opts, args[0], args[1], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Start, "start", "", "range start (RFC 3339, inclusive)")
	cmd.Flags().StringVar(&opts.End, "end", "", "range end (RFC 3339, exclusive)")
	cmd.MarkFlagRequired("start")
	cmd.MarkFlagRequired("end")
	return cmd
}

func runAggregate(opts *AggregateOptions, typeName, kindName string, cmd *cobra.Command) error {
	ctx := cmd.Context()
	f := formatter(opts.RootOptions, cmd.OutOrStdout())

	t, err := datatypes.ParseRecordType(typeName)
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid record type", err)
	}
	kind := record.AggregationType(strings.ToUpper(kindName))

	start, err := parseTime(opts.Start)
	if err != nil {
		return err
	}
	end, err := parseTime(opts.End)
	if err != nil {
		return err
	}

	udm, tm, err := openStore(ctx, opts.RootOptions)
	if err != nil {
		return err
	}
	defer udm.CloseAll()

	result, err := tm.Aggregate(ctx, opts.App, t, kind, start, end)
	if err != nil {
		return reportStoreError(f, err)
	}

	out := map[string]any{"data_origins": result.DataOrigins}
	if result.Value.Valid {
		out["value"] = result.Value.Float64
	}
	if result.StartZoneOffset.Valid {
		out["start_zone_offset"] = result.StartZoneOffset.Int64
	}
	return f.Success(out)
}
