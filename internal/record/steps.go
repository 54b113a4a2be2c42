package record

import (
	"time"

	"github.com/vitalbase/healthstore/internal/datatypes"
	"github.com/vitalbase/healthstore/internal/request"
	"github.com/vitalbase/healthstore/internal/schema"
)

const (
	stepsTable    = "steps"
	colStepsCount = "count"
)

// stepsHelper handles the simplest interval record: a count over a time
// range, no child tables.
type stepsHelper struct{}

func (stepsHelper) Type() datatypes.RecordType { return datatypes.TypeSteps }

func (stepsHelper) Table() schema.Table {
	return schema.Table{
		Name: stepsTable,
		Columns: append(append(schema.RecordColumns(), schema.IntervalColumns()...),
			schema.Column{Name: colStepsCount, Type: schema.Integer, NotNull: true},
		),
		Unique:      schema.RecordConstraints(),
		ForeignKeys: []schema.ForeignKey{schema.AppInfoForeignKey()},
	}
}

func (stepsHelper) UpsertValues(r datatypes.Record, appInfoID int64) (map[string]any, error) {
	rec, err := typed[*datatypes.Steps](r)
	if err != nil {
		return nil, err
	}
	return merge(
		recordValues(r.Meta(), appInfoID),
		intervalValues(rec.StartTime, rec.EndTime, rec.StartZoneOffset, rec.EndZoneOffset),
		map[string]any{colStepsCount: rec.Count},
	), nil
}

func (stepsHelper) ChildUpserts(datatypes.Record) ([]request.ChildUpsert, error) {
	return nil, nil
}

func (stepsHelper) ReadColumns() []string {
	return readColumns(append(intervalReadColumns(), colStepsCount)...)
}

func (stepsHelper) ScanRecord(scan RowScanner) (datatypes.Record, int64, error) {
	var core rowCore
	var iv intervalCore
	var count int64

	dests := append(core.dests(), iv.dests()...)
	dests = append(dests, &count)
	if err := scan.Scan(dests...); err != nil {
		return nil, 0, err
	}

	return &datatypes.Steps{
		Metadata:        core.metadata(),
		StartTime:       time.UnixMilli(iv.start).UTC(),
		EndTime:         time.UnixMilli(iv.end).UTC(),
		StartZoneOffset: int32(iv.startOff.Int64),
		EndZoneOffset:   int32(iv.endOff.Int64),
		Count:           count,
	}, core.rowID, nil
}

func (stepsHelper) ChildReadColumns(string) []string { return nil }

func (stepsHelper) ScanChildRow(table string, _ RowScanner) (int64, any, error) {
	return 0, nil, errNoChildTable(stepsTable, table)
}

func (stepsHelper) SetChildren(_ datatypes.Record, table string, _ []any) error {
	return errNoChildTable(stepsTable, table)
}

func (stepsHelper) Aggregate(kind AggregationType) (AggregateSpec, bool) {
	if kind != AggregationTotal {
		return AggregateSpec{}, false
	}
	return AggregateSpec{
		Table:      stepsTable,
		TimeColumn: schema.ColStartTime,
		Column:     colStepsCount,
		Func:       "SUM",
	}, true
}

func (stepsHelper) EffectsOfDelete([]string) []EffectRead { return nil }
func (stepsHelper) EffectsOfUpsert([]string) []EffectRead { return nil }
