package record

import (
	"fmt"
	"time"

	"github.com/vitalbase/healthstore/internal/datatypes"
	"github.com/vitalbase/healthstore/internal/request"
	"github.com/vitalbase/healthstore/internal/schema"
)

const (
	heartRateTable       = "heart_rate"
	heartRateSampleTable = "heart_rate_samples"
	colHeartRateID       = "heart_rate_id"
	colSampleTime        = "sample_time"
	colBPM               = "bpm"
)

// heartRateHelper handles a series record: an interval parent row plus one
// child row per sample.
type heartRateHelper struct{}

func (heartRateHelper) Type() datatypes.RecordType { return datatypes.TypeHeartRate }

func (heartRateHelper) Table() schema.Table {
	return schema.Table{
		Name:        heartRateTable,
		Columns:     append(schema.RecordColumns(), schema.IntervalColumns()...),
		Unique:      schema.RecordConstraints(),
		ForeignKeys: []schema.ForeignKey{schema.AppInfoForeignKey()},
		Children: []schema.Table{{
			Name: heartRateSampleTable,
			Columns: []schema.Column{
				{Name: schema.ColRowID, Type: schema.Integer, PrimaryKey: true},
				{Name: colHeartRateID, Type: schema.Integer, NotNull: true},
				{Name: colSampleTime, Type: schema.Integer, NotNull: true},
				{Name: colBPM, Type: schema.Integer, NotNull: true},
			},
			ForeignKeys: []schema.ForeignKey{
				schema.ChildForeignKey(colHeartRateID, heartRateTable),
			},
		}},
	}
}

func (heartRateHelper) UpsertValues(r datatypes.Record, appInfoID int64) (map[string]any, error) {
	rec, err := typed[*datatypes.HeartRate](r)
	if err != nil {
		return nil, err
	}
	return merge(
		recordValues(r.Meta(), appInfoID),
		intervalValues(rec.StartTime, rec.EndTime, rec.StartZoneOffset, rec.EndZoneOffset),
	), nil
}

func (heartRateHelper) ChildUpserts(r datatypes.Record) ([]request.ChildUpsert, error) {
	rec, err := typed[*datatypes.HeartRate](r)
	if err != nil {
		return nil, err
	}

	rows := make([]map[string]any, 0, len(rec.Samples))
	for _, s := range rec.Samples {
		rows = append(rows, map[string]any{
			colSampleTime: s.Time.UnixMilli(),
			colBPM:        s.BPM,
		})
	}

	return []request.ChildUpsert{{
		Table:        heartRateSampleTable,
		ParentColumn: colHeartRateID,
		Rows:         rows,
	}}, nil
}

func (heartRateHelper) ReadColumns() []string {
	return readColumns(intervalReadColumns()...)
}

func (heartRateHelper) ScanRecord(scan RowScanner) (datatypes.Record, int64, error) {
	var core rowCore
	var iv intervalCore

	if err := scan.Scan(append(core.dests(), iv.dests()...)...); err != nil {
		return nil, 0, err
	}

	return &datatypes.HeartRate{
		Metadata:        core.metadata(),
		StartTime:       time.UnixMilli(iv.start).UTC(),
		EndTime:         time.UnixMilli(iv.end).UTC(),
		StartZoneOffset: int32(iv.startOff.Int64),
		EndZoneOffset:   int32(iv.endOff.Int64),
	}, core.rowID, nil
}

func (heartRateHelper) ChildReadColumns(table string) []string {
	if table != heartRateSampleTable {
		return nil
	}
	return []string{colHeartRateID, colSampleTime, colBPM}
}

func (heartRateHelper) ScanChildRow(table string, scan RowScanner) (int64, any, error) {
	if table != heartRateSampleTable {
		return 0, nil, errNoChildTable(heartRateTable, table)
	}

	var parentID, sampleTime, bpm int64
	if err := scan.Scan(&parentID, &sampleTime, &bpm); err != nil {
		return 0, nil, err
	}

	return parentID, datatypes.HeartRateSample{
		Time: time.UnixMilli(sampleTime).UTC(),
		BPM:  bpm,
	}, nil
}

func (heartRateHelper) SetChildren(r datatypes.Record, table string, children []any) error {
	rec, err := typed[*datatypes.HeartRate](r)
	if err != nil {
		return err
	}
	if table != heartRateSampleTable {
		return errNoChildTable(heartRateTable, table)
	}

	rec.Samples = rec.Samples[:0]
	for _, c := range children {
		sample, ok := c.(datatypes.HeartRateSample)
		if !ok {
			return fmt.Errorf("unexpected child value %T for %s", c, heartRateSampleTable)
		}
		rec.Samples = append(rec.Samples, sample)
	}
	return nil
}

func (heartRateHelper) Aggregate(kind AggregationType) (AggregateSpec, bool) {
	var fn string
	switch kind {
	case AggregationMin:
		fn = "MIN"
	case AggregationMax:
		fn = "MAX"
	case AggregationAverage:
		fn = "AVG"
	default:
		return AggregateSpec{}, false
	}
	return AggregateSpec{
		Table:      heartRateSampleTable,
		TimeColumn: colSampleTime,
		Column:     colBPM,
		Func:       fn,
	}, true
}

func (heartRateHelper) EffectsOfDelete([]string) []EffectRead { return nil }
func (heartRateHelper) EffectsOfUpsert([]string) []EffectRead { return nil }
