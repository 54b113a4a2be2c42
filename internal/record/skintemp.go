package record

import (
	"fmt"
	"time"

	"github.com/vitalbase/healthstore/internal/datatypes"
	"github.com/vitalbase/healthstore/internal/request"
	"github.com/vitalbase/healthstore/internal/schema"
)

const (
	skinTempTable      = "skin_temperature"
	skinTempDeltaTable = "skin_temperature_deltas"
	colSkinTempID      = "skin_temperature_id"
	colBaseline        = "baseline_celsius"
	colDeltaTime       = "delta_time"
	colDeltaCelsius    = "delta_celsius"
)

// skinTempHelper handles skin temperature records: a baseline plus
// timestamped delta child rows.
type skinTempHelper struct{}

func (skinTempHelper) Type() datatypes.RecordType { return datatypes.TypeSkinTemperature }

func (skinTempHelper) Table() schema.Table {
	return schema.Table{
		Name: skinTempTable,
		Columns: append(append(schema.RecordColumns(), schema.IntervalColumns()...),
			schema.Column{Name: colBaseline, Type: schema.Real},
		),
		Unique:      schema.RecordConstraints(),
		ForeignKeys: []schema.ForeignKey{schema.AppInfoForeignKey()},
		Children: []schema.Table{{
			Name: skinTempDeltaTable,
			Columns: []schema.Column{
				{Name: schema.ColRowID, Type: schema.Integer, PrimaryKey: true},
				{Name: colSkinTempID, Type: schema.Integer, NotNull: true},
				{Name: colDeltaTime, Type: schema.Integer, NotNull: true},
				{Name: colDeltaCelsius, Type: schema.Real, NotNull: true},
			},
			ForeignKeys: []schema.ForeignKey{
				schema.ChildForeignKey(colSkinTempID, skinTempTable),
			},
		}},
	}
}

func (skinTempHelper) UpsertValues(r datatypes.Record, appInfoID int64) (map[string]any, error) {
	rec, err := typed[*datatypes.SkinTemperature](r)
	if err != nil {
		return nil, err
	}
	return merge(
		recordValues(r.Meta(), appInfoID),
		intervalValues(rec.StartTime, rec.EndTime, rec.StartZoneOffset, rec.EndZoneOffset),
		map[string]any{colBaseline: rec.BaselineCelsius},
	), nil
}

func (skinTempHelper) ChildUpserts(r datatypes.Record) ([]request.ChildUpsert, error) {
	rec, err := typed[*datatypes.SkinTemperature](r)
	if err != nil {
		return nil, err
	}

	rows := make([]map[string]any, 0, len(rec.Deltas))
	for _, d := range rec.Deltas {
		rows = append(rows, map[string]any{
			colDeltaTime:    d.Time.UnixMilli(),
			colDeltaCelsius: d.DeltaCelsius,
		})
	}

	return []request.ChildUpsert{{
		Table:        skinTempDeltaTable,
		ParentColumn: colSkinTempID,
		Rows:         rows,
	}}, nil
}

func (skinTempHelper) ReadColumns() []string {
	return readColumns(append(intervalReadColumns(), colBaseline)...)
}

func (skinTempHelper) ScanRecord(scan RowScanner) (datatypes.Record, int64, error) {
	var core rowCore
	var iv intervalCore
	var baseline float64

	dests := append(core.dests(), iv.dests()...)
	dests = append(dests, &baseline)
	if err := scan.Scan(dests...); err != nil {
		return nil, 0, err
	}

	return &datatypes.SkinTemperature{
		Metadata:        core.metadata(),
		StartTime:       time.UnixMilli(iv.start).UTC(),
		EndTime:         time.UnixMilli(iv.end).UTC(),
		StartZoneOffset: int32(iv.startOff.Int64),
		EndZoneOffset:   int32(iv.endOff.Int64),
		BaselineCelsius: baseline,
	}, core.rowID, nil
}

func (skinTempHelper) ChildReadColumns(table string) []string {
	if table != skinTempDeltaTable {
		return nil
	}
	return []string{colSkinTempID, colDeltaTime, colDeltaCelsius}
}

func (skinTempHelper) ScanChildRow(table string, scan RowScanner) (int64, any, error) {
	if table != skinTempDeltaTable {
		return 0, nil, errNoChildTable(skinTempTable, table)
	}

	var parentID, deltaTime int64
	var delta float64
	if err := scan.Scan(&parentID, &deltaTime, &delta); err != nil {
		return 0, nil, err
	}

	return parentID, datatypes.SkinTemperatureDelta{
		Time:         time.UnixMilli(deltaTime).UTC(),
		DeltaCelsius: delta,
	}, nil
}

func (skinTempHelper) SetChildren(r datatypes.Record, table string, children []any) error {
	rec, err := typed[*datatypes.SkinTemperature](r)
	if err != nil {
		return err
	}
	if table != skinTempDeltaTable {
		return errNoChildTable(skinTempTable, table)
	}

	rec.Deltas = rec.Deltas[:0]
	for _, c := range children {
		delta, ok := c.(datatypes.SkinTemperatureDelta)
		if !ok {
			return fmt.Errorf("unexpected child value %T for %s", c, skinTempDeltaTable)
		}
		rec.Deltas = append(rec.Deltas, delta)
	}
	return nil
}

func (skinTempHelper) Aggregate(kind AggregationType) (AggregateSpec, bool) {
	if kind != AggregationAverage {
		return AggregateSpec{}, false
	}
	return AggregateSpec{
		Table:      skinTempDeltaTable,
		TimeColumn: colDeltaTime,
		Column:     colDeltaCelsius,
		Func:       "AVG",
	}, true
}

func (skinTempHelper) EffectsOfDelete([]string) []EffectRead { return nil }
func (skinTempHelper) EffectsOfUpsert([]string) []EffectRead { return nil }
