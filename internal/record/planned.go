package record

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/vitalbase/healthstore/internal/datatypes"
	"github.com/vitalbase/healthstore/internal/request"
	"github.com/vitalbase/healthstore/internal/schema"
)

const (
	plannedTable      = "planned_exercise_sessions"
	plannedBlockTable = "planned_exercise_blocks"
	colPlannedID      = "planned_session_id"
	colDescription    = "description"
	colReps           = "reps"
)

// plannedHelper handles planned exercise sessions. The whole subsystem is
// flag-gated: its tables are created by a guarded upgrade whose sentinel is
// the existence of the parent table.
type plannedHelper struct{}

func (plannedHelper) Type() datatypes.RecordType { return datatypes.TypePlannedExerciseSession }

func (plannedHelper) Table() schema.Table {
	return schema.Table{
		Name: plannedTable,
		Columns: append(append(schema.RecordColumns(), schema.IntervalColumns()...),
			schema.Column{Name: colTitle, Type: schema.Text},
		),
		Unique:      schema.RecordConstraints(),
		ForeignKeys: []schema.ForeignKey{schema.AppInfoForeignKey()},
		Children: []schema.Table{{
			Name: plannedBlockTable,
			Columns: []schema.Column{
				{Name: schema.ColRowID, Type: schema.Integer, PrimaryKey: true},
				{Name: colPlannedID, Type: schema.Integer, NotNull: true},
				{Name: colDescription, Type: schema.Text},
				{Name: colReps, Type: schema.Integer, NotNull: true},
			},
			ForeignKeys: []schema.ForeignKey{
				schema.ChildForeignKey(colPlannedID, plannedTable),
			},
		}},
	}
}

func (plannedHelper) UpsertValues(r datatypes.Record, appInfoID int64) (map[string]any, error) {
	rec, err := typed[*datatypes.PlannedExerciseSession](r)
	if err != nil {
		return nil, err
	}
	return merge(
		recordValues(r.Meta(), appInfoID),
		intervalValues(rec.StartTime, rec.EndTime, rec.StartZoneOffset, rec.EndZoneOffset),
		map[string]any{colTitle: rec.Title},
	), nil
}

func (plannedHelper) ChildUpserts(r datatypes.Record) ([]request.ChildUpsert, error) {
	rec, err := typed[*datatypes.PlannedExerciseSession](r)
	if err != nil {
		return nil, err
	}

	rows := make([]map[string]any, 0, len(rec.Blocks))
	for _, b := range rec.Blocks {
		rows = append(rows, map[string]any{
			colDescription: b.Description,
			colReps:        b.Reps,
		})
	}

	return []request.ChildUpsert{{
		Table:        plannedBlockTable,
		ParentColumn: colPlannedID,
		Rows:         rows,
	}}, nil
}

func (plannedHelper) ReadColumns() []string {
	return readColumns(append(intervalReadColumns(), colTitle)...)
}

func (plannedHelper) ScanRecord(scan RowScanner) (datatypes.Record, int64, error) {
	var core rowCore
	var iv intervalCore
	var title sql.NullString

	dests := append(core.dests(), iv.dests()...)
	dests = append(dests, &title)
	if err := scan.Scan(dests...); err != nil {
		return nil, 0, err
	}

	return &datatypes.PlannedExerciseSession{
		Metadata:        core.metadata(),
		StartTime:       time.UnixMilli(iv.start).UTC(),
		EndTime:         time.UnixMilli(iv.end).UTC(),
		StartZoneOffset: int32(iv.startOff.Int64),
		EndZoneOffset:   int32(iv.endOff.Int64),
		Title:           title.String,
	}, core.rowID, nil
}

func (plannedHelper) ChildReadColumns(table string) []string {
	if table != plannedBlockTable {
		return nil
	}
	return []string{colPlannedID, colDescription, colReps}
}

func (plannedHelper) ScanChildRow(table string, scan RowScanner) (int64, any, error) {
	if table != plannedBlockTable {
		return 0, nil, errNoChildTable(plannedTable, table)
	}

	var parentID, reps int64
	var description sql.NullString
	if err := scan.Scan(&parentID, &description, &reps); err != nil {
		return 0, nil, err
	}

	return parentID, datatypes.PlannedExerciseBlock{
		Description: description.String,
		Reps:        reps,
	}, nil
}

func (plannedHelper) SetChildren(r datatypes.Record, table string, children []any) error {
	rec, err := typed[*datatypes.PlannedExerciseSession](r)
	if err != nil {
		return err
	}
	if table != plannedBlockTable {
		return errNoChildTable(plannedTable, table)
	}

	rec.Blocks = rec.Blocks[:0]
	for _, c := range children {
		block, ok := c.(datatypes.PlannedExerciseBlock)
		if !ok {
			return fmt.Errorf("unexpected child value %T for %s", c, plannedBlockTable)
		}
		rec.Blocks = append(rec.Blocks, block)
	}
	return nil
}

func (plannedHelper) Aggregate(AggregationType) (AggregateSpec, bool) {
	return AggregateSpec{}, false
}

// EffectsOfDelete reports the exercise sessions linked to the deleted
// plans. Deleting a plan nullifies the link (ON DELETE SET NULL) and must
// surface as a modification change-log entry on each linked session.
func (plannedHelper) EffectsOfDelete(uuids []string) []EffectRead {
	return plannedSessionEffects(uuids)
}

// EffectsOfUpsert reports the exercise sessions completing the upserted
// plans, since session-derived views depend on plan content.
func (plannedHelper) EffectsOfUpsert(uuids []string) []EffectRead {
	return plannedSessionEffects(uuids)
}

func plannedSessionEffects(uuids []string) []EffectRead {
	if len(uuids) == 0 {
		return nil
	}
	values := make([]any, len(uuids))
	for i, u := range uuids {
		values[i] = u
	}
	return []EffectRead{{
		Type: datatypes.TypeExerciseSession,
		Filters: []request.Filter{
			request.In{Column: "t." + ColPlannedSessionUUID, Values: values},
		},
	}}
}
