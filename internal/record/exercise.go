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
	exerciseTable        = "exercise_session"
	exerciseSegmentTable = "exercise_session_segments"
	colSessionID         = "session_id"
	colExerciseType      = "exercise_type"
	colTitle             = "title"
	colNotes             = "notes"
	colSegmentType       = "segment_type"
	colRepCount          = "rep_count"

	// ColPlannedSessionUUID is added by the planned-exercise schema
	// upgrade, not by the initial CREATE; it is declared as a deferred
	// foreign key because the planned table does not exist yet when the
	// session table is created.
	ColPlannedSessionUUID = "planned_exercise_session_uuid"
)

// exerciseHelper handles exercise sessions with segment child rows and the
// flag-gated link to planned sessions.
//
// plannedLink reports whether the planned-exercise upgrade has been applied
// to this database; the link column cannot be referenced before then.
type exerciseHelper struct {
	plannedLink bool
}

func (exerciseHelper) Type() datatypes.RecordType { return datatypes.TypeExerciseSession }

func (exerciseHelper) Table() schema.Table {
	return schema.Table{
		Name: exerciseTable,
		Columns: append(append(schema.RecordColumns(), schema.IntervalColumns()...),
			schema.Column{Name: colExerciseType, Type: schema.Integer, NotNull: true},
			schema.Column{Name: colTitle, Type: schema.Text},
			schema.Column{Name: colNotes, Type: schema.Text},
		),
		Unique: schema.RecordConstraints(),
		ForeignKeys: []schema.ForeignKey{
			schema.AppInfoForeignKey(),
			{
				Column:          ColPlannedSessionUUID,
				RefTable:        plannedTable,
				RefColumn:       schema.ColUUID,
				SetNullOnDelete: true,
				Deferred:        true,
				ColumnType:      schema.Text,
			},
		},
		Children: []schema.Table{{
			Name: exerciseSegmentTable,
			Columns: []schema.Column{
				{Name: schema.ColRowID, Type: schema.Integer, PrimaryKey: true},
				{Name: colSessionID, Type: schema.Integer, NotNull: true},
				{Name: schema.ColStartTime, Type: schema.Integer, NotNull: true},
				{Name: schema.ColEndTime, Type: schema.Integer, NotNull: true},
				{Name: colSegmentType, Type: schema.Integer, NotNull: true},
				{Name: colRepCount, Type: schema.Integer, NotNull: true},
			},
			ForeignKeys: []schema.ForeignKey{
				schema.ChildForeignKey(colSessionID, exerciseTable),
			},
		}},
	}
}

func (h exerciseHelper) UpsertValues(r datatypes.Record, appInfoID int64) (map[string]any, error) {
	rec, err := typed[*datatypes.ExerciseSession](r)
	if err != nil {
		return nil, err
	}

	values := merge(
		recordValues(r.Meta(), appInfoID),
		intervalValues(rec.StartTime, rec.EndTime, rec.StartZoneOffset, rec.EndZoneOffset),
		map[string]any{
			colExerciseType: rec.ExerciseType,
			colTitle:        rec.Title,
			colNotes:        rec.Notes,
		},
	)

	if h.plannedLink {
		var planned any
		if rec.PlannedSessionUUID != "" {
			planned = rec.PlannedSessionUUID
		}
		values[ColPlannedSessionUUID] = planned
	} else if rec.PlannedSessionUUID != "" {
		return nil, fmt.Errorf("planned exercise links are not enabled")
	}

	return values, nil
}

func (exerciseHelper) ChildUpserts(r datatypes.Record) ([]request.ChildUpsert, error) {
	rec, err := typed[*datatypes.ExerciseSession](r)
	if err != nil {
		return nil, err
	}

	rows := make([]map[string]any, 0, len(rec.Segments))
	for _, s := range rec.Segments {
		rows = append(rows, map[string]any{
			schema.ColStartTime: s.StartTime.UnixMilli(),
			schema.ColEndTime:   s.EndTime.UnixMilli(),
			colSegmentType:      s.SegmentType,
			colRepCount:         s.RepCount,
		})
	}

	return []request.ChildUpsert{{
		Table:        exerciseSegmentTable,
		ParentColumn: colSessionID,
		Rows:         rows,
	}}, nil
}

func (h exerciseHelper) ReadColumns() []string {
	cols := append(intervalReadColumns(), colExerciseType, colTitle, colNotes)
	if h.plannedLink {
		cols = append(cols, ColPlannedSessionUUID)
	}
	return readColumns(cols...)
}

func (h exerciseHelper) ScanRecord(scan RowScanner) (datatypes.Record, int64, error) {
	var core rowCore
	var iv intervalCore
	var exerciseType int64
	var title, notes, planned sql.NullString

	dests := append(core.dests(), iv.dests()...)
	dests = append(dests, &exerciseType, &title, &notes)
	if h.plannedLink {
		dests = append(dests, &planned)
	}
	if err := scan.Scan(dests...); err != nil {
		return nil, 0, err
	}

	return &datatypes.ExerciseSession{
		Metadata:           core.metadata(),
		StartTime:          time.UnixMilli(iv.start).UTC(),
		EndTime:            time.UnixMilli(iv.end).UTC(),
		StartZoneOffset:    int32(iv.startOff.Int64),
		EndZoneOffset:      int32(iv.endOff.Int64),
		ExerciseType:       exerciseType,
		Title:              title.String,
		Notes:              notes.String,
		PlannedSessionUUID: planned.String,
	}, core.rowID, nil
}

func (exerciseHelper) ChildReadColumns(table string) []string {
	if table != exerciseSegmentTable {
		return nil
	}
	return []string{colSessionID, schema.ColStartTime, schema.ColEndTime, colSegmentType, colRepCount}
}

func (exerciseHelper) ScanChildRow(table string, scan RowScanner) (int64, any, error) {
	if table != exerciseSegmentTable {
		return 0, nil, errNoChildTable(exerciseTable, table)
	}

	var parentID, start, end, segType, reps int64
	if err := scan.Scan(&parentID, &start, &end, &segType, &reps); err != nil {
		return 0, nil, err
	}

	return parentID, datatypes.ExerciseSegment{
		StartTime:   time.UnixMilli(start).UTC(),
		EndTime:     time.UnixMilli(end).UTC(),
		SegmentType: segType,
		RepCount:    reps,
	}, nil
}

func (exerciseHelper) SetChildren(r datatypes.Record, table string, children []any) error {
	rec, err := typed[*datatypes.ExerciseSession](r)
	if err != nil {
		return err
	}
	if table != exerciseSegmentTable {
		return errNoChildTable(exerciseTable, table)
	}

	rec.Segments = rec.Segments[:0]
	for _, c := range children {
		seg, ok := c.(datatypes.ExerciseSegment)
		if !ok {
			return fmt.Errorf("unexpected child value %T for %s", c, exerciseSegmentTable)
		}
		rec.Segments = append(rec.Segments, seg)
	}
	return nil
}

func (exerciseHelper) Aggregate(kind AggregationType) (AggregateSpec, bool) {
	switch kind {
	case AggregationCount:
		return AggregateSpec{
			Table:      exerciseTable,
			TimeColumn: schema.ColStartTime,
			Column:     schema.ColRowID,
			Func:       "COUNT",
		}, true
	case AggregationDuration:
		return AggregateSpec{
			Table:      exerciseTable,
			TimeColumn: schema.ColStartTime,
			Column:     "(" + schema.ColEndTime + " - " + schema.ColStartTime + ")",
			Func:       "SUM",
		}, true
	default:
		return AggregateSpec{}, false
	}
}

func (exerciseHelper) EffectsOfDelete([]string) []EffectRead { return nil }
func (exerciseHelper) EffectsOfUpsert([]string) []EffectRead { return nil }
