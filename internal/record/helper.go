// Package record bridges the generic transaction manager and the
// type-specific column layouts. One Helper per record type knows how to
// turn a typed record into content values, reconstruct it from result rows,
// describe its aggregations, and name the other records a mutation ripples
// into.
package record

import (
	"github.com/vitalbase/healthstore/internal/datatypes"
	"github.com/vitalbase/healthstore/internal/request"
	"github.com/vitalbase/healthstore/internal/schema"
)

// RowScanner is satisfied by *sql.Rows and *sql.Row.
type RowScanner interface {
	Scan(dest ...any) error
}

// AggregationType names an aggregate a caller may request for a record
// type. Helpers report which types they support.
type AggregationType string

const (
	AggregationTotal    AggregationType = "TOTAL"
	AggregationMin      AggregationType = "MIN"
	AggregationMax      AggregationType = "MAX"
	AggregationAverage  AggregationType = "AVG"
	AggregationCount    AggregationType = "COUNT"
	AggregationDuration AggregationType = "DURATION"
)

// AggregateSpec tells the transaction manager which table, column, and SQL
// function implement one aggregation type. TimeColumn is the column the
// caller's time-range filter applies to; for series types it lives on the
// child table.
type AggregateSpec struct {
	Table      string
	TimeColumn string
	Column     string
	Func       string
}

// EffectRead describes records of another (or the same) type whose
// change-log state is affected by a mutation, e.g. deleting a planned
// session modifies the exercise sessions linked to it. The manager runs the
// read inside the mutating transaction, before the mutation for deletes.
type EffectRead struct {
	Type    datatypes.RecordType
	Filters []request.Filter
}

// Helper is the per-record-type capability surface consumed by the
// transaction manager. Implementations are stateless and safe for
// concurrent use.
type Helper interface {
	Type() datatypes.RecordType

	// Table returns the full descriptor including child tables. The
	// migration engine turns it into DDL.
	Table() schema.Table

	// UpsertValues returns the parent-row content values for the record,
	// including identity columns. The owning app is already interned.
	UpsertValues(r datatypes.Record, appInfoID int64) (map[string]any, error)

	// ChildUpserts returns the replacement child rows, without parent
	// ids; the manager fills the parent column after the parent row
	// exists.
	ChildUpserts(r datatypes.Record) ([]request.ChildUpsert, error)

	// ReadColumns returns the qualified column list a record read must
	// select, in the order ScanRecord consumes them. The parent table is
	// aliased "t", the application_info join "a".
	ReadColumns() []string

	// ScanRecord reconstructs one record (without children) from a row
	// positioned by a ReadColumns query, returning its row identifier.
	ScanRecord(scan RowScanner) (datatypes.Record, int64, error)

	// ChildReadColumns returns the column list for one child table, in
	// the order ScanChildRow consumes them. First column is the parent
	// reference.
	ChildReadColumns(table string) []string

	// ScanChildRow reconstructs one child value and the parent row id it
	// belongs to.
	ScanChildRow(table string, scan RowScanner) (parentRowID int64, child any, err error)

	// SetChildren attaches the pre-grouped child values for one child
	// table to a reconstructed record.
	SetChildren(r datatypes.Record, table string, children []any) error

	// Aggregate reports whether the aggregation type is supported and,
	// if so, how to compute it.
	Aggregate(kind AggregationType) (AggregateSpec, bool)

	// EffectsOfDelete returns reads describing records modified as a
	// side effect of deleting the given UUIDs of this type.
	EffectsOfDelete(uuids []string) []EffectRead

	// EffectsOfUpsert returns reads describing records modified as a
	// side effect of upserting the given UUIDs of this type.
	EffectsOfUpsert(uuids []string) []EffectRead
}
