package record

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/vitalbase/healthstore/internal/datatypes"
	"github.com/vitalbase/healthstore/internal/schema"
)

// typed narrows the generic record interface to a concrete type, failing
// loudly on a registry/caller mismatch.
func typed[T datatypes.Record](r datatypes.Record) (T, error) {
	rec, ok := r.(T)
	if !ok {
		var zero T
		return zero, fmt.Errorf("record type mismatch: got %T", r)
	}
	return rec, nil
}

func errNoChildTable(parent, table string) error {
	return fmt.Errorf("%s has no child table %q", parent, table)
}

// readColumns prefixes the shared identity columns every record read
// selects: row id, owning package (via the application_info join), uuid,
// client record id, last-modified time.
func readColumns(typeCols ...string) []string {
	cols := []string{
		"t." + schema.ColRowID,
		"a." + schema.ColPackageName,
		"t." + schema.ColUUID,
		"t." + schema.ColClientRecordID,
		"t." + schema.ColLastModifiedTime,
	}
	for _, c := range typeCols {
		cols = append(cols, "t."+c)
	}
	return cols
}

// rowCore receives the shared identity columns during a scan, in
// readColumns order.
type rowCore struct {
	rowID        int64
	packageName  string
	uuid         string
	clientID     sql.NullString
	lastModified int64
}

func (c *rowCore) dests() []any {
	return []any{&c.rowID, &c.packageName, &c.uuid, &c.clientID, &c.lastModified}
}

func (c *rowCore) metadata() datatypes.Metadata {
	return datatypes.Metadata{
		UUID:             c.uuid,
		AppID:            c.packageName,
		ClientRecordID:   c.clientID.String,
		LastModifiedTime: time.UnixMilli(c.lastModified).UTC(),
	}
}

// intervalCore receives the shared interval columns. Zone offsets are
// nullable for rows written before offsets were recorded.
type intervalCore struct {
	start    int64
	end      int64
	startOff sql.NullInt64
	endOff   sql.NullInt64
}

func (c *intervalCore) dests() []any {
	return []any{&c.start, &c.end, &c.startOff, &c.endOff}
}

func intervalReadColumns() []string {
	return []string{
		schema.ColStartTime,
		schema.ColEndTime,
		schema.ColStartZoneOffset,
		schema.ColEndZoneOffset,
	}
}

// recordValues builds the shared identity content values. A missing client
// record id is stored as NULL so the (app, client id) unique constraint
// never collides on unkeyed records.
func recordValues(m *datatypes.Metadata, appInfoID int64) map[string]any {
	var clientID any
	if m.ClientRecordID != "" {
		clientID = m.ClientRecordID
	}
	return map[string]any{
		schema.ColUUID:             m.UUID,
		schema.ColAppInfoID:        appInfoID,
		schema.ColClientRecordID:   clientID,
		schema.ColLastModifiedTime: m.LastModifiedTime.UnixMilli(),
	}
}

func intervalValues(start, end time.Time, startOff, endOff int32) map[string]any {
	return map[string]any{
		schema.ColStartTime:       start.UnixMilli(),
		schema.ColEndTime:         end.UnixMilli(),
		schema.ColStartZoneOffset: int64(startOff),
		schema.ColEndZoneOffset:   int64(endOff),
	}
}

func merge(maps ...map[string]any) map[string]any {
	out := make(map[string]any)
	for _, m := range maps {
		for k, v := range m {
			out[k] = v
		}
	}
	return out
}

// UniqueColumnsFor returns the columns whose uniqueness constraint governs
// conflict resolution for a record: the client-record key when the caller
// supplied one, else the external UUID.
func UniqueColumnsFor(r datatypes.Record) []string {
	if r.Meta().ClientRecordID != "" {
		return []string{schema.ColAppInfoID, schema.ColClientRecordID}
	}
	return []string{schema.ColUUID}
}

// ValuesEqual compares two content-value maps, skipping the named columns.
// It is the single content-equality definition used by the
// insert-or-replace protocol; per-type ad hoc comparisons are deliberately
// avoided.
func ValuesEqual(a, b map[string]any, skip ...string) bool {
	skipped := make(map[string]bool, len(skip))
	for _, s := range skip {
		skipped[s] = true
	}

	keys := make(map[string]bool)
	for k := range a {
		keys[k] = true
	}
	for k := range b {
		keys[k] = true
	}

	for k := range keys {
		if skipped[k] {
			continue
		}
		if !valueEqual(a[k], b[k]) {
			return false
		}
	}
	return true
}

// valueEqual compares scalar content values, normalizing across the Go
// types the driver may hand back (int vs int64, []byte vs string).
func valueEqual(a, b any) bool {
	// Normalize before the nil check: an invalid sql.Null wrapper
	// normalizes to nil and must compare equal to a stored NULL.
	na, nb := normalize(a), normalize(b)
	if na == nil || nb == nil {
		return na == nil && nb == nil
	}
	return na == nb
}

func normalize(v any) any {
	switch val := v.(type) {
	case int:
		return int64(val)
	case int32:
		return int64(val)
	case float32:
		return float64(val)
	case []byte:
		return string(val)
	case bool:
		if val {
			return int64(1)
		}
		return int64(0)
	case sql.NullString:
		if !val.Valid {
			return nil
		}
		return val.String
	case sql.NullInt64:
		if !val.Valid {
			return nil
		}
		return val.Int64
	default:
		return val
	}
}
