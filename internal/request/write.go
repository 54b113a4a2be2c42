package request

import (
	"fmt"
	"sort"
	"strings"
)

// ChildUpsert holds the replacement rows for one child table of a record.
// On update the transaction manager deletes all existing rows for the
// parent and reinserts Rows keyed to the surviving parent row identifier.
type ChildUpsert struct {
	Table        string
	ParentColumn string
	Rows         []map[string]any
}

// UpsertRequest describes an insert-or-replace of one parent row plus its
// child rows. UniqueColumns name the constraint whose violation triggers
// the conflict-resolution protocol (read conflicting row, compare content,
// update in place).
type UpsertRequest struct {
	Table         string
	Values        map[string]any
	UniqueColumns []string
	Children      []ChildUpsert
}

// InsertSQL compiles a plain INSERT of the parent row. Keys are sorted so
// statement text is deterministic for a given column set.
func (r UpsertRequest) InsertSQL() (string, []any) {
	return InsertSQL(r.Table, r.Values)
}

// UpdateSQL compiles an UPDATE of the parent row matching the given
// filters. Used both by the conflict fallback (matching on row_id) and by
// updateAll (matching on uuid + owning app).
func (r UpsertRequest) UpdateSQL(filters []Filter) (string, []any) {
	keys := sortedKeys(r.Values)

	var sets []string
	var params []any
	for _, k := range keys {
		sets = append(sets, k+" = ?")
		params = append(params, r.Values[k])
	}

	where, whereParams := CompileWhere(filters)
	params = append(params, whereParams...)

	return fmt.Sprintf("UPDATE %s SET %s%s",
		r.Table, strings.Join(sets, ", "), where), params
}

// ConflictFilters returns the filters locating the row that caused a
// uniqueness violation for this request's values.
func (r UpsertRequest) ConflictFilters() []Filter {
	var filters []Filter
	for _, col := range r.UniqueColumns {
		filters = append(filters, Eq{Column: col, Value: r.Values[col]})
	}
	return filters
}

// InsertSQL compiles an INSERT of one row with sorted column order.
func InsertSQL(table string, values map[string]any) (string, []any) {
	keys := sortedKeys(values)

	var params []any
	for _, k := range keys {
		params = append(params, values[k])
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(keys)), ", ")
	return fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		table, strings.Join(keys, ", "), placeholders), params
}

// DeleteRequest describes a delete against one table. The transaction
// manager reads the affected rows before compiling the delete, so
// change-log attribution and ownership checks happen there.
type DeleteRequest struct {
	Table   string
	Filters []Filter
}

// SQL compiles the delete. Child rows are never deleted here; they are
// removed by the ON DELETE CASCADE declaration on the child table.
func (r DeleteRequest) SQL() (string, []any) {
	where, params := CompileWhere(r.Filters)
	return "DELETE FROM " + r.Table + where, params
}

func sortedKeys(values map[string]any) []string {
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
