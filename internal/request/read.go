package request

import (
	"fmt"
	"strings"
)

// Join describes an INNER JOIN appended to a read.
type Join struct {
	Table string
	On    string // raw join condition, e.g. "t.app_info_id = a.row_id"
	Alias string
}

// OrderBy describes the ordering of a read. Reads that page by token always
// order by the row identifier so the token position is stable.
type OrderBy struct {
	Column    string
	Ascending bool
}

// ReadRequest describes a filtered, optionally joined, ordered, limited
// SELECT against one table.
type ReadRequest struct {
	Table   string
	Alias   string
	Columns []string
	Join    *Join
	Filters []Filter
	OrderBy *OrderBy
	Limit   int
}

// SQL compiles the read to a parameterized SELECT.
func (r ReadRequest) SQL() (string, []any) {
	cols := "*"
	if len(r.Columns) > 0 {
		cols = strings.Join(r.Columns, ", ")
	}

	from := r.Table
	if r.Alias != "" {
		from += " " + r.Alias
	}

	var join string
	if r.Join != nil {
		join = fmt.Sprintf(" INNER JOIN %s", r.Join.Table)
		if r.Join.Alias != "" {
			join += " " + r.Join.Alias
		}
		join += " ON " + r.Join.On
	}

	where, params := CompileWhere(r.Filters)

	var order string
	if r.OrderBy != nil {
		dir := "DESC"
		if r.OrderBy.Ascending {
			dir = "ASC"
		}
		order = fmt.Sprintf(" ORDER BY %s %s", r.OrderBy.Column, dir)
	}

	var limit string
	if r.Limit > 0 {
		limit = fmt.Sprintf(" LIMIT %d", r.Limit)
	}

	return fmt.Sprintf("SELECT %s FROM %s%s%s%s%s",
		cols, from, join, where, order, limit), params
}

// AggregateRequest describes a single aggregate function over one column of
// one table, e.g. SUM(count) over steps in a time range.
type AggregateRequest struct {
	Table   string
	Column  string
	Func    string // SUM, MIN, MAX, AVG, COUNT
	Filters []Filter
}

// SQL compiles the aggregate to a parameterized SELECT returning one row.
func (r AggregateRequest) SQL() (string, []any) {
	where, params := CompileWhere(r.Filters)
	return fmt.Sprintf("SELECT %s(%s) FROM %s%s",
		r.Func, r.Column, r.Table, where), params
}
