package request

import (
	"fmt"
	"strings"
)

// Filter is a structured WHERE-clause fragment. Values are always
// parameterized, never interpolated into the SQL text.
type Filter interface {
	clause() (string, []any)
}

// Eq matches rows where Column equals Value.
type Eq struct {
	Column string
	Value  any
}

func (f Eq) clause() (string, []any) {
	return f.Column + " = ?", []any{f.Value}
}

// In matches rows where Column is one of Values. An empty value list
// compiles to a contradiction so the statement matches nothing rather than
// everything.
type In struct {
	Column string
	Values []any
}

func (f In) clause() (string, []any) {
	if len(f.Values) == 0 {
		return "1 = 0", nil
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(f.Values)), ", ")
	return fmt.Sprintf("%s IN (%s)", f.Column, placeholders), f.Values
}

// TimeRange matches rows whose Column lies in [StartMillis, EndMillis).
type TimeRange struct {
	Column      string
	StartMillis int64
	EndMillis   int64
}

func (f TimeRange) clause() (string, []any) {
	return fmt.Sprintf("%s >= ? AND %s < ?", f.Column, f.Column),
		[]any{f.StartMillis, f.EndMillis}
}

// GreaterThan matches rows where Column > Value.
type GreaterThan struct {
	Column string
	Value  any
}

func (f GreaterThan) clause() (string, []any) {
	return f.Column + " > ?", []any{f.Value}
}

// LessThan matches rows where Column < Value.
type LessThan struct {
	Column string
	Value  any
}

func (f LessThan) clause() (string, []any) {
	return f.Column + " < ?", []any{f.Value}
}

// Raw is an escape hatch for fragments the structured filters cannot
// express, such as subquery membership. Params are still parameterized.
type Raw struct {
	SQL    string
	Params []any
}

func (f Raw) clause() (string, []any) {
	return f.SQL, f.Params
}

// CompileWhere joins filters into a WHERE clause. Returns an empty string
// and nil params when no filters are given.
func CompileWhere(filters []Filter) (string, []any) {
	if len(filters) == 0 {
		return "", nil
	}

	var parts []string
	var params []any
	for _, f := range filters {
		sql, p := f.clause()
		parts = append(parts, sql)
		params = append(params, p...)
	}

	return " WHERE " + strings.Join(parts, " AND "), params
}
