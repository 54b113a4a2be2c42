// Package request builds parameterized SQL from table descriptors and
// caller intent. Builders are stateless and side-effect-free; the
// transaction manager decides when and inside which transaction the
// statements run.
//
// All generated SQL is deterministic: content-value keys are sorted before
// compilation so the same request always produces the same statement text.
package request

import (
	"fmt"
	"strings"

	"github.com/vitalbase/healthstore/internal/schema"
)

// CreateTableRequest compiles a table descriptor (and its child tables)
// into CREATE TABLE / CREATE INDEX statements.
type CreateTableRequest struct {
	Table schema.Table
}

// Statements returns the DDL for the table, its unique indexes, and its
// child tables, in execution order. Deferred foreign keys are skipped; see
// DeferredColumnStatements.
//
// All statements use IF NOT EXISTS so re-running a creation step during a
// repeated migration is a no-op.
func (r CreateTableRequest) Statements() []string {
	var stmts []string
	stmts = append(stmts, createTable(r.Table)...)
	for _, child := range r.Table.Children {
		stmts = append(stmts, createTable(child)...)
	}
	return stmts
}

// DeferredColumnStatements returns ALTER TABLE ADD COLUMN statements for
// the table's deferred foreign keys. SQLite cannot attach a foreign key to
// an existing column, so deferred references are modeled as new columns
// added once the referenced table exists. These ALTERs are NOT idempotent;
// callers must gate them behind an existence check.
func (r CreateTableRequest) DeferredColumnStatements() []string {
	var stmts []string
	for _, fk := range r.Table.ForeignKeys {
		if !fk.Deferred {
			continue
		}
		colType := fk.ColumnType
		if colType == "" {
			colType = schema.Integer
		}
		stmt := fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s %s REFERENCES %s(%s)",
			r.Table.Name, fk.Column, colType, fk.RefTable, fk.RefColumn)
		if fk.SetNullOnDelete {
			stmt += " ON DELETE SET NULL"
		}
		stmts = append(stmts, stmt)
	}
	return stmts
}

func createTable(t schema.Table) []string {
	var defs []string
	for _, col := range t.Columns {
		defs = append(defs, columnDef(col))
	}
	for _, u := range t.Unique {
		defs = append(defs, fmt.Sprintf("UNIQUE (%s)", strings.Join(u, ", ")))
	}
	for _, fk := range t.ForeignKeys {
		if fk.Deferred {
			continue
		}
		def := fmt.Sprintf("FOREIGN KEY (%s) REFERENCES %s(%s)",
			fk.Column, fk.RefTable, fk.RefColumn)
		if fk.CascadeDelete {
			def += " ON DELETE CASCADE"
		} else if fk.SetNullOnDelete {
			def += " ON DELETE SET NULL"
		}
		defs = append(defs, def)
	}

	stmt := fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (\n\t%s\n)",
		t.Name, strings.Join(defs, ",\n\t"))

	return []string{stmt}
}

func columnDef(c schema.Column) string {
	def := c.Name + " " + string(c.Type)
	if c.PrimaryKey {
		return def + " PRIMARY KEY AUTOINCREMENT"
	}
	if c.NotNull {
		def += " NOT NULL"
	}
	return def
}

// DropTableStatement returns the DROP statement for a table. Used only by
// the destructive legacy-version path and the dev-schema path.
func DropTableStatement(table string) string {
	return "DROP TABLE IF EXISTS " + table
}

// AddColumnsRequest compiles ALTER TABLE ADD COLUMN statements. SQLite has
// no "add column if not exists", so these statements are not idempotent;
// migration steps must check column existence before issuing them.
type AddColumnsRequest struct {
	Table   string
	Columns []schema.Column
}

// Statements returns one ALTER TABLE statement per column.
func (r AddColumnsRequest) Statements() []string {
	var stmts []string
	for _, col := range r.Columns {
		stmts = append(stmts, fmt.Sprintf(
			"ALTER TABLE %s ADD COLUMN %s", r.Table, columnDef(col)))
	}
	return stmts
}
