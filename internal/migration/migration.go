// Package migration brings a physical database to the logical schema the
// current code expects. The version is SQLite's own user_version pragma.
//
// Two paths exist: a fixed, hand-ordered legacy chain of
// "if oldVersion < X" steps, and a flag-guarded ordered set applied for
// versions above the last unguarded release. Guarded steps must be
// idempotent; the legacy chain achieves the same through IF NOT EXISTS
// statements and column-existence checks, since SQLite has no
// "add column if not exists".
package migration

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/vitalbase/healthstore/internal/accesslog"
	"github.com/vitalbase/healthstore/internal/changelog"
	"github.com/vitalbase/healthstore/internal/flags"
	"github.com/vitalbase/healthstore/internal/prefs"
	"github.com/vitalbase/healthstore/internal/record"
	"github.com/vitalbase/healthstore/internal/request"
	"github.com/vitalbase/healthstore/internal/schema"
)

const (
	// MinSupportedVersion is the oldest schema the incremental chain can
	// upgrade. Databases below it (but above zero) are dropped and
	// recreated: a deliberate, documented data-loss path.
	MinSupportedVersion = 9

	// lastUnguardedVersion is the last version shipped without a flag
	// guard. Every guarded step must target a strictly higher version.
	lastUnguardedVersion = 11

	// CurrentVersion is the logical schema version of this build.
	CurrentVersion = 13
)

// Migrator applies schema upgrades. Flag state is consulted at upgrade
// time, never cached across opens.
type Migrator struct {
	Flags *flags.Set
}

// Apply upgrades the database in place and reports the resulting
// flag-gated capabilities. Any SQL failure is fatal and aborts the open;
// each step runs in its own transaction so a single version's changes are
// all-or-nothing.
func (m *Migrator) Apply(ctx context.Context, db *sql.DB) (record.Capabilities, error) {
	old, err := readUserVersion(ctx, db)
	if err != nil {
		return record.Capabilities{}, err
	}
	slog.Info("schema upgrade starting", "from", old, "to", CurrentVersion)

	if old != 0 && old < MinSupportedVersion {
		slog.Warn("schema below minimum supported version, recreating",
			"version", old, "minimum", MinSupportedVersion)
		if err := inTx(ctx, db, dropInitialSchema); err != nil {
			return record.Capabilities{}, fmt.Errorf("drop unsupported schema: %w", err)
		}
		old = 0
	}

	if old == 0 {
		if err := inTx(ctx, db, createInitialSchema); err != nil {
			return record.Capabilities{}, fmt.Errorf("create initial schema: %w", err)
		}
		old = MinSupportedVersion
	}

	if old < 10 {
		if err := inTx(ctx, db, upgradeToV10); err != nil {
			return record.Capabilities{}, fmt.Errorf("upgrade to 10: %w", err)
		}
	}
	if old < 11 {
		if err := inTx(ctx, db, upgradeToV11); err != nil {
			return record.Capabilities{}, fmt.Errorf("upgrade to 11: %w", err)
		}
	}

	if err := m.applyGuarded(ctx, db); err != nil {
		return record.Capabilities{}, err
	}

	if _, err := db.ExecContext(ctx,
		fmt.Sprintf("PRAGMA user_version = %d", CurrentVersion)); err != nil {
		return record.Capabilities{}, fmt.Errorf("set user_version: %w", err)
	}

	if err := m.reconcileDevSchema(ctx, db); err != nil {
		return record.Capabilities{}, err
	}

	caps, err := probeCapabilities(ctx, db)
	if err != nil {
		return record.Capabilities{}, err
	}
	slog.Info("schema upgrade complete", "version", CurrentVersion,
		"planned_exercise", caps.PlannedExercise,
		"personal_health_record", caps.PersonalHealthRecord)
	return caps, nil
}

func readUserVersion(ctx context.Context, db *sql.DB) (int, error) {
	var v int
	if err := db.QueryRowContext(ctx, "PRAGMA user_version").Scan(&v); err != nil {
		return 0, fmt.Errorf("read user_version: %w", err)
	}
	return v, nil
}

func inTx(ctx context.Context, db *sql.DB, step func(context.Context, *sql.Tx) error) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin upgrade tx: %w", err)
	}
	defer tx.Rollback()

	if err := step(ctx, tx); err != nil {
		return err
	}
	return tx.Commit()
}

// createInitialSchema creates every table of the minimum supported schema:
// the app identity table first (record tables reference it), then the base
// record tables, then the bookkeeping sub-stores.
func createInitialSchema(ctx context.Context, tx *sql.Tx) error {
	var stmts []string
	stmts = append(stmts, request.CreateTableRequest{Table: schema.AppInfo()}.Statements()...)
	for _, h := range record.BaseHelpers() {
		stmts = append(stmts, request.CreateTableRequest{Table: h.Table()}.Statements()...)
	}
	stmts = append(stmts, changelog.CreateStatements()...)
	stmts = append(stmts, accesslog.CreateStatement())
	stmts = append(stmts, prefs.CreateStatement())

	return execAll(ctx, tx, stmts)
}

// dropInitialSchema drops every table of the oldest known schema. Used
// only by the below-minimum recreation path.
func dropInitialSchema(ctx context.Context, tx *sql.Tx) error {
	var tables []string
	for _, h := range record.BaseHelpers() {
		t := h.Table()
		for _, child := range t.Children {
			tables = append(tables, child.Name)
		}
		tables = append(tables, t.Name)
	}
	tables = append(tables,
		changelog.Table, changelog.TokenTable,
		accesslog.Table, prefs.Table, schema.AppInfoTable)

	var stmts []string
	for _, t := range tables {
		stmts = append(stmts, request.DropTableStatement(t))
	}
	return execAll(ctx, tx, stmts)
}

// upgradeToV10 adds the skin temperature tables. CREATE IF NOT EXISTS
// makes re-application a no-op.
func upgradeToV10(ctx context.Context, tx *sql.Tx) error {
	req := request.CreateTableRequest{Table: record.SkinTemperatureHelper().Table()}
	return execAll(ctx, tx, req.Statements())
}

// upgradeToV11 adds the client record id column to record tables created
// before it existed. ALTER TABLE ADD COLUMN cannot be made idempotent by
// the engine, so each is gated on a column-existence check.
func upgradeToV11(ctx context.Context, tx *sql.Tx) error {
	helpers := append(record.BaseHelpers(), record.SkinTemperatureHelper())
	for _, h := range helpers {
		table := h.Table().Name

		exists, err := columnExists(ctx, tx, table, schema.ColClientRecordID)
		if err != nil {
			return err
		}
		if !exists {
			alter := request.AddColumnsRequest{
				Table:   table,
				Columns: []schema.Column{{Name: schema.ColClientRecordID, Type: schema.Text}},
			}
			if err := execAll(ctx, tx, alter.Statements()); err != nil {
				return err
			}
		}

		idx := fmt.Sprintf(
			"CREATE UNIQUE INDEX IF NOT EXISTS idx_%s_client_record ON %s(%s, %s)",
			table, table, schema.ColAppInfoID, schema.ColClientRecordID)
		if _, err := tx.ExecContext(ctx, idx); err != nil {
			return fmt.Errorf("create client record index on %s: %w", table, err)
		}
	}
	return nil
}

func execAll(ctx context.Context, tx *sql.Tx, stmts []string) error {
	for _, stmt := range stmts {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("execute %q: %w", firstLine(stmt), err)
		}
	}
	return nil
}

func firstLine(s string) string {
	for i, r := range s {
		if r == '\n' {
			return s[:i] + " ..."
		}
	}
	return s
}

func tableExists(ctx context.Context, q querier, name string) (bool, error) {
	var found string
	err := q.QueryRowContext(ctx,
		"SELECT name FROM sqlite_master WHERE type = 'table' AND name = ?",
		name).Scan(&found)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("check table %s: %w", name, err)
	}
	return true, nil
}

func columnExists(ctx context.Context, q querier, table, column string) (bool, error) {
	// PRAGMA arguments cannot be parameterized; table names here are
	// compile-time constants from descriptors.
	rows, err := q.QueryContext(ctx, fmt.Sprintf("PRAGMA table_info(%s)", table))
	if err != nil {
		return false, fmt.Errorf("table_info %s: %w", table, err)
	}
	defer rows.Close()

	for rows.Next() {
		var cid int
		var name, colType string
		var notNull, pk int
		var dflt sql.NullString
		if err := rows.Scan(&cid, &name, &colType, &notNull, &dflt, &pk); err != nil {
			return false, fmt.Errorf("scan table_info %s: %w", table, err)
		}
		if name == column {
			return true, nil
		}
	}
	return false, rows.Err()
}

type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// probeCapabilities inspects the physical schema for the flag-gated
// extensions. Capability follows what was actually applied, not the
// current flag value: a flag turned off later does not remove columns.
func probeCapabilities(ctx context.Context, db *sql.DB) (record.Capabilities, error) {
	var caps record.Capabilities

	planned, err := tableExists(ctx, db, record.PlannedExerciseHelper().Table().Name)
	if err != nil {
		return caps, err
	}
	caps.PlannedExercise = planned

	medical, err := tableExists(ctx, db, record.MedicalResourceHelper().Table().Name)
	if err != nil {
		return caps, err
	}
	caps.PersonalHealthRecord = medical

	return caps, nil
}
