package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	sqlite3 "github.com/mattn/go-sqlite3"

	"github.com/vitalbase/healthstore/internal/accesslog"
	"github.com/vitalbase/healthstore/internal/datatypes"
	"github.com/vitalbase/healthstore/internal/prefs"
	"github.com/vitalbase/healthstore/internal/record"
	"github.com/vitalbase/healthstore/internal/schema"
)

// DefaultPageSize is the page size used when a read request does not set
// one.
const DefaultPageSize = 1000

// MaxPageSize caps the page size a caller may request.
const MaxPageSize = 5000

// Clock supplies the current time. Production code uses SystemClock;
// tests substitute a fixed clock so change-log and access-log timestamps
// are deterministic.
type Clock interface {
	Now() time.Time
}

// SystemClock is the wall clock.
type SystemClock struct{}

// Now returns the current time.
func (SystemClock) Now() time.Time { return time.Now() }

// TransactionManager mediates every read and write against one user's
// database. All mutations run inside a single SQLite transaction that
// also carries the change-log and access-log rows they imply, so a
// rollback leaves no partial trace.
type TransactionManager struct {
	db       *Database
	registry *record.Registry
	clock    Clock
	log      *slog.Logger
}

// NewTransactionManager wires a manager over an open database handle.
func NewTransactionManager(db *Database, reg *record.Registry, clock Clock, log *slog.Logger) *TransactionManager {
	if clock == nil {
		clock = SystemClock{}
	}
	if log == nil {
		log = slog.Default()
	}
	return &TransactionManager{db: db, registry: reg, clock: clock, log: log}
}

// Registry exposes the record-type registry backing this manager.
func (m *TransactionManager) Registry() *record.Registry { return m.registry }

// Capabilities reports the database's optional schema components.
func (m *TransactionManager) Capabilities() record.Capabilities { return m.db.Capabilities() }

// Close releases the underlying database handle.
func (m *TransactionManager) Close() error { return m.db.Close() }

// helper resolves the record-type helper, or a not-found style error for
// types absent from the registry. A type registered only behind a schema
// capability is indistinguishable from an unknown type here.
func (m *TransactionManager) helper(t datatypes.RecordType) (record.Helper, error) {
	h, ok := m.registry.Get(t)
	if !ok {
		return nil, &StoreError{
			Code:       ErrCodeUnsupportedType,
			Message:    "record type is not available on this database",
			RecordType: string(t),
		}
	}
	return h, nil
}

// readHelper resolves the helper for a read or aggregation. A known type
// whose schema is absent from this database reports ok=false: reads of it
// see an empty store instead of an error. Unknown types still fail.
func (m *TransactionManager) readHelper(t datatypes.RecordType) (record.Helper, bool, error) {
	if h, ok := m.registry.Get(t); ok {
		return h, true, nil
	}
	if _, err := datatypes.ParseRecordType(string(t)); err == nil {
		return nil, false, nil
	}
	return nil, false, &StoreError{
		Code:       ErrCodeUnsupportedType,
		Message:    "record type is not available on this database",
		RecordType: string(t),
	}
}

// inTx runs fn inside a transaction, rolling back on error or panic.
func (m *TransactionManager) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := m.db.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

// getOrCreateAppID interns packageName in application_info and returns
// its row id.
func getOrCreateAppID(ctx context.Context, tx *sql.Tx, packageName string) (int64, error) {
	var id int64
	err := tx.QueryRowContext(ctx,
		"SELECT row_id FROM "+schema.AppInfoTable+" WHERE package_name = ?",
		packageName).Scan(&id)
	if err == nil {
		return id, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("looking up app info: %w", err)
	}

	res, err := tx.ExecContext(ctx,
		"INSERT INTO "+schema.AppInfoTable+" (package_name) VALUES (?)",
		packageName)
	if err != nil {
		return 0, fmt.Errorf("interning app info: %w", err)
	}
	id, err = res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("reading app info id: %w", err)
	}
	return id, nil
}

// appIDForPackage looks up an interned package without creating it.
// Returns ok=false when the package has never written.
func appIDForPackage(ctx context.Context, tx *sql.Tx, packageName string) (int64, bool, error) {
	var id int64
	err := tx.QueryRowContext(ctx,
		"SELECT row_id FROM "+schema.AppInfoTable+" WHERE package_name = ?",
		packageName).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("looking up app info: %w", err)
	}
	return id, true, nil
}

// isConstraintError reports whether err is a SQLite uniqueness or
// foreign-key violation.
func isConstraintError(err error) bool {
	var serr sqlite3.Error
	if errors.As(err, &serr) {
		return serr.Code == sqlite3.ErrConstraint
	}
	return false
}

// logAccess appends an access-log row inside the caller's transaction.
func (m *TransactionManager) logAccess(ctx context.Context, tx *sql.Tx, appInfoID int64, e accesslog.Entry) error {
	e.AccessTime = m.clock.Now()
	return accesslog.Append(ctx, tx, appInfoID, e, m.db.Capabilities().PersonalHealthRecord)
}

// PreferenceGet reads a preference value. ok is false when the key is
// absent.
func (m *TransactionManager) PreferenceGet(ctx context.Context, key string) (string, bool, error) {
	return prefs.Get(ctx, m.db.db, key)
}

// PreferenceSet writes a preference value, replacing any existing one.
func (m *TransactionManager) PreferenceSet(ctx context.Context, key, value string) error {
	return prefs.Set(ctx, m.db.db, key, value)
}

// PreferenceRemove deletes a preference key. Removing an absent key is a
// no-op.
func (m *TransactionManager) PreferenceRemove(ctx context.Context, key string) error {
	return prefs.Remove(ctx, m.db.db, key)
}
