// Package prefs is the string-keyed settings sub-store. It backs features
// layered above the core (export scheduling, the dev-schema marker) and is
// deliberately not versioned.
package prefs

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// Table is the preference table name.
const Table = "preferences"

// Keys consumed by features layered on the store.
const (
	KeyExportURI        = "export.uri"
	KeyExportLastTime   = "export.last_time"
	KeyDevSchemaVersion = "dev.schema_version"
)

// CreateStatement returns the DDL for the preference table.
func CreateStatement() string {
	return `CREATE TABLE IF NOT EXISTS ` + Table + ` (
	key TEXT NOT NULL PRIMARY KEY,
	value TEXT NOT NULL
)`
}

// Querier is the subset of *sql.DB / *sql.Tx the sub-store needs, so
// preference access works both standalone and inside a transaction.
type Querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Get returns the value for key, or ok=false when the key is absent.
func Get(ctx context.Context, q Querier, key string) (value string, ok bool, err error) {
	err = q.QueryRowContext(ctx,
		"SELECT value FROM "+Table+" WHERE key = ?", key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("get preference %q: %w", key, err)
	}
	return value, true, nil
}

// Set stores key=value, replacing any previous value.
func Set(ctx context.Context, q Querier, key, value string) error {
	_, err := q.ExecContext(ctx, `
		INSERT INTO `+Table+` (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value
	`, key, value)
	if err != nil {
		return fmt.Errorf("set preference %q: %w", key, err)
	}
	return nil
}

// Remove deletes a key. Removing an absent key is a no-op.
func Remove(ctx context.Context, q Querier, key string) error {
	if _, err := q.ExecContext(ctx,
		"DELETE FROM "+Table+" WHERE key = ?", key); err != nil {
		return fmt.Errorf("remove preference %q: %w", key, err)
	}
	return nil
}
