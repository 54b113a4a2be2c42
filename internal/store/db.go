package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	_ "github.com/mattn/go-sqlite3"

	"github.com/vitalbase/healthstore/internal/record"
)

const stmtCacheSize = 128

// Database is a single user's health database: the underlying SQLite
// handle, the capabilities probed from its physical schema, and a small
// prepared-statement cache for the hot query paths.
type Database struct {
	db    *sql.DB
	caps  record.Capabilities
	stmts *lru.Cache[string, *sql.Stmt]
	log   *slog.Logger
}

func openDatabase(path string, log *slog.Logger) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("opening database at %s: %w", path, err)
	}

	// SQLite allows a single writer; serialize access through one
	// connection rather than relying on busy retries under load.
	db.SetMaxOpenConns(1)
	db.SetConnMaxLifetime(0)

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("setting pragma %q: %w", p, err)
		}
	}
	return db, nil
}

func newDatabase(db *sql.DB, caps record.Capabilities, log *slog.Logger) (*Database, error) {
	stmts, err := lru.NewWithEvict(stmtCacheSize, func(_ string, s *sql.Stmt) {
		s.Close()
	})
	if err != nil {
		return nil, fmt.Errorf("creating statement cache: %w", err)
	}
	return &Database{db: db, caps: caps, stmts: stmts, log: log}, nil
}

// Capabilities reports which optional schema components this database
// carries. Capabilities follow the applied schema, not the current flag
// values: a column created by an earlier flag-guarded upgrade survives
// the flag being turned off.
func (d *Database) Capabilities() record.Capabilities { return d.caps }

// prepare returns a cached prepared statement for query, preparing and
// caching it on miss.
func (d *Database) prepare(ctx context.Context, query string) (*sql.Stmt, error) {
	if s, ok := d.stmts.Get(query); ok {
		return s, nil
	}
	s, err := d.db.PrepareContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("preparing statement: %w", err)
	}
	d.stmts.Add(query, s)
	return s, nil
}

// queryTx runs a read inside tx through the statement cache. The cached
// statement outlives the transaction; tx.StmtContext borrows it for the
// transaction's connection.
func (d *Database) queryTx(ctx context.Context, tx *sql.Tx, query string, args ...any) (*sql.Rows, error) {
	s, err := d.prepare(ctx, query)
	if err != nil {
		return nil, err
	}
	return tx.StmtContext(ctx, s).QueryContext(ctx, args...)
}

// Checkpoint forces a WAL checkpoint so the main database file holds all
// committed state. Run before the file is copied or deleted.
func (d *Database) Checkpoint(ctx context.Context) error {
	_, err := d.db.ExecContext(ctx, "PRAGMA wal_checkpoint(TRUNCATE)")
	if err != nil {
		return fmt.Errorf("checkpointing: %w", err)
	}
	return nil
}

// Close checkpoints the WAL, evicts all cached statements, and closes the
// handle.
func (d *Database) Close() error {
	start := time.Now()
	if err := d.Checkpoint(context.Background()); err != nil {
		d.log.Warn("checkpoint on close failed", "error", err)
	}
	d.stmts.Purge()
	err := d.db.Close()
	d.log.Debug("database closed", "elapsed", time.Since(start))
	return err
}
