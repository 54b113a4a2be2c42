// Package changelog is the append-only record of which entities were
// upserted or deleted, consumed by incremental-sync readers through opaque
// tokens. Entries are written inside the same transaction as the mutation
// they describe and are never mutated or pruned afterwards.
package changelog

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/vitalbase/healthstore/internal/datatypes"
	"github.com/vitalbase/healthstore/internal/schema"
)

const (
	// Table holds one row per (record type, app, operation) group of a
	// transaction, with the affected UUIDs delimiter-joined.
	Table = "change_logs"

	// TokenTable holds issued cursor tokens. Tokens are immutable rows;
	// paging issues a fresh token pointing at the new position.
	TokenTable = "change_log_tokens"

	// uuidDelimiter joins UUIDs inside one change row. UUIDs are
	// hex-and-hyphen, so a comma can never collide.
	uuidDelimiter = ","
)

// Operation is the kind of mutation a change row records.
type Operation string

const (
	OpUpsert Operation = "UPSERT"
	OpDelete Operation = "DELETE"
)

// CreateStatements returns the DDL for both tables.
func CreateStatements() []string {
	return []string{
		`CREATE TABLE IF NOT EXISTS ` + Table + ` (
	row_id INTEGER PRIMARY KEY AUTOINCREMENT,
	record_type TEXT NOT NULL,
	app_info_id INTEGER NOT NULL,
	operation_type TEXT NOT NULL,
	uuids TEXT NOT NULL,
	time INTEGER NOT NULL,
	FOREIGN KEY (app_info_id) REFERENCES ` + schema.AppInfoTable + `(row_id)
)`,
		`CREATE TABLE IF NOT EXISTS ` + TokenTable + ` (
	row_id INTEGER PRIMARY KEY AUTOINCREMENT,
	record_types TEXT NOT NULL,
	package_name TEXT NOT NULL,
	last_change_rowid INTEGER NOT NULL,
	created_at INTEGER NOT NULL
)`,
	}
}

// Querier is the statement surface the sub-store needs; satisfied by
// *sql.DB and *sql.Tx.
type Querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Entry is one record's change, before grouping.
type Entry struct {
	Type      datatypes.RecordType
	AppInfoID int64
	Op        Operation
	UUID      string
}

// Append writes the entries as grouped change rows, one row per
// (type, app, operation), all stamped with the single transaction-wide
// timestamp. Must be called inside the mutating transaction.
func Append(ctx context.Context, q Querier, at time.Time, entries []Entry) error {
	if len(entries) == 0 {
		return nil
	}

	type groupKey struct {
		t  datatypes.RecordType
		ap int64
		op Operation
	}
	groups := make(map[groupKey][]string)
	var order []groupKey
	for _, e := range entries {
		k := groupKey{e.Type, e.AppInfoID, e.Op}
		if _, seen := groups[k]; !seen {
			order = append(order, k)
		}
		groups[k] = append(groups[k], e.UUID)
	}

	for _, k := range order {
		_, err := q.ExecContext(ctx, `
			INSERT INTO `+Table+`
			(record_type, app_info_id, operation_type, uuids, time)
			VALUES (?, ?, ?, ?, ?)
		`, string(k.t), k.ap, string(k.op),
			strings.Join(groups[k], uuidDelimiter), at.UnixMilli())
		if err != nil {
			return fmt.Errorf("append change log: %w", err)
		}
	}
	return nil
}

// TokenRequest filters the change stream a token will observe. Empty
// fields mean "all".
type TokenRequest struct {
	Types       []datatypes.RecordType
	PackageName string
}

// GetToken issues a cursor positioned at the current end of the change
// stream: a subsequent GetChanges returns only changes made after this
// call.
func GetToken(ctx context.Context, q Querier, at time.Time, req TokenRequest) (string, error) {
	var last sql.NullInt64
	if err := q.QueryRowContext(ctx,
		"SELECT MAX(row_id) FROM "+Table).Scan(&last); err != nil {
		return "", fmt.Errorf("change log position: %w", err)
	}
	return insertToken(ctx, q, at, req, last.Int64)
}

func insertToken(ctx context.Context, q Querier, at time.Time, req TokenRequest, lastRowID int64) (string, error) {
	types := make([]string, 0, len(req.Types))
	for _, t := range req.Types {
		types = append(types, string(t))
	}
	sort.Strings(types)

	res, err := q.ExecContext(ctx, `
		INSERT INTO `+TokenTable+`
		(record_types, package_name, last_change_rowid, created_at)
		VALUES (?, ?, ?, ?)
	`, strings.Join(types, uuidDelimiter), req.PackageName, lastRowID, at.UnixMilli())
	if err != nil {
		return "", fmt.Errorf("issue change token: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return "", fmt.Errorf("issue change token: %w", err)
	}
	return fmt.Sprintf("%d", id), nil
}

// Change is one record's change as seen by a sync consumer.
type Change struct {
	Type        datatypes.RecordType
	UUID        string
	PackageName string
	Time        time.Time
}

// Changes is one page of the change stream.
type Changes struct {
	Upserts []Change
	Deletes []Change

	// NextToken resumes after this page. Always valid, even when the
	// page was empty.
	NextToken string

	// HasMore reports whether change rows beyond this page already
	// exist.
	HasMore bool
}

// GetChanges reads one page of changes after the token's position and
// issues the follow-up token. pageSize bounds the number of change rows
// (not UUIDs) consumed.
func GetChanges(ctx context.Context, q Querier, token string, pageSize int, at time.Time) (Changes, error) {
	tok, err := readToken(ctx, q, token)
	if err != nil {
		return Changes{}, err
	}

	query := `
		SELECT c.row_id, c.record_type, c.operation_type, c.uuids, c.time, a.package_name
		FROM ` + Table + ` c
		INNER JOIN ` + schema.AppInfoTable + ` a ON c.app_info_id = a.row_id
		WHERE c.row_id > ?`
	args := []any{tok.lastRowID}

	if len(tok.types) > 0 {
		query += " AND c.record_type IN (" +
			strings.TrimSuffix(strings.Repeat("?, ", len(tok.types)), ", ") + ")"
		for _, t := range tok.types {
			args = append(args, t)
		}
	}
	if tok.packageName != "" {
		query += " AND a.package_name = ?"
		args = append(args, tok.packageName)
	}
	query += " ORDER BY c.row_id ASC LIMIT ?"
	args = append(args, pageSize+1)

	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return Changes{}, fmt.Errorf("read changes: %w", err)
	}
	defer rows.Close()

	var out Changes
	var lastSeen = tok.lastRowID
	var count int
	for rows.Next() {
		if count == pageSize {
			out.HasMore = true
			break
		}
		count++

		var rowID, changeTime int64
		var recordType, op, uuids, pkg string
		if err := rows.Scan(&rowID, &recordType, &op, &uuids, &changeTime, &pkg); err != nil {
			return Changes{}, fmt.Errorf("scan change row: %w", err)
		}
		lastSeen = rowID

		for _, u := range strings.Split(uuids, uuidDelimiter) {
			c := Change{
				Type:        datatypes.RecordType(recordType),
				UUID:        u,
				PackageName: pkg,
				Time:        time.UnixMilli(changeTime).UTC(),
			}
			if Operation(op) == OpDelete {
				out.Deletes = append(out.Deletes, c)
			} else {
				out.Upserts = append(out.Upserts, c)
			}
		}
	}
	if err := rows.Err(); err != nil {
		return Changes{}, fmt.Errorf("iterate change rows: %w", err)
	}
	// The cursor must be released before the token insert: on a
	// single-connection pool an open cursor blocks the write.
	if err := rows.Close(); err != nil {
		return Changes{}, fmt.Errorf("read changes: %w", err)
	}

	next, err := insertToken(ctx, q, at, TokenRequest{
		Types:       tok.requestTypes(),
		PackageName: tok.packageName,
	}, lastSeen)
	if err != nil {
		return Changes{}, err
	}
	out.NextToken = next

	return out, nil
}

type tokenRow struct {
	types       []string
	packageName string
	lastRowID   int64
}

func (t tokenRow) requestTypes() []datatypes.RecordType {
	out := make([]datatypes.RecordType, 0, len(t.types))
	for _, s := range t.types {
		out = append(out, datatypes.RecordType(s))
	}
	return out
}

func readToken(ctx context.Context, q Querier, token string) (tokenRow, error) {
	var types, pkg string
	var last int64
	err := q.QueryRowContext(ctx, `
		SELECT record_types, package_name, last_change_rowid
		FROM `+TokenTable+` WHERE row_id = ?
	`, token).Scan(&types, &pkg, &last)
	if err == sql.ErrNoRows {
		return tokenRow{}, fmt.Errorf("unknown change token %q", token)
	}
	if err != nil {
		return tokenRow{}, fmt.Errorf("read change token: %w", err)
	}

	t := tokenRow{packageName: pkg, lastRowID: last}
	if types != "" {
		t.types = strings.Split(types, uuidDelimiter)
	}
	return t, nil
}
