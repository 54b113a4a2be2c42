// Package accesslog records which app touched which data and how, for
// user-facing transparency. Rows are appended inside the same transaction
// as the access they describe and are pruned after a fixed retention
// window by an external periodic sweep.
package accesslog

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/vitalbase/healthstore/internal/datatypes"
	"github.com/vitalbase/healthstore/internal/request"
	"github.com/vitalbase/healthstore/internal/schema"
)

// Table is the access log table name.
const Table = "access_logs"

// Retention is how long access rows are kept. The core only provides the
// deletion descriptor; triggering the sweep is the host's job.
const Retention = 7 * 24 * time.Hour

const typeDelimiter = ","

// Medical extension columns, added by the personal-health-record guarded
// upgrade. Absent on databases that never enabled the flag.
const (
	ColMedicalResourceTypes      = "medical_resource_types"
	ColMedicalDataSourceAccessed = "medical_data_source_accessed"
)

// Operation is the kind of access a row records.
type Operation string

const (
	OpRead   Operation = "READ"
	OpUpsert Operation = "UPSERT"
	OpDelete Operation = "DELETE"
)

// CreateStatement returns the DDL for the base table shape. The medical
// columns are added by their upgrade, not here.
func CreateStatement() string {
	return `CREATE TABLE IF NOT EXISTS ` + Table + ` (
	row_id INTEGER PRIMARY KEY AUTOINCREMENT,
	app_info_id INTEGER NOT NULL,
	record_types TEXT NOT NULL,
	operation_type TEXT NOT NULL,
	access_time INTEGER NOT NULL,
	FOREIGN KEY (app_info_id) REFERENCES ` + schema.AppInfoTable + `(row_id)
)`
}

// MedicalColumns returns the descriptor for the flag-gated columns.
func MedicalColumns() []schema.Column {
	return []schema.Column{
		{Name: ColMedicalResourceTypes, Type: schema.Text},
		{Name: ColMedicalDataSourceAccessed, Type: schema.Integer},
	}
}

// Querier is satisfied by *sql.DB and *sql.Tx.
type Querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// Entry is one logical access event.
type Entry struct {
	PackageName string
	Op          Operation
	AccessTime  time.Time

	// RecordTypes are the ordinary record types touched.
	RecordTypes []datatypes.RecordType

	// MedicalResourceTypes and MedicalDataSourceAccessed describe
	// personal-health-record accesses. Only written when the medical
	// schema extension exists.
	MedicalResourceTypes      []string
	MedicalDataSourceAccessed bool
}

// Append writes one access row. appInfoID is the interned owning app;
// medicalSchema reports whether the medical columns exist in this
// database. Must be called inside the accessing transaction.
func Append(ctx context.Context, q Querier, appInfoID int64, e Entry, medicalSchema bool) error {
	types := make([]string, 0, len(e.RecordTypes))
	for _, t := range e.RecordTypes {
		types = append(types, string(t))
	}
	sort.Strings(types)

	if !medicalSchema {
		_, err := q.ExecContext(ctx, `
			INSERT INTO `+Table+`
			(app_info_id, record_types, operation_type, access_time)
			VALUES (?, ?, ?, ?)
		`, appInfoID, strings.Join(types, typeDelimiter),
			string(e.Op), e.AccessTime.UnixMilli())
		if err != nil {
			return fmt.Errorf("append access log: %w", err)
		}
		return nil
	}

	medTypes := append([]string(nil), e.MedicalResourceTypes...)
	sort.Strings(medTypes)

	accessed := 0
	if e.MedicalDataSourceAccessed {
		accessed = 1
	}

	_, err := q.ExecContext(ctx, `
		INSERT INTO `+Table+`
		(app_info_id, record_types, operation_type, access_time,
		 `+ColMedicalResourceTypes+`, `+ColMedicalDataSourceAccessed+`)
		VALUES (?, ?, ?, ?, ?, ?)
	`, appInfoID, strings.Join(types, typeDelimiter),
		string(e.Op), e.AccessTime.UnixMilli(),
		strings.Join(medTypes, typeDelimiter), accessed)
	if err != nil {
		return fmt.Errorf("append access log: %w", err)
	}
	return nil
}

// Query returns the logical access entries, newest first. A physical row
// that records both an ordinary-record access and a medical access is
// split into two logical entries.
func Query(ctx context.Context, q Querier, medicalSchema bool) ([]Entry, error) {
	cols := "a.package_name, l.record_types, l.operation_type, l.access_time"
	if medicalSchema {
		cols += ", l." + ColMedicalResourceTypes + ", l." + ColMedicalDataSourceAccessed
	}

	rows, err := q.QueryContext(ctx, `
		SELECT `+cols+`
		FROM `+Table+` l
		INNER JOIN `+schema.AppInfoTable+` a ON l.app_info_id = a.row_id
		ORDER BY l.access_time DESC, l.row_id DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("query access log: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var pkg, types, op string
		var at int64
		var medTypes sql.NullString
		var medAccessed sql.NullInt64

		dests := []any{&pkg, &types, &op, &at}
		if medicalSchema {
			dests = append(dests, &medTypes, &medAccessed)
		}
		if err := rows.Scan(dests...); err != nil {
			return nil, fmt.Errorf("scan access log row: %w", err)
		}

		base := Entry{
			PackageName: pkg,
			Op:          Operation(op),
			AccessTime:  time.UnixMilli(at).UTC(),
		}

		if types != "" {
			ordinary := base
			for _, t := range strings.Split(types, typeDelimiter) {
				ordinary.RecordTypes = append(ordinary.RecordTypes, datatypes.RecordType(t))
			}
			entries = append(entries, ordinary)
		}

		if medTypes.String != "" || medAccessed.Int64 != 0 {
			medical := base
			if medTypes.String != "" {
				medical.MedicalResourceTypes = strings.Split(medTypes.String, typeDelimiter)
			}
			medical.MedicalDataSourceAccessed = medAccessed.Int64 != 0
			entries = append(entries, medical)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate access log rows: %w", err)
	}

	return entries, nil
}

// RetentionDelete returns the reusable delete descriptor removing rows
// older than the retention window at the given time.
func RetentionDelete(now time.Time) request.DeleteRequest {
	return request.DeleteRequest{
		Table: Table,
		Filters: []request.Filter{
			request.LessThan{Column: "access_time", Value: now.Add(-Retention).UnixMilli()},
		},
	}
}
