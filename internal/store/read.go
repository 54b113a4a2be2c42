package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/vitalbase/healthstore/internal/accesslog"
	"github.com/vitalbase/healthstore/internal/changelog"
	"github.com/vitalbase/healthstore/internal/datatypes"
	"github.com/vitalbase/healthstore/internal/pagetoken"
	"github.com/vitalbase/healthstore/internal/record"
	"github.com/vitalbase/healthstore/internal/request"
	"github.com/vitalbase/healthstore/internal/schema"
)

// ReadQuery filters and pages a record read. A zero Start or End leaves
// that side of the time range unbounded.
type ReadQuery struct {
	Start     time.Time
	End       time.Time
	PageSize  int
	PageToken string

	// Ascending orders the first page; continuation pages inherit the
	// direction carried by the token.
	Ascending bool
}

// ReadByIDs returns the records of one type with the given UUIDs,
// children attached, logging the access on behalf of packageName. Missing
// UUIDs are skipped.
func (m *TransactionManager) ReadByIDs(ctx context.Context, packageName string, t datatypes.RecordType, uuids []string) ([]datatypes.Record, error) {
	h, ok, err := m.readHelper(t)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}

	var records []datatypes.Record
	err = m.inTx(ctx, func(tx *sql.Tx) error {
		filters := []request.Filter{
			request.In{Column: "t." + schema.ColUUID, Values: toAny(uuids)},
		}
		records, _, err = m.queryRecords(ctx, tx, h, filters, true, 0)
		if err != nil {
			return err
		}
		return m.logReadAccess(ctx, tx, packageName, t)
	})
	if err != nil {
		return nil, err
	}
	return records, nil
}

// ReadPage returns one page of records of one type, ordered by row
// identifier, plus the token resuming after it. The returned token is
// pagetoken.Empty when the page was the last one.
func (m *TransactionManager) ReadPage(ctx context.Context, packageName string, t datatypes.RecordType, q ReadQuery) ([]datatypes.Record, string, error) {
	h, ok, err := m.readHelper(t)
	if err != nil {
		return nil, "", err
	}
	if !ok {
		return nil, pagetoken.Empty, nil
	}

	// A terminal token stays terminal; resubmitting it yields an empty
	// page rather than restarting the scan.
	if q.PageToken == pagetoken.Empty {
		return nil, pagetoken.Empty, nil
	}

	pageSize := q.PageSize
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	if pageSize > MaxPageSize {
		pageSize = MaxPageSize
	}

	ascending := q.Ascending
	filters := timeFilters(h, q)

	tok, fresh, err := pagetoken.Decode(q.PageToken)
	if err != nil {
		return nil, "", newInvalidTokenError(q.PageToken)
	}
	if !fresh {
		ascending = tok.Ascending
		if ascending {
			filters = append(filters, request.GreaterThan{Column: "t." + schema.ColRowID, Value: tok.LastRowID})
		} else {
			filters = append(filters, request.LessThan{Column: "t." + schema.ColRowID, Value: tok.LastRowID})
		}
	}

	var records []datatypes.Record
	var rowIDs []int64
	err = m.inTx(ctx, func(tx *sql.Tx) error {
		records, rowIDs, err = m.queryRecords(ctx, tx, h, filters, ascending, pageSize+1)
		if err != nil {
			return err
		}
		return m.logReadAccess(ctx, tx, packageName, t)
	})
	if err != nil {
		return nil, "", err
	}

	next := pagetoken.Empty
	if len(records) > pageSize {
		records = records[:pageSize]
		next, err = pagetoken.Encode(pagetoken.Token{
			Ascending: ascending,
			LastRowID: rowIDs[pageSize-1],
		})
		if err != nil {
			return nil, "", err
		}
	}
	return records, next, nil
}

// queryRecords runs the joined parent read and attaches child rows,
// returning records and their row identifiers in result order.
func (m *TransactionManager) queryRecords(ctx context.Context, tx *sql.Tx, h record.Helper, filters []request.Filter, ascending bool, limit int) ([]datatypes.Record, []int64, error) {
	req := request.ReadRequest{
		Table:   h.Table().Name,
		Alias:   "t",
		Columns: h.ReadColumns(),
		Join: &request.Join{
			Table: schema.AppInfoTable,
			Alias: "a",
			On:    "t." + schema.ColAppInfoID + " = a." + schema.ColRowID,
		},
		Filters: filters,
		OrderBy: &request.OrderBy{Column: "t." + schema.ColRowID, Ascending: ascending},
		Limit:   limit,
	}
	query, params := req.SQL()

	rows, err := m.db.queryTx(ctx, tx, query, params...)
	if err != nil {
		return nil, nil, fmt.Errorf("reading %s records: %w", h.Type(), err)
	}
	defer rows.Close()

	var records []datatypes.Record
	var rowIDs []int64
	byRowID := make(map[int64]datatypes.Record)
	for rows.Next() {
		rec, rowID, err := h.ScanRecord(rows)
		if err != nil {
			return nil, nil, fmt.Errorf("scanning %s record: %w", h.Type(), err)
		}
		records = append(records, rec)
		rowIDs = append(rowIDs, rowID)
		byRowID[rowID] = rec
	}
	if err := rows.Err(); err != nil {
		return nil, nil, fmt.Errorf("iterating %s records: %w", h.Type(), err)
	}

	if err := m.loadChildren(ctx, tx, h, byRowID); err != nil {
		return nil, nil, err
	}
	return records, rowIDs, nil
}

// loadChildren reads all child rows for the given parents in one query
// per child table, groups them by parent, and attaches the groups.
func (m *TransactionManager) loadChildren(ctx context.Context, tx *sql.Tx, h record.Helper, parents map[int64]datatypes.Record) error {
	if len(parents) == 0 {
		return nil
	}

	parentIDs := make([]any, 0, len(parents))
	for id := range parents {
		parentIDs = append(parentIDs, id)
	}

	parentTable := h.Table()
	for _, child := range parentTable.Children {
		parentCol := childParentColumn(child, parentTable.Name)
		if parentCol == "" {
			return fmt.Errorf("child table %s has no reference to %s", child.Name, parentTable.Name)
		}

		req := request.ReadRequest{
			Table:   child.Name,
			Columns: h.ChildReadColumns(child.Name),
			Filters: []request.Filter{request.In{Column: parentCol, Values: parentIDs}},
			OrderBy: &request.OrderBy{Column: schema.ColRowID, Ascending: true},
		}
		query, params := req.SQL()

		rows, err := m.db.queryTx(ctx, tx, query, params...)
		if err != nil {
			return fmt.Errorf("reading %s rows: %w", child.Name, err)
		}

		grouped := make(map[int64][]any)
		for rows.Next() {
			parentID, value, err := h.ScanChildRow(child.Name, rows)
			if err != nil {
				rows.Close()
				return fmt.Errorf("scanning %s row: %w", child.Name, err)
			}
			grouped[parentID] = append(grouped[parentID], value)
		}
		if err := rows.Err(); err != nil {
			rows.Close()
			return fmt.Errorf("iterating %s rows: %w", child.Name, err)
		}
		rows.Close()

		for parentID, children := range grouped {
			rec, ok := parents[parentID]
			if !ok {
				return newInternalError(fmt.Sprintf("%s row references unknown parent %d", child.Name, parentID))
			}
			if err := h.SetChildren(rec, child.Name, children); err != nil {
				return err
			}
		}
	}
	return nil
}

func childParentColumn(child schema.Table, parentTable string) string {
	for _, fk := range child.ForeignKeys {
		if fk.RefTable == parentTable {
			return fk.Column
		}
	}
	return ""
}

// timeFilters builds the time-range filters for a read. Interval records
// filter on their start time; point records on their time column.
func timeFilters(h record.Helper, q ReadQuery) []request.Filter {
	col := "t." + timeColumn(h)

	switch {
	case !q.Start.IsZero() && !q.End.IsZero():
		return []request.Filter{request.TimeRange{
			Column:      col,
			StartMillis: q.Start.UnixMilli(),
			EndMillis:   q.End.UnixMilli(),
		}}
	case !q.Start.IsZero():
		return []request.Filter{request.Raw{SQL: col + " >= ?", Params: []any{q.Start.UnixMilli()}}}
	case !q.End.IsZero():
		return []request.Filter{request.LessThan{Column: col, Value: q.End.UnixMilli()}}
	default:
		return nil
	}
}

func timeColumn(h record.Helper) string {
	for _, c := range h.Table().Columns {
		if c.Name == schema.ColStartTime {
			return schema.ColStartTime
		}
	}
	return "time"
}

func (m *TransactionManager) logReadAccess(ctx context.Context, tx *sql.Tx, packageName string, t datatypes.RecordType) error {
	appID, err := getOrCreateAppID(ctx, tx, packageName)
	if err != nil {
		return err
	}
	touched := map[datatypes.RecordType]bool{t: true}
	return m.logAccess(ctx, tx, appID, accessEntry(packageName, accesslog.OpRead, touched))
}

// GetChangeToken issues a change-stream cursor positioned at the current
// end of the stream, scoped by the request's type and package filters.
func (m *TransactionManager) GetChangeToken(ctx context.Context, req changelog.TokenRequest) (string, error) {
	var token string
	err := m.inTx(ctx, func(tx *sql.Tx) error {
		var err error
		token, err = changelog.GetToken(ctx, tx, m.clock.Now(), req)
		return err
	})
	if err != nil {
		return "", err
	}
	return token, nil
}

// GetChanges reads one page of the change stream after token and issues
// the follow-up token.
func (m *TransactionManager) GetChanges(ctx context.Context, token string, pageSize int) (changelog.Changes, error) {
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	if pageSize > MaxPageSize {
		pageSize = MaxPageSize
	}

	var changes changelog.Changes
	err := m.inTx(ctx, func(tx *sql.Tx) error {
		var err error
		changes, err = changelog.GetChanges(ctx, tx, token, pageSize, m.clock.Now())
		return err
	})
	if err != nil {
		return changelog.Changes{}, err
	}
	return changes, nil
}

// AccessLogs returns the recorded access entries, newest first.
func (m *TransactionManager) AccessLogs(ctx context.Context) ([]accesslog.Entry, error) {
	return accesslog.Query(ctx, m.db.db, m.db.Capabilities().PersonalHealthRecord)
}
