package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"github.com/vitalbase/healthstore/internal/accesslog"
	"github.com/vitalbase/healthstore/internal/changelog"
	"github.com/vitalbase/healthstore/internal/datatypes"
	"github.com/vitalbase/healthstore/internal/record"
	"github.com/vitalbase/healthstore/internal/request"
	"github.com/vitalbase/healthstore/internal/schema"
)

// InsertAll inserts the records on behalf of packageName, assigning UUIDs
// where missing. Every record is inserted in one transaction together
// with the change-log and access-log rows; any conflict aborts the whole
// batch.
//
// Returns the record UUIDs in input order.
func (m *TransactionManager) InsertAll(ctx context.Context, packageName string, records []datatypes.Record) ([]string, error) {
	if len(records) == 0 {
		return nil, nil
	}

	now := m.clock.Now()
	uuids := make([]string, len(records))

	err := m.inTx(ctx, func(tx *sql.Tx) error {
		appID, err := getOrCreateAppID(ctx, tx, packageName)
		if err != nil {
			return err
		}

		var changes []changelog.Entry
		touched := make(map[datatypes.RecordType]bool)

		for i, rec := range records {
			h, err := m.helper(rec.Type())
			if err != nil {
				return err
			}

			meta := rec.Meta()
			if meta.UUID == "" {
				meta.UUID = uuid.Must(uuid.NewV7()).String()
			}
			meta.AppID = packageName
			meta.LastModifiedTime = now

			values, err := h.UpsertValues(rec, appID)
			if err != nil {
				return err
			}

			query, params := request.InsertSQL(h.Table().Name, values)
			res, err := tx.ExecContext(ctx, query, params...)
			if err != nil {
				if isConstraintError(err) {
					return newConstraintError(string(rec.Type()), recordIdentifier(rec))
				}
				return fmt.Errorf("inserting %s: %w", rec.Type(), err)
			}
			rowID, err := res.LastInsertId()
			if err != nil {
				return fmt.Errorf("reading inserted row id: %w", err)
			}

			if err := m.insertChildren(ctx, tx, h, rec, rowID); err != nil {
				return err
			}

			uuids[i] = meta.UUID
			touched[rec.Type()] = true
			changes = append(changes, changelog.Entry{
				Type:      rec.Type(),
				AppInfoID: appID,
				Op:        changelog.OpUpsert,
				UUID:      meta.UUID,
			})
		}

		effects, err := m.effectEntries(ctx, tx, upsertEffects(m.registry, records))
		if err != nil {
			return err
		}
		changes = append(changes, effects...)

		if err := changelog.Append(ctx, tx, now, changes); err != nil {
			return err
		}
		return m.logAccess(ctx, tx, appID, upsertAccessEntry(packageName, touched))
	})
	if err != nil {
		return nil, err
	}

	m.log.Debug("inserted records", "package", packageName, "count", len(records))
	return uuids, nil
}

// InsertOrReplaceAll inserts the records, replacing any existing record
// that collides on its governing unique constraint. A replacement keeps
// the stored row identifier and, on a client-record-id collision, the
// stored UUID; child rows are deleted and reinserted under the surviving
// parent.
//
// A replacement whose content is identical to the stored record is a
// no-op and emits no change-log entry.
func (m *TransactionManager) InsertOrReplaceAll(ctx context.Context, packageName string, records []datatypes.Record) ([]string, error) {
	if len(records) == 0 {
		return nil, nil
	}

	now := m.clock.Now()
	uuids := make([]string, len(records))

	err := m.inTx(ctx, func(tx *sql.Tx) error {
		appID, err := getOrCreateAppID(ctx, tx, packageName)
		if err != nil {
			return err
		}

		var changes []changelog.Entry
		touched := make(map[datatypes.RecordType]bool)

		for i, rec := range records {
			h, err := m.helper(rec.Type())
			if err != nil {
				return err
			}

			meta := rec.Meta()
			if meta.UUID == "" {
				meta.UUID = uuid.Must(uuid.NewV7()).String()
			}
			meta.AppID = packageName
			meta.LastModifiedTime = now

			values, err := h.UpsertValues(rec, appID)
			if err != nil {
				return err
			}

			req := request.UpsertRequest{
				Table:         h.Table().Name,
				Values:        values,
				UniqueColumns: record.UniqueColumnsFor(rec),
			}

			query, params := req.InsertSQL()
			res, err := tx.ExecContext(ctx, query, params...)
			switch {
			case err == nil:
				rowID, err := res.LastInsertId()
				if err != nil {
					return fmt.Errorf("reading inserted row id: %w", err)
				}
				if err := m.insertChildren(ctx, tx, h, rec, rowID); err != nil {
					return err
				}

			case isConstraintError(err):
				changed, err := m.replaceConflicting(ctx, tx, h, rec, req, appID)
				if err != nil {
					return err
				}
				if !changed {
					uuids[i] = rec.Meta().UUID
					continue
				}

			default:
				return fmt.Errorf("inserting %s: %w", rec.Type(), err)
			}

			uuids[i] = rec.Meta().UUID
			touched[rec.Type()] = true
			changes = append(changes, changelog.Entry{
				Type:      rec.Type(),
				AppInfoID: appID,
				Op:        changelog.OpUpsert,
				UUID:      rec.Meta().UUID,
			})
		}

		effects, err := m.effectEntries(ctx, tx, upsertEffects(m.registry, records))
		if err != nil {
			return err
		}
		changes = append(changes, effects...)

		if err := changelog.Append(ctx, tx, now, changes); err != nil {
			return err
		}
		return m.logAccess(ctx, tx, appID, upsertAccessEntry(packageName, touched))
	})
	if err != nil {
		return nil, err
	}

	m.log.Debug("upserted records", "package", packageName, "count", len(records))
	return uuids, nil
}

// UpdateAll rewrites existing records owned by packageName. A record is
// matched by its client record id when present, else by its UUID; a
// record that matches no row owned by the caller fails the whole batch
// with a not-found error.
func (m *TransactionManager) UpdateAll(ctx context.Context, packageName string, records []datatypes.Record) error {
	if len(records) == 0 {
		return nil
	}

	now := m.clock.Now()

	err := m.inTx(ctx, func(tx *sql.Tx) error {
		appID, err := getOrCreateAppID(ctx, tx, packageName)
		if err != nil {
			return err
		}

		var changes []changelog.Entry
		touched := make(map[datatypes.RecordType]bool)

		for _, rec := range records {
			h, err := m.helper(rec.Type())
			if err != nil {
				return err
			}

			meta := rec.Meta()
			filters := []request.Filter{request.Eq{Column: schema.ColAppInfoID, Value: appID}}
			switch {
			case meta.ClientRecordID != "":
				filters = append(filters, request.Eq{Column: schema.ColClientRecordID, Value: meta.ClientRecordID})
			case meta.UUID != "":
				filters = append(filters, request.Eq{Column: schema.ColUUID, Value: meta.UUID})
			default:
				return &StoreError{
					Code:       ErrCodeNotFound,
					Message:    "record has neither uuid nor client record id",
					RecordType: string(rec.Type()),
				}
			}

			rowID, storedUUID, err := m.lookupRow(ctx, tx, h.Table().Name, filters)
			if err != nil {
				return err
			}
			if rowID == 0 {
				return newNotFoundError(string(rec.Type()), recordIdentifier(rec))
			}

			// The stored UUID always survives an update.
			meta.UUID = storedUUID
			meta.AppID = packageName
			meta.LastModifiedTime = now

			values, err := h.UpsertValues(rec, appID)
			if err != nil {
				return err
			}
			if err := m.rewriteRow(ctx, tx, h, rec, rowID, values); err != nil {
				return err
			}

			touched[rec.Type()] = true
			changes = append(changes, changelog.Entry{
				Type:      rec.Type(),
				AppInfoID: appID,
				Op:        changelog.OpUpsert,
				UUID:      storedUUID,
			})
		}

		effects, err := m.effectEntries(ctx, tx, upsertEffects(m.registry, records))
		if err != nil {
			return err
		}
		changes = append(changes, effects...)

		if err := changelog.Append(ctx, tx, now, changes); err != nil {
			return err
		}
		return m.logAccess(ctx, tx, appID, upsertAccessEntry(packageName, touched))
	})
	if err != nil {
		return err
	}

	m.log.Debug("updated records", "package", packageName, "count", len(records))
	return nil
}

// replaceConflicting resolves an insert conflict: locate the stored row
// through the record's governing unique constraint, compare content, and
// rewrite in place when it differs. Returns false when the stored record
// is content-identical and nothing was written.
//
// The record's metadata is updated to the surviving UUID either way.
func (m *TransactionManager) replaceConflicting(ctx context.Context, tx *sql.Tx, h record.Helper, rec datatypes.Record, req request.UpsertRequest, appID int64) (bool, error) {
	// Conflict resolution only considers the caller's own rows. A
	// collision with another app's record stays a constraint error.
	filters := req.ConflictFilters()
	if !hasColumn(req.UniqueColumns, schema.ColAppInfoID) {
		filters = append(filters, request.Eq{Column: schema.ColAppInfoID, Value: appID})
	}

	rowID, storedUUID, err := m.lookupRow(ctx, tx, req.Table, filters)
	if err != nil {
		return false, err
	}
	if rowID == 0 {
		// The violated constraint is not the governing one, e.g. a
		// client-keyed record colliding on an explicit UUID, or the
		// conflicting row belongs to a different app.
		return false, newConstraintError(string(rec.Type()), recordIdentifier(rec))
	}

	rec.Meta().UUID = storedUUID
	req.Values[schema.ColUUID] = storedUUID

	equal, err := m.contentEqual(ctx, tx, h, rec, rowID, req.Values)
	if err != nil {
		return false, err
	}
	if equal {
		return false, nil
	}

	if err := m.rewriteRow(ctx, tx, h, rec, rowID, req.Values); err != nil {
		return false, err
	}
	return true, nil
}

// rewriteRow updates the parent row in place and replaces all child rows
// under the same parent row identifier.
func (m *TransactionManager) rewriteRow(ctx context.Context, tx *sql.Tx, h record.Helper, rec datatypes.Record, rowID int64, values map[string]any) error {
	req := request.UpsertRequest{Table: h.Table().Name, Values: values}
	query, params := req.UpdateSQL([]request.Filter{
		request.Eq{Column: schema.ColRowID, Value: rowID},
	})
	if _, err := tx.ExecContext(ctx, query, params...); err != nil {
		if isConstraintError(err) {
			return newConstraintError(string(rec.Type()), recordIdentifier(rec))
		}
		return fmt.Errorf("updating %s: %w", rec.Type(), err)
	}

	children, err := h.ChildUpserts(rec)
	if err != nil {
		return err
	}
	for _, cu := range children {
		del := request.DeleteRequest{
			Table:   cu.Table,
			Filters: []request.Filter{request.Eq{Column: cu.ParentColumn, Value: rowID}},
		}
		query, params := del.SQL()
		if _, err := tx.ExecContext(ctx, query, params...); err != nil {
			return fmt.Errorf("clearing %s rows: %w", cu.Table, err)
		}
	}
	return m.insertChildren(ctx, tx, h, rec, rowID)
}

// insertChildren inserts the record's child rows keyed to the parent row
// identifier.
func (m *TransactionManager) insertChildren(ctx context.Context, tx *sql.Tx, h record.Helper, rec datatypes.Record, parentRowID int64) error {
	children, err := h.ChildUpserts(rec)
	if err != nil {
		return err
	}
	for _, cu := range children {
		for _, row := range cu.Rows {
			row[cu.ParentColumn] = parentRowID
			query, params := request.InsertSQL(cu.Table, row)
			if _, err := tx.ExecContext(ctx, query, params...); err != nil {
				return fmt.Errorf("inserting %s row: %w", cu.Table, err)
			}
		}
	}
	return nil
}

// lookupRow finds the single row matching filters, returning (0, "", nil)
// when none matches.
func (m *TransactionManager) lookupRow(ctx context.Context, tx *sql.Tx, table string, filters []request.Filter) (int64, string, error) {
	req := request.ReadRequest{
		Table:   table,
		Columns: []string{schema.ColRowID, schema.ColUUID},
		Filters: filters,
	}
	query, params := req.SQL()

	var rowID int64
	var storedUUID string
	err := tx.QueryRowContext(ctx, query, params...).Scan(&rowID, &storedUUID)
	if err == sql.ErrNoRows {
		return 0, "", nil
	}
	if err != nil {
		return 0, "", fmt.Errorf("locating row in %s: %w", table, err)
	}
	return rowID, storedUUID, nil
}

// contentEqual reports whether the stored record at rowID, parent and
// children both, carries the same content as the incoming values. The
// last-modified time is excluded from the comparison.
func (m *TransactionManager) contentEqual(ctx context.Context, tx *sql.Tx, h record.Helper, rec datatypes.Record, rowID int64, values map[string]any) (bool, error) {
	cols := make([]string, 0, len(values))
	for k := range values {
		if k == schema.ColLastModifiedTime {
			continue
		}
		cols = append(cols, k)
	}

	stored, err := readRowValues(ctx, tx, h.Table().Name, cols,
		request.Eq{Column: schema.ColRowID, Value: rowID})
	if err != nil {
		return false, err
	}
	if stored == nil {
		return false, newInternalError("conflicting row vanished mid-transaction")
	}
	if !record.ValuesEqual(stored, values, schema.ColLastModifiedTime) {
		return false, nil
	}

	children, err := h.ChildUpserts(rec)
	if err != nil {
		return false, err
	}
	for _, cu := range children {
		equal, err := childRowsEqual(ctx, tx, cu, rowID)
		if err != nil {
			return false, err
		}
		if !equal {
			return false, nil
		}
	}
	return true, nil
}

// childRowsEqual compares the stored child rows of one table against the
// incoming replacement rows, in row order.
func childRowsEqual(ctx context.Context, tx *sql.Tx, cu request.ChildUpsert, parentRowID int64) (bool, error) {
	parentFilter := request.Eq{Column: cu.ParentColumn, Value: parentRowID}

	if len(cu.Rows) == 0 {
		var count int64
		query, params := request.AggregateRequest{
			Table:   cu.Table,
			Column:  schema.ColRowID,
			Func:    "COUNT",
			Filters: []request.Filter{parentFilter},
		}.SQL()
		if err := tx.QueryRowContext(ctx, query, params...).Scan(&count); err != nil {
			return false, fmt.Errorf("counting %s rows: %w", cu.Table, err)
		}
		return count == 0, nil
	}

	cols := make([]string, 0, len(cu.Rows[0]))
	for k := range cu.Rows[0] {
		cols = append(cols, k)
	}

	req := request.ReadRequest{
		Table:   cu.Table,
		Columns: cols,
		Filters: []request.Filter{parentFilter},
		OrderBy: &request.OrderBy{Column: schema.ColRowID, Ascending: true},
	}
	query, params := req.SQL()
	rows, err := tx.QueryContext(ctx, query, params...)
	if err != nil {
		return false, fmt.Errorf("reading %s rows: %w", cu.Table, err)
	}
	defer rows.Close()

	var i int
	for rows.Next() {
		if i >= len(cu.Rows) {
			return false, nil
		}
		stored, err := scanValueMap(rows, cols)
		if err != nil {
			return false, err
		}
		if !record.ValuesEqual(stored, cu.Rows[i]) {
			return false, nil
		}
		i++
	}
	if err := rows.Err(); err != nil {
		return false, fmt.Errorf("iterating %s rows: %w", cu.Table, err)
	}
	return i == len(cu.Rows), nil
}

// readRowValues reads one row as a column->value map, nil when no row
// matches.
func readRowValues(ctx context.Context, tx *sql.Tx, table string, cols []string, filters ...request.Filter) (map[string]any, error) {
	req := request.ReadRequest{Table: table, Columns: cols, Filters: filters}
	query, params := req.SQL()

	rows, err := tx.QueryContext(ctx, query, params...)
	if err != nil {
		return nil, fmt.Errorf("reading row from %s: %w", table, err)
	}
	defer rows.Close()

	if !rows.Next() {
		return nil, rows.Err()
	}
	return scanValueMap(rows, cols)
}

func scanValueMap(scan record.RowScanner, cols []string) (map[string]any, error) {
	dests := make([]any, len(cols))
	for i := range dests {
		var v any
		dests[i] = &v
	}
	if err := scan.Scan(dests...); err != nil {
		return nil, fmt.Errorf("scanning row values: %w", err)
	}

	out := make(map[string]any, len(cols))
	for i, c := range cols {
		out[c] = *dests[i].(*any)
	}
	return out, nil
}

// upsertEffects collects the side-effect reads implied by upserting the
// records, grouped per type so each helper sees its own UUIDs once.
func upsertEffects(reg *record.Registry, records []datatypes.Record) []record.EffectRead {
	byType := make(map[datatypes.RecordType][]string)
	for _, rec := range records {
		byType[rec.Type()] = append(byType[rec.Type()], rec.Meta().UUID)
	}

	var effects []record.EffectRead
	for t, uuids := range byType {
		h, ok := reg.Get(t)
		if !ok {
			continue
		}
		effects = append(effects, h.EffectsOfUpsert(uuids)...)
	}
	return effects
}

// effectEntries runs the side-effect reads and turns the touched records
// into upsert change-log entries attributed to their owning apps.
func (m *TransactionManager) effectEntries(ctx context.Context, tx *sql.Tx, effects []record.EffectRead) ([]changelog.Entry, error) {
	var entries []changelog.Entry
	for _, effect := range effects {
		h, ok := m.registry.Get(effect.Type)
		if !ok {
			continue
		}

		req := request.ReadRequest{
			Table:   h.Table().Name,
			Alias:   "t",
			Columns: []string{"t." + schema.ColUUID, "t." + schema.ColAppInfoID},
			Filters: effect.Filters,
		}
		query, params := req.SQL()
		rows, err := tx.QueryContext(ctx, query, params...)
		if err != nil {
			return nil, fmt.Errorf("reading affected %s records: %w", effect.Type, err)
		}

		for rows.Next() {
			var u string
			var appID int64
			if err := rows.Scan(&u, &appID); err != nil {
				rows.Close()
				return nil, fmt.Errorf("scanning affected record: %w", err)
			}
			entries = append(entries, changelog.Entry{
				Type:      effect.Type,
				AppInfoID: appID,
				Op:        changelog.OpUpsert,
				UUID:      u,
			})
		}
		if err := rows.Err(); err != nil {
			rows.Close()
			return nil, fmt.Errorf("iterating affected records: %w", err)
		}
		rows.Close()
	}
	return entries, nil
}

// upsertAccessEntry builds the access-log entry for a write touching the
// given types, splitting medical resources into the medical fields.
func upsertAccessEntry(packageName string, touched map[datatypes.RecordType]bool) accesslog.Entry {
	return accessEntry(packageName, accesslog.OpUpsert, touched)
}

func accessEntry(packageName string, op accesslog.Operation, touched map[datatypes.RecordType]bool) accesslog.Entry {
	e := accesslog.Entry{PackageName: packageName, Op: op}
	for t := range touched {
		if t == datatypes.TypeMedicalResource {
			e.MedicalResourceTypes = append(e.MedicalResourceTypes, string(t))
			e.MedicalDataSourceAccessed = true
			continue
		}
		e.RecordTypes = append(e.RecordTypes, t)
	}
	return e
}

func hasColumn(cols []string, name string) bool {
	for _, c := range cols {
		if c == name {
			return true
		}
	}
	return false
}

// recordIdentifier names a record in errors: the caller-supplied client
// record id when present, else the UUID.
func recordIdentifier(rec datatypes.Record) string {
	if id := rec.Meta().ClientRecordID; id != "" {
		return id
	}
	return rec.Meta().UUID
}
