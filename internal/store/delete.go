package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/vitalbase/healthstore/internal/accesslog"
	"github.com/vitalbase/healthstore/internal/changelog"
	"github.com/vitalbase/healthstore/internal/datatypes"
	"github.com/vitalbase/healthstore/internal/record"
	"github.com/vitalbase/healthstore/internal/request"
	"github.com/vitalbase/healthstore/internal/schema"
)

// DeleteByIDs deletes the records of one type with the given UUIDs.
// Missing UUIDs are silently skipped. When enforceOwnership is set and
// any matched record is owned by a different app, nothing is deleted and
// an ownership error names the offending record.
//
// Returns the number of records deleted.
func (m *TransactionManager) DeleteByIDs(ctx context.Context, packageName string, t datatypes.RecordType, uuids []string, enforceOwnership bool) (int, error) {
	h, err := m.helper(t)
	if err != nil {
		return 0, err
	}
	filters := []request.Filter{request.In{Column: schema.ColUUID, Values: toAny(uuids)}}
	return m.deleteWhere(ctx, packageName, h, filters, enforceOwnership)
}

// DeleteByTimeRange deletes the caller's own records of one type whose
// start time falls in [start, end). Only rows owned by packageName are
// considered.
func (m *TransactionManager) DeleteByTimeRange(ctx context.Context, packageName string, t datatypes.RecordType, start, end time.Time) (int, error) {
	h, err := m.helper(t)
	if err != nil {
		return 0, err
	}

	count := 0
	err = m.inTx(ctx, func(tx *sql.Tx) error {
		appID, ok, err := appIDForPackage(ctx, tx, packageName)
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}
		filters := []request.Filter{
			request.Eq{Column: schema.ColAppInfoID, Value: appID},
			request.TimeRange{Column: schema.ColStartTime, StartMillis: start.UnixMilli(), EndMillis: end.UnixMilli()},
		}
		count, err = m.deleteInTx(ctx, tx, appID, packageName, h, filters)
		return err
	})
	if err != nil {
		return 0, err
	}
	return count, nil
}

func (m *TransactionManager) deleteWhere(ctx context.Context, packageName string, h record.Helper, filters []request.Filter, enforceOwnership bool) (int, error) {
	count := 0
	err := m.inTx(ctx, func(tx *sql.Tx) error {
		appID, err := getOrCreateAppID(ctx, tx, packageName)
		if err != nil {
			return err
		}
		if enforceOwnership {
			if err := m.checkOwnership(ctx, tx, h, filters, appID, packageName); err != nil {
				return err
			}
		}
		count, err = m.deleteInTx(ctx, tx, appID, packageName, h, filters)
		return err
	})
	if err != nil {
		return 0, err
	}
	return count, nil
}

// deleteInTx reads the doomed rows, collects side-effect entries, runs
// the delete, and appends the change-log and access-log rows, all inside
// the caller's transaction. Change-log delete entries are attributed to
// the app that owns each record, not the caller.
func (m *TransactionManager) deleteInTx(ctx context.Context, tx *sql.Tx, callerAppID int64, packageName string, h record.Helper, filters []request.Filter) (int, error) {
	doomed, err := m.readDoomed(ctx, tx, h, filters)
	if err != nil {
		return 0, err
	}
	if len(doomed) == 0 {
		return 0, nil
	}

	var changes []changelog.Entry
	deletedUUIDs := make([]string, 0, len(doomed))
	for _, d := range doomed {
		deletedUUIDs = append(deletedUUIDs, d.uuid)
		changes = append(changes, changelog.Entry{
			Type:      h.Type(),
			AppInfoID: d.appInfoID,
			Op:        changelog.OpDelete,
			UUID:      d.uuid,
		})
	}

	// Side effects must be read before the delete: ON DELETE SET NULL
	// rewrites the linking rows the moment the parent goes away.
	effects, err := m.effectEntries(ctx, tx, h.EffectsOfDelete(deletedUUIDs))
	if err != nil {
		return 0, err
	}
	changes = append(changes, effects...)

	del := request.DeleteRequest{
		Table:   h.Table().Name,
		Filters: []request.Filter{request.In{Column: schema.ColUUID, Values: toAny(deletedUUIDs)}},
	}
	query, params := del.SQL()
	if _, err := tx.ExecContext(ctx, query, params...); err != nil {
		return 0, fmt.Errorf("deleting %s records: %w", h.Type(), err)
	}

	if err := changelog.Append(ctx, tx, m.clock.Now(), changes); err != nil {
		return 0, err
	}

	touched := map[datatypes.RecordType]bool{h.Type(): true}
	if err := m.logAccess(ctx, tx, callerAppID, accessEntry(packageName, accesslog.OpDelete, touched)); err != nil {
		return 0, err
	}
	return len(doomed), nil
}

type doomedRow struct {
	uuid      string
	appInfoID int64
}

func (m *TransactionManager) readDoomed(ctx context.Context, tx *sql.Tx, h record.Helper, filters []request.Filter) ([]doomedRow, error) {
	req := request.ReadRequest{
		Table:   h.Table().Name,
		Columns: []string{schema.ColUUID, schema.ColAppInfoID},
		Filters: filters,
	}
	query, params := req.SQL()
	rows, err := tx.QueryContext(ctx, query, params...)
	if err != nil {
		return nil, fmt.Errorf("reading %s rows to delete: %w", h.Type(), err)
	}
	defer rows.Close()

	var doomed []doomedRow
	for rows.Next() {
		var d doomedRow
		if err := rows.Scan(&d.uuid, &d.appInfoID); err != nil {
			return nil, fmt.Errorf("scanning row to delete: %w", err)
		}
		doomed = append(doomed, d)
	}
	return doomed, rows.Err()
}

// checkOwnership fails with an ownership error if any row matched by
// filters is owned by an app other than the caller.
func (m *TransactionManager) checkOwnership(ctx context.Context, tx *sql.Tx, h record.Helper, filters []request.Filter, callerAppID int64, packageName string) error {
	req := request.ReadRequest{
		Table:   h.Table().Name,
		Alias:   "t",
		Columns: []string{"t." + schema.ColUUID, "a." + schema.ColPackageName},
		Join: &request.Join{
			Table: schema.AppInfoTable,
			Alias: "a",
			On:    "t." + schema.ColAppInfoID + " = a." + schema.ColRowID,
		},
		Filters: append(qualifyFilters(filters),
			request.Raw{SQL: "t." + schema.ColAppInfoID + " != ?", Params: []any{callerAppID}}),
		Limit: 1,
	}
	query, params := req.SQL()

	var u, owner string
	err := tx.QueryRowContext(ctx, query, params...).Scan(&u, &owner)
	if err == sql.ErrNoRows {
		return nil
	}
	if err != nil {
		return fmt.Errorf("checking ownership: %w", err)
	}
	return newOwnershipError(string(h.Type()), u, owner, packageName)
}

// qualifyFilters rewrites bare-column Eq/In/TimeRange filters onto the
// parent alias used by joined reads.
func qualifyFilters(filters []request.Filter) []request.Filter {
	out := make([]request.Filter, 0, len(filters))
	for _, f := range filters {
		switch v := f.(type) {
		case request.Eq:
			v.Column = "t." + v.Column
			out = append(out, v)
		case request.In:
			v.Column = "t." + v.Column
			out = append(out, v)
		case request.TimeRange:
			v.Column = "t." + v.Column
			out = append(out, v)
		default:
			out = append(out, f)
		}
	}
	return out
}

func toAny(vals []string) []any {
	out := make([]any, len(vals))
	for i, v := range vals {
		out[i] = v
	}
	return out
}

// PruneAccessLogs deletes access-log rows older than the retention
// window. Returns the number of rows removed.
func (m *TransactionManager) PruneAccessLogs(ctx context.Context) (int64, error) {
	var removed int64
	err := m.inTx(ctx, func(tx *sql.Tx) error {
		query, params := accesslog.RetentionDelete(m.clock.Now()).SQL()
		res, err := tx.ExecContext(ctx, query, params...)
		if err != nil {
			return fmt.Errorf("pruning access logs: %w", err)
		}
		removed, err = res.RowsAffected()
		return err
	})
	if err != nil {
		return 0, err
	}
	if removed > 0 {
		m.log.Info("pruned access logs", "removed", removed)
	}
	return removed, nil
}
