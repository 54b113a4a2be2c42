package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/vitalbase/healthstore/internal/accesslog"
	"github.com/vitalbase/healthstore/internal/datatypes"
	"github.com/vitalbase/healthstore/internal/record"
	"github.com/vitalbase/healthstore/internal/request"
	"github.com/vitalbase/healthstore/internal/schema"
)

// AggregateResult is the outcome of one aggregation over a time range.
type AggregateResult struct {
	// Value is the aggregate, invalid when no rows contributed.
	Value sql.NullFloat64

	// DataOrigins are the package names of the apps whose records
	// contributed, sorted by first contribution.
	DataOrigins []string

	// StartZoneOffset is the zone offset of the earliest contributing
	// record, invalid when none contributed. Callers use it to render the
	// aggregate in the zone the data was recorded in.
	StartZoneOffset sql.NullInt64
}

// Aggregate computes one aggregation for a record type over [start, end),
// logging the access on behalf of packageName.
func (m *TransactionManager) Aggregate(ctx context.Context, packageName string, t datatypes.RecordType, kind record.AggregationType, start, end time.Time) (AggregateResult, error) {
	h, ok, err := m.readHelper(t)
	if err != nil {
		return AggregateResult{}, err
	}
	if !ok {
		return AggregateResult{}, nil
	}

	spec, ok := h.Aggregate(kind)
	if !ok {
		return AggregateResult{}, fmt.Errorf("aggregation %s is not supported for %s", kind, t)
	}

	var result AggregateResult
	err = m.inTx(ctx, func(tx *sql.Tx) error {
		agg := request.AggregateRequest{
			Table:  spec.Table,
			Column: spec.Column,
			Func:   spec.Func,
			Filters: []request.Filter{request.TimeRange{
				Column:      spec.TimeColumn,
				StartMillis: start.UnixMilli(),
				EndMillis:   end.UnixMilli(),
			}},
		}
		query, params := agg.SQL()
		if err := tx.QueryRowContext(ctx, query, params...).Scan(&result.Value); err != nil {
			return fmt.Errorf("computing %s %s: %w", t, kind, err)
		}

		if err := m.aggregateMetadata(ctx, tx, h, start, end, &result); err != nil {
			return err
		}

		appID, err := getOrCreateAppID(ctx, tx, packageName)
		if err != nil {
			return err
		}
		touched := map[datatypes.RecordType]bool{t: true}
		return m.logAccess(ctx, tx, appID, accessEntry(packageName, accesslog.OpRead, touched))
	})
	if err != nil {
		return AggregateResult{}, err
	}
	return result, nil
}

// aggregateMetadata fills the data origins and the earliest contributing
// zone offset. Contribution is judged on the parent table's start time,
// which also covers series types whose values live on child tables.
func (m *TransactionManager) aggregateMetadata(ctx context.Context, tx *sql.Tx, h record.Helper, start, end time.Time, result *AggregateResult) error {
	rangeFilter := request.TimeRange{
		Column:      "t." + schema.ColStartTime,
		StartMillis: start.UnixMilli(),
		EndMillis:   end.UnixMilli(),
	}

	where, params := request.CompileWhere([]request.Filter{rangeFilter})
	query := `SELECT a.` + schema.ColPackageName + `
		FROM ` + h.Table().Name + ` t
		INNER JOIN ` + schema.AppInfoTable + ` a ON t.` + schema.ColAppInfoID + ` = a.` + schema.ColRowID +
		where + `
		GROUP BY a.` + schema.ColPackageName + `
		ORDER BY MIN(t.` + schema.ColRowID + `)`

	rows, err := tx.QueryContext(ctx, query, params...)
	if err != nil {
		return fmt.Errorf("reading data origins: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var pkg string
		if err := rows.Scan(&pkg); err != nil {
			return fmt.Errorf("scanning data origin: %w", err)
		}
		result.DataOrigins = append(result.DataOrigins, pkg)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterating data origins: %w", err)
	}

	offset := request.ReadRequest{
		Table:   h.Table().Name,
		Alias:   "t",
		Columns: []string{"t." + schema.ColStartZoneOffset},
		Filters: []request.Filter{rangeFilter},
		OrderBy: &request.OrderBy{Column: "t." + schema.ColStartTime, Ascending: true},
		Limit:   1,
	}
	query, params = offset.SQL()
	err = tx.QueryRowContext(ctx, query, params...).Scan(&result.StartZoneOffset)
	if err != nil && err != sql.ErrNoRows {
		return fmt.Errorf("reading earliest zone offset: %w", err)
	}
	return nil
}
