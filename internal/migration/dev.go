package migration

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/vitalbase/healthstore/internal/flags"
	"github.com/vitalbase/healthstore/internal/prefs"
	"github.com/vitalbase/healthstore/internal/request"
)

// devSchemaVersion numbers the experimental schema independently of the
// production user_version. Bumping it drops and recreates the experimental
// tables: this path is deliberately NOT idempotence-safe and never runs in
// released builds (the flag defaults off).
const devSchemaVersion = 2

// devTables are the experimental tables owned by the dev path.
var devTables = []string{"dev_activity_intensity"}

var devCreateStatements = []string{
	`CREATE TABLE IF NOT EXISTS dev_activity_intensity (
	row_id INTEGER PRIMARY KEY AUTOINCREMENT,
	uuid TEXT NOT NULL,
	app_info_id INTEGER NOT NULL,
	start_time INTEGER NOT NULL,
	end_time INTEGER NOT NULL,
	intensity INTEGER NOT NULL,
	UNIQUE (uuid)
)`,
}

// reconcileDevSchema activates or fully deactivates the experimental
// schema. With the flag off, any leftover experimental table and its
// marker are dropped so nothing of the path survives.
func (m *Migrator) reconcileDevSchema(ctx context.Context, db *sql.DB) error {
	if !m.Flags.Enabled(flags.DevSchema) {
		return inTx(ctx, db, func(ctx context.Context, tx *sql.Tx) error {
			for _, t := range devTables {
				if _, err := tx.ExecContext(ctx, request.DropTableStatement(t)); err != nil {
					return fmt.Errorf("drop dev table %s: %w", t, err)
				}
			}
			return prefs.Remove(ctx, tx, prefs.KeyDevSchemaVersion)
		})
	}

	marker, ok, err := prefs.Get(ctx, db, prefs.KeyDevSchemaVersion)
	if err != nil {
		return err
	}
	if ok && marker == strconv.Itoa(devSchemaVersion) {
		return nil
	}

	slog.Warn("recreating dev schema", "marker", marker, "version", devSchemaVersion)
	return inTx(ctx, db, func(ctx context.Context, tx *sql.Tx) error {
		for _, t := range devTables {
			if _, err := tx.ExecContext(ctx, request.DropTableStatement(t)); err != nil {
				return fmt.Errorf("drop dev table %s: %w", t, err)
			}
		}
		if err := execAll(ctx, tx, devCreateStatements); err != nil {
			return err
		}
		return prefs.Set(ctx, tx, prefs.KeyDevSchemaVersion, strconv.Itoa(devSchemaVersion))
	})
}
