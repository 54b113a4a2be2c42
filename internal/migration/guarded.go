package migration

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"sort"

	"github.com/vitalbase/healthstore/internal/accesslog"
	"github.com/vitalbase/healthstore/internal/flags"
	"github.com/vitalbase/healthstore/internal/record"
	"github.com/vitalbase/healthstore/internal/request"
	"github.com/vitalbase/healthstore/internal/schema"
)

// guardedUpgrade is one flag-gated schema step. applied is the step's own
// sentinel: for steps whose ALTERs cannot be re-run, it checks for the new
// table the step introduces rather than comparing versions.
type guardedUpgrade struct {
	version int
	flag    flags.Flag
	name    string
	applied func(ctx context.Context, q querier) (bool, error)
	apply   func(ctx context.Context, tx *sql.Tx) error
}

// guardedUpgrades is the ordered map from version to upgrade action. Flags
// can flip on at any time, including long after user_version has passed
// the step's number, so application is keyed on the sentinel rather than
// the version range; the version ordering only fixes the relative
// application order.
var guardedUpgrades = []guardedUpgrade{
	{
		version: 12,
		flag:    flags.PlannedExercise,
		name:    "planned_exercise",
		applied: func(ctx context.Context, q querier) (bool, error) {
			return tableExists(ctx, q, record.PlannedExerciseHelper().Table().Name)
		},
		apply: applyPlannedExercise,
	},
	{
		version: 13,
		flag:    flags.PersonalHealthRecord,
		name:    "personal_health_record",
		applied: func(ctx context.Context, q querier) (bool, error) {
			return tableExists(ctx, q, record.MedicalResourceHelper().Table().Name)
		},
		apply: applyPersonalHealthRecord,
	},
}

// GuardedVersions exposes the flag-to-version map for the invariant that
// no guarded step targets a version at or below the last unguarded one.
func GuardedVersions() map[flags.Flag]int {
	out := make(map[flags.Flag]int, len(guardedUpgrades))
	for _, gu := range guardedUpgrades {
		out[gu.flag] = gu.version
	}
	return out
}

// CheckGuardedVersions verifies the guarded version numbers are unique,
// strictly above lastUnguardedVersion, and at most CurrentVersion.
func CheckGuardedVersions() error {
	seen := make(map[int]string)
	for _, gu := range guardedUpgrades {
		if gu.version <= lastUnguardedVersion {
			return fmt.Errorf("guarded upgrade %s targets version %d at or below last unguarded version %d",
				gu.name, gu.version, lastUnguardedVersion)
		}
		if gu.version > CurrentVersion {
			return fmt.Errorf("guarded upgrade %s targets version %d above current version %d",
				gu.name, gu.version, CurrentVersion)
		}
		if prev, dup := seen[gu.version]; dup {
			return fmt.Errorf("guarded upgrades %s and %s share version %d", prev, gu.name, gu.version)
		}
		seen[gu.version] = gu.name
	}
	return nil
}

// applyGuarded runs every enabled, not-yet-applied guarded step in
// ascending version order. Safe for forward-rollback-forward sequences:
// every step is idempotent and re-checked on each open.
func (m *Migrator) applyGuarded(ctx context.Context, db *sql.DB) error {
	steps := append([]guardedUpgrade(nil), guardedUpgrades...)
	sort.Slice(steps, func(i, j int) bool { return steps[i].version < steps[j].version })

	for _, gu := range steps {
		if !m.Flags.Enabled(gu.flag) {
			continue
		}
		done, err := gu.applied(ctx, db)
		if err != nil {
			return fmt.Errorf("guarded upgrade %s: %w", gu.name, err)
		}
		if done {
			continue
		}
		slog.Info("applying guarded schema upgrade", "name", gu.name, "version", gu.version)
		if err := inTx(ctx, db, gu.apply); err != nil {
			return fmt.Errorf("guarded upgrade %s: %w", gu.name, err)
		}
	}
	return nil
}

// applyPlannedExercise introduces the planned exercise tables and the
// deferred foreign-key column linking exercise sessions to plans. The
// surrounding ALTER cannot be made idempotent, which is why this step's
// sentinel is the existence of the new table.
func applyPlannedExercise(ctx context.Context, tx *sql.Tx) error {
	create := request.CreateTableRequest{Table: record.PlannedExerciseHelper().Table()}
	if err := execAll(ctx, tx, create.Statements()); err != nil {
		return err
	}

	link := request.CreateTableRequest{Table: record.ExerciseSessionTable().Table()}
	return execAll(ctx, tx, link.DeferredColumnStatements())
}

// applyPersonalHealthRecord introduces the medical resource table and the
// medical columns on the access log. The access-log ALTERs are gated on
// column existence so the whole step stays idempotent even if the table
// sentinel is bypassed.
func applyPersonalHealthRecord(ctx context.Context, tx *sql.Tx) error {
	create := request.CreateTableRequest{Table: record.MedicalResourceHelper().Table()}
	if err := execAll(ctx, tx, create.Statements()); err != nil {
		return err
	}

	for _, col := range accesslog.MedicalColumns() {
		exists, err := columnExists(ctx, tx, accesslog.Table, col.Name)
		if err != nil {
			return err
		}
		if exists {
			continue
		}
		alter := request.AddColumnsRequest{Table: accesslog.Table, Columns: []schema.Column{col}}
		if err := execAll(ctx, tx, alter.Statements()); err != nil {
			return err
		}
	}
	return nil
}
