package migration

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	_ "github.com/mattn/go-sqlite3"

	"github.com/vitalbase/healthstore/internal/flags"
	"github.com/vitalbase/healthstore/internal/prefs"
)

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()

	path := filepath.Join(t.TempDir(), "healthstore_test.db")
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		t.Fatalf("open database: %v", err)
	}
	db.SetMaxOpenConns(1)
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		t.Fatalf("enable foreign keys: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func userVersion(t *testing.T, db *sql.DB) int {
	t.Helper()
	var v int
	if err := db.QueryRow("PRAGMA user_version").Scan(&v); err != nil {
		t.Fatalf("read user_version: %v", err)
	}
	return v
}

func mustTableExists(t *testing.T, db *sql.DB, name string) bool {
	t.Helper()
	exists, err := tableExists(context.Background(), db, name)
	if err != nil {
		t.Fatalf("tableExists(%s): %v", name, err)
	}
	return exists
}

func mustColumnExists(t *testing.T, db *sql.DB, table, column string) bool {
	t.Helper()
	exists, err := columnExists(context.Background(), db, table, column)
	if err != nil {
		t.Fatalf("columnExists(%s, %s): %v", table, column, err)
	}
	return exists
}

func TestApply_FreshDatabase(t *testing.T) {
	db := openTestDB(t)
	m := &Migrator{Flags: flags.Default()}

	caps, err := m.Apply(context.Background(), db)
	if err != nil {
		t.Fatalf("Apply() failed: %v", err)
	}

	if v := userVersion(t, db); v != CurrentVersion {
		t.Errorf("user_version = %d, want %d", v, CurrentVersion)
	}
	for _, table := range []string{
		"application_info", "steps", "heart_rate", "heart_rate_samples",
		"exercise_session", "exercise_session_segments", "skin_temperature",
		"change_logs", "change_log_tokens", "access_logs", "preferences",
		"planned_exercise_sessions", "planned_exercise_blocks", "medical_resource",
	} {
		if !mustTableExists(t, db, table) {
			t.Errorf("table %s missing after fresh create", table)
		}
	}
	if !mustColumnExists(t, db, "steps", "client_record_id") {
		t.Error("steps.client_record_id missing after fresh create")
	}
	if !caps.PlannedExercise || !caps.PersonalHealthRecord {
		t.Errorf("capabilities = %+v, want both true", caps)
	}
}

func TestApply_Idempotent(t *testing.T) {
	db := openTestDB(t)
	m := &Migrator{Flags: flags.Default()}
	ctx := context.Background()

	if _, err := m.Apply(ctx, db); err != nil {
		t.Fatalf("first Apply() failed: %v", err)
	}

	// A second run against an already-current database must be a no-op.
	caps, err := m.Apply(ctx, db)
	if err != nil {
		t.Fatalf("second Apply() failed: %v", err)
	}
	if v := userVersion(t, db); v != CurrentVersion {
		t.Errorf("user_version = %d, want %d", v, CurrentVersion)
	}
	if !caps.PlannedExercise || !caps.PersonalHealthRecord {
		t.Errorf("capabilities = %+v, want both true", caps)
	}
}

func TestApply_BelowMinimumRecreates(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	// Fake an ancient database: some unrelated table plus a version the
	// incremental chain cannot reach.
	if _, err := db.Exec("CREATE TABLE steps (old_layout TEXT)"); err != nil {
		t.Fatalf("create stale table: %v", err)
	}
	if _, err := db.Exec("PRAGMA user_version = 5"); err != nil {
		t.Fatalf("set stale version: %v", err)
	}

	m := &Migrator{Flags: flags.Default()}
	if _, err := m.Apply(ctx, db); err != nil {
		t.Fatalf("Apply() failed: %v", err)
	}

	if v := userVersion(t, db); v != CurrentVersion {
		t.Errorf("user_version = %d, want %d", v, CurrentVersion)
	}
	// The stale layout is gone; the recreated table has the real columns.
	if mustColumnExists(t, db, "steps", "old_layout") {
		t.Error("stale column survived the recreate")
	}
	if !mustColumnExists(t, db, "steps", "count") {
		t.Error("recreated steps table lacks count column")
	}
}

func TestApply_GuardedStepSkippedWhenFlagOff(t *testing.T) {
	db := openTestDB(t)
	fl := flags.Default()
	fl.SetEnabled(flags.PlannedExercise, false)
	fl.SetEnabled(flags.PersonalHealthRecord, false)

	caps, err := (&Migrator{Flags: fl}).Apply(context.Background(), db)
	if err != nil {
		t.Fatalf("Apply() failed: %v", err)
	}

	if caps.PlannedExercise || caps.PersonalHealthRecord {
		t.Errorf("capabilities = %+v, want both false", caps)
	}
	if mustTableExists(t, db, "planned_exercise_sessions") {
		t.Error("planned_exercise_sessions created with the flag off")
	}
	if mustTableExists(t, db, "medical_resource") {
		t.Error("medical_resource created with the flag off")
	}
	if mustColumnExists(t, db, "exercise_session", "planned_exercise_session_uuid") {
		t.Error("link column added with the flag off")
	}
	// user_version still advances past the guarded range.
	if v := userVersion(t, db); v != CurrentVersion {
		t.Errorf("user_version = %d, want %d", v, CurrentVersion)
	}
}

func TestApply_GuardedStepAppliesOnLaterOpen(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	fl := flags.Default()
	fl.SetEnabled(flags.PlannedExercise, false)
	m := &Migrator{Flags: fl}
	if _, err := m.Apply(ctx, db); err != nil {
		t.Fatalf("first Apply() failed: %v", err)
	}

	// The flag flips on after user_version already reached current. The
	// sentinel check, not the version, drives application.
	fl.SetEnabled(flags.PlannedExercise, true)
	caps, err := m.Apply(ctx, db)
	if err != nil {
		t.Fatalf("second Apply() failed: %v", err)
	}

	if !caps.PlannedExercise {
		t.Error("PlannedExercise capability missing after flag enabled")
	}
	if !mustTableExists(t, db, "planned_exercise_sessions") {
		t.Error("planned_exercise_sessions missing")
	}
	if !mustColumnExists(t, db, "exercise_session", "planned_exercise_session_uuid") {
		t.Error("link column missing")
	}
}

func TestApply_CapabilitySurvivesFlagRollback(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	fl := flags.Default()
	if _, err := (&Migrator{Flags: fl}).Apply(ctx, db); err != nil {
		t.Fatalf("first Apply() failed: %v", err)
	}

	fl.SetEnabled(flags.PersonalHealthRecord, false)
	caps, err := (&Migrator{Flags: fl}).Apply(ctx, db)
	if err != nil {
		t.Fatalf("second Apply() failed: %v", err)
	}

	// Rolling the flag back never removes applied schema.
	if !caps.PersonalHealthRecord {
		t.Error("PersonalHealthRecord capability lost after flag rollback")
	}
	if !mustColumnExists(t, db, "access_logs", "medical_resource_types") {
		t.Error("access log medical column removed by rollback")
	}
}

func TestApply_DevSchemaLifecycle(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	fl := flags.Default()
	fl.SetEnabled(flags.DevSchema, true)
	if _, err := (&Migrator{Flags: fl}).Apply(ctx, db); err != nil {
		t.Fatalf("Apply() with dev schema failed: %v", err)
	}

	if !mustTableExists(t, db, "dev_activity_intensity") {
		t.Fatal("dev table missing with the flag on")
	}
	marker, ok, err := prefs.Get(ctx, db, prefs.KeyDevSchemaVersion)
	if err != nil || !ok {
		t.Fatalf("dev marker = ok=%v err=%v, want present", ok, err)
	}
	if marker != "2" {
		t.Errorf("dev marker = %q, want 2", marker)
	}

	// Turning the flag off drops the experimental tables and the marker.
	fl.SetEnabled(flags.DevSchema, false)
	if _, err := (&Migrator{Flags: fl}).Apply(ctx, db); err != nil {
		t.Fatalf("Apply() without dev schema failed: %v", err)
	}
	if mustTableExists(t, db, "dev_activity_intensity") {
		t.Error("dev table survived the flag turning off")
	}
	if _, ok, _ := prefs.Get(ctx, db, prefs.KeyDevSchemaVersion); ok {
		t.Error("dev marker survived the flag turning off")
	}
}

func TestApply_DevSchemaVersionBumpRecreates(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	fl := flags.Default()
	fl.SetEnabled(flags.DevSchema, true)
	if _, err := (&Migrator{Flags: fl}).Apply(ctx, db); err != nil {
		t.Fatalf("first Apply() failed: %v", err)
	}

	// A stale marker means the dev tables predate the current experimental
	// layout; the path drops and recreates them.
	if err := prefs.Set(ctx, db, prefs.KeyDevSchemaVersion, "1"); err != nil {
		t.Fatalf("set stale marker: %v", err)
	}
	if _, err := db.Exec(
		"INSERT INTO dev_activity_intensity (uuid, app_info_id, start_time, end_time, intensity) VALUES ('u1', 1, 0, 1, 2)"); err != nil {
		t.Fatalf("insert dev row: %v", err)
	}

	if _, err := (&Migrator{Flags: fl}).Apply(ctx, db); err != nil {
		t.Fatalf("second Apply() failed: %v", err)
	}

	var n int
	if err := db.QueryRow("SELECT COUNT(*) FROM dev_activity_intensity").Scan(&n); err != nil {
		t.Fatalf("count dev rows: %v", err)
	}
	if n != 0 {
		t.Errorf("dev rows = %d, want 0 after recreate", n)
	}
	marker, _, _ := prefs.Get(ctx, db, prefs.KeyDevSchemaVersion)
	if marker != "2" {
		t.Errorf("dev marker = %q, want 2", marker)
	}
}

func TestCheckGuardedVersions(t *testing.T) {
	if err := CheckGuardedVersions(); err != nil {
		t.Errorf("CheckGuardedVersions() failed: %v", err)
	}
	for flag, version := range GuardedVersions() {
		if version <= lastUnguardedVersion {
			t.Errorf("flag %s guards version %d at or below %d", flag, version, lastUnguardedVersion)
		}
	}
}
