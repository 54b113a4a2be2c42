package store

import (
	"context"
	"testing"
	"time"

	"github.com/vitalbase/healthstore/internal/datatypes"
	"github.com/vitalbase/healthstore/internal/testutil"
)

func TestInsertAll_Basic(t *testing.T) {
	tm, _ := createTestManager(t)
	ctx := context.Background()

	uuids, err := tm.InsertAll(ctx, testApp, []datatypes.Record{
		testutil.StepsRecord(0, 1200),
	})
	if err != nil {
		t.Fatalf("InsertAll() failed: %v", err)
	}
	if len(uuids) != 1 || uuids[0] == "" {
		t.Fatalf("uuids = %v, want one non-empty uuid", uuids)
	}

	if n := countRows(t, tm, "steps", "uuid = ?", uuids[0]); n != 1 {
		t.Errorf("steps rows for uuid = %d, want 1", n)
	}
	if n := countRows(t, tm, "change_logs", "operation_type = 'UPSERT' AND record_type = 'steps'"); n != 1 {
		t.Errorf("upsert change rows = %d, want 1", n)
	}
	if n := countRows(t, tm, "access_logs", "operation_type = 'UPSERT'"); n != 1 {
		t.Errorf("upsert access rows = %d, want 1", n)
	}
}

func TestInsertAll_KeepsCallerUUID(t *testing.T) {
	tm, _ := createTestManager(t)

	rec := testutil.StepsRecord(0, 100)
	rec.UUID = "0190563a-5e1b-7000-8000-000000000001"

	uuids, err := tm.InsertAll(context.Background(), testApp, []datatypes.Record{rec})
	if err != nil {
		t.Fatalf("InsertAll() failed: %v", err)
	}
	if uuids[0] != rec.UUID {
		t.Errorf("uuid = %q, want caller-supplied %q", uuids[0], rec.UUID)
	}
}

func TestInsertAll_ChildRows(t *testing.T) {
	tm, _ := createTestManager(t)

	uuids, err := tm.InsertAll(context.Background(), testApp, []datatypes.Record{
		testutil.HeartRateRecord(0, 62, 64, 66),
	})
	if err != nil {
		t.Fatalf("InsertAll() failed: %v", err)
	}
	_ = uuids

	if n := countRows(t, tm, "heart_rate_samples", ""); n != 3 {
		t.Errorf("sample rows = %d, want 3", n)
	}
}

func TestInsertAll_ConflictAbortsWholeBatch(t *testing.T) {
	tm, _ := createTestManager(t)
	ctx := context.Background()

	first := testutil.StepsRecord(0, 100)
	first.ClientRecordID = "morning-walk"
	if _, err := tm.InsertAll(ctx, testApp, []datatypes.Record{first}); err != nil {
		t.Fatalf("first InsertAll() failed: %v", err)
	}

	fresh := testutil.StepsRecord(time.Hour, 200)
	dup := testutil.StepsRecord(2*time.Hour, 300)
	dup.ClientRecordID = "morning-walk"

	_, err := tm.InsertAll(ctx, testApp, []datatypes.Record{fresh, dup})
	if !IsConstraintViolation(err) {
		t.Fatalf("err = %v, want constraint violation", err)
	}

	// The fresh record must have been rolled back with the batch.
	if n := countRows(t, tm, "steps", ""); n != 1 {
		t.Errorf("steps rows = %d, want 1 (batch rolled back)", n)
	}
}

func TestInsertAll_FailedBatchWritesNoLogs(t *testing.T) {
	tm, _ := createTestManager(t)
	ctx := context.Background()

	first := testutil.StepsRecord(0, 100)
	first.ClientRecordID = "morning-walk"
	if _, err := tm.InsertAll(ctx, testApp, []datatypes.Record{first}); err != nil {
		t.Fatalf("first InsertAll() failed: %v", err)
	}
	changesBefore := countRows(t, tm, "change_logs", "")
	accessBefore := countRows(t, tm, "access_logs", "")

	fresh := testutil.StepsRecord(time.Hour, 200)
	dup := testutil.StepsRecord(2*time.Hour, 300)
	dup.ClientRecordID = "morning-walk"
	if _, err := tm.InsertAll(ctx, testApp, []datatypes.Record{fresh, dup}); !IsConstraintViolation(err) {
		t.Fatalf("err = %v, want constraint violation", err)
	}

	if n := countRows(t, tm, "change_logs", ""); n != changesBefore {
		t.Errorf("change rows = %d, want unchanged %d after rollback", n, changesBefore)
	}
	if n := countRows(t, tm, "access_logs", ""); n != accessBefore {
		t.Errorf("access rows = %d, want unchanged %d after rollback", n, accessBefore)
	}
}

func TestInsertAll_ConflictNamesClientRecordID(t *testing.T) {
	tm, _ := createTestManager(t)
	ctx := context.Background()

	rec := testutil.StepsRecord(0, 100)
	rec.ClientRecordID = "run-42"
	if _, err := tm.InsertAll(ctx, testApp, []datatypes.Record{rec}); err != nil {
		t.Fatalf("first InsertAll() failed: %v", err)
	}

	dup := testutil.StepsRecord(0, 100)
	dup.ClientRecordID = "run-42"
	_, err := tm.InsertAll(ctx, testApp, []datatypes.Record{dup})

	se, ok := err.(*StoreError)
	if !ok {
		t.Fatalf("err = %T, want *StoreError", err)
	}
	if len(se.UUIDs) != 1 || se.UUIDs[0] != "run-42" {
		t.Errorf("error ids = %v, want [run-42]", se.UUIDs)
	}
}

func TestInsertAll_DifferentAppsSameClientRecordID(t *testing.T) {
	tm, _ := createTestManager(t)
	ctx := context.Background()

	a := testutil.StepsRecord(0, 100)
	a.ClientRecordID = "walk"
	b := testutil.StepsRecord(0, 100)
	b.ClientRecordID = "walk"

	if _, err := tm.InsertAll(ctx, testApp, []datatypes.Record{a}); err != nil {
		t.Fatalf("InsertAll() app A failed: %v", err)
	}
	if _, err := tm.InsertAll(ctx, testOtherApp, []datatypes.Record{b}); err != nil {
		t.Fatalf("InsertAll() app B failed: %v", err)
	}
}

func TestInsertOrReplaceAll_PreservesRowIdentity(t *testing.T) {
	tm, _ := createTestManager(t)
	ctx := context.Background()

	rec := testutil.StepsRecord(0, 100)
	rec.ClientRecordID = "walk"
	uuids, err := tm.InsertOrReplaceAll(ctx, testApp, []datatypes.Record{rec})
	if err != nil {
		t.Fatalf("first InsertOrReplaceAll() failed: %v", err)
	}

	var rowID int64
	if err := tm.db.db.QueryRow("SELECT row_id FROM steps WHERE uuid = ?", uuids[0]).Scan(&rowID); err != nil {
		t.Fatalf("row_id query failed: %v", err)
	}

	replacement := testutil.StepsRecord(0, 250)
	replacement.ClientRecordID = "walk"
	newUUIDs, err := tm.InsertOrReplaceAll(ctx, testApp, []datatypes.Record{replacement})
	if err != nil {
		t.Fatalf("second InsertOrReplaceAll() failed: %v", err)
	}

	if newUUIDs[0] != uuids[0] {
		t.Errorf("uuid = %q, want surviving %q", newUUIDs[0], uuids[0])
	}

	var newRowID, count int64
	err = tm.db.db.QueryRow("SELECT row_id, count FROM steps WHERE uuid = ?", uuids[0]).Scan(&newRowID, &count)
	if err != nil {
		t.Fatalf("replaced row query failed: %v", err)
	}
	if newRowID != rowID {
		t.Errorf("row_id = %d, want preserved %d", newRowID, rowID)
	}
	if count != 250 {
		t.Errorf("count = %d, want 250", count)
	}
	if n := countRows(t, tm, "steps", ""); n != 1 {
		t.Errorf("steps rows = %d, want 1", n)
	}
}

func TestInsertOrReplaceAll_IdenticalContentIsNoOp(t *testing.T) {
	tm, _ := createTestManager(t)
	ctx := context.Background()

	rec := testutil.HeartRateRecord(0, 60, 61)
	rec.ClientRecordID = "sleep-hr"
	if _, err := tm.InsertOrReplaceAll(ctx, testApp, []datatypes.Record{rec}); err != nil {
		t.Fatalf("first InsertOrReplaceAll() failed: %v", err)
	}
	before := countRows(t, tm, "change_logs", "")

	same := testutil.HeartRateRecord(0, 60, 61)
	same.ClientRecordID = "sleep-hr"
	if _, err := tm.InsertOrReplaceAll(ctx, testApp, []datatypes.Record{same}); err != nil {
		t.Fatalf("second InsertOrReplaceAll() failed: %v", err)
	}

	if after := countRows(t, tm, "change_logs", ""); after != before {
		t.Errorf("change rows = %d, want unchanged %d for identical content", after, before)
	}
}

func TestInsertOrReplaceAll_ReplacesChildren(t *testing.T) {
	tm, _ := createTestManager(t)
	ctx := context.Background()

	rec := testutil.HeartRateRecord(0, 60, 61, 62)
	rec.ClientRecordID = "hr"
	if _, err := tm.InsertOrReplaceAll(ctx, testApp, []datatypes.Record{rec}); err != nil {
		t.Fatalf("first InsertOrReplaceAll() failed: %v", err)
	}

	replacement := testutil.HeartRateRecord(0, 70)
	replacement.ClientRecordID = "hr"
	if _, err := tm.InsertOrReplaceAll(ctx, testApp, []datatypes.Record{replacement}); err != nil {
		t.Fatalf("second InsertOrReplaceAll() failed: %v", err)
	}

	if n := countRows(t, tm, "heart_rate_samples", ""); n != 1 {
		t.Errorf("sample rows = %d, want 1 after replacement", n)
	}
	if n := countRows(t, tm, "heart_rate_samples", "bpm = 70"); n != 1 {
		t.Errorf("bpm=70 rows = %d, want 1", n)
	}
}

func TestUpdateAll_NonexistentFails(t *testing.T) {
	tm, _ := createTestManager(t)

	rec := testutil.StepsRecord(0, 100)
	rec.UUID = "0190563a-5e1b-7000-8000-00000000dead"

	err := tm.UpdateAll(context.Background(), testApp, []datatypes.Record{rec})
	if !IsNotFound(err) {
		t.Fatalf("err = %v, want not found", err)
	}
	if n := countRows(t, tm, "change_logs", ""); n != 0 {
		t.Errorf("change rows = %d, want 0 after failed update", n)
	}
	if n := countRows(t, tm, "access_logs", ""); n != 0 {
		t.Errorf("access rows = %d, want 0 after failed update", n)
	}
}

func TestInsertOrReplaceAll_OtherAppsUUIDConflictFails(t *testing.T) {
	tm, _ := createTestManager(t)
	ctx := context.Background()

	rec := testutil.StepsRecord(0, 100)
	rec.UUID = "0190563a-5e1b-7000-8000-000000000007"
	if _, err := tm.InsertAll(ctx, testApp, []datatypes.Record{rec}); err != nil {
		t.Fatalf("InsertAll() failed: %v", err)
	}

	takeover := testutil.StepsRecord(0, 99999)
	takeover.UUID = rec.UUID
	_, err := tm.InsertOrReplaceAll(ctx, testOtherApp, []datatypes.Record{takeover})
	if !IsConstraintViolation(err) {
		t.Fatalf("err = %v, want constraint violation", err)
	}

	var count int64
	var owner string
	err = tm.db.db.QueryRow(`
		SELECT s.count, a.package_name FROM steps s
		INNER JOIN application_info a ON s.app_info_id = a.row_id
		WHERE s.uuid = ?`, rec.UUID).Scan(&count, &owner)
	if err != nil {
		t.Fatalf("stored row query failed: %v", err)
	}
	if owner != testApp {
		t.Errorf("owner = %q, want original %q", owner, testApp)
	}
	if count != 100 {
		t.Errorf("count = %d, want original 100", count)
	}
}

func TestUpdateAll_OtherAppsRecordNotVisible(t *testing.T) {
	tm, _ := createTestManager(t)
	ctx := context.Background()

	uuids, err := tm.InsertAll(ctx, testApp, []datatypes.Record{testutil.StepsRecord(0, 100)})
	if err != nil {
		t.Fatalf("InsertAll() failed: %v", err)
	}

	update := testutil.StepsRecord(0, 999)
	update.UUID = uuids[0]
	err = tm.UpdateAll(ctx, testOtherApp, []datatypes.Record{update})
	if !IsNotFound(err) {
		t.Fatalf("err = %v, want not found for other app's record", err)
	}
}

func TestUpdateAll_RewritesContent(t *testing.T) {
	tm, _ := createTestManager(t)
	ctx := context.Background()

	rec := testutil.StepsRecord(0, 100)
	rec.ClientRecordID = "walk"
	uuids, err := tm.InsertAll(ctx, testApp, []datatypes.Record{rec})
	if err != nil {
		t.Fatalf("InsertAll() failed: %v", err)
	}

	update := testutil.StepsRecord(0, 4242)
	update.ClientRecordID = "walk"
	if err := tm.UpdateAll(ctx, testApp, []datatypes.Record{update}); err != nil {
		t.Fatalf("UpdateAll() failed: %v", err)
	}

	if update.UUID != uuids[0] {
		t.Errorf("metadata uuid = %q, want surviving %q", update.UUID, uuids[0])
	}
	var count int64
	if err := tm.db.db.QueryRow("SELECT count FROM steps WHERE uuid = ?", uuids[0]).Scan(&count); err != nil {
		t.Fatalf("query failed: %v", err)
	}
	if count != 4242 {
		t.Errorf("count = %d, want 4242", count)
	}
}

func TestInsert_DisabledTypeRejected(t *testing.T) {
	// Medical resources require the personal-health-record schema.
	fl := flagSet(t, map[string]bool{"personal_health_record": false})
	tm, _ := createTestManagerWithFlags(t, fl)

	_, err := tm.InsertAll(context.Background(), testApp, []datatypes.Record{
		testutil.MedicalResourceRecord("source-1", "imm-1"),
	})
	if !IsUnsupportedType(err) {
		t.Fatalf("err = %v, want unsupported type", err)
	}
}
