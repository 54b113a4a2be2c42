package store

import (
	"context"
	"testing"
	"time"

	"github.com/vitalbase/healthstore/internal/datatypes"
	"github.com/vitalbase/healthstore/internal/record"
	"github.com/vitalbase/healthstore/internal/testutil"
)

func TestAggregate_StepsTotal(t *testing.T) {
	tm, _ := createTestManager(t)
	ctx := context.Background()

	if _, err := tm.InsertAll(ctx, testApp, []datatypes.Record{
		testutil.StepsRecord(0, 1000),
		testutil.StepsRecord(2*time.Hour, 500),
	}); err != nil {
		t.Fatalf("InsertAll() app A failed: %v", err)
	}
	if _, err := tm.InsertAll(ctx, testOtherApp, []datatypes.Record{
		testutil.StepsRecord(4*time.Hour, 250),
	}); err != nil {
		t.Fatalf("InsertAll() app B failed: %v", err)
	}

	result, err := tm.Aggregate(ctx, testApp, datatypes.TypeSteps, record.AggregationTotal,
		testutil.Epoch.Add(-time.Hour), testutil.Epoch.Add(24*time.Hour))
	if err != nil {
		t.Fatalf("Aggregate() failed: %v", err)
	}

	if !result.Value.Valid || result.Value.Float64 != 1750 {
		t.Errorf("value = %v, want 1750", result.Value)
	}
	if len(result.DataOrigins) != 2 {
		t.Errorf("data origins = %v, want both apps", result.DataOrigins)
	}
	if !result.StartZoneOffset.Valid || result.StartZoneOffset.Int64 != 3600 {
		t.Errorf("zone offset = %v, want 3600", result.StartZoneOffset)
	}
}

func TestAggregate_RangeExcludes(t *testing.T) {
	tm, _ := createTestManager(t)
	ctx := context.Background()

	if _, err := tm.InsertAll(ctx, testApp, []datatypes.Record{
		testutil.StepsRecord(0, 1000),
		testutil.StepsRecord(48*time.Hour, 9999),
	}); err != nil {
		t.Fatalf("InsertAll() failed: %v", err)
	}

	result, err := tm.Aggregate(ctx, testApp, datatypes.TypeSteps, record.AggregationTotal,
		testutil.Epoch.Add(-time.Hour), testutil.Epoch.Add(24*time.Hour))
	if err != nil {
		t.Fatalf("Aggregate() failed: %v", err)
	}
	if !result.Value.Valid || result.Value.Float64 != 1000 {
		t.Errorf("value = %v, want 1000", result.Value)
	}
}

func TestAggregate_HeartRateSeries(t *testing.T) {
	tm, _ := createTestManager(t)
	ctx := context.Background()

	if _, err := tm.InsertAll(ctx, testApp, []datatypes.Record{
		testutil.HeartRateRecord(0, 58, 72, 64),
	}); err != nil {
		t.Fatalf("InsertAll() failed: %v", err)
	}

	start := testutil.Epoch.Add(-time.Hour)
	end := testutil.Epoch.Add(time.Hour)

	min, err := tm.Aggregate(ctx, testApp, datatypes.TypeHeartRate, record.AggregationMin, start, end)
	if err != nil {
		t.Fatalf("Aggregate(min) failed: %v", err)
	}
	if !min.Value.Valid || min.Value.Float64 != 58 {
		t.Errorf("min = %v, want 58", min.Value)
	}

	max, err := tm.Aggregate(ctx, testApp, datatypes.TypeHeartRate, record.AggregationMax, start, end)
	if err != nil {
		t.Fatalf("Aggregate(max) failed: %v", err)
	}
	if !max.Value.Valid || max.Value.Float64 != 72 {
		t.Errorf("max = %v, want 72", max.Value)
	}
}

func TestAggregate_EmptyRange(t *testing.T) {
	tm, _ := createTestManager(t)

	result, err := tm.Aggregate(context.Background(), testApp, datatypes.TypeSteps,
		record.AggregationTotal, testutil.Epoch, testutil.Epoch.Add(time.Hour))
	if err != nil {
		t.Fatalf("Aggregate() failed: %v", err)
	}
	if result.Value.Valid {
		t.Errorf("value = %v, want invalid for empty range", result.Value)
	}
	if len(result.DataOrigins) != 0 {
		t.Errorf("data origins = %v, want none", result.DataOrigins)
	}
}

func TestAggregate_UnsupportedKind(t *testing.T) {
	tm, _ := createTestManager(t)

	_, err := tm.Aggregate(context.Background(), testApp, datatypes.TypeSteps,
		record.AggregationMin, testutil.Epoch, testutil.Epoch.Add(time.Hour))
	if err == nil {
		t.Fatal("expected error for unsupported aggregation, got nil")
	}
}

func TestAggregate_DisabledTypeIsEmpty(t *testing.T) {
	fl := flagSet(t, map[string]bool{"personal_health_record": false})
	tm, _ := createTestManagerWithFlags(t, fl)

	result, err := tm.Aggregate(context.Background(), testApp, datatypes.TypeMedicalResource,
		record.AggregationCount, testutil.Epoch, testutil.Epoch.Add(24*time.Hour))
	if err != nil {
		t.Fatalf("Aggregate() failed: %v", err)
	}
	if result.Value.Valid {
		t.Errorf("value = %v, want invalid for absent schema", result.Value)
	}
}

func TestPruneAccessLogs_RespectsRetention(t *testing.T) {
	tm, clock := createTestManager(t)
	ctx := context.Background()

	if _, err := tm.InsertAll(ctx, testApp, []datatypes.Record{testutil.StepsRecord(0, 100)}); err != nil {
		t.Fatalf("InsertAll() failed: %v", err)
	}

	// Within the window nothing is pruned.
	removed, err := tm.PruneAccessLogs(ctx)
	if err != nil {
		t.Fatalf("PruneAccessLogs() failed: %v", err)
	}
	if removed != 0 {
		t.Errorf("removed = %d, want 0 inside retention", removed)
	}

	clock.Advance(8 * 24 * time.Hour)
	removed, err = tm.PruneAccessLogs(ctx)
	if err != nil {
		t.Fatalf("PruneAccessLogs() failed: %v", err)
	}
	if removed != 1 {
		t.Errorf("removed = %d, want 1 after retention", removed)
	}
	if n := countRows(t, tm, "access_logs", ""); n != 0 {
		t.Errorf("access rows = %d, want 0", n)
	}
}
