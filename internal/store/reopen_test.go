package store

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/vitalbase/healthstore/internal/flags"
	"github.com/vitalbase/healthstore/internal/testutil"
)

func TestFlagReopener_AppliesGuardedUpgradeOnReload(t *testing.T) {
	dir := t.TempDir()
	flagPath := filepath.Join(dir, "flags.yaml")
	if err := os.WriteFile(flagPath, []byte("planned_exercise: false\n"), 0o600); err != nil {
		t.Fatalf("write flag file: %v", err)
	}

	fl := flags.Default()
	if err := fl.LoadFile(flagPath); err != nil {
		t.Fatalf("load flag file: %v", err)
	}

	udm := NewUserDataManager(dir, fl, testutil.NewDeterministicClock(), nil)
	defer udm.CloseAll()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	tm, err := udm.ForUser(ctx, 0)
	if err != nil {
		t.Fatalf("ForUser() failed: %v", err)
	}
	if tm.Capabilities().PlannedExercise {
		t.Fatal("PlannedExercise = true before the flag is enabled")
	}

	done := make(chan error, 1)
	go func() {
		done <- NewFlagReopener(udm, udm.Flags(), 0).Run(ctx, flagPath)
	}()

	// Give the watcher a moment to attach before the write.
	time.Sleep(100 * time.Millisecond)
	if err := os.WriteFile(flagPath, []byte("planned_exercise: true\n"), 0o600); err != nil {
		t.Fatalf("update flag file: %v", err)
	}

	deadline := time.Now().Add(5 * time.Second)
	for {
		reopened, err := udm.ForUser(ctx, 0)
		if err != nil {
			t.Fatalf("ForUser() after reload failed: %v", err)
		}
		if reopened.Capabilities().PlannedExercise {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("guarded upgrade never applied after flag reload")
		}
		time.Sleep(20 * time.Millisecond)
	}

	cancel()
	if err := <-done; err != context.Canceled {
		t.Errorf("Run() returned %v, want context.Canceled", err)
	}
}
