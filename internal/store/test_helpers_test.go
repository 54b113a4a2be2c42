package store

import (
	"context"
	"testing"

	"github.com/vitalbase/healthstore/internal/flags"
	"github.com/vitalbase/healthstore/internal/testutil"
)

const (
	testApp      = "com.example.fit"
	testOtherApp = "com.example.other"
)

// createTestManager opens a fresh migrated database in a temp dir with
// all released flags on and a frozen clock.
func createTestManager(t *testing.T) (*TransactionManager, *testutil.DeterministicClock) {
	t.Helper()
	return createTestManagerWithFlags(t, flags.Default())
}

func createTestManagerWithFlags(t *testing.T, fl *flags.Set) (*TransactionManager, *testutil.DeterministicClock) {
	t.Helper()

	clock := testutil.NewDeterministicClock()
	udm := NewUserDataManager(t.TempDir(), fl, clock, nil)
	t.Cleanup(func() { udm.CloseAll() })

	tm, err := udm.ForUser(context.Background(), 0)
	if err != nil {
		t.Fatalf("ForUser() failed: %v", err)
	}
	return tm, clock
}

// flagSet returns the default flags with the given overrides applied.
func flagSet(t *testing.T, overrides map[string]bool) *flags.Set {
	t.Helper()
	fl := flags.Default()
	for name, on := range overrides {
		fl.SetEnabled(flags.Flag(name), on)
	}
	return fl
}

// countRows counts rows in a table, optionally constrained by a WHERE
// fragment.
func countRows(t *testing.T, tm *TransactionManager, table, where string, args ...any) int {
	t.Helper()

	query := "SELECT COUNT(*) FROM " + table
	if where != "" {
		query += " WHERE " + where
	}
	var n int
	if err := tm.db.db.QueryRow(query, args...).Scan(&n); err != nil {
		t.Fatalf("count %s failed: %v", table, err)
	}
	return n
}
