package store

import (
	"context"
	"log/slog"

	"github.com/vitalbase/healthstore/internal/flags"
)

// FlagReopener ties the flag-file watcher to a user's database handle:
// whenever the flag file changes, the handle is closed and reopened so
// newly enabled flag-guarded upgrades apply without a restart.
type FlagReopener struct {
	udm  *UserDataManager
	set  *flags.Set
	user int
}

// NewFlagReopener creates a reopener for one user's database.
func NewFlagReopener(udm *UserDataManager, set *flags.Set, user int) *FlagReopener {
	return &FlagReopener{udm: udm, set: set, user: user}
}

// Run blocks watching the flag file until ctx is cancelled. Reopen
// failures are logged; the watcher keeps running and retries on the next
// change.
func (r *FlagReopener) Run(ctx context.Context, path string) error {
	return flags.Watch(ctx, path, r.set, func() {
		if err := r.udm.CloseUser(r.user); err != nil {
			slog.Error("closing user database for flag reload", "user", r.user, "error", err)
			return
		}
		if _, err := r.udm.ForUser(ctx, r.user); err != nil {
			slog.Error("reopening user database after flag reload", "user", r.user, "error", err)
		}
	})
}
