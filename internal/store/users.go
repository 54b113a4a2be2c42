package store

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/vitalbase/healthstore/internal/flags"
	"github.com/vitalbase/healthstore/internal/migration"
	"github.com/vitalbase/healthstore/internal/record"
)

// UserDataManager hands out one TransactionManager per user, opening and
// migrating the user's database file on first use. Handles are cached;
// concurrent callers for the same user share one handle.
type UserDataManager struct {
	dir   string
	flags *flags.Set
	clock Clock
	log   *slog.Logger

	mu    sync.Mutex
	users map[int]*TransactionManager
}

// NewUserDataManager creates a manager that stores per-user databases
// under dir.
func NewUserDataManager(dir string, fl *flags.Set, clock Clock, log *slog.Logger) *UserDataManager {
	if log == nil {
		log = slog.Default()
	}
	return &UserDataManager{
		dir:   dir,
		flags: fl,
		clock: clock,
		log:   log,
		users: make(map[int]*TransactionManager),
	}
}

// Flags returns the flag set consulted when opening databases.
func (m *UserDataManager) Flags() *flags.Set { return m.flags }

// DatabasePath returns the database file path for user.
func (m *UserDataManager) DatabasePath(user int) string {
	return filepath.Join(m.dir, fmt.Sprintf("healthstore_%d.db", user))
}

// ForUser returns the TransactionManager for user, opening and migrating
// the database if this is the first access.
func (m *UserDataManager) ForUser(ctx context.Context, user int) (*TransactionManager, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if tm, ok := m.users[user]; ok {
		return tm, nil
	}

	if err := os.MkdirAll(m.dir, 0o700); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}

	path := m.DatabasePath(user)
	db, err := openDatabase(path, m.log)
	if err != nil {
		return nil, err
	}

	mig := &migration.Migrator{Flags: m.flags}
	caps, err := mig.Apply(ctx, db)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("migrating database for user %d: %w", user, err)
	}

	handle, err := newDatabase(db, caps, m.log.With("user", user))
	if err != nil {
		db.Close()
		return nil, err
	}

	tm := NewTransactionManager(handle, record.NewRegistry(caps), m.clock, m.log.With("user", user))
	m.users[user] = tm
	m.log.Info("opened user database", "user", user, "path", path,
		"planned_exercise", caps.PlannedExercise, "personal_health_record", caps.PersonalHealthRecord)
	return tm, nil
}

// CloseUser closes and forgets the cached handle for user, if open.
func (m *UserDataManager) CloseUser(user int) error {
	m.mu.Lock()
	tm, ok := m.users[user]
	delete(m.users, user)
	m.mu.Unlock()
	if !ok {
		return nil
	}
	return tm.Close()
}

// DeleteUserData closes the handle for user and removes the database
// file along with its WAL sidecars.
func (m *UserDataManager) DeleteUserData(user int) error {
	if err := m.CloseUser(user); err != nil {
		return err
	}
	path := m.DatabasePath(user)
	for _, p := range []string{path, path + "-wal", path + "-shm"} {
		if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("removing %s: %w", p, err)
		}
	}
	m.log.Info("deleted user database", "user", user)
	return nil
}

// CloseAll closes every cached handle. The first error is returned; all
// handles are closed regardless.
func (m *UserDataManager) CloseAll() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	var first error
	for user, tm := range m.users {
		if err := tm.Close(); err != nil && first == nil {
			first = err
		}
		delete(m.users, user)
	}
	return first
}
