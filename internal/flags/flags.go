// Package flags holds the feature-flag state that gates record types and
// flag-guarded schema upgrades. Flags are read from a YAML file and may
// flip at any time while the process runs; consumers must re-check on every
// operation rather than caching the answer.
package flags

import (
	"fmt"
	"os"
	"sync"

	"gopkg.in/yaml.v3"
)

// Flag names a feature gate.
type Flag string

const (
	// PlannedExercise gates the planned-exercise record type and its
	// schema upgrade.
	PlannedExercise Flag = "planned_exercise"

	// PersonalHealthRecord gates FHIR medical resources and the medical
	// columns on the access log.
	PersonalHealthRecord Flag = "personal_health_record"

	// DevSchema gates the unreleased experimental schema path. Disabled
	// by default; never enabled in released builds.
	DevSchema Flag = "dev_schema"
)

// Set is a concurrent view of flag states.
type Set struct {
	mu      sync.RWMutex
	enabled map[Flag]bool
}

// Default returns the shipping flag configuration: released gates on, the
// dev-schema gate off.
func Default() *Set {
	return &Set{enabled: map[Flag]bool{
		PlannedExercise:      true,
		PersonalHealthRecord: true,
		DevSchema:            false,
	}}
}

// Enabled reports whether the flag is currently on.
func (s *Set) Enabled(f Flag) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.enabled[f]
}

// SetEnabled flips a single flag. Used by tests and the file watcher.
func (s *Set) SetEnabled(f Flag, on bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.enabled == nil {
		s.enabled = make(map[Flag]bool)
	}
	s.enabled[f] = on
}

// LoadFile replaces the set's state with the contents of a YAML file of the
// form "flag_name: true". Flags absent from the file keep their defaults.
func (s *Set) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read flag file: %w", err)
	}

	var parsed map[Flag]bool
	if err := yaml.Unmarshal(data, &parsed); err != nil {
		return fmt.Errorf("parse flag file %s: %w", path, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for f, on := range parsed {
		s.enabled[f] = on
	}
	return nil
}
