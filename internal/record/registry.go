package record

import (
	"sort"

	"github.com/vitalbase/healthstore/internal/datatypes"
)

// Capabilities describes which flag-gated parts of the physical schema are
// present in a particular database. The migration engine probes them after
// upgrading; helpers must not reference columns or tables the capabilities
// exclude.
type Capabilities struct {
	// PlannedExercise: planned session tables and the session link
	// column exist.
	PlannedExercise bool

	// PersonalHealthRecord: the medical resource table and the medical
	// access-log columns exist.
	PersonalHealthRecord bool
}

// Registry resolves record types to their helpers.
type Registry struct {
	helpers map[datatypes.RecordType]Helper
}

// NewRegistry builds the helper registry for a database with the given
// capabilities. Helpers for absent subsystems are not registered at all, so
// lookups for them fail the same way unknown types do.
func NewRegistry(caps Capabilities) *Registry {
	helpers := map[datatypes.RecordType]Helper{
		datatypes.TypeSteps:           stepsHelper{},
		datatypes.TypeHeartRate:       heartRateHelper{},
		datatypes.TypeExerciseSession: exerciseHelper{plannedLink: caps.PlannedExercise},
		datatypes.TypeSkinTemperature: skinTempHelper{},
	}
	if caps.PlannedExercise {
		helpers[datatypes.TypePlannedExerciseSession] = plannedHelper{}
	}
	if caps.PersonalHealthRecord {
		helpers[datatypes.TypeMedicalResource] = medicalHelper{}
	}
	return &Registry{helpers: helpers}
}

// Get returns the helper for a record type.
func (r *Registry) Get(t datatypes.RecordType) (Helper, bool) {
	h, ok := r.helpers[t]
	return h, ok
}

// All returns the registered helpers sorted by record type, so callers that
// iterate (schema creation, the CLI) are deterministic.
func (r *Registry) All() []Helper {
	all := make([]Helper, 0, len(r.helpers))
	for _, h := range r.helpers {
		all = append(all, h)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].Type() < all[j].Type() })
	return all
}

// BaseHelpers returns the helpers whose tables belong to the minimum
// supported schema. The migration engine creates these on first open
// regardless of flag state; later tables arrive via upgrade steps.
func BaseHelpers() []Helper {
	return []Helper{
		exerciseHelper{},
		heartRateHelper{},
		stepsHelper{},
	}
}

// SkinTemperatureHelper returns the helper owning the skin temperature
// tables, created by the first post-minimum legacy upgrade.
func SkinTemperatureHelper() Helper { return skinTempHelper{} }

// PlannedExerciseHelper returns the helper owning the flag-gated planned
// exercise tables, for use by its guarded upgrade.
func PlannedExerciseHelper() Helper { return plannedHelper{} }

// MedicalResourceHelper returns the helper owning the flag-gated medical
// resource table, for use by its guarded upgrade.
func MedicalResourceHelper() Helper { return medicalHelper{} }

// ExerciseSessionTable is exported for the planned-exercise upgrade, which
// must apply the session table's deferred foreign key.
func ExerciseSessionTable() Helper { return exerciseHelper{plannedLink: true} }
