// Package datatypes defines the typed in-memory records the store accepts
// and returns. Field encodings, unit conversion, and presentation belong to
// callers; these types carry exactly what the storage layer persists.
package datatypes

import (
	"fmt"
	"sort"
	"time"
)

// RecordType identifies the category of a record. Each type owns its own
// table (plus child tables) and its own helper in the record registry.
type RecordType string

const (
	TypeSteps                  RecordType = "steps"
	TypeHeartRate              RecordType = "heart_rate"
	TypeExerciseSession        RecordType = "exercise_session"
	TypeSkinTemperature        RecordType = "skin_temperature"
	TypePlannedExerciseSession RecordType = "planned_exercise_session"
	TypeMedicalResource        RecordType = "medical_resource"
)

var allTypes = map[RecordType]bool{
	TypeSteps:                  true,
	TypeHeartRate:              true,
	TypeExerciseSession:        true,
	TypeSkinTemperature:        true,
	TypePlannedExerciseSession: true,
	TypeMedicalResource:        true,
}

// AllTypes returns every known record type in sorted order.
func AllTypes() []RecordType {
	types := make([]RecordType, 0, len(allTypes))
	for t := range allTypes {
		types = append(types, t)
	}
	sort.Slice(types, func(i, j int) bool { return types[i] < types[j] })
	return types
}

// ParseRecordType validates a record type string.
func ParseRecordType(s string) (RecordType, error) {
	t := RecordType(s)
	if !allTypes[t] {
		return "", fmt.Errorf("unknown record type %q", s)
	}
	return t, nil
}

// Metadata carries the storage-level identity fields shared by every
// record. UUID is assigned by the store on insert when empty; AppID is the
// package name of the owning application.
type Metadata struct {
	UUID             string
	AppID            string
	ClientRecordID   string
	LastModifiedTime time.Time
}

// Record is one logical health-data entity instance. Implementations are
// pointer types; the store mutates Metadata in place when assigning UUIDs.
type Record interface {
	Type() RecordType
	Meta() *Metadata
}

// Steps is a count of steps taken over an interval.
type Steps struct {
	Metadata
	StartTime       time.Time
	EndTime         time.Time
	StartZoneOffset int32 // seconds east of UTC
	EndZoneOffset   int32
	Count           int64
}

func (*Steps) Type() RecordType { return TypeSteps }
func (r *Steps) Meta() *Metadata { return &r.Metadata }

// HeartRateSample is one timestamped beats-per-minute reading inside a
// HeartRate record.
type HeartRateSample struct {
	Time time.Time
	BPM  int64
}

// HeartRate is a series of heart-rate samples over an interval.
type HeartRate struct {
	Metadata
	StartTime       time.Time
	EndTime         time.Time
	StartZoneOffset int32
	EndZoneOffset   int32
	Samples         []HeartRateSample
}

func (*HeartRate) Type() RecordType { return TypeHeartRate }
func (r *HeartRate) Meta() *Metadata { return &r.Metadata }

// ExerciseSegment is one contiguous stretch of a single exercise kind
// inside a session.
type ExerciseSegment struct {
	StartTime   time.Time
	EndTime     time.Time
	SegmentType int64
	RepCount    int64
}

// ExerciseSession is a workout with optional segments and an optional link
// to the planned session it completes.
type ExerciseSession struct {
	Metadata
	StartTime       time.Time
	EndTime         time.Time
	StartZoneOffset int32
	EndZoneOffset   int32
	ExerciseType    int64
	Title           string
	Notes           string

	// PlannedSessionUUID links to the PlannedExerciseSession this
	// session completes, empty when unplanned.
	PlannedSessionUUID string

	Segments []ExerciseSegment
}

func (*ExerciseSession) Type() RecordType { return TypeExerciseSession }
func (r *ExerciseSession) Meta() *Metadata { return &r.Metadata }

// SkinTemperatureDelta is one timestamped deviation from the record's
// baseline, in celsius.
type SkinTemperatureDelta struct {
	Time         time.Time
	DeltaCelsius float64
}

// SkinTemperature is a baseline temperature plus timestamped deltas.
type SkinTemperature struct {
	Metadata
	StartTime       time.Time
	EndTime         time.Time
	StartZoneOffset int32
	EndZoneOffset   int32
	BaselineCelsius float64
	Deltas          []SkinTemperatureDelta
}

func (*SkinTemperature) Type() RecordType { return TypeSkinTemperature }
func (r *SkinTemperature) Meta() *Metadata { return &r.Metadata }

// PlannedExerciseBlock is one prescribed block of a planned session.
type PlannedExerciseBlock struct {
	Description string
	Reps        int64
}

// PlannedExerciseSession is a scheduled workout plan. Flag-gated: its table
// only exists once the planned-exercise upgrade has been applied.
type PlannedExerciseSession struct {
	Metadata
	StartTime       time.Time
	EndTime         time.Time
	StartZoneOffset int32
	EndZoneOffset   int32
	Title           string
	Blocks          []PlannedExerciseBlock
}

func (*PlannedExerciseSession) Type() RecordType { return TypePlannedExerciseSession }
func (r *PlannedExerciseSession) Meta() *Metadata { return &r.Metadata }

// MedicalResource is one FHIR resource body owned by a medical data
// source. Its UUID is derived deterministically from the identity triple
// (data source, FHIR type, FHIR id); see the record helper.
type MedicalResource struct {
	Metadata
	Time         time.Time
	DataSourceID string
	FHIRType     string
	FHIRID       string
	Body         string // raw FHIR JSON
}

func (*MedicalResource) Type() RecordType { return TypeMedicalResource }
func (r *MedicalResource) Meta() *Metadata { return &r.Metadata }
