package testutil

import (
	"time"

	"github.com/vitalbase/healthstore/internal/datatypes"
)

// StepsRecord returns a steps record covering one hour starting at
// Epoch plus the given offset.
func StepsRecord(offset time.Duration, count int64) *datatypes.Steps {
	start := Epoch.Add(offset)
	return &datatypes.Steps{
		StartTime:       start,
		EndTime:         start.Add(time.Hour),
		StartZoneOffset: 3600,
		EndZoneOffset:   3600,
		Count:           count,
	}
}

// HeartRateRecord returns a heart-rate record with one sample per given
// bpm value, spaced a minute apart from Epoch plus offset.
func HeartRateRecord(offset time.Duration, bpms ...int64) *datatypes.HeartRate {
	start := Epoch.Add(offset)
	rec := &datatypes.HeartRate{
		StartTime:       start,
		EndTime:         start.Add(time.Duration(len(bpms)) * time.Minute),
		StartZoneOffset: 3600,
		EndZoneOffset:   3600,
	}
	for i, bpm := range bpms {
		rec.Samples = append(rec.Samples, datatypes.HeartRateSample{
			Time: start.Add(time.Duration(i) * time.Minute),
			BPM:  bpm,
		})
	}
	return rec
}

// ExerciseRecord returns a 30-minute exercise session with one segment.
func ExerciseRecord(offset time.Duration, title string) *datatypes.ExerciseSession {
	start := Epoch.Add(offset)
	return &datatypes.ExerciseSession{
		StartTime:       start,
		EndTime:         start.Add(30 * time.Minute),
		StartZoneOffset: 3600,
		EndZoneOffset:   3600,
		ExerciseType:    7,
		Title:           title,
		Segments: []datatypes.ExerciseSegment{{
			StartTime:   start,
			EndTime:     start.Add(30 * time.Minute),
			SegmentType: 2,
			RepCount:    12,
		}},
	}
}

// SkinTemperatureRecord returns a skin temperature record with two
// deltas around the given baseline.
func SkinTemperatureRecord(offset time.Duration, baseline float64) *datatypes.SkinTemperature {
	start := Epoch.Add(offset)
	return &datatypes.SkinTemperature{
		StartTime:       start,
		EndTime:         start.Add(8 * time.Hour),
		StartZoneOffset: 3600,
		EndZoneOffset:   3600,
		BaselineCelsius: baseline,
		Deltas: []datatypes.SkinTemperatureDelta{
			{Time: start.Add(time.Hour), DeltaCelsius: 0.2},
			{Time: start.Add(2 * time.Hour), DeltaCelsius: -0.1},
		},
	}
}

// PlannedSessionRecord returns a planned exercise session with one block.
func PlannedSessionRecord(offset time.Duration, title string) *datatypes.PlannedExerciseSession {
	start := Epoch.Add(offset)
	return &datatypes.PlannedExerciseSession{
		StartTime:       start,
		EndTime:         start.Add(45 * time.Minute),
		StartZoneOffset: 3600,
		EndZoneOffset:   3600,
		Title:           title,
		Blocks: []datatypes.PlannedExerciseBlock{
			{Description: "warmup", Reps: 1},
		},
	}
}

// MedicalResourceRecord returns a FHIR immunization resource owned by
// the given data source.
func MedicalResourceRecord(dataSource, fhirID string) *datatypes.MedicalResource {
	return &datatypes.MedicalResource{
		Time:         Epoch,
		DataSourceID: dataSource,
		FHIRType:     "Immunization",
		FHIRID:       fhirID,
		Body:         `{"resourceType":"Immunization","id":"` + fhirID + `","status":"completed"}`,
	}
}
