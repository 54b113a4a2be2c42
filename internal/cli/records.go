package cli

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/vitalbase/healthstore/internal/datatypes"
)

// recordEnvelope is the JSON shape records cross the CLI boundary in:
// the type tag picks the concrete record struct.
type recordEnvelope struct {
	Type   string          `json:"type"`
	Record json.RawMessage `json:"record"`
}

// decodeRecords reads a JSON array of record envelopes.
func decodeRecords(r io.Reader) ([]datatypes.Record, error) {
	var envelopes []recordEnvelope
	if err := json.NewDecoder(r).Decode(&envelopes); err != nil {
		return nil, fmt.Errorf("decoding records: %w", err)
	}

	records := make([]datatypes.Record, 0, len(envelopes))
	for i, env := range envelopes {
		t, err := datatypes.ParseRecordType(env.Type)
		if err != nil {
			return nil, fmt.Errorf("record %d: %w", i, err)
		}
		rec := emptyRecord(t)
		if err := json.Unmarshal(env.Record, rec); err != nil {
			return nil, fmt.Errorf("record %d (%s): %w", i, t, err)
		}
		records = append(records, rec)
	}
	return records, nil
}

// encodeRecords wraps records back into envelopes for output.
func encodeRecords(records []datatypes.Record) []recordEnvelope {
	out := make([]recordEnvelope, 0, len(records))
	for _, rec := range records {
		body, err := json.Marshal(rec)
		if err != nil {
			// Record types are plain structs; this cannot fail for
			// values the store returned.
			body = []byte("null")
		}
		out = append(out, recordEnvelope{Type: string(rec.Type()), Record: body})
	}
	return out
}

func emptyRecord(t datatypes.RecordType) datatypes.Record {
	switch t {
	case datatypes.TypeSteps:
		return &datatypes.Steps{}
	case datatypes.TypeHeartRate:
		return &datatypes.HeartRate{}
	case datatypes.TypeExerciseSession:
		return &datatypes.ExerciseSession{}
	case datatypes.TypeSkinTemperature:
		return &datatypes.SkinTemperature{}
	case datatypes.TypePlannedExerciseSession:
		return &datatypes.PlannedExerciseSession{}
	case datatypes.TypeMedicalResource:
		return &datatypes.MedicalResource{}
	default:
		// ParseRecordType already rejected unknown types.
		return nil
	}
}
