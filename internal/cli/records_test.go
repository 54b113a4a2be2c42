package cli

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vitalbase/healthstore/internal/datatypes"
)

func TestDecodeRecords(t *testing.T) {
	payload := `[
		{"type": "steps", "record": {
			"StartTime": "2024-03-01T10:00:00Z",
			"EndTime": "2024-03-01T11:00:00Z",
			"Count": 1200
		}},
		{"type": "heart_rate", "record": {
			"StartTime": "2024-03-01T10:00:00Z",
			"EndTime": "2024-03-01T10:05:00Z",
			"Samples": [{"Time": "2024-03-01T10:00:00Z", "BPM": 62}]
		}}
	]`

	records, err := decodeRecords(strings.NewReader(payload))
	require.NoError(t, err)
	require.Len(t, records, 2)

	steps, ok := records[0].(*datatypes.Steps)
	require.True(t, ok)
	assert.Equal(t, int64(1200), steps.Count)

	hr, ok := records[1].(*datatypes.HeartRate)
	require.True(t, ok)
	require.Len(t, hr.Samples, 1)
	assert.Equal(t, int64(62), hr.Samples[0].BPM)
}

func TestDecodeRecords_UnknownType(t *testing.T) {
	_, err := decodeRecords(strings.NewReader(
		`[{"type": "blood_pressure", "record": {}}]`))

	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown record type")
}

func TestDecodeRecords_MalformedJSON(t *testing.T) {
	_, err := decodeRecords(strings.NewReader(`[{`))
	assert.Error(t, err)
}

func TestEncodeRecords_RoundTrip(t *testing.T) {
	records := []datatypes.Record{
		&datatypes.Steps{Metadata: datatypes.Metadata{UUID: "u1"}, Count: 5},
		&datatypes.MedicalResource{FHIRType: "Immunization"},
	}

	envelopes := encodeRecords(records)
	require.Len(t, envelopes, 2)
	assert.Equal(t, "steps", envelopes[0].Type)
	assert.Equal(t, "medical_resource", envelopes[1].Type)
	assert.Contains(t, string(envelopes[0].Record), `"Count":5`)
}
