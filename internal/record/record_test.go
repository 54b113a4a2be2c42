package record

import (
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vitalbase/healthstore/internal/datatypes"
)

func TestMedicalResourceUUID_Deterministic(t *testing.T) {
	a := MedicalResourceUUID("source-1", "Immunization", "imm-1")
	b := MedicalResourceUUID("source-1", "Immunization", "imm-1")
	assert.Equal(t, a, b)

	assert.NotEqual(t, a, MedicalResourceUUID("source-2", "Immunization", "imm-1"))
	assert.NotEqual(t, a, MedicalResourceUUID("source-1", "Observation", "imm-1"))
	assert.NotEqual(t, a, MedicalResourceUUID("source-1", "Immunization", "imm-2"))
}

func TestMedicalResourceUUID_UnicodeNormalization(t *testing.T) {
	// é as a single code point versus e plus combining acute accent.
	composed := "café"
	decomposed := "café"

	assert.Equal(t,
		MedicalResourceUUID("src", "Patient", composed),
		MedicalResourceUUID("src", "Patient", decomposed))
}

func TestMedicalResourceUUID_DelimitedFields(t *testing.T) {
	// Field boundaries must not be ambiguous across concatenation.
	assert.NotEqual(t,
		MedicalResourceUUID("ab", "c", "d"),
		MedicalResourceUUID("a", "bc", "d"))
}

func TestUniqueColumnsFor(t *testing.T) {
	keyed := &datatypes.Steps{Metadata: datatypes.Metadata{ClientRecordID: "run-1"}}
	assert.Equal(t, []string{"app_info_id", "client_record_id"}, UniqueColumnsFor(keyed))

	unkeyed := &datatypes.Steps{Metadata: datatypes.Metadata{UUID: "u1"}}
	assert.Equal(t, []string{"uuid"}, UniqueColumnsFor(unkeyed))
}

func TestValuesEqual(t *testing.T) {
	tests := []struct {
		name string
		a, b map[string]any
		skip []string
		want bool
	}{
		{
			name: "identical",
			a:    map[string]any{"count": int64(5)},
			b:    map[string]any{"count": int64(5)},
			want: true,
		},
		{
			name: "different value",
			a:    map[string]any{"count": int64(5)},
			b:    map[string]any{"count": int64(6)},
			want: false,
		},
		{
			name: "driver type widths",
			a:    map[string]any{"count": 5, "off": int32(7), "ratio": float32(1.5)},
			b:    map[string]any{"count": int64(5), "off": int64(7), "ratio": float64(1.5)},
			want: true,
		},
		{
			name: "bytes versus string",
			a:    map[string]any{"title": []byte("run")},
			b:    map[string]any{"title": "run"},
			want: true,
		},
		{
			name: "bool versus stored integer",
			a:    map[string]any{"flag": true},
			b:    map[string]any{"flag": int64(1)},
			want: true,
		},
		{
			name: "null wrappers",
			a:    map[string]any{"client": sql.NullString{}, "off": sql.NullInt64{Valid: true, Int64: 3}},
			b:    map[string]any{"client": nil, "off": int64(3)},
			want: true,
		},
		{
			name: "key missing on one side",
			a:    map[string]any{"count": int64(5), "extra": "x"},
			b:    map[string]any{"count": int64(5)},
			want: false,
		},
		{
			name: "skipped column differs",
			a:    map[string]any{"count": int64(5), "last_modified_time": int64(1)},
			b:    map[string]any{"count": int64(5), "last_modified_time": int64(2)},
			skip: []string{"last_modified_time"},
			want: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ValuesEqual(tt.a, tt.b, tt.skip...))
		})
	}
}

func TestNewRegistry_CapabilityGating(t *testing.T) {
	full := NewRegistry(Capabilities{PlannedExercise: true, PersonalHealthRecord: true})
	for _, rt := range []datatypes.RecordType{
		datatypes.TypeSteps, datatypes.TypeHeartRate, datatypes.TypeExerciseSession,
		datatypes.TypeSkinTemperature, datatypes.TypePlannedExerciseSession,
		datatypes.TypeMedicalResource,
	} {
		_, ok := full.Get(rt)
		assert.True(t, ok, "type %s not registered", rt)
	}

	bare := NewRegistry(Capabilities{})
	_, ok := bare.Get(datatypes.TypePlannedExerciseSession)
	assert.False(t, ok)
	_, ok = bare.Get(datatypes.TypeMedicalResource)
	assert.False(t, ok)
	_, ok = bare.Get(datatypes.TypeSteps)
	assert.True(t, ok)
}

func TestRegistry_AllIsSorted(t *testing.T) {
	all := NewRegistry(Capabilities{PlannedExercise: true, PersonalHealthRecord: true}).All()
	require.Len(t, all, 6)
	for i := 1; i < len(all); i++ {
		assert.Less(t, string(all[i-1].Type()), string(all[i].Type()))
	}
}

func TestExerciseUpsert_PlannedLinkRequiresCapability(t *testing.T) {
	rec := &datatypes.ExerciseSession{PlannedSessionUUID: "plan-1"}

	_, err := exerciseHelper{plannedLink: false}.UpsertValues(rec, 1)
	assert.Error(t, err)

	values, err := exerciseHelper{plannedLink: true}.UpsertValues(rec, 1)
	require.NoError(t, err)
	assert.Equal(t, "plan-1", values[ColPlannedSessionUUID])
}

func TestExerciseUpsert_EmptyLinkStoresNull(t *testing.T) {
	values, err := exerciseHelper{plannedLink: true}.UpsertValues(&datatypes.ExerciseSession{}, 1)
	require.NoError(t, err)

	v, present := values[ColPlannedSessionUUID]
	assert.True(t, present)
	assert.Nil(t, v)
}

func TestMedicalUpsert_DerivesUUID(t *testing.T) {
	rec := &datatypes.MedicalResource{
		Metadata:     datatypes.Metadata{UUID: "caller-chosen"},
		DataSourceID: "src",
		FHIRType:     "Immunization",
		FHIRID:       "imm-1",
		Body:         "{}",
	}

	values, err := medicalHelper{}.UpsertValues(rec, 1)
	require.NoError(t, err)

	want := MedicalResourceUUID("src", "Immunization", "imm-1")
	assert.Equal(t, want, values["uuid"])
	assert.Equal(t, want, rec.Metadata.UUID)
}

func TestPlannedEffects_TargetLinkedSessions(t *testing.T) {
	effects := plannedHelper{}.EffectsOfDelete([]string{"p1", "p2"})
	require.Len(t, effects, 1)
	assert.Equal(t, datatypes.TypeExerciseSession, effects[0].Type)

	assert.Empty(t, plannedHelper{}.EffectsOfDelete(nil))
}

func TestRecordValues_EmptyClientRecordIDIsNull(t *testing.T) {
	meta := &datatypes.Metadata{UUID: "u1"}
	values := recordValues(meta, 3)
	assert.Nil(t, values["client_record_id"])

	meta.ClientRecordID = "run-1"
	assert.Equal(t, "run-1", recordValues(meta, 3)["client_record_id"])
}
