package datatypes

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRecordType(t *testing.T) {
	for _, rt := range AllTypes() {
		got, err := ParseRecordType(string(rt))
		require.NoError(t, err)
		assert.Equal(t, rt, got)
	}

	_, err := ParseRecordType("blood_pressure")
	assert.Error(t, err)
	_, err = ParseRecordType("")
	assert.Error(t, err)
}

func TestAllTypes_Sorted(t *testing.T) {
	types := AllTypes()
	require.Len(t, types, 6)
	for i := 1; i < len(types); i++ {
		assert.Less(t, types[i-1], types[i])
	}
}
