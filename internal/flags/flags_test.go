package flags

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	fl := Default()

	assert.True(t, fl.Enabled(PlannedExercise))
	assert.True(t, fl.Enabled(PersonalHealthRecord))
	assert.False(t, fl.Enabled(DevSchema))
}

func TestSetEnabled(t *testing.T) {
	fl := Default()

	fl.SetEnabled(PlannedExercise, false)
	assert.False(t, fl.Enabled(PlannedExercise))

	fl.SetEnabled(DevSchema, true)
	assert.True(t, fl.Enabled(DevSchema))
}

func TestEnabled_UnknownFlagIsOff(t *testing.T) {
	assert.False(t, Default().Enabled(Flag("no_such_flag")))
}

func TestLoadFile_MergesOverDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "flags.yaml")
	require.NoError(t, os.WriteFile(path, []byte("planned_exercise: false\ndev_schema: true\n"), 0o600))

	fl := Default()
	require.NoError(t, fl.LoadFile(path))

	assert.False(t, fl.Enabled(PlannedExercise))
	assert.True(t, fl.Enabled(DevSchema))
	// Flags absent from the file keep their defaults.
	assert.True(t, fl.Enabled(PersonalHealthRecord))
}

func TestLoadFile_Errors(t *testing.T) {
	fl := Default()

	assert.Error(t, fl.LoadFile(filepath.Join(t.TempDir(), "missing.yaml")))

	bad := filepath.Join(t.TempDir(), "flags.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("planned_exercise: [not, a, bool]\n"), 0o600))
	assert.Error(t, fl.LoadFile(bad))
	// Failed loads leave state untouched.
	assert.True(t, fl.Enabled(PlannedExercise))
}

func TestWatch_ReloadsOnWrite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "flags.yaml")
	require.NoError(t, os.WriteFile(path, []byte("dev_schema: false\n"), 0o600))

	fl := Default()
	reloaded := make(chan struct{}, 1)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() {
		done <- Watch(ctx, path, fl, func() {
			select {
			case reloaded <- struct{}{}:
			default:
			}
		})
	}()

	// Give the watcher a moment to attach before the write.
	time.Sleep(100 * time.Millisecond)
	require.NoError(t, os.WriteFile(path, []byte("dev_schema: true\n"), 0o600))

	select {
	case <-reloaded:
	case <-time.After(5 * time.Second):
		t.Fatal("flag file write never triggered a reload")
	}
	assert.True(t, fl.Enabled(DevSchema))

	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)
}
