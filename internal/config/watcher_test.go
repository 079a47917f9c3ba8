package config

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDriftWatcher_StartStop(t *testing.T) {
	tempDir := t.TempDir()

	w := NewDriftWatcher(tempDir)
	require.NoError(t, w.Start())
	assert.True(t, w.IsRunning())

	// Starting twice is a no-op.
	require.NoError(t, w.Start())
	assert.True(t, w.IsRunning())

	require.NoError(t, w.Stop())
	assert.False(t, w.IsRunning())

	// Stopping twice is a no-op.
	require.NoError(t, w.Stop())
}

func TestDriftWatcher_NoWatchablePaths(t *testing.T) {
	w := NewDriftWatcher(filepath.Join(t.TempDir(), "does-not-exist"))
	require.NoError(t, w.Start())
	assert.False(t, w.IsRunning(), "watcher should stay inactive when nothing can be watched")
	require.NoError(t, w.Stop())
}
