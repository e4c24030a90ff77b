package installer

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResultHandler_WatchExisting(t *testing.T) {
	rh := NewResultHandler(t.TempDir())
	require.NoError(t, rh.Write(context.Background(), Result{Success: true, Version: "1.2.0"}))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	result, err := rh.Watch(ctx)
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, "1.2.0", result.Version)
	assert.NoFileExists(t, rh.Path())
}

func TestResultHandler_WatchLateWrite(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "results")
	rh := NewResultHandler(dir)

	go func() {
		time.Sleep(500 * time.Millisecond)
		_ = rh.Write(context.Background(), Result{Error: "check failed", Version: "1.2.0"})
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	result, err := rh.Watch(ctx)
	require.NoError(t, err)
	assert.False(t, result.Success)
	assert.Equal(t, "check failed", result.Error)
}

func TestResultHandler_WatchTimeout(t *testing.T) {
	rh := NewResultHandler(t.TempDir())

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	_, err := rh.Watch(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestResultHandler_Cleanup(t *testing.T) {
	rh := NewResultHandler(t.TempDir())
	assert.NoError(t, rh.Cleanup())

	require.NoError(t, rh.Write(context.Background(), Result{Success: true}))
	assert.FileExists(t, rh.Path())
	assert.NoError(t, rh.Cleanup())
	assert.NoFileExists(t, rh.Path())
}
