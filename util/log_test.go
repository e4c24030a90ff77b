package util

import (
	"context"
	"path/filepath"
	"testing"

	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitLog(t *testing.T) {
	t.Cleanup(func() {
		log.SetLevel(log.InfoLevel)
	})

	require.NoError(t, InitLog("debug", filepath.Join(t.TempDir(), "updater.log")))
	assert.Equal(t, log.DebugLevel, log.GetLevel())

	assert.Error(t, InitLog("loud", "console"))
}

func TestCustomFormatter_ProcessID(t *testing.T) {
	f := &CustomFormatter{log.TextFormatter{DisableTimestamp: true}}
	entry := log.WithContext(WithProcessID(context.Background(), "abc-123"))
	entry.Message = "checking"

	out, err := f.Format(entry)
	require.NoError(t, err)
	assert.Contains(t, string(out), "process=abc-123")
}
