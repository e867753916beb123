package logging

import (
	"testing"

	"github.com/giygas/cycletracker/config"
)

// ResetForTest installs a fresh global logger writing to logDir and closes it when the test ends
func ResetForTest(t *testing.T, logDir string, env config.Environment, level string, retentionWeeks int, maxFileSize int64) {
	t.Helper()
	if err := InitLoggerWithRetentionAndSize(logDir, env, level, retentionWeeks, maxFileSize); err != nil {
		t.Fatalf("Failed to init logger: %v", err)
	}
	t.Cleanup(func() { _ = Close() })
}
