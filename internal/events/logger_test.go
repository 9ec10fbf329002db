package events_test

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dkrasnove/lockbox/internal/events"
)

func TestLogger_LevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	logger := events.NewTestLogger(events.WarnLevel, "text", &buf)

	logger.Debug("debug message")
	logger.Info("info message")
	logger.Warn("warn message")
	logger.Error("error message")

	output := buf.String()
	assert.NotContains(t, output, "debug message")
	assert.NotContains(t, output, "info message")
	assert.Contains(t, output, "warn message")
	assert.Contains(t, output, "error message")
}

func TestLogger_TextFields(t *testing.T) {
	var buf bytes.Buffer
	logger := events.NewTestLogger(events.DebugLevel, "text", &buf)

	logger.WithField("component", "guard").
		WithField("count", 3).
		Info("Lockout engaged")

	output := buf.String()
	assert.Contains(t, output, "[INFO]")
	assert.Contains(t, output, "Lockout engaged")
	assert.Contains(t, output, "component=guard")
	assert.Contains(t, output, "count=3")
}

func TestLogger_JSONFormat(t *testing.T) {
	var buf bytes.Buffer
	logger := events.NewTestLogger(events.DebugLevel, "json", &buf)

	logger.WithFields(map[string]interface{}{
		"service": "session",
		"size":    42,
	}).Warn("something odd")

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))

	assert.Equal(t, "warn", entry["level"])
	assert.Equal(t, "something odd", entry["msg"])
	assert.Equal(t, "session", entry["service"])
	assert.Equal(t, float64(42), entry["size"])
	assert.NotEmpty(t, entry["time"])
}

func TestLogger_WithFieldsDoesNotMutateParent(t *testing.T) {
	var buf bytes.Buffer
	parent := events.NewTestLogger(events.DebugLevel, "text", &buf)

	child := parent.WithField("child_only", "yes")
	parent.Info("from parent")
	child.Info("from child")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	assert.NotContains(t, lines[0], "child_only")
	assert.Contains(t, lines[1], "child_only=yes")
}

func TestLogger_WithError(t *testing.T) {
	var buf bytes.Buffer
	logger := events.NewTestLogger(events.DebugLevel, "text", &buf)

	logger.WithError(errors.New("boom")).Error("operation failed")

	assert.Contains(t, buf.String(), "error=boom")
}
