package logging

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewJSONLoggerSanitizesAttribute(t *testing.T) {
	var buf bytes.Buffer
	log := New(Config{Level: "info", Format: "json", Output: &buf})

	log.Info("leaked key", "api_key", "token=abcdefghijklmnopqrstuvwxyz0123456789")

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	assert.Contains(t, decoded["api_key"], "[REDACTED]")
}

func TestWithTaskAddsStableAttribute(t *testing.T) {
	var buf bytes.Buffer
	log := New(Config{Level: "info", Format: "json", Output: &buf}).WithTask("t-1")

	log.Info("starting")

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	assert.Equal(t, "t-1", decoded["task_id"])
}

func TestOrDefaultsNilToNop(t *testing.T) {
	var l *Logger
	got := Or(l)
	require.NotNil(t, got)
	got.Info("should not panic")
}
