package log

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, ParseLevel("debug"))
	assert.Equal(t, slog.LevelInfo, ParseLevel("info"))
	assert.Equal(t, slog.LevelWarn, ParseLevel("warn"))
	assert.Equal(t, slog.LevelWarn, ParseLevel("WARNING"))
	assert.Equal(t, slog.LevelError, ParseLevel("error"))
	assert.Equal(t, slog.LevelInfo, ParseLevel("bogus"))
}

func TestTextOutput(t *testing.T) {
	var buf bytes.Buffer
	InitWithWriter(&Config{Level: "info", Format: "text"}, &buf)

	Info("deploy started", "repo", "site")

	out := buf.String()
	assert.Contains(t, out, "deploy started")
	assert.Contains(t, out, "repo=site")
}

func TestJSONOutput(t *testing.T) {
	var buf bytes.Buffer
	InitWithWriter(&Config{Level: "debug", Format: "json"}, &buf)

	Debug("token exchanged", "scopes", "repo")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "token exchanged", entry["msg"])
	assert.Equal(t, "repo", entry["scopes"])
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	InitWithWriter(&Config{Level: "warn", Format: "text"}, &buf)

	Info("should not appear")
	Warn("should appear")

	out := buf.String()
	assert.NotContains(t, out, "should not appear")
	assert.Contains(t, out, "should appear")
}
