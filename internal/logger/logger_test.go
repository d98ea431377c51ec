package logger

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func reset(t *testing.T) *bytes.Buffer {
	t.Helper()
	require.NoError(t, Configure("text", "stdout"))
	SetLevel("INFO")
	var buf bytes.Buffer
	SetOutput(&buf)
	t.Cleanup(func() {
		_ = Configure("text", "stdout")
		SetLevel("INFO")
	})
	return &buf
}

func TestLevelFiltering(t *testing.T) {
	buf := reset(t)

	Debug("hidden %d", 1)
	Info("shown %d", 2)
	Error("also shown")

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, "[INFO] shown 2")
	assert.Contains(t, out, "[ERROR] also shown")

	buf.Reset()
	SetLevel("debug")
	Debug("now visible")
	assert.Contains(t, buf.String(), "[DEBUG] now visible")

	buf.Reset()
	SetLevel("bogus")
	Debug("still visible")
	assert.Contains(t, buf.String(), "still visible", "unknown level keeps the current one")
}

func TestJSONFormat(t *testing.T) {
	buf := reset(t)
	require.NoError(t, Configure("json", "stdout"))
	SetOutput(buf)

	Warn("queue depth %d", 7)

	var line map[string]string
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &line))
	assert.Equal(t, "WARN", line["level"])
	assert.Equal(t, "queue depth 7", line["msg"])
	assert.NotEmpty(t, line["time"])
}

func TestFileOutput(t *testing.T) {
	reset(t)
	path := filepath.Join(t.TempDir(), "server.log")

	require.NoError(t, Configure("text", path))
	Info("to file")
	require.NoError(t, Configure("text", "stdout"))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(strings.TrimSpace(string(data)), "[INFO] to file"))
}

func TestConfigureBadPath(t *testing.T) {
	reset(t)
	err := Configure("text", filepath.Join(t.TempDir(), "missing", "dir", "x.log"))
	assert.Error(t, err)
}
