package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSlogLoggerLevels(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	log := NewSlogLogger(&buf, LogLevelInfo, time.UTC)

	log.Debug("hidden")
	log.Info("visible", String("camera", "0"), Int("tenant_id", 7))

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, "visible")
	assert.Contains(t, out, "camera=0")
	assert.Contains(t, out, "tenant_id=7")
}

func TestTraceLevelRendersAsTrace(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	log := NewSlogLogger(&buf, LogLevelTrace, time.UTC)
	log.Trace("per-frame")

	assert.Contains(t, buf.String(), "level=TRACE")
}

func TestModuleAndWithFields(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	base := NewSlogLogger(&buf, LogLevelDebug, time.UTC).Module("session")
	child := base.Module("ws").With(String("session_id", "abc"))

	child.Info("opened")
	base.Info("parent")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], "module=session.ws")
	assert.Contains(t, lines[0], "session_id=abc")
	assert.NotContains(t, lines[1], "session_id")
}

func TestWithContextAddsTraceID(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	log := NewSlogLogger(&buf, LogLevelInfo, time.UTC)

	log.WithContext(WithTraceID(context.Background(), "sess-1")).Info("frame")
	log.WithContext(context.Background()).Info("no trace")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], "trace_id=sess-1")
	assert.NotContains(t, lines[1], "trace_id")
}

func TestCentralLoggerModuleFile(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	modulePath := filepath.Join(dir, "session.log")

	cl, err := NewCentralLogger(&LoggingConfig{
		DefaultLevel: "debug",
		Timezone:     "UTC",
		Console:      &ConsoleOutput{Enabled: false},
		FileOutput:   &FileOutput{Enabled: true, Path: filepath.Join(dir, "main.log"), Level: "info"},
		ModuleOutputs: map[string]ModuleOutput{
			"session":   {Enabled: true, FilePath: modulePath, Level: "debug"},
			"access":    {Enabled: false},
			"api":       {Enabled: false},
			"datastore": {Enabled: false},
		},
	})
	require.NoError(t, err)

	cl.Module("session").Debug("frame processed", Uint64("seq", 42))
	require.NoError(t, cl.Close())

	data, err := os.ReadFile(modulePath)
	require.NoError(t, err)

	var entry map[string]any
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(data), &entry))
	assert.Equal(t, "frame processed", entry["msg"])
	assert.Equal(t, "session", entry["module"])
	assert.InDelta(t, 42, entry["seq"], 0)
}

func TestNewCentralLoggerRejectsBadTimezone(t *testing.T) {
	t.Parallel()

	_, err := NewCentralLogger(&LoggingConfig{
		Timezone:   "Mars/Olympus",
		Console:    &ConsoleOutput{Enabled: true},
		FileOutput: &FileOutput{Enabled: false},
	})
	require.Error(t, err)
}

func TestBufferedFileWriterCloseIsIdempotent(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "buf.log")
	w, err := NewBufferedFileWriter(path, WithFlushInterval(0))
	require.NoError(t, err)

	_, err = w.Write([]byte("line\n"))
	require.NoError(t, err)
	require.NoError(t, w.Close())
	require.NoError(t, w.Close())

	_, err = w.Write([]byte("late\n"))
	require.Error(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "line\n", string(data))
}

func TestRedactURL(t *testing.T) {
	t.Parallel()

	out := RedactURL("/api/v1/recognition/ws?token=eyJhbGciOiJIUzI1NiJ9.eyJ0aWQiOjF9.c2lnbmF0dXJl&cam_id=0")
	assert.NotContains(t, out, "c2lnbmF0dXJl")
	assert.Contains(t, out, "REDACTED")
	assert.Contains(t, out, "cam_id=0")

	assert.Equal(t, "/api/v1/health", RedactURL("/api/v1/health"))
}

func TestRedactSensitiveData(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "sent Bearer [REDACTED]", RedactSensitiveData("sent Bearer abcdef123456"))
	assert.Equal(t, "omni:[REDACTED]@tcp(db:3306)/omniface", RedactSensitiveData("omni:hunter22@tcp(db:3306)/omniface"))
}

func TestSQLOperation(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "insert", sqlOperation("INSERT INTO `exit_records` ..."))
	assert.Equal(t, "select", sqlOperation("  SELECT * FROM persons"))
	assert.Equal(t, "unknown", sqlOperation(""))
}
