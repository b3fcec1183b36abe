package logctx

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLoggerFansOut(t *testing.T) {
	var console, file bytes.Buffer

	logger := NewLogger(Options{Level: slog.LevelInfo, Format: "json", Writers: []io.Writer{&console, &file}})
	logger.Info("artifact verified", "artifact", "ae.safetensors")
	logger.Debug("hidden")

	for _, buf := range []*bytes.Buffer{&console, &file} {
		var entry map[string]any
		require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
		assert.Equal(t, "artifact verified", entry["msg"])
		assert.Equal(t, "ae.safetensors", entry["artifact"])
	}
}

func TestNewLoggerTextFormat(t *testing.T) {
	var buf bytes.Buffer

	logger := NewLogger(Options{Level: slog.LevelDebug, Format: "text", Writers: []io.Writer{&buf}})
	logger.DebugContext(context.Background(), "probe", "size", 10)

	assert.True(t, strings.Contains(buf.String(), "msg=probe"))
	assert.True(t, strings.Contains(buf.String(), "size=10"))
}

func TestRunLogFiles(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "logs")

	latest, err := LatestRunLog(dir, "modelfetch")
	require.NoError(t, err)
	assert.Empty(t, latest)

	first, err := OpenRunLog(dir, "modelfetch", time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC))
	require.NoError(t, err)
	require.NoError(t, first.Close())

	second, err := OpenRunLog(dir, "modelfetch", time.Date(2025, 1, 3, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	require.NoError(t, second.Close())

	assert.Equal(t, filepath.Join(dir, "modelfetch_20250102-030405.log"), first.Name())

	latest, err = LatestRunLog(dir, "modelfetch")
	require.NoError(t, err)
	assert.Equal(t, second.Name(), latest)
}

func TestLoggerFromContextDefault(t *testing.T) {
	assert.Equal(t, slog.Default(), LoggerFromContext(context.Background()))

	logger := slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))
	assert.Equal(t, logger, LoggerFromContext(WithLogger(context.Background(), logger)))
}
