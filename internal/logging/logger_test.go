package logging

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/siddhiyadav363/Ecourt-Cause-List-WebScrapping/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func TestBuildJSONConsole(t *testing.T) {
	buf := new(bytes.Buffer)
	logger, err := build(config.LoggingConfig{Level: "debug", Format: "json"}, "fetcher", zapcore.AddSync(buf))
	require.NoError(t, err)

	logger.Debug("session created", zap.String("session_id", "abc"))
	require.NoError(t, logger.Sync())

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &entry))
	assert.Equal(t, "DEBUG", entry["level"])
	assert.Equal(t, "fetcher", entry["logger"])
	assert.Equal(t, "abc", entry["session_id"])
}

func TestBuildInvalidLevelFallsBackToInfo(t *testing.T) {
	buf := new(bytes.Buffer)
	logger, err := build(config.LoggingConfig{Level: "chatty", Format: "json"}, "", zapcore.AddSync(buf))
	require.NoError(t, err)

	logger.Debug("hidden")
	logger.Info("shown")
	_ = logger.Sync()

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, "shown")
}

func TestBuildWritesFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "logs", "fetcher.log")
	logger, err := build(config.LoggingConfig{Level: "info", Format: "console", File: path, MaxSizeMB: 1}, "fetcher", zapcore.AddSync(new(bytes.Buffer)))
	require.NoError(t, err)

	logger.Info("handle released", zap.String("session_id", "s-1"))
	_ = logger.Sync()

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(raw), `"session_id":"s-1"`))
}
