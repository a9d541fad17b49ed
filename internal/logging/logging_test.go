package logging

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"

	"docqa/internal/config"
)

func TestParseLevel(t *testing.T) {
	assert.Equal(t, zapcore.DebugLevel, ParseLevel("debug"))
	assert.Equal(t, zapcore.WarnLevel, ParseLevel("warn"))
	assert.Equal(t, zapcore.ErrorLevel, ParseLevel("error"))
	assert.Equal(t, zapcore.InfoLevel, ParseLevel("verbose"))
}

func TestNew_WritesJSONToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "docqa.log")
	logger := New(config.LoggingConfig{Level: "debug", Format: "json", OutputPaths: []string{path}})
	logger.Debug("hello")
	_ = logger.Sync()

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"msg":"hello"`)
	assert.Contains(t, string(data), `"timestamp"`)
}

func TestNew_BadOutputFallsBack(t *testing.T) {
	logger := New(config.LoggingConfig{OutputPaths: []string{filepath.Join(t.TempDir(), "missing", "dir", "x.log")}})
	assert.NotNil(t, logger)
}
