package logger

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"animehub/internal/core/config"
)

func TestNew_UnknownLevelFallsBackToInfo(t *testing.T) {
	l, cleanup := New("loud", true)
	defer cleanup()

	assert.True(t, l.Core().Enabled(zapcore.InfoLevel))
	assert.False(t, l.Core().Enabled(zapcore.DebugLevel))
}

func TestFromConfig_WritesRotatedFile(t *testing.T) {
	file := filepath.Join(t.TempDir(), "app.log")
	l, cleanup := FromConfig(config.Log{
		Level: "debug",
		JSON:  true,
		Rotate: config.LogRotate{
			Enable:    true,
			Filename:  file,
			MaxSizeMB: 1,
		},
	})
	l.Info("session issued", zap.String("user_id", "u1"))
	cleanup()

	b, err := os.ReadFile(file)
	require.NoError(t, err)
	assert.Contains(t, string(b), `"user_id":"u1"`)
}
