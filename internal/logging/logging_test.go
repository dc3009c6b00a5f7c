package logging

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"

	"github.com/alexanderjulianmartinez/quality-watch/internal/config"
)

func TestNew(t *testing.T) {
	for _, format := range []string{"json", "console"} {
		logger, err := New(config.LogConfig{Level: "warn", Format: format})
		require.NoError(t, err)
		assert.False(t, logger.Core().Enabled(zapcore.InfoLevel))
		assert.True(t, logger.Core().Enabled(zapcore.WarnLevel))
	}
}

func TestNew_BadLevel(t *testing.T) {
	_, err := New(config.LogConfig{Level: "loud", Format: "json"})
	assert.Error(t, err)
}
