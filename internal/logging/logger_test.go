package logging

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"

	"github.com/mikey/mailpilot/internal/config"
)

func TestParseLevel(t *testing.T) {
	assert.Equal(t, zapcore.DebugLevel, parseLevel("debug"))
	assert.Equal(t, zapcore.WarnLevel, parseLevel("WARN"))
	assert.Equal(t, zapcore.InfoLevel, parseLevel("chatty"))
}

func TestInitLogger(t *testing.T) {
	v := config.NewEmptyViper()
	v.Set("logging.level", "error")
	v.Set("logging.fields", map[string]string{"instance": "eu-1"})

	logger, err := InitLogger(config.NewFromViper(v))
	require.NoError(t, err)
	assert.False(t, logger.Core().Enabled(zapcore.WarnLevel))
	assert.True(t, logger.Core().Enabled(zapcore.ErrorLevel))
}

func TestInitConsoleLogger(t *testing.T) {
	quiet, err := InitConsoleLogger(false, true)
	require.NoError(t, err)
	assert.False(t, quiet.Core().Enabled(zapcore.DebugLevel))

	verbose, err := InitConsoleLogger(true, false)
	require.NoError(t, err)
	assert.True(t, verbose.Core().Enabled(zapcore.DebugLevel))
}
