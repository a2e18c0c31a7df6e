package logger

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func TestInit(t *testing.T) {
	require.NoError(t, Init("debug", "json"))
	assert.Equal(t, zapcore.DebugLevel, Level())
	assert.NotNil(t, L())

	require.NoError(t, SetLevel("warn"))
	assert.Equal(t, zapcore.WarnLevel, Level())
	assert.False(t, L().Core().Enabled(zapcore.InfoLevel))

	require.NoError(t, Init("info", "console"))
	assert.Equal(t, zapcore.InfoLevel, Level())
}

func TestInit_Rejects(t *testing.T) {
	assert.Error(t, Init("loud", "json"))
	assert.Error(t, Init("info", "xml"))
}

func TestOrNop(t *testing.T) {
	assert.NotNil(t, OrNop(nil))
	l := Named("verifier")
	assert.Same(t, l, OrNop(l))
}
