package logging

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func TestConfigureLevels(t *testing.T) {
	t.Cleanup(func() {
		require.NoError(t, Configure("info", nil, "console"))
	})

	New("levels-a")
	New("levels-b")

	require.NoError(t, Configure("warn", map[string]string{"levels-b": "debug"}, "console"))

	assert.Equal(t, zap.WarnLevel, GetLeveler().GetLevel("levels-a"))
	assert.Equal(t, zap.DebugLevel, GetLeveler().GetLevel("levels-b"))
	assert.Equal(t, zap.WarnLevel, GetLeveler().GetLevel("levels-unknown"))

	// pinned loggers keep their level when the default moves
	GetLeveler().SetDefaultLevel(zap.ErrorLevel)
	assert.Equal(t, zap.ErrorLevel, GetLeveler().GetLevel("levels-a"))
	assert.Equal(t, zap.DebugLevel, GetLeveler().GetLevel("levels-b"))
}

func TestConfigureRejectsBadLevel(t *testing.T) {
	assert.Error(t, Configure("loud", nil, "console"))
	assert.Error(t, Configure("info", map[string]string{"x": "loud"}, "console"))
}

func TestNewLoggerIsNamed(t *testing.T) {
	l := New("named")
	assert.Equal(t, "named", l.Desugar().Name())
}

func TestConfigureEncodingReachesExistingLoggers(t *testing.T) {
	var buf bytes.Buffer
	prev := output.setOutput(zapcore.AddSync(&buf))
	t.Cleanup(func() {
		output.setOutput(prev)
		require.NoError(t, Configure("info", nil, "console"))
	})

	early := New("early")
	withField := early.With(zap.String("bot", "Puck"))

	require.NoError(t, Configure("info", nil, "json"))
	early.Info("hello")
	withField.Infow("started", "ticks", 3)

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)

	var first map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &first))
	assert.Equal(t, "hello", first["msg"])
	assert.Equal(t, "early", first["logger"])
	assert.Equal(t, "info", first["level"])

	var second map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[1]), &second))
	assert.Equal(t, "Puck", second["bot"])
	assert.Equal(t, 3.0, second["ticks"])

	buf.Reset()
	require.NoError(t, Configure("info", nil, "console"))
	early.Info("plain")
	assert.False(t, json.Valid(bytes.TrimSpace(buf.Bytes())))
	assert.Contains(t, buf.String(), "\tearly\t")
}

func TestLevelStillFiltersThroughSharedSink(t *testing.T) {
	var buf bytes.Buffer
	prev := output.setOutput(zapcore.AddSync(&buf))
	t.Cleanup(func() {
		output.setOutput(prev)
		require.NoError(t, Configure("info", nil, "console"))
	})

	l := New("filtered")
	require.NoError(t, Configure("info", map[string]string{"filtered": "warn"}, "json"))
	l.Info("dropped")
	l.Warn("kept")

	assert.NotContains(t, buf.String(), "dropped")
	assert.Contains(t, buf.String(), `"msg":"kept"`)
}
