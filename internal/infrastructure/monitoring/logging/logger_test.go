package logging

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest"
)

// newTestLogger creates a logger writing to a buffer for verification.
func newTestLogger(t *testing.T) (Logger, *zaptest.Buffer) {
	t.Helper()
	buf := &zaptest.Buffer{}
	encoderConfig := zap.NewProductionEncoderConfig()
	encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	encoder := zapcore.NewJSONEncoder(encoderConfig)
	core := zapcore.NewCore(encoder, buf, zapcore.DebugLevel)
	return &zapLogger{z: zap.New(core), level: zap.NewAtomicLevelAt(zapcore.DebugLevel)}, buf
}

func TestNewLogger_JSONFormat(t *testing.T) {
	l, err := NewLogger(LogConfig{Level: "info", Format: "json"})
	require.NoError(t, err)
	assert.NotNil(t, l)
}

func TestNewLogger_ConsoleFormat(t *testing.T) {
	l, err := NewLogger(LogConfig{Level: "debug", Format: "console"})
	require.NoError(t, err)
	assert.NotNil(t, l)
}

func TestLogger_FieldsAppearInOutput(t *testing.T) {
	l, buf := newTestLogger(t)

	l.Info("item indexed",
		String("toot_id", "1234"),
		Int("aspects", 3),
		Float64("score", 0.87),
		Bool("mirrored", false),
		Duration("took", 120*time.Millisecond),
	)

	out := buf.String()
	assert.Contains(t, out, `"msg":"item indexed"`)
	assert.Contains(t, out, `"toot_id":"1234"`)
	assert.Contains(t, out, `"aspects":3`)
	assert.Contains(t, out, `"score":0.87`)
	assert.Contains(t, out, `"mirrored":false`)
}

func TestLogger_ErrField(t *testing.T) {
	l, buf := newTestLogger(t)

	l.Error("index failed", Err(errors.New("503 from store")))
	assert.Contains(t, buf.String(), `"error":"503 from store"`)

	buf.Reset()
	l.Warn("no cause", Err(nil))
	assert.Contains(t, buf.String(), `"error":"<nil>"`)
}

func TestLogger_WithAddsPersistentFields(t *testing.T) {
	l, buf := newTestLogger(t)

	child := l.With(String("component", "consumer"))
	child.Info("started")

	assert.Contains(t, buf.String(), `"component":"consumer"`)
}

func TestLogger_Named(t *testing.T) {
	l, buf := newTestLogger(t)

	l.Named("worker").Info("up")
	assert.Contains(t, buf.String(), `"worker"`)
}

func TestNopLogger_AllMethodsNoOp(t *testing.T) {
	l := NewNopLogger()
	l.Debug("msg")
	l.Info("msg")
	l.Warn("msg")
	l.Error("msg")
	assert.NotNil(t, l.With(String("k", "v")))
	assert.NotNil(t, l.Named("x"))
}

func TestDefault_SetAndGet(t *testing.T) {
	orig := Default()
	defer SetDefault(orig)

	l, _ := newTestLogger(t)
	SetDefault(l)
	assert.Equal(t, l, Default())

	SetDefault(nil)
	assert.Equal(t, l, Default(), "nil must not replace the default")
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, zapcore.DebugLevel, parseLevel("debug"))
	assert.Equal(t, zapcore.WarnLevel, parseLevel("WARN"))
	assert.Equal(t, zapcore.ErrorLevel, parseLevel("error"))
	assert.Equal(t, zapcore.InfoLevel, parseLevel("bogus"))
}
