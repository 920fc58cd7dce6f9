package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/fyrsmithlabs/ragstore/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func newBufferLogger(t *testing.T, mutate func(*Config)) (*Logger, *bytes.Buffer) {
	t.Helper()
	var buf bytes.Buffer
	cfg := NewDefaultConfig()
	cfg.Output.Writer = &buf
	cfg.Sampling.Enabled = false
	if mutate != nil {
		mutate(cfg)
	}
	logger, err := NewLogger(cfg, nil)
	require.NoError(t, err)
	return logger, &buf
}

func decodeLines(t *testing.T, buf *bytes.Buffer) []map[string]interface{} {
	t.Helper()
	var out []map[string]interface{}
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		var m map[string]interface{}
		require.NoError(t, json.Unmarshal([]byte(line), &m), line)
		out = append(out, m)
	}
	return out
}

func TestNewLogger_JSON(t *testing.T) {
	logger, buf := newBufferLogger(t, nil)

	ctx := WithCollection(context.Background(), "short_term")
	ctx = WithRequestID(ctx, "req-42")
	logger.Info(ctx, "documents added", zap.Int("count", 3))
	logger.Debug(ctx, "filtered out")

	lines := decodeLines(t, buf)
	require.Len(t, lines, 1)
	entry := lines[0]
	assert.Equal(t, "info", entry["level"])
	assert.Equal(t, "documents added", entry["msg"])
	assert.Equal(t, "ragstore", entry["service"])
	assert.Equal(t, "short_term", entry["collection"])
	assert.Equal(t, "req-42", entry["request.id"])
	assert.Equal(t, float64(3), entry["count"])
	assert.Contains(t, entry["caller"], "logger_test.go")
}

func TestNewLogger_TraceLevel(t *testing.T) {
	logger, buf := newBufferLogger(t, func(c *Config) { c.Level = TraceLevel })

	logger.Trace(context.Background(), "vector encoded", zap.Int("dims", 384))

	lines := decodeLines(t, buf)
	require.Len(t, lines, 1)
	assert.Equal(t, "trace", lines[0]["level"])
	assert.True(t, logger.Enabled(TraceLevel))
}

func TestNewLogger_Console(t *testing.T) {
	logger, buf := newBufferLogger(t, func(c *Config) { c.Format = "console" })

	logger.Warn(context.Background(), "search degraded")
	assert.Contains(t, buf.String(), "warn")
	assert.Contains(t, buf.String(), "search degraded")
}

func TestNewLogger_InvalidConfig(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"format", func(c *Config) { c.Format = "xml" }, "format must be"},
		{"no output", func(c *Config) { c.Output.Console = false }, "at least one output"},
		{"sampling tick", func(c *Config) { c.Sampling.Tick = 0 }, "sampling tick"},
		{"pattern", func(c *Config) { c.Redaction.Patterns = []string{"("} }, "invalid redaction pattern"},
		{"empty field", func(c *Config) { c.Fields = map[string]string{"env": ""} }, "empty value"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := NewDefaultConfig()
			tt.mutate(cfg)
			_, err := NewLogger(cfg, nil)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestFromSettings(t *testing.T) {
	cfg, err := FromSettings(config.LoggingConfig{Level: "Debug", Format: "console"})
	require.NoError(t, err)
	assert.Equal(t, zapcore.DebugLevel, cfg.Level)
	assert.Equal(t, "console", cfg.Format)
	assert.False(t, cfg.Output.OTEL)

	cfg, err = FromSettings(config.LoggingConfig{Level: "trace", OTEL: true})
	require.NoError(t, err)
	assert.Equal(t, TraceLevel, cfg.Level)
	assert.True(t, cfg.Output.OTEL)

	_, err = FromSettings(config.LoggingConfig{Level: "loud"})
	assert.Error(t, err)
}

func TestContextFields_Span(t *testing.T) {
	traceID, _ := trace.TraceIDFromHex("4bf92f3577b34da6a3ce929d0e0e4736")
	spanID, _ := trace.SpanIDFromHex("00f067aa0ba902b7")
	sc := trace.NewSpanContext(trace.SpanContextConfig{
		TraceID:    traceID,
		SpanID:     spanID,
		TraceFlags: trace.FlagsSampled,
	})
	ctx := trace.ContextWithSpanContext(context.Background(), sc)

	logger, buf := newBufferLogger(t, nil)
	logger.Info(ctx, "correlated")

	lines := decodeLines(t, buf)
	require.Len(t, lines, 1)
	assert.Equal(t, "4bf92f3577b34da6a3ce929d0e0e4736", lines[0]["trace_id"])
	assert.Equal(t, "00f067aa0ba902b7", lines[0]["span_id"])
	assert.Equal(t, true, lines[0]["trace_sampled"])
}

func TestContextHelpers(t *testing.T) {
	ctx := context.Background()
	assert.Empty(t, CollectionFromContext(ctx))
	assert.Empty(t, RequestIDFromContext(ctx))
	assert.Empty(t, ContextFields(ctx))

	assert.Equal(t, ctx, WithCollection(ctx, ""))

	assert.Panics(t, func() { WithRequestID(ctx, "") })
	assert.Panics(t, func() { WithRequestID(ctx, "has space") })
	assert.Panics(t, func() { WithRequestID(ctx, strings.Repeat("a", maxIDLen+1)) })

	logger := NewTestLogger()
	assert.Same(t, logger.Logger, FromContext(WithLogger(ctx, logger.Logger)))
	assert.NotNil(t, FromContext(ctx))
}

func TestLevelFromString(t *testing.T) {
	tests := map[string]zapcore.Level{
		"trace":  TraceLevel,
		"TRACE":  TraceLevel,
		"debug":  zapcore.DebugLevel,
		" info ": zapcore.InfoLevel,
		"warn":   zapcore.WarnLevel,
		"error":  zapcore.ErrorLevel,
	}
	for in, want := range tests {
		got, err := LevelFromString(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	_, err := LevelFromString("verbose")
	assert.Error(t, err)
}

func TestTestLogger(t *testing.T) {
	logger := NewTestLogger()
	ctx := WithCollection(context.Background(), "entities")

	logger.Warn(ctx, "stored distance space differs", zap.String("stored", "l2"))
	logger.Zap().Info("direct")

	logger.AssertLogged(t, zapcore.WarnLevel, "differs")
	logger.AssertNotLogged(t, zapcore.ErrorLevel, "differs")
	logger.AssertField(t, "differs", "stored", "l2")
	logger.AssertField(t, "differs", "collection", "entities")
	assert.Len(t, logger.All(), 2)

	logger.Reset()
	assert.Empty(t, logger.All())
}
