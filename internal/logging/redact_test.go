package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/fyrsmithlabs/ragstore/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func TestRedaction_CallSiteFields(t *testing.T) {
	logger, buf := newBufferLogger(t, nil)

	logger.Info(context.Background(), "provider ready",
		zap.String("api_key", "sk-abcdefghijkl"),
		zap.String("Authorization", "Bearer abc"),
		zap.String("note", "header was Bearer xyz123"),
		zap.String("model", "text-embedding-3-small"),
		zap.Any("token", map[string]string{"k": "v"}),
	)

	lines := decodeLines(t, buf)
	require.Len(t, lines, 1)
	entry := lines[0]
	assert.Equal(t, "[REDACTED]", entry["api_key"])
	assert.Equal(t, "[REDACTED]", entry["Authorization"])
	assert.Equal(t, "[REDACTED:pattern]", entry["note"])
	assert.Equal(t, "text-embedding-3-small", entry["model"])
	assert.Equal(t, "[REDACTED]", entry["token"])
	assert.NotContains(t, buf.String(), "sk-abcdefghijkl")
}

func TestRedaction_WithFields(t *testing.T) {
	logger, buf := newBufferLogger(t, nil)

	child := logger.With(zap.String("secret", "hunter2"), zap.String("backend", "qdrant"))
	child.Info(context.Background(), "connected")

	lines := decodeLines(t, buf)
	require.Len(t, lines, 1)
	assert.Equal(t, "[REDACTED]", lines[0]["secret"])
	assert.Equal(t, "qdrant", lines[0]["backend"])
}

func TestRedaction_Message(t *testing.T) {
	logger, buf := newBufferLogger(t, nil)

	logger.Warn(context.Background(), "request failed with api_key=sk-zzzzzzzzzzzz")

	lines := decodeLines(t, buf)
	require.Len(t, lines, 1)
	assert.NotContains(t, lines[0]["msg"], "sk-zzzzzzzzzzzz")
	assert.Contains(t, lines[0]["msg"], "[REDACTED]")
}

func TestRedaction_Disabled(t *testing.T) {
	logger, buf := newBufferLogger(t, func(c *Config) { c.Redaction.Enabled = false })

	logger.Info(context.Background(), "raw", zap.String("api_key", "visible"))

	lines := decodeLines(t, buf)
	require.Len(t, lines, 1)
	assert.Equal(t, "visible", lines[0]["api_key"])
}

func TestSecretField(t *testing.T) {
	f := Secret("qdrant_api_key", config.Secret("0123456789"))
	assert.Equal(t, zapcore.StringType, f.Type)
	assert.Equal(t, "[REDACTED:10]", f.String)

	f = RedactedString("password", "abc")
	assert.Equal(t, "[REDACTED:3]", f.String)
}

func TestRedactor_FieldsLeavesInputAlone(t *testing.T) {
	r, err := newRedactor(NewDefaultConfig().Redaction)
	require.NoError(t, err)

	in := []zapcore.Field{zap.String("model", "m"), zap.String("password", "p")}
	out := r.fields(in)

	assert.Equal(t, "p", in[1].String)
	assert.Equal(t, "[REDACTED]", out[1].String)
	assert.Equal(t, "m", out[0].String)

	clean := []zapcore.Field{zap.Int("n", 1)}
	assert.Equal(t, clean, r.fields(clean))

	var nilRedactor *redactor
	assert.Equal(t, in, nilRedactor.fields(in))
	assert.Equal(t, "msg", nilRedactor.message("msg"))
}

func TestRedactingEncoder_WithAndClone(t *testing.T) {
	enc, err := NewRedactingEncoder(zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig()), NewDefaultConfig().Redaction)
	require.NoError(t, err)

	var buf bytes.Buffer
	core := zapcore.NewCore(enc, zapcore.AddSync(&buf), zapcore.InfoLevel)
	child := zap.New(core).With(
		zap.String("password", "hunter2"),
		zap.String("note", "Bearer abc123"),
		zap.Binary("secret", []byte("raw")),
		zap.String("collection", "short_term"),
	)
	child.Info("saved", zap.String("api_key", "sk-abcdefghijkl"))

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "[REDACTED]", entry["password"])
	assert.Equal(t, "[REDACTED:pattern]", entry["note"])
	assert.Equal(t, "[REDACTED]", entry["secret"])
	assert.Equal(t, "[REDACTED]", entry["api_key"])
	assert.Equal(t, "short_term", entry["collection"])
	assert.NotContains(t, buf.String(), "hunter2")

	_, ok := enc.Clone().(*RedactingEncoder)
	assert.True(t, ok)

	_, err = NewRedactingEncoder(zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig()), RedactionConfig{
		Enabled:  true,
		Patterns: []string{"("},
	})
	assert.Error(t, err)
}
