package telemetry

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/fyrsmithlabs/ragstore/internal/config"
)

func TestNew_Disabled(t *testing.T) {
	tel, err := New(context.Background(), NewDefaultConfig(), nil)
	require.NoError(t, err)

	assert.NotNil(t, tel.Tracer("test"))
	assert.NotNil(t, tel.Meter("test"))
	assert.False(t, tel.IsEnabled())
	assert.Equal(t, HealthStatus{Healthy: true}, tel.Health())
}

func TestNew_InvalidConfig(t *testing.T) {
	tel, err := New(context.Background(), &Config{Enabled: true}, nil)
	require.Error(t, err)
	assert.Nil(t, tel)
	assert.Contains(t, err.Error(), "invalid telemetry config")
}

func TestTelemetry_NilSafe(t *testing.T) {
	var tel *Telemetry

	assert.NotPanics(t, func() {
		_ = tel.Tracer("test")
		_ = tel.Meter("test")
		_ = tel.LoggerProvider()
		tel.SetLoggerProvider(nil)
		_ = tel.IsEnabled()
		_ = tel.Shutdown(context.Background())
		_ = tel.ForceFlush(context.Background())
	})
	assert.Equal(t, HealthStatus{Healthy: false, Degraded: true}, tel.Health())
}

func TestTelemetry_Shutdown(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.Shutdown.Timeout = config.Duration(100 * time.Millisecond)

	tel, err := New(context.Background(), cfg, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	require.NoError(t, tel.Shutdown(ctx))
	assert.False(t, tel.Health().Healthy)
}

func TestTestTelemetry_Spans(t *testing.T) {
	tt := NewTestTelemetry()
	ctx := context.Background()

	_, span := tt.Tracer("test").Start(ctx, "vectorstore.sqlite.Search")
	span.SetAttributes(
		attribute.String("collection", "short_term"),
		attribute.Int("query_count", 2),
		attribute.Bool("degraded", false),
	)
	span.End()
	_, other := tt.Tracer("test").Start(ctx, "vectorstore.sqlite.Add")
	other.End()

	tt.AssertSpanExists(t, "vectorstore.sqlite.Search")
	tt.AssertSpanAttribute(t, "vectorstore.sqlite.Search", "collection", "short_term")
	tt.AssertSpanAttribute(t, "vectorstore.sqlite.Search", "query_count", int64(2))
	tt.AssertSpanAttribute(t, "vectorstore.sqlite.Search", "degraded", false)
	assert.Equal(t, []string{"vectorstore.sqlite.Search", "vectorstore.sqlite.Add"}, tt.SpanNames())

	_, ok := tt.SpanByName("missing")
	assert.False(t, ok)

	tt.Reset()
	assert.Empty(t, tt.Spans())
}

func TestTestTelemetry_Metrics(t *testing.T) {
	tt := NewTestTelemetry()
	ctx := context.Background()

	counter, err := tt.Meter("test").Int64Counter("ragstore.test.calls")
	require.NoError(t, err)
	counter.Add(ctx, 3)

	m, ok := tt.MetricByName(ctx, "ragstore.test.calls")
	require.True(t, ok)
	sum, ok := m.Data.(metricdata.Sum[int64])
	require.True(t, ok)
	require.Len(t, sum.DataPoints, 1)
	assert.Equal(t, int64(3), sum.DataPoints[0].Value)

	_, ok = tt.MetricByName(ctx, "ragstore.test.missing")
	assert.False(t, ok)
	assert.NoError(t, tt.ForceFlush(ctx))
}

func TestTestTelemetry_Install(t *testing.T) {
	prev := otel.GetTracerProvider()
	tt := NewTestTelemetry()

	t.Run("installed", func(t *testing.T) {
		tt.Install(t)
		_, span := otel.Tracer("global").Start(context.Background(), "through.global")
		span.End()
	})

	tt.AssertSpanExists(t, "through.global")
	assert.Equal(t, prev, otel.GetTracerProvider())
}
