package vectorstore

import (
	"context"
	"errors"
	"fmt"
	"math"
	"os"
	"strconv"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	grpccodes "google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

func TestQdrantConfig_ApplyDefaults(t *testing.T) {
	cfg := QdrantConfig{}
	cfg.ApplyDefaults()

	assert.Equal(t, "localhost", cfg.Host)
	assert.Equal(t, 6334, cfg.Port)
	assert.Equal(t, SpaceCosine, cfg.Distance)
	assert.Equal(t, 3, cfg.MaxRetries)
	assert.Equal(t, time.Second, cfg.RetryBackoff)
	assert.Equal(t, 50*1024*1024, cfg.MaxMessageSize)
	assert.Equal(t, 5, cfg.CircuitBreakerThreshold)
}

func TestQdrantConfig_Validate(t *testing.T) {
	valid := QdrantConfig{Host: "localhost", Port: 6334, CollectionName: "docs", Distance: SpaceCosine}

	tests := []struct {
		name    string
		mutate  func(*QdrantConfig)
		wantErr error
	}{
		{name: "valid", mutate: func(*QdrantConfig) {}},
		{name: "no host", mutate: func(c *QdrantConfig) { c.Host = "" }, wantErr: ErrInvalidConfig},
		{name: "bad port", mutate: func(c *QdrantConfig) { c.Port = 70000 }, wantErr: ErrInvalidConfig},
		{name: "bad collection", mutate: func(c *QdrantConfig) { c.CollectionName = "a/b" }, wantErr: ErrInvalidCollectionName},
		{name: "bad distance", mutate: func(c *QdrantConfig) { c.Distance = "jaccard" }, wantErr: ErrInvalidConfig},
		{name: "negative retries", mutate: func(c *QdrantConfig) { c.MaxRetries = -1 }, wantErr: ErrInvalidConfig},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestIsTransientError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{name: "nil", err: nil, want: false},
		{name: "plain error", err: errors.New("boom"), want: false},
		{name: "unavailable", err: status.Error(grpccodes.Unavailable, "down"), want: true},
		{name: "deadline", err: status.Error(grpccodes.DeadlineExceeded, "slow"), want: true},
		{name: "aborted", err: status.Error(grpccodes.Aborted, "conflict"), want: true},
		{name: "exhausted", err: status.Error(grpccodes.ResourceExhausted, "busy"), want: true},
		{name: "invalid argument", err: status.Error(grpccodes.InvalidArgument, "bad"), want: false},
		{name: "not found", err: status.Error(grpccodes.NotFound, "gone"), want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsTransientError(tt.err))
		})
	}
}

func newOfflineQdrantStore(t *testing.T) *QdrantStore {
	t.Helper()
	store, err := NewQdrantStore(QdrantConfig{
		CollectionName:          "offline",
		MaxRetries:              2,
		RetryBackoff:            time.Millisecond,
		CircuitBreakerThreshold: 2,
	}, &conceptEmbedder{}, zaptest.NewLogger(t))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestQdrantStore_RetryOperation(t *testing.T) {
	ctx := context.Background()

	t.Run("permanent error is not retried", func(t *testing.T) {
		store := newOfflineQdrantStore(t)
		calls := 0
		err := store.retryOperation(ctx, "op", func() error {
			calls++
			return status.Error(grpccodes.InvalidArgument, "bad")
		})
		assert.Error(t, err)
		assert.Equal(t, 1, calls)
	})

	t.Run("transient error recovers", func(t *testing.T) {
		store := newOfflineQdrantStore(t)
		calls := 0
		err := store.retryOperation(ctx, "op", func() error {
			calls++
			if calls < 2 {
				return status.Error(grpccodes.Unavailable, "down")
			}
			return nil
		})
		assert.NoError(t, err)
		assert.Equal(t, 2, calls)
		assert.False(t, store.isCircuitOpen())
	})

	t.Run("circuit opens after threshold", func(t *testing.T) {
		store := newOfflineQdrantStore(t)
		calls := 0
		err := store.retryOperation(ctx, "op", func() error {
			calls++
			return status.Error(grpccodes.Unavailable, "down")
		})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "circuit breaker open")
		assert.Equal(t, 2, calls)

		err = store.retryOperation(ctx, "op", func() error {
			t.Fatal("operation must not run while the circuit is open")
			return nil
		})
		assert.Error(t, err)
	})

	t.Run("canceled context stops retries", func(t *testing.T) {
		store := newOfflineQdrantStore(t)
		store.config.RetryBackoff = time.Hour
		cctx, cancel := context.WithCancel(ctx)
		cancel()
		err := store.retryOperation(cctx, "op", func() error {
			return status.Error(grpccodes.Unavailable, "down")
		})
		assert.ErrorIs(t, err, context.Canceled)
	})
}

func TestQdrantStore_NotInitialized(t *testing.T) {
	store := newOfflineQdrantStore(t)

	err := store.Add(context.Background(), []string{"x"}, nil, nil)
	assert.ErrorIs(t, err, ErrWriteFailed)
	assert.ErrorIs(t, err, ErrNotInitialized)

	out := store.Search(context.Background(), []string{"x", "y"}, 1, nil)
	require.Len(t, out, 2)
	for _, qr := range out {
		assert.ErrorIs(t, qr.Err, ErrReadDegraded)
		assert.ErrorIs(t, qr.Err, ErrNotInitialized)
	}
}

func TestPointID(t *testing.T) {
	id := pointID("doc-1")
	_, err := uuid.Parse(id)
	require.NoError(t, err)
	assert.Equal(t, id, pointID("doc-1"))
	assert.NotEqual(t, id, pointID("doc-2"))

	existing := "550e8400-e29b-41d4-a716-446655440000"
	assert.Equal(t, existing, pointID(existing))
}

func TestBuildPayload(t *testing.T) {
	payload, err := buildPayload("doc-1", "hello", map[string]interface{}{
		"kind":  "note",
		"count": 3,
		"small": int8(2),
		"ratio": 0.5,
		"ok":    true,
	})
	require.NoError(t, err)

	assert.Equal(t, "doc-1", payload[payloadID].GetStringValue())
	assert.Equal(t, "hello", payload[payloadContent].GetStringValue())

	fields := payload[payloadMetadata].GetStructValue().GetFields()
	assert.Equal(t, "note", fields["kind"].GetStringValue())
	assert.Equal(t, int64(3), fields["count"].GetIntegerValue())
	assert.Equal(t, int64(2), fields["small"].GetIntegerValue())
	assert.Equal(t, 0.5, fields["ratio"].GetDoubleValue())
	assert.True(t, fields["ok"].GetBoolValue())
}

func TestBuildFilter(t *testing.T) {
	assert.Nil(t, buildFilter(nil))

	filter := buildFilter(map[string]interface{}{
		"kind":  "note",
		"count": 3,
		"ok":    true,
		"any":   []string{"a", "b"},
		"ratio": 0.5,
	})
	require.NotNil(t, filter)
	require.Len(t, filter.GetMust(), 5)

	keys := map[string]*qdrant.FieldCondition{}
	for _, c := range filter.GetMust() {
		f := c.GetField()
		require.NotNil(t, f)
		keys[f.GetKey()] = f
	}

	assert.Equal(t, "note", keys["metadata.kind"].GetMatch().GetKeyword())
	assert.Equal(t, int64(3), keys["metadata.count"].GetMatch().GetInteger())
	assert.True(t, keys["metadata.ok"].GetMatch().GetBoolean())
	assert.Equal(t, []string{"a", "b"}, keys["metadata.any"].GetMatch().GetKeywords().GetStrings())
	assert.Equal(t, 0.5, keys["metadata.ratio"].GetRange().GetGte())
	assert.Equal(t, 0.5, keys["metadata.ratio"].GetRange().GetLte())
}

func TestSpaceMapping(t *testing.T) {
	for _, space := range []DistanceSpace{SpaceCosine, SpaceL2, SpaceIP} {
		assert.Equal(t, space, spaceFromQdrant(spaceToQdrant(space)))
	}
	assert.Equal(t, DistanceSpace("Manhattan"), spaceFromQdrant(qdrant.Distance_Manhattan))
}

func TestQdrantStore_ToResult(t *testing.T) {
	payload, err := buildPayload("doc-1", "hello", map[string]interface{}{"kind": "note"})
	require.NoError(t, err)
	point := &qdrant.ScoredPoint{Payload: payload, Score: 0.8}

	cos := &QdrantStore{space: SpaceCosine}
	r := cos.toResult(point, searchOptions{withContent: true})
	assert.Equal(t, "doc-1", r.ID)
	assert.Equal(t, "hello", r.Content)
	assert.Equal(t, map[string]interface{}{"kind": "note"}, r.Metadata)
	assert.InDelta(t, 0.8, r.Score, 1e-6)

	l2 := &QdrantStore{space: SpaceL2}
	r = l2.toResult(point, searchOptions{})
	assert.Empty(t, r.Content)
	assert.InDelta(t, 1/1.8, r.Score, 1e-6)
}

func TestValueToInterface(t *testing.T) {
	v, ok := valueToInterface(qdrant.NewValueString("s"))
	assert.True(t, ok)
	assert.Equal(t, "s", v)

	v, ok = valueToInterface(qdrant.NewValueInt(7))
	assert.True(t, ok)
	assert.Equal(t, int64(7), v)

	_, ok = valueToInterface(qdrant.NewValueNull())
	assert.False(t, ok)
}

// TestQdrantStore_Integration runs against a live server when QDRANT_HOST is set.
func TestQdrantStore_Integration(t *testing.T) {
	host := os.Getenv("QDRANT_HOST")
	if host == "" {
		t.Skip("QDRANT_HOST not set")
	}
	port := 6334
	if p := os.Getenv("QDRANT_PORT"); p != "" {
		var err error
		port, err = strconv.Atoi(p)
		require.NoError(t, err)
	}

	ctx := context.Background()
	name := fmt.Sprintf("ragstore_test_%d", time.Now().UnixNano())
	store, err := NewQdrantStore(QdrantConfig{
		Host:           host,
		Port:           port,
		CollectionName: name,
		VectorSize:     testVectorSize,
	}, &conceptEmbedder{}, zaptest.NewLogger(t))
	require.NoError(t, err)
	defer store.Close()
	defer func() { _ = store.client.DeleteCollection(ctx, name) }()

	require.NoError(t, store.Initialize(ctx))
	seedCorpus(t, store)

	out := store.Search(ctx, []string{"feline", "vehicle"}, 3, nil)
	require.Len(t, out, 2)
	require.NoError(t, out[0].Err)
	require.NotEmpty(t, out[0].Results)
	assert.Equal(t, "a", out[0].Results[0].ID)
	assert.False(t, math.IsNaN(float64(out[0].Results[0].Score)))
	assert.Equal(t, "c", out[1].Results[0].ID)

	filtered := store.Search(ctx, []string{"feline"}, 3, map[string]interface{}{"kind": "machine"})
	require.NoError(t, filtered[0].Err)
	require.Len(t, filtered[0].Results, 1)
	assert.Equal(t, "c", filtered[0].Results[0].ID)

	require.NoError(t, store.Reset(ctx))
	out = store.Search(ctx, []string{"feline"}, 3, nil)
	require.NoError(t, out[0].Err)
	assert.Empty(t, out[0].Results)
}
