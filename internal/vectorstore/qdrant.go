package vectorstore

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	grpccodes "google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

var qdrantTracer = otel.Tracer("ragstore.vectorstore.qdrant")

const (
	backendQdrant = "qdrant"

	payloadID       = "id"
	payloadContent  = "content"
	payloadMetadata = "metadata"

	// dimensionProbe is embedded once when the vector size is not known up
	// front and the collection does not exist yet.
	dimensionProbe = "dimension probe"
)

// pointNamespace derives deterministic point UUIDs from document IDs.
var pointNamespace = uuid.MustParse("6f1c5e0a-4d0b-5b8e-9a57-2c1f0f3d8a11")

// QdrantConfig holds configuration for the Qdrant gRPC client.
type QdrantConfig struct {
	// Host is the Qdrant server hostname or IP address.
	// Default: "localhost"
	Host string

	// Port is the Qdrant gRPC port (NOT the HTTP REST port).
	// Default: 6334
	Port int

	// APIKey authenticates against Qdrant Cloud or a secured server.
	APIKey string

	// UseTLS enables TLS for the gRPC connection.
	UseTLS bool

	// CollectionName is the collection to open or create.
	CollectionName string

	// VectorSize is the dimensionality of embeddings. Zero means use the
	// existing collection's size, or probe the embedder once.
	VectorSize uint64

	// Distance is the space used when the collection is created.
	// Default: cosine
	Distance DistanceSpace

	// MaxRetries is the maximum number of retry attempts for transient failures.
	// Default: 3
	MaxRetries int

	// RetryBackoff is the initial backoff; it doubles on each retry.
	// Default: 1 second
	RetryBackoff time.Duration

	// MaxMessageSize is the maximum gRPC message size in bytes.
	// Default: 50MB
	MaxMessageSize int

	// CircuitBreakerThreshold is the number of failures before opening the circuit.
	// Default: 5
	CircuitBreakerThreshold int
}

// ApplyDefaults sets default values for unset fields.
func (c *QdrantConfig) ApplyDefaults() {
	if c.Host == "" {
		c.Host = "localhost"
	}
	if c.Port == 0 {
		c.Port = 6334
	}
	if c.Distance == "" {
		c.Distance = SpaceCosine
	}
	if c.MaxRetries == 0 {
		c.MaxRetries = 3
	}
	if c.RetryBackoff == 0 {
		c.RetryBackoff = time.Second
	}
	if c.MaxMessageSize == 0 {
		c.MaxMessageSize = 50 * 1024 * 1024
	}
	if c.CircuitBreakerThreshold == 0 {
		c.CircuitBreakerThreshold = 5
	}
}

// Validate validates the configuration.
func (c QdrantConfig) Validate() error {
	if c.Host == "" {
		return fmt.Errorf("%w: host required", ErrInvalidConfig)
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("%w: invalid port: %d", ErrInvalidConfig, c.Port)
	}
	if err := ValidateCollectionName(c.CollectionName); err != nil {
		return err
	}
	if _, err := ParseDistanceSpace(string(c.Distance), SpaceCosine); err != nil {
		return err
	}
	if c.MaxRetries < 0 {
		return fmt.Errorf("%w: max retries cannot be negative", ErrInvalidConfig)
	}
	return nil
}

// IsTransientError reports whether a gRPC error is worth retrying.
func IsTransientError(err error) bool {
	if err == nil {
		return false
	}

	st, ok := status.FromError(err)
	if !ok {
		return false
	}

	switch st.Code() {
	case grpccodes.Unavailable, grpccodes.DeadlineExceeded, grpccodes.Aborted, grpccodes.ResourceExhausted:
		return true
	default:
		return false
	}
}

// QdrantStore implements Store on an external Qdrant server over gRPC.
//
// Points are keyed by a UUID derived from the document ID; the original ID,
// the text and the metadata live in the payload. Metadata is nested under
// "metadata" so user keys cannot collide with the reserved fields.
type QdrantStore struct {
	client   *qdrant.Client
	embedder Embedder
	config   QdrantConfig
	logger   *zap.Logger

	ready bool
	space DistanceSpace

	circuitBreaker struct {
		failures int
		lastFail time.Time
		mu       sync.Mutex
	}
}

// NewQdrantStore creates a QdrantStore. The gRPC connection is established
// lazily; Initialize performs the first round trip.
func NewQdrantStore(config QdrantConfig, embedder Embedder, logger *zap.Logger) (*QdrantStore, error) {
	if embedder == nil {
		return nil, fmt.Errorf("%w: embedder is required", ErrInvalidConfig)
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	config.ApplyDefaults()
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	logger = logger.With(zap.String("backend", backendQdrant), zap.String("collection", config.CollectionName))
	if !config.UseTLS {
		logger.Warn("qdrant gRPC using plaintext (TLS disabled)",
			zap.String("host", config.Host),
			zap.Int("port", config.Port),
		)
	}

	client, err := qdrant.NewClient(&qdrant.Config{
		Host:                   config.Host,
		Port:                   config.Port,
		APIKey:                 config.APIKey,
		UseTLS:                 config.UseTLS,
		SkipCompatibilityCheck: true,
		GrpcOptions: []grpc.DialOption{
			grpc.WithDefaultCallOptions(
				grpc.MaxCallRecvMsgSize(config.MaxMessageSize),
				grpc.MaxCallSendMsgSize(config.MaxMessageSize),
			),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	}

	return &QdrantStore{
		client:   client,
		embedder: embedder,
		config:   config,
		logger:   logger,
	}, nil
}

// CollectionName returns the collection this store is bound to.
func (s *QdrantStore) CollectionName() string {
	return s.config.CollectionName
}

// Space returns the distance space in effect after Initialize.
func (s *QdrantStore) Space() DistanceSpace {
	return s.space
}

// Initialize checks server health and gets or creates the collection. An
// existing collection keeps its own distance and vector size.
func (s *QdrantStore) Initialize(ctx context.Context) error {
	ctx, span := qdrantTracer.Start(ctx, "QdrantStore.Initialize")
	defer span.End()

	if s.ready {
		return nil
	}

	if err := s.retryOperation(ctx, "health_check", func() error {
		_, err := s.client.HealthCheck(ctx)
		return err
	}); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	}

	if err := s.ensureCollection(ctx); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	s.ready = true
	span.SetAttributes(
		attribute.String("space", string(s.space)),
		attribute.Int64("vector_size", int64(s.config.VectorSize)),
	)
	span.SetStatus(codes.Ok, "success")
	s.logger.Info("qdrant store initialized",
		zap.String("host", s.config.Host),
		zap.String("space", string(s.space)),
		zap.Uint64("vector_size", s.config.VectorSize),
	)
	return nil
}

func (s *QdrantStore) ensureCollection(ctx context.Context) error {
	name := s.config.CollectionName

	var exists bool
	if err := s.retryOperation(ctx, "collection_exists", func() error {
		var err error
		exists, err = s.client.CollectionExists(ctx, name)
		return err
	}); err != nil {
		return fmt.Errorf("checking collection %s: %w", name, err)
	}

	if exists {
		return s.loadCollectionParams(ctx)
	}
	return s.createCollection(ctx)
}

func (s *QdrantStore) loadCollectionParams(ctx context.Context) error {
	var info *qdrant.CollectionInfo
	if err := s.retryOperation(ctx, "get_collection_info", func() error {
		var err error
		info, err = s.client.GetCollectionInfo(ctx, s.config.CollectionName)
		return err
	}); err != nil {
		return fmt.Errorf("reading collection %s: %w", s.config.CollectionName, err)
	}

	params := info.GetConfig().GetParams().GetVectorsConfig().GetParams()
	s.space = spaceFromQdrant(params.GetDistance())
	if s.space != s.config.Distance {
		s.logger.Warn("collection was created with a different distance space, keeping stored space",
			zap.String("stored", string(s.space)),
			zap.String("configured", string(s.config.Distance)),
		)
	}
	if size := params.GetSize(); size > 0 {
		s.config.VectorSize = size
	}
	return nil
}

func (s *QdrantStore) createCollection(ctx context.Context) error {
	if s.config.VectorSize == 0 {
		vec, err := s.embedder.EmbedQuery(ctx, dimensionProbe)
		if err != nil {
			return fmt.Errorf("%w: probing vector size: %w", ErrEmbeddingFailed, err)
		}
		s.config.VectorSize = uint64(len(vec))
	}

	s.space = s.config.Distance
	err := s.retryOperation(ctx, "create_collection", func() error {
		return s.client.CreateCollection(ctx, &qdrant.CreateCollection{
			CollectionName: s.config.CollectionName,
			VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
				Size:     s.config.VectorSize,
				Distance: spaceToQdrant(s.space),
			}),
		})
	})
	if err != nil {
		return fmt.Errorf("creating collection %s: %w", s.config.CollectionName, err)
	}
	return nil
}

// retryOperation retries an operation with exponential backoff.
func (s *QdrantStore) retryOperation(ctx context.Context, operationName string, operation func() error) error {
	if s.isCircuitOpen() {
		return fmt.Errorf("%s: circuit breaker open", operationName)
	}

	backoff := s.config.RetryBackoff
	for attempt := 0; ; attempt++ {
		err := operation()
		if err == nil {
			s.resetCircuitBreaker()
			return nil
		}
		if !IsTransientError(err) {
			return fmt.Errorf("%s failed (permanent): %w", operationName, err)
		}

		s.recordFailure()
		if s.isCircuitOpen() {
			return fmt.Errorf("%s: circuit breaker open: %w", operationName, err)
		}
		if attempt >= s.config.MaxRetries {
			return fmt.Errorf("%s failed after %d retries: %w", operationName, s.config.MaxRetries, err)
		}

		s.logger.Debug("retrying transient qdrant failure",
			zap.String("operation", operationName),
			zap.Int("attempt", attempt+1),
			zap.Duration("backoff", backoff),
			zap.Error(err),
		)
		select {
		case <-ctx.Done():
			return fmt.Errorf("%s canceled: %w", operationName, ctx.Err())
		case <-time.After(backoff):
			backoff *= 2
		}
	}
}

func (s *QdrantStore) recordFailure() {
	s.circuitBreaker.mu.Lock()
	defer s.circuitBreaker.mu.Unlock()
	s.circuitBreaker.failures++
	s.circuitBreaker.lastFail = time.Now()
}

func (s *QdrantStore) resetCircuitBreaker() {
	s.circuitBreaker.mu.Lock()
	defer s.circuitBreaker.mu.Unlock()
	s.circuitBreaker.failures = 0
}

// isCircuitOpen reports whether recent failures crossed the threshold. The
// circuit half-opens 30 seconds after the last failure.
func (s *QdrantStore) isCircuitOpen() bool {
	s.circuitBreaker.mu.Lock()
	defer s.circuitBreaker.mu.Unlock()

	if s.circuitBreaker.failures >= s.config.CircuitBreakerThreshold {
		if time.Since(s.circuitBreaker.lastFail) > 30*time.Second {
			s.circuitBreaker.failures = 0
			return false
		}
		return true
	}
	return false
}

// Add embeds the documents in one batch and upserts them as points.
func (s *QdrantStore) Add(ctx context.Context, documents []string, metadatas []map[string]interface{}, ids []string) (err error) {
	ctx, span := qdrantTracer.Start(ctx, "QdrantStore.Add")
	defer span.End()

	start := time.Now()
	defer func() { recordOperation(backendQdrant, "add", start, err) }()

	span.SetAttributes(attribute.Int("document_count", len(documents)))

	if len(documents) == 0 {
		return nil
	}
	if !s.ready {
		return fmt.Errorf("%w: %w", ErrWriteFailed, ErrNotInitialized)
	}

	b := newBatch(documents, metadatas, ids).dedupe()

	vectors, err := s.embedder.EmbedDocuments(ctx, b.documents)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		s.logger.Error("embedding failed during add", zap.Int("count", b.len()), zap.Error(err))
		return fmt.Errorf("%w: %w: %w", ErrWriteFailed, ErrEmbeddingFailed, err)
	}
	if len(vectors) != b.len() {
		return fmt.Errorf("%w: %w: got %d embeddings for %d documents", ErrWriteFailed, ErrEmbeddingFailed, len(vectors), b.len())
	}

	points := make([]*qdrant.PointStruct, b.len())
	for i, id := range b.ids {
		payload, perr := buildPayload(id, b.documents[i], b.metadatas[i])
		if perr != nil {
			err = fmt.Errorf("%w: building payload for %s: %w", ErrWriteFailed, id, perr)
			span.RecordError(err)
			return err
		}
		points[i] = &qdrant.PointStruct{
			Id:      qdrant.NewIDUUID(pointID(id)),
			Vectors: qdrant.NewVectors(vectors[i]...),
			Payload: payload,
		}
	}

	err = s.retryOperation(ctx, "upsert", func() error {
		_, err := s.client.Upsert(ctx, &qdrant.UpsertPoints{
			CollectionName: s.config.CollectionName,
			Points:         points,
			Wait:           qdrant.PtrOf(true),
		})
		return err
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		s.logger.Error("failed to upsert points", zap.Int("count", b.len()), zap.Error(err))
		return fmt.Errorf("%w: upserting points to collection %s: %w", ErrWriteFailed, s.config.CollectionName, err)
	}

	DocumentsWritten.WithLabelValues(backendQdrant).Add(float64(b.len()))
	span.SetAttributes(attribute.Int("points_added", b.len()))
	span.SetStatus(codes.Ok, "success")
	return nil
}

// Search embeds all query texts in one call and sends one batched query.
func (s *QdrantStore) Search(ctx context.Context, queryTexts []string, nResults int, filter map[string]interface{}, opts ...SearchOption) []QueryResults {
	ctx, span := qdrantTracer.Start(ctx, "QdrantStore.Search")
	defer span.End()

	start := time.Now()
	var searchErr error
	defer func() { recordOperation(backendQdrant, "search", start, searchErr) }()

	span.SetAttributes(
		attribute.Int("query_count", len(queryTexts)),
		attribute.Int("n_results", nResults),
	)

	if len(queryTexts) == 0 {
		return []QueryResults{}
	}
	if nResults < 1 {
		nResults = 1
	}
	o := newSearchOptions(opts)

	if !s.ready {
		searchErr = ErrNotInitialized
		return s.degrade(len(queryTexts), ErrNotInitialized)
	}

	vectors, err := s.embedder.EmbedDocuments(ctx, queryTexts)
	if err == nil && len(vectors) != len(queryTexts) {
		err = fmt.Errorf("got %d embeddings for %d queries", len(vectors), len(queryTexts))
	}
	if err != nil {
		searchErr = fmt.Errorf("%w: %w", ErrEmbeddingFailed, err)
		span.RecordError(searchErr)
		span.SetStatus(codes.Error, searchErr.Error())
		s.logger.Error("embedding failed during search, returning empty results", zap.Error(err))
		return s.degrade(len(queryTexts), searchErr)
	}

	qfilter := buildFilter(filter)
	queries := make([]*qdrant.QueryPoints, len(vectors))
	for i, vec := range vectors {
		queries[i] = &qdrant.QueryPoints{
			CollectionName: s.config.CollectionName,
			Query:          qdrant.NewQuery(vec...),
			Limit:          qdrant.PtrOf(uint64(nResults)),
			Filter:         qfilter,
			WithPayload:    qdrant.NewWithPayload(true),
		}
	}

	var batches []*qdrant.BatchResult
	err = s.retryOperation(ctx, "query_batch", func() error {
		var err error
		batches, err = s.client.QueryBatch(ctx, &qdrant.QueryBatchPoints{
			CollectionName: s.config.CollectionName,
			QueryPoints:    queries,
		})
		return err
	})
	if err == nil && len(batches) != len(queryTexts) {
		err = fmt.Errorf("got %d result sets for %d queries", len(batches), len(queryTexts))
	}
	if err != nil {
		searchErr = err
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		s.logger.Error("search failed, returning empty results", zap.Error(err))
		return s.degrade(len(queryTexts), err)
	}

	out := make([]QueryResults, len(batches))
	for i, batch := range batches {
		results := make([]QueryResult, 0, len(batch.GetResult()))
		for _, point := range batch.GetResult() {
			results = append(results, s.toResult(point, o))
		}
		sortByScore(results)
		out[i] = QueryResults{Results: results}
	}

	span.SetStatus(codes.Ok, "success")
	return out
}

func (s *QdrantStore) degrade(n int, cause error) []QueryResults {
	for i := 0; i < n; i++ {
		recordDegraded(backendQdrant, cause)
	}
	return degradeAll(n, cause)
}

// toResult converts a scored point. Qdrant reports similarity for cosine and
// dot and distance for euclid; all three are mapped back to a distance
// before scoring.
func (s *QdrantStore) toResult(point *qdrant.ScoredPoint, o searchOptions) QueryResult {
	payload := point.GetPayload()
	res := QueryResult{
		ID:       payload[payloadID].GetStringValue(),
		Metadata: map[string]interface{}{},
	}
	if o.withContent {
		res.Content = payload[payloadContent].GetStringValue()
	}
	for k, v := range payload[payloadMetadata].GetStructValue().GetFields() {
		if val, ok := valueToInterface(v); ok {
			res.Metadata[k] = val
		}
	}

	raw := float64(point.GetScore())
	distance := raw
	if s.space != SpaceL2 {
		distance = 1 - raw
	}
	res.Score = ScoreFromDistance(s.space, distance, s.logger)
	return res
}

// Reset drops and recreates the collection with the configured space.
func (s *QdrantStore) Reset(ctx context.Context) (err error) {
	ctx, span := qdrantTracer.Start(ctx, "QdrantStore.Reset")
	defer span.End()

	start := time.Now()
	defer func() { recordOperation(backendQdrant, "reset", start, err) }()

	if !s.ready {
		if err = s.Initialize(ctx); err != nil {
			return err
		}
	}

	err = s.retryOperation(ctx, "delete_collection", func() error {
		return s.client.DeleteCollection(ctx, s.config.CollectionName)
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("deleting collection %s: %w", s.config.CollectionName, err)
	}

	if err = s.createCollection(ctx); err != nil {
		s.ready = false
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	span.SetStatus(codes.Ok, "success")
	s.logger.Info("collection reset")
	return nil
}

// Close closes the gRPC connection.
func (s *QdrantStore) Close() error {
	s.ready = false
	if s.client != nil {
		return s.client.Close()
	}
	return nil
}

// pointID maps a document ID to a Qdrant point UUID. IDs that already are
// UUIDs are used as is.
func pointID(id string) string {
	if parsed, err := uuid.Parse(id); err == nil {
		return parsed.String()
	}
	return uuid.NewSHA1(pointNamespace, []byte(id)).String()
}

func buildPayload(id, content string, metadata map[string]interface{}) (map[string]*qdrant.Value, error) {
	meta := make(map[string]interface{}, len(metadata))
	for k, v := range metadata {
		switch n := v.(type) {
		case int8:
			meta[k] = int64(n)
		case int16:
			meta[k] = int64(n)
		case uint8:
			meta[k] = int64(n)
		case uint16:
			meta[k] = int64(n)
		default:
			meta[k] = v
		}
	}
	st, err := qdrant.NewStruct(meta)
	if err != nil {
		return nil, err
	}
	return map[string]*qdrant.Value{
		payloadID:       qdrant.NewValueString(id),
		payloadContent:  qdrant.NewValueString(content),
		payloadMetadata: qdrant.NewValueStruct(st),
	}, nil
}

// buildFilter turns an equality filter into Qdrant conditions on the nested
// metadata payload. Slice values match any of their elements; nil values are
// ignored.
func buildFilter(filter map[string]interface{}) *qdrant.Filter {
	filter = liveConditions(filter)
	if len(filter) == 0 {
		return nil
	}
	must := make([]*qdrant.Condition, 0, len(filter))
	for key, value := range filter {
		field := payloadMetadata + "." + key
		switch v := value.(type) {
		case []string:
			must = append(must, qdrant.NewMatchKeywords(field, v...))
		case []interface{}:
			keywords := make([]string, len(v))
			for i, e := range v {
				keywords[i] = filterString(e)
			}
			must = append(must, qdrant.NewMatchKeywords(field, keywords...))
		case []int:
			ints := make([]int64, len(v))
			for i, e := range v {
				ints[i] = int64(e)
			}
			must = append(must, qdrant.NewMatchInts(field, ints...))
		case []int64:
			must = append(must, qdrant.NewMatchInts(field, v...))
		case bool:
			must = append(must, qdrant.NewMatchBool(field, v))
		case int:
			must = append(must, qdrant.NewMatchInt(field, int64(v)))
		case int64:
			must = append(must, qdrant.NewMatchInt(field, v))
		case int32:
			must = append(must, qdrant.NewMatchInt(field, int64(v)))
		case float64:
			must = append(must, qdrant.NewRange(field, &qdrant.Range{Gte: qdrant.PtrOf(v), Lte: qdrant.PtrOf(v)}))
		case float32:
			f := float64(v)
			must = append(must, qdrant.NewRange(field, &qdrant.Range{Gte: qdrant.PtrOf(f), Lte: qdrant.PtrOf(f)}))
		default:
			must = append(must, qdrant.NewMatchKeyword(field, filterString(v)))
		}
	}
	return &qdrant.Filter{Must: must}
}

func valueToInterface(v *qdrant.Value) (interface{}, bool) {
	switch val := v.GetKind().(type) {
	case *qdrant.Value_StringValue:
		return val.StringValue, true
	case *qdrant.Value_IntegerValue:
		return val.IntegerValue, true
	case *qdrant.Value_DoubleValue:
		return val.DoubleValue, true
	case *qdrant.Value_BoolValue:
		return val.BoolValue, true
	default:
		return nil, false
	}
}

func spaceToQdrant(space DistanceSpace) qdrant.Distance {
	switch space {
	case SpaceL2:
		return qdrant.Distance_Euclid
	case SpaceIP:
		return qdrant.Distance_Dot
	default:
		return qdrant.Distance_Cosine
	}
}

func spaceFromQdrant(d qdrant.Distance) DistanceSpace {
	switch d {
	case qdrant.Distance_Cosine:
		return SpaceCosine
	case qdrant.Distance_Euclid:
		return SpaceL2
	case qdrant.Distance_Dot:
		return SpaceIP
	default:
		return DistanceSpace(d.String())
	}
}

var _ Store = (*QdrantStore)(nil)
