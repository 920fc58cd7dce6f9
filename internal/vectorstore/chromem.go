package vectorstore

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"time"

	chromem "github.com/philippgille/chromem-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/ragstore/internal/sanitize"
)

var chromemTracer = otel.Tracer("ragstore.vectorstore.chromem")

const (
	backendCollection = "collection"

	// spaceMetadataKey records the distance space in collection metadata.
	spaceMetadataKey = "hnsw:space"
)

// ChromemConfig holds configuration for the chromem-go collection store.
type ChromemConfig struct {
	// Path is the persistence root. The collection's database lives in
	// <Path>/<CollectionName>/.
	// Default: DefaultPersistRoot()
	Path string

	// CollectionName is the collection to open or create.
	CollectionName string

	// Compress enables gzip compression for stored data.
	Compress bool

	// Distance is the space recorded for new collections.
	// An existing collection keeps the space stored in its metadata.
	// Default: l2
	Distance DistanceSpace

	// Concurrency bounds parallel embedding calls during Add.
	// Default: runtime.NumCPU()
	Concurrency int
}

// ApplyDefaults sets default values for unset fields.
func (c *ChromemConfig) ApplyDefaults() error {
	if c.Path == "" {
		root, err := DefaultPersistRoot()
		if err != nil {
			return err
		}
		c.Path = root
	}
	if c.Distance == "" {
		c.Distance = SpaceL2
	}
	if c.Concurrency <= 0 {
		c.Concurrency = runtime.NumCPU()
	}
	return nil
}

// Validate validates the configuration.
func (c *ChromemConfig) Validate() error {
	if err := ValidateCollectionName(c.CollectionName); err != nil {
		return err
	}
	if _, err := ParseDistanceSpace(string(c.Distance), SpaceL2); err != nil {
		return err
	}
	return nil
}

// ChromemStore implements Store using chromem-go.
//
// The engine owns embedding: the store hands it an EmbeddingFunc backed by
// the configured Embedder and passes raw text on add and query. chromem-go
// always ranks by cosine similarity over normalized vectors, so results are
// converted back to the collection's native distance before scoring.
type ChromemStore struct {
	db         *chromem.DB
	collection *chromem.Collection
	embedder   Embedder
	config     ChromemConfig
	logger     *zap.Logger
	dbPath     string
	space      DistanceSpace
}

// NewChromemStore creates a new ChromemStore. Nothing is opened until
// Initialize.
func NewChromemStore(config ChromemConfig, embedder Embedder, logger *zap.Logger) (*ChromemStore, error) {
	if embedder == nil {
		return nil, fmt.Errorf("%w: embedder is required", ErrInvalidConfig)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := config.ApplyDefaults(); err != nil {
		return nil, fmt.Errorf("applying defaults: %w", err)
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	root, err := expandPath(config.Path)
	if err != nil {
		return nil, fmt.Errorf("expanding path: %w", err)
	}

	return &ChromemStore{
		embedder: embedder,
		config:   config,
		logger:   logger.With(zap.String("backend", backendCollection), zap.String("collection", config.CollectionName)),
		dbPath:   filepath.Join(root, config.CollectionName),
	}, nil
}

// CollectionName returns the collection this store is bound to.
func (s *ChromemStore) CollectionName() string {
	return s.config.CollectionName
}

// Path returns the directory holding the collection database.
func (s *ChromemStore) Path() string {
	return s.dbPath
}

// Space returns the distance space in effect after Initialize.
func (s *ChromemStore) Space() DistanceSpace {
	return s.space
}

// embeddingFunc adapts the Embedder to chromem's per-text function. Failures
// are tagged with ErrEmbeddingFailed so callers can tell them apart from
// engine failures after chromem wraps them.
func (s *ChromemStore) embeddingFunc() chromem.EmbeddingFunc {
	return func(ctx context.Context, text string) ([]float32, error) {
		vec, err := s.embedder.EmbedQuery(ctx, text)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrEmbeddingFailed, err)
		}
		return vec, nil
	}
}

// Initialize opens the persistent database and gets or creates the
// collection.
func (s *ChromemStore) Initialize(ctx context.Context) error {
	_, span := chromemTracer.Start(ctx, "ChromemStore.Initialize")
	defer span.End()

	if s.collection != nil {
		return nil
	}

	if err := os.MkdirAll(s.dbPath, 0755); err != nil {
		span.RecordError(err)
		return fmt.Errorf("creating directory %s: %w", s.dbPath, err)
	}

	db, err := NewResilientChromemDB(s.dbPath, s.config.Compress, s.logger)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("creating chromem DB: %w", err)
	}
	s.db = db

	if err := s.openCollection(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	span.SetAttributes(attribute.String("space", string(s.space)))
	span.SetStatus(codes.Ok, "success")
	s.logger.Info("chromem store initialized",
		zap.String("path", s.dbPath),
		zap.Bool("compress", s.config.Compress),
		zap.String("space", string(s.space)),
		zap.Int("documents", s.collection.Count()),
	)
	return nil
}

// openCollection resolves the distance space from stored collection metadata
// (falling back to the configured space) and gets or creates the collection.
func (s *ChromemStore) openCollection() error {
	s.space = s.config.Distance
	stored, err := readCollectionMetadata(s.dbPath, s.config.CollectionName)
	switch {
	case err != nil:
		s.logger.Warn("could not read collection metadata, using configured space",
			zap.String("space", string(s.space)),
			zap.Error(err),
		)
	case stored != nil && stored[spaceMetadataKey] != "":
		space, perr := ParseDistanceSpace(stored[spaceMetadataKey], SpaceL2)
		if perr != nil {
			// Keep the raw value; scoring passes it through with a warning.
			space = DistanceSpace(stored[spaceMetadataKey])
		}
		if space != s.config.Distance {
			s.logger.Warn("collection was created with a different distance space, keeping stored space",
				zap.String("stored", string(space)),
				zap.String("configured", string(s.config.Distance)),
			)
		}
		s.space = space
	}

	collection, err := s.db.GetOrCreateCollection(
		s.config.CollectionName,
		map[string]string{spaceMetadataKey: string(s.space)},
		s.embeddingFunc(),
	)
	if err != nil {
		return fmt.Errorf("getting/creating collection %s: %w", s.config.CollectionName, err)
	}
	s.collection = collection
	return nil
}

// Add upserts documents. The engine embeds each document through the
// configured Embedder.
func (s *ChromemStore) Add(ctx context.Context, documents []string, metadatas []map[string]interface{}, ids []string) (err error) {
	ctx, span := chromemTracer.Start(ctx, "ChromemStore.Add")
	defer span.End()

	start := time.Now()
	defer func() { recordOperation(backendCollection, "add", start, err) }()

	span.SetAttributes(attribute.Int("document_count", len(documents)))

	if len(documents) == 0 {
		return nil
	}
	if s.collection == nil {
		return fmt.Errorf("%w: %w", ErrWriteFailed, ErrNotInitialized)
	}

	b := newBatch(documents, metadatas, ids).dedupe()
	docs := make([]chromem.Document, b.len())
	for i, id := range b.ids {
		docs[i] = chromem.Document{
			ID:       id,
			Content:  b.documents[i],
			Metadata: sanitize.MetadataToStrings(b.metadatas[i]),
		}
	}

	if err = s.collection.AddDocuments(ctx, docs, s.config.Concurrency); err != nil {
		embeddingFailed := errors.Is(err, ErrEmbeddingFailed)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		s.logger.Error("failed to add documents",
			zap.Int("count", b.len()),
			zap.Bool("embedding_function_failed", embeddingFailed),
			zap.Error(err),
		)
		return fmt.Errorf("%w: adding documents to %s: %w", ErrWriteFailed, s.config.CollectionName, err)
	}

	DocumentsWritten.WithLabelValues(backendCollection).Add(float64(b.len()))
	span.SetStatus(codes.Ok, "success")
	s.logger.Debug("added documents to chromem", zap.Int("count", b.len()))
	return nil
}

// Search runs one engine query per text. A failing query degrades on its
// own; the others are still served.
func (s *ChromemStore) Search(ctx context.Context, queryTexts []string, nResults int, filter map[string]interface{}, opts ...SearchOption) []QueryResults {
	ctx, span := chromemTracer.Start(ctx, "ChromemStore.Search")
	defer span.End()

	start := time.Now()
	var searchErr error
	defer func() { recordOperation(backendCollection, "search", start, searchErr) }()

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

	if s.collection == nil {
		searchErr = ErrNotInitialized
		for range queryTexts {
			recordDegraded(backendCollection, ErrNotInitialized)
		}
		return degradeAll(len(queryTexts), ErrNotInitialized)
	}

	where, membership := equalityFilter(filter)
	count := s.collection.Count()

	out := make([]QueryResults, len(queryTexts))
	for i, text := range queryTexts {
		results, err := s.query(ctx, text, nResults, count, where, membership, o)
		if err != nil {
			searchErr = err
			span.RecordError(err)
			recordDegraded(backendCollection, err)
			s.logger.Error("search failed, returning empty results",
				zap.Int("query_index", i),
				zap.Bool("embedding_function_failed", errors.Is(err, ErrEmbeddingFailed)),
				zap.Error(err),
			)
			out[i] = degraded(err)
			continue
		}
		out[i] = QueryResults{Results: results}
	}

	if searchErr != nil {
		span.SetStatus(codes.Error, searchErr.Error())
	} else {
		span.SetStatus(codes.Ok, "success")
	}
	return out
}

func (s *ChromemStore) query(ctx context.Context, text string, n, count int, where map[string]string, membership map[string]interface{}, o searchOptions) ([]QueryResult, error) {
	if count == 0 {
		return []QueryResult{}, nil
	}

	// chromem requires 0 < nResults <= count. Membership filters are applied
	// after the engine query, so they need every candidate.
	k := n
	if len(membership) > 0 || k > count {
		k = count
	}

	raw, err := s.collection.Query(ctx, text, k, where, nil)
	if err != nil {
		return nil, fmt.Errorf("querying collection %s: %w", s.config.CollectionName, err)
	}

	results := make([]QueryResult, 0, len(raw))
	for _, r := range raw {
		meta := make(map[string]interface{}, len(r.Metadata))
		for key, v := range r.Metadata {
			meta[key] = v
		}
		if !matchesFilter(meta, membership) {
			continue
		}
		res := QueryResult{
			ID:       r.ID,
			Metadata: meta,
			Score:    ScoreFromDistance(s.space, s.distanceFromSimilarity(r.Similarity), s.logger),
		}
		if o.withContent {
			res.Content = r.Content
		}
		results = append(results, res)
	}
	sortByScore(results)
	if len(results) > n {
		results = results[:n]
	}
	return results, nil
}

// distanceFromSimilarity maps chromem's cosine similarity over unit vectors
// to the native distance of the collection's space. For unit vectors the
// squared L2 distance is 2 - 2*cos.
func (s *ChromemStore) distanceFromSimilarity(sim float32) float64 {
	switch s.space {
	case SpaceL2:
		return 2 - 2*float64(sim)
	default:
		return 1 - float64(sim)
	}
}

// Count returns the number of documents in the collection.
func (s *ChromemStore) Count() int {
	if s.collection == nil {
		return 0
	}
	return s.collection.Count()
}

// Reset deletes the collection and recreates it empty with the configured
// space. A missing collection is simply created.
func (s *ChromemStore) Reset(ctx context.Context) (err error) {
	ctx, span := chromemTracer.Start(ctx, "ChromemStore.Reset")
	defer span.End()

	start := time.Now()
	defer func() { recordOperation(backendCollection, "reset", start, err) }()

	if s.db == nil {
		if err = s.Initialize(ctx); err != nil {
			return err
		}
	}

	if err = s.db.DeleteCollection(s.config.CollectionName); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("deleting collection %s: %w", s.config.CollectionName, err)
	}
	s.collection = nil

	if err = s.openCollection(); err != nil {
		span.RecordError(err)
		return err
	}

	span.SetStatus(codes.Ok, "success")
	s.logger.Info("collection reset")
	return nil
}

// Close releases the collection. chromem-go persists on every write, so
// there is nothing to flush.
func (s *ChromemStore) Close() error {
	s.collection = nil
	s.db = nil
	return nil
}

var _ Store = (*ChromemStore)(nil)
