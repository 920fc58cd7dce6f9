package rag

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/ragstore/internal/embeddings"
	"github.com/fyrsmithlabs/ragstore/internal/sanitize"
	"github.com/fyrsmithlabs/ragstore/internal/vectorstore"
)

const (
	// DefaultSearchLimit applies when Search is called with limit <= 0.
	DefaultSearchLimit = 3

	// DefaultScoreThreshold is the threshold callers start from when they
	// have no better value. Search itself applies whatever it is given.
	DefaultScoreThreshold = 0.35
)

var tracer = otel.Tracer("ragstore.rag")

// Config names the collection and selects the backend.
type Config struct {
	// Type is the kind of memory, e.g. short_term, entities or knowledge.
	Type string

	// Agents are role names appended to Type to scope the collection.
	Agents []string

	// CollectionName, when set, replaces the Type/Agents derived name.
	CollectionName string

	// Store selects and configures the backend. Its CollectionName is
	// ignored in favor of the resolved name.
	Store vectorstore.StoreConfig
}

// Record is one search hit. Context is the stored document text.
// Score is NaN when the backend reported none.
type Record struct {
	ID       string
	Context  string
	Metadata map[string]interface{}
	Score    float32
}

type storeFactory func(cfg vectorstore.StoreConfig, embedder vectorstore.Embedder, logger *zap.Logger) (vectorstore.Store, error)

// Storage adds UUID identity, collection naming and score-threshold
// filtering on top of one vector store.
//
// Not safe for concurrent use; callers serialize access as with the
// underlying store.
type Storage struct {
	config     Config
	collection string
	provider   embeddings.Provider
	logger     *zap.Logger
	baseLogger *zap.Logger
	tracer     trace.Tracer
	newStore   storeFactory

	store vectorstore.Store
}

// New resolves the collection name. Nothing is opened until Initialize.
// The provider stays owned by the caller; Close does not close it.
func New(cfg Config, provider embeddings.Provider, logger *zap.Logger) (*Storage, error) {
	if provider == nil {
		return nil, fmt.Errorf("%w: embedding provider is required", vectorstore.ErrInvalidConfig)
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	name, err := ResolveCollectionName(cfg)
	if err != nil {
		return nil, err
	}

	return &Storage{
		config:     cfg,
		collection: name,
		provider:   provider,
		logger:     logger.With(zap.String("collection", name)),
		baseLogger: logger,
		tracer:     tracer,
		newStore:   vectorstore.NewStore,
	}, nil
}

// ResolveCollectionName returns the sanitized collection identifier for cfg:
// CollectionName when set, otherwise Type followed by each agent.
//
//	{Type: "short_term", Agents: ["Researcher", "Senior Writer"]}
//	    -> "short_term_researcher_senior_writer"
func ResolveCollectionName(cfg Config) (string, error) {
	if strings.TrimSpace(cfg.CollectionName) != "" {
		return sanitize.CollectionName(cfg.CollectionName), nil
	}
	if strings.TrimSpace(cfg.Type) == "" {
		return "", fmt.Errorf("%w: memory type or collection name is required", vectorstore.ErrInvalidConfig)
	}
	return sanitize.CollectionName(append([]string{cfg.Type}, cfg.Agents...)...), nil
}

// CollectionName returns the resolved collection identifier.
func (s *Storage) CollectionName() string {
	return s.collection
}

// Initialize builds and opens the backend. Calling it again is a no-op.
func (s *Storage) Initialize(ctx context.Context) error {
	if s.store != nil {
		return nil
	}

	cfg := s.config.Store
	cfg.CollectionName = s.collection

	store, err := s.newStore(cfg, s.provider, s.baseLogger)
	if err != nil {
		return fmt.Errorf("creating vector store: %w", err)
	}
	if err := store.Initialize(ctx); err != nil {
		_ = store.Close()
		return fmt.Errorf("initializing vector store: %w", err)
	}

	s.store = store
	s.logger.Info("rag storage initialized", zap.String("type", cfg.Type))
	return nil
}

// Save stores value as one new document under a fresh random UUID and
// returns that ID.
//
// Strings are stored as-is, fmt.Stringer values through String, and
// everything else as JSON.
func (s *Storage) Save(ctx context.Context, value interface{}, metadata map[string]interface{}) (string, error) {
	return s.save(ctx, uuid.NewString(), value, metadata)
}

func (s *Storage) save(ctx context.Context, id string, value interface{}, metadata map[string]interface{}) (string, error) {
	ctx, span := s.tracer.Start(ctx, "rag.Save", trace.WithAttributes(attribute.String("id", id)))
	defer span.End()

	if s.store == nil {
		span.SetStatus(codes.Error, "not initialized")
		return "", fmt.Errorf("save to %s: %w", s.collection, vectorstore.ErrNotInitialized)
	}

	if err := s.store.Add(ctx, []string{stringify(value)}, []map[string]interface{}{metadata}, []string{id}); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "save failed")
		s.logger.Error("save failed", zap.String("id", id), zap.Error(err))
		return "", fmt.Errorf("saving document: %w", err)
	}

	s.logger.Debug("document saved", zap.String("id", id))
	return id, nil
}

// SaveWithID stores value under a caller-chosen ID, replacing any document
// already stored under it.
func (s *Storage) SaveWithID(ctx context.Context, id string, value interface{}, metadata map[string]interface{}) error {
	if err := sanitize.ValidateDocumentID(id); err != nil {
		return fmt.Errorf("%w: %w", vectorstore.ErrWriteFailed, err)
	}
	_, err := s.save(ctx, id, value, metadata)
	return err
}

// Search returns up to limit records scoring at least scoreThreshold, best
// first. Records without a score rank worst and are kept only when
// scoreThreshold <= 0.
//
// A blank query returns no records without touching the backend. When the
// backend degrades, Search returns an empty slice together with an error
// wrapping vectorstore.ErrReadDegraded, so "failed" and "no matches" stay
// distinguishable.
func (s *Storage) Search(ctx context.Context, query string, limit int, scoreThreshold float64, filter map[string]interface{}) ([]Record, error) {
	if strings.TrimSpace(query) == "" {
		return []Record{}, nil
	}
	if limit <= 0 {
		limit = DefaultSearchLimit
	}

	ctx, span := s.tracer.Start(ctx, "rag.Search", trace.WithAttributes(
		attribute.Int("limit", limit),
		attribute.Float64("score_threshold", scoreThreshold),
	))
	defer span.End()

	if s.store == nil {
		span.SetStatus(codes.Error, "not initialized")
		return []Record{}, fmt.Errorf("%w: %w", vectorstore.ErrReadDegraded, vectorstore.ErrNotInitialized)
	}

	batches := s.store.Search(ctx, []string{query}, limit, filter)
	if len(batches) == 0 {
		return []Record{}, nil
	}
	batch := batches[0]
	if batch.Err != nil {
		span.RecordError(batch.Err)
		span.SetStatus(codes.Error, "search degraded")
		s.logger.Warn("search degraded", zap.Error(batch.Err))
		if !errors.Is(batch.Err, vectorstore.ErrReadDegraded) {
			return []Record{}, fmt.Errorf("%w: %w", vectorstore.ErrReadDegraded, batch.Err)
		}
		return []Record{}, batch.Err
	}

	threshold := float32(scoreThreshold)
	records := make([]Record, 0, len(batch.Results))
	for _, r := range batch.Results {
		if !r.HasScore() {
			if scoreThreshold > 0 {
				continue
			}
		} else if r.Score < threshold {
			continue
		}
		records = append(records, Record{
			ID:       r.ID,
			Context:  r.Content,
			Metadata: r.Metadata,
			Score:    r.Score,
		})
	}

	span.SetAttributes(
		attribute.Int("candidates", len(batch.Results)),
		attribute.Int("results", len(records)),
	)
	s.logger.Debug("search completed",
		zap.Int("candidates", len(batch.Results)),
		zap.Int("results", len(records)),
	)
	return records, nil
}

// Reset empties the collection. It reports ErrNotInitialized when called
// before Initialize.
func (s *Storage) Reset(ctx context.Context) error {
	if s.store == nil {
		return fmt.Errorf("reset %s: %w", s.collection, vectorstore.ErrNotInitialized)
	}
	if err := s.store.Reset(ctx); err != nil {
		return fmt.Errorf("resetting collection: %w", err)
	}
	s.logger.Info("collection reset")
	return nil
}

// Close closes the backend. The embedding provider is left open.
func (s *Storage) Close() error {
	if s.store == nil {
		return nil
	}
	err := s.store.Close()
	s.store = nil
	return err
}

func stringify(value interface{}) string {
	switch v := value.(type) {
	case string:
		return v
	case fmt.Stringer:
		return v.String()
	}
	b, err := json.Marshal(value)
	if err != nil {
		return fmt.Sprint(value)
	}
	return string(b)
}
