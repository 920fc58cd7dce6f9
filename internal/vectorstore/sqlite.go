package vectorstore

import (
	"bytes"
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"
)

//go:embed schema/sqlite.sql
var sqliteSchema string

var sqliteTracer = otel.Tracer("ragstore.vectorstore.sqlite")

const (
	backendEmbedded = "embedded"

	metaKeySpace     = "distance_space"
	metaKeyDimension = "dimension"
)

// SQLiteConfig holds configuration for the embedded SQL store.
type SQLiteConfig struct {
	// Path is the directory holding one database file per collection.
	// Default: DefaultPersistRoot()
	Path string

	// CollectionName selects the database file <Path>/<CollectionName>.sqlite3.
	CollectionName string

	// Distance is the ranking metric for new collections.
	// An existing collection keeps the metric it was created with.
	// Default: cosine
	Distance DistanceSpace
}

// ApplyDefaults sets default values for unset fields.
func (c *SQLiteConfig) ApplyDefaults() error {
	if c.Path == "" {
		root, err := DefaultPersistRoot()
		if err != nil {
			return err
		}
		c.Path = root
	}
	if c.Distance == "" {
		c.Distance = SpaceCosine
	}
	return nil
}

// Validate validates the configuration.
func (c *SQLiteConfig) Validate() error {
	if err := ValidateCollectionName(c.CollectionName); err != nil {
		return err
	}
	if _, err := ParseDistanceSpace(string(c.Distance), SpaceCosine); err != nil {
		return err
	}
	return nil
}

// SQLiteStore implements Store on a pure-Go SQLite database.
//
// Documents, sanitized metadata (JSON) and embeddings (float32 BLOB) live in
// one file per collection. The store embeds documents and queries itself
// and ranks candidates in process, so the metadata filter is applied before
// ranking.
type SQLiteStore struct {
	db       *sql.DB
	embedder Embedder
	config   SQLiteConfig
	logger   *zap.Logger
	dbPath   string

	space     DistanceSpace
	dimension int
}

// NewSQLiteStore creates a SQLiteStore. Nothing is opened until Initialize.
func NewSQLiteStore(config SQLiteConfig, embedder Embedder, logger *zap.Logger) (*SQLiteStore, error) {
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

	return &SQLiteStore{
		embedder: embedder,
		config:   config,
		logger:   logger.With(zap.String("backend", backendEmbedded), zap.String("collection", config.CollectionName)),
		dbPath:   filepath.Join(root, config.CollectionName+".sqlite3"),
	}, nil
}

// CollectionName returns the collection this store is bound to.
func (s *SQLiteStore) CollectionName() string {
	return s.config.CollectionName
}

// Path returns the database file location.
func (s *SQLiteStore) Path() string {
	return s.dbPath
}

// Space returns the distance space in effect after Initialize.
func (s *SQLiteStore) Space() DistanceSpace {
	return s.space
}

// Initialize opens the database file, creating the schema when missing.
func (s *SQLiteStore) Initialize(ctx context.Context) error {
	ctx, span := sqliteTracer.Start(ctx, "SQLiteStore.Initialize")
	defer span.End()

	if s.db != nil {
		return nil
	}

	if err := os.MkdirAll(filepath.Dir(s.dbPath), 0755); err != nil {
		span.RecordError(err)
		return fmt.Errorf("creating directory %s: %w", filepath.Dir(s.dbPath), err)
	}

	db, err := sql.Open("sqlite", s.dbPath)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("opening sqlite %s: %w", s.dbPath, err)
	}
	// One writer per file; a single connection also keeps the schema visible
	// across statements.
	db.SetMaxOpenConns(1)

	s.db = db
	if err := s.ensureSchema(ctx); err != nil {
		_ = db.Close()
		s.db = nil
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	span.SetAttributes(attribute.String("space", string(s.space)))
	span.SetStatus(codes.Ok, "success")
	s.logger.Info("sqlite store initialized",
		zap.String("path", s.dbPath),
		zap.String("space", string(s.space)),
	)
	return nil
}

// ensureSchema creates the tables and loads collection metadata.
func (s *SQLiteStore) ensureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, sqliteSchema); err != nil {
		return fmt.Errorf("creating schema: %w", err)
	}

	if _, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO collection_meta(key, value) VALUES(?, ?)`,
		metaKeySpace, string(s.config.Distance),
	); err != nil {
		return fmt.Errorf("recording distance space: %w", err)
	}

	var stored string
	if err := s.db.QueryRowContext(ctx,
		`SELECT value FROM collection_meta WHERE key = ?`, metaKeySpace,
	).Scan(&stored); err != nil {
		return fmt.Errorf("reading distance space: %w", err)
	}
	s.space = DistanceSpace(stored)
	if s.space != s.config.Distance {
		s.logger.Warn("collection was created with a different distance space, keeping stored space",
			zap.String("stored", stored),
			zap.String("configured", string(s.config.Distance)),
		)
	}

	s.dimension = 0
	var dim string
	err := s.db.QueryRowContext(ctx,
		`SELECT value FROM collection_meta WHERE key = ?`, metaKeyDimension,
	).Scan(&dim)
	switch {
	case errors.Is(err, sql.ErrNoRows):
	case err != nil:
		return fmt.Errorf("reading dimension: %w", err)
	default:
		if s.dimension, err = strconv.Atoi(dim); err != nil {
			return fmt.Errorf("parsing dimension %q: %w", dim, err)
		}
	}
	return nil
}

// Add embeds all documents in one batch and upserts them in one transaction.
func (s *SQLiteStore) Add(ctx context.Context, documents []string, metadatas []map[string]interface{}, ids []string) (err error) {
	ctx, span := sqliteTracer.Start(ctx, "SQLiteStore.Add")
	defer span.End()

	start := time.Now()
	defer func() { recordOperation(backendEmbedded, "add", start, err) }()

	span.SetAttributes(attribute.Int("document_count", len(documents)))

	if len(documents) == 0 {
		return nil
	}
	if s.db == nil {
		return fmt.Errorf("%w: %w", ErrWriteFailed, ErrNotInitialized)
	}

	b := newBatch(documents, metadatas, ids).dedupe()

	vectors, err := s.embedder.EmbedDocuments(ctx, b.documents)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		s.logger.Error("embedding failed during add",
			zap.Int("count", b.len()),
			zap.Error(err),
		)
		return fmt.Errorf("%w: %w: %w", ErrWriteFailed, ErrEmbeddingFailed, err)
	}
	if len(vectors) != b.len() {
		err = fmt.Errorf("%w: %w: got %d vectors for %d documents", ErrWriteFailed, ErrEmbeddingFailed, len(vectors), b.len())
		span.RecordError(err)
		return err
	}

	if err = s.upsert(ctx, b, vectors); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		s.logger.Error("failed to add documents", zap.Error(err))
		return fmt.Errorf("%w: %w", ErrWriteFailed, err)
	}

	DocumentsWritten.WithLabelValues(backendEmbedded).Add(float64(b.len()))
	span.SetStatus(codes.Ok, "success")
	s.logger.Debug("added documents", zap.Int("count", b.len()))
	return nil
}

func (s *SQLiteStore) upsert(ctx context.Context, b batch, vectors [][]float32) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO documents(id, content, metadata, embedding, updated_at)
		VALUES(?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			content = excluded.content,
			metadata = excluded.metadata,
			embedding = excluded.embedding,
			updated_at = excluded.updated_at`)
	if err != nil {
		return fmt.Errorf("prepare upsert: %w", err)
	}
	defer stmt.Close()

	now := time.Now().UnixNano()
	for i, id := range b.ids {
		meta, err := encodeMetadata(b.metadatas[i])
		if err != nil {
			return fmt.Errorf("marshal metadata for %s: %w", id, err)
		}
		if _, err := stmt.ExecContext(ctx, id, b.documents[i], string(meta), EncodeEmbedding(vectors[i]), now); err != nil {
			return fmt.Errorf("upsert %s: %w", id, err)
		}
	}

	if s.dimension == 0 && len(vectors) > 0 && len(vectors[0]) > 0 {
		if _, err := tx.ExecContext(ctx,
			`INSERT OR IGNORE INTO collection_meta(key, value) VALUES(?, ?)`,
			metaKeyDimension, strconv.Itoa(len(vectors[0])),
		); err != nil {
			return fmt.Errorf("recording dimension: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	if s.dimension == 0 && len(vectors) > 0 {
		s.dimension = len(vectors[0])
	}
	return nil
}

// storedDocument is a row loaded for ranking.
type storedDocument struct {
	id        string
	content   string
	metadata  map[string]interface{}
	embedding []float32
}

// Search embeds all queries in one batch, then ranks every stored document
// that passes the filter against each query.
func (s *SQLiteStore) Search(ctx context.Context, queryTexts []string, nResults int, filter map[string]interface{}, opts ...SearchOption) []QueryResults {
	ctx, span := sqliteTracer.Start(ctx, "SQLiteStore.Search")
	defer span.End()

	start := time.Now()
	var searchErr error
	defer func() { recordOperation(backendEmbedded, "search", start, searchErr) }()

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

	if s.db == nil {
		searchErr = ErrNotInitialized
		return s.degrade(len(queryTexts), ErrNotInitialized)
	}

	vectors, err := s.embedder.EmbedDocuments(ctx, queryTexts)
	if err == nil && len(vectors) != len(queryTexts) {
		err = fmt.Errorf("got %d vectors for %d queries", len(vectors), len(queryTexts))
	}
	if err != nil {
		searchErr = fmt.Errorf("%w: %w", ErrEmbeddingFailed, err)
		span.RecordError(searchErr)
		span.SetStatus(codes.Error, searchErr.Error())
		s.logger.Error("embedding failed during search, returning empty results",
			zap.Int("query_count", len(queryTexts)),
			zap.Error(err),
		)
		return s.degrade(len(queryTexts), searchErr)
	}

	candidates, err := s.loadCandidates(ctx, filter)
	if err != nil {
		searchErr = err
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		s.logger.Error("search failed, returning empty results", zap.Error(err))
		return s.degrade(len(queryTexts), err)
	}

	out := make([]QueryResults, len(queryTexts))
	for i, qv := range vectors {
		out[i] = QueryResults{Results: s.rank(qv, candidates, nResults, o)}
	}

	span.SetAttributes(attribute.Int("candidate_count", len(candidates)))
	span.SetStatus(codes.Ok, "success")
	return out
}

func (s *SQLiteStore) degrade(n int, cause error) []QueryResults {
	for i := 0; i < n; i++ {
		recordDegraded(backendEmbedded, cause)
	}
	return degradeAll(n, cause)
}

func (s *SQLiteStore) loadCandidates(ctx context.Context, filter map[string]interface{}) ([]storedDocument, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, content, metadata, embedding FROM documents ORDER BY rowid`)
	if err != nil {
		return nil, fmt.Errorf("querying documents: %w", err)
	}
	defer rows.Close()

	var out []storedDocument
	for rows.Next() {
		var (
			doc  storedDocument
			meta string
			blob []byte
		)
		if err := rows.Scan(&doc.id, &doc.content, &meta, &blob); err != nil {
			return nil, fmt.Errorf("scanning document: %w", err)
		}
		doc.metadata, err = decodeMetadata(meta)
		if err != nil {
			return nil, fmt.Errorf("decoding metadata for %s: %w", doc.id, err)
		}
		if !matchesFilter(doc.metadata, filter) {
			continue
		}
		doc.embedding, err = DecodeEmbedding(blob)
		if err != nil {
			return nil, fmt.Errorf("decoding embedding for %s: %w", doc.id, err)
		}
		out = append(out, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating documents: %w", err)
	}
	return out, nil
}

func (s *SQLiteStore) rank(query []float32, candidates []storedDocument, n int, o searchOptions) []QueryResult {
	results := make([]QueryResult, 0, len(candidates))
	for _, doc := range candidates {
		d, err := distanceBetween(s.space, query, doc.embedding)
		if err != nil {
			s.logger.Warn("skipping document during ranking",
				zap.String("id", doc.id),
				zap.Error(err),
			)
			continue
		}
		r := QueryResult{
			ID:       doc.id,
			Metadata: doc.metadata,
			Score:    ScoreFromDistance(s.space, d, s.logger),
		}
		if o.withContent {
			r.Content = doc.content
		}
		results = append(results, r)
	}
	sortByScore(results)
	if len(results) > n {
		results = results[:n]
	}
	return results
}

// Count returns the number of stored documents.
func (s *SQLiteStore) Count(ctx context.Context) (int, error) {
	if s.db == nil {
		return 0, ErrNotInitialized
	}
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM documents`).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting documents: %w", err)
	}
	return n, nil
}

// Reset drops every document and collection setting, then recreates the
// empty schema. A store that was never initialized is initialized first.
func (s *SQLiteStore) Reset(ctx context.Context) (err error) {
	ctx, span := sqliteTracer.Start(ctx, "SQLiteStore.Reset")
	defer span.End()

	start := time.Now()
	defer func() { recordOperation(backendEmbedded, "reset", start, err) }()

	if s.db == nil {
		if err = s.Initialize(ctx); err != nil {
			return err
		}
	}

	if _, err = s.db.ExecContext(ctx, `DROP TABLE IF EXISTS documents; DROP TABLE IF EXISTS collection_meta;`); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("dropping collection %s: %w", s.config.CollectionName, err)
	}
	if err = s.ensureSchema(ctx); err != nil {
		span.RecordError(err)
		return err
	}

	span.SetStatus(codes.Ok, "success")
	s.logger.Info("collection reset")
	return nil
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

// encodeMetadata writes metadata as JSON. Floats always carry a decimal
// point or exponent so decodeMetadata can tell them from integers; NaN and
// infinities are stored as strings.
func encodeMetadata(metadata map[string]interface{}) ([]byte, error) {
	out := make(map[string]interface{}, len(metadata))
	for k, v := range metadata {
		switch val := v.(type) {
		case float64:
			out[k] = floatLiteral(val, 64)
		case float32:
			out[k] = floatLiteral(float64(val), 32)
		default:
			out[k] = v
		}
	}
	return json.Marshal(out)
}

func floatLiteral(f float64, bitSize int) interface{} {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return strconv.FormatFloat(f, 'g', -1, 64)
	}
	lit := strconv.FormatFloat(f, 'g', -1, bitSize)
	if !strings.ContainsAny(lit, ".eE") {
		lit += ".0"
	}
	return json.RawMessage(lit)
}

// decodeMetadata restores JSON metadata. Number literals without a decimal
// point or exponent come back as int64, the rest as float64.
func decodeMetadata(raw string) (map[string]interface{}, error) {
	out := map[string]interface{}{}
	if raw == "" {
		return out, nil
	}
	dec := json.NewDecoder(bytes.NewReader([]byte(raw)))
	dec.UseNumber()
	if err := dec.Decode(&out); err != nil {
		return nil, err
	}
	for k, v := range out {
		num, ok := v.(json.Number)
		if !ok {
			continue
		}
		lit := num.String()
		if !strings.ContainsAny(lit, ".eE") {
			if i, err := num.Int64(); err == nil {
				out[k] = i
				continue
			}
		}
		if f, err := num.Float64(); err == nil && !math.IsInf(f, 0) {
			out[k] = f
		} else {
			out[k] = lit
		}
	}
	return out, nil
}

var _ Store = (*SQLiteStore)(nil)
