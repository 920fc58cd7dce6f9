// Package vectorstore defines the interface for vector storage operations.
package vectorstore

import (
	"context"
	"errors"
)

// Sentinel errors for vector store operations.
var (
	// ErrInvalidConfig indicates invalid configuration: an unsupported store
	// type, an embedding provider that cannot be built, missing credentials.
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrWriteFailed wraps any failure while adding documents.
	ErrWriteFailed = errors.New("write failed")

	// ErrReadDegraded marks a query whose results were dropped because the
	// backend or the embedding provider failed.
	ErrReadDegraded = errors.New("search degraded")

	// ErrEmbeddingFailed indicates embedding generation failure.
	ErrEmbeddingFailed = errors.New("failed to generate embeddings")

	// ErrNotInitialized is returned when a store is used before Initialize.
	ErrNotInitialized = errors.New("store not initialized")

	// ErrInvalidCollectionName indicates collection name validation failure.
	ErrInvalidCollectionName = errors.New("invalid collection name")

	// ErrConnectionFailed indicates the remote engine could not be reached.
	ErrConnectionFailed = errors.New("failed to connect to vector engine")
)

// Embedder generates vector embeddings from text.
//
// Implementations can use local models (FastEmbed, TEI) or cloud APIs
// (OpenAI-compatible endpoints, Ollama).
type Embedder interface {
	// EmbedDocuments generates embeddings for multiple texts.
	// Returns one embedding per input text, in input order.
	EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error)

	// EmbedQuery generates an embedding for a single query.
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// Store is the backend-neutral contract every vector store satisfies.
//
// Stores are bound to a single collection at construction time. Calls are
// synchronous and a Store is not safe for concurrent writers; callers that
// share one collection across goroutines serialize writes themselves.
//
// Implementations:
//   - SQLiteStore: embedded SQL file per collection, ranking done locally
//   - ChromemStore: embedded document-collection engine that embeds on its own
//   - QdrantStore: external Qdrant over gRPC
type Store interface {
	// Initialize opens the collection, creating it when missing.
	// Calling it again is a no-op.
	Initialize(ctx context.Context) error

	// Add upserts documents.
	//
	// Missing ids are derived from the document text (ContentID), so adding the
	// same text twice replaces rather than duplicates. Missing metadatas are
	// treated as empty. Every metadata mapping passes through
	// sanitize.Metadata before it is written.
	//
	// Failures are returned wrapped in ErrWriteFailed.
	Add(ctx context.Context, documents []string, metadatas []map[string]interface{}, ids []string) error

	// Search runs one similarity query per text and never fails as a whole.
	//
	// The returned slice has exactly one entry per query text. Each entry holds
	// at most nResults matches sorted by descending score, or a non-nil Err
	// wrapping ErrReadDegraded when that query could not be served.
	Search(ctx context.Context, queryTexts []string, nResults int, filter map[string]interface{}, opts ...SearchOption) []QueryResults

	// Reset deletes every document by dropping and recreating the collection.
	// A collection that does not exist yet is created.
	Reset(ctx context.Context) error

	// CollectionName returns the sanitized collection this store is bound to.
	CollectionName() string

	// Close releases resources held by the store.
	Close() error
}
