package vectorstore

import (
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/ragstore/internal/sanitize"
)

// Store type tags accepted by NewStore.
const (
	TypeEmbedded   = "embedded"
	TypeCollection = "collection"
	TypeQdrant     = "qdrant"
)

// StoreConfig selects and configures a backend.
type StoreConfig struct {
	// Type is one of TypeEmbedded, TypeCollection or TypeQdrant.
	// Default: embedded
	Type string

	// CollectionName is sanitized into a collection identifier.
	CollectionName string

	// PersistPath is the root directory for embedded backends.
	// Default: DefaultPersistRoot()
	PersistPath string

	// Distance is the space for newly created collections. Empty means the
	// backend default.
	Distance string

	// Compress enables gzip for the collection backend.
	Compress bool

	// Qdrant configures the qdrant backend. Its CollectionName and Distance
	// are taken from the fields above.
	Qdrant QdrantConfig
}

// storeBuilder constructs one backend from a resolved config.
type storeBuilder func(cfg StoreConfig, space DistanceSpace, embedder Embedder, logger *zap.Logger) (Store, error)

var storeBuilders = map[string]storeBuilder{
	TypeEmbedded: func(cfg StoreConfig, space DistanceSpace, embedder Embedder, logger *zap.Logger) (Store, error) {
		return NewSQLiteStore(SQLiteConfig{
			Path:           cfg.PersistPath,
			CollectionName: cfg.CollectionName,
			Distance:       space,
		}, embedder, logger)
	},
	TypeCollection: func(cfg StoreConfig, space DistanceSpace, embedder Embedder, logger *zap.Logger) (Store, error) {
		return NewChromemStore(ChromemConfig{
			Path:           cfg.PersistPath,
			CollectionName: cfg.CollectionName,
			Compress:       cfg.Compress,
			Distance:       space,
		}, embedder, logger)
	},
	TypeQdrant: func(cfg StoreConfig, space DistanceSpace, embedder Embedder, logger *zap.Logger) (Store, error) {
		qcfg := cfg.Qdrant
		qcfg.CollectionName = cfg.CollectionName
		qcfg.Distance = space
		if qcfg.VectorSize == 0 {
			if d, ok := embedder.(interface{ Dimension() int }); ok && d.Dimension() > 0 {
				qcfg.VectorSize = uint64(d.Dimension())
			}
		}
		return NewQdrantStore(qcfg, embedder, logger)
	},
}

// SupportedTypes lists the store type tags NewStore accepts.
func SupportedTypes() []string {
	types := make([]string, 0, len(storeBuilders))
	for t := range storeBuilders {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}

// NewStore builds the backend named by cfg.Type. Nothing is opened until the
// returned store's Initialize.
//
//	store, err := vectorstore.NewStore(vectorstore.StoreConfig{
//	    Type:           vectorstore.TypeEmbedded,
//	    CollectionName: "short_term",
//	}, provider, logger)
//	if err != nil {
//	    return err
//	}
//	defer store.Close()
func NewStore(cfg StoreConfig, embedder Embedder, logger *zap.Logger) (Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	typ := strings.ToLower(strings.TrimSpace(cfg.Type))
	if typ == "" {
		typ = TypeEmbedded
	}
	build, ok := storeBuilders[typ]
	if !ok {
		return nil, fmt.Errorf("%w: unsupported store type %q (supported: %s)",
			ErrInvalidConfig, cfg.Type, strings.Join(SupportedTypes(), ", "))
	}

	cfg.CollectionName = sanitize.CollectionName(cfg.CollectionName)

	var space DistanceSpace
	if cfg.Distance != "" {
		parsed, err := ParseDistanceSpace(cfg.Distance, "")
		if err != nil {
			return nil, err
		}
		space = parsed
	}

	if cfg.PersistPath != "" {
		path, err := expandPath(cfg.PersistPath)
		if err != nil {
			return nil, fmt.Errorf("expanding persist path: %w", err)
		}
		clean, err := sanitize.ValidatePath(path, "")
		if err != nil {
			return nil, fmt.Errorf("%w: persist path: %w", ErrInvalidConfig, err)
		}
		cfg.PersistPath = clean
	}

	store, err := build(cfg, space, embedder, logger)
	if err != nil {
		return nil, fmt.Errorf("creating %s store: %w", typ, err)
	}

	logger.Debug("vector store created",
		zap.String("type", typ),
		zap.String("collection", store.CollectionName()),
	)
	return store, nil
}
