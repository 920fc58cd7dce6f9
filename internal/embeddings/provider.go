package embeddings

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/fyrsmithlabs/ragstore/internal/vectorstore"
	"go.uber.org/zap"
)

var (
	// ErrEmptyInput indicates empty or nil input texts.
	ErrEmptyInput = errors.New("empty or nil input texts")

	// ErrInvalidConfig is vectorstore.ErrInvalidConfig so callers can test
	// provider and store configuration failures with one errors.Is.
	ErrInvalidConfig = vectorstore.ErrInvalidConfig

	// ErrEmbeddingFailed is vectorstore.ErrEmbeddingFailed.
	ErrEmbeddingFailed = vectorstore.ErrEmbeddingFailed
)

// Provider names accepted by NewProvider.
const (
	ProviderFastEmbed = "fastembed"
	ProviderTEI       = "tei"
	ProviderOpenAI    = "openai"
	ProviderOllama    = "ollama"
)

// Provider is the interface for embedding providers.
type Provider interface {
	vectorstore.Embedder
	// Dimension returns the embedding dimension for the current model.
	Dimension() int
	// Close releases resources held by the provider.
	Close() error
}

// ProviderConfig selects and configures an embedding provider.
type ProviderConfig struct {
	// Provider is one of fastembed, tei, openai, ollama.
	Provider string
	Config   Options
}

// Options are the provider settings. Each provider reads the subset it needs.
type Options struct {
	Model   string
	APIKey  string
	BaseURL string

	// CacheDir is the model cache directory (fastembed only).
	CacheDir string

	// Dimension overrides the dimension inferred from the model name.
	Dimension int

	// BatchSize caps texts per upstream request (openai only).
	BatchSize int

	ShowProgress bool
}

type providerBuilder func(opts Options, logger *zap.Logger) (Provider, error)

var providerBuilders = map[string]providerBuilder{
	ProviderFastEmbed: func(opts Options, _ *zap.Logger) (Provider, error) {
		p, err := NewFastEmbedProvider(FastEmbedConfig{
			Model:        opts.Model,
			CacheDir:     opts.CacheDir,
			ShowProgress: opts.ShowProgress,
		})
		if err != nil {
			return nil, err
		}
		return p, nil
	},
	ProviderTEI: func(opts Options, _ *zap.Logger) (Provider, error) {
		p, err := NewTEIProvider(opts)
		if err != nil {
			return nil, err
		}
		return p, nil
	},
	ProviderOpenAI: func(opts Options, _ *zap.Logger) (Provider, error) {
		p, err := NewOpenAIProvider(opts)
		if err != nil {
			return nil, err
		}
		return p, nil
	},
	ProviderOllama: func(opts Options, logger *zap.Logger) (Provider, error) {
		p, err := NewOllamaProvider(opts, logger)
		if err != nil {
			return nil, err
		}
		return p, nil
	},
}

// SupportedProviders returns the accepted provider names, sorted.
func SupportedProviders() []string {
	names := make([]string, 0, len(providerBuilders))
	for name := range providerBuilders {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// NewProvider creates an embedding provider based on the configuration.
// The returned provider records generation metrics for every call.
func NewProvider(cfg ProviderConfig, logger *zap.Logger) (Provider, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	name := strings.ToLower(strings.TrimSpace(cfg.Provider))
	build, ok := providerBuilders[name]
	if !ok {
		return nil, fmt.Errorf("%w: unknown embedding provider %q (supported: %s)",
			ErrInvalidConfig, cfg.Provider, strings.Join(SupportedProviders(), ", "))
	}

	p, err := build(cfg.Config, logger)
	if err != nil {
		return nil, fmt.Errorf("creating %s provider: %w", name, err)
	}

	logger.Info("embedding provider ready",
		zap.String("provider", name),
		zap.String("model", cfg.Config.Model),
		zap.Int("dimension", p.Dimension()),
	)

	return instrument(p, cfg.Config.Model, NewMetrics(logger)), nil
}

// knownDimensions lists output sizes for hosted and Ollama models.
// FastEmbed models are resolved by fastEmbedModelDimension.
var knownDimensions = map[string]int{
	"text-embedding-3-small": 1536,
	"text-embedding-3-large": 3072,
	"text-embedding-ada-002": 1536,
	"nomic-embed-text":       768,
	"mxbai-embed-large":      1024,
	"all-minilm":             384,
	"snowflake-arctic-embed": 1024,
}

// resolveDimension returns override when set, otherwise a best guess from
// the model name. Falls back to 384 if the model is unknown.
func resolveDimension(model string, override int) int {
	if override > 0 {
		return override
	}
	if dim, ok := fastEmbedModelDimension(model); ok {
		return dim
	}
	base := strings.ToLower(model)
	if i := strings.IndexByte(base, ':'); i >= 0 {
		base = base[:i]
	}
	if dim, ok := knownDimensions[base]; ok {
		return dim
	}

	switch {
	case strings.Contains(base, "base"):
		return 768
	case strings.Contains(base, "large"):
		return 1024
	default:
		return 384
	}
}
