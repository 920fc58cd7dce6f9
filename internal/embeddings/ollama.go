package embeddings

import (
	"context"
	"fmt"
	"strings"

	"github.com/philippgille/chromem-go"
	"go.uber.org/zap"
)

const (
	// DefaultOllamaURL is the API root of a local Ollama daemon.
	DefaultOllamaURL = "http://localhost:11434/api"

	// DefaultOllamaModel is used when no model is configured.
	DefaultOllamaModel = "nomic-embed-text"
)

// OllamaProvider embeds with a local Ollama model via chromem-go's
// embedding function. Ollama has no batch endpoint, so documents are
// embedded one at a time.
type OllamaProvider struct {
	embed     chromem.EmbeddingFunc
	model     string
	dimension int
	logger    *zap.Logger
}

// NewOllamaProvider creates an Ollama provider. Nothing is contacted until
// the first embedding call.
func NewOllamaProvider(opts Options, logger *zap.Logger) (*OllamaProvider, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	model := strings.TrimSpace(opts.Model)
	if model == "" {
		model = DefaultOllamaModel
	}
	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = DefaultOllamaURL
	}

	return &OllamaProvider{
		embed:     chromem.NewEmbeddingFuncOllama(model, baseURL),
		model:     model,
		dimension: resolveDimension(model, opts.Dimension),
		logger:    logger,
	}, nil
}

// EmbedDocuments embeds each text in order and stops at the first failure.
func (p *OllamaProvider) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, fmt.Errorf("%w: texts cannot be empty", ErrEmptyInput)
	}

	vectors := make([][]float32, len(texts))
	for i, text := range texts {
		v, err := p.embed(ctx, text)
		if err != nil {
			p.logger.Debug("ollama embedding failed",
				zap.String("model", p.model),
				zap.Int("index", i),
				zap.Error(err),
			)
			return nil, fmt.Errorf("%w: text %d: %w", ErrEmbeddingFailed, i, err)
		}
		vectors[i] = v
	}
	return vectors, nil
}

// EmbedQuery embeds a single text.
func (p *OllamaProvider) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	if text == "" {
		return nil, fmt.Errorf("%w: text cannot be empty", ErrEmptyInput)
	}
	v, err := p.embed(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrEmbeddingFailed, err)
	}
	return v, nil
}

// Dimension returns the configured or inferred embedding size.
func (p *OllamaProvider) Dimension() int {
	return p.dimension
}

// Close is a no-op.
func (p *OllamaProvider) Close() error {
	return nil
}
