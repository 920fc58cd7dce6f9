// Package config loads ragstore configuration from YAML and the environment.
package config

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/fyrsmithlabs/ragstore/internal/embeddings"
	"github.com/fyrsmithlabs/ragstore/internal/vectorstore"
)

// Config holds the complete ragstore configuration.
type Config struct {
	Storage   StorageConfig   `koanf:"storage"`
	Embedding EmbeddingConfig `koanf:"embedding"`
	Qdrant    QdrantConfig    `koanf:"qdrant"`
	Logging   LoggingConfig   `koanf:"logging"`
	Telemetry TelemetryConfig `koanf:"telemetry"`
}

// StorageConfig selects the backend and the collection.
type StorageConfig struct {
	// Type is the backend: embedded, collection or qdrant.
	Type string `koanf:"type"`

	// CollectionName, when set, is used as-is (after sanitizing) instead of
	// the name derived from MemoryType and Agents.
	CollectionName string `koanf:"collection_name"`

	// MemoryType names the kind of memory, e.g. short_term, entities, knowledge.
	MemoryType string   `koanf:"memory_type"`
	Agents     []string `koanf:"agents"`

	PersistPath string `koanf:"persist_path"`
	Distance    string `koanf:"distance"`
	Compress    bool   `koanf:"compress"`
}

// EmbeddingConfig mirrors {provider: name, config: {...}}.
type EmbeddingConfig struct {
	Provider string                `koanf:"provider"`
	Config   EmbeddingProviderConf `koanf:"config"`
}

// EmbeddingProviderConf holds the provider-specific settings.
type EmbeddingProviderConf struct {
	Model        string `koanf:"model"`
	APIKey       Secret `koanf:"api_key"`
	BaseURL      string `koanf:"base_url"`
	CacheDir     string `koanf:"cache_dir"`
	Dimension    int    `koanf:"dimension"`
	BatchSize    int    `koanf:"batch_size"`
	ShowProgress bool   `koanf:"show_progress"`
}

// QdrantConfig holds the remote engine connection settings.
type QdrantConfig struct {
	Host         string   `koanf:"host"`
	Port         int      `koanf:"port"`
	APIKey       Secret   `koanf:"api_key"`
	UseTLS       bool     `koanf:"use_tls"`
	MaxRetries   int      `koanf:"max_retries"`
	RetryBackoff Duration `koanf:"retry_backoff"`
}

// LoggingConfig is the subset of logging settings exposed in the file.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
	OTEL   bool   `koanf:"otel"`
}

// TelemetryConfig controls OTLP export of traces and metrics.
type TelemetryConfig struct {
	Enabled       bool    `koanf:"enabled"`
	Endpoint      string  `koanf:"endpoint"`
	Protocol      string  `koanf:"protocol"`
	Insecure      bool    `koanf:"insecure"`
	TLSSkipVerify bool    `koanf:"tls_skip_verify"`
	ServiceName   string  `koanf:"service_name"`
	SampleRate    float64 `koanf:"sample_rate"`
}

// Default returns a config that runs fully local: an embedded store fed by
// a local Ollama model.
func Default() *Config {
	cfg := &Config{}
	applyDefaults(cfg)
	return cfg
}

// applyDefaults sets default values for missing configuration fields.
func applyDefaults(cfg *Config) {
	if cfg.Storage.Type == "" {
		cfg.Storage.Type = vectorstore.TypeEmbedded
	}
	if cfg.Storage.MemoryType == "" && cfg.Storage.CollectionName == "" {
		cfg.Storage.MemoryType = "short_term"
	}

	if cfg.Embedding.Provider == "" {
		cfg.Embedding.Provider = embeddings.ProviderOllama
	}

	if cfg.Qdrant.Host == "" {
		cfg.Qdrant.Host = "localhost"
	}
	if cfg.Qdrant.Port == 0 {
		cfg.Qdrant.Port = 6334
	}
	if cfg.Qdrant.MaxRetries == 0 {
		cfg.Qdrant.MaxRetries = 3
	}
	if cfg.Qdrant.RetryBackoff == 0 {
		cfg.Qdrant.RetryBackoff = Duration(time.Second)
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}

	if cfg.Telemetry.Endpoint == "" {
		cfg.Telemetry.Endpoint = "localhost:4317"
	}
	if cfg.Telemetry.Protocol == "" {
		cfg.Telemetry.Protocol = "grpc"
	}
	if cfg.Telemetry.ServiceName == "" {
		cfg.Telemetry.ServiceName = "ragstore"
	}
	if cfg.Telemetry.SampleRate == 0 {
		cfg.Telemetry.SampleRate = 1.0
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	var errs []error

	if !slices.Contains(vectorstore.SupportedTypes(), strings.ToLower(strings.TrimSpace(c.Storage.Type))) {
		errs = append(errs, fmt.Errorf("storage.type %q unsupported (supported: %s)",
			c.Storage.Type, strings.Join(vectorstore.SupportedTypes(), ", ")))
	}
	if _, err := vectorstore.ParseDistanceSpace(c.Storage.Distance, vectorstore.SpaceCosine); err != nil {
		errs = append(errs, fmt.Errorf("storage.distance: %w", err))
	}
	if strings.TrimSpace(c.Storage.CollectionName) == "" && strings.TrimSpace(c.Storage.MemoryType) == "" {
		errs = append(errs, errors.New("storage needs collection_name or memory_type"))
	}

	if !slices.Contains(embeddings.SupportedProviders(), strings.ToLower(strings.TrimSpace(c.Embedding.Provider))) {
		errs = append(errs, fmt.Errorf("embedding.provider %q unsupported (supported: %s)",
			c.Embedding.Provider, strings.Join(embeddings.SupportedProviders(), ", ")))
	}
	if c.Embedding.Config.Dimension < 0 {
		errs = append(errs, fmt.Errorf("embedding.config.dimension must be >= 0, got %d", c.Embedding.Config.Dimension))
	}

	if c.Qdrant.Port < 1 || c.Qdrant.Port > 65535 {
		errs = append(errs, fmt.Errorf("qdrant.port %d out of range (1-65535)", c.Qdrant.Port))
	}

	switch c.Logging.Format {
	case "json", "console":
	default:
		errs = append(errs, fmt.Errorf("logging.format must be 'json' or 'console', got %q", c.Logging.Format))
	}

	switch c.Telemetry.Protocol {
	case "grpc", "http/protobuf":
	default:
		errs = append(errs, fmt.Errorf("telemetry.protocol must be 'grpc' or 'http/protobuf', got %q", c.Telemetry.Protocol))
	}
	if c.Telemetry.SampleRate < 0 || c.Telemetry.SampleRate > 1 {
		errs = append(errs, fmt.Errorf("telemetry.sample_rate must be between 0 and 1, got %g", c.Telemetry.SampleRate))
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", vectorstore.ErrInvalidConfig, errors.Join(errs...))
	}
	return nil
}
