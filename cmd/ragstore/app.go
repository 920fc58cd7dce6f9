package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/ragstore/internal/config"
	"github.com/fyrsmithlabs/ragstore/internal/embeddings"
	"github.com/fyrsmithlabs/ragstore/internal/logging"
	"github.com/fyrsmithlabs/ragstore/internal/rag"
	"github.com/fyrsmithlabs/ragstore/internal/telemetry"
	"github.com/fyrsmithlabs/ragstore/internal/vectorstore"
)

// app holds everything one command invocation needs. It is built once per
// invocation and torn down in reverse order by Close.
type app struct {
	config    *config.Config
	logger    *logging.Logger
	telemetry *telemetry.Telemetry
	provider  embeddings.Provider
	storage   *rag.Storage
}

// openApp loads configuration, then builds the logger, telemetry, the
// embedding provider and the storage, and initializes the storage.
func openApp(ctx context.Context, deps dependencies, flags *globalFlags, logOutput io.Writer) (*app, error) {
	cfg, err := deps.loadConfig(flags.configPath)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	if flags.collection != "" {
		cfg.Storage.CollectionName = flags.collection
	}
	if flags.storeType != "" {
		cfg.Storage.Type = flags.storeType
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
	}

	a := &app{config: cfg}
	if err := a.open(ctx, logOutput, deps); err != nil {
		_ = a.Close()
		return nil, err
	}
	return a, nil
}

func (a *app) open(ctx context.Context, logOutput io.Writer, deps dependencies) error {
	cfg := a.config

	logCfg, err := logging.FromSettings(cfg.Logging)
	if err != nil {
		return fmt.Errorf("logging config: %w", err)
	}
	logCfg.Output.Writer = logOutput
	if a.logger, err = logging.NewLogger(logCfg, nil); err != nil {
		return fmt.Errorf("creating logger: %w", err)
	}
	zlog := a.logger.Underlying()

	if a.telemetry, err = telemetry.New(ctx, telemetry.FromSettings(cfg.Telemetry), zlog); err != nil {
		return fmt.Errorf("starting telemetry: %w", err)
	}

	a.provider, err = deps.newProvider(embeddings.ProviderConfig{
		Provider: cfg.Embedding.Provider,
		Config: embeddings.Options{
			Model:        cfg.Embedding.Config.Model,
			APIKey:       cfg.Embedding.Config.APIKey.Value(),
			BaseURL:      cfg.Embedding.Config.BaseURL,
			CacheDir:     cfg.Embedding.Config.CacheDir,
			Dimension:    cfg.Embedding.Config.Dimension,
			BatchSize:    cfg.Embedding.Config.BatchSize,
			ShowProgress: cfg.Embedding.Config.ShowProgress,
		},
	}, zlog)
	if err != nil {
		return fmt.Errorf("creating embedding provider: %w", err)
	}

	a.storage, err = rag.New(storageConfig(cfg), a.provider, zlog)
	if err != nil {
		return fmt.Errorf("creating storage: %w", err)
	}
	if err := a.storage.Initialize(ctx); err != nil {
		return err
	}

	a.logger.Debug(ctx, "ragstore ready",
		zap.String("store", cfg.Storage.Type),
		zap.String("collection", a.storage.CollectionName()),
		zap.String("provider", cfg.Embedding.Provider),
		zap.Bool("telemetry", a.telemetry.IsEnabled()),
		zap.Bool("telemetry_degraded", a.telemetry.Health().Degraded),
		logging.Secret("embedding_api_key", cfg.Embedding.Config.APIKey),
	)
	return nil
}

// commandContext tags ctx with a fresh request ID, the collection and the
// logger.
func (a *app) commandContext(ctx context.Context) context.Context {
	ctx = logging.WithRequestID(ctx, uuid.NewString())
	ctx = logging.WithCollection(ctx, a.storage.CollectionName())
	return logging.WithLogger(ctx, a.logger)
}

// storageConfig maps the file/env settings onto the façade config.
func storageConfig(cfg *config.Config) rag.Config {
	return rag.Config{
		Type:           cfg.Storage.MemoryType,
		Agents:         cfg.Storage.Agents,
		CollectionName: cfg.Storage.CollectionName,
		Store: vectorstore.StoreConfig{
			Type:        strings.ToLower(cfg.Storage.Type),
			PersistPath: cfg.Storage.PersistPath,
			Distance:    cfg.Storage.Distance,
			Compress:    cfg.Storage.Compress,
			Qdrant: vectorstore.QdrantConfig{
				Host:         cfg.Qdrant.Host,
				Port:         cfg.Qdrant.Port,
				APIKey:       cfg.Qdrant.APIKey.Value(),
				UseTLS:       cfg.Qdrant.UseTLS,
				MaxRetries:   cfg.Qdrant.MaxRetries,
				RetryBackoff: cfg.Qdrant.RetryBackoff.Duration(),
			},
		},
	}
}

// Close releases everything open was able to build.
func (a *app) Close() error {
	var errs []error
	if a.storage != nil {
		if err := a.storage.Close(); err != nil {
			errs = append(errs, fmt.Errorf("closing storage: %w", err))
		}
	}
	if a.provider != nil {
		if err := a.provider.Close(); err != nil {
			errs = append(errs, fmt.Errorf("closing embedding provider: %w", err))
		}
	}
	if a.telemetry != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := a.telemetry.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("telemetry shutdown: %w", err))
		}
	}
	if a.logger != nil {
		_ = a.logger.Sync()
	}
	return errors.Join(errs...)
}
