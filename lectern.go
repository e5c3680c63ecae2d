// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


package lectern

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/poiesic/lectern/ai"
	"github.com/poiesic/lectern/ai/openai"
	"github.com/poiesic/lectern/answer"
	"github.com/poiesic/lectern/citation"
	"github.com/poiesic/lectern/config"
	"github.com/poiesic/lectern/extract"
	"github.com/poiesic/lectern/ingestion"
	"github.com/poiesic/lectern/search"
	"github.com/poiesic/lectern/storage"
	"github.com/poiesic/lectern/storage/badger"
	"github.com/poiesic/lectern/storage/qdrant"
	"github.com/poiesic/lectern/storage/sqlite"
)

// probeText is embedded to discover the embedding dimension.
const probeText = "dimension probe"

// ErrConfigRequired is returned by Open when no configuration is given.
var ErrConfigRequired = errors.New("configuration is required")

// Library owns the vector store and AI services for one collection and
// hands them to ingestion and retrieval.
type Library struct {
	cfg      *config.Config
	store    storage.VectorStore
	provider ai.AIProvider
	embedder ai.Embedder
	engine   *search.Engine
	composer *answer.Composer
	base     *slog.Logger
	logger   *slog.Logger

	closeOnce sync.Once
	closeErr  error
}

// Option configures a Library.
type Option func(*libraryOptions) error

type libraryOptions struct {
	provider      ai.AIProvider
	store         storage.VectorStore
	logger        *slog.Logger
	retryAttempts int
	retryDelay    time.Duration
	deferred      bool
}

// WithProvider injects the AI provider instead of building one from the
// configuration. The library takes ownership and closes it.
func WithProvider(provider ai.AIProvider) Option {
	return func(o *libraryOptions) error {
		o.provider = provider
		return nil
	}
}

// WithStore injects the vector store instead of opening the configured one.
// The library takes ownership and closes it.
func WithStore(store storage.VectorStore) Option {
	return func(o *libraryOptions) error {
		o.store = store
		return nil
	}
}

// WithLogger sets a custom logger, passed on to every component.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(o *libraryOptions) error {
		o.logger = logger
		return nil
	}
}

// WithRetry retries failed embedding calls up to maxAttempts times with
// exponential backoff starting at baseDelay.
func WithRetry(maxAttempts int, baseDelay time.Duration) Option {
	return func(o *libraryOptions) error {
		if maxAttempts < 1 {
			return ai.ErrInvalidMaxAttempts
		}
		o.retryAttempts = maxAttempts
		o.retryDelay = baseDelay
		return nil
	}
}

// WithDeferredCollection skips creating the collection in Open. Ingestion
// creates it on the first stored batch.
func WithDeferredCollection() Option {
	return func(o *libraryOptions) error {
		o.deferred = true
		return nil
	}
}

// Open builds a Library from cfg and ensures its collection exists.
// A configured dimension of zero is discovered by embedding a probe text.
func Open(ctx context.Context, cfg *config.Config, opts ...Option) (*Library, error) {
	if cfg == nil {
		return nil, ErrConfigRequired
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	options := &libraryOptions{}
	for _, opt := range opts {
		if err := opt(options); err != nil {
			return nil, err
		}
	}
	if options.logger == nil {
		options.logger = slog.Default()
	}

	lib := &Library{
		cfg:    cfg,
		base:   options.logger,
		logger: options.logger.With("component", "library", "collection", cfg.Collection),
	}

	lib.provider = options.provider
	if lib.provider == nil {
		provider, err := openai.NewProvider(cfg.ProviderConfig())
		if err != nil {
			return nil, err
		}
		lib.provider = provider
	}

	lib.store = options.store
	if lib.store == nil {
		store, err := OpenStore(cfg, options.logger)
		if err != nil {
			lib.provider.Close()
			return nil, err
		}
		lib.store = store
	}

	lib.embedder = lib.provider.Embedder()
	if options.retryAttempts > 0 {
		embedder, err := ai.NewRetryingEmbedder(lib.embedder, options.retryAttempts, options.retryDelay)
		if err != nil {
			lib.Close()
			return nil, err
		}
		lib.embedder = embedder
	}

	engine, err := lib.NewEngine()
	if err != nil {
		lib.Close()
		return nil, err
	}
	lib.engine = engine

	composer, err := answer.NewComposer(lib.provider.Generator(), answer.WithLogger(options.logger))
	if err != nil {
		lib.Close()
		return nil, err
	}
	lib.composer = composer

	if !options.deferred {
		if err := lib.ensureCollection(ctx); err != nil {
			lib.Close()
			return nil, err
		}
	}
	return lib, nil
}

// OpenStore opens the vector store selected by the configuration.
func OpenStore(cfg *config.Config, logger *slog.Logger) (storage.VectorStore, error) {
	switch cfg.Store.Type {
	case config.StoreBadger:
		return badger.OpenStore(cfg.StorePath(), cfg.Collection, badger.WithLogger(logger))
	case config.StoreSQLite:
		return sqlite.OpenStore(cfg.StorePath(), cfg.Collection, sqlite.WithLogger(logger))
	case config.StoreQdrant:
		return qdrant.Open(qdrant.Config{
			Host:   cfg.Store.Qdrant.Host,
			Port:   cfg.Store.Qdrant.Port,
			APIKey: cfg.QdrantAPIKey(),
			UseTLS: cfg.Store.Qdrant.UseTLS,
		}, cfg.Collection, qdrant.WithTimeout(cfg.AI.Timeout), qdrant.WithLogger(logger))
	default:
		return nil, fmt.Errorf("%w: unknown store type %q", config.ErrInvalidConfig, cfg.Store.Type)
	}
}

// ensureCollection creates the collection or checks that the existing one
// matches the configuration.
func (l *Library) ensureCollection(ctx context.Context) error {
	exists, err := l.store.CollectionExists(ctx)
	if err != nil {
		return err
	}
	if exists {
		info, err := l.store.Info(ctx)
		if err != nil {
			return err
		}
		dimension := l.cfg.Dimension
		if dimension == 0 {
			dimension = info.Dimension
		}
		return storage.CheckCompatible(info, dimension, l.cfg.StoreMetric())
	}

	dimension := l.cfg.Dimension
	if dimension == 0 {
		vector, err := l.embedder.EmbedText(ctx, probeText)
		if err != nil {
			return &ai.EmbeddingError{Count: 1, Err: err}
		}
		dimension = len(vector)
		l.logger.Info("probed embedding dimension", "dimension", dimension)
	}
	return l.store.EnsureCollection(ctx, dimension, l.cfg.StoreMetric())
}

// Config returns the library's configuration.
func (l *Library) Config() *config.Config {
	return l.cfg
}

// Store returns the library's vector store.
func (l *Library) Store() storage.VectorStore {
	return l.store
}

// Engine returns the library's retrieval engine.
func (l *Library) Engine() *search.Engine {
	return l.engine
}

// NewIngestionPipeline creates a pipeline configured from the library's
// settings. opts are applied after the configured ones.
func (l *Library) NewIngestionPipeline(opts ...ingestion.Option) (*ingestion.Pipeline, error) {
	policy, err := ingestion.ParseDedupPolicy(l.cfg.Ingestion.Dedup)
	if err != nil {
		return nil, err
	}
	base := []ingestion.Option{
		ingestion.WithBatchSize(l.cfg.Ingestion.BatchSize),
		ingestion.WithChunkSize(l.cfg.Ingestion.ChunkSize),
		ingestion.WithChunkOverlap(l.cfg.Ingestion.ChunkOverlap),
		ingestion.WithDedupPolicy(policy),
		ingestion.WithMetric(l.cfg.StoreMetric()),
		ingestion.WithLogger(l.base),
	}
	return ingestion.NewPipeline(l.store, l.embedder, append(base, opts...)...)
}

// NewEngine creates a retrieval engine with the configured entities.
// The caller must Release it.
func (l *Library) NewEngine(opts ...search.Option) (*search.Engine, error) {
	base := []search.Option{
		search.WithEntities(l.cfg.Entities()...),
		search.WithMetric(l.cfg.StoreMetric()),
		search.WithDimension(l.cfg.Dimension),
		search.WithLogger(l.base),
	}
	return search.NewEngine(l.store, l.embedder, append(base, opts...)...)
}

// Ingest adds the documents of src that are not yet in the collection.
func (l *Library) Ingest(ctx context.Context, src extract.Source, opts ...ingestion.Option) (*ingestion.Result, error) {
	pipeline, err := l.NewIngestionPipeline(opts...)
	if err != nil {
		return nil, err
	}
	return pipeline.Run(ctx, src)
}

// Retrieve returns the passages matching query, grouped for citation.
func (l *Library) Retrieve(ctx context.Context, query string, limit int, threshold float32) (*citation.Citations, error) {
	results, err := l.engine.Query(ctx, query, limit, threshold)
	if err != nil {
		return nil, err
	}
	return citation.GroupResults(results), nil
}

// Ask answers question from the passages it retrieves.
// It returns answer.ErrNoContext if nothing relevant was found.
func (l *Library) Ask(ctx context.Context, question string, limit int, threshold float32) (*answer.Answer, error) {
	citations, err := l.Retrieve(ctx, question, limit, threshold)
	if err != nil {
		return nil, err
	}
	return l.composer.Compose(ctx, question, citations)
}

// Info describes the collection.
func (l *Library) Info(ctx context.Context) (*storage.CollectionInfo, error) {
	return l.store.Info(ctx)
}

// Drop deletes the collection and every point in it.
func (l *Library) Drop(ctx context.Context) error {
	l.logger.Warn("dropping collection")
	return l.store.DeleteCollection(ctx)
}

// Close releases the engine and closes the provider and store.
// It is safe to call more than once.
func (l *Library) Close() error {
	l.closeOnce.Do(func() {
		if l.engine != nil {
			l.engine.Release()
		}
		if l.provider != nil {
			if err := l.provider.Close(); err != nil {
				l.logger.Error("error closing AI provider", "err", err)
				l.closeErr = err
			}
		}
		if l.store != nil {
			if err := l.store.Close(); err != nil {
				l.logger.Error("error closing store", "err", err)
				l.closeErr = err
			}
		}
	})
	return l.closeErr
}
