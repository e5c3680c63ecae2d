package search

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/panjf2000/ants/v2"
	"github.com/poiesic/lectern/ai"
	"github.com/poiesic/lectern/core"
	"github.com/poiesic/lectern/storage"
)

// OverFetchFactor is how many candidates are requested per result, leaving
// room for the ones the filters drop.
const OverFetchFactor = 2

// Engine answers queries with filtered, cleaned passages from a vector store.
// It is safe for concurrent use.
type Engine struct {
	store     storage.VectorStore
	embedder  ai.Embedder
	metric    storage.Metric
	dimension int
	entities  []*entityMatcher
	pool      *ants.Pool
	logger    *slog.Logger
}

// Option configures an Engine.
type Option func(*Engine) error

// WithEntities sets the entities whose informal mentions trigger disambiguation.
func WithEntities(entities ...Entity) Option {
	return func(e *Engine) error {
		matchers := make([]*entityMatcher, 0, len(entities))
		for _, entity := range entities {
			m, err := newEntityMatcher(entity)
			if err != nil {
				return err
			}
			matchers = append(matchers, m)
		}
		e.entities = matchers
		return nil
	}
}

// WithMetric sets the metric the collection must use. Queries against a
// collection created with another metric fail with storage.ErrConfigMismatch.
// Default is to accept the collection's metric.
func WithMetric(metric storage.Metric) Option {
	return func(e *Engine) error {
		if _, err := storage.ParseMetric(string(metric)); err != nil {
			return err
		}
		e.metric = metric
		return nil
	}
}

// WithDimension sets the vector dimension the collection must have.
// Zero accepts any dimension.
func WithDimension(dimension int) Option {
	return func(e *Engine) error {
		if dimension < 0 {
			return fmt.Errorf("%w: dimension %d", storage.ErrInvalidQuery, dimension)
		}
		e.dimension = dimension
		return nil
	}
}

// WithPoolSize sets the worker pool size used by QueryBatch.
// Default is runtime.NumCPU() / 2, with a minimum of 1.
func WithPoolSize(size int) Option {
	return func(e *Engine) error {
		if size < 1 {
			size = 1
		}
		pool, err := ants.NewPool(size)
		if err != nil {
			return err
		}
		if e.pool != nil {
			e.pool.Release()
		}
		e.pool = pool
		return nil
	}
}

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) error {
		if logger == nil {
			logger = slog.Default()
		}
		e.logger = logger.With("component", "search")
		return nil
	}
}

// NewEngine creates a new retrieval engine.
func NewEngine(store storage.VectorStore, embedder ai.Embedder, opts ...Option) (*Engine, error) {
	if store == nil {
		return nil, ErrStoreRequired
	}
	if embedder == nil {
		return nil, ErrEmbedderRequired
	}

	e := &Engine{
		store:    store,
		embedder: embedder,
		logger:   slog.Default().With("component", "search"),
	}
	for _, opt := range opts {
		if err := opt(e); err != nil {
			e.Release()
			return nil, err
		}
	}

	if e.pool == nil {
		size := runtime.NumCPU() / 2
		if size < 1 {
			size = 1
		}
		pool, err := ants.NewPool(size)
		if err != nil {
			return nil, err
		}
		e.pool = pool
	}
	return e, nil
}

// Release releases the worker pool. The engine should not be used afterwards.
func (e *Engine) Release() {
	if e.pool != nil {
		e.pool.Release()
	}
}

// Query returns up to limit passages scoring at least threshold, best first.
// A query against a missing or empty collection returns no results.
func (e *Engine) Query(ctx context.Context, text string, limit int, threshold float32) ([]*core.RetrievalResult, error) {
	return e.QueryWithMonitor(ctx, text, limit, threshold, nil)
}

// QueryWithMonitor runs Query and reports each step to monitor.
func (e *Engine) QueryWithMonitor(ctx context.Context, text string, limit int, threshold float32, monitor Monitor) ([]*core.RetrievalResult, error) {
	if strings.TrimSpace(text) == "" {
		return nil, ErrEmptyQuery
	}
	if limit < 1 {
		return nil, ErrInvalidLimit
	}
	if monitor == nil {
		monitor = &noopMonitor{}
	}
	monitor.Start(text)

	results := []*core.RetrievalResult{}
	populated, err := e.populated(ctx)
	if err != nil {
		return nil, err
	}
	if !populated {
		e.logger.Debug("collection is empty, nothing to search")
		monitor.Finish(results)
		return results, nil
	}

	vector, err := e.embedder.EmbedText(ctx, text)
	if err != nil {
		e.logger.Error("error generating embedding for query", "err", err)
		var embedErr *ai.EmbeddingError
		if !errors.As(err, &embedErr) {
			err = &ai.EmbeddingError{Count: 1, Err: err}
		}
		return nil, err
	}

	candidates, err := e.store.Search(ctx, vector, OverFetchFactor*limit, threshold)
	if err != nil {
		e.logger.Error("error querying for similar passages", "err", err)
		return nil, err
	}
	monitor.AfterSearch(candidates)

	active := e.activeEntities(text)
	for _, candidate := range candidates {
		if reason := e.reject(candidate, active); reason != "" {
			monitor.Rejected(candidate, reason)
			continue
		}
		if len(results) == limit {
			monitor.Rejected(candidate, ReasonOverLimit)
			continue
		}
		results = append(results, candidate)
	}

	e.logger.Debug("query complete", "candidates", len(candidates), "results", len(results))
	monitor.Finish(results)
	return results, nil
}

// populated reports whether the collection exists and holds any points.
// An existing collection must match the configured metric and dimension.
func (e *Engine) populated(ctx context.Context) (bool, error) {
	exists, err := e.store.CollectionExists(ctx)
	if err != nil || !exists {
		return false, err
	}
	info, err := e.store.Info(ctx)
	if err != nil {
		return false, err
	}
	dimension, metric := info.Dimension, info.Metric
	if e.dimension > 0 {
		dimension = e.dimension
	}
	if e.metric != "" {
		metric = e.metric
	}
	if err := storage.CheckCompatible(info, dimension, metric); err != nil {
		e.logger.Error("collection does not match configuration", "err", err)
		return false, err
	}
	return info.Points > 0, nil
}

// activeEntities returns the entities the query mentions informally.
func (e *Engine) activeEntities(query string) []*entityMatcher {
	var active []*entityMatcher
	for _, m := range e.entities {
		if m.mentionsAlias(query) {
			active = append(active, m)
		}
	}
	return active
}

// reject filters and cleans candidate in place. It returns the reason the
// candidate was dropped, or "" if it is kept.
func (e *Engine) reject(candidate *core.RetrievalResult, active []*entityMatcher) RejectReason {
	if reason := validity(candidate.Text); reason != "" {
		return reason
	}
	for _, m := range active {
		if m.ambiguous(candidate.Text) {
			return ReasonAmbiguousEntity
		}
	}

	candidate.Text = Cleanup(candidate.Text, candidate.PageHeader)
	if utf8.RuneCountInString(candidate.Text) < MinTextLength {
		return ReasonShortAfterTrim
	}
	return ""
}

// QueryBatch runs queries concurrently on the engine's worker pool.
// Results are returned in input order. If any query fails, the first
// failure observed is returned.
func (e *Engine) QueryBatch(ctx context.Context, queries []string, limit int, threshold float32) ([][]*core.RetrievalResult, error) {
	results := make([][]*core.RetrievalResult, len(queries))

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		firstErr error
	)
	for i, query := range queries {
		wg.Add(1)
		err := e.pool.Submit(func() {
			defer wg.Done()
			res, err := e.Query(ctx, query, limit, threshold)
			if err != nil {
				mu.Lock()
				if firstErr == nil {
					firstErr = err
				}
				mu.Unlock()
				return
			}
			results[i] = res
		})
		if err != nil {
			wg.Done()
			wg.Wait()
			return nil, err
		}
	}
	wg.Wait()

	if firstErr != nil {
		return nil, firstErr
	}
	return results, nil
}
