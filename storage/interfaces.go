package storage

import (
	"context"

	"github.com/poiesic/lectern/core"
)

// FilenamePageSize bounds how many points a store reads per page while
// enumerating the filenames already present in a collection.
const FilenamePageSize = 10000

// Metric is the similarity metric a collection is configured with.
type Metric string

const (
	// MetricCosine scores by the cosine of the angle between vectors.
	MetricCosine Metric = "cosine"
	// MetricDot scores by the raw dot product.
	MetricDot Metric = "dot"
	// MetricEuclid scores by inverse Euclidean distance.
	MetricEuclid Metric = "euclid"
)

// ParseMetric converts a configuration string into a Metric.
func ParseMetric(s string) (Metric, error) {
	switch Metric(s) {
	case MetricCosine, MetricDot, MetricEuclid:
		return Metric(s), nil
	case "":
		return MetricCosine, nil
	default:
		return "", ErrUnknownMetric
	}
}

// CollectionInfo describes a collection's configuration and size.
type CollectionInfo struct {
	Name      string
	Dimension int
	Metric    Metric
	Points    int
}

// VectorStore is a thin contract over a vector index bound to one collection.
// Implementations must be safe for concurrent readers. A single writer is assumed.
type VectorStore interface {
	// Name returns the collection name the store is bound to.
	Name() string

	// EnsureCollection creates the collection if it is absent.
	// It is a no-op if the collection exists with the same dimension and metric,
	// and fails with ErrConfigMismatch otherwise.
	EnsureCollection(ctx context.Context, dimension int, metric Metric) error

	// CollectionExists reports whether the collection has been created.
	CollectionExists(ctx context.Context) (bool, error)

	// Upsert inserts or overwrites points by id. A call either writes every
	// point or none of them. Vectors of the wrong size fail with ErrConfigMismatch.
	Upsert(ctx context.Context, points ...*core.IndexedPoint) error

	// Search returns up to limit results scoring at least threshold,
	// ordered by descending score.
	Search(ctx context.Context, vector []float32, limit int, threshold float32) ([]*core.RetrievalResult, error)

	// Count returns the number of stored points.
	// Returns ErrCollectionNotFound if the collection does not exist.
	Count(ctx context.Context) (int, error)

	// Filenames returns the distinct filenames present in stored payloads.
	// Returns ErrCollectionNotFound if the collection does not exist.
	Filenames(ctx context.Context) (map[string]struct{}, error)

	// ExistingIDs returns the subset of ids already stored.
	ExistingIDs(ctx context.Context, ids ...core.PointID) (map[core.PointID]struct{}, error)

	// Info returns the collection's configuration and point count.
	Info(ctx context.Context) (*CollectionInfo, error)

	// DeleteCollection removes the collection and every point in it.
	DeleteCollection(ctx context.Context) error

	// Close releases resources held by the store.
	Close() error
}
