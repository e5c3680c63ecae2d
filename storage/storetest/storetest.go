// Package storetest provides a conformance suite shared by every
// storage.VectorStore implementation.
package storetest

import (
	"context"
	"fmt"
	"testing"

	"github.com/poiesic/lectern/core"
	"github.com/poiesic/lectern/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Factory creates an empty store bound to collection.
// The suite closes every store it creates.
type Factory func(t *testing.T, collection string) storage.VectorStore

// Point builds an indexed point for a chunk location with the given vector.
func Point(filename string, page, chunk int, text string, vector ...float32) *core.IndexedPoint {
	return core.NewIndexedPoint(&core.Chunk{
		Filename:    filename,
		PageNumber:  page,
		ChunkNumber: chunk,
		Text:        text,
	}, vector)
}

// Run exercises the VectorStore contract against stores built by factory.
func Run(t *testing.T, factory Factory) {
	t.Run("missing collection", func(t *testing.T) { testMissingCollection(t, factory) })
	t.Run("ensure collection", func(t *testing.T) { testEnsureCollection(t, factory) })
	t.Run("upsert and count", func(t *testing.T) { testUpsertAndCount(t, factory) })
	t.Run("upsert is idempotent", func(t *testing.T) { testUpsertIdempotent(t, factory) })
	t.Run("dimension mismatch", func(t *testing.T) { testDimensionMismatch(t, factory) })
	t.Run("search", func(t *testing.T) { testSearch(t, factory) })
	t.Run("threshold monotonicity", func(t *testing.T) { testThresholdMonotonicity(t, factory) })
	t.Run("filenames", func(t *testing.T) { testFilenames(t, factory) })
	t.Run("existing ids", func(t *testing.T) { testExistingIDs(t, factory) })
	t.Run("delete collection", func(t *testing.T) { testDeleteCollection(t, factory) })
	t.Run("collections are isolated", func(t *testing.T) { testIsolation(t, factory) })
}

func open(t *testing.T, factory Factory, collection string) storage.VectorStore {
	t.Helper()
	store := factory(t, collection)
	t.Cleanup(func() { store.Close() })
	return store
}

func testMissingCollection(t *testing.T, factory Factory) {
	ctx := context.Background()
	store := open(t, factory, "missing")

	exists, err := store.CollectionExists(ctx)
	require.NoError(t, err)
	assert.False(t, exists)

	_, err = store.Count(ctx)
	assert.ErrorIs(t, err, storage.ErrCollectionNotFound)

	var se *storage.Error
	assert.ErrorAs(t, err, &se)

	_, err = store.Filenames(ctx)
	assert.ErrorIs(t, err, storage.ErrCollectionNotFound)

	existing, err := store.ExistingIDs(ctx, core.IDFor("a.pdf", 1, 1))
	require.NoError(t, err)
	assert.Empty(t, existing)
}

func testEnsureCollection(t *testing.T, factory Factory) {
	ctx := context.Background()
	store := open(t, factory, "ensure")

	require.NoError(t, store.EnsureCollection(ctx, 3, storage.MetricCosine))
	require.NoError(t, store.Upsert(ctx, Point("a.pdf", 1, 1, "alpha", 1, 0, 0)))

	// Second call with the same configuration is a non-destructive no-op.
	require.NoError(t, store.EnsureCollection(ctx, 3, storage.MetricCosine))
	count, err := store.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	err = store.EnsureCollection(ctx, 4, storage.MetricCosine)
	assert.ErrorIs(t, err, storage.ErrConfigMismatch)

	err = store.EnsureCollection(ctx, 3, storage.MetricDot)
	assert.ErrorIs(t, err, storage.ErrConfigMismatch)

	info, err := store.Info(ctx)
	require.NoError(t, err)
	assert.Equal(t, "ensure", info.Name)
	assert.Equal(t, 3, info.Dimension)
	assert.Equal(t, storage.MetricCosine, info.Metric)
	assert.Equal(t, 1, info.Points)
}

func testUpsertAndCount(t *testing.T, factory Factory) {
	ctx := context.Background()
	store := open(t, factory, "upsert")
	require.NoError(t, store.EnsureCollection(ctx, 2, storage.MetricCosine))

	count, err := store.Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, count)

	require.NoError(t, store.Upsert(ctx))

	points := make([]*core.IndexedPoint, 0, 10)
	for i := 1; i <= 10; i++ {
		points = append(points, Point("a.pdf", i, 1, fmt.Sprintf("page %d", i), float32(i), 1))
	}
	require.NoError(t, store.Upsert(ctx, points...))

	count, err = store.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 10, count)
}

func testUpsertIdempotent(t *testing.T, factory Factory) {
	ctx := context.Background()
	store := open(t, factory, "idem")
	require.NoError(t, store.EnsureCollection(ctx, 2, storage.MetricCosine))

	first := Point("a.pdf", 1, 1, "original", 1, 0)
	require.NoError(t, store.Upsert(ctx, first, Point("a.pdf", 1, 2, "second", 0, 1)))
	require.NoError(t, store.Upsert(ctx, Point("a.pdf", 1, 1, "rewritten", 1, 0), Point("a.pdf", 1, 2, "second", 0, 1)))

	count, err := store.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	results, err := store.Search(ctx, []float32{1, 0}, 1, 0.5)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, first.ID, results[0].ID)
	assert.Equal(t, "rewritten", results[0].Text)
}

func testDimensionMismatch(t *testing.T, factory Factory) {
	ctx := context.Background()
	store := open(t, factory, "dims")
	require.NoError(t, store.EnsureCollection(ctx, 3, storage.MetricCosine))

	err := store.Upsert(ctx, Point("a.pdf", 1, 1, "ok", 1, 0, 0), Point("a.pdf", 1, 2, "bad", 1, 0))
	assert.ErrorIs(t, err, storage.ErrConfigMismatch)

	// All or nothing: the valid point must not have been written.
	count, err := store.Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, count)
}

func testSearch(t *testing.T, factory Factory) {
	ctx := context.Background()
	store := open(t, factory, "search")
	require.NoError(t, store.EnsureCollection(ctx, 2, storage.MetricCosine))

	exact := Point("a.pdf", 1, 1, "exact", 1, 0)
	near := Point("a.pdf", 2, 1, "close", 0.9, 0.1)
	far := Point("b.pdf", 1, 1, "far", 0, 1)
	withHeader := core.NewIndexedPoint(&core.Chunk{
		Filename: "c.pdf", PageNumber: 5, ChunkNumber: 2, Text: "headed", PageHeader: "CHAPTER TITLE",
	}, []float32{0.7, 0.7})
	require.NoError(t, store.Upsert(ctx, exact, near, far, withHeader))

	results, err := store.Search(ctx, []float32{1, 0}, 10, 0)
	require.NoError(t, err)
	require.GreaterOrEqual(t, len(results), 3)
	for i := 1; i < len(results); i++ {
		assert.GreaterOrEqual(t, results[i-1].Score, results[i].Score, "results must be score-descending")
	}
	assert.Equal(t, exact.ID, results[0].ID)
	assert.Equal(t, "a.pdf", results[0].Filename)
	assert.Equal(t, 1, results[0].PageNumber)
	assert.Equal(t, 1, results[0].ChunkNumber)
	assert.InDelta(t, 1.0, results[0].Score, 1e-4)
	assert.Equal(t, near.ID, results[1].ID)
	assert.Equal(t, withHeader.ID, results[2].ID)
	assert.Equal(t, "CHAPTER TITLE", results[2].PageHeader)

	limited, err := store.Search(ctx, []float32{1, 0}, 1, 0)
	require.NoError(t, err)
	require.Len(t, limited, 1)
	assert.Equal(t, exact.ID, limited[0].ID)

	thresholded, err := store.Search(ctx, []float32{1, 0}, 10, 0.8)
	require.NoError(t, err)
	for _, r := range thresholded {
		assert.GreaterOrEqual(t, r.Score, float32(0.8))
	}
	assert.Len(t, thresholded, 2)
}

func testThresholdMonotonicity(t *testing.T, factory Factory) {
	ctx := context.Background()
	store := open(t, factory, "mono")
	require.NoError(t, store.EnsureCollection(ctx, 2, storage.MetricCosine))

	for i := 0; i < 20; i++ {
		x := float32(i) / 19
		require.NoError(t, store.Upsert(ctx, Point("a.pdf", i+1, 1, "p", x, 1-x)))
	}

	previous := -1
	for _, threshold := range []float32{0, 0.2, 0.4, 0.6, 0.8, 0.95, 1} {
		results, err := store.Search(ctx, []float32{1, 0}, 50, threshold)
		require.NoError(t, err)
		if previous >= 0 {
			assert.LessOrEqual(t, len(results), previous, "threshold %v", threshold)
		}
		previous = len(results)
	}
}

func testFilenames(t *testing.T, factory Factory) {
	ctx := context.Background()
	store := open(t, factory, "files")
	require.NoError(t, store.EnsureCollection(ctx, 1, storage.MetricCosine))

	names, err := store.Filenames(ctx)
	require.NoError(t, err)
	assert.Empty(t, names)

	require.NoError(t, store.Upsert(ctx,
		Point("a.pdf", 1, 1, "x", 1),
		Point("a.pdf", 1, 2, "x", 1),
		Point("b.pdf", 3, 1, "x", 1),
	))

	names, err = store.Filenames(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[string]struct{}{"a.pdf": {}, "b.pdf": {}}, names)
}

func testExistingIDs(t *testing.T, factory Factory) {
	ctx := context.Background()
	store := open(t, factory, "ids")
	require.NoError(t, store.EnsureCollection(ctx, 1, storage.MetricCosine))

	stored := Point("a.pdf", 1, 1, "x", 1)
	require.NoError(t, store.Upsert(ctx, stored))

	missing := core.IDFor("a.pdf", 1, 2)
	existing, err := store.ExistingIDs(ctx, stored.ID, missing)
	require.NoError(t, err)
	assert.Equal(t, map[core.PointID]struct{}{stored.ID: {}}, existing)
}

func testDeleteCollection(t *testing.T, factory Factory) {
	ctx := context.Background()
	store := open(t, factory, "drop")
	require.NoError(t, store.EnsureCollection(ctx, 1, storage.MetricCosine))
	require.NoError(t, store.Upsert(ctx, Point("a.pdf", 1, 1, "x", 1)))

	require.NoError(t, store.DeleteCollection(ctx))

	exists, err := store.CollectionExists(ctx)
	require.NoError(t, err)
	assert.False(t, exists)

	// Recreating with a different dimension is allowed after a drop.
	require.NoError(t, store.EnsureCollection(ctx, 2, storage.MetricCosine))
	count, err := store.Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, count)
}

func testIsolation(t *testing.T, factory Factory) {
	ctx := context.Background()
	store := open(t, factory, "left")
	require.NoError(t, store.EnsureCollection(ctx, 1, storage.MetricCosine))
	require.NoError(t, store.Upsert(ctx, Point("a.pdf", 1, 1, "x", 1)))

	other := open(t, factory, "right")
	exists, err := other.CollectionExists(ctx)
	require.NoError(t, err)
	assert.False(t, exists)
}
