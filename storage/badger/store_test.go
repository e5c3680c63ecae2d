package badger

import (
	"context"
	"testing"

	"github.com/poiesic/lectern/storage"
	"github.com/poiesic/lectern/storage/storetest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStore_Conformance(t *testing.T) {
	backend, err := OpenBackend("", true)
	require.NoError(t, err)
	defer backend.Close()

	storetest.Run(t, func(t *testing.T, collection string) storage.VectorStore {
		store, err := NewStore(backend, collection)
		require.NoError(t, err)
		return store
	})
}

func TestNewStore_Validation(t *testing.T) {
	backend, err := OpenBackend("", true)
	require.NoError(t, err)
	defer backend.Close()

	_, err = NewStore(backend, "")
	assert.ErrorIs(t, err, storage.ErrCollectionRequired)

	_, err = NewStore(backend, "a:b")
	assert.ErrorIs(t, err, ErrInvalidCollectionName)

	store, err := NewStore(backend, "kb", WithLogger(nil))
	require.NoError(t, err)
	assert.Equal(t, "kb", store.Name())
}

func TestStore_CloseLeavesSharedBackendOpen(t *testing.T) {
	backend, err := OpenBackend("", true)
	require.NoError(t, err)
	defer backend.Close()

	store, err := NewStore(backend, "kb")
	require.NoError(t, err)
	require.NoError(t, store.Close())
	assert.False(t, backend.IsClosed())
}

func TestOpenStore_PersistsAcrossReopen(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	store, err := OpenStore(dir, "kb")
	require.NoError(t, err)
	require.NoError(t, store.EnsureCollection(ctx, 2, storage.MetricCosine))
	require.NoError(t, store.Upsert(ctx, storetest.Point("a.pdf", 1, 1, "persisted", 1, 0)))
	require.NoError(t, store.Close())

	reopened, err := OpenStore(dir, "kb")
	require.NoError(t, err)
	defer reopened.Close()

	count, err := reopened.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	results, err := reopened.Search(ctx, []float32{1, 0}, 5, 0.5)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "persisted", results[0].Text)
}

func TestStore_SearchRejectsWrongDimension(t *testing.T) {
	ctx := context.Background()
	store, err := NewMemoryStore("kb")
	require.NoError(t, err)
	defer store.Close()

	require.NoError(t, store.EnsureCollection(ctx, 2, storage.MetricCosine))
	_, err = store.Search(ctx, []float32{1, 0, 0}, 5, 0)
	assert.ErrorIs(t, err, storage.ErrConfigMismatch)

	_, err = store.Search(ctx, []float32{1, 0}, 0, 0)
	assert.ErrorIs(t, err, storage.ErrInvalidQuery)
}

func TestStore_DotMetric(t *testing.T) {
	ctx := context.Background()
	store, err := NewMemoryStore("kb")
	require.NoError(t, err)
	defer store.Close()

	require.NoError(t, store.EnsureCollection(ctx, 2, storage.MetricDot))
	require.NoError(t, store.Upsert(ctx,
		storetest.Point("a.pdf", 1, 1, "long", 3, 0),
		storetest.Point("a.pdf", 1, 2, "short", 1, 0),
	))

	results, err := store.Search(ctx, []float32{1, 0}, 5, 2)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "long", results[0].Text)
	assert.InDelta(t, 3.0, results[0].Score, 1e-6)
}

func TestFilenameFromKey(t *testing.T) {
	key := makeFilenameKey("kb", "volume 1.pdf", 42)
	name, ok := filenameFromKey("kb", key)
	require.True(t, ok)
	assert.Equal(t, "volume 1.pdf", name)

	_, ok = filenameFromKey("kb", []byte("col:kb:fn:broken"))
	assert.False(t, ok)
}
