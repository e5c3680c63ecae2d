package ingestion

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/poiesic/lectern/ai/mock"
	"github.com/poiesic/lectern/chunking"
	"github.com/poiesic/lectern/extract"
	"github.com/poiesic/lectern/storage"
	"github.com/poiesic/lectern/storage/badger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testDimension = 4

func setupStore(t *testing.T) storage.VectorStore {
	t.Helper()
	store, err := badger.NewMemoryStore("knowledge_base")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func testSource() *extract.Static {
	return extract.NewStatic(map[string][]string{
		"a.pdf": {
			"The first page of the first document talks about aspiration.",
			"The second page continues with surrender and patience.",
			"The third page closes the chapter on sincerity.",
		},
		"b.pdf": {
			"The only real page of the second document.",
			"   \n\t ",
			"A final page after a blank one.",
		},
	})
}

func newTestPipeline(t *testing.T, store storage.VectorStore, embedder *mock.MockEmbedder, opts ...Option) *Pipeline {
	t.Helper()
	p, err := NewPipeline(store, embedder, append([]Option{WithBatchSize(2)}, opts...)...)
	require.NoError(t, err)
	return p
}

func TestNewPipeline_Validation(t *testing.T) {
	store := setupStore(t)
	embedder := mock.NewMockEmbedderWithDimension(testDimension)

	_, err := NewPipeline(nil, embedder)
	assert.ErrorIs(t, err, ErrStoreRequired)

	_, err = NewPipeline(store, nil)
	assert.ErrorIs(t, err, ErrEmbedderRequired)

	_, err = NewPipeline(store, embedder, WithBatchSize(0))
	assert.ErrorIs(t, err, ErrInvalidBatchSize)

	_, err = NewPipeline(store, embedder, WithChunkSize(100), WithChunkOverlap(100))
	assert.ErrorIs(t, err, chunking.ErrInvalidOverlap)

	_, err = NewPipeline(store, embedder, WithDedupPolicy(DedupPolicy(7)))
	assert.ErrorIs(t, err, ErrUnknownDedupPolicy)

	p, err := NewPipeline(store, embedder, WithLogger(nil))
	require.NoError(t, err)
	_, err = p.Run(context.Background(), nil)
	assert.ErrorIs(t, err, ErrSourceRequired)
}

func TestParseDedupPolicy(t *testing.T) {
	tests := []struct {
		in      string
		want    DedupPolicy
		wantErr bool
	}{
		{"", DedupDocument, false},
		{"document", DedupDocument, false},
		{"chunk", DedupChunk, false},
		{"page", 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseDedupPolicy(tt.in)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrUnknownDedupPolicy)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			if tt.in != "" {
				assert.Equal(t, tt.in, got.String())
			}
		})
	}
}

func TestRun_IngestsAndIsIdempotent(t *testing.T) {
	ctx := context.Background()
	store := setupStore(t)
	embedder := mock.NewMockEmbedderWithDimension(testDimension)
	p := newTestPipeline(t, store, embedder)

	result, err := p.Run(ctx, testSource())
	require.NoError(t, err)
	assert.Equal(t, 2, result.Documents)
	assert.Equal(t, 5, result.Chunks)
	assert.Equal(t, 5, result.Written)
	assert.Equal(t, 1, result.EmptyPages)
	assert.Empty(t, result.Failures)
	assert.Equal(t, 3, embedder.CallCount(), "5 chunks in batches of 2")

	count, err := store.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 5, count)

	info, err := store.Info(ctx)
	require.NoError(t, err)
	assert.Equal(t, testDimension, info.Dimension)
	assert.Equal(t, storage.MetricCosine, info.Metric)

	embedder.Reset()
	again, err := p.Run(ctx, testSource())
	require.NoError(t, err)
	assert.Zero(t, again.Written)
	assert.Zero(t, again.Documents)
	assert.Zero(t, embedder.CallCount())

	count, err = store.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 5, count)
}

func TestRun_OnlyNewDocuments(t *testing.T) {
	ctx := context.Background()
	store := setupStore(t)
	p := newTestPipeline(t, store, mock.NewMockEmbedderWithDimension(testDimension))

	src := testSource()
	_, err := p.Run(ctx, src)
	require.NoError(t, err)

	src.Add("c.pdf", "A new arrival with a single page.")
	result, err := p.Run(ctx, src)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Documents)
	assert.Equal(t, 1, result.Written)
}

func TestRun_FailedBatchIsSkipped(t *testing.T) {
	ctx := context.Background()
	store := setupStore(t)
	embedder := mock.NewMockEmbedderWithDimension(testDimension)

	var calls atomic.Int32
	embedder.EmbedTextsFunc = func(ctx context.Context, texts []string) ([][]float32, error) {
		if calls.Add(1) == 1 {
			return nil, errors.New("service unavailable")
		}
		vectors := make([][]float32, len(texts))
		for i, text := range texts {
			vectors[i] = mock.GenerateDeterministicVector(text, testDimension)
		}
		return vectors, nil
	}
	p := newTestPipeline(t, store, embedder)

	result, err := p.Run(ctx, testSource())
	require.NoError(t, err)
	require.Len(t, result.Failures, 1)
	assert.Equal(t, 1, result.Failures[0].Index)
	assert.Equal(t, 2, result.Failures[0].Size)
	assert.Contains(t, result.Failures[0].Error(), "service unavailable")
	assert.Equal(t, 3, result.Written)
	assert.Equal(t, 2, result.Failed())
}

func TestRun_EmbeddingCountMismatch(t *testing.T) {
	ctx := context.Background()
	store := setupStore(t)
	embedder := mock.NewMockEmbedderWithDimension(testDimension)
	embedder.EmbedTextsFunc = func(ctx context.Context, texts []string) ([][]float32, error) {
		return [][]float32{{1, 0, 0, 0}}, nil
	}
	p := newTestPipeline(t, store, embedder)

	result, err := p.Run(ctx, extract.NewStatic(map[string][]string{"a.pdf": {"one", "two"}}))
	require.NoError(t, err)
	require.Len(t, result.Failures, 1)
	assert.Zero(t, result.Written)
}

func TestRun_ConfigMismatchIsFatal(t *testing.T) {
	ctx := context.Background()
	store := setupStore(t)
	require.NoError(t, store.EnsureCollection(ctx, 3, storage.MetricCosine))

	p := newTestPipeline(t, store, mock.NewMockEmbedderWithDimension(testDimension))
	result, err := p.Run(ctx, testSource())
	assert.ErrorIs(t, err, storage.ErrConfigMismatch)
	assert.Zero(t, result.Written)
	assert.Empty(t, result.Failures)
}

func TestRun_ChunkDedup(t *testing.T) {
	ctx := context.Background()
	store := setupStore(t)
	embedder := mock.NewMockEmbedderWithDimension(testDimension)
	src := testSource()

	p := newTestPipeline(t, store, embedder, WithDedupPolicy(DedupChunk))
	_, err := p.Run(ctx, src)
	require.NoError(t, err)

	embedder.Reset()
	result, err := p.Run(ctx, src)
	require.NoError(t, err)
	assert.Equal(t, 2, result.Documents)
	assert.Equal(t, 5, result.Skipped)
	assert.Zero(t, result.Written)
	assert.Zero(t, embedder.CallCount())

	// A page added to an indexed document is picked up.
	src.Add("a.pdf",
		"The first page of the first document talks about aspiration.",
		"The second page continues with surrender and patience.",
		"The third page closes the chapter on sincerity.",
		"A fourth page that was missing from the first scan.",
	)
	result, err = p.Run(ctx, src)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Written)
	assert.Equal(t, 5, result.Skipped)
}

func TestRun_PageHeadersArePersisted(t *testing.T) {
	ctx := context.Background()
	store := setupStore(t)
	p := newTestPipeline(t, store, mock.NewMockEmbedderWithDimension(testDimension))

	src := extract.NewStatic(map[string][]string{
		"mother.pdf": {
			"12 WORDS OF THE MOTHER\nThe body text of the first page.",
			"13 WORDS OF THE MOTHER\nThe body text of the second page.",
		},
	})
	_, err := p.Run(ctx, src)
	require.NoError(t, err)

	results, err := store.Search(ctx, []float32{1, 1, 1, 1}, 10, -1)
	require.NoError(t, err)
	require.Len(t, results, 2)
	for _, r := range results {
		assert.True(t, r.HasPageHeader())
		assert.True(t, strings.HasSuffix(r.PageHeader, "WORDS OF THE MOTHER"))
	}
}

func TestRun_LongPagesAreChunked(t *testing.T) {
	ctx := context.Background()
	store := setupStore(t)
	p := newTestPipeline(t, store, mock.NewMockEmbedderWithDimension(testDimension),
		WithChunkSize(40), WithChunkOverlap(10))

	text := strings.Repeat("Every word counts here. ", 10)
	result, err := p.Run(ctx, extract.NewStatic(map[string][]string{"long.pdf": {text}}))
	require.NoError(t, err)
	assert.Greater(t, result.Chunks, 1)
	assert.Equal(t, result.Chunks, result.Written)

	results, err := store.Search(ctx, []float32{1, 1, 1, 1}, 100, -1)
	require.NoError(t, err)
	for _, r := range results {
		assert.LessOrEqual(t, len([]rune(r.Text)), 40)
		assert.GreaterOrEqual(t, r.ChunkNumber, 1)
	}
}

func TestRun_Progress(t *testing.T) {
	var buf bytes.Buffer
	store := setupStore(t)
	p := newTestPipeline(t, store, mock.NewMockEmbedderWithDimension(testDimension), WithProgress(&buf, 1))

	_, err := p.Run(context.Background(), testSource())
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "Progress: 2/2 (100.0%)")
	assert.Contains(t, buf.String(), "documents/s")
}

func TestRun_Canceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	p := newTestPipeline(t, setupStore(t), mock.NewMockEmbedderWithDimension(testDimension))
	_, err := p.Run(ctx, testSource())
	assert.ErrorIs(t, err, context.Canceled)
}
