package search

import (
	"context"
	"errors"
	"fmt"
	"math"
	"testing"
	"unicode/utf8"

	"github.com/poiesic/lectern/ai"
	"github.com/poiesic/lectern/ai/mock"
	"github.com/poiesic/lectern/core"
	"github.com/poiesic/lectern/storage"
	"github.com/poiesic/lectern/storage/badger"
	"github.com/poiesic/lectern/storage/storetest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recordingMonitor captures every monitor callback.
type recordingMonitor struct {
	query      string
	candidates int
	rejected   map[string]RejectReason
	finished   []*core.RetrievalResult
}

func (m *recordingMonitor) Start(query string) { m.query = query }
func (m *recordingMonitor) AfterSearch(c []*core.RetrievalResult) {
	m.candidates = len(c)
}
func (m *recordingMonitor) Rejected(r *core.RetrievalResult, reason RejectReason) {
	if m.rejected == nil {
		m.rejected = make(map[string]RejectReason)
	}
	m.rejected[r.Filename] = reason
}
func (m *recordingMonitor) Finish(results []*core.RetrievalResult) { m.finished = results }

// angled returns a 2-d vector whose cosine with (1, 0) is cos(deg).
func angled(deg float64) []float32 {
	rad := deg * math.Pi / 180
	return []float32{float32(math.Cos(rad)), float32(math.Sin(rad))}
}

func passage(n int) string {
	return fmt.Sprintf("Passage number %d speaks at length about aspiration and surrender.", n)
}

type fixture struct {
	store    storage.VectorStore
	embedder *mock.MockEmbedder
	engine   *Engine
}

func setup(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	store, err := badger.NewMemoryStore("knowledge_base")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	embedder := mock.NewMockEmbedderWithDimension(2)
	embedder.EmbedTextFunc = func(ctx context.Context, text string) ([]float32, error) {
		return []float32{1, 0}, nil
	}

	engine, err := NewEngine(store, embedder, opts...)
	require.NoError(t, err)
	t.Cleanup(engine.Release)

	return &fixture{store: store, embedder: embedder, engine: engine}
}

func (f *fixture) add(t *testing.T, points ...*core.IndexedPoint) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, f.store.EnsureCollection(ctx, 2, storage.MetricCosine))
	require.NoError(t, f.store.Upsert(ctx, points...))
}

func TestNewEngine_Validation(t *testing.T) {
	store, err := badger.NewMemoryStore("kb")
	require.NoError(t, err)
	defer store.Close()

	_, err = NewEngine(nil, mock.NewMockEmbedder())
	assert.ErrorIs(t, err, ErrStoreRequired)

	_, err = NewEngine(store, nil)
	assert.ErrorIs(t, err, ErrEmbedderRequired)

	_, err = NewEngine(store, mock.NewMockEmbedder(), WithEntities(Entity{Canonical: "Mother"}))
	assert.ErrorIs(t, err, ErrInvalidEntity)
}

func TestQuery_Validation(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	_, err := f.engine.Query(ctx, "   ", 5, 0.5)
	assert.ErrorIs(t, err, ErrEmptyQuery)

	_, err = f.engine.Query(ctx, "aspiration", 0, 0.5)
	assert.ErrorIs(t, err, ErrInvalidLimit)
}

func TestQuery_EmptyCorpus(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	results, err := f.engine.Query(ctx, "aspiration", 5, 0.5)
	require.NoError(t, err)
	assert.NotNil(t, results)
	assert.Empty(t, results)

	require.NoError(t, f.store.EnsureCollection(ctx, 2, storage.MetricCosine))
	results, err = f.engine.Query(ctx, "aspiration", 5, 0.5)
	require.NoError(t, err)
	assert.Empty(t, results)
	assert.Zero(t, f.embedder.CallCount(), "no embedding is requested for an empty corpus")
}

func TestQuery_FiltersAndTruncates(t *testing.T) {
	f := setup(t)
	f.add(t,
		storetest.Point("best.pdf", 1, 1, passage(1), angled(0)...),
		storetest.Point("short.pdf", 1, 1, "Too short to matter.", angled(5)...),
		storetest.Point("toc.pdf", 1, 1, "Contents\nAspiration ........ 12\nSurrender ........ 27\nSincerity ........ 45", angled(10)...),
		storetest.Point("second.pdf", 1, 1, passage(2), angled(15)...),
		storetest.Point("third.pdf", 1, 1, passage(3), angled(20)...),
		storetest.Point("far.pdf", 1, 1, passage(4), angled(80)...),
	)

	monitor := &recordingMonitor{}
	results, err := f.engine.QueryWithMonitor(context.Background(), "aspiration", 2, 0.5, monitor)
	require.NoError(t, err)

	require.Len(t, results, 2)
	assert.Equal(t, "best.pdf", results[0].Filename)
	assert.Equal(t, "second.pdf", results[1].Filename)
	assert.GreaterOrEqual(t, results[0].Score, results[1].Score)

	assert.Equal(t, "aspiration", monitor.query)
	assert.Equal(t, 4, monitor.candidates, "over-fetches twice the limit")
	assert.Equal(t, ReasonTooShort, monitor.rejected["short.pdf"])
	assert.Equal(t, ReasonBoilerplate, monitor.rejected["toc.pdf"])
	assert.Equal(t, results, monitor.finished)
}

func TestQuery_MinimumLength(t *testing.T) {
	f := setup(t)
	f.add(t,
		storetest.Point("a.pdf", 1, 1, passage(1)+"\n12\n13", angled(0)...),
		// Long enough before cleanup, too short once the page numbers go.
		storetest.Point("b.pdf", 1, 1, "Short line of text here.\n1\n2\n3\n4\n5\n6\n7\n8\n9\n10\n11\n12\n13", angled(1)...),
	)

	monitor := &recordingMonitor{}
	results, err := f.engine.QueryWithMonitor(context.Background(), "aspiration", 5, 0, monitor)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, passage(1), results[0].Text)
	assert.Equal(t, ReasonShortAfterTrim, monitor.rejected["b.pdf"])
	for _, r := range results {
		assert.GreaterOrEqual(t, utf8.RuneCountInString(r.Text), MinTextLength)
	}
}

func TestQuery_CleansPageHeader(t *testing.T) {
	f := setup(t)
	point := core.NewIndexedPoint(&core.Chunk{
		Filename:    "mother.pdf",
		PageNumber:  12,
		ChunkNumber: 1,
		Text:        "12 WORDS OF THE MOTHER\n" + passage(1) + "\n\n\n\n\nAnd a second paragraph follows.",
		PageHeader:  "12 WORDS OF THE MOTHER",
	}, angled(0))
	f.add(t, point)

	results, err := f.engine.Query(context.Background(), "aspiration", 5, 0.5)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, passage(1)+"\n\nAnd a second paragraph follows.", results[0].Text)
	assert.Equal(t, "12 WORDS OF THE MOTHER", results[0].PageHeader)
}

func TestQuery_Disambiguation(t *testing.T) {
	f := setup(t, WithEntities(Entity{Canonical: "Mother", Aliases: []string{"mother"}}))
	f.add(t,
		storetest.Point("generic.pdf", 1, 1,
			"A mother watches over her child with endless patience and care every day.", angled(0)...),
		storetest.Point("canonical.pdf", 1, 1,
			"The Mother said that every mother should cultivate patience and equanimity.", angled(5)...),
	)
	ctx := context.Background()

	monitor := &recordingMonitor{}
	results, err := f.engine.QueryWithMonitor(ctx, "what did mother say about patience", 5, 0.5, monitor)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "canonical.pdf", results[0].Filename)
	assert.Equal(t, ReasonAmbiguousEntity, monitor.rejected["generic.pdf"])

	// Without the informal alias the filter does not apply.
	results, err = f.engine.Query(ctx, "what about patience", 5, 0.5)
	require.NoError(t, err)
	assert.Len(t, results, 2)
}

func TestQuery_ThresholdMonotonicity(t *testing.T) {
	f := setup(t)
	var points []*core.IndexedPoint
	for i := 0; i < 10; i++ {
		points = append(points, storetest.Point("doc.pdf", i+1, 1, passage(i), angled(float64(i*8))...))
	}
	f.add(t, points...)
	ctx := context.Background()

	previous := math.MaxInt
	for _, threshold := range []float32{0, 0.3, 0.6, 0.8, 0.95, 1} {
		results, err := f.engine.Query(ctx, "aspiration", 10, threshold)
		require.NoError(t, err)
		assert.LessOrEqual(t, len(results), previous)
		for _, r := range results {
			assert.GreaterOrEqual(t, r.Score, threshold-1e-6)
		}
		previous = len(results)
	}
}

func TestQuery_EmbeddingFailure(t *testing.T) {
	f := setup(t)
	f.add(t, storetest.Point("a.pdf", 1, 1, passage(1), angled(0)...))
	f.embedder.EmbedTextFunc = func(ctx context.Context, text string) ([]float32, error) {
		return nil, errors.New("service unavailable")
	}

	_, err := f.engine.Query(context.Background(), "aspiration", 5, 0.5)
	var embedErr *ai.EmbeddingError
	assert.ErrorAs(t, err, &embedErr)
}

func TestQuery_DimensionMismatch(t *testing.T) {
	f := setup(t)
	f.add(t, storetest.Point("a.pdf", 1, 1, passage(1), angled(0)...))
	f.embedder.EmbedTextFunc = func(ctx context.Context, text string) ([]float32, error) {
		return []float32{1, 0, 0}, nil
	}

	_, err := f.engine.Query(context.Background(), "aspiration", 5, 0.5)
	assert.ErrorIs(t, err, storage.ErrConfigMismatch)
}

func TestQuery_CollectionMismatch(t *testing.T) {
	tests := []struct {
		name    string
		opts    []Option
		wantErr error
	}{
		{name: "matching metric", opts: []Option{WithMetric(storage.MetricCosine)}},
		{name: "matching dimension", opts: []Option{WithMetric(storage.MetricCosine), WithDimension(2)}},
		{name: "unchecked", opts: nil},
		{name: "other metric", opts: []Option{WithMetric(storage.MetricDot)}, wantErr: storage.ErrConfigMismatch},
		{name: "other dimension", opts: []Option{WithDimension(3)}, wantErr: storage.ErrConfigMismatch},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := setup(t, tt.opts...)
			f.add(t, storetest.Point("a.pdf", 1, 1, passage(1), angled(0)...))

			results, err := f.engine.Query(context.Background(), "aspiration", 5, 0.5)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				assert.Zero(t, f.embedder.CallCount())
				return
			}
			require.NoError(t, err)
			assert.Len(t, results, 1)
		})
	}
}

func TestNewEngine_CollectionOptions(t *testing.T) {
	store, err := badger.NewMemoryStore("kb")
	require.NoError(t, err)
	defer store.Close()

	_, err = NewEngine(store, mock.NewMockEmbedder(), WithMetric("manhattan"))
	assert.ErrorIs(t, err, storage.ErrUnknownMetric)

	_, err = NewEngine(store, mock.NewMockEmbedder(), WithDimension(-1))
	assert.ErrorIs(t, err, storage.ErrInvalidQuery)
}

func TestQueryBatch(t *testing.T) {
	f := setup(t, WithPoolSize(2))
	f.add(t,
		storetest.Point("a.pdf", 1, 1, passage(1), angled(0)...),
		storetest.Point("b.pdf", 1, 1, passage(2), angled(60)...),
	)
	f.embedder.EmbedTextFunc = func(ctx context.Context, text string) ([]float32, error) {
		if text == "second" {
			return angled(60), nil
		}
		return angled(0), nil
	}

	results, err := f.engine.QueryBatch(context.Background(), []string{"first", "second", "first"}, 1, 0.9)
	require.NoError(t, err)
	require.Len(t, results, 3)
	assert.Equal(t, "a.pdf", results[0][0].Filename)
	assert.Equal(t, "b.pdf", results[1][0].Filename)
	assert.Equal(t, "a.pdf", results[2][0].Filename)

	_, err = f.engine.QueryBatch(context.Background(), []string{"first", ""}, 1, 0.9)
	assert.ErrorIs(t, err, ErrEmptyQuery)
}
