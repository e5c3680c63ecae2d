package ingestion

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/poiesic/lectern/ai"
	"github.com/poiesic/lectern/core"
	"github.com/poiesic/lectern/storage"
)

// batchWriter embeds batches of chunks and stores them as points.
// The collection is created on the first batch that embeds successfully.
type batchWriter struct {
	store    storage.VectorStore
	embedder ai.Embedder
	metric   storage.Metric
	ensured  bool
	logger   *slog.Logger
}

// errFatal marks failures that must abort the run.
type errFatal struct{ err error }

func (e *errFatal) Error() string { return e.err.Error() }
func (e *errFatal) Unwrap() error { return e.err }

func fatal(err error) error {
	if errors.Is(err, storage.ErrConfigMismatch) {
		return &errFatal{err: err}
	}
	return err
}

// write embeds and upserts one batch and returns the number of points written.
func (w *batchWriter) write(ctx context.Context, chunks []*core.Chunk) (int, error) {
	texts := make([]string, len(chunks))
	for i, chunk := range chunks {
		texts[i] = chunk.Text
	}

	w.logger.Debug("embedding batch", "chunks", len(texts))
	vectors, err := w.embedder.EmbedTexts(ctx, texts)
	if err != nil {
		var embedErr *ai.EmbeddingError
		if !errors.As(err, &embedErr) {
			err = &ai.EmbeddingError{Count: len(texts), Err: err}
		}
		return 0, err
	}
	if len(vectors) != len(chunks) {
		return 0, &ai.EmbeddingError{
			Count: len(texts),
			Err:   fmt.Errorf("%w: expected %d, received %d", ai.ErrEmbeddingCountMismatch, len(chunks), len(vectors)),
		}
	}

	if !w.ensured {
		if err := w.store.EnsureCollection(ctx, len(vectors[0]), w.metric); err != nil {
			return 0, fatal(err)
		}
		w.ensured = true
	}

	points := make([]*core.IndexedPoint, len(chunks))
	for i, chunk := range chunks {
		points[i] = core.NewIndexedPoint(chunk, vectors[i])
	}
	if err := w.store.Upsert(ctx, points...); err != nil {
		return 0, fatal(err)
	}
	return len(points), nil
}
