package ingestion

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/poiesic/lectern/ai"
	"github.com/poiesic/lectern/chunking"
	"github.com/poiesic/lectern/core"
	"github.com/poiesic/lectern/extract"
	"github.com/poiesic/lectern/storage"
)

// DefaultBatchSize is the number of chunks embedded per request.
const DefaultBatchSize = 8

// DedupPolicy decides which work an ingestion run skips.
type DedupPolicy int

const (
	// DedupDocument skips every document whose filename is already stored.
	DedupDocument DedupPolicy = iota
	// DedupChunk processes every document but skips chunks whose ids are already stored.
	DedupChunk
)

// String returns the policy name.
func (d DedupPolicy) String() string {
	switch d {
	case DedupDocument:
		return "document"
	case DedupChunk:
		return "chunk"
	default:
		return fmt.Sprintf("DedupPolicy(%d)", int(d))
	}
}

// ParseDedupPolicy converts a policy name into a DedupPolicy.
func ParseDedupPolicy(s string) (DedupPolicy, error) {
	switch s {
	case "", "document":
		return DedupDocument, nil
	case "chunk":
		return DedupChunk, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnknownDedupPolicy, s)
	}
}

// Result summarizes an ingestion run.
type Result struct {
	Documents  int // documents processed in this run
	Chunks     int // chunks produced from those documents
	Written    int // points upserted
	Skipped    int // chunks skipped because they were already stored
	EmptyPages int // pages with no extractable text
	Failures   []*BatchError
	Unreadable []string // documents whose pages could not be read
}

// Failed returns the number of chunks in failed batches.
func (r *Result) Failed() int {
	n := 0
	for _, f := range r.Failures {
		n += f.Size
	}
	return n
}

// Pipeline indexes documents into a vector store.
type Pipeline struct {
	store            storage.VectorStore
	embedder         ai.Embedder
	splitter         *chunking.Splitter
	chunkSize        int
	chunkOverlap     int
	batchSize        int
	dedup            DedupPolicy
	metric           storage.Metric
	progressWriter   io.Writer
	progressInterval int
	logger           *slog.Logger
}

// Option configures a Pipeline.
type Option func(*Pipeline) error

// WithBatchSize sets how many chunks are embedded per request.
// Default is DefaultBatchSize.
func WithBatchSize(size int) Option {
	return func(p *Pipeline) error {
		if size < 1 {
			return ErrInvalidBatchSize
		}
		p.batchSize = size
		return nil
	}
}

// WithSplitter sets the chunk splitter. It takes precedence over
// WithChunkSize and WithChunkOverlap.
func WithSplitter(splitter *chunking.Splitter) Option {
	return func(p *Pipeline) error {
		p.splitter = splitter
		return nil
	}
}

// WithChunkSize sets the maximum chunk length in characters.
func WithChunkSize(size int) Option {
	return func(p *Pipeline) error {
		p.chunkSize = size
		return nil
	}
}

// WithChunkOverlap sets the overlap between adjacent chunks in characters.
func WithChunkOverlap(overlap int) Option {
	return func(p *Pipeline) error {
		p.chunkOverlap = overlap
		return nil
	}
}

// WithDedupPolicy sets what a run skips. Default is DedupDocument.
func WithDedupPolicy(policy DedupPolicy) Option {
	return func(p *Pipeline) error {
		if policy != DedupDocument && policy != DedupChunk {
			return fmt.Errorf("%w: %d", ErrUnknownDedupPolicy, int(policy))
		}
		p.dedup = policy
		return nil
	}
}

// WithMetric sets the metric used if the run has to create the collection.
// Default is cosine.
func WithMetric(metric storage.Metric) Option {
	return func(p *Pipeline) error {
		p.metric = metric
		return nil
	}
}

// WithProgress prints document progress to w every interval documents.
func WithProgress(w io.Writer, interval int) Option {
	return func(p *Pipeline) error {
		p.progressWriter = w
		p.progressInterval = interval
		return nil
	}
}

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(p *Pipeline) error {
		if logger == nil {
			logger = slog.Default()
		}
		p.logger = logger.With("component", "ingestion")
		return nil
	}
}

// NewPipeline creates a new ingestion pipeline writing to store.
func NewPipeline(store storage.VectorStore, embedder ai.Embedder, opts ...Option) (*Pipeline, error) {
	if store == nil {
		return nil, ErrStoreRequired
	}
	if embedder == nil {
		return nil, ErrEmbedderRequired
	}

	p := &Pipeline{
		store:        store,
		embedder:     embedder,
		chunkSize:    chunking.DefaultChunkSize,
		chunkOverlap: chunking.DefaultChunkOverlap,
		batchSize:    DefaultBatchSize,
		dedup:        DedupDocument,
		metric:       storage.MetricCosine,
		logger:       slog.Default().With("component", "ingestion"),
	}
	for _, opt := range opts {
		if err := opt(p); err != nil {
			return nil, err
		}
	}

	if p.splitter == nil {
		splitter, err := chunking.NewSplitter(
			chunking.WithChunkSize(p.chunkSize),
			chunking.WithChunkOverlap(p.chunkOverlap),
		)
		if err != nil {
			return nil, err
		}
		p.splitter = splitter
	}
	return p, nil
}

// processedFilenames returns the filenames already stored.
// A collection that does not exist yet holds no documents.
func (p *Pipeline) processedFilenames(ctx context.Context) (map[string]struct{}, error) {
	processed, err := p.store.Filenames(ctx)
	if errors.Is(err, storage.ErrCollectionNotFound) {
		return map[string]struct{}{}, nil
	}
	return processed, err
}

// pending returns the documents this run has to process.
func (p *Pipeline) pending(ctx context.Context, src extract.Source) ([]string, error) {
	current, err := src.Documents(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list documents: %w", err)
	}
	if p.dedup == DedupChunk {
		return current, nil
	}

	processed, err := p.processedFilenames(ctx)
	if err != nil {
		return nil, err
	}

	var fresh []string
	for _, name := range current {
		if _, ok := processed[name]; !ok {
			fresh = append(fresh, name)
		}
	}
	return fresh, nil
}

// Run indexes every document of src that the dedup policy does not skip.
// Failed batches are reported in the result. The returned error is non-nil
// only for failures that abort the run: listing documents or stored
// filenames, a collection configuration mismatch, or cancellation.
func (p *Pipeline) Run(ctx context.Context, src extract.Source) (*Result, error) {
	if src == nil {
		return nil, ErrSourceRequired
	}

	result := &Result{}
	docs, err := p.pending(ctx, src)
	if err != nil {
		return result, err
	}
	if len(docs) == 0 {
		p.logger.Info("no new documents to process")
		return result, nil
	}
	p.logger.Info("processing documents", "documents", len(docs), "dedup", p.dedup)

	var progress *ProgressTracker
	if p.progressWriter != nil {
		progress = NewProgressTracker(p.progressWriter, len(docs), p.progressInterval, "documents")
		progress.Start()
		defer progress.Finish()
	}

	writer := &batchWriter{store: p.store, embedder: p.embedder, metric: p.metric, logger: p.logger}
	batch := make([]*core.Chunk, 0, p.batchSize)
	batchIndex := 0

	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		defer func() { batch = batch[:0] }()

		if err := ctx.Err(); err != nil {
			return err
		}
		batchIndex++

		chunks, err := p.filterExisting(ctx, batch, result)
		if err != nil {
			return p.recordFailure(result, batchIndex, len(batch), err)
		}
		if len(chunks) == 0 {
			return nil
		}

		written, err := writer.write(ctx, chunks)
		if err != nil {
			return p.recordFailure(result, batchIndex, len(chunks), err)
		}
		result.Written += written
		p.logger.Debug("stored batch", "batch", batchIndex, "points", written)
		return nil
	}

	for _, name := range docs {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		pages, err := src.Pages(ctx, name)
		if err != nil {
			p.logger.Warn("skipping unreadable document", "document", name, "err", err)
			result.Unreadable = append(result.Unreadable, name)
			if progress != nil {
				progress.Increment(1)
			}
			continue
		}
		result.Documents++

		headers := extract.DetectPageHeaders(pages)
		for _, page := range pages {
			if extract.IsBlank(page) {
				p.logger.Debug("skipping empty page", "document", name, "page", page.Number)
				result.EmptyPages++
				continue
			}

			pieces, err := p.splitter.Split(page.Text)
			if err != nil {
				p.logger.Warn("failed to split page", "document", name, "page", page.Number, "err", err)
				continue
			}
			for i, piece := range pieces {
				batch = append(batch, &core.Chunk{
					Filename:    name,
					PageNumber:  page.Number,
					ChunkNumber: i + 1,
					Text:        piece,
					PageHeader:  headers[page.Number],
				})
				result.Chunks++
				if len(batch) == p.batchSize {
					if err := flush(); err != nil {
						return result, err
					}
				}
			}
		}
		if progress != nil {
			progress.Increment(1)
		}
	}
	if err := flush(); err != nil {
		return result, err
	}

	p.logger.Info("ingestion complete",
		"documents", result.Documents,
		"chunks", result.Chunks,
		"written", result.Written,
		"skipped", result.Skipped,
		"failed_batches", len(result.Failures))
	return result, nil
}

// filterExisting drops chunks that are already stored when deduplicating by chunk.
func (p *Pipeline) filterExisting(ctx context.Context, batch []*core.Chunk, result *Result) ([]*core.Chunk, error) {
	if p.dedup != DedupChunk {
		return append([]*core.Chunk(nil), batch...), nil
	}

	ids := make([]core.PointID, len(batch))
	for i, chunk := range batch {
		ids[i] = chunk.ID()
	}
	existing, err := p.store.ExistingIDs(ctx, ids...)
	if errors.Is(err, storage.ErrCollectionNotFound) {
		return append([]*core.Chunk(nil), batch...), nil
	}
	if err != nil {
		return nil, err
	}

	fresh := make([]*core.Chunk, 0, len(batch))
	for _, chunk := range batch {
		if _, ok := existing[chunk.ID()]; ok {
			result.Skipped++
			continue
		}
		fresh = append(fresh, chunk)
	}
	return fresh, nil
}

// recordFailure logs a failed batch and returns a non-nil error only if the run must stop.
func (p *Pipeline) recordFailure(result *Result, index, size int, err error) error {
	var fatalErr *errFatal
	if errors.As(err, &fatalErr) {
		p.logger.Error("aborting ingestion", "batch", index, "err", fatalErr.err)
		return fatalErr.err
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}

	p.logger.Error("batch failed, continuing", "batch", index, "chunks", size, "err", err)
	result.Failures = append(result.Failures, &BatchError{Index: index, Size: size, Err: err})
	return nil
}
