package chunking

import (
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/tmc/langchaingo/textsplitter"
)

const (
	// DefaultChunkSize is the maximum chunk length in characters.
	DefaultChunkSize = 1000

	// DefaultChunkOverlap is the number of characters adjacent chunks may share.
	DefaultChunkOverlap = 200
)

// DefaultSeparators is the fallback hierarchy, coarsest first.
// The empty separator forces a hard character cut.
var DefaultSeparators = []string{"\n\n", "\n", ".", " ", ""}

var (
	// ErrInvalidChunkSize is returned when the chunk size is not positive.
	ErrInvalidChunkSize = errors.New("chunk size must be positive")

	// ErrInvalidOverlap is returned when the overlap is negative or not smaller than the chunk size.
	ErrInvalidOverlap = errors.New("chunk overlap must be >= 0 and smaller than chunk size")

	// ErrNoSeparators is returned when the separator list is empty.
	ErrNoSeparators = errors.New("at least one separator is required")
)

// Splitter splits page text into overlapping chunks along a fallback
// hierarchy of separators. A Splitter is immutable and safe for concurrent use.
type Splitter struct {
	chunkSize    int
	chunkOverlap int
	separators   []string
}

// Option configures a Splitter.
type Option func(*Splitter) error

// WithChunkSize sets the maximum chunk length in characters.
// Default is DefaultChunkSize.
func WithChunkSize(size int) Option {
	return func(s *Splitter) error {
		if size <= 0 {
			return fmt.Errorf("%w: got %d", ErrInvalidChunkSize, size)
		}
		s.chunkSize = size
		return nil
	}
}

// WithChunkOverlap sets how many characters adjacent chunks may share.
// Default is DefaultChunkOverlap.
func WithChunkOverlap(overlap int) Option {
	return func(s *Splitter) error {
		s.chunkOverlap = overlap
		return nil
	}
}

// WithSeparators replaces the separator hierarchy.
// Default is DefaultSeparators.
func WithSeparators(separators ...string) Option {
	return func(s *Splitter) error {
		if len(separators) == 0 {
			return ErrNoSeparators
		}
		s.separators = append([]string(nil), separators...)
		return nil
	}
}

// NewSplitter creates a splitter with the given options.
func NewSplitter(opts ...Option) (*Splitter, error) {
	s := &Splitter{
		chunkSize:    DefaultChunkSize,
		chunkOverlap: DefaultChunkOverlap,
		separators:   append([]string(nil), DefaultSeparators...),
	}
	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, err
		}
	}
	if s.chunkOverlap < 0 || s.chunkOverlap >= s.chunkSize {
		return nil, fmt.Errorf("%w: size %d, overlap %d", ErrInvalidOverlap, s.chunkSize, s.chunkOverlap)
	}
	return s, nil
}

// ChunkSize returns the configured maximum chunk length.
func (s *Splitter) ChunkSize() int {
	return s.chunkSize
}

// ChunkOverlap returns the configured overlap.
func (s *Splitter) ChunkOverlap() int {
	return s.chunkOverlap
}

// Split splits text into an ordered sequence of chunks, each trimmed of
// surrounding whitespace. Blank input yields no chunks. The same input always
// yields the same output.
func (s *Splitter) Split(text string) ([]string, error) {
	if strings.TrimSpace(text) == "" {
		return nil, nil
	}

	// Separators stay attached to the following piece so merged lengths
	// include them and never exceed chunkSize.
	rc := textsplitter.NewRecursiveCharacter(
		textsplitter.WithChunkSize(s.chunkSize),
		textsplitter.WithChunkOverlap(s.chunkOverlap),
		textsplitter.WithSeparators(s.separators),
		textsplitter.WithLenFunc(utf8.RuneCountInString),
		textsplitter.WithKeepSeparator(true),
	)

	pieces, err := rc.SplitText(text)
	if err != nil {
		return nil, err
	}

	chunks := make([]string, 0, len(pieces))
	for _, piece := range pieces {
		piece = strings.TrimSpace(piece)
		if piece == "" {
			continue
		}
		chunks = append(chunks, piece)
	}
	return chunks, nil
}
