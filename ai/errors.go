package ai

import (
	"errors"
	"fmt"
)

var (
	// ErrAPIKeyRequired is returned when no API key is configured.
	ErrAPIKeyRequired = errors.New("ai config: APIKey is required")

	// ErrInvalidMaxAttempts is returned when maxAttempts is not positive.
	ErrInvalidMaxAttempts = errors.New("maxAttempts must be greater than 0")

	// ErrEmbeddingCountMismatch is returned when a service answers a batch
	// with a different number of vectors than texts sent.
	ErrEmbeddingCountMismatch = errors.New("embedding count mismatch")
)

// EmbeddingError reports a failed embedding request for a batch of Count texts.
type EmbeddingError struct {
	Count int
	Err   error
}

func (e *EmbeddingError) Error() string {
	return fmt.Sprintf("embedding %d texts: %v", e.Count, e.Err)
}

func (e *EmbeddingError) Unwrap() error {
	return e.Err
}
