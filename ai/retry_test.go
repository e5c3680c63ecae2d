package ai

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRetryWithBackoff_Success(t *testing.T) {
	attempts := 0
	err := RetryWithBackoff(context.Background(), func() error {
		attempts++
		return nil
	}, 3, 10*time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, 1, attempts, "should succeed on first try")
}

func TestRetryWithBackoff_EventualSuccess(t *testing.T) {
	attempts := 0
	err := RetryWithBackoff(context.Background(), func() error {
		attempts++
		if attempts < 3 {
			return errors.New("temporary error")
		}
		return nil
	}, 5, time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, 3, attempts)
}

func TestRetryWithBackoff_AllAttemptsFail(t *testing.T) {
	attempts := 0
	expectedErr := errors.New("persistent error")
	err := RetryWithBackoff(context.Background(), func() error {
		attempts++
		return expectedErr
	}, 3, time.Millisecond)
	assert.Equal(t, expectedErr, err, "should return the last error")
	assert.Equal(t, 3, attempts)
}

func TestRetryWithBackoff_ContextCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	attempts := 0
	err := RetryWithBackoff(ctx, func() error {
		attempts++
		if attempts == 2 {
			cancel()
		}
		return errors.New("error")
	}, 10, 10*time.Millisecond)
	assert.ErrorIs(t, err, context.Canceled)
	assert.LessOrEqual(t, attempts, 2)
}

func TestRetryWithBackoff_InvalidMaxAttempts(t *testing.T) {
	for _, n := range []int{0, -1} {
		attempts := 0
		err := RetryWithBackoff(context.Background(), func() error {
			attempts++
			return nil
		}, n, time.Millisecond)
		assert.ErrorIs(t, err, ErrInvalidMaxAttempts)
		assert.Zero(t, attempts)
	}
}

type flakyEmbedder struct {
	failures int
	calls    int
}

func (f *flakyEmbedder) EmbedText(ctx context.Context, text string) ([]float32, error) {
	f.calls++
	if f.calls <= f.failures {
		return nil, errors.New("unavailable")
	}
	return []float32{1, 0}, nil
}

func (f *flakyEmbedder) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	f.calls++
	if f.calls <= f.failures {
		return nil, errors.New("unavailable")
	}
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{1, 0}
	}
	return out, nil
}

func TestRetryingEmbedder(t *testing.T) {
	t.Run("recovers from transient failures", func(t *testing.T) {
		inner := &flakyEmbedder{failures: 2}
		embedder, err := NewRetryingEmbedder(inner, 3, time.Millisecond)
		require.NoError(t, err)

		vectors, err := embedder.EmbedTexts(context.Background(), []string{"a", "b"})
		require.NoError(t, err)
		assert.Len(t, vectors, 2)
		assert.Equal(t, 3, inner.calls)
	})

	t.Run("gives up after max attempts", func(t *testing.T) {
		inner := &flakyEmbedder{failures: 5}
		embedder, err := NewRetryingEmbedder(inner, 2, time.Millisecond)
		require.NoError(t, err)

		_, err = embedder.EmbedText(context.Background(), "a")
		assert.Error(t, err)
		assert.Equal(t, 2, inner.calls)
	})

	t.Run("rejects invalid attempts", func(t *testing.T) {
		_, err := NewRetryingEmbedder(&flakyEmbedder{}, 0, time.Millisecond)
		assert.ErrorIs(t, err, ErrInvalidMaxAttempts)
	})
}

func TestEmbeddingError(t *testing.T) {
	cause := errors.New("rate limited")
	err := &EmbeddingError{Count: 8, Err: cause}
	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "8 texts")
}
