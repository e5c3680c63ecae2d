package openai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/poiesic/lectern/ai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewProvider_InvalidConfig(t *testing.T) {
	_, err := NewProvider(ai.NewConfig())
	assert.ErrorIs(t, err, ai.ErrAPIKeyRequired)
}

func TestNewProvider(t *testing.T) {
	provider, err := NewProvider(ai.NewConfig(ai.WithHost("http://localhost:11434"), ai.WithAPIKey("none")))
	require.NoError(t, err)
	defer provider.Close()

	assert.NotNil(t, provider.Embedder())
	assert.NotNil(t, provider.Generator())
}

func embeddingServer(t *testing.T, vectorsPerRequest func(n int) int) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Input []string `json:"input"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))

		type item struct {
			Object    string    `json:"object"`
			Embedding []float32 `json:"embedding"`
			Index     int       `json:"index"`
		}
		data := []item{}
		for i := 0; i < vectorsPerRequest(len(req.Input)); i++ {
			data = append(data, item{Object: "embedding", Embedding: []float32{float32(i), 1}, Index: i})
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"object": "list",
			"data":   data,
			"model":  "test-embed",
			"usage":  map[string]int{"prompt_tokens": 1, "total_tokens": 1},
		})
	}))
}

func TestEmbedder_EmbedTexts(t *testing.T) {
	server := embeddingServer(t, func(n int) int { return n })
	defer server.Close()

	embedder, err := NewEmbedder(ai.NewConfig(ai.WithHost(server.URL), ai.WithAPIKey("none")))
	require.NoError(t, err)

	vectors, err := embedder.EmbedTexts(context.Background(), []string{"first", "second"})
	require.NoError(t, err)
	require.Len(t, vectors, 2)
	assert.Equal(t, []float32{1, 1}, vectors[1])
}

func TestEmbedder_RequestFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":{"message":"boom"}}`, http.StatusInternalServerError)
	}))
	defer server.Close()

	embedder, err := NewEmbedder(ai.NewConfig(ai.WithHost(server.URL), ai.WithAPIKey("none")))
	require.NoError(t, err)

	_, err = embedder.EmbedTexts(context.Background(), []string{"a", "b", "c"})
	var embedErr *ai.EmbeddingError
	require.ErrorAs(t, err, &embedErr)
	assert.Equal(t, 3, embedErr.Count)
}
