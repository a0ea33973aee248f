package openai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type embeddingsRequest struct {
	Input []string `json:"input"`
	Model string   `json:"model"`
}

func fakeServer(t *testing.T, dim int, calls *atomic.Int32) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		assert.Equal(t, "/embeddings", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		var req embeddingsRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		data := make([]map[string]any, len(req.Input))
		// reversed so the client has to honour the index field
		for i := range req.Input {
			vec := make([]float32, dim)
			vec[0] = float32(len(req.Input[i]))
			j := len(req.Input) - 1 - i
			data[j] = map[string]any{"object": "embedding", "index": i, "embedding": vec}
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"object": "list",
			"model":  req.Model,
			"data":   data,
			"usage":  map[string]int{"prompt_tokens": 1, "total_tokens": 1},
		})
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestClient(t *testing.T) {
	ctx := context.Background()

	t.Run("Should batch documents and keep input order", func(t *testing.T) {
		var calls atomic.Int32
		srv := fakeServer(t, 4, &calls)
		c, err := NewClient(Config{APIKey: "test-key", BaseURL: srv.URL, Model: "custom", Dimension: 4, BatchSize: 2})
		require.NoError(t, err)

		vecs, err := c.EmbedDocuments(ctx, []string{"a", "bb", "ccc"})
		require.NoError(t, err)
		require.Len(t, vecs, 3)
		assert.Equal(t, float32(1), vecs[0][0])
		assert.Equal(t, float32(2), vecs[1][0])
		assert.Equal(t, float32(3), vecs[2][0])
		assert.Equal(t, int32(2), calls.Load())
	})

	t.Run("Should embed a single query", func(t *testing.T) {
		var calls atomic.Int32
		srv := fakeServer(t, 4, &calls)
		c, err := NewClient(Config{APIKey: "test-key", BaseURL: srv.URL, Model: "custom", Dimension: 4})
		require.NoError(t, err)
		v, err := c.EmbedQuery(ctx, "hello")
		require.NoError(t, err)
		assert.Len(t, v, 4)
	})

	t.Run("Should reject vectors of the wrong dimension", func(t *testing.T) {
		var calls atomic.Int32
		srv := fakeServer(t, 3, &calls)
		c, err := NewClient(Config{APIKey: "test-key", BaseURL: srv.URL, Model: "custom", Dimension: 4})
		require.NoError(t, err)
		_, err = c.EmbedQuery(ctx, "hello")
		assert.ErrorContains(t, err, "expected dimension 4")
	})

	t.Run("Should surface API errors", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"error":{"message":"bad key","type":"invalid_request_error"}}`))
		}))
		defer srv.Close()
		c, err := NewClient(Config{APIKey: "test-key", BaseURL: srv.URL, Model: "custom", Dimension: 4})
		require.NoError(t, err)
		_, err = c.EmbedQuery(ctx, "hello")
		assert.ErrorContains(t, err, "openai embeddings")
	})
}

func TestNewClient(t *testing.T) {
	t.Run("Should require an API key", func(t *testing.T) {
		_, err := NewClient(Config{})
		assert.Error(t, err)
	})

	t.Run("Should derive dimension from known models", func(t *testing.T) {
		c, err := NewClient(Config{APIKey: "k"})
		require.NoError(t, err)
		assert.Equal(t, 1536, c.Dimension())
		assert.Equal(t, "openai:text-embedding-3-small", c.Name())
	})

	t.Run("Should fail for unknown models without an explicit dimension", func(t *testing.T) {
		_, err := NewClient(Config{APIKey: "k", Model: "mystery"})
		assert.ErrorContains(t, err, "unknown dimension")
	})
}
