package qdrant

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"reviewrag/internal/vectorstore"
)

type fakeQdrant struct {
	mu       sync.Mutex
	exists   bool
	created  map[string]any
	points   map[string]map[string]any
	requests []string
	apiKeys  []string
}

func (f *fakeQdrant) handler(t *testing.T) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		f.requests = append(f.requests, r.Method+" "+r.URL.Path)
		f.apiKeys = append(f.apiKeys, r.Header.Get("api-key"))
		w.Header().Set("Content-Type", "application/json")
		var body map[string]any
		if r.Body != nil {
			_ = json.NewDecoder(r.Body).Decode(&body)
		}
		switch {
		case r.Method == http.MethodGet && r.URL.Path == "/collections/reviews":
			if !f.exists {
				w.WriteHeader(http.StatusNotFound)
				_, _ = w.Write([]byte(`{"status":{"error":"Not found"}}`))
				return
			}
			_, _ = w.Write([]byte(`{"result":{"status":"green"}}`))
		case r.Method == http.MethodPut && r.URL.Path == "/collections/reviews":
			f.exists = true
			f.created = body
			_, _ = w.Write([]byte(`{"result":true}`))
		case r.Method == http.MethodDelete && r.URL.Path == "/collections/reviews":
			f.exists = false
			f.points = nil
			_, _ = w.Write([]byte(`{"result":true}`))
		case r.Method == http.MethodPut && r.URL.Path == "/collections/reviews/points":
			assert.Equal(t, "true", r.URL.Query().Get("wait"))
			if f.points == nil {
				f.points = map[string]map[string]any{}
			}
			for _, p := range body["points"].([]any) {
				pt := p.(map[string]any)
				f.points[pt["id"].(string)] = pt
			}
			_, _ = w.Write([]byte(`{"result":{"status":"completed"}}`))
		case r.Method == http.MethodPost && r.URL.Path == "/collections/reviews/points/count":
			_ = json.NewEncoder(w).Encode(map[string]any{"result": map[string]any{"count": len(f.points)}})
		case r.Method == http.MethodPost && r.URL.Path == "/collections/reviews/points/search":
			result := []map[string]any{}
			for id, pt := range f.points {
				result = append(result, map[string]any{"id": id, "score": 0.87, "payload": pt["payload"]})
			}
			_ = json.NewEncoder(w).Encode(map[string]any{"result": result})
		default:
			w.WriteHeader(http.StatusBadRequest)
		}
	})
}

func TestStorage(t *testing.T) {
	ctx := context.Background()

	setup := func(t *testing.T) (*fakeQdrant, *Storage) {
		fake := &fakeQdrant{}
		srv := httptest.NewServer(fake.handler(t))
		t.Cleanup(srv.Close)
		s := NewStorage(Config{URL: srv.URL + "/", APIKey: "secret", Collection: "reviews", Metric: vectorstore.DotProduct})
		return fake, s
	}

	t.Run("Should create a missing collection with the metric and dimension", func(t *testing.T) {
		fake, s := setup(t)
		require.NoError(t, s.Init(ctx, 3))
		vectors := fake.created["vectors"].(map[string]any)
		assert.Equal(t, float64(3), vectors["size"])
		assert.Equal(t, "Dot", vectors["distance"])
		assert.Equal(t, "secret", fake.apiKeys[0])
	})

	t.Run("Should not recreate an existing collection", func(t *testing.T) {
		fake, s := setup(t)
		fake.exists = true
		require.NoError(t, s.Init(ctx, 3))
		assert.Equal(t, []string{"GET /collections/reviews"}, fake.requests)
	})

	t.Run("Should upsert by derived point id and search back document ids", func(t *testing.T) {
		fake, s := setup(t)
		require.NoError(t, s.Init(ctx, 2))
		docID := "0123456789abcdef0123456789abcdef"
		rec := vectorstore.Record{ID: docID, Content: "crisp sound", Vector: []float32{1, 0}, Metadata: map[string]any{"product_name": "X"}}
		require.NoError(t, s.Upsert(ctx, []vectorstore.Record{rec}))
		require.NoError(t, s.Upsert(ctx, []vectorstore.Record{rec}))

		n, err := s.Count(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, n)
		_, ok := fake.points["01234567-89ab-cdef-0123-456789abcdef"]
		assert.True(t, ok)

		got, err := s.Search(ctx, []float32{1, 0}, vectorstore.SearchOptions{TopK: 3})
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, docID, got[0].ID)
		assert.Equal(t, "crisp sound", got[0].Content)
		assert.Equal(t, "X", got[0].Metadata["product_name"])
		assert.InDelta(t, 0.87, got[0].Score, 1e-9)
	})

	t.Run("Should recreate the collection on clear", func(t *testing.T) {
		fake, s := setup(t)
		require.NoError(t, s.Init(ctx, 2))
		require.NoError(t, s.Clear(ctx))
		assert.True(t, fake.exists)
		assert.Contains(t, fake.requests, "DELETE /collections/reviews")
	})

	t.Run("Should surface HTTP errors without retrying", func(t *testing.T) {
		var calls int
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			calls++
			w.WriteHeader(http.StatusServiceUnavailable)
		}))
		defer srv.Close()
		s := NewStorage(Config{URL: srv.URL, Collection: "reviews"})
		err := s.Init(ctx, 2)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "503")
		assert.Equal(t, 1, calls)
	})
}

func TestPointID(t *testing.T) {
	t.Run("Should map md5 digests onto uuids byte for byte", func(t *testing.T) {
		assert.Equal(t, "d41d8cd9-8f00-b204-e980-0998ecf8427e", PointID("d41d8cd98f00b204e9800998ecf8427e"))
	})

	t.Run("Should derive stable uuids for other ids", func(t *testing.T) {
		assert.Equal(t, PointID("doc-1"), PointID("doc-1"))
		assert.NotEqual(t, PointID("doc-1"), PointID("doc-2"))
	})
}
