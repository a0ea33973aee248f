// Package cache memoizes embeddings so repeated texts, such as duplicate
// reviews within a batch or a user asking the same question twice, do not
// hit the embedding provider again.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"reviewrag/internal/embedding"
	"reviewrag/internal/logger"
)

// Store persists vectors by key.
type Store interface {
	Get(ctx context.Context, key string) ([]float32, bool, error)
	Set(ctx context.Context, key string, vector []float32) error
}

// Embedder wraps another embedder with a cache lookup. Cache failures are
// logged and fall through to the wrapped embedder.
type Embedder struct {
	next  embedding.Embedder
	store Store
}

func New(next embedding.Embedder, store Store) *Embedder {
	return &Embedder{next: next, store: store}
}

func (e *Embedder) Name() string   { return e.next.Name() }
func (e *Embedder) Dimension() int { return e.next.Dimension() }

func (e *Embedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	key := e.key(text)
	if v, ok := e.lookup(ctx, key); ok {
		return v, nil
	}
	v, err := e.next.EmbedQuery(ctx, text)
	if err != nil {
		return nil, err
	}
	e.remember(ctx, key, v)
	return v, nil
}

// EmbedDocuments embeds only the distinct texts that are not cached yet.
func (e *Embedder) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	results := make([][]float32, len(texts))
	missing := make(map[string][]int)
	var order []string
	for i, text := range texts {
		if v, ok := e.lookup(ctx, e.key(text)); ok {
			results[i] = v
			continue
		}
		if _, seen := missing[text]; !seen {
			order = append(order, text)
		}
		missing[text] = append(missing[text], i)
	}
	if len(order) == 0 {
		return results, nil
	}
	embedded, err := e.next.EmbedDocuments(ctx, order)
	if err != nil {
		return nil, err
	}
	if len(embedded) != len(order) {
		return nil, fmt.Errorf("embedding cache: received %d embeddings for %d texts", len(embedded), len(order))
	}
	for i, text := range order {
		for _, idx := range missing[text] {
			results[idx] = clone(embedded[i])
		}
		e.remember(ctx, e.key(text), embedded[i])
	}
	return results, nil
}

func (e *Embedder) key(text string) string {
	sum := sha256.Sum256([]byte(e.next.Name() + "\x00" + text))
	return hex.EncodeToString(sum[:])
}

func (e *Embedder) lookup(ctx context.Context, key string) ([]float32, bool) {
	v, ok, err := e.store.Get(ctx, key)
	if err != nil {
		logger.FromContext(ctx).Warn("embedding cache read failed", "error", err)
		return nil, false
	}
	if !ok || len(v) != e.next.Dimension() {
		return nil, false
	}
	return v, true
}

func (e *Embedder) remember(ctx context.Context, key string, v []float32) {
	if len(v) == 0 {
		return
	}
	if err := e.store.Set(ctx, key, v); err != nil {
		logger.FromContext(ctx).Warn("embedding cache write failed", "error", err)
	}
}

func clone(src []float32) []float32 {
	if src == nil {
		return nil
	}
	dst := make([]float32, len(src))
	copy(dst, src)
	return dst
}
