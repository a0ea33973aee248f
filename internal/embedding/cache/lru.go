package cache

import (
	"context"
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"
)

// LRU keeps vectors in process memory, evicting the least recently used.
type LRU struct {
	cache *lru.Cache[string, []float32]
}

func NewLRU(size int) (*LRU, error) {
	if size <= 0 {
		return nil, fmt.Errorf("embedding cache: size must be greater than zero")
	}
	c, err := lru.New[string, []float32](size)
	if err != nil {
		return nil, fmt.Errorf("embedding cache: %w", err)
	}
	return &LRU{cache: c}, nil
}

func (l *LRU) Get(_ context.Context, key string) ([]float32, bool, error) {
	v, ok := l.cache.Get(key)
	if !ok {
		return nil, false, nil
	}
	return clone(v), true, nil
}

func (l *LRU) Set(_ context.Context, key string, vector []float32) error {
	l.cache.Add(key, clone(vector))
	return nil
}

func (l *LRU) Len() int { return l.cache.Len() }
