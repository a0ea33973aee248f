package memory

import (
	"context"
	"errors"
	"sync"

	"reviewrag/internal/vectorstore"
)

// Storage is a simple in-memory vector store using brute-force similarity.
// Records are keyed by ID, so repeated upserts replace rather than append.
type Storage struct {
	mu        sync.RWMutex
	metric    vectorstore.Metric
	dimension int
	records   map[string]vectorstore.Record
}

func NewStorage(metric vectorstore.Metric) *Storage {
	if metric == "" {
		metric = vectorstore.Cosine
	}
	return &Storage{metric: metric, records: make(map[string]vectorstore.Record)}
}

// Init sets the dimension. Existing records are kept when the dimension is
// unchanged, mirroring a remote collection that already exists.
func (s *Storage) Init(_ context.Context, dimension int) error {
	if dimension <= 0 {
		return errors.New("invalid dimension")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.dimension != dimension {
		s.records = make(map[string]vectorstore.Record)
	}
	s.dimension = dimension
	return nil
}

func (s *Storage) Upsert(_ context.Context, records []vectorstore.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.dimension == 0 {
		return vectorstore.ErrNotInitialized
	}
	if err := vectorstore.CheckRecords(records, s.dimension); err != nil {
		return err
	}
	for _, r := range records {
		vec := make([]float32, len(r.Vector))
		copy(vec, r.Vector)
		r.Vector = vec
		r.Metadata = vectorstore.CloneMetadata(r.Metadata)
		s.records[r.ID] = r
	}
	return nil
}

func (s *Storage) Search(_ context.Context, vector []float32, opts vectorstore.SearchOptions) ([]vectorstore.Match, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.dimension == 0 {
		return nil, vectorstore.ErrNotInitialized
	}
	if len(vector) != s.dimension {
		return nil, vectorstore.ErrDimensionMismatch
	}
	topK := opts.TopK
	if topK <= 0 {
		topK = 5
	}
	matches := make([]vectorstore.Match, 0, len(s.records))
	for _, r := range s.records {
		score := vectorstore.Similarity(s.metric, vector, r.Vector)
		if score < opts.MinScore {
			continue
		}
		matches = append(matches, vectorstore.Match{
			ID:       r.ID,
			Score:    score,
			Content:  r.Content,
			Metadata: vectorstore.CloneMetadata(r.Metadata),
		})
	}
	vectorstore.SortMatches(matches)
	if len(matches) > topK {
		matches = matches[:topK]
	}
	return matches, nil
}

func (s *Storage) Count(_ context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records), nil
}

func (s *Storage) Clear(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = make(map[string]vectorstore.Record)
	return nil
}

func (s *Storage) Close() error { return nil }
