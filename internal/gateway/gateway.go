// Package gateway bridges documents and a vector-search backend. It owns
// the backend connection, writes documents idempotently by their content
// ID, and serves bounded top-k retrieval.
package gateway

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"reviewrag/internal/domain"
	"reviewrag/internal/embedding"
	"reviewrag/internal/logger"
	"reviewrag/internal/vectorstore"
)

// State is the connection state of a Gateway.
type State int

const (
	Disconnected State = iota
	Connected
)

func (s State) String() string {
	if s == Connected {
		return "connected"
	}
	return "disconnected"
}

type Gateway struct {
	cfg      Config
	embedder embedding.Embedder
	dial     Dialer
	metrics  *Metrics

	mu      sync.Mutex
	storage vectorstore.Storage
}

type Option func(*Gateway)

// WithStorage starts the gateway connected to st. The handle is used as is;
// Init is not called on it.
func WithStorage(st vectorstore.Storage) Option {
	return func(g *Gateway) { g.storage = st }
}

func WithMetrics(m *Metrics) Option {
	return func(g *Gateway) { g.metrics = m }
}

// New validates cfg and returns a disconnected gateway. Configuration
// problems are reported here, before any network call. A nil dial selects
// Dial.
func New(cfg Config, emb embedding.Embedder, dial Dialer, opts ...Option) (*Gateway, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if emb == nil {
		return nil, &domain.ConfigError{Scope: "gateway", Missing: []string{"embedder"}}
	}
	if dial == nil {
		dial = Dial
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	g := &Gateway{cfg: cfg, embedder: emb, dial: dial}
	for _, opt := range opts {
		opt(g)
	}
	return g, nil
}

// DefaultTopK is the configured retrieval size, 3 when unset.
func (g *Gateway) DefaultTopK() int {
	if g.cfg.TopK > 0 {
		return g.cfg.TopK
	}
	return DefaultTopK
}

func (g *Gateway) State() State {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.storage != nil {
		return Connected
	}
	return Disconnected
}

// Connect dials the backend and ensures the collection exists with the
// embedder's dimension. It is idempotent: once connected, the existing
// handle is returned.
func (g *Gateway) Connect(ctx context.Context) (vectorstore.Storage, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.storage != nil {
		return g.storage, nil
	}
	start := time.Now()
	st, err := g.dial(ctx, g.cfg)
	if err != nil {
		return nil, fmt.Errorf("connect %s: %w", g.cfg.Backend, err)
	}
	if err := st.Init(ctx, g.embedder.Dimension()); err != nil {
		_ = st.Close()
		return nil, fmt.Errorf("init collection %s: %w", g.cfg.Collection, err)
	}
	g.storage = st
	g.metrics.observe("connect", start)
	logger.FromContext(ctx).Info("gateway.connected",
		"backend", g.cfg.Backend,
		"collection", g.cfg.Collection,
		"dimension", g.embedder.Dimension(),
		"embedder", g.embedder.Name(),
	)
	return st, nil
}

// Close releases the backend handle. The gateway can connect again later.
func (g *Gateway) Close() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.storage == nil {
		return nil
	}
	err := g.storage.Close()
	g.storage = nil
	return err
}

// Insert upserts docs by ID and returns the distinct IDs written, in order
// of first appearance. Documents sharing an ID collapse to one record and
// the last one wins. Backend and embedding errors are returned unretried.
func (g *Gateway) Insert(ctx context.Context, docs []domain.Document) ([]string, error) {
	if len(docs) == 0 {
		return nil, nil
	}
	ids, unique := dedupe(docs)
	st, err := g.Connect(ctx)
	if err != nil {
		return nil, err
	}
	start := time.Now()
	log := logger.FromContext(ctx)
	for lo := 0; lo < len(unique); lo += g.cfg.BatchSize {
		batch := unique[lo:min(lo+g.cfg.BatchSize, len(unique))]
		texts := make([]string, len(batch))
		for i := range batch {
			texts[i] = batch[i].Content
		}
		vectors, err := g.embedder.EmbedDocuments(ctx, texts)
		if err != nil {
			return nil, fmt.Errorf("embed documents: %w", err)
		}
		if len(vectors) != len(batch) {
			return nil, fmt.Errorf("embed documents: got %d vectors for %d documents", len(vectors), len(batch))
		}
		records := make([]vectorstore.Record, len(batch))
		for i, d := range batch {
			records[i] = vectorstore.Record{
				ID:       d.ID,
				Content:  d.Content,
				Vector:   vectors[i],
				Metadata: d.Metadata.Map(),
			}
		}
		if err := st.Upsert(ctx, records); err != nil {
			return nil, fmt.Errorf("upsert documents: %w", err)
		}
		g.metrics.addUpserted(len(records))
		log.Debug("ingest.batch_upserted", "offset", lo, "size", len(records))
	}
	g.metrics.observe("insert", start)
	log.Info("ingest.batch_complete", "count", len(ids), "received", len(docs))
	return ids, nil
}

func dedupe(docs []domain.Document) ([]string, []domain.Document) {
	pos := make(map[string]int, len(docs))
	unique := make([]domain.Document, 0, len(docs))
	for _, d := range docs {
		if i, ok := pos[d.ID]; ok {
			unique[i] = d
			continue
		}
		pos[d.ID] = len(unique)
		unique = append(unique, d)
	}
	ids := make([]string, len(unique))
	for i := range unique {
		ids[i] = unique[i].ID
	}
	return ids, unique
}

// Retrieve returns at most topK documents ranked by descending similarity
// to query. topK == 0 yields an empty result without touching the backend.
// An empty result is valid and is not an error.
func (g *Gateway) Retrieve(ctx context.Context, query string, topK int) ([]domain.SearchResult, error) {
	if topK < 0 {
		return nil, fmt.Errorf("%w: top_k must not be negative, got %d", domain.ErrInvalidInput, topK)
	}
	if topK == 0 {
		return []domain.SearchResult{}, nil
	}
	if strings.TrimSpace(query) == "" {
		return nil, fmt.Errorf("%w: empty query", domain.ErrInvalidInput)
	}
	st, err := g.Connect(ctx)
	if err != nil {
		g.metrics.retrieval("error")
		return nil, err
	}
	start := time.Now()
	vec, err := g.embedder.EmbedQuery(ctx, query)
	if err != nil {
		g.metrics.retrieval("error")
		return nil, fmt.Errorf("embed query: %w", err)
	}
	matches, err := st.Search(ctx, vec, vectorstore.SearchOptions{TopK: topK, MinScore: g.cfg.MinScore})
	if err != nil {
		g.metrics.retrieval("error")
		return nil, fmt.Errorf("search: %w", err)
	}
	results := rank(matches, topK)
	g.metrics.observe("retrieve", start)
	if len(results) == 0 {
		g.metrics.retrieval("empty")
	} else {
		g.metrics.retrieval("hit")
	}
	logger.FromContext(ctx).Info("retrieve.result", "k", topK, "returned", len(results))
	return results, nil
}

// rank deduplicates matches by ID, keeping the best score, orders them and
// cuts the list to k.
func rank(matches []vectorstore.Match, k int) []domain.SearchResult {
	best := make(map[string]int, len(matches))
	uniq := make([]vectorstore.Match, 0, len(matches))
	for _, m := range matches {
		if i, ok := best[m.ID]; ok {
			if m.Score > uniq[i].Score {
				uniq[i] = m
			}
			continue
		}
		best[m.ID] = len(uniq)
		uniq = append(uniq, m)
	}
	vectorstore.SortMatches(uniq)
	if len(uniq) > k {
		uniq = uniq[:k]
	}
	out := make([]domain.SearchResult, len(uniq))
	for i, m := range uniq {
		out[i] = domain.SearchResult{
			Document: domain.Document{
				ID:       m.ID,
				Content:  m.Content,
				Metadata: domain.MetadataFromMap(m.Metadata),
			},
			Score: m.Score,
		}
	}
	return out
}

// Count reports how many documents the backend holds.
func (g *Gateway) Count(ctx context.Context) (int, error) {
	st, err := g.Connect(ctx)
	if err != nil {
		return 0, err
	}
	n, err := st.Count(ctx)
	if err != nil {
		return 0, fmt.Errorf("count: %w", err)
	}
	return n, nil
}

// Reset removes every document from the collection.
func (g *Gateway) Reset(ctx context.Context) error {
	st, err := g.Connect(ctx)
	if err != nil {
		return err
	}
	if err := st.Clear(ctx); err != nil {
		return fmt.Errorf("clear collection: %w", err)
	}
	logger.FromContext(ctx).Warn("gateway.reset", "collection", g.cfg.Collection)
	return nil
}
