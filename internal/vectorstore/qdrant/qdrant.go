package qdrant

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"

	"reviewrag/internal/vectorstore"
)

// Payload keys. Qdrant point IDs must be integers or UUIDs, so the document
// ID travels in the payload and the point ID is derived from it.
const (
	payloadDocID    = "doc_id"
	payloadContent  = "content"
	payloadMetadata = "metadata"
)

// Storage is a REST client to Qdrant. It creates the collection if missing.
type Storage struct {
	client     *resty.Client
	collection string
	metric     vectorstore.Metric
	dimension  int
}

type Config struct {
	URL        string
	APIKey     string
	Collection string
	Metric     vectorstore.Metric
	Timeout    time.Duration
}

func NewStorage(cfg Config) *Storage {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 15 * time.Second
	}
	client := resty.New().
		SetBaseURL(strings.TrimRight(cfg.URL, "/")).
		SetTimeout(timeout).
		SetRetryCount(0).
		SetHeader("Content-Type", "application/json").
		SetPathParam("collection", cfg.Collection)
	if cfg.APIKey != "" {
		client.SetHeader("api-key", cfg.APIKey)
	}
	metric := cfg.Metric
	if metric == "" {
		metric = vectorstore.Cosine
	}
	return &Storage{client: client, collection: cfg.Collection, metric: metric}
}

func distance(m vectorstore.Metric) string {
	switch m {
	case vectorstore.DotProduct:
		return "Dot"
	case vectorstore.Euclidean:
		return "Euclid"
	default:
		return "Cosine"
	}
}

// PointID maps a document ID onto a Qdrant UUID. 32-char hex digests map
// byte for byte; anything else gets a name-based UUID.
func PointID(docID string) string {
	if raw, err := hex.DecodeString(docID); err == nil && len(raw) == 16 {
		if id, err := uuid.FromBytes(raw); err == nil {
			return id.String()
		}
	}
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(docID)).String()
}

func (s *Storage) Init(ctx context.Context, dimension int) error {
	if dimension <= 0 {
		return errors.New("invalid dimension")
	}
	s.dimension = dimension
	resp, err := s.client.R().SetContext(ctx).Get("/collections/{collection}")
	if err != nil {
		return fmt.Errorf("qdrant: get collection: %w", err)
	}
	switch {
	case resp.StatusCode() == http.StatusNotFound:
		return s.create(ctx)
	case resp.IsError():
		return statusError("get collection", resp)
	}
	return nil
}

func (s *Storage) create(ctx context.Context) error {
	body := map[string]any{
		"vectors": map[string]any{
			"size":     s.dimension,
			"distance": distance(s.metric),
		},
	}
	resp, err := s.client.R().SetContext(ctx).SetBody(body).Put("/collections/{collection}")
	if err != nil {
		return fmt.Errorf("qdrant: create collection: %w", err)
	}
	if resp.IsError() {
		return statusError("create collection", resp)
	}
	return nil
}

func (s *Storage) Upsert(ctx context.Context, records []vectorstore.Record) error {
	if s.dimension == 0 {
		return vectorstore.ErrNotInitialized
	}
	if len(records) == 0 {
		return nil
	}
	if err := vectorstore.CheckRecords(records, s.dimension); err != nil {
		return err
	}
	points := make([]map[string]any, len(records))
	for i, r := range records {
		points[i] = map[string]any{
			"id":     PointID(r.ID),
			"vector": r.Vector,
			"payload": map[string]any{
				payloadDocID:    r.ID,
				payloadContent:  r.Content,
				payloadMetadata: r.Metadata,
			},
		}
	}
	resp, err := s.client.R().SetContext(ctx).
		SetQueryParam("wait", "true").
		SetBody(map[string]any{"points": points}).
		Put("/collections/{collection}/points")
	if err != nil {
		return fmt.Errorf("qdrant: upsert: %w", err)
	}
	if resp.IsError() {
		return statusError("upsert", resp)
	}
	return nil
}

type searchResponse struct {
	Result []struct {
		ID      any            `json:"id"`
		Score   float64        `json:"score"`
		Payload map[string]any `json:"payload"`
	} `json:"result"`
}

func (s *Storage) Search(ctx context.Context, vector []float32, opts vectorstore.SearchOptions) ([]vectorstore.Match, error) {
	if s.dimension != 0 && len(vector) != s.dimension {
		return nil, vectorstore.ErrDimensionMismatch
	}
	topK := opts.TopK
	if topK <= 0 {
		topK = 5
	}
	req := map[string]any{
		"vector":       vector,
		"limit":        topK,
		"with_payload": true,
	}
	if opts.MinScore > 0 {
		req["score_threshold"] = opts.MinScore
	}
	var out searchResponse
	resp, err := s.client.R().SetContext(ctx).SetBody(req).SetResult(&out).
		Post("/collections/{collection}/points/search")
	if err != nil {
		return nil, fmt.Errorf("qdrant: search: %w", err)
	}
	if resp.IsError() {
		return nil, statusError("search", resp)
	}
	matches := make([]vectorstore.Match, 0, len(out.Result))
	for _, r := range out.Result {
		m := vectorstore.Match{Score: r.Score}
		if v, ok := r.Payload[payloadDocID].(string); ok {
			m.ID = v
		} else {
			m.ID = fmt.Sprint(r.ID)
		}
		if v, ok := r.Payload[payloadContent].(string); ok {
			m.Content = v
		}
		if v, ok := r.Payload[payloadMetadata].(map[string]any); ok {
			m.Metadata = v
		}
		matches = append(matches, m)
	}
	return matches, nil
}

func (s *Storage) Count(ctx context.Context) (int, error) {
	var out struct {
		Result struct {
			Count int `json:"count"`
		} `json:"result"`
	}
	resp, err := s.client.R().SetContext(ctx).
		SetBody(map[string]any{"exact": true}).
		SetResult(&out).
		Post("/collections/{collection}/points/count")
	if err != nil {
		return 0, fmt.Errorf("qdrant: count: %w", err)
	}
	if resp.IsError() {
		return 0, statusError("count", resp)
	}
	return out.Result.Count, nil
}

// Clear drops the collection and recreates it empty.
func (s *Storage) Clear(ctx context.Context) error {
	resp, err := s.client.R().SetContext(ctx).Delete("/collections/{collection}")
	if err != nil {
		return fmt.Errorf("qdrant: drop collection: %w", err)
	}
	if resp.IsError() && resp.StatusCode() != http.StatusNotFound {
		return statusError("drop collection", resp)
	}
	if s.dimension == 0 {
		return nil
	}
	return s.create(ctx)
}

func (s *Storage) Close() error { return nil }

func statusError(op string, resp *resty.Response) error {
	return fmt.Errorf("qdrant %s %s failed: %s: %s", op, resp.Request.URL, resp.Status(), strings.TrimSpace(resp.String()))
}
