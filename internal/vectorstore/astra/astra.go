// Package astra stores documents in a DataStax Astra DB collection through
// the JSON Data API. Documents use the same field layout as the LangChain
// Astra vector store (_id, content, metadata, $vector), so existing
// collections stay readable.
package astra

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"reviewrag/internal/vectorstore"
)

const apiPath = "/api/json/v1/{keyspace}"

type Config struct {
	Endpoint   string
	Token      string
	Keyspace   string
	Collection string
	Metric     vectorstore.Metric
	Timeout    time.Duration
}

type Storage struct {
	client     *resty.Client
	collection string
	metric     vectorstore.Metric
	dimension  int
}

func NewStorage(cfg Config) *Storage {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 15 * time.Second
	}
	metric := cfg.Metric
	if metric == "" {
		metric = vectorstore.Cosine
	}
	client := resty.New().
		SetBaseURL(strings.TrimRight(cfg.Endpoint, "/")).
		SetTimeout(timeout).
		SetRetryCount(0).
		SetHeader("Token", cfg.Token).
		SetHeader("Content-Type", "application/json").
		SetPathParam("keyspace", cfg.Keyspace).
		SetPathParam("collection", cfg.Collection)
	return &Storage{client: client, collection: cfg.Collection, metric: metric}
}

// apiError is one entry of the "errors" array the Data API returns with a
// 200 status when a command fails.
type apiError struct {
	Message   string `json:"message"`
	ErrorCode string `json:"errorCode"`
}

type response struct {
	Status map[string]any `json:"status"`
	Data   struct {
		Documents []document `json:"documents"`
	} `json:"data"`
	Errors []apiError `json:"errors"`
}

type document struct {
	ID         string         `json:"_id"`
	Content    string         `json:"content"`
	Metadata   map[string]any `json:"metadata"`
	Similarity float64        `json:"$similarity"`
}

// ErrCommand wraps failures reported in the Data API response body.
var ErrCommand = errors.New("astra data api command failed")

// ErrCountLimit means the collection holds more documents than
// countDocuments is allowed to count.
var ErrCountLimit = errors.New("astra document count exceeds the data api limit")

func (s *Storage) command(ctx context.Context, path string, body map[string]any) (*response, error) {
	var out response
	resp, err := s.client.R().SetContext(ctx).
		ForceContentType("application/json").
		SetBody(body).
		SetResult(&out).
		Post(path)
	name := commandName(body)
	if err != nil {
		return nil, fmt.Errorf("astra %s: %w", name, err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("astra %s failed: %s: %s", name, resp.Status(), strings.TrimSpace(resp.String()))
	}
	if len(out.Errors) > 0 {
		msgs := make([]string, len(out.Errors))
		for i, e := range out.Errors {
			msgs[i] = strings.TrimSpace(e.ErrorCode + " " + e.Message)
		}
		return nil, fmt.Errorf("astra %s: %w: %s", name, ErrCommand, strings.Join(msgs, "; "))
	}
	return &out, nil
}

func commandName(body map[string]any) string {
	for k := range body {
		return k
	}
	return "command"
}

// Init creates the collection. createCollection is idempotent for an
// existing collection with the same vector settings.
func (s *Storage) Init(ctx context.Context, dimension int) error {
	if dimension <= 0 {
		return errors.New("invalid dimension")
	}
	s.dimension = dimension
	_, err := s.command(ctx, apiPath, map[string]any{
		"createCollection": map[string]any{
			"name": s.collection,
			"options": map[string]any{
				"vector": map[string]any{
					"dimension": dimension,
					"metric":    string(s.metric),
				},
			},
		},
	})
	return err
}

// Upsert replaces each document by _id, inserting it when absent.
func (s *Storage) Upsert(ctx context.Context, records []vectorstore.Record) error {
	if s.dimension == 0 {
		return vectorstore.ErrNotInitialized
	}
	if err := vectorstore.CheckRecords(records, s.dimension); err != nil {
		return err
	}
	for _, r := range records {
		_, err := s.command(ctx, apiPath+"/{collection}", map[string]any{
			"findOneAndReplace": map[string]any{
				"filter": map[string]any{"_id": r.ID},
				"replacement": map[string]any{
					"_id":      r.ID,
					"content":  r.Content,
					"metadata": r.Metadata,
					"$vector":  r.Vector,
				},
				"options": map[string]any{"upsert": true},
			},
		})
		if err != nil {
			return fmt.Errorf("upsert %q: %w", r.ID, err)
		}
	}
	return nil
}

func (s *Storage) Search(ctx context.Context, vector []float32, opts vectorstore.SearchOptions) ([]vectorstore.Match, error) {
	if s.dimension != 0 && len(vector) != s.dimension {
		return nil, vectorstore.ErrDimensionMismatch
	}
	topK := opts.TopK
	if topK <= 0 {
		topK = 5
	}
	out, err := s.command(ctx, apiPath+"/{collection}", map[string]any{
		"find": map[string]any{
			"sort":       map[string]any{"$vector": vector},
			"projection": map[string]any{"_id": 1, "content": 1, "metadata": 1},
			"options":    map[string]any{"limit": topK, "includeSimilarity": true},
		},
	})
	if err != nil {
		return nil, err
	}
	matches := make([]vectorstore.Match, 0, len(out.Data.Documents))
	for _, d := range out.Data.Documents {
		if d.Similarity < opts.MinScore {
			continue
		}
		matches = append(matches, vectorstore.Match{
			ID:       d.ID,
			Score:    d.Similarity,
			Content:  d.Content,
			Metadata: d.Metadata,
		})
	}
	return matches, nil
}

func (s *Storage) Count(ctx context.Context) (int, error) {
	out, err := s.command(ctx, apiPath+"/{collection}", map[string]any{"countDocuments": map[string]any{}})
	if err != nil {
		return 0, err
	}
	n, ok := out.Status["count"].(float64)
	if !ok {
		return 0, fmt.Errorf("astra countDocuments: missing count in response")
	}
	if more, _ := out.Status["moreData"].(bool); more {
		return int(n), fmt.Errorf("%w: at least %d", ErrCountLimit, int(n))
	}
	return int(n), nil
}

// Clear deletes every document, repeating while the API reports more data.
func (s *Storage) Clear(ctx context.Context) error {
	for {
		out, err := s.command(ctx, apiPath+"/{collection}", map[string]any{"deleteMany": map[string]any{}})
		if err != nil {
			return err
		}
		if more, _ := out.Status["moreData"].(bool); !more {
			return nil
		}
	}
}

func (s *Storage) Close() error { return nil }
