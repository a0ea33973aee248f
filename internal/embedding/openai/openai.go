// Package openai embeds text through an OpenAI-compatible embeddings API.
package openai

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"reviewrag/internal/embedding"
)

const (
	DefaultModel     = "text-embedding-3-small"
	DefaultBatchSize = 100
)

// Config configures the embeddings client.
type Config struct {
	APIKey    string
	BaseURL   string
	Model     string
	Dimension int
	BatchSize int
	Timeout   time.Duration
}

// Client implements embedding.Embedder on top of go-openai.
type Client struct {
	client    *openai.Client
	model     string
	dimension int
	batchSize int
}

// NewClient creates a new embeddings client using the provided configuration.
func NewClient(cfg Config) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("openai embeddings: missing API key")
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	if cfg.Dimension <= 0 {
		d, ok := embedding.KnownDimension(cfg.Model)
		if !ok {
			return nil, fmt.Errorf("openai embeddings: unknown dimension for model %q", cfg.Model)
		}
		cfg.Dimension = d
	}
	oc := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		oc.BaseURL = cfg.BaseURL
	}
	if cfg.Timeout > 0 {
		oc.HTTPClient = &http.Client{Timeout: cfg.Timeout}
	}
	return &Client{
		client:    openai.NewClientWithConfig(oc),
		model:     cfg.Model,
		dimension: cfg.Dimension,
		batchSize: cfg.BatchSize,
	}, nil
}

func (c *Client) Name() string   { return "openai:" + c.model }
func (c *Client) Dimension() int { return c.dimension }

// EmbedDocuments embeds texts in batches, preserving input order.
func (c *Client) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += c.batchSize {
		end := min(start+c.batchSize, len(texts))
		vecs, err := c.embed(ctx, texts[start:end])
		if err != nil {
			return nil, err
		}
		out = append(out, vecs...)
	}
	return out, nil
}

func (c *Client) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	vecs, err := c.embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

func (c *Client) embed(ctx context.Context, batch []string) ([][]float32, error) {
	resp, err := c.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Model: openai.EmbeddingModel(c.model),
		Input: batch,
	})
	if err != nil {
		return nil, fmt.Errorf("openai embeddings: %w", err)
	}
	if len(resp.Data) != len(batch) {
		return nil, fmt.Errorf("openai embeddings: got %d vectors for %d inputs", len(resp.Data), len(batch))
	}
	out := make([][]float32, len(batch))
	for _, d := range resp.Data {
		if d.Index < 0 || d.Index >= len(batch) {
			return nil, fmt.Errorf("openai embeddings: index %d out of range", d.Index)
		}
		v := make([]float32, len(d.Embedding))
		for i, x := range d.Embedding {
			v[i] = float32(x)
		}
		if len(v) != c.dimension {
			return nil, fmt.Errorf("openai embeddings: expected dimension %d, got %d", c.dimension, len(v))
		}
		out[d.Index] = v
	}
	return out, nil
}
