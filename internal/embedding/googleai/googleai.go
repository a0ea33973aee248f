// Package googleai embeds text with Google Generative AI embedding models
// through langchaingo.
package googleai

import (
	"context"
	"errors"
	"fmt"

	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms/googleai"

	"reviewrag/internal/embedding"
)

const (
	DefaultModel     = "models/text-embedding-004"
	DefaultBatchSize = 100
)

type Config struct {
	APIKey    string
	Model     string
	Dimension int
	BatchSize int
}

// Embedder adapts a langchaingo embedder to embedding.Embedder and checks
// that every returned vector has the configured dimension.
type Embedder struct {
	model     string
	dimension int
	impl      embeddings.Embedder
}

// New builds an embedder backed by the Google AI API.
func New(ctx context.Context, cfg Config) (*Embedder, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("googleai embeddings: missing API key")
	}
	cfg, err := withDefaults(cfg)
	if err != nil {
		return nil, err
	}
	client, err := googleai.New(ctx,
		googleai.WithAPIKey(cfg.APIKey),
		googleai.WithDefaultEmbeddingModel(cfg.Model),
	)
	if err != nil {
		return nil, fmt.Errorf("googleai embeddings: init client: %w", err)
	}
	return Wrap(cfg, client)
}

// Wrap builds an embedder around any langchaingo embedder client.
func Wrap(cfg Config, client embeddings.EmbedderClient) (*Embedder, error) {
	if client == nil {
		return nil, errors.New("googleai embeddings: client is required")
	}
	cfg, err := withDefaults(cfg)
	if err != nil {
		return nil, err
	}
	impl, err := embeddings.NewEmbedder(client,
		embeddings.WithBatchSize(cfg.BatchSize),
		embeddings.WithStripNewLines(false),
	)
	if err != nil {
		return nil, fmt.Errorf("googleai embeddings: %w", err)
	}
	return &Embedder{model: cfg.Model, dimension: cfg.Dimension, impl: impl}, nil
}

func withDefaults(cfg Config) (Config, error) {
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	if cfg.Dimension <= 0 {
		d, ok := embedding.KnownDimension(cfg.Model)
		if !ok {
			return cfg, fmt.Errorf("googleai embeddings: unknown dimension for model %q", cfg.Model)
		}
		cfg.Dimension = d
	}
	return cfg, nil
}

func (e *Embedder) Name() string   { return "googleai:" + e.model }
func (e *Embedder) Dimension() int { return e.dimension }

func (e *Embedder) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	vecs, err := e.impl.EmbedDocuments(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("googleai embeddings: %w", err)
	}
	if len(vecs) != len(texts) {
		return nil, fmt.Errorf("googleai embeddings: got %d vectors for %d inputs", len(vecs), len(texts))
	}
	for _, v := range vecs {
		if err := e.check(v); err != nil {
			return nil, err
		}
	}
	return vecs, nil
}

func (e *Embedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	v, err := e.impl.EmbedQuery(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("googleai embeddings: %w", err)
	}
	if err := e.check(v); err != nil {
		return nil, err
	}
	return v, nil
}

func (e *Embedder) check(v []float32) error {
	if len(v) != e.dimension {
		return fmt.Errorf("googleai embeddings: expected dimension %d, got %d", e.dimension, len(v))
	}
	return nil
}
