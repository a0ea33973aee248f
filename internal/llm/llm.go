// Package llm turns a rendered prompt and its retrieved context into an
// answer.
package llm

import (
	"context"
	"fmt"

	"reviewrag/internal/domain"
)

// Request carries both the rendered prompt and the raw material it was
// built from, so generators that do not call a model can still answer.
type Request struct {
	Prompt   string
	Question string
	Context  []domain.Document
}

type Generator interface {
	Name() string
	Generate(ctx context.Context, req Request) (string, error)
}

type Provider string

const (
	ProviderGoogle     Provider = "google"
	ProviderOpenAI     Provider = "openai"
	ProviderExtractive Provider = "extractive"
)

type Config struct {
	Provider    Provider
	Model       string
	APIKey      string
	BaseURL     string
	Temperature float64
	MaxTokens   int
}

// New builds the generator for cfg.Provider.
func New(ctx context.Context, cfg Config) (Generator, error) {
	switch cfg.Provider {
	case ProviderGoogle, ProviderOpenAI:
		model, err := NewModel(ctx, cfg)
		if err != nil {
			return nil, err
		}
		return NewModelGenerator(model, cfg), nil
	case ProviderExtractive:
		return NewExtractive(3), nil
	default:
		return nil, &domain.ConfigError{Scope: "llm", Missing: []string{fmt.Sprintf("supported provider (got %q)", cfg.Provider)}}
	}
}
