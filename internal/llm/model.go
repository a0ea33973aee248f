package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/googleai"
	"github.com/tmc/langchaingo/llms/openai"

	"reviewrag/internal/domain"
)

// NewModel constructs a hosted chat model client through langchaingo.
func NewModel(ctx context.Context, cfg Config) (llms.Model, error) {
	if strings.TrimSpace(cfg.Model) == "" {
		return nil, &domain.ConfigError{Scope: "llm", Missing: []string{"model_name"}}
	}
	switch cfg.Provider {
	case ProviderGoogle:
		if cfg.APIKey == "" {
			return nil, &domain.ConfigError{Scope: "llm", Missing: []string{"GOOGLE_API_KEY"}}
		}
		model, err := googleai.New(ctx,
			googleai.WithAPIKey(cfg.APIKey),
			googleai.WithDefaultModel(cfg.Model),
		)
		if err != nil {
			return nil, fmt.Errorf("googleai: %w", err)
		}
		return model, nil
	case ProviderOpenAI:
		if cfg.APIKey == "" {
			return nil, &domain.ConfigError{Scope: "llm", Missing: []string{"OPENAI_API_KEY"}}
		}
		opts := []openai.Option{
			openai.WithToken(cfg.APIKey),
			openai.WithModel(cfg.Model),
		}
		if cfg.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(cfg.BaseURL))
		}
		model, err := openai.New(opts...)
		if err != nil {
			return nil, fmt.Errorf("openai: %w", err)
		}
		return model, nil
	default:
		return nil, fmt.Errorf("provider %q has no hosted model", cfg.Provider)
	}
}

// ModelGenerator sends the rendered prompt to a chat model as a single
// human message and returns the trimmed text reply.
type ModelGenerator struct {
	model llms.Model
	name  string
	opts  []llms.CallOption
}

func NewModelGenerator(model llms.Model, cfg Config) *ModelGenerator {
	opts := []llms.CallOption{llms.WithTemperature(cfg.Temperature)}
	if cfg.MaxTokens > 0 {
		opts = append(opts, llms.WithMaxTokens(cfg.MaxTokens))
	}
	return &ModelGenerator{model: model, name: string(cfg.Provider) + ":" + cfg.Model, opts: opts}
}

func (g *ModelGenerator) Name() string { return g.name }

func (g *ModelGenerator) Generate(ctx context.Context, req Request) (string, error) {
	out, err := llms.GenerateFromSinglePrompt(ctx, g.model, req.Prompt, g.opts...)
	if err != nil {
		return "", fmt.Errorf("generate with %s: %w", g.name, err)
	}
	return strings.TrimSpace(out), nil
}
