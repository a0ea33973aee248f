package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"

	"reviewrag/internal/config"
	"reviewrag/internal/domain"
	"reviewrag/internal/embedding"
	"reviewrag/internal/embedding/cache"
	"reviewrag/internal/embedding/googleai"
	"reviewrag/internal/embedding/hashing"
	"reviewrag/internal/embedding/openai"
	"reviewrag/internal/gateway"
	"reviewrag/internal/llm"
	"reviewrag/internal/service"
)

const embedTimeout = 30 * time.Second

// components is the assembled object graph for one command run.
type components struct {
	registry *prometheus.Registry
	gateway  *gateway.Gateway
	service  *service.RAGService
	closers  []func() error
}

func (c *components) Close() error {
	var errs []error
	for i := len(c.closers) - 1; i >= 0; i-- {
		errs = append(errs, c.closers[i]())
	}
	return errors.Join(errs...)
}

// build validates configuration and assembles the pipeline. Without
// withLLM no generator is built and LLM credentials are not required.
func (a *app) build(ctx context.Context, withLLM bool) (*components, error) {
	cfg := *a.cfg
	if !withLLM {
		cfg.LLM = config.LLMConfig{Provider: string(llm.ProviderExtractive)}
	}
	if err := config.Validate(&cfg, a.creds); err != nil {
		return nil, err
	}

	c := &components{registry: prometheus.NewRegistry()}
	c.registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	emb, err := a.newEmbedder(ctx, &cfg, c)
	if err != nil {
		_ = c.Close()
		return nil, err
	}
	gc, err := config.GatewayConfig(&cfg, a.creds)
	if err != nil {
		_ = c.Close()
		return nil, err
	}
	gw, err := gateway.New(gc, emb, gateway.Dial, gateway.WithMetrics(gateway.NewMetrics(c.registry)))
	if err != nil {
		_ = c.Close()
		return nil, err
	}
	c.gateway = gw
	c.closers = append(c.closers, gw.Close)

	var gen llm.Generator
	if withLLM {
		gen, err = llm.New(ctx, a.llmConfig(&cfg))
		if err != nil {
			_ = c.Close()
			return nil, err
		}
	}
	c.service = service.NewRAGService(gw, gen, nil)
	return c, nil
}

func (a *app) newEmbedder(ctx context.Context, cfg *config.AppConfig, c *components) (embedding.Embedder, error) {
	ec := cfg.EmbeddingModel
	var (
		emb embedding.Embedder
		err error
	)
	switch ec.Provider {
	case "hashing":
		emb = hashing.NewEmbedder(ec.Dimension)
	case "openai":
		emb, err = openai.NewClient(openai.Config{
			APIKey:    a.creds.OpenAIAPIKey,
			BaseURL:   a.creds.OpenAIBaseURL,
			Model:     ec.ModelName,
			Dimension: ec.Dimension,
			BatchSize: ec.BatchSize,
			Timeout:   embedTimeout,
		})
	case "google":
		emb, err = googleai.New(ctx, googleai.Config{
			APIKey:    a.creds.GoogleAPIKey,
			Model:     ec.ModelName,
			Dimension: ec.Dimension,
			BatchSize: ec.BatchSize,
		})
	default:
		return nil, &domain.ConfigError{Scope: "embedding_model", Missing: []string{fmt.Sprintf("supported provider (got %q)", ec.Provider)}}
	}
	if err != nil {
		return nil, err
	}

	switch ec.Cache.Type {
	case "", "none":
		return emb, nil
	case "lru":
		store, err := cache.NewLRU(ec.Cache.Size)
		if err != nil {
			return nil, err
		}
		return cache.New(emb, store), nil
	case "redis":
		opts, err := redis.ParseURL(a.creds.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("parse REDIS_URL: %w", err)
		}
		client := redis.NewClient(opts)
		c.closers = append(c.closers, client.Close)
		return cache.New(emb, cache.NewRedis(client, time.Duration(ec.Cache.TTLSecs)*time.Second)), nil
	default:
		return nil, &domain.ConfigError{Scope: "embedding_model.cache", Missing: []string{fmt.Sprintf("supported type (got %q)", ec.Cache.Type)}}
	}
}

func (a *app) llmConfig(cfg *config.AppConfig) llm.Config {
	lc := llm.Config{
		Provider:    llm.Provider(cfg.LLM.Provider),
		Model:       cfg.LLM.ModelName,
		Temperature: cfg.LLM.Temperature,
		MaxTokens:   cfg.LLM.MaxTokens,
	}
	switch lc.Provider {
	case llm.ProviderGoogle:
		lc.APIKey = a.creds.GoogleAPIKey
	case llm.ProviderOpenAI:
		lc.APIKey = a.creds.OpenAIAPIKey
		lc.BaseURL = a.creds.OpenAIBaseURL
	}
	return lc
}
