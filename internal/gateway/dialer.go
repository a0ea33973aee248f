package gateway

import (
	"context"
	"fmt"

	"reviewrag/internal/vectorstore"
	"reviewrag/internal/vectorstore/astra"
	"reviewrag/internal/vectorstore/memory"
	"reviewrag/internal/vectorstore/pgvector"
	"reviewrag/internal/vectorstore/qdrant"
	redisstore "reviewrag/internal/vectorstore/redis"
)

// Dialer opens a backend handle for a validated Config.
type Dialer func(ctx context.Context, cfg Config) (vectorstore.Storage, error)

// Dial is the default Dialer covering every supported backend.
func Dial(ctx context.Context, cfg Config) (vectorstore.Storage, error) {
	switch cfg.Backend {
	case BackendAstra:
		return astra.NewStorage(astra.Config{
			Endpoint:   cfg.Endpoint,
			Token:      cfg.Credential,
			Keyspace:   cfg.Namespace,
			Collection: cfg.Collection,
			Metric:     cfg.Metric,
			Timeout:    cfg.Timeout,
		}), nil
	case BackendQdrant:
		return qdrant.NewStorage(qdrant.Config{
			URL:        cfg.Endpoint,
			APIKey:     cfg.Credential,
			Collection: cfg.Collection,
			Metric:     cfg.Metric,
			Timeout:    cfg.Timeout,
		}), nil
	case BackendPGVector:
		return pgvector.Connect(ctx, cfg.Endpoint, cfg.Collection, cfg.Metric)
	case BackendRedis:
		if cfg.Metric != "" && cfg.Metric != vectorstore.Cosine {
			return nil, fmt.Errorf("redis vector sets only support cosine similarity, got %s", cfg.Metric)
		}
		return redisstore.Connect(ctx, cfg.Endpoint, cfg.Collection)
	case BackendMemory:
		return memory.NewStorage(cfg.Metric), nil
	default:
		return nil, fmt.Errorf("unsupported backend %q", cfg.Backend)
	}
}
