package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"reviewrag/internal/domain"
	"reviewrag/internal/gateway"
	"reviewrag/internal/vectorstore"
)

func TestLoad(t *testing.T) {
	t.Run("Should return defaults when the file does not exist", func(t *testing.T) {
		cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
		require.NoError(t, err)
		assert.Equal(t, defaultConfig(), cfg)
		assert.Equal(t, 3, cfg.Retriever.TopK)
		assert.Equal(t, ":8001", cfg.Server.Addr)
	})

	t.Run("Should overlay file values on defaults", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "config.yaml")
		require.NoError(t, os.WriteFile(path, []byte(`
vector_store:
  type: qdrant
  collection_name: reviews
retriever:
  top_k: 5
`), 0o644))
		cfg, err := Load(path)
		require.NoError(t, err)
		assert.Equal(t, "qdrant", cfg.VectorStore.Type)
		assert.Equal(t, "reviews", cfg.VectorStore.CollectionName)
		assert.Equal(t, 5, cfg.Retriever.TopK)
		assert.Equal(t, "google", cfg.EmbeddingModel.Provider)
	})

	t.Run("Should take the collection from a legacy astra_db section", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "config.yaml")
		require.NoError(t, os.WriteFile(path, []byte(`
astra_db:
  collection_name: chatbotecomm
embedding_model:
  model_name: models/text-embedding-004
retriever:
  top_k: 0
`), 0o644))
		cfg, err := Load(path)
		require.NoError(t, err)
		assert.Equal(t, "chatbotecomm", cfg.VectorStore.CollectionName)
		assert.Equal(t, 3, cfg.Retriever.TopK)
	})

	t.Run("Should prefer vector_store.collection_name over the legacy key", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "config.yaml")
		require.NoError(t, os.WriteFile(path, []byte(`
vector_store:
  collection_name: reviews
astra_db:
  collection_name: chatbotecomm
`), 0o644))
		cfg, err := Load(path)
		require.NoError(t, err)
		assert.Equal(t, "reviews", cfg.VectorStore.CollectionName)
	})

	t.Run("Should fail on malformed YAML", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "config.yaml")
		require.NoError(t, os.WriteFile(path, []byte("vector_store: [\n"), 0o644))
		_, err := Load(path)
		assert.Error(t, err)
	})
}

func TestSave(t *testing.T) {
	t.Run("Should round trip through Load", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "nested", "config.yaml")
		cfg := defaultConfig()
		cfg.LLM.Provider = "extractive"
		require.NoError(t, Save(path, cfg))
		loaded, err := Load(path)
		require.NoError(t, err)
		assert.Equal(t, cfg, loaded)
	})
}

func memoryConfig() *AppConfig {
	cfg := defaultConfig()
	cfg.VectorStore.Type = "memory"
	cfg.EmbeddingModel.Provider = "hashing"
	cfg.EmbeddingModel.ModelName = ""
	cfg.EmbeddingModel.Cache.Type = "none"
	cfg.LLM.Provider = "extractive"
	cfg.LLM.ModelName = ""
	return cfg
}

func TestValidate(t *testing.T) {
	t.Run("Should accept an offline configuration without credentials", func(t *testing.T) {
		assert.NoError(t, Validate(memoryConfig(), Credentials{}))
	})

	t.Run("Should name every missing Astra and Google variable", func(t *testing.T) {
		err := Validate(defaultConfig(), Credentials{AstraKeyspace: "default_keyspace"})
		require.Error(t, err)
		assert.True(t, errors.Is(err, domain.ErrConfig))
		var cfgErr *domain.ConfigError
		require.True(t, errors.As(err, &cfgErr))
		assert.ElementsMatch(t, []string{"GOOGLE_API_KEY", "ASTRA_DB_API_ENDPOINT", "ASTRA_DB_APPLICATION_TOKEN"}, cfgErr.Missing)
	})

	t.Run("Should require REDIS_URL for the redis embedding cache", func(t *testing.T) {
		cfg := memoryConfig()
		cfg.EmbeddingModel.Cache.Type = "redis"
		var cfgErr *domain.ConfigError
		require.True(t, errors.As(Validate(cfg, Credentials{}), &cfgErr))
		assert.Equal(t, []string{"REDIS_URL"}, cfgErr.Missing)
	})

	t.Run("Should report invalid file values by YAML key", func(t *testing.T) {
		cfg := memoryConfig()
		cfg.VectorStore.Type = "chroma"
		cfg.VectorStore.CollectionName = ""
		var cfgErr *domain.ConfigError
		require.True(t, errors.As(Validate(cfg, Credentials{}), &cfgErr))
		require.Len(t, cfgErr.Missing, 2)
		assert.Contains(t, cfgErr.Missing[0], "vector_store.type")
		assert.Equal(t, "vector_store.collection_name", cfgErr.Missing[1])
	})

	t.Run("Should require a model name for remote providers", func(t *testing.T) {
		cfg := memoryConfig()
		cfg.LLM.Provider = "openai"
		var cfgErr *domain.ConfigError
		require.True(t, errors.As(Validate(cfg, Credentials{OpenAIAPIKey: "sk"}), &cfgErr))
		assert.Equal(t, []string{"llm.model_name"}, cfgErr.Missing)
	})
}

func TestCredentialsFrom(t *testing.T) {
	t.Run("Should read and trim environment values", func(t *testing.T) {
		env := map[string]string{
			"GOOGLE_API_KEY":        " g-key ",
			"ASTRA_DB_API_ENDPOINT": "https://db.example",
			"QDRANT_URL":            "http://localhost:6333",
		}
		creds := CredentialsFrom(func(k string) string { return env[k] })
		assert.Equal(t, "g-key", creds.GoogleAPIKey)
		assert.Equal(t, "https://db.example", creds.AstraEndpoint)
		assert.Equal(t, "http://localhost:6333", creds.QdrantURL)
		assert.Empty(t, creds.RedisURL)
	})
}

func TestLoadCredentials(t *testing.T) {
	t.Run("Should read variables from a dotenv file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), ".env")
		require.NoError(t, os.WriteFile(path, []byte("REVIEWRAG_TEST_UNUSED=1\nQDRANT_API_KEY=from-file\n"), 0o644))
		t.Setenv("QDRANT_API_KEY", "")
		require.NoError(t, os.Unsetenv("QDRANT_API_KEY"))
		creds, err := LoadCredentials(path)
		require.NoError(t, err)
		assert.Equal(t, "from-file", creds.QdrantAPIKey)
	})

	t.Run("Should ignore a missing dotenv file", func(t *testing.T) {
		_, err := LoadCredentials(filepath.Join(t.TempDir(), "absent.env"))
		assert.NoError(t, err)
	})
}

func TestGatewayConfig(t *testing.T) {
	creds := Credentials{
		AstraEndpoint: "https://db.example",
		AstraToken:    "AstraCS:token",
		AstraKeyspace: "default_keyspace",
		QdrantURL:     "http://qdrant:6333",
		QdrantAPIKey:  "qk",
	}

	t.Run("Should map astra credentials and retriever settings", func(t *testing.T) {
		cfg := defaultConfig()
		cfg.Retriever.MinScore = 0.4
		gc, err := GatewayConfig(cfg, creds)
		require.NoError(t, err)
		assert.Equal(t, gateway.Config{
			Backend:    gateway.BackendAstra,
			Endpoint:   "https://db.example",
			Credential: "AstraCS:token",
			Namespace:  "default_keyspace",
			Collection: "flipkart_reviews",
			Metric:     vectorstore.Cosine,
			Timeout:    15 * time.Second,
			TopK:       3,
			MinScore:   0.4,
			BatchSize:  64,
		}, gc)
		assert.NoError(t, gc.Validate())
	})

	t.Run("Should map qdrant endpoint and api key", func(t *testing.T) {
		cfg := defaultConfig()
		cfg.VectorStore.Type = "qdrant"
		cfg.VectorStore.Metric = "euclidean"
		gc, err := GatewayConfig(cfg, creds)
		require.NoError(t, err)
		assert.Equal(t, "http://qdrant:6333", gc.Endpoint)
		assert.Equal(t, "qk", gc.Credential)
		assert.Empty(t, gc.Namespace)
		assert.Equal(t, vectorstore.Euclidean, gc.Metric)
	})

	t.Run("Should reject an unknown metric", func(t *testing.T) {
		cfg := defaultConfig()
		cfg.VectorStore.Metric = "manhattan"
		_, err := GatewayConfig(cfg, creds)
		assert.Error(t, err)
	})
}
