package config

import (
	"errors"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// VectorStoreConfig selects the similarity-search backend. Connection
// details and secrets come from the environment, see Credentials.
type VectorStoreConfig struct {
	Type           string `yaml:"type" validate:"oneof=astra qdrant pgvector redis memory"`
	CollectionName string `yaml:"collection_name" validate:"required"`
	Metric         string `yaml:"metric" validate:"omitempty,oneof=cosine dot_product euclidean"`
	TimeoutSecs    int    `yaml:"timeout_secs" validate:"gte=0"`
}

// EmbeddingCacheConfig configures the embedding cache. Type is none, lru or
// redis; redis uses REDIS_URL.
type EmbeddingCacheConfig struct {
	Type    string `yaml:"type" validate:"omitempty,oneof=none lru redis"`
	Size    int    `yaml:"size" validate:"gte=0"`
	TTLSecs int    `yaml:"ttl_secs" validate:"gte=0"`
}

// EmbeddingConfig selects the embedding model. Dimension may be left at 0
// for models with a known output size.
type EmbeddingConfig struct {
	Provider  string               `yaml:"provider" validate:"oneof=google openai hashing"`
	ModelName string               `yaml:"model_name" validate:"required_unless=Provider hashing"`
	Dimension int                  `yaml:"dimension" validate:"gte=0"`
	BatchSize int                  `yaml:"batch_size" validate:"gte=0"`
	Cache     EmbeddingCacheConfig `yaml:"cache"`
}

// LLMConfig selects the answer generator.
type LLMConfig struct {
	Provider    string  `yaml:"provider" validate:"oneof=google openai extractive"`
	ModelName   string  `yaml:"model_name" validate:"required_unless=Provider extractive"`
	Temperature float64 `yaml:"temperature" validate:"gte=0,lte=2"`
	MaxTokens   int     `yaml:"max_tokens" validate:"gte=0"`
}

type RetrieverConfig struct {
	TopK     int     `yaml:"top_k" validate:"gte=0"`
	MinScore float64 `yaml:"min_score"`
}

type IngestConfig struct {
	SourcePath string `yaml:"source_path"`
	BatchSize  int    `yaml:"batch_size" validate:"gte=0"`
}

type ServerConfig struct {
	Addr               string `yaml:"addr" validate:"required"`
	RequestTimeoutSecs int    `yaml:"request_timeout_secs" validate:"gte=0"`
}

type LogConfig struct {
	Level string `yaml:"level" validate:"omitempty,oneof=debug info warn error disabled"`
	JSON  bool   `yaml:"json"`
}

// legacyAstraConfig accepts the astra_db section of older config files.
type legacyAstraConfig struct {
	CollectionName string `yaml:"collection_name"`
}

// AppConfig is the root application configuration structure.
type AppConfig struct {
	VectorStore    VectorStoreConfig  `yaml:"vector_store"`
	EmbeddingModel EmbeddingConfig    `yaml:"embedding_model"`
	LLM            LLMConfig          `yaml:"llm"`
	Retriever      RetrieverConfig    `yaml:"retriever"`
	Ingest         IngestConfig       `yaml:"ingest"`
	Server         ServerConfig       `yaml:"server"`
	Log            LogConfig          `yaml:"log"`
	AstraDB        *legacyAstraConfig `yaml:"astra_db,omitempty" validate:"-"`
}

// Load reads a config from a specified path. If the file does not exist, returns defaults.
func Load(path string) (*AppConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return defaultConfig(), nil
		}
		return nil, err
	}
	cfg := defaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	if err := applyLegacyKeys(data, cfg); err != nil {
		return nil, err
	}
	applyConfigDefaults(cfg)
	return cfg, nil
}

// applyLegacyKeys lets astra_db.collection_name name the collection when
// the file does not set vector_store.collection_name itself.
func applyLegacyKeys(data []byte, cfg *AppConfig) error {
	var present struct {
		VectorStore struct {
			CollectionName *string `yaml:"collection_name"`
		} `yaml:"vector_store"`
	}
	if err := yaml.Unmarshal(data, &present); err != nil {
		return err
	}
	if cfg.AstraDB == nil || cfg.AstraDB.CollectionName == "" {
		return nil
	}
	if present.VectorStore.CollectionName == nil || *present.VectorStore.CollectionName == "" {
		cfg.VectorStore.CollectionName = cfg.AstraDB.CollectionName
	}
	return nil
}

// LoadDefault tries ./config.yaml, then ./config/config.yaml, then
// ~/.config/reviewrag/config.yaml. If none exists, it writes defaults to
// the user path and returns them.
func LoadDefault() (*AppConfig, string, error) {
	for _, p := range []string{"config.yaml", filepath.Join("config", "config.yaml")} {
		if _, err := os.Stat(p); err == nil {
			cfg, err := Load(p)
			return cfg, p, err
		}
	}
	userPath, err := defaultUserConfigPath()
	if err != nil {
		return nil, "", err
	}
	if _, err := os.Stat(userPath); err == nil {
		cfg, err := Load(userPath)
		return cfg, userPath, err
	}
	cfg := defaultConfig()
	if err := Save(userPath, cfg); err != nil {
		return nil, "", err
	}
	return cfg, userPath, nil
}

// Save writes the config to the given path, creating directories as needed.
func Save(path string, cfg *AppConfig) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

func defaultUserConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "reviewrag", "config.yaml"), nil
}

func defaultConfig() *AppConfig {
	return &AppConfig{
		VectorStore: VectorStoreConfig{Type: "astra", CollectionName: "flipkart_reviews", Metric: "cosine", TimeoutSecs: 15},
		EmbeddingModel: EmbeddingConfig{
			Provider:  "google",
			ModelName: "models/text-embedding-004",
			BatchSize: 64,
			Cache:     EmbeddingCacheConfig{Type: "lru", Size: 512, TTLSecs: 86400},
		},
		LLM:       LLMConfig{Provider: "google", ModelName: "gemini-1.5-flash", Temperature: 0.2},
		Retriever: RetrieverConfig{TopK: 3},
		Ingest:    IngestConfig{SourcePath: filepath.Join("data", "flipkart_product_review.csv"), BatchSize: 64},
		Server:    ServerConfig{Addr: ":8001", RequestTimeoutSecs: 60},
		Log:       LogConfig{Level: "info"},
	}
}

func applyConfigDefaults(cfg *AppConfig) {
	if cfg.Retriever.TopK == 0 {
		cfg.Retriever.TopK = 3
	}
	if cfg.Ingest.BatchSize == 0 {
		cfg.Ingest.BatchSize = 64
	}
	if cfg.EmbeddingModel.BatchSize == 0 {
		cfg.EmbeddingModel.BatchSize = 64
	}
	if cfg.EmbeddingModel.Cache.Type == "lru" && cfg.EmbeddingModel.Cache.Size == 0 {
		cfg.EmbeddingModel.Cache.Size = 512
	}
	if cfg.Server.Addr == "" {
		cfg.Server.Addr = ":8001"
	}
	if cfg.VectorStore.TimeoutSecs == 0 {
		cfg.VectorStore.TimeoutSecs = 15
	}
}
