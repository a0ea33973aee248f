package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"

	"reviewrag/internal/domain"
	"reviewrag/internal/gateway"
	"reviewrag/internal/vectorstore"
)

// Credentials are the secrets and endpoints read from the environment.
type Credentials struct {
	GoogleAPIKey  string
	OpenAIAPIKey  string
	OpenAIBaseURL string
	AstraEndpoint string
	AstraToken    string
	AstraKeyspace string
	QdrantURL     string
	QdrantAPIKey  string
	PGVectorDSN   string
	RedisURL      string
}

// LoadCredentials loads .env files (missing files are ignored) into the
// process environment and reads the credentials from it. Variables already
// set in the environment win over .env values.
func LoadCredentials(files ...string) (Credentials, error) {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return Credentials{}, fmt.Errorf("load %s: %w", f, err)
		}
	}
	return CredentialsFrom(os.Getenv), nil
}

// CredentialsFrom reads credentials through getenv.
func CredentialsFrom(getenv func(string) string) Credentials {
	get := func(k string) string { return strings.TrimSpace(getenv(k)) }
	return Credentials{
		GoogleAPIKey:  get("GOOGLE_API_KEY"),
		OpenAIAPIKey:  get("OPENAI_API_KEY"),
		OpenAIBaseURL: get("OPENAI_BASE_URL"),
		AstraEndpoint: get("ASTRA_DB_API_ENDPOINT"),
		AstraToken:    get("ASTRA_DB_APPLICATION_TOKEN"),
		AstraKeyspace: get("ASTRA_DB_KEYSPACE"),
		QdrantURL:     get("QDRANT_URL"),
		QdrantAPIKey:  get("QDRANT_API_KEY"),
		PGVectorDSN:   get("PGVECTOR_DSN"),
		RedisURL:      get("REDIS_URL"),
	}
}

// credentialCheck pairs every credential with the condition that makes it
// mandatory. Field names reported by the validator are the env variables.
type credentialCheck struct {
	NeedGoogle   bool `env:"-"`
	NeedOpenAI   bool `env:"-"`
	NeedAstra    bool `env:"-"`
	NeedQdrant   bool `env:"-"`
	NeedPGVector bool `env:"-"`
	NeedRedis    bool `env:"-"`

	GoogleAPIKey  string `env:"GOOGLE_API_KEY" validate:"required_if=NeedGoogle true"`
	OpenAIAPIKey  string `env:"OPENAI_API_KEY" validate:"required_if=NeedOpenAI true"`
	AstraEndpoint string `env:"ASTRA_DB_API_ENDPOINT" validate:"required_if=NeedAstra true"`
	AstraToken    string `env:"ASTRA_DB_APPLICATION_TOKEN" validate:"required_if=NeedAstra true"`
	AstraKeyspace string `env:"ASTRA_DB_KEYSPACE" validate:"required_if=NeedAstra true"`
	QdrantURL     string `env:"QDRANT_URL" validate:"required_if=NeedQdrant true"`
	PGVectorDSN   string `env:"PGVECTOR_DSN" validate:"required_if=NeedPGVector true"`
	RedisURL      string `env:"REDIS_URL" validate:"required_if=NeedRedis true"`
}

func newValidator(tag string) *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get(tag), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// Validate checks the file values and that every credential the selected
// providers need is present. All problems are reported in one ConfigError.
func Validate(cfg *AppConfig, creds Credentials) error {
	var missing []string

	if err := newValidator("yaml").Struct(cfg); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return err
		}
		for _, fe := range verrs {
			missing = append(missing, describe(fe))
		}
	}

	check := credentialCheck{
		NeedGoogle:    cfg.EmbeddingModel.Provider == "google" || cfg.LLM.Provider == "google",
		NeedOpenAI:    cfg.EmbeddingModel.Provider == "openai" || cfg.LLM.Provider == "openai",
		NeedAstra:     cfg.VectorStore.Type == string(gateway.BackendAstra),
		NeedQdrant:    cfg.VectorStore.Type == string(gateway.BackendQdrant),
		NeedPGVector:  cfg.VectorStore.Type == string(gateway.BackendPGVector),
		NeedRedis:     cfg.VectorStore.Type == string(gateway.BackendRedis) || cfg.EmbeddingModel.Cache.Type == "redis",
		GoogleAPIKey:  creds.GoogleAPIKey,
		OpenAIAPIKey:  creds.OpenAIAPIKey,
		AstraEndpoint: creds.AstraEndpoint,
		AstraToken:    creds.AstraToken,
		AstraKeyspace: creds.AstraKeyspace,
		QdrantURL:     creds.QdrantURL,
		PGVectorDSN:   creds.PGVectorDSN,
		RedisURL:      creds.RedisURL,
	}
	if err := newValidator("env").Struct(check); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return err
		}
		for _, fe := range verrs {
			missing = append(missing, fe.Field())
		}
	}

	if len(missing) > 0 {
		return &domain.ConfigError{Scope: "configuration", Missing: missing}
	}
	return nil
}

// describe renders a file validation failure as the dotted YAML key, plus
// the rule when it is not a plain presence check.
func describe(fe validator.FieldError) string {
	key := fe.Namespace()
	if i := strings.Index(key, "."); i >= 0 {
		key = key[i+1:]
	}
	switch fe.Tag() {
	case "required", "required_unless":
		return key
	case "oneof":
		return fmt.Sprintf("%s (one of %s, got %q)", key, fe.Param(), fmt.Sprint(fe.Value()))
	default:
		return fmt.Sprintf("%s (%s %s)", key, fe.Tag(), fe.Param())
	}
}

// GatewayConfig maps the file and environment settings onto the
// retrieval gateway's configuration.
func GatewayConfig(cfg *AppConfig, creds Credentials) (gateway.Config, error) {
	metric, err := vectorstore.ParseMetric(cfg.VectorStore.Metric)
	if err != nil {
		return gateway.Config{}, err
	}
	gc := gateway.Config{
		Backend:    gateway.Backend(cfg.VectorStore.Type),
		Collection: cfg.VectorStore.CollectionName,
		Metric:     metric,
		Timeout:    time.Duration(cfg.VectorStore.TimeoutSecs) * time.Second,
		TopK:       cfg.Retriever.TopK,
		MinScore:   cfg.Retriever.MinScore,
		BatchSize:  cfg.Ingest.BatchSize,
	}
	switch gc.Backend {
	case gateway.BackendAstra:
		gc.Endpoint, gc.Credential, gc.Namespace = creds.AstraEndpoint, creds.AstraToken, creds.AstraKeyspace
	case gateway.BackendQdrant:
		gc.Endpoint, gc.Credential = creds.QdrantURL, creds.QdrantAPIKey
	case gateway.BackendPGVector:
		gc.Endpoint = creds.PGVectorDSN
	case gateway.BackendRedis:
		gc.Endpoint = creds.RedisURL
	}
	return gc, nil
}
