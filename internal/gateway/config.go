package gateway

import (
	"fmt"
	"strings"
	"time"

	"reviewrag/internal/domain"
	"reviewrag/internal/vectorstore"
)

// Backend names a vector-search service.
type Backend string

const (
	BackendAstra    Backend = "astra"
	BackendQdrant   Backend = "qdrant"
	BackendPGVector Backend = "pgvector"
	BackendRedis    Backend = "redis"
	BackendMemory   Backend = "memory"
)

const (
	DefaultTopK      = 3
	DefaultBatchSize = 64
)

// Config holds everything the gateway needs to reach its backend. It is
// built once at startup and passed in; the gateway never reads the
// environment itself.
type Config struct {
	Backend Backend
	// Endpoint is the API endpoint for astra and qdrant, the DSN for
	// pgvector and the URL for redis.
	Endpoint   string
	Credential string
	// Namespace is the Astra keyspace.
	Namespace  string
	Collection string
	Metric     vectorstore.Metric
	Timeout    time.Duration
	TopK       int
	MinScore   float64
	BatchSize  int
}

type requirements struct {
	endpoint, credential, namespace bool
}

var backendRequirements = map[Backend]requirements{
	BackendAstra:    {endpoint: true, credential: true, namespace: true},
	BackendQdrant:   {endpoint: true},
	BackendPGVector: {endpoint: true},
	BackendRedis:    {endpoint: true},
	BackendMemory:   {},
}

// Validate reports every missing connection parameter at once.
func (c Config) Validate() error {
	req, ok := backendRequirements[c.Backend]
	if !ok {
		return &domain.ConfigError{Scope: "vector store", Missing: []string{fmt.Sprintf("supported backend (got %q)", c.Backend)}}
	}
	var missing []string
	if req.endpoint && blank(c.Endpoint) {
		missing = append(missing, "endpoint")
	}
	if req.credential && blank(c.Credential) {
		missing = append(missing, "credential")
	}
	if req.namespace && blank(c.Namespace) {
		missing = append(missing, "namespace")
	}
	if blank(c.Collection) {
		missing = append(missing, "collection")
	}
	if len(missing) > 0 {
		return &domain.ConfigError{Scope: string(c.Backend) + " vector store", Missing: missing}
	}
	return nil
}

func blank(s string) bool { return strings.TrimSpace(s) == "" }
