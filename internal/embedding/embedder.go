package embedding

import (
	"context"
	"math"
)

// Embedder converts free text into a numeric vector representation.
// Documents and queries must go through the same Embedder: vectors from
// different models are not comparable.
type Embedder interface {
	Name() string
	Dimension() int
	EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error)
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// Normalize scales v to unit length in place. Zero vectors are left as is.
func Normalize(v []float32) {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	if sum == 0 {
		return
	}
	inv := float32(1 / math.Sqrt(sum))
	for i := range v {
		v[i] *= inv
	}
}

// KnownDimension returns the output size of a hosted embedding model.
func KnownDimension(model string) (int, bool) {
	d, ok := modelDimensions[model]
	return d, ok
}

var modelDimensions = map[string]int{
	"text-embedding-3-small":      1536,
	"text-embedding-3-large":      3072,
	"text-embedding-ada-002":      1536,
	"text-embedding-004":          768,
	"models/text-embedding-004":   768,
	"embedding-001":               768,
	"models/embedding-001":        768,
	"gemini-embedding-001":        3072,
	"models/gemini-embedding-001": 3072,
}
