// Package vectorstore defines the contract every similarity-search backend
// implements, plus helpers shared between backends.
package vectorstore

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
)

// Storage persists vectors and supports similarity search. Upsert is keyed
// by Record.ID: writing an existing ID replaces the stored record.
type Storage interface {
	Init(ctx context.Context, dimension int) error
	Upsert(ctx context.Context, records []Record) error
	Search(ctx context.Context, vector []float32, opts SearchOptions) ([]Match, error)
	Count(ctx context.Context) (int, error)
	Clear(ctx context.Context) error
	Close() error
}

type Record struct {
	ID       string
	Content  string
	Vector   []float32
	Metadata map[string]any
}

type SearchOptions struct {
	TopK     int
	MinScore float64
}

type Match struct {
	ID       string
	Score    float64
	Content  string
	Metadata map[string]any
}

// Metric selects the similarity function a collection is created with.
type Metric string

const (
	Cosine     Metric = "cosine"
	DotProduct Metric = "dot_product"
	Euclidean  Metric = "euclidean"
)

// ParseMetric accepts the common spellings used by vector databases.
// An empty string selects Cosine.
func ParseMetric(raw string) (Metric, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "", "cosine":
		return Cosine, nil
	case "dot", "dot_product", "dotproduct":
		return DotProduct, nil
	case "euclid", "euclidean", "l2":
		return Euclidean, nil
	default:
		return "", fmt.Errorf("unknown similarity metric %q", raw)
	}
}

var (
	ErrNotInitialized    = errors.New("vector store not initialized")
	ErrDimensionMismatch = errors.New("vector dimension mismatch")
)

// CheckRecords verifies every record has an ID and a vector of the
// expected dimension.
func CheckRecords(records []Record, dimension int) error {
	for i := range records {
		if records[i].ID == "" {
			return fmt.Errorf("record %d: missing id", i)
		}
		if len(records[i].Vector) != dimension {
			return fmt.Errorf("record %q: %w (got %d want %d)",
				records[i].ID, ErrDimensionMismatch, len(records[i].Vector), dimension)
		}
	}
	return nil
}

// SortMatches orders matches by descending score, breaking ties by ID so
// results are stable across calls.
func SortMatches(matches []Match) {
	sort.SliceStable(matches, func(i, j int) bool {
		if matches[i].Score == matches[j].Score {
			return matches[i].ID < matches[j].ID
		}
		return matches[i].Score > matches[j].Score
	})
}

// Similarity scores a against b with the given metric. Higher is closer.
func Similarity(metric Metric, a, b []float32) float64 {
	switch metric {
	case DotProduct:
		return dot(a, b)
	case Euclidean:
		var sum float64
		for i := range a {
			d := float64(a[i]) - float64(b[i])
			sum += d * d
		}
		return 1 / (1 + math.Sqrt(sum))
	default:
		na, nb := math.Sqrt(dot(a, a)), math.Sqrt(dot(b, b))
		if na == 0 || nb == 0 {
			return 0
		}
		return dot(a, b) / (na * nb)
	}
}

func dot(a, b []float32) float64 {
	n := min(len(a), len(b))
	var sum float64
	for i := 0; i < n; i++ {
		sum += float64(a[i]) * float64(b[i])
	}
	return sum
}

// CloneMetadata returns a shallow copy so callers cannot mutate stored maps.
func CloneMetadata(src map[string]any) map[string]any {
	if src == nil {
		return nil
	}
	dst := make(map[string]any, len(src))
	for k, v := range src {
		dst[k] = v
	}
	return dst
}
