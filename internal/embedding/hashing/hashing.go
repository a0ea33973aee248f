// Package hashing implements a stateless bag-of-words embedder. Tokens are
// hashed into a fixed number of buckets, so the same text always produces
// the same vector without a fitted vocabulary. It needs no network access
// and is used for local runs and tests.
package hashing

import (
	"context"
	"fmt"
	"math"
	"regexp"
	"strings"

	"github.com/cespare/xxhash/v2"

	"reviewrag/internal/embedding"
)

const DefaultDimension = 384

type Embedder struct {
	dimension    int
	tokenPattern *regexp.Regexp
	stopwords    map[string]struct{}
}

// NewEmbedder creates a hashing embedder producing vectors of the given
// size. A non-positive dimension selects DefaultDimension.
func NewEmbedder(dimension int) *Embedder {
	if dimension <= 0 {
		dimension = DefaultDimension
	}
	return &Embedder{
		dimension:    dimension,
		tokenPattern: regexp.MustCompile(`\p{L}+(?:['’]\p{L}+)*|\p{N}+`),
		stopwords:    defaultStopwords(),
	}
}

func (e *Embedder) Name() string   { return "hashing" }
func (e *Embedder) Dimension() int { return e.dimension }

func (e *Embedder) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("hashing embed: %w", err)
		}
		out[i] = e.embed(text)
	}
	return out, nil
}

func (e *Embedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("hashing embed: %w", err)
	}
	return e.embed(text), nil
}

// embed accumulates sublinear term frequencies into hashed buckets. The
// sign bit of the hash spreads collisions around zero.
func (e *Embedder) embed(text string) []float32 {
	vec := make([]float32, e.dimension)
	tf := make(map[string]int)
	for _, tok := range e.tokenize(text) {
		tf[tok]++
	}
	for tok, count := range tf {
		h := xxhash.Sum64String(tok)
		idx := int(h % uint64(e.dimension))
		w := float32(1 + math.Log(float64(count)))
		if h&(1<<63) != 0 {
			w = -w
		}
		vec[idx] += w
	}
	embedding.Normalize(vec)
	return vec
}

func (e *Embedder) tokenize(text string) []string {
	raw := e.tokenPattern.FindAllString(strings.ToLower(text), -1)
	if len(raw) == 0 {
		return nil
	}
	out := raw[:0]
	for _, t := range raw {
		if _, isStop := e.stopwords[t]; isStop {
			continue
		}
		out = append(out, t)
	}
	return out
}

func defaultStopwords() map[string]struct{} {
	words := []string{
		"a", "an", "the", "and", "or", "but", "if", "then", "else", "for", "to", "of", "in", "on", "at", "by", "with", "as", "is", "are", "was", "were", "be", "been", "being", "it", "this", "that", "these", "those", "from", "up", "down", "over", "under", "again", "further", "than", "so", "such", "into", "about", "between", "through", "during", "before", "after", "above", "below", "out", "off", "own", "same", "too", "very", "can", "will", "just", "don", "should", "now", "i", "my", "me", "its",
	}
	m := make(map[string]struct{}, len(words))
	for _, w := range words {
		m[w] = struct{}{}
	}
	return m
}
