package llm

import (
	"context"
	"math"
	"regexp"
	"sort"
	"strings"
)

// Extractive answers without a model by picking the review sentences that
// best cover the question and the dominant terms of the retrieved reviews.
// It is meant for offline runs; an empty context yields an empty answer.
type Extractive struct {
	maxSentences int
	sentencePat  *regexp.Regexp
	tokenPattern *regexp.Regexp
	stopwords    map[string]struct{}
}

func NewExtractive(maxSentences int) *Extractive {
	if maxSentences <= 0 {
		maxSentences = 3
	}
	return &Extractive{
		maxSentences: maxSentences,
		sentencePat:  regexp.MustCompile(`[^.!?\n]+[.!?]*`),
		tokenPattern: regexp.MustCompile(`\p{L}+(?:['’]\p{L}+)*|\p{N}+`),
		stopwords:    defaultStopwords(),
	}
}

func (e *Extractive) Name() string { return "extractive" }

func (e *Extractive) Generate(ctx context.Context, req Request) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	var sentences []string
	for _, d := range req.Context {
		for _, s := range e.sentencePat.FindAllString(d.Content, -1) {
			if s = strings.TrimSpace(s); s != "" {
				sentences = append(sentences, s)
			}
		}
	}
	if len(sentences) == 0 {
		return "", nil
	}
	// term frequencies across the context, normalised to the top term
	freq := map[string]float64{}
	for _, s := range sentences {
		for _, tok := range e.tokens(s) {
			freq[tok]++
		}
	}
	maxF := 0.0
	for _, v := range freq {
		maxF = math.Max(maxF, v)
	}
	for k, v := range freq {
		freq[k] = v / maxF
	}
	question := map[string]struct{}{}
	for _, tok := range e.tokens(req.Question) {
		question[tok] = struct{}{}
	}

	type pair struct {
		idx   int
		score float64
	}
	scores := make([]pair, len(sentences))
	for i, s := range sentences {
		toks := e.tokens(s)
		score := 0.0
		for _, tok := range toks {
			score += freq[tok]
			if _, ok := question[tok]; ok {
				score += 1
			}
		}
		if n := float64(len(toks)); n > 0 {
			score /= math.Sqrt(n)
		}
		scores[i] = pair{i, score}
	}
	sort.SliceStable(scores, func(i, j int) bool { return scores[i].score > scores[j].score })
	n := min(e.maxSentences, len(scores))
	selected := make([]int, n)
	for i := 0; i < n; i++ {
		selected[i] = scores[i].idx
	}
	sort.Ints(selected)
	out := make([]string, 0, n)
	seen := map[string]struct{}{}
	for _, idx := range selected {
		if _, dup := seen[sentences[idx]]; dup {
			continue
		}
		seen[sentences[idx]] = struct{}{}
		out = append(out, sentences[idx])
	}
	return strings.Join(out, " "), nil
}

func (e *Extractive) tokens(text string) []string {
	raw := e.tokenPattern.FindAllString(strings.ToLower(text), -1)
	out := raw[:0]
	for _, t := range raw {
		if _, stop := e.stopwords[t]; !stop {
			out = append(out, t)
		}
	}
	return out
}

func defaultStopwords() map[string]struct{} {
	words := []string{
		"a", "an", "the", "and", "or", "but", "if", "then", "else", "for", "to", "of", "in", "on", "at", "by", "with", "as", "is", "are", "was", "were", "be", "been", "being", "it", "this", "that", "these", "those", "from", "up", "down", "over", "under", "again", "further", "than", "so", "such", "into", "about", "between", "through", "during", "before", "after", "above", "below", "out", "off", "own", "same", "too", "very", "can", "will", "just", "don", "should", "now", "i", "my", "me", "you", "what", "which", "who", "how", "do", "does",
	}
	m := make(map[string]struct{}, len(words))
	for _, w := range words {
		m[w] = struct{}{}
	}
	return m
}
