// Package service wires the ingestion pipeline and the answer chain on top
// of the retrieval gateway.
package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"reviewrag/internal/domain"
	"reviewrag/internal/llm"
	"reviewrag/internal/logger"
	"reviewrag/internal/normalizer"
	"reviewrag/internal/prompt"
	"reviewrag/internal/source"
)

// Retriever is the part of the gateway the service depends on.
type Retriever interface {
	Insert(ctx context.Context, docs []domain.Document) ([]string, error)
	Retrieve(ctx context.Context, query string, topK int) ([]domain.SearchResult, error)
	DefaultTopK() int
	Count(ctx context.Context) (int, error)
	Reset(ctx context.Context) error
}

type IngestOptions struct {
	// Reset clears the collection before inserting.
	Reset bool
}

// IngestReport summarizes one ingestion run.
type IngestReport struct {
	Rows     int
	Inserted []string
	Elapsed  time.Duration
}

// Answer is the generated reply together with the reviews it was based on.
type Answer struct {
	Text    string
	Sources []domain.SearchResult
}

type RAGService struct {
	retriever Retriever
	generator llm.Generator
	prompts   *prompt.Library
	template  string
}

// NewRAGService builds the service. A nil prompt library uses the built-in
// product bot template.
func NewRAGService(retriever Retriever, generator llm.Generator, prompts *prompt.Library) *RAGService {
	if prompts == nil {
		prompts = prompt.Default()
	}
	return &RAGService{retriever: retriever, generator: generator, prompts: prompts, template: prompt.ProductBot}
}

// IngestFile loads the review table at path and inserts it.
func (s *RAGService) IngestFile(ctx context.Context, path string, opts IngestOptions) (IngestReport, error) {
	rows, err := source.Load(ctx, path)
	if err != nil {
		return IngestReport{}, err
	}
	return s.Ingest(ctx, rows, opts)
}

// Ingest normalizes rows and inserts the resulting documents. Nothing is
// written when any row fails normalization.
func (s *RAGService) Ingest(ctx context.Context, rows []domain.RawRecord, opts IngestOptions) (IngestReport, error) {
	start := time.Now()
	docs, err := normalizer.Transform(rows)
	if err != nil {
		return IngestReport{}, err
	}
	log := logger.FromContext(ctx)
	log.Info("normalizer.transformed", "rows", len(rows), "documents", len(docs))
	if opts.Reset {
		if err := s.retriever.Reset(ctx); err != nil {
			return IngestReport{}, err
		}
	}
	ids, err := s.retriever.Insert(ctx, docs)
	if err != nil {
		return IngestReport{}, err
	}
	return IngestReport{Rows: len(rows), Inserted: ids, Elapsed: time.Since(start)}, nil
}

// Search returns the topK reviews most similar to query.
func (s *RAGService) Search(ctx context.Context, query string, topK int) ([]domain.SearchResult, error) {
	return s.retriever.Retrieve(ctx, query, topK)
}

// Count reports the number of stored reviews.
func (s *RAGService) Count(ctx context.Context) (int, error) {
	return s.retriever.Count(ctx)
}

// Ask answers question from the default number of retrieved reviews. The
// model is called even when nothing was retrieved.
func (s *RAGService) Ask(ctx context.Context, question string) (Answer, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return Answer{}, fmt.Errorf("%w: empty question", domain.ErrInvalidInput)
	}
	results, err := s.retriever.Retrieve(ctx, question, s.retriever.DefaultTopK())
	if err != nil {
		return Answer{}, err
	}
	docs := make([]domain.Document, len(results))
	for i := range results {
		docs[i] = results[i].Document
	}
	rendered, err := s.prompts.Render(s.template, prompt.Data{Context: docs, Question: question})
	if err != nil {
		return Answer{}, err
	}
	text, err := s.generator.Generate(ctx, llm.Request{Prompt: rendered, Question: question, Context: docs})
	if err != nil {
		return Answer{}, fmt.Errorf("generate answer: %w", err)
	}
	text = strings.TrimSpace(text)
	logger.FromContext(ctx).Info("answer.generated",
		"generator", s.generator.Name(), "sources", len(results), "chars", len(text))
	return Answer{Text: text, Sources: results}, nil
}
