package service_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"reviewrag/internal/domain"
	"reviewrag/internal/embedding/hashing"
	"reviewrag/internal/gateway"
	"reviewrag/internal/llm"
	"reviewrag/internal/service"
	"reviewrag/internal/vectorstore"
	"reviewrag/internal/vectorstore/memory"
)

type recordingGenerator struct {
	requests []llm.Request
	reply    string
	err      error
}

func (g *recordingGenerator) Name() string { return "recording" }

func (g *recordingGenerator) Generate(_ context.Context, req llm.Request) (string, error) {
	g.requests = append(g.requests, req)
	return g.reply, g.err
}

func newService(t *testing.T, gen llm.Generator) (*service.RAGService, *memory.Storage) {
	t.Helper()
	store := memory.NewStorage(vectorstore.Cosine)
	gw, err := gateway.New(
		gateway.Config{Backend: gateway.BackendMemory, Collection: "reviews", TopK: 2},
		hashing.NewEmbedder(256),
		func(context.Context, gateway.Config) (vectorstore.Storage, error) { return store, nil },
	)
	require.NoError(t, err)
	return service.NewRAGService(gw, gen, nil), store
}

var rows = []domain.RawRecord{
	{Title: "boAt Rockerz 450", Rating: 4, Summary: "Good", Review: "Cheap headphone with good bass and long battery"},
	{Title: "JBL C100SI", Rating: 5, Summary: "Superb", Review: "Budget earphone, crisp sound for the price"},
	{Title: "ASUS VivoBook", Rating: 4, Summary: "Nice", Review: "Laptop boots fast and the keyboard is comfortable"},
	{Title: "boAt Rockerz 450", Rating: 2, Summary: "Meh", Review: "Cheap headphone with good bass and long battery"},
}

func TestIngest(t *testing.T) {
	ctx := context.Background()

	t.Run("Should store one document per distinct review", func(t *testing.T) {
		svc, store := newService(t, &recordingGenerator{})
		report, err := svc.Ingest(ctx, rows, service.IngestOptions{})
		require.NoError(t, err)
		assert.Equal(t, 4, report.Rows)
		assert.Len(t, report.Inserted, 3)
		n, err := store.Count(ctx)
		require.NoError(t, err)
		assert.Equal(t, 3, n)
	})

	t.Run("Should be idempotent across runs", func(t *testing.T) {
		svc, _ := newService(t, &recordingGenerator{})
		_, err := svc.Ingest(ctx, rows, service.IngestOptions{})
		require.NoError(t, err)
		_, err = svc.Ingest(ctx, rows, service.IngestOptions{})
		require.NoError(t, err)
		n, err := svc.Count(ctx)
		require.NoError(t, err)
		assert.Equal(t, 3, n)
	})

	t.Run("Should clear the collection when reset is requested", func(t *testing.T) {
		svc, _ := newService(t, &recordingGenerator{})
		_, err := svc.Ingest(ctx, rows, service.IngestOptions{})
		require.NoError(t, err)
		_, err = svc.Ingest(ctx, rows[2:3], service.IngestOptions{Reset: true})
		require.NoError(t, err)
		n, err := svc.Count(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, n)
	})

	t.Run("Should write nothing when a review is missing", func(t *testing.T) {
		svc, store := newService(t, &recordingGenerator{})
		bad := append([]domain.RawRecord{}, rows...)
		bad = append(bad, domain.RawRecord{Title: "empty"})
		_, err := svc.Ingest(ctx, bad, service.IngestOptions{})
		require.Error(t, err)
		assert.True(t, errors.Is(err, domain.ErrDataQuality))
		n, err := store.Count(ctx)
		require.NoError(t, err)
		assert.Zero(t, n)
	})

	t.Run("Should ingest a CSV file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "reviews.csv")
		require.NoError(t, os.WriteFile(path, []byte(
			"product_title,rating,summary,review\n"+
				"boAt Rockerz 450,4,Good,Cheap headphone with good bass\n"), 0o644))
		svc, _ := newService(t, &recordingGenerator{})
		report, err := svc.IngestFile(ctx, path, service.IngestOptions{})
		require.NoError(t, err)
		assert.Len(t, report.Inserted, 1)
	})
}

func TestAsk(t *testing.T) {
	ctx := context.Background()

	t.Run("Should render retrieved reviews into the prompt", func(t *testing.T) {
		gen := &recordingGenerator{reply: "  Try the JBL C100SI.\n"}
		svc, _ := newService(t, gen)
		_, err := svc.Ingest(ctx, rows, service.IngestOptions{})
		require.NoError(t, err)

		answer, err := svc.Ask(ctx, "Can you tell me the low budget headphone?")
		require.NoError(t, err)
		assert.Equal(t, "Try the JBL C100SI.", answer.Text)
		assert.Len(t, answer.Sources, 2)
		require.Len(t, gen.requests, 1)
		req := gen.requests[0]
		assert.Contains(t, req.Prompt, "QUESTION: Can you tell me the low budget headphone?")
		assert.Contains(t, req.Prompt, answer.Sources[0].Document.Content)
		assert.Len(t, req.Context, 2)
	})

	t.Run("Should still call the generator when nothing is stored", func(t *testing.T) {
		gen := &recordingGenerator{reply: "I could not find matching reviews."}
		svc, _ := newService(t, gen)
		answer, err := svc.Ask(ctx, "Which laptop is best?")
		require.NoError(t, err)
		assert.Empty(t, answer.Sources)
		require.Len(t, gen.requests, 1)
		assert.Contains(t, gen.requests[0].Prompt, "(no matching reviews)")
	})

	t.Run("Should reject an empty question", func(t *testing.T) {
		gen := &recordingGenerator{}
		svc, _ := newService(t, gen)
		_, err := svc.Ask(ctx, "   ")
		assert.True(t, errors.Is(err, domain.ErrInvalidInput))
		assert.Empty(t, gen.requests)
	})

	t.Run("Should wrap generator failures", func(t *testing.T) {
		boom := errors.New("quota exceeded")
		svc, _ := newService(t, &recordingGenerator{err: boom})
		_, err := svc.Ask(ctx, "budget laptop")
		assert.ErrorIs(t, err, boom)
	})

	t.Run("Should answer offline with the extractive generator", func(t *testing.T) {
		svc, _ := newService(t, llm.NewExtractive(2))
		_, err := svc.Ingest(ctx, rows, service.IngestOptions{})
		require.NoError(t, err)
		answer, err := svc.Ask(ctx, "good laptop keyboard")
		require.NoError(t, err)
		assert.NotEmpty(t, answer.Text)
	})
}

func TestSearch(t *testing.T) {
	ctx := context.Background()
	svc, _ := newService(t, &recordingGenerator{})
	_, err := svc.Ingest(ctx, rows, service.IngestOptions{})
	require.NoError(t, err)

	t.Run("Should honour top_k", func(t *testing.T) {
		results, err := svc.Search(ctx, "budget headphone", 1)
		require.NoError(t, err)
		assert.Len(t, results, 1)
	})

	t.Run("Should return nothing for top_k zero", func(t *testing.T) {
		results, err := svc.Search(ctx, "budget headphone", 0)
		require.NoError(t, err)
		assert.Empty(t, results)
	})
}
