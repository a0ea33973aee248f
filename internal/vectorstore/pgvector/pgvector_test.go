package pgvector

import (
	"context"
	"errors"
	"testing"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"reviewrag/internal/vectorstore"
)

func newMockStore(t *testing.T, metric vectorstore.Metric) (pgxmock.PgxPoolIface, *Storage) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	return mock, New(mock, "flipkart_reviews", metric)
}

func TestStorageInit(t *testing.T) {
	ctx := context.Background()

	t.Run("Should create the extension and table", func(t *testing.T) {
		mock, s := newMockStore(t, "")
		mock.ExpectExec("CREATE EXTENSION IF NOT EXISTS vector").WillReturnResult(pgxmock.NewResult("CREATE", 0))
		mock.ExpectExec(`CREATE TABLE IF NOT EXISTS "flipkart_reviews"`).WillReturnResult(pgxmock.NewResult("CREATE", 0))
		require.NoError(t, s.Init(ctx, 3))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Should reject a non-positive dimension", func(t *testing.T) {
		_, s := newMockStore(t, "")
		assert.Error(t, s.Init(ctx, 0))
	})
}

func TestStorageUpsert(t *testing.T) {
	ctx := context.Background()

	t.Run("Should upsert every record in one transaction", func(t *testing.T) {
		mock, s := newMockStore(t, "")
		s.dimension = 2
		mock.ExpectBegin()
		mock.ExpectExec("INSERT INTO \"flipkart_reviews\"").
			WithArgs("a", pgxmock.AnyArg(), "good", []byte(`{"product_rating":4}`), pgxmock.AnyArg()).
			WillReturnResult(pgxmock.NewResult("INSERT", 1))
		mock.ExpectExec("ON CONFLICT \\(id\\) DO UPDATE").
			WithArgs("b", pgxmock.AnyArg(), "bad", []byte(`null`), pgxmock.AnyArg()).
			WillReturnResult(pgxmock.NewResult("INSERT", 1))
		mock.ExpectCommit()

		err := s.Upsert(ctx, []vectorstore.Record{
			{ID: "a", Content: "good", Vector: []float32{1, 0}, Metadata: map[string]any{"product_rating": 4}},
			{ID: "b", Content: "bad", Vector: []float32{0, 1}},
		})
		require.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Should roll back when a write fails", func(t *testing.T) {
		mock, s := newMockStore(t, "")
		s.dimension = 1
		boom := errors.New("connection reset")
		mock.ExpectBegin()
		mock.ExpectExec("INSERT INTO").
			WithArgs("a", pgxmock.AnyArg(), "", pgxmock.AnyArg(), pgxmock.AnyArg()).
			WillReturnError(boom)
		mock.ExpectRollback()

		err := s.Upsert(ctx, []vectorstore.Record{{ID: "a", Vector: []float32{1}}})
		require.ErrorIs(t, err, boom)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Should keep the write error when the rollback fails too", func(t *testing.T) {
		mock, s := newMockStore(t, "")
		s.dimension = 1
		boom := errors.New("connection reset")
		closed := errors.New("conn closed")
		mock.ExpectBegin()
		mock.ExpectExec("INSERT INTO").
			WithArgs("a", pgxmock.AnyArg(), "", pgxmock.AnyArg(), pgxmock.AnyArg()).
			WillReturnError(boom)
		mock.ExpectRollback().WillReturnError(closed)

		err := s.Upsert(ctx, []vectorstore.Record{{ID: "a", Vector: []float32{1}}})
		require.Error(t, err)
		assert.ErrorIs(t, err, boom)
		assert.ErrorIs(t, err, closed)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Should require init", func(t *testing.T) {
		_, s := newMockStore(t, "")
		assert.ErrorIs(t, s.Upsert(ctx, nil), vectorstore.ErrNotInitialized)
	})
}

func TestStorageSearch(t *testing.T) {
	ctx := context.Background()

	t.Run("Should scan matches and drop those below the score floor", func(t *testing.T) {
		mock, s := newMockStore(t, vectorstore.Cosine)
		s.dimension = 2
		rows := mock.NewRows([]string{"id", "document", "metadata", "score"}).
			AddRow("a", "good", []byte(`{"product_name":"X"}`), 0.9).
			AddRow("b", "meh", []byte(`{}`), 0.1)
		mock.ExpectQuery(`SELECT id, document, metadata, 1 - \(embedding <=> \$1\) AS score FROM "flipkart_reviews" ORDER BY embedding <=> \$1 ASC LIMIT \$2`).
			WithArgs(pgxmock.AnyArg(), 3).
			WillReturnRows(rows)

		got, err := s.Search(ctx, []float32{1, 0}, vectorstore.SearchOptions{TopK: 3, MinScore: 0.5})
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, "a", got[0].ID)
		assert.Equal(t, "X", got[0].Metadata["product_name"])
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Should use the inner product operator for dot product", func(t *testing.T) {
		mock, s := newMockStore(t, vectorstore.DotProduct)
		mock.ExpectQuery(`ORDER BY embedding <#> \$1`).
			WithArgs(pgxmock.AnyArg(), 5).
			WillReturnRows(mock.NewRows([]string{"id", "document", "metadata", "score"}))
		got, err := s.Search(ctx, []float32{1}, vectorstore.SearchOptions{})
		require.NoError(t, err)
		assert.Empty(t, got)
	})
}

func TestStorageCountAndClear(t *testing.T) {
	ctx := context.Background()

	t.Run("Should count rows", func(t *testing.T) {
		mock, s := newMockStore(t, "")
		mock.ExpectQuery(`SELECT count\(\*\) FROM "flipkart_reviews"`).
			WillReturnRows(mock.NewRows([]string{"count"}).AddRow(int64(7)))
		n, err := s.Count(ctx)
		require.NoError(t, err)
		assert.Equal(t, 7, n)
	})

	t.Run("Should truncate the table", func(t *testing.T) {
		mock, s := newMockStore(t, "")
		mock.ExpectExec(`TRUNCATE "flipkart_reviews"`).WillReturnResult(pgxmock.NewResult("TRUNCATE", 0))
		require.NoError(t, s.Clear(ctx))
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}
