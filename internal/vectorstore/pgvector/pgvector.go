// Package pgvector stores documents in a Postgres table with a pgvector
// embedding column.
package pgvector

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	pgvec "github.com/pgvector/pgvector-go"

	"reviewrag/internal/vectorstore"
)

// Pool is the subset of *pgxpool.Pool the store uses.
type Pool interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Close()
}

type Storage struct {
	pool       Pool
	tableIdent string
	metric     vectorstore.Metric
	dimension  int
}

// Connect opens a pool for dsn and wraps it in a Storage.
func Connect(ctx context.Context, dsn, table string, metric vectorstore.Metric) (*Storage, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("pgvector: connect: %w", err)
	}
	return New(pool, table, metric), nil
}

func New(pool Pool, table string, metric vectorstore.Metric) *Storage {
	if metric == "" {
		metric = vectorstore.Cosine
	}
	return &Storage{
		pool:       pool,
		tableIdent: pgx.Identifier{table}.Sanitize(),
		metric:     metric,
	}
}

// distanceOps returns the pgvector distance operator and an expression
// turning that distance into a higher-is-closer score.
func distanceOps(m vectorstore.Metric) (op, score string) {
	switch m {
	case vectorstore.DotProduct:
		return "<#>", "(embedding <#> $1) * -1"
	case vectorstore.Euclidean:
		return "<->", "1 / (1 + (embedding <-> $1))"
	default:
		return "<=>", "1 - (embedding <=> $1)"
	}
}

func (s *Storage) Init(ctx context.Context, dimension int) error {
	if dimension <= 0 {
		return errors.New("invalid dimension")
	}
	if _, err := s.pool.Exec(ctx, "CREATE EXTENSION IF NOT EXISTS vector"); err != nil {
		return fmt.Errorf("pgvector: enable extension: %w", err)
	}
	createTable := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		id TEXT PRIMARY KEY,
		embedding vector(%d),
		document TEXT,
		metadata JSONB,
		updated_at TIMESTAMP WITH TIME ZONE DEFAULT NOW()
	)`, s.tableIdent, dimension)
	if _, err := s.pool.Exec(ctx, createTable); err != nil {
		return fmt.Errorf("pgvector: create table: %w", err)
	}
	s.dimension = dimension
	return nil
}

// Upsert writes all records in one transaction.
func (s *Storage) Upsert(ctx context.Context, records []vectorstore.Record) (err error) {
	if s.dimension == 0 {
		return vectorstore.ErrNotInitialized
	}
	if len(records) == 0 {
		return nil
	}
	if err := vectorstore.CheckRecords(records, s.dimension); err != nil {
		return err
	}
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("pgvector: begin tx: %w", err)
	}
	defer func() {
		if err != nil {
			if rbErr := tx.Rollback(ctx); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
				err = errors.Join(err, fmt.Errorf("pgvector: rollback failed: %w", rbErr))
			}
			return
		}
		if commitErr := tx.Commit(ctx); commitErr != nil {
			err = fmt.Errorf("pgvector: commit: %w", commitErr)
		}
	}()
	stmt := fmt.Sprintf(`INSERT INTO %s (id, embedding, document, metadata, updated_at)
VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (id) DO UPDATE SET
    embedding = excluded.embedding,
    document = excluded.document,
    metadata = excluded.metadata,
    updated_at = excluded.updated_at`, s.tableIdent)
	now := time.Now().UTC()
	for _, r := range records {
		meta, marshalErr := json.Marshal(r.Metadata)
		if marshalErr != nil {
			return fmt.Errorf("pgvector: marshal metadata for %q: %w", r.ID, marshalErr)
		}
		if _, execErr := tx.Exec(ctx, stmt, r.ID, pgvec.NewVector(r.Vector), r.Content, meta, now); execErr != nil {
			return fmt.Errorf("pgvector: upsert %q: %w", r.ID, execErr)
		}
	}
	return nil
}

func (s *Storage) Search(ctx context.Context, vector []float32, opts vectorstore.SearchOptions) ([]vectorstore.Match, error) {
	if s.dimension != 0 && len(vector) != s.dimension {
		return nil, vectorstore.ErrDimensionMismatch
	}
	topK := opts.TopK
	if topK <= 0 {
		topK = 5
	}
	op, score := distanceOps(s.metric)
	query := fmt.Sprintf(
		"SELECT id, document, metadata, %s AS score FROM %s ORDER BY embedding %s $1 ASC LIMIT $2",
		score, s.tableIdent, op,
	)
	rows, err := s.pool.Query(ctx, query, pgvec.NewVector(vector), topK)
	if err != nil {
		return nil, fmt.Errorf("pgvector: search: %w", err)
	}
	defer rows.Close()
	matches := make([]vectorstore.Match, 0, topK)
	for rows.Next() {
		var (
			id, document string
			metaRaw      []byte
			sc           float64
		)
		if err := rows.Scan(&id, &document, &metaRaw, &sc); err != nil {
			return nil, fmt.Errorf("pgvector: scan: %w", err)
		}
		if sc < opts.MinScore {
			continue
		}
		meta := make(map[string]any)
		if len(metaRaw) > 0 {
			if err := json.Unmarshal(metaRaw, &meta); err != nil {
				return nil, fmt.Errorf("pgvector: decode metadata for %q: %w", id, err)
			}
		}
		matches = append(matches, vectorstore.Match{ID: id, Score: sc, Content: document, Metadata: meta})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("pgvector: search rows: %w", err)
	}
	return matches, nil
}

func (s *Storage) Count(ctx context.Context) (int, error) {
	var n int64
	if err := s.pool.QueryRow(ctx, "SELECT count(*) FROM "+s.tableIdent).Scan(&n); err != nil {
		return 0, fmt.Errorf("pgvector: count: %w", err)
	}
	return int(n), nil
}

func (s *Storage) Clear(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, "TRUNCATE "+s.tableIdent); err != nil {
		return fmt.Errorf("pgvector: truncate: %w", err)
	}
	return nil
}

func (s *Storage) Close() error {
	s.pool.Close()
	return nil
}
