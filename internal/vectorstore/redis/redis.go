// Package redis stores documents in a Redis vector set (Redis 8+). Each
// element is a document ID; content and metadata live in the element's
// JSON attributes.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"unicode"

	"github.com/redis/go-redis/v9"

	"reviewrag/internal/vectorstore"
)

const (
	attrContent  = "content"
	attrMetadata = "metadata"
	keyPrefix    = "reviewrag:vectors:"
)

type Storage struct {
	client    redis.UniversalClient
	key       string
	dimension int
}

// Connect parses a redis:// URL and opens a RESP3 client, which vector set
// commands require.
func Connect(ctx context.Context, url, collection string) (*Storage, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("redis: invalid url: %w", err)
	}
	opt.Protocol = 3
	opt.UnstableResp3 = true
	client := redis.NewClient(opt)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis: ping: %w", err)
	}
	return New(client, collection), nil
}

func New(client redis.UniversalClient, collection string) *Storage {
	return &Storage{client: client, key: SetKey(collection)}
}

// SetKey derives the vector set key from a collection name.
func SetKey(collection string) string {
	var b strings.Builder
	for _, r := range strings.TrimSpace(collection) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '-', r == '_':
			b.WriteRune(r)
		case r >= 'A' && r <= 'Z':
			b.WriteRune(unicode.ToLower(r))
		default:
			b.WriteRune('_')
		}
	}
	name := strings.Trim(b.String(), "_-")
	if name == "" {
		name = "default"
	}
	return keyPrefix + name
}

// Init records the dimension; VADD creates the set on first write.
func (s *Storage) Init(_ context.Context, dimension int) error {
	if dimension <= 0 {
		return errors.New("invalid dimension")
	}
	s.dimension = dimension
	return nil
}

func (s *Storage) Upsert(ctx context.Context, records []vectorstore.Record) error {
	if s.dimension == 0 {
		return vectorstore.ErrNotInitialized
	}
	if len(records) == 0 {
		return nil
	}
	if err := vectorstore.CheckRecords(records, s.dimension); err != nil {
		return err
	}
	pipe := s.client.Pipeline()
	for _, r := range records {
		pipe.VAdd(ctx, s.key, r.ID, &redis.VectorValues{Val: toFloat64(r.Vector)})
		pipe.VSetAttr(ctx, s.key, r.ID, attributes(r))
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis: upsert pipeline: %w", err)
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
	scored, err := s.client.VSimWithArgsWithScores(ctx, s.key,
		&redis.VectorValues{Val: toFloat64(vector)},
		&redis.VSimArgs{Count: int64(topK)},
	).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("redis: similarity search: %w", err)
	}
	if len(scored) == 0 {
		return nil, nil
	}
	pipe := s.client.Pipeline()
	cmds := make([]*redis.StringCmd, len(scored))
	for i := range scored {
		cmds[i] = pipe.VGetAttr(ctx, s.key, scored[i].Name)
	}
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("redis: fetch attributes: %w", err)
	}
	matches := make([]vectorstore.Match, 0, len(scored))
	for i, item := range scored {
		if item.Score < opts.MinScore {
			continue
		}
		raw, err := cmds[i].Result()
		if err != nil && !errors.Is(err, redis.Nil) {
			return nil, fmt.Errorf("redis: read attributes for %q: %w", item.Name, err)
		}
		m, err := matchFromAttributes(item.Name, item.Score, raw)
		if err != nil {
			return nil, err
		}
		matches = append(matches, m)
	}
	return matches, nil
}

func (s *Storage) Count(ctx context.Context) (int, error) {
	n, err := s.client.VCard(ctx, s.key).Result()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("redis: vcard: %w", err)
	}
	return int(n), nil
}

func (s *Storage) Clear(ctx context.Context) error {
	if err := s.client.Del(ctx, s.key).Err(); err != nil {
		return fmt.Errorf("redis: delete set: %w", err)
	}
	return nil
}

func (s *Storage) Close() error { return s.client.Close() }

func attributes(r vectorstore.Record) map[string]any {
	meta := r.Metadata
	if meta == nil {
		meta = map[string]any{}
	}
	return map[string]any{attrContent: r.Content, attrMetadata: meta}
}

func matchFromAttributes(id string, score float64, payload string) (vectorstore.Match, error) {
	m := vectorstore.Match{ID: id, Score: score, Metadata: map[string]any{}}
	if strings.TrimSpace(payload) == "" {
		return m, nil
	}
	var decoded struct {
		Content  string         `json:"content"`
		Metadata map[string]any `json:"metadata"`
	}
	if err := json.Unmarshal([]byte(payload), &decoded); err != nil {
		return m, fmt.Errorf("redis: parse attributes for %q: %w", id, err)
	}
	m.Content = decoded.Content
	if decoded.Metadata != nil {
		m.Metadata = decoded.Metadata
	}
	return m, nil
}

func toFloat64(v []float32) []float64 {
	out := make([]float64, len(v))
	for i := range v {
		out[i] = float64(v[i])
	}
	return out
}
