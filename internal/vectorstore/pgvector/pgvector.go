// Package pgvector is a remote tier backed by Postgres with the pgvector
// extension, e.g. a Supabase project. One table per category.
package pgvector

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pgvector/pgvector-go"

	"personalrag/internal/domain"
	"personalrag/internal/similarity"
	"personalrag/internal/vectorstore"
)

// Config configures the pgvector tier.
type Config struct {
	TablePrefix string
	Dimension   int
	// Timeout bounds each statement; zero means only the caller's context.
	Timeout time.Duration
}

// Storage talks to Postgres through database/sql.
type Storage struct {
	db        *sql.DB
	prefix    string
	dimension int
	timeout   time.Duration

	mu     sync.Mutex
	inited bool
}

// Open connects with the pgx driver. The schema is created lazily.
func Open(dsn string, cfg Config) (*Storage, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("pgvector: open: %w", err)
	}
	db.SetMaxOpenConns(4)
	db.SetConnMaxIdleTime(5 * time.Minute)
	return New(db, cfg), nil
}

// New wraps an existing connection pool.
func New(db *sql.DB, cfg Config) *Storage {
	return &Storage{db: db, prefix: cfg.TablePrefix, dimension: cfg.Dimension, timeout: cfg.Timeout}
}

func (s *Storage) Name() string           { return "pgvector" }
func (s *Storage) Kind() vectorstore.Kind { return vectorstore.Remote }
func (s *Storage) Close() error           { return s.db.Close() }

func (s *Storage) table(c domain.Category) (string, error) {
	for _, known := range domain.Categories() {
		if c == known {
			return s.prefix + string(c), nil
		}
	}
	return "", fmt.Errorf("pgvector: %w: unknown category %q", domain.ErrInvalidRequest, c)
}

func (s *Storage) scoped(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, s.timeout)
}

// init creates the extension and tables once. A failed attempt is retried on
// the next call.
func (s *Storage) init(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.inited {
		return nil
	}
	if s.dimension <= 0 {
		return fmt.Errorf("pgvector: %w: dimension must be positive", domain.ErrConfiguration)
	}
	if _, err := s.db.ExecContext(ctx, "CREATE EXTENSION IF NOT EXISTS vector"); err != nil {
		return s.fail("init", err)
	}
	for _, c := range domain.Categories() {
		table, _ := s.table(c)
		stmt := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			id         TEXT PRIMARY KEY,
			content    TEXT NOT NULL,
			metadata   JSONB NOT NULL,
			outcome    TEXT NOT NULL DEFAULT '',
			embedding  vector(%d) NOT NULL,
			created_at TIMESTAMPTZ NOT NULL
		)`, table, s.dimension)
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return s.fail("init", err)
		}
	}
	s.inited = true
	return nil
}

// Add upserts item by id.
func (s *Storage) Add(ctx context.Context, item domain.EmbeddedItem) (string, error) {
	if item.ID == "" {
		return "", errors.New("pgvector: item id is required")
	}
	if len(item.Embedding) != s.dimension {
		return "", fmt.Errorf("pgvector: vector dimension %d, table dimension %d", len(item.Embedding), s.dimension)
	}
	table, err := s.table(item.Metadata.Category)
	if err != nil {
		return "", err
	}
	ctx, cancel := s.scoped(ctx)
	defer cancel()
	if err := s.init(ctx); err != nil {
		return "", err
	}
	meta, err := json.Marshal(item.Metadata)
	if err != nil {
		return "", fmt.Errorf("pgvector: encode metadata: %w", err)
	}
	query := fmt.Sprintf(`INSERT INTO %s (id, content, metadata, outcome, embedding, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO UPDATE SET
			content = EXCLUDED.content,
			metadata = EXCLUDED.metadata,
			outcome = EXCLUDED.outcome,
			embedding = EXCLUDED.embedding,
			created_at = EXCLUDED.created_at`, table)
	_, err = s.db.ExecContext(ctx, query,
		item.ID,
		item.Text,
		string(meta),
		string(item.Metadata.Outcome),
		pgvector.NewVector(toFloat32(item.Embedding)),
		item.Metadata.CreatedAt,
	)
	if err != nil {
		return "", s.fail("add", err)
	}
	return item.ID, nil
}

// Search orders by cosine distance in the database; similarity is
// 1 - cosine distance.
func (s *Storage) Search(ctx context.Context, category domain.Category, vector []float64, limit int, filter domain.Filter) ([]domain.Match, error) {
	table, err := s.table(category)
	if err != nil {
		return nil, err
	}
	ctx, cancel := s.scoped(ctx)
	defer cancel()
	if err := s.init(ctx); err != nil {
		return nil, err
	}
	query := fmt.Sprintf(`SELECT id, content, metadata, created_at, 1 - (embedding <=> $1) AS similarity
		FROM %s
		WHERE ($2 = '' OR outcome = $2) AND 1 - (embedding <=> $1) >= $3
		ORDER BY embedding <=> $1, created_at DESC
		LIMIT $4`, table)
	rows, err := s.db.QueryContext(ctx, query,
		pgvector.NewVector(toFloat32(vector)),
		string(filter.Outcome),
		filter.MinScore,
		vectorstore.Limit(limit),
	)
	if err != nil {
		return nil, s.fail("search", err)
	}
	defer rows.Close()

	var matches []domain.Match
	for rows.Next() {
		var (
			item      domain.EmbeddedItem
			meta      []byte
			createdAt time.Time
			score     float64
		)
		if err := rows.Scan(&item.ID, &item.Text, &meta, &createdAt, &score); err != nil {
			return nil, s.fail("search", err)
		}
		if err := json.Unmarshal(meta, &item.Metadata); err != nil {
			return nil, fmt.Errorf("pgvector: decode metadata of %s: %w", item.ID, err)
		}
		item.Metadata.CreatedAt = createdAt.UTC()
		matches = append(matches, domain.Match{Item: item, Score: similarity.FromCosine(score)})
	}
	if err := rows.Err(); err != nil {
		return nil, s.fail("search", err)
	}
	return similarity.Truncate(matches, vectorstore.Limit(limit)), nil
}

func (s *Storage) Stats(ctx context.Context) (map[domain.Category]int, error) {
	ctx, cancel := s.scoped(ctx)
	defer cancel()
	if err := s.init(ctx); err != nil {
		return nil, err
	}
	counts := make(map[domain.Category]int, len(domain.Categories()))
	for _, c := range domain.Categories() {
		table, _ := s.table(c)
		var n int
		if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+table).Scan(&n); err != nil {
			return nil, s.fail("stats", err)
		}
		counts[c] = n
	}
	return counts, nil
}

// Delete removes id from the category table. A missing id is not an error.
func (s *Storage) Delete(ctx context.Context, category domain.Category, id string) error {
	table, err := s.table(category)
	if err != nil {
		return err
	}
	ctx, cancel := s.scoped(ctx)
	defer cancel()
	if err := s.init(ctx); err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx, "DELETE FROM "+table+" WHERE id = $1", id); err != nil {
		return s.fail("delete", err)
	}
	return nil
}

func (s *Storage) Clear(ctx context.Context) error {
	ctx, cancel := s.scoped(ctx)
	defer cancel()
	if err := s.init(ctx); err != nil {
		return err
	}
	for _, c := range domain.Categories() {
		table, _ := s.table(c)
		if _, err := s.db.ExecContext(ctx, "TRUNCATE "+table); err != nil {
			return s.fail("clear", err)
		}
	}
	return nil
}

func (s *Storage) fail(op string, err error) error {
	return domain.NewProviderError("pgvector", op, err)
}

func toFloat32(v []float64) []float32 {
	out := make([]float32, len(v))
	for i, x := range v {
		out[i] = float32(x)
	}
	return out
}
