// Package sqlite is the on-disk tier. A data directory holds vectors.db with
// one table per category; embeddings are stored as little-endian float32
// blobs and ranked with a linear cosine scan.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"personalrag/internal/domain"
	"personalrag/internal/similarity"
	"personalrag/internal/vectorstore"
)

// FileName is the database file created inside the data directory.
const FileName = "vectors.db"

const busyTimeout = 5 * time.Second

// Storage is a SQLite-backed tier.
type Storage struct {
	db   *sql.DB
	path string
}

// Open creates dir if needed and opens (or creates) dir/vectors.db.
func Open(ctx context.Context, dir string) (*Storage, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("sqlite: ensure data dir: %w", err)
	}
	path := filepath.Join(dir, FileName)
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("sqlite: open %s: %w", path, err)
	}
	db.SetMaxOpenConns(1)

	if err := applyPragmas(ctx, db); err != nil {
		db.Close()
		return nil, err
	}
	if err := applySchema(ctx, db); err != nil {
		db.Close()
		return nil, err
	}
	return &Storage{db: db, path: path}, nil
}

func applyPragmas(ctx context.Context, db *sql.DB) error {
	pragmas := []string{
		fmt.Sprintf("PRAGMA busy_timeout = %d", int(busyTimeout.Milliseconds())),
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA temp_store = MEMORY",
	}
	for _, pragma := range pragmas {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			return fmt.Errorf("sqlite: apply pragma %q: %w", pragma, err)
		}
	}
	return nil
}

func applySchema(ctx context.Context, db *sql.DB) error {
	for _, c := range domain.Categories() {
		stmts := []string{
			fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
				id         TEXT PRIMARY KEY,
				embedding  BLOB NOT NULL,
				norm       REAL NOT NULL,
				document   TEXT NOT NULL,
				metadata   TEXT NOT NULL,
				outcome    TEXT NOT NULL DEFAULT '',
				created_at INTEGER NOT NULL
			)`, c),
			fmt.Sprintf(`CREATE INDEX IF NOT EXISTS idx_%s_outcome ON %s(outcome)`, c, c),
		}
		for _, stmt := range stmts {
			if _, err := db.ExecContext(ctx, stmt); err != nil {
				return fmt.Errorf("sqlite: create %s: %w", c, err)
			}
		}
	}
	return nil
}

func (s *Storage) Name() string           { return "sqlite" }
func (s *Storage) Kind() vectorstore.Kind { return vectorstore.LocalPersistent }

// Path returns the database file location.
func (s *Storage) Path() string { return s.path }

// Add upserts item into its category table.
func (s *Storage) Add(ctx context.Context, item domain.EmbeddedItem) (string, error) {
	if item.ID == "" {
		return "", errors.New("sqlite: item id is required")
	}
	table, err := tableFor(item.Metadata.Category)
	if err != nil {
		return "", err
	}
	meta, err := json.Marshal(item.Metadata)
	if err != nil {
		return "", fmt.Errorf("sqlite: encode metadata: %w", err)
	}
	query := fmt.Sprintf(`INSERT INTO %s (id, embedding, norm, document, metadata, outcome, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			embedding = excluded.embedding,
			norm = excluded.norm,
			document = excluded.document,
			metadata = excluded.metadata,
			outcome = excluded.outcome,
			created_at = excluded.created_at`, table)
	_, err = s.db.ExecContext(ctx, query,
		item.ID,
		encodeEmbedding(item.Embedding),
		similarity.Norm(item.Embedding),
		item.Text,
		string(meta),
		string(item.Metadata.Outcome),
		item.Metadata.CreatedAt.UnixNano(),
	)
	if err != nil {
		return "", fmt.Errorf("sqlite: upsert %s: %w", item.ID, err)
	}
	return item.ID, nil
}

// Search scans the category table, applying the outcome filter in SQL and the
// score threshold in Go.
func (s *Storage) Search(ctx context.Context, category domain.Category, vector []float64, limit int, filter domain.Filter) ([]domain.Match, error) {
	table, err := tableFor(category)
	if err != nil {
		return nil, err
	}
	query := fmt.Sprintf(`SELECT id, embedding, norm, document, metadata, created_at FROM %s WHERE (? = '' OR outcome = ?)`, table)
	rows, err := s.db.QueryContext(ctx, query, string(filter.Outcome), string(filter.Outcome))
	if err != nil {
		return nil, fmt.Errorf("sqlite: search %s: %w", table, err)
	}
	defer rows.Close()

	var matches []domain.Match
	for rows.Next() {
		var (
			item      domain.EmbeddedItem
			blob      []byte
			norm      float64
			meta      string
			createdAt int64
		)
		if err := rows.Scan(&item.ID, &blob, &norm, &item.Text, &meta, &createdAt); err != nil {
			return nil, fmt.Errorf("sqlite: scan: %w", err)
		}
		if err := json.Unmarshal([]byte(meta), &item.Metadata); err != nil {
			return nil, fmt.Errorf("sqlite: decode metadata of %s: %w", item.ID, err)
		}
		item.Metadata.CreatedAt = time.Unix(0, createdAt).UTC()
		item.Embedding = decodeEmbedding(blob)

		score := 0.0
		if norm > 0 {
			score = similarity.Score(item.Embedding, vector)
		}
		if !filter.Accepts(item.Metadata, score) {
			continue
		}
		matches = append(matches, domain.Match{Item: item, Score: score})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterate: %w", err)
	}
	return similarity.Truncate(matches, vectorstore.Limit(limit)), nil
}

func (s *Storage) Stats(ctx context.Context) (map[domain.Category]int, error) {
	counts := make(map[domain.Category]int, len(domain.Categories()))
	for _, c := range domain.Categories() {
		var n int
		if err := s.db.QueryRowContext(ctx, fmt.Sprintf("SELECT COUNT(*) FROM %s", c)).Scan(&n); err != nil {
			return nil, fmt.Errorf("sqlite: count %s: %w", c, err)
		}
		counts[c] = n
	}
	return counts, nil
}

// Delete removes id from the category table. A missing id is not an error.
func (s *Storage) Delete(ctx context.Context, category domain.Category, id string) error {
	table, err := tableFor(category)
	if err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx, fmt.Sprintf("DELETE FROM %s WHERE id = ?", table), id); err != nil {
		return fmt.Errorf("sqlite: delete %s: %w", id, err)
	}
	return nil
}

func (s *Storage) Clear(ctx context.Context) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite: begin clear: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck
	for _, c := range domain.Categories() {
		if _, err := tx.ExecContext(ctx, fmt.Sprintf("DELETE FROM %s", c)); err != nil {
			return fmt.Errorf("sqlite: clear %s: %w", c, err)
		}
	}
	return tx.Commit()
}

func (s *Storage) Close() error { return s.db.Close() }

// tableFor guards the table name interpolated into SQL.
func tableFor(c domain.Category) (string, error) {
	for _, known := range domain.Categories() {
		if c == known {
			return string(c), nil
		}
	}
	return "", fmt.Errorf("sqlite: %w: unknown category %q", domain.ErrInvalidRequest, c)
}

// encodeEmbedding stores each component as a little-endian float32.
func encodeEmbedding(vec []float64) []byte {
	buf := make([]byte, len(vec)*4)
	for i, v := range vec {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(float32(v)))
	}
	return buf
}

func decodeEmbedding(data []byte) []float64 {
	n := len(data) / 4
	vec := make([]float64, n)
	for i := 0; i < n; i++ {
		vec[i] = float64(math.Float32frombits(binary.LittleEndian.Uint32(data[i*4:])))
	}
	return vec
}
