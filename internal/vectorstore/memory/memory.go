package memory

import (
	"context"
	"errors"
	"sync"

	"personalrag/internal/domain"
	"personalrag/internal/similarity"
	"personalrag/internal/vectorstore"
)

// Storage is a simple in-memory vector store using brute-force cosine similarity.
// Items are appended; adding the same id twice keeps both copies.
type Storage struct {
	mu    sync.RWMutex
	items []domain.EmbeddedItem
}

func NewStorage() *Storage { return &Storage{} }

func (s *Storage) Name() string           { return "memory" }
func (s *Storage) Kind() vectorstore.Kind { return vectorstore.InMemory }

// Add appends item. The caller is expected to have assigned an id.
func (s *Storage) Add(_ context.Context, item domain.EmbeddedItem) (string, error) {
	if item.ID == "" {
		return "", errors.New("memory: item id is required")
	}
	if len(item.Embedding) == 0 {
		return "", errors.New("memory: item has no embedding")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items = append(s.items, item)
	return item.ID, nil
}

func (s *Storage) Search(ctx context.Context, category domain.Category, vector []float64, limit int, filter domain.Filter) ([]domain.Match, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	var matches []domain.Match
	for _, item := range s.items {
		if item.Metadata.Category != category {
			continue
		}
		score := similarity.Score(item.Embedding, vector)
		if !filter.Accepts(item.Metadata, score) {
			continue
		}
		matches = append(matches, domain.Match{Item: item, Score: score})
	}
	return similarity.Truncate(matches, vectorstore.Limit(limit)), nil
}

func (s *Storage) Stats(_ context.Context) (map[domain.Category]int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	counts := make(map[domain.Category]int, len(domain.Categories()))
	for _, c := range domain.Categories() {
		counts[c] = 0
	}
	for _, item := range s.items {
		counts[item.Metadata.Category]++
	}
	return counts, nil
}

// Delete removes every copy of id from category.
func (s *Storage) Delete(_ context.Context, category domain.Category, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	kept := s.items[:0]
	for _, item := range s.items {
		if item.ID == id && item.Metadata.Category == category {
			continue
		}
		kept = append(kept, item)
	}
	clear(s.items[len(kept):])
	s.items = kept
	return nil
}

func (s *Storage) Clear(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items = nil
	return nil
}

func (s *Storage) Close() error { return nil }
