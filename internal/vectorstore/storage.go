// Package vectorstore defines the storage tiers and the fallback chain that
// composes them.
package vectorstore

import (
	"context"
	"time"

	"github.com/google/uuid"

	"personalrag/internal/domain"
)

// Kind classifies a tier by durability.
type Kind int

const (
	Remote Kind = iota
	LocalPersistent
	InMemory
)

func (k Kind) String() string {
	switch k {
	case Remote:
		return "remote"
	case LocalPersistent:
		return "local"
	case InMemory:
		return "memory"
	}
	return "unknown"
}

// Tier is one storage backend in the fallback chain. Every tier answers the
// same domain.VectorStore contract: search results are sorted by descending
// score, most recent first on ties, and never exceed the requested limit.
type Tier interface {
	domain.VectorStore
	// Delete removes every copy of id from category. A missing id is not an
	// error.
	Delete(ctx context.Context, category domain.Category, id string) error
	Name() string
	Kind() Kind
	Close() error
}

// Prepare fills in the id and creation time of an item that lacks them. It
// returns a copy; the caller's item is left untouched.
func Prepare(item domain.EmbeddedItem) domain.EmbeddedItem {
	if item.ID == "" {
		item.ID = uuid.NewString()
	}
	if item.Metadata.CreatedAt.IsZero() {
		item.Metadata.CreatedAt = time.Now().UTC()
	}
	if item.Metadata.WordCount == 0 {
		item.Metadata.WordCount = domain.WordCount(item.Text)
	}
	item.Embedding = append([]float64(nil), item.Embedding...)
	item.Metadata.Themes = append([]string(nil), item.Metadata.Themes...)
	return item
}

// Limit maps a non-positive search limit to the default of 5.
func Limit(limit int) int {
	if limit <= 0 {
		return 5
	}
	return limit
}
