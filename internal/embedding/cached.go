package embedding

import (
	"context"
	"time"

	"github.com/patrickmn/go-cache"

	"personalrag/internal/domain"
)

// CachedEmbedder memoises query embeddings. Document embeddings are not
// cached: they are computed once at import time.
type CachedEmbedder struct {
	domain.Embedder
	queries *cache.Cache
}

// NewCachedEmbedder wraps inner with a query cache whose entries expire after ttl.
func NewCachedEmbedder(inner domain.Embedder, ttl time.Duration) *CachedEmbedder {
	return &CachedEmbedder{
		Embedder: inner,
		queries:  cache.New(ttl, 2*ttl),
	}
}

// EmbedQuery returns a cached vector for text when one is present.
func (c *CachedEmbedder) EmbedQuery(ctx context.Context, text string) ([]float64, error) {
	if v, ok := c.queries.Get(text); ok {
		return cloneVector(v.([]float64)), nil
	}
	vec, err := c.Embedder.EmbedQuery(ctx, text)
	if err != nil {
		return nil, err
	}
	c.queries.Set(text, cloneVector(vec), cache.DefaultExpiration)
	return vec, nil
}

func cloneVector(v []float64) []float64 {
	out := make([]float64, len(v))
	copy(out, v)
	return out
}
