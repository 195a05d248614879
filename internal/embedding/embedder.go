// Package embedding selects an embedding backend and exposes it behind a
// single Provider that also ranks vectors.
package embedding

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"personalrag/internal/capabilities"
	"personalrag/internal/config"
	"personalrag/internal/domain"
	"personalrag/internal/embedding/local"
	"personalrag/internal/embedding/ollama"
	"personalrag/internal/embedding/openai"
	"personalrag/internal/logger"
	"personalrag/internal/similarity"
)

// Provider is the embedding facade used by the rest of the application.
// Document and query prefixes (e.g. nomic's "search_document: ") are applied
// here so backends stay prompt-agnostic.
type Provider struct {
	backend     domain.Embedder
	queryPrefix string
	docPrefix   string
	log         *zap.Logger
}

var _ domain.Embedder = (*Provider)(nil)

// New builds the provider chosen by caps. It returns an error wrapping
// domain.ErrConfiguration when no backend can be constructed.
func New(caps capabilities.Capabilities, cfg config.EmbedderConfig, log *zap.Logger) (*Provider, error) {
	log = logger.OrNop(log).Named("embedding")

	var backend domain.Embedder
	switch caps.Embedder {
	case "local":
		backend = local.NewEmbedder(cfg.Dimension)
	case "openai":
		o := cfg.OpenAI
		if o == nil {
			return nil, fmt.Errorf("%w: openai embedder selected without configuration", domain.ErrConfiguration)
		}
		c, err := openai.NewClient(openai.Config{
			BaseURL:    o.BaseURL,
			APIKeyEnv:  o.APIKeyEnv,
			Model:      o.Model,
			Dimension:  cfg.Dimension,
			BatchSize:  cfg.BatchSize,
			Timeout:    time.Duration(o.TimeoutSecs) * time.Second,
			MaxRetries: o.MaxRetries,
		})
		if err != nil {
			return nil, err
		}
		backend = c
	case "ollama":
		o := cfg.Ollama
		if o == nil {
			return nil, fmt.Errorf("%w: ollama embedder selected without configuration", domain.ErrConfiguration)
		}
		backend = ollama.New(ollama.Config{
			BaseURL:    o.BaseURL,
			Model:      o.Model,
			Dimension:  cfg.Dimension,
			Timeout:    time.Duration(o.TimeoutSecs) * time.Second,
			MaxRetries: o.MaxRetries,
		})
	default:
		return nil, fmt.Errorf("%w: no embedding backend available (type %q)", domain.ErrConfiguration, cfg.Type)
	}

	if cfg.CacheTTLSecs > 0 {
		backend = NewCachedEmbedder(backend, time.Duration(cfg.CacheTTLSecs)*time.Second)
	}
	p := NewProvider(backend, log)
	p.queryPrefix = cfg.QueryPrefix
	p.docPrefix = cfg.DocPrefix
	log.Info("embedding provider ready",
		zap.String("backend", backend.Name()),
		zap.Int("dimension", backend.Dimension()))
	return p, nil
}

// NewProvider wraps an already constructed backend.
func NewProvider(backend domain.Embedder, log *zap.Logger) *Provider {
	return &Provider{backend: backend, log: logger.OrNop(log)}
}

func (p *Provider) Name() string   { return p.backend.Name() }
func (p *Provider) Dimension() int { return p.backend.Dimension() }

// Embed embeds a document for storage.
func (p *Provider) Embed(ctx context.Context, text string) ([]float64, error) {
	v, err := p.backend.Embed(ctx, p.docPrefix+text)
	if err != nil {
		return nil, p.fail("embed", err)
	}
	if err := p.checkDimension(v); err != nil {
		return nil, err
	}
	return v, nil
}

// EmbedBatch embeds several documents, preserving order.
func (p *Provider) EmbedBatch(ctx context.Context, texts []string) ([][]float64, error) {
	in := texts
	if p.docPrefix != "" {
		in = make([]string, len(texts))
		for i, t := range texts {
			in[i] = p.docPrefix + t
		}
	}
	out, err := p.backend.EmbedBatch(ctx, in)
	if err != nil {
		return nil, p.fail("embed_batch", err)
	}
	if len(out) != len(texts) {
		return nil, domain.NewProviderError(p.Name(), "embed_batch",
			fmt.Errorf("got %d vectors for %d texts", len(out), len(texts)))
	}
	for _, v := range out {
		if err := p.checkDimension(v); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// EmbedQuery embeds search input using the query transform.
func (p *Provider) EmbedQuery(ctx context.Context, text string) ([]float64, error) {
	v, err := p.backend.EmbedQuery(ctx, p.queryPrefix+text)
	if err != nil {
		return nil, p.fail("embed_query", err)
	}
	if err := p.checkDimension(v); err != nil {
		return nil, err
	}
	return v, nil
}

// Similarity is the shared cosine score in [0,1].
func (p *Provider) Similarity(a, b []float64) float64 {
	return similarity.Score(a, b)
}

// FindMostSimilar ranks candidates against query.
func (p *Provider) FindMostSimilar(query []float64, candidates [][]float64, topK int) []similarity.Ranked {
	return similarity.FindMostSimilar(query, candidates, topK)
}

func (p *Provider) checkDimension(v []float64) error {
	if len(v) != p.Dimension() {
		return domain.NewProviderError(p.Name(), "embed",
			fmt.Errorf("dimension mismatch: got %d, declared %d", len(v), p.Dimension()))
	}
	return nil
}

func (p *Provider) fail(op string, err error) error {
	p.log.Warn("embedding call failed", zap.String("op", op), zap.Error(err))
	return domain.NewProviderError(p.Name(), op, err)
}

