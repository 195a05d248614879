// Package ollama embeds text with a locally served Ollama model such as
// nomic-embed-text. Vectors are normalized to unit length.
package ollama

import (
	"context"
	"fmt"
	"strings"
	"time"

	"personalrag/internal/domain"
	"personalrag/internal/httpx"
	"personalrag/internal/similarity"
)

// DefaultDimension matches nomic-embed-text.
const DefaultDimension = 768

// Config configures the Ollama embedder.
type Config struct {
	BaseURL    string
	Model      string
	Dimension  int
	Timeout    time.Duration
	MaxRetries int
}

// Provider implements domain.Embedder against Ollama's /api/embeddings.
type Provider struct {
	baseURL   string
	model     string
	dimension int
	http      *httpx.Client
}

// New creates an Ollama embedder.
func New(cfg Config) *Provider {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "http://localhost:11434"
	}
	if cfg.Model == "" {
		cfg.Model = "nomic-embed-text"
	}
	if cfg.Dimension <= 0 {
		cfg.Dimension = DefaultDimension
	}
	return &Provider{
		baseURL:   strings.TrimRight(cfg.BaseURL, "/"),
		model:     cfg.Model,
		dimension: cfg.Dimension,
		http:      httpx.New("ollama", cfg.Timeout, cfg.MaxRetries),
	}
}

// HTTP exposes the transport for tuning retry intervals.
func (p *Provider) HTTP() *httpx.Client { return p.http }

func (p *Provider) Name() string   { return "ollama" }
func (p *Provider) Dimension() int { return p.dimension }

type embeddingRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
}

type embeddingResponse struct {
	Embedding []float64 `json:"embedding"`
}

func (p *Provider) Embed(ctx context.Context, text string) ([]float64, error) {
	var resp embeddingResponse
	req := embeddingRequest{Model: p.model, Prompt: text}
	if err := p.http.PostJSON(ctx, p.baseURL+"/api/embeddings", "embed", req, &resp); err != nil {
		return nil, err
	}
	if len(resp.Embedding) != p.dimension {
		return nil, domain.NewProviderError("ollama", "embed",
			fmt.Errorf("dimension mismatch: got %d, declared %d", len(resp.Embedding), p.dimension))
	}
	return similarity.Normalize(resp.Embedding), nil
}

// EmbedBatch calls Embed sequentially; the endpoint takes one prompt.
func (p *Provider) EmbedBatch(ctx context.Context, texts []string) ([][]float64, error) {
	out := make([][]float64, len(texts))
	for i, t := range texts {
		v, err := p.Embed(ctx, t)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func (p *Provider) EmbedQuery(ctx context.Context, text string) ([]float64, error) {
	return p.Embed(ctx, text)
}
