package openai

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"personalrag/internal/domain"
	"personalrag/internal/httpx"
)

// DefaultDimension matches text-embedding-3-small.
const DefaultDimension = 1536

// Client is an OpenAI-compatible embeddings client implementing domain.Embedder.
type Client struct {
	baseURL   string
	model     string
	dimension int
	batchSize int
	http      *httpx.Client
}

// Config configures the OpenAI-compatible embeddings client.
type Config struct {
	BaseURL    string
	APIKeyEnv  string
	Model      string
	Dimension  int
	BatchSize  int
	Timeout    time.Duration
	MaxRetries int
}

// NewClient creates a new embeddings client using the provided configuration.
func NewClient(cfg Config) (*Client, error) {
	key := os.Getenv(cfg.APIKeyEnv)
	if key == "" {
		return nil, fmt.Errorf("%w: missing API key in env %s", domain.ErrConfiguration, cfg.APIKeyEnv)
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.openai.com/v1"
	}
	if cfg.Model == "" {
		cfg.Model = "text-embedding-3-small"
	}
	if cfg.Dimension <= 0 {
		cfg.Dimension = DefaultDimension
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 32
	}
	h := httpx.New("openai", cfg.Timeout, cfg.MaxRetries)
	h.Headers["Authorization"] = "Bearer " + key
	return &Client{
		baseURL:   strings.TrimRight(cfg.BaseURL, "/"),
		model:     cfg.Model,
		dimension: cfg.Dimension,
		batchSize: cfg.BatchSize,
		http:      h,
	}, nil
}

// HTTP exposes the transport for tuning retry intervals.
func (c *Client) HTTP() *httpx.Client { return c.http }

// Name returns the identifier of this embedder implementation.
func (c *Client) Name() string { return "openai" }

// Dimension returns the dimensionality of the produced embedding vectors.
func (c *Client) Dimension() int { return c.dimension }

// Embed returns an embedding vector for the given text.
func (c *Client) Embed(ctx context.Context, text string) ([]float64, error) {
	out, err := c.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return out[0], nil
}

// EmbedQuery is Embed; OpenAI models use the same transform for queries.
func (c *Client) EmbedQuery(ctx context.Context, text string) ([]float64, error) {
	return c.Embed(ctx, text)
}

type embeddingsRequest struct {
	Input      []string `json:"input"`
	Model      string   `json:"model"`
	Dimensions int      `json:"dimensions,omitempty"`
}

type embeddingsResponse struct {
	Data []struct {
		Index     int       `json:"index"`
		Embedding []float64 `json:"embedding"`
	} `json:"data"`
	// Ollama's OpenAI shim may answer with its native shape.
	Embedding  []float64   `json:"embedding"`
	Embeddings [][]float64 `json:"embeddings"`
}

// EmbedBatch embeds texts in chunks of the configured batch size.
func (c *Client) EmbedBatch(ctx context.Context, texts []string) ([][]float64, error) {
	out := make([][]float64, 0, len(texts))
	url := c.baseURL + "/embeddings"
	for start := 0; start < len(texts); start += c.batchSize {
		end := min(start+c.batchSize, len(texts))
		batch := texts[start:end]

		req := embeddingsRequest{Input: batch, Model: c.model}
		if strings.HasPrefix(c.model, "text-embedding-3") {
			req.Dimensions = c.dimension
		}
		var resp embeddingsResponse
		if err := c.http.PostJSON(ctx, url, "embed", req, &resp); err != nil {
			return nil, err
		}
		vectors, err := c.collect(resp, len(batch))
		if err != nil {
			return nil, err
		}
		out = append(out, vectors...)
	}
	return out, nil
}

func (c *Client) collect(resp embeddingsResponse, want int) ([][]float64, error) {
	vectors := make([][]float64, want)
	switch {
	case len(resp.Data) > 0:
		for i, d := range resp.Data {
			idx := d.Index
			if idx < 0 || idx >= want {
				idx = i
			}
			if idx < want {
				vectors[idx] = d.Embedding
			}
		}
	case len(resp.Embeddings) > 0:
		copy(vectors, resp.Embeddings)
	case len(resp.Embedding) > 0 && want == 1:
		vectors[0] = resp.Embedding
	}
	for i, v := range vectors {
		if len(v) == 0 {
			return nil, domain.NewProviderError("openai", "embed", fmt.Errorf("no embedding returned for input %d", i))
		}
		if len(v) != c.dimension {
			return nil, domain.NewProviderError("openai", "embed", fmt.Errorf("dimension mismatch: got %d, declared %d", len(v), c.dimension))
		}
	}
	return vectors, nil
}
