// Package ollama is a client for Ollama's /api/chat endpoint.
package ollama

import (
	"context"
	"errors"
	"strings"
	"time"

	"personalrag/internal/domain"
	"personalrag/internal/httpx"
	"personalrag/internal/llm"
)

type Config struct {
	BaseURL     string
	Model       string
	Temperature float64
	MaxTokens   int
	Timeout     time.Duration
	MaxRetries  int
}

type Provider struct {
	baseURL  string
	model    string
	defaults llm.Options
	http     *httpx.Client
}

var _ llm.Provider = (*Provider)(nil)

func New(cfg Config) *Provider {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "http://localhost:11434"
	}
	if cfg.Model == "" {
		cfg.Model = "llama3.1"
	}
	if cfg.Temperature == 0 {
		cfg.Temperature = 0.7
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 120 * time.Second
	}
	return &Provider{
		baseURL:  strings.TrimRight(cfg.BaseURL, "/"),
		model:    cfg.Model,
		defaults: llm.Options{Temperature: cfg.Temperature, MaxTokens: cfg.MaxTokens},
		http:     httpx.New("ollama", cfg.Timeout, cfg.MaxRetries),
	}
}

// HTTP exposes the transport for tuning retry intervals.
func (p *Provider) HTTP() *httpx.Client { return p.http }

func (p *Provider) Name() string { return "ollama" }

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
	Stream   bool          `json:"stream"`
	Options  *chatOptions  `json:"options,omitempty"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatOptions struct {
	Temperature float64 `json:"temperature,omitempty"`
	NumPredict  int     `json:"num_predict,omitempty"`
}

type chatResponse struct {
	Model   string      `json:"model"`
	Message chatMessage `json:"message"`
	Done    bool        `json:"done"`
}

func (p *Provider) Chat(ctx context.Context, history []llm.Message, opts ...llm.Option) (string, error) {
	o := llm.Apply(p.defaults, opts...)
	req := chatRequest{
		Model:   p.model,
		Stream:  false,
		Options: &chatOptions{Temperature: o.Temperature, NumPredict: o.MaxTokens},
	}
	if o.Model != "" {
		req.Model = o.Model
	}
	for _, m := range history {
		role := m.Role
		if role == "model" {
			role = "assistant"
		}
		req.Messages = append(req.Messages, chatMessage{Role: role, Content: m.Content})
	}

	var resp chatResponse
	if err := p.http.PostJSON(ctx, p.baseURL+"/api/chat", "chat", req, &resp); err != nil {
		return "", err
	}
	content := strings.TrimSpace(resp.Message.Content)
	if content == "" {
		return "", domain.NewProviderError("ollama", "chat", errors.New("empty completion"))
	}
	return content, nil
}

func (p *Provider) Generate(ctx context.Context, prompt string, opts ...llm.Option) (string, error) {
	return p.Chat(ctx, llm.User(prompt), opts...)
}
