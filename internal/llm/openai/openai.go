// Package openai is a chat-completions client for OpenAI-compatible APIs.
package openai

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"personalrag/internal/domain"
	"personalrag/internal/httpx"
	"personalrag/internal/llm"
)

type Config struct {
	BaseURL     string
	APIKeyEnv   string
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

// New requires the API key named by cfg.APIKeyEnv to be set.
func New(cfg Config) (*Provider, error) {
	key := os.Getenv(cfg.APIKeyEnv)
	if key == "" {
		return nil, fmt.Errorf("%w: missing API key in env %s", domain.ErrConfiguration, cfg.APIKeyEnv)
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.openai.com/v1"
	}
	if cfg.Model == "" {
		cfg.Model = "gpt-4o-mini"
	}
	h := httpx.New("openai", cfg.Timeout, cfg.MaxRetries)
	h.Headers["Authorization"] = "Bearer " + key
	return &Provider{
		baseURL:  strings.TrimRight(cfg.BaseURL, "/"),
		model:    cfg.Model,
		defaults: llm.Options{Temperature: cfg.Temperature, MaxTokens: cfg.MaxTokens},
		http:     h,
	}, nil
}

// HTTP exposes the transport for tuning retry intervals.
func (p *Provider) HTTP() *httpx.Client { return p.http }

func (p *Provider) Name() string { return "openai" }

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature,omitempty"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message      chatMessage `json:"message"`
		FinishReason string      `json:"finish_reason"`
	} `json:"choices"`
}

func (p *Provider) Chat(ctx context.Context, history []llm.Message, opts ...llm.Option) (string, error) {
	o := llm.Apply(p.defaults, opts...)
	req := chatRequest{
		Model:       p.model,
		Temperature: o.Temperature,
		MaxTokens:   o.MaxTokens,
	}
	if o.Model != "" {
		req.Model = o.Model
	}
	for _, m := range history {
		req.Messages = append(req.Messages, chatMessage{Role: m.Role, Content: m.Content})
	}

	var resp chatResponse
	if err := p.http.PostJSON(ctx, p.baseURL+"/chat/completions", "chat", req, &resp); err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", domain.NewProviderError("openai", "chat", errors.New("no choices returned"))
	}
	content := strings.TrimSpace(resp.Choices[0].Message.Content)
	if content == "" {
		return "", domain.NewProviderError("openai", "chat", errors.New("empty completion"))
	}
	return content, nil
}

func (p *Provider) Generate(ctx context.Context, prompt string, opts ...llm.Option) (string, error) {
	return p.Chat(ctx, llm.User(prompt), opts...)
}
