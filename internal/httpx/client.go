// Package httpx is the JSON-over-HTTP client shared by the embedding and
// generation backends. Transient failures are retried with exponential
// backoff; everything that reaches the caller is a *domain.ProviderError.
package httpx

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"

	"personalrag/internal/domain"
)

// Client posts JSON to a single backend.
type Client struct {
	Provider        string
	HTTP            *http.Client
	Headers         map[string]string
	MaxRetries      int
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

// New returns a client with the given per-request timeout and retry budget.
func New(provider string, timeout time.Duration, maxRetries int) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		Provider:        provider,
		HTTP:            &http.Client{Timeout: timeout},
		Headers:         map[string]string{},
		MaxRetries:      maxRetries,
		InitialInterval: 200 * time.Millisecond,
		MaxInterval:     5 * time.Second,
	}
}

// PostJSON sends in as JSON to url and decodes the response into out.
// Network errors, 429 and 5xx responses are retried; other statuses and
// undecodable bodies fail immediately.
func (c *Client) PostJSON(ctx context.Context, url, op string, in, out any) error {
	data, err := json.Marshal(in)
	if err != nil {
		return domain.NewProviderError(c.Provider, op, err)
	}

	operation := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
		if err != nil {
			return backoff.Permanent(err)
		}
		req.Header.Set("Content-Type", "application/json")
		for k, v := range c.Headers {
			req.Header.Set(k, v)
		}

		resp, err := c.HTTP.Do(req)
		if err != nil {
			return err
		}
		payload, readErr := io.ReadAll(resp.Body)
		_ = resp.Body.Close()

		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			return &domain.ProviderError{Provider: c.Provider, Op: op, StatusCode: resp.StatusCode, Err: fmt.Errorf("%s", resp.Status)}
		}
		if resp.StatusCode >= 300 {
			return backoff.Permanent(&domain.ProviderError{
				Provider:   c.Provider,
				Op:         op,
				StatusCode: resp.StatusCode,
				Err:        fmt.Errorf("%s: %s", resp.Status, truncate(payload, 200)),
			})
		}
		if readErr != nil {
			return readErr
		}
		if out == nil {
			return nil
		}
		if err := json.Unmarshal(payload, out); err != nil {
			return backoff.Permanent(fmt.Errorf("decode response: %w", err))
		}
		return nil
	}

	if err := backoff.Retry(operation, backoff.WithContext(c.backOff(), ctx)); err != nil {
		return domain.NewProviderError(c.Provider, op, err)
	}
	return nil
}

func (c *Client) backOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	if c.InitialInterval > 0 {
		b.InitialInterval = c.InitialInterval
	}
	if c.MaxInterval > 0 {
		b.MaxInterval = c.MaxInterval
	}
	b.MaxElapsedTime = 0
	retries := c.MaxRetries
	if retries < 0 {
		retries = 0
	}
	return backoff.WithMaxRetries(b, uint64(retries))
}

func truncate(b []byte, n int) string {
	if len(b) > n {
		return string(b[:n]) + "..."
	}
	return string(b)
}
