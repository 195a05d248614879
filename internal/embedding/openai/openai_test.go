package openai

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"personalrag/internal/domain"
)

func newTestClient(t *testing.T, url string, dim, batch int) *Client {
	t.Setenv("PERSONALRAG_TEST_OPENAI_KEY", "sk-test")
	c, err := NewClient(Config{
		BaseURL:    url,
		APIKeyEnv:  "PERSONALRAG_TEST_OPENAI_KEY",
		Model:      "text-embedding-3-small",
		Dimension:  dim,
		BatchSize:  batch,
		Timeout:    time.Second,
		MaxRetries: 1,
	})
	require.NoError(t, err)
	c.HTTP().InitialInterval = time.Millisecond
	return c
}

func TestNewClient_MissingKey(t *testing.T) {
	_, err := NewClient(Config{APIKeyEnv: "PERSONALRAG_TEST_UNSET_KEY"})
	assert.True(t, errors.Is(err, domain.ErrConfiguration))
}

func TestEmbedBatch_SplitsIntoBatches(t *testing.T) {
	var requests []embeddingsRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/embeddings", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		var req embeddingsRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		requests = append(requests, req)

		resp := map[string]any{}
		data := []map[string]any{}
		for i := range req.Input {
			data = append(data, map[string]any{"index": i, "embedding": []float64{float64(len(requests)), float64(i), 1}})
		}
		resp["data"] = data
		_ = json.NewEncoder(w).Encode(resp)
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL, 3, 2)
	out, err := c.EmbedBatch(context.Background(), []string{"a", "b", "c"})
	require.NoError(t, err)

	require.Len(t, requests, 2)
	assert.Equal(t, []string{"a", "b"}, requests[0].Input)
	assert.Equal(t, 3, requests[0].Dimensions)
	require.Len(t, out, 3)
	assert.Equal(t, []float64{2, 0, 1}, out[2])
	for _, v := range out {
		assert.Len(t, v, c.Dimension())
	}
}

func TestEmbed_AcceptsOllamaShape(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"embedding":[0.1,0.2]}`))
	}))
	defer srv.Close()

	v, err := newTestClient(t, srv.URL, 2, 8).Embed(context.Background(), "hello")
	require.NoError(t, err)
	assert.Equal(t, []float64{0.1, 0.2}, v)
}

func TestEmbed_DimensionMismatchIsProviderError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"data":[{"index":0,"embedding":[0.1,0.2,0.3,0.4]}]}`))
	}))
	defer srv.Close()

	_, err := newTestClient(t, srv.URL, 2, 8).Embed(context.Background(), "hello")
	require.Error(t, err)
	assert.True(t, domain.IsProviderError(err))
}

func TestEmbed_ServerDown(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	_, err := newTestClient(t, srv.URL, 2, 8).Embed(context.Background(), "hello")
	var pe *domain.ProviderError
	require.True(t, errors.As(err, &pe))
	assert.Equal(t, http.StatusBadGateway, pe.StatusCode)
}
