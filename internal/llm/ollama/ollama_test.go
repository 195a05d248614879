package ollama

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"personalrag/internal/domain"
	"personalrag/internal/llm"
)

func TestChat(t *testing.T) {
	var got chatRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/chat", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`{"model":"llama3.1","message":{"role":"assistant","content":"Hello there."},"done":true}`))
	}))
	defer srv.Close()

	p := New(Config{BaseURL: srv.URL + "/", Timeout: time.Second})
	out, err := p.Chat(context.Background(), []llm.Message{
		{Role: "system", Content: "be brief"},
		{Role: "model", Content: "ok"},
		{Role: "user", Content: "hi"},
	}, llm.WithModel("mistral"), llm.WithMaxTokens(32))
	require.NoError(t, err)

	assert.Equal(t, "Hello there.", out)
	assert.Equal(t, "mistral", got.Model)
	assert.False(t, got.Stream)
	require.NotNil(t, got.Options)
	assert.Equal(t, 0.7, got.Options.Temperature)
	assert.Equal(t, 32, got.Options.NumPredict)
	require.Len(t, got.Messages, 3)
	assert.Equal(t, "assistant", got.Messages[1].Role)
}

func TestChat_EmptyReplyIsProviderError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"message":{"role":"assistant","content":""},"done":true}`))
	}))
	defer srv.Close()

	_, err := New(Config{BaseURL: srv.URL}).Generate(context.Background(), "x")
	require.Error(t, err)
	assert.True(t, domain.IsProviderError(err))
}

func TestChat_Unreachable(t *testing.T) {
	p := New(Config{BaseURL: "http://127.0.0.1:1", Timeout: 200 * time.Millisecond})
	p.HTTP().MaxRetries = 0
	_, err := p.Generate(context.Background(), "x")
	require.Error(t, err)
	assert.True(t, domain.IsProviderError(err))
}
