package httpx

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"personalrag/internal/domain"
)

func newTestClient(maxRetries int) *Client {
	c := New("test", time.Second, maxRetries)
	c.InitialInterval = time.Millisecond
	c.MaxInterval = 2 * time.Millisecond
	return c
}

func TestPostJSON_RetriesServerErrors(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		assert.Equal(t, "Bearer k", r.Header.Get("Authorization"))
		var in map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&in))
		_ = json.NewEncoder(w).Encode(map[string]string{"echo": in["msg"]})
	}))
	defer srv.Close()

	c := newTestClient(5)
	c.Headers["Authorization"] = "Bearer k"
	var out struct{ Echo string }
	err := c.PostJSON(context.Background(), srv.URL, "echo", map[string]string{"msg": "hi"}, &out)
	require.NoError(t, err)
	assert.Equal(t, "hi", out.Echo)
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestPostJSON_ClientErrorIsPermanent(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		http.Error(w, "bad key", http.StatusUnauthorized)
	}))
	defer srv.Close()

	err := newTestClient(5).PostJSON(context.Background(), srv.URL, "echo", map[string]string{}, nil)
	require.Error(t, err)

	var pe *domain.ProviderError
	require.True(t, errors.As(err, &pe))
	assert.Equal(t, http.StatusUnauthorized, pe.StatusCode)
	assert.Equal(t, "test", pe.Provider)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestPostJSON_GivesUpAfterMaxRetries(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	err := newTestClient(2).PostJSON(context.Background(), srv.URL, "echo", map[string]string{}, nil)
	require.Error(t, err)
	assert.True(t, domain.IsProviderError(err))
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestPostJSON_UnreachableHost(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	err := newTestClient(1).PostJSON(context.Background(), url, "echo", map[string]string{}, nil)
	require.Error(t, err)
	assert.True(t, domain.IsProviderError(err))
}
