package qdrant

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"personalrag/internal/domain"
	"personalrag/internal/similarity"
)

type fakePoint struct {
	ID      string          `json:"id"`
	Vector  []float64       `json:"vector"`
	Payload json.RawMessage `json:"payload"`
}

// fakeQdrant implements the handful of endpoints the client uses.
type fakeQdrant struct {
	mu          sync.Mutex
	collections map[string]map[string]fakePoint
	apiKeys     []string
}

func newFakeQdrant() *fakeQdrant {
	return &fakeQdrant{collections: map[string]map[string]fakePoint{}}
}

func (f *fakeQdrant) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.apiKeys = append(f.apiKeys, r.Header.Get("api-key"))

	parts := strings.Split(strings.Trim(r.URL.Path, "/"), "/")
	if len(parts) < 2 || parts[0] != "collections" {
		http.NotFound(w, r)
		return
	}
	name := parts[1]
	points, exists := f.collections[name]

	switch {
	case len(parts) == 2 && r.Method == http.MethodPut:
		if exists {
			w.WriteHeader(http.StatusConflict)
			return
		}
		f.collections[name] = map[string]fakePoint{}
		_, _ = w.Write([]byte(`{"result":true}`))
	case len(parts) == 2 && r.Method == http.MethodDelete:
		if !exists {
			http.NotFound(w, r)
			return
		}
		delete(f.collections, name)
		_, _ = w.Write([]byte(`{"result":true}`))
	case !exists:
		http.NotFound(w, r)
	case len(parts) == 3 && parts[2] == "points" && r.Method == http.MethodPut:
		var body struct {
			Points []fakePoint `json:"points"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		for _, p := range body.Points {
			points[p.ID] = p
		}
		_, _ = w.Write([]byte(`{"result":{"status":"completed"}}`))
	case len(parts) == 4 && parts[3] == "delete":
		var body struct {
			Points []string `json:"points"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		for _, id := range body.Points {
			delete(points, id)
		}
		_, _ = w.Write([]byte(`{"result":{"status":"completed"}}`))
	case len(parts) == 4 && parts[3] == "count":
		_ = json.NewEncoder(w).Encode(map[string]any{"result": map[string]any{"count": len(points)}})
	case len(parts) == 4 && parts[3] == "search":
		var req struct {
			Vector         []float64 `json:"vector"`
			Limit          int       `json:"limit"`
			ScoreThreshold float64   `json:"score_threshold"`
			Filter         *struct {
				Must []struct {
					Key   string `json:"key"`
					Match struct {
						Value string `json:"value"`
					} `json:"match"`
				} `json:"must"`
			} `json:"filter"`
		}
		_ = json.NewDecoder(r.Body).Decode(&req)
		type hit struct {
			Score   float64         `json:"score"`
			Payload json.RawMessage `json:"payload"`
		}
		var hits []hit
		for _, p := range points {
			if req.Filter != nil {
				var meta map[string]any
				_ = json.Unmarshal(p.Payload, &meta)
				if meta["outcome"] != req.Filter.Must[0].Match.Value {
					continue
				}
			}
			score := similarity.Cosine(p.Vector, req.Vector)
			if score < req.ScoreThreshold {
				continue
			}
			hits = append(hits, hit{Score: score, Payload: p.Payload})
		}
		sort.Slice(hits, func(i, j int) bool { return hits[i].Score > hits[j].Score })
		if len(hits) > req.Limit {
			hits = hits[:req.Limit]
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"result": hits})
	default:
		http.NotFound(w, r)
	}
}

func essay(id string, outcome domain.Outcome, vec []float64) domain.EmbeddedItem {
	return domain.EmbeddedItem{
		ID:        id,
		Text:      "essay " + id,
		Embedding: vec,
		Metadata: domain.Metadata{
			Category:  domain.CategoryEssay,
			Outcome:   outcome,
			Title:     id,
			CreatedAt: time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC),
		},
	}
}

func TestStorage_AddAndSearch(t *testing.T) {
	fake := newFakeQdrant()
	srv := httptest.NewServer(fake)
	defer srv.Close()

	s := NewStorage(Config{URL: srv.URL + "/", APIKey: "secret", CollectionPrefix: "test_"})
	ctx := context.Background()

	for _, it := range []domain.EmbeddedItem{
		essay("won-essay", domain.OutcomeWon, []float64{1, 0}),
		essay("lost-essay", domain.OutcomeLost, []float64{0.8, 0.6}),
	} {
		id, err := s.Add(ctx, it)
		require.NoError(t, err)
		assert.Equal(t, it.ID, id)
	}
	assert.Contains(t, fake.collections, "test_essays")

	tests := map[string]struct {
		filter   domain.Filter
		expected []string
	}{
		"unrestricted": {expected: []string{"won-essay", "lost-essay"}},
		"outcome":      {filter: domain.Filter{Outcome: domain.OutcomeLost}, expected: []string{"lost-essay"}},
		"threshold":    {filter: domain.Filter{MinScore: 0.9}, expected: []string{"won-essay"}},
	}
	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			matches, err := s.Search(ctx, domain.CategoryEssay, []float64{1, 0}, 5, tt.filter)
			require.NoError(t, err)
			var ids []string
			for _, m := range matches {
				ids = append(ids, m.Item.ID)
			}
			assert.Equal(t, tt.expected, ids)
		})
	}

	matches, err := s.Search(ctx, domain.CategoryEssay, []float64{1, 0}, 1, domain.Filter{})
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, "essay won-essay", matches[0].Item.Text)
	assert.Equal(t, domain.OutcomeWon, matches[0].Item.Metadata.Outcome)
	assert.InDelta(t, 1.0, matches[0].Score, 1e-9)

	for _, k := range fake.apiKeys {
		assert.Equal(t, "secret", k)
	}
}

func TestStorage_UpsertIsIdempotent(t *testing.T) {
	srv := httptest.NewServer(newFakeQdrant())
	defer srv.Close()
	s := NewStorage(Config{URL: srv.URL})
	ctx := context.Background()

	_, err := s.Add(ctx, essay("same", domain.OutcomeNone, []float64{1, 0}))
	require.NoError(t, err)

	// A fresh client sees 409 on collection creation and must carry on.
	s2 := NewStorage(Config{URL: srv.URL})
	_, err = s2.Add(ctx, essay("same", domain.OutcomeNone, []float64{1, 0}))
	require.NoError(t, err)

	stats, err := s2.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats[domain.CategoryEssay])
	assert.Equal(t, 0, stats[domain.CategoryProfile])
}

func TestStorage_MissingCollectionIsEmpty(t *testing.T) {
	srv := httptest.NewServer(newFakeQdrant())
	defer srv.Close()

	matches, err := NewStorage(Config{URL: srv.URL}).Search(context.Background(), domain.CategoryProfile, []float64{1}, 3, domain.Filter{})
	require.NoError(t, err)
	assert.Empty(t, matches)
}

func TestStorage_ClearDropsCollections(t *testing.T) {
	fake := newFakeQdrant()
	srv := httptest.NewServer(fake)
	defer srv.Close()
	s := NewStorage(Config{URL: srv.URL})
	ctx := context.Background()

	_, err := s.Add(ctx, essay("x", domain.OutcomeNone, []float64{1}))
	require.NoError(t, err)
	require.NoError(t, s.Clear(ctx))
	assert.Empty(t, fake.collections)

	// collections are recreated after a clear
	_, err = s.Add(ctx, essay("y", domain.OutcomeNone, []float64{1}))
	require.NoError(t, err)
	assert.Contains(t, fake.collections, "essays")
}

func TestStorage_Delete(t *testing.T) {
	srv := httptest.NewServer(newFakeQdrant())
	defer srv.Close()
	s := NewStorage(Config{URL: srv.URL})
	ctx := context.Background()

	require.NoError(t, s.Delete(ctx, domain.CategoryEssay, "never-created"))

	for _, id := range []string{"keep", "drop"} {
		_, err := s.Add(ctx, essay(id, domain.OutcomeNone, []float64{1, 0}))
		require.NoError(t, err)
	}
	require.NoError(t, s.Delete(ctx, domain.CategoryEssay, "drop"))

	matches, err := s.Search(ctx, domain.CategoryEssay, []float64{1, 0}, 5, domain.Filter{})
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, "keep", matches[0].Item.ID)
}

func TestStorage_UnreachableIsProviderError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	s := NewStorage(Config{URL: url, Timeout: time.Second})
	_, err := s.Search(context.Background(), domain.CategoryEssay, []float64{1}, 3, domain.Filter{})
	require.Error(t, err)
	assert.True(t, domain.IsProviderError(err))

	_, err = s.Add(context.Background(), essay("x", domain.OutcomeNone, []float64{1}))
	assert.True(t, domain.IsProviderError(err))
}

func TestPointID(t *testing.T) {
	u := "0b5e7c2e-7f43-4d4e-9a0b-1f1e4f1c2d3a"
	assert.Equal(t, u, pointID(u))
	assert.Equal(t, pointID("essay:1"), pointID("essay:1"))
	assert.NotEqual(t, pointID("essay:1"), pointID("essay:2"))
}
