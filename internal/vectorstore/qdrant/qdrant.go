package qdrant

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"personalrag/internal/domain"
	"personalrag/internal/similarity"
	"personalrag/internal/vectorstore"
)

// pointNamespace derives stable point ids from item ids that are not UUIDs.
var pointNamespace = uuid.MustParse("6f1c1a4e-2f0b-4d55-9c3e-5b8f3a9e7d21")

// errNotFound marks a 404 from Qdrant, i.e. a collection that was never created.
var errNotFound = errors.New("qdrant: not found")

// Storage is a minimal REST client to Qdrant.
// Each category lives in its own collection, created with cosine distance on
// the first write.
type Storage struct {
	url    string
	apiKey string
	prefix string
	client *http.Client

	mu      sync.Mutex
	ensured map[domain.Category]bool
}

type Config struct {
	URL              string
	APIKey           string
	CollectionPrefix string
	Timeout          time.Duration
}

func NewStorage(cfg Config) *Storage {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 15 * time.Second
	}
	return &Storage{
		url:     strings.TrimRight(cfg.URL, "/"),
		apiKey:  cfg.APIKey,
		prefix:  cfg.CollectionPrefix,
		client:  &http.Client{Timeout: timeout},
		ensured: make(map[domain.Category]bool),
	}
}

func (s *Storage) Name() string           { return "qdrant" }
func (s *Storage) Kind() vectorstore.Kind { return vectorstore.Remote }
func (s *Storage) Close() error           { return nil }

func (s *Storage) collection(c domain.Category) string {
	return s.prefix + string(c)
}

// payload is what Qdrant stores next to each vector.
type payload struct {
	ItemID string `json:"item_id"`
	Text   string `json:"text"`
	domain.Metadata
}

func (s *Storage) ensureCollection(ctx context.Context, c domain.Category, dimension int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ensured[c] {
		return nil
	}
	body := map[string]any{
		"vectors": map[string]any{
			"size":     dimension,
			"distance": "Cosine",
		},
	}
	status, err := s.do(ctx, http.MethodPut, fmt.Sprintf("%s/collections/%s", s.url, s.collection(c)), body, nil)
	// 409 means the collection already exists.
	if err != nil && status != http.StatusConflict {
		return err
	}
	s.ensured[c] = true
	return nil
}

// Add upserts the item as a point. Non-UUID ids are mapped to a stable UUID
// and the original id is kept in the payload.
func (s *Storage) Add(ctx context.Context, item domain.EmbeddedItem) (string, error) {
	if item.ID == "" {
		return "", errors.New("qdrant: item id is required")
	}
	if len(item.Embedding) == 0 {
		return "", errors.New("qdrant: item has no embedding")
	}
	c := item.Metadata.Category
	if err := s.ensureCollection(ctx, c, len(item.Embedding)); err != nil {
		return "", err
	}
	point := map[string]any{
		"id":      pointID(item.ID),
		"vector":  item.Embedding,
		"payload": payload{ItemID: item.ID, Text: item.Text, Metadata: item.Metadata},
	}
	body := map[string]any{"points": []any{point}}
	if _, err := s.do(ctx, http.MethodPut, fmt.Sprintf("%s/collections/%s/points?wait=true", s.url, s.collection(c)), body, nil); err != nil {
		return "", err
	}
	return item.ID, nil
}

func (s *Storage) Search(ctx context.Context, category domain.Category, vector []float64, limit int, filter domain.Filter) ([]domain.Match, error) {
	req := map[string]any{
		"vector":       vector,
		"limit":        vectorstore.Limit(limit),
		"with_payload": true,
	}
	if filter.MinScore > 0 {
		req["score_threshold"] = filter.MinScore
	}
	if filter.Outcome != domain.OutcomeNone {
		req["filter"] = map[string]any{
			"must": []any{
				map[string]any{"key": "outcome", "match": map[string]any{"value": string(filter.Outcome)}},
			},
		}
	}
	var resp struct {
		Result []struct {
			Score   float64 `json:"score"`
			Payload payload `json:"payload"`
		} `json:"result"`
	}
	_, err := s.do(ctx, http.MethodPost, fmt.Sprintf("%s/collections/%s/points/search", s.url, s.collection(category)), req, &resp)
	if errors.Is(err, errNotFound) {
		return []domain.Match{}, nil
	}
	if err != nil {
		return nil, err
	}
	matches := make([]domain.Match, 0, len(resp.Result))
	for _, r := range resp.Result {
		score := similarity.FromCosine(r.Score)
		if !filter.Accepts(r.Payload.Metadata, score) {
			continue
		}
		matches = append(matches, domain.Match{
			Item: domain.EmbeddedItem{
				ID:       r.Payload.ItemID,
				Text:     r.Payload.Text,
				Metadata: r.Payload.Metadata,
			},
			Score: score,
		})
	}
	return similarity.Truncate(matches, vectorstore.Limit(limit)), nil
}

func (s *Storage) Stats(ctx context.Context) (map[domain.Category]int, error) {
	counts := make(map[domain.Category]int, len(domain.Categories()))
	for _, c := range domain.Categories() {
		var resp struct {
			Result struct {
				Count int `json:"count"`
			} `json:"result"`
		}
		_, err := s.do(ctx, http.MethodPost, fmt.Sprintf("%s/collections/%s/points/count", s.url, s.collection(c)), map[string]any{"exact": true}, &resp)
		if errors.Is(err, errNotFound) {
			counts[c] = 0
			continue
		}
		if err != nil {
			return nil, err
		}
		counts[c] = resp.Result.Count
	}
	return counts, nil
}

// Delete removes the point for id. A missing collection is not an error.
func (s *Storage) Delete(ctx context.Context, category domain.Category, id string) error {
	body := map[string]any{"points": []string{pointID(id)}}
	_, err := s.do(ctx, http.MethodPost, fmt.Sprintf("%s/collections/%s/points/delete?wait=true", s.url, s.collection(category)), body, nil)
	if err != nil && !errors.Is(err, errNotFound) {
		return err
	}
	return nil
}

// Clear drops every category collection.
func (s *Storage) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range domain.Categories() {
		_, err := s.do(ctx, http.MethodDelete, fmt.Sprintf("%s/collections/%s", s.url, s.collection(c)), nil, nil)
		if err != nil && !errors.Is(err, errNotFound) {
			return err
		}
		delete(s.ensured, c)
	}
	return nil
}

func (s *Storage) do(ctx context.Context, method, url string, body, out any) (int, error) {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return 0, err
		}
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	if s.apiKey != "" {
		req.Header.Set("api-key", s.apiKey)
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return 0, domain.NewProviderError("qdrant", method, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusNotFound {
		return resp.StatusCode, errNotFound
	}
	if resp.StatusCode >= 300 {
		return resp.StatusCode, &domain.ProviderError{
			Provider:   "qdrant",
			Op:         method + " " + url,
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("%s", resp.Status),
		}
	}
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return resp.StatusCode, domain.NewProviderError("qdrant", "decode", err)
		}
	}
	return resp.StatusCode, nil
}

func pointID(id string) string {
	if u, err := uuid.Parse(id); err == nil {
		return u.String()
	}
	return uuid.NewSHA1(pointNamespace, []byte(id)).String()
}
