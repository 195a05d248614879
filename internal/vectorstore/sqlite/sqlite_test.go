package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"personalrag/internal/domain"
)

func item(id string, cat domain.Category, outcome domain.Outcome, vec []float64, created time.Time) domain.EmbeddedItem {
	return domain.EmbeddedItem{
		ID:        id,
		Text:      "text of " + id,
		Embedding: vec,
		Metadata: domain.Metadata{
			Category:  cat,
			Outcome:   outcome,
			Title:     id,
			Themes:    []string{"leadership"},
			WordCount: 3,
			CreatedAt: created,
		},
	}
}

func openTemp(t *testing.T) (*Storage, string) {
	t.Helper()
	dir := t.TempDir()
	s, err := Open(context.Background(), dir)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s, dir
}

func TestStorage_AddSearchRoundTrip(t *testing.T) {
	s, _ := openTemp(t)
	ctx := context.Background()
	base := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)

	_, err := s.Add(ctx, item("won", domain.CategoryEssay, domain.OutcomeWon, []float64{1, 0, 0}, base))
	require.NoError(t, err)
	_, err = s.Add(ctx, item("lost", domain.CategoryEssay, domain.OutcomeLost, []float64{0.9, 0.1, 0}, base))
	require.NoError(t, err)
	_, err = s.Add(ctx, item("profile", domain.CategoryProfile, domain.OutcomeNone, []float64{1, 0, 0}, base))
	require.NoError(t, err)

	tests := map[string]struct {
		filter   domain.Filter
		limit    int
		expected []string
	}{
		"unrestricted":   {limit: 5, expected: []string{"won", "lost"}},
		"limit":          {limit: 1, expected: []string{"won"}},
		"outcome-filter": {limit: 5, filter: domain.Filter{Outcome: domain.OutcomeLost}, expected: []string{"lost"}},
		"threshold":      {limit: 5, filter: domain.Filter{MinScore: 0.999}, expected: []string{"won"}},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			matches, err := s.Search(ctx, domain.CategoryEssay, []float64{1, 0, 0}, tt.limit, tt.filter)
			require.NoError(t, err)
			var ids []string
			for _, m := range matches {
				ids = append(ids, m.Item.ID)
				assert.GreaterOrEqual(t, m.Score, 0.0)
				assert.LessOrEqual(t, m.Score, 1.0)
			}
			assert.Equal(t, tt.expected, ids)
		})
	}

	matches, err := s.Search(ctx, domain.CategoryEssay, []float64{1, 0, 0}, 1, domain.Filter{})
	require.NoError(t, err)
	require.Len(t, matches, 1)
	got := matches[0].Item
	assert.Equal(t, "text of won", got.Text)
	assert.Equal(t, domain.OutcomeWon, got.Metadata.Outcome)
	assert.Equal(t, []string{"leadership"}, got.Metadata.Themes)
	assert.True(t, base.Equal(got.Metadata.CreatedAt))
	assert.InDelta(t, 1.0, matches[0].Score, 1e-6)
}

func TestStorage_UpsertOnDuplicateID(t *testing.T) {
	s, _ := openTemp(t)
	ctx := context.Background()
	now := time.Now().UTC()

	_, err := s.Add(ctx, item("a", domain.CategoryStatement, domain.OutcomeNone, []float64{1, 0}, now))
	require.NoError(t, err)
	updated := item("a", domain.CategoryStatement, domain.OutcomeWon, []float64{0, 1}, now)
	_, err = s.Add(ctx, updated)
	require.NoError(t, err)

	stats, err := s.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats[domain.CategoryStatement])

	matches, err := s.Search(ctx, domain.CategoryStatement, []float64{0, 1}, 5, domain.Filter{Outcome: domain.OutcomeWon})
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.InDelta(t, 1.0, matches[0].Score, 1e-6)
}

func TestStorage_Delete(t *testing.T) {
	s, _ := openTemp(t)
	ctx := context.Background()
	now := time.Now().UTC()

	for _, id := range []string{"a", "b"} {
		_, err := s.Add(ctx, item(id, domain.CategoryProfile, domain.OutcomeNone, []float64{1, 0}, now))
		require.NoError(t, err)
	}
	require.NoError(t, s.Delete(ctx, domain.CategoryProfile, "a"))
	require.NoError(t, s.Delete(ctx, domain.CategoryProfile, "missing"))
	assert.ErrorIs(t, s.Delete(ctx, domain.Category("poems"), "a"), domain.ErrInvalidRequest)

	matches, err := s.Search(ctx, domain.CategoryProfile, []float64{1, 0}, 5, domain.Filter{})
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, "b", matches[0].Item.ID)
}

func TestStorage_TiesMostRecentFirst(t *testing.T) {
	s, _ := openTemp(t)
	ctx := context.Background()
	old := time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC)

	_, err := s.Add(ctx, item("old", domain.CategoryEssay, domain.OutcomeNone, []float64{1, 1}, old))
	require.NoError(t, err)
	_, err = s.Add(ctx, item("new", domain.CategoryEssay, domain.OutcomeNone, []float64{2, 2}, old.Add(time.Hour)))
	require.NoError(t, err)

	matches, err := s.Search(ctx, domain.CategoryEssay, []float64{1, 1}, 5, domain.Filter{})
	require.NoError(t, err)
	require.Len(t, matches, 2)
	assert.Equal(t, "new", matches[0].Item.ID)
}

func TestStorage_SurvivesReopen(t *testing.T) {
	s, dir := openTemp(t)
	ctx := context.Background()
	_, err := s.Add(ctx, item("kept", domain.CategoryProfile, domain.OutcomeNone, []float64{0.5, 0.5}, time.Now()))
	require.NoError(t, err)
	require.NoError(t, s.Close())

	reopened, err := Open(ctx, dir)
	require.NoError(t, err)
	defer reopened.Close()
	assert.Equal(t, filepath.Join(dir, FileName), reopened.Path())

	stats, err := reopened.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats[domain.CategoryProfile])

	require.NoError(t, reopened.Clear(ctx))
	stats, err = reopened.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, stats[domain.CategoryProfile])
}

func TestStorage_UnknownCategory(t *testing.T) {
	s, _ := openTemp(t)
	_, err := s.Search(context.Background(), domain.Category("drop table"), []float64{1}, 5, domain.Filter{})
	assert.True(t, errors.Is(err, domain.ErrInvalidRequest))
}

func TestEmbeddingCodec(t *testing.T) {
	in := []float64{0.25, -1.5, 3}
	assert.Equal(t, in, decodeEmbedding(encodeEmbedding(in)))
}
