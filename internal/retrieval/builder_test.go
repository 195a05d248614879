package retrieval

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"personalrag/internal/domain"
	"personalrag/internal/embedding/local"
	"personalrag/internal/vectorstore/memory"
)

type failingEmbedder struct{ *local.Embedder }

func (failingEmbedder) EmbedQuery(context.Context, string) ([]float64, error) {
	return nil, domain.NewProviderError("remote", "embed_query", errors.New("unreachable"))
}

func seed(t *testing.T, store *memory.Storage, emb *local.Embedder, id string, cat domain.Category, outcome domain.Outcome, text string) {
	t.Helper()
	vec, err := emb.Embed(context.Background(), text)
	require.NoError(t, err)
	_, err = store.Add(context.Background(), domain.EmbeddedItem{
		ID:        id,
		Text:      text,
		Embedding: vec,
		Metadata:  domain.Metadata{Category: cat, Outcome: outcome, CreatedAt: time.Now()},
	})
	require.NoError(t, err)
}

func ids(matches []domain.Match) []string {
	out := make([]string, 0, len(matches))
	for _, m := range matches {
		out = append(out, m.Item.ID)
	}
	return out
}

func TestBuild_PreferWinnersScenario(t *testing.T) {
	emb := local.NewEmbedder(256)
	store := memory.NewStorage()
	seed(t, store, emb, "won", domain.CategoryEssay, domain.OutcomeWon, "Leading my robotics team to the state championship taught me resilience.")
	seed(t, store, emb, "lost", domain.CategoryEssay, domain.OutcomeLost, "Leading the robotics team through a losing season taught me humility.")
	seed(t, store, emb, "pending", domain.CategoryEssay, domain.OutcomePending, "My robotics team leadership grew out of late nights in the garage.")

	b := NewBuilder(emb, store, zaptest.NewLogger(t))
	rc, err := b.Build(context.Background(), "Describe a time you showed leadership on a team", Options{
		EssayCount:       2,
		PreferWinners:    true,
		FavorableOutcome: domain.OutcomeWon,
	})
	require.NoError(t, err)

	assert.LessOrEqual(t, len(rc.Essays), 2)
	require.NotEmpty(t, rc.Essays)
	assert.Equal(t, "won", rc.Essays[0].Item.ID)
	assert.Contains(t, rc.Themes, "leadership")
	assert.Contains(t, rc.Themes, "teamwork")
	assert.Empty(t, rc.Profiles)
	assert.NotNil(t, rc.Profiles)
}

func TestBuild_OutcomeBiasTopsUpWithoutDuplicates(t *testing.T) {
	emb := local.NewEmbedder(256)
	store := memory.NewStorage()
	seed(t, store, emb, "w1", domain.CategoryEssay, domain.OutcomeWon, "volunteer tutoring program for children")
	seed(t, store, emb, "l1", domain.CategoryEssay, domain.OutcomeLost, "volunteer tutoring at the library")
	seed(t, store, emb, "p1", domain.CategoryEssay, domain.OutcomePending, "tutoring math to neighbours")

	tests := map[string]struct {
		requested int
		expected  int
	}{
		"fewer-favourable-than-requested": {requested: 2, expected: 2},
		"more-requested-than-available":   {requested: 5, expected: 3},
		"exactly-one":                     {requested: 1, expected: 1},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			rc, err := NewBuilder(emb, store, nil).Build(context.Background(), "volunteer tutoring", Options{
				EssayCount:       tt.requested,
				PreferWinners:    true,
				FavorableOutcome: domain.OutcomeWon,
			})
			require.NoError(t, err)
			got := ids(rc.Essays)
			assert.Len(t, got, tt.expected)
			assert.Equal(t, "w1", got[0])

			seen := map[string]bool{}
			for _, id := range got {
				assert.False(t, seen[id], "duplicate id %s", id)
				seen[id] = true
			}
		})
	}
}

func TestBuild_DuplicateIDsAppearOnce(t *testing.T) {
	emb := local.NewEmbedder(256)
	store := memory.NewStorage()
	seed(t, store, emb, "w1", domain.CategoryEssay, domain.OutcomeWon, "volunteer tutoring program for children")
	seed(t, store, emb, "w1", domain.CategoryEssay, domain.OutcomeWon, "volunteer tutoring program for children")
	seed(t, store, emb, "l1", domain.CategoryEssay, domain.OutcomeLost, "volunteer tutoring at the library")

	tests := map[string]struct {
		prefer   bool
		expected []string
	}{
		"prefer-winners": {prefer: true, expected: []string{"w1", "l1"}},
		"unbiased":       {prefer: false},
	}
	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			rc, err := NewBuilder(emb, store, zaptest.NewLogger(t)).Build(context.Background(), "volunteer tutoring", Options{
				EssayCount:       3,
				PreferWinners:    tt.prefer,
				FavorableOutcome: domain.OutcomeWon,
			})
			require.NoError(t, err)
			got := ids(rc.Essays)
			if tt.expected != nil {
				assert.Equal(t, tt.expected, got)
				return
			}
			assert.ElementsMatch(t, []string{"w1", "l1"}, got)
		})
	}
}

func TestBuild_SearchesEachCategory(t *testing.T) {
	emb := local.NewEmbedder(128)
	store := memory.NewStorage()
	seed(t, store, emb, "e", domain.CategoryEssay, domain.OutcomeNone, "research on river pollution")
	seed(t, store, emb, "p", domain.CategoryProfile, domain.OutcomeNone, "lab assistant doing water quality research")
	seed(t, store, emb, "s", domain.CategoryStatement, domain.OutcomeNone, "I want to pursue environmental research")

	rc, err := NewBuilder(emb, store, nil).Build(context.Background(), "research experience", Options{
		EssayCount: 3, ProfileCount: 3, StatementCount: 3,
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"e"}, ids(rc.Essays))
	assert.Equal(t, []string{"p"}, ids(rc.Profiles))
	assert.Equal(t, []string{"s"}, ids(rc.Statements))
	assert.Equal(t, []string{"e", "p", "s"}, rc.SourceIDs())
	assert.False(t, rc.Empty())
}

func TestBuild_DegradesWithoutEmbedder(t *testing.T) {
	tests := map[string]struct {
		embedder domain.Embedder
	}{
		"nil-embedder":     {embedder: nil},
		"failing-embedder": {embedder: failingEmbedder{local.NewEmbedder(8)}},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			rc, err := NewBuilder(tt.embedder, memory.NewStorage(), zaptest.NewLogger(t)).
				Build(context.Background(), "Tell us about your career goals in business", Options{EssayCount: 3})
			require.NoError(t, err)
			assert.True(t, rc.Empty())
			assert.Empty(t, rc.SourceIDs())
			assert.Equal(t, []string{"career goals", "entrepreneurship"}, rc.Themes)
		})
	}
}

func TestBuild_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewBuilder(local.NewEmbedder(8), memory.NewStorage(), nil).Build(ctx, "q", Options{EssayCount: 1})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestDeriveThemes(t *testing.T) {
	tests := map[string]struct {
		text     string
		expected []string
	}{
		"none":       {text: "Why this university?", expected: []string{}},
		"adversity":  {text: "Describe a setback you had to overcome", expected: []string{"overcoming adversity"}},
		"case":       {text: "DIVERSITY statement", expected: []string{"diversity"}},
		"multiple":   {text: "How did volunteering shape your career?", expected: []string{"career goals", "community service"}},
		"innovation": {text: "Tell us about something you invented", expected: []string{"innovation"}},
	}
	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, tt.expected, DeriveThemes(tt.text))
		})
	}
}
