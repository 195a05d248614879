// Package retrieval builds the request-scoped context of similar past
// artifacts that a generation run draws on.
package retrieval

import (
	"context"

	"go.uber.org/zap"

	"personalrag/internal/domain"
	"personalrag/internal/logger"
)

// Options controls how much is retrieved and how it is biased.
type Options struct {
	EssayCount     int
	ProfileCount   int
	StatementCount int
	MinScore       float64
	// PreferWinners restricts the first pass over BiasCategory to items
	// tagged FavorableOutcome.
	PreferWinners    bool
	FavorableOutcome domain.Outcome
	BiasCategory     domain.Category
}

// Context holds one ranked list per category and the themes of the query.
// Each list is sorted by descending score and is never nil.
type Context struct {
	Query      string
	Essays     []domain.Match
	Profiles   []domain.Match
	Statements []domain.Match
	Themes     []string
}

// Empty reports whether no items were retrieved.
func (c *Context) Empty() bool {
	return len(c.Essays) == 0 && len(c.Profiles) == 0 && len(c.Statements) == 0
}

// SourceIDs lists the ids of every retrieved item, essays first.
func (c *Context) SourceIDs() []string {
	ids := make([]string, 0, len(c.Essays)+len(c.Profiles)+len(c.Statements))
	for _, list := range [][]domain.Match{c.Essays, c.Profiles, c.Statements} {
		for _, m := range list {
			ids = append(ids, m.Item.ID)
		}
	}
	return ids
}

// EmptyContext returns a context with no matches and themes derived from query.
func EmptyContext(query string) *Context {
	return &Context{
		Query:      query,
		Essays:     []domain.Match{},
		Profiles:   []domain.Match{},
		Statements: []domain.Match{},
		Themes:     DeriveThemes(query),
	}
}

// Builder runs the searches. A nil embedder is allowed and yields empty
// contexts.
type Builder struct {
	embedder domain.Embedder
	store    domain.VectorStore
	log      *zap.Logger
}

func NewBuilder(embedder domain.Embedder, store domain.VectorStore, log *zap.Logger) *Builder {
	return &Builder{embedder: embedder, store: store, log: logger.OrNop(log).Named("retrieval")}
}

// Build embeds query once and searches each category. Embedding or storage
// failures degrade to empty lists; the only error returned is the context's.
func (b *Builder) Build(ctx context.Context, query string, opts Options) (*Context, error) {
	out := EmptyContext(query)
	if b.embedder == nil || b.store == nil {
		b.log.Info("no embedder configured; retrieval skipped")
		return out, nil
	}

	vec, err := b.embedder.EmbedQuery(ctx, query)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		b.log.Warn("query embedding failed; continuing without retrieval", zap.Error(err))
		return out, nil
	}

	bias := opts.BiasCategory
	if bias == "" {
		bias = domain.CategoryEssay
	}
	wants := map[domain.Category]int{
		domain.CategoryEssay:     opts.EssayCount,
		domain.CategoryProfile:   opts.ProfileCount,
		domain.CategoryStatement: opts.StatementCount,
	}
	lists := map[domain.Category]*[]domain.Match{
		domain.CategoryEssay:     &out.Essays,
		domain.CategoryProfile:   &out.Profiles,
		domain.CategoryStatement: &out.Statements,
	}

	for _, c := range domain.Categories() {
		n := wants[c]
		if n <= 0 {
			continue
		}
		var matches []domain.Match
		if c == bias && opts.PreferWinners && opts.FavorableOutcome != domain.OutcomeNone {
			matches = b.biased(ctx, c, vec, n, opts)
		} else {
			matches = b.search(ctx, c, vec, n, domain.Filter{MinScore: opts.MinScore})
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		*lists[c] = matches
	}

	b.log.Debug("retrieval context built",
		zap.Int("essays", len(out.Essays)),
		zap.Int("profiles", len(out.Profiles)),
		zap.Int("statements", len(out.Statements)),
		zap.Strings("themes", out.Themes))
	return out, nil
}

// biased returns favourable-outcome items first, topped up with unrestricted
// results that are not already present, up to n.
func (b *Builder) biased(ctx context.Context, c domain.Category, vec []float64, n int, opts Options) []domain.Match {
	favoured := b.search(ctx, c, vec, n, domain.Filter{Outcome: opts.FavorableOutcome, MinScore: opts.MinScore})
	if len(favoured) >= n {
		return favoured[:n]
	}
	seen := make(map[string]struct{}, n)
	for _, m := range favoured {
		seen[m.Item.ID] = struct{}{}
	}
	for _, m := range b.search(ctx, c, vec, n, domain.Filter{MinScore: opts.MinScore}) {
		if len(favoured) >= n {
			break
		}
		if _, dup := seen[m.Item.ID]; dup {
			continue
		}
		seen[m.Item.ID] = struct{}{}
		favoured = append(favoured, m)
	}
	return favoured
}

// search returns up to n matches with distinct ids. A tier may hold several
// copies of one id, so the limit grows until n distinct ids are found or the
// store runs out.
func (b *Builder) search(ctx context.Context, c domain.Category, vec []float64, n int, f domain.Filter) []domain.Match {
	if n <= 0 {
		return []domain.Match{}
	}
	for limit := n; ; limit *= 2 {
		matches, err := b.store.Search(ctx, c, vec, limit, f)
		if err != nil {
			b.log.Warn("search failed", zap.String("category", string(c)), zap.Error(err))
			return []domain.Match{}
		}
		out := dedupe(matches)
		if len(out) >= n {
			return out[:n]
		}
		if len(matches) < limit {
			return out
		}
	}
}

// dedupe keeps the first, best scoring, match of every id.
func dedupe(matches []domain.Match) []domain.Match {
	seen := make(map[string]struct{}, len(matches))
	out := make([]domain.Match, 0, len(matches))
	for _, m := range matches {
		if _, dup := seen[m.Item.ID]; dup {
			continue
		}
		seen[m.Item.ID] = struct{}{}
		out = append(out, m)
	}
	return out
}
