package domain

import "context"

// Embedder converts free text into a numeric vector representation.
// Dimension is fixed for the lifetime of an implementation.
type Embedder interface {
	Name() string
	Dimension() int
	Embed(ctx context.Context, text string) ([]float64, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float64, error)
	// EmbedQuery embeds search input. Some backends use a different prompt
	// transform for queries than for stored documents.
	EmbedQuery(ctx context.Context, text string) ([]float64, error)
}

// VectorStore persists embedded items and answers nearest-neighbour queries.
type VectorStore interface {
	Add(ctx context.Context, item EmbeddedItem) (string, error)
	Search(ctx context.Context, category Category, vector []float64, limit int, filter Filter) ([]Match, error)
	Stats(ctx context.Context) (map[Category]int, error)
	Clear(ctx context.Context) error
}

// Chunker splits imported documents into sections suitable for retrieval indexing.
type Chunker interface {
	Split(doc Document) []Section
}

// Summarizer produces a brief extract of the provided text.
type Summarizer interface {
	Summarize(text string, maxSentences int) (string, error)
}
