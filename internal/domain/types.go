package domain

import (
	"fmt"
	"strings"
	"time"
)

// Category names a source collection. Each category is stored in its own
// collection (or table) in every tier.
type Category string

const (
	CategoryEssay     Category = "essays"
	CategoryStatement Category = "statements"
	CategoryProfile   Category = "profiles"
)

// Categories returns all known categories in a stable order.
func Categories() []Category {
	return []Category{CategoryEssay, CategoryStatement, CategoryProfile}
}

// ParseCategory accepts singular or plural spellings.
func ParseCategory(s string) (Category, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "essay", "essays":
		return CategoryEssay, nil
	case "statement", "statements":
		return CategoryStatement, nil
	case "profile", "profiles", "project", "projects", "experience":
		return CategoryProfile, nil
	}
	return "", fmt.Errorf("%w: unknown category %q", ErrInvalidRequest, s)
}

// Outcome is the historical result attached to an artifact, e.g. whether an
// essay won the scholarship it was written for.
type Outcome string

const (
	OutcomeNone    Outcome = ""
	OutcomeWon     Outcome = "won"
	OutcomeLost    Outcome = "lost"
	OutcomePending Outcome = "pending"
)

// Metadata is the structured part of an embedded item's payload.
type Metadata struct {
	Category  Category  `json:"category"`
	Outcome   Outcome   `json:"outcome,omitempty"`
	Title     string    `json:"title,omitempty"`
	Themes    []string  `json:"themes,omitempty"`
	WordCount int       `json:"word_count"`
	SourceID  string    `json:"source_id,omitempty"`
	Section   int       `json:"section,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// EmbeddedItem is a stored artifact together with its embedding.
type EmbeddedItem struct {
	ID        string
	Text      string
	Metadata  Metadata
	Embedding []float64
}

// Match is a search hit. Score is in [0,1], 1 meaning identical direction.
type Match struct {
	Item  EmbeddedItem
	Score float64
}

// Filter narrows a search. Zero value means unrestricted.
type Filter struct {
	Outcome  Outcome
	MinScore float64
}

// Accepts reports whether an item with the given score passes the filter.
func (f Filter) Accepts(meta Metadata, score float64) bool {
	if f.Outcome != OutcomeNone && meta.Outcome != f.Outcome {
		return false
	}
	return score >= f.MinScore
}

// Document is the raw import payload handed over by an importer.
type Document struct {
	ID       string
	Title    string
	Text     string
	Category Category
	Outcome  Outcome
	Themes   []string
}

// Section is one retrievable slice of a Document.
type Section struct {
	Index int
	Text  string
}

// WordCount counts whitespace-delimited tokens.
func WordCount(text string) int {
	return len(strings.Fields(text))
}
