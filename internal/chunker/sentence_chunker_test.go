package chunker

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"personalrag/internal/domain"
)

func words(n int, w string) string {
	return strings.TrimSpace(strings.Repeat(w+" ", n))
}

func TestSectionChunker_Split(t *testing.T) {
	tests := map[string]struct {
		text     string
		maxWords int
		expected []int // word counts per section
	}{
		"blank": {
			text:     "   \n ",
			maxWords: 10,
			expected: nil,
		},
		"fits": {
			text:     "Short statement about my goals.",
			maxWords: 10,
			expected: []int{5},
		},
		"paragraphs-packed": {
			text:     words(4, "alpha") + ".\n\n" + words(4, "beta") + ".\n\n" + words(4, "gamma") + ".",
			maxWords: 8,
			expected: []int{8, 4},
		},
		"long-paragraph-split-on-sentences": {
			text:     words(5, "one") + ". " + words(5, "two") + ". " + words(5, "three") + ".",
			maxWords: 10,
			expected: []int{10, 5},
		},
		"unterminated-tail-kept": {
			text:     words(6, "first") + ". " + words(6, "tail"),
			maxWords: 8,
			expected: []int{6, 6},
		},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			sections := NewSectionChunker(tt.maxWords).Split(domain.Document{Text: tt.text})
			require.Len(t, sections, len(tt.expected))
			for i, s := range sections {
				assert.Equal(t, i, s.Index)
				assert.Equal(t, tt.expected[i], domain.WordCount(s.Text), "section %d: %q", i, s.Text)
			}
		})
	}
}

func TestSectionChunker_PreservesAllWords(t *testing.T) {
	text := "I grew up in a small town. My father ran the hardware store.\n\n" +
		"Every summer I worked the register. I learned to listen to customers. " +
		"That habit shaped how I approach engineering problems today."
	sections := NewSectionChunker(12).Split(domain.Document{Text: text})
	total := 0
	for _, s := range sections {
		assert.LessOrEqual(t, domain.WordCount(s.Text), 12)
		total += domain.WordCount(s.Text)
	}
	assert.Equal(t, domain.WordCount(text), total)
}

func TestNewSectionChunker_DefaultBudget(t *testing.T) {
	assert.Equal(t, 250, NewSectionChunker(0).maxWords)
}
