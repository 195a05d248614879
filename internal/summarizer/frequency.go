// Package summarizer condenses retrieved artifacts into short excerpts for
// prompt assembly.
package summarizer

import (
	"math"
	"regexp"
	"sort"
	"strings"

	"personalrag/internal/domain"
)

var (
	tokenPattern    = regexp.MustCompile(`\p{L}+(?:['’]\p{L}+)*`)
	sentencePattern = regexp.MustCompile(`(?m)(?U)([^.!?]+[.!?])`)
)

// FrequencySummarizer ranks sentences by the normalised frequency of their
// non-stopword tokens and keeps the best ones in their original order.
type FrequencySummarizer struct {
	stopwords map[string]struct{}
	// maxWords caps the excerpt length; zero means no cap.
	maxWords int
}

var _ domain.Summarizer = (*FrequencySummarizer)(nil)

// NewFrequencySummarizer creates a summarizer whose excerpts never exceed
// maxWords words (0 disables the cap).
func NewFrequencySummarizer(maxWords int) *FrequencySummarizer {
	return &FrequencySummarizer{stopwords: defaultStopwords(), maxWords: maxWords}
}

type rankedSentence struct {
	idx    int
	text   string
	words  int
	score  float64
	tokens []string
}

// Summarize returns up to maxSentences of the highest-ranked sentences of
// text. Text without sentence punctuation is returned trimmed, cut to the
// word cap.
func (s *FrequencySummarizer) Summarize(text string, maxSentences int) (string, error) {
	if maxSentences <= 0 {
		maxSentences = 3
	}
	raw := sentencePattern.FindAllString(text, -1)
	if len(raw) == 0 {
		return s.cut(strings.TrimSpace(text)), nil
	}

	sentences := make([]rankedSentence, 0, len(raw))
	freq := map[string]float64{}
	for i, r := range raw {
		r = strings.TrimSpace(r)
		toks := tokenPattern.FindAllString(strings.ToLower(r), -1)
		for _, tok := range toks {
			if _, stop := s.stopwords[tok]; !stop {
				freq[tok]++
			}
		}
		sentences = append(sentences, rankedSentence{idx: i, text: r, words: domain.WordCount(r), tokens: toks})
	}

	maxF := 0.0
	for _, v := range freq {
		maxF = math.Max(maxF, v)
	}
	for i := range sentences {
		score := 0.0
		for _, tok := range sentences[i].tokens {
			if maxF > 0 {
				score += freq[tok] / maxF
			}
		}
		if l := float64(len(sentences[i].tokens)); l > 0 {
			score /= math.Sqrt(l)
		}
		sentences[i].score = score
	}
	sort.SliceStable(sentences, func(i, j int) bool { return sentences[i].score > sentences[j].score })

	var picked []rankedSentence
	words := 0
	for _, sent := range sentences {
		if len(picked) == maxSentences {
			break
		}
		if s.maxWords > 0 && words+sent.words > s.maxWords {
			continue
		}
		picked = append(picked, sent)
		words += sent.words
	}
	if len(picked) == 0 {
		// every sentence is longer than the cap
		return s.cut(sentences[0].text), nil
	}
	sort.Slice(picked, func(i, j int) bool { return picked[i].idx < picked[j].idx })

	out := make([]string, len(picked))
	for i, p := range picked {
		out[i] = p.text
	}
	return strings.Join(out, " "), nil
}

func (s *FrequencySummarizer) cut(text string) string {
	if s.maxWords <= 0 {
		return text
	}
	fields := strings.Fields(text)
	if len(fields) <= s.maxWords {
		return text
	}
	return strings.Join(fields[:s.maxWords], " ") + "…"
}

func defaultStopwords() map[string]struct{} {
	words := []string{
		"a", "an", "the", "and", "or", "but", "if", "then", "else", "for", "to", "of", "in", "on", "at", "by", "with", "as", "is", "are", "was", "were", "be", "been", "being", "it", "this", "that", "these", "those", "from", "up", "down", "over", "under", "again", "further", "than", "so", "such", "into", "about", "between", "through", "during", "before", "after", "above", "below", "out", "off", "own", "same", "too", "very", "can", "will", "just", "don", "should", "now",
		"i", "me", "my", "we", "our", "you", "your", "he", "she", "they", "them", "his", "her", "their",
	}
	m := make(map[string]struct{}, len(words))
	for _, w := range words {
		m[w] = struct{}{}
	}
	return m
}
