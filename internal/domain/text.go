package domain

import (
	"regexp"
	"strings"
)

var wordRe = regexp.MustCompile(`\p{L}+(?:['’]\p{L}+)*`)

// Words returns the lower-cased letter runs of text. Apostrophes inside a
// word are kept, so "don't" is one token.
func Words(text string) []string {
	return wordRe.FindAllString(strings.ToLower(text), -1)
}

// TokenSet returns the distinct Words of text.
func TokenSet(text string) map[string]struct{} {
	tokens := Words(text)
	m := make(map[string]struct{}, len(tokens))
	for _, t := range tokens {
		m[t] = struct{}{}
	}
	return m
}

// Overlap reports how many distinct words of text are in set, and how many
// distinct words text has.
func Overlap(set map[string]struct{}, text string) (shared, distinct int) {
	seen := TokenSet(text)
	for t := range seen {
		if _, ok := set[t]; ok {
			shared++
		}
	}
	return shared, len(seen)
}
