package chunker

import (
	"regexp"
	"strings"

	"personalrag/internal/domain"
)

// SectionChunker splits documents into paragraph-aligned sections of at most
// maxWords words. Paragraphs longer than the budget are split on sentence
// boundaries; a single sentence longer than the budget becomes its own
// section.
type SectionChunker struct {
	maxWords      int
	paragraphSep  *regexp.Regexp
	sentenceSplit *regexp.Regexp
}

var _ domain.Chunker = (*SectionChunker)(nil)

func NewSectionChunker(maxWords int) *SectionChunker {
	if maxWords <= 0 {
		maxWords = 250
	}
	return &SectionChunker{
		maxWords:      maxWords,
		paragraphSep:  regexp.MustCompile(`\n\s*\n`),
		sentenceSplit: regexp.MustCompile(`(?m)(?U)([^.!?]+[.!?])`),
	}
}

// Split returns the sections of doc in reading order. Text within the budget
// is returned as a single section; blank text yields none.
func (c *SectionChunker) Split(doc domain.Document) []domain.Section {
	text := strings.TrimSpace(doc.Text)
	if text == "" {
		return nil
	}
	if domain.WordCount(text) <= c.maxWords {
		return []domain.Section{{Index: 0, Text: text}}
	}

	var units []string
	for _, para := range c.paragraphSep.Split(text, -1) {
		para = strings.TrimSpace(para)
		if para == "" {
			continue
		}
		if domain.WordCount(para) <= c.maxWords {
			units = append(units, para)
			continue
		}
		units = append(units, c.sentences(para)...)
	}

	var sections []domain.Section
	var buf []string
	words := 0
	flush := func() {
		if len(buf) == 0 {
			return
		}
		sections = append(sections, domain.Section{Index: len(sections), Text: strings.Join(buf, "\n\n")})
		buf, words = nil, 0
	}
	for _, u := range units {
		n := domain.WordCount(u)
		if words > 0 && words+n > c.maxWords {
			flush()
		}
		buf = append(buf, u)
		words += n
	}
	flush()
	return sections
}

// sentences groups the sentences of para into runs that fit the budget.
func (c *SectionChunker) sentences(para string) []string {
	found := c.sentenceSplit.FindAllString(para, -1)
	// trailing text without terminal punctuation
	rest := para
	for _, s := range found {
		if i := strings.Index(rest, s); i >= 0 {
			rest = rest[i+len(s):]
		}
	}
	if tail := strings.TrimSpace(rest); tail != "" {
		found = append(found, tail)
	}

	var out []string
	var cur []string
	words := 0
	for _, s := range found {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		n := domain.WordCount(s)
		if words > 0 && words+n > c.maxWords {
			out = append(out, strings.Join(cur, " "))
			cur, words = nil, 0
		}
		cur = append(cur, s)
		words += n
	}
	if len(cur) > 0 {
		out = append(out, strings.Join(cur, " "))
	}
	return out
}
