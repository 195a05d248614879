package workflow

import (
	"regexp"
	"strconv"

	"personalrag/internal/retrieval"
)

// Request is the query boundary of the engine.
type Request struct {
	// Descriptor names what is being written for, e.g. a scholarship or job.
	Descriptor string
	// Question is the prompt the draft must answer.
	Question string
	// TargetWords overrides the target parsed from Question.
	TargetWords int
	Profile     *Profile
	// Retrieval overrides the workflow's default retrieval options.
	Retrieval *retrieval.Options
}

const maxTargetWords = 10000

var targetPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)word\s*(?:limit|count|max(?:imum)?)\s*(?:of|is|:|=)?\s*(\d{2,5})`),
	regexp.MustCompile(`(?i)(\d{2,5})\s*(?:-|\s)\s*words?\b`),
	regexp.MustCompile(`(?i)(\d{2,5})\s*words?\b`),
}

// ParseTargetWords extracts a word target such as "500 words", "250-word" or
// "word limit: 300" from text.
func ParseTargetWords(text string) (int, bool) {
	for _, re := range targetPatterns {
		m := re.FindStringSubmatch(text)
		if m == nil {
			continue
		}
		n, err := strconv.Atoi(m[1])
		if err != nil || n <= 0 || n > maxTargetWords {
			continue
		}
		return n, true
	}
	return 0, false
}

// targetWords resolves the target: explicit value, then the question, then
// the descriptor, then def.
func (r Request) targetWords(def int) int {
	if r.TargetWords > 0 {
		return r.TargetWords
	}
	if n, ok := ParseTargetWords(r.Question); ok {
		return n
	}
	if n, ok := ParseTargetWords(r.Descriptor); ok {
		return n
	}
	return def
}
