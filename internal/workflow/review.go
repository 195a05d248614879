package workflow

import (
	"math"
	"regexp"
	"strings"
	"unicode"

	"personalrag/internal/domain"
)

// MaxQuality is the top of the quality scale.
const MaxQuality = 10.0

var (
	sentenceEndRe = regexp.MustCompile(`[.!?]+(?:\s+|$)`)
	paragraphRe   = regexp.MustCompile(`\n\s*\n`)
)

var clicheOpenings = []string{
	"ever since i was",
	"since i was young",
	"since i was a child",
	"from a young age",
	"as a child",
	"growing up",
	"i have always",
	"i've always",
	"webster's dictionary",
	"the dictionary defines",
	"throughout history",
	"in today's society",
	"in today's world",
	"since the dawn of time",
	"hello, my name is",
	"my name is",
}

// Signals records which quality heuristics a draft satisfied.
type Signals struct {
	LengthMet       bool
	ParagraphBreaks bool
	FreshOpening    bool
	HasDigit        bool
	SentenceVariety bool
	QuestionOverlap float64
}

// Review computes the heuristic quality of draft on a 0–10 scale. It is a
// sanity signal built from surface features, not a judgement of content.
func Review(draft, question string, target, tolerance int) (float64, Signals) {
	var sig Signals
	score := 0.0

	if domain.WordCount(draft) >= target-tolerance {
		sig.LengthMet = true
		score += 2
	}
	if paragraphRe.MatchString(strings.TrimSpace(draft)) {
		sig.ParagraphBreaks = true
		score += 2
	}
	if strings.TrimSpace(draft) != "" && !clichedOpening(draft) {
		sig.FreshOpening = true
		score += 2
	}
	if strings.IndexFunc(draft, unicode.IsDigit) >= 0 {
		sig.HasDigit = true
		score++
	}
	if sentenceVariety(draft) {
		sig.SentenceVariety = true
		score += 1.5
	}
	sig.QuestionOverlap = overlapOchiai(domain.TokenSet(question), draft)
	score += 1.5 * math.Min(1, 2*sig.QuestionOverlap)

	return math.Max(0, math.Min(MaxQuality, score)), sig
}

func clichedOpening(draft string) bool {
	opening := strings.ToLower(strings.TrimLeft(draft, " \t\n\"'“"))
	opening = strings.ReplaceAll(opening, "’", "'")
	for _, c := range clicheOpenings {
		if strings.HasPrefix(opening, c) {
			return true
		}
	}
	return false
}

// sentenceVariety requires at least three sentences whose lengths have a
// standard deviation of three words or more.
func sentenceVariety(draft string) bool {
	var lengths []float64
	for _, s := range sentenceEndRe.Split(draft, -1) {
		if n := domain.WordCount(s); n > 0 {
			lengths = append(lengths, float64(n))
		}
	}
	if len(lengths) < 3 {
		return false
	}
	mean := 0.0
	for _, l := range lengths {
		mean += l
	}
	mean /= float64(len(lengths))
	variance := 0.0
	for _, l := range lengths {
		variance += (l - mean) * (l - mean)
	}
	return math.Sqrt(variance/float64(len(lengths))) >= 3
}

// overlapOchiai is |A∩B| / sqrt(|A||B|) over the distinct tokens of the
// question (qset) and text.
func overlapOchiai(qset map[string]struct{}, text string) float64 {
	inter, distinct := domain.Overlap(qset, text)
	if len(qset) == 0 || distinct == 0 {
		return 0
	}
	return float64(inter) / math.Sqrt(float64(len(qset))*float64(distinct))
}
