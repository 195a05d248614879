// Package render formats search hits, tier statistics and generation results
// for the terminal.
package render

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"personalrag/internal/domain"
	"personalrag/internal/vectorstore"
	"personalrag/internal/workflow"
)

var (
	headerStyle    = lipgloss.NewStyle().Bold(true)
	mutedStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	okStyle        = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	errStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("9")).Bold(true)
	highlightStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("11")).Bold(true)
	boxStyle       = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	sentenceRe     = regexp.MustCompile(`(?m)(?U)([^.!?]+[.!?])`)
)

// Matches renders search hits, highlighting the sentence of each hit that
// shares the most words with query.
func Matches(matches []domain.Match, query string) string {
	if len(matches) == 0 {
		return mutedStyle.Render("No results.")
	}
	var b strings.Builder
	for i, m := range matches {
		title := fmt.Sprintf("Result %d/%d  score=%.3f  %s", i+1, len(matches), m.Score, m.Item.ID)
		if m.Item.Metadata.Title != "" {
			title += "  " + m.Item.Metadata.Title
		}
		if m.Item.Metadata.Outcome != domain.OutcomeNone {
			title += " (" + string(m.Item.Metadata.Outcome) + ")"
		}
		body := highlightBestSentence(m.Item.Text, query)
		b.WriteString(boxStyle.Render(headerStyle.Render(title) + "\n\n" + body))
		b.WriteString("\n")
	}
	return b.String()
}

// Stats renders per-tier item counts in fallback order.
func Stats(stats []vectorstore.TierStats) string {
	var b strings.Builder
	b.WriteString(headerStyle.Render("Vector store tiers"))
	b.WriteString("\n")
	for _, s := range stats {
		line := fmt.Sprintf("%-8s %-16s", s.Name, s.Kind)
		if s.Err != nil {
			b.WriteString(line + errStyle.Render("unavailable: "+s.Err.Error()) + "\n")
			continue
		}
		cats := make([]string, 0, len(s.Counts))
		for c := range s.Counts {
			cats = append(cats, string(c))
		}
		sort.Strings(cats)
		parts := make([]string, 0, len(cats))
		for _, c := range cats {
			parts = append(parts, fmt.Sprintf("%s=%d", c, s.Counts[domain.Category(c)]))
		}
		if len(parts) == 0 {
			parts = append(parts, "empty")
		}
		b.WriteString(line + strings.Join(parts, " ") + "\n")
	}
	return b.String()
}

// Result renders a finished run. With verbose set the progress log is
// included.
func Result(r *workflow.Result, verbose bool) string {
	var b strings.Builder
	if verbose && len(r.Progress) > 0 {
		b.WriteString(mutedStyle.Render(strings.Join(r.Progress, "\n")))
		b.WriteString("\n\n")
	}
	if !r.OK() {
		b.WriteString(errStyle.Render(fmt.Sprintf("%s: %s", r.State, r.Err)))
		b.WriteString("\n")
		return b.String()
	}

	a := r.Artifact
	header := fmt.Sprintf("%s  %d/%d words  quality %.1f/%.0f",
		a.Metadata.Descriptor, a.WordCount, a.TargetWords, a.Quality, workflow.MaxQuality)
	b.WriteString(headerStyle.Render(header))
	b.WriteString("\n")
	b.WriteString(boxStyle.Render(a.Draft))
	b.WriteString("\n")

	status := okStyle.Render("converged")
	switch {
	case a.Metadata.ConvergenceExhausted:
		status = errStyle.Render(fmt.Sprintf("not converged after %d adjustments, %+d words off", a.Metadata.Adjustments, a.Metadata.Delta))
	case !a.Metadata.Converged:
		status = errStyle.Render(fmt.Sprintf("%+d words off", a.Metadata.Delta))
	}
	meta := []string{
		status,
		fmt.Sprintf("backend %s", a.Metadata.Backend),
		fmt.Sprintf("adjustments %d", a.Metadata.Adjustments),
		fmt.Sprintf("elapsed %s", a.Metadata.Elapsed.Round(time.Millisecond)),
	}
	if len(a.SourceIDs) > 0 {
		meta = append(meta, "sources "+strings.Join(a.SourceIDs, ", "))
	}
	if len(a.Metadata.Themes) > 0 {
		meta = append(meta, "themes "+strings.Join(a.Metadata.Themes, ", "))
	}
	b.WriteString(mutedStyle.Render(strings.Join(meta, "  ·  ")))
	b.WriteString("\n")
	return b.String()
}

func highlightBestSentence(text, query string) string {
	if strings.TrimSpace(text) == "" {
		return text
	}
	sentences := sentenceRe.FindAllString(text, -1)
	if len(sentences) == 0 {
		sentences = []string{strings.TrimSpace(text)}
	}
	qTokens := domain.TokenSet(query)
	if len(qTokens) == 0 {
		return strings.Join(trimAll(sentences), " ")
	}
	bestIdx := 0
	bestScore := -1
	for i, s := range sentences {
		score, _ := domain.Overlap(qTokens, s)
		if score > bestScore {
			bestScore = score
			bestIdx = i
		}
	}
	sentences = trimAll(sentences)
	sentences[bestIdx] = highlightStyle.Render(sentences[bestIdx])
	return strings.Join(sentences, " ")
}

func trimAll(ss []string) []string {
	out := make([]string, len(ss))
	for i, s := range ss {
		out[i] = strings.TrimSpace(s)
	}
	return out
}
