package workflow

import (
	"fmt"
	"strings"

	"personalrag/internal/domain"
	"personalrag/internal/llm"
)

const systemPrompt = "You are a writing assistant helping an applicant draft personal essays and statements. " +
	"Write in the applicant's own voice, in the first person, using concrete details from their past work. " +
	"Reply with the essay text only."

// buildPrompt assembles the drafting request from the descriptor, profile
// and retrieved context.
func buildPrompt(s *GenerationState, summarizer domain.Summarizer, excerptSentences int) []llm.Message {
	var b strings.Builder
	fmt.Fprintf(&b, "Writing for: %s\n", s.Request.Descriptor)
	fmt.Fprintf(&b, "Question: %s\n", s.Request.Question)
	fmt.Fprintf(&b, "Length: approximately %d words.\n", s.TargetWords)

	if !s.Profile.Empty() {
		b.WriteString("\nAbout the applicant:\n")
		if s.Profile.Name != "" {
			fmt.Fprintf(&b, "Name: %s\n", s.Profile.Name)
		}
		if s.Profile.Summary != "" {
			fmt.Fprintf(&b, "%s\n", s.Profile.Summary)
		}
		for _, h := range s.Profile.Highlights {
			fmt.Fprintf(&b, "- %s\n", h)
		}
	}

	if rc := s.Context; rc != nil {
		writeMatches(&b, "Past essays (most relevant first)", rc.Essays, summarizer, excerptSentences)
		writeMatches(&b, "Experience and projects", rc.Profiles, summarizer, excerptSentences)
		writeMatches(&b, "Earlier statements", rc.Statements, summarizer, excerptSentences)
		if len(rc.Themes) > 0 {
			fmt.Fprintf(&b, "\nThemes to address: %s\n", strings.Join(rc.Themes, ", "))
		}
	}

	b.WriteString("\nSeparate paragraphs with a blank line.")
	return []llm.Message{
		{Role: "system", Content: systemPrompt},
		{Role: "user", Content: b.String()},
	}
}

func writeMatches(b *strings.Builder, heading string, matches []domain.Match, summarizer domain.Summarizer, sentences int) {
	if len(matches) == 0 {
		return
	}
	fmt.Fprintf(b, "\n%s:\n", heading)
	for _, m := range matches {
		text := m.Item.Text
		if summarizer != nil {
			if excerpt, err := summarizer.Summarize(text, sentences); err == nil && excerpt != "" {
				text = excerpt
			}
		}
		label := m.Item.Metadata.Title
		if label == "" {
			label = m.Item.ID
		}
		if m.Item.Metadata.Outcome != domain.OutcomeNone {
			label += " (" + string(m.Item.Metadata.Outcome) + ")"
		}
		fmt.Fprintf(b, "- %s: %s\n", label, text)
	}
}

// adjustPrompt asks for the current draft to be shrunk or expanded to target.
func adjustPrompt(s *GenerationState) []llm.Message {
	delta := s.Delta()
	verb := "shorten"
	if delta < 0 {
		verb = "expand"
	}
	instr := fmt.Sprintf(
		"Rewrite the draft so it is approximately %d words long (currently %d words; %s by about %d words). "+
			"Keep the voice, structure and key details. Reply with the rewritten essay only.\n\nDraft:\n%s",
		s.TargetWords, s.WordCount, verb, abs(delta), s.Draft)
	return []llm.Message{
		{Role: "system", Content: systemPrompt},
		{Role: "user", Content: instr},
	}
}
