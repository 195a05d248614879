package workflow

import (
	"slices"
	"time"
)

// Artifact is the frozen output of a completed run. Its slices are private
// copies; callers must treat the value as read-only.
type Artifact struct {
	Draft       string
	WordCount   int
	TargetWords int
	Quality     float64
	SourceIDs   []string
	Metadata    ArtifactMetadata
}

type ArtifactMetadata struct {
	RunID       string
	Descriptor  string
	Question    string
	Backend     string
	Adjustments int
	// Delta is the word-count distance left unresolved.
	Delta     int
	Converged bool
	// ConvergenceExhausted is set when the adjustment budget ran out before
	// the draft came within tolerance.
	ConvergenceExhausted bool
	Themes               []string
	GeneratedAt          time.Time
	Elapsed              time.Duration
}

// Result is what a caller gets back from a run: COMPLETE with an Artifact,
// or ERROR with a message.
type Result struct {
	RunID       string
	State       State
	Artifact    *Artifact
	Err         string
	Progress    []string
	TargetWords int
	WordCount   int
	Adjustments int
	Quality     float64
}

// OK reports whether the run produced an artifact.
func (r *Result) OK() bool { return r.State == StateComplete && r.Artifact != nil }

func freeze(s *GenerationState, tolerance, maxAttempts int, started, now time.Time) *Artifact {
	delta := s.Delta()
	converged := abs(delta) <= tolerance
	var themes, sources []string
	if s.Context != nil {
		themes = slices.Clone(s.Context.Themes)
		sources = s.Context.SourceIDs()
	}
	return &Artifact{
		Draft:       s.Draft,
		WordCount:   s.WordCount,
		TargetWords: s.TargetWords,
		Quality:     s.Quality,
		SourceIDs:   sources,
		Metadata: ArtifactMetadata{
			RunID:                s.RunID,
			Descriptor:           s.Request.Descriptor,
			Question:             s.Request.Question,
			Backend:              s.Backend,
			Adjustments:          s.Adjustments,
			Delta:                delta,
			Converged:            converged,
			ConvergenceExhausted: !converged && s.Adjustments >= maxAttempts,
			Themes:               themes,
			GeneratedAt:          now,
			Elapsed:              now.Sub(started),
		},
	}
}

func result(s *GenerationState, a *Artifact) *Result {
	return &Result{
		RunID:       s.RunID,
		State:       s.State,
		Artifact:    a,
		Err:         s.Err,
		Progress:    slices.Clone(s.Progress),
		TargetWords: s.TargetWords,
		WordCount:   s.WordCount,
		Adjustments: s.Adjustments,
		Quality:     s.Quality,
	}
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
