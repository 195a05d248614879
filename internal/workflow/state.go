// Package workflow drives one generation request through a fixed state
// graph: gather inputs, retrieve similar artifacts, draft, review and adjust
// the draft toward a target length, then freeze it into an Artifact.
package workflow

import (
	"fmt"

	"personalrag/internal/domain"
	"personalrag/internal/retrieval"
)

type State string

const (
	StateInit      State = "INIT"
	StateGather    State = "GATHER"
	StateRAGSearch State = "RAG_SEARCH"
	StateGenerate  State = "GENERATE"
	StateReview    State = "REVIEW"
	StateAdjust    State = "ADJUST"
	StateOutput    State = "OUTPUT"
	StateComplete  State = "COMPLETE"
	StateError     State = "ERROR"
)

// transitions lists the allowed successors of each state. ERROR is reachable
// from every non-terminal state and is added by CanTransition.
var transitions = map[State][]State{
	StateInit:      {StateGather},
	StateGather:    {StateRAGSearch},
	StateRAGSearch: {StateGenerate},
	StateGenerate:  {StateReview},
	StateReview:    {StateAdjust, StateOutput},
	StateAdjust:    {StateAdjust, StateOutput},
	StateOutput:    {StateComplete},
}

// Terminal reports whether no transition leaves s.
func (s State) Terminal() bool { return s == StateComplete || s == StateError }

// CanTransition reports whether from → to is an edge of the graph.
func CanTransition(from, to State) bool {
	if from.Terminal() {
		return false
	}
	if to == StateError {
		return true
	}
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Profile is the applicant context gathered for a request.
type Profile struct {
	Name       string
	Summary    string
	Highlights []string
}

// Empty reports whether the profile carries no information.
func (p Profile) Empty() bool {
	return p.Name == "" && p.Summary == "" && len(p.Highlights) == 0
}

// GenerationState is the mutable record of one run. It is owned by a single
// goroutine for the lifetime of the run.
type GenerationState struct {
	RunID       string
	Request     Request
	TargetWords int
	Profile     Profile
	Context     *retrieval.Context
	Draft       string
	WordCount   int
	Adjustments int
	Quality     float64
	Progress    []string
	State       State
	Err         string
	Backend     string
}

// Delta is the signed distance of the current draft from the target.
func (s *GenerationState) Delta() int { return s.WordCount - s.TargetWords }

func (s *GenerationState) setDraft(text string) {
	s.Draft = text
	s.WordCount = domain.WordCount(text)
}

func (s *GenerationState) progress(format string, args ...any) {
	s.Progress = append(s.Progress, fmt.Sprintf(format, args...))
}

// transition moves to next, refusing edges outside the graph.
func (s *GenerationState) transition(next State) error {
	if !CanTransition(s.State, next) {
		return fmt.Errorf("illegal transition %s -> %s", s.State, next)
	}
	s.State = next
	return nil
}

func (s *GenerationState) fail(msg string) {
	s.Err = msg
	s.progress("failed: %s", msg)
	// ERROR is reachable from every non-terminal state.
	_ = s.transition(StateError)
}
