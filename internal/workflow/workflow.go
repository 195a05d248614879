package workflow

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"personalrag/internal/domain"
	"personalrag/internal/llm"
	"personalrag/internal/logger"
	"personalrag/internal/retrieval"
)

// Retriever builds the retrieval context for a query.
type Retriever interface {
	Build(ctx context.Context, query string, opts retrieval.Options) (*retrieval.Context, error)
}

type Config struct {
	// Tolerance is the accepted |word count - target|.
	Tolerance int
	// MaxAttempts bounds the number of adjustment rounds.
	MaxAttempts        int
	DefaultTargetWords int
	Retrieval          retrieval.Options
	// ExcerptSentences is the number of sentences kept per retrieved item.
	ExcerptSentences int
	// AdjustTemperature, when set, overrides the backend temperature for
	// shrink and expand requests.
	AdjustTemperature float64
	// Timeout bounds a single run; zero means none.
	Timeout time.Duration
}

func (c Config) withDefaults() Config {
	if c.Tolerance < 0 {
		c.Tolerance = 10
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 3
	}
	if c.DefaultTargetWords <= 0 {
		c.DefaultTargetWords = 500
	}
	if c.ExcerptSentences <= 0 {
		c.ExcerptSentences = 3
	}
	return c
}

// Workflow runs generation requests. It holds no per-run state and may be
// shared by concurrent runs.
type Workflow struct {
	cfg        Config
	retriever  Retriever
	generator  llm.Provider
	summarizer domain.Summarizer
	log        *zap.Logger
	now        func() time.Time
}

// New builds a workflow. retriever and summarizer may be nil.
func New(cfg Config, retriever Retriever, generator llm.Provider, summarizer domain.Summarizer, log *zap.Logger) *Workflow {
	return &Workflow{
		cfg:        cfg.withDefaults(),
		retriever:  retriever,
		generator:  generator,
		summarizer: summarizer,
		log:        logger.OrNop(log).Named("workflow"),
		now:        time.Now,
	}
}

// Run drives req to COMPLETE or ERROR. It never returns nil; failures are
// reported through the result's State and Err.
func (w *Workflow) Run(ctx context.Context, req Request) *Result {
	if w.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, w.cfg.Timeout)
		defer cancel()
	}
	started := w.now()
	s := &GenerationState{RunID: uuid.NewString(), Request: req, State: StateInit}
	log := w.log.With(zap.String("run_id", s.RunID))

	steps := []struct {
		state State
		run   func(context.Context, *GenerationState) error
	}{
		{StateGather, w.gather},
		{StateRAGSearch, w.search},
		{StateGenerate, w.generate},
		{StateReview, w.review},
	}

	if err := w.init(s); err != nil {
		s.fail(err.Error())
		log.Warn("request rejected", zap.Error(err))
		return result(s, nil)
	}
	for _, step := range steps {
		if err := ctx.Err(); err != nil {
			return w.abandon(s, log, err)
		}
		if err := s.transition(step.state); err != nil {
			s.fail(err.Error())
			return result(s, nil)
		}
		if err := step.run(ctx, s); err != nil {
			if ctx.Err() != nil {
				return w.abandon(s, log, ctx.Err())
			}
			s.fail(err.Error())
			log.Warn("generation failed", zap.String("state", string(step.state)), zap.Error(err))
			return result(s, nil)
		}
	}

	if err := w.adjust(ctx, s, log); err != nil {
		if ctx.Err() != nil {
			return w.abandon(s, log, ctx.Err())
		}
		s.fail(err.Error())
		return result(s, nil)
	}

	if err := ctx.Err(); err != nil {
		return w.abandon(s, log, err)
	}
	if err := s.transition(StateOutput); err != nil {
		s.fail(err.Error())
		return result(s, nil)
	}
	artifact := freeze(s, w.cfg.Tolerance, w.cfg.MaxAttempts, started, w.now())
	s.progress("output frozen: %d words (target %d), quality %.1f", s.WordCount, s.TargetWords, s.Quality)
	_ = s.transition(StateComplete)

	log.Info("generation complete",
		zap.Int("words", s.WordCount),
		zap.Int("target", s.TargetWords),
		zap.Int("adjustments", s.Adjustments),
		zap.Float64("quality", s.Quality),
		zap.Bool("exhausted", artifact.Metadata.ConvergenceExhausted))
	return result(s, artifact)
}

func (w *Workflow) abandon(s *GenerationState, log *zap.Logger, err error) *Result {
	s.fail("cancelled: " + err.Error())
	log.Warn("generation abandoned", zap.String("state", string(s.State)), zap.Error(err))
	return result(s, nil)
}

func (w *Workflow) init(s *GenerationState) error {
	switch {
	case s.Request.Descriptor == "":
		return fmt.Errorf("%w: missing target descriptor", domain.ErrInvalidRequest)
	case s.Request.Question == "":
		return fmt.Errorf("%w: missing question text", domain.ErrInvalidRequest)
	case w.generator == nil:
		return llm.ErrNoProvider
	}
	s.TargetWords = s.Request.targetWords(w.cfg.DefaultTargetWords)
	s.progress("target set to %d words", s.TargetWords)
	return nil
}

func (w *Workflow) gather(_ context.Context, s *GenerationState) error {
	if s.Request.Profile == nil {
		s.Profile = Profile{}
		s.progress("no profile supplied; continuing with an empty profile")
		return nil
	}
	s.Profile = *s.Request.Profile
	s.progress("profile gathered")
	return nil
}

func (w *Workflow) search(ctx context.Context, s *GenerationState) error {
	opts := w.cfg.Retrieval
	if s.Request.Retrieval != nil {
		opts = *s.Request.Retrieval
	}
	if w.retriever == nil {
		s.Context = retrieval.EmptyContext(s.Request.Question)
		s.progress("retrieval unavailable; continuing without past artifacts")
		return nil
	}
	rc, err := w.retriever.Build(ctx, s.Request.Question, opts)
	if err != nil {
		if ctx.Err() != nil {
			return err
		}
		w.log.Warn("retrieval failed; continuing with empty context", zap.Error(err))
		rc = retrieval.EmptyContext(s.Request.Question)
	}
	s.Context = rc
	s.progress("retrieved %d essays, %d profile sections, %d statements",
		len(rc.Essays), len(rc.Profiles), len(rc.Statements))
	return nil
}

func (w *Workflow) generate(ctx context.Context, s *GenerationState) error {
	draft, err := w.generator.Chat(ctx, buildPrompt(s, w.summarizer, w.cfg.ExcerptSentences))
	if err != nil {
		return fmt.Errorf("generation backends failed: %w", err)
	}
	s.Backend = w.generator.Name()
	s.setDraft(draft)
	s.progress("draft generated: %d words", s.WordCount)
	return nil
}

func (w *Workflow) review(_ context.Context, s *GenerationState) error {
	s.Quality, _ = Review(s.Draft, s.Request.Question, s.TargetWords, w.cfg.Tolerance)
	s.progress("reviewed: %+d words from target, quality %.1f", s.Delta(), s.Quality)
	return nil
}

// adjust runs the bounded shrink/expand loop. A failed adjustment keeps the
// current draft and ends the loop without an error.
func (w *Workflow) adjust(ctx context.Context, s *GenerationState, log *zap.Logger) error {
	var opts []llm.Option
	if w.cfg.AdjustTemperature > 0 {
		opts = append(opts, llm.WithTemperature(w.cfg.AdjustTemperature))
	}

	for abs(s.Delta()) > w.cfg.Tolerance && s.Adjustments < w.cfg.MaxAttempts {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := s.transition(StateAdjust); err != nil {
			return err
		}
		before := s.WordCount
		draft, err := w.generator.Chat(ctx, adjustPrompt(s), opts...)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			log.Warn("adjustment failed; keeping current draft", zap.Int("attempt", s.Adjustments+1), zap.Error(err))
			s.progress("adjustment %d failed; keeping the %d-word draft", s.Adjustments+1, s.WordCount)
			return nil
		}
		s.Adjustments++
		s.setDraft(draft)
		s.Quality, _ = Review(s.Draft, s.Request.Question, s.TargetWords, w.cfg.Tolerance)
		s.progress("adjustment %d/%d: %d → %d words (target %d)",
			s.Adjustments, w.cfg.MaxAttempts, before, s.WordCount, s.TargetWords)
	}

	if abs(s.Delta()) > w.cfg.Tolerance && s.Adjustments >= w.cfg.MaxAttempts {
		s.progress("convergence exhausted after %d adjustments: %+d words from target", s.Adjustments, s.Delta())
		log.Info("convergence exhausted", zap.Int("delta", s.Delta()), zap.Int("adjustments", s.Adjustments))
	}
	return nil
}
