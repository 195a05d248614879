package llm

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"personalrag/internal/domain"
	"personalrag/internal/logger"
)

// ErrNoProvider is returned when neither a primary nor a fallback backend is
// configured.
var ErrNoProvider = fmt.Errorf("%w: no generation backend configured", domain.ErrConfiguration)

// Fallback tries the primary backend and, if that fails, the fallback once.
// Either may be nil.
type Fallback struct {
	primary  Provider
	fallback Provider
	log      *zap.Logger
}

var _ Provider = (*Fallback)(nil)

func NewFallback(primary, fallback Provider, log *zap.Logger) *Fallback {
	return &Fallback{primary: primary, fallback: fallback, log: logger.OrNop(log).Named("llm")}
}

func (f *Fallback) Name() string {
	switch {
	case f.primary != nil && f.fallback != nil:
		return f.primary.Name() + "+" + f.fallback.Name()
	case f.primary != nil:
		return f.primary.Name()
	case f.fallback != nil:
		return f.fallback.Name()
	}
	return "none"
}

func (f *Fallback) Chat(ctx context.Context, history []Message, opts ...Option) (string, error) {
	var errs []error
	for _, p := range []Provider{f.primary, f.fallback} {
		if p == nil {
			continue
		}
		out, err := p.Chat(ctx, history, opts...)
		if err == nil {
			return out, nil
		}
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		f.log.Warn("generation backend failed", zap.String("backend", p.Name()), zap.Error(err))
		errs = append(errs, err)
	}
	if len(errs) == 0 {
		return "", ErrNoProvider
	}
	return "", errors.Join(errs...)
}

func (f *Fallback) Generate(ctx context.Context, prompt string, opts ...Option) (string, error) {
	return f.Chat(ctx, User(prompt), opts...)
}
