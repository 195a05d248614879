package vectorstore

import (
	"context"
	"errors"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"personalrag/internal/domain"
	"personalrag/internal/logger"
)

// BreakerConfig configures the circuit breaker around a tier.
type BreakerConfig struct {
	FailureThreshold uint32
	OpenTimeout      time.Duration
}

// Breaker guards a tier with a circuit breaker. After FailureThreshold
// consecutive failures calls fail fast until OpenTimeout has passed.
type Breaker struct {
	tier Tier
	cb   *gobreaker.CircuitBreaker
}

// NewBreaker wraps tier.
func NewBreaker(tier Tier, cfg BreakerConfig, log *zap.Logger) *Breaker {
	log = logger.OrNop(log)
	if cfg.FailureThreshold == 0 {
		cfg.FailureThreshold = 3
	}
	if cfg.OpenTimeout == 0 {
		cfg.OpenTimeout = 30 * time.Second
	}
	settings := gobreaker.Settings{
		Name:        tier.Name(),
		MaxRequests: 1,
		Timeout:     cfg.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.FailureThreshold
		},
		// Caller mistakes and cancellations say nothing about tier health.
		IsSuccessful: func(err error) bool {
			return err == nil ||
				errors.Is(err, domain.ErrInvalidRequest) ||
				errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn("circuit breaker state change",
				zap.String("tier", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()))
		},
	}
	return &Breaker{tier: tier, cb: gobreaker.NewCircuitBreaker(settings)}
}

func (b *Breaker) Name() string  { return b.tier.Name() }
func (b *Breaker) Kind() Kind    { return b.tier.Kind() }
func (b *Breaker) Close() error  { return b.tier.Close() }
func (b *Breaker) Unwrap() Tier  { return b.tier }
func (b *Breaker) State() string { return b.cb.State().String() }

func (b *Breaker) Add(ctx context.Context, item domain.EmbeddedItem) (string, error) {
	out, err := b.cb.Execute(func() (interface{}, error) {
		return b.tier.Add(ctx, item)
	})
	if err != nil {
		return "", b.wrap("add", err)
	}
	return out.(string), nil
}

func (b *Breaker) Search(ctx context.Context, category domain.Category, vector []float64, limit int, filter domain.Filter) ([]domain.Match, error) {
	out, err := b.cb.Execute(func() (interface{}, error) {
		return b.tier.Search(ctx, category, vector, limit, filter)
	})
	if err != nil {
		return nil, b.wrap("search", err)
	}
	return out.([]domain.Match), nil
}

func (b *Breaker) Stats(ctx context.Context) (map[domain.Category]int, error) {
	out, err := b.cb.Execute(func() (interface{}, error) {
		return b.tier.Stats(ctx)
	})
	if err != nil {
		return nil, b.wrap("stats", err)
	}
	return out.(map[domain.Category]int), nil
}

func (b *Breaker) Delete(ctx context.Context, category domain.Category, id string) error {
	_, err := b.cb.Execute(func() (interface{}, error) {
		return nil, b.tier.Delete(ctx, category, id)
	})
	if err != nil {
		return b.wrap("delete", err)
	}
	return nil
}

func (b *Breaker) Clear(ctx context.Context) error {
	_, err := b.cb.Execute(func() (interface{}, error) {
		return nil, b.tier.Clear(ctx)
	})
	if err != nil {
		return b.wrap("clear", err)
	}
	return nil
}

func (b *Breaker) wrap(op string, err error) error {
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return domain.NewProviderError(b.tier.Name(), op, err)
	}
	return err
}
