package vectorstore

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"personalrag/internal/domain"
	"personalrag/internal/logger"
)

const mirrorTimeout = 30 * time.Second

// FallbackStore composes tiers in order of preference.
//
// Writes go to the first tier that accepts them. When that tier is remote the
// item is also copied to the first local persistent tier in the background;
// the copy never fails or delays the write. Reads are answered by the first
// tier that does not return an error, even when its answer is empty. With no
// working tier, Search returns an empty result and Add returns
// domain.ErrNoTierAvailable.
type FallbackStore struct {
	tiers   []Tier
	log     *zap.Logger
	mirrors sync.WaitGroup
}

var _ domain.VectorStore = (*FallbackStore)(nil)

// NewFallbackStore builds a chain from tiers, tried in the given order.
func NewFallbackStore(log *zap.Logger, tiers ...Tier) *FallbackStore {
	return &FallbackStore{tiers: tiers, log: logger.OrNop(log).Named("vectorstore")}
}

// Tiers returns the chain in order.
func (f *FallbackStore) Tiers() []Tier { return f.tiers }

// Add stores item. Missing ids are assigned here so every tier stores the
// same id.
func (f *FallbackStore) Add(ctx context.Context, item domain.EmbeddedItem) (string, error) {
	if len(item.Embedding) == 0 {
		return "", fmt.Errorf("%w: item has no embedding", domain.ErrInvalidRequest)
	}
	item = Prepare(item)

	var errs []error
	for i, t := range f.tiers {
		id, err := t.Add(ctx, item)
		if err != nil {
			f.log.Warn("tier rejected write",
				zap.String("tier", t.Name()),
				zap.String("id", item.ID),
				zap.Error(err))
			errs = append(errs, fmt.Errorf("%s: %w", t.Name(), err))
			continue
		}
		if t.Kind() == Remote {
			f.mirror(ctx, item, f.tiers[i+1:])
		}
		f.log.Debug("item stored", zap.String("tier", t.Name()), zap.String("id", id))
		return id, nil
	}
	if len(errs) == 0 {
		return "", domain.ErrNoTierAvailable
	}
	return "", fmt.Errorf("%w: %w", domain.ErrNoTierAvailable, errors.Join(errs...))
}

// mirror copies item to the first local persistent tier among rest.
func (f *FallbackStore) mirror(ctx context.Context, item domain.EmbeddedItem, rest []Tier) {
	var target Tier
	for _, t := range rest {
		if t.Kind() == LocalPersistent {
			target = t
			break
		}
	}
	if target == nil {
		return
	}
	f.mirrors.Add(1)
	go func() {
		defer f.mirrors.Done()
		mctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), mirrorTimeout)
		defer cancel()
		if _, err := target.Add(mctx, item); err != nil {
			f.log.Warn("mirror write failed",
				zap.String("tier", target.Name()),
				zap.String("id", item.ID),
				zap.Error(err))
		}
	}()
}

// WaitMirrors blocks until background mirror writes have finished.
func (f *FallbackStore) WaitMirrors() { f.mirrors.Wait() }

// Search queries tiers in order and returns the first answer.
func (f *FallbackStore) Search(ctx context.Context, category domain.Category, vector []float64, limit int, filter domain.Filter) ([]domain.Match, error) {
	for _, t := range f.tiers {
		matches, err := t.Search(ctx, category, vector, limit, filter)
		if err != nil {
			f.log.Warn("tier unavailable for search",
				zap.String("tier", t.Name()),
				zap.String("category", string(category)),
				zap.Error(err))
			continue
		}
		if matches == nil {
			matches = []domain.Match{}
		}
		return matches, nil
	}
	f.log.Warn("no tier answered search; returning empty result", zap.String("category", string(category)))
	return []domain.Match{}, nil
}

// Stats returns the counts of the first tier that answers.
func (f *FallbackStore) Stats(ctx context.Context) (map[domain.Category]int, error) {
	for _, t := range f.tiers {
		counts, err := t.Stats(ctx)
		if err == nil {
			return counts, nil
		}
	}
	return nil, domain.ErrNoTierAvailable
}

// TierStats reports counts per tier.
type TierStats struct {
	Name   string
	Kind   Kind
	Counts map[domain.Category]int
	Err    error
}

// AllStats collects counts from every tier.
func (f *FallbackStore) AllStats(ctx context.Context) []TierStats {
	out := make([]TierStats, 0, len(f.tiers))
	for _, t := range f.tiers {
		counts, err := t.Stats(ctx)
		out = append(out, TierStats{Name: t.Name(), Kind: t.Kind(), Counts: counts, Err: err})
	}
	return out
}

// Delete removes id from every tier, including mirror copies, continuing past
// failures.
func (f *FallbackStore) Delete(ctx context.Context, category domain.Category, id string) error {
	f.WaitMirrors()
	var errs []error
	for _, t := range f.tiers {
		if err := t.Delete(ctx, category, id); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", t.Name(), err))
		}
	}
	return errors.Join(errs...)
}

// Clear empties every tier, continuing past failures.
func (f *FallbackStore) Clear(ctx context.Context) error {
	f.WaitMirrors()
	var errs []error
	for _, t := range f.tiers {
		if err := t.Clear(ctx); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", t.Name(), err))
		}
	}
	return errors.Join(errs...)
}

// Close waits for pending mirrors and closes every tier.
func (f *FallbackStore) Close() error {
	f.WaitMirrors()
	var errs []error
	for _, t := range f.tiers {
		if err := t.Close(); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", t.Name(), err))
		}
	}
	return errors.Join(errs...)
}
