package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrConfiguration means no usable backend could be constructed. It is
	// fatal and never retried.
	ErrConfiguration = errors.New("configuration error")
	// ErrNoTierAvailable means every vector store tier rejected a write.
	ErrNoTierAvailable = errors.New("no vector store tier available")
	// ErrInvalidRequest marks caller input that cannot be processed.
	ErrInvalidRequest = errors.New("invalid request")
)

// ProviderError is a single failed call to a remote backend. Callers fall
// back to the next tier or backend instead of retrying the same one.
type ProviderError struct {
	Provider   string
	Op         string
	StatusCode int
	Err        error
}

// NewProviderError wraps err unless it is already a ProviderError.
func NewProviderError(provider, op string, err error) error {
	if err == nil {
		return nil
	}
	var pe *ProviderError
	if errors.As(err, &pe) {
		return err
	}
	return &ProviderError{Provider: provider, Op: op, Err: err}
}

func (e *ProviderError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s %s failed (status %d): %v", e.Provider, e.Op, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s %s failed: %v", e.Provider, e.Op, e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// IsProviderError reports whether err carries a ProviderError.
func IsProviderError(err error) bool {
	var pe *ProviderError
	return errors.As(err, &pe)
}
