package resilience

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
)

// ErrAllFailed matches every [*AllFailedError] via errors.Is.
var ErrAllFailed = errors.New("all providers failed")

// Attempt records one failed try inside a [FallbackGroup].
type Attempt struct {
	Name string
	Err  error
}

// AllFailedError is returned when no entry of a [FallbackGroup] succeeded. An
// empty group produces an AllFailedError with no attempts.
type AllFailedError struct {
	Attempts []Attempt
}

func (e *AllFailedError) Error() string {
	if len(e.Attempts) == 0 {
		return ErrAllFailed.Error() + ": no providers configured"
	}
	parts := make([]string, len(e.Attempts))
	for i, a := range e.Attempts {
		parts[i] = a.Name + ": " + a.Err.Error()
	}
	return ErrAllFailed.Error() + ": " + strings.Join(parts, "; ")
}

// Is reports whether target is [ErrAllFailed].
func (e *AllFailedError) Is(target error) bool { return target == ErrAllFailed }

// Unwrap exposes every attempt error to errors.Is and errors.As.
func (e *AllFailedError) Unwrap() []error {
	errs := make([]error, len(e.Attempts))
	for i, a := range e.Attempts {
		errs[i] = a.Err
	}
	return errs
}

// Every reports whether there was at least one attempt and all of them
// failed with target.
func (e *AllFailedError) Every(target error) bool {
	if len(e.Attempts) == 0 {
		return false
	}
	for _, a := range e.Attempts {
		if !errors.Is(a.Err, target) {
			return false
		}
	}
	return true
}

// FallbackConfig configures the per-entry circuit breaker created for each
// entry of a [FallbackGroup].
type FallbackConfig struct {
	CircuitBreaker CircuitBreakerConfig
}

type fallbackEntry[T any] struct {
	name    string
	value   T
	breaker *CircuitBreaker
}

// FallbackGroup holds an ordered list of interchangeable values. Execution
// tries them in registration order and stops at the first success.
//
// Entries must be registered before the group is shared between goroutines.
type FallbackGroup[T any] struct {
	entries []fallbackEntry[T]
	cfg     FallbackConfig
}

// NewFallbackGroup creates an empty [FallbackGroup].
func NewFallbackGroup[T any](cfg FallbackConfig) *FallbackGroup[T] {
	return &FallbackGroup[T]{cfg: cfg}
}

// AddFallback appends an entry with its own circuit breaker.
func (fg *FallbackGroup[T]) AddFallback(name string, value T) {
	cbCfg := fg.cfg.CircuitBreaker
	cbCfg.Name = name
	fg.entries = append(fg.entries, fallbackEntry[T]{
		name:    name,
		value:   value,
		breaker: NewCircuitBreaker(cbCfg),
	})
}

// Len returns the number of entries.
func (fg *FallbackGroup[T]) Len() int { return len(fg.entries) }

// Names returns entry names in try order.
func (fg *FallbackGroup[T]) Names() []string {
	names := make([]string, len(fg.entries))
	for i, e := range fg.entries {
		names[i] = e.name
	}
	return names
}

// Values returns entry values in try order.
func (fg *FallbackGroup[T]) Values() []T {
	vals := make([]T, len(fg.entries))
	for i, e := range fg.entries {
		vals[i] = e.value
	}
	return vals
}

// ExecuteWithResult tries fn against each entry until one succeeds and returns
// its result. Open breakers are recorded as failed attempts with
// [ErrCircuitOpen]. When ctx ends the remaining entries are not tried. If
// nothing succeeds the error is an [*AllFailedError].
//
// It is a package-level function because methods cannot declare type parameters.
func ExecuteWithResult[T any, R any](ctx context.Context, fg *FallbackGroup[T], fn func(ctx context.Context, name string, v T) (R, error)) (R, error) {
	var zero R
	failed := &AllFailedError{}
	for i := range fg.entries {
		entry := &fg.entries[i]
		if err := ctx.Err(); err != nil {
			failed.Attempts = append(failed.Attempts, Attempt{Name: entry.name, Err: err})
			break
		}

		var result R
		err := entry.breaker.Execute(func() error {
			var innerErr error
			result, innerErr = fn(ctx, entry.name, entry.value)
			return innerErr
		})
		if err == nil {
			return result, nil
		}

		failed.Attempts = append(failed.Attempts, Attempt{Name: entry.name, Err: err})
		if errors.Is(err, ErrCircuitOpen) {
			slog.Debug("skipping provider (circuit open)", "provider", entry.name)
		} else {
			slog.Warn("provider failed, trying next", "provider", entry.name, "err", err)
		}
	}
	return zero, failed
}

// Execute is [ExecuteWithResult] for calls without a result value.
func (fg *FallbackGroup[T]) Execute(ctx context.Context, fn func(ctx context.Context, name string, v T) error) error {
	_, err := ExecuteWithResult(ctx, fg, func(ctx context.Context, name string, v T) (struct{}, error) {
		return struct{}{}, fn(ctx, name, v)
	})
	if err != nil {
		return fmt.Errorf("resilience: %w", err)
	}
	return nil
}
