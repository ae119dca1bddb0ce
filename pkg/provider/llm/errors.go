package llm

import (
	"errors"
	"fmt"
)

var (
	// ErrMissingCredential is the cause reported when an adapter has no API key.
	ErrMissingCredential = errors.New("llm: credential missing")

	// ErrEmptyResponse is the cause reported when the backend answered but
	// returned no usable content.
	ErrEmptyResponse = errors.New("llm: empty response")

	// ErrBadStatus is the cause reported when the backend returned a
	// non-success HTTP status.
	ErrBadStatus = errors.New("llm: non-success status")
)

// ProviderError wraps any transport, auth, quota or timeout failure of a
// single adapter call.
type ProviderError struct {
	// Provider is the adapter name from [Capabilities.Name].
	Provider string

	// Err is the underlying cause.
	Err error
}

// Error implements error.
func (e *ProviderError) Error() string {
	return fmt.Sprintf("%s: %v", e.Provider, e.Err)
}

// Unwrap returns the underlying cause so errors.Is/As see through it.
func (e *ProviderError) Unwrap() error { return e.Err }

// Fail builds a *ProviderError for provider. It is a convenience for adapters:
//
//	return "", llm.Fail("openai", fmt.Errorf("chat completion: %w", err))
func Fail(provider string, err error) *ProviderError {
	return &ProviderError{Provider: provider, Err: err}
}
