// Package llm defines the Provider interface for Large Language Model backends.
//
// An LLM provider wraps a single remote or local model API (e.g., OpenAI,
// Gemini, or a local llama.cpp server) behind one uniform call: an instruction
// string goes in, the raw model payload comes out. The coaching pipeline never
// talks to an SDK directly; it only sees this interface.
//
// Adapters perform exactly one attempt per call. Retrying and failover belong
// to the caller (see internal/resilience and internal/coach).
//
// Implementors must be safe for concurrent use.
package llm

import (
	"context"
	"time"
)

// DefaultTimeout bounds a single provider call when the adapter is not
// configured with an explicit timeout.
const DefaultTimeout = 20 * time.Second

// Capabilities describes static properties of a configured adapter.
type Capabilities struct {
	// Name is the short provider label used in logs and metrics (e.g., "openai").
	Name string

	// Model is the model identifier sent to the backend.
	Model string

	// JSONMode reports whether the adapter asks the backend to emit a JSON
	// object natively. JSON-mode adapters are preferred when the active
	// contract is JSON because they remove most extraction ambiguity.
	JSONMode bool
}

// Provider is the abstraction over any LLM backend.
type Provider interface {
	// Invoke sends instruction to the model and returns the raw text payload.
	//
	// The returned error is always a *[ProviderError] when non-nil. A missing
	// credential, a timeout, a non-success status and an empty body are all
	// reported this way. A payload that is present but has the wrong shape is
	// NOT an error at this layer.
	Invoke(ctx context.Context, instruction string) (string, error)

	// Capabilities returns the adapter's static metadata.
	Capabilities() Capabilities
}
