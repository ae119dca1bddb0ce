package resilience

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/MrWong99/genautapi/pkg/provider/llm"
)

// AttemptHook observes every provider call made through a fallback wrapper.
// err is nil on success.
type AttemptHook func(ctx context.Context, name string, elapsed time.Duration, err error)

// LLMFallback implements [llm.Provider] with failover across several LLM
// backends. A missing credential does not count against a backend's breaker,
// so an unconfigured provider keeps reporting itself as such.
//
// On total failure Invoke returns an [*AllFailedError] listing every attempt.
type LLMFallback struct {
	group *FallbackGroup[llm.Provider]
	hook  AttemptHook
}

var _ llm.Provider = (*LLMFallback)(nil)

// NewLLMFallback creates an empty [LLMFallback]. hook may be nil.
func NewLLMFallback(cfg FallbackConfig, hook AttemptHook) *LLMFallback {
	if cfg.CircuitBreaker.IsFailure == nil {
		cfg.CircuitBreaker.IsFailure = func(err error) bool {
			return defaultIsFailure(err) && !errors.Is(err, llm.ErrMissingCredential)
		}
	}
	return &LLMFallback{group: NewFallbackGroup[llm.Provider](cfg), hook: hook}
}

// AddFallback registers an LLM provider. Providers are tried in the order added.
func (f *LLMFallback) AddFallback(name string, p llm.Provider) {
	f.group.AddFallback(name, p)
}

// Len returns the number of registered providers.
func (f *LLMFallback) Len() int { return f.group.Len() }

// Names returns the registered provider names in try order.
func (f *LLMFallback) Names() []string { return f.group.Names() }

// Invoke sends the instruction to the first provider that answers.
func (f *LLMFallback) Invoke(ctx context.Context, instruction string) (string, error) {
	out, _, err := f.InvokeNamed(ctx, instruction)
	return out, err
}

// InvokeNamed is Invoke that also reports which provider answered.
func (f *LLMFallback) InvokeNamed(ctx context.Context, instruction string) (payload, provider string, err error) {
	type answer struct{ payload, name string }
	a, err := ExecuteWithResult(ctx, f.group, func(ctx context.Context, name string, p llm.Provider) (answer, error) {
		start := time.Now()
		out, err := p.Invoke(ctx, instruction)
		if f.hook != nil {
			f.hook(ctx, name, time.Since(start), err)
		}
		return answer{out, name}, err
	})
	return a.payload, a.name, err
}

// Capabilities describes the group: JSONMode holds only when every member
// supports it.
func (f *LLMFallback) Capabilities() llm.Capabilities {
	members := f.group.Values()
	caps := llm.Capabilities{Name: "fallback", JSONMode: len(members) > 0}
	models := make([]string, 0, len(members))
	for _, p := range members {
		c := p.Capabilities()
		models = append(models, c.Model)
		caps.JSONMode = caps.JSONMode && c.JSONMode
	}
	caps.Model = strings.Join(models, ",")
	return caps
}
