package coach

import (
	"context"
	"log/slog"
	"slices"

	"github.com/MrWong99/genautapi/internal/resilience"
	"github.com/MrWong99/genautapi/pkg/provider/llm"
)

// Adapter is a named provider as configured by the operator.
type Adapter struct {
	Name     string
	Provider llm.Provider
}

// OrderAdapters returns adapters in try order. Under the JSON contract,
// adapters with native JSON mode move ahead of text-only ones; relative
// order is otherwise preserved.
func OrderAdapters(adapters []Adapter, contract Contract) []Adapter {
	out := slices.Clone(adapters)
	if contract != ContractJSON {
		return out
	}
	slices.SortStableFunc(out, func(a, b Adapter) int {
		aj, bj := a.Provider.Capabilities().JSONMode, b.Provider.Capabilities().JSONMode
		switch {
		case aj == bj:
			return 0
		case aj:
			return -1
		default:
			return 1
		}
	})
	return out
}

// Outcome is what one chain run produced.
type Outcome struct {
	Payload   string
	Provider  string
	Simulated bool
	Reason    string
}

// namedInvoker is implemented by fallback groups that can report the winner.
type namedInvoker interface {
	InvokeNamed(ctx context.Context, instruction string) (payload, provider string, err error)
}

// Chain invokes the configured providers and turns total failure into a
// simulated payload. It satisfies llm.Provider and never returns an error.
type Chain struct {
	provider llm.Provider
	contract Contract
	log      *slog.Logger
}

var _ llm.Provider = (*Chain)(nil)

// NewChain wraps p, which is usually a [*resilience.LLMFallback]. A nil p
// behaves like a chain with no configured providers.
func NewChain(p llm.Provider, contract Contract) *Chain {
	return &Chain{provider: p, contract: contract, log: slog.Default()}
}

// NewFallbackChain orders adapters for contract and places them behind a
// circuit-breaking fallback group. hook may be nil.
func NewFallbackChain(adapters []Adapter, contract Contract, cfg resilience.FallbackConfig, hook resilience.AttemptHook) *Chain {
	fb := resilience.NewLLMFallback(cfg, hook)
	for _, a := range OrderAdapters(adapters, contract) {
		fb.AddFallback(a.Name, a.Provider)
	}
	return NewChain(fb, contract)
}

// Contract returns the contract the chain simulates for.
func (c *Chain) Contract() Contract { return c.contract }

// Run tries the providers once. It always returns a payload.
func (c *Chain) Run(ctx context.Context, instruction string) Outcome {
	var err error
	if c.provider != nil {
		var payload, name string
		if ni, ok := c.provider.(namedInvoker); ok {
			payload, name, err = ni.InvokeNamed(ctx, instruction)
		} else {
			name = c.provider.Capabilities().Name
			payload, err = c.provider.Invoke(ctx, instruction)
		}
		if err == nil {
			return Outcome{Payload: payload, Provider: name}
		}
	} else {
		err = &resilience.AllFailedError{}
	}

	reason, first := classify(err)
	c.log.WarnContext(ctx, "coach: all providers failed, using simulated reply",
		"reason", reason, "contract", c.contract.String(), "err", err)
	return Outcome{
		Payload:   simulate(c.contract, reason, first),
		Provider:  "simulation",
		Simulated: true,
		Reason:    reason,
	}
}

// Invoke implements llm.Provider.
func (c *Chain) Invoke(ctx context.Context, instruction string) (string, error) {
	return c.Run(ctx, instruction).Payload, nil
}

// Capabilities implements llm.Provider.
func (c *Chain) Capabilities() llm.Capabilities {
	if c.provider == nil {
		return llm.Capabilities{Name: "simulation"}
	}
	return c.provider.Capabilities()
}
