// Package mock provides a test double for the llm.Provider interface.
//
// Use Provider in unit tests to feed controlled payloads into the coaching
// pipeline and to verify which instructions were sent. All fields are safe to
// set before calling any method; mutating them during a concurrent call is the
// caller's responsibility.
//
// Example:
//
//	p := &mock.Provider{
//	    Response: "REPLY: Hallo!\nSCORE: 90",
//	}
//	raw, err := p.Invoke(ctx, instruction)
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/genautapi/pkg/provider/llm"
)

// InvokeCall records a single invocation of Invoke.
type InvokeCall struct {
	// Ctx is the context passed to Invoke.
	Ctx context.Context
	// Instruction is the instruction text passed to Invoke.
	Instruction string
}

// Provider is a mock implementation of llm.Provider.
// Zero values cause Invoke to return an empty payload and a nil error.
type Provider struct {
	mu sync.Mutex

	// Response is returned by Invoke when Err is nil.
	Response string

	// Err, if non-nil, is returned by Invoke. Plain errors are wrapped in an
	// *llm.ProviderError so the mock honours the interface contract.
	Err error

	// Caps is returned by Capabilities.
	Caps llm.Capabilities

	// InvokeCalls records every invocation of Invoke in order.
	InvokeCalls []InvokeCall
}

var _ llm.Provider = (*Provider)(nil)

// Invoke records the call and returns Response or Err.
func (p *Provider) Invoke(ctx context.Context, instruction string) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.InvokeCalls = append(p.InvokeCalls, InvokeCall{Ctx: ctx, Instruction: instruction})
	if p.Err != nil {
		if pe, ok := p.Err.(*llm.ProviderError); ok {
			return "", pe
		}
		name := p.Caps.Name
		if name == "" {
			name = "mock"
		}
		return "", llm.Fail(name, p.Err)
	}
	return p.Response, nil
}

// Capabilities returns Caps.
func (p *Provider) Capabilities() llm.Capabilities {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.Caps
}

// CallCount returns the number of Invoke calls so far.
func (p *Provider) CallCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.InvokeCalls)
}

// LastInstruction returns the instruction of the most recent Invoke call, or
// "" if Invoke was never called.
func (p *Provider) LastInstruction() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.InvokeCalls) == 0 {
		return ""
	}
	return p.InvokeCalls[len(p.InvokeCalls)-1].Instruction
}
