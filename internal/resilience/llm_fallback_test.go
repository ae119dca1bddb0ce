package resilience

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/MrWong99/genautapi/pkg/provider/llm"
	llmmock "github.com/MrWong99/genautapi/pkg/provider/llm/mock"
)

func TestLLMFallback_PrimarySuccess(t *testing.T) {
	primary := &llmmock.Provider{Response: "REPLY: primary"}
	secondary := &llmmock.Provider{Response: "REPLY: secondary"}

	fb := NewLLMFallback(FallbackConfig{CircuitBreaker: CircuitBreakerConfig{MaxFailures: 3}}, nil)
	fb.AddFallback("primary", primary)
	fb.AddFallback("secondary", secondary)

	out, err := fb.Invoke(context.Background(), "coach")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out != "REPLY: primary" {
		t.Fatalf("payload = %q", out)
	}
	if secondary.CallCount() != 0 {
		t.Fatalf("secondary called %d times, want 0", secondary.CallCount())
	}
	if primary.LastInstruction() != "coach" {
		t.Errorf("instruction = %q, want coach", primary.LastInstruction())
	}
}

func TestLLMFallback_Failover(t *testing.T) {
	primary := &llmmock.Provider{Err: errors.New("primary down")}
	secondary := &llmmock.Provider{Response: "REPLY: secondary"}

	fb := NewLLMFallback(FallbackConfig{}, nil)
	fb.AddFallback("primary", primary)
	fb.AddFallback("secondary", secondary)

	out, err := fb.Invoke(context.Background(), "coach")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out != "REPLY: secondary" {
		t.Fatalf("payload = %q", out)
	}
}

func TestLLMFallback_AllMissingCredential(t *testing.T) {
	fb := NewLLMFallback(FallbackConfig{}, nil)
	fb.AddFallback("openai", &llmmock.Provider{Err: llm.ErrMissingCredential})
	fb.AddFallback("gemini", &llmmock.Provider{Err: llm.ErrMissingCredential})

	_, err := fb.Invoke(context.Background(), "coach")
	var all *AllFailedError
	if !errors.As(err, &all) {
		t.Fatalf("err = %v, want *AllFailedError", err)
	}
	if !all.Every(llm.ErrMissingCredential) {
		t.Errorf("attempts = %+v, want all missing credential", all.Attempts)
	}
}

func TestLLMFallback_MissingCredentialDoesNotTripBreaker(t *testing.T) {
	fb := NewLLMFallback(FallbackConfig{CircuitBreaker: CircuitBreakerConfig{MaxFailures: 1}}, nil)
	p := &llmmock.Provider{Err: llm.ErrMissingCredential}
	fb.AddFallback("openai", p)

	for range 3 {
		_, err := fb.Invoke(context.Background(), "x")
		if !errors.Is(err, llm.ErrMissingCredential) {
			t.Fatalf("err = %v, want ErrMissingCredential on every call", err)
		}
	}
	if p.CallCount() != 3 {
		t.Errorf("provider called %d times, want 3", p.CallCount())
	}
}

func TestLLMFallback_HookSeesEveryAttempt(t *testing.T) {
	var mu sync.Mutex
	var seen []string
	hook := func(_ context.Context, name string, _ time.Duration, err error) {
		mu.Lock()
		defer mu.Unlock()
		status := "ok"
		if err != nil {
			status = "error"
		}
		seen = append(seen, name+"="+status)
	}

	fb := NewLLMFallback(FallbackConfig{}, hook)
	fb.AddFallback("a", &llmmock.Provider{Err: errors.New("down")})
	fb.AddFallback("b", &llmmock.Provider{Response: "ok"})

	if _, err := fb.Invoke(context.Background(), "x"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(seen) != 2 || seen[0] != "a=error" || seen[1] != "b=ok" {
		t.Errorf("hook saw %v", seen)
	}
}

func TestLLMFallback_Capabilities(t *testing.T) {
	fb := NewLLMFallback(FallbackConfig{}, nil)
	if fb.Capabilities().JSONMode {
		t.Error("empty group must not claim JSON mode")
	}
	fb.AddFallback("a", &llmmock.Provider{Caps: llm.Capabilities{Name: "a", Model: "m1", JSONMode: true}})
	fb.AddFallback("b", &llmmock.Provider{Caps: llm.Capabilities{Name: "b", Model: "m2", JSONMode: false}})

	caps := fb.Capabilities()
	if caps.JSONMode {
		t.Error("JSONMode should be false when one member lacks it")
	}
	if caps.Model != "m1,m2" {
		t.Errorf("Model = %q, want m1,m2", caps.Model)
	}
	if fb.Len() != 2 {
		t.Errorf("Len() = %d, want 2", fb.Len())
	}
}

func TestLLMFallback_InvokeNamed(t *testing.T) {
	fb := NewLLMFallback(FallbackConfig{}, nil)
	fb.AddFallback("gemini", &llmmock.Provider{Err: errors.New("down")})
	fb.AddFallback("openai", &llmmock.Provider{Response: "{}"})

	out, name, err := fb.InvokeNamed(context.Background(), "x")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out != "{}" || name != "openai" {
		t.Errorf("got (%q, %q), want ({}, openai)", out, name)
	}
}
