// Package anyllm provides a universal LLM adapter backed by
// github.com/mozilla-ai/any-llm-go, a unified multi-provider interface that
// supports Anthropic, Mistral, Groq, DeepSeek, Ollama, llama.cpp and more.
//
// The adapter runs in text mode only. The coaching prompt still spells out the
// JSON contract, so a well-behaved model answers correctly; the extractor
// copes with the rest.
//
// Usage:
//
//	p, err := anyllm.New("anthropic", "claude-3-5-haiku-latest", anyllm.WithAPIKey("sk-ant-..."))
//	p, err := anyllm.New("ollama", "llama3", anyllm.WithBaseURL("http://gpu-box:11434"))
package anyllm

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	anyllmlib "github.com/mozilla-ai/any-llm-go"
	"github.com/mozilla-ai/any-llm-go/providers/anthropic"
	"github.com/mozilla-ai/any-llm-go/providers/deepseek"
	"github.com/mozilla-ai/any-llm-go/providers/gemini"
	"github.com/mozilla-ai/any-llm-go/providers/groq"
	"github.com/mozilla-ai/any-llm-go/providers/llamacpp"
	"github.com/mozilla-ai/any-llm-go/providers/llamafile"
	"github.com/mozilla-ai/any-llm-go/providers/mistral"
	"github.com/mozilla-ai/any-llm-go/providers/ollama"
	anyllmoai "github.com/mozilla-ai/any-llm-go/providers/openai"

	"github.com/MrWong99/genautapi/pkg/provider/llm"
)

// Backends lists the provider names accepted by [New].
var Backends = []string{"anthropic", "deepseek", "gemini", "groq", "llamacpp", "llamafile", "mistral", "ollama", "openai"}

// localBackends run on the operator's own hardware and need no credential.
var localBackends = []string{"ollama", "llamacpp", "llamafile"}

// completeFunc performs one completion and returns the text of the first choice.
type completeFunc func(ctx context.Context, params anyllmlib.CompletionParams) (string, error)

// Provider implements llm.Provider by wrapping an any-llm-go backend.
type Provider struct {
	name     string
	model    string
	timeout  time.Duration
	complete completeFunc // nil when the backend needs a credential that is missing
}

var _ llm.Provider = (*Provider)(nil)

type config struct {
	apiKey  string
	baseURL string
	timeout time.Duration
}

// Option is a functional option for Provider.
type Option func(*config)

// WithAPIKey sets the backend credential.
func WithAPIKey(key string) Option {
	return func(c *config) { c.apiKey = key }
}

// WithBaseURL overrides the backend endpoint.
func WithBaseURL(url string) Option {
	return func(c *config) { c.baseURL = url }
}

// WithTimeout bounds every Invoke call. Defaults to [llm.DefaultTimeout].
func WithTimeout(d time.Duration) Option {
	return func(c *config) { c.timeout = d }
}

// New creates a Provider for the named any-llm-go backend.
//
// Hosted backends without an API key are still constructed; Invoke then
// reports [llm.ErrMissingCredential]. Local backends never need a key.
func New(providerName, model string, opts ...Option) (*Provider, error) {
	name := strings.ToLower(providerName)
	if !slices.Contains(Backends, name) {
		return nil, fmt.Errorf("anyllm: unsupported provider %q; supported: %s", providerName, strings.Join(Backends, ", "))
	}
	if model == "" {
		return nil, fmt.Errorf("anyllm: model must not be empty")
	}

	cfg := &config{timeout: llm.DefaultTimeout}
	for _, o := range opts {
		o(cfg)
	}
	if cfg.timeout <= 0 {
		cfg.timeout = llm.DefaultTimeout
	}

	p := &Provider{name: name, model: model, timeout: cfg.timeout}
	if cfg.apiKey == "" && !slices.Contains(localBackends, name) {
		return p, nil
	}

	var libOpts []anyllmlib.Option
	if cfg.apiKey != "" {
		libOpts = append(libOpts, anyllmlib.WithAPIKey(cfg.apiKey))
	}
	if cfg.baseURL != "" {
		libOpts = append(libOpts, anyllmlib.WithBaseURL(cfg.baseURL))
	}
	backend, err := createBackend(name, libOpts...)
	if err != nil {
		return nil, fmt.Errorf("anyllm: create %q backend: %w", name, err)
	}

	p.complete = func(ctx context.Context, params anyllmlib.CompletionParams) (string, error) {
		resp, err := backend.Completion(ctx, params)
		if err != nil {
			return "", err
		}
		if len(resp.Choices) == 0 {
			return "", nil
		}
		return resp.Choices[0].Message.ContentString(), nil
	}
	return p, nil
}

// createBackend creates the underlying any-llm-go provider for the given name.
func createBackend(name string, opts ...anyllmlib.Option) (anyllmlib.Provider, error) {
	switch name {
	case "openai":
		return anyllmoai.New(opts...)
	case "anthropic":
		return anthropic.New(opts...)
	case "gemini":
		return gemini.New(opts...)
	case "ollama":
		return ollama.New(opts...)
	case "deepseek":
		return deepseek.New(opts...)
	case "mistral":
		return mistral.New(opts...)
	case "groq":
		return groq.New(opts...)
	case "llamacpp":
		return llamacpp.New(opts...)
	case "llamafile":
		return llamafile.New(opts...)
	}
	return nil, fmt.Errorf("unsupported provider %q", name)
}

// Invoke implements llm.Provider.
func (p *Provider) Invoke(ctx context.Context, instruction string) (string, error) {
	if p.complete == nil {
		return "", llm.Fail(p.name, llm.ErrMissingCredential)
	}

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	text, err := p.complete(ctx, p.buildParams(instruction))
	if err != nil {
		return "", llm.Fail(p.name, fmt.Errorf("completion: %w", err))
	}
	if strings.TrimSpace(text) == "" {
		return "", llm.Fail(p.name, llm.ErrEmptyResponse)
	}
	return text, nil
}

// Capabilities implements llm.Provider.
func (p *Provider) Capabilities() llm.Capabilities {
	return llm.Capabilities{Name: p.name, Model: p.model}
}

func (p *Provider) buildParams(instruction string) anyllmlib.CompletionParams {
	return anyllmlib.CompletionParams{
		Model: p.model,
		Messages: []anyllmlib.Message{{
			Role:    anyllmlib.RoleSystem,
			Content: instruction,
		}},
	}
}
