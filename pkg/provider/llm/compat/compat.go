// Package compat talks to any server that speaks the OpenAI chat completion
// wire format (DeepSeek, Groq, LM Studio, vLLM, a local llama.cpp server)
// through github.com/sashabaranov/go-openai.
package compat

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	goopenai "github.com/sashabaranov/go-openai"

	"github.com/MrWong99/genautapi/pkg/provider/llm"
)

// Provider implements llm.Provider for an OpenAI-compatible endpoint.
type Provider struct {
	client   *goopenai.Client
	name     string
	model    string
	hasKey   bool
	jsonMode bool
	timeout  time.Duration
}

var _ llm.Provider = (*Provider)(nil)

type config struct {
	name        string
	timeout     time.Duration
	jsonMode    bool
	keyOptional bool
	httpClient  *http.Client
}

// Option is a functional option for Provider.
type Option func(*config)

// WithName sets the provider name used in errors and metrics. Defaults to "compat".
func WithName(name string) Option {
	return func(c *config) { c.name = name }
}

// WithTimeout bounds every Invoke call. Defaults to [llm.DefaultTimeout].
func WithTimeout(d time.Duration) Option {
	return func(c *config) { c.timeout = d }
}

// WithJSONMode sends response_format=json_object. Only enable it for servers
// that implement the field.
func WithJSONMode(enabled bool) Option {
	return func(c *config) { c.jsonMode = enabled }
}

// WithKeyOptional marks the endpoint as usable without a credential, which is
// the norm for self-hosted servers.
func WithKeyOptional() Option {
	return func(c *config) { c.keyOptional = true }
}

// WithHTTPClient replaces the HTTP client used for API calls.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *config) { c.httpClient = hc }
}

// New creates a Provider for the endpoint at baseURL (for example
// "https://api.deepseek.com/v1"). baseURL and model are required.
func New(baseURL, apiKey, model string, opts ...Option) (*Provider, error) {
	if baseURL == "" {
		return nil, errors.New("compat: base URL must not be empty")
	}
	if model == "" {
		return nil, errors.New("compat: model must not be empty")
	}
	cfg := &config{name: "compat", timeout: llm.DefaultTimeout}
	for _, o := range opts {
		o(cfg)
	}
	if cfg.timeout <= 0 {
		cfg.timeout = llm.DefaultTimeout
	}

	clientCfg := goopenai.DefaultConfig(apiKey)
	clientCfg.BaseURL = strings.TrimRight(baseURL, "/")
	if cfg.httpClient != nil {
		clientCfg.HTTPClient = cfg.httpClient
	} else {
		clientCfg.HTTPClient = &http.Client{Timeout: cfg.timeout}
	}

	return &Provider{
		client:   goopenai.NewClientWithConfig(clientCfg),
		name:     cfg.name,
		model:    model,
		hasKey:   apiKey != "" || cfg.keyOptional,
		jsonMode: cfg.jsonMode,
		timeout:  cfg.timeout,
	}, nil
}

// Invoke implements llm.Provider.
func (p *Provider) Invoke(ctx context.Context, instruction string) (string, error) {
	if !p.hasKey {
		return "", llm.Fail(p.name, llm.ErrMissingCredential)
	}

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	req := goopenai.ChatCompletionRequest{
		Model: p.model,
		Messages: []goopenai.ChatCompletionMessage{
			{Role: goopenai.ChatMessageRoleSystem, Content: instruction},
		},
	}
	if p.jsonMode {
		req.ResponseFormat = &goopenai.ChatCompletionResponseFormat{
			Type: goopenai.ChatCompletionResponseFormatTypeJSONObject,
		}
	}

	resp, err := p.client.CreateChatCompletion(ctx, req)
	if err != nil {
		var apiErr *goopenai.APIError
		if errors.As(err, &apiErr) {
			return "", llm.Fail(p.name, fmt.Errorf("%w: status %d: %w", llm.ErrBadStatus, apiErr.HTTPStatusCode, err))
		}
		return "", llm.Fail(p.name, fmt.Errorf("chat completion: %w", err))
	}
	if len(resp.Choices) == 0 {
		return "", llm.Fail(p.name, fmt.Errorf("%w: no choices", llm.ErrEmptyResponse))
	}
	content := resp.Choices[0].Message.Content
	if strings.TrimSpace(content) == "" {
		return "", llm.Fail(p.name, fmt.Errorf("%w: blank content", llm.ErrEmptyResponse))
	}
	return content, nil
}

// Capabilities implements llm.Provider.
func (p *Provider) Capabilities() llm.Capabilities {
	return llm.Capabilities{Name: p.name, Model: p.model, JSONMode: p.jsonMode}
}
