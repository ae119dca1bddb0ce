// Package openai provides an LLM adapter backed by the OpenAI chat completion
// API. The adapter can run in plain text mode or in native JSON mode, where
// the request carries response_format=json_object.
package openai

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/shared"

	"github.com/MrWong99/genautapi/pkg/provider/llm"
)

// DefaultModel is used when New receives an empty model name.
const DefaultModel = "gpt-4o-mini"

const providerName = "openai"

// Provider implements llm.Provider using the OpenAI API.
type Provider struct {
	client   oai.Client
	apiKey   string
	model    string
	jsonMode bool
	timeout  time.Duration
}

var _ llm.Provider = (*Provider)(nil)

// config holds optional configuration for the provider.
type config struct {
	baseURL      string
	organization string
	timeout      time.Duration
	jsonMode     bool
	httpClient   *http.Client
}

// Option is a functional option for Provider.
type Option func(*config)

// WithBaseURL overrides the default OpenAI API base URL.
func WithBaseURL(url string) Option {
	return func(c *config) {
		c.baseURL = url
	}
}

// WithOrganization sets the OpenAI organization ID on all requests.
func WithOrganization(org string) Option {
	return func(c *config) {
		c.organization = org
	}
}

// WithTimeout bounds every Invoke call. Defaults to [llm.DefaultTimeout].
func WithTimeout(d time.Duration) Option {
	return func(c *config) {
		c.timeout = d
	}
}

// WithJSONMode asks the API to return a single JSON object.
func WithJSONMode(enabled bool) Option {
	return func(c *config) {
		c.jsonMode = enabled
	}
}

// WithHTTPClient replaces the HTTP client used for API calls.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *config) {
		c.httpClient = hc
	}
}

// New constructs a new OpenAI adapter. An empty apiKey is accepted; Invoke then
// fails with [llm.ErrMissingCredential] without touching the network so the
// caller can fall through to the next provider.
func New(apiKey string, model string, opts ...Option) *Provider {
	if model == "" {
		model = DefaultModel
	}
	cfg := &config{timeout: llm.DefaultTimeout}
	for _, o := range opts {
		o(cfg)
	}
	if cfg.timeout <= 0 {
		cfg.timeout = llm.DefaultTimeout
	}

	reqOpts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		// The fallback chain owns retries.
		option.WithMaxRetries(0),
	}
	if cfg.baseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(cfg.baseURL))
	}
	if cfg.organization != "" {
		reqOpts = append(reqOpts, option.WithOrganization(cfg.organization))
	}
	hc := cfg.httpClient
	if hc == nil {
		hc = &http.Client{Timeout: cfg.timeout}
	}
	reqOpts = append(reqOpts, option.WithHTTPClient(hc))

	return &Provider{
		client:   oai.NewClient(reqOpts...),
		apiKey:   apiKey,
		model:    model,
		jsonMode: cfg.jsonMode,
		timeout:  cfg.timeout,
	}
}

// Invoke implements llm.Provider.
func (p *Provider) Invoke(ctx context.Context, instruction string) (string, error) {
	if p.apiKey == "" {
		return "", llm.Fail(providerName, llm.ErrMissingCredential)
	}

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	resp, err := p.client.Chat.Completions.New(ctx, p.buildParams(instruction))
	if err != nil {
		var apiErr *oai.Error
		if errors.As(err, &apiErr) {
			return "", llm.Fail(providerName, fmt.Errorf("%w: status %d: %w", llm.ErrBadStatus, apiErr.StatusCode, err))
		}
		return "", llm.Fail(providerName, fmt.Errorf("chat completion: %w", err))
	}
	if len(resp.Choices) == 0 {
		return "", llm.Fail(providerName, fmt.Errorf("%w: no choices", llm.ErrEmptyResponse))
	}
	content := resp.Choices[0].Message.Content
	if strings.TrimSpace(content) == "" {
		return "", llm.Fail(providerName, fmt.Errorf("%w: blank content", llm.ErrEmptyResponse))
	}
	return content, nil
}

// Capabilities implements llm.Provider.
func (p *Provider) Capabilities() llm.Capabilities {
	return llm.Capabilities{Name: providerName, Model: p.model, JSONMode: p.jsonMode}
}

// buildParams sends the instruction as a single system message, which is how
// the coaching prompt is designed to be consumed.
func (p *Provider) buildParams(instruction string) oai.ChatCompletionNewParams {
	params := oai.ChatCompletionNewParams{
		Model: shared.ChatModel(p.model),
		Messages: []oai.ChatCompletionMessageParamUnion{
			oai.SystemMessage(instruction),
		},
	}
	if p.jsonMode {
		params.ResponseFormat = oai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONObject: &shared.ResponseFormatJSONObjectParam{},
		}
	}
	return params
}
