// Package gemini provides an LLM adapter backed by the Google Gemini API via
// google.golang.org/genai. The adapter can ask Gemini for a native JSON
// response by setting the response MIME type to application/json.
package gemini

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"google.golang.org/genai"

	"github.com/MrWong99/genautapi/pkg/provider/llm"
)

// DefaultModel is used when New receives an empty model name.
const DefaultModel = "gemini-1.5-flash"

const providerName = "gemini"

// Provider implements llm.Provider using the Gemini generateContent endpoint.
type Provider struct {
	client   *genai.Client // nil when no API key was configured
	model    string
	jsonMode bool
	timeout  time.Duration
}

var _ llm.Provider = (*Provider)(nil)

type config struct {
	baseURL    string
	timeout    time.Duration
	jsonMode   bool
	httpClient *http.Client
}

// Option is a functional option for Provider.
type Option func(*config)

// WithBaseURL overrides the Gemini API base URL.
func WithBaseURL(url string) Option {
	return func(c *config) { c.baseURL = url }
}

// WithTimeout bounds every Invoke call. Defaults to [llm.DefaultTimeout].
func WithTimeout(d time.Duration) Option {
	return func(c *config) { c.timeout = d }
}

// WithJSONMode asks Gemini to answer with application/json.
func WithJSONMode(enabled bool) Option {
	return func(c *config) { c.jsonMode = enabled }
}

// WithHTTPClient replaces the HTTP client used for API calls.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *config) { c.httpClient = hc }
}

// New constructs a Gemini adapter. With an empty apiKey no client is created
// and Invoke fails with [llm.ErrMissingCredential].
func New(ctx context.Context, apiKey, model string, opts ...Option) (*Provider, error) {
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

	p := &Provider{model: model, jsonMode: cfg.jsonMode, timeout: cfg.timeout}
	if apiKey == "" {
		return p, nil
	}

	hc := cfg.httpClient
	if hc == nil {
		hc = &http.Client{Timeout: cfg.timeout}
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:     apiKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: hc,
		HTTPOptions: genai.HTTPOptions{
			BaseURL: cfg.baseURL,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("gemini: create client: %w", err)
	}
	p.client = client
	return p, nil
}

// Invoke implements llm.Provider.
func (p *Provider) Invoke(ctx context.Context, instruction string) (string, error) {
	if p.client == nil {
		return "", llm.Fail(providerName, llm.ErrMissingCredential)
	}

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	var gc *genai.GenerateContentConfig
	if p.jsonMode {
		gc = &genai.GenerateContentConfig{ResponseMIMEType: "application/json"}
	}

	resp, err := p.client.Models.GenerateContent(ctx, p.model, genai.Text(instruction), gc)
	if err != nil {
		return "", llm.Fail(providerName, fmt.Errorf("generate content: %w", err))
	}
	text := responseText(resp)
	if strings.TrimSpace(text) == "" {
		return "", llm.Fail(providerName, fmt.Errorf("%w: no candidate text", llm.ErrEmptyResponse))
	}
	return text, nil
}

// Capabilities implements llm.Provider.
func (p *Provider) Capabilities() llm.Capabilities {
	return llm.Capabilities{Name: providerName, Model: p.model, JSONMode: p.jsonMode}
}

// responseText concatenates the answer text of the first candidate. Parts are
// joined without a separator because a single JSON object or line may be split
// across them. Thought parts are model reasoning, not answer text.
func responseText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return ""
	}
	var sb strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if part == nil || part.Thought {
			continue
		}
		sb.WriteString(part.Text)
	}
	return sb.String()
}
