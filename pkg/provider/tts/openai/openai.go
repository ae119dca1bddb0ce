// Package openai provides a TTS adapter backed by the OpenAI speech endpoint.
package openai

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/MrWong99/genautapi/pkg/provider/tts"
)

// Defaults applied when the matching option is not set.
const (
	DefaultModel  = "tts-1"
	DefaultVoice  = "nova"
	DefaultFormat = "mp3"
)

// Provider implements tts.Provider using OpenAI speech synthesis.
type Provider struct {
	client  oai.Client
	apiKey  string
	model   string
	voice   string
	format  string
	timeout time.Duration
}

var _ tts.Provider = (*Provider)(nil)

type config struct {
	baseURL    string
	voice      string
	format     string
	timeout    time.Duration
	httpClient *http.Client
}

// Option is a functional option for Provider.
type Option func(*config)

// WithBaseURL overrides the default OpenAI API base URL.
func WithBaseURL(url string) Option {
	return func(c *config) { c.baseURL = url }
}

// WithVoice selects the speaker, e.g. "nova" or "alloy".
func WithVoice(voice string) Option {
	return func(c *config) { c.voice = voice }
}

// WithFormat selects the output encoding, e.g. "mp3", "opus" or "wav".
func WithFormat(format string) Option {
	return func(c *config) { c.format = format }
}

// WithTimeout bounds each Synthesize call. Defaults to [tts.DefaultTimeout].
func WithTimeout(d time.Duration) Option {
	return func(c *config) { c.timeout = d }
}

// WithHTTPClient replaces the HTTP client used for API calls.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *config) { c.httpClient = hc }
}

// New constructs an OpenAI speech adapter. An empty apiKey is accepted;
// Synthesize then returns [tts.ErrMissingCredential].
func New(apiKey, model string, opts ...Option) *Provider {
	if model == "" {
		model = DefaultModel
	}
	cfg := &config{voice: DefaultVoice, format: DefaultFormat, timeout: tts.DefaultTimeout}
	for _, o := range opts {
		o(cfg)
	}
	if cfg.timeout <= 0 {
		cfg.timeout = tts.DefaultTimeout
	}

	reqOpts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithMaxRetries(0),
	}
	if cfg.baseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(cfg.baseURL))
	}
	hc := cfg.httpClient
	if hc == nil {
		hc = &http.Client{Timeout: cfg.timeout}
	}
	reqOpts = append(reqOpts, option.WithHTTPClient(hc))

	return &Provider{
		client:  oai.NewClient(reqOpts...),
		apiKey:  apiKey,
		model:   model,
		voice:   cfg.voice,
		format:  cfg.format,
		timeout: cfg.timeout,
	}
}

// Synthesize implements tts.Provider.
func (p *Provider) Synthesize(ctx context.Context, text string) (tts.Audio, error) {
	if strings.TrimSpace(text) == "" {
		return tts.Audio{}, tts.ErrEmptyText
	}
	if p.apiKey == "" {
		return tts.Audio{}, fmt.Errorf("openai tts: %w", tts.ErrMissingCredential)
	}

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	resp, err := p.client.Audio.Speech.New(ctx, oai.AudioSpeechNewParams{
		Input:          text,
		Model:          oai.SpeechModel(p.model),
		Voice:          oai.AudioSpeechNewParamsVoice(p.voice),
		ResponseFormat: oai.AudioSpeechNewParamsResponseFormat(p.format),
	})
	if err != nil {
		var apiErr *oai.Error
		if errors.As(err, &apiErr) {
			return tts.Audio{}, fmt.Errorf("openai tts: status %d: %w", apiErr.StatusCode, err)
		}
		return tts.Audio{}, fmt.Errorf("openai tts: speech: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return tts.Audio{}, fmt.Errorf("openai tts: read body: %w", err)
	}
	if len(data) == 0 {
		return tts.Audio{}, fmt.Errorf("openai tts: %w", tts.ErrEmptyAudio)
	}
	return tts.Audio{Data: data, MIMEType: tts.MIMEForFormat(p.format)}, nil
}
