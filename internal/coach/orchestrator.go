package coach

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/MrWong99/genautapi/internal/observe"
	"github.com/MrWong99/genautapi/pkg/provider/tts"
)

// Defaults applied to empty request fields.
const (
	DefaultSourceLanguage = "English"
	DefaultTargetLanguage = "German"
)

// Orchestrator runs coaching turns. It holds no per-turn state and is safe
// for concurrent use.
type Orchestrator struct {
	chain         *Chain
	speech        tts.Provider
	metrics       *observe.Metrics
	ttsTimeout    time.Duration
	defaultSource string
	defaultTarget string
}

// Option configures an [Orchestrator].
type Option func(*Orchestrator)

// WithSpeech attaches a TTS provider. Without one, results carry no audio.
func WithSpeech(p tts.Provider) Option {
	return func(o *Orchestrator) { o.speech = p }
}

// WithMetrics records turn metrics to m instead of [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(o *Orchestrator) { o.metrics = m }
}

// WithTTSTimeout bounds speech synthesis. Defaults to [tts.DefaultTimeout].
func WithTTSTimeout(d time.Duration) Option {
	return func(o *Orchestrator) {
		if d > 0 {
			o.ttsTimeout = d
		}
	}
}

// WithDefaultLanguages sets the languages used when a request leaves them empty.
func WithDefaultLanguages(source, target string) Option {
	return func(o *Orchestrator) {
		if source != "" {
			o.defaultSource = source
		}
		if target != "" {
			o.defaultTarget = target
		}
	}
}

// NewOrchestrator creates an Orchestrator around chain.
func NewOrchestrator(chain *Chain, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		chain:         chain,
		ttsTimeout:    tts.DefaultTimeout,
		defaultSource: DefaultSourceLanguage,
		defaultTarget: DefaultTargetLanguage,
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.metrics == nil {
		o.metrics = observe.DefaultMetrics()
	}
	return o
}

// Contract returns the contract turns are run under.
func (o *Orchestrator) Contract() Contract { return o.chain.Contract() }

// RunTurn builds the instruction, asks the chain, extracts the result, carries
// memory over when the payload has none, and attaches speech when possible.
// It always returns a usable result.
func (o *Orchestrator) RunTurn(ctx context.Context, req TurnRequest) Result {
	start := time.Now()
	req = o.normalize(req)
	contract := o.chain.Contract()

	ctx, span := observe.StartSpan(ctx, "coach.turn")
	defer span.End()
	span.SetAttributes(
		attribute.String("coach.contract", contract.String()),
		attribute.String("coach.topic", req.Topic),
	)

	outcome := o.chain.Run(ctx, BuildInstruction(req, contract))
	res := Extract(outcome.Payload, contract)
	if !res.MemoryUpdated {
		res.Memory = req.Memory
	}
	res.Simulated = outcome.Simulated
	res.Provider = outcome.Provider

	if res.Reply != "" && o.speech != nil {
		res.Audio = o.synthesize(ctx, res.Reply)
	}

	span.SetAttributes(
		attribute.String("coach.provider", res.Provider),
		attribute.Int("coach.score", res.OverallScore),
		attribute.Bool("coach.audio", !res.Audio.Empty()),
	)
	o.metrics.RecordTurn(ctx, contract.String(), time.Since(start), res.OverallScore, outcome.Reason)
	return res
}

// synthesize never fails: errors, timeouts and panics all yield empty audio.
func (o *Orchestrator) synthesize(ctx context.Context, text string) (audio tts.Audio) {
	ctx, cancel := context.WithTimeout(ctx, o.ttsTimeout)
	defer cancel()
	defer func() {
		if r := recover(); r != nil {
			observe.Logger(ctx).Warn("coach: tts panicked, continuing without audio", "panic", fmt.Sprint(r))
			audio = tts.Audio{}
		}
	}()

	a, err := o.speech.Synthesize(ctx, text)
	if err != nil {
		observe.Logger(ctx).Warn("coach: tts failed, continuing without audio", "err", err)
		return tts.Audio{}
	}
	return a
}

func (o *Orchestrator) normalize(req TurnRequest) TurnRequest {
	req.Transcript = strings.TrimSpace(req.Transcript)
	if strings.TrimSpace(req.SourceLanguage) == "" {
		req.SourceLanguage = o.defaultSource
	}
	if strings.TrimSpace(req.TargetLanguage) == "" {
		req.TargetLanguage = o.defaultTarget
	}
	if req.Topic == "" {
		req.Topic = DefaultTopic
	}
	if req.Streak < 1 {
		req.Streak = 1
	}
	return req
}
