// Package observe provides the observability primitives for GenauTapi:
// OpenTelemetry metrics, tracing, a trace-aware logger, and HTTP middleware
// that ties them together.
//
// Metrics are recorded through the OpenTelemetry Metrics API and exported
// for Prometheus via [InitProvider]. A package-level [DefaultMetrics] instance
// exists for convenience; tests should use [NewMetrics] with their own
// [metric.MeterProvider] to avoid cross-test pollution.
package observe

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all metrics.
const meterName = "github.com/MrWong99/genautapi"

// Provider kinds used as the "kind" attribute.
const (
	KindLLM = "llm"
	KindTTS = "tts"
	KindGeo = "geo"
)

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use.
type Metrics struct {
	// --- Latency histograms ---

	// TurnDuration tracks one full coaching turn including TTS.
	TurnDuration metric.Float64Histogram

	// LLMDuration tracks single LLM provider calls.
	LLMDuration metric.Float64Histogram

	// TTSDuration tracks single TTS provider calls.
	TTSDuration metric.Float64Histogram

	// --- Counters ---

	// ProviderRequests counts provider calls. Attributes: provider, kind, status.
	ProviderRequests metric.Int64Counter

	// ProviderErrors counts failed provider calls. Attributes: provider, kind.
	ProviderErrors metric.Int64Counter

	// TurnsSimulated counts turns answered with a canned payload. Attribute: reason.
	TurnsSimulated metric.Int64Counter

	// BreakerTransitions counts circuit breaker state changes. Attributes: provider, state.
	BreakerTransitions metric.Int64Counter

	// --- Distributions ---

	// TurnScore records the overall score of every turn. Attribute: contract.
	TurnScore metric.Int64Histogram

	// --- Gauges ---

	// LeaderboardEntries tracks the number of addresses on the leaderboard.
	LeaderboardEntries metric.Int64UpDownCounter

	// --- HTTP middleware ---

	// HTTPRequestDuration tracks HTTP request processing time.
	// Attributes: method, route, status.
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets defines histogram bucket boundaries in seconds. LLM calls
// routinely take seconds and are cut off at 20.
var latencyBuckets = []float64{
	0.05, 0.1, 0.25, 0.5, 1, 2, 4, 8, 15, 20, 30,
}

var scoreBuckets = []float64{10, 20, 30, 40, 50, 60, 70, 80, 90, 100}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider].
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	// Histograms.
	if met.TurnDuration, err = m.Float64Histogram("genautapi.turn.duration",
		metric.WithDescription("Latency of a complete coaching turn."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.LLMDuration, err = m.Float64Histogram("genautapi.llm.duration",
		metric.WithDescription("Latency of a single LLM provider call."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.TTSDuration, err = m.Float64Histogram("genautapi.tts.duration",
		metric.WithDescription("Latency of a single text-to-speech call."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.TurnScore, err = m.Int64Histogram("genautapi.turn.score",
		metric.WithDescription("Overall score awarded per turn."),
		metric.WithExplicitBucketBoundaries(scoreBuckets...),
	); err != nil {
		return nil, err
	}

	// Counters.
	if met.ProviderRequests, err = m.Int64Counter("genautapi.provider.requests",
		metric.WithDescription("Total provider calls by provider, kind, and status."),
	); err != nil {
		return nil, err
	}
	if met.ProviderErrors, err = m.Int64Counter("genautapi.provider.errors",
		metric.WithDescription("Total provider errors by provider and kind."),
	); err != nil {
		return nil, err
	}
	if met.TurnsSimulated, err = m.Int64Counter("genautapi.turn.simulated",
		metric.WithDescription("Turns answered with a simulated payload, by reason."),
	); err != nil {
		return nil, err
	}
	if met.BreakerTransitions, err = m.Int64Counter("genautapi.breaker.transitions",
		metric.WithDescription("Circuit breaker state changes by provider and new state."),
	); err != nil {
		return nil, err
	}

	// Gauges (UpDownCounters).
	if met.LeaderboardEntries, err = m.Int64UpDownCounter("genautapi.leaderboard.entries",
		metric.WithDescription("Number of client addresses on the leaderboard."),
	); err != nil {
		return nil, err
	}

	// HTTP middleware histogram.
	if met.HTTPRequestDuration, err = m.Float64Histogram("genautapi.http.request.duration",
		metric.WithDescription("HTTP request latency by method, route, and status."),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}

	return met, nil
}

var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns the package-level [Metrics] instance, creating it on
// first call using [otel.GetMeterProvider]. Panics if instrument creation
// fails, which does not happen with the global provider.
func DefaultMetrics() *Metrics {
	defaultMetricsOnce.Do(func() {
		var err error
		defaultMetrics, err = NewMetrics(otel.GetMeterProvider())
		if err != nil {
			panic("observe: failed to create default metrics: " + err.Error())
		}
	})
	return defaultMetrics
}

// Attr is a convenience alias for [attribute.String].
func Attr(key, value string) attribute.KeyValue {
	return attribute.String(key, value)
}

// RecordProviderCall records the request counter, the matching duration
// histogram, and on failure the error counter for one provider call.
func (m *Metrics) RecordProviderCall(ctx context.Context, provider, kind string, elapsed time.Duration, err error) {
	status := "ok"
	if err != nil {
		status = "error"
		m.RecordProviderError(ctx, provider, kind)
	}
	m.RecordProviderRequest(ctx, provider, kind, status)

	attrs := metric.WithAttributes(attribute.String("provider", provider))
	switch kind {
	case KindLLM:
		m.LLMDuration.Record(ctx, elapsed.Seconds(), attrs)
	case KindTTS:
		m.TTSDuration.Record(ctx, elapsed.Seconds(), attrs)
	}
}

// RecordProviderRequest records a provider request counter increment.
func (m *Metrics) RecordProviderRequest(ctx context.Context, provider, kind, status string) {
	m.ProviderRequests.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("provider", provider),
			attribute.String("kind", kind),
			attribute.String("status", status),
		),
	)
}

// RecordProviderError records a provider error counter increment.
func (m *Metrics) RecordProviderError(ctx context.Context, provider, kind string) {
	m.ProviderErrors.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("provider", provider),
			attribute.String("kind", kind),
		),
	)
}

// RecordTurn records the duration and score of a finished turn. reason is
// non-empty only for simulated turns.
func (m *Metrics) RecordTurn(ctx context.Context, contract string, elapsed time.Duration, score int, reason string) {
	attrs := metric.WithAttributes(attribute.String("contract", contract))
	m.TurnDuration.Record(ctx, elapsed.Seconds(), attrs)
	m.TurnScore.Record(ctx, int64(score), attrs)
	if reason != "" {
		m.TurnsSimulated.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", reason)))
	}
}

// RecordBreakerTransition records a circuit breaker entering state.
func (m *Metrics) RecordBreakerTransition(ctx context.Context, provider, state string) {
	m.BreakerTransitions.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("provider", provider),
			attribute.String("state", state),
		),
	)
}
