package observe

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

// newTestMetrics returns a Metrics instance backed by a ManualReader for
// programmatic metric inspection.
func newTestMetrics(t *testing.T) (*Metrics, *sdkmetric.ManualReader) {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })

	m, err := NewMetrics(mp)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	return m, reader
}

// collect gathers all metric data from the reader.
func collect(t *testing.T, reader *sdkmetric.ManualReader) metricdata.ResourceMetrics {
	t.Helper()
	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect: %v", err)
	}
	return rm
}

// findMetric searches for a metric by name across all scope metrics.
func findMetric(rm metricdata.ResourceMetrics, name string) *metricdata.Metrics {
	for _, sm := range rm.ScopeMetrics {
		for i := range sm.Metrics {
			if sm.Metrics[i].Name == name {
				return &sm.Metrics[i]
			}
		}
	}
	return nil
}

func TestNewMetrics_CreatesWithoutError(t *testing.T) {
	m, _ := newTestMetrics(t)
	if m == nil {
		t.Fatal("NewMetrics returned nil")
	}
}

// sumCounter adds up every data point of an int64 counter whose attributes
// include all of want.
func sumCounter(t *testing.T, met *metricdata.Metrics, want ...attribute.KeyValue) int64 {
	t.Helper()
	sum, ok := met.Data.(metricdata.Sum[int64])
	if !ok {
		t.Fatalf("metric %s is not an int64 sum", met.Name)
	}
	var total int64
	for _, dp := range sum.DataPoints {
		match := true
		for _, kv := range want {
			if v, ok := dp.Attributes.Value(kv.Key); !ok || v != kv.Value {
				match = false
				break
			}
		}
		if match {
			total += dp.Value
		}
	}
	return total
}

func TestRecordProviderCall(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.RecordProviderCall(ctx, "openai", KindLLM, 1500*time.Millisecond, nil)
	m.RecordProviderCall(ctx, "gemini", KindLLM, 20*time.Second, errors.New("timeout"))
	m.RecordProviderCall(ctx, "elevenlabs", KindTTS, time.Second, nil)

	rm := collect(t, reader)

	req := findMetric(rm, "genautapi.provider.requests")
	if req == nil {
		t.Fatal("genautapi.provider.requests not found")
	}
	if got := sumCounter(t, req, Attr("kind", KindLLM)); got != 2 {
		t.Errorf("llm requests = %d, want 2", got)
	}
	if got := sumCounter(t, req, Attr("provider", "gemini"), Attr("status", "error")); got != 1 {
		t.Errorf("gemini error requests = %d, want 1", got)
	}

	errs := findMetric(rm, "genautapi.provider.errors")
	if errs == nil {
		t.Fatal("genautapi.provider.errors not found")
	}
	if got := sumCounter(t, errs); got != 1 {
		t.Errorf("errors = %d, want 1", got)
	}

	for name, want := range map[string]uint64{"genautapi.llm.duration": 2, "genautapi.tts.duration": 1} {
		met := findMetric(rm, name)
		if met == nil {
			t.Fatalf("%s not found", name)
		}
		hist, ok := met.Data.(metricdata.Histogram[float64])
		if !ok {
			t.Fatalf("%s is not a float64 histogram", name)
		}
		var count uint64
		for _, dp := range hist.DataPoints {
			count += dp.Count
		}
		if count != want {
			t.Errorf("%s count = %d, want %d", name, count, want)
		}
	}
}

func TestRecordTurn(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.RecordTurn(ctx, "json", 2*time.Second, 88, "")
	m.RecordTurn(ctx, "json", time.Millisecond, 50, "missing_credential")

	rm := collect(t, reader)

	sim := findMetric(rm, "genautapi.turn.simulated")
	if sim == nil {
		t.Fatal("genautapi.turn.simulated not found")
	}
	if got := sumCounter(t, sim, Attr("reason", "missing_credential")); got != 1 {
		t.Errorf("simulated = %d, want 1", got)
	}

	score := findMetric(rm, "genautapi.turn.score")
	if score == nil {
		t.Fatal("genautapi.turn.score not found")
	}
	hist, ok := score.Data.(metricdata.Histogram[int64])
	if !ok {
		t.Fatal("turn.score is not an int64 histogram")
	}
	if len(hist.DataPoints) != 1 || hist.DataPoints[0].Count != 2 || hist.DataPoints[0].Sum != 138 {
		t.Errorf("score data points = %+v", hist.DataPoints)
	}
}

func TestRecordBreakerTransition(t *testing.T) {
	m, reader := newTestMetrics(t)
	m.RecordBreakerTransition(context.Background(), "openai", "open")

	met := findMetric(collect(t, reader), "genautapi.breaker.transitions")
	if met == nil {
		t.Fatal("genautapi.breaker.transitions not found")
	}
	if got := sumCounter(t, met, Attr("state", "open")); got != 1 {
		t.Errorf("transitions = %d, want 1", got)
	}
}

func TestLeaderboardEntriesGauge(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()
	m.LeaderboardEntries.Add(ctx, 3)
	m.LeaderboardEntries.Add(ctx, -1)

	met := findMetric(collect(t, reader), "genautapi.leaderboard.entries")
	if met == nil {
		t.Fatal("genautapi.leaderboard.entries not found")
	}
	if got := sumCounter(t, met); got != 2 {
		t.Errorf("entries = %d, want 2", got)
	}
}

func TestHTTPRequestDuration(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.HTTPRequestDuration.Record(ctx, 0.05,
		metric.WithAttributes(
			attribute.String("method", "GET"),
			attribute.String("route", "GET /healthz"),
		),
	)

	rm := collect(t, reader)
	met := findMetric(rm, "genautapi.http.request.duration")
	if met == nil {
		t.Fatal("metric not found")
	}
	hist, ok := met.Data.(metricdata.Histogram[float64])
	if !ok {
		t.Fatal("metric is not a histogram")
	}
	if len(hist.DataPoints) == 0 {
		t.Fatal("no data points")
	}
	if got := hist.DataPoints[0].Count; got != 1 {
		t.Errorf("sample count = %d, want 1", got)
	}
}

func TestDefaultMetrics_ReturnsSameInstance(t *testing.T) {
	a := DefaultMetrics()
	b := DefaultMetrics()
	if a != b {
		t.Error("DefaultMetrics returned different pointers")
	}
}
