package app_test

import (
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"

	"github.com/MrWong99/genautapi/internal/app"
	"github.com/MrWong99/genautapi/internal/coach"
	"github.com/MrWong99/genautapi/internal/config"
	"github.com/MrWong99/genautapi/internal/leaderboard"
	"github.com/MrWong99/genautapi/internal/observe"
	historymock "github.com/MrWong99/genautapi/pkg/history/mock"
	"github.com/MrWong99/genautapi/pkg/provider/llm"
	llmmock "github.com/MrWong99/genautapi/pkg/provider/llm/mock"
	"github.com/MrWong99/genautapi/pkg/provider/tts"
	ttsmock "github.com/MrWong99/genautapi/pkg/provider/tts/mock"
)

// staticLocator places every address in one city without network access.
type staticLocator struct{}

func (staticLocator) Locate(context.Context, string) leaderboard.Location {
	return leaderboard.Location{Country: "Germany", City: "Berlin", CountryCode: "DE"}
}

func testConfig() *config.Config {
	cfg := config.Default()
	cfg.Server.ListenAddr = "127.0.0.1:0"
	cfg.Leaderboard.DisableGeo = true
	return cfg
}

func testMetrics(t *testing.T) *observe.Metrics {
	t.Helper()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(sdkmetric.NewManualReader()))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })
	m, err := observe.NewMetrics(mp)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	return m
}

func testProviders(llmResp string) *app.Providers {
	return &app.Providers{
		LLM: []coach.Adapter{{
			Name: "openai",
			Provider: &llmmock.Provider{
				Response: llmResp,
				Caps:     llm.Capabilities{Name: "openai", JSONMode: true},
			},
		}},
		TTS: []app.SpeechAdapter{{
			Name:     "openai",
			Provider: &ttsmock.Provider{Audio: tts.Audio{Data: []byte("mp3"), MIMEType: "audio/mpeg"}},
		}},
	}
}

func newApp(t *testing.T, cfg *config.Config, providers *app.Providers, opts ...app.Option) *app.App {
	t.Helper()
	opts = append([]app.Option{app.WithMetrics(testMetrics(t))}, opts...)
	a, err := app.New(context.Background(), cfg, providers, opts...)
	if err != nil {
		t.Fatalf("New() returned error: %v", err)
	}
	return a
}

func TestNew_InProcessDefaults(t *testing.T) {
	t.Parallel()

	a := newApp(t, testConfig(), testProviders(`{"reply":"Hallo!","grammar_score":70,"pronunciation_score":90}`))

	rec := httptest.NewRecorder()
	body := strings.NewReader(`{"transcript":"Hallo"}`)
	a.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/chat", body))
	if rec.Code != http.StatusOK {
		t.Fatalf("POST /chat = %d: %s", rec.Code, rec.Body.String())
	}
	var got struct {
		Reply       string `json:"reply"`
		Score       int    `json:"score"`
		AudioBase64 string `json:"audio_base64"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.Reply != "Hallo!" || got.Score != 80 || got.AudioBase64 == "" {
		t.Errorf("chat response = %+v", got)
	}
}

func TestNew_InvalidContract(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	cfg.Coach.Contract = "xml"
	if _, err := app.New(context.Background(), cfg, nil, app.WithMetrics(testMetrics(t))); err == nil {
		t.Fatal("New() with unknown contract returned nil error")
	}
}

func TestNew_BadPostgresDSN(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	cfg.History.PostgresDSN = "postgres://localhost:notaport/genautapi"
	if _, err := app.New(context.Background(), cfg, nil, app.WithMetrics(testMetrics(t))); err == nil {
		t.Fatal("New() with malformed DSN returned nil error")
	}
}

func TestNew_NoProvidersIsDegraded(t *testing.T) {
	t.Parallel()

	a := newApp(t, testConfig(), nil)

	rec := httptest.NewRecorder()
	a.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"degraded"`) {
		t.Errorf("readyz = %d %s, want 200 degraded", rec.Code, rec.Body.String())
	}

	rec = httptest.NewRecorder()
	a.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/chat", strings.NewReader(`{"transcript":"Hallo"}`)))
	if !strings.Contains(rec.Body.String(), "API key missing") {
		t.Errorf("simulated reply = %s", rec.Body.String())
	}
}

func TestNew_InjectedStoreAndLocator(t *testing.T) {
	t.Parallel()

	store := historymock.New()
	a := newApp(t, testConfig(), testProviders(`{"reply":"Gut!","grammar_score":60,"pronunciation_score":60}`),
		app.WithHistoryStore(store),
		app.WithLocator(staticLocator{}),
	)

	rec := httptest.NewRecorder()
	a.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/sessions", nil))
	var sess struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &sess); err != nil || sess.ID == "" {
		t.Fatalf("POST /sessions = %s (%v)", rec.Body.String(), err)
	}
	if got := store.CallCount("CreateSession"); got != 1 {
		t.Errorf("CreateSession call count = %d, want 1", got)
	}

	rec = httptest.NewRecorder()
	body := strings.NewReader(`{"transcript":"Hallo","session_id":"` + sess.ID + `"}`)
	a.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/chat", body))
	if got := store.CallCount("AppendMessage"); got != 2 {
		t.Errorf("AppendMessage call count = %d, want 2", got)
	}

	rec = httptest.NewRecorder()
	a.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/leaderboard", nil))
	if !strings.Contains(rec.Body.String(), `"Berlin"`) {
		t.Errorf("leaderboard = %s, want injected location", rec.Body.String())
	}
}

func TestMetricsEndpoint(t *testing.T) {
	t.Parallel()

	h := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { _, _ = io.WriteString(w, "ok") })
	a := newApp(t, testConfig(), nil, app.WithMetricsHandler(h))

	rec := httptest.NewRecorder()
	a.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Body.String() != "ok" {
		t.Errorf("GET /metrics = %q", rec.Body.String())
	}
}

func TestApp_ServeAndShutdown(t *testing.T) {
	t.Parallel()

	a := newApp(t, testConfig(), nil)
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- a.Serve(ctx, ln) }()

	resp, err := http.Get("http://" + ln.Addr().String() + "/status")
	if err != nil {
		t.Fatalf("GET /status: %v", err)
	}
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("GET /status = %d", resp.StatusCode)
	}

	cancel()
	select {
	case err := <-errCh:
		if err != nil {
			t.Fatalf("Serve() returned unexpected error: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Serve() did not return within 5s after context cancellation")
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := a.Shutdown(shutdownCtx); err != nil {
		t.Fatalf("Shutdown() error: %v", err)
	}
	// Idempotent.
	if err := a.Shutdown(shutdownCtx); err != nil {
		t.Fatalf("second Shutdown() error: %v", err)
	}

	if _, err := http.Get("http://" + ln.Addr().String() + "/status"); err == nil {
		t.Error("server still accepting connections after Shutdown")
	}
}

func TestRun_ListenError(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	cfg.Server.ListenAddr = "256.0.0.1:bad"
	a := newApp(t, cfg, nil)

	err := a.Run(context.Background())
	if err == nil {
		t.Fatal("Run() with bad address returned nil error")
	}
	if !strings.Contains(err.Error(), "listen") {
		t.Errorf("Run() error = %v, want listen failure", err)
	}
}
