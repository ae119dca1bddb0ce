// Package app wires the GenauTapi subsystems into a running HTTP service.
//
// The App struct owns the full lifecycle: New builds the history store, the
// provider fallback chains, the coach, the leaderboard and the HTTP surface;
// Run serves until the context is cancelled; Shutdown drains in-flight
// requests and releases resources.
//
// For testing, inject doubles via functional options (WithHistoryStore,
// WithLocator, WithMetrics). When an option is not provided, New creates real
// implementations from the config.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/MrWong99/genautapi/internal/api"
	"github.com/MrWong99/genautapi/internal/coach"
	"github.com/MrWong99/genautapi/internal/config"
	"github.com/MrWong99/genautapi/internal/health"
	"github.com/MrWong99/genautapi/internal/leaderboard"
	"github.com/MrWong99/genautapi/internal/observe"
	"github.com/MrWong99/genautapi/internal/resilience"
	"github.com/MrWong99/genautapi/pkg/history"
	"github.com/MrWong99/genautapi/pkg/history/memstore"
	"github.com/MrWong99/genautapi/pkg/history/postgres"
	"github.com/MrWong99/genautapi/pkg/provider/tts"
)

// SpeechAdapter is a named TTS provider in try order.
type SpeechAdapter struct {
	Name     string
	Provider tts.Provider
}

// Providers holds the configured providers. Populated by main.go via the
// config registry. Empty slices are valid: turns are simulated and replies
// carry no audio.
type Providers struct {
	LLM []coach.Adapter
	TTS []SpeechAdapter
}

// App owns all subsystem lifetimes.
type App struct {
	cfg       *config.Config
	providers *Providers

	// Subsystems, initialised in New and torn down in Shutdown.
	metrics        *observe.Metrics
	metricsHandler http.Handler
	store          history.Store
	locator        leaderboard.Locator
	board          *leaderboard.Board
	orch           *coach.Orchestrator
	checkers       []health.Checker
	httpSrv        *http.Server

	// closers are called in order during Shutdown.
	closers []func() error

	stopOnce sync.Once
}

// Option is a functional option for New. Use these to inject test doubles.
type Option func(*App)

// WithHistoryStore injects a conversation store instead of creating one from
// config.
func WithHistoryStore(s history.Store) Option {
	return func(a *App) { a.store = s }
}

// WithLocator injects the leaderboard geolocation lookup.
func WithLocator(l leaderboard.Locator) Option {
	return func(a *App) { a.locator = l }
}

// WithMetrics records to m instead of [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(a *App) { a.metrics = m }
}

// WithMetricsHandler serves h on GET /metrics.
func WithMetricsHandler(h http.Handler) Option {
	return func(a *App) { a.metricsHandler = h }
}

// ─── New ─────────────────────────────────────────────────────────────────────

// New creates an App by wiring all subsystems together. The providers struct
// comes from main.go (populated via the config registry).
func New(ctx context.Context, cfg *config.Config, providers *Providers, opts ...Option) (*App, error) {
	if providers == nil {
		providers = &Providers{}
	}
	a := &App{
		cfg:       cfg,
		providers: providers,
	}
	for _, o := range opts {
		o(a)
	}
	if a.metrics == nil {
		a.metrics = observe.DefaultMetrics()
	}

	// ── 1. History store ─────────────────────────────────────────────────
	if err := a.initHistory(ctx); err != nil {
		return nil, fmt.Errorf("app: init history: %w", err)
	}

	// ── 2. Coach ─────────────────────────────────────────────────────────
	if err := a.initCoach(); err != nil {
		return nil, fmt.Errorf("app: init coach: %w", err)
	}

	// ── 3. Leaderboard ───────────────────────────────────────────────────
	a.initLeaderboard()

	// ── 4. HTTP surface ──────────────────────────────────────────────────
	a.initHTTP()

	return a, nil
}

// ─── Init helpers ────────────────────────────────────────────────────────────

// initHistory opens PostgreSQL when a DSN is configured and falls back to the
// in-process store otherwise.
func (a *App) initHistory(ctx context.Context) error {
	if a.store != nil {
		return nil
	}

	dsn := a.cfg.History.PostgresDSN
	if dsn == "" {
		slog.Info("history: using in-process store; conversations are lost on restart")
		a.store = memstore.New()
		return nil
	}

	store, err := postgres.NewStore(ctx, dsn)
	if err != nil {
		return err
	}
	a.store = store
	a.closers = append(a.closers, func() error {
		store.Close()
		return nil
	})
	a.checkers = append(a.checkers, health.Checker{
		Name:     "postgres",
		Critical: true,
		Check:    store.Ping,
	})
	return nil
}

// initCoach builds the LLM and TTS fallback groups and the orchestrator.
func (a *App) initCoach() error {
	contract, err := coach.ParseContract(a.cfg.Coach.Contract)
	if err != nil {
		return err
	}

	chain := coach.NewFallbackChain(
		a.providers.LLM,
		contract,
		a.fallbackConfig(),
		a.attemptHook(observe.KindLLM),
	)

	opts := []coach.Option{
		coach.WithMetrics(a.metrics),
		coach.WithTTSTimeout(a.cfg.Coach.TTSTimeout),
		coach.WithDefaultLanguages(a.cfg.Coach.DefaultSourceLang, a.cfg.Coach.DefaultTargetLang),
	}
	if len(a.providers.TTS) > 0 {
		speech := resilience.NewTTSFallback(a.fallbackConfig(), a.attemptHook(observe.KindTTS))
		for _, s := range a.providers.TTS {
			speech.AddFallback(s.Name, s.Provider)
		}
		opts = append(opts, coach.WithSpeech(speech))
	}
	a.orch = coach.NewOrchestrator(chain, opts...)

	llmCount := len(a.providers.LLM)
	a.checkers = append(a.checkers, health.Checker{
		Name: "llm",
		Check: func(context.Context) error {
			if llmCount == 0 {
				return errors.New("no language model configured; turns are simulated")
			}
			return nil
		},
	})

	slog.Info("coach ready",
		"contract", contract.String(),
		"llm_providers", len(a.providers.LLM),
		"tts_providers", len(a.providers.TTS),
	)
	return nil
}

func (a *App) fallbackConfig() resilience.FallbackConfig {
	return resilience.FallbackConfig{
		CircuitBreaker: resilience.CircuitBreakerConfig{
			MaxFailures:  a.cfg.Resilience.MaxFailures,
			ResetTimeout: a.cfg.Resilience.ResetTimeout,
			OnStateChange: func(name string, from, to resilience.State) {
				slog.Warn("circuit breaker state change", "provider", name, "from", from, "to", to)
				a.metrics.RecordBreakerTransition(context.Background(), name, to.String())
			},
		},
	}
}

func (a *App) attemptHook(kind string) resilience.AttemptHook {
	return func(ctx context.Context, name string, elapsed time.Duration, err error) {
		a.metrics.RecordProviderCall(ctx, name, kind, elapsed, err)
	}
}

func (a *App) initLeaderboard() {
	lb := a.cfg.Leaderboard
	if a.locator == nil && !lb.DisableGeo {
		a.locator = leaderboard.NewIPAPI(
			leaderboard.WithEndpoint(lb.GeoEndpoint),
			leaderboard.WithTimeout(lb.GeoTimeout),
			leaderboard.WithGeoMetrics(a.metrics),
		)
	}
	// A nil Locator interface makes the board report Unknown.
	a.board = leaderboard.New(a.locator, leaderboard.WithMetrics(a.metrics))
}

func (a *App) initHTTP() {
	opts := []api.Option{
		api.WithHealth(health.New(a.checkers...)),
		api.WithMetrics(a.metrics),
		api.WithCORSOrigins(a.cfg.Server.CORSOrigins),
		api.WithLeaderboardLimit(a.cfg.Leaderboard.Limit),
	}
	if a.metricsHandler != nil {
		opts = append(opts, api.WithMetricsHandler(a.metricsHandler))
	}
	srv := api.New(a.orch, a.store, a.board, opts...)

	a.httpSrv = &http.Server{
		Addr:              a.cfg.Server.ListenAddr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ErrorLog:          slog.NewLogLogger(slog.Default().Handler(), slog.LevelWarn),
	}
}

// Handler returns the routed HTTP handler.
func (a *App) Handler() http.Handler { return a.httpSrv.Handler }

// ─── Run ─────────────────────────────────────────────────────────────────────

// Run listens on the configured address and serves until ctx is cancelled.
// When ctx is done, Run returns nil; call [App.Shutdown] to drain requests.
func (a *App) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", a.cfg.Server.ListenAddr)
	if err != nil {
		return fmt.Errorf("app: listen %s: %w", a.cfg.Server.ListenAddr, err)
	}
	return a.Serve(ctx, ln)
}

// Serve is [App.Run] on an existing listener. It takes ownership of ln.
func (a *App) Serve(ctx context.Context, ln net.Listener) error {
	errCh := make(chan error, 1)
	go func() {
		if tls := a.cfg.Server.TLS; tls != nil {
			errCh <- a.httpSrv.ServeTLS(ln, tls.CertFile, tls.KeyFile)
			return
		}
		errCh <- a.httpSrv.Serve(ln)
	}()

	slog.Info("http server listening", "addr", ln.Addr().String(), "tls", a.cfg.Server.TLS != nil)

	select {
	case <-ctx.Done():
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("app: serve: %w", err)
	}
}

// ─── Shutdown ────────────────────────────────────────────────────────────────

// Shutdown stops accepting connections, waits for in-flight requests, then
// runs the closers in order. It respects the context deadline: if ctx
// expires, remaining closers are skipped and the context error is returned.
func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error
	a.stopOnce.Do(func() {
		slog.Info("shutting down", "closers", len(a.closers))

		if err := a.httpSrv.Shutdown(ctx); err != nil {
			slog.Warn("http shutdown error", "err", err)
			shutdownErr = err
		}

		for i, closer := range a.closers {
			select {
			case <-ctx.Done():
				slog.Warn("shutdown deadline exceeded", "remaining", len(a.closers)-i)
				shutdownErr = ctx.Err()
				return
			default:
			}
			if err := closer(); err != nil {
				slog.Warn("closer error", "index", i, "err", err)
			}
		}

		slog.Info("shutdown complete")
	})
	return shutdownErr
}
