// Package api is the HTTP surface of the coaching backend: chat turns,
// sessions and history, the leaderboard, probes and metrics.
package api

import (
	_ "embed"
	"net/http"

	"github.com/MrWong99/genautapi/internal/coach"
	"github.com/MrWong99/genautapi/internal/health"
	"github.com/MrWong99/genautapi/internal/leaderboard"
	"github.com/MrWong99/genautapi/internal/observe"
	"github.com/MrWong99/genautapi/pkg/history"
)

// maxBodyBytes caps request bodies.
const maxBodyBytes = 1 << 20

//go:embed static/index.html
var indexHTML []byte

// Server holds the collaborators the handlers need. Build it with [New] and
// mount [Server.Handler].
type Server struct {
	coach   *coach.Orchestrator
	history history.Store
	board   *leaderboard.Board

	health         *health.Handler
	metrics        *observe.Metrics
	metricsHandler http.Handler
	corsOrigins    []string
	boardLimit     int
}

// Option configures a [Server].
type Option func(*Server)

// WithHealth serves /healthz and /readyz from h. Without it both probes
// always pass.
func WithHealth(h *health.Handler) Option {
	return func(s *Server) { s.health = h }
}

// WithMetrics records request metrics to m instead of [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(s *Server) { s.metrics = m }
}

// WithMetricsHandler serves h on GET /metrics.
func WithMetricsHandler(h http.Handler) Option {
	return func(s *Server) { s.metricsHandler = h }
}

// WithCORSOrigins sets the allowed origins. Defaults to "*".
func WithCORSOrigins(origins []string) Option {
	return func(s *Server) {
		if len(origins) > 0 {
			s.corsOrigins = origins
		}
	}
}

// WithLeaderboardLimit sets the row count of GET /leaderboard without ?limit.
func WithLeaderboardLimit(n int) Option {
	return func(s *Server) {
		if n > 0 {
			s.boardLimit = n
		}
	}
}

// New creates a Server.
func New(orch *coach.Orchestrator, store history.Store, board *leaderboard.Board, opts ...Option) *Server {
	s := &Server{
		coach:       orch,
		history:     store,
		board:       board,
		corsOrigins: []string{"*"},
		boardLimit:  leaderboard.DefaultLimit,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.health == nil {
		s.health = health.New()
	}
	if s.metrics == nil {
		s.metrics = observe.DefaultMetrics()
	}
	return s
}

// Handler returns the routed handler wrapped in CORS and observability
// middleware.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /{$}", s.handleIndex)
	mux.HandleFunc("GET /status", s.handleStatus)
	mux.HandleFunc("GET /topics", s.handleTopics)
	mux.HandleFunc("POST /sessions", s.handleCreateSession)
	mux.HandleFunc("POST /chat", s.handleChat)
	mux.HandleFunc("GET /history/{session_id}", s.handleHistory)
	mux.HandleFunc("GET /leaderboard", s.handleLeaderboard)
	s.health.Register(mux)
	if s.metricsHandler != nil {
		mux.Handle("GET /metrics", s.metricsHandler)
	}

	return observe.Middleware(s.metrics)(cors(s.corsOrigins)(mux))
}
