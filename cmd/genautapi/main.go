// Command genautapi is the main entry point for the GenauTapi language coach
// backend.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/MrWong99/genautapi/internal/app"
	"github.com/MrWong99/genautapi/internal/coach"
	"github.com/MrWong99/genautapi/internal/config"
	"github.com/MrWong99/genautapi/internal/observe"
	"github.com/MrWong99/genautapi/pkg/provider/llm"
	"github.com/MrWong99/genautapi/pkg/provider/llm/anyllm"
	"github.com/MrWong99/genautapi/pkg/provider/llm/compat"
	"github.com/MrWong99/genautapi/pkg/provider/llm/gemini"
	"github.com/MrWong99/genautapi/pkg/provider/llm/openai"
	"github.com/MrWong99/genautapi/pkg/provider/tts"
	"github.com/MrWong99/genautapi/pkg/provider/tts/coqui"
	"github.com/MrWong99/genautapi/pkg/provider/tts/elevenlabs"
	oatts "github.com/MrWong99/genautapi/pkg/provider/tts/openai"
)

// version is stamped at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	envPath := flag.String("env", ".env", "path to an optional dotenv file")
	flag.Parse()

	// ── Environment ───────────────────────────────────────────────────────────
	if err := godotenv.Load(*envPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "genautapi: load %s: %v\n", *envPath, err)
		return 1
	}

	// ── Load configuration ────────────────────────────────────────────────────
	cfg, err := config.Load(*configPath)
	switch {
	case errors.Is(err, os.ErrNotExist):
		fmt.Fprintf(os.Stderr, "genautapi: config file %q not found, using built-in defaults\n", *configPath)
		cfg = config.Default()
	case err != nil:
		fmt.Fprintf(os.Stderr, "genautapi: %v\n", err)
		return 1
	}
	config.ApplyEnv(cfg, os.LookupEnv)

	// ── Logger ────────────────────────────────────────────────────────────────
	slog.SetDefault(newLogger(cfg.Server.LogLevel, cfg.Server.LogFormat))

	if err := config.Validate(cfg); err != nil {
		slog.Error("invalid configuration", "err", err)
		return 1
	}

	slog.Info("genautapi starting",
		"version", version,
		"config", *configPath,
		"listen_addr", cfg.Server.ListenAddr,
		"log_level", cfg.Server.LogLevel,
	)

	// ── Telemetry ─────────────────────────────────────────────────────────────
	otelShutdown, err := observe.InitProvider(context.Background(), observe.ProviderConfig{
		ServiceVersion: version,
	})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}

	// ── Provider registry ─────────────────────────────────────────────────────
	reg := config.NewRegistry()
	registerBuiltinProviders(reg, cfg.Coach.ProviderTimeout)

	providers, err := buildProviders(cfg, reg)
	if err != nil {
		slog.Error("failed to build providers", "err", err)
		return 1
	}

	// ── Signal context ────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	printStartupSummary(cfg)

	application, err := app.New(ctx, cfg, providers,
		app.WithMetrics(observe.DefaultMetrics()),
		app.WithMetricsHandler(observe.MetricsHandler()),
	)
	if err != nil {
		slog.Error("failed to initialise application", "err", err)
		return 1
	}

	slog.Info("server ready, press Ctrl+C to shut down")

	if err := application.Run(ctx); err != nil {
		slog.Error("run error", "err", err)
		return 1
	}

	// ── Graceful shutdown ─────────────────────────────────────────────────────
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	slog.Info("shutdown signal received, stopping…")

	code := 0
	if err := application.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "err", err)
		code = 1
	}
	if err := otelShutdown(shutdownCtx); err != nil {
		slog.Warn("telemetry shutdown error", "err", err)
	}
	slog.Info("goodbye")
	return code
}

// ── Provider wiring ───────────────────────────────────────────────────────────

// anyllmBackends are registered under their own names and built through
// any-llm-go.
var anyllmBackends = []string{"anthropic", "deepseek", "groq", "llamacpp", "llamafile", "mistral", "ollama"}

// registerBuiltinProviders wires all built-in provider factories into reg.
// Entries without their own timeout use defaultTimeout.
func registerBuiltinProviders(reg *config.Registry, defaultTimeout time.Duration) {
	timeout := func(entry config.ProviderEntry) time.Duration {
		if entry.Timeout > 0 {
			return entry.Timeout
		}
		return defaultTimeout
	}

	// ── LLM ───────────────────────────────────────────────────────────────────

	reg.RegisterLLM("openai", func(entry config.ProviderEntry) (llm.Provider, error) {
		opts := []openai.Option{
			openai.WithTimeout(timeout(entry)),
			openai.WithJSONMode(entry.JSONMode),
		}
		if entry.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(entry.BaseURL))
		}
		if org := entry.Option("organization"); org != "" {
			opts = append(opts, openai.WithOrganization(org))
		}
		return openai.New(entry.APIKey, entry.Model, opts...), nil
	})

	reg.RegisterLLM("gemini", func(entry config.ProviderEntry) (llm.Provider, error) {
		opts := []gemini.Option{
			gemini.WithTimeout(timeout(entry)),
			gemini.WithJSONMode(entry.JSONMode),
		}
		if entry.BaseURL != "" {
			opts = append(opts, gemini.WithBaseURL(entry.BaseURL))
		}
		return gemini.New(context.Background(), entry.APIKey, entry.Model, opts...)
	})

	// compat speaks the OpenAI chat API to any compatible endpoint.
	reg.RegisterLLM("compat", func(entry config.ProviderEntry) (llm.Provider, error) {
		opts := []compat.Option{
			compat.WithTimeout(timeout(entry)),
			compat.WithJSONMode(entry.JSONMode),
		}
		if name := entry.Option("name"); name != "" {
			opts = append(opts, compat.WithName(name))
		}
		if entry.BoolOption("key_optional") {
			opts = append(opts, compat.WithKeyOptional())
		}
		return compat.New(entry.BaseURL, entry.APIKey, entry.Model, opts...)
	})

	newAnyLLM := func(backend string, entry config.ProviderEntry) (llm.Provider, error) {
		opts := []anyllm.Option{anyllm.WithTimeout(timeout(entry))}
		if entry.APIKey != "" {
			opts = append(opts, anyllm.WithAPIKey(entry.APIKey))
		}
		if entry.BaseURL != "" {
			opts = append(opts, anyllm.WithBaseURL(entry.BaseURL))
		}
		return anyllm.New(backend, entry.Model, opts...)
	}
	reg.RegisterLLM("anyllm", func(entry config.ProviderEntry) (llm.Provider, error) {
		backend := entry.Option("backend")
		if backend == "" {
			return nil, errors.New("anyllm: options.backend is required")
		}
		return newAnyLLM(backend, entry)
	})
	for _, backend := range anyllmBackends {
		reg.RegisterLLM(backend, func(entry config.ProviderEntry) (llm.Provider, error) {
			return newAnyLLM(backend, entry)
		})
	}

	// ── TTS ───────────────────────────────────────────────────────────────────

	reg.RegisterTTS("openai", func(entry config.ProviderEntry) (tts.Provider, error) {
		opts := []oatts.Option{oatts.WithTimeout(timeout(entry))}
		if entry.BaseURL != "" {
			opts = append(opts, oatts.WithBaseURL(entry.BaseURL))
		}
		if voice := entry.Option("voice"); voice != "" {
			opts = append(opts, oatts.WithVoice(voice))
		}
		if format := entry.Option("format"); format != "" {
			opts = append(opts, oatts.WithFormat(format))
		}
		return oatts.New(entry.APIKey, entry.Model, opts...), nil
	})

	reg.RegisterTTS("elevenlabs", func(entry config.ProviderEntry) (tts.Provider, error) {
		opts := []elevenlabs.Option{elevenlabs.WithTimeout(timeout(entry))}
		if entry.Model != "" {
			opts = append(opts, elevenlabs.WithModel(entry.Model))
		}
		if entry.BaseURL != "" {
			opts = append(opts, elevenlabs.WithBaseURL(entry.BaseURL))
		}
		if voice := entry.Option("voice_id"); voice != "" {
			opts = append(opts, elevenlabs.WithVoice(voice))
		}
		if outputFmt := entry.Option("output_format"); outputFmt != "" {
			opts = append(opts, elevenlabs.WithOutputFormat(outputFmt))
		}
		return elevenlabs.New(entry.APIKey, opts...), nil
	})

	reg.RegisterTTS("coqui", func(entry config.ProviderEntry) (tts.Provider, error) {
		opts := []coqui.Option{coqui.WithTimeout(timeout(entry))}
		if lang := entry.Option("language"); lang != "" {
			opts = append(opts, coqui.WithLanguage(lang))
		}
		if speaker := entry.Option("speaker"); speaker != "" {
			opts = append(opts, coqui.WithSpeaker(speaker))
		}
		if mode := entry.Option("api_mode"); mode != "" {
			opts = append(opts, coqui.WithAPIMode(coqui.APIMode(mode)))
		}
		return coqui.New(entry.BaseURL, opts...)
	})

	slog.Debug("registered providers", "llm", reg.LLMNames(), "tts", reg.TTSNames())
}

// buildProviders instantiates every configured provider in list order. A
// name without a factory is skipped with a warning; a factory error aborts
// startup.
func buildProviders(cfg *config.Config, reg *config.Registry) (*app.Providers, error) {
	ps := &app.Providers{}

	for _, entry := range cfg.Providers.LLM {
		p, err := reg.CreateLLM(entry)
		if errors.Is(err, config.ErrProviderNotRegistered) {
			slog.Warn("unknown provider, skipping", "kind", "llm", "name", entry.Name)
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("create llm provider %q: %w", entry.Name, err)
		}
		ps.LLM = append(ps.LLM, coach.Adapter{Name: entry.Name, Provider: p})
		slog.Info("provider created", "kind", "llm", "name", entry.Name, "has_key", entry.APIKey != "")
	}

	for _, entry := range cfg.Providers.TTS {
		p, err := reg.CreateTTS(entry)
		if errors.Is(err, config.ErrProviderNotRegistered) {
			slog.Warn("unknown provider, skipping", "kind", "tts", "name", entry.Name)
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("create tts provider %q: %w", entry.Name, err)
		}
		ps.TTS = append(ps.TTS, app.SpeechAdapter{Name: entry.Name, Provider: p})
		slog.Info("provider created", "kind", "tts", "name", entry.Name, "has_key", entry.APIKey != "")
	}

	return ps, nil
}

// ── Startup summary ───────────────────────────────────────────────────────────

func printStartupSummary(cfg *config.Config) {
	fmt.Println("╔═══════════════════════════════════════╗")
	fmt.Println("║        GenauTapi startup summary      ║")
	fmt.Println("╠═══════════════════════════════════════╣")
	printList("LLM", cfg.Providers.LLM)
	printList("TTS", cfg.Providers.TTS)
	printRow("Contract", cfg.Coach.Contract)
	history := "in-process"
	if cfg.History.PostgresDSN != "" {
		history = "postgres"
	}
	printRow("History", history)
	geo := "ip-api"
	if cfg.Leaderboard.DisableGeo {
		geo = "(disabled)"
	}
	printRow("Geolocation", geo)
	printRow("Listen addr", cfg.Server.ListenAddr)
	fmt.Println("╚═══════════════════════════════════════╝")
}

func printList(kind string, entries []config.ProviderEntry) {
	if len(entries) == 0 {
		printRow(kind, "(not configured)")
		return
	}
	for i, e := range entries {
		value := e.Name
		if e.Model != "" {
			value += " / " + e.Model
		}
		if e.APIKey == "" {
			value += " (no key)"
		}
		label := kind
		if i > 0 {
			label = ""
		}
		printRow(label, value)
	}
}

func printRow(label, value string) {
	if len(value) > 19 {
		value = value[:16] + "…"
	}
	fmt.Printf("║  %-12s    : %-19s ║\n", label, value)
}

// ── Logger ─────────────────────────────────────────────────────────────────────

func newLogger(level config.LogLevel, format config.LogFormat) *slog.Logger {
	var lvl slog.Level
	switch level {
	case config.LogDebug:
		lvl = slog.LevelDebug
	case config.LogWarn:
		lvl = slog.LevelWarn
	case config.LogError:
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: lvl}
	if format == config.LogFormatJSON {
		return slog.New(slog.NewJSONHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, opts))
}
