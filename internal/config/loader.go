package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"
)

// ValidProviderNames lists known provider names per kind. [Validate] warns
// about names outside these lists.
var ValidProviderNames = map[string][]string{
	"llm": {"openai", "gemini", "compat", "anyllm", "anthropic", "deepseek", "groq", "llamacpp", "llamafile", "mistral", "ollama"},
	"tts": {"openai", "elevenlabs", "coqui"},
}

var validContracts = []string{"lines", "json"}

// Load reads the YAML file at path on top of [Default] and validates the
// result. A missing file yields an error wrapping [os.ErrNotExist].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes YAML from r on top of [Default] and validates the
// result. Unknown keys are rejected. An empty document yields the defaults.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := Default()
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LookupFunc has the signature of [os.LookupEnv].
type LookupFunc func(key string) (string, bool)

// ApplyEnv overlays environment values onto cfg:
//
//   - OPENAI_API_KEY and GEMINI_API_KEY fill empty api_key fields of entries
//     named openai and gemini.
//   - DATABASE_URL sets history.postgres_dsn.
//   - PORT sets server.listen_addr to ":$PORT".
//   - GENAUTAPI_LOG_LEVEL overrides server.log_level.
func ApplyEnv(cfg *Config, lookup LookupFunc) {
	keys := map[string]string{"openai": "OPENAI_API_KEY", "gemini": "GEMINI_API_KEY"}
	fill := func(entries []ProviderEntry) {
		for i := range entries {
			env, ok := keys[entries[i].Name]
			if !ok || entries[i].APIKey != "" {
				continue
			}
			if v, ok := lookup(env); ok && v != "" {
				entries[i].APIKey = v
			}
		}
	}
	fill(cfg.Providers.LLM)
	fill(cfg.Providers.TTS)

	if v, ok := lookup("DATABASE_URL"); ok && v != "" {
		cfg.History.PostgresDSN = v
	}
	if v, ok := lookup("PORT"); ok && v != "" {
		cfg.Server.ListenAddr = ":" + strings.TrimPrefix(v, ":")
	}
	if v, ok := lookup("GENAUTAPI_LOG_LEVEL"); ok && v != "" {
		cfg.Server.LogLevel = LogLevel(strings.ToLower(v))
	}
}

// Validate checks that cfg is coherent and returns every problem found,
// joined. Recoverable oddities are logged as warnings instead.
func Validate(cfg *Config) error {
	var errs []error

	// Server
	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}
	if cfg.Server.LogFormat != "" && !cfg.Server.LogFormat.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_format %q is invalid; valid values: text, json", cfg.Server.LogFormat))
	}
	if tls := cfg.Server.TLS; tls != nil && (tls.CertFile == "" || tls.KeyFile == "") {
		errs = append(errs, errors.New("server.tls requires both cert_file and key_file"))
	}

	// Coach
	if !slices.Contains(validContracts, strings.ToLower(cfg.Coach.Contract)) {
		errs = append(errs, fmt.Errorf("coach.contract %q is invalid; valid values: %s", cfg.Coach.Contract, strings.Join(validContracts, ", ")))
	}
	if cfg.Coach.ProviderTimeout < 0 {
		errs = append(errs, fmt.Errorf("coach.provider_timeout %s must not be negative", cfg.Coach.ProviderTimeout))
	}
	if cfg.Coach.TTSTimeout < 0 {
		errs = append(errs, fmt.Errorf("coach.tts_timeout %s must not be negative", cfg.Coach.TTSTimeout))
	}

	// Providers
	errs = append(errs, validateEntries("llm", cfg.Providers.LLM)...)
	errs = append(errs, validateEntries("tts", cfg.Providers.TTS)...)
	if len(cfg.Providers.LLM) == 0 {
		slog.Warn("no LLM providers configured; every turn will use a simulated reply")
	}

	// History
	if dsn := cfg.History.PostgresDSN; dsn != "" && !strings.HasPrefix(dsn, "postgres://") && !strings.HasPrefix(dsn, "postgresql://") {
		slog.Warn("history.postgres_dsn is not a postgres:// URL; passing it to the driver as-is")
	}

	// Leaderboard
	if cfg.Leaderboard.Limit < 0 {
		errs = append(errs, fmt.Errorf("leaderboard.limit %d must not be negative", cfg.Leaderboard.Limit))
	}

	// Resilience
	if cfg.Resilience.MaxFailures < 0 {
		errs = append(errs, fmt.Errorf("resilience.max_failures %d must not be negative", cfg.Resilience.MaxFailures))
	}

	return errors.Join(errs...)
}

func validateEntries(kind string, entries []ProviderEntry) []error {
	var errs []error
	seen := make(map[string]int, len(entries))
	for i, e := range entries {
		prefix := fmt.Sprintf("providers.%s[%d]", kind, i)
		if e.Name == "" {
			errs = append(errs, fmt.Errorf("%s.name is required", prefix))
			continue
		}
		if prev, ok := seen[e.Name]; ok {
			errs = append(errs, fmt.Errorf("%s.name %q is a duplicate of providers.%s[%d]", prefix, e.Name, kind, prev))
		}
		seen[e.Name] = i
		if e.Timeout < 0 {
			errs = append(errs, fmt.Errorf("%s.timeout %s must not be negative", prefix, e.Timeout))
		}
		validateProviderName(kind, e.Name)
	}
	return errs
}

// validateProviderName logs a warning if name is not in [ValidProviderNames].
func validateProviderName(kind, name string) {
	known, ok := ValidProviderNames[kind]
	if !ok || slices.Contains(known, name) {
		return
	}
	slog.Warn("unknown provider name, may be a typo or third-party provider",
		"kind", kind,
		"name", name,
		"known", known,
	)
}
