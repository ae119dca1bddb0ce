package main

import (
	"errors"
	"testing"
	"time"

	"github.com/MrWong99/genautapi/internal/config"
	"github.com/MrWong99/genautapi/pkg/provider/llm"
)

func TestBuildProviders_Defaults(t *testing.T) {
	t.Parallel()

	reg := config.NewRegistry()
	registerBuiltinProviders(reg, 20*time.Second)

	ps, err := buildProviders(config.Default(), reg)
	if err != nil {
		t.Fatalf("buildProviders: %v", err)
	}
	if len(ps.LLM) != 2 || ps.LLM[0].Name != "openai" || ps.LLM[1].Name != "gemini" {
		t.Errorf("llm adapters = %+v", ps.LLM)
	}
	if len(ps.TTS) != 1 || ps.TTS[0].Name != "openai" {
		t.Errorf("tts adapters = %+v", ps.TTS)
	}
	if caps := ps.LLM[0].Provider.Capabilities(); !caps.JSONMode {
		t.Errorf("openai capabilities = %+v, want JSON mode", caps)
	}
}

func TestBuildProviders_AllBuiltins(t *testing.T) {
	t.Parallel()

	reg := config.NewRegistry()
	registerBuiltinProviders(reg, time.Second)

	cfg := config.Default()
	cfg.Providers.LLM = []config.ProviderEntry{
		{Name: "compat", BaseURL: "http://localhost:1234/v1", Model: "local", Options: map[string]any{"key_optional": true, "name": "lmstudio"}},
		{Name: "anyllm", Model: "llama3", Options: map[string]any{"backend": "ollama"}},
		{Name: "ollama", Model: "llama3"},
		{Name: "not-a-provider"},
	}
	cfg.Providers.TTS = []config.ProviderEntry{
		{Name: "elevenlabs", Options: map[string]any{"voice_id": "v1"}},
		{Name: "coqui", BaseURL: "http://localhost:5002", Options: map[string]any{"api_mode": "xtts"}},
	}

	ps, err := buildProviders(cfg, reg)
	if err != nil {
		t.Fatalf("buildProviders: %v", err)
	}
	if len(ps.LLM) != 3 {
		t.Fatalf("built %d llm adapters, want 3 (unknown name skipped)", len(ps.LLM))
	}
	if got := ps.LLM[0].Provider.Capabilities().Name; got != "lmstudio" {
		t.Errorf("compat name = %q, want lmstudio", got)
	}
	if len(ps.TTS) != 2 {
		t.Errorf("built %d tts adapters, want 2", len(ps.TTS))
	}
}

func TestBuildProviders_FactoryError(t *testing.T) {
	t.Parallel()

	reg := config.NewRegistry()
	registerBuiltinProviders(reg, time.Second)

	cfg := config.Default()
	cfg.Providers.LLM = []config.ProviderEntry{{Name: "anyllm", Model: "x"}}
	if _, err := buildProviders(cfg, reg); err == nil {
		t.Fatal("anyllm without backend returned nil error")
	}

	boom := errors.New("boom")
	reg.RegisterLLM("openai", func(config.ProviderEntry) (llm.Provider, error) { return nil, boom })
	cfg.Providers.LLM = []config.ProviderEntry{{Name: "openai"}}
	if _, err := buildProviders(cfg, reg); !errors.Is(err, boom) {
		t.Errorf("err = %v, want wrapped boom", err)
	}
}
