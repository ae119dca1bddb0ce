package resilience

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/MrWong99/genautapi/pkg/provider/tts"
)

// TTSFallback implements [tts.Provider] with failover across several TTS
// backends. Each backend has its own circuit breaker.
type TTSFallback struct {
	group *FallbackGroup[tts.Provider]
	hook  AttemptHook
}

var _ tts.Provider = (*TTSFallback)(nil)

// NewTTSFallback creates an empty [TTSFallback]. hook may be nil.
func NewTTSFallback(cfg FallbackConfig, hook AttemptHook) *TTSFallback {
	if cfg.CircuitBreaker.IsFailure == nil {
		cfg.CircuitBreaker.IsFailure = func(err error) bool {
			return defaultIsFailure(err) &&
				!errors.Is(err, tts.ErrMissingCredential) &&
				!errors.Is(err, tts.ErrEmptyText)
		}
	}
	return &TTSFallback{group: NewFallbackGroup[tts.Provider](cfg), hook: hook}
}

// AddFallback registers a TTS provider. Providers are tried in the order added.
func (f *TTSFallback) AddFallback(name string, p tts.Provider) {
	f.group.AddFallback(name, p)
}

// Len returns the number of registered providers.
func (f *TTSFallback) Len() int { return f.group.Len() }

// Synthesize returns audio from the first provider that succeeds. Blank text
// is rejected up front rather than sent to every backend.
func (f *TTSFallback) Synthesize(ctx context.Context, text string) (tts.Audio, error) {
	if strings.TrimSpace(text) == "" {
		return tts.Audio{}, tts.ErrEmptyText
	}
	return ExecuteWithResult(ctx, f.group, func(ctx context.Context, name string, p tts.Provider) (tts.Audio, error) {
		start := time.Now()
		audio, err := p.Synthesize(ctx, text)
		if err == nil && audio.Empty() {
			err = tts.ErrEmptyAudio
		}
		if f.hook != nil {
			f.hook(ctx, name, time.Since(start), err)
		}
		return audio, err
	})
}
