// Package tts defines the Provider interface for Text-to-Speech backends.
//
// A TTS provider turns the coach's reply into a single playable clip. Speech
// is always a best-effort add-on to a turn: callers treat any error as "no
// audio" and carry on with the text reply.
//
// Implementations must be safe for concurrent use.
package tts

import (
	"context"
	"errors"
	"time"
)

// DefaultTimeout bounds one synthesis call so a slow backend cannot stall a reply.
const DefaultTimeout = 15 * time.Second

var (
	// ErrEmptyText is returned when Synthesize is called with blank text.
	ErrEmptyText = errors.New("tts: empty text")

	// ErrMissingCredential is returned by providers that were configured
	// without the API key they need.
	ErrMissingCredential = errors.New("tts: missing credential")

	// ErrEmptyAudio is returned when the backend answered without any audio.
	ErrEmptyAudio = errors.New("tts: empty audio")
)

// Audio is one synthesized clip.
type Audio struct {
	// Data holds the encoded audio bytes.
	Data []byte

	// MIMEType labels Data for clients, e.g. "audio/mpeg" or "audio/wav".
	MIMEType string
}

// Empty reports whether the clip carries no audio.
func (a Audio) Empty() bool { return len(a.Data) == 0 }

// Provider is the abstraction over any TTS backend.
type Provider interface {
	// Synthesize renders text as speech and returns the complete clip.
	// Returns ErrEmptyText for blank input.
	Synthesize(ctx context.Context, text string) (Audio, error)
}

// MIMEForFormat maps a short output format name to its MIME type.
// Unknown formats map to "application/octet-stream".
func MIMEForFormat(format string) string {
	switch format {
	case "mp3":
		return "audio/mpeg"
	case "wav":
		return "audio/wav"
	case "opus":
		return "audio/opus"
	case "aac":
		return "audio/aac"
	case "flac":
		return "audio/flac"
	case "pcm":
		return "audio/pcm"
	}
	return "application/octet-stream"
}
