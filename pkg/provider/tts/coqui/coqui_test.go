package coqui

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/MrWong99/genautapi/pkg/provider/tts"
)

// buildTestWAV constructs a minimal valid RIFF/WAVE file around pcm.
func buildTestWAV(pcm []byte) []byte {
	fmtSize := uint32(16)
	dataSize := uint32(len(pcm))
	fileSize := 4 + (8 + fmtSize) + (8 + dataSize)

	buf := make([]byte, 0, 12+8+fmtSize+8+dataSize)
	le := binary.LittleEndian
	putU32 := func(v uint32) { buf = le.AppendUint32(buf, v) }
	putU16 := func(v uint16) { buf = le.AppendUint16(buf, v) }

	buf = append(buf, "RIFF"...)
	putU32(fileSize)
	buf = append(buf, "WAVE"...)

	buf = append(buf, "fmt "...)
	putU32(fmtSize)
	putU16(1)     // PCM
	putU16(1)     // mono
	putU32(22050) // sample rate
	putU32(44100) // byte rate
	putU16(2)     // block align
	putU16(16)    // bits per sample

	buf = append(buf, "data"...)
	putU32(dataSize)
	return append(buf, pcm...)
}

func mustNew(t *testing.T, serverURL string, opts ...Option) *Provider {
	t.Helper()
	p, err := New(serverURL, opts...)
	if err != nil {
		t.Fatalf("New(%q): unexpected error: %v", serverURL, err)
	}
	return p
}

func TestNew(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		p := mustNew(t, "http://localhost:5002/")
		if p.serverURL != "http://localhost:5002" {
			t.Errorf("serverURL = %q, want trailing slash stripped", p.serverURL)
		}
		if p.language != "de" {
			t.Errorf("language = %q, want de", p.language)
		}
		if p.apiMode != APIModeStandard {
			t.Errorf("apiMode = %q, want standard", p.apiMode)
		}
		if p.httpClient.Timeout != tts.DefaultTimeout {
			t.Errorf("timeout = %v, want %v", p.httpClient.Timeout, tts.DefaultTimeout)
		}
	})

	t.Run("empty url", func(t *testing.T) {
		if _, err := New(""); err == nil {
			t.Error("expected error for empty serverURL")
		}
	})

	t.Run("unknown mode", func(t *testing.T) {
		if _, err := New("http://x", WithAPIMode("bark")); err == nil {
			t.Error("expected error for unknown api mode")
		}
	})

	t.Run("timeout option", func(t *testing.T) {
		p := mustNew(t, "http://x", WithTimeout(3*time.Second))
		if p.httpClient.Timeout != 3*time.Second {
			t.Errorf("timeout = %v, want 3s", p.httpClient.Timeout)
		}
	})
}

func TestSynthesize_Standard(t *testing.T) {
	wav := buildTestWAV([]byte{1, 2, 3, 4})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet || r.URL.Path != "/api/tts" {
			t.Errorf("unexpected %s %s", r.Method, r.URL.Path)
		}
		q := r.URL.Query()
		if q.Get("text") != "Guten Morgen!" {
			t.Errorf("text = %q", q.Get("text"))
		}
		if q.Get("language_id") != "de" {
			t.Errorf("language_id = %q", q.Get("language_id"))
		}
		if q.Get("speaker_id") != "p225" {
			t.Errorf("speaker_id = %q", q.Get("speaker_id"))
		}
		w.Header().Set("Content-Type", "audio/wav")
		_, _ = w.Write(wav)
	}))
	defer srv.Close()

	p := mustNew(t, srv.URL, WithSpeaker("p225"))
	audio, err := p.Synthesize(context.Background(), "Guten Morgen!")
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	if !bytes.Equal(audio.Data, wav) {
		t.Error("expected the full WAV file to be returned")
	}
	if audio.MIMEType != "audio/wav" {
		t.Errorf("MIMEType = %q", audio.MIMEType)
	}
}

func TestSynthesize_XTTS(t *testing.T) {
	var got ttsRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/tts_to_audio/" {
			t.Errorf("unexpected %s %s", r.Method, r.URL.Path)
		}
		_ = json.NewDecoder(r.Body).Decode(&got)
		_, _ = w.Write(buildTestWAV([]byte{9, 9}))
	}))
	defer srv.Close()

	p := mustNew(t, srv.URL, WithAPIMode(APIModeXTTS), WithSpeaker("tapi.wav"))
	if _, err := p.Synthesize(context.Background(), "Hallo"); err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	if got.Text != "Hallo" || got.SpeakerWav != "tapi.wav" || got.Language != "de" {
		t.Errorf("request = %+v", got)
	}
}

func TestSynthesize_Errors(t *testing.T) {
	t.Run("bad status", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
		}))
		defer srv.Close()
		if _, err := mustNew(t, srv.URL).Synthesize(context.Background(), "x"); err == nil {
			t.Fatal("expected error on 500")
		}
	})

	t.Run("not a wav", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte("<html>oops</html>"))
		}))
		defer srv.Close()
		if _, err := mustNew(t, srv.URL).Synthesize(context.Background(), "x"); err == nil {
			t.Fatal("expected error for non-WAV body")
		}
	})

	t.Run("empty data chunk", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write(buildTestWAV(nil))
		}))
		defer srv.Close()
		_, err := mustNew(t, srv.URL).Synthesize(context.Background(), "x")
		if !errors.Is(err, tts.ErrEmptyAudio) {
			t.Fatalf("err = %v, want ErrEmptyAudio", err)
		}
	})

	t.Run("blank text", func(t *testing.T) {
		_, err := mustNew(t, "http://unused").Synthesize(context.Background(), "  ")
		if !errors.Is(err, tts.ErrEmptyText) {
			t.Fatalf("err = %v, want ErrEmptyText", err)
		}
	})
}

func TestParseWAV(t *testing.T) {
	info, err := parseWAV(buildTestWAV([]byte{0, 0}))
	if err != nil {
		t.Fatalf("parseWAV: %v", err)
	}
	if info.DataOffset != 44 || info.SampleRate != 22050 || info.Channels != 1 {
		t.Errorf("info = %+v", info)
	}

	for _, bad := range [][]byte{nil, []byte("RIFF1234WAVX"), []byte("RIFF\x04\x00\x00\x00WAVE")} {
		if _, err := parseWAV(bad); err == nil {
			t.Errorf("parseWAV(%q): expected error", bad)
		}
	}
}
