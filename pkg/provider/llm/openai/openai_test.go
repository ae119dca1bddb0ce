package openai

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/MrWong99/genautapi/pkg/provider/llm"
)

// chatResponse renders a minimal chat.completion body with the given content.
func chatResponse(content string) string {
	body, _ := json.Marshal(map[string]any{
		"id":      "chatcmpl-1",
		"object":  "chat.completion",
		"created": 1,
		"model":   "gpt-4o-mini",
		"choices": []map[string]any{{
			"index":         0,
			"finish_reason": "stop",
			"message":       map[string]any{"role": "assistant", "content": content},
		}},
		"usage": map[string]any{"prompt_tokens": 1, "completion_tokens": 1, "total_tokens": 2},
	})
	return string(body)
}

func newTestServer(t *testing.T, handler http.HandlerFunc) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return srv
}

func TestInvoke_TextMode(t *testing.T) {
	var gotBody map[string]any
	srv := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/chat/completions") {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		if auth := r.Header.Get("Authorization"); auth != "Bearer sk-test" {
			t.Errorf("Authorization = %q", auth)
		}
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(chatResponse("REPLY: Hallo!")))
	})

	p := New("sk-test", "", WithBaseURL(srv.URL+"/"))
	got, err := p.Invoke(context.Background(), "coach me")
	if err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	if got != "REPLY: Hallo!" {
		t.Errorf("payload = %q, want %q", got, "REPLY: Hallo!")
	}
	if gotBody["model"] != DefaultModel {
		t.Errorf("model = %v, want %s", gotBody["model"], DefaultModel)
	}
	if _, ok := gotBody["response_format"]; ok {
		t.Errorf("text mode must not send response_format, got %v", gotBody["response_format"])
	}
	msgs, _ := gotBody["messages"].([]any)
	if len(msgs) != 1 {
		t.Fatalf("messages len = %d, want 1", len(msgs))
	}
	first, _ := msgs[0].(map[string]any)
	if first["role"] != "system" || first["content"] != "coach me" {
		t.Errorf("message = %v, want system/coach me", first)
	}
}

func TestInvoke_JSONModeSendsResponseFormat(t *testing.T) {
	var gotBody map[string]any
	srv := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(chatResponse(`{"reply":"Hallo"}`)))
	})

	p := New("sk-test", "gpt-4o", WithBaseURL(srv.URL+"/"), WithJSONMode(true))
	if _, err := p.Invoke(context.Background(), "json please"); err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	rf, _ := gotBody["response_format"].(map[string]any)
	if rf["type"] != "json_object" {
		t.Errorf("response_format = %v, want type json_object", gotBody["response_format"])
	}
	if !p.Capabilities().JSONMode {
		t.Error("Capabilities().JSONMode = false, want true")
	}
}

func TestInvoke_MissingKey(t *testing.T) {
	called := false
	srv := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		called = true
	})

	p := New("", "", WithBaseURL(srv.URL+"/"))
	_, err := p.Invoke(context.Background(), "x")
	if !errors.Is(err, llm.ErrMissingCredential) {
		t.Fatalf("err = %v, want ErrMissingCredential", err)
	}
	var pe *llm.ProviderError
	if !errors.As(err, &pe) || pe.Provider != "openai" {
		t.Errorf("err = %#v, want *ProviderError from openai", err)
	}
	if called {
		t.Error("server was called without a credential")
	}
}

func TestInvoke_BadStatusIsNotRetried(t *testing.T) {
	calls := 0
	srv := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":{"message":"boom","type":"server_error"}}`))
	})

	p := New("sk-test", "", WithBaseURL(srv.URL+"/"))
	_, err := p.Invoke(context.Background(), "x")
	if !errors.Is(err, llm.ErrBadStatus) {
		t.Fatalf("err = %v, want ErrBadStatus", err)
	}
	if calls != 1 {
		t.Errorf("server calls = %d, want 1", calls)
	}
}

func TestInvoke_EmptyContent(t *testing.T) {
	srv := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(chatResponse("   ")))
	})

	p := New("sk-test", "", WithBaseURL(srv.URL+"/"))
	_, err := p.Invoke(context.Background(), "x")
	if !errors.Is(err, llm.ErrEmptyResponse) {
		t.Fatalf("err = %v, want ErrEmptyResponse", err)
	}
}

func TestInvoke_Timeout(t *testing.T) {
	srv := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	})

	p := New("sk-test", "", WithBaseURL(srv.URL+"/"), WithTimeout(50*time.Millisecond))
	start := time.Now()
	_, err := p.Invoke(context.Background(), "x")
	var pe *llm.ProviderError
	if !errors.As(err, &pe) {
		t.Fatalf("err = %v, want *ProviderError", err)
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("Invoke took %v, want it bounded by the timeout", elapsed)
	}
}
