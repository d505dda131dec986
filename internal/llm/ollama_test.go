package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ndelin/parley/internal/config"
)

func TestOllamaChat(t *testing.T) {
	var captured ollamaRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/chat" {
			t.Errorf("path = %q, want /api/chat", r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&captured); err != nil {
			t.Fatalf("decode request: %v", err)
		}

		json.NewEncoder(w).Encode(map[string]any{
			"model":             "qwen3:4b",
			"message":           map[string]any{"role": "assistant", "content": "local hello"},
			"done":              true,
			"prompt_eval_count": 20,
			"eval_count":        8,
		})
	}))
	defer srv.Close()

	c := NewOllamaClient(srv.URL, nil)
	resp, err := c.Chat(context.Background(), &Request{
		Model:       "qwen3:4b",
		Temperature: 0.7,
		Messages:    []Message{{Role: RoleUser, Content: "hello"}},
	})
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}

	if resp.Message.Content != "local hello" {
		t.Errorf("content = %q", resp.Message.Content)
	}
	if resp.Usage.InputTokens != 20 || resp.Usage.OutputTokens != 8 {
		t.Errorf("usage = %+v, want 20/8", resp.Usage)
	}
	if captured.Stream {
		t.Error("stream must be false")
	}
	if captured.Options == nil || captured.Options.Temperature != 0.7 {
		t.Errorf("options = %+v, want temperature 0.7", captured.Options)
	}
}

func TestOllamaChatOmitsZeroTemperature(t *testing.T) {
	var captured ollamaRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&captured)
		json.NewEncoder(w).Encode(map[string]any{
			"model":   "m",
			"message": map[string]any{"role": "assistant", "content": "ok"},
			"done":    true,
		})
	}))
	defer srv.Close()

	c := NewOllamaClient(srv.URL, nil)
	if _, err := c.Chat(context.Background(), &Request{Model: "m"}); err != nil {
		t.Fatalf("Chat: %v", err)
	}
	if captured.Options != nil {
		t.Errorf("options = %+v, want omitted for zero temperature", captured.Options)
	}
}

func TestOllamaChatToolCalls(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"model": "m",
			"message": map[string]any{
				"role": "assistant",
				"tool_calls": []map[string]any{{
					"function": map[string]any{
						"name":      "current_time",
						"arguments": map[string]any{"timezone": "Europe/Berlin"},
					},
				}},
			},
			"done": true,
		})
	}))
	defer srv.Close()

	c := NewOllamaClient(srv.URL, nil)
	resp, err := c.Chat(context.Background(), &Request{Model: "m"})
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}

	if len(resp.Message.ToolCalls) != 1 {
		t.Fatalf("tool calls = %d, want 1", len(resp.Message.ToolCalls))
	}
	tc := resp.Message.ToolCalls[0]
	if tc.Name != "current_time" || tc.Arguments["timezone"] != "Europe/Berlin" {
		t.Errorf("tool call = %+v", tc)
	}
}

func TestOllamaChatHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "model not found", http.StatusNotFound)
	}))
	defer srv.Close()

	c := NewOllamaClient(srv.URL, nil)
	_, err := c.Chat(context.Background(), &Request{Model: "missing"})

	var be *BackendError
	if !errors.As(err, &be) {
		t.Fatalf("err = %v, want *BackendError", err)
	}
	if be.Status != http.StatusNotFound || be.Provider != "ollama" {
		t.Errorf("BackendError = %+v", be)
	}
}

func TestOllamaPing(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/tags" {
			t.Errorf("path = %q, want /api/tags", r.URL.Path)
		}
	}))
	defer srv.Close()

	if err := NewOllamaClient(srv.URL, nil).Ping(context.Background()); err != nil {
		t.Errorf("Ping: %v", err)
	}
}

func TestRegistry(t *testing.T) {
	r := NewRegistry(config.ProvidersConfig{}, nil)
	if got := len(r.Providers()); got != 0 {
		t.Fatalf("empty config built %d providers", got)
	}

	if _, err := r.Get("openrouter"); err == nil {
		t.Error("want error for unconfigured provider")
	}
}
