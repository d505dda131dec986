package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gorilla/websocket"

	"github.com/ndelin/parley/internal/agent"
	"github.com/ndelin/parley/internal/usage"
)

// fakeChatter echoes the request text and records clear calls.
type fakeChatter struct {
	lastReq agent.Request
	cleared []string
	fail    bool
}

func (f *fakeChatter) Handle(_ context.Context, req agent.Request) agent.Result {
	f.lastReq = req
	return agent.Result{
		Text:      "echo: " + req.Text,
		Status:    agent.StatusSuccess,
		RequestID: "req-1",
	}
}

func (f *fakeChatter) Clear(_ context.Context, provider, conversation string) error {
	if f.fail {
		return errors.New("store unavailable")
	}
	f.cleared = append(f.cleared, provider+"/"+conversation)
	return nil
}

type fakeUsage struct {
	sum usage.Summary
}

func (f *fakeUsage) Totals(context.Context) (usage.Summary, error) {
	return f.sum, nil
}

type fakePinger struct {
	status map[string]error
}

func (f *fakePinger) PingAll(context.Context) map[string]error {
	return f.status
}

func newTestServer(t *testing.T, chatter Chatter, usageReader UsageReader) *httptest.Server {
	t.Helper()
	s := New("127.0.0.1:0", chatter, usageReader, nil, slog.New(slog.DiscardHandler))
	srv := httptest.NewServer(s.httpSrv.Handler)
	t.Cleanup(srv.Close)
	return srv
}

func postJSON(t *testing.T, url string, body any) *http.Response {
	t.Helper()
	data, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	resp, err := http.Post(url, "application/json", bytes.NewReader(data))
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func TestChatEndpoint(t *testing.T) {
	chatter := &fakeChatter{}
	srv := newTestServer(t, chatter, nil)

	resp := postJSON(t, srv.URL+"/api/chat", map[string]any{
		"provider":      "ollama",
		"conversation":  "kitchen",
		"text":          "hello",
		"tools_enabled": true,
	})

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	var result agent.Result
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if result.Text != "echo: hello" || result.Status != agent.StatusSuccess {
		t.Errorf("result = %+v", result)
	}
	if chatter.lastReq.Conversation != "kitchen" || !chatter.lastReq.ToolsEnabled {
		t.Errorf("request passed through = %+v", chatter.lastReq)
	}
}

func TestChatEndpointRejectsEmptyText(t *testing.T) {
	srv := newTestServer(t, &fakeChatter{}, nil)

	resp := postJSON(t, srv.URL+"/api/chat", map[string]any{"text": ""})
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", resp.StatusCode)
	}
}

func TestChatEndpointRejectsBadJSON(t *testing.T) {
	srv := newTestServer(t, &fakeChatter{}, nil)

	resp, err := http.Post(srv.URL+"/api/chat", "application/json", strings.NewReader("{not json"))
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", resp.StatusCode)
	}
}

func TestClearEndpoint(t *testing.T) {
	chatter := &fakeChatter{}
	srv := newTestServer(t, chatter, nil)

	resp := postJSON(t, srv.URL+"/api/sessions/clear", map[string]any{
		"provider":     "ollama",
		"conversation": "kitchen",
	})

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if len(chatter.cleared) != 1 || chatter.cleared[0] != "ollama/kitchen" {
		t.Errorf("cleared = %v", chatter.cleared)
	}
}

func TestClearEndpointFailure(t *testing.T) {
	srv := newTestServer(t, &fakeChatter{fail: true}, nil)

	resp := postJSON(t, srv.URL+"/api/sessions/clear", map[string]any{})
	if resp.StatusCode != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", resp.StatusCode)
	}
}

func TestUsageEndpoint(t *testing.T) {
	srv := newTestServer(t, &fakeChatter{}, &fakeUsage{sum: usage.Summary{
		TotalRecords:      4,
		TotalInputTokens:  1000,
		TotalOutputTokens: 250,
	}})

	resp, err := http.Get(srv.URL + "/api/usage")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()

	var sum usage.Summary
	if err := json.NewDecoder(resp.Body).Decode(&sum); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if sum.TotalRecords != 4 || sum.TotalInputTokens != 1000 {
		t.Errorf("summary = %+v", sum)
	}
}

func TestUsageEndpointDisabled(t *testing.T) {
	srv := newTestServer(t, &fakeChatter{}, nil)

	resp, err := http.Get(srv.URL + "/api/usage")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("status = %d, want 404", resp.StatusCode)
	}
}

func TestHealthEndpoint(t *testing.T) {
	srv := newTestServer(t, &fakeChatter{}, nil)

	resp, err := http.Get(srv.URL + "/healthz")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()

	var body map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["status"] != "ok" {
		t.Errorf("body = %v", body)
	}
}

func TestHealthEndpointReportsDegradedProvider(t *testing.T) {
	s := New("127.0.0.1:0", &fakeChatter{}, nil, &fakePinger{status: map[string]error{
		"ollama":     nil,
		"openrouter": errors.New("connection refused"),
	}}, slog.New(slog.DiscardHandler))
	srv := httptest.NewServer(s.httpSrv.Handler)
	t.Cleanup(srv.Close)

	resp, err := http.Get(srv.URL + "/healthz")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()

	// Always 200: degradation is in the body, not the status code.
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want 200", resp.StatusCode)
	}
	var body map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["status"] != "degraded" {
		t.Errorf("status = %v, want degraded", body["status"])
	}
	providers, _ := body["providers"].(map[string]any)
	if providers["ollama"] != "ok" || !strings.Contains(providers["openrouter"].(string), "refused") {
		t.Errorf("providers = %v", providers)
	}
}

func TestWebsocketChat(t *testing.T) {
	chatter := &fakeChatter{}
	srv := newTestServer(t, chatter, nil)

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/chat/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	// Two sequential turns over one connection.
	for _, text := range []string{"first", "second"} {
		if err := conn.WriteJSON(agent.Request{Text: text, Conversation: "ws"}); err != nil {
			t.Fatalf("write: %v", err)
		}
		var result agent.Result
		if err := conn.ReadJSON(&result); err != nil {
			t.Fatalf("read: %v", err)
		}
		if result.Text != "echo: "+text {
			t.Errorf("result = %+v, want echo of %q", result, text)
		}
	}

	// Empty text is answered with an error frame, not a disconnect.
	if err := conn.WriteJSON(agent.Request{Text: ""}); err != nil {
		t.Fatalf("write: %v", err)
	}
	var result agent.Result
	if err := conn.ReadJSON(&result); err != nil {
		t.Fatalf("read: %v", err)
	}
	if result.Status != agent.StatusError {
		t.Errorf("empty text result = %+v, want error status", result)
	}
}
