package compact

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/ndelin/parley/internal/llm"
	"github.com/ndelin/parley/internal/prompts"
)

type stubClient struct {
	reply   string
	err     error
	lastReq *llm.Request
}

func (s *stubClient) Name() string { return "stub" }

func (s *stubClient) Chat(_ context.Context, req *llm.Request) (*llm.Response, error) {
	s.lastReq = req
	if s.err != nil {
		return nil, s.err
	}
	return &llm.Response{Message: llm.Message{Role: llm.RoleAssistant, Content: s.reply}}, nil
}

func (s *stubClient) Ping(context.Context) error { return nil }

func TestShouldCompact(t *testing.T) {
	c := New(3, nil)
	for turns, want := range map[int]bool{0: false, 2: false, 3: true, 4: true} {
		if got := c.ShouldCompact(turns); got != want {
			t.Errorf("ShouldCompact(%d) = %v, want %v", turns, got, want)
		}
	}
}

func TestNewDefaultsThreshold(t *testing.T) {
	if got := New(0, nil).Threshold(); got != DefaultThreshold {
		t.Errorf("Threshold() = %d, want %d", got, DefaultThreshold)
	}
	if got := New(-1, nil).Threshold(); got != DefaultThreshold {
		t.Errorf("Threshold() = %d, want %d", got, DefaultThreshold)
	}
}

func TestCompactBuildsSummaryMessage(t *testing.T) {
	stub := &stubClient{reply: "  they discussed sqlite tuning  "}
	c := New(2, nil)

	history := []llm.Message{
		{Role: llm.RoleUser, Content: "how do I tune sqlite?"},
		{Role: llm.RoleAssistant, Content: "enable WAL"},
	}

	msg, err := c.Compact(context.Background(), stub, "test-model", history)
	if err != nil {
		t.Fatalf("Compact: %v", err)
	}

	if msg.Role != llm.RoleUser {
		t.Errorf("summary role = %q, want %q", msg.Role, llm.RoleUser)
	}
	want := prompts.SummaryPrefix + "they discussed sqlite tuning"
	if msg.Content != want {
		t.Errorf("summary = %q, want %q", msg.Content, want)
	}

	req := stub.lastReq
	if req.Temperature != 0.3 {
		t.Errorf("temperature = %v, want 0.3", req.Temperature)
	}
	if req.Model != "test-model" {
		t.Errorf("model = %q, want test-model", req.Model)
	}
	if req.System != prompts.CompactionSystem {
		t.Errorf("system = %q, want compaction system prompt", req.System)
	}
	if len(req.Messages) != 1 || !strings.Contains(req.Messages[0].Content, "how do I tune sqlite?") {
		t.Errorf("prompt should embed the transcript, got %+v", req.Messages)
	}
}

func TestCompactErrors(t *testing.T) {
	c := New(2, nil)
	history := []llm.Message{{Role: llm.RoleUser, Content: "hi"}}

	if _, err := c.Compact(context.Background(), &stubClient{err: errors.New("down")}, "m", history); err == nil {
		t.Error("backend failure: want error")
	}
	if _, err := c.Compact(context.Background(), &stubClient{reply: "   "}, "m", history); err == nil {
		t.Error("blank summary: want error")
	}
}

func TestRenderTranscript(t *testing.T) {
	history := []llm.Message{
		{Role: llm.RoleUser, Content: "what time is it?"},
		{Role: llm.RoleAssistant, ToolCalls: []llm.ToolCall{{Name: "current_time"}, {Name: "web_search"}}},
		{Role: llm.RoleTool, Content: "14:02"},
		{Role: llm.RoleAssistant, Content: "It is 14:02."},
	}

	got := RenderTranscript(history)

	for _, want := range []string{
		"User: what time is it?",
		"Assistant: [requested tools: current_time, web_search]",
		"Tool: 14:02",
		"Assistant: It is 14:02.",
	} {
		if !strings.Contains(got, want) {
			t.Errorf("transcript missing %q:\n%s", want, got)
		}
	}
	if strings.HasSuffix(got, "\n") {
		t.Error("transcript should not end with a newline")
	}
}
