// Package compact implements conversation history compaction: when a
// session has accumulated enough turns, the stored history is replaced
// by a single model-generated summary message that preserves
// conversational continuity.
package compact

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/ndelin/parley/internal/llm"
	"github.com/ndelin/parley/internal/prompts"
)

// DefaultThreshold is the number of generation turns after which
// compaction fires.
const DefaultThreshold = 10

// summaryTemperature fixes the summarization call at a low temperature
// regardless of the caller's requested temperature. Summaries must be
// deterministic enough to trust.
const summaryTemperature = 0.3

// Compactor generates summary messages through the same backend that
// serves the session.
type Compactor struct {
	threshold int
	logger    *slog.Logger
}

// New creates a compactor. A threshold of zero or less selects
// DefaultThreshold.
func New(threshold int, logger *slog.Logger) *Compactor {
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Compactor{threshold: threshold, logger: logger}
}

// Threshold returns the configured turn threshold.
func (c *Compactor) Threshold() int { return c.threshold }

// ShouldCompact reports whether a session with the given turn count is
// due for compaction.
func (c *Compactor) ShouldCompact(turns int) bool {
	return turns >= c.threshold
}

// Compact renders the history as attributed text, asks client for a
// condensed summary, and returns the replacement message: a user-role
// message carrying the summary prefix. Callers are expected to treat an
// error as "keep the full history" — a failed compaction must never fail
// the turn that triggered it.
func (c *Compactor) Compact(ctx context.Context, client llm.Client, model string, history []llm.Message) (llm.Message, error) {
	text := RenderTranscript(history)

	resp, err := client.Chat(ctx, &llm.Request{
		Model:       model,
		System:      prompts.CompactionSystem,
		Temperature: summaryTemperature,
		Messages: []llm.Message{
			{Role: llm.RoleUser, Content: prompts.CompactionPrompt(text)},
		},
	})
	if err != nil {
		return llm.Message{}, fmt.Errorf("summarize history: %w", err)
	}

	summary := strings.TrimSpace(resp.Message.Content)
	if summary == "" {
		return llm.Message{}, fmt.Errorf("summarize history: empty summary from %s", client.Name())
	}

	c.logger.Debug("history compacted",
		"provider", client.Name(),
		"messages", len(history),
		"summary_len", len(summary),
	)

	return llm.Message{
		Role:    llm.RoleUser,
		Content: prompts.SummaryPrefix + summary,
	}, nil
}

// RenderTranscript formats history as attributed text ("User: …",
// "Assistant: …") for the summarization prompt. Tool traffic is
// attributed too so facts surfaced by tools survive compaction.
func RenderTranscript(history []llm.Message) string {
	var sb strings.Builder
	for _, m := range history {
		label := roleLabel(m.Role)
		content := m.Content
		if content == "" && len(m.ToolCalls) > 0 {
			names := make([]string, 0, len(m.ToolCalls))
			for _, tc := range m.ToolCalls {
				names = append(names, tc.Name)
			}
			content = "[requested tools: " + strings.Join(names, ", ") + "]"
		}
		sb.WriteString(label)
		sb.WriteString(": ")
		sb.WriteString(content)
		sb.WriteString("\n\n")
	}
	return strings.TrimRight(sb.String(), "\n")
}

func roleLabel(role string) string {
	switch role {
	case llm.RoleUser:
		return "User"
	case llm.RoleAssistant:
		return "Assistant"
	case llm.RoleSystem:
		return "System"
	case llm.RoleTool:
		return "Tool"
	default:
		return role
	}
}
