package agent

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/ndelin/parley/internal/llm"
	"github.com/ndelin/parley/internal/prompts"
	"github.com/ndelin/parley/internal/tools"
)

// turnState carries the per-turn generation parameters and the usage
// accounting across generate calls.
type turnState struct {
	client      llm.Client
	model       string
	system      string
	temperature float64
	logger      *slog.Logger

	usage      llm.Usage // every generate call of this turn
	lastUsage  llm.Usage // final generate call only
	iterations int
}

// generate issues one bounded model call and accounts its usage.
func (o *Orchestrator) generate(ctx context.Context, turn *turnState, messages []llm.Message, toolSpecs []map[string]any) (*llm.Response, error) {
	gctx, cancel := context.WithTimeout(ctx, o.generateTimeout)
	defer cancel()

	resp, err := turn.client.Chat(gctx, &llm.Request{
		Model:       turn.model,
		System:      turn.system,
		Temperature: turn.temperature,
		Messages:    messages,
		Tools:       toolSpecs,
	})
	if err != nil {
		return nil, err
	}

	turn.iterations++
	turn.usage.Add(resp.Usage)
	turn.lastUsage = resp.Usage
	return resp, nil
}

// runSingleShot handles a turn with tools disabled: one generate call,
// one assistant message.
func (o *Orchestrator) runSingleShot(ctx context.Context, turn *turnState, working []llm.Message) (string, []llm.Message, error) {
	resp, err := o.generate(ctx, turn, working, nil)
	if err != nil {
		return "", working, err
	}

	msg := resp.Message
	msg.Role = llm.RoleAssistant
	working = append(working, msg)
	return msg.Content, working, nil
}

// runToolLoop runs the bounded tool-invocation protocol: generate,
// execute any requested tool calls, append results, repeat until the
// model answers in plain text or the iteration budget is exhausted.
//
// A backend failure on a generate call fails the whole turn. A failed
// tool call never does: its error text is appended as the tool result
// and the loop continues.
func (o *Orchestrator) runToolLoop(ctx context.Context, turn *turnState, working []llm.Message) (string, []llm.Message, error) {
	// The tool list is assembled fresh each turn. A provider that cannot
	// list contributes zero tools; the turn proceeds degraded.
	listed := make([][]tools.Spec, len(o.providers))
	var flat []tools.Spec
	for i, p := range o.providers {
		lctx, cancel := context.WithTimeout(ctx, o.toolTimeout)
		specs, err := p.ListTools(lctx)
		cancel()
		if err != nil {
			turn.logger.Warn("tool provider unavailable for this turn", "error", err)
			continue
		}
		listed[i] = specs
		flat = append(flat, specs...)
	}

	toolSpecs := tools.ForLLM(flat)

	for i := 0; i < o.maxIterations; i++ {
		resp, err := o.generate(ctx, turn, working, toolSpecs)
		if err != nil {
			return "", working, err
		}

		msg := resp.Message
		msg.Role = llm.RoleAssistant
		working = append(working, msg)

		if len(msg.ToolCalls) == 0 {
			return msg.Content, working, nil
		}

		for _, tc := range msg.ToolCalls {
			working = append(working, o.executeToolCall(ctx, turn, listed, tc))
		}
	}

	// Iteration budget exhausted: a designed terminal state. The
	// accumulated working history is still committed by the caller.
	turn.logger.Warn("tool loop exhausted iteration budget", "iterations", turn.iterations)
	return prompts.ToolLoopFallback, append(working, llm.Message{
		Role:    llm.RoleAssistant,
		Content: prompts.ToolLoopFallback,
	}), nil
}

// executeToolCall runs one requested tool call in isolation and returns
// the tool-role message for it. Errors, including timeouts and unknown
// tools, become the message text instead of propagating.
func (o *Orchestrator) executeToolCall(ctx context.Context, turn *turnState, listed [][]tools.Spec, tc llm.ToolCall) llm.Message {
	msg := llm.Message{Role: llm.RoleTool, ToolCallID: tc.ID}

	if tc.ArgumentsErr != nil {
		turn.logger.Warn("tool call arguments undecodable", "tool", tc.Name, "error", tc.ArgumentsErr)
		msg.Content = fmt.Sprintf("tool error: %v", tc.ArgumentsErr)
		return msg
	}

	idx := tools.FindProvider(listed, tc.Name)
	if idx < 0 {
		turn.logger.Warn("model requested unknown tool", "tool", tc.Name)
		msg.Content = fmt.Sprintf("tool error: no tool named %q is available", tc.Name)
		return msg
	}

	tctx, cancel := context.WithTimeout(ctx, o.toolTimeout)
	defer cancel()

	result, err := o.providers[idx].Call(tctx, tc.Name, tc.Arguments)
	if err != nil {
		turn.logger.Warn("tool call failed", "tool", tc.Name, "error", err)
		msg.Content = fmt.Sprintf("tool error: %v", err)
		return msg
	}

	turn.logger.Debug("tool call succeeded", "tool", tc.Name, "result_len", len(result))
	msg.Content = result
	return msg
}
