package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/ndelin/parley/internal/httpkit"
)

// LevelTrace is below Debug, used for wire-level payload logging.
const LevelTrace = slog.Level(-8)

// OpenAIClient speaks the OpenAI chat completions protocol. OpenRouter
// uses it natively, as do most hosted gateways.
type OpenAIClient struct {
	name       string
	baseURL    string
	apiKey     string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewOpenAIClient creates a client for an OpenAI-compatible endpoint.
// name is the provider identifier reported by Name (e.g. "openrouter").
func NewOpenAIClient(name, baseURL, apiKey string, logger *slog.Logger) *OpenAIClient {
	if logger == nil {
		logger = slog.Default()
	}
	return &OpenAIClient{
		name:    name,
		baseURL: strings.TrimSuffix(baseURL, "/"),
		apiKey:  apiKey,
		logger:  logger.With("provider", name),
		httpClient: httpkit.NewClient(
			// No global timeout — the caller bounds each call with a
			// context deadline.
			httpkit.WithTimeout(0),
		),
	}
}

// Name returns the provider identifier.
func (c *OpenAIClient) Name() string { return c.name }

// OpenAI wire types. Arguments arrive as a JSON-encoded string and are
// decoded into a map at this boundary.

type openaiMessage struct {
	Role       string           `json:"role"`
	Content    string           `json:"content"`
	ToolCalls  []openaiToolCall `json:"tool_calls,omitempty"`
	ToolCallID string           `json:"tool_call_id,omitempty"`
}

type openaiToolCall struct {
	ID       string `json:"id"`
	Type     string `json:"type"`
	Function struct {
		Name      string `json:"name"`
		Arguments string `json:"arguments"`
	} `json:"function"`
}

type openaiRequest struct {
	Model       string           `json:"model"`
	Messages    []openaiMessage  `json:"messages"`
	Temperature float64          `json:"temperature"`
	Tools       []map[string]any `json:"tools,omitempty"`
	Stream      bool             `json:"stream"`
}

type openaiResponse struct {
	Model   string `json:"model"`
	Choices []struct {
		Message      openaiMessage `json:"message"`
		FinishReason string        `json:"finish_reason"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
	} `json:"usage"`
}

// Chat sends a chat completion request.
func (c *OpenAIClient) Chat(ctx context.Context, req *Request) (*Response, error) {
	wire := openaiRequest{
		Model:       req.Model,
		Temperature: req.Temperature,
		Tools:       req.Tools,
	}

	if req.System != "" {
		wire.Messages = append(wire.Messages, openaiMessage{Role: RoleSystem, Content: req.System})
	}
	for _, m := range req.Messages {
		wire.Messages = append(wire.Messages, toOpenAIMessage(m))
	}

	jsonData, err := json.Marshal(wire)
	if err != nil {
		return nil, &BackendError{Provider: c.name, Err: fmt.Errorf("marshal request: %w", err)}
	}

	c.logger.Log(ctx, LevelTrace, "chat request", "payload", string(jsonData))

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(jsonData))
	if err != nil {
		return nil, &BackendError{Provider: c.name, Err: fmt.Errorf("create request: %w", err)}
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

	start := time.Now()
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, &BackendError{Provider: c.name, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body := httpkit.ReadErrorBody(resp.Body, 512)
		return nil, &BackendError{Provider: c.name, Status: resp.StatusCode, Body: body}
	}

	var wireResp openaiResponse
	if err := json.NewDecoder(resp.Body).Decode(&wireResp); err != nil {
		return nil, &BackendError{Provider: c.name, Err: fmt.Errorf("decode response: %w", err)}
	}

	if len(wireResp.Choices) == 0 {
		return nil, &BackendError{Provider: c.name, Err: fmt.Errorf("response contained no choices")}
	}

	return &Response{
		Model:   wireResp.Model,
		Message: fromOpenAIMessage(wireResp.Choices[0].Message),
		Usage: Usage{
			InputTokens:  wireResp.Usage.PromptTokens,
			OutputTokens: wireResp.Usage.CompletionTokens,
		},
		Elapsed: time.Since(start),
	}, nil
}

// toOpenAIMessage converts a neutral message to the wire shape,
// re-encoding tool call arguments as JSON strings.
func toOpenAIMessage(m Message) openaiMessage {
	out := openaiMessage{
		Role:       m.Role,
		Content:    m.Content,
		ToolCallID: m.ToolCallID,
	}
	for _, tc := range m.ToolCalls {
		var wc openaiToolCall
		wc.ID = tc.ID
		wc.Type = "function"
		wc.Function.Name = tc.Name
		if args, err := json.Marshal(tc.Arguments); err == nil && tc.Arguments != nil {
			wc.Function.Arguments = string(args)
		} else {
			wc.Function.Arguments = "{}"
		}
		out.ToolCalls = append(out.ToolCalls, wc)
	}
	return out
}

// fromOpenAIMessage converts a wire message to the neutral shape,
// decoding the JSON-string arguments into a map. A malformed arguments
// string is not a backend failure: the model produced it, so it is
// recorded on the individual call and surfaces as that call's result.
func fromOpenAIMessage(m openaiMessage) Message {
	out := Message{
		Role:       m.Role,
		Content:    m.Content,
		ToolCallID: m.ToolCallID,
	}
	for _, wc := range m.ToolCalls {
		tc := ToolCall{ID: wc.ID, Name: wc.Function.Name}
		if wc.Function.Arguments != "" {
			if err := json.Unmarshal([]byte(wc.Function.Arguments), &tc.Arguments); err != nil {
				tc.Arguments = nil
				tc.ArgumentsErr = fmt.Errorf("invalid arguments for tool %q: %w", wc.Function.Name, err)
			}
		}
		out.ToolCalls = append(out.ToolCalls, tc)
	}
	return out
}

// Ping checks if the endpoint is reachable.
func (c *OpenAIClient) Ping(ctx context.Context) error {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/models", nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return &BackendError{Provider: c.name, Err: err}
	}
	httpkit.DrainAndClose(resp.Body, 1024)

	if resp.StatusCode != http.StatusOK {
		return &BackendError{Provider: c.name, Status: resp.StatusCode}
	}
	return nil
}
