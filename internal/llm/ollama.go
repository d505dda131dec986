package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/ndelin/parley/internal/httpkit"
)

// OllamaClient is a client for the Ollama chat API, used for local models.
type OllamaClient struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewOllamaClient creates a new Ollama client.
func NewOllamaClient(baseURL string, logger *slog.Logger) *OllamaClient {
	if baseURL == "" {
		baseURL = "http://localhost:11434"
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &OllamaClient{
		baseURL: baseURL,
		logger:  logger.With("provider", "ollama"),
		httpClient: httpkit.NewClient(
			// Local models with tools can be slow to first byte; rely on
			// the caller's context deadline instead of a client timeout.
			httpkit.WithTimeout(0),
		),
	}
}

// Name returns the provider identifier.
func (c *OllamaClient) Name() string { return "ollama" }

// Ollama wire types. Unlike OpenAI, tool call arguments arrive as JSON
// objects, so they map directly onto the neutral types.

type ollamaMessage struct {
	Role      string           `json:"role"`
	Content   string           `json:"content"`
	ToolCalls []ollamaToolCall `json:"tool_calls,omitempty"`
}

type ollamaToolCall struct {
	Function struct {
		Name      string         `json:"name"`
		Arguments map[string]any `json:"arguments"`
	} `json:"function"`
}

type ollamaRequest struct {
	Model    string           `json:"model"`
	Messages []ollamaMessage  `json:"messages"`
	Stream   bool             `json:"stream"`
	Tools    []map[string]any `json:"tools,omitempty"`
	Options  *ollamaOptions   `json:"options,omitempty"`
}

type ollamaOptions struct {
	Temperature float64 `json:"temperature,omitempty"`
}

type ollamaResponse struct {
	Model           string        `json:"model"`
	Message         ollamaMessage `json:"message"`
	Done            bool          `json:"done"`
	PromptEvalCount int           `json:"prompt_eval_count,omitempty"`
	EvalCount       int           `json:"eval_count,omitempty"`
}

// Chat sends a non-streaming chat completion request to Ollama.
func (c *OllamaClient) Chat(ctx context.Context, req *Request) (*Response, error) {
	wire := ollamaRequest{
		Model:  req.Model,
		Stream: false,
		Tools:  req.Tools,
	}
	if req.Temperature != 0 {
		wire.Options = &ollamaOptions{Temperature: req.Temperature}
	}

	if req.System != "" {
		wire.Messages = append(wire.Messages, ollamaMessage{Role: RoleSystem, Content: req.System})
	}
	for _, m := range req.Messages {
		om := ollamaMessage{Role: m.Role, Content: m.Content}
		for _, tc := range m.ToolCalls {
			var wc ollamaToolCall
			wc.Function.Name = tc.Name
			wc.Function.Arguments = tc.Arguments
			om.ToolCalls = append(om.ToolCalls, wc)
		}
		wire.Messages = append(wire.Messages, om)
	}

	jsonData, err := json.Marshal(wire)
	if err != nil {
		return nil, &BackendError{Provider: "ollama", Err: fmt.Errorf("marshal request: %w", err)}
	}

	c.logger.Log(ctx, LevelTrace, "chat request", "payload", string(jsonData))

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/chat", bytes.NewReader(jsonData))
	if err != nil {
		return nil, &BackendError{Provider: "ollama", Err: fmt.Errorf("create request: %w", err)}
	}
	httpReq.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, &BackendError{Provider: "ollama", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body := httpkit.ReadErrorBody(resp.Body, 512)
		return nil, &BackendError{Provider: "ollama", Status: resp.StatusCode, Body: body}
	}

	var wireResp ollamaResponse
	if err := json.NewDecoder(resp.Body).Decode(&wireResp); err != nil {
		return nil, &BackendError{Provider: "ollama", Err: fmt.Errorf("decode response: %w", err)}
	}

	msg := Message{Role: wireResp.Message.Role, Content: wireResp.Message.Content}
	for _, wc := range wireResp.Message.ToolCalls {
		msg.ToolCalls = append(msg.ToolCalls, ToolCall{
			Name:      wc.Function.Name,
			Arguments: wc.Function.Arguments,
		})
	}

	return &Response{
		Model:   wireResp.Model,
		Message: msg,
		Usage: Usage{
			InputTokens:  wireResp.PromptEvalCount,
			OutputTokens: wireResp.EvalCount,
		},
		Elapsed: time.Since(start),
	}, nil
}

// Ping checks if Ollama is reachable.
func (c *OllamaClient) Ping(ctx context.Context) error {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/tags", nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return &BackendError{Provider: "ollama", Err: err}
	}
	httpkit.DrainAndClose(resp.Body, 1024)

	if resp.StatusCode != http.StatusOK {
		return &BackendError{Provider: "ollama", Status: resp.StatusCode}
	}
	return nil
}
