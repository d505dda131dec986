// Package agent implements the conversation orchestration core: the
// per-session orchestrator and the bounded tool-calling loop that sit
// between the API surface and the AI backends.
package agent

import (
	"context"
	"log/slog"
	"time"

	"github.com/ndelin/parley/internal/compact"
	"github.com/ndelin/parley/internal/config"
	"github.com/ndelin/parley/internal/llm"
	"github.com/ndelin/parley/internal/session"
	"github.com/ndelin/parley/internal/tools"
	"github.com/ndelin/parley/internal/usage"
)

// DefaultMaxToolIterations caps generate/execute cycles within one turn.
const DefaultMaxToolIterations = 5

// Result statuses. Handle never returns a Go error; failures surface as
// a Result with StatusError and a human-readable message.
const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// Request is one inbound user turn.
type Request struct {
	Provider     string  `json:"provider,omitempty"`
	Model        string  `json:"model,omitempty"`
	Conversation string  `json:"conversation,omitempty"`
	Text         string  `json:"text"`
	System       string  `json:"system,omitempty"`
	Temperature  float64 `json:"temperature,omitempty"`
	ToolsEnabled bool    `json:"tools_enabled,omitempty"`
}

// Result is the outcome of one turn.
type Result struct {
	Text       string    `json:"text"`
	Status     string    `json:"status"`
	Error      string    `json:"error,omitempty"`
	Usage      llm.Usage `json:"usage"`      // cumulative for the session
	LastUsage  llm.Usage `json:"last_usage"` // final generate call of this turn
	Iterations int       `json:"iterations"`
	ElapsedMS  int64     `json:"elapsed_ms"`
	RequestID  string    `json:"request_id"`
}

// Archiver is the persistent transcript store boundary. Archive
// failures never fail a turn; the in-memory session is authoritative
// for the running process.
type Archiver interface {
	Append(ctx context.Context, conversationID, role, content string) error
	ReplaceWithSummary(ctx context.Context, conversationID, content, role string) error
	Clear(ctx context.Context, conversationID string) error
}

// UsageRecorder is the usage accounting boundary.
type UsageRecorder interface {
	Record(ctx context.Context, rec usage.Record) error
}

// Enricher retrieves context snippets for a query. Implementations must
// treat unavailability as an error return, never a panic; the
// orchestrator swallows enrichment failures.
type Enricher interface {
	Enrich(ctx context.Context, query string) (string, error)
}

// Orchestrator owns all session state and exposes the single Handle
// entry point. One Orchestrator serves all providers and conversations.
type Orchestrator struct {
	llms      *llm.Registry
	sessions  *session.Store
	compactor *compact.Compactor
	providers []tools.Provider
	archive   Archiver      // optional
	usage     UsageRecorder // optional
	enricher  Enricher      // optional
	defaults  config.DefaultsConfig

	maxIterations   int
	generateTimeout time.Duration
	toolTimeout     time.Duration
	enrichTimeout   time.Duration

	logger *slog.Logger
}

// Options configures an Orchestrator. Zero-value fields select defaults.
type Options struct {
	Compactor *compact.Compactor
	Providers []tools.Provider
	Archive   Archiver
	Usage     UsageRecorder
	Enricher  Enricher
	Defaults  config.DefaultsConfig

	MaxToolIterations int
	GenerateTimeout   time.Duration
	ToolTimeout       time.Duration
	EnrichTimeout     time.Duration

	Logger *slog.Logger
}

// New creates an orchestrator over the given backend registry.
func New(llms *llm.Registry, opts Options) *Orchestrator {
	if opts.Compactor == nil {
		opts.Compactor = compact.New(0, opts.Logger)
	}
	if opts.MaxToolIterations <= 0 {
		opts.MaxToolIterations = DefaultMaxToolIterations
	}
	if opts.GenerateTimeout <= 0 {
		opts.GenerateTimeout = 120 * time.Second
	}
	if opts.ToolTimeout <= 0 {
		opts.ToolTimeout = 30 * time.Second
	}
	if opts.EnrichTimeout <= 0 {
		opts.EnrichTimeout = 10 * time.Second
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	return &Orchestrator{
		llms:            llms,
		sessions:        session.NewStore(),
		compactor:       opts.Compactor,
		providers:       opts.Providers,
		archive:         opts.Archive,
		usage:           opts.Usage,
		enricher:        opts.Enricher,
		defaults:        opts.Defaults,
		maxIterations:   opts.MaxToolIterations,
		generateTimeout: opts.GenerateTimeout,
		toolTimeout:     opts.ToolTimeout,
		enrichTimeout:   opts.EnrichTimeout,
		logger:          opts.Logger,
	}
}

// Clear wipes the session for (provider, conversation), in memory and in
// the persistent store.
func (o *Orchestrator) Clear(ctx context.Context, provider, conversation string) error {
	if provider == "" {
		provider = o.defaults.Provider
	}
	if conversation == "" {
		conversation = "default"
	}

	sess := o.sessions.Acquire(session.Key{Provider: provider, Conversation: conversation})
	defer sess.Release()

	// Archive first: if the store refuses, the in-memory session is left
	// untouched and memory and store stay consistent.
	if o.archive != nil {
		if err := o.archive.Clear(ctx, archiveID(provider, conversation)); err != nil {
			return err
		}
	}

	sess.State().Reset()

	o.logger.Info("session cleared", "provider", provider, "conversation", conversation)
	return nil
}
