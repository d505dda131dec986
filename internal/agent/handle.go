package agent

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/ndelin/parley/internal/llm"
	"github.com/ndelin/parley/internal/session"
	"github.com/ndelin/parley/internal/usage"
)

// Handle processes one user turn end to end: session resolution,
// model-switch reset, best-effort enrichment, compaction when due, the
// generation (with or without tools), and state/persistence updates.
//
// The session lock is held for the whole turn, so turns on one session
// are strictly serial; sessions on different keys proceed in parallel.
// Handle never returns a Go error — every failure becomes a Result with
// StatusError.
func (o *Orchestrator) Handle(ctx context.Context, req Request) Result {
	start := time.Now()

	provider := req.Provider
	if provider == "" {
		provider = o.defaults.Provider
	}
	model := req.Model
	if model == "" {
		model = o.defaults.Model
	}
	temperature := req.Temperature
	if temperature == 0 {
		temperature = o.defaults.Temperature
	}
	conversation := req.Conversation
	if conversation == "" {
		conversation = "default"
	}

	requestID := uuid.NewString()
	logger := o.logger.With("request_id", requestID, "provider", provider, "conversation", conversation)

	client, err := o.llms.Get(provider)
	if err != nil {
		return errorResult(requestID, start, err)
	}

	sess := o.sessions.Acquire(session.Key{Provider: provider, Conversation: conversation})
	defer sess.Release()
	st := sess.State()

	// A model switch is a full session reset, not a detail: history,
	// counters, and usage all start over.
	if st.Model != "" && st.Model != model {
		logger.Info("model switched, resetting session", "from", st.Model, "to", model)
		st.Reset()
	}
	st.Model = model

	// Context enrichment is best-effort: any failure falls back to the
	// raw user text.
	text := o.enrich(ctx, logger, req.Text)

	// Compaction check happens before this turn's message is sent. A
	// failed compaction is abandoned silently and the turn proceeds with
	// the full history.
	st.Turns++
	if o.compactor.ShouldCompact(st.Turns) && st.Len() > 0 {
		o.runCompaction(ctx, logger, client, model, st, archiveID(provider, conversation))
	}

	working := st.Snapshot()
	working = append(working, llm.Message{Role: llm.RoleUser, Content: text})
	committed := len(working) - 1 // messages already in session state

	turn := &turnState{
		client:      client,
		model:       model,
		system:      req.System,
		temperature: temperature,
		logger:      logger,
	}

	var finalText string
	if req.ToolsEnabled && len(o.providers) > 0 {
		finalText, working, err = o.runToolLoop(ctx, turn, working)
	} else {
		finalText, working, err = o.runSingleShot(ctx, turn, working)
	}

	// Usage from every generate call counts toward the session, even
	// when the turn ultimately fails.
	st.Usage.Add(turn.usage)

	if err != nil {
		logger.Error("turn failed", "error", err)
		return errorResult(requestID, start, err)
	}

	// Commit the working history to the session.
	for _, m := range working[committed:] {
		st.Add(m)
	}
	st.LastUsage = turn.lastUsage

	// Persist the user/assistant pair once, after the loop concludes.
	// Archive failures are logged and ignored.
	if o.archive != nil {
		aid := archiveID(provider, conversation)
		if err := o.archive.Append(ctx, aid, llm.RoleUser, req.Text); err != nil {
			logger.Warn("archive append failed", "error", err)
		} else if err := o.archive.Append(ctx, aid, llm.RoleAssistant, finalText); err != nil {
			logger.Warn("archive append failed", "error", err)
		}
	}

	if o.usage != nil {
		rec := usage.Record{
			RequestID:      requestID,
			Provider:       provider,
			Model:          model,
			ConversationID: conversation,
			InputTokens:    turn.usage.InputTokens,
			OutputTokens:   turn.usage.OutputTokens,
		}
		if err := o.usage.Record(ctx, rec); err != nil {
			logger.Warn("usage record failed", "error", err)
		}
	}

	logger.Info("turn completed",
		"iterations", turn.iterations,
		"input_tokens", turn.usage.InputTokens,
		"output_tokens", turn.usage.OutputTokens,
		"elapsed", time.Since(start),
	)

	return Result{
		Text:       finalText,
		Status:     StatusSuccess,
		Usage:      st.Usage,
		LastUsage:  st.LastUsage,
		Iterations: turn.iterations,
		ElapsedMS:  time.Since(start).Milliseconds(),
		RequestID:  requestID,
	}
}

// runCompaction replaces the session history with a summary message,
// both in memory and in the archive. Failures leave the history intact.
func (o *Orchestrator) runCompaction(ctx context.Context, logger *slog.Logger, client llm.Client, model string, st *session.State, aid string) {
	cctx, cancel := context.WithTimeout(ctx, o.generateTimeout)
	defer cancel()

	summary, err := o.compactor.Compact(cctx, client, model, st.Snapshot())
	if err != nil {
		logger.Warn("compaction abandoned, keeping full history", "error", err)
		return
	}

	st.ReplaceWithSummary(summary)

	if o.archive != nil {
		if err := o.archive.ReplaceWithSummary(ctx, aid, summary.Content, summary.Role); err != nil {
			logger.Warn("archive summary replace failed", "error", err)
		}
	}
}

// enrich prepends retrieved context to the user text. The call runs
// under its own short deadline so a stalled enricher cannot hold up the
// generate; failures and empty results fall back to the raw text.
func (o *Orchestrator) enrich(ctx context.Context, logger *slog.Logger, text string) string {
	if o.enricher == nil {
		return text
	}

	ectx, cancel := context.WithTimeout(ctx, o.enrichTimeout)
	defer cancel()

	enriched, err := o.enricher.Enrich(ectx, text)
	if err != nil {
		logger.Debug("enrichment unavailable, using raw text", "error", err)
		return text
	}
	if enriched == "" {
		return text
	}
	return enriched
}

// archiveID namespaces archive rows by provider so the same conversation
// name on two providers never shares a transcript.
func archiveID(provider, conversation string) string {
	return provider + "/" + conversation
}

func errorResult(requestID string, start time.Time, err error) Result {
	return Result{
		Status:    StatusError,
		Error:     err.Error(),
		ElapsedMS: time.Since(start).Milliseconds(),
		RequestID: requestID,
	}
}
