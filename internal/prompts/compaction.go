// Package prompts holds the instruction templates used by the
// orchestration core. Keeping them in one place makes wording changes
// reviewable without touching control flow.
package prompts

import "fmt"

// CompactionSystem is the system prompt for the summarization call. The
// summarizer must condense, never invent.
const CompactionSystem = `You condense conversation transcripts. Produce a faithful, information-preserving summary. Never add information that is not in the transcript.`

// compactionTemplate is the instruction sent to the model during history
// compaction. The single format verb is the attributed conversation text.
const compactionTemplate = `Summarize the conversation below. Requirements:
1. Preserve all names, numbers, and concrete facts.
2. Preserve the chronological order of topics.
3. Do not introduce new information.
4. If a question was asked and not yet answered, preserve its gist.

Conversation:
%s

Summary:`

// SummaryPrefix marks a summary message in the history so downstream
// prompts can recognize it for what it is.
const SummaryPrefix = "[summary of previous conversation] "

// CompactionPrompt returns the fully interpolated compaction instruction.
// The caller passes the formatted conversation text (role: content pairs).
func CompactionPrompt(conversationText string) string {
	return fmt.Sprintf(compactionTemplate, conversationText)
}
