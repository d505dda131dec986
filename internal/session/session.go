// Package session holds the per-conversation state owned by the
// orchestrator: the message history, the turn counter that drives
// compaction, and cumulative token usage.
//
// State is keyed by (provider, conversation). Each entry carries its own
// lock; a turn holds the lock from resolution through the final history
// mutation, so turns on one session are strictly serial while different
// sessions proceed in parallel.
package session

import (
	"slices"
	"sync"

	"github.com/ndelin/parley/internal/llm"
)

// Key identifies one conversation on one provider.
type Key struct {
	Provider     string
	Conversation string
}

// State is the mutable state of a single session. It is only ever
// accessed under the owning Session's lock.
type State struct {
	// Turns counts generation requests submitted since the last
	// compaction. It is not the history length: compaction replaces many
	// stored messages with one summary but resets this counter to zero.
	Turns int

	// Usage accumulates token usage across the session's lifetime.
	Usage llm.Usage

	// LastUsage is the usage reported by the final generate call of the
	// most recent turn.
	LastUsage llm.Usage

	// Model is the model identifier last used on this session. A request
	// naming a different model resets the session.
	Model string

	messages []llm.Message
}

// Add appends a message to the history.
func (s *State) Add(msg llm.Message) {
	s.messages = append(s.messages, msg)
}

// Len returns the number of stored messages.
func (s *State) Len() int {
	return len(s.messages)
}

// Snapshot returns a defensive copy of the history, safe to hand to a
// backend while the state continues to be mutated by later turns.
func (s *State) Snapshot() []llm.Message {
	out := make([]llm.Message, len(s.messages))
	for i, m := range s.messages {
		out[i] = m
		out[i].ToolCalls = slices.Clone(m.ToolCalls)
	}
	return out
}

// ReplaceWithSummary discards the stored history, keeps the single
// summary message in its place, and resets the turn counter.
func (s *State) ReplaceWithSummary(summary llm.Message) {
	s.messages = []llm.Message{summary}
	s.Turns = 0
}

// Reset clears the session completely: history, counters, usage, and the
// remembered model. Used on explicit clear and on model switch.
func (s *State) Reset() {
	s.messages = nil
	s.Turns = 0
	s.Usage = llm.Usage{}
	s.LastUsage = llm.Usage{}
	s.Model = ""
}

// Session is one store entry: the state plus its exclusive lock.
type Session struct {
	key   Key
	mu    sync.Mutex
	state State
}

// Key returns the session's key.
func (s *Session) Key() Key { return s.key }

// State returns the session state. Only call between Acquire and Release.
func (s *Session) State() *State { return &s.state }

// Release unlocks the session, allowing the next turn to proceed.
func (s *Session) Release() { s.mu.Unlock() }

// Store maps session keys to sessions. The store's own mutex is held
// only for entry lookup and creation, never across a turn.
type Store struct {
	mu       sync.Mutex
	sessions map[Key]*Session
}

// NewStore creates an empty session store.
func NewStore() *Store {
	return &Store{sessions: make(map[Key]*Session)}
}

// Acquire returns the session for key, creating it on first use, with
// its lock held. The caller must Release it when the turn completes.
// Acquire blocks while another turn holds the same session.
func (st *Store) Acquire(key Key) *Session {
	st.mu.Lock()
	sess, ok := st.sessions[key]
	if !ok {
		sess = &Session{key: key}
		st.sessions[key] = sess
	}
	st.mu.Unlock()

	sess.mu.Lock()
	return sess
}

// Len returns the number of sessions ever created.
func (st *Store) Len() int {
	st.mu.Lock()
	defer st.mu.Unlock()
	return len(st.sessions)
}
