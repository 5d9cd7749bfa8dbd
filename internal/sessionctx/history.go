// Package sessionctx holds the per-session conversation log consumed by the
// dialogue engine when assembling an LLM prompt.
package sessionctx

import (
	"context"
	"fmt"
	"sync"

	"github.com/signalharbor/voiceengine/pkg/types"
)

// Summariser compresses a run of older messages into a short synthetic
// entry. Implementations typically call an LLM provider.
type Summariser interface {
	Summarise(ctx context.Context, messages []types.Message) (string, error)
}

// ConversationHistory is the authoritative, append-only log of one session's
// dialogue turns: user utterances, assistant replies, and tool
// request/response pairs (role "tool"). Entries are never removed or
// rewritten, satisfying the append-only invariant even though
// [ConversationHistory.Summarize] shrinks the *working* view handed to the
// LLM by advancing an internal window marker and recording a synthetic
// summary entry — the full history underneath is untouched.
//
// Same shape as [internal/session.ContextManager]'s locking and
// summarisation flow, generalized: message roles here include "tool"
// alongside "system"/"user"/"assistant", and the full log is retained for
// audit/replay even after a window has been summarised away.
//
// All methods are safe for concurrent use.
type ConversationHistory struct {
	mu sync.Mutex

	entries     []types.Message // full, append-only log
	windowStart int             // index into entries where the active LLM window begins
	summaries   []string        // synthetic summaries of entries[:windowStart] so far
}

// New creates an empty ConversationHistory.
func New() *ConversationHistory {
	return &ConversationHistory{}
}

// Append adds msg to the end of the history. Valid roles are "system",
// "user", "assistant", and "tool".
func (h *ConversationHistory) Append(msg types.Message) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.entries = append(h.entries, msg)
}

// Messages returns the active prompt window: any accumulated summaries as
// leading system messages, followed by every entry appended since the last
// summarisation. The returned slice is a copy safe for the caller to mutate.
func (h *ConversationHistory) Messages() []types.Message {
	h.mu.Lock()
	defer h.mu.Unlock()

	window := h.entries[h.windowStart:]
	result := make([]types.Message, 0, len(h.summaries)+len(window))
	for _, s := range h.summaries {
		result = append(result, types.Message{
			Role:    "system",
			Content: fmt.Sprintf("[Previous conversation summary]: %s", s),
		})
	}
	result = append(result, window...)
	return result
}

// Full returns every entry ever appended, in order, regardless of
// summarisation. Intended for audit/replay and for handing off to Memory at
// session teardown.
func (h *ConversationHistory) Full() []types.Message {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]types.Message, len(h.entries))
	copy(out, h.entries)
	return out
}

// Summarize compresses the oldest half of the active window into a single
// synthetic summary entry via summariser, then advances the window marker
// past those entries. It never deletes or rewrites entries in the
// underlying log — [ConversationHistory.Full] still returns them.
func (h *ConversationHistory) Summarize(ctx context.Context, summariser Summariser) error {
	h.mu.Lock()
	window := h.entries[h.windowStart:]
	half := len(window) / 2
	if half == 0 {
		h.mu.Unlock()
		return nil
	}
	toSummarise := make([]types.Message, half)
	copy(toSummarise, window[:half])
	h.mu.Unlock()

	summary, err := summariser.Summarise(ctx, toSummarise)
	if err != nil {
		return fmt.Errorf("sessionctx: summarise: %w", err)
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	h.windowStart += half
	h.summaries = append(h.summaries, summary)
	return nil
}

// Len returns the number of entries in the active window (excluding
// summaries).
func (h *ConversationHistory) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.entries) - h.windowStart
}
