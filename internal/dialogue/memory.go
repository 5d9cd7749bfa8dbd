package dialogue

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/signalharbor/voiceengine/pkg/memory"
	"github.com/signalharbor/voiceengine/pkg/types"
)

// recentWindow bounds how far back "session" memory mode looks for prior
// turns from the same device.
const recentWindow = 24 * time.Hour

// Memory adapts the long-term memory ports to the dialogue engine's single
// call site, selecting which backend (if any) to query by AgentConfig's
// memory mode. A zero-value Memory with both ports nil makes every mode but
// "off" a silent no-op, which is a valid deployment without memory wired in.
type Memory struct {
	Session  memory.SessionStore
	GraphRAG memory.GraphRAGQuerier
}

// Query retrieves context relevant to text for sc's configured memory mode
// and renders it as a single system-message string, or "" if memory is off,
// unconfigured for the selected mode, or the lookup fails.
func (m Memory) Query(ctx context.Context, sc *types.SessionContext, text string) string {
	switch sc.Agent.MemoryMode {
	case "session":
		if m.Session == nil {
			return ""
		}
		entries, err := m.Session.GetRecent(ctx, sc.DeviceID, recentWindow)
		if err != nil {
			slog.Warn("dialogue: session memory lookup failed", "session_id", sc.SessionID, "err", err)
			return ""
		}
		return renderTranscript(entries)

	case "graphrag":
		if m.GraphRAG == nil {
			return ""
		}
		results, err := m.GraphRAG.QueryWithContext(ctx, text, nil)
		if err != nil {
			slog.Warn("dialogue: graphrag memory lookup failed", "session_id", sc.SessionID, "err", err)
			return ""
		}
		return renderContextResults(results)

	default: // "off" or unset
		return ""
	}
}

func renderTranscript(entries []memory.TranscriptEntry) string {
	if len(entries) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("Relevant prior conversation:\n")
	for _, e := range entries {
		fmt.Fprintf(&b, "%s: %s\n", e.Role, e.Text)
	}
	return b.String()
}

func renderContextResults(results []memory.ContextResult) string {
	if len(results) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("Relevant background:\n")
	for _, r := range results {
		fmt.Fprintf(&b, "- %s\n", r.Content)
	}
	return b.String()
}
