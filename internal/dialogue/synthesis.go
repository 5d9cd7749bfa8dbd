package dialogue

import (
	"context"
	"errors"
	"strings"

	"github.com/signalharbor/voiceengine/internal/ttsorchestrator"
	"github.com/signalharbor/voiceengine/pkg/provider/llm"
	"github.com/signalharbor/voiceengine/pkg/types"
)

// sentenceBoundary is the set of runes that end a spoken sentence.
const sentenceBoundary = ".!?。！？"

// errChunkStream is returned when a streaming completion signals a mid-stream
// failure via Chunk.FinishReason == "error".
var errChunkStream = errors.New("dialogue: llm stream reported an error chunk")

// complete runs one LLM completion (streaming or blocking, per the agent's
// configuration), speaking each completed sentence as it becomes available
// and returning the full reply text plus any requested tool call. At most
// one tool call is acted on per completion; additional calls in the same
// response are ignored.
func (s *Service) complete(ctx context.Context, sc *types.SessionContext, orch *ttsorchestrator.Orchestrator, turn *turnState, provider llm.Provider, req llm.CompletionRequest) (string, *types.ToolCall, error) {
	if !sc.Agent.StreamingEnabled {
		resp, err := provider.Complete(ctx, req)
		if err != nil {
			return "", nil, err
		}
		if len(resp.ToolCalls) > 0 {
			return resp.Content, &resp.ToolCalls[0], nil
		}
		s.speak(ctx, sc, orch, turn, resp.Content, true)
		return resp.Content, nil, nil
	}

	chunks, err := provider.StreamCompletion(ctx, req)
	if err != nil {
		return "", nil, err
	}

	var full strings.Builder
	var buf strings.Builder
	var toolCalls []types.ToolCall
	var streamErr error

	for chunk := range chunks {
		if sc.ClientAbort {
			continue // drain the channel; orchestrator abort already in flight
		}
		if chunk.FinishReason == "error" {
			streamErr = errChunkStream
		}
		if chunk.Text != "" {
			full.WriteString(chunk.Text)
			buf.WriteString(chunk.Text)
			flushCompleteSentences(&buf, func(sentence string) {
				s.speak(ctx, sc, orch, turn, sentence, false)
			})
		}
		toolCalls = append(toolCalls, chunk.ToolCalls...)
	}

	if streamErr != nil {
		return full.String(), nil, streamErr
	}

	if sc.ClientAbort {
		// The abort already ended the turn with a synthetic TTSEnd; closing
		// it again would enqueue a SentenceLast the orchestrator never plays.
		return full.String(), nil, nil
	}

	if len(toolCalls) > 0 {
		return full.String(), &toolCalls[0], nil
	}

	// No further tool call: this completion closes the turn, whether or not
	// it has a trailing partial sentence to flush. A SentenceLast unit must
	// always be emitted, even empty, so the orchestrator's turn-closing
	// onTTSEnd fires and the device isn't left waiting for one.
	s.speak(ctx, sc, orch, turn, strings.TrimSpace(buf.String()), true)

	return full.String(), nil, nil
}

// flushCompleteSentences extracts every complete sentence currently buffered
// in buf, invoking emit for each and leaving only the trailing partial
// sentence behind.
func flushCompleteSentences(buf *strings.Builder, emit func(string)) {
	text := buf.String()
	last := 0
	for i, r := range text {
		if strings.ContainsRune(sentenceBoundary, r) {
			sentence := strings.TrimSpace(text[last : i+len(string(r))])
			if sentence != "" {
				emit(sentence)
			}
			last = i + len(string(r))
		}
	}
	buf.Reset()
	buf.WriteString(text[last:])
}
