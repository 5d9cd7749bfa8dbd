// Package dialogue implements the turn-processing engine that sits between
// recognized speech and synthesized output: it assembles an LLM prompt from
// conversation history and optional long-term memory, streams the
// completion, dispatches any requested tool calls, and feeds the resulting
// sentences to the session's TTS orchestrator in order.
package dialogue

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/signalharbor/voiceengine/internal/container"
	"github.com/signalharbor/voiceengine/internal/eventbus"
	"github.com/signalharbor/voiceengine/internal/intent"
	"github.com/signalharbor/voiceengine/internal/sessionctx"
	"github.com/signalharbor/voiceengine/internal/sessionmgr"
	"github.com/signalharbor/voiceengine/internal/toolhandler"
	"github.com/signalharbor/voiceengine/internal/ttsorchestrator"
	"github.com/signalharbor/voiceengine/pkg/provider/llm"
	"github.com/signalharbor/voiceengine/pkg/provider/tts"
	"github.com/signalharbor/voiceengine/pkg/types"
)

// ttsSampleRate is the PCM sample rate synthesized output is produced at,
// independent of whatever rate the device negotiated for capture.
const ttsSampleRate = 24000

// defaultMaxToolRecursion bounds recursive tool-call depth when an
// AgentConfig leaves MaxToolRecursion unset.
const defaultMaxToolRecursion = 5

// Service is the DialogueService: one instance serves every session.
type Service struct {
	bus       *eventbus.Bus
	sessions  *sessionmgr.Manager
	container *container.Container
	tools     *toolhandler.Handler
	intents   *intent.Service
	llms      map[string]llm.Provider
	ttsEngs   map[string]tts.Provider
	memory    Memory
}

// New creates a Service and subscribes it to final ASR transcripts.
func New(
	bus *eventbus.Bus,
	sessions *sessionmgr.Manager,
	c *container.Container,
	tools *toolhandler.Handler,
	intents *intent.Service,
	llms map[string]llm.Provider,
	ttsEngs map[string]tts.Provider,
	mem Memory,
) *Service {
	s := &Service{
		bus:       bus,
		sessions:  sessions,
		container: c,
		tools:     tools,
		intents:   intents,
		llms:      llms,
		ttsEngs:   ttsEngs,
		memory:    mem,
	}

	bus.Subscribe(eventbus.TypeTextRecognized, func(ctx context.Context, event eventbus.Event) error {
		ev := event.(eventbus.TextRecognized)
		if !ev.IsFinal || strings.TrimSpace(ev.Text) == "" {
			return nil
		}
		return s.dispatchTurn(ev.SessionID, ev.Text)
	}, true)

	return s
}

// dispatchTurn runs a fresh top-level turn on the session's own lifecycle,
// so the work is cancelled automatically if the session tears down mid-turn.
func (s *Service) dispatchTurn(sessionID, text string) error {
	lm, err := container.ResolveSessionT[*container.LifecycleManager](s.container, sessionID, container.LifecycleManagerKey)
	if err != nil {
		return nil
	}
	return lm.CreateTask(func(ctx context.Context) {
		if err := s.ProcessUserInput(ctx, sessionID, text, 0); err != nil {
			slog.Error("dialogue: turn failed", "session_id", sessionID, "err", err)
		}
	})
}

// turnState tracks the mutable sentence-ordering bookkeeping shared across
// every recursive ProcessUserInput call within one top-level turn.
type turnState struct {
	firstUnitSent  bool
	startPublished bool
}

// ProcessUserInput runs one pass of the dialogue loop: it assembles a
// prompt, streams a completion, and either speaks the result, dispatches a
// tool call, or recurses with the tool's result appended to history.
// depth 0 is the top-level turn triggered directly by recognized speech;
// depth > 0 is a recursive continuation after a tool call whose result must
// be fed back to the model.
func (s *Service) ProcessUserInput(ctx context.Context, sessionID, text string, depth int) error {
	return s.processUserInput(ctx, sessionID, text, depth, &turnState{})
}

func (s *Service) processUserInput(ctx context.Context, sessionID, text string, depth int, turn *turnState) error {
	sc, err := s.sessions.Get(sessionID)
	if err != nil {
		return fmt.Errorf("dialogue: resolve session: %w", err)
	}

	history, err := container.ResolveSessionT[*sessionctx.ConversationHistory](s.container, sessionID, container.ConversationHistoryKey)
	if err != nil {
		return fmt.Errorf("dialogue: resolve conversation history: %w", err)
	}

	orch, err := container.ResolveSessionT[*ttsorchestrator.Orchestrator](s.container, sessionID, container.TTSOrchestratorKey)
	if err != nil {
		return fmt.Errorf("dialogue: resolve tts orchestrator: %w", err)
	}

	maxDepth := sc.Agent.MaxToolRecursion
	if maxDepth <= 0 {
		maxDepth = defaultMaxToolRecursion
	}
	if depth > maxDepth {
		s.speak(ctx, sc, orch, turn, "I'm having trouble completing that request.", true)
		return nil
	}

	if depth == 0 {
		sc.ClientAbort = false
		sc.LLMFinishTask = false
		history.Append(types.Message{Role: "user", Content: text})
	}

	messages := s.buildPrompt(ctx, sc, history, text, depth)

	toolDefs := s.tools.AvailableTools()
	decision, err := s.intents.Resolve(ctx, sc.Agent.IntentMode, toolDefs, messages)
	if err != nil {
		slog.Warn("dialogue: intent resolution failed, proceeding without tools", "session_id", sessionID, "err", err)
	}

	if decision.PreResolved != nil && depth < maxDepth {
		return s.runToolCall(ctx, sc, history, orch, turn, depth, *decision.PreResolved)
	}

	provider, ok := s.llms[sc.Agent.LLMProvider]
	if !ok {
		return fmt.Errorf("dialogue: no LLM provider registered for %q", sc.Agent.LLMProvider)
	}

	req := llm.CompletionRequest{
		Messages:     messages,
		SystemPrompt: sc.Agent.SystemPrompt,
		Temperature:  0.7,
	}
	if decision.IncludeTools && depth < maxDepth {
		req.Tools = toolDefs
	}

	reply, toolCall, err := s.complete(ctx, sc, orch, turn, provider, req)
	if err != nil {
		return fmt.Errorf("dialogue: completion: %w", err)
	}

	if toolCall != nil {
		history.Append(types.Message{Role: "assistant", ToolCalls: []types.ToolCall{*toolCall}})
		return s.runToolCall(ctx, sc, history, orch, turn, depth, *toolCall)
	}

	history.Append(types.Message{Role: "assistant", Content: reply})
	return nil
}

// buildPrompt assembles the message list handed to the LLM: the active
// conversation window, optionally prefixed with a retrieved-memory system
// message on the first pass of a top-level turn.
func (s *Service) buildPrompt(ctx context.Context, sc *types.SessionContext, history *sessionctx.ConversationHistory, text string, depth int) []types.Message {
	messages := history.Messages()
	if depth > 0 {
		return messages
	}
	if memCtx := s.memory.Query(ctx, sc, text); memCtx != "" {
		messages = append([]types.Message{{Role: "system", Content: memCtx}}, messages...)
	}
	return messages
}

// runToolCall dispatches a requested tool call and either speaks its result
// directly or recurses the dialogue loop with the result appended.
func (s *Service) runToolCall(ctx context.Context, sc *types.SessionContext, history *sessionctx.ConversationHistory, orch *ttsorchestrator.Orchestrator, turn *turnState, depth int, call types.ToolCall) error {
	resp := s.tools.Execute(ctx, sc.SessionID, call.Name, call.Arguments)

	switch resp.Action {
	case types.ActionResponseText:
		history.Append(types.Message{Role: "tool", ToolCallID: call.ID, Content: resp.Payload})
		s.speak(ctx, sc, orch, turn, resp.Payload, true)
		return nil

	case types.ActionError:
		history.Append(types.Message{Role: "tool", ToolCallID: call.ID, Content: resp.Payload})
		s.speak(ctx, sc, orch, turn, resp.Payload, true)
		return nil

	default: // ActionRequireLLM, ActionNone
		history.Append(types.Message{Role: "tool", ToolCallID: call.ID, Content: resp.Payload})
		return s.processUserInput(ctx, sc.SessionID, "", depth+1, turn)
	}
}
