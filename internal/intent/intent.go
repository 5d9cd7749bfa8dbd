// Package intent implements the three recognition modes an AgentConfig can
// select: nointent (no tool use at all), intent_llm (a dedicated
// classification call decides whether a tool applies before the main
// dialogue turn runs), and function_call (tool schemas ride along with every
// dialogue completion and the model decides inline).
package intent

import (
	"context"
	"fmt"

	"github.com/signalharbor/voiceengine/pkg/provider/llm"
	"github.com/signalharbor/voiceengine/pkg/types"
)

// Mode names the recognition strategy selected by AgentConfig.IntentMode.
type Mode string

const (
	ModeNone         Mode = "nointent"
	ModeLLM          Mode = "intent_llm"
	ModeFunctionCall Mode = "function_call"
)

// Decision tells the dialogue engine how to proceed with the turn in
// progress: whether to offer tool schemas on the main completion call, and,
// for intent_llm mode, a tool call already decided by the classification
// pass that should run without waiting for the main completion.
type Decision struct {
	IncludeTools bool
	PreResolved  *types.ToolCall
}

// Service resolves a Decision for one dialogue turn.
type Service struct {
	classifier llm.Provider
}

// New creates a Service. classifier is used only in intent_llm mode, for the
// separate classification call; it may be the same provider the dialogue
// engine uses for its main completions.
func New(classifier llm.Provider) *Service {
	return &Service{classifier: classifier}
}

// Resolve determines how the current turn should handle tools, given the
// session's configured mode, the candidate tool definitions, and the
// conversation so far.
func (s *Service) Resolve(ctx context.Context, mode string, tools []types.ToolDefinition, messages []types.Message) (Decision, error) {
	switch Mode(mode) {
	case ModeFunctionCall:
		return Decision{IncludeTools: len(tools) > 0}, nil

	case ModeLLM:
		if len(tools) == 0 {
			return Decision{}, nil
		}
		resp, err := s.classifier.Complete(ctx, llm.CompletionRequest{
			Messages:     messages,
			Tools:        tools,
			SystemPrompt: "Call a tool only if the user's request clearly requires one; otherwise respond with no tool calls.",
			Temperature:  0,
		})
		if err != nil {
			return Decision{}, fmt.Errorf("intent: classification call: %w", err)
		}
		if len(resp.ToolCalls) == 0 {
			return Decision{}, nil
		}
		call := resp.ToolCalls[0]
		return Decision{PreResolved: &call}, nil

	case ModeNone:
		return Decision{}, nil

	default:
		return Decision{}, nil
	}
}
