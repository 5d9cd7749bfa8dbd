package app

import (
	"context"
	"fmt"

	"github.com/signalharbor/voiceengine/internal/container"
	"github.com/signalharbor/voiceengine/internal/eventbus"
	"github.com/signalharbor/voiceengine/internal/sessionmgr"
	"github.com/signalharbor/voiceengine/internal/toolhandler"
	"github.com/signalharbor/voiceengine/internal/ttsorchestrator"
	"github.com/signalharbor/voiceengine/pkg/types"
)

// registerSystemTools adds the engine-internal SYSTEM_CTL commands every
// session gets access to regardless of its AgentConfig's declared tool set,
// mirroring how glyphoxa's slash commands reached straight into session
// state rather than going through an NPC's own tool registry.
func registerSystemTools(h *toolhandler.Handler, sessions *sessionmgr.Manager) {
	h.RegisterSystemTool(
		"end_conversation",
		types.ToolDefinition{
			Name:        "end_conversation",
			Description: "Ends the current voice session and disconnects the device.",
		},
		func(ctx context.Context, pctx toolhandler.PluginContext, args string) (types.ActionResponse, error) {
			sessions.Destroy(pctx.SessionID)
			return types.ActionResponse{Action: types.ActionNone}, nil
		},
	)

	h.RegisterSystemTool(
		"interrupt_playback",
		types.ToolDefinition{
			Name:        "interrupt_playback",
			Description: "Stops whatever the assistant is currently speaking.",
		},
		func(ctx context.Context, pctx toolhandler.PluginContext, args string) (types.ActionResponse, error) {
			orch, err := container.ResolveSessionT[*ttsorchestrator.Orchestrator](pctx.Container, pctx.SessionID, container.TTSOrchestratorKey)
			if err != nil {
				return types.ActionResponse{}, fmt.Errorf("system tool interrupt_playback: %w", err)
			}
			orch.Abort(types.AbortClientRequest)
			pctx.Bus.Publish(ctx, eventbus.AbortRequest{
				SessionEvent: eventbus.NewSessionEvent(pctx.SessionID),
				Reason:       types.AbortClientRequest,
			})
			return types.ActionResponse{Action: types.ActionNone}, nil
		},
	)
}
