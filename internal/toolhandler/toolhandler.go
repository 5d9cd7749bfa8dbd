// Package toolhandler resolves a tool call requested by the dialogue engine
// against either a per-process SYSTEM_CTL registry or the session's
// [toolhost.Host], and reduces the outcome to a [types.ActionResponse] the
// dialogue engine can act on without knowing which path served the call.
//
// SYSTEM_CTL tools are engine-internal commands (volume, session teardown,
// mode switches) that need direct access to the session id, the DI
// container, and the event bus to take effect; user-level tools are
// everything registered in toolhost (builtin or MCP-backed) and only ever
// see their declared JSON arguments. toolhost already owns fuzzy tool-name
// resolution (matchr-based, see [toolhost.Host.ExecuteTool]) for the
// user-level path; this package does not duplicate it.
package toolhandler

import (
	"context"
	"fmt"

	"github.com/signalharbor/voiceengine/internal/container"
	"github.com/signalharbor/voiceengine/internal/eventbus"
	"github.com/signalharbor/voiceengine/internal/mcpbridge"
	"github.com/signalharbor/voiceengine/internal/toolhost"
	"github.com/signalharbor/voiceengine/pkg/types"
)

// DeviceToolSource calls tools the connected device itself exposes, the
// inverse direction from toolhost's outbound MCP client. It is optional:
// a Handler with no source configured simply never finds a device-side
// match and falls through to the ERROR action.
type DeviceToolSource interface {
	CallTool(ctx context.Context, sessionID, name, argsJSON string) (*toolhost.ToolResult, error)
}

var _ DeviceToolSource = (*mcpbridge.Bridge)(nil)

// PluginContext is handed to every SYSTEM_CTL tool, giving it the same reach
// into session state and cross-cutting infrastructure a user-level tool
// deliberately does not get.
type PluginContext struct {
	SessionID string
	Container *container.Container
	Bus       *eventbus.Bus
}

// SystemTool is a SYSTEM_CTL tool's handler. It receives its declared
// arguments as a JSON-encoded string and decides its own ActionResponse,
// since only the tool itself knows whether its effect needs to be spoken
// back, fed to another LLM turn, or left silent.
type SystemTool func(ctx context.Context, pctx PluginContext, args string) (types.ActionResponse, error)

// Handler dispatches a tool-call name to either the SYSTEM_CTL registry or
// the shared [toolhost.Host].
type Handler struct {
	host        *toolhost.Host
	container   *container.Container
	bus         *eventbus.Bus
	devices     DeviceToolSource
	systemTools map[string]SystemTool
	systemDefs  []types.ToolDefinition
}

// New creates a Handler backed by host for user-level tool execution.
// devices may be nil when no device-side tool source is wired in.
func New(host *toolhost.Host, c *container.Container, bus *eventbus.Bus, devices DeviceToolSource) *Handler {
	return &Handler{
		host:        host,
		container:   c,
		bus:         bus,
		devices:     devices,
		systemTools: make(map[string]SystemTool),
	}
}

// RegisterSystemTool adds a SYSTEM_CTL tool under name, offered to the LLM
// under def. Registering the same name twice replaces the previous handler
// and definition.
func (h *Handler) RegisterSystemTool(name string, def types.ToolDefinition, tool SystemTool) {
	h.systemTools[name] = tool
	for i, d := range h.systemDefs {
		if d.Name == name {
			h.systemDefs[i] = def
			return
		}
	}
	h.systemDefs = append(h.systemDefs, def)
}

// AvailableTools returns every tool definition the dialogue engine may offer
// the model: SYSTEM_CTL tools followed by toolhost's user-level tools.
func (h *Handler) AvailableTools() []types.ToolDefinition {
	defs := make([]types.ToolDefinition, 0, len(h.systemDefs)+len(h.host.AvailableTools()))
	defs = append(defs, h.systemDefs...)
	defs = append(defs, h.host.AvailableTools()...)
	return defs
}

// Execute resolves name against the SYSTEM_CTL registry first, then the
// user-level toolhost. Unknown tools — including after toolhost's own fuzzy
// resolution fails to find a close enough match — return an ERROR action.
func (h *Handler) Execute(ctx context.Context, sessionID, name, args string) types.ActionResponse {
	if tool, ok := h.systemTools[name]; ok {
		resp, err := tool(ctx, PluginContext{SessionID: sessionID, Container: h.container, Bus: h.bus}, args)
		if err != nil {
			return types.ActionResponse{Action: types.ActionError, Payload: err.Error()}
		}
		return resp
	}

	result, err := h.host.ExecuteTool(ctx, name, args)
	if err != nil && h.devices != nil {
		result, err = h.devices.CallTool(ctx, sessionID, name, args)
	}
	if err != nil {
		return types.ActionResponse{
			Action:  types.ActionError,
			Payload: fmt.Sprintf("tool %q could not be resolved or executed: %v", name, err),
		}
	}
	if result.IsError {
		return types.ActionResponse{Action: types.ActionError, Payload: result.Content}
	}

	// A user-level tool's raw output is not itself a spoken reply; it is fed
	// back into the conversation for the LLM to phrase a response from.
	return types.ActionResponse{Action: types.ActionRequireLLM, Payload: result.Content}
}
