// Package outputstate drives the per-session assistant-output abort state
// machine: IDLE -> SPEAKING -> CLOSING -> IDLE. It does not own the audio
// queue itself — that is [internal/ttsorchestrator.Orchestrator]'s job — it
// is the subscriber that turns an [eventbus.AbortRequest] into a call on the
// session's orchestrator, idempotently, regardless of how many abort sources
// fire concurrently (explicit client abort frame, barge-in detection, the
// abort system tool).
package outputstate

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/signalharbor/voiceengine/internal/container"
	"github.com/signalharbor/voiceengine/internal/eventbus"
	"github.com/signalharbor/voiceengine/internal/sessionmgr"
	"github.com/signalharbor/voiceengine/internal/transport"
	"github.com/signalharbor/voiceengine/internal/ttsorchestrator"
	"github.com/signalharbor/voiceengine/pkg/types"
)

// Coordinator subscribes to the event bus and resolves each session's
// orchestrator to apply abort requests against.
type Coordinator struct {
	bus       *eventbus.Bus
	container *container.Container
	sessions  *sessionmgr.Manager
}

// New creates a Coordinator and subscribes it to [eventbus.AbortRequest] and
// [eventbus.TextMessageReceived] (for the explicit "abort" protocol frame).
func New(bus *eventbus.Bus, c *container.Container, sessions *sessionmgr.Manager) *Coordinator {
	co := &Coordinator{bus: bus, container: c, sessions: sessions}

	bus.Subscribe(eventbus.TypeAbortRequest, func(ctx context.Context, event eventbus.Event) error {
		ev := event.(eventbus.AbortRequest)
		co.handleAbort(ev.SessionID, ev.Reason)
		return nil
	}, false)

	bus.Subscribe(eventbus.TypeTextMessageReceived, func(ctx context.Context, event eventbus.Event) error {
		ev := event.(eventbus.TextMessageReceived)
		var envelope transport.InboundEnvelope
		if err := json.Unmarshal([]byte(ev.Text), &envelope); err != nil || envelope.Type != "abort" {
			return nil
		}
		co.RequestAbort(ctx, ev.SessionID, types.AbortClientRequest)
		return nil
	}, false)

	return co
}

// State returns the current [types.OutputState] for a session, or
// [types.StateIdle] if the session has no orchestrator yet.
func (co *Coordinator) State(sessionID string) types.OutputState {
	orch, err := co.orchestrator(sessionID)
	if err != nil {
		return types.StateIdle
	}
	return orch.State()
}

// RequestAbort publishes an [eventbus.AbortRequest] for sessionID. The
// Coordinator's own handler for the client's explicit "abort" frame goes
// through it; other producers (the audio pipeline's barge-in detector, the
// abort system tool) publish the event themselves.
func (co *Coordinator) RequestAbort(ctx context.Context, sessionID string, reason types.AbortReason) {
	co.bus.Publish(ctx, eventbus.AbortRequest{
		SessionEvent: eventbus.NewSessionEvent(sessionID),
		Reason:       reason,
	})
}

func (co *Coordinator) handleAbort(sessionID string, reason types.AbortReason) {
	orch, err := co.orchestrator(sessionID)
	if err != nil {
		// Nothing is SPEAKING for a session with no orchestrator yet; an abort
		// against an idle session is a no-op by construction.
		return
	}

	slog.Debug("outputstate: abort requested", "session_id", sessionID, "reason", reason.String())
	orch.Abort(reason)

	if sc, err := co.sessions.Get(sessionID); err == nil {
		sc.ClientAbort = true
	}
}

func (co *Coordinator) orchestrator(sessionID string) (*ttsorchestrator.Orchestrator, error) {
	return container.ResolveSessionT[*ttsorchestrator.Orchestrator](co.container, sessionID, container.TTSOrchestratorKey)
}
