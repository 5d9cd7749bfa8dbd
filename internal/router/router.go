// Package router classifies inbound transport frames and publishes them onto
// the event bus as typed events, decoupling the WebSocket read loop from
// every downstream pipeline stage.
package router

import (
	"context"
	"log/slog"
	"time"

	"github.com/signalharbor/voiceengine/internal/container"
	"github.com/signalharbor/voiceengine/internal/eventbus"
	"github.com/signalharbor/voiceengine/internal/transport"
	"github.com/signalharbor/voiceengine/pkg/types"
)

// Router implements [transport.FrameHandler]. It is the sole place inbound
// frames are classified; everything downstream reacts to the events it
// publishes rather than touching the transport directly.
type Router struct {
	bus       *eventbus.Bus
	container *container.Container
}

// New creates a Router that publishes onto bus and resolves SessionContext
// instances from c.
func New(bus *eventbus.Bus, c *container.Container) *Router {
	return &Router{bus: bus, container: c}
}

var _ transport.FrameHandler = (*Router)(nil)

// HandleText updates the session's last-activity timestamp and publishes a
// [eventbus.TextMessageReceived] event carrying the raw string; downstream
// subscribers parse the JSON envelope.
func (r *Router) HandleText(ctx context.Context, sessionID string, text string) {
	r.touch(sessionID)
	r.bus.Publish(ctx, eventbus.TextMessageReceived{
		SessionEvent: eventbus.NewSessionEvent(sessionID),
		Text:         text,
	})
}

// HandleBinary updates the session's last-activity timestamp, extracts the
// MQTT-gateway header when present, and publishes a
// [eventbus.AudioDataReceived] event.
func (r *Router) HandleBinary(ctx context.Context, sessionID string, data []byte) {
	r.touch(sessionID)

	audio := data
	if sc, err := r.sessionContext(sessionID); err == nil && sc.FromMQTTGateway && len(data) >= 16 {
		if frame, err := transport.ParseMQTTFrame(data); err == nil {
			audio = frame.Audio
		} else {
			slog.Warn("router: malformed mqtt-gateway frame, treating as raw audio", "session_id", sessionID, "err", err)
		}
	}

	r.bus.Publish(ctx, eventbus.AudioDataReceived{
		SessionEvent: eventbus.NewSessionEvent(sessionID),
		Frame:        types.AudioFrame{Data: audio},
	})
}

// HandleClose publishes nothing by itself; session teardown is driven by the
// session manager observing the transport's close notification separately.
func (r *Router) HandleClose(ctx context.Context, sessionID string) {
	slog.Debug("router: connection closed", "session_id", sessionID)
}

func (r *Router) touch(sessionID string) {
	sc, err := r.sessionContext(sessionID)
	if err != nil {
		return
	}
	sc.LastActivityTime = time.Now()
}

func (r *Router) sessionContext(sessionID string) (*types.SessionContext, error) {
	return container.ResolveSessionT[*types.SessionContext](r.container, sessionID, container.SessionContextKey)
}
