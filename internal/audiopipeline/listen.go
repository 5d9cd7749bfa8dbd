package audiopipeline

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/signalharbor/voiceengine/internal/eventbus"
	"github.com/signalharbor/voiceengine/internal/transport"
	"github.com/signalharbor/voiceengine/pkg/types"
)

// listenSubscription reacts to the device's "listen" control frame, which
// toggles manual-mode recording windows and lets the device declare its
// preferred listen mode independent of any VAD-gated speech segment already
// in flight.
func (p *Pipeline) listenSubscription() eventbus.Subscription {
	return p.bus.Subscribe(eventbus.TypeTextMessageReceived, func(ctx context.Context, event eventbus.Event) error {
		ev := event.(eventbus.TextMessageReceived)

		var envelope transport.InboundEnvelope
		if err := json.Unmarshal([]byte(ev.Text), &envelope); err != nil || envelope.Type != "listen" {
			return nil
		}

		var msg transport.ListenMessage
		if err := json.Unmarshal([]byte(ev.Text), &msg); err != nil {
			slog.Debug("audiopipeline: malformed listen frame", "session_id", ev.SessionID, "err", err)
			return nil
		}

		sc, err := p.sessions.Get(ev.SessionID)
		if err != nil {
			return nil
		}

		if msg.Mode != "" {
			sc.ClientListenMode = types.ListenMode(msg.Mode)
		}

		switch msg.State {
		case "stop":
			sc.ClientVoiceStop = true
			if st, ok := p.activeState(ev.SessionID); ok {
				st.mu.Lock()
				if st.speaking {
					p.endSegment(ctx, sc, st)
				}
				st.mu.Unlock()
			}
		case "start":
			sc.ClientVoiceStop = false
		}

		return nil
	}, false)
}

func (p *Pipeline) activeState(sessionID string) (*sessionState, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	st, ok := p.states[sessionID]
	return st, ok
}
