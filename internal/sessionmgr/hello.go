package sessionmgr

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/signalharbor/voiceengine/internal/eventbus"
	"github.com/signalharbor/voiceengine/internal/transport"
)

// SubscribeHello wires the Manager to answer the device's "hello" protocol
// frame: on receipt it completes session bootstrap via [Manager.HandleHello]
// and sends the negotiated reply back over t.
func (m *Manager) SubscribeHello(t *transport.Transport) eventbus.Subscription {
	return m.bus.Subscribe(eventbus.TypeTextMessageReceived, func(ctx context.Context, event eventbus.Event) error {
		ev := event.(eventbus.TextMessageReceived)

		var envelope transport.InboundEnvelope
		if err := json.Unmarshal([]byte(ev.Text), &envelope); err != nil || envelope.Type != "hello" {
			return nil
		}

		var hello transport.HelloMessage
		if err := json.Unmarshal([]byte(ev.Text), &hello); err != nil {
			slog.Warn("sessionmgr: malformed hello frame", "session_id", ev.SessionID, "err", err)
			return nil
		}

		deviceID, clientID := deviceIdentity(hello)
		if deviceID == "" {
			deviceID = ev.SessionID
		}
		if clientID == "" {
			clientID = deviceID
		}

		reply, err := m.HandleHello(ctx, ev.SessionID, hello, deviceID, clientID)
		if err != nil {
			slog.Error("sessionmgr: hello handshake failed", "session_id", ev.SessionID, "err", err)
			return err
		}

		return t.Send(ctx, ev.SessionID, reply)
	}, false)
}

// deviceIdentity extracts the device/client identifiers a hello frame
// declares in its features payload. Devices that omit them fall back to the
// transport-assigned session id as both, so the AgentConfig fetch still has
// a stable key to look up.
func deviceIdentity(hello transport.HelloMessage) (deviceID, clientID string) {
	if len(hello.Features) == 0 {
		return "", ""
	}
	var fields struct {
		DeviceID string `json:"device_id"`
		ClientID string `json:"client_id"`
	}
	_ = json.Unmarshal(hello.Features, &fields)
	return fields.DeviceID, fields.ClientID
}
