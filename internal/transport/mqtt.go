package transport

import (
	"encoding/binary"
	"fmt"
)

// mqttHeaderLen is the fixed size of the MQTT-gateway audio frame header:
// bytes [0..8) reserved, [8..12) big-endian timestamp in milliseconds,
// [12..16) big-endian audio payload length.
const mqttHeaderLen = 16

// MQTTFrame holds the decoded fields of one MQTT-gateway audio frame.
type MQTTFrame struct {
	TimestampMs int64
	Audio       []byte
}

// ParseMQTTFrame extracts the timestamp and audio payload from a binary frame
// carrying the MQTT gateway's 16-byte header. Returns an error if frame is
// shorter than the header or the declared audio length overruns the frame.
//
// The first 8 reserved bytes are not interpreted; their exact layout was not
// pinned down by the source this engine's wire format is modeled on.
func ParseMQTTFrame(frame []byte) (MQTTFrame, error) {
	if len(frame) < mqttHeaderLen {
		return MQTTFrame{}, fmt.Errorf("transport: mqtt frame too short: %d bytes", len(frame))
	}

	tsMs := int64(binary.BigEndian.Uint32(frame[8:12]))
	audioLen := binary.BigEndian.Uint32(frame[12:16])

	end := mqttHeaderLen + int(audioLen)
	if end > len(frame) {
		return MQTTFrame{}, fmt.Errorf("transport: mqtt frame declares audio length %d beyond frame size %d", audioLen, len(frame))
	}

	return MQTTFrame{
		TimestampMs: tsMs,
		Audio:       frame[mqttHeaderLen:end],
	}, nil
}
