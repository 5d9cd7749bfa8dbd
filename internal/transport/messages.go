package transport

import "encoding/json"

// InboundEnvelope is the minimal shape every inbound text frame satisfies —
// enough to read the discriminator field before parsing the full message.
type InboundEnvelope struct {
	Type string `json:"type"`
}

// HelloMessage is sent by the device immediately after the connection opens
// and replied to by the server with negotiated audio parameters and a
// session token.
type HelloMessage struct {
	Type        string          `json:"type"`
	AudioParams AudioParams     `json:"audio_params"`
	Features    json.RawMessage `json:"features,omitempty"`
}

// AudioParams describes the audio encoding a device streams or expects to
// receive.
type AudioParams struct {
	Format        string `json:"format"`
	SampleRate    int    `json:"sample_rate"`
	Channels      int    `json:"channels"`
	FrameDuration int    `json:"frame_duration"`
}

// HelloReply is the server's response to a HelloMessage.
type HelloReply struct {
	Type         string      `json:"type"`
	AudioParams  AudioParams `json:"audio_params"`
	SessionToken string      `json:"session_id"`
}

// ListenMessage toggles the device's listening state.
type ListenMessage struct {
	Type  string `json:"type"`
	State string `json:"state"` // start | stop | detect
	Mode  string `json:"mode"`  // auto | manual | realtime
}

// AbortMessage requests cancellation of whatever the server is currently
// saying or doing.
type AbortMessage struct {
	Type   string `json:"type"`
	Reason string `json:"reason,omitempty"`
}

// IOTMessage carries device state descriptors and commands. The payload
// shape is device-defined; the engine only routes it.
type IOTMessage struct {
	Type  string          `json:"type"`
	State json.RawMessage `json:"state,omitempty"`
	Event json.RawMessage `json:"event,omitempty"`
}

// MCPMessage wraps a JSON-RPC request/response exchanged with a device that
// declared features.mcp in its hello frame.
type MCPMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// ServerMessage carries administrative instructions such as a request to
// reload the session's agent configuration.
type ServerMessage struct {
	Type    string `json:"type"`
	Action  string `json:"action"`
	Payload string `json:"payload,omitempty"`
}

// TTSMessage reports TTS lifecycle transitions to the device.
type TTSMessage struct {
	Type  string `json:"type"`
	State string `json:"state"` // start | sentence_start | end
	Text  string `json:"text,omitempty"`
}

// STTMessage reports recognized user text to the device.
type STTMessage struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// LLMMessage reports dialogue state to the device (e.g. "thinking") so it can
// drive a status indicator.
type LLMMessage struct {
	Type  string `json:"type"`
	State string `json:"state"`
	Emoji string `json:"emoji,omitempty"`
}

// AudioEnvelopeMessage carries base64-framed audio inside a text envelope,
// used by devices that cannot accept binary frames on their transport.
type AudioEnvelopeMessage struct {
	Type string `json:"type"`
	Data string `json:"data"`
}
