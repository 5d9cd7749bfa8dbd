package eventbus

import "github.com/signalharbor/voiceengine/pkg/types"

// Event type discriminators, one per concrete event below. Subscribers key
// off these strings rather than Go types so a handler can subscribe before
// the producer package is even imported.
const (
	TypeTextMessageReceived = "text_message_received"
	TypeAudioDataReceived   = "audio_data_received"
	TypeSpeechDetected      = "speech_detected"
	TypeSpeechEnded         = "speech_ended"
	TypeTextRecognized      = "text_recognized"
	TypeAbortRequest        = "abort_request"
	TypeTTSStart            = "tts_start"
	TypeTTSAudioReady       = "tts_audio_ready"
	TypeTTSEnd              = "tts_end"
	TypeSessionStarted      = "session_started"
	TypeSessionDestroyed    = "session_destroyed"
)

// SessionEvent is embedded by every event below to carry the session id all
// handlers need to resolve per-session state from the DI container.
type SessionEvent struct {
	SessionID string
}

// NewSessionEvent wraps a session id for embedding into one of the concrete
// event types below.
func NewSessionEvent(sessionID string) SessionEvent {
	return SessionEvent{SessionID: sessionID}
}

// TextMessageReceived is published by MessageRouter for every inbound JSON
// text frame; downstream handlers (transport/protocol dispatch) parse it.
type TextMessageReceived struct {
	SessionEvent
	Text string
}

func (TextMessageReceived) Type() string { return TypeTextMessageReceived }

// AudioDataReceived is published by MessageRouter for every inbound binary
// audio frame, after stripping any MQTT-gateway header.
type AudioDataReceived struct {
	SessionEvent
	Frame types.AudioFrame
}

func (AudioDataReceived) Type() string { return TypeAudioDataReceived }

// SpeechDetected is published by AudioProcessingService when a session
// transitions from silence to voice.
type SpeechDetected struct {
	SessionEvent
}

func (SpeechDetected) Type() string { return TypeSpeechDetected }

// SpeechEnded is published by AudioProcessingService when the VAD
// segmentation policy closes an active speech segment.
type SpeechEnded struct {
	SessionEvent
}

func (SpeechEnded) Type() string { return TypeSpeechEnded }

// TextRecognized is published by AudioProcessingService for every ASR
// result, partial or final.
type TextRecognized struct {
	SessionEvent
	Text    string
	IsFinal bool
}

func (TextRecognized) Type() string { return TypeTextRecognized }

// AbortRequest is published by the audio pipeline (barge-in), the output-state
// coordinator (explicit client abort frame), or the abort system tool to
// trigger the IDLE/SPEAKING/CLOSING abort state machine.
type AbortRequest struct {
	SessionEvent
	Reason types.AbortReason
}

func (AbortRequest) Type() string { return TypeAbortRequest }

// TTSStart is published exactly once per top-level dialogue turn, at
// recursion depth 0.
type TTSStart struct {
	SessionEvent
	SentenceID uint64
}

func (TTSStart) Type() string { return TypeTTSStart }

// TTSAudioReady carries one sentence unit. No engine component publishes or
// subscribes to it: the dialogue engine hands sentence units to the
// TTSOrchestrator directly through its Enqueue method.
type TTSAudioReady struct {
	SessionEvent
	Unit types.SentenceUnit
}

func (TTSAudioReady) Type() string { return TypeTTSAudioReady }

// TTSEnd is published exactly once per top-level dialogue turn, whether it
// completed naturally or was cut short by an abort (Synthetic=true).
type TTSEnd struct {
	SessionEvent
	Synthetic bool
}

func (TTSEnd) Type() string { return TypeTTSEnd }

// SessionStarted is published by the session manager once a SessionContext
// and LifecycleManager pair has been created.
type SessionStarted struct {
	SessionEvent
}

func (SessionStarted) Type() string { return TypeSessionStarted }

// SessionDestroyed is published by the session manager after a session's
// resources have been fully torn down.
type SessionDestroyed struct {
	SessionEvent
}

func (SessionDestroyed) Type() string { return TypeSessionDestroyed }
