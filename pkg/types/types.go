// Package types defines the shared data structures used across the voice
// engine's pipeline, providers, session state, and event bus.
//
// These types form the lingua franca between transport, pipeline stages, and
// the dialogue engine. Each package may define its own narrower domain types,
// but cross-cutting structures that would otherwise force circular imports
// live here.
package types

import "time"

// AudioFrame is a single frame of audio data flowing through the pipeline,
// from the device's WebSocket connection through VAD, the ASR/TTS codecs,
// and back out to the device.
type AudioFrame struct {
	// Data holds PCM or Opus-encoded audio, depending on the pipeline stage.
	Data []byte

	// SampleRate in Hz (e.g., 16000 for device capture, 24000 for TTS output).
	SampleRate int

	// Channels: 1 for mono. Devices in this system are always single-channel.
	Channels int

	// Timestamp marks when this frame was captured, relative to stream start.
	Timestamp time.Duration
}

// AudioParams describes the codec parameters a device negotiated in its
// hello frame: encoding, sample rate, channel count, and frame duration.
type AudioParams struct {
	Format        string `json:"format"`
	SampleRate    int    `json:"sample_rate"`
	Channels      int    `json:"channels"`
	FrameDuration int    `json:"frame_duration"`
}

// Transcript is a speech-to-text result from an ASR provider. Both partial
// (interim) and final transcripts use this type; IsFinal distinguishes them.
type Transcript struct {
	// Text is the transcribed speech content.
	Text string

	// IsFinal indicates whether this is a final (authoritative) or partial
	// (interim) transcript.
	IsFinal bool

	// Confidence is the overall confidence score (0.0-1.0). May be zero if
	// the provider does not report confidence.
	Confidence float64

	// Words contains per-word detail when available. May be nil.
	Words []WordDetail

	// Timestamp marks when the utterance started, relative to session start.
	Timestamp time.Duration

	// Duration is the length of the utterance.
	Duration time.Duration
}

// WordDetail holds per-word metadata from ASR providers that support it.
type WordDetail struct {
	Word       string
	Start      time.Duration
	End        time.Duration
	Confidence float64
}

// TurnEntry is one exchange recorded in a session's conversation history:
// either something the device's user said, or something the assistant said.
type TurnEntry struct {
	// Role is "user" or "assistant".
	Role string

	// Text is the (possibly corrected) utterance or reply text.
	Text string

	// RawText is the original uncorrected ASR output, when Role is "user".
	// Preserved for debugging and re-synthesis audits.
	RawText string

	// Timestamp is when this entry was recorded.
	Timestamp time.Time

	// Duration is the length of the audio this entry corresponds to, if any.
	Duration time.Duration
}

// Message represents a single message in an LLM conversation history.
type Message struct {
	// Role is one of "system", "user", "assistant", or "tool".
	Role string

	// Content is the text content of the message.
	Content string

	// Name is an optional participant name.
	Name string

	// ToolCalls contains any tool invocations requested by the assistant.
	ToolCalls []ToolCall

	// ToolCallID is set when Role is "tool", identifying which call this responds to.
	ToolCallID string
}

// ToolCall represents a tool/function invocation requested by the LLM.
type ToolCall struct {
	// ID is the unique identifier for this tool call (provider-assigned).
	ID string

	// Name is the tool/function name.
	Name string

	// Arguments is the JSON-encoded arguments string.
	Arguments string
}

// ToolDefinition describes a tool that can be offered to an LLM, sourced
// either from a device's reported MCP capabilities or from a bridged
// external MCP server.
type ToolDefinition struct {
	// Name is the tool's unique identifier.
	Name string

	// Description explains what the tool does (included in LLM prompts).
	Description string

	// Parameters is the JSON Schema describing the tool's input parameters.
	Parameters map[string]any

	// Idempotent indicates whether the tool can be safely retried.
	Idempotent bool
}

// VoiceProfile describes a TTS voice configuration for a session.
type VoiceProfile struct {
	// ID is the provider-specific voice identifier.
	ID string

	// Name is the human-readable voice name.
	Name string

	// Provider identifies which TTS provider this voice belongs to.
	Provider string

	// SpeedFactor adjusts speaking rate (0.5-2.0, 1.0 = default).
	SpeedFactor float64

	// Metadata holds provider-specific voice attributes (gender, accent, etc.).
	Metadata map[string]string
}

// ModelCapabilities describes what an LLM model supports.
type ModelCapabilities struct {
	// ContextWindow is the maximum token count for input + output.
	ContextWindow int

	// MaxOutputTokens is the maximum tokens the model can generate in one completion.
	MaxOutputTokens int

	// SupportsToolCalling indicates native function/tool calling support.
	SupportsToolCalling bool

	// SupportsStreaming indicates the model supports streaming completions.
	SupportsStreaming bool
}

// KeywordBoost represents a keyword to boost in ASR recognition, used to
// improve recognition of names and domain-specific vocabulary a device's
// owner has configured.
type KeywordBoost struct {
	Keyword string
	Boost   float64
}

// VADEventType enumerates voice-activity-detection states.
type VADEventType int

const (
	// VADSpeechStart indicates speech has just begun.
	VADSpeechStart VADEventType = iota

	// VADSpeechContinue indicates ongoing speech.
	VADSpeechContinue

	// VADSpeechEnd indicates speech has just ended.
	VADSpeechEnd

	// VADSilence indicates no speech detected.
	VADSilence
)

// VADEvent represents a voice activity detection result for a single audio frame.
type VADEvent struct {
	Type        VADEventType
	Probability float64
}

// ContentType distinguishes what kind of payload a SentenceUnit carries.
type ContentType int

const (
	// ContentText is synthesizable spoken text.
	ContentText ContentType = iota

	// ContentAction is a structured client-side action directive (e.g. an
	// emote or UI hint) that accompanies speech but is not itself spoken.
	ContentAction

	// ContentFile is a pre-rendered audio asset to be played verbatim
	// instead of being synthesized (e.g. a sound effect or canned reply).
	ContentFile
)

// String returns the human-readable name of the content type.
func (c ContentType) String() string {
	switch c {
	case ContentText:
		return "TEXT"
	case ContentAction:
		return "ACTION"
	case ContentFile:
		return "FILE"
	default:
		return "UNKNOWN"
	}
}

// SentencePosition marks a SentenceUnit's place within its dialogue turn.
type SentencePosition int

const (
	// SentenceFirst marks the first sentence of a turn.
	SentenceFirst SentencePosition = iota

	// SentenceMiddle marks an interior sentence of a turn.
	SentenceMiddle

	// SentenceLast marks the final sentence of a turn.
	SentenceLast
)

// SentenceUnit is the unit of dialogue output handed from the dialogue
// engine to the TTS orchestrator. Sentences are produced out of order by
// concurrent synthesis but must reach the device in SentenceID order.
type SentenceUnit struct {
	// SessionID identifies the owning session.
	SessionID string

	// SentenceID is the monotonically increasing, per-turn ordering key.
	SentenceID uint64

	// Position marks this unit's place in the turn.
	Position SentencePosition

	// ContentType selects how Content should be interpreted.
	ContentType ContentType

	// Content is spoken text (ContentText), an action payload (ContentAction),
	// or a file reference (ContentFile).
	Content string

	// Audio streams synthesized (or pre-rendered) audio frames for this
	// sentence. Nil for ContentAction units. Closed by the producer when
	// synthesis completes or fails.
	Audio <-chan AudioFrame
}

// AbortReason identifies why an in-progress turn was aborted.
type AbortReason int

const (
	// AbortBargeIn indicates the device's user started speaking while the
	// assistant was still talking.
	AbortBargeIn AbortReason = iota

	// AbortClientRequest indicates the device explicitly requested an abort.
	AbortClientRequest

	// AbortDisconnect indicates the connection closed mid-turn.
	AbortDisconnect
)

// String returns the human-readable name of the abort reason.
func (r AbortReason) String() string {
	switch r {
	case AbortBargeIn:
		return "BARGE_IN"
	case AbortClientRequest:
		return "CLIENT_REQUEST"
	case AbortDisconnect:
		return "DISCONNECT"
	default:
		return "UNKNOWN"
	}
}

// ListenMode selects how the device's microphone stream should be
// interpreted by the audio pipeline.
type ListenMode string

const (
	// ListenAuto runs continuous VAD-gated listening; barge-in is active.
	ListenAuto ListenMode = "auto"

	// ListenManual expects explicit listen/start and listen/stop frames;
	// barge-in is suppressed while the assistant is speaking.
	ListenManual ListenMode = "manual"

	// ListenRealtime streams audio continuously without VAD-gated
	// segmentation (e.g. full-duplex hardware).
	ListenRealtime ListenMode = "realtime"
)

// SessionContext is the authoritative per-session state. It is a plain data
// struct with no behavior: it is created when a connection is accepted,
// mutated only from within event handlers dispatched for that session id,
// and destroyed when the session is torn down. Providers and handlers
// receive it by reference but never hold it for control flow — they
// subscribe to events and resolve the context by session id instead.
type SessionContext struct {
	// SessionID is the opaque unique identifier minted at connection accept.
	SessionID string

	// DeviceID identifies the physical device, as declared in its hello frame.
	DeviceID string

	// ClientID is the logical client identifier (may differ from DeviceID
	// for multi-profile devices).
	ClientID string

	// ClientIP is the remote address of the device's connection.
	ClientIP string

	// AudioFormat is the negotiated audio codec, "opus" by default.
	AudioFormat string

	// AudioParams holds the full negotiated codec parameters from the
	// device's hello frame (sample rate, channels, frame duration), needed
	// to configure the session's Opus decoder and VAD/ASR sessions.
	AudioParams AudioParams

	// Features is the capability map the device declared in its hello
	// frame (e.g. {"mcp": {...}}).
	Features map[string]any

	// WelcomePayload is the template used to build the server's hello reply.
	WelcomePayload map[string]any

	// Agent is the negotiated agent configuration for this session,
	// immutable after load.
	Agent AgentConfig

	// ClientAbort is set by AbortRequest handling and cleared at the start of
	// each top-level dialogue turn. The streaming LLM loop checks it between
	// chunks; TTS synthesis and tool execution do not read it.
	ClientAbort bool

	// ClientIsSpeaking is true while the assistant's TTS output is in
	// flight (SPEAKING state) for this session.
	ClientIsSpeaking bool

	// ClientListenMode controls whether barge-in is active.
	ClientListenMode ListenMode

	// JustWokenUp suppresses VAD while set. The session manager sets it when
	// the hello handshake completes and clears it 2 s later; it is not set
	// after response playback.
	JustWokenUp bool

	// ClientHaveVoice tracks whether the audio pipeline currently considers
	// the stream to be inside an active speech segment.
	ClientHaveVoice bool

	// ClientVoiceStop is set when the device explicitly signals the end of
	// a manual-mode listen window (listen/stop).
	ClientVoiceStop bool

	// LLMFinishTask is true once the dialogue engine has completed (emitted
	// TTSEnd for) the current top-level turn.
	LLMFinishTask bool

	// CurrentSentenceID is the ordering key minted for the turn in flight.
	CurrentSentenceID uint64

	// CurrentSpeaker identifies the recognized voice (after voiceprint
	// match), empty when unknown or unsupported.
	CurrentSpeaker string

	// LastActivityTime is refreshed by the router on every inbound frame
	// and drives the inactivity timeout.
	LastActivityTime time.Time

	// FromMQTTGateway indicates binary frames for this session carry the
	// 16-byte MQTT-gateway header.
	FromMQTTGateway bool
}

// AgentConfig is the immutable-per-session configuration bound to a device
// at session start: selected providers per stage, system prompt, memory
// mode, voice id, and streaming flags. Fetched via a configuration port
// keyed by device id.
type AgentConfig struct {
	// Name identifies this agent configuration (for logging).
	Name string `json:"name"`

	// SystemPrompt is injected as the first message in every dialogue turn.
	SystemPrompt string `json:"system_prompt"`

	// LLMProvider, STTProvider, TTSProvider, VADProvider select the
	// registered provider name for each pipeline stage.
	LLMProvider string `json:"llm_provider"`
	STTProvider string `json:"stt_provider"`
	TTSProvider string `json:"tts_provider"`
	VADProvider string `json:"vad_provider"`

	// VoiceID selects the TTS voice profile.
	VoiceID string `json:"voice_id"`

	// MemoryMode selects how the dialogue engine queries long-term memory
	// (e.g. "off", "session", "graphrag").
	MemoryMode string `json:"memory_mode"`

	// IntentMode selects the recognition mode: "nointent", "intent_llm", or
	// "function_call".
	IntentMode string `json:"intent_mode"`

	// MaxToolRecursion bounds DialogueService's recursive tool-call depth.
	MaxToolRecursion int `json:"max_tool_recursion"`

	// SurfacePartialTranscripts controls whether non-final ASR partials are
	// forwarded to the client as stt frames with is_final:false.
	SurfacePartialTranscripts bool `json:"surface_partial_transcripts"`

	// StreamingEnabled toggles LLM response streaming; false forces a
	// single blocking Complete call.
	StreamingEnabled bool `json:"streaming_enabled"`
}

// ActionType enumerates the outcome of a tool invocation dispatched by
// ToolHandler.
type ActionType int

const (
	// ActionNone indicates the tool produced no user-visible effect; the
	// dialogue engine continues without emitting TTS for this result.
	ActionNone ActionType = iota

	// ActionResponseText indicates Payload should be spoken back to the
	// user directly, without another LLM turn.
	ActionResponseText

	// ActionError indicates the tool failed; Payload is an error message
	// to speak back. The LLM is not re-invoked.
	ActionError

	// ActionRequireLLM indicates the tool result should be appended to the
	// conversation history and fed back into a recursive DialogueService
	// call.
	ActionRequireLLM
)

// String returns the wire-taxonomy name of the action type.
func (a ActionType) String() string {
	switch a {
	case ActionNone:
		return "NONE"
	case ActionResponseText:
		return "RESPONSE"
	case ActionError:
		return "ERROR"
	case ActionRequireLLM:
		return "REQLLM"
	default:
		return "UNKNOWN"
	}
}

// ActionResponse is the tagged-variant result returned by ToolHandler in
// place of dynamic dispatch: the Action discriminates how Payload should be
// interpreted by the caller.
type ActionResponse struct {
	Action  ActionType
	Payload string
}

// OutputState enumerates the abort/interruption state machine described for
// a session's assistant-output lifecycle.
type OutputState int

const (
	// StateIdle means no assistant output is in flight.
	StateIdle OutputState = iota

	// StateSpeaking means the assistant is actively streaming TTS audio.
	StateSpeaking

	// StateClosing means an abort has been requested and the orchestrator is
	// draining in-flight synthesis before returning to StateIdle.
	StateClosing
)

// String returns the human-readable name of the output state.
func (s OutputState) String() string {
	switch s {
	case StateIdle:
		return "IDLE"
	case StateSpeaking:
		return "SPEAKING"
	case StateClosing:
		return "CLOSING"
	default:
		return "UNKNOWN"
	}
}
