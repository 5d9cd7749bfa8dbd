// Package config provides the configuration schema, loader, and provider
// registry for the voice engine.
package config

import "log/slog"

// Config is the root configuration structure for the voice engine.
// It is typically loaded from a YAML file using [Load] or [LoadFromReader].
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Providers ProvidersConfig `yaml:"providers"`
	Session   SessionConfig   `yaml:"session"`
	Memory    MemoryConfig    `yaml:"memory"`
	MCP       MCPConfig       `yaml:"mcp"`
}

// ServerConfig holds network and logging settings for the voice engine's
// WebSocket listener.
type ServerConfig struct {
	// ListenAddr is the TCP address the server listens on (e.g., ":8080").
	ListenAddr string `yaml:"listen_addr"`

	// LogLevel controls verbosity. Valid values: "debug", "info", "warn", "error".
	LogLevel LogLevel `yaml:"log_level"`

	// AuthTokens lists the bearer tokens accepted from connecting devices on
	// the Authorization header during the WebSocket handshake. An empty list
	// disables authentication (suitable only for local development).
	AuthTokens []string `yaml:"auth_tokens"`
}

// LogLevel selects the minimum severity logged by the server.
type LogLevel string

const (
	LogLevelDebug LogLevel = "debug"
	LogLevelInfo  LogLevel = "info"
	LogLevelWarn  LogLevel = "warn"
	LogLevelError LogLevel = "error"
)

// IsValid reports whether l is one of the recognised log levels.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogLevelDebug, LogLevelInfo, LogLevelWarn, LogLevelError:
		return true
	default:
		return false
	}
}

// Slog returns the [slog.Level] equivalent to l, defaulting to Info for an
// empty or unrecognised value.
func (l LogLevel) Slog() slog.Level {
	switch l {
	case LogLevelDebug:
		return slog.LevelDebug
	case LogLevelWarn:
		return slog.LevelWarn
	case LogLevelError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// ProvidersConfig declares which provider implementation to use for each
// pipeline stage. Each field selects a named provider registered in the
// [Registry]. Unlike a multi-tenant configuration, these apply process-wide:
// every device session is served by the same provider set, chosen once at
// startup (or swapped wholesale via [Watcher] hot-reload).
type ProvidersConfig struct {
	LLM ProviderEntry `yaml:"llm"`
	STT ProviderEntry `yaml:"stt"`
	TTS ProviderEntry `yaml:"tts"`
	VAD ProviderEntry `yaml:"vad"`
}

// ProviderEntry is the common configuration block shared by all provider types.
// The Name field is used to look up the constructor in the [Registry].
type ProviderEntry struct {
	// Name selects the registered provider implementation (e.g., "openai", "deepgram").
	Name string `yaml:"name"`

	// APIKey is the authentication key for the provider's API.
	APIKey string `yaml:"api_key"`

	// BaseURL overrides the provider's default API endpoint.
	// Leave empty to use the provider's built-in default.
	BaseURL string `yaml:"base_url"`

	// Model selects a specific model within the provider (e.g., "gpt-4o", "nova-2").
	Model string `yaml:"model"`

	// Fallbacks lists additional provider entries tried in order when the
	// primary's circuit breaker is open. See internal/resilience.
	Fallbacks []ProviderEntry `yaml:"fallbacks"`

	// Options holds provider-specific configuration values not covered by the
	// standard fields above. Values may be strings, numbers, booleans, or nested maps.
	Options map[string]any `yaml:"options"`
}

// SessionConfig controls per-session dialogue and voice defaults applied to
// every connecting device unless overridden by its hello frame.
type SessionConfig struct {
	// Voice configures the default TTS voice profile.
	Voice VoiceConfig `yaml:"voice"`

	// SystemPrompt is the default system prompt injected into every session's
	// dialogue history.
	SystemPrompt string `yaml:"system_prompt"`

	// MaxToolRecursion bounds how many sequential tool-call round trips the
	// dialogue engine will make for a single user turn before forcing a final
	// answer.
	MaxToolRecursion int `yaml:"max_tool_recursion"`

	// HistoryTokenBudget is an approximate token budget for a session's
	// retained conversation history. It is loaded and defaulted here, but no
	// engine component reads it; session history is not trimmed by it.
	HistoryTokenBudget int `yaml:"history_token_budget"`

	// IdleTimeoutSeconds closes a session's lifecycle resources if no audio
	// or control frame arrives for this long. Zero or a negative value leaves
	// the session manager's own default (120 seconds) in effect.
	IdleTimeoutSeconds int `yaml:"idle_timeout_seconds"`
}

// VoiceConfig specifies the default TTS voice parameters for a session.
type VoiceConfig struct {
	// Provider is the TTS provider name (e.g., "elevenlabs", "google").
	Provider string `yaml:"provider"`

	// VoiceID is the provider-specific voice identifier.
	VoiceID string `yaml:"voice_id"`

	// SpeedFactor adjusts speaking rate in the range [0.5, 2.0]. 1.0 means default.
	SpeedFactor float64 `yaml:"speed_factor"`
}

// MemoryConfig holds settings for the optional long-term conversation memory
// port. No concrete backend ships with this engine; Name selects a backend
// registered externally via [Registry.RegisterMemory].
type MemoryConfig struct {
	// Name selects the registered memory store implementation. Empty disables
	// long-term memory; sessions still retain their in-memory turn history.
	Name string `yaml:"name"`

	// DSN is the backend-specific connection string, opaque to this package.
	DSN string `yaml:"dsn"`
}

// MCPConfig holds the list of external Model Context Protocol servers whose
// tools are bridged into every session's tool-call surface, alongside
// whatever tools a connecting device advertises in its own hello frame.
type MCPConfig struct {
	Servers []MCPServerConfig `yaml:"servers"`
}

// MCPServerConfig describes how to connect to a single MCP tool server.
type MCPServerConfig struct {
	// Name is a unique human-readable identifier for this server (used in logs).
	Name string `yaml:"name"`

	// Transport specifies the connection mechanism.
	// Valid values: "stdio", "http".
	Transport MCPTransport `yaml:"transport"`

	// Command is the executable (with optional arguments) launched when
	// Transport is "stdio". Ignored for the http transport.
	Command string `yaml:"command"`

	// URL is the endpoint address used when Transport is "http".
	// Ignored for stdio transport.
	URL string `yaml:"url"`

	// Env holds additional environment variables injected into the subprocess
	// when Transport is "stdio". May be nil.
	Env map[string]string `yaml:"env"`
}

// MCPTransport selects how the engine connects to an external MCP server.
type MCPTransport string

const (
	MCPTransportStdio MCPTransport = "stdio"
	MCPTransportHTTP  MCPTransport = "http"
)

// IsValid reports whether t is a recognised transport.
func (t MCPTransport) IsValid() bool {
	return t == MCPTransportStdio || t == MCPTransportHTTP
}
