// Package toolhost bridges the dialogue engine's tool-calling loop to MCP
// servers and in-process builtin tools.
//
// It connects to MCP servers over stdio or streamable-HTTP using the official
// MCP Go SDK (github.com/modelcontextprotocol/go-sdk), maintains a
// concurrent-safe in-memory tool registry, and resolves tool names spoken by a
// voice-input user even when the ASR transcript slightly mangles them.
package toolhost

// Transport identifies how a host connects to an MCP server.
type Transport string

const (
	// TransportStdio launches the server as a subprocess and speaks MCP over
	// its stdin/stdout.
	TransportStdio Transport = "stdio"

	// TransportStreamableHTTP connects to a server exposing the MCP
	// streamable-HTTP transport over a URL.
	TransportStreamableHTTP Transport = "streamable-http"
)

// IsValid reports whether t is a recognised transport.
func (t Transport) IsValid() bool {
	switch t {
	case TransportStdio, TransportStreamableHTTP:
		return true
	default:
		return false
	}
}

// ServerConfig describes an MCP server to connect to.
type ServerConfig struct {
	// Name uniquely identifies this server within the host.
	Name string

	// Transport selects stdio or streamable-HTTP.
	Transport Transport

	// Command is the shell command to launch for TransportStdio, e.g.
	// "/usr/local/bin/mcp-weather-server".
	Command string

	// URL is the endpoint address for TransportStreamableHTTP.
	URL string

	// Env holds additional environment variables for TransportStdio.
	Env map[string]string
}

// ToolResult is the outcome of a single tool invocation.
type ToolResult struct {
	// Content is the tool's textual output.
	Content string

	// IsError indicates an application-level failure reported by the tool
	// itself, as opposed to a transport or protocol error.
	IsError bool

	// DurationMs is how long the call took to execute.
	DurationMs int64

	// ResolvedName is the tool name actually invoked. It differs from the
	// name passed to ExecuteTool when fuzzy resolution substituted a
	// mistranscribed name for the closest registered match.
	ResolvedName string
}
