package toolhost

import (
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/antzucaro/matchr"
	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/signalharbor/voiceengine/internal/observe"
	"github.com/signalharbor/voiceengine/pkg/types"
)

// defaultWindowSize is the default capacity of each tool's rolling window.
const defaultWindowSize = 100

// defaultFuzzyThreshold is the minimum Jaro-Winkler similarity at which a
// mistranscribed tool name is accepted as a match for a registered tool.
const defaultFuzzyThreshold = 0.85

// toolEntry holds all metadata for a single registered tool.
type toolEntry struct {
	def          types.ToolDefinition
	serverName   string
	measurements *rollingWindow

	// builtinFn is non-nil for in-process tools registered via RegisterBuiltin.
	builtinFn func(ctx context.Context, args string) (string, error)
}

// serverConn holds a live connection to an external MCP server.
type serverConn struct {
	session *mcpsdk.ClientSession
}

// BuiltinTool is an in-process tool, callable without an MCP round trip.
type BuiltinTool struct {
	Definition types.ToolDefinition
	Handler    func(ctx context.Context, args string) (string, error)
}

// builtinServerName is the synthetic server name assigned to builtin tools.
const builtinServerName = "__builtin__"

// Host bridges the dialogue engine's tool-calling loop to MCP servers and
// builtin tools. It manages connections to one or more MCP servers (external
// via stdio / streamable-HTTP, or internal Go functions) and resolves tool
// names a voice user asked for even when the ASR transcript mangled them.
//
// The zero value is NOT usable; create instances with [New].
type Host struct {
	mu      sync.RWMutex
	tools   map[string]toolEntry  // key: tool name
	servers map[string]serverConn // key: server name

	// client is reused across all server connections. The official SDK allows
	// a single Client to manage multiple sessions concurrently.
	client *mcpsdk.Client

	metrics        *observe.Metrics
	fuzzyThreshold float64
}

// Option configures a Host at construction time.
type Option func(*Host)

// WithMetrics wires tool-call counters and execution-duration histograms into
// m. Without this option the host records no metrics.
func WithMetrics(m *observe.Metrics) Option {
	return func(h *Host) { h.metrics = m }
}

// WithFuzzyThreshold overrides the minimum Jaro-Winkler similarity score
// required to accept a fuzzy tool-name match. Default 0.85.
func WithFuzzyThreshold(threshold float64) Option {
	return func(h *Host) { h.fuzzyThreshold = threshold }
}

// New creates and returns a ready-to-use Host.
func New(opts ...Option) *Host {
	client := mcpsdk.NewClient(
		&mcpsdk.Implementation{Name: "voiceengine-toolhost", Version: "1.0.0"},
		nil,
	)
	h := &Host{
		tools:          make(map[string]toolEntry),
		servers:        make(map[string]serverConn),
		client:         client,
		fuzzyThreshold: defaultFuzzyThreshold,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// RegisterServer connects to the MCP server described by cfg and imports its
// tool catalogue into the host. If a server with the same Name is already
// registered, the old connection is closed and replaced.
//
// For [TransportStdio] transport: cfg.Command is split on spaces into
// executable + args; cfg.Env is passed as additional environment variables.
//
// For [TransportStreamableHTTP] transport: cfg.URL is the endpoint address.
func (h *Host) RegisterServer(ctx context.Context, cfg ServerConfig) error {
	if cfg.Name == "" {
		return fmt.Errorf("toolhost: server config must have a non-empty name")
	}
	if !cfg.Transport.IsValid() {
		return fmt.Errorf("toolhost: unknown transport %q for server %q", cfg.Transport, cfg.Name)
	}

	var transport mcpsdk.Transport

	switch cfg.Transport {
	case TransportStdio:
		executable, args := splitCommand(cfg.Command)
		if executable == "" {
			return fmt.Errorf("toolhost: stdio server %q requires a non-empty Command", cfg.Name)
		}
		cmd := exec.CommandContext(ctx, executable, args...)
		for k, v := range cfg.Env {
			cmd.Env = append(cmd.Env, k+"="+v)
		}
		transport = &mcpsdk.CommandTransport{Command: cmd}

	case TransportStreamableHTTP:
		if cfg.URL == "" {
			return fmt.Errorf("toolhost: streamable-http server %q requires a non-empty URL", cfg.Name)
		}
		transport = &mcpsdk.StreamableClientTransport{Endpoint: cfg.URL}
	}

	session, err := h.client.Connect(ctx, transport, nil)
	if err != nil {
		return fmt.Errorf("toolhost: failed to connect to server %q: %w", cfg.Name, err)
	}

	var discoveredTools []mcpsdk.Tool
	for tool, err := range session.Tools(ctx, nil) {
		if err != nil {
			_ = session.Close()
			return fmt.Errorf("toolhost: failed to list tools for server %q: %w", cfg.Name, err)
		}
		discoveredTools = append(discoveredTools, *tool)
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if old, ok := h.servers[cfg.Name]; ok {
		_ = old.session.Close()
		for name, t := range h.tools {
			if t.serverName == cfg.Name {
				delete(h.tools, name)
			}
		}
	}

	h.servers[cfg.Name] = serverConn{session: session}

	for _, mcpTool := range discoveredTools {
		h.tools[mcpTool.Name] = toolEntry{
			def: types.ToolDefinition{
				Name:        mcpTool.Name,
				Description: mcpTool.Description,
				Parameters:  schemaToMap(mcpTool.InputSchema),
			},
			serverName:   cfg.Name,
			measurements: newRollingWindow(defaultWindowSize),
		}
	}

	return nil
}

// RegisterBuiltin adds an in-process tool to the registry. It returns an
// error if tool.Definition.Name is empty or tool.Handler is nil.
func (h *Host) RegisterBuiltin(tool BuiltinTool) error {
	if tool.Definition.Name == "" {
		return fmt.Errorf("toolhost: builtin tool must have a non-empty name")
	}
	if tool.Handler == nil {
		return fmt.Errorf("toolhost: builtin tool %q requires a non-nil handler", tool.Definition.Name)
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	h.tools[tool.Definition.Name] = toolEntry{
		def:          tool.Definition,
		serverName:   builtinServerName,
		measurements: newRollingWindow(defaultWindowSize),
		builtinFn:    tool.Handler,
	}
	return nil
}

// schemaToMap converts any schema value to a map[string]any.
func schemaToMap(schema any) map[string]any {
	if schema == nil {
		return map[string]any{"type": "object"}
	}
	if m, ok := schema.(map[string]any); ok {
		return m
	}
	data, err := json.Marshal(schema)
	if err != nil {
		return map[string]any{"type": "object"}
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return map[string]any{"type": "object"}
	}
	return m
}

// AvailableTools returns all currently registered tool definitions.
func (h *Host) AvailableTools() []types.ToolDefinition {
	h.mu.RLock()
	defer h.mu.RUnlock()

	defs := make([]types.ToolDefinition, 0, len(h.tools))
	for _, e := range h.tools {
		defs = append(defs, e.def)
	}
	return defs
}

// resolveName finds the registered tool matching name. An exact match is
// tried first. Failing that, it falls back to Jaro-Winkler fuzzy matching
// against every registered name, accepting the closest match whose score
// meets the host's fuzzy threshold. This recovers tool calls where the LLM
// reproduced a tool name from a user's voice request that the ASR stage
// slightly mangled (e.g. "set_tymer" for "set_timer").
func (h *Host) resolveName(name string) (string, bool) {
	if _, ok := h.tools[name]; ok {
		return name, true
	}

	best := ""
	bestScore := 0.0
	for candidate := range h.tools {
		score := matchr.JaroWinkler(name, candidate, false)
		if score > bestScore {
			bestScore = score
			best = candidate
		}
	}
	if best == "" || bestScore < h.fuzzyThreshold {
		return "", false
	}
	return best, true
}

// ExecuteTool calls the tool named name with JSON-encoded args and returns
// the result. If name does not exactly match a registered tool, the closest
// fuzzy match is used instead (see [Host.resolveName]).
//
// args must be a valid JSON object string. An empty object ("{}") is valid
// for parameter-less tools.
//
// A non-nil *ToolResult is returned on success even when [ToolResult.IsError]
// is true (application-level error). A Go error is returned only when no
// matching tool can be found, or on transport/protocol failure.
func (h *Host) ExecuteTool(ctx context.Context, name string, args string) (*ToolResult, error) {
	h.mu.RLock()
	resolved, ok := h.resolveName(name)
	var entry toolEntry
	if ok {
		entry = h.tools[resolved]
	}
	h.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("toolhost: tool %q not found", name)
	}

	start := time.Now()

	var result *ToolResult
	var execErr error

	if entry.builtinFn != nil {
		result, execErr = h.executeBuiltin(ctx, entry, args)
	} else {
		result, execErr = h.executeMCPTool(ctx, entry, args)
	}

	durationMs := time.Since(start).Milliseconds()
	isError := execErr != nil || (result != nil && result.IsError)

	h.recordMeasurement(resolved, durationMs, isError)
	h.recordMetrics(ctx, resolved, start, isError)

	if execErr != nil {
		return nil, execErr
	}
	result.DurationMs = durationMs
	result.ResolvedName = resolved
	return result, nil
}

// executeBuiltin calls the in-process handler for a builtin tool.
func (h *Host) executeBuiltin(ctx context.Context, entry toolEntry, args string) (*ToolResult, error) {
	output, err := entry.builtinFn(ctx, args)
	if err != nil {
		return &ToolResult{Content: err.Error(), IsError: true}, nil
	}
	return &ToolResult{Content: output}, nil
}

// executeMCPTool routes the call to the appropriate server session.
func (h *Host) executeMCPTool(ctx context.Context, entry toolEntry, args string) (*ToolResult, error) {
	h.mu.RLock()
	conn, ok := h.servers[entry.serverName]
	h.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("toolhost: server %q not found for tool %q", entry.serverName, entry.def.Name)
	}

	var argsMap map[string]any
	if args != "" && args != "{}" {
		if err := json.Unmarshal([]byte(args), &argsMap); err != nil {
			return nil, fmt.Errorf("toolhost: invalid args JSON for tool %q: %w", entry.def.Name, err)
		}
	}

	callResult, err := conn.session.CallTool(ctx, &mcpsdk.CallToolParams{
		Name:      entry.def.Name,
		Arguments: argsMap,
	})
	if err != nil {
		return nil, fmt.Errorf("toolhost: call to tool %q failed: %w", entry.def.Name, err)
	}

	var sb strings.Builder
	for _, c := range callResult.Content {
		if tc, ok := c.(*mcpsdk.TextContent); ok {
			sb.WriteString(tc.Text)
		}
	}

	return &ToolResult{
		Content: sb.String(),
		IsError: callResult.IsError,
	}, nil
}

// recordMeasurement updates the tool's rolling latency window.
func (h *Host) recordMeasurement(name string, durationMs int64, isError bool) {
	h.mu.RLock()
	entry, ok := h.tools[name]
	h.mu.RUnlock()
	if !ok {
		return
	}
	entry.measurements.Record(durationMs, isError)
}

// recordMetrics emits tool-call counters and execution-duration histograms
// when a [observe.Metrics] instance is configured.
func (h *Host) recordMetrics(ctx context.Context, tool string, start time.Time, isError bool) {
	if h.metrics == nil {
		return
	}
	status := "ok"
	if isError {
		status = "error"
	}
	h.metrics.RecordToolCall(ctx, tool, status)
	h.metrics.ToolExecutionDuration.Record(ctx, time.Since(start).Seconds(),
		metric.WithAttributes(attribute.String("tool", tool)),
	)
}

// Close shuts down all server connections and releases associated resources.
// After Close returns the Host must not be used again.
func (h *Host) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	var firstErr error
	for name, conn := range h.servers {
		if err := conn.session.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("toolhost: error closing server %q: %w", name, err)
		}
		delete(h.servers, name)
	}

	h.tools = make(map[string]toolEntry)

	return firstErr
}

// splitCommand splits a command string into executable and arguments.
// e.g. "/bin/foo --bar baz" -> ("/bin/foo", ["--bar", "baz"]).
func splitCommand(command string) (executable string, args []string) {
	parts := strings.Fields(command)
	if len(parts) == 0 {
		return "", nil
	}
	return parts[0], parts[1:]
}
