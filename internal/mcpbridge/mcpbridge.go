// Package mcpbridge lets the dialogue engine call tools exposed by the
// connected device itself, the inverse direction from internal/toolhost
// (which calls out to configured MCP servers). A device that declares
// features.mcp in its hello frame is treated as its own MCP server, reached
// by wrapping JSON-RPC requests in "mcp" text frames over the same
// connection and correlating responses by JSON-RPC request id.
package mcpbridge

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/signalharbor/voiceengine/internal/eventbus"
	"github.com/signalharbor/voiceengine/internal/transport"
	"github.com/signalharbor/voiceengine/internal/toolhost"
	"github.com/signalharbor/voiceengine/pkg/types"
)

// callTimeout bounds how long the bridge waits for a device to answer one
// JSON-RPC request before giving up.
const callTimeout = 8 * time.Second

// rpcRequest and rpcResponse mirror the minimal JSON-RPC 2.0 envelope; the
// device-side MCP server is expected to speak the same wire format
// internal/toolhost's client does when talking to external MCP servers.
type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      uint64 `json:"id"`
	Method  string `json:"method"`
	Params  any    `json:"params,omitempty"`
}

type rpcResponse struct {
	ID     uint64          `json:"id"`
	Result json.RawMessage `json:"result,omitempty"`
	Error  *rpcError       `json:"error,omitempty"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type mcpTool struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	InputSchema map[string]any `json:"inputSchema"`
}

// Bridge routes JSON-RPC calls to whichever connected device declared MCP
// support, one pending-request table per session.
type Bridge struct {
	transport *transport.Transport
	nextID    atomic.Uint64

	mu      sync.Mutex
	pending map[string]map[uint64]chan rpcResponse // sessionID -> requestID -> reply channel
}

// New creates a Bridge and subscribes it to inbound "mcp" frames.
func New(bus *eventbus.Bus, t *transport.Transport) *Bridge {
	b := &Bridge{
		transport: t,
		pending:   make(map[string]map[uint64]chan rpcResponse),
	}

	bus.Subscribe(eventbus.TypeTextMessageReceived, func(ctx context.Context, event eventbus.Event) error {
		ev := event.(eventbus.TextMessageReceived)

		var envelope transport.InboundEnvelope
		if err := json.Unmarshal([]byte(ev.Text), &envelope); err != nil || envelope.Type != "mcp" {
			return nil
		}

		var msg transport.MCPMessage
		if err := json.Unmarshal([]byte(ev.Text), &msg); err != nil {
			return nil
		}
		var resp rpcResponse
		if err := json.Unmarshal(msg.Payload, &resp); err != nil {
			return nil
		}

		b.deliver(ev.SessionID, resp)
		return nil
	}, false)

	bus.Subscribe(eventbus.TypeSessionDestroyed, func(ctx context.Context, event eventbus.Event) error {
		ev := event.(eventbus.SessionDestroyed)
		b.cleanup(ev.SessionID)
		return nil
	}, true)

	return b
}

func (b *Bridge) deliver(sessionID string, resp rpcResponse) {
	b.mu.Lock()
	ch, ok := b.pending[sessionID][resp.ID]
	if ok {
		delete(b.pending[sessionID], resp.ID)
	}
	b.mu.Unlock()
	if ok {
		ch <- resp
	}
}

func (b *Bridge) cleanup(sessionID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.pending, sessionID)
}

func (b *Bridge) call(ctx context.Context, sessionID, method string, params any) (json.RawMessage, error) {
	id := b.nextID.Add(1)
	ch := make(chan rpcResponse, 1)

	b.mu.Lock()
	if b.pending[sessionID] == nil {
		b.pending[sessionID] = make(map[uint64]chan rpcResponse)
	}
	b.pending[sessionID][id] = ch
	b.mu.Unlock()

	payload, err := json.Marshal(rpcRequest{JSONRPC: "2.0", ID: id, Method: method, Params: params})
	if err != nil {
		return nil, fmt.Errorf("mcpbridge: marshal request: %w", err)
	}
	if err := b.transport.Send(ctx, sessionID, transport.MCPMessage{Type: "mcp", Payload: payload}); err != nil {
		return nil, fmt.Errorf("mcpbridge: send request: %w", err)
	}

	timeoutCtx, cancel := context.WithTimeout(ctx, callTimeout)
	defer cancel()

	select {
	case resp := <-ch:
		if resp.Error != nil {
			return nil, fmt.Errorf("mcpbridge: device returned error: %s", resp.Error.Message)
		}
		return resp.Result, nil
	case <-timeoutCtx.Done():
		b.mu.Lock()
		delete(b.pending[sessionID], id)
		b.mu.Unlock()
		return nil, fmt.Errorf("mcpbridge: %s timed out waiting for device reply", method)
	}
}

// ListTools fetches the device's declared tool set via the MCP tools/list
// method and adapts it to the engine's tool definition shape.
func (b *Bridge) ListTools(ctx context.Context, sessionID string) ([]types.ToolDefinition, error) {
	raw, err := b.call(ctx, sessionID, "tools/list", nil)
	if err != nil {
		return nil, err
	}
	var result struct {
		Tools []mcpTool `json:"tools"`
	}
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, fmt.Errorf("mcpbridge: decode tools/list result: %w", err)
	}
	defs := make([]types.ToolDefinition, 0, len(result.Tools))
	for _, t := range result.Tools {
		defs = append(defs, types.ToolDefinition{
			Name:        t.Name,
			Description: t.Description,
			Parameters:  t.InputSchema,
		})
	}
	return defs, nil
}

// CallTool invokes name on the device via the MCP tools/call method,
// reducing its result to the same [toolhost.ToolResult] shape user-level
// tools produce so the dialogue engine's calling code never has to branch
// on which tool source served a call.
func (b *Bridge) CallTool(ctx context.Context, sessionID, name, argsJSON string) (*toolhost.ToolResult, error) {
	start := time.Now()

	var args map[string]any
	if argsJSON != "" {
		if err := json.Unmarshal([]byte(argsJSON), &args); err != nil {
			return nil, fmt.Errorf("mcpbridge: decode tool arguments: %w", err)
		}
	}

	raw, err := b.call(ctx, sessionID, "tools/call", map[string]any{"name": name, "arguments": args})
	if err != nil {
		return nil, err
	}

	var result struct {
		Content []struct {
			Text string `json:"text"`
		} `json:"content"`
		IsError bool `json:"isError"`
	}
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, fmt.Errorf("mcpbridge: decode tools/call result: %w", err)
	}

	var content string
	for _, c := range result.Content {
		content += c.Text
	}

	return &toolhost.ToolResult{
		Content:      content,
		IsError:      result.IsError,
		DurationMs:   time.Since(start).Milliseconds(),
		ResolvedName: name,
	}, nil
}
