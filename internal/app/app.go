// Package app wires every voice engine subsystem into a running
// application.
//
// The App struct owns the full lifecycle: New creates and connects all
// subsystems, Run executes the main processing loop, and Shutdown tears
// everything down in order. It generalizes glyphoxa's internal/app beyond
// "one Discord voice session at a time" to many concurrent device
// connections, each served by the same event bus, DI container, and
// dialogue engine.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"go.opentelemetry.io/otel"

	"github.com/signalharbor/voiceengine/internal/audiopipeline"
	"github.com/signalharbor/voiceengine/internal/config"
	"github.com/signalharbor/voiceengine/internal/container"
	"github.com/signalharbor/voiceengine/internal/dialogue"
	"github.com/signalharbor/voiceengine/internal/eventbus"
	"github.com/signalharbor/voiceengine/internal/intent"
	"github.com/signalharbor/voiceengine/internal/mcpbridge"
	"github.com/signalharbor/voiceengine/internal/observe"
	"github.com/signalharbor/voiceengine/internal/outputstate"
	"github.com/signalharbor/voiceengine/internal/router"
	"github.com/signalharbor/voiceengine/internal/sessionmgr"
	"github.com/signalharbor/voiceengine/internal/toolhandler"
	"github.com/signalharbor/voiceengine/internal/toolhost"
	"github.com/signalharbor/voiceengine/internal/transport"
	"github.com/signalharbor/voiceengine/pkg/memory"
	"github.com/signalharbor/voiceengine/pkg/provider/llm"
	"github.com/signalharbor/voiceengine/pkg/provider/stt"
	"github.com/signalharbor/voiceengine/pkg/provider/tts"
	"github.com/signalharbor/voiceengine/pkg/provider/vad"
)

// devicePath is the WebSocket endpoint voice devices connect to.
const devicePath = "/xiaozhi/v1/"

// Providers holds one provider per configured name, for every pipeline
// stage. Populated by main.go via the config registry; a nil/empty map
// means that stage has no configured provider and any AgentConfig
// requesting it will fail at first use.
type Providers struct {
	LLM    map[string]llm.Provider
	STT    map[string]stt.Provider
	TTS    map[string]tts.Provider
	VAD    map[string]vad.Engine
	Memory memory.SessionStore
}

// App owns every subsystem's lifetime and orchestrates the voice pipeline.
type App struct {
	cfg       *config.Config
	providers *Providers

	bus       *eventbus.Bus
	container *container.Container
	transport *transport.Transport
	router    *router.Router
	sessions  *sessionmgr.Manager
	audio     *audiopipeline.Pipeline
	outputs   *outputstate.Coordinator
	toolhost  *toolhost.Host
	tools     *toolhandler.Handler
	intents   *intent.Service
	dialogue  *dialogue.Service
	mcpBridge *mcpbridge.Bridge

	metrics      *observe.Metrics
	otelShutdown func(context.Context) error

	httpServer *http.Server

	closers []func() error

	stopOnce sync.Once
}

// Option is a functional option for New.
type Option func(*App)

// New creates an App by wiring all subsystems together. agentCfg resolves a
// connecting device's [types.AgentConfig] at session start; pass a
// [config.StaticAgentConfigPort] for single-agent deployments or a
// [config.HTTPAgentConfigPort] when an admin console serves per-device
// configuration.
func New(ctx context.Context, cfg *config.Config, providers *Providers, agentCfg config.AgentConfigPort, opts ...Option) (*App, error) {
	a := &App{cfg: cfg, providers: providers}
	for _, o := range opts {
		o(a)
	}

	if err := a.initObserve(ctx); err != nil {
		return nil, fmt.Errorf("app: init observability: %w", err)
	}

	a.bus = eventbus.New()
	a.container = container.New()
	a.router = router.New(a.bus, a.container)
	a.transport = transport.New(a.router)

	a.initToolhost(ctx)
	a.mcpBridge = mcpbridge.New(a.bus, a.transport)

	var sessionOpts []sessionmgr.Option
	if d := idleTimeout(cfg); d > 0 {
		sessionOpts = append(sessionOpts, sessionmgr.WithInactivityTimeout(d))
	}
	a.sessions = sessionmgr.New(a.bus, a.container, a.transport, agentCfg, sessionOpts...)
	a.sessions.SubscribeHello(a.transport)

	a.tools = toolhandler.New(a.toolhost, a.container, a.bus, a.mcpBridge)
	registerSystemTools(a.tools, a.sessions)

	a.intents = intent.New(a.defaultLLM())

	mem := dialogue.Memory{Session: providers.Memory}
	a.dialogue = dialogue.New(a.bus, a.sessions, a.container, a.tools, a.intents, providers.LLM, providers.TTS, mem)

	a.audio = audiopipeline.New(a.bus, a.sessions, audiopipeline.Providers{
		VAD: providers.VAD,
		STT: providers.STT,
	}, audiopipeline.SegmentationConfig{})

	a.outputs = outputstate.New(a.bus, a.container, a.sessions)

	a.httpServer = a.buildHTTPServer()

	return a, nil
}

func idleTimeout(cfg *config.Config) time.Duration {
	if cfg.Session.IdleTimeoutSeconds <= 0 {
		return 0
	}
	return time.Duration(cfg.Session.IdleTimeoutSeconds) * time.Second
}

// defaultLLM returns the LLM provider used as the intent classifier: the one
// named in cfg.Providers.LLM, or an arbitrary entry if the configured name
// was not actually built (e.g. registered under a fallback's own name).
func (a *App) defaultLLM() llm.Provider {
	if p, ok := a.providers.LLM[a.cfg.Providers.LLM.Name]; ok {
		return p
	}
	for _, p := range a.providers.LLM {
		return p
	}
	return nil
}

func (a *App) initObserve(ctx context.Context) error {
	shutdown, err := observe.InitProvider(ctx, observe.ProviderConfig{
		ServiceName: "voiceengine",
	})
	if err != nil {
		return err
	}
	a.otelShutdown = shutdown

	metrics, err := observe.NewMetrics(otel.GetMeterProvider())
	if err == nil {
		a.metrics = metrics
	}
	return nil
}

// initToolhost creates the MCP tool host and registers every external MCP
// server declared in cfg.MCP.Servers.
func (a *App) initToolhost(ctx context.Context) {
	a.toolhost = toolhost.New()
	a.closers = append(a.closers, a.toolhost.Close)

	for _, srv := range a.cfg.MCP.Servers {
		serverCfg := toolhost.ServerConfig{
			Name:      srv.Name,
			Transport: mcpTransport(srv.Transport),
			Command:   srv.Command,
			URL:       srv.URL,
			Env:       srv.Env,
		}
		if err := a.toolhost.RegisterServer(ctx, serverCfg); err != nil {
			slog.Error("app: register mcp server failed", "name", srv.Name, "err", err)
			continue
		}
		slog.Info("app: registered mcp server", "name", srv.Name)
	}
}

// mcpTransport adapts a configured MCP transport name to toolhost's own
// transport enum; the two packages were never unified onto one type since
// config describes transports generically ("stdio"/"http") while toolhost
// names the HTTP variant after the actual MCP wire transport it speaks
// ("streamable-http").
func mcpTransport(t config.MCPTransport) toolhost.Transport {
	if t == config.MCPTransportHTTP {
		return toolhost.TransportStreamableHTTP
	}
	return toolhost.TransportStdio
}

// buildHTTPServer wires the device WebSocket endpoint behind the
// observability middleware.
func (a *App) buildHTTPServer() *http.Server {
	mux := http.NewServeMux()
	handler := http.Handler(http.HandlerFunc(a.handleDeviceConn))
	if a.metrics != nil {
		handler = observe.Middleware(a.metrics)(handler)
	}
	mux.Handle(devicePath, handler)

	return &http.Server{
		Addr:    a.cfg.Server.ListenAddr,
		Handler: mux,
	}
}

// handleDeviceConn accepts one device's WebSocket connection for the
// lifetime of that connection, tearing the session down when it ends for
// any reason.
func (a *App) handleDeviceConn(w http.ResponseWriter, r *http.Request) {
	if !a.authorized(r) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	mqttGateway := r.Header.Get("X-MQTT-Gateway") == "true"
	sessionID := a.sessions.Accept(r.Context(), clientIP(r), mqttGateway)
	defer a.sessions.Destroy(sessionID)

	if err := a.transport.Accept(r.Context(), w, r, sessionID, mqttGateway); err != nil {
		slog.Warn("app: device connection ended with error", "session_id", sessionID, "err", err)
	}
}

func (a *App) authorized(r *http.Request) bool {
	if len(a.cfg.Server.AuthTokens) == 0 {
		return true
	}
	got := r.Header.Get("Authorization")
	for _, tok := range a.cfg.Server.AuthTokens {
		if got == "Bearer "+tok {
			return true
		}
	}
	return false
}

func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		return fwd
	}
	return r.RemoteAddr
}

// Run starts the device WebSocket listener and blocks until ctx is
// cancelled or the server fails.
func (a *App) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		slog.Info("app: listening for device connections", "addr", a.cfg.Server.ListenAddr, "path", devicePath)
		if err := a.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-errCh:
		return err
	}
}

// Shutdown tears down the HTTP listener, every active session, and every
// registered closer, in that order. It respects ctx's deadline.
func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error
	a.stopOnce.Do(func() {
		if err := a.httpServer.Shutdown(ctx); err != nil {
			slog.Warn("app: http server shutdown error", "err", err)
		}

		a.sessions.Stop()

		for i, closer := range a.closers {
			select {
			case <-ctx.Done():
				slog.Warn("app: shutdown deadline exceeded", "remaining", len(a.closers)-i)
				shutdownErr = ctx.Err()
				return
			default:
			}
			if err := closer(); err != nil {
				slog.Warn("app: closer error", "index", i, "err", err)
			}
		}

		if a.otelShutdown != nil {
			if err := a.otelShutdown(ctx); err != nil {
				slog.Warn("app: otel shutdown error", "err", err)
			}
		}
	})
	return shutdownErr
}

// Sessions returns the session manager, mainly for tests that need to
// inspect active session count.
func (a *App) Sessions() *sessionmgr.Manager { return a.sessions }
