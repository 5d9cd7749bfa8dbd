// Package sessionmgr creates and destroys the per-connection SessionContext
// and LifecycleManager pair, fetches the device's AgentConfig during the
// hello handshake, answers that handshake, and enforces the inactivity timeout —
// the same bundle of responsibilities as glyphoxa's app.SessionManager,
// generalized from "one Discord voice session at a time" to "one session per
// connected device, many concurrent".
package sessionmgr

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/signalharbor/voiceengine/internal/config"
	"github.com/signalharbor/voiceengine/internal/container"
	"github.com/signalharbor/voiceengine/internal/eventbus"
	"github.com/signalharbor/voiceengine/internal/sessionctx"
	"github.com/signalharbor/voiceengine/internal/transport"
	"github.com/signalharbor/voiceengine/internal/ttsorchestrator"
	"github.com/signalharbor/voiceengine/pkg/types"
)

const (
	defaultInactivityTimeout = 120 * time.Second
	defaultSweepInterval     = 10 * time.Second
)

// entry bundles the two objects created together at session start and torn
// down together at session end.
type entry struct {
	sessCtx   *types.SessionContext
	lifecycle *container.LifecycleManager
}

// Manager owns every active session's SessionContext and LifecycleManager,
// bridging connection accept/teardown in the transport layer to the rest of
// the engine via the DI container and the event bus.
//
// All exported methods are safe for concurrent use.
type Manager struct {
	bus       *eventbus.Bus
	container *container.Container
	transport *transport.Transport
	agentCfg  config.AgentConfigPort

	inactivityTimeout time.Duration
	sweepInterval     time.Duration

	mu       sync.Mutex
	sessions map[string]*entry

	stopSweep chan struct{}
	sweepOnce sync.Once
}

// Option configures a [Manager].
type Option func(*Manager)

// WithInactivityTimeout overrides the default 120s no-activity timeout.
func WithInactivityTimeout(d time.Duration) Option {
	return func(m *Manager) { m.inactivityTimeout = d }
}

// WithSweepInterval overrides how often the inactivity sweep runs. Default 10s.
func WithSweepInterval(d time.Duration) Option {
	return func(m *Manager) { m.sweepInterval = d }
}

// New creates a Manager wired to bus, c, t, and the agent configuration port
// used to resolve each device's [types.AgentConfig] at session start.
func New(bus *eventbus.Bus, c *container.Container, t *transport.Transport, agentCfg config.AgentConfigPort, opts ...Option) *Manager {
	m := &Manager{
		bus:               bus,
		container:         c,
		transport:         t,
		agentCfg:          agentCfg,
		inactivityTimeout: defaultInactivityTimeout,
		sweepInterval:     defaultSweepInterval,
		sessions:          make(map[string]*entry),
		stopSweep:         make(chan struct{}),
	}
	m.registerFactories()
	return m
}

// registerFactories wires the lazily-constructed session-scoped services
// every other package resolves by the canonical container keys.
func (m *Manager) registerFactories() {
	m.container.RegisterSession(container.ConversationHistoryKey, func(sessionID string) (any, error) {
		return sessionctx.New(), nil
	})

	m.container.RegisterSession(container.TTSOrchestratorKey, func(sessionID string) (any, error) {
		return ttsorchestrator.New(
			sessionID,
			func(frame types.AudioFrame) {
				sendCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				defer cancel()
				if err := m.transport.SendAudio(sendCtx, sessionID, frame.Data); err != nil {
					slog.Debug("sessionmgr: send audio frame failed", "session_id", sessionID, "err", err)
				}
			},
			func(unit types.SentenceUnit) {
				// ACTION units carry no audio; downstream SYSTEM_CTL handling
				// (internal/toolhandler) reacts to the originating tool call
				// directly, so there is nothing to do with the unit itself here.
			},
			func(synthetic bool) {
				if sc, err := m.Get(sessionID); err == nil {
					sc.ClientIsSpeaking = false
					sc.LLMFinishTask = true
				}
				m.bus.Publish(context.Background(), eventbus.TTSEnd{
					SessionEvent: eventbus.NewSessionEvent(sessionID),
					Synthetic:    synthetic,
				})
			},
		), nil
	})
}

// Accept mints a session id, seeds a bare [types.SessionContext], and
// registers its [container.LifecycleManager] before the WebSocket accept
// loop starts reading frames. The returned id is the one the caller must
// pass to [transport.Transport.Accept].
func (m *Manager) Accept(parent context.Context, clientIP string, fromMQTTGateway bool) string {
	sessionID := uuid.NewString()

	sc := &types.SessionContext{
		SessionID:         sessionID,
		ClientIP:          clientIP,
		ClientListenMode:  types.ListenAuto,
		LastActivityTime:  time.Now(),
		FromMQTTGateway:   fromMQTTGateway,
		CurrentSentenceID: 0,
	}
	lifecycle := container.NewLifecycleManager(parent, sessionID)

	m.container.UpdateSessionService(sessionID, container.SessionContextKey, sc)
	m.container.UpdateSessionService(sessionID, container.LifecycleManagerKey, lifecycle)

	m.mu.Lock()
	m.sessions[sessionID] = &entry{sessCtx: sc, lifecycle: lifecycle}
	first := len(m.sessions) == 1
	m.mu.Unlock()

	if first {
		m.sweepOnce.Do(func() { go m.sweepLoop() })
	}

	return sessionID
}

// HandleHello completes session bootstrap once the device's hello frame has
// arrived: it fetches the device's AgentConfig, fills in the negotiated
// fields on the SessionContext, publishes [eventbus.SessionStarted], and
// returns the reply payload the caller should send back over the transport.
func (m *Manager) HandleHello(ctx context.Context, sessionID string, hello transport.HelloMessage, deviceID, clientID string) (transport.HelloReply, error) {
	sc, err := m.Get(sessionID)
	if err != nil {
		return transport.HelloReply{}, err
	}

	agentCfg, err := m.agentCfg.FetchAgentConfig(ctx, deviceID)
	if err != nil {
		return transport.HelloReply{}, fmt.Errorf("sessionmgr: fetch agent config for device %q: %w", deviceID, err)
	}

	sc.DeviceID = deviceID
	sc.ClientID = clientID
	sc.AudioFormat = hello.AudioParams.Format
	sc.AudioParams = types.AudioParams{
		Format:        hello.AudioParams.Format,
		SampleRate:    hello.AudioParams.SampleRate,
		Channels:      hello.AudioParams.Channels,
		FrameDuration: hello.AudioParams.FrameDuration,
	}
	sc.Agent = agentCfg
	sc.JustWokenUp = true
	sc.LastActivityTime = time.Now()

	go func() {
		time.Sleep(2 * time.Second)
		sc.JustWokenUp = false
	}()

	m.bus.Publish(ctx, eventbus.SessionStarted{SessionEvent: eventbus.NewSessionEvent(sessionID)})

	return transport.HelloReply{
		Type:         "hello",
		AudioParams:  hello.AudioParams,
		SessionToken: sessionID,
	}, nil
}

// Get resolves the live [types.SessionContext] for sessionID.
func (m *Manager) Get(sessionID string) (*types.SessionContext, error) {
	return container.ResolveSessionT[*types.SessionContext](m.container, sessionID, container.SessionContextKey)
}

// Destroy tears a session down: stops its LifecycleManager (cancelling and
// awaiting every task it tracks), cleans up its container entries,
// unregisters its transport connection, and publishes
// [eventbus.SessionDestroyed].
func (m *Manager) Destroy(sessionID string) {
	m.mu.Lock()
	e, ok := m.sessions[sessionID]
	if ok {
		delete(m.sessions, sessionID)
	}
	m.mu.Unlock()
	if !ok {
		return
	}

	e.lifecycle.Stop()
	m.container.CleanupSession(sessionID)
	m.transport.Unregister(sessionID)

	m.bus.Publish(context.Background(), eventbus.SessionDestroyed{
		SessionEvent: eventbus.NewSessionEvent(sessionID),
	})

	slog.Info("sessionmgr: session destroyed", "session_id", sessionID)
}

// Stop halts the inactivity sweep and destroys every remaining session. Call
// during process shutdown.
func (m *Manager) Stop() {
	close(m.stopSweep)

	m.mu.Lock()
	ids := make([]string, 0, len(m.sessions))
	for id := range m.sessions {
		ids = append(ids, id)
	}
	m.mu.Unlock()

	for _, id := range ids {
		m.Destroy(id)
	}
}

// ActiveSessions returns the number of sessions currently tracked.
func (m *Manager) ActiveSessions() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// sweepLoop periodically destroys sessions whose LastActivityTime exceeds
// the configured inactivity timeout.
func (m *Manager) sweepLoop() {
	ticker := time.NewTicker(m.sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-m.stopSweep:
			return
		case <-ticker.C:
			m.sweepOnceNow()
		}
	}
}

func (m *Manager) sweepOnceNow() {
	deadline := time.Now().Add(-m.inactivityTimeout)

	m.mu.Lock()
	var stale []string
	for id, e := range m.sessions {
		if e.sessCtx.LastActivityTime.Before(deadline) {
			stale = append(stale, id)
		}
	}
	m.mu.Unlock()

	for _, id := range stale {
		slog.Info("sessionmgr: inactivity timeout, destroying session", "session_id", id)
		m.Destroy(id)
	}
}
