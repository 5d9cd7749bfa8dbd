// Package audiopipeline decodes inbound device audio, runs it through VAD
// segmentation, and forwards speech segments to the session's ASR session,
// republishing higher-level speech events onto the bus for the dialogue
// engine and transport-facing consumers to react to.
package audiopipeline

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/signalharbor/voiceengine/internal/eventbus"
	"github.com/signalharbor/voiceengine/internal/sessionmgr"
	"github.com/signalharbor/voiceengine/pkg/provider/stt"
	"github.com/signalharbor/voiceengine/pkg/provider/vad"
	"github.com/signalharbor/voiceengine/pkg/types"
)

// canonical post-decode PCM format; devices negotiate their Opus encoding in
// hello, but every VAD/ASR session in this engine operates on 16kHz mono.
const (
	pcmSampleRate = 16000
	pcmChannels   = 1
	vadFrameMs    = 20
)

// Providers holds the named VAD engines and STT backends a session's
// AgentConfig selects from by provider name.
type Providers struct {
	VAD map[string]vad.Engine
	STT map[string]stt.Provider
}

// sessionState is the pipeline's private per-session runtime state: decode
// and detection state that nothing outside this package needs to resolve.
type sessionState struct {
	mu sync.Mutex

	decoder *opusDecoder
	vadSess vad.SessionHandle
	sttSess stt.SessionHandle

	preRoll        *preRollBuffer
	speaking       bool
	segmentStart   time.Time
	lastVoiceFrame time.Time
}

// Pipeline is the AudioProcessingService: one instance serves every session,
// keyed by session id.
type Pipeline struct {
	bus       *eventbus.Bus
	sessions  *sessionmgr.Manager
	providers Providers
	seg       SegmentationConfig

	mu     sync.Mutex
	states map[string]*sessionState
}

// New creates a Pipeline and subscribes it to the events it reacts to.
func New(bus *eventbus.Bus, sessions *sessionmgr.Manager, providers Providers, seg SegmentationConfig) *Pipeline {
	p := &Pipeline{
		bus:       bus,
		sessions:  sessions,
		providers: providers,
		seg:       seg.withDefaults(),
		states:    make(map[string]*sessionState),
	}

	bus.Subscribe(eventbus.TypeAudioDataReceived, func(ctx context.Context, event eventbus.Event) error {
		ev := event.(eventbus.AudioDataReceived)
		return p.handleAudio(ctx, ev.SessionID, ev.Frame)
	}, false)

	bus.Subscribe(eventbus.TypeSessionDestroyed, func(ctx context.Context, event eventbus.Event) error {
		ev := event.(eventbus.SessionDestroyed)
		p.cleanup(ev.SessionID)
		return nil
	}, true)

	p.listenSubscription()

	return p
}

func (p *Pipeline) cleanup(sessionID string) {
	p.mu.Lock()
	st, ok := p.states[sessionID]
	delete(p.states, sessionID)
	p.mu.Unlock()
	if !ok {
		return
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	if st.vadSess != nil {
		_ = st.vadSess.Close()
	}
	if st.sttSess != nil {
		_ = st.sttSess.Close()
	}
}

func (p *Pipeline) stateFor(sc *types.SessionContext) (*sessionState, error) {
	p.mu.Lock()
	st, ok := p.states[sc.SessionID]
	p.mu.Unlock()
	if ok {
		return st, nil
	}

	engine, ok := p.providers.VAD[sc.Agent.VADProvider]
	if !ok {
		return nil, fmt.Errorf("audiopipeline: no VAD provider registered for %q", sc.Agent.VADProvider)
	}
	sttProvider, ok := p.providers.STT[sc.Agent.STTProvider]
	if !ok {
		return nil, fmt.Errorf("audiopipeline: no STT provider registered for %q", sc.Agent.STTProvider)
	}

	vadSess, err := engine.NewSession(vad.Config{
		SampleRate:       pcmSampleRate,
		FrameSizeMs:      vadFrameMs,
		SpeechThreshold:  0.5,
		SilenceThreshold: 0.35,
	})
	if err != nil {
		return nil, fmt.Errorf("audiopipeline: start VAD session: %w", err)
	}

	sttSess, err := sttProvider.StartStream(context.Background(), stt.StreamConfig{
		SampleRate: pcmSampleRate,
		Channels:   pcmChannels,
	})
	if err != nil {
		_ = vadSess.Close()
		return nil, fmt.Errorf("audiopipeline: start STT session: %w", err)
	}

	frameDurationMs := sc.AudioParams.FrameDuration
	if frameDurationMs <= 0 {
		frameDurationMs = 60
	}
	decoder, err := newOpusDecoder(sc.AudioParams.SampleRate, sc.AudioParams.Channels, frameDurationMs)
	if err != nil {
		_ = vadSess.Close()
		_ = sttSess.Close()
		return nil, err
	}

	st = &sessionState{
		decoder: decoder,
		vadSess: vadSess,
		sttSess: sttSess,
		preRoll: newPreRollBuffer(p.seg.PreRollFrames),
	}

	p.mu.Lock()
	p.states[sc.SessionID] = st
	p.mu.Unlock()

	go p.drainTranscripts(sc.SessionID, st)

	return st, nil
}

// handleAudio decodes one inbound frame, runs it through VAD, and either
// buffers it in the pre-roll window or forwards it to the ASR session,
// depending on the segmentation state machine.
func (p *Pipeline) handleAudio(ctx context.Context, sessionID string, frame types.AudioFrame) error {
	sc, err := p.sessions.Get(sessionID)
	if err != nil {
		return nil
	}

	st, err := p.stateFor(sc)
	if err != nil {
		slog.Warn("audiopipeline: cannot open session state", "session_id", sessionID, "err", err)
		return err
	}

	pcm, err := st.decoder.decode(frame.Data)
	if err != nil {
		slog.Debug("audiopipeline: dropping undecodable frame", "session_id", sessionID, "err", err)
		return nil
	}

	if sc.JustWokenUp {
		return nil
	}

	vadEvent, err := st.vadSess.ProcessFrame(pcm)
	if err != nil {
		return fmt.Errorf("audiopipeline: vad process frame: %w", err)
	}

	st.mu.Lock()
	defer st.mu.Unlock()

	now := time.Now()

	switch vadEvent.Type {
	case types.VADSpeechStart:
		if !st.speaking {
			st.speaking = true
			st.segmentStart = now
			sc.ClientHaveVoice = true

			if sc.ClientIsSpeaking && sc.ClientListenMode != types.ListenManual {
				p.bus.Publish(ctx, eventbus.AbortRequest{
					SessionEvent: eventbus.NewSessionEvent(sessionID),
					Reason:       types.AbortBargeIn,
				})
			}

			p.bus.Publish(ctx, eventbus.SpeechDetected{SessionEvent: eventbus.NewSessionEvent(sessionID)})

			for _, buffered := range st.preRoll.drain() {
				_ = st.sttSess.SendAudio(buffered)
			}
		}
		st.lastVoiceFrame = now
		_ = st.sttSess.SendAudio(pcm)

	case types.VADSpeechContinue:
		st.lastVoiceFrame = now
		if st.speaking {
			_ = st.sttSess.SendAudio(pcm)
			if now.Sub(st.segmentStart) >= p.seg.MaxSegmentDuration {
				p.endSegment(ctx, sc, st)
			}
		}

	case types.VADSpeechEnd, types.VADSilence:
		if st.speaking {
			_ = st.sttSess.SendAudio(pcm)
			if now.Sub(st.lastVoiceFrame) >= p.seg.SilenceDuration {
				p.endSegment(ctx, sc, st)
			}
		} else {
			st.preRoll.push(pcm)
		}
	}

	return nil
}

// endSegment closes the active speech segment, called with st.mu held.
func (p *Pipeline) endSegment(ctx context.Context, sc *types.SessionContext, st *sessionState) {
	st.speaking = false
	sc.ClientHaveVoice = false
	p.bus.Publish(ctx, eventbus.SpeechEnded{SessionEvent: eventbus.NewSessionEvent(sc.SessionID)})
}

// drainTranscripts forwards the ASR session's partial and final transcripts
// onto the bus for the rest of the window of this session's lifetime.
func (p *Pipeline) drainTranscripts(sessionID string, st *sessionState) {
	for {
		select {
		case tr, ok := <-st.sttSess.Partials():
			if !ok {
				return
			}
			p.bus.Publish(context.Background(), eventbus.TextRecognized{
				SessionEvent: eventbus.NewSessionEvent(sessionID),
				Text:         tr.Text,
				IsFinal:      false,
			})
		case tr, ok := <-st.sttSess.Finals():
			if !ok {
				return
			}
			p.bus.Publish(context.Background(), eventbus.TextRecognized{
				SessionEvent: eventbus.NewSessionEvent(sessionID),
				Text:         tr.Text,
				IsFinal:      true,
			})
		}
	}
}
