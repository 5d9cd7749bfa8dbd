package dialogue

import (
	"context"
	"strings"

	"github.com/signalharbor/voiceengine/internal/eventbus"
	"github.com/signalharbor/voiceengine/internal/ttsorchestrator"
	"github.com/signalharbor/voiceengine/pkg/types"
)

// speak enqueues text as spoken output, if non-empty, and closes the turn
// when isLast is true. The turn's SentenceLast marker is always a distinct
// unit from any spoken content so a single-sentence turn never has to
// collapse SentenceFirst and SentenceLast onto the same unit.
func (s *Service) speak(ctx context.Context, sc *types.SessionContext, orch *ttsorchestrator.Orchestrator, turn *turnState, text string, isLast bool) {
	text = strings.TrimSpace(text)
	if text != "" {
		s.enqueueContent(ctx, sc, orch, turn, text)
	}
	if isLast {
		s.closeTurn(ctx, sc, orch, turn)
	}
}

// enqueueContent synthesizes text with the session's configured TTS voice
// and enqueues it as the next sentence of the turn in flight.
func (s *Service) enqueueContent(ctx context.Context, sc *types.SessionContext, orch *ttsorchestrator.Orchestrator, turn *turnState, text string) {
	position := types.SentenceMiddle
	if !turn.firstUnitSent {
		position = types.SentenceFirst
	}

	id := s.nextSentenceID(sc)
	s.publishStart(ctx, sc, turn, id)
	turn.firstUnitSent = true

	audioCh := s.synthesize(ctx, sc, text)

	orch.Enqueue(types.SentenceUnit{
		SessionID:   sc.SessionID,
		SentenceID:  id,
		Position:    position,
		ContentType: types.ContentText,
		Content:     text,
		Audio:       audioCh,
	})
}

// closeTurn emits the turn's SentenceLast marker, opening the turn first
// with an empty action unit if nothing was ever spoken.
func (s *Service) closeTurn(ctx context.Context, sc *types.SessionContext, orch *ttsorchestrator.Orchestrator, turn *turnState) {
	if !turn.firstUnitSent {
		openID := s.nextSentenceID(sc)
		s.publishStart(ctx, sc, turn, openID)
		turn.firstUnitSent = true
		orch.Enqueue(types.SentenceUnit{
			SessionID:   sc.SessionID,
			SentenceID:  openID,
			Position:    types.SentenceFirst,
			ContentType: types.ContentAction,
		})
	}

	closeID := s.nextSentenceID(sc)
	orch.Enqueue(types.SentenceUnit{
		SessionID:   sc.SessionID,
		SentenceID:  closeID,
		Position:    types.SentenceLast,
		ContentType: types.ContentAction,
	})
}

// nextSentenceID mints the next ordering key for sc's output stream.
func (s *Service) nextSentenceID(sc *types.SessionContext) uint64 {
	sc.CurrentSentenceID++
	return sc.CurrentSentenceID
}

// publishStart emits the turn's single TTSStart event, at the SentenceID of
// whichever unit turns out to be first — spoken content or the empty opener.
func (s *Service) publishStart(ctx context.Context, sc *types.SessionContext, turn *turnState, sentenceID uint64) {
	if turn.startPublished {
		return
	}
	turn.startPublished = true
	s.bus.Publish(ctx, eventbus.TTSStart{
		SessionEvent: eventbus.NewSessionEvent(sc.SessionID),
		SentenceID:   sentenceID,
	})
}

// synthesize streams text through the session's configured TTS provider and
// adapts its raw PCM output into the AudioFrame channel [ttsorchestrator.Orchestrator]
// expects. The returned channel is closed when synthesis completes.
func (s *Service) synthesize(ctx context.Context, sc *types.SessionContext, text string) <-chan types.AudioFrame {
	out := make(chan types.AudioFrame)

	provider, ok := s.ttsEngs[sc.Agent.TTSProvider]
	if !ok {
		close(out)
		return out
	}

	textCh := make(chan string, 1)
	textCh <- text
	close(textCh)

	voice := types.VoiceProfile{ID: sc.Agent.VoiceID, Provider: sc.Agent.TTSProvider}
	pcmCh, err := provider.SynthesizeStream(ctx, textCh, voice)
	if err != nil {
		close(out)
		return out
	}

	go func() {
		defer close(out)
		for pcm := range pcmCh {
			select {
			case out <- types.AudioFrame{Data: pcm, SampleRate: ttsSampleRate, Channels: 1}:
			case <-ctx.Done():
				return
			}
		}
	}()

	return out
}
