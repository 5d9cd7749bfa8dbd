package ttsorchestrator

import (
	"container/heap"
	"sync"

	"github.com/signalharbor/voiceengine/pkg/audio"
	"github.com/signalharbor/voiceengine/pkg/types"
)

// Orchestrator streams one session's synthesized speech to its device in
// strict SentenceID order, regardless of the order concurrent synthesis
// completes them in. It tracks the session's [types.OutputState] and, on
// abort, drains pending sentences and cancels in-flight synthesis.
//
// All exported methods are safe for concurrent use.
type Orchestrator struct {
	sessionID string
	output    func(types.AudioFrame) // receives audio frames for playback
	onAction  func(types.SentenceUnit)
	onTTSEnd  func(synthetic bool) // called once per turn; synthetic=true when emitted by an abort

	mu           sync.Mutex
	queue        unitHeap
	nextExpected uint64 // next SentenceID eligible to flush
	turnOpen     bool   // true once a SentenceFirst unit has been seen for the current turn
	state        types.OutputState
	cancelTurn   chan struct{} // closed to interrupt the sentence currently playing

	notify chan struct{}
	done   chan struct{}
	closed bool
}

// New creates an [Orchestrator] for one session. output is invoked
// sequentially from an internal dispatch goroutine with each audio frame of a
// ContentText or ContentFile unit, in strict SentenceID order. onAction is
// invoked for ContentAction units, which carry no audio. onTTSEnd fires
// exactly once per top-level turn — with synthetic=false when the turn
// finished naturally, or synthetic=true when [Orchestrator.Abort] cut it
// short.
func New(sessionID string, output func(types.AudioFrame), onAction func(types.SentenceUnit), onTTSEnd func(synthetic bool)) *Orchestrator {
	o := &Orchestrator{
		sessionID: sessionID,
		output:    output,
		onAction:  onAction,
		onTTSEnd:  onTTSEnd,
		state:     types.StateIdle,
		notify:    make(chan struct{}, 1),
		done:      make(chan struct{}),
	}
	heap.Init(&o.queue)
	go o.dispatch()
	return o
}

// State returns the orchestrator's current output state.
func (o *Orchestrator) State() types.OutputState {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

// Enqueue admits a sentence unit produced by the dialogue engine. Units may
// arrive out of SentenceID order; the orchestrator buffers early arrivals
// until every earlier sentence in the turn has flushed.
func (o *Orchestrator) Enqueue(unit types.SentenceUnit) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.closed {
		go audio.Drain(unit.Audio)
		return
	}

	if !o.turnOpen && unit.Position == types.SentenceFirst {
		o.turnOpen = true
		o.nextExpected = unit.SentenceID
		o.state = types.StateSpeaking
		o.cancelTurn = make(chan struct{})
	}

	heap.Push(&o.queue, entry{unit: unit})

	select {
	case o.notify <- struct{}{}:
	default:
	}
}

// Abort interrupts the turn in flight for the given reason. If the
// orchestrator is not currently speaking, Abort is a no-op — handling is
// idempotent. Otherwise in-flight synthesis is cancelled, any buffered
// sentences are drained, and onTTSEnd(true) is invoked to emit the synthetic
// turn-end the device expects.
func (o *Orchestrator) Abort(reason types.AbortReason) {
	_ = reason // reserved for reason-specific behaviour (e.g. distinct client ack)

	o.mu.Lock()
	if o.state != types.StateSpeaking {
		o.mu.Unlock()
		return
	}
	o.state = types.StateClosing
	if o.cancelTurn != nil {
		close(o.cancelTurn)
		o.cancelTurn = nil
	}
	for o.queue.Len() > 0 {
		e := heap.Pop(&o.queue).(entry)
		go audio.Drain(e.unit.Audio)
	}
	o.turnOpen = false
	o.state = types.StateIdle
	o.mu.Unlock()

	if o.onTTSEnd != nil {
		o.onTTSEnd(true)
	}
}

// Cleanup drains any pending sentences and cancels in-flight synthesis,
// releasing all resources. After Cleanup returns the Orchestrator must not be
// used again. Cleanup is idempotent.
func (o *Orchestrator) Cleanup() error {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return nil
	}
	o.closed = true

	if o.cancelTurn != nil {
		close(o.cancelTurn)
		o.cancelTurn = nil
	}
	for o.queue.Len() > 0 {
		e := heap.Pop(&o.queue).(entry)
		go audio.Drain(e.unit.Audio)
	}
	o.state = types.StateIdle
	o.mu.Unlock()

	close(o.done)
	return nil
}

// dispatch is the background goroutine that flushes sentence units in strict
// SentenceID order as they become ready.
func (o *Orchestrator) dispatch() {
	for {
		select {
		case <-o.done:
			return
		case <-o.notify:
		}

		for {
			unit, cancel, ok := o.dequeueReady()
			if !ok {
				break
			}

			switch unit.ContentType {
			case types.ContentAction:
				if o.onAction != nil {
					o.onAction(unit)
				}
			default: // ContentText and ContentFile both stream audio frames.
				o.stream(unit, cancel)
			}

			last := unit.Position == types.SentenceLast
			o.mu.Lock()
			o.nextExpected++
			if last {
				o.turnOpen = false
				o.state = types.StateIdle
			}
			o.mu.Unlock()

			if last && o.onTTSEnd != nil {
				o.onTTSEnd(false)
			}
		}
	}
}

// dequeueReady pops the next unit from the queue only if its SentenceID
// matches nextExpected — the ready-barrier that enforces strict ordering
// despite out-of-order arrival.
func (o *Orchestrator) dequeueReady() (unit types.SentenceUnit, cancel chan struct{}, ok bool) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.queue.Len() == 0 || o.queue[0].unit.SentenceID != o.nextExpected {
		return types.SentenceUnit{}, nil, false
	}
	e := heap.Pop(&o.queue).(entry)
	return e.unit, o.cancelTurn, true
}

// stream forwards a unit's audio frames to the output callback until the
// unit's Audio channel closes or cancel fires.
func (o *Orchestrator) stream(unit types.SentenceUnit, cancel chan struct{}) {
	if unit.Audio == nil {
		return
	}
	for {
		select {
		case <-o.done:
			go audio.Drain(unit.Audio)
			return
		case <-cancel:
			go audio.Drain(unit.Audio)
			return
		case frame, ok := <-unit.Audio:
			if !ok {
				return
			}
			o.output(frame)
		}
	}
}
