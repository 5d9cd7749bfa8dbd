// Package ttsorchestrator streams a turn's synthesized speech to a device in
// strict sentence order.
//
// The dialogue engine synthesizes sentences of a single reply concurrently —
// sentence 3 may finish encoding before sentence 1 — but a device must hear
// them in order. The orchestrator buffers early arrivals and only flushes a
// sentence once every sentence ahead of it in the turn has already been
// flushed.
package ttsorchestrator

import "github.com/signalharbor/voiceengine/pkg/types"

// entry wraps a [types.SentenceUnit] for the ready-barrier heap.
type entry struct {
	unit types.SentenceUnit
}

// unitHeap implements [container/heap.Interface] as a min-heap ordered by
// ascending SentenceID. Unlike a priority mixer, there is no preemption here:
// the heap exists purely to let units arrive out of order and still be
// flushed in the order the turn produced them.
type unitHeap []entry

func (h unitHeap) Len() int { return len(h) }

// Less reports that the unit with the lower SentenceID should be popped
// first.
func (h unitHeap) Less(i, j int) bool { return h[i].unit.SentenceID < h[j].unit.SentenceID }

func (h unitHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

// Push appends x to the heap. Called by [container/heap.Push]; callers must
// not invoke this directly.
func (h *unitHeap) Push(x any) {
	*h = append(*h, x.(entry))
}

// Pop removes and returns the last element. Called by [container/heap.Pop];
// callers must not invoke this directly.
func (h *unitHeap) Pop() any {
	old := *h
	n := len(old)
	e := old[n-1]
	*h = old[:n-1]
	return e
}
