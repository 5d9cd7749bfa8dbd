package audiopipeline

import "time"

const (
	defaultSilenceDuration     = 700 * time.Millisecond
	defaultMaxSegmentDuration  = 15 * time.Second
	defaultJustWokenUpCooldown = 2 * time.Second
	defaultPreRollFrames       = 10
)

// SegmentationConfig tunes the VAD segmentation policy: how long a session
// must be silent before an active speech segment is considered ended, and
// the hard ceiling on a single segment's length regardless of continued
// speech.
type SegmentationConfig struct {
	// SilenceDuration is how long ProcessFrame must report silence before
	// [audiopipeline] closes the active segment and publishes SpeechEnded.
	// Defaults to 700ms.
	SilenceDuration time.Duration

	// MaxSegmentDuration forcibly ends a segment after this much continuous
	// speech, to bound provider cost and device memory. Defaults to 15s.
	MaxSegmentDuration time.Duration

	// JustWokenUpCooldown is defaulted here but not read by the pipeline.
	// VAD is suppressed while the session's JustWokenUp flag is set; the
	// session manager sets that flag at the hello handshake and clears it
	// after its own fixed 2-second delay. Defaults to 2s.
	JustWokenUpCooldown time.Duration

	// PreRollFrames is how many frames of audio immediately preceding
	// detected speech onset are buffered and flushed to the ASR session once
	// speech is confirmed, so the leading syllable is not lost to VAD
	// detection latency. Defaults to 10.
	PreRollFrames int
}

// withDefaults fills any zero fields with their documented defaults.
func (c SegmentationConfig) withDefaults() SegmentationConfig {
	if c.SilenceDuration <= 0 {
		c.SilenceDuration = defaultSilenceDuration
	}
	if c.MaxSegmentDuration <= 0 {
		c.MaxSegmentDuration = defaultMaxSegmentDuration
	}
	if c.JustWokenUpCooldown <= 0 {
		c.JustWokenUpCooldown = defaultJustWokenUpCooldown
	}
	if c.PreRollFrames <= 0 {
		c.PreRollFrames = defaultPreRollFrames
	}
	return c
}

// preRollBuffer is a fixed-capacity ring buffer of recent PCM frames, used to
// recover the audio immediately preceding VAD-confirmed speech onset.
type preRollBuffer struct {
	frames [][]byte
	cap    int
	next   int
	filled bool
}

func newPreRollBuffer(capacity int) *preRollBuffer {
	return &preRollBuffer{frames: make([][]byte, capacity), cap: capacity}
}

// push appends a frame, overwriting the oldest once the buffer is full.
func (b *preRollBuffer) push(frame []byte) {
	if b.cap == 0 {
		return
	}
	b.frames[b.next] = frame
	b.next = (b.next + 1) % b.cap
	if b.next == 0 {
		b.filled = true
	}
}

// drain returns the buffered frames in chronological order and clears the
// buffer.
func (b *preRollBuffer) drain() [][]byte {
	if b.cap == 0 {
		return nil
	}
	var out [][]byte
	count := b.next
	start := 0
	if b.filled {
		count = b.cap
		start = b.next
	}
	for i := 0; i < count; i++ {
		idx := (start + i) % b.cap
		if b.frames[idx] != nil {
			out = append(out, b.frames[idx])
		}
	}
	b.reset()
	return out
}

func (b *preRollBuffer) reset() {
	for i := range b.frames {
		b.frames[i] = nil
	}
	b.next = 0
	b.filled = false
}
