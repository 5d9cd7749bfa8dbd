package audiopipeline

import (
	"fmt"

	"layeh.com/gopus"
)

// opusDecoder wraps a gopus decoder for one session's inbound audio stream.
// Each session gets its own decoder instance to keep Opus decode state
// correct across consecutive packets, the same per-stream decoder lifetime
// glyphoxa's Discord transport uses.
type opusDecoder struct {
	dec        *gopus.Decoder
	frameSize  int
	channels   int
	sampleRate int
}

// newOpusDecoder creates a decoder for the negotiated sample rate, channel
// count, and frame duration (milliseconds) a device declared in its hello
// frame.
func newOpusDecoder(sampleRate, channels, frameDurationMs int) (*opusDecoder, error) {
	dec, err := gopus.NewDecoder(sampleRate, channels)
	if err != nil {
		return nil, fmt.Errorf("audiopipeline: create opus decoder: %w", err)
	}
	return &opusDecoder{
		dec:        dec,
		frameSize:  sampleRate * frameDurationMs / 1000,
		channels:   channels,
		sampleRate: sampleRate,
	}, nil
}

// decode converts one Opus packet into little-endian int16 PCM bytes.
func (d *opusDecoder) decode(packet []byte) ([]byte, error) {
	pcm, err := d.dec.Decode(packet, d.frameSize, false)
	if err != nil {
		return nil, fmt.Errorf("audiopipeline: opus decode: %w", err)
	}
	return int16sToBytes(pcm), nil
}

func int16sToBytes(pcm []int16) []byte {
	b := make([]byte, len(pcm)*2)
	for i, s := range pcm {
		b[i*2] = byte(s)
		b[i*2+1] = byte(s >> 8)
	}
	return b
}
