package audio

import (
	"fmt"

	"layeh.com/gopus"
)

// opusMaxFrameMs is the longest duration one Opus packet can carry.
const opusMaxFrameMs = 120

// opusDecoder wraps a gopus Opus decoder for a single call stream. Opus is
// stateful, so each stream gets its own decoder.
type opusDecoder struct {
	dec       *gopus.Decoder
	frameSize int
}

// newOpusDecoder creates a decoder that outputs PCM at f. Opus decodes
// natively to 8, 12, 16, 24 or 48 kHz with one or two channels.
func newOpusDecoder(f Format) (*opusDecoder, error) {
	channels := max(f.Channels, 1)
	dec, err := gopus.NewDecoder(f.SampleRate, channels)
	if err != nil {
		return nil, fmt.Errorf("audio: create opus decoder (%s): %w", formatString(f.SampleRate, channels), err)
	}
	return &opusDecoder{dec: dec, frameSize: f.SampleRate * opusMaxFrameMs / 1000}, nil
}

// Decode decodes one Opus packet into interleaved PCM int16 samples and
// returns them as little-endian bytes.
func (d *opusDecoder) Decode(packet []byte) ([]byte, error) {
	pcm, err := d.dec.Decode(packet, d.frameSize, false)
	if err != nil {
		return nil, fmt.Errorf("audio: opus decode: %w", err)
	}
	return int16sToBytes(pcm), nil
}

// int16sToBytes converts a slice of int16 PCM samples to little-endian bytes.
func int16sToBytes(pcm []int16) []byte {
	b := make([]byte, len(pcm)*2)
	for i, s := range pcm {
		b[i*2] = byte(s)
		b[i*2+1] = byte(s >> 8)
	}
	return b
}
