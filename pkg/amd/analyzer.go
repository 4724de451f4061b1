package amd

import (
	"errors"
	"fmt"
	"time"
)

// ErrMalformedFrame is returned when a frame does not match the configured
// [FrameFormat]. Malformed frames are never classified.
var ErrMalformedFrame = errors.New("amd: malformed frame")

// Class is the per-frame voice activity classification.
type Class int

const (
	Silence Class = iota
	Voice
)

// String returns "silence" or "voice".
func (c Class) String() string {
	switch c {
	case Silence:
		return "silence"
	case Voice:
		return "voice"
	default:
		return "unknown"
	}
}

// maxFrameDuration bounds the frame size so that timer granularity stays
// within what telephony callers expect.
const maxFrameDuration = 100 * time.Millisecond

// FrameFormat describes the 16-bit signed little-endian mono PCM frames fed to
// a [Detector].
type FrameFormat struct {
	// SampleRate in Hz. One of 8000, 16000 or 48000.
	SampleRate int

	// FrameDuration is the duration of one frame; a whole number of
	// milliseconds in (0, 100ms].
	FrameDuration time.Duration
}

// DefaultFrameFormat returns 8 kHz 20 ms frames, the usual telephony framing.
func DefaultFrameFormat() FrameFormat {
	return FrameFormat{SampleRate: 8000, FrameDuration: 20 * time.Millisecond}
}

// Validate checks that f describes a supported frame layout.
func (f FrameFormat) Validate() error {
	var errs []error
	switch f.SampleRate {
	case 8000, 16000, 48000:
	default:
		errs = append(errs, fmt.Errorf("sample rate %d is unsupported; valid values: 8000, 16000, 48000", f.SampleRate))
	}
	if f.FrameDuration <= 0 || f.FrameDuration > maxFrameDuration || f.FrameDuration%time.Millisecond != 0 {
		errs = append(errs, fmt.Errorf("frame duration %v must be a whole number of milliseconds in (0, %v]", f.FrameDuration, maxFrameDuration))
	}
	if len(errs) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrInvalidConfig, errors.Join(errs...))
}

// SamplesPerFrame returns the number of samples in one frame.
func (f FrameFormat) SamplesPerFrame() int {
	return f.SampleRate * int(f.FrameDuration/time.Millisecond) / 1000
}

// FrameBytes returns the exact byte length of one frame.
func (f FrameFormat) FrameBytes() int {
	return f.SamplesPerFrame() * 2
}

// Amplitude returns the mean absolute sample amplitude of a little-endian
// int16 PCM buffer. A trailing odd byte is ignored; an empty buffer yields 0.
func Amplitude(pcm []byte) int {
	n := len(pcm) / 2
	if n == 0 {
		return 0
	}
	var sum int64
	for i := 0; i < n; i++ {
		s := int64(int16(uint16(pcm[2*i]) | uint16(pcm[2*i+1])<<8))
		if s < 0 {
			s = -s
		}
		sum += s
	}
	return int(sum / int64(n))
}

// Classify returns [Silence] when the mean absolute amplitude of pcm is at or
// below threshold, and [Voice] otherwise.
func Classify(pcm []byte, threshold int) Class {
	if Amplitude(pcm) <= threshold {
		return Silence
	}
	return Voice
}

// Analyzer is the frame energy classifier for a fixed [FrameFormat]. It is
// stateless and safe for concurrent use.
type Analyzer struct {
	format    FrameFormat
	threshold int
}

// NewAnalyzer returns an Analyzer for frames in format, using threshold as the
// silence amplitude ceiling.
func NewAnalyzer(format FrameFormat, threshold int) (Analyzer, error) {
	if err := format.Validate(); err != nil {
		return Analyzer{}, err
	}
	if threshold < 0 || threshold > MaxSilenceThreshold {
		return Analyzer{}, fmt.Errorf("%w: silenceThreshold %d is out of range [0, %d]", ErrInvalidConfig, threshold, MaxSilenceThreshold)
	}
	return Analyzer{format: format, threshold: threshold}, nil
}

// Format returns the frame format the analyzer accepts.
func (a Analyzer) Format() FrameFormat { return a.format }

// Classify validates the frame size and classifies it. A frame of the wrong
// length yields [ErrMalformedFrame].
func (a Analyzer) Classify(frame []byte) (Class, error) {
	if want := a.format.FrameBytes(); len(frame) != want {
		return Silence, fmt.Errorf("%w: got %d bytes, want %d", ErrMalformedFrame, len(frame), want)
	}
	return Classify(frame, a.threshold), nil
}
