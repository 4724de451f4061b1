// Package mock provides test doubles for the amd package.
//
// Use [Script] to build a synthetic call: a sequence of silence and voice
// stretches followed by a hangup or stream-end signal. The resulting [Source]
// replays the script through [amd.Run] and records how many events were
// consumed.
//
// Example:
//
//	src := mock.NewScript(amd.DefaultFrameFormat()).
//	    Voice(400 * time.Millisecond).
//	    Silence(1200 * time.Millisecond).
//	    End().
//	    Source()
//	v, err := amd.Run(ctx, det, src)
package mock

import (
	"context"
	"io"
	"sync"
	"time"

	"github.com/MrWong99/amdetect/pkg/amd"
)

const (
	// SilenceAmplitude is the per-sample amplitude used for silence frames.
	SilenceAmplitude = 40

	// VoiceAmplitude is the per-sample amplitude used for voice frames.
	VoiceAmplitude = 3000
)

// Frame returns one frame in format whose samples alternate between
// +amplitude and -amplitude, so its mean absolute amplitude is exactly
// amplitude.
func Frame(format amd.FrameFormat, amplitude int16) []byte {
	n := format.SamplesPerFrame()
	b := make([]byte, n*2)
	for i := range n {
		s := amplitude
		if i%2 == 1 {
			s = -amplitude
		}
		b[2*i] = byte(s)
		b[2*i+1] = byte(uint16(s) >> 8)
	}
	return b
}

// Frames returns enough frames of the given amplitude to cover d, rounded up
// to whole frames.
func Frames(format amd.FrameFormat, amplitude int16, d time.Duration) [][]byte {
	n := int((d + format.FrameDuration - 1) / format.FrameDuration)
	frames := make([][]byte, n)
	for i := range frames {
		frames[i] = Frame(format, amplitude)
	}
	return frames
}

// Script builds a sequence of source events.
type Script struct {
	format amd.FrameFormat
	events []amd.SourceEvent
}

// NewScript starts an empty script producing frames in format.
func NewScript(format amd.FrameFormat) *Script {
	return &Script{format: format}
}

// Silence appends d of silence frames.
func (s *Script) Silence(d time.Duration) *Script {
	return s.append(SilenceAmplitude, d)
}

// Voice appends d of voice frames.
func (s *Script) Voice(d time.Duration) *Script {
	return s.append(VoiceAmplitude, d)
}

// Raw appends a single frame as-is, which may be malformed.
func (s *Script) Raw(frame []byte) *Script {
	s.events = append(s.events, amd.SourceEvent{Kind: amd.SourceFrame, Frame: frame})
	return s
}

// Hangup appends a hangup signal.
func (s *Script) Hangup() *Script {
	s.events = append(s.events, amd.SourceEvent{Kind: amd.SourceHangup})
	return s
}

// End appends a stream-end signal.
func (s *Script) End() *Script {
	s.events = append(s.events, amd.SourceEvent{Kind: amd.SourceStreamEnd})
	return s
}

// Events returns a copy of the scripted events.
func (s *Script) Events() []amd.SourceEvent {
	out := make([]amd.SourceEvent, len(s.events))
	copy(out, s.events)
	return out
}

// Source returns a [Source] replaying the script.
func (s *Script) Source() *Source {
	return &Source{Events: s.Events()}
}

func (s *Script) append(amplitude int16, d time.Duration) *Script {
	for _, f := range Frames(s.format, amplitude, d) {
		s.events = append(s.events, amd.SourceEvent{Kind: amd.SourceFrame, Frame: f})
	}
	return s
}

// Source is a mock implementation of [amd.Source] that replays Events in
// order. Once Events is exhausted it returns Err, or io.EOF when Err is nil.
type Source struct {
	mu sync.Mutex

	// Events are returned one per Next call.
	Events []amd.SourceEvent

	// Err is returned after all Events have been consumed.
	Err error

	// NextCalls is the number of times Next was called.
	NextCalls int

	pos int
}

// Next implements [amd.Source].
func (s *Source) Next(ctx context.Context) (amd.SourceEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.NextCalls++
	if err := ctx.Err(); err != nil {
		return amd.SourceEvent{}, err
	}
	if s.pos >= len(s.Events) {
		if s.Err != nil {
			return amd.SourceEvent{}, s.Err
		}
		return amd.SourceEvent{}, io.EOF
	}
	ev := s.Events[s.pos]
	s.pos++
	return ev, nil
}

// Consumed returns the number of events handed out so far.
func (s *Source) Consumed() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pos
}

// Ensure Source implements amd.Source at compile time.
var _ amd.Source = (*Source)(nil)
