package amd

import (
	"context"
	"errors"
	"fmt"
	"io"
)

// ErrStreamFault wraps source failures other than stream end or hangup. A
// stream fault ends the analysis as HANGUP.
var ErrStreamFault = errors.New("amd: stream fault")

// SourceEventKind classifies the events delivered by a [Source].
type SourceEventKind int

const (
	// SourceFrame carries one PCM frame.
	SourceFrame SourceEventKind = iota

	// SourceHangup signals that the far end hung up or the call was cancelled.
	SourceHangup

	// SourceStreamEnd signals that playback finished.
	SourceStreamEnd
)

// String returns the human-readable name of the kind.
func (k SourceEventKind) String() string {
	switch k {
	case SourceFrame:
		return "frame"
	case SourceHangup:
		return "hangup"
	case SourceStreamEnd:
		return "stream-end"
	default:
		return "unknown"
	}
}

// SourceEvent is one item from a [Source].
type SourceEvent struct {
	Kind SourceEventKind

	// Frame is set for SourceFrame events.
	Frame []byte
}

// Source yields frames, hangup and stream-end signals in arrival order.
// Implementations wrap a media channel, a file or a test script.
type Source interface {
	// Next blocks until the next event is available. Returning io.EOF is
	// equivalent to a SourceStreamEnd event; any other error is a stream
	// fault.
	Next(ctx context.Context) (SourceEvent, error)
}

// SourceFunc adapts a function to [Source].
type SourceFunc func(ctx context.Context) (SourceEvent, error)

// Next calls f.
func (f SourceFunc) Next(ctx context.Context) (SourceEvent, error) { return f(ctx) }

// Run drives d from src until a verdict is reached and returns it. A verdict
// is always returned, even together with an error:
//
//   - hangup, or cancellation of ctx, yields HANGUP/HANGUP and a nil error;
//   - stream end (or io.EOF) yields NOTSURE unless a rule fired first;
//   - a source failure yields HANGUP/HANGUP and an error wrapping
//     [ErrStreamFault];
//   - a malformed frame ends the analysis as NOTSURE and returns an error
//     wrapping [ErrMalformedFrame].
func Run(ctx context.Context, d *Detector, src Source) (Verdict, error) {
	if v, ok := d.Verdict(); ok {
		return v, nil
	}
	for {
		if ctx.Err() != nil {
			return d.Hangup(), nil
		}
		ev, err := src.Next(ctx)
		if err != nil {
			switch {
			case errors.Is(err, io.EOF):
				return d.End(), nil
			case ctx.Err() != nil:
				return d.Hangup(), nil
			default:
				return d.Hangup(), fmt.Errorf("%w: %w", ErrStreamFault, err)
			}
		}

		switch ev.Kind {
		case SourceHangup:
			return d.Hangup(), nil
		case SourceStreamEnd:
			return d.End(), nil
		case SourceFrame:
			v, done, err := d.ProcessFrame(ev.Frame)
			if err != nil {
				return d.End(), err
			}
			if done {
				return v, nil
			}
		default:
			return d.Hangup(), fmt.Errorf("%w: unknown source event kind %d", ErrStreamFault, ev.Kind)
		}
	}
}
