package amd

import "time"

// EventKind classifies the events emitted by a [Tracker].
type EventKind int

const (
	// EventRunStart marks the start of a new run. Duration carries the
	// run's initial length.
	EventRunStart EventKind = iota

	// EventRunEnd marks the end of a run. Duration carries its final length.
	EventRunEnd

	// EventTick is emitted once per frame after any run boundary events.
	// Class and Duration describe the run in progress.
	EventTick
)

// String returns the human-readable name of the event kind.
func (k EventKind) String() string {
	switch k {
	case EventRunStart:
		return "run-start"
	case EventRunEnd:
		return "run-end"
	case EventTick:
		return "tick"
	default:
		return "unknown"
	}
}

// Event is a segment boundary or frame tick.
type Event struct {
	Kind     EventKind
	Class    Class
	Duration time.Duration

	// Elapsed is the total analysis time including the current frame.
	Elapsed time.Duration
}

// Segment is a maximal sequence of frames that share a classification.
type Segment struct {
	Class    Class
	Duration time.Duration
}

// Tracker folds classified frames into silence and voice runs.
//
// Silence inside a voice run is held back until it reaches the word hangover
// (betweenWordSilence). If voice resumes first, the voice run continues and
// the gap is dropped; otherwise the voice run ends and a silence run starts
// that already carries the held-back silence. A voice run's duration only
// ever counts voiced frames.
type Tracker struct {
	hangover time.Duration

	elapsed time.Duration
	started bool
	run     Segment
	pending time.Duration

	buf [3]Event
}

// NewTracker returns a Tracker that ends words after hangover of silence.
func NewTracker(hangover time.Duration) *Tracker {
	return &Tracker{hangover: hangover}
}

// Elapsed returns the total duration of all frames pushed so far.
func (t *Tracker) Elapsed() time.Duration { return t.elapsed }

// Current returns the run in progress. Held-back silence is not included in a
// voice run's duration.
func (t *Tracker) Current() Segment { return t.run }

// Push records one frame of class c lasting d and returns the resulting
// events in order: an optional run end, an optional run start, then a tick.
// The returned slice is only valid until the next call to Push.
func (t *Tracker) Push(c Class, d time.Duration) []Event {
	t.elapsed += d
	n := 0

	switch {
	case !t.started:
		t.started = true
		t.run = Segment{Class: c, Duration: d}
		t.buf[n] = Event{Kind: EventRunStart, Class: c, Duration: d, Elapsed: t.elapsed}
		n++

	case t.run.Class == c:
		// A gap shorter than the hangover keeps the word open but is not
		// counted as voice.
		t.pending = 0
		t.run.Duration += d

	case t.run.Class == Voice:
		t.pending += d
		if t.pending >= t.hangover {
			t.buf[n] = Event{Kind: EventRunEnd, Class: Voice, Duration: t.run.Duration, Elapsed: t.elapsed}
			n++
			t.run = Segment{Class: Silence, Duration: t.pending}
			t.pending = 0
			t.buf[n] = Event{Kind: EventRunStart, Class: Silence, Duration: t.run.Duration, Elapsed: t.elapsed}
			n++
		}

	default:
		t.buf[n] = Event{Kind: EventRunEnd, Class: Silence, Duration: t.run.Duration, Elapsed: t.elapsed}
		n++
		t.run = Segment{Class: Voice, Duration: d}
		t.buf[n] = Event{Kind: EventRunStart, Class: Voice, Duration: d, Elapsed: t.elapsed}
		n++
	}

	t.buf[n] = Event{Kind: EventTick, Class: t.run.Class, Duration: t.run.Duration, Elapsed: t.elapsed}
	n++
	return t.buf[:n]
}
