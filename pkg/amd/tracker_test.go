package amd

import (
	"testing"
	"time"
)

const ms = time.Millisecond

// push copies the events so they survive the next Push.
func push(tr *Tracker, c Class, d time.Duration) []Event {
	evs := tr.Push(c, d)
	out := make([]Event, len(evs))
	copy(out, evs)
	return out
}

func assertEvents(t *testing.T, got []Event, want ...Event) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("got %d events %+v, want %d %+v", len(got), got, len(want), want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("event[%d] = %+v, want %+v", i, got[i], want[i])
		}
	}
}

func TestTracker_FirstFrameStartsRun(t *testing.T) {
	t.Parallel()
	tr := NewTracker(50 * ms)
	assertEvents(t, push(tr, Silence, 20*ms),
		Event{Kind: EventRunStart, Class: Silence, Duration: 20 * ms, Elapsed: 20 * ms},
		Event{Kind: EventTick, Class: Silence, Duration: 20 * ms, Elapsed: 20 * ms},
	)
}

func TestTracker_SilenceToVoiceClosesRunImmediately(t *testing.T) {
	t.Parallel()
	tr := NewTracker(50 * ms)
	push(tr, Silence, 20*ms)
	assertEvents(t, push(tr, Silence, 20*ms),
		Event{Kind: EventTick, Class: Silence, Duration: 40 * ms, Elapsed: 40 * ms},
	)
	assertEvents(t, push(tr, Voice, 20*ms),
		Event{Kind: EventRunEnd, Class: Silence, Duration: 40 * ms, Elapsed: 60 * ms},
		Event{Kind: EventRunStart, Class: Voice, Duration: 20 * ms, Elapsed: 60 * ms},
		Event{Kind: EventTick, Class: Voice, Duration: 20 * ms, Elapsed: 60 * ms},
	)
}

func TestTracker_ShortGapKeepsWordOpen(t *testing.T) {
	t.Parallel()
	tr := NewTracker(50 * ms)
	for range 3 {
		push(tr, Voice, 20*ms)
	}
	// 40ms of silence stays below the 50ms hangover.
	for range 2 {
		evs := push(tr, Silence, 20*ms)
		if len(evs) != 1 || evs[0].Kind != EventTick {
			t.Fatalf("pending silence should only tick, got %+v", evs)
		}
		if evs[0].Class != Voice || evs[0].Duration != 60*ms {
			t.Errorf("tick during pending silence = %+v, want voice 60ms", evs[0])
		}
	}
	// The word continues; the 40ms gap does not count as voice.
	assertEvents(t, push(tr, Voice, 20*ms),
		Event{Kind: EventTick, Class: Voice, Duration: 80 * ms, Elapsed: 120 * ms},
	)
}

func TestTracker_HangoverEndsWord(t *testing.T) {
	t.Parallel()
	tr := NewTracker(50 * ms)
	for range 6 {
		push(tr, Voice, 20*ms)
	}
	push(tr, Silence, 20*ms)
	push(tr, Silence, 20*ms)
	assertEvents(t, push(tr, Silence, 20*ms),
		Event{Kind: EventRunEnd, Class: Voice, Duration: 120 * ms, Elapsed: 180 * ms},
		Event{Kind: EventRunStart, Class: Silence, Duration: 60 * ms, Elapsed: 180 * ms},
		Event{Kind: EventTick, Class: Silence, Duration: 60 * ms, Elapsed: 180 * ms},
	)
	if got := tr.Current(); got != (Segment{Class: Silence, Duration: 60 * ms}) {
		t.Errorf("Current() = %+v, want silence 60ms", got)
	}
}

func TestTracker_ZeroHangoverEndsWordOnFirstSilentFrame(t *testing.T) {
	t.Parallel()
	tr := NewTracker(0)
	push(tr, Voice, 20*ms)
	assertEvents(t, push(tr, Silence, 20*ms),
		Event{Kind: EventRunEnd, Class: Voice, Duration: 20 * ms, Elapsed: 40 * ms},
		Event{Kind: EventRunStart, Class: Silence, Duration: 20 * ms, Elapsed: 40 * ms},
		Event{Kind: EventTick, Class: Silence, Duration: 20 * ms, Elapsed: 40 * ms},
	)
}

func TestTracker_ElapsedIsMonotonic(t *testing.T) {
	t.Parallel()
	tr := NewTracker(30 * ms)
	pattern := []Class{Voice, Silence, Voice, Voice, Silence, Silence, Silence, Voice}
	var last time.Duration
	for i, c := range pattern {
		for _, ev := range tr.Push(c, 10*ms) {
			if ev.Elapsed < last {
				t.Fatalf("frame %d: elapsed went backwards: %v < %v", i, ev.Elapsed, last)
			}
			last = ev.Elapsed
		}
	}
	if tr.Elapsed() != 80*ms {
		t.Errorf("Elapsed() = %v, want 80ms", tr.Elapsed())
	}
}
