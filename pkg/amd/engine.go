package amd

import "time"

// Phase is the decision engine's position in the greeting.
type Phase int

const (
	// PhaseAwaitingFirstVoice lasts until the first word starts. It is
	// re-entered when a voice run too short to be a word ends before any word
	// was completed.
	PhaseAwaitingFirstVoice Phase = iota

	// PhaseTrackingWord covers a voice run in progress.
	PhaseTrackingWord

	// PhaseTrackingInterWordSilence covers silence after at least one word.
	PhaseTrackingInterWordSilence

	// PhaseDecided is terminal.
	PhaseDecided
)

// String returns the human-readable name of the phase.
func (p Phase) String() string {
	switch p {
	case PhaseAwaitingFirstVoice:
		return "awaiting-first-voice"
	case PhaseTrackingWord:
		return "tracking-word"
	case PhaseTrackingInterWordSilence:
		return "tracking-inter-word-silence"
	case PhaseDecided:
		return "decided"
	default:
		return "unknown"
	}
}

// Session is the mutable state of one analysis.
type Session struct {
	Phase Phase

	// Elapsed is the analysis time so far. It never decreases.
	Elapsed time.Duration

	// Segment is the run in progress.
	Segment Segment

	// ClosedVoice is the summed duration of all voice runs that have ended,
	// words and noise bursts alike.
	ClosedVoice time.Duration

	// Words is the number of completed words.
	Words int

	// Verdict is set once Phase is PhaseDecided.
	Verdict Verdict
}

// CumulativeVoice returns the greeting accumulator: all closed voice runs plus
// the voice run in progress.
func (s Session) CumulativeVoice() time.Duration {
	v := s.ClosedVoice
	if s.Segment.Class == Voice {
		v += s.Segment.Duration
	}
	return v
}

// Decided reports whether a verdict has been reached.
func (s Session) Decided() bool { return s.Phase == PhaseDecided }

// rule is one terminal condition of the decision table.
type rule struct {
	status Status
	cause  Cause
	match  func(c *Config, s *Session, ev Event) bool
}

// rules is evaluated top to bottom after every event; the first match wins.
// Hangup and stream end are signals rather than audio events and are handled
// by [Engine.Hangup] and [Engine.End].
var rules = [...]rule{
	{StatusMachine, CauseTooLong, func(c *Config, s *Session, _ Event) bool {
		return s.Elapsed >= c.TotalAnalysisTime
	}},
	{StatusMachine, CauseInitialSilence, func(c *Config, s *Session, _ Event) bool {
		return s.Phase == PhaseAwaitingFirstVoice && s.Segment.Class == Silence && s.Segment.Duration >= c.InitialSilence
	}},
	{StatusMachine, CauseMaxWordLength, func(c *Config, s *Session, _ Event) bool {
		return s.Segment.Class == Voice && s.Segment.Duration >= c.MaximumWordLength
	}},
	{StatusMachine, CauseLongGreeting, func(c *Config, s *Session, _ Event) bool {
		return s.CumulativeVoice() >= c.Greeting
	}},
	{StatusMachine, CauseMaxWords, func(c *Config, s *Session, ev Event) bool {
		return completesWord(c, ev) && s.Words > c.MaximumNumberOfWords
	}},
	{StatusHuman, CauseHuman, func(c *Config, s *Session, _ Event) bool {
		return s.Phase == PhaseTrackingInterWordSilence && s.Segment.Class == Silence && s.Segment.Duration >= c.AfterGreetingSilence
	}},
}

func completesWord(c *Config, ev Event) bool {
	return ev.Kind == EventRunEnd && ev.Class == Voice && ev.Duration >= c.MinimumWordLength
}

// Engine is the AMD decision engine. It owns one [Session] and is not safe
// for concurrent use.
type Engine struct {
	cfg Config
	s   Session
}

// NewEngine validates cfg and returns an engine in its initial phase.
func NewEngine(cfg Config) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Engine{cfg: cfg}, nil
}

// Config returns the engine's parameters.
func (e *Engine) Config() Config { return e.cfg }

// Session returns a snapshot of the current state.
func (e *Engine) Session() Session { return e.s }

// Verdict returns the verdict and true once one has been reached.
func (e *Engine) Verdict() (Verdict, bool) {
	return e.s.Verdict, e.s.Decided()
}

// Observe applies one tracker event and evaluates the rule table. It returns
// the verdict and true once decided. Events after the decision are ignored.
func (e *Engine) Observe(ev Event) (Verdict, bool) {
	if e.s.Decided() {
		return e.s.Verdict, true
	}
	e.apply(ev)
	for i := range rules {
		r := &rules[i]
		if r.match(&e.cfg, &e.s, ev) {
			e.decide(r.status, r.cause)
			return e.s.Verdict, true
		}
	}
	return Verdict{}, false
}

// Hangup decides HANGUP/HANGUP unless a verdict already exists, in which case
// that verdict is returned unchanged.
func (e *Engine) Hangup() Verdict {
	if !e.s.Decided() {
		e.decide(StatusHangup, CauseHangup)
	}
	return e.s.Verdict
}

// End is called when the audio source completes. It decides NOTSURE with no
// cause unless a verdict already exists.
func (e *Engine) End() Verdict {
	if !e.s.Decided() {
		e.decide(StatusNotSure, CauseNone)
	}
	return e.s.Verdict
}

// apply updates timers, counters and the phase for one event.
func (e *Engine) apply(ev Event) {
	s := &e.s
	if ev.Elapsed > s.Elapsed {
		s.Elapsed = ev.Elapsed
	}

	switch ev.Kind {
	case EventRunStart:
		s.Segment = Segment{Class: ev.Class, Duration: ev.Duration}
		if ev.Class == Voice {
			s.Phase = PhaseTrackingWord
		}

	case EventRunEnd:
		if ev.Class == Voice {
			s.ClosedVoice += ev.Duration
			if ev.Duration >= e.cfg.MinimumWordLength {
				s.Words++
			}
			if s.Words > 0 {
				s.Phase = PhaseTrackingInterWordSilence
			} else {
				s.Phase = PhaseAwaitingFirstVoice
			}
			s.Segment = Segment{Class: Silence}
		} else {
			s.Segment = Segment{Class: Voice}
		}

	case EventTick:
		s.Segment = Segment{Class: ev.Class, Duration: ev.Duration}
	}
}

func (e *Engine) decide(status Status, cause Cause) {
	e.s.Phase = PhaseDecided
	e.s.Verdict = Verdict{
		Status:        status,
		Cause:         cause,
		At:            e.s.Elapsed,
		Words:         e.s.Words,
		VoiceDuration: e.s.CumulativeVoice(),
	}
}
