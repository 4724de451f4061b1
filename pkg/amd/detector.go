package amd

// FrameStats counts the frames a [Detector] has classified.
type FrameStats struct {
	Voice     int
	Silence   int
	Malformed int
}

// Detector runs the full analysis pipeline for one call: frame
// classification, run tracking and rule evaluation.
type Detector struct {
	analyzer Analyzer
	tracker  *Tracker
	engine   *Engine
	stats    FrameStats
}

// NewDetector validates cfg and format and returns a Detector ready for the
// first frame. cfg is copied.
func NewDetector(cfg Config, format FrameFormat) (*Detector, error) {
	engine, err := NewEngine(cfg)
	if err != nil {
		return nil, err
	}
	analyzer, err := NewAnalyzer(format, cfg.SilenceThreshold)
	if err != nil {
		return nil, err
	}
	return &Detector{
		analyzer: analyzer,
		tracker:  NewTracker(cfg.BetweenWordSilence),
		engine:   engine,
	}, nil
}

// Format returns the frame format the detector accepts.
func (d *Detector) Format() FrameFormat { return d.analyzer.Format() }

// Config returns the detector's parameters.
func (d *Detector) Config() Config { return d.engine.Config() }

// Session returns a snapshot of the decision engine state.
func (d *Detector) Session() Session { return d.engine.Session() }

// Stats returns the frame counters.
func (d *Detector) Stats() FrameStats { return d.stats }

// Verdict returns the verdict and true once one has been reached.
func (d *Detector) Verdict() (Verdict, bool) { return d.engine.Verdict() }

// ProcessFrame analyses one frame. It returns the verdict and true as soon as
// a rule fires. A frame of the wrong size is rejected with
// [ErrMalformedFrame] before any timer is touched. Frames arriving after the
// decision are ignored.
func (d *Detector) ProcessFrame(frame []byte) (Verdict, bool, error) {
	if v, ok := d.engine.Verdict(); ok {
		return v, true, nil
	}
	class, err := d.analyzer.Classify(frame)
	if err != nil {
		d.stats.Malformed++
		return Verdict{}, false, err
	}
	if class == Voice {
		d.stats.Voice++
	} else {
		d.stats.Silence++
	}
	for _, ev := range d.tracker.Push(class, d.analyzer.format.FrameDuration) {
		if v, ok := d.engine.Observe(ev); ok {
			return v, true, nil
		}
	}
	return Verdict{}, false, nil
}

// Hangup ends the analysis with HANGUP/HANGUP unless already decided.
func (d *Detector) Hangup() Verdict { return d.engine.Hangup() }

// End ends the analysis with NOTSURE unless already decided.
func (d *Detector) End() Verdict { return d.engine.End() }
