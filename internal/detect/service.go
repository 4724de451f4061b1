// Package detect runs answering machine detection for individual calls.
//
// A [Service] resolves each call's parameters against the current server
// configuration, drives an [amd.Detector] from an [amd.Source], records
// metrics and tracing, and persists the verdict.
package detect

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/MrWong99/amdetect/internal/config"
	"github.com/MrWong99/amdetect/internal/observe"
	"github.com/MrWong99/amdetect/internal/verdict"
	"github.com/MrWong99/amdetect/pkg/amd"
)

// ErrCallActive is returned by [Service.Prepare] when an analysis with the
// same call ID is already running.
var ErrCallActive = errors.New("detect: call already being analysed")

// Call identifies one call to analyse.
type Call struct {
	// ID is the unique call identifier. Required.
	ID string

	// FileName is the greeting played to the callee, if any. It is recorded
	// with the verdict but not interpreted.
	FileName string

	// Overrides are layered over the server-wide AMD defaults.
	Overrides config.Params

	// SampleRate overrides the configured analysis sample rate when non-zero.
	SampleRate int
}

// CallInfo describes an analysis in progress.
type CallInfo struct {
	ID        string    `json:"call_id"`
	FileName  string    `json:"file_name,omitempty"`
	StartedAt time.Time `json:"started_at"`
}

// Service runs answering machine detection for individual calls. Each call
// resolves its parameters against the configuration current at the time it
// is prepared; later reloads do not affect it.
//
// All exported methods are safe for concurrent use.
type Service struct {
	current func() *config.Config
	store   verdict.Store
	metrics *observe.Metrics

	mu     sync.Mutex
	active map[string]CallInfo
}

// NewService creates a Service. current returns the latest valid
// configuration and is called once per prepared call.
func NewService(current func() *config.Config, store verdict.Store, m *observe.Metrics) *Service {
	if m == nil {
		m = observe.DefaultMetrics()
	}
	return &Service{
		current: current,
		store:   store,
		metrics: m,
		active:  make(map[string]CallInfo),
	}
}

// Prepare validates call against the current configuration and reserves its
// call ID. Errors from invalid parameters wrap [amd.ErrInvalidConfig].
//
// The returned [Analysis] must either be run or closed.
func (s *Service) Prepare(call Call) (*Analysis, error) {
	if call.ID == "" {
		return nil, errors.New("detect: call id is required")
	}
	cfg := s.current()
	params, err := cfg.ResolveCall(call.Overrides)
	if err != nil {
		return nil, fmt.Errorf("detect: call %s: %w", call.ID, err)
	}
	format, err := cfg.FrameFormat()
	if err != nil {
		return nil, fmt.Errorf("detect: call %s: %w", call.ID, err)
	}
	if call.SampleRate != 0 {
		format.SampleRate = call.SampleRate
	}
	det, err := amd.NewDetector(params, format)
	if err != nil {
		return nil, fmt.Errorf("detect: call %s: %w", call.ID, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.active[call.ID]; ok {
		return nil, fmt.Errorf("%w: %s", ErrCallActive, call.ID)
	}
	s.active[call.ID] = CallInfo{ID: call.ID, FileName: call.FileName, StartedAt: time.Now().UTC()}
	return &Analysis{svc: s, call: call, det: det}, nil
}

// Analyze prepares call and runs it against src.
func (s *Service) Analyze(ctx context.Context, call Call, src amd.Source) (amd.Verdict, error) {
	a, err := s.Prepare(call)
	if err != nil {
		return amd.Verdict{}, err
	}
	return a.Run(ctx, src)
}

// Active returns the calls currently being analysed, oldest first.
func (s *Service) Active() []CallInfo {
	s.mu.Lock()
	out := make([]CallInfo, 0, len(s.active))
	for _, c := range s.active {
		out = append(out, c)
	}
	s.mu.Unlock()
	slices.SortFunc(out, func(a, b CallInfo) int {
		return cmp.Or(a.StartedAt.Compare(b.StartedAt), cmp.Compare(a.ID, b.ID))
	})
	return out
}

func (s *Service) release(id string) {
	s.mu.Lock()
	delete(s.active, id)
	s.mu.Unlock()
}

// Analysis is one prepared call. It is not safe for concurrent use.
type Analysis struct {
	svc  *Service
	call Call
	det  *amd.Detector

	ran    atomic.Bool
	closed atomic.Bool
}

// Format returns the frame format the analysis expects from its source.
func (a *Analysis) Format() amd.FrameFormat { return a.det.Format() }

// Config returns the resolved parameters.
func (a *Analysis) Config() amd.Config { return a.det.Config() }

// Call returns the call being analysed.
func (a *Analysis) Call() Call { return a.call }

// Close releases the call ID without running the analysis. It is a no-op
// after [Analysis.Run].
func (a *Analysis) Close() {
	if a.closed.CompareAndSwap(false, true) {
		a.svc.release(a.call.ID)
	}
}

// Run drives the analysis from src until a verdict is reached, then records
// metrics and persists the verdict. A verdict is always returned; see
// [amd.Run] for the error semantics. Persistence failures are logged and
// never change the verdict.
func (a *Analysis) Run(ctx context.Context, src amd.Source) (amd.Verdict, error) {
	if a.closed.Load() || !a.ran.CompareAndSwap(false, true) {
		return amd.Verdict{}, fmt.Errorf("detect: call %s: analysis already run or closed", a.call.ID)
	}
	defer a.Close()

	ctx, span := observe.StartAnalyzeSpan(ctx, a.call.ID)
	done := a.svc.metrics.TrackSession(ctx)
	v, err := amd.Run(ctx, a.det, src)
	done()
	observe.EndAnalyzeSpan(span, v, err)

	// Cancellation of the caller must not drop the bookkeeping.
	bg := context.WithoutCancel(ctx)
	a.svc.metrics.RecordVerdict(bg, v)
	a.svc.metrics.RecordFrames(bg, a.det.Stats())

	log := observe.Logger(ctx).With(
		"call_id", a.call.ID,
		"status", v.Status,
		"cause", v.Cause,
		"elapsed", v.At,
		"words", v.Words,
	)
	if err != nil {
		log.Warn("analysis ended abnormally", "err", err)
	} else {
		log.Info("verdict reached")
	}

	if a.svc.store != nil {
		if perr := a.svc.store.Save(bg, verdict.NewRecord(a.call.ID, a.call.FileName, v)); perr != nil {
			log.Warn("failed to persist verdict", "err", perr)
		}
	}
	return v, err
}
