package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/MrWong99/amdetect/internal/detect"
	"github.com/MrWong99/amdetect/internal/verdict"
	"github.com/MrWong99/amdetect/pkg/amd"
)

// Defaults for [Handler] tuning.
const (
	DefaultStartTimeout = 10 * time.Second
	DefaultReadLimit    = 1 << 20
	writeTimeout        = 5 * time.Second
)

var errStartTimeout = errors.New("gateway: no start message received in time")

// Handler serves the call stream WebSocket and the verdict lookup API.
type Handler struct {
	svc          *detect.Service
	store        verdict.Store
	startTimeout time.Duration
	readLimit    int64
	origins      []string

	// base is cancelled by Shutdown to abort calls still running at the
	// deadline.
	base   context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	closing bool
	calls   sync.WaitGroup
}

// Option configures a [Handler].
type Option func(*Handler)

// WithStartTimeout bounds the wait for the start message.
func WithStartTimeout(d time.Duration) Option {
	return func(h *Handler) { h.startTimeout = d }
}

// WithReadLimit sets the maximum size of one WebSocket message.
func WithReadLimit(n int64) Option {
	return func(h *Handler) { h.readLimit = n }
}

// WithOriginPatterns allows cross-origin WebSocket clients whose Origin host
// matches one of patterns.
func WithOriginPatterns(patterns ...string) Option {
	return func(h *Handler) { h.origins = patterns }
}

// New creates a Handler. store serves verdict lookups and may be nil, in
// which case lookups answer 404.
func New(svc *detect.Service, store verdict.Store, opts ...Option) *Handler {
	h := &Handler{
		svc:          svc,
		store:        store,
		startTimeout: DefaultStartTimeout,
		readLimit:    DefaultReadLimit,
	}
	h.base, h.cancel = context.WithCancel(context.Background())
	for _, o := range opts {
		o(h)
	}
	return h
}

// Register mounts the handler's routes on mux. wrap is applied to the plain
// HTTP routes only; the WebSocket route is mounted unwrapped.
func (h *Handler) Register(mux *http.ServeMux, wrap func(http.Handler) http.Handler) {
	if wrap == nil {
		wrap = func(next http.Handler) http.Handler { return next }
	}
	mux.HandleFunc("GET /v1/amd", h.ServeStream)
	mux.Handle("GET /v1/verdicts/{call_id}", wrap(http.HandlerFunc(h.ServeVerdict)))
	mux.Handle("GET /v1/calls", wrap(http.HandlerFunc(h.ServeCalls)))
}

// Shutdown stops accepting new calls and waits for running calls to finish.
// Calls still running when ctx is done are cancelled, which ends them with a
// HANGUP verdict, and ctx's error is returned.
func (h *Handler) Shutdown(ctx context.Context) error {
	h.mu.Lock()
	h.closing = true
	h.mu.Unlock()

	done := make(chan struct{})
	go func() {
		h.calls.Wait()
		close(done)
	}()
	select {
	case <-done:
		h.cancel()
		return nil
	case <-ctx.Done():
		h.cancel()
		<-done
		return ctx.Err()
	}
}

func (h *Handler) admit() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closing {
		return false
	}
	h.calls.Add(1)
	return true
}

// ServeStream upgrades the request and runs one call.
func (h *Handler) ServeStream(w http.ResponseWriter, r *http.Request) {
	if !h.admit() {
		http.Error(w, "shutting down", http.StatusServiceUnavailable)
		return
	}
	defer h.calls.Done()

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: h.origins})
	if err != nil {
		slog.Warn("gateway: websocket accept failed", "remote", r.RemoteAddr, "err", err)
		return
	}
	defer conn.CloseNow()
	conn.SetReadLimit(h.readLimit)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	stop := context.AfterFunc(h.base, cancel)
	defer stop()

	h.serveCall(ctx, conn)
}

func (h *Handler) serveCall(ctx context.Context, conn *websocket.Conn) {
	sp, err := h.readStart(ctx, conn)
	if errors.Is(err, errStartTimeout) {
		return
	}
	if err != nil {
		h.reject(ctx, conn, err)
		return
	}
	analysis, err := h.svc.Prepare(sp.call)
	if err != nil {
		h.reject(ctx, conn, err)
		return
	}
	src, err := newStreamSource(conn, sp, analysis.Format())
	if err != nil {
		analysis.Close()
		h.reject(ctx, conn, err)
		return
	}

	log := slog.With("call_id", sp.call.ID)
	log.Debug("gateway: call started",
		"encoding", sp.encoding,
		"stream", sp.format.String(),
		"analysis_rate", analysis.Format().SampleRate,
	)

	v, err := analysis.Run(ctx, src)
	if errors.Is(err, amd.ErrStreamFault) {
		// The peer is gone or misbehaving; there is nobody to answer.
		log.Debug("gateway: stream ended without result delivery", "err", err)
		return
	}

	wctx, wcancel := context.WithTimeout(context.WithoutCancel(ctx), writeTimeout)
	defer wcancel()
	res := ResultMessage{Type: TypeResult, CallID: sp.call.ID, Status: v.Status, Cause: v.Cause}
	if err := wsjson.Write(wctx, conn, res); err != nil {
		log.Debug("gateway: write result failed", "err", err)
		return
	}
	conn.Close(websocket.StatusNormalClosure, "verdict delivered")
}

// readStart waits for the start message. When none arrives within the start
// timeout the call is rejected from a timer and errStartTimeout is returned
// once that rejection has been sent. The Read context carries no deadline:
// coder/websocket closes the connection when it expires.
func (h *Handler) readStart(ctx context.Context, conn *websocket.Conn) (streamParams, error) {
	rejected := make(chan struct{})
	timer := time.AfterFunc(h.startTimeout, func() {
		defer close(rejected)
		h.reject(ctx, conn, errStartTimeout)
	})
	typ, data, err := conn.Read(ctx)
	if !timer.Stop() {
		<-rejected
		return streamParams{}, errStartTimeout
	}
	if err != nil {
		return streamParams{}, err
	}
	if typ != websocket.MessageText {
		return streamParams{}, errors.New("gateway: first message must be a text start message")
	}
	return parseStart(data)
}

// reject answers a failed start with an error message and a policy-violation
// close.
func (h *Handler) reject(ctx context.Context, conn *websocket.Conn, cause error) {
	slog.Info("gateway: call rejected", "err", cause)
	wctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), writeTimeout)
	defer cancel()
	_ = wsjson.Write(wctx, conn, ErrorMessage{Type: TypeError, Message: cause.Error()})
	conn.Close(websocket.StatusPolicyViolation, "call rejected")
}

// ServeVerdict answers GET /v1/verdicts/{call_id} with the stored record.
func (h *Handler) ServeVerdict(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("call_id")
	if h.store == nil {
		writeJSON(w, http.StatusNotFound, ErrorMessage{Type: TypeError, Message: verdict.ErrNotFound.Error()})
		return
	}
	rec, err := h.store.Get(r.Context(), id)
	switch {
	case errors.Is(err, verdict.ErrNotFound):
		writeJSON(w, http.StatusNotFound, ErrorMessage{Type: TypeError, Message: err.Error()})
	case err != nil:
		slog.Warn("gateway: verdict lookup failed", "call_id", id, "err", err)
		writeJSON(w, http.StatusServiceUnavailable, ErrorMessage{Type: TypeError, Message: "verdict store unavailable"})
	default:
		writeJSON(w, http.StatusOK, newRecordResponse(rec))
	}
}

// ServeCalls answers GET /v1/calls with the calls being analysed.
func (h *Handler) ServeCalls(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"calls": h.svc.Active()})
}

// RecordResponse is the JSON form of a stored verdict.
type RecordResponse struct {
	CallID          string     `json:"call_id"`
	FileName        string     `json:"file_name,omitempty"`
	Status          amd.Status `json:"AMDSTATUS"`
	Cause           amd.Cause  `json:"AMDCAUSE"`
	ElapsedMs       int64      `json:"elapsed_ms"`
	Words           int        `json:"words"`
	VoiceDurationMs int64      `json:"voice_duration_ms"`
	DecidedAt       time.Time  `json:"decided_at"`
}

func newRecordResponse(r verdict.Record) RecordResponse {
	return RecordResponse{
		CallID:          r.CallID,
		FileName:        r.FileName,
		Status:          r.Status,
		Cause:           r.Cause,
		ElapsedMs:       r.Elapsed.Milliseconds(),
		Words:           r.Words,
		VoiceDurationMs: r.VoiceDuration.Milliseconds(),
		DecidedAt:       r.DecidedAt,
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
