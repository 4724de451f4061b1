// Package app wires all amdetect subsystems into a running server.
//
// The App struct owns the full lifecycle: New creates and connects all
// subsystems, Run serves HTTP until its context is cancelled, and Shutdown
// drains calls and tears everything down in order.
//
// For testing, inject implementations via functional options (WithStore,
// WithMetrics, WithListener). When an option is not provided, New creates
// real implementations from the config.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/amdetect/internal/config"
	"github.com/MrWong99/amdetect/internal/detect"
	"github.com/MrWong99/amdetect/internal/gateway"
	"github.com/MrWong99/amdetect/internal/health"
	"github.com/MrWong99/amdetect/internal/observe"
	"github.com/MrWong99/amdetect/internal/verdict"
)

// Version is reported in telemetry. It is set at build time via -ldflags.
var Version = "dev"

// App owns all subsystem lifetimes.
type App struct {
	cfg        *config.Config
	configPath string
	watchOpts  []config.WatcherOption
	levelVar   *slog.LevelVar

	// Subsystems, initialised in New and torn down in Shutdown.
	watcher   *config.Watcher
	provider  *observe.Provider
	metrics   *observe.Metrics
	store     verdict.Store
	publisher *verdict.Publisher
	service   *detect.Service
	gateway   *gateway.Handler
	health    *health.Handler
	server    *http.Server

	mu       sync.Mutex
	listener net.Listener

	// closers are called in order during Shutdown.
	closers []func(context.Context) error

	stopOnce sync.Once
	stopErr  error
}

// Option is a functional option for New.
type Option func(*App)

// WithConfigFile enables hot reload of the file at path. AMD defaults and
// the log level follow valid edits; other settings need a restart.
func WithConfigFile(path string) Option {
	return func(a *App) { a.configPath = path }
}

// WithReloadInterval sets the polling interval of the config watcher.
func WithReloadInterval(d time.Duration) Option {
	return func(a *App) { a.watchOpts = append(a.watchOpts, config.WithInterval(d)) }
}

// WithLevelVar sets the level variable updated when the log level reloads.
func WithLevelVar(lv *slog.LevelVar) Option {
	return func(a *App) { a.levelVar = lv }
}

// WithStore injects a verdict store instead of creating one from config.
func WithStore(s verdict.Store) Option {
	return func(a *App) { a.store = s }
}

// WithMetrics injects metric instruments and skips the OTel SDK setup. The
// /metrics route is not mounted.
func WithMetrics(m *observe.Metrics) Option {
	return func(a *App) { a.metrics = m }
}

// WithListener makes Run serve on ln instead of listening on the configured
// address.
func WithListener(ln net.Listener) Option {
	return func(a *App) { a.listener = ln }
}

// ─── New ─────────────────────────────────────────────────────────────────────

// New creates an App by wiring all subsystems together.
func New(ctx context.Context, cfg *config.Config, opts ...Option) (*App, error) {
	a := &App{cfg: cfg}
	for _, o := range opts {
		o(a)
	}

	if err := a.initTelemetry(ctx); err != nil {
		return nil, fmt.Errorf("app: init telemetry: %w", err)
	}
	if err := a.initStore(ctx); err != nil {
		a.closeAll(ctx)
		return nil, fmt.Errorf("app: init verdict store: %w", err)
	}
	current, err := a.initConfigSource()
	if err != nil {
		a.closeAll(ctx)
		return nil, fmt.Errorf("app: init config watcher: %w", err)
	}

	a.publisher = verdict.NewPublisher(a.store, verdict.WithMetrics(a.metrics))
	a.service = detect.NewService(current, a.publisher, a.metrics)
	a.gateway = gateway.New(a.service, a.publisher)
	a.health = health.New(
		health.Checker{Name: "verdict_store", Check: a.publisher.Ping},
		health.Checker{Name: "config", Check: func(context.Context) error {
			_, err := current().Defaults()
			return err
		}},
	)
	a.server = &http.Server{
		Addr:              cfg.ListenAddr(),
		Handler:           a.routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return a, nil
}

// ─── Init helpers ────────────────────────────────────────────────────────────

func (a *App) initTelemetry(ctx context.Context) error {
	if a.metrics != nil {
		return nil
	}
	p, err := observe.InitProvider(ctx, observe.ProviderConfig{
		ServiceName:    a.cfg.ServiceName(),
		ServiceVersion: Version,
	})
	if err != nil {
		return err
	}
	m, err := observe.NewMetrics(p.MeterProvider)
	if err != nil {
		_ = p.Shutdown(ctx)
		return err
	}
	a.provider = p
	a.metrics = m
	a.closers = append(a.closers, p.Shutdown)
	return nil
}

// initStore uses the injected store, PostgreSQL when a DSN is configured, or
// an in-memory store.
func (a *App) initStore(ctx context.Context) error {
	if a.store != nil {
		return nil
	}
	dsn := a.cfg.Storage.PostgresDSN
	if dsn == "" {
		a.store = verdict.NewMemStore()
		slog.Info("using in-memory verdict store")
		return nil
	}

	pool, err := verdict.OpenPool(ctx, dsn)
	if err != nil {
		return err
	}
	a.closers = append(a.closers, func(context.Context) error {
		pool.Close()
		return nil
	})
	store := verdict.NewPostgresStore(pool)
	if err := store.Migrate(ctx); err != nil {
		return err
	}
	a.store = store
	slog.Info("using postgres verdict store")
	return nil
}

// initConfigSource returns the function each call resolves its config from.
func (a *App) initConfigSource() (func() *config.Config, error) {
	if a.configPath == "" {
		cfg := a.cfg
		return func() *config.Config { return cfg }, nil
	}
	w, err := config.NewWatcher(a.configPath, a.onConfigChange, a.watchOpts...)
	if err != nil {
		return nil, err
	}
	a.watcher = w
	a.closers = append([]func(context.Context) error{func(context.Context) error {
		w.Stop()
		return nil
	}}, a.closers...)
	return w.Current, nil
}

func (a *App) onConfigChange(old, new *config.Config) {
	d := config.Diff(old, new)
	if d.LogLevelChanged && a.levelVar != nil {
		a.levelVar.Set(d.NewLogLevel.Slog())
		slog.Info("log level changed", "level", d.NewLogLevel)
	}
	if d.AMDChanged {
		slog.Info("amd defaults reloaded; new calls use them", "changed", d.AMDChanges)
	}
	if d.AudioChanged {
		slog.Info("audio frame format reloaded; new calls use it")
	}
	if len(d.RestartRequired) > 0 {
		slog.Warn("config changes need a restart to take effect", "settings", d.RestartRequired)
	}
}

func (a *App) routes() http.Handler {
	mux := http.NewServeMux()
	a.health.Register(mux)
	if a.provider != nil {
		mux.Handle("GET /metrics", a.provider.Handler)
	}
	a.gateway.Register(mux, observe.Middleware(a.metrics))
	return mux
}

// ─── Accessors ───────────────────────────────────────────────────────────────

// Service returns the detection service.
func (a *App) Service() *detect.Service { return a.service }

// Handler returns the root HTTP handler.
func (a *App) Handler() http.Handler { return a.server.Handler }

// Addr returns the address Run is serving on, or nil before Run started.
func (a *App) Addr() net.Addr {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.listener == nil {
		return nil
	}
	return a.listener.Addr()
}

// ─── Run ─────────────────────────────────────────────────────────────────────

// Run serves HTTP and blocks until ctx is cancelled or the server fails.
// When ctx is done, Run returns its error; call Shutdown to drain.
func (a *App) Run(ctx context.Context) error {
	a.mu.Lock()
	ln := a.listener
	a.mu.Unlock()
	if ln == nil {
		var err error
		ln, err = net.Listen("tcp", a.server.Addr)
		if err != nil {
			return fmt.Errorf("app: listen: %w", err)
		}
		a.mu.Lock()
		a.listener = ln
		a.mu.Unlock()
	}

	errc := make(chan error, 1)
	go func() { errc <- a.server.Serve(ln) }()
	slog.Info("app running", "addr", ln.Addr().String())

	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("app: serve: %w", err)
	}
}

// ─── Shutdown ────────────────────────────────────────────────────────────────

// Shutdown marks the service as draining, stops accepting calls and waits
// for running calls and requests to finish. Calls still running at the ctx
// deadline are ended with a HANGUP verdict. Remaining subsystems are then
// closed in order.
func (a *App) Shutdown(ctx context.Context) error {
	a.stopOnce.Do(func() {
		slog.Info("shutting down", "active_calls", len(a.service.Active()))
		a.health.SetDraining(true)

		var g errgroup.Group
		g.Go(func() error { return a.gateway.Shutdown(ctx) })
		g.Go(func() error { return a.server.Shutdown(ctx) })
		err := g.Wait()

		a.stopErr = errors.Join(err, a.closeAll(context.WithoutCancel(ctx)))
		slog.Info("shutdown complete")
	})
	return a.stopErr
}

func (a *App) closeAll(ctx context.Context) error {
	var errs []error
	for i, closer := range a.closers {
		if err := closer(ctx); err != nil {
			slog.Warn("closer error", "index", i, "err", err)
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
