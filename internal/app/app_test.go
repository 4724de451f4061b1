package app_test

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/MrWong99/amdetect/internal/app"
	"github.com/MrWong99/amdetect/internal/config"
	"github.com/MrWong99/amdetect/internal/detect"
	"github.com/MrWong99/amdetect/internal/gateway"
	"github.com/MrWong99/amdetect/internal/observe"
	"github.com/MrWong99/amdetect/internal/verdict"
	"github.com/MrWong99/amdetect/pkg/amd"
)

// startApp runs a on a loopback listener and shuts it down at cleanup.
func startApp(t *testing.T, cfg *config.Config, opts ...app.Option) (*app.App, string) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	opts = append([]app.Option{app.WithListener(ln), app.WithMetrics(observe.DefaultMetrics())}, opts...)
	a, err := app.New(context.Background(), cfg, opts...)
	if err != nil {
		t.Fatalf("New() returned error: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	runErr := make(chan error, 1)
	go func() { runErr <- a.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		<-runErr
		sctx, scancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer scancel()
		_ = a.Shutdown(sctx)
	})
	return a, "http://" + ln.Addr().String()
}

func getStatus(t *testing.T, url string) (int, string) {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("GET %s: %v", url, err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	return resp.StatusCode, string(body)
}

func TestApp_EndToEnd(t *testing.T) {
	t.Parallel()
	store := verdict.NewMemStore()
	a, base := startApp(t, &config.Config{}, app.WithStore(store))

	if code, _ := getStatus(t, base+"/healthz"); code != http.StatusOK {
		t.Errorf("/healthz = %d, want 200", code)
	}
	if code, body := getStatus(t, base+"/readyz"); code != http.StatusOK || !strings.Contains(body, "verdict_store") {
		t.Errorf("/readyz = %d %s", code, body)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	conn, _, err := websocket.Dial(ctx, "ws"+strings.TrimPrefix(base, "http")+"/v1/amd", nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.CloseNow()

	if err := wsjson.Write(ctx, conn, gateway.StartMessage{Type: gateway.TypeStart, CallID: "e2e", Args: "hello,1000"}); err != nil {
		t.Fatal(err)
	}
	silence := make([]byte, 320)
	for range 60 {
		if err := conn.Write(ctx, websocket.MessageBinary, silence); err != nil {
			break
		}
	}
	var res gateway.ResultMessage
	if err := wsjson.Read(ctx, conn, &res); err != nil {
		t.Fatalf("read result: %v", err)
	}
	if res.Status != amd.StatusMachine || res.Cause != amd.CauseInitialSilence {
		t.Errorf("result = %s/%s, want MACHINE/INITIALSILENCE", res.Status, res.Cause)
	}

	code, body := getStatus(t, base+"/v1/verdicts/e2e")
	if code != http.StatusOK {
		t.Fatalf("/v1/verdicts/e2e = %d %s", code, body)
	}
	var rec gateway.RecordResponse
	if err := json.Unmarshal([]byte(body), &rec); err != nil {
		t.Fatal(err)
	}
	if rec.FileName != "hello" || rec.ElapsedMs != 1000 {
		t.Errorf("record = %+v, want file hello elapsed 1000ms", rec)
	}
	if _, err := store.Get(context.Background(), "e2e"); err != nil {
		t.Errorf("injected store not used: %v", err)
	}

	if code, _ := getStatus(t, base+"/metrics"); code != http.StatusNotFound {
		t.Errorf("/metrics with injected metrics = %d, want 404", code)
	}
	if a.Addr() == nil {
		t.Error("Addr() = nil while running")
	}
}

func TestApp_ShutdownDrains(t *testing.T) {
	t.Parallel()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	a, err := app.New(context.Background(), &config.Config{},
		app.WithListener(ln),
		app.WithMetrics(observe.DefaultMetrics()),
		app.WithStore(verdict.NewMemStore()),
	)
	if err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	runErr := make(chan error, 1)
	go func() { runErr <- a.Run(ctx) }()

	cancel()
	if err := <-runErr; err != context.Canceled {
		t.Errorf("Run() = %v, want context.Canceled", err)
	}
	sctx, scancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer scancel()
	if err := a.Shutdown(sctx); err != nil {
		t.Errorf("Shutdown() = %v", err)
	}
	if err := a.Shutdown(sctx); err != nil {
		t.Errorf("second Shutdown() = %v", err)
	}

	rec := httptest.NewRecorder()
	a.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("/readyz after shutdown = %d, want 503", rec.Code)
	}
}

func TestApp_ConfigReload(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	path := filepath.Join(dir, "amdetect.yaml")
	write := func(content string) {
		t.Helper()
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	write("server:\n  log_level: info\namd:\n  initial_silence: 2500\n")
	cfg, err := config.Load(path)
	if err != nil {
		t.Fatal(err)
	}

	lv := new(slog.LevelVar)
	a, _ := startApp(t, cfg,
		app.WithStore(verdict.NewMemStore()),
		app.WithConfigFile(path),
		app.WithReloadInterval(20*time.Millisecond),
		app.WithLevelVar(lv),
	)

	write("server:\n  log_level: debug\namd:\n  initial_silence: 1000\n")

	deadline := time.Now().Add(5 * time.Second)
	for lv.Level() != slog.LevelDebug {
		if time.Now().After(deadline) {
			t.Fatal("log level was not reloaded")
		}
		time.Sleep(10 * time.Millisecond)
	}

	an, err := a.Service().Prepare(detect.Call{ID: "after-reload"})
	if err != nil {
		t.Fatal(err)
	}
	defer an.Close()
	if got := an.Config().InitialSilence; got != time.Second {
		t.Errorf("InitialSilence after reload = %v, want 1s", got)
	}
}

func TestNew_PostgresUnavailable(t *testing.T) {
	t.Parallel()
	cfg := &config.Config{Storage: config.StorageConfig{PostgresDSN: "postgres://amd@127.0.0.1:1/amd?connect_timeout=1"}}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_, err := app.New(ctx, cfg, app.WithMetrics(observe.DefaultMetrics()))
	if err == nil {
		t.Fatal("New() with unreachable postgres should fail")
	}
	if !strings.Contains(err.Error(), "verdict store") {
		t.Errorf("error = %v, want verdict store context", err)
	}
}

func TestNew_Telemetry(t *testing.T) {
	// Not parallel: InitProvider installs the global OTel providers.
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	a, err := app.New(context.Background(), &config.Config{}, app.WithListener(ln), app.WithStore(verdict.NewMemStore()))
	if err != nil {
		t.Fatal(err)
	}
	defer func() {
		_ = a.Shutdown(context.Background())
		ln.Close()
	}()

	rec := httptest.NewRecorder()
	a.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("/metrics = %d, want 200", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "go_goroutines") {
		t.Error("/metrics does not expose runtime collectors")
	}
}
