// Command amdetect is the answering machine detection server.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/MrWong99/amdetect/internal/app"
	"github.com/MrWong99/amdetect/internal/config"
)

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	configPath := flag.String("config", "amdetect.yaml", "path to the YAML configuration file")
	noReload := flag.Bool("no-reload", false, "disable hot reload of the configuration file")
	flag.Parse()

	// ── Load configuration ────────────────────────────────────────────────────
	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "amdetect: config file %q not found; copy configs/example.yaml to get started\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "amdetect: %v\n", err)
		}
		return 1
	}

	// ── Logger ────────────────────────────────────────────────────────────────
	level := new(slog.LevelVar)
	level.Set(cfg.Server.LogLevel.Slog())
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	slog.Info("amdetect starting",
		"config", *configPath,
		"listen_addr", cfg.ListenAddr(),
		"log_level", cfg.Server.LogLevel,
		"version", app.Version,
	)
	logDefaults(cfg)

	// ── Signal context ────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	opts := []app.Option{app.WithLevelVar(level)}
	if !*noReload {
		opts = append(opts, app.WithConfigFile(*configPath))
	}
	application, err := app.New(ctx, cfg, opts...)
	if err != nil {
		slog.Error("failed to initialise application", "err", err)
		return 1
	}

	slog.Info("server ready; press Ctrl+C to shut down")

	if err := application.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("run error", "err", err)
		_ = application.Shutdown(context.Background())
		return 1
	}

	// ── Graceful shutdown ─────────────────────────────────────────────────────
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	slog.Info("shutdown signal received, draining calls")
	if err := application.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "err", err)
		return 1
	}
	slog.Info("goodbye")
	return 0
}

// logDefaults logs the resolved server-wide AMD parameters.
func logDefaults(cfg *config.Config) {
	d, err := cfg.Defaults()
	if err != nil {
		return
	}
	format, _ := cfg.FrameFormat()
	slog.Info("amd defaults",
		"initial_silence", d.InitialSilence,
		"greeting", d.Greeting,
		"after_greeting_silence", d.AfterGreetingSilence,
		"total_analysis_time", d.TotalAnalysisTime,
		"min_word_length", d.MinimumWordLength,
		"between_words_silence", d.BetweenWordSilence,
		"maximum_number_of_words", d.MaximumNumberOfWords,
		"silence_threshold", d.SilenceThreshold,
		"maximum_word_length", d.MaximumWordLength,
		"sample_rate", format.SampleRate,
		"frame", format.FrameDuration,
	)
}
