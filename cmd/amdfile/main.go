// Command amdfile runs answering machine detection over recorded
// signed-linear audio files.
//
// Usage:
//
//	amdfile [-config amdetect.yaml] [-args "2500,1500,800"] [-rate 8000] [-frame-ms 20] [-j 4] file...
//
// The sample rate is taken from the file extension (.sln, .sln16, .sln48)
// unless -rate is given. The end of a file ends the analysis, so an
// undecided file reports NOTSURE. One line per file is printed in input
// order:
//
//	greeting.sln AMDSTATUS=MACHINE AMDCAUSE=LONGGREETING
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"runtime"
	"syscall"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/amdetect/internal/config"
	"github.com/MrWong99/amdetect/internal/detect"
	"github.com/MrWong99/amdetect/internal/observe"
	"github.com/MrWong99/amdetect/internal/verdict"
	"github.com/MrWong99/amdetect/pkg/amd"
	"github.com/MrWong99/amdetect/pkg/audio"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	os.Exit(run(ctx, os.Args[1:], os.Stdout, os.Stderr))
}

// options are the parsed command line.
type options struct {
	configPath string
	args       string
	rate       int
	frameMs    int
	jobs       int
	verbose    bool
	files      []string

	params config.Params
}

func parseFlags(argv []string, stderr io.Writer) (options, error) {
	fs := flag.NewFlagSet("amdfile", flag.ContinueOnError)
	fs.SetOutput(stderr)
	var o options
	fs.StringVar(&o.configPath, "config", "", "optional YAML configuration file for amd defaults and storage")
	fs.StringVar(&o.args, "args", "", "positional parameters after the file name: initialSilence,greeting,...")
	fs.IntVar(&o.rate, "rate", 0, "sample rate of all files (default: from extension, else config)")
	fs.IntVar(&o.frameMs, "frame-ms", 0, "analysis frame length in milliseconds (default: from config)")
	fs.IntVar(&o.jobs, "j", runtime.GOMAXPROCS(0), "number of files analysed concurrently")
	fs.BoolVar(&o.verbose, "v", false, "also print elapsed time, word count and voice duration")
	if err := fs.Parse(argv); err != nil {
		return options{}, err
	}
	o.files = fs.Args()
	if len(o.files) == 0 {
		return options{}, errors.New("no input files")
	}
	if o.jobs < 1 {
		o.jobs = 1
	}
	if o.args != "" {
		// ParseArgs needs a greeting name in front of the parameters.
		_, p, err := config.ParseArgs("-," + o.args)
		if err != nil {
			return options{}, err
		}
		o.params = p
	}
	return o, nil
}

func run(ctx context.Context, argv []string, stdout, stderr io.Writer) int {
	o, err := parseFlags(argv, stderr)
	if err != nil {
		if !errors.Is(err, flag.ErrHelp) {
			fmt.Fprintf(stderr, "amdfile: %v\n", err)
		}
		return 2
	}

	cfg := &config.Config{}
	level := slog.LevelWarn
	if o.configPath != "" {
		if cfg, err = config.Load(o.configPath); err != nil {
			fmt.Fprintf(stderr, "amdfile: %v\n", err)
			return 1
		}
		level = cfg.Server.LogLevel.Slog()
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: level})))
	if o.frameMs != 0 {
		cfg.Audio.FrameMs = o.frameMs
	}

	var store verdict.Store
	if dsn := cfg.Storage.PostgresDSN; dsn != "" {
		pool, err := verdict.OpenPool(ctx, dsn)
		if err != nil {
			fmt.Fprintf(stderr, "amdfile: %v\n", err)
			return 1
		}
		defer pool.Close()
		pg := verdict.NewPostgresStore(pool)
		if err := pg.Migrate(ctx); err != nil {
			fmt.Fprintf(stderr, "amdfile: %v\n", err)
			return 1
		}
		store = pg
	}
	svc := detect.NewService(func() *config.Config { return cfg }, store, observe.DefaultMetrics())

	results := analyzeFiles(ctx, svc, o)
	code := 0
	for _, r := range results {
		if r.err != nil {
			fmt.Fprintf(stderr, "%s ERROR=%v\n", r.file, r.err)
			code = 1
			continue
		}
		fmt.Fprintln(stdout, r.line(o.verbose))
	}
	return code
}

// result is the outcome for one input file.
type result struct {
	file    string
	verdict amd.Verdict
	err     error
}

func (r result) line(verbose bool) string {
	s := fmt.Sprintf("%s %s=%s %s=%s", r.file, amd.VarStatus, r.verdict.Status, amd.VarCause, r.verdict.Cause)
	if verbose {
		s += fmt.Sprintf(" elapsed=%s words=%d voice=%s", r.verdict.At, r.verdict.Words, r.verdict.VoiceDuration)
	}
	return s
}

// analyzeFiles analyses every file with at most o.jobs in flight and returns
// the results in input order. A failing file does not stop the others.
func analyzeFiles(ctx context.Context, svc *detect.Service, o options) []result {
	results := make([]result, len(o.files))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(o.jobs)
	for i, file := range o.files {
		g.Go(func() error {
			v, err := analyzeFile(ctx, svc, file, o)
			results[i] = result{file: file, verdict: v, err: err}
			return nil
		})
	}
	_ = g.Wait()
	return results
}

func analyzeFile(ctx context.Context, svc *detect.Service, file string, o options) (amd.Verdict, error) {
	rate := o.rate
	if rate == 0 {
		if r, ok := audio.RateForFile(file); ok {
			rate = r
		}
	}

	f, err := os.Open(file)
	if err != nil {
		return amd.Verdict{}, err
	}
	defer f.Close()

	a, err := svc.Prepare(detect.Call{
		ID:         uuid.NewString(),
		FileName:   file,
		Overrides:  o.params,
		SampleRate: rate,
	})
	if err != nil {
		return amd.Verdict{}, err
	}
	src := audio.NewReaderSource(f, a.Format())
	v, err := a.Run(ctx, src)
	if n := src.Dropped(); n > 0 {
		slog.Debug("trailing partial frame ignored", "file", file, "bytes", n)
	}
	return v, err
}
