package config

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/MrWong99/amdetect/pkg/amd"
)

// ErrMissingFileName is returned by [ParseArgs] when the first positional
// argument is empty.
var ErrMissingFileName = errors.New("config: fileName is required")

// argNames lists the positional arguments after fileName, in order.
var argNames = [...]string{
	"initialSilence",
	"greeting",
	"afterGreetingSilence",
	"totalAnalysisTime",
	"minimumWordLength",
	"betweenWordSilence",
	"maximumNumberOfWords",
	"silenceThreshold",
	"maximumWordLength",
}

// Int returns a pointer to v, for building [Params] literals.
func Int(v int) *int { return &v }

// fields returns pointers to p's fields in positional-argument order.
func (p *Params) fields() [len(argNames)]**int {
	return [...]**int{
		&p.InitialSilence,
		&p.Greeting,
		&p.AfterGreetingSilence,
		&p.TotalAnalysisTime,
		&p.MinWordLength,
		&p.BetweenWordsSilence,
		&p.MaximumNumberOfWords,
		&p.SilenceThreshold,
		&p.MaximumWordLength,
	}
}

// IsZero reports whether no field of p is set.
func (p Params) IsZero() bool {
	for _, f := range p.fields() {
		if *f != nil {
			return false
		}
	}
	return true
}

// Merge returns p with every field that is set in over replaced.
func (p Params) Merge(over Params) Params {
	dst := p.fields()
	for i, f := range over.fields() {
		if *f != nil {
			v := **f
			*dst[i] = &v
		}
	}
	return p
}

// maxMillis is the largest millisecond value a [time.Duration] can hold.
const maxMillis = math.MaxInt64 / int64(time.Millisecond)

// checkDurations reports millisecond fields too large to convert to a
// [time.Duration].
func (p Params) checkDurations() []error {
	var errs []error
	for i, f := range p.fields() {
		if name := argNames[i]; *f != nil && isDuration(name) && int64(**f) > maxMillis {
			errs = append(errs, fmt.Errorf("%s %dms exceeds the maximum of %dms", name, **f, maxMillis))
		}
	}
	return errs
}

func isDuration(arg string) bool {
	return arg != "maximumNumberOfWords" && arg != "silenceThreshold"
}

// Apply overlays the set fields of p onto base. Millisecond values beyond
// [time.Duration] range wrap; [Resolve] rejects them first.
func (p Params) Apply(base amd.Config) amd.Config {
	ms := func(v *int, d *time.Duration) {
		if v != nil {
			*d = time.Duration(*v) * time.Millisecond
		}
	}
	ms(p.InitialSilence, &base.InitialSilence)
	ms(p.Greeting, &base.Greeting)
	ms(p.AfterGreetingSilence, &base.AfterGreetingSilence)
	ms(p.TotalAnalysisTime, &base.TotalAnalysisTime)
	ms(p.MinWordLength, &base.MinimumWordLength)
	ms(p.BetweenWordsSilence, &base.BetweenWordSilence)
	ms(p.MaximumWordLength, &base.MaximumWordLength)
	if p.MaximumNumberOfWords != nil {
		base.MaximumNumberOfWords = *p.MaximumNumberOfWords
	}
	if p.SilenceThreshold != nil {
		base.SilenceThreshold = *p.SilenceThreshold
	}
	return base
}

// Resolve builds an immutable [amd.Config] from the built-in defaults with
// each layer applied in order. Out-of-range results are rejected, never
// clamped.
func Resolve(layers ...Params) (amd.Config, error) {
	cfg := amd.DefaultConfig()
	var errs []error
	for _, l := range layers {
		errs = append(errs, l.checkDurations()...)
		cfg = l.Apply(cfg)
	}
	if len(errs) > 0 {
		return amd.Config{}, fmt.Errorf("%w: %w", amd.ErrInvalidConfig, errors.Join(errs...))
	}
	if err := cfg.Validate(); err != nil {
		return amd.Config{}, err
	}
	return cfg, nil
}

// ParseArgs parses the AMD positional argument string
//
//	fileName,initialSilence,greeting,afterGreetingSilence,totalAnalysisTime,
//	minimumWordLength,betweenWordSilence,maximumNumberOfWords,
//	silenceThreshold,maximumWordLength
//
// Empty or missing positions stay unset. fileName is required.
func ParseArgs(s string) (string, Params, error) {
	parts := strings.Split(s, ",")
	fileName := strings.TrimSpace(parts[0])
	if fileName == "" {
		return "", Params{}, ErrMissingFileName
	}
	rest := parts[1:]
	if len(rest) > len(argNames) {
		return "", Params{}, fmt.Errorf("config: %d arguments given, at most %d allowed", len(parts), len(argNames)+1)
	}

	var p Params
	fields := p.fields()
	var errs []error
	for i, raw := range rest {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		v, err := strconv.Atoi(raw)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s %q is not an integer", argNames[i], raw))
			continue
		}
		*fields[i] = &v
	}
	if err := errors.Join(errs...); err != nil {
		return "", Params{}, fmt.Errorf("config: parse args: %w", err)
	}
	return fileName, p, nil
}
