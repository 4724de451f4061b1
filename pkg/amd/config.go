package amd

import (
	"errors"
	"fmt"
	"time"
)

// MaxSilenceThreshold is the largest meaningful amplitude threshold for
// 16-bit signed PCM.
const MaxSilenceThreshold = 32767

// ErrInvalidConfig is wrapped by every error returned from [Config.Validate]
// and [FrameFormat.Validate].
var ErrInvalidConfig = errors.New("amd: invalid config")

// Config holds the timing and threshold parameters for one analysis. A Config
// is copied into each [Detector], so a validated value may be shared freely.
type Config struct {
	// SilenceThreshold is the mean absolute amplitude at or below which a
	// frame is silence. Range: [0, 32767].
	SilenceThreshold int

	// InitialSilence is the longest silence tolerated before the first voice.
	InitialSilence time.Duration

	// Greeting is the longest cumulative voice duration tolerated.
	Greeting time.Duration

	// AfterGreetingSilence is the silence after at least one word that
	// confirms a human.
	AfterGreetingSilence time.Duration

	// TotalAnalysisTime is the hard deadline for reaching a verdict,
	// measured from the start of the analysis.
	TotalAnalysisTime time.Duration

	// MinimumWordLength is the shortest voice run counted as a word.
	MinimumWordLength time.Duration

	// BetweenWordSilence is the silence needed to end a word. Shorter gaps
	// are absorbed into the surrounding voice run.
	BetweenWordSilence time.Duration

	// MaximumNumberOfWords is the word count ceiling; exceeding it means
	// MACHINE.
	MaximumNumberOfWords int

	// MaximumWordLength is the longest single voice run tolerated.
	MaximumWordLength time.Duration
}

// DefaultConfig returns the stock amd.conf parameters.
func DefaultConfig() Config {
	return Config{
		SilenceThreshold:     256,
		InitialSilence:       2500 * time.Millisecond,
		Greeting:             1500 * time.Millisecond,
		AfterGreetingSilence: 800 * time.Millisecond,
		TotalAnalysisTime:    5000 * time.Millisecond,
		MinimumWordLength:    100 * time.Millisecond,
		BetweenWordSilence:   50 * time.Millisecond,
		MaximumNumberOfWords: 2,
		MaximumWordLength:    5000 * time.Millisecond,
	}
}

// Validate reports every out-of-range parameter. Values are never clamped.
func (c Config) Validate() error {
	var errs []error

	if c.SilenceThreshold < 0 || c.SilenceThreshold > MaxSilenceThreshold {
		errs = append(errs, fmt.Errorf("silenceThreshold %d is out of range [0, %d]", c.SilenceThreshold, MaxSilenceThreshold))
	}
	if c.MaximumNumberOfWords < 0 {
		errs = append(errs, fmt.Errorf("maximumNumberOfWords %d must not be negative", c.MaximumNumberOfWords))
	}

	durations := []struct {
		name string
		v    time.Duration
	}{
		{"initialSilence", c.InitialSilence},
		{"greeting", c.Greeting},
		{"afterGreetingSilence", c.AfterGreetingSilence},
		{"totalAnalysisTime", c.TotalAnalysisTime},
		{"minimumWordLength", c.MinimumWordLength},
		{"betweenWordSilence", c.BetweenWordSilence},
		{"maximumWordLength", c.MaximumWordLength},
	}
	for _, d := range durations {
		if d.v < 0 {
			errs = append(errs, fmt.Errorf("%s %v must not be negative", d.name, d.v))
		}
	}

	if len(errs) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrInvalidConfig, errors.Join(errs...))
}
