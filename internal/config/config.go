// Package config provides the configuration schema, loader, layered parameter
// resolver and file watcher for the amdetect service.
package config

import (
	"log/slog"
	"time"

	"github.com/MrWong99/amdetect/pkg/amd"
)

// LogLevel controls log verbosity for the amdetect server.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// Slog maps l to a [slog.Level]. Unknown and empty levels map to info.
func (l LogLevel) Slog() slog.Level {
	switch l {
	case LogDebug:
		return slog.LevelDebug
	case LogWarn:
		return slog.LevelWarn
	case LogError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Config is the root configuration structure for amdetect.
// It is typically loaded from a YAML file using [Load] or [LoadFromReader].
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	AMD       Params          `yaml:"amd"`
	Audio     AudioConfig     `yaml:"audio"`
	Storage   StorageConfig   `yaml:"storage"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
}

// ServerConfig holds network and logging settings for the amdetect server.
type ServerConfig struct {
	// ListenAddr is the TCP address the server listens on (e.g., ":8090").
	ListenAddr string `yaml:"listen_addr"`

	// LogLevel controls verbosity.
	LogLevel LogLevel `yaml:"log_level"`
}

// Params holds AMD parameters in milliseconds (silence_threshold and
// maximum_number_of_words are unitless). A nil field is unset and inherits
// from the layer below. The same type carries the server-wide defaults in
// YAML and per-call overrides in JSON.
type Params struct {
	InitialSilence       *int `yaml:"initial_silence"         json:"initial_silence,omitempty"`
	Greeting             *int `yaml:"greeting"                json:"greeting,omitempty"`
	AfterGreetingSilence *int `yaml:"after_greeting_silence"  json:"after_greeting_silence,omitempty"`
	TotalAnalysisTime    *int `yaml:"total_analysis_time"     json:"total_analysis_time,omitempty"`
	MinWordLength        *int `yaml:"min_word_length"         json:"min_word_length,omitempty"`
	BetweenWordsSilence  *int `yaml:"between_words_silence"   json:"between_words_silence,omitempty"`
	MaximumNumberOfWords *int `yaml:"maximum_number_of_words" json:"maximum_number_of_words,omitempty"`
	SilenceThreshold     *int `yaml:"silence_threshold"       json:"silence_threshold,omitempty"`
	MaximumWordLength    *int `yaml:"maximum_word_length"     json:"maximum_word_length,omitempty"`
}

// AudioConfig is the default frame format for raw PCM input.
type AudioConfig struct {
	// SampleRate in Hz: 8000, 16000 or 48000. Zero means 8000.
	SampleRate int `yaml:"sample_rate"`

	// FrameMs is the frame duration in milliseconds. Zero means 20.
	FrameMs int `yaml:"frame_ms"`
}

// StorageConfig selects where verdicts are persisted.
type StorageConfig struct {
	// PostgresDSN is the PostgreSQL connection string. When empty, verdicts
	// are kept in memory.
	PostgresDSN string `yaml:"postgres_dsn"`
}

// TelemetryConfig configures OpenTelemetry resource attributes.
type TelemetryConfig struct {
	// ServiceName is reported as service.name. Defaults to "amdetect".
	ServiceName string `yaml:"service_name"`
}

// Defaults used when a section leaves a value unset.
const (
	DefaultListenAddr  = ":8090"
	DefaultServiceName = "amdetect"
)

// ListenAddr returns the configured listen address or [DefaultListenAddr].
func (c *Config) ListenAddr() string {
	if c.Server.ListenAddr == "" {
		return DefaultListenAddr
	}
	return c.Server.ListenAddr
}

// ServiceName returns the configured service name or [DefaultServiceName].
func (c *Config) ServiceName() string {
	if c.Telemetry.ServiceName == "" {
		return DefaultServiceName
	}
	return c.Telemetry.ServiceName
}

// FrameFormat returns the configured default frame format.
func (c *Config) FrameFormat() (amd.FrameFormat, error) {
	f := amd.DefaultFrameFormat()
	if c.Audio.SampleRate != 0 {
		f.SampleRate = c.Audio.SampleRate
	}
	if c.Audio.FrameMs != 0 {
		f.FrameDuration = time.Duration(c.Audio.FrameMs) * time.Millisecond
	}
	if err := f.Validate(); err != nil {
		return amd.FrameFormat{}, err
	}
	return f, nil
}

// Defaults resolves the server-wide AMD parameters.
func (c *Config) Defaults() (amd.Config, error) {
	return Resolve(c.AMD)
}

// ResolveCall resolves the parameters for one call: built-in defaults, then
// the server-wide amd section, then the call's overrides.
func (c *Config) ResolveCall(overrides Params) (amd.Config, error) {
	return Resolve(c.AMD, overrides)
}
