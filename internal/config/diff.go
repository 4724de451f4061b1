package config

import (
	"time"

	"github.com/MrWong99/amdetect/pkg/amd"
)

// ConfigDiff describes what changed between two configs.
type ConfigDiff struct {
	LogLevelChanged bool
	NewLogLevel     LogLevel

	// AMDChanged is true when any server-wide AMD default changed. New calls
	// pick up the change; calls in progress keep their parameters.
	AMDChanged bool
	AMDChanges []string // yaml keys of the changed amd fields

	AudioChanged bool

	// RestartRequired lists settings that changed but only take effect after
	// a restart.
	RestartRequired []string
}

// amdKeys are the yaml keys of Params in field order.
var amdKeys = [...]string{
	"initial_silence",
	"greeting",
	"after_greeting_silence",
	"total_analysis_time",
	"min_word_length",
	"between_words_silence",
	"maximum_number_of_words",
	"silence_threshold",
	"maximum_word_length",
}

// Diff compares old and new configs and returns what changed.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	// Log level
	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}

	// AMD defaults, compared by resolved value so that writing out a default
	// explicitly is not a change.
	oldV, newV := resolvedValues(old.AMD), resolvedValues(new.AMD)
	for i := range amdKeys {
		if oldV[i] != newV[i] {
			d.AMDChanges = append(d.AMDChanges, amdKeys[i])
		}
	}
	d.AMDChanged = len(d.AMDChanges) > 0

	if old.Audio != new.Audio {
		d.AudioChanged = true
	}

	if old.ListenAddr() != new.ListenAddr() {
		d.RestartRequired = append(d.RestartRequired, "server.listen_addr")
	}
	if old.Storage.PostgresDSN != new.Storage.PostgresDSN {
		d.RestartRequired = append(d.RestartRequired, "storage.postgres_dsn")
	}
	if old.ServiceName() != new.ServiceName() {
		d.RestartRequired = append(d.RestartRequired, "telemetry.service_name")
	}

	return d
}

// resolvedValues returns p applied to the built-in defaults, in amdKeys order
// and yaml units.
func resolvedValues(p Params) [len(amdKeys)]int {
	c := p.Apply(amd.DefaultConfig())
	ms := func(d time.Duration) int { return int(d / time.Millisecond) }
	return [...]int{
		ms(c.InitialSilence),
		ms(c.Greeting),
		ms(c.AfterGreetingSilence),
		ms(c.TotalAnalysisTime),
		ms(c.MinimumWordLength),
		ms(c.BetweenWordSilence),
		c.MaximumNumberOfWords,
		c.SilenceThreshold,
		ms(c.MaximumWordLength),
	}
}
