package config

import "reflect"

// ConfigDiff describes what changed between two configs. The log level is the
// only change applied at runtime; the other flags let the server warn that a
// restart is needed.
type ConfigDiff struct {
	LogLevelChanged bool
	NewLogLevel     LogLevel

	// ProvidersChanged is true when any provider entry differs. Provider
	// clients are built once at startup, so this needs a restart.
	ProvidersChanged bool

	// PipelineChanged is true when window or timeout tuning differs.
	// Session windows are sized at creation, so this needs a restart.
	PipelineChanged bool

	// ResilienceChanged is true when breaker tuning differs.
	ResilienceChanged bool
}

// Any reports whether the diff contains any change at all.
func (d ConfigDiff) Any() bool {
	return d.LogLevelChanged || d.ProvidersChanged || d.PipelineChanged || d.ResilienceChanged
}

// Diff compares old and new configs and returns what changed.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}

	// Provider entries hold nested slices and maps; reflect.DeepEqual keeps
	// the comparison honest as fields are added.
	if !reflect.DeepEqual(old.Providers, new.Providers) {
		d.ProvidersChanged = true
	}
	if old.Pipeline != new.Pipeline {
		d.PipelineChanged = true
	}
	if old.Resilience != new.Resilience {
		d.ResilienceChanged = true
	}

	return d
}
