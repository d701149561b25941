// Package config provides the configuration schema, loader, and provider
// registry for the Callwarden scam screening service.
package config

import (
	"fmt"
	"time"

	"gopkg.in/yaml.v3"
)

// LogLevel controls log verbosity for the Callwarden server.
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

// Duration wraps time.Duration so YAML values may be written in Go duration
// syntax ("30s", "5m").
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

// Std returns the value as a time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// Config is the root configuration structure for Callwarden.
// It is typically loaded from a YAML file using [Load] or [LoadFromReader].
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Providers  ProvidersConfig  `yaml:"providers"`
	Pipeline   PipelineConfig   `yaml:"pipeline"`
	Resilience ResilienceConfig `yaml:"resilience"`
}

// ServerConfig holds network and logging settings for the Callwarden server.
type ServerConfig struct {
	// ListenAddr is the TCP address the server listens on (e.g., ":8080").
	ListenAddr string `yaml:"listen_addr"`

	// LogLevel controls verbosity.
	LogLevel LogLevel `yaml:"log_level"`

	// TLS configures TLS for the server. When nil, the server runs plain HTTP.
	TLS *TLSConfig `yaml:"tls"`
}

// TLSConfig holds TLS certificate paths for enabling HTTPS.
type TLSConfig struct {
	// CertFile is the path to the PEM-encoded TLS certificate.
	CertFile string `yaml:"cert_file"`

	// KeyFile is the path to the PEM-encoded TLS private key.
	KeyFile string `yaml:"key_file"`
}

// ProvidersConfig declares which provider implementation to use for each
// external call. Each entry selects a named provider registered in the
// [Registry].
type ProvidersConfig struct {
	STT      ProviderEntry `yaml:"stt"`
	Analysis ProviderEntry `yaml:"analysis"`
}

// ProviderEntry is the common configuration block shared by all provider
// types. The Name field is used to look up the constructor in the [Registry].
type ProviderEntry struct {
	// Name selects the registered provider implementation
	// (e.g., "elevenlabs", "openai").
	Name string `yaml:"name"`

	// APIKey is the authentication key for the provider's API if any.
	APIKey string `yaml:"api_key"`

	// BaseURL overrides the provider's default API endpoint.
	// Leave empty to use the provider's built-in default.
	BaseURL string `yaml:"base_url"`

	// Model selects a specific model within the provider
	// (e.g., "scribe_v2", "gpt-4o-mini").
	Model string `yaml:"model"`

	// Options holds provider-specific configuration values not covered by
	// the standard fields above (e.g., "language" for STT, "temperature"
	// for analysis). Values may be strings, numbers, or booleans.
	Options map[string]any `yaml:"options"`

	// Fallbacks lists additional providers tried, in order, when this one
	// fails or its circuit breaker is open.
	Fallbacks []ProviderEntry `yaml:"fallbacks"`
}

// PipelineConfig tunes the chunk pipeline and the per-session context window.
type PipelineConfig struct {
	// WindowMaxAge is how long a transcript fragment stays relevant.
	// Defaults to 30 seconds.
	WindowMaxAge Duration `yaml:"window_max_age"`

	// WindowMaxCount caps the fragments kept per session. Defaults to 10.
	WindowMaxCount int `yaml:"window_max_count"`

	// SessionTTL is how long an idle session survives before the background
	// sweep removes it. Defaults to 5 minutes.
	SessionTTL Duration `yaml:"session_ttl"`

	// SweepInterval is how often the idle-session sweep runs. Defaults to
	// 1 minute.
	SweepInterval Duration `yaml:"sweep_interval"`

	// STTTimeout bounds each transcription call. Defaults to 15 seconds.
	STTTimeout Duration `yaml:"stt_timeout"`

	// AnalysisTimeout bounds each analysis call. Defaults to 20 seconds.
	AnalysisTimeout Duration `yaml:"analysis_timeout"`
}

// ResilienceConfig tunes the per-provider circuit breakers.
type ResilienceConfig struct {
	// MaxFailures is the consecutive-failure count that opens a breaker.
	// Zero keeps the built-in default.
	MaxFailures int `yaml:"max_failures"`

	// ResetTimeout is how long a breaker stays open before probing.
	// Zero keeps the built-in default.
	ResetTimeout Duration `yaml:"reset_timeout"`

	// HalfOpenMax is the number of probe calls allowed in half-open state.
	// Zero keeps the built-in default.
	HalfOpenMax int `yaml:"half_open_max"`
}

// Pipeline defaults applied by the loader when the YAML leaves a field unset.
const (
	DefaultWindowMaxAge    = 30 * time.Second
	DefaultWindowMaxCount  = 10
	DefaultSessionTTL      = 5 * time.Minute
	DefaultSweepInterval   = time.Minute
	DefaultSTTTimeout      = 15 * time.Second
	DefaultAnalysisTimeout = 20 * time.Second
)

// applyDefaults fills in defaults for unset fields.
func applyDefaults(cfg *Config) {
	if cfg.Server.ListenAddr == "" {
		cfg.Server.ListenAddr = ":8080"
	}
	if cfg.Server.LogLevel == "" {
		cfg.Server.LogLevel = LogInfo
	}
	p := &cfg.Pipeline
	if p.WindowMaxAge == 0 {
		p.WindowMaxAge = Duration(DefaultWindowMaxAge)
	}
	if p.WindowMaxCount == 0 {
		p.WindowMaxCount = DefaultWindowMaxCount
	}
	if p.SessionTTL == 0 {
		p.SessionTTL = Duration(DefaultSessionTTL)
	}
	if p.SweepInterval == 0 {
		p.SweepInterval = Duration(DefaultSweepInterval)
	}
	if p.STTTimeout == 0 {
		p.STTTimeout = Duration(DefaultSTTTimeout)
	}
	if p.AnalysisTimeout == 0 {
		p.AnalysisTimeout = Duration(DefaultAnalysisTimeout)
	}
}
