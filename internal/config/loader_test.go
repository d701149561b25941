package config_test

import (
	"strings"
	"testing"
	"time"

	"github.com/callwarden/callwarden/internal/config"
)

const minimalYAML = `
providers:
  stt:
    name: elevenlabs
    api_key: xi-test
  analysis:
    name: openai
    api_key: sk-test
    model: gpt-4o-mini
`

const fullYAML = `
server:
  listen_addr: ":9090"
  log_level: debug
providers:
  stt:
    name: elevenlabs
    api_key: xi-test
    model: scribe_v2
    options:
      language: en
    fallbacks:
      - name: whisper
        base_url: "http://localhost:8178"
  analysis:
    name: openai
    api_key: sk-test
    model: gpt-4o-mini
    options:
      temperature: 0.1
    fallbacks:
      - name: gemini
        api_key: g-test
        model: gemini-2.0-flash
pipeline:
  window_max_age: 45s
  window_max_count: 20
  session_ttl: 10m
  sweep_interval: 30s
  stt_timeout: 5s
  analysis_timeout: 8s
resilience:
  max_failures: 3
  reset_timeout: 10s
  half_open_max: 2
`

func TestLoadFromReader_Minimal(t *testing.T) {
	cfg, err := config.LoadFromReader(strings.NewReader(minimalYAML))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Server.ListenAddr != ":8080" {
		t.Errorf("listen_addr default: got %q, want %q", cfg.Server.ListenAddr, ":8080")
	}
	if cfg.Server.LogLevel != config.LogInfo {
		t.Errorf("log_level default: got %q, want %q", cfg.Server.LogLevel, config.LogInfo)
	}
	if got := cfg.Pipeline.WindowMaxAge.Std(); got != config.DefaultWindowMaxAge {
		t.Errorf("window_max_age default: got %s, want %s", got, config.DefaultWindowMaxAge)
	}
	if cfg.Pipeline.WindowMaxCount != config.DefaultWindowMaxCount {
		t.Errorf("window_max_count default: got %d, want %d", cfg.Pipeline.WindowMaxCount, config.DefaultWindowMaxCount)
	}
	if got := cfg.Pipeline.SessionTTL.Std(); got != config.DefaultSessionTTL {
		t.Errorf("session_ttl default: got %s, want %s", got, config.DefaultSessionTTL)
	}
}

func TestLoadFromReader_Full(t *testing.T) {
	cfg, err := config.LoadFromReader(strings.NewReader(fullYAML))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Server.ListenAddr != ":9090" {
		t.Errorf("listen_addr: got %q", cfg.Server.ListenAddr)
	}
	if cfg.Providers.STT.Name != "elevenlabs" {
		t.Errorf("stt name: got %q", cfg.Providers.STT.Name)
	}
	if len(cfg.Providers.STT.Fallbacks) != 1 || cfg.Providers.STT.Fallbacks[0].Name != "whisper" {
		t.Errorf("stt fallbacks: got %+v", cfg.Providers.STT.Fallbacks)
	}
	if cfg.Providers.Analysis.Options["temperature"] != 0.1 {
		t.Errorf("analysis temperature option: got %v", cfg.Providers.Analysis.Options["temperature"])
	}
	if got := cfg.Pipeline.WindowMaxAge.Std(); got != 45*time.Second {
		t.Errorf("window_max_age: got %s, want 45s", got)
	}
	if cfg.Pipeline.WindowMaxCount != 20 {
		t.Errorf("window_max_count: got %d, want 20", cfg.Pipeline.WindowMaxCount)
	}
	if cfg.Resilience.MaxFailures != 3 {
		t.Errorf("max_failures: got %d, want 3", cfg.Resilience.MaxFailures)
	}
	if got := cfg.Resilience.ResetTimeout.Std(); got != 10*time.Second {
		t.Errorf("reset_timeout: got %s, want 10s", got)
	}
}

func TestLoadFromReader_UnknownFieldRejected(t *testing.T) {
	yaml := minimalYAML + `
transcoder:
  bitrate: 64
`
	if _, err := config.LoadFromReader(strings.NewReader(yaml)); err == nil {
		t.Fatal("expected error for unknown top-level field, got nil")
	}
}

func TestLoadFromReader_InvalidDuration(t *testing.T) {
	yaml := minimalYAML + `
pipeline:
  window_max_age: thirty seconds
`
	if _, err := config.LoadFromReader(strings.NewReader(yaml)); err == nil {
		t.Fatal("expected error for malformed duration, got nil")
	}
}

func TestValidate_Failures(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		want string
	}{
		{
			name: "missing stt provider",
			yaml: `
providers:
  analysis:
    name: openai
`,
			want: "providers.stt.name is required",
		},
		{
			name: "missing analysis provider",
			yaml: `
providers:
  stt:
    name: elevenlabs
`,
			want: "providers.analysis.name is required",
		},
		{
			name: "invalid log level",
			yaml: minimalYAML + `
server:
  log_level: verbose
`,
			want: "server.log_level",
		},
		{
			name: "tls missing key file",
			yaml: minimalYAML + `
server:
  tls:
    cert_file: /etc/callwarden/tls.crt
`,
			want: "server.tls requires both cert_file and key_file",
		},
		{
			name: "unnamed stt fallback",
			yaml: `
providers:
  stt:
    name: elevenlabs
    fallbacks:
      - base_url: "http://localhost:8178"
  analysis:
    name: openai
`,
			want: "providers.stt.fallbacks entries require a name",
		},
		{
			name: "negative max failures",
			yaml: minimalYAML + `
resilience:
  max_failures: -1
`,
			want: "resilience.max_failures",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := config.LoadFromReader(strings.NewReader(tt.yaml))
			if err == nil {
				t.Fatal("expected validation error, got nil")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error %q does not mention %q", err.Error(), tt.want)
			}
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := config.Load("/nonexistent/config.yaml"); err == nil {
		t.Fatal("expected error for missing file, got nil")
	}
}
