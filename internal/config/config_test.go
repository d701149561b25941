package config_test

import (
	"testing"
	"time"

	"github.com/callwarden/callwarden/internal/config"
	"gopkg.in/yaml.v3"
)

func TestLogLevel_IsValid(t *testing.T) {
	valid := []config.LogLevel{config.LogDebug, config.LogInfo, config.LogWarn, config.LogError}
	for _, l := range valid {
		if !l.IsValid() {
			t.Errorf("%q should be valid", l)
		}
	}
	for _, l := range []config.LogLevel{"", "trace", "INFO", "verbose"} {
		if l.IsValid() {
			t.Errorf("%q should be invalid", l)
		}
	}
}

func TestDuration_Roundtrip(t *testing.T) {
	type doc struct {
		Timeout config.Duration `yaml:"timeout"`
	}

	var d doc
	if err := yaml.Unmarshal([]byte("timeout: 90s\n"), &d); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if d.Timeout.Std() != 90*time.Second {
		t.Errorf("Std() = %s, want 90s", d.Timeout.Std())
	}

	out, err := yaml.Marshal(d)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(out) != "timeout: 1m30s\n" {
		t.Errorf("marshal output = %q", out)
	}
}

func TestDuration_RejectsBareNumber(t *testing.T) {
	type doc struct {
		Timeout config.Duration `yaml:"timeout"`
	}
	var d doc
	if err := yaml.Unmarshal([]byte("timeout: 90\n"), &d); err == nil {
		t.Fatal("expected error for bare number without unit, got nil")
	}
}
