package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"gopkg.in/yaml.v3"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write config: %v", err)
	}
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, ""))
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	if cfg.Settings.File != "/opt/kiosk/.env" || cfg.Settings.Key != "SERVER_IP" {
		t.Errorf("Unexpected settings defaults: %+v", cfg.Settings)
	}
	if cfg.Browser.Binary != "/usr/bin/chromium-browser" {
		t.Errorf("Expected chromium default, got %q", cfg.Browser.Binary)
	}
	if cfg.Browser.Page != "/opt/kiosk/index.html" {
		t.Errorf("Expected default page, got %q", cfg.Browser.Page)
	}
	if cfg.Browser.ProfileDir != "/tmp/kiosk-profile" {
		t.Errorf("Expected default profile dir, got %q", cfg.Browser.ProfileDir)
	}
	if cfg.Supervisor.Cooldown != 2*time.Second {
		t.Errorf("Expected 2s cooldown, got %v", cfg.Supervisor.Cooldown)
	}
	if cfg.Supervisor.Backoff != "fixed" {
		t.Errorf("Expected fixed backoff, got %q", cfg.Supervisor.Backoff)
	}
	if cfg.Browser.StopTimeout != 5*time.Second {
		t.Errorf("Expected 5s stop timeout, got %v", cfg.Browser.StopTimeout)
	}
	if cfg.Metrics.Addr != "" || cfg.Tracing.Endpoint != "" {
		t.Error("Expected metrics and tracing disabled by default")
	}
	if cfg.File == "" {
		t.Error("Expected File to record the config path")
	}
}

func TestLoadFileAndEnvOverride(t *testing.T) {
	path := writeConfig(t, `
browser:
  binary: /usr/bin/chromium
  extra_flags:
    - --force-device-scale-factor=1.5
supervisor:
  cooldown: 3s
  backoff: exponential
  max_cooldown: 30s
`)
	t.Setenv("KIOSK_BROWSER_BINARY", "/snap/bin/chromium")
	t.Setenv("KIOSK_SETTINGS_KEY", "BACKEND_HOST")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	if cfg.Browser.Binary != "/snap/bin/chromium" {
		t.Errorf("Expected env to win over file, got %q", cfg.Browser.Binary)
	}
	if cfg.Settings.Key != "BACKEND_HOST" {
		t.Errorf("Expected env key override, got %q", cfg.Settings.Key)
	}
	if cfg.Supervisor.Cooldown != 3*time.Second || cfg.Supervisor.MaxCooldown != 30*time.Second {
		t.Errorf("Unexpected cooldowns: %+v", cfg.Supervisor)
	}
	if cfg.Supervisor.Backoff != "exponential" {
		t.Errorf("Expected exponential backoff, got %q", cfg.Supervisor.Backoff)
	}
	if len(cfg.Browser.ExtraFlags) != 1 || cfg.Browser.ExtraFlags[0] != "--force-device-scale-factor=1.5" {
		t.Errorf("Unexpected extra flags: %v", cfg.Browser.ExtraFlags)
	}
}

func TestLoadMissingExplicitFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err == nil {
		t.Fatal("Expected error for missing explicit config file")
	}
}

func TestLoadMalformedFile(t *testing.T) {
	_, err := Load(writeConfig(t, "browser: [unterminated"))
	if err == nil {
		t.Fatal("Expected error for malformed config")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		wantErr string
	}{
		{"root profile dir", "browser:\n  profile_dir: /\n", "profile_dir"},
		{"empty binary", "browser:\n  binary: \"\"\n", "browser.binary"},
		{"zero cooldown", "supervisor:\n  cooldown: 0s\n", "cooldown"},
		{"unknown backoff", "supervisor:\n  backoff: linear\n", "backoff"},
		{"nice out of range", "browser:\n  nice: 40\n", "nice"},
		{"oom out of range", "browser:\n  oom_score_adj: 2000\n", "oom_score_adj"},
		{"negative memory limit", "browser:\n  memory_limit_mb: -1\n", "memory_limit_mb"},
		{"bad log format", "log:\n  format: xml\n", "log.format"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.yaml))
			if err == nil {
				t.Fatal("Expected validation error")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Expected error mentioning %q, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestLoadNormalizesLogSettings(t *testing.T) {
	cfg, err := Load(writeConfig(t, "log:\n  level: DEBUG\n  format: JSON\n"))
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if cfg.Log.Format != "json" {
		t.Errorf("Expected format json, got %q", cfg.Log.Format)
	}
	if cfg.Log.Level != "debug" {
		t.Errorf("Expected level debug, got %q", cfg.Log.Level)
	}
}

func TestExampleConfigMatchesDefaults(t *testing.T) {
	example, err := Load(writeConfig(t, ExampleConfig))
	if err != nil {
		t.Fatalf("Example config does not load: %v", err)
	}
	defaults, err := Load(writeConfig(t, ""))
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	got, _ := example.YAML()
	want, _ := defaults.YAML()
	if got != want {
		t.Errorf("Example config drifted from defaults\nexample:\n%s\ndefaults:\n%s", got, want)
	}
}

func TestYAMLRoundTrip(t *testing.T) {
	cfg, err := Load(writeConfig(t, ""))
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	out, err := cfg.YAML()
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	for _, want := range []string{"cooldown: 2s", "stop_timeout: 5s", "max_cooldown: 1m0s", "stable_after: 30s"} {
		if !strings.Contains(out, want) {
			t.Errorf("Expected %q in rendered config, got:\n%s", want, out)
		}
	}

	var decoded Config
	if err := yaml.Unmarshal([]byte(out), &decoded); err != nil {
		t.Fatalf("Rendered YAML does not parse: %v", err)
	}
	if decoded.Supervisor.Cooldown != cfg.Supervisor.Cooldown || decoded.Browser.StopTimeout != cfg.Browser.StopTimeout {
		t.Errorf("Durations did not survive rendering: %+v %+v", decoded.Supervisor, decoded.Browser)
	}
	if decoded.Browser.ProfileDir != cfg.Browser.ProfileDir {
		t.Errorf("Expected profile dir %q, got %q", cfg.Browser.ProfileDir, decoded.Browser.ProfileDir)
	}
}
