package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/afero"

	"github.com/psantana5/kiosk-supervisor/internal/config"
	"github.com/psantana5/kiosk-supervisor/internal/logging"
)

func testConfig(t *testing.T) (*config.Config, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("log:\n  level: error\n"), 0644); err != nil {
		t.Fatalf("Failed to write config: %v", err)
	}
	c, err := config.Load(path)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}
	return c, path
}

func TestBuildPreview(t *testing.T) {
	c, _ := testConfig(t)
	fs := afero.NewMemMapFs()
	afero.WriteFile(fs, "/opt/kiosk/.env", []byte("OTHER=1\nSERVER_IP=192.168.1.50\r\n"), 0644)

	p := buildPreview(fs, c, logging.Discard())

	if p.Launch.Value != "192.168.1.50" {
		t.Errorf("Expected trimmed value, got %q", p.Launch.Value)
	}
	if p.Argv[0] != "/usr/bin/chromium-browser" {
		t.Errorf("Expected binary first, got %q", p.Argv[0])
	}
	if last := p.Argv[len(p.Argv)-1]; last != "file:///opt/kiosk/index.html#192.168.1.50" {
		t.Errorf("Expected target URL last, got %q", last)
	}
}

func TestBuildPreviewMissingSettings(t *testing.T) {
	c, _ := testConfig(t)

	p := buildPreview(afero.NewMemMapFs(), c, logging.Discard())

	if p.Launch.Value != "" {
		t.Errorf("Expected empty value, got %q", p.Launch.Value)
	}
	if !strings.HasSuffix(p.Launch.TargetURL, "#") {
		t.Errorf("Expected trailing '#', got %q", p.Launch.TargetURL)
	}
}

func TestWritePreview(t *testing.T) {
	c, _ := testConfig(t)
	fs := afero.NewMemMapFs()
	afero.WriteFile(fs, "/opt/kiosk/.env", []byte("SERVER_IP=10.0.0.5\n"), 0644)
	p := buildPreview(fs, c, logging.Discard())

	t.Run("json", func(t *testing.T) {
		var buf bytes.Buffer
		if err := writePreview(&buf, p, "json"); err != nil {
			t.Fatalf("Unexpected error: %v", err)
		}
		var decoded Preview
		if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil {
			t.Fatalf("Invalid JSON: %v", err)
		}
		if decoded.Launch.TargetURL != p.Launch.TargetURL || len(decoded.Argv) != len(p.Argv) {
			t.Errorf("JSON preview mismatch: %+v", decoded)
		}
	})

	t.Run("table", func(t *testing.T) {
		var buf bytes.Buffer
		if err := writePreview(&buf, p, "table"); err != nil {
			t.Fatalf("Unexpected error: %v", err)
		}
		out := buf.String()
		for _, want := range []string{"file:///opt/kiosk/index.html#10.0.0.5", "--user-data-dir=/tmp/kiosk-profile", "--kiosk"} {
			if !strings.Contains(out, want) {
				t.Errorf("Expected %q in table output:\n%s", want, out)
			}
		}
	})

	t.Run("unknown", func(t *testing.T) {
		if err := writePreview(&bytes.Buffer{}, p, "xml"); err == nil {
			t.Error("Expected error for unknown format")
		}
	})
}

func TestExecuteSubcommands(t *testing.T) {
	_, path := testConfig(t)

	tests := []struct {
		args []string
		want string
	}{
		{[]string{"config", "example"}, "profile_dir: /tmp/kiosk-profile"},
		{[]string{"config", "show"}, "# source: " + path},
		{[]string{"version"}, "kiosk dev"},
	}

	for _, tt := range tests {
		t.Run(strings.Join(tt.args, " "), func(t *testing.T) {
			var buf bytes.Buffer
			rootCmd.SetOut(&buf)
			rootCmd.SetArgs(append([]string{"--config", path}, tt.args...))
			defer rootCmd.SetOut(nil)

			if err := Execute(context.Background()); err != nil {
				t.Fatalf("Unexpected error: %v", err)
			}
			if !strings.Contains(buf.String(), tt.want) {
				t.Errorf("Expected %q in output:\n%s", tt.want, buf.String())
			}
		})
	}
}

func TestExecuteRunsSupervisor(t *testing.T) {
	dir := t.TempDir()
	launches := filepath.Join(dir, "launches.log")
	browser := filepath.Join(dir, "browser.sh")
	if err := os.WriteFile(browser, []byte("#!/bin/sh\necho \"$@\" >> "+launches+"\n"), 0755); err != nil {
		t.Fatalf("Failed to write browser stub: %v", err)
	}
	settings := filepath.Join(dir, ".env")
	if err := os.WriteFile(settings, []byte("SERVER_IP=10.1.2.3\n"), 0644); err != nil {
		t.Fatalf("Failed to write settings: %v", err)
	}
	path := filepath.Join(dir, "config.yaml")
	content := "settings:\n  file: " + settings + "\n" +
		"browser:\n  binary: " + browser + "\n  page: /opt/kiosk/index.html\n  profile_dir: " + filepath.Join(dir, "profile") + "\n" +
		"supervisor:\n  cooldown: 10ms\n" +
		"log:\n  level: error\n"
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write config: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		deadline := time.Now().Add(5 * time.Second)
		for time.Now().Before(deadline) {
			data, _ := os.ReadFile(launches)
			if strings.Count(string(data), "\n") >= 2 {
				break
			}
			time.Sleep(10 * time.Millisecond)
		}
		cancel()
	}()

	rootCmd.SetArgs([]string{"--config", path})
	if err := Execute(ctx); err != nil {
		t.Fatalf("Expected clean exit on cancel, got %v", err)
	}

	data, err := os.ReadFile(launches)
	if err != nil {
		t.Fatalf("Browser was never launched: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) < 2 {
		t.Fatalf("Expected the browser to be relaunched, got %d launch(es)", len(lines))
	}
	for _, line := range lines {
		if !strings.HasSuffix(line, "file:///opt/kiosk/index.html#10.1.2.3") {
			t.Errorf("Expected target URL last, got %q", line)
		}
		if !strings.Contains(line, "--kiosk") {
			t.Errorf("Expected kiosk flags, got %q", line)
		}
	}
}
