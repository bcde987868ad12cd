package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv(ModeEnv, "")
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.toml"))
	if err != nil {
		t.Fatal(err)
	}

	if cfg.General.Mode != "live" {
		t.Errorf("Mode = %q, want live", cfg.General.Mode)
	}
	if cfg.Web.Port != 8080 {
		t.Errorf("Web.Port = %d, want 8080", cfg.Web.Port)
	}
	if cfg.Web.Host != "127.0.0.1" {
		t.Errorf("Web.Host = %q, want 127.0.0.1", cfg.Web.Host)
	}
	if !cfg.Browser.Headless || cfg.Pacing.StepDelayMS != 1000 {
		t.Errorf("unexpected defaults: %+v %+v", cfg.Browser, cfg.Pacing)
	}
}

func TestLoad_FromFile(t *testing.T) {
	t.Setenv(ModeEnv, "")
	dir := t.TempDir()
	configPath := filepath.Join(dir, "config.toml")

	content := `
[general]
mode = "fixture"
database_path = "/data/verdicts.db"

[credentials]
dir = "/data/creds"
watch = false

[pacing]
step_delay_ms = 250

[web]
port = 9000

[[schedule]]
name = "morning"
cron = "0 9 * * 1-5"
task_file = "/data/tasks.yaml"
`
	if err := os.WriteFile(configPath, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatal(err)
	}

	if cfg.General.Mode != "fixture" || cfg.General.DatabasePath != "/data/verdicts.db" {
		t.Errorf("General = %+v", cfg.General)
	}
	if cfg.Credentials.Dir != "/data/creds" || cfg.Credentials.Watch {
		t.Errorf("Credentials = %+v", cfg.Credentials)
	}
	if Millis(cfg.Pacing.StepDelayMS) != 250*time.Millisecond {
		t.Errorf("StepDelayMS = %d", cfg.Pacing.StepDelayMS)
	}
	if cfg.Pacing.UploadDelayMS != 350 {
		t.Errorf("unset values should keep defaults, UploadDelayMS = %d", cfg.Pacing.UploadDelayMS)
	}
	if cfg.Web.Port != 9000 {
		t.Errorf("Web.Port = %d, want 9000", cfg.Web.Port)
	}
	if len(cfg.Schedules) != 1 || cfg.Schedules[0].Cron != "0 9 * * 1-5" {
		t.Errorf("Schedules = %+v", cfg.Schedules)
	}
}

func TestLoad_ModeFromEnv(t *testing.T) {
	t.Setenv(ModeEnv, "FIXTURE")
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.toml"))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.General.Mode != "fixture" {
		t.Errorf("Mode = %q, want fixture", cfg.General.Mode)
	}
}

func TestLoad_Invalid(t *testing.T) {
	t.Setenv(ModeEnv, "")
	tests := []struct {
		name    string
		content string
	}{
		{"bad mode", "[general]\nmode = \"demo\"\n"},
		{"incomplete schedule", "[[schedule]]\nname = \"x\"\n"},
		{"bad toml", "[general\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "config.toml")
			if err := os.WriteFile(path, []byte(tt.content), 0644); err != nil {
				t.Fatal(err)
			}
			if _, err := Load(path); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestExtractionAPIKey(t *testing.T) {
	cfg := Default()
	t.Setenv(cfg.Extraction.APIKeyEnv, "k-123")
	if got := cfg.ExtractionAPIKey(); got != "k-123" {
		t.Errorf("ExtractionAPIKey() = %q", got)
	}
}

func TestExpandPath(t *testing.T) {
	home, _ := os.UserHomeDir()

	tests := []struct {
		input string
		want  string
	}{
		{"~/test", filepath.Join(home, "test")},
		{"/absolute/path", "/absolute/path"},
		{"relative", "relative"},
	}

	for _, tt := range tests {
		got := ExpandPath(tt.input)
		if got != tt.want {
			t.Errorf("ExpandPath(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}
