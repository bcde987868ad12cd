package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

// ModeEnv overrides General.Mode when set
const ModeEnv = "VACANCY_MODE"

// Config holds all application configuration
type Config struct {
	General       GeneralConfig       `toml:"general"`
	Credentials   CredentialsConfig   `toml:"credentials"`
	Browser       BrowserConfig       `toml:"browser"`
	Pacing        PacingConfig        `toml:"pacing"`
	Web           WebConfig           `toml:"web"`
	Notifications NotificationsConfig `toml:"notifications"`
	Extraction    ExtractionConfig    `toml:"extraction"`
	Schedules     []ScheduleEntry     `toml:"schedule"`
}

// GeneralConfig holds general settings
type GeneralConfig struct {
	Mode         string `toml:"mode"` // "live" or "fixture"
	DatabasePath string `toml:"database_path"`
}

// CredentialsConfig locates the site credentials file
type CredentialsConfig struct {
	Dir   string `toml:"dir"`
	Watch bool   `toml:"watch"`
}

// BrowserConfig holds headless browser settings
type BrowserConfig struct {
	Headless          bool   `toml:"headless"`
	UserAgent         string `toml:"user_agent"`
	ExecPath          string `toml:"exec_path"`
	NavigateTimeoutMS int    `toml:"navigate_timeout_ms"`
	ActionTimeoutMS   int    `toml:"action_timeout_ms"`
}

// PacingConfig holds delays between pipeline steps
type PacingConfig struct {
	StepDelayMS      int `toml:"step_delay_ms"`
	UploadDelayMS    int `toml:"upload_delay_ms"`
	SampleIntervalMS int `toml:"sample_interval_ms"`
	SettleMS         int `toml:"settle_ms"`
}

// WebConfig holds HTTP and WebSocket server settings
type WebConfig struct {
	Port int    `toml:"port"`
	Host string `toml:"host"`
}

// NotificationsConfig holds notification settings
type NotificationsConfig struct {
	SlackWebhook string `toml:"slack_webhook"`
}

// ExtractionConfig points at the document extraction service
type ExtractionConfig struct {
	Endpoint  string `toml:"endpoint"`
	APIKeyEnv string `toml:"api_key_env"`
}

// ScheduleEntry is a cron-triggered verification of a task file
type ScheduleEntry struct {
	Name     string `toml:"name"`
	Cron     string `toml:"cron"`
	TaskFile string `toml:"task_file"`
}

// Default returns a Config with sensible defaults
func Default() *Config {
	home, _ := os.UserHomeDir()
	return &Config{
		General: GeneralConfig{
			Mode:         "live",
			DatabasePath: filepath.Join(home, ".vacancy-verifier", "verdicts.db"),
		},
		Credentials: CredentialsConfig{
			Dir:   filepath.Join(home, ".vacancy-verifier", "credentials"),
			Watch: true,
		},
		Browser: BrowserConfig{
			Headless:          true,
			NavigateTimeoutMS: 30000,
			ActionTimeoutMS:   15000,
		},
		Pacing: PacingConfig{
			StepDelayMS:      1000,
			UploadDelayMS:    350,
			SampleIntervalMS: 1000,
			SettleMS:         1500,
		},
		Web: WebConfig{
			Port: 8080,
			Host: "127.0.0.1",
		},
		Extraction: ExtractionConfig{
			APIKeyEnv: "VACANCY_EXTRACT_API_KEY",
		},
	}
}

// Load reads configuration from a TOML file, falling back to defaults.
// ModeEnv overrides the configured mode.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return nil, err
	}
	if err == nil {
		if err := toml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing %s: %w", path, err)
		}
	}

	if mode := os.Getenv(ModeEnv); mode != "" {
		cfg.General.Mode = mode
	}
	cfg.General.Mode = strings.ToLower(strings.TrimSpace(cfg.General.Mode))

	// Expand paths
	cfg.General.DatabasePath = ExpandPath(cfg.General.DatabasePath)
	cfg.Credentials.Dir = ExpandPath(cfg.Credentials.Dir)
	for i := range cfg.Schedules {
		cfg.Schedules[i].TaskFile = ExpandPath(cfg.Schedules[i].TaskFile)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks values that would otherwise fail late
func (c *Config) Validate() error {
	switch c.General.Mode {
	case "live", "fixture":
	default:
		return fmt.Errorf("general.mode must be live or fixture, got %q", c.General.Mode)
	}
	for i, s := range c.Schedules {
		if s.Name == "" || s.Cron == "" || s.TaskFile == "" {
			return fmt.Errorf("schedule %d: name, cron and task_file are required", i)
		}
	}
	return nil
}

// ExtractionAPIKey reads the API key from the configured environment variable
func (c *Config) ExtractionAPIKey() string {
	if c.Extraction.APIKeyEnv == "" {
		return ""
	}
	return os.Getenv(c.Extraction.APIKeyEnv)
}

// Millis converts a millisecond setting to a duration
func Millis(ms int) time.Duration {
	return time.Duration(ms) * time.Millisecond
}

// ExpandPath expands ~ to the user's home directory
func ExpandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, _ := os.UserHomeDir()
		return filepath.Join(home, path[2:])
	}
	return path
}

// DefaultConfigPath returns the default config file location
func DefaultConfigPath() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config", "vacancy-verifier", "config.toml")
}
