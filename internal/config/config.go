// Package config loads the supervisor's own settings. These describe how to
// supervise (which browser, which page, how long to cool down); the value
// handed to the page comes from the settings file and is read elsewhere.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/psantana5/kiosk-supervisor/internal/supervisor"
)

// EnvPrefix is prepended to every environment override, e.g. KIOSK_BROWSER_BINARY
const EnvPrefix = "KIOSK"

// Config holds the supervisor configuration
type Config struct {
	Settings   SettingsConfig   `mapstructure:"settings" yaml:"settings"`
	Browser    BrowserConfig    `mapstructure:"browser" yaml:"browser"`
	Supervisor SupervisorConfig `mapstructure:"supervisor" yaml:"supervisor"`
	Log        LogConfig        `mapstructure:"log" yaml:"log"`
	Metrics    MetricsConfig    `mapstructure:"metrics" yaml:"metrics"`
	Tracing    TracingConfig    `mapstructure:"tracing" yaml:"tracing"`

	// File is the config file that was read, empty when running on defaults
	File string `mapstructure:"-" yaml:"-"`
}

// SettingsConfig locates the KEY=VALUE store
type SettingsConfig struct {
	File string `mapstructure:"file" yaml:"file"`
	Key  string `mapstructure:"key" yaml:"key"`
}

// BrowserConfig describes the supervised child
type BrowserConfig struct {
	Binary        string        `mapstructure:"binary" yaml:"binary"`
	Page          string        `mapstructure:"page" yaml:"page"`
	ProfileDir    string        `mapstructure:"profile_dir" yaml:"profile_dir"`
	ExtraFlags    []string      `mapstructure:"extra_flags" yaml:"extra_flags"`
	Nice          int           `mapstructure:"nice" yaml:"nice"`
	OOMScoreAdj   int           `mapstructure:"oom_score_adj" yaml:"oom_score_adj"`
	MemoryLimitMB int64         `mapstructure:"memory_limit_mb" yaml:"memory_limit_mb"`
	StopTimeout   time.Duration `mapstructure:"stop_timeout" yaml:"stop_timeout"`
}

// SupervisorConfig controls the pause between launches
type SupervisorConfig struct {
	Cooldown    time.Duration `mapstructure:"cooldown" yaml:"cooldown"`
	Backoff     string        `mapstructure:"backoff" yaml:"backoff"`
	MaxCooldown time.Duration `mapstructure:"max_cooldown" yaml:"max_cooldown"`
	StableAfter time.Duration `mapstructure:"stable_after" yaml:"stable_after"`
	HistorySize int           `mapstructure:"history_size" yaml:"history_size"`
}

// LogConfig selects level, format and an optional log directory
type LogConfig struct {
	Level  string `mapstructure:"level" yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"`
	Dir    string `mapstructure:"dir" yaml:"dir"`
}

// MetricsConfig enables the local HTTP endpoint when Addr is set
type MetricsConfig struct {
	Addr string `mapstructure:"addr" yaml:"addr"`
}

// TracingConfig enables OTLP export when Endpoint is set
type TracingConfig struct {
	Endpoint string `mapstructure:"endpoint" yaml:"endpoint"`
	Insecure bool   `mapstructure:"insecure" yaml:"insecure"`
}

// SetDefaults registers every key with its default on v.
// Keys must be known to viper for env overrides to reach Unmarshal.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("settings.file", "/opt/kiosk/.env")
	v.SetDefault("settings.key", "SERVER_IP")

	v.SetDefault("browser.binary", "/usr/bin/chromium-browser")
	v.SetDefault("browser.page", "/opt/kiosk/index.html")
	v.SetDefault("browser.profile_dir", "/tmp/kiosk-profile")
	v.SetDefault("browser.extra_flags", []string{})
	v.SetDefault("browser.nice", 0)
	v.SetDefault("browser.oom_score_adj", 0)
	v.SetDefault("browser.memory_limit_mb", 0)
	v.SetDefault("browser.stop_timeout", 5*time.Second)

	v.SetDefault("supervisor.cooldown", supervisor.DefaultCooldown)
	v.SetDefault("supervisor.backoff", supervisor.StrategyFixed)
	v.SetDefault("supervisor.max_cooldown", time.Minute)
	v.SetDefault("supervisor.stable_after", 30*time.Second)
	v.SetDefault("supervisor.history_size", 50)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
	v.SetDefault("log.dir", "")

	v.SetDefault("metrics.addr", "")

	v.SetDefault("tracing.endpoint", "")
	v.SetDefault("tracing.insecure", true)
}

// New returns a viper instance with defaults, search paths and env binding set
func New(file string) *viper.Viper {
	v := viper.New()
	SetDefaults(v)

	if file != "" {
		v.SetConfigFile(file)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("/etc/kiosk")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".kiosk"))
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	return v
}

// Load reads the config file (if any) and env overrides and validates the result.
// A missing file is fine when none was named explicitly.
func Load(file string) (*Config, error) {
	return FromViper(New(file))
}

// FromViper reads and decodes an already prepared viper instance
func FromViper(v *viper.Viper) (*Config, error) {
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	cfg.File = v.ConfigFileUsed()
	cfg.Log.Level = strings.ToLower(strings.TrimSpace(cfg.Log.Level))
	cfg.Log.Format = strings.ToLower(strings.TrimSpace(cfg.Log.Format))

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}

// Validate checks values that would make the loop misbehave.
// The settings value itself is never validated.
func (c *Config) Validate() error {
	if c.Settings.File == "" {
		return fmt.Errorf("settings.file is required")
	}
	if c.Settings.Key == "" {
		return fmt.Errorf("settings.key is required")
	}
	if c.Browser.Binary == "" {
		return fmt.Errorf("browser.binary is required")
	}
	if c.Browser.Page == "" {
		return fmt.Errorf("browser.page is required")
	}
	if dir := filepath.Clean(c.Browser.ProfileDir); c.Browser.ProfileDir == "" || dir == "/" || dir == "." {
		return fmt.Errorf("browser.profile_dir %q cannot be wiped safely", c.Browser.ProfileDir)
	}
	if c.Browser.Nice < -20 || c.Browser.Nice > 19 {
		return fmt.Errorf("browser.nice must be between -20 and 19")
	}
	if c.Browser.OOMScoreAdj < -1000 || c.Browser.OOMScoreAdj > 1000 {
		return fmt.Errorf("browser.oom_score_adj must be between -1000 and 1000")
	}
	if c.Browser.MemoryLimitMB < 0 {
		return fmt.Errorf("browser.memory_limit_mb must not be negative")
	}
	if c.Browser.StopTimeout <= 0 {
		return fmt.Errorf("browser.stop_timeout must be positive")
	}
	if c.Supervisor.Cooldown <= 0 {
		return fmt.Errorf("supervisor.cooldown must be positive")
	}
	if _, err := supervisor.NewCooldown(c.Supervisor.Backoff, c.Supervisor.Cooldown, c.Supervisor.MaxCooldown); err != nil {
		return fmt.Errorf("supervisor.backoff: %w", err)
	}
	if c.Supervisor.StableAfter < 0 {
		return fmt.Errorf("supervisor.stable_after must not be negative")
	}
	switch strings.ToLower(c.Log.Format) {
	case "text", "json":
	default:
		return fmt.Errorf("log.format must be text or json, got %q", c.Log.Format)
	}
	return nil
}

// YAML renders the effective configuration
func (c *Config) YAML() (string, error) {
	out, err := yaml.Marshal(c)
	if err != nil {
		return "", fmt.Errorf("failed to encode config: %w", err)
	}
	return string(out), nil
}

// MarshalYAML renders durations as "5s" rather than nanoseconds
func (b BrowserConfig) MarshalYAML() (interface{}, error) {
	return struct {
		Binary        string   `yaml:"binary"`
		Page          string   `yaml:"page"`
		ProfileDir    string   `yaml:"profile_dir"`
		ExtraFlags    []string `yaml:"extra_flags"`
		Nice          int      `yaml:"nice"`
		OOMScoreAdj   int      `yaml:"oom_score_adj"`
		MemoryLimitMB int64    `yaml:"memory_limit_mb"`
		StopTimeout   string   `yaml:"stop_timeout"`
	}{
		Binary:        b.Binary,
		Page:          b.Page,
		ProfileDir:    b.ProfileDir,
		ExtraFlags:    b.ExtraFlags,
		Nice:          b.Nice,
		OOMScoreAdj:   b.OOMScoreAdj,
		MemoryLimitMB: b.MemoryLimitMB,
		StopTimeout:   b.StopTimeout.String(),
	}, nil
}

// MarshalYAML renders durations as "2s" rather than nanoseconds
func (s SupervisorConfig) MarshalYAML() (interface{}, error) {
	return struct {
		Cooldown    string `yaml:"cooldown"`
		Backoff     string `yaml:"backoff"`
		MaxCooldown string `yaml:"max_cooldown"`
		StableAfter string `yaml:"stable_after"`
		HistorySize int    `yaml:"history_size"`
	}{
		Cooldown:    s.Cooldown.String(),
		Backoff:     s.Backoff,
		MaxCooldown: s.MaxCooldown.String(),
		StableAfter: s.StableAfter.String(),
		HistorySize: s.HistorySize,
	}, nil
}

// ExampleConfig is a commented starting point for /etc/kiosk/config.yaml
const ExampleConfig = `# Kiosk supervisor configuration
# Every key can be overridden from the environment, e.g. KIOSK_BROWSER_BINARY.

# KEY=VALUE store holding the value passed to the page
settings:
  file: /opt/kiosk/.env
  key: SERVER_IP

browser:
  binary: /usr/bin/chromium-browser
  page: /opt/kiosk/index.html
  profile_dir: /tmp/kiosk-profile   # wiped before every launch
  extra_flags: []                   # appended after the built-in kiosk flags
  nice: 0                           # -20..19
  oom_score_adj: 0                  # -1000..1000
  memory_limit_mb: 0                # cgroup v2 cap for the browser tree, 0 = none
  stop_timeout: "5s"                # SIGTERM grace period before SIGKILL

supervisor:
  cooldown: "2s"
  backoff: fixed          # fixed or exponential
  max_cooldown: "1m"      # cap for exponential
  stable_after: "30s"     # uptime that resets exponential backoff
  history_size: 50        # exits kept for /status

log:
  level: info             # debug, info, warn, error
  format: text            # text or json
  dir: ""                 # also write to <dir>/kiosk.log when set

metrics:
  addr: ""                # e.g. "127.0.0.1:9102" serves /metrics, /healthz, /status

tracing:
  endpoint: ""            # OTLP/HTTP collector host:port, empty disables
  insecure: true
`
