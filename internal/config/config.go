// Package config handles TOML configuration loading with sensible defaults.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
)

// Config is the top-level configuration for fixwatch.
type Config struct {
	Instance   InstanceConfig   `toml:"instance"`
	Services   []ServiceConfig  `toml:"service"`
	Escalation EscalationConfig `toml:"escalation"`
	Sink       SinkConfig       `toml:"sink"`
	Oracle     OracleConfig     `toml:"oracle"`
	Remediate  RemediateConfig  `toml:"remediate"`
	DB         DBConfig         `toml:"db"`
	Log        LogConfig        `toml:"log"`
}

// InstanceConfig identifies this machine.
type InstanceConfig struct {
	ID string `toml:"id"`
}

// ServiceConfig describes one watched service. LogPath is required; CodeDir
// and CodeExt enable source snippet collection for that service's reports.
type ServiceConfig struct {
	Name    string `toml:"name"`
	LogPath string `toml:"log_path"`
	CodeDir string `toml:"code_dir"`
	CodeExt string `toml:"code_ext"`
	// Suppress is an optional regexp; increments matching it are treated as
	// benign startup chatter and never reported.
	Suppress string `toml:"suppress"`
}

// EscalationConfig holds the rate-limit and crash-loop tunables.
type EscalationConfig struct {
	Cooldown    Duration `toml:"cooldown"`
	CrashWindow Duration `toml:"crash_window"`
	CrashLimit  int      `toml:"crash_limit"`
}

// SinkConfig controls the GitHub issue sink.
type SinkConfig struct {
	Repo     string   `toml:"repo"`      // e.g. "emonet1/index"
	APIURL   string   `toml:"api_url"`   // override for testing
	TokenEnv string   `toml:"token_env"` // env var holding the API token
	Labels   []string `toml:"labels"`
}

// OracleConfig controls the optional code-repair oracle.
type OracleConfig struct {
	Enabled   bool   `toml:"enabled"`
	Model     string `toml:"model"`
	APIKeyEnv string `toml:"api_key_env"`
}

// RemediateConfig controls post-repair side effects (restart, git sync).
type RemediateConfig struct {
	RestartCommand string `toml:"restart_command"` // e.g. "supervisorctl"
	GitSync        bool   `toml:"git_sync"`
	GitUserName    string `toml:"git_user_name"`
	GitUserEmail   string `toml:"git_user_email"`
}

// DBConfig controls the incident audit database.
type DBConfig struct {
	Path      string   `toml:"path"`
	Retention Duration `toml:"retention"`
}

// LogConfig controls logging.
type LogConfig struct {
	Level string `toml:"level"`
}

// Duration wraps time.Duration for TOML string parsing (e.g. "5m", "1h").
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Default returns a Config with sensible defaults.
func Default() *Config {
	hostname, _ := os.Hostname()
	if hostname == "" {
		hostname = "unknown"
	}
	return &Config{
		Instance: InstanceConfig{
			ID: hostname,
		},
		Escalation: EscalationConfig{
			Cooldown:    Duration{10 * time.Minute},
			CrashWindow: Duration{5 * time.Minute},
			CrashLimit:  5,
		},
		Sink: SinkConfig{
			APIURL:   "https://api.github.com",
			TokenEnv: "PERSONAL_ACCESS_TOKEN",
			Labels:   []string{"auto-fix", "security-sanitized"},
		},
		Oracle: OracleConfig{
			Model:     "claude-sonnet-4-5-20250929",
			APIKeyEnv: "ANTHROPIC_API_KEY",
		},
		Remediate: RemediateConfig{
			RestartCommand: "supervisorctl",
		},
		DB: DBConfig{
			Retention: Duration{90 * 24 * time.Hour},
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// DefaultPath returns the default config file path.
func DefaultPath() string {
	configDir, err := os.UserConfigDir()
	if err != nil {
		configDir = filepath.Join(os.Getenv("HOME"), ".config")
	}
	return filepath.Join(configDir, "fixwatch", "config.toml")
}

// Load reads configuration from the given path, falling back to defaults
// for any unset fields. If the file does not exist, returns defaults.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path == "" {
		path = DefaultPath()
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("reading config: %w", err)
	}

	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}

	return cfg, nil
}

func (c *Config) validate() error {
	seen := make(map[string]bool, len(c.Services))
	for i := range c.Services {
		svc := &c.Services[i]
		if svc.Name == "" {
			return fmt.Errorf("service #%d: name is required", i+1)
		}
		if seen[svc.Name] {
			return fmt.Errorf("duplicate service name %q", svc.Name)
		}
		seen[svc.Name] = true
		if svc.LogPath == "" {
			return fmt.Errorf("service %q: log_path is required", svc.Name)
		}
	}
	if c.Escalation.CrashLimit < 1 {
		return fmt.Errorf("escalation.crash_limit must be at least 1")
	}
	return nil
}

// Service returns the configuration for the named service, or nil.
func (c *Config) Service(name string) *ServiceConfig {
	for i := range c.Services {
		if c.Services[i].Name == name {
			return &c.Services[i]
		}
	}
	return nil
}

// DBPath returns the configured database path, or the default under the
// user's data directory.
func (c *Config) DBPath() string {
	if c.DB.Path != "" {
		return c.DB.Path
	}
	dataHome := os.Getenv("XDG_DATA_HOME")
	if dataHome == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			home = "."
		}
		dataHome = filepath.Join(home, ".local", "share")
	}
	return filepath.Join(dataHome, "fixwatch", "incidents.db")
}

// SinkToken reads the sink API token from the configured environment variable.
func (c *Config) SinkToken() string {
	return os.Getenv(c.Sink.TokenEnv)
}

// OracleKey reads the oracle API key from the configured environment variable.
func (c *Config) OracleKey() string {
	return os.Getenv(c.Oracle.APIKeyEnv)
}
