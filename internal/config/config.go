// Package config loads client configuration from a YAML file with
// environment overrides. Everything has a default; a missing config
// file is not an error.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration wraps time.Duration so YAML can say "10s" or "2.5s".
type Duration time.Duration

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("bad duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

func (d Duration) Std() time.Duration { return time.Duration(d) }

// Config is the full client configuration.
type Config struct {
	// APIBase is the relay's base URL.
	APIBase string `yaml:"api_base"`
	// TokenPath is where the session token file lives.
	TokenPath string `yaml:"token_path"`
	// StatePath is the local state database.
	StatePath string `yaml:"state_path"`
	// PollInterval is the steady message poll cadence.
	PollInterval Duration `yaml:"poll_interval"`
	// RefreshInterval is the conversation-list refresh cadence.
	RefreshInterval Duration `yaml:"refresh_interval"`
	// BurstOffsets are the post-send fetch offsets.
	BurstOffsets []Duration `yaml:"burst_offsets"`
	// MetricsAddr, when set, serves Prometheus metrics ("" disables).
	MetricsAddr string `yaml:"metrics_addr"`
	// Token, when set, overrides the stored session token. Meant for
	// scripted use via RELAYCHAT_TOKEN; not usually in the file.
	Token string `yaml:"token"`
}

// Default returns the built-in configuration. File paths land under the
// user config dir when available, the working directory otherwise.
func Default() Config {
	dir := "."
	if base, err := os.UserConfigDir(); err == nil {
		dir = filepath.Join(base, "relaychat")
	}
	return Config{
		APIBase:         "http://localhost:8080",
		TokenPath:       filepath.Join(dir, "session.json"),
		StatePath:       filepath.Join(dir, "state.db"),
		PollInterval:    Duration(10 * time.Second),
		RefreshInterval: Duration(30 * time.Second),
		BurstOffsets: []Duration{
			Duration(1 * time.Second),
			Duration(2500 * time.Millisecond),
			Duration(5 * time.Second),
		},
	}
}

// Load reads path over the defaults, then applies environment
// overrides. A missing file yields the defaults; a malformed file is an
// error.
func Load(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		// Defaults only.
	case err != nil:
		return Config{}, fmt.Errorf("read config %s: %w", path, err)
	default:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	applyEnv(&cfg)
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("RELAYCHAT_API_BASE"); v != "" {
		cfg.APIBase = v
	}
	if v := os.Getenv("RELAYCHAT_TOKEN"); v != "" {
		cfg.Token = v
	}
	if v := os.Getenv("RELAYCHAT_STATE_PATH"); v != "" {
		cfg.StatePath = v
	}
	if v := os.Getenv("RELAYCHAT_METRICS_ADDR"); v != "" {
		cfg.MetricsAddr = v
	}
}

func (c Config) validate() error {
	if c.APIBase == "" {
		return fmt.Errorf("config: api_base is required")
	}
	if c.PollInterval <= 0 {
		return fmt.Errorf("config: poll_interval must be positive")
	}
	if c.RefreshInterval <= 0 {
		return fmt.Errorf("config: refresh_interval must be positive")
	}
	for _, off := range c.BurstOffsets {
		if off <= 0 {
			return fmt.Errorf("config: burst offsets must be positive")
		}
	}
	return nil
}

// BurstDurations converts the configured offsets to time.Durations.
func (c Config) BurstDurations() []time.Duration {
	out := make([]time.Duration, len(c.BurstOffsets))
	for i, d := range c.BurstOffsets {
		out[i] = d.Std()
	}
	return out
}
