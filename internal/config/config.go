// Package config loads zkbstore settings.
//
// Precedence, lowest first: Default, YAML file, .env file, ZKB_*
// environment variables, command-line flags (applied by the cli package).
// The merged result is validated against an embedded CUE schema.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config is the full runtime configuration.
type Config struct {
	Database DatabaseConfig `yaml:"database" json:"database"`
	Source   SourceConfig   `yaml:"source" json:"source"`
	ESI      ESIConfig      `yaml:"esi" json:"esi"`
	Pipeline PipelineConfig `yaml:"pipeline" json:"pipeline"`
	Control  ControlConfig  `yaml:"control" json:"control"`
	Status   StatusConfig   `yaml:"status" json:"status"`
}

// DatabaseConfig selects the store backend.
type DatabaseConfig struct {
	Driver string `yaml:"driver" json:"driver"` // "sqlite" or "postgres"
	Path   string `yaml:"path" json:"path"`     // sqlite file
	URL    string `yaml:"url" json:"url"`       // postgres connection string
}

// SourceConfig configures the killstream and history feeds.
type SourceConfig struct {
	KillstreamURL  string        `yaml:"killstream_url" json:"killstream_url"`
	Channel        string        `yaml:"channel" json:"channel"`
	ReadTimeout    time.Duration `yaml:"read_timeout" json:"read_timeout"`
	MinBackoff     time.Duration `yaml:"min_backoff" json:"min_backoff"`
	MaxBackoff     time.Duration `yaml:"max_backoff" json:"max_backoff"`
	HistoryURL     string        `yaml:"history_url" json:"history_url"`
	HistoryWorkers int           `yaml:"history_workers" json:"history_workers"`
}

// ESIConfig configures the enricher.
type ESIConfig struct {
	BaseURL        string        `yaml:"base_url" json:"base_url"`
	UserAgent      string        `yaml:"user_agent" json:"user_agent"`
	Timeout        time.Duration `yaml:"timeout" json:"timeout"`
	MaxAttempts    int           `yaml:"max_attempts" json:"max_attempts"`
	InitialBackoff time.Duration `yaml:"initial_backoff" json:"initial_backoff"`
	MaxBackoff     time.Duration `yaml:"max_backoff" json:"max_backoff"`
}

// PipelineConfig sizes the worker pool.
type PipelineConfig struct {
	Workers        int           `yaml:"workers" json:"workers"`
	PersistTimeout time.Duration `yaml:"persist_timeout" json:"persist_timeout"`
}

// ControlConfig configures the Redis command channel. An empty RedisURL
// disables it.
type ControlConfig struct {
	RedisURL string `yaml:"redis_url" json:"redis_url"`
	Channel  string `yaml:"channel" json:"channel"`
}

// StatusConfig configures the HTTP status server. An empty Addr disables it.
type StatusConfig struct {
	Addr string `yaml:"addr" json:"addr"`
}

// Default returns the production defaults.
func Default() Config {
	return Config{
		Database: DatabaseConfig{
			Driver: "sqlite",
			Path:   "zkb.db",
		},
		Source: SourceConfig{
			KillstreamURL:  "wss://zkillboard.com/websocket/",
			Channel:        "killstream",
			ReadTimeout:    2 * time.Minute,
			MinBackoff:     time.Second,
			MaxBackoff:     time.Minute,
			HistoryURL:     "https://zkillboard.com/api/history",
			HistoryWorkers: 3,
		},
		ESI: ESIConfig{
			BaseURL:        "https://esi.evetech.net/latest",
			UserAgent:      "zkbstore",
			Timeout:        10 * time.Second,
			MaxAttempts:    5,
			InitialBackoff: 500 * time.Millisecond,
			MaxBackoff:     30 * time.Second,
		},
		Pipeline: PipelineConfig{
			Workers:        4,
			PersistTimeout: 30 * time.Second,
		},
		Control: ControlConfig{
			Channel: "zkb/commands",
		},
	}
}

// Load builds a Config from defaults, an optional YAML file and the
// environment, then validates it. An empty path skips the file.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("config: read %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}

	if err := ApplyEnv(&cfg, os.LookupEnv); err != nil {
		return Config{}, err
	}

	if err := Validate(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// LoadDotEnv loads variables from the given .env files into the process
// environment. Missing files are ignored; variables already set win.
func LoadDotEnv(files ...string) error {
	for _, f := range files {
		if err := godotenv.Load(f); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("config: load %s: %w", f, err)
		}
	}
	return nil
}

// LookupFunc reads an environment variable. os.LookupEnv satisfies it.
type LookupFunc func(key string) (string, bool)

// ApplyEnv overrides cfg from ZKB_* variables.
func ApplyEnv(cfg *Config, lookup LookupFunc) error {
	strs := []struct {
		key string
		dst *string
	}{
		{"ZKB_DATABASE_DRIVER", &cfg.Database.Driver},
		{"ZKB_DATABASE_PATH", &cfg.Database.Path},
		{"ZKB_DATABASE_URL", &cfg.Database.URL},
		{"ZKB_KILLSTREAM_URL", &cfg.Source.KillstreamURL},
		{"ZKB_HISTORY_URL", &cfg.Source.HistoryURL},
		{"ZKB_ESI_BASE_URL", &cfg.ESI.BaseURL},
		{"ZKB_ESI_USER_AGENT", &cfg.ESI.UserAgent},
		{"ZKB_REDIS_URL", &cfg.Control.RedisURL},
		{"ZKB_CONTROL_CHANNEL", &cfg.Control.Channel},
		{"ZKB_STATUS_ADDR", &cfg.Status.Addr},
	}
	for _, s := range strs {
		if v, ok := lookup(s.key); ok {
			*s.dst = v
		}
	}

	ints := []struct {
		key string
		dst *int
	}{
		{"ZKB_WORKERS", &cfg.Pipeline.Workers},
		{"ZKB_ESI_MAX_ATTEMPTS", &cfg.ESI.MaxAttempts},
	}
	for _, i := range ints {
		if v, ok := lookup(i.key); ok {
			n, err := strconv.Atoi(v)
			if err != nil {
				return fmt.Errorf("config: %s: %w", i.key, err)
			}
			*i.dst = n
		}
	}

	durations := []struct {
		key string
		dst *time.Duration
	}{
		{"ZKB_ESI_TIMEOUT", &cfg.ESI.Timeout},
		{"ZKB_PERSIST_TIMEOUT", &cfg.Pipeline.PersistTimeout},
	}
	for _, d := range durations {
		if v, ok := lookup(d.key); ok {
			dur, err := time.ParseDuration(v)
			if err != nil {
				return fmt.Errorf("config: %s: %w", d.key, err)
			}
			*d.dst = dur
		}
	}
	return nil
}
