package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func env(vars map[string]string) LookupFunc {
	return func(key string) (string, bool) {
		v, ok := vars[key]
		return v, ok
	}
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestDefaultIsValid(t *testing.T) {
	require.NoError(t, Validate(Default()))
}

func TestLoadWithoutFile(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "sqlite", cfg.Database.Driver)
	assert.Equal(t, 4, cfg.Pipeline.Workers)
}

func TestLoadYAMLOverlaysDefaults(t *testing.T) {
	path := writeFile(t, "zkb.yaml", `
database:
  path: /var/lib/zkb/kills.db
esi:
  timeout: 3s
  max_attempts: 2
pipeline:
  workers: 8
status:
  addr: ":8080"
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "/var/lib/zkb/kills.db", cfg.Database.Path)
	assert.Equal(t, 3*time.Second, cfg.ESI.Timeout)
	assert.Equal(t, 2, cfg.ESI.MaxAttempts)
	assert.Equal(t, 8, cfg.Pipeline.Workers)
	assert.Equal(t, ":8080", cfg.Status.Addr)

	// untouched fields keep defaults
	assert.Equal(t, "https://esi.evetech.net/latest", cfg.ESI.BaseURL)
	assert.Equal(t, 30*time.Second, cfg.ESI.MaxBackoff)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "config: read")
}

func TestLoadMalformedYAML(t *testing.T) {
	path := writeFile(t, "bad.yaml", "pipeline: [unclosed")
	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "config: parse")
}

func TestApplyEnv(t *testing.T) {
	cfg := Default()
	err := ApplyEnv(&cfg, env(map[string]string{
		"ZKB_DATABASE_DRIVER": "postgres",
		"ZKB_DATABASE_URL":    "postgres://zkb@localhost/zkb",
		"ZKB_WORKERS":         "12",
		"ZKB_ESI_TIMEOUT":     "250ms",
		"ZKB_REDIS_URL":       "redis://localhost:6379/0",
	}))
	require.NoError(t, err)

	assert.Equal(t, "postgres", cfg.Database.Driver)
	assert.Equal(t, "postgres://zkb@localhost/zkb", cfg.Database.URL)
	assert.Equal(t, 12, cfg.Pipeline.Workers)
	assert.Equal(t, 250*time.Millisecond, cfg.ESI.Timeout)
	assert.Equal(t, "redis://localhost:6379/0", cfg.Control.RedisURL)
	require.NoError(t, Validate(cfg))
}

func TestApplyEnvRejectsBadNumbers(t *testing.T) {
	cfg := Default()
	err := ApplyEnv(&cfg, env(map[string]string{"ZKB_WORKERS": "many"}))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ZKB_WORKERS")

	err = ApplyEnv(&cfg, env(map[string]string{"ZKB_PERSIST_TIMEOUT": "soon"}))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ZKB_PERSIST_TIMEOUT")
}

func TestValidateRejects(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"unknown driver", func(c *Config) { c.Database.Driver = "mysql" }},
		{"sqlite without path", func(c *Config) { c.Database.Path = "" }},
		{"postgres without url", func(c *Config) { c.Database.Driver = "postgres" }},
		{"zero workers", func(c *Config) { c.Pipeline.Workers = 0 }},
		{"zero attempts", func(c *Config) { c.ESI.MaxAttempts = 0 }},
		{"backoff cap below initial", func(c *Config) { c.ESI.MaxBackoff = time.Millisecond }},
		{"http killstream", func(c *Config) { c.Source.KillstreamURL = "http://zkillboard.com" }},
		{"bad redis scheme", func(c *Config) { c.Control.RedisURL = "tcp://localhost" }},
		{"empty user agent", func(c *Config) { c.ESI.UserAgent = "" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			err := Validate(cfg)
			require.Error(t, err)

			var verr *ValidationError
			require.ErrorAs(t, err, &verr)
			assert.NotEmpty(t, verr.Details)
		})
	}
}

func TestLoadDotEnv(t *testing.T) {
	path := writeFile(t, ".env", "ZKB_TEST_DOTENV_VALUE=from-file\n")
	t.Setenv("ZKB_TEST_DOTENV_PRESET", "kept")

	require.NoError(t, LoadDotEnv(path, filepath.Join(t.TempDir(), "missing.env")))
	t.Cleanup(func() { os.Unsetenv("ZKB_TEST_DOTENV_VALUE") })

	assert.Equal(t, "from-file", os.Getenv("ZKB_TEST_DOTENV_VALUE"))
	assert.Equal(t, "kept", os.Getenv("ZKB_TEST_DOTENV_PRESET"))
}
