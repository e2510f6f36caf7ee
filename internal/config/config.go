// Package config loads the server configuration from a YAML file with
// environment-variable overrides on top.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/whistle-data/refzone.report/internal/monitoring"
)

// Config is the root server configuration.
type Config struct {
	ListenAddr string `yaml:"listen_addr"`

	DBPath        string `yaml:"db_path"`
	MigrationsDir string `yaml:"migrations_dir"`

	// CoeffServiceURL switches the coefficient store to the remote
	// fitting service. Empty means read from the local sqlite DB.
	CoeffServiceURL string `yaml:"coeff_service_url"`

	DefaultSeason string `yaml:"default_season"`

	CacheTTL       string `yaml:"cache_ttl"`
	QuietWindow    string `yaml:"quiet_window"`
	WarmerSchedule string `yaml:"warmer_schedule"`

	RetryAttempts int    `yaml:"retry_attempts"`
	RetryBackoff  string `yaml:"retry_backoff"`

	AdminRoutes bool `yaml:"admin_routes"`
}

// Load reads config from path (or CONFIG_PATH, or ./refzone.yaml),
// applies env overrides and fills defaults. A missing file is not an
// error; env and defaults still apply.
func Load(path string) (Config, error) {
	var cfg Config

	if path == "" {
		path = "refzone.yaml"
		if envPath := os.Getenv("CONFIG_PATH"); envPath != "" {
			path = envPath
		}
	}
	if data, err := os.ReadFile(path); err == nil {
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parsing %s: %w", path, err)
		}
		monitoring.Logf("loaded config from %s", path)
	}

	envOverride(&cfg.ListenAddr, "LISTEN_ADDR")
	envOverride(&cfg.DBPath, "DB_PATH")
	envOverride(&cfg.MigrationsDir, "MIGRATIONS_DIR")
	envOverride(&cfg.CoeffServiceURL, "COEFF_SERVICE_URL")
	envOverride(&cfg.DefaultSeason, "DEFAULT_SEASON")
	envOverride(&cfg.CacheTTL, "CACHE_TTL")
	envOverride(&cfg.QuietWindow, "QUIET_WINDOW")
	envOverride(&cfg.WarmerSchedule, "WARMER_SCHEDULE")
	envOverrideInt(&cfg.RetryAttempts, "RETRY_ATTEMPTS")
	envOverride(&cfg.RetryBackoff, "RETRY_BACKOFF")
	envOverrideBool(&cfg.AdminRoutes, "ADMIN_ROUTES")

	if cfg.ListenAddr == "" {
		cfg.ListenAddr = ":8080"
	}
	if cfg.DBPath == "" {
		cfg.DBPath = "./coefficients.db"
	}
	if cfg.MigrationsDir == "" {
		cfg.MigrationsDir = "db/migrations"
	}
	if cfg.CacheTTL == "" {
		cfg.CacheTTL = "5m"
	}
	if cfg.QuietWindow == "" {
		cfg.QuietWindow = "250ms"
	}
	if cfg.RetryAttempts == 0 {
		cfg.RetryAttempts = 3
	}
	if cfg.RetryBackoff == "" {
		cfg.RetryBackoff = "200ms"
	}

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	for _, d := range []struct {
		name, value string
	}{
		{"cache_ttl", c.CacheTTL},
		{"quiet_window", c.QuietWindow},
		{"retry_backoff", c.RetryBackoff},
	} {
		if _, err := time.ParseDuration(d.value); err != nil {
			return fmt.Errorf("invalid %s %q: %w", d.name, d.value, err)
		}
	}
	if c.RetryAttempts < 1 {
		return fmt.Errorf("retry_attempts must be at least 1, got %d", c.RetryAttempts)
	}
	return nil
}

// CacheTTLDuration returns the parsed cache TTL. Load validated it.
func (c Config) CacheTTLDuration() time.Duration {
	d, _ := time.ParseDuration(c.CacheTTL)
	return d
}

// QuietWindowDuration returns the parsed debounce quiet window.
func (c Config) QuietWindowDuration() time.Duration {
	d, _ := time.ParseDuration(c.QuietWindow)
	return d
}

// RetryBackoffDuration returns the parsed initial retry backoff.
func (c Config) RetryBackoffDuration() time.Duration {
	d, _ := time.ParseDuration(c.RetryBackoff)
	return d
}

func envOverride(target *string, key string) {
	if v := os.Getenv(key); v != "" {
		*target = v
	}
}

func envOverrideInt(target *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*target = n
		}
	}
}

func envOverrideBool(target *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*target = b
		}
	}
}
