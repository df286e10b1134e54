// Package config loads databridge's structured configuration from a
// TOML file, then lets individual DATABRIDGE_* environment variables
// override specific fields — the same "file plus env escape hatch"
// shape the rest of the codebase uses for its OTLP endpoint and log
// level, generalized to the platform/database surface a single file
// format is better suited for than a pile of env vars.
package config

import (
	"os"
	"strconv"
	"time"

	"github.com/BurntSushi/toml"
)

// PlatformConfig describes one vendor's credential pool.
type PlatformConfig struct {
	Name     string   `toml:"name"`
	Keys     []string `toml:"keys"`
	Cooldown Duration `toml:"cooldown"`
}

// Duration lets TOML values like "30s" decode into time.Duration via
// encoding.TextUnmarshaler, which BurntSushi/toml honors.
type Duration time.Duration

func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	*d = Duration(parsed)
	return nil
}

func (d Duration) Duration() time.Duration { return time.Duration(d) }

// Config is databridge's full structured configuration.
type Config struct {
	Service string `toml:"service"`

	HTTP struct {
		Addr string `toml:"addr"`
	} `toml:"http"`

	Store struct {
		BoltPath string `toml:"bolt_path"`
	} `toml:"store"`

	Postgres struct {
		DSN string `toml:"dsn"`
	} `toml:"postgres"`

	Platforms []PlatformConfig `toml:"platforms"`
}

// Default returns a Config with values suitable for local development.
func Default() Config {
	c := Config{Service: "databridge"}
	c.HTTP.Addr = ":8080"
	c.Store.BoltPath = "databridge.db"
	return c
}

// Load reads path (if non-empty and it exists) into Default(), then
// applies DATABRIDGE_* environment overrides.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		if _, err := os.Stat(path); err == nil {
			if _, err := toml.DecodeFile(path, &cfg); err != nil {
				return cfg, err
			}
		}
	}
	applyEnvOverrides(&cfg)
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("DATABRIDGE_HTTP_ADDR"); v != "" {
		cfg.HTTP.Addr = v
	}
	if v := os.Getenv("DATABRIDGE_BOLT_PATH"); v != "" {
		cfg.Store.BoltPath = v
	}
	if v := os.Getenv("DATABRIDGE_POSTGRES_DSN"); v != "" {
		cfg.Postgres.DSN = v
	}
	if v := os.Getenv("DATABRIDGE_SERVICE"); v != "" {
		cfg.Service = v
	}
}

// ParseBool reports whether s parses as true under strconv.ParseBool;
// an unparseable value reads as false. It is not the check
// internal/logging applies to DATABRIDGE_JSON_LOG, which accepts
// "1", "true" and "json" (any case) only.
func ParseBool(s string) bool {
	b, _ := strconv.ParseBool(s)
	return b
}
