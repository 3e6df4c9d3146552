// Package config loads engine configuration from an optional YAML or JSON
// file, then overlays environment variables (including a local .env file
// when present).
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// Config is the full runtime configuration.
type Config struct {
	Database DatabaseConfig `json:"database" yaml:"database"`
	Sources  SourcesConfig  `json:"sources" yaml:"sources"`
	Feed     FeedConfig     `json:"feed" yaml:"feed"`
}

// Duration is a time.Duration that parses "15s" style strings from YAML,
// JSON and the environment.
type Duration time.Duration

func (d Duration) Std() time.Duration { return time.Duration(d) }

func (d *Duration) UnmarshalText(b []byte) error {
	v, err := time.ParseDuration(string(b))
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	return d.UnmarshalText([]byte(s))
}

// DatabaseConfig locates the sqlite database.
type DatabaseConfig struct {
	Path string `json:"path" yaml:"path" envconfig:"DB_PATH"`
}

// SourcesConfig overrides the upstream base URLs, mainly for tests and
// staging mirrors.
type SourcesConfig struct {
	KrakenURL      string `json:"kraken_url,omitempty" yaml:"kraken_url,omitempty" envconfig:"KRAKEN_URL"`
	CoinbaseURL    string `json:"coinbase_url,omitempty" yaml:"coinbase_url,omitempty" envconfig:"COINBASE_URL"`
	DexScreenerURL string `json:"dexscreener_url,omitempty" yaml:"dexscreener_url,omitempty" envconfig:"DEXSCREENER_URL"`
}

// FeedConfig sets the polling cadence of the market data loops.
type FeedConfig struct {
	MajorsInterval   Duration `json:"majors_interval" yaml:"majors_interval" envconfig:"MAJORS_INTERVAL"`
	MemecoinInterval Duration `json:"memecoin_interval" yaml:"memecoin_interval" envconfig:"MEMECOIN_INTERVAL"`
	UniverseInterval Duration `json:"universe_interval" yaml:"universe_interval" envconfig:"UNIVERSE_INTERVAL"`
	SweepInterval    Duration `json:"sweep_interval" yaml:"sweep_interval" envconfig:"SWEEP_INTERVAL"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Database: DatabaseConfig{Path: "./papertrade.db"},
		Feed: FeedConfig{
			MajorsInterval:   Duration(15 * time.Second),
			MemecoinInterval: Duration(30 * time.Second),
			UniverseInterval: Duration(10 * time.Minute),
			SweepInterval:    Duration(60 * time.Second),
		},
	}
}

// Load reads the config file at path (YAML first, JSON fallback) and then
// applies environment overrides with the PAPERTRADE_ prefix. An empty
// path skips the file and uses defaults plus environment.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if yerr := yaml.Unmarshal(data, cfg); yerr != nil {
			if jerr := json.Unmarshal(data, cfg); jerr != nil {
				return nil, fmt.Errorf("parse config (tried YAML and JSON): %w", yerr)
			}
		}
	}

	// A missing .env file is fine; explicit environment still applies.
	_ = godotenv.Load()

	if err := envconfig.Process("PAPERTRADE", cfg); err != nil {
		return nil, fmt.Errorf("process environment: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// Validate checks the configuration for values the engine cannot run with.
func (c *Config) Validate() error {
	if c.Database.Path == "" {
		return fmt.Errorf("database.path is required")
	}
	if c.Feed.MajorsInterval <= 0 {
		return fmt.Errorf("feed.majors_interval must be positive")
	}
	if c.Feed.MemecoinInterval <= 0 {
		return fmt.Errorf("feed.memecoin_interval must be positive")
	}
	if c.Feed.UniverseInterval <= 0 {
		return fmt.Errorf("feed.universe_interval must be positive")
	}
	if c.Feed.SweepInterval <= 0 {
		return fmt.Errorf("feed.sweep_interval must be positive")
	}
	return nil
}
