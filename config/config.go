/*
Package config loads engine configuration from a YAML file plus environment
overrides.

PURPOSE:
  One Config struct for the whole binary: HTTP listener, store backend
  selection, lock-wait tuning, Kafka notification settings. Defaults are
  usable out of the box (sqlite in ./data, notifier disabled).
*/
package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server Server `mapstructure:"server"`
	Store  Store  `mapstructure:"store"`
	Kafka  Kafka  `mapstructure:"kafka"`
	Log    Log    `mapstructure:"log"`
}

type Server struct {
	Port            int           `mapstructure:"port"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// Store selects the persistence backend. Backend is one of "memory",
// "sqlite", "postgres".
type Store struct {
	Backend     string        `mapstructure:"backend"`
	SQLitePath  string        `mapstructure:"sqlite_path"`
	PostgresDSN string        `mapstructure:"postgres_dsn"`
	LockWait    time.Duration `mapstructure:"lock_wait"`
}

// Kafka configures the post-commit sale/nomination event stream. Disabled
// when Brokers is empty; events are then only logged.
type Kafka struct {
	Brokers []string `mapstructure:"brokers"`
	Topic   string   `mapstructure:"topic"`
}

type Log struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // "text" or "json"
}

// Load reads the config file at path (optional) and applies FESTIVAL_*
// environment overrides.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.shutdown_timeout", 10*time.Second)
	v.SetDefault("store.backend", "sqlite")
	v.SetDefault("store.sqlite_path", "./data/festival.db")
	v.SetDefault("store.lock_wait", 500*time.Millisecond)
	v.SetDefault("kafka.topic", "festival.ticket-events")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")

	v.SetEnvPrefix("FESTIVAL")
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	switch c.Store.Backend {
	case "memory", "sqlite", "postgres":
	default:
		return fmt.Errorf("unknown store backend %q", c.Store.Backend)
	}
	if c.Store.Backend == "postgres" && c.Store.PostgresDSN == "" {
		return fmt.Errorf("store.postgres_dsn is required for the postgres backend")
	}
	return nil
}
