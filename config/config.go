// Package config defines the service configuration and how it is loaded.
//
// Precedence (low -> high):
//  1. defaults (New)
//  2. .env file, copied into the process environment
//  3. YAML file named by LEADS_CONFIG
//  4. environment variables prefixed LEADS_
package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
	"github.com/robfig/cron/v3"
	"github.com/warp/lead-engine/distribution"
	"github.com/warp/lead-engine/factory"
)

const (
	envPrefix  = "LEADS_"
	envConfig  = "LEADS_CONFIG"
	dotEnvFile = ".env"
)

// Config contains process configuration.
type Config struct {
	// Addr is the HTTP listen address, e.g. ":8080".
	Addr string `koanf:"addr"`

	// DBPath is the SQLite file. ":memory:" keeps everything in RAM.
	DBPath string `koanf:"db_path"`

	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel  string `koanf:"log_level"`
	LogPretty bool   `koanf:"log_pretty"`

	// FollowUpSchedule is the cron spec of the stale-lead sweep.
	FollowUpSchedule string `koanf:"followup_schedule"`

	// PolicyFile is an optional JSON distribution policy.
	PolicyFile string `koanf:"policy_file"`

	// KafkaBrokers is a comma-separated host:port list. Empty disables
	// event publishing.
	KafkaBrokers string `koanf:"kafka_brokers"`
	KafkaTopic   string `koanf:"kafka_topic"`

	// AllowedOrigins is a comma-separated CORS origin list.
	AllowedOrigins string `koanf:"allowed_origins"`
}

// New returns a Config with defaults.
func New() *Config {
	return &Config{
		Addr:             ":8080",
		DBPath:           "./data/leads.db",
		LogLevel:         "info",
		FollowUpSchedule: "*/10 * * * *",
		KafkaTopic:       "lead-engine.events",
		AllowedOrigins:   "http://localhost:5173,http://localhost:8080",
	}
}

// Load builds a Config by layering defaults, .env, optional file and env vars.
func Load(_ context.Context) (*Config, error) {
	if err := godotenv.Load(dotEnvFile); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("config: read %s: %w", dotEnvFile, err)
	}

	cfg := *New()
	k := koanf.New(".")

	if path := os.Getenv(envConfig); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("config: load %s: %w", path, err)
		}
	}

	// LEADS_DB_PATH -> db_path. Keys are flat, so underscores stay.
	envProvider := env.Provider(envPrefix, ".", func(s string) string {
		return strings.TrimPrefix(strings.ToLower(s), strings.ToLower(envPrefix))
	})
	if err := k.Load(envProvider, nil); err != nil {
		return nil, fmt.Errorf("config: load env: %w", err)
	}

	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, fmt.Errorf("config: decode: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the values the server cannot start without.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Addr) == "" {
		return errors.New("config: addr must not be empty")
	}
	if strings.TrimSpace(c.DBPath) == "" {
		return errors.New("config: db_path must not be empty")
	}
	if _, err := cron.ParseStandard(c.FollowUpSchedule); err != nil {
		return fmt.Errorf("config: followup_schedule %q: %w", c.FollowUpSchedule, err)
	}
	if len(c.Brokers()) > 0 && strings.TrimSpace(c.KafkaTopic) == "" {
		return errors.New("config: kafka_topic is required when kafka_brokers is set")
	}
	return nil
}

// Brokers returns the Kafka broker list.
func (c *Config) Brokers() []string {
	return splitList(c.KafkaBrokers)
}

// Origins returns the CORS origin list.
func (c *Config) Origins() []string {
	return splitList(c.AllowedOrigins)
}

// Policy returns the distribution policy from PolicyFile, or the default
// policy when no file is configured.
func (c *Config) Policy() (distribution.Policy, error) {
	if c.PolicyFile == "" {
		return distribution.DefaultPolicy(), nil
	}
	return factory.NewPolicyFactory().LoadFile(c.PolicyFile)
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
