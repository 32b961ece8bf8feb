// Package config loads server configuration from the environment.
package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Storage drivers.
const (
	DriverSQLite   = "sqlite"
	DriverDynamoDB = "dynamodb"
)

// Config is the server configuration.
type Config struct {
	Port            int           `env:"PORT"                envDefault:"8080"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT"    envDefault:"10s"`
	CORSOrigin      string        `env:"CORS_ALLOWED_ORIGIN" envDefault:"*"`

	StorageDriver string `env:"STORAGE_DRIVER" envDefault:"sqlite"`
	DBPath        string `env:"DB_PATH"        envDefault:"./data/estimator.db"`

	AWSRegion            string `env:"AWS_REGION"             envDefault:"us-east-1"`
	AWSAccessKeyID       string `env:"AWS_ACCESS_KEY_ID"`
	AWSSecretAccessKey   string `env:"AWS_SECRET_ACCESS_KEY"`
	DynamoDBEndpoint     string `env:"DYNAMODB_ENDPOINT"`
	DynamoDBTablePrefix  string `env:"DYNAMODB_TABLE_PREFIX"  envDefault:"estimator_"`
	DynamoDBCreateTables bool   `env:"DYNAMODB_CREATE_TABLES" envDefault:"false"`

	JWTSecret string `env:"JWT_SECRET"`

	LogLevel  string `env:"LOG_LEVEL"  envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"text"`

	// FallbackCostRole names the catch-all role whose cost/billing ratio
	// prices unmatched resources.
	FallbackCostRole string `env:"FALLBACK_COST_ROLE" envDefault:"Other"`

	MetricsEnabled bool `env:"METRICS_ENABLED" envDefault:"true"`
}

// Load reads an optional .env file, without overriding variables already
// set, and parses the environment.
func Load() (Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	return cfg, cfg.Validate()
}

// FromMap parses configuration from vars instead of the process environment.
func FromMap(vars map[string]string) (Config, error) {
	var cfg Config
	if err := env.ParseWithOptions(&cfg, env.Options{Environment: vars}); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	return cfg, cfg.Validate()
}

// Validate checks values the server cannot start without.
func (c Config) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("PORT %d out of range", c.Port)
	}
	switch c.StorageDriver {
	case DriverSQLite:
		if c.DBPath == "" {
			return fmt.Errorf("DB_PATH is required for the sqlite driver")
		}
	case DriverDynamoDB:
		if c.AWSRegion == "" {
			return fmt.Errorf("AWS_REGION is required for the dynamodb driver")
		}
	default:
		return fmt.Errorf("unknown STORAGE_DRIVER %q (want %s or %s)", c.StorageDriver, DriverSQLite, DriverDynamoDB)
	}
	if c.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET is required")
	}
	switch c.LogFormat {
	case "text", "json":
	default:
		return fmt.Errorf("unknown LOG_FORMAT %q (want text or json)", c.LogFormat)
	}
	return nil
}

// Addr is the listen address.
func (c Config) Addr() string {
	return fmt.Sprintf(":%d", c.Port)
}
