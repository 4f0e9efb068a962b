// Package config loads process configuration from the environment.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

// Ledger backends.
const (
	BackendMemory   = "memory"
	BackendSQLite   = "sqlite"
	BackendPostgres = "postgres"
)

// DevSigningKey is used when no key is configured, for local runs.
const DevSigningKey = "dev-secret-key-change-in-production"

// Server captures HTTP server level configuration.
type Server struct {
	Addr            string        `env:"LAND_REGISTRY_ADDR" envDefault:":8080"`
	Admin           string        `env:"LAND_REGISTRY_ADMIN"`
	LogLevel        string        `env:"LOG_LEVEL" envDefault:"info"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"15s"`

	JWT    JWTConfig
	Ledger LedgerConfig
	Redis  RedisConfig
	Kafka  KafkaConfig
	Outbox OutboxConfig
}

// JWTConfig configures bearer token verification.
type JWTConfig struct {
	SigningKey string        `env:"JWT_SIGNING_KEY"`
	Issuer     string        `env:"JWT_ISSUER" envDefault:"land-registry"`
	TokenTTL   time.Duration `env:"JWT_TOKEN_TTL" envDefault:"1h"`
}

// LedgerConfig selects and configures the ledger store.
type LedgerConfig struct {
	Backend     string        `env:"LEDGER_BACKEND" envDefault:"memory"`
	SQLitePath  string        `env:"LEDGER_SQLITE_PATH" envDefault:"land-registry.db"`
	PostgresDSN string        `env:"LEDGER_POSTGRES_DSN"`
	LockShards  int           `env:"LEDGER_LOCK_SHARDS" envDefault:"128"`
	TxTimeout   time.Duration `env:"LEDGER_TX_TIMEOUT" envDefault:"5s"`
}

// RedisConfig configures the optional property cache. An empty URL disables it.
type RedisConfig struct {
	URL          string        `env:"REDIS_URL"`
	PoolSize     int           `env:"REDIS_POOL_SIZE" envDefault:"10"`
	MinIdleConns int           `env:"REDIS_MIN_IDLE_CONNS" envDefault:"2"`
	DialTimeout  time.Duration `env:"REDIS_DIAL_TIMEOUT" envDefault:"5s"`
	ReadTimeout  time.Duration `env:"REDIS_READ_TIMEOUT" envDefault:"3s"`
	WriteTimeout time.Duration `env:"REDIS_WRITE_TIMEOUT" envDefault:"3s"`
	PropertyTTL  time.Duration `env:"REDIS_PROPERTY_TTL" envDefault:"10m"`
}

// KafkaConfig configures the optional event sink. No brokers disables it.
type KafkaConfig struct {
	Brokers  []string `env:"KAFKA_BROKERS" envSeparator:","`
	Topic    string   `env:"KAFKA_TOPIC" envDefault:"land-registry.events"`
	ClientID string   `env:"KAFKA_CLIENT_ID" envDefault:"land-registry"`
}

// OutboxConfig tunes the relay that publishes committed events.
type OutboxConfig struct {
	PollInterval time.Duration `env:"OUTBOX_POLL_INTERVAL" envDefault:"1s"`
	BatchSize    int           `env:"OUTBOX_BATCH_SIZE" envDefault:"100"`
}

// ParseEnv fills target from environment variables using its env tags.
func ParseEnv(target any) error {
	if err := env.Parse(target); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}

// FromEnv builds a Server config from environment variables so main stays lean.
func FromEnv() (Server, error) {
	var cfg Server
	if err := ParseEnv(&cfg); err != nil {
		return Server{}, err
	}
	cfg.Ledger.Backend = strings.ToLower(strings.TrimSpace(cfg.Ledger.Backend))
	if cfg.JWT.SigningKey == "" {
		cfg.JWT.SigningKey = DevSigningKey
	}
	if err := cfg.Validate(); err != nil {
		return Server{}, err
	}
	return cfg, nil
}

// Validate rejects combinations the server cannot start with.
func (c Server) Validate() error {
	switch c.Ledger.Backend {
	case BackendMemory, BackendSQLite:
	case BackendPostgres:
		if c.Ledger.PostgresDSN == "" {
			return fmt.Errorf("LEDGER_POSTGRES_DSN is required for the postgres backend")
		}
	default:
		return fmt.Errorf("unknown LEDGER_BACKEND %q", c.Ledger.Backend)
	}
	if strings.TrimSpace(c.Admin) == "" {
		return fmt.Errorf("LAND_REGISTRY_ADMIN is required")
	}
	if c.Outbox.BatchSize <= 0 {
		return fmt.Errorf("OUTBOX_BATCH_SIZE must be positive")
	}
	if c.Outbox.PollInterval <= 0 {
		return fmt.Errorf("OUTBOX_POLL_INTERVAL must be positive")
	}
	return nil
}

// UsingDevSigningKey reports whether tokens are signed with the built-in key.
func (c Server) UsingDevSigningKey() bool {
	return c.JWT.SigningKey == DevSigningKey
}
