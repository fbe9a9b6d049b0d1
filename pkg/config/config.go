// Package config provides configuration handling for agenthive.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
)

// Config represents the application configuration
type Config struct {
	// Server configuration
	Server ServerConfig `json:"server"`

	// Storage configuration
	Storage StorageConfig `json:"storage"`

	// Auth configuration
	Auth AuthConfig `json:"auth"`

	// Billing configuration
	Billing BillingConfig `json:"billing"`

	// Executor configuration
	Executor ExecutorConfig `json:"executor"`

	// Redis configuration
	Redis RedisConfig `json:"redis"`

	// Logging configuration
	Logging LoggingConfig `json:"logging"`
}

// ServerConfig contains HTTP server settings
type ServerConfig struct {
	// Host to bind to
	Host string `json:"host"`

	// Port to listen on
	Port int `json:"port"`

	// TLS configuration
	TLS TLSConfig `json:"tls"`
}

// TLSConfig contains TLS settings
type TLSConfig struct {
	// Enabled indicates whether TLS is enabled
	Enabled bool `json:"enabled"`

	// CertFile is the path to the certificate file
	CertFile string `json:"cert_file"`

	// KeyFile is the path to the key file
	KeyFile string `json:"key_file"`
}

// StorageConfig contains storage settings
type StorageConfig struct {
	// Type of storage to use
	Type string `json:"type"` // "memory", "postgres"

	// PostgreSQL configuration
	Postgres PostgresConfig `json:"postgres"`
}

// PostgresConfig contains PostgreSQL settings
type PostgresConfig struct {
	// Host is the database host
	Host string `json:"host"`

	// Port is the database port
	Port int `json:"port"`

	// Database is the database name
	Database string `json:"database"`

	// User is the database user
	User string `json:"user"`

	// Password is the database password
	Password string `json:"password"`

	// SSLMode is the SSL mode
	SSLMode string `json:"ssl_mode"`
}

// AuthConfig contains authentication settings
type AuthConfig struct {
	// JWTSecret is the secret for signing JWT tokens
	JWTSecret string `json:"jwt_secret"`

	// TokenExpiration is the token expiration time in hours
	TokenExpiration int `json:"token_expiration"`

	// AdminAPIKey authorizes privileged ledger operations
	AdminAPIKey string `json:"admin_api_key"`
}

// BillingConfig contains payment-processor settings
type BillingConfig struct {
	// WebhookSecret verifies payment webhook signatures
	WebhookSecret string `json:"webhook_secret"`

	// MonthlyQuotaBase is the prompt-credit quota granted per PRO seat on renewal
	MonthlyQuotaBase int64 `json:"monthly_quota_base"`
}

// ExecutorConfig contains workflow executor settings
type ExecutorConfig struct {
	// Workers is the size of the execution worker pool
	Workers int `json:"workers"`

	// QueueSize is the capacity of the pending execution queue
	QueueSize int `json:"queue_size"`
}

// RedisConfig contains Redis settings
type RedisConfig struct {
	// Enabled selects the Redis-backed rate limiter
	Enabled bool `json:"enabled"`

	// Address of the Redis server
	Address string `json:"address"`

	// Password for the Redis server
	Password string `json:"password"`

	// DB is the Redis database number
	DB int `json:"db"`
}

// LoggingConfig contains logging settings
type LoggingConfig struct {
	// Level is the logging level
	Level string `json:"level"` // "debug", "info", "warn", "error"

	// Format is the log format
	Format string `json:"format"` // "json", "text"
}

// LoadConfig loads the configuration from a file
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := json.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	config.applyEnv()

	return &config, nil
}

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	cfg := &Config{
		Server: ServerConfig{
			Host: "localhost",
			Port: 8080,
			TLS: TLSConfig{
				Enabled: false,
			},
		},
		Storage: StorageConfig{
			Type: "memory",
			Postgres: PostgresConfig{
				Host:     "localhost",
				Port:     5432,
				Database: "agenthive",
				User:     "agenthive",
				SSLMode:  "disable",
			},
		},
		Auth: AuthConfig{
			TokenExpiration: 24,
		},
		Billing: BillingConfig{
			MonthlyQuotaBase: 500,
		},
		Executor: ExecutorConfig{
			Workers:   4,
			QueueSize: 64,
		},
		Redis: RedisConfig{
			Address: "localhost:6379",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}

	cfg.applyEnv()

	return cfg
}

// SaveConfig saves the configuration to a file
func SaveConfig(config *Config, path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := json.MarshalIndent(config, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// applyEnv overrides secrets and connection settings from the environment.
// Environment values win over the config file so deployments never need
// secrets on disk.
func (c *Config) applyEnv() {
	if v := os.Getenv("AGENTHIVE_JWT_SECRET"); v != "" {
		c.Auth.JWTSecret = v
	}
	if v := os.Getenv("AGENTHIVE_ADMIN_API_KEY"); v != "" {
		c.Auth.AdminAPIKey = v
	}
	if v := os.Getenv("AGENTHIVE_BILLING_WEBHOOK_SECRET"); v != "" {
		c.Billing.WebhookSecret = v
	}
	if v := os.Getenv("AGENTHIVE_STORAGE_TYPE"); v != "" {
		c.Storage.Type = v
	}
	if v := os.Getenv("AGENTHIVE_POSTGRES_HOST"); v != "" {
		c.Storage.Postgres.Host = v
	}
	if v := os.Getenv("AGENTHIVE_POSTGRES_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			c.Storage.Postgres.Port = port
		}
	}
	if v := os.Getenv("AGENTHIVE_POSTGRES_DATABASE"); v != "" {
		c.Storage.Postgres.Database = v
	}
	if v := os.Getenv("AGENTHIVE_POSTGRES_USER"); v != "" {
		c.Storage.Postgres.User = v
	}
	if v := os.Getenv("AGENTHIVE_POSTGRES_PASSWORD"); v != "" {
		c.Storage.Postgres.Password = v
	}
	if v := os.Getenv("AGENTHIVE_REDIS_ADDRESS"); v != "" {
		c.Redis.Address = v
		c.Redis.Enabled = true
	}
}
