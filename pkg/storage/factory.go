package storage

import (
	"fmt"

	"github.com/agenthive/agenthive/pkg/config"
)

// NewProviderFromConfig creates the storage provider named in the config
func NewProviderFromConfig(cfg *config.Config) (StorageProvider, error) {
	switch cfg.Storage.Type {
	case "memory":
		return NewMemoryProvider(), nil
	case "postgres":
		provider, err := NewPostgreSQLProvider(PostgreSQLProviderConfig{
			Host:     cfg.Storage.Postgres.Host,
			Port:     cfg.Storage.Postgres.Port,
			User:     cfg.Storage.Postgres.User,
			Password: cfg.Storage.Postgres.Password,
			Database: cfg.Storage.Postgres.Database,
			SSLMode:  cfg.Storage.Postgres.SSLMode,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create PostgreSQL provider: %w", err)
		}
		return provider, nil
	default:
		return nil, fmt.Errorf("unknown storage type: %s", cfg.Storage.Type)
	}
}
