package registry

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/agenthive/agenthive/pkg/credits"
	"github.com/agenthive/agenthive/pkg/models"
	"github.com/agenthive/agenthive/pkg/storage"
)

// ConnectionRegistry manages integration connections for tenants
type ConnectionRegistry struct {
	connections storage.ConnectionStore
	limits      UsageChecker
}

// NewConnectionRegistry creates a connection registry
func NewConnectionRegistry(connections storage.ConnectionStore, limits UsageChecker) *ConnectionRegistry {
	return &ConnectionRegistry{
		connections: connections,
		limits:      limits,
	}
}

// Create stores a new connection for an account. One connection per
// integration per account; a second create replaces the settings. The
// returned record echoes the settings the caller just supplied, which
// is the only path that ever returns them.
func (r *ConnectionRegistry) Create(accountID string, conn models.IntegrationConnection) (models.IntegrationConnection, error) {
	if conn.Integration == "" {
		return models.IntegrationConnection{}, fmt.Errorf("integration name is required")
	}

	existing, err := r.connections.GetConnectionForIntegration(accountID, conn.Integration)
	if err == nil {
		// Replace settings on the existing connection
		existing.Settings = conn.Settings
		existing.UpdatedAt = time.Now()
		if err := r.connections.SaveConnection(existing); err != nil {
			return models.IntegrationConnection{}, fmt.Errorf("failed to save connection: %w", err)
		}
		return existing, nil
	}
	if err != storage.ErrConnectionNotFound {
		return models.IntegrationConnection{}, fmt.Errorf("failed to check connection: %w", err)
	}

	if r.limits != nil {
		report, err := r.limits.CheckUsageLimit(accountID, credits.ResourcePluginIntegrations)
		if err != nil {
			return models.IntegrationConnection{}, fmt.Errorf("failed to check connection limit: %w", err)
		}
		if !report.Allowed {
			return models.IntegrationConnection{}, fmt.Errorf("%w: %d of %d integrations in use", ErrLimitExceeded, report.Used, report.Limit)
		}
	}

	now := time.Now()
	conn.ID = uuid.New().String()
	conn.AccountID = accountID
	conn.CreatedAt = now
	conn.UpdatedAt = now

	if err := r.connections.SaveConnection(conn); err != nil {
		return models.IntegrationConnection{}, fmt.Errorf("failed to save connection: %w", err)
	}

	return conn, nil
}

// Get retrieves a connection, verifying ownership. Stored settings are
// write-only through the registry: dispatchers read them straight from
// the store, clients never get them back.
func (r *ConnectionRegistry) Get(accountID, connectionID string) (models.IntegrationConnection, error) {
	conn, err := r.connections.GetConnection(connectionID)
	if err != nil {
		return models.IntegrationConnection{}, err
	}
	if conn.AccountID != accountID {
		return models.IntegrationConnection{}, ErrNotOwner
	}

	conn.Settings = nil
	return conn, nil
}

// List returns all connections for an account with settings redacted
func (r *ConnectionRegistry) List(accountID string) ([]models.IntegrationConnection, error) {
	connections, err := r.connections.ListConnections(accountID)
	if err != nil {
		return nil, err
	}

	// Credentials never leave through the list endpoint
	redacted := make([]models.IntegrationConnection, len(connections))
	for i, conn := range connections {
		conn.Settings = nil
		redacted[i] = conn
	}

	return redacted, nil
}

// Delete removes a connection
func (r *ConnectionRegistry) Delete(accountID, connectionID string) error {
	if _, err := r.Get(accountID, connectionID); err != nil {
		return err
	}

	return r.connections.DeleteConnection(connectionID)
}
