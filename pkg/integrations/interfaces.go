// Package integrations contains the connectors workflow steps dispatch to.
package integrations

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/agenthive/agenthive/pkg/storage"
)

// Errors returned when a step names something the platform doesn't know
var (
	ErrUnknownIntegration = errors.New("unknown integration")
	ErrUnknownAction      = errors.New("unknown action")
)

// Request carries one step dispatch to a connector
type Request struct {
	// AccountID of the tenant running the step
	AccountID string

	// Action names the operation on the integration
	Action string

	// Config is the fully evaluated step configuration
	Config map[string]interface{}

	// Settings are the account's stored connection settings for the
	// integration, nil when no connection exists
	Settings map[string]interface{}
}

// Dispatcher executes actions for one integration
type Dispatcher interface {
	// Name returns the integration name used in step definitions
	Name() string

	// Dispatch executes an action and returns its result payload
	Dispatch(ctx context.Context, req Request) (map[string]interface{}, error)
}

// Registry routes step dispatches to connectors and resolves the
// account's connection settings for each call
type Registry struct {
	dispatchers map[string]Dispatcher
	connections storage.ConnectionStore
	mu          sync.RWMutex
}

// NewRegistry creates a registry backed by the given connection store
func NewRegistry(connections storage.ConnectionStore) *Registry {
	return &Registry{
		dispatchers: make(map[string]Dispatcher),
		connections: connections,
	}
}

// Register adds a dispatcher to the registry
func (r *Registry) Register(d Dispatcher) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.dispatchers[d.Name()] = d
}

// Names returns the registered integration names
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.dispatchers))
	for name := range r.dispatchers {
		names = append(names, name)
	}

	return names
}

// Dispatch routes one step to its connector. Stored connection settings
// are passed alongside the step config so connectors never read storage
// themselves.
func (r *Registry) Dispatch(ctx context.Context, accountID, integration, action string, config map[string]interface{}) (map[string]interface{}, error) {
	r.mu.RLock()
	dispatcher, ok := r.dispatchers[integration]
	r.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownIntegration, integration)
	}

	var settings map[string]interface{}
	if r.connections != nil {
		conn, err := r.connections.GetConnectionForIntegration(accountID, integration)
		if err == nil {
			settings = conn.Settings
		} else if err != storage.ErrConnectionNotFound {
			return nil, fmt.Errorf("failed to resolve connection for %s: %w", integration, err)
		}
	}

	return dispatcher.Dispatch(ctx, Request{
		AccountID: accountID,
		Action:    action,
		Config:    config,
		Settings:  settings,
	})
}
