package api

import (
	"encoding/json"
	"log"
	"net/http"
	"sync"

	"github.com/r3labs/sse/v2"

	"github.com/agenthive/agenthive/pkg/workflow"
)

// EventBroker pushes execution lifecycle events to SSE subscribers.
// Each account gets its own stream, so tenants never see each other's
// executions.
type EventBroker struct {
	server  *sse.Server
	streams map[string]bool
	mu      sync.Mutex
	logger  *log.Logger
}

// NewEventBroker creates an SSE event broker
func NewEventBroker(logger *log.Logger) *EventBroker {
	if logger == nil {
		logger = log.Default()
	}
	server := sse.New()
	server.AutoReplay = false
	return &EventBroker{
		server:  server,
		streams: make(map[string]bool),
		logger:  logger,
	}
}

// ExecutionEvent implements executor.Notifier
func (b *EventBroker) ExecutionEvent(exec workflow.Execution) {
	data, err := json.Marshal(ExecutionUpdate{
		Type:        "status",
		ExecutionID: exec.ID,
		Status:      exec.Status,
		Execution:   exec,
	})
	if err != nil {
		b.logger.Printf("failed to encode execution event %s: %v", exec.ID, err)
		return
	}

	b.ensureStream(exec.AccountID)
	b.server.Publish(exec.AccountID, &sse.Event{
		Event: []byte("execution"),
		Data:  data,
	})
}

// Close shuts the broker down and disconnects subscribers
func (b *EventBroker) Close() {
	b.server.Close()
}

func (b *EventBroker) ensureStream(accountID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.streams[accountID] {
		b.server.CreateStream(accountID)
		b.streams[accountID] = true
	}
}

// serveHTTP subscribes the request to the account's stream
func (b *EventBroker) serveHTTP(w http.ResponseWriter, r *http.Request, accountID string) {
	b.ensureStream(accountID)

	// The stream is chosen by the authenticated account, never by the
	// client
	q := r.URL.Query()
	q.Set("stream", accountID)
	r.URL.RawQuery = q.Encode()

	b.server.ServeHTTP(w, r)
}

// handleExecutionEvents handles GET /api/v1/executions/events (SSE)
func (s *Server) handleExecutionEvents(w http.ResponseWriter, r *http.Request) {
	accountID, ok := requireAccount(w, r)
	if !ok {
		return
	}
	if s.deps.Events == nil {
		writeError(w, http.StatusServiceUnavailable, "unavailable", "streaming is not enabled")
		return
	}

	s.deps.Events.serveHTTP(w, r, accountID)
}
