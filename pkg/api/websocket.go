package api

import (
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"github.com/agenthive/agenthive/pkg/workflow"
)

// ExecutionUpdate is the message pushed to websocket subscribers when
// an execution changes state
type ExecutionUpdate struct {
	Type        string                  `json:"type"` // "status"
	ExecutionID string                  `json:"execution_id"`
	Status      workflow.ExecutionState `json:"status"`
	Timestamp   time.Time               `json:"timestamp"`
	Execution   workflow.Execution      `json:"execution"`
}

// Hub fans execution lifecycle events out to websocket subscribers.
// Each connection watches a single execution.
type Hub struct {
	upgrader    websocket.Upgrader
	subscribers map[string]map[*websocket.Conn]bool
	mu          sync.Mutex
	logger      *log.Logger
}

// NewHub creates a websocket hub
func NewHub(logger *log.Logger) *Hub {
	if logger == nil {
		logger = log.Default()
	}
	return &Hub{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
		subscribers: make(map[string]map[*websocket.Conn]bool),
		logger:      logger,
	}
}

// ExecutionEvent implements executor.Notifier. Terminal events close
// the subscriber connections after delivery.
func (h *Hub) ExecutionEvent(exec workflow.Execution) {
	update := ExecutionUpdate{
		Type:        "status",
		ExecutionID: exec.ID,
		Status:      exec.Status,
		Timestamp:   time.Now(),
		Execution:   exec,
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	conns := h.subscribers[exec.ID]
	for conn := range conns {
		conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
		if err := conn.WriteJSON(update); err != nil {
			h.logger.Printf("websocket write for execution %s failed: %v", exec.ID, err)
			conn.Close()
			delete(conns, conn)
		}
	}

	if exec.Status.Terminal() {
		for conn := range conns {
			conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, string(exec.Status)),
				time.Now().Add(time.Second))
			conn.Close()
		}
		delete(h.subscribers, exec.ID)
	}
}

// Serve upgrades the request and subscribes it to one execution. It
// blocks until the client disconnects or the execution finishes.
func (h *Hub) Serve(w http.ResponseWriter, r *http.Request, executionID string) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Printf("websocket upgrade failed: %v", err)
		return
	}

	h.mu.Lock()
	if h.subscribers[executionID] == nil {
		h.subscribers[executionID] = make(map[*websocket.Conn]bool)
	}
	h.subscribers[executionID][conn] = true
	h.mu.Unlock()

	defer func() {
		h.mu.Lock()
		if conns, ok := h.subscribers[executionID]; ok {
			delete(conns, conn)
			if len(conns) == 0 {
				delete(h.subscribers, executionID)
			}
		}
		h.mu.Unlock()
		conn.Close()
	}()

	// Drain the read side so pings and close frames are processed
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

// handleExecutionSocket handles GET /api/v1/executions/{id}/ws
func (s *Server) handleExecutionSocket(w http.ResponseWriter, r *http.Request) {
	accountID, ok := requireAccount(w, r)
	if !ok {
		return
	}
	if s.deps.Hub == nil {
		writeError(w, http.StatusServiceUnavailable, "unavailable", "streaming is not enabled")
		return
	}

	executionID := mux.Vars(r)["id"]
	if _, err := s.ownedExecution(accountID, executionID); err != nil {
		s.respondError(w, err)
		return
	}

	s.deps.Hub.Serve(w, r, executionID)
}
