// Package api provides the HTTP API server.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/agenthive/agenthive/pkg/auth"
	"github.com/agenthive/agenthive/pkg/config"
	"github.com/agenthive/agenthive/pkg/credits"
	"github.com/agenthive/agenthive/pkg/executor"
	"github.com/agenthive/agenthive/pkg/middleware"
	"github.com/agenthive/agenthive/pkg/models"
	"github.com/agenthive/agenthive/pkg/registry"
	"github.com/agenthive/agenthive/pkg/services"
	"github.com/agenthive/agenthive/pkg/storage"
	"github.com/agenthive/agenthive/pkg/workflow"
)

// Scheduler registers and removes cron entries as schedules are
// created and deleted through the API. A nil scheduler disables cron
// integration.
type Scheduler interface {
	// Register adds a schedule to the cron runner
	Register(schedule models.Schedule) error

	// Unregister removes a schedule from the cron runner
	Unregister(scheduleID string)
}

// Dependencies bundles everything the server needs. All fields are
// required unless noted.
type Dependencies struct {
	Accounts    auth.AccountService
	JWT         *services.JWTService
	Credits     *services.CreditService
	Workflows   *registry.WorkflowRegistry
	Agents      *registry.AgentRegistry
	Connections *registry.ConnectionRegistry
	Schedules   storage.ScheduleStore
	Executions  storage.ExecutionStore
	Manager     *executor.Manager
	Executor    *executor.Executor
	Scheduler   Scheduler    // optional
	Hub         *Hub         // optional
	Events      *EventBroker // optional
	Limiter     middleware.Limiter
	Logger      *log.Logger
}

// Server represents the HTTP API server
type Server struct {
	config *config.Config
	router *mux.Router
	server *http.Server
	deps   Dependencies
	logger *log.Logger
}

// NewServer creates a new API server
func NewServer(cfg *config.Config, deps Dependencies) *Server {
	if deps.Logger == nil {
		deps.Logger = log.Default()
	}
	s := &Server{
		config: cfg,
		router: mux.NewRouter(),
		deps:   deps,
		logger: deps.Logger,
	}

	s.setupRoutes()
	return s
}

// Router returns the configured handler, mostly for tests
func (s *Server) Router() http.Handler {
	return s.router
}

// Start starts the HTTP server
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Server.Host, s.config.Server.Port)
	s.server = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	s.logger.Printf("Starting HTTP server on %s", addr)

	var err error
	if s.config.Server.TLS.Enabled {
		err = s.server.ListenAndServeTLS(
			s.config.Server.TLS.CertFile,
			s.config.Server.TLS.KeyFile,
		)
	} else {
		err = s.server.ListenAndServe()
	}

	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Stop stops the HTTP server gracefully
func (s *Server) Stop(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

// setupRoutes configures the API routes
func (s *Server) setupRoutes() {
	authMiddleware := middleware.NewAuthMiddleware(s.deps.Accounts, s.deps.JWT, s.deps.Limiter)
	adminMiddleware := middleware.NewAdminMiddleware(s.config.Auth.AdminAPIKey)

	api := s.router.PathPrefix("/api/v1").Subrouter()

	// Public routes
	api.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet, http.MethodOptions)
	api.HandleFunc("/login", s.handleLogin).Methods(http.MethodPost, http.MethodOptions)
	api.HandleFunc("/accounts", s.handleCreateAccount).Methods(http.MethodPost, http.MethodOptions)

	// The payment processor authenticates with a signature, not a token
	api.HandleFunc("/billing/webhook", s.handleBillingWebhook).Methods(http.MethodPost)

	// Admin routes gated on the shared admin secret
	admin := api.PathPrefix("/billing/credits").Subrouter()
	admin.Use(adminMiddleware.Require)
	admin.HandleFunc("", s.handleAddCredits).Methods(http.MethodPost)

	// Authenticated routes
	authenticated := api.PathPrefix("").Subrouter()
	authenticated.Use(authMiddleware.Authenticate)

	authenticated.HandleFunc("/accounts/me", s.handleCurrentAccount).Methods(http.MethodGet, http.MethodOptions)

	agents := authenticated.PathPrefix("/agents").Subrouter()
	agents.HandleFunc("", s.handleListAgents).Methods(http.MethodGet, http.MethodOptions)
	agents.HandleFunc("", s.handleCreateAgent).Methods(http.MethodPost, http.MethodOptions)
	agents.HandleFunc("/{id}", s.handleGetAgent).Methods(http.MethodGet, http.MethodOptions)
	agents.HandleFunc("/{id}", s.handleUpdateAgent).Methods(http.MethodPatch, http.MethodOptions)
	agents.HandleFunc("/{id}", s.handleDeleteAgent).Methods(http.MethodDelete, http.MethodOptions)

	workflows := authenticated.PathPrefix("/workflows").Subrouter()
	// The execute routes must register before /{id} so mux does not
	// treat "execute" as a workflow id
	workflows.HandleFunc("/execute", s.handleExecuteWorkflow).Methods(http.MethodPost, http.MethodOptions)
	workflows.HandleFunc("/execute", s.handlePollExecution).Methods(http.MethodGet, http.MethodOptions)
	workflows.HandleFunc("/execute", s.handleCancelExecution).Methods(http.MethodDelete, http.MethodOptions)
	workflows.HandleFunc("", s.handleListWorkflows).Methods(http.MethodGet, http.MethodOptions)
	workflows.HandleFunc("", s.handleCreateWorkflow).Methods(http.MethodPost, http.MethodOptions)
	workflows.HandleFunc("/{id}", s.handleGetWorkflow).Methods(http.MethodGet, http.MethodOptions)
	workflows.HandleFunc("/{id}", s.handleUpdateWorkflow).Methods(http.MethodPatch, http.MethodOptions)
	workflows.HandleFunc("/{id}", s.handleDeleteWorkflow).Methods(http.MethodDelete, http.MethodOptions)
	workflows.HandleFunc("/{id}/schedules", s.handleListSchedules).Methods(http.MethodGet, http.MethodOptions)
	workflows.HandleFunc("/{id}/schedules", s.handleCreateSchedule).Methods(http.MethodPost, http.MethodOptions)
	workflows.HandleFunc("/{id}/schedules/{scheduleID}", s.handleDeleteSchedule).Methods(http.MethodDelete, http.MethodOptions)

	executions := authenticated.PathPrefix("/executions").Subrouter()
	executions.HandleFunc("/events", s.handleExecutionEvents).Methods(http.MethodGet, http.MethodOptions)
	executions.HandleFunc("/{id}/logs", s.handleExecutionLogs).Methods(http.MethodGet, http.MethodOptions)
	executions.HandleFunc("/{id}/ws", s.handleExecutionSocket).Methods(http.MethodGet)

	billing := authenticated.PathPrefix("/billing").Subrouter()
	billing.HandleFunc("/subscription/limits", s.handleUsageSummary).Methods(http.MethodGet, http.MethodOptions)
	billing.HandleFunc("/subscription/limits", s.handleCheckLimit).Methods(http.MethodPost, http.MethodOptions)

	connections := authenticated.PathPrefix("/integrations/connections").Subrouter()
	connections.HandleFunc("", s.handleListConnections).Methods(http.MethodGet, http.MethodOptions)
	connections.HandleFunc("", s.handleCreateConnection).Methods(http.MethodPost, http.MethodOptions)
	connections.HandleFunc("/{id}", s.handleGetConnection).Methods(http.MethodGet, http.MethodOptions)
	connections.HandleFunc("/{id}", s.handleDeleteConnection).Methods(http.MethodDelete, http.MethodOptions)

	s.router.Use(middleware.CORS)
}

// handleHealth handles the health check endpoint
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status": "ok",
		"time":   time.Now().Format(time.RFC3339),
	})
}

// errorBody is the JSON error envelope every handler returns on failure
type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, map[string]errorBody{
		"error": {Code: code, Message: message},
	})
}

// respondError translates domain errors into the HTTP error taxonomy.
// Unrecognized errors become a 500 with a generated error id; the
// detail stays in the server log.
func (s *Server) respondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, registry.ErrNotOwner):
		writeError(w, http.StatusForbidden, "forbidden", "access denied")
	case errors.Is(err, storage.ErrWorkflowNotFound),
		errors.Is(err, storage.ErrExecutionNotFound),
		errors.Is(err, storage.ErrAccountNotFound),
		errors.Is(err, storage.ErrCreditAccountNotFound),
		errors.Is(err, storage.ErrAgentNotFound),
		errors.Is(err, storage.ErrConnectionNotFound),
		errors.Is(err, storage.ErrScheduleNotFound):
		writeError(w, http.StatusNotFound, "not_found", err.Error())
	case errors.Is(err, workflow.ErrInvalidDefinition),
		errors.Is(err, workflow.ErrNotActive),
		errors.Is(err, credits.ErrInvalidAmount),
		errors.Is(err, credits.ErrUnknownResource):
		writeError(w, http.StatusBadRequest, "validation", err.Error())
	case errors.Is(err, registry.ErrLimitExceeded),
		errors.Is(err, credits.ErrInsufficientCredits),
		errors.Is(err, executor.ErrNotRunning):
		writeError(w, http.StatusConflict, "conflict", err.Error())
	case errors.Is(err, executor.ErrQueueFull),
		errors.Is(err, executor.ErrManagerStopped):
		writeError(w, http.StatusServiceUnavailable, "unavailable", err.Error())
	default:
		errorID := uuid.New().String()
		s.logger.Printf("internal error %s: %v", errorID, err)
		writeError(w, http.StatusInternalServerError, "internal",
			fmt.Sprintf("internal error (reference %s)", errorID))
	}
}

// requireAccount pulls the authenticated account id or answers 401
func requireAccount(w http.ResponseWriter, r *http.Request) (string, bool) {
	accountID, ok := middleware.GetAccountID(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "authentication required")
	}
	return accountID, ok
}
