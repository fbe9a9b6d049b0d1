package api

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/agenthive/agenthive/pkg/models"
)

// handleListConnections handles GET /api/v1/integrations/connections.
// Stored credentials are redacted from the listing.
func (s *Server) handleListConnections(w http.ResponseWriter, r *http.Request) {
	accountID, ok := requireAccount(w, r)
	if !ok {
		return
	}

	connections, err := s.deps.Connections.List(accountID)
	if err != nil {
		s.respondError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, connections)
}

// handleCreateConnection handles POST /api/v1/integrations/connections.
// A second create for the same integration replaces the stored settings.
func (s *Server) handleCreateConnection(w http.ResponseWriter, r *http.Request) {
	accountID, ok := requireAccount(w, r)
	if !ok {
		return
	}

	var conn models.IntegrationConnection
	if err := json.NewDecoder(r.Body).Decode(&conn); err != nil {
		writeError(w, http.StatusBadRequest, "validation", "invalid request body")
		return
	}
	if conn.Integration == "" {
		writeError(w, http.StatusBadRequest, "validation", "integration name is required")
		return
	}

	created, err := s.deps.Connections.Create(accountID, conn)
	if err != nil {
		s.respondError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, created)
}

// handleGetConnection handles GET /api/v1/integrations/connections/{id}
func (s *Server) handleGetConnection(w http.ResponseWriter, r *http.Request) {
	accountID, ok := requireAccount(w, r)
	if !ok {
		return
	}

	conn, err := s.deps.Connections.Get(accountID, mux.Vars(r)["id"])
	if err != nil {
		s.respondError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, conn)
}

// handleDeleteConnection handles DELETE /api/v1/integrations/connections/{id}
func (s *Server) handleDeleteConnection(w http.ResponseWriter, r *http.Request) {
	accountID, ok := requireAccount(w, r)
	if !ok {
		return
	}

	if err := s.deps.Connections.Delete(accountID, mux.Vars(r)["id"]); err != nil {
		s.respondError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
