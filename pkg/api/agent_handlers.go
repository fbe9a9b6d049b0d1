package api

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/agenthive/agenthive/pkg/models"
)

// AgentPatch carries a partial agent update; nil fields are untouched
type AgentPatch struct {
	Name          *string                 `json:"name,omitempty"`
	Role          *string                 `json:"role,omitempty"`
	Persona       *string                 `json:"persona,omitempty"`
	ModelSettings *map[string]interface{} `json:"model_settings,omitempty"`
	Active        *bool                   `json:"active,omitempty"`
}

// handleListAgents handles GET /api/v1/agents
func (s *Server) handleListAgents(w http.ResponseWriter, r *http.Request) {
	accountID, ok := requireAccount(w, r)
	if !ok {
		return
	}

	agents, err := s.deps.Agents.List(accountID)
	if err != nil {
		s.respondError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, agents)
}

// handleCreateAgent handles POST /api/v1/agents
func (s *Server) handleCreateAgent(w http.ResponseWriter, r *http.Request) {
	accountID, ok := requireAccount(w, r)
	if !ok {
		return
	}

	var agent models.Agent
	if err := json.NewDecoder(r.Body).Decode(&agent); err != nil {
		writeError(w, http.StatusBadRequest, "validation", "invalid request body")
		return
	}
	if agent.Name == "" {
		writeError(w, http.StatusBadRequest, "validation", "agent name is required")
		return
	}

	created, err := s.deps.Agents.Create(accountID, agent)
	if err != nil {
		s.respondError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, created)
}

// handleGetAgent handles GET /api/v1/agents/{id}
func (s *Server) handleGetAgent(w http.ResponseWriter, r *http.Request) {
	accountID, ok := requireAccount(w, r)
	if !ok {
		return
	}

	agent, err := s.deps.Agents.Get(accountID, mux.Vars(r)["id"])
	if err != nil {
		s.respondError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, agent)
}

// handleUpdateAgent handles PATCH /api/v1/agents/{id}
func (s *Server) handleUpdateAgent(w http.ResponseWriter, r *http.Request) {
	accountID, ok := requireAccount(w, r)
	if !ok {
		return
	}

	agentID := mux.Vars(r)["id"]
	agent, err := s.deps.Agents.Get(accountID, agentID)
	if err != nil {
		s.respondError(w, err)
		return
	}

	var patch AgentPatch
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		writeError(w, http.StatusBadRequest, "validation", "invalid request body")
		return
	}

	if patch.Name != nil {
		agent.Name = *patch.Name
	}
	if patch.Role != nil {
		agent.Role = *patch.Role
	}
	if patch.Persona != nil {
		agent.Persona = *patch.Persona
	}
	if patch.ModelSettings != nil {
		agent.ModelSettings = *patch.ModelSettings
	}
	if patch.Active != nil {
		agent.Active = *patch.Active
	}

	updated, err := s.deps.Agents.Update(accountID, agentID, agent)
	if err != nil {
		s.respondError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, updated)
}

// handleDeleteAgent handles DELETE /api/v1/agents/{id}
func (s *Server) handleDeleteAgent(w http.ResponseWriter, r *http.Request) {
	accountID, ok := requireAccount(w, r)
	if !ok {
		return
	}

	if err := s.deps.Agents.Delete(accountID, mux.Vars(r)["id"]); err != nil {
		s.respondError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
