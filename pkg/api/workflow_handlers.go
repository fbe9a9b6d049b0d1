package api

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/agenthive/agenthive/pkg/workflow"
)

// recentExecutionLimit caps the executions embedded in a workflow fetch
const recentExecutionLimit = 10

// WorkflowPatch carries a partial workflow update; nil fields are
// untouched. Steps use the same "nodes" wire name as the full model.
type WorkflowPatch struct {
	Name        *string          `json:"name,omitempty"`
	Description *string          `json:"description,omitempty"`
	AgentID     *string          `json:"agent_id,omitempty"`
	Steps       *[]workflow.Step `json:"nodes,omitempty"`
	Status      *workflow.Status `json:"status,omitempty"`
}

// WorkflowDetail is a workflow with its recent executions attached
type WorkflowDetail struct {
	workflow.Workflow
	RecentExecutions []workflow.Execution `json:"recent_executions"`
}

// handleListWorkflows handles GET /api/v1/workflows
func (s *Server) handleListWorkflows(w http.ResponseWriter, r *http.Request) {
	accountID, ok := requireAccount(w, r)
	if !ok {
		return
	}

	workflows, err := s.deps.Workflows.List(accountID)
	if err != nil {
		s.respondError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, workflows)
}

// handleCreateWorkflow handles POST /api/v1/workflows
func (s *Server) handleCreateWorkflow(w http.ResponseWriter, r *http.Request) {
	accountID, ok := requireAccount(w, r)
	if !ok {
		return
	}

	var wf workflow.Workflow
	if err := json.NewDecoder(r.Body).Decode(&wf); err != nil {
		writeError(w, http.StatusBadRequest, "validation", "invalid request body")
		return
	}

	created, err := s.deps.Workflows.Create(accountID, wf)
	if err != nil {
		s.respondError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, created)
}

// handleGetWorkflow handles GET /api/v1/workflows/{id}
func (s *Server) handleGetWorkflow(w http.ResponseWriter, r *http.Request) {
	accountID, ok := requireAccount(w, r)
	if !ok {
		return
	}

	workflowID := mux.Vars(r)["id"]
	wf, err := s.deps.Workflows.Get(accountID, workflowID)
	if err != nil {
		s.respondError(w, err)
		return
	}

	recent, err := s.deps.Workflows.RecentExecutions(accountID, workflowID, recentExecutionLimit)
	if err != nil {
		s.respondError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, WorkflowDetail{
		Workflow:         wf,
		RecentExecutions: recent,
	})
}

// handleUpdateWorkflow handles PATCH /api/v1/workflows/{id}
func (s *Server) handleUpdateWorkflow(w http.ResponseWriter, r *http.Request) {
	accountID, ok := requireAccount(w, r)
	if !ok {
		return
	}

	workflowID := mux.Vars(r)["id"]
	wf, err := s.deps.Workflows.Get(accountID, workflowID)
	if err != nil {
		s.respondError(w, err)
		return
	}

	var patch WorkflowPatch
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		writeError(w, http.StatusBadRequest, "validation", "invalid request body")
		return
	}

	if patch.Name != nil {
		wf.Name = *patch.Name
	}
	if patch.Description != nil {
		wf.Description = *patch.Description
	}
	if patch.AgentID != nil {
		wf.AgentID = *patch.AgentID
	}
	if patch.Steps != nil {
		wf.Steps = *patch.Steps
	}
	if patch.Status != nil {
		wf.Status = *patch.Status
	}

	updated, err := s.deps.Workflows.Update(accountID, workflowID, wf)
	if err != nil {
		s.respondError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, updated)
}

// handleDeleteWorkflow handles DELETE /api/v1/workflows/{id}
func (s *Server) handleDeleteWorkflow(w http.ResponseWriter, r *http.Request) {
	accountID, ok := requireAccount(w, r)
	if !ok {
		return
	}

	if err := s.deps.Workflows.Delete(accountID, mux.Vars(r)["id"]); err != nil {
		s.respondError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
