package api

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/agenthive/agenthive/pkg/registry"
	"github.com/agenthive/agenthive/pkg/workflow"
)

// ExecuteRequest triggers a workflow run. Simulate returns a dry-run
// plan without side effects; Async enqueues and returns an execution id
// immediately instead of waiting for the terminal state.
type ExecuteRequest struct {
	WorkflowID string                 `json:"workflowId"`
	Input      map[string]interface{} `json:"input,omitempty"`
	Simulate   bool                   `json:"simulate,omitempty"`
	Async      bool                   `json:"async,omitempty"`
}

// ExecuteResponse wraps the execution returned by a trigger
type ExecuteResponse struct {
	Execution workflow.Execution `json:"execution"`
}

// handleExecuteWorkflow handles POST /api/v1/workflows/execute
func (s *Server) handleExecuteWorkflow(w http.ResponseWriter, r *http.Request) {
	accountID, ok := requireAccount(w, r)
	if !ok {
		return
	}

	var req ExecuteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "validation", "invalid request body")
		return
	}
	if req.WorkflowID == "" {
		writeError(w, http.StatusBadRequest, "validation", "workflowId is required")
		return
	}

	// The ownership check happens here, before anything runs
	wf, err := s.deps.Workflows.Get(accountID, req.WorkflowID)
	if err != nil {
		s.respondError(w, err)
		return
	}

	if req.Simulate {
		plan, err := s.deps.Executor.Simulate(wf)
		if err != nil {
			s.respondError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{"plan": plan})
		return
	}

	if req.Async {
		executionID, err := s.deps.Manager.Execute(wf, req.Input)
		if err != nil {
			s.respondError(w, err)
			return
		}
		writeJSON(w, http.StatusAccepted, map[string]string{
			"execution_id": executionID,
			"status":       string(workflow.ExecutionPending),
		})
		return
	}

	exec, err := s.deps.Manager.ExecuteSync(r.Context(), wf, req.Input)
	if err != nil {
		s.respondError(w, err)
		return
	}

	// A failed run is still a 200; the status travels in the payload
	writeJSON(w, http.StatusOK, ExecuteResponse{Execution: exec})
}

// handlePollExecution handles GET /api/v1/workflows/execute. With an
// executionId it returns that execution; without one it lists the
// account's in-flight executions.
func (s *Server) handlePollExecution(w http.ResponseWriter, r *http.Request) {
	accountID, ok := requireAccount(w, r)
	if !ok {
		return
	}

	executionID := r.URL.Query().Get("executionId")
	if executionID == "" {
		active := make([]workflow.Execution, 0)
		for _, id := range s.deps.Manager.Active() {
			exec, err := s.deps.Executions.GetExecution(id)
			if err != nil || exec.AccountID != accountID {
				continue
			}
			active = append(active, exec)
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{"active": active})
		return
	}

	exec, err := s.ownedExecution(accountID, executionID)
	if err != nil {
		s.respondError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, ExecuteResponse{Execution: exec})
}

// handleCancelExecution handles DELETE /api/v1/workflows/execute?executionId=
func (s *Server) handleCancelExecution(w http.ResponseWriter, r *http.Request) {
	accountID, ok := requireAccount(w, r)
	if !ok {
		return
	}

	executionID := r.URL.Query().Get("executionId")
	if executionID == "" {
		writeError(w, http.StatusBadRequest, "validation", "executionId is required")
		return
	}

	if _, err := s.ownedExecution(accountID, executionID); err != nil {
		s.respondError(w, err)
		return
	}

	if err := s.deps.Manager.Cancel(executionID); err != nil {
		s.respondError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"execution_id": executionID,
		"status":       string(workflow.ExecutionCancelled),
	})
}

// handleExecutionLogs handles GET /api/v1/executions/{id}/logs
func (s *Server) handleExecutionLogs(w http.ResponseWriter, r *http.Request) {
	accountID, ok := requireAccount(w, r)
	if !ok {
		return
	}

	executionID := mux.Vars(r)["id"]
	if _, err := s.ownedExecution(accountID, executionID); err != nil {
		s.respondError(w, err)
		return
	}

	logs, err := s.deps.Executions.GetExecutionLogs(executionID)
	if err != nil {
		s.respondError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"logs": logs})
}

// ownedExecution fetches an execution and enforces ownership
func (s *Server) ownedExecution(accountID, executionID string) (workflow.Execution, error) {
	exec, err := s.deps.Executions.GetExecution(executionID)
	if err != nil {
		return workflow.Execution{}, err
	}
	if exec.AccountID != accountID {
		return workflow.Execution{}, registry.ErrNotOwner
	}
	return exec, nil
}
