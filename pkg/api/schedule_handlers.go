package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/robfig/cron/v3"

	"github.com/agenthive/agenthive/pkg/models"
	"github.com/agenthive/agenthive/pkg/registry"
)

// ScheduleRequest creates a schedule for a workflow
type ScheduleRequest struct {
	Expression string                 `json:"expression"`
	Input      map[string]interface{} `json:"input,omitempty"`
	Enabled    *bool                  `json:"enabled,omitempty"`
}

// handleListSchedules handles GET /api/v1/workflows/{id}/schedules
func (s *Server) handleListSchedules(w http.ResponseWriter, r *http.Request) {
	accountID, ok := requireAccount(w, r)
	if !ok {
		return
	}

	workflowID := mux.Vars(r)["id"]
	if _, err := s.deps.Workflows.Get(accountID, workflowID); err != nil {
		s.respondError(w, err)
		return
	}

	schedules, err := s.deps.Schedules.ListSchedulesForWorkflow(workflowID)
	if err != nil {
		s.respondError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, schedules)
}

// handleCreateSchedule handles POST /api/v1/workflows/{id}/schedules
func (s *Server) handleCreateSchedule(w http.ResponseWriter, r *http.Request) {
	accountID, ok := requireAccount(w, r)
	if !ok {
		return
	}

	workflowID := mux.Vars(r)["id"]
	if _, err := s.deps.Workflows.Get(accountID, workflowID); err != nil {
		s.respondError(w, err)
		return
	}

	var req ScheduleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "validation", "invalid request body")
		return
	}

	if _, err := cron.ParseStandard(req.Expression); err != nil {
		writeError(w, http.StatusBadRequest, "validation", "invalid cron expression: "+err.Error())
		return
	}

	enabled := true
	if req.Enabled != nil {
		enabled = *req.Enabled
	}

	schedule := models.Schedule{
		ID:         uuid.New().String(),
		AccountID:  accountID,
		WorkflowID: workflowID,
		Expression: req.Expression,
		Input:      req.Input,
		Enabled:    enabled,
		CreatedAt:  time.Now(),
	}

	if err := s.deps.Schedules.SaveSchedule(schedule); err != nil {
		s.respondError(w, err)
		return
	}

	if s.deps.Scheduler != nil && schedule.Enabled {
		if err := s.deps.Scheduler.Register(schedule); err != nil {
			s.logger.Printf("failed to register schedule %s: %v", schedule.ID, err)
		}
	}

	writeJSON(w, http.StatusCreated, schedule)
}

// handleDeleteSchedule handles DELETE /api/v1/workflows/{id}/schedules/{scheduleID}
func (s *Server) handleDeleteSchedule(w http.ResponseWriter, r *http.Request) {
	accountID, ok := requireAccount(w, r)
	if !ok {
		return
	}

	vars := mux.Vars(r)
	schedule, err := s.deps.Schedules.GetSchedule(vars["scheduleID"])
	if err != nil {
		s.respondError(w, err)
		return
	}
	if schedule.AccountID != accountID || schedule.WorkflowID != vars["id"] {
		s.respondError(w, registry.ErrNotOwner)
		return
	}

	if err := s.deps.Schedules.DeleteSchedule(schedule.ID); err != nil {
		s.respondError(w, err)
		return
	}

	if s.deps.Scheduler != nil {
		s.deps.Scheduler.Unregister(schedule.ID)
	}

	w.WriteHeader(http.StatusNoContent)
}
