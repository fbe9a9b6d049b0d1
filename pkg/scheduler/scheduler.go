// Package scheduler triggers workflow executions on cron schedules.
package scheduler

import (
	"log"
	"sync"

	"github.com/robfig/cron/v3"

	"github.com/agenthive/agenthive/pkg/models"
	"github.com/agenthive/agenthive/pkg/storage"
	"github.com/agenthive/agenthive/pkg/workflow"
)

// WorkflowRunner enqueues a workflow run. Satisfied by
// executor.Manager.
type WorkflowRunner interface {
	Execute(wf workflow.Workflow, input map[string]interface{}) (string, error)
}

// CronScheduler runs persisted schedules through a cron runner. On
// Start it registers every enabled schedule from storage; the API
// registers and unregisters entries as schedules change.
type CronScheduler struct {
	cron      *cron.Cron
	schedules storage.ScheduleStore
	workflows storage.WorkflowStore
	runner    WorkflowRunner
	logger    *log.Logger

	mu      sync.Mutex
	entries map[string]cron.EntryID
}

// New creates a cron scheduler
func New(schedules storage.ScheduleStore, workflows storage.WorkflowStore, runner WorkflowRunner, logger *log.Logger) *CronScheduler {
	if logger == nil {
		logger = log.Default()
	}
	return &CronScheduler{
		cron:      cron.New(),
		schedules: schedules,
		workflows: workflows,
		runner:    runner,
		logger:    logger,
		entries:   make(map[string]cron.EntryID),
	}
}

// Start loads persisted schedules and starts the cron runner
func (s *CronScheduler) Start() error {
	schedules, err := s.schedules.ListSchedules()
	if err != nil {
		return err
	}

	for _, schedule := range schedules {
		if !schedule.Enabled {
			continue
		}
		if err := s.Register(schedule); err != nil {
			s.logger.Printf("skipping schedule %s: %v", schedule.ID, err)
		}
	}

	s.cron.Start()
	return nil
}

// Stop stops the cron runner. Entries that already fired keep running
// through the execution manager.
func (s *CronScheduler) Stop() {
	s.cron.Stop()
}

// Register adds a schedule to the cron runner
func (s *CronScheduler) Register(schedule models.Schedule) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if id, ok := s.entries[schedule.ID]; ok {
		s.cron.Remove(id)
	}

	entryID, err := s.cron.AddFunc(schedule.Expression, func() {
		s.fire(schedule)
	})
	if err != nil {
		return err
	}

	s.entries[schedule.ID] = entryID
	return nil
}

// Unregister removes a schedule from the cron runner
func (s *CronScheduler) Unregister(scheduleID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if id, ok := s.entries[scheduleID]; ok {
		s.cron.Remove(id)
		delete(s.entries, scheduleID)
	}
}

// fire triggers one scheduled run. Failures are logged; the next tick
// tries again.
func (s *CronScheduler) fire(schedule models.Schedule) {
	wf, err := s.workflows.GetWorkflow(schedule.WorkflowID)
	if err != nil {
		s.logger.Printf("schedule %s: workflow %s unavailable: %v", schedule.ID, schedule.WorkflowID, err)
		return
	}
	if wf.Status != workflow.StatusActive {
		s.logger.Printf("schedule %s: workflow %s is %s, skipping", schedule.ID, wf.ID, wf.Status)
		return
	}

	executionID, err := s.runner.Execute(wf, schedule.Input)
	if err != nil {
		s.logger.Printf("schedule %s: trigger failed: %v", schedule.ID, err)
		return
	}

	s.logger.Printf("schedule %s triggered execution %s", schedule.ID, executionID)
}
