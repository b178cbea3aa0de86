package mlrunner

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
)

// Schedule is one registered recurring script run.
type Schedule struct {
	ID     string            `json:"schedule_id"`
	Script string            `json:"script"`
	Cron   string            `json:"cron"`
	Flags  map[string]string `json:"flags,omitempty"`
}

// Scheduler re-runs registered script jobs on cron expressions.
type Scheduler struct {
	cron   *cron.Cron
	jobs   *Jobs
	logger *slog.Logger

	mu        sync.Mutex
	entries   map[string]cron.EntryID // schedule ID → cron entry
	schedules map[string]Schedule
}

// NewScheduler creates a scheduler that submits jobs through the given
// job manager.
func NewScheduler(jobs *Jobs, logger *slog.Logger) *Scheduler {
	return &Scheduler{
		cron:      cron.New(),
		jobs:      jobs,
		logger:    logger,
		entries:   make(map[string]cron.EntryID),
		schedules: make(map[string]Schedule),
	}
}

// Start starts the cron loop.
func (s *Scheduler) Start() {
	s.cron.Start()
	s.logger.Info("job scheduler started")
}

// Stop stops the cron loop; already-running jobs keep running.
func (s *Scheduler) Stop() {
	s.cron.Stop()
	s.logger.Info("job scheduler stopped")
}

// Add registers a recurring run of script with the given cron spec.
func (s *Scheduler) Add(spec, script string, data any, flags map[string]string) (Schedule, error) {
	sched := Schedule{
		ID:     uuid.NewString(),
		Script: script,
		Cron:   spec,
		Flags:  flags,
	}

	entryID, err := s.cron.AddFunc(spec, func() {
		job := s.jobs.Submit(context.Background(), script, data, flags)
		s.logger.Info("scheduled job submitted",
			"schedule_id", sched.ID,
			"script", script,
			"job_id", job.ID,
		)
	})
	if err != nil {
		return Schedule{}, fmt.Errorf("mlrunner: invalid cron spec %q: %w", spec, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[sched.ID] = entryID
	s.schedules[sched.ID] = sched
	return sched, nil
}

// Remove unregisters a schedule.
func (s *Scheduler) Remove(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entryID, ok := s.entries[id]
	if !ok {
		return fmt.Errorf("mlrunner: schedule %s not found", id)
	}
	s.cron.Remove(entryID)
	delete(s.entries, id)
	delete(s.schedules, id)
	return nil
}

// List returns a snapshot of the registered schedules.
func (s *Scheduler) List() []Schedule {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Schedule, 0, len(s.schedules))
	for _, sched := range s.schedules {
		out = append(out, sched)
	}
	return out
}
