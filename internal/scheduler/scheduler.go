// Package scheduler runs library workflows on cron schedules. Jobs live in
// memory; a restart starts from an empty schedule.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"

	"github.com/parley-sh/parley/pkg/schema"
)

// WorkflowRunner is the interface the scheduler uses to start runs.
// Satisfied by the MCP server's run tracker (avoids import cycle).
type WorkflowRunner interface {
	RunWorkflow(ctx context.Context, workflow string, vars map[string]any) error
}

// Job is one scheduled workflow.
type Job struct {
	ID            string         `json:"id"`
	Workflow      string         `json:"workflow"`
	CronExpr      string         `json:"cron"`
	Vars          map[string]any `json:"vars,omitempty"`
	CreatedAt     time.Time      `json:"created_at"`
	LastRunAt     *time.Time     `json:"last_run_at,omitempty"`
	NextRunAt     time.Time      `json:"next_run_at"`
	LastRunStatus string         `json:"last_run_status,omitempty"`
}

const tickInterval = 60 * time.Second

// Scheduler holds cron jobs and runs those that are due on a 60s ticker.
type Scheduler struct {
	runner WorkflowRunner
	parser cron.Parser
	logger *slog.Logger

	mu     sync.Mutex
	jobs   map[string]*Job
	cancel context.CancelFunc
	done   chan struct{}

	inflightMu sync.Mutex
	inflight   map[string]struct{} // job IDs currently executing (dedup)
}

// NewScheduler creates a scheduler over the given runner.
func NewScheduler(runner WorkflowRunner, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		runner:   runner,
		parser:   cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow),
		logger:   logger,
		jobs:     make(map[string]*Job),
		inflight: make(map[string]struct{}),
	}
}

// Add registers a job for a named library workflow. The cron expression uses
// the standard five fields.
func (s *Scheduler) Add(workflow, cronExpr string, vars map[string]any) (*Job, error) {
	if workflow == "" {
		return nil, schema.NewError(schema.ErrCodeValidation, "scheduled job needs a workflow name")
	}
	next, err := s.CalculateNextRun(cronExpr, time.Now().UTC())
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeValidation, "invalid cron expression %q", cronExpr).WithCause(err)
	}

	job := &Job{
		ID:        uuid.NewString(),
		Workflow:  workflow,
		CronExpr:  cronExpr,
		Vars:      vars,
		CreatedAt: time.Now().UTC(),
		NextRunAt: next,
	}

	s.mu.Lock()
	s.jobs[job.ID] = job
	s.mu.Unlock()

	s.logger.Info("scheduled job added",
		slog.String("job_id", job.ID),
		slog.String("workflow", workflow),
		slog.String("cron", cronExpr))
	return job, nil
}

// Remove deletes a job.
func (s *Scheduler) Remove(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.jobs[id]; !ok {
		return schema.NewErrorf(schema.ErrCodeNotFound, "no scheduled job %q", id)
	}
	delete(s.jobs, id)
	return nil
}

// List returns a snapshot of all jobs, oldest first.
func (s *Scheduler) List() []Job {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Job, 0, len(s.jobs))
	for _, j := range s.jobs {
		out = append(out, *j)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

// Start launches the background scheduling loop.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.done != nil {
		s.mu.Unlock()
		return fmt.Errorf("scheduler already started")
	}

	schedCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})
	s.mu.Unlock()

	go s.loop(schedCtx)
	s.logger.Info("scheduler started")
	return nil
}

func (s *Scheduler) loop(ctx context.Context) {
	defer close(s.done)

	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()

	// Run an initial tick immediately.
	s.Tick(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Tick(ctx)
		}
	}
}

// Tick runs every job that is due. Exported so tests and callers can force a
// pass without waiting for the ticker.
func (s *Scheduler) Tick(ctx context.Context) {
	now := time.Now().UTC()

	s.mu.Lock()
	due := make([]*Job, 0)
	for _, job := range s.jobs {
		if !job.NextRunAt.After(now) {
			due = append(due, job)
		}
	}
	s.mu.Unlock()

	for _, job := range due {
		if !s.tryAcquire(job.ID) {
			continue // already running (dedup)
		}
		s.runJob(ctx, job, now)
		s.release(job.ID)
	}
}

func (s *Scheduler) runJob(ctx context.Context, job *Job, now time.Time) {
	s.logger.Info("running scheduled job",
		slog.String("job_id", job.ID),
		slog.String("workflow", job.Workflow))

	err := s.runner.RunWorkflow(ctx, job.Workflow, job.Vars)
	status := "success"
	if err != nil {
		status = "error"
		s.logger.Error("scheduled job failed",
			slog.String("job_id", job.ID),
			slog.String("error", err.Error()))
	}

	next, nextErr := s.CalculateNextRun(job.CronExpr, now)

	s.mu.Lock()
	if current, ok := s.jobs[job.ID]; ok {
		ran := now
		current.LastRunAt = &ran
		current.LastRunStatus = status
		if nextErr == nil {
			current.NextRunAt = next
		}
	}
	s.mu.Unlock()
}

// tryAcquire marks the job as in-flight unless it already is.
func (s *Scheduler) tryAcquire(jobID string) bool {
	s.inflightMu.Lock()
	defer s.inflightMu.Unlock()
	if _, ok := s.inflight[jobID]; ok {
		return false
	}
	s.inflight[jobID] = struct{}{}
	return true
}

func (s *Scheduler) release(jobID string) {
	s.inflightMu.Lock()
	defer s.inflightMu.Unlock()
	delete(s.inflight, jobID)
}

// CalculateNextRun computes the next run time for a cron expression.
func (s *Scheduler) CalculateNextRun(cronExpr string, from time.Time) (time.Time, error) {
	schedule, err := s.parser.Parse(cronExpr)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse cron expression %q: %w", cronExpr, err)
	}
	return schedule.Next(from), nil
}

// Stop gracefully shuts down the scheduler.
func (s *Scheduler) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cancel == nil {
		return nil
	}

	s.cancel()
	<-s.done
	s.cancel = nil
	s.done = nil

	s.logger.Info("scheduler stopped")
	return nil
}
