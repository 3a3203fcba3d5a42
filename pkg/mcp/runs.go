package mcp

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/parley-sh/parley/pkg/schema"
)

// RunStatus is the lifecycle state of a tracked run.
type RunStatus string

const (
	RunStatusRunning   RunStatus = "running"
	RunStatusCompleted RunStatus = "completed"
	RunStatusFailed    RunStatus = "failed"
)

// Run is the tracked record of one workflow execution.
type Run struct {
	ID         string         `json:"id"`
	Workflow   string         `json:"workflow"`
	Status     RunStatus      `json:"status"`
	StartedAt  time.Time      `json:"started_at"`
	FinishedAt *time.Time     `json:"finished_at,omitempty"`
	FinalState string         `json:"final_state,omitempty"`
	Steps      int            `json:"steps"`
	Variables  map[string]any `json:"variables,omitempty"`
	Error      string         `json:"error,omitempty"`
}

// runTracker records runs so detached executions stay observable through the
// status tool after the initiating request returns.
type runTracker struct {
	mu   sync.Mutex
	runs map[string]*Run
}

func newRunTracker() *runTracker {
	return &runTracker{runs: make(map[string]*Run)}
}

// Begin registers a new running record and returns its id.
func (t *runTracker) Begin(workflow string) *Run {
	run := &Run{
		ID:        uuid.NewString(),
		Workflow:  workflow,
		Status:    RunStatusRunning,
		StartedAt: time.Now().UTC(),
	}

	t.mu.Lock()
	t.runs[run.ID] = run
	t.mu.Unlock()
	return run
}

// Finish records the outcome of a run. The run context, when present,
// contributes the final state, step count, and variables even on failure.
func (t *runTracker) Finish(id string, runCtx *schema.Context, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	run, ok := t.runs[id]
	if !ok {
		return
	}

	now := time.Now().UTC()
	run.FinishedAt = &now
	if runCtx != nil {
		run.FinalState = runCtx.CurrentState
		run.Steps = len(runCtx.History)
		run.Variables = schema.CopyVariables(runCtx.Variables)
	}
	if err != nil {
		run.Status = RunStatusFailed
		run.Error = err.Error()
	} else {
		run.Status = RunStatusCompleted
	}
}

// Get returns a snapshot of one run.
func (t *runTracker) Get(id string) (Run, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	run, ok := t.runs[id]
	if !ok {
		return Run{}, false
	}
	return *run, true
}

// List returns snapshots of all runs, newest first.
func (t *runTracker) List() []Run {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make([]Run, 0, len(t.runs))
	for _, run := range t.runs {
		out = append(out, *run)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].StartedAt.After(out[j].StartedAt)
	})
	return out
}
