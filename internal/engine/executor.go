// Package engine drives workflow runs: it validates the graph, steps through
// typed states, resolves transitions, and enforces the step budget. Effects
// (tools, elicitation, sampling) sit behind narrow interfaces so the engine
// stays independent of any transport.
package engine

import (
	"context"
	"errors"
	"log/slog"

	"github.com/parley-sh/parley/internal/logging"
	"github.com/parley-sh/parley/internal/retry"
	"github.com/parley-sh/parley/internal/sampling"
	"github.com/parley-sh/parley/internal/streaming"
	"github.com/parley-sh/parley/pkg/schema"
)

// ToolInvoker runs a named tool against an argument map.
type ToolInvoker interface {
	Invoke(ctx context.Context, name string, args map[string]any) (any, error)
}

// Elicitor obtains one validated value from the user for an elicitation state.
type Elicitor interface {
	Request(ctx context.Context, stateID string, spec *schema.ElicitationSpec, vars map[string]any) (any, error)
}

// Sampler runs a model completion for a sampling state.
type Sampler interface {
	CreateCompletion(ctx context.Context, stateID string, spec *schema.SamplingSpec, vars map[string]any) (*sampling.Completion, error)
}

// DefaultBranchConcurrency bounds parallel branches when no pool is supplied.
const DefaultBranchConcurrency = 8

// Config wires the executor's collaborators. Nil collaborators fail the
// states that need them at run time, not at construction.
type Config struct {
	Tools    ToolInvoker
	Elicitor Elicitor
	Sampler  Sampler
	Hub      streaming.EventHub
	Pool     *BranchPool
	Retry    retry.Policy
	Logger   *slog.Logger
}

// Executor runs workflows. Safe for concurrent use; each run owns its own
// context structure.
type Executor struct {
	tools    ToolInvoker
	elicitor Elicitor
	sampler  Sampler
	hub      streaming.EventHub
	pool     *BranchPool
	policy   retry.Policy
	logger   *slog.Logger
}

// NewExecutor creates an executor from the given config.
func NewExecutor(cfg Config) *Executor {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	pool := cfg.Pool
	if pool == nil {
		pool = NewBranchPool(DefaultBranchConcurrency)
	}
	return &Executor{
		tools:    cfg.Tools,
		elicitor: cfg.Elicitor,
		sampler:  cfg.Sampler,
		hub:      cfg.Hub,
		pool:     pool,
		policy:   cfg.Retry,
		logger:   logger,
	}
}

// Execute runs a workflow to completion. The run halts when a state has no
// matching transition (terminal or stuck) or when the step budget is spent.
// On failure the returned context carries the history accumulated before the
// failing step; the failing state is identified by the error, not by a
// history entry.
func (e *Executor) Execute(ctx context.Context, wf *schema.Workflow, vars map[string]any) (*schema.Context, error) {
	if err := ValidateWorkflow(wf); err != nil {
		return nil, err
	}

	runCtx := schema.NewContext(wf.Initial, vars)
	budget := wf.StepBudget()

	e.publish(ctx, streaming.EventRunStarted, "", map[string]any{"initial": wf.Initial})
	e.logger.InfoContext(ctx, "run started", "initial", wf.Initial, "step_budget", budget)

	for len(runCtx.History) < budget {
		if err := ctx.Err(); err != nil {
			cancelErr := schema.NewError(schema.ErrCodeCancelled, "run cancelled").
				WithState(runCtx.CurrentState).WithCause(err)
			e.publish(ctx, streaming.EventRunFailed, runCtx.CurrentState, map[string]any{"error": cancelErr.Error()})
			return runCtx, cancelErr
		}

		var nextCtx *schema.Context
		var transitioned bool
		err := retry.Do(ctx, e.policy, func(ctx context.Context) error {
			c, t, err := e.Step(ctx, wf, runCtx)
			if err != nil {
				return err
			}
			nextCtx, transitioned = c, t
			return nil
		})
		if err != nil {
			e.logger.ErrorContext(ctx, "run failed", "state_id", runCtx.CurrentState, "error", err)
			e.publish(ctx, streaming.EventRunFailed, runCtx.CurrentState, map[string]any{"error": err.Error()})
			return runCtx, err
		}

		runCtx = nextCtx
		if !transitioned {
			break
		}
	}

	e.logger.InfoContext(ctx, "run completed", "final_state", runCtx.CurrentState, "steps", len(runCtx.History))
	e.publish(ctx, streaming.EventRunCompleted, runCtx.CurrentState, map[string]any{"steps": len(runCtx.History)})
	return runCtx, nil
}

func (e *Executor) publish(ctx context.Context, eventType, stateID string, payload map[string]any) {
	if e.hub == nil {
		return
	}
	_ = e.hub.Publish(ctx, streaming.RunEvent{
		RunID:     logging.RunID(ctx),
		StateID:   stateID,
		EventType: eventType,
		Payload:   payload,
	})
}

// stampState attaches the state id to a FlowError that does not yet carry
// one; other errors are wrapped as effect failures.
func stampState(err error, stateID string) error {
	var flowErr *schema.FlowError
	if errors.As(err, &flowErr) {
		if flowErr.StateID == "" {
			flowErr.StateID = stateID
		}
		return err
	}
	return schema.NewError(schema.ErrCodeEffectFailed, "state effect failed").
		WithState(stateID).WithCause(err)
}
