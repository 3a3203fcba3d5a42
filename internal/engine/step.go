package engine

import (
	"context"
	"sync"
	"time"

	"github.com/parley-sh/parley/internal/logging"
	"github.com/parley-sh/parley/internal/streaming"
	"github.com/parley-sh/parley/internal/template"
	"github.com/parley-sh/parley/pkg/schema"
)

// Step executes the current state once and returns the resulting context,
// whether a transition was taken, and any error. The input context is never
// mutated: a failed or retried step leaves the caller's context intact. On
// failure the result context is nil, so the failing state's history entry is
// discarded with it and the caller keeps the pre-step history.
func (e *Executor) Step(ctx context.Context, wf *schema.Workflow, runCtx *schema.Context) (*schema.Context, bool, error) {
	stateID := runCtx.CurrentState
	state, ok := wf.States[stateID]
	if !ok {
		return nil, false, schema.NewErrorf(schema.ErrCodeMissingState, "state %q is not defined", stateID).WithState(stateID)
	}

	next := runCtx.Clone()
	next.History = append(next.History, schema.HistoryEntry{
		State:     stateID,
		Timestamp: time.Now().UTC(),
		Variables: schema.CopyVariables(next.Variables),
	})

	ctx = logging.WithStateID(ctx, stateID)
	e.publish(ctx, streaming.EventStateEntered, stateID, map[string]any{"type": string(state.Type)})

	// Conditionals route directly; everything else produces a result and
	// resolves its transitions against it.
	if state.Type == schema.StateTypeConditional {
		target := state.OnFalse
		if EvaluateCondition(state.Condition, next.Variables) {
			target = state.OnTrue
		}
		e.publish(ctx, streaming.EventStateCompleted, stateID, map[string]any{"target": target})
		if target == "" {
			return next, false, nil
		}
		next.CurrentState = target
		return next, true, nil
	}

	var result any
	var err error
	switch state.Type {
	case schema.StateTypeParallel:
		err = e.runBranches(ctx, wf, state, next.Variables)
		result = ""
	case schema.StateTypeLoop:
		err = e.runLoop(ctx, wf, stateID, state, next.Variables)
		result = ""
	default:
		result, err = e.executeEffect(ctx, stateID, state, next.Variables)
	}
	if err != nil {
		return nil, false, stampState(err, stateID)
	}

	e.publish(ctx, streaming.EventStateCompleted, stateID, map[string]any{"result": template.FormatValue(result)})

	target, ok := ResolveTransition(state, result)
	if !ok {
		return next, false, nil
	}
	next.CurrentState = target
	return next, true, nil
}

// executeEffect runs a value-producing state (response, elicitation,
// sampling, tool), writes its namespaced output into vars, and returns the
// result used for transition matching.
func (e *Executor) executeEffect(ctx context.Context, stateID string, state *schema.State, vars map[string]any) (any, error) {
	switch state.Type {
	case schema.StateTypeResponse:
		out := template.Substitute(state.Template, vars)
		vars[stateID+"_response"] = out
		return out, nil

	case schema.StateTypeElicitation:
		if e.elicitor == nil {
			return nil, schema.NewError(schema.ErrCodeEffectFailed, "no elicitation service configured").WithState(stateID)
		}
		value, err := e.elicitor.Request(ctx, stateID, state.Elicitation, vars)
		if err != nil {
			return nil, err
		}
		vars[stateID+"_response"] = value
		return value, nil

	case schema.StateTypeSampling:
		if e.sampler == nil {
			return nil, schema.NewError(schema.ErrCodeEffectFailed, "no sampling service configured").WithState(stateID)
		}
		spec := state.Sampling
		if spec == nil {
			spec = &schema.SamplingSpec{Prompt: state.Prompt}
		}
		completion, err := e.sampler.CreateCompletion(ctx, stateID, spec, vars)
		if err != nil {
			return nil, err
		}
		vars[stateID+"_completion"] = completion.Content
		return completion.Content, nil

	case schema.StateTypeTool:
		if e.tools == nil {
			return nil, schema.NewError(schema.ErrCodeToolUnavailable, "no tool registry configured").WithState(stateID)
		}
		args := template.SubstituteParams(state.Params, vars)
		out, err := e.tools.Invoke(ctx, state.Tool, args)
		if err != nil {
			return nil, err
		}
		vars[stateID+"_result"] = out
		return out, nil

	default:
		return nil, schema.NewErrorf(schema.ErrCodeValidation, "state %q cannot be executed as an effect", stateID).WithState(stateID)
	}
}

// runBranches runs every branch of a parallel state against its own copy of
// the variables, waits for all of them to settle, and then merges each
// branch's result back serially. The first branch failure is surfaced after
// the join; sibling branches are never cancelled mid-flight.
func (e *Executor) runBranches(ctx context.Context, wf *schema.Workflow, state *schema.State, vars map[string]any) error {
	type branchOutcome struct {
		result any
		err    error
	}
	outcomes := make([]branchOutcome, len(state.Branches))

	var wg sync.WaitGroup
	for i, branchID := range state.Branches {
		branchState := wf.States[branchID]
		branchVars := schema.CopyVariables(vars)

		wg.Add(1)
		submitErr := e.pool.Submit(ctx, func(ctx context.Context) error {
			defer wg.Done()
			r, err := e.executeEffect(ctx, branchID, branchState, branchVars)
			outcomes[i] = branchOutcome{result: r, err: err}
			return err
		})
		if submitErr != nil {
			outcomes[i] = branchOutcome{err: submitErr}
			wg.Done()
		}
	}
	wg.Wait()

	var firstErr error
	for i, branchID := range state.Branches {
		out := outcomes[i]
		if out.err != nil {
			if firstErr == nil {
				firstErr = stampState(out.err, branchID)
			}
			continue
		}
		vars[branchID+"_result"] = out.result
	}
	return firstErr
}

// runLoop repeats the body state while the loop condition holds, up to the
// iteration cap. The condition sees the run variables plus "iteration"
// (zero-based); the body runs against the parent variables so its effects
// accumulate across iterations.
func (e *Executor) runLoop(ctx context.Context, wf *schema.Workflow, stateID string, state *schema.State, vars map[string]any) error {
	body := wf.States[state.Body]
	limit := state.LoopCap()

	results := make([]any, 0)
	for i := 0; i < limit; i++ {
		if err := ctx.Err(); err != nil {
			return schema.NewError(schema.ErrCodeCancelled, "run cancelled during loop").WithState(stateID).WithCause(err)
		}

		condVars := schema.CopyVariables(vars)
		condVars["iteration"] = i
		if !EvaluateCondition(state.Condition, condVars) {
			break
		}

		r, err := e.executeEffect(ctx, state.Body, body, vars)
		if err != nil {
			return err
		}
		results = append(results, r)
	}

	vars[stateID+"_results"] = results
	return nil
}
