package engine

import (
	"sort"

	"github.com/parley-sh/parley/pkg/schema"
)

// effectKinds are the state kinds that produce a value directly and can
// therefore serve as a parallel branch or a loop body.
var effectKinds = map[schema.StateType]bool{
	schema.StateTypeResponse:    true,
	schema.StateTypeElicitation: true,
	schema.StateTypeSampling:    true,
	schema.StateTypeTool:        true,
}

// ValidateWorkflow checks the workflow's structure before any run: the
// initial state and every referenced state must exist, and each state must
// carry the fields its kind requires.
func ValidateWorkflow(wf *schema.Workflow) error {
	if wf == nil {
		return schema.NewError(schema.ErrCodeValidation, "workflow is nil")
	}
	if wf.Initial == "" {
		return schema.NewError(schema.ErrCodeValidation, "workflow has no initial state")
	}
	if len(wf.States) == 0 {
		return schema.NewError(schema.ErrCodeValidation, "workflow has no states")
	}
	if _, ok := wf.States[wf.Initial]; !ok {
		return schema.NewErrorf(schema.ErrCodeMissingState, "initial state %q is not defined", wf.Initial)
	}
	if wf.MaxSteps < 0 {
		return schema.NewError(schema.ErrCodeValidation, "maxSteps must not be negative")
	}

	for id, state := range wf.States {
		if state == nil {
			return schema.NewErrorf(schema.ErrCodeValidation, "state %q is empty", id)
		}
		if err := validateState(wf, id, state); err != nil {
			return err
		}
	}
	return nil
}

func validateState(wf *schema.Workflow, id string, state *schema.State) error {
	exists := func(target string) bool {
		_, ok := wf.States[target]
		return ok
	}

	switch state.Type {
	case schema.StateTypeResponse:
		// A response with no template renders as an empty message, which is
		// allowed for pure routing states.

	case schema.StateTypeElicitation:
		if state.Elicitation == nil {
			return schema.NewErrorf(schema.ErrCodeValidation, "state %q: elicitation spec is missing", id).WithState(id)
		}
		switch state.Elicitation.Type {
		case schema.ElicitText, schema.ElicitNumber, schema.ElicitConfirm:
		case schema.ElicitSelect:
			if len(state.Elicitation.Options) == 0 {
				return schema.NewErrorf(schema.ErrCodeValidation, "state %q: select elicitation has no options", id).WithState(id)
			}
		default:
			return schema.NewErrorf(schema.ErrCodeValidation, "state %q: unknown elicitation type %q", id, state.Elicitation.Type).WithState(id)
		}

	case schema.StateTypeSampling:
		if state.Sampling == nil && state.Prompt == "" {
			return schema.NewErrorf(schema.ErrCodeValidation, "state %q: sampling state needs a sampling spec or prompt", id).WithState(id)
		}

	case schema.StateTypeTool:
		if state.Tool == "" {
			return schema.NewErrorf(schema.ErrCodeValidation, "state %q: tool state has no tool name", id).WithState(id)
		}

	case schema.StateTypeConditional:
		if state.Condition == "" {
			return schema.NewErrorf(schema.ErrCodeValidation, "state %q: conditional state has no condition", id).WithState(id)
		}
		if state.OnTrue == "" && state.OnFalse == "" {
			return schema.NewErrorf(schema.ErrCodeValidation, "state %q: conditional state has neither onTrue nor onFalse", id).WithState(id)
		}
		if state.OnTrue != "" && !exists(state.OnTrue) {
			return schema.NewErrorf(schema.ErrCodeMissingState, "state %q: onTrue target %q is not defined", id, state.OnTrue).WithState(id)
		}
		if state.OnFalse != "" && !exists(state.OnFalse) {
			return schema.NewErrorf(schema.ErrCodeMissingState, "state %q: onFalse target %q is not defined", id, state.OnFalse).WithState(id)
		}

	case schema.StateTypeParallel:
		if len(state.Branches) == 0 {
			return schema.NewErrorf(schema.ErrCodeValidation, "state %q: parallel state has no branches", id).WithState(id)
		}
		for _, branch := range state.Branches {
			b, ok := wf.States[branch]
			if !ok {
				return schema.NewErrorf(schema.ErrCodeMissingState, "state %q: branch %q is not defined", id, branch).WithState(id)
			}
			if !effectKinds[b.Type] {
				return schema.NewErrorf(schema.ErrCodeValidation, "state %q: branch %q must be a response, elicitation, sampling, or tool state", id, branch).WithState(id)
			}
		}

	case schema.StateTypeLoop:
		if state.Condition == "" {
			return schema.NewErrorf(schema.ErrCodeValidation, "state %q: loop state has no condition", id).WithState(id)
		}
		if state.Body == "" {
			return schema.NewErrorf(schema.ErrCodeValidation, "state %q: loop state has no body", id).WithState(id)
		}
		body, ok := wf.States[state.Body]
		if !ok {
			return schema.NewErrorf(schema.ErrCodeMissingState, "state %q: body %q is not defined", id, state.Body).WithState(id)
		}
		if !effectKinds[body.Type] {
			return schema.NewErrorf(schema.ErrCodeValidation, "state %q: body %q must be a response, elicitation, sampling, or tool state", id, state.Body).WithState(id)
		}
		if state.MaxIterations < 0 {
			return schema.NewErrorf(schema.ErrCodeValidation, "state %q: maxIterations must not be negative", id).WithState(id)
		}

	default:
		return schema.NewErrorf(schema.ErrCodeValidation, "state %q: unknown state type %q", id, state.Type).WithState(id)
	}

	for trigger, target := range state.Transitions {
		if target == "" {
			return schema.NewErrorf(schema.ErrCodeValidation, "state %q: transition %q has an empty target", id, trigger).WithState(id)
		}
		if !exists(target) {
			return schema.NewErrorf(schema.ErrCodeMissingState, "state %q: transition %q targets undefined state %q", id, trigger, target).WithState(id)
		}
	}
	return nil
}

// UnreachableStates returns the ids of states no path from the initial state
// can visit. These are diagnostics, not errors: a workflow with unreachable
// states still runs.
func UnreachableStates(wf *schema.Workflow) []string {
	if wf == nil || len(wf.States) == 0 {
		return nil
	}

	visited := make(map[string]bool, len(wf.States))
	queue := []string{wf.Initial}
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		if visited[id] {
			continue
		}
		state, ok := wf.States[id]
		if !ok {
			continue
		}
		visited[id] = true

		var next []string
		for _, target := range state.Transitions {
			next = append(next, target)
		}
		if state.OnTrue != "" {
			next = append(next, state.OnTrue)
		}
		if state.OnFalse != "" {
			next = append(next, state.OnFalse)
		}
		next = append(next, state.Branches...)
		if state.Body != "" {
			next = append(next, state.Body)
		}
		queue = append(queue, next...)
	}

	var unreachable []string
	for id := range wf.States {
		if !visited[id] {
			unreachable = append(unreachable, id)
		}
	}
	sort.Strings(unreachable)
	return unreachable
}
