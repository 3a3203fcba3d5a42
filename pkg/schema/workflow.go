package schema

import "time"

// StateType enumerates the closed set of state kinds in a workflow.
type StateType string

const (
	StateTypeResponse    StateType = "response"
	StateTypeElicitation StateType = "elicitation"
	StateTypeSampling    StateType = "sampling"
	StateTypeTool        StateType = "tool"
	StateTypeConditional StateType = "conditional"
	StateTypeParallel    StateType = "parallel"
	StateTypeLoop        StateType = "loop"
)

// DefaultMaxSteps bounds a run when the workflow does not declare maxSteps.
const DefaultMaxSteps = 1000

// DefaultLoopCap bounds loop iterations when the state does not declare maxIterations.
const DefaultLoopCap = 100

// Workflow is a declarative conversational graph: typed states connected by
// transitions, driven from the initial state to completion. Immutable once loaded.
type Workflow struct {
	Name     string            `json:"name,omitempty" yaml:"name,omitempty"`
	Initial  string            `json:"initial" yaml:"initial"`
	States   map[string]*State `json:"states" yaml:"states"`
	MaxSteps int               `json:"maxSteps,omitempty" yaml:"maxSteps,omitempty"`
}

// StepBudget returns the effective maximum number of steps for a run.
func (w *Workflow) StepBudget() int {
	if w.MaxSteps > 0 {
		return w.MaxSteps
	}
	return DefaultMaxSteps
}

// State is a single node in a workflow. Each kind uses only the fields
// relevant to it; everything else stays zero.
type State struct {
	Type StateType `json:"type" yaml:"type"`

	// response
	Template string `json:"template,omitempty" yaml:"template,omitempty"`

	// elicitation
	Elicitation *ElicitationSpec `json:"elicitation,omitempty" yaml:"elicitation,omitempty"`

	// sampling: either a full spec or the bare prompt shorthand.
	Sampling *SamplingSpec `json:"sampling,omitempty" yaml:"sampling,omitempty"`
	Prompt   string        `json:"prompt,omitempty" yaml:"prompt,omitempty"`

	// tool
	Tool   string            `json:"tool,omitempty" yaml:"tool,omitempty"`
	Params map[string]string `json:"params,omitempty" yaml:"params,omitempty"`

	// conditional and loop share the condition mini-language.
	Condition string `json:"condition,omitempty" yaml:"condition,omitempty"`
	OnTrue    string `json:"onTrue,omitempty" yaml:"onTrue,omitempty"`
	OnFalse   string `json:"onFalse,omitempty" yaml:"onFalse,omitempty"`

	// parallel
	Branches []string `json:"branches,omitempty" yaml:"branches,omitempty"`

	// loop
	Body          string `json:"body,omitempty" yaml:"body,omitempty"`
	MaxIterations int    `json:"maxIterations,omitempty" yaml:"maxIterations,omitempty"`

	// Transitions maps a trigger key to a target state id. Resolved against
	// the state's produced result unless the kind dictates the next state.
	Transitions map[string]string `json:"transitions,omitempty" yaml:"transitions,omitempty"`
}

// LoopCap returns the effective iteration cap for a loop state.
func (s *State) LoopCap() int {
	if s.MaxIterations > 0 {
		return s.MaxIterations
	}
	return DefaultLoopCap
}

// ElicitationType enumerates the value kinds an elicitation can request.
type ElicitationType string

const (
	ElicitText    ElicitationType = "text"
	ElicitNumber  ElicitationType = "number"
	ElicitConfirm ElicitationType = "confirm"
	ElicitSelect  ElicitationType = "select"
)

// ElicitationSpec describes one validated value requested from the user.
type ElicitationSpec struct {
	Type     ElicitationType `json:"type" yaml:"type"`
	Prompt   string          `json:"prompt" yaml:"prompt"`
	Pattern  string          `json:"pattern,omitempty" yaml:"pattern,omitempty"`
	Min      *float64        `json:"min,omitempty" yaml:"min,omitempty"`
	Max      *float64        `json:"max,omitempty" yaml:"max,omitempty"`
	Options  []string        `json:"options,omitempty" yaml:"options,omitempty"`
	Required bool            `json:"required,omitempty" yaml:"required,omitempty"`
}

// SamplingSpec describes one language-model completion request.
type SamplingSpec struct {
	Prompt      string   `json:"prompt" yaml:"prompt"`
	System      string   `json:"system,omitempty" yaml:"system,omitempty"`
	Context     []string `json:"context,omitempty" yaml:"context,omitempty"`
	Model       string   `json:"model,omitempty" yaml:"model,omitempty"`
	Temperature *float64 `json:"temperature,omitempty" yaml:"temperature,omitempty"`
	MaxTokens   *int     `json:"max_tokens,omitempty" yaml:"max_tokens,omitempty"`
	TopP        *float64 `json:"top_p,omitempty" yaml:"top_p,omitempty"`
}

// HistoryEntry records one state visit, snapshotted before the state executes.
type HistoryEntry struct {
	State     string         `json:"state"`
	Timestamp time.Time      `json:"timestamp"`
	Variables map[string]any `json:"variables"`
}

// Context is the mutable run state owned exclusively by the executor.
// History is append-only; its length never exceeds the workflow's step budget.
type Context struct {
	CurrentState string         `json:"currentState"`
	Variables    map[string]any `json:"variables"`
	History      []HistoryEntry `json:"history"`
}

// NewContext creates a run context positioned at the initial state.
// The initial variables are copied, never aliased.
func NewContext(initial string, vars map[string]any) *Context {
	return &Context{
		CurrentState: initial,
		Variables:    CopyVariables(vars),
	}
}

// Clone returns a deep-enough copy for a retryable step attempt: variables are
// copied, history entries are shared (they are immutable once appended).
func (c *Context) Clone() *Context {
	history := make([]HistoryEntry, len(c.History))
	copy(history, c.History)
	return &Context{
		CurrentState: c.CurrentState,
		Variables:    CopyVariables(c.Variables),
		History:      history,
	}
}

// CopyVariables shallow-copies a variable map. Nil maps become empty maps.
func CopyVariables(vars map[string]any) map[string]any {
	out := make(map[string]any, len(vars))
	for k, v := range vars {
		out[k] = v
	}
	return out
}
