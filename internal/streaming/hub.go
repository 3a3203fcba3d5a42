package streaming

import "context"

// Event types published during a run's lifecycle.
const (
	EventRunStarted          = "run.started"
	EventRunCompleted        = "run.completed"
	EventRunFailed           = "run.failed"
	EventStateEntered        = "state.entered"
	EventStateCompleted      = "state.completed"
	EventElicitationPending  = "elicitation.pending"
	EventElicitationResolved = "elicitation.resolved"
	EventElicitationExpired  = "elicitation.expired"
	EventSamplingFragment    = "sampling.fragment"
)

// RunEvent is a real-time event emitted during workflow execution.
type RunEvent struct {
	RunID     string `json:"run_id"`
	StateID   string `json:"state_id,omitempty"`
	EventType string `json:"event_type"`
	Payload   any    `json:"payload,omitempty"`
}

// EventFilter specifies which events a subscriber wants to receive.
type EventFilter struct {
	RunID      string   `json:"run_id,omitempty"`
	EventTypes []string `json:"event_types,omitempty"`
}

// EventHub provides pub/sub for real-time run events.
type EventHub interface {
	Publish(ctx context.Context, event RunEvent) error
	Subscribe(ctx context.Context, filter EventFilter) (<-chan RunEvent, func(), error)
}
