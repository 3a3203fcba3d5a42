package schema

import "fmt"

// Error codes for structured error reporting.
const (
	ErrCodeValidation          = "VALIDATION_FAILED"
	ErrCodeMissingState        = "MISSING_STATE"
	ErrCodeTimeout             = "TIMEOUT"
	ErrCodeEffectFailed        = "EFFECT_FAILED"
	ErrCodeElicitationRejected = "ELICITATION_REJECTED"
	ErrCodeNotFound            = "NOT_FOUND"
	ErrCodeConflict            = "CONFLICT"
	ErrCodeToolUnavailable     = "TOOL_UNAVAILABLE"
	ErrCodeRetryExhausted      = "RETRY_EXHAUSTED"
	ErrCodeCancelled           = "CANCELLED"
)

// FlowError is the structured error type for all parley operations.
type FlowError struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
	StateID string         `json:"state_id,omitempty"`
	Cause   error          `json:"-"`
}

func (e *FlowError) Error() string {
	if e.StateID != "" {
		return fmt.Sprintf("[%s] state %s: %s", e.Code, e.StateID, e.Message)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *FlowError) Unwrap() error {
	return e.Cause
}

// IsRetryable reports whether the error code is worth retrying.
// Collaborator failures and timeouts are; everything else is final.
func (e *FlowError) IsRetryable() bool {
	switch e.Code {
	case ErrCodeEffectFailed, ErrCodeTimeout:
		return true
	default:
		return false
	}
}

// NewError creates a new FlowError.
func NewError(code, message string) *FlowError {
	return &FlowError{Code: code, Message: message}
}

// NewErrorf creates a new FlowError with a formatted message.
func NewErrorf(code, format string, args ...any) *FlowError {
	return &FlowError{Code: code, Message: fmt.Sprintf(format, args...)}
}

// WithState attaches the state id at which the error occurred.
func (e *FlowError) WithState(stateID string) *FlowError {
	e.StateID = stateID
	return e
}

// WithCause attaches an underlying cause.
func (e *FlowError) WithCause(err error) *FlowError {
	e.Cause = err
	return e
}

// WithDetails attaches key-value details.
func (e *FlowError) WithDetails(details map[string]any) *FlowError {
	e.Details = details
	return e
}
