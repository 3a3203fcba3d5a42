package elicit

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/parley-sh/parley/internal/streaming"
	"github.com/parley-sh/parley/pkg/schema"
)

// Native actions a channel can report back.
const (
	ActionAccept  = "accept"
	ActionDecline = "decline"
	ActionCancel  = "cancel"
)

// NativeResult is the outcome of a native elicitation round-trip.
type NativeResult struct {
	Action  string
	Content map[string]any
}

// NativeChannel delivers elicitations directly to a connected client.
// Supported reports whether the current session can receive them; when it
// cannot, the service falls back to the pending registry.
type NativeChannel interface {
	Supported(ctx context.Context) bool
	Elicit(ctx context.Context, message string, requestedSchema map[string]any) (*NativeResult, error)
}

// Service coordinates elicitation delivery: native when the session supports
// it, otherwise parked in the pending registry until an out-of-band response
// arrives or the timeout fires.
type Service struct {
	registry *PendingRegistry
	native   NativeChannel
	hub      streaming.EventHub
	logger   *slog.Logger
}

// NewService creates an elicitation service around the given pending registry.
func NewService(registry *PendingRegistry, hub streaming.EventHub, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Service{
		registry: registry,
		hub:      hub,
		logger:   logger,
	}
	registry.OnExpire(func(p *Pending) {
		s.publish(context.Background(), streaming.EventElicitationExpired, p.StateID, map[string]any{"id": p.ID})
	})
	return s
}

// SetNativeChannel installs the native delivery channel. Called during server
// startup, before any run starts.
func (s *Service) SetNativeChannel(ch NativeChannel) {
	s.native = ch
}

// Registry exposes the pending registry for the out-of-band surface
// (respond/reject tools and history resources).
func (s *Service) Registry() *PendingRegistry {
	return s.registry
}

// Request obtains one validated, typed value for an elicitation state. It
// blocks until the user answers, declines, or the request times out.
func (s *Service) Request(ctx context.Context, stateID string, spec *schema.ElicitationSpec, vars map[string]any) (any, error) {
	prompt := FormatPrompt(spec, vars)

	if s.native != nil && s.native.Supported(ctx) {
		return s.requestNative(ctx, stateID, spec, prompt)
	}
	return s.requestFallback(ctx, stateID, spec, prompt, vars)
}

func (s *Service) requestNative(ctx context.Context, stateID string, spec *schema.ElicitationSpec, prompt string) (any, error) {
	s.logger.DebugContext(ctx, "delivering native elicitation", "state_id", stateID, "type", spec.Type)

	res, err := s.native.Elicit(ctx, prompt, RequestedSchema(spec))
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return nil, schema.NewError(schema.ErrCodeTimeout, "elicitation timed out").WithState(stateID).WithCause(err)
		}
		return nil, schema.NewError(schema.ErrCodeEffectFailed, "native elicitation failed").WithState(stateID).WithCause(err)
	}

	switch res.Action {
	case ActionAccept:
	case ActionDecline, ActionCancel:
		return nil, schema.NewErrorf(schema.ErrCodeElicitationRejected, "elicitation was %sed", res.Action).WithState(stateID)
	default:
		return nil, schema.NewErrorf(schema.ErrCodeEffectFailed, "unknown elicitation action %q", res.Action).WithState(stateID)
	}

	raw, ok := res.Content["value"]
	if !ok {
		return nil, schema.NewError(schema.ErrCodeValidation, "elicitation response missing 'value'").WithState(stateID)
	}

	value, err := TransformResponse(raw, spec)
	if err != nil {
		var flowErr *schema.FlowError
		if errors.As(err, &flowErr) {
			return nil, flowErr.WithState(stateID)
		}
		return nil, err
	}
	return value, nil
}

func (s *Service) requestFallback(ctx context.Context, stateID string, spec *schema.ElicitationSpec, prompt string, vars map[string]any) (any, error) {
	p := s.registry.Create(stateID, prompt, spec, vars)

	s.logger.InfoContext(ctx, "elicitation parked for out-of-band response",
		"elicitation_id", p.ID, "state_id", stateID, "expires_at", p.ExpiresAt.Format(time.RFC3339))
	s.publish(ctx, streaming.EventElicitationPending, stateID, map[string]any{
		"id":     p.ID,
		"prompt": prompt,
		"type":   string(spec.Type),
	})

	select {
	case out := <-p.done:
		if out.err != nil {
			return nil, out.err
		}
		s.publish(ctx, streaming.EventElicitationResolved, stateID, map[string]any{"id": p.ID})
		return out.value, nil
	case <-ctx.Done():
		s.registry.Cancel(p.ID)
		return nil, schema.NewError(schema.ErrCodeCancelled, "run ended before elicitation was answered").
			WithState(stateID).WithCause(ctx.Err())
	}
}

func (s *Service) publish(ctx context.Context, eventType, stateID string, payload map[string]any) {
	if s.hub == nil {
		return
	}
	_ = s.hub.Publish(ctx, streaming.RunEvent{
		StateID:   stateID,
		EventType: eventType,
		Payload:   payload,
	})
}
