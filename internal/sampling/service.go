// Package sampling builds and executes language-model completion requests for
// sampling states. The model itself sits behind the Client interface so the
// engine works the same against MCP client sampling or any other backend.
package sampling

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/parley-sh/parley/internal/retry"
	"github.com/parley-sh/parley/internal/template"
	"github.com/parley-sh/parley/pkg/schema"
)

// Message roles.
const (
	RoleSystem = "system"
	RoleUser   = "user"
)

// Message is one turn of the conversation sent to the model.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Request is a fully built completion request.
type Request struct {
	Messages    []Message `json:"messages"`
	System      string    `json:"system,omitempty"`
	Model       string    `json:"model,omitempty"`
	Temperature *float64  `json:"temperature,omitempty"`
	MaxTokens   *int      `json:"max_tokens,omitempty"`
	TopP        *float64  `json:"top_p,omitempty"`
}

// Completion is the model's answer.
type Completion struct {
	Content    string `json:"content"`
	Model      string `json:"model,omitempty"`
	StopReason string `json:"stop_reason,omitempty"`
}

// Chunk is one fragment of a streamed completion. Err, when set, terminates
// the stream.
type Chunk struct {
	Content string
	Err     error
}

// Client executes completion requests against a model backend.
type Client interface {
	Complete(ctx context.Context, req Request) (*Completion, error)
}

// Streamer is an optional Client extension for incremental delivery.
type Streamer interface {
	Stream(ctx context.Context, req Request) (<-chan Chunk, error)
}

// Parameter bounds enforced before any request leaves the service.
const (
	MinTemperature = 0.0
	MaxTemperature = 2.0
	MinMaxTokens   = 1
	MaxMaxTokens   = 100000
	MinTopP        = 0.0
	MaxTopP        = 1.0
)

// ValidateSpec checks a sampling spec's parameters against their allowed ranges.
func ValidateSpec(spec *schema.SamplingSpec) error {
	if spec == nil {
		return schema.NewError(schema.ErrCodeValidation, "sampling spec is missing")
	}
	if spec.Prompt == "" {
		return schema.NewError(schema.ErrCodeValidation, "sampling prompt is empty")
	}
	if spec.Temperature != nil && (*spec.Temperature < MinTemperature || *spec.Temperature > MaxTemperature) {
		return schema.NewErrorf(schema.ErrCodeValidation,
			"temperature %v out of range [%v, %v]", *spec.Temperature, MinTemperature, MaxTemperature)
	}
	if spec.MaxTokens != nil && (*spec.MaxTokens < MinMaxTokens || *spec.MaxTokens > MaxMaxTokens) {
		return schema.NewErrorf(schema.ErrCodeValidation,
			"max_tokens %d out of range [%d, %d]", *spec.MaxTokens, MinMaxTokens, MaxMaxTokens)
	}
	if spec.TopP != nil && (*spec.TopP < MinTopP || *spec.TopP > MaxTopP) {
		return schema.NewErrorf(schema.ErrCodeValidation,
			"top_p %v out of range [%v, %v]", *spec.TopP, MinTopP, MaxTopP)
	}
	return nil
}

// BuildMessages assembles the conversation for a sampling spec: each context
// variable restated as its own user message, then the substituted prompt.
// Context variables absent from vars are skipped.
func BuildMessages(spec *schema.SamplingSpec, vars map[string]any) []Message {
	msgs := make([]Message, 0, len(spec.Context)+1)
	for _, key := range spec.Context {
		v, ok := vars[key]
		if !ok {
			continue
		}
		msgs = append(msgs, Message{
			Role:    RoleUser,
			Content: fmt.Sprintf("%s: %s", key, template.FormatValue(v)),
		})
	}
	msgs = append(msgs, Message{
		Role:    RoleUser,
		Content: template.Substitute(spec.Prompt, vars),
	})
	return msgs
}

// BuildRequest validates the spec and assembles the full request.
func BuildRequest(spec *schema.SamplingSpec, vars map[string]any) (Request, error) {
	if err := ValidateSpec(spec); err != nil {
		return Request{}, err
	}
	return Request{
		Messages:    BuildMessages(spec, vars),
		System:      template.Substitute(spec.System, vars),
		Model:       spec.Model,
		Temperature: spec.Temperature,
		MaxTokens:   spec.MaxTokens,
		TopP:        spec.TopP,
	}, nil
}

// Service executes sampling requests with retry. The client is installed at
// server startup, before any run starts.
type Service struct {
	client Client
	policy retry.Policy
	logger *slog.Logger
}

// NewService creates a sampling service with the given retry policy.
func NewService(policy retry.Policy, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{policy: policy, logger: logger}
}

// SetClient installs the model backend.
func (s *Service) SetClient(c Client) {
	s.client = c
}

// CreateCompletion runs one completion for a sampling state. Transient
// failures are retried under the service policy.
func (s *Service) CreateCompletion(ctx context.Context, stateID string, spec *schema.SamplingSpec, vars map[string]any) (*Completion, error) {
	req, err := BuildRequest(spec, vars)
	if err != nil {
		return nil, stamp(err, stateID)
	}
	if s.client == nil {
		return nil, schema.NewError(schema.ErrCodeEffectFailed, "no sampling client configured").WithState(stateID)
	}

	var completion *Completion
	err = retry.Do(ctx, s.policy, func(ctx context.Context) error {
		c, err := s.client.Complete(ctx, req)
		if err != nil {
			return err
		}
		completion = c
		return nil
	})
	if err != nil {
		s.logger.ErrorContext(ctx, "sampling request failed", "state_id", stateID, "error", err)
		var flowErr *schema.FlowError
		if errors.As(err, &flowErr) {
			return nil, flowErr.WithState(stateID)
		}
		return nil, schema.NewError(schema.ErrCodeEffectFailed, "sampling request failed").
			WithState(stateID).WithCause(err)
	}
	return completion, nil
}

// StreamCompletion delivers a completion as an ordered stream of fragments.
// Streaming backends stream natively; others produce the whole completion as
// a single fragment. Streams are not retried since a broken stream cannot be
// resumed from where it failed.
func (s *Service) StreamCompletion(ctx context.Context, stateID string, spec *schema.SamplingSpec, vars map[string]any) (<-chan Chunk, error) {
	req, err := BuildRequest(spec, vars)
	if err != nil {
		return nil, stamp(err, stateID)
	}
	if s.client == nil {
		return nil, schema.NewError(schema.ErrCodeEffectFailed, "no sampling client configured").WithState(stateID)
	}

	if streamer, ok := s.client.(Streamer); ok {
		return streamer.Stream(ctx, req)
	}

	out := make(chan Chunk, 1)
	go func() {
		defer close(out)
		completion, err := s.CreateCompletion(ctx, stateID, spec, vars)
		if err != nil {
			out <- Chunk{Err: err}
			return
		}
		out <- Chunk{Content: completion.Content}
	}()
	return out, nil
}

func stamp(err error, stateID string) error {
	var flowErr *schema.FlowError
	if errors.As(err, &flowErr) {
		return flowErr.WithState(stateID)
	}
	return err
}
