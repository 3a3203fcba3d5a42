package tools

import (
	"context"

	"github.com/parley-sh/parley/pkg/schema"
)

// RegisterBuiltins installs the built-in tool handlers into the registry.
func RegisterBuiltins(r *Registry) error {
	builtins := []Handler{
		EchoTool{},
		JQTool{},
		NewHTTPRequestTool(HTTPConfig{}),
	}
	for _, h := range builtins {
		if err := r.Register(h); err != nil {
			return err
		}
	}
	return nil
}

// EchoTool returns its "message" argument unchanged. Useful for wiring
// checks and for workflows that only need to move a value between states.
type EchoTool struct{}

func (EchoTool) Name() string        { return "echo" }
func (EchoTool) Description() string { return "Return the 'message' argument unchanged." }

func (EchoTool) Execute(ctx context.Context, args map[string]any) (any, error) {
	v, ok := args["message"]
	if !ok {
		return nil, schema.NewError(schema.ErrCodeValidation, "echo: missing required param 'message'")
	}
	return v, nil
}
