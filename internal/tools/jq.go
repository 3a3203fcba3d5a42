package tools

import (
	"context"
	"encoding/json"

	"github.com/itchyny/gojq"

	"github.com/parley-sh/parley/pkg/schema"
)

// JQTool evaluates a jq expression against a JSON input.
// Args: "query" (jq program), "input" (JSON string or already-decoded value).
// A query yielding a single value returns that value; multiple values return
// a slice.
type JQTool struct{}

func (JQTool) Name() string { return "jq" }

func (JQTool) Description() string {
	return "Evaluate a jq expression against a JSON input value."
}

func (JQTool) Execute(ctx context.Context, args map[string]any) (any, error) {
	src := stringParam(args, "query", "")
	if src == "" {
		return nil, schema.NewError(schema.ErrCodeValidation, "jq: missing required param 'query'")
	}

	query, err := gojq.Parse(src)
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeValidation, "jq: invalid query: %v", err).WithCause(err)
	}

	input := args["input"]
	// String inputs are decoded as JSON when possible, otherwise used as-is.
	if s, ok := input.(string); ok {
		var decoded any
		if err := json.Unmarshal([]byte(s), &decoded); err == nil {
			input = decoded
		}
	}

	var results []any
	iter := query.RunWithContext(ctx, input)
	for {
		v, ok := iter.Next()
		if !ok {
			break
		}
		if err, isErr := v.(error); isErr {
			return nil, schema.NewErrorf(schema.ErrCodeEffectFailed, "jq: query failed: %v", err).WithCause(err)
		}
		results = append(results, v)
	}

	switch len(results) {
	case 0:
		return nil, nil
	case 1:
		return results[0], nil
	default:
		return results, nil
	}
}
