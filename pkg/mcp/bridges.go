package mcp

import (
	"context"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/parley-sh/parley/internal/elicit"
	"github.com/parley-sh/parley/internal/sampling"
)

// nativeElicitation delivers elicitation requests over the MCP elicitation
// capability when the connected session declares it.
type nativeElicitation struct {
	srv *server.MCPServer
}

func (n *nativeElicitation) Supported(ctx context.Context) bool {
	session := server.ClientSessionFromContext(ctx)
	if session == nil {
		return false
	}
	_, ok := session.(server.SessionWithElicitation)
	return ok
}

func (n *nativeElicitation) Elicit(ctx context.Context, message string, requestedSchema map[string]any) (*elicit.NativeResult, error) {
	result, err := n.srv.RequestElicitation(ctx, mcp.ElicitationRequest{
		Params: mcp.ElicitationParams{
			Message:         message,
			RequestedSchema: requestedSchema,
		},
	})
	if err != nil {
		return nil, err
	}

	var action string
	switch result.Action {
	case mcp.ElicitationResponseActionAccept:
		action = elicit.ActionAccept
	case mcp.ElicitationResponseActionDecline:
		action = elicit.ActionDecline
	default:
		action = elicit.ActionCancel
	}
	content, _ := result.Content.(map[string]any)
	return &elicit.NativeResult{Action: action, Content: content}, nil
}

// samplingBridge runs completion requests through the client's MCP sampling
// capability. MCP sampling has no top_p parameter, so TopP is not forwarded.
type samplingBridge struct {
	srv *server.MCPServer
}

func (b *samplingBridge) Complete(ctx context.Context, req sampling.Request) (*sampling.Completion, error) {
	session := server.ClientSessionFromContext(ctx)
	if session == nil {
		return nil, fmt.Errorf("no client session for sampling request")
	}
	if _, ok := session.(server.SessionWithSampling); !ok {
		return nil, fmt.Errorf("client session does not support sampling")
	}

	messages := make([]mcp.SamplingMessage, 0, len(req.Messages))
	for _, m := range req.Messages {
		messages = append(messages, mcp.SamplingMessage{
			Role:    mcp.Role(m.Role),
			Content: mcp.TextContent{Type: "text", Text: m.Content},
		})
	}

	params := mcp.CreateMessageParams{
		Messages:     messages,
		SystemPrompt: req.System,
	}
	if req.Temperature != nil {
		params.Temperature = *req.Temperature
	}
	if req.MaxTokens != nil {
		params.MaxTokens = *req.MaxTokens
	}
	if req.Model != "" {
		params.ModelPreferences = &mcp.ModelPreferences{
			Hints: []mcp.ModelHint{{Name: req.Model}},
		}
	}

	result, err := b.srv.RequestSampling(ctx, mcp.CreateMessageRequest{CreateMessageParams: params})
	if err != nil {
		return nil, err
	}

	content := ""
	if tc, ok := result.Content.(mcp.TextContent); ok {
		content = tc.Text
	}
	return &sampling.Completion{
		Content:    content,
		Model:      result.Model,
		StopReason: result.StopReason,
	}, nil
}
