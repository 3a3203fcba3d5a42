package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/parley-sh/parley/internal/elicit"
)

// registerResources exposes the elicitation surface as readable resources so
// clients can inspect pending requests and past outcomes without a tool call.
func (s *Server) registerResources(mcpSrv *server.MCPServer) {
	mcpSrv.AddResource(
		mcp.NewResource("elicitation://pending", "Pending elicitations",
			mcp.WithResourceDescription("All elicitations currently awaiting a response"),
			mcp.WithMIMEType("application/json"),
		),
		s.readPendingList,
	)
	mcpSrv.AddResourceTemplate(
		mcp.NewResourceTemplate("elicitation://current/{id}", "Current elicitation",
			mcp.WithTemplateDescription("One pending elicitation by id, with answering instructions and validation rules"),
			mcp.WithTemplateMIMEType("application/json"),
		),
		s.readCurrent,
	)
	mcpSrv.AddResource(
		mcp.NewResource("elicitation://history", "Elicitation history",
			mcp.WithResourceDescription("All elicitations this server has issued, with their outcomes"),
			mcp.WithMIMEType("application/json"),
		),
		s.readHistory,
	)
}

func (s *Server) readPendingList(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return jsonResource(req.Params.URI, s.elicitor.Registry().List())
}

func (s *Server) readCurrent(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	id := strings.TrimPrefix(req.Params.URI, "elicitation://current/")
	p, ok := s.elicitor.Registry().Get(id)
	if !ok {
		return nil, fmt.Errorf("no pending elicitation %q", id)
	}
	return jsonResource(req.Params.URI, currentPayload(p))
}

// currentPayload is the machine-readable description of one pending
// elicitation: everything a responder needs to produce a valid answer.
func currentPayload(p *elicit.Pending) map[string]any {
	return map[string]any{
		"id":              p.ID,
		"state_id":        p.StateID,
		"prompt":          p.Prompt,
		"spec":            p.Spec,
		"context":         p.Context,
		"instructions":    elicit.Instructions(p.Spec),
		"validationRules": elicit.ValidationRules(p.Spec),
		"expires_at":      p.ExpiresAt.Format(time.RFC3339),
	}
}

func (s *Server) readHistory(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return jsonResource(req.Params.URI, s.elicitor.Registry().History())
}

func jsonResource(uri string, v any) ([]mcp.ResourceContents, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      uri,
			MIMEType: "application/json",
			Text:     string(data),
		},
	}, nil
}
