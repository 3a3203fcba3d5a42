package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/parley-sh/parley/internal/elicit"
	"github.com/parley-sh/parley/internal/engine"
	"github.com/parley-sh/parley/internal/logging"
	"github.com/parley-sh/parley/internal/validation"
	"github.com/parley-sh/parley/pkg/schema"
)

// serverTools returns the registered MCP tools as ServerTool entries.
func (s *Server) serverTools() []server.ServerTool {
	return []server.ServerTool{
		{Tool: runTool(), Handler: s.handleRun},
		{Tool: defineTool(), Handler: s.handleDefine},
		{Tool: validateTool(), Handler: s.handleValidate},
		{Tool: statusTool(), Handler: s.handleStatus},
		{Tool: scheduleTool(), Handler: s.handleSchedule},
		{Tool: respondTool(), Handler: s.handleRespond},
		{Tool: guidanceTool(), Handler: s.handleGuidance},
	}
}

// --- Tool definitions ---

func runTool() mcp.Tool {
	return mcp.NewTool("parley.run",
		mcp.WithDescription("Execute a workflow, either by library name or from an inline definition"),
		mcp.WithString("workflow", mcp.Description("Name of a workflow registered with parley.define")),
		mcp.WithString("source", mcp.Description("Inline workflow definition as YAML or JSON (alternative to 'workflow')")),
		mcp.WithObject("vars", mcp.Description("Initial variables for the run")),
		mcp.WithBoolean("detach", mcp.Description("Return immediately with a run id instead of waiting for completion")),
	)
}

func defineTool() mcp.Tool {
	return mcp.NewTool("parley.define",
		mcp.WithDescription("Register a workflow definition in the library"),
		mcp.WithString("name", mcp.Required(), mcp.Description("Library name for the workflow")),
		mcp.WithString("source", mcp.Required(), mcp.Description("Workflow definition as YAML or JSON")),
	)
}

func validateTool() mcp.Tool {
	return mcp.NewTool("parley.validate",
		mcp.WithDescription("Validate a workflow definition without registering or running it. Reports structural errors and unreachable states"),
		mcp.WithString("source", mcp.Required(), mcp.Description("Workflow definition as YAML or JSON")),
	)
}

func statusTool() mcp.Tool {
	return mcp.NewTool("parley.status",
		mcp.WithDescription("Inspect runs: pass run_id for one run, omit it to list all runs and library workflows"),
		mcp.WithString("run_id", mcp.Description("ID of a run returned by parley.run")),
	)
}

func scheduleTool() mcp.Tool {
	return mcp.NewTool("parley.schedule",
		mcp.WithDescription("Manage cron schedules for library workflows"),
		mcp.WithString("action", mcp.Required(),
			mcp.Enum("add", "remove", "list"),
			mcp.Description("Schedule operation"),
		),
		mcp.WithString("workflow", mcp.Description("Library workflow to schedule (required for add)")),
		mcp.WithString("cron", mcp.Description("Five-field cron expression (required for add)")),
		mcp.WithObject("vars", mcp.Description("Initial variables for scheduled runs")),
		mcp.WithString("job_id", mcp.Description("Job to remove (required for remove)")),
	)
}

func respondTool() mcp.Tool {
	return mcp.NewTool("respond_to_elicitation",
		mcp.WithDescription("Answer or reject a pending elicitation. An invalid answer returns the rejection reason and leaves the request pending so it can be answered again"),
		mcp.WithString("id", mcp.Required(), mcp.Description("ID of the pending elicitation")),
		mcp.WithString("action", mcp.Enum("accept", "reject"), mcp.Description("accept (default) or reject")),
		mcp.WithString("response", mcp.Description("The answer (required for accept)")),
	)
}

func guidanceTool() mcp.Tool {
	return mcp.NewTool("get_elicitation_guidance",
		mcp.WithDescription("Get answering instructions and validation rules for a pending elicitation"),
		mcp.WithString("id", mcp.Required(), mcp.Description("ID of the pending elicitation")),
	)
}

// --- Handlers ---

func (s *Server) handleRun(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	name := req.GetString("workflow", "")
	source := req.GetString("source", "")
	vars := mcp.ParseStringMap(req, "vars", nil)
	detach := req.GetBool("detach", false)

	var wf *schema.Workflow
	switch {
	case name != "":
		var err error
		wf, err = s.library.Get(name)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
	case source != "":
		var err error
		wf, err = validation.ParseWorkflow([]byte(source))
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		name = wf.Name
		if name == "" {
			name = "inline"
		}
	default:
		return mcp.NewToolResultError("either 'workflow' or 'source' is required"), nil
	}

	run := s.runs.Begin(name)

	if detach {
		// Detached runs outlive the tool request, so they get a fresh
		// context. Without a client session their elicitations take the
		// fallback path and are answered through respond_to_elicitation.
		go func() {
			runCtx, err := s.executor.Execute(s.runContext(context.Background(), name, run.ID), wf, vars)
			s.runs.Finish(run.ID, runCtx, err)
		}()
		return marshalResult(map[string]any{"run_id": run.ID, "status": RunStatusRunning})
	}

	runCtx, err := s.executor.Execute(s.runContext(ctx, name, run.ID), wf, vars)
	s.runs.Finish(run.ID, runCtx, err)

	record, _ := s.runs.Get(run.ID)
	return marshalResult(record)
}

func (s *Server) runContext(ctx context.Context, workflow, runID string) context.Context {
	return logging.WithRunID(logging.WithWorkflow(ctx, workflow), runID)
}

func (s *Server) handleDefine(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	name, err := req.RequireString("name")
	if err != nil {
		return mcp.NewToolResultError("name is required"), nil
	}
	source, err := req.RequireString("source")
	if err != nil {
		return mcp.NewToolResultError("source is required"), nil
	}

	wf, parseErr := validation.ParseWorkflow([]byte(source))
	if parseErr != nil {
		return mcp.NewToolResultError(parseErr.Error()), nil
	}
	if wf.Name == "" {
		wf.Name = name
	}

	if defErr := s.library.Define(name, wf); defErr != nil {
		return mcp.NewToolResultError(defErr.Error()), nil
	}

	s.logger.InfoContext(ctx, "workflow defined", "workflow", name, "states", len(wf.States))
	return marshalResult(map[string]any{
		"name":        name,
		"initial":     wf.Initial,
		"states":      len(wf.States),
		"unreachable": engine.UnreachableStates(wf),
	})
}

func (s *Server) handleValidate(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	source, err := req.RequireString("source")
	if err != nil {
		return mcp.NewToolResultError("source is required"), nil
	}

	wf, parseErr := validation.ParseWorkflow([]byte(source))
	if parseErr == nil {
		parseErr = engine.ValidateWorkflow(wf)
	}
	if parseErr != nil {
		result := map[string]any{"valid": false, "error": parseErr.Error()}
		var flowErr *schema.FlowError
		if errors.As(parseErr, &flowErr) && flowErr.Details != nil {
			if v, ok := flowErr.Details["violations"]; ok {
				result["violations"] = v
			}
		}
		return marshalResult(result)
	}

	return marshalResult(map[string]any{
		"valid":       true,
		"initial":     wf.Initial,
		"states":      len(wf.States),
		"unreachable": engine.UnreachableStates(wf),
	})
}

func (s *Server) handleStatus(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	runID := req.GetString("run_id", "")
	if runID != "" {
		run, ok := s.runs.Get(runID)
		if !ok {
			return mcp.NewToolResultError(fmt.Sprintf("no run %q", runID)), nil
		}
		return marshalResult(run)
	}

	return marshalResult(map[string]any{
		"runs":        s.runs.List(),
		"workflows":   s.library.List(),
		"tools":       s.tools.List(),
		"branch_pool": s.pool.Metrics(),
	})
}

func (s *Server) handleSchedule(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	action, err := req.RequireString("action")
	if err != nil {
		return mcp.NewToolResultError("action is required"), nil
	}

	switch action {
	case "add":
		workflow := req.GetString("workflow", "")
		cronExpr := req.GetString("cron", "")
		if workflow == "" || cronExpr == "" {
			return mcp.NewToolResultError("add requires 'workflow' and 'cron'"), nil
		}
		if _, getErr := s.library.Get(workflow); getErr != nil {
			return mcp.NewToolResultError(getErr.Error()), nil
		}
		job, addErr := s.sched.Add(workflow, cronExpr, mcp.ParseStringMap(req, "vars", nil))
		if addErr != nil {
			return mcp.NewToolResultError(addErr.Error()), nil
		}
		return marshalResult(job)

	case "remove":
		jobID := req.GetString("job_id", "")
		if jobID == "" {
			return mcp.NewToolResultError("remove requires 'job_id'"), nil
		}
		if rmErr := s.sched.Remove(jobID); rmErr != nil {
			return mcp.NewToolResultError(rmErr.Error()), nil
		}
		return marshalResult(map[string]any{"removed": jobID})

	case "list":
		return marshalResult(map[string]any{"jobs": s.sched.List()})

	default:
		return mcp.NewToolResultError(fmt.Sprintf("unknown action %q", action)), nil
	}
}

func (s *Server) handleRespond(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("id")
	if err != nil {
		return mcp.NewToolResultError("id is required"), nil
	}
	action := req.GetString("action", "accept")

	registry := s.elicitor.Registry()
	switch action {
	case "reject":
		if rejErr := registry.Reject(id); rejErr != nil {
			return mcp.NewToolResultError(rejErr.Error()), nil
		}
		return marshalResult(map[string]any{"id": id, "outcome": "rejected"})

	case "accept":
		raw, ok := req.GetArguments()["response"]
		if !ok {
			return mcp.NewToolResultError("accept requires 'response'"), nil
		}
		value, resErr := registry.Resolve(id, raw)
		if resErr != nil {
			return mcp.NewToolResultError(resErr.Error()), nil
		}
		return marshalResult(map[string]any{"id": id, "outcome": "answered", "value": value})

	default:
		return mcp.NewToolResultError(fmt.Sprintf("unknown action %q", action)), nil
	}
}

func (s *Server) handleGuidance(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("id")
	if err != nil {
		return mcp.NewToolResultError("id is required"), nil
	}

	p, ok := s.elicitor.Registry().Get(id)
	if !ok {
		return mcp.NewToolResultError(fmt.Sprintf("no pending elicitation %q", id)), nil
	}

	var b strings.Builder
	b.WriteString(p.Prompt)
	b.WriteString("\n\n")
	b.WriteString(elicit.Instructions(p.Spec))
	if rules := elicit.ValidationRules(p.Spec); len(rules) > 0 {
		b.WriteString("\nValidation rules:")
		for _, r := range rules {
			b.WriteString("\n- " + r)
		}
	}
	fmt.Fprintf(&b, "\nAnswer with respond_to_elicitation, id %s, before %s.",
		p.ID, p.ExpiresAt.Format(time.RFC3339))

	data, marshalErr := json.Marshal(currentPayload(p))
	if marshalErr != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal elicitation: %v", marshalErr)), nil
	}
	return mcp.NewToolResultResource(b.String(), mcp.TextResourceContents{
		URI:      "elicitation://current/" + p.ID,
		MIMEType: "application/json",
		Text:     string(data),
	}), nil
}

// marshalResult converts a value to a JSON tool result.
func marshalResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal result: %v", err)), nil
	}
	return mcp.NewToolResultJSON(json.RawMessage(data))
}
