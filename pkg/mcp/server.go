// Package mcp exposes the workflow engine over the Model Context Protocol:
// tools to define, validate, run, schedule, and observe workflows, resources
// for the elicitation surface, and client bridges for native elicitation and
// sampling.
package mcp

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/mark3labs/mcp-go/server"

	"github.com/parley-sh/parley/internal/elicit"
	"github.com/parley-sh/parley/internal/engine"
	"github.com/parley-sh/parley/internal/logging"
	"github.com/parley-sh/parley/internal/retry"
	"github.com/parley-sh/parley/internal/sampling"
	"github.com/parley-sh/parley/internal/scheduler"
	"github.com/parley-sh/parley/internal/streaming"
	"github.com/parley-sh/parley/internal/tools"
)

// Config tunes the server. Zero values select the defaults.
type Config struct {
	// ElicitationTimeout bounds how long a fallback elicitation waits for an
	// out-of-band response.
	ElicitationTimeout time.Duration
	// Retry is the policy for transient effect failures.
	Retry retry.Policy
	// HTTP configures the built-in HTTP tool.
	HTTP tools.HTTPConfig
	Logger *slog.Logger
}

// Server wires the engine and its collaborators behind an MCP server.
type Server struct {
	library  *workflowLibrary
	runs     *runTracker
	executor *engine.Executor
	elicitor *elicit.Service
	sampler  *sampling.Service
	tools    *tools.Registry
	hub      streaming.EventHub
	pool     *engine.BranchPool
	sched    *scheduler.Scheduler
	logger   *slog.Logger

	mcpServer *server.MCPServer
}

// NewServer builds a fully wired server.
func NewServer(cfg Config) (*Server, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(logging.NewCorrelationHandler(
			slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo})))
	}

	registry := tools.NewRegistry()
	if err := tools.RegisterBuiltins(registry); err != nil {
		return nil, err
	}

	hub := streaming.NewMemoryHub()
	elicitor := elicit.NewService(elicit.NewPendingRegistry(cfg.ElicitationTimeout), hub, logger)
	sampler := sampling.NewService(cfg.Retry, logger)
	pool := engine.NewBranchPool(engine.DefaultBranchConcurrency)

	s := &Server{
		library:  newWorkflowLibrary(),
		runs:     newRunTracker(),
		elicitor: elicitor,
		sampler:  sampler,
		tools:    registry,
		hub:      hub,
		pool:     pool,
		logger:   logger,
	}
	s.executor = engine.NewExecutor(engine.Config{
		Tools:    registry,
		Elicitor: elicitor,
		Sampler:  sampler,
		Hub:      hub,
		Pool:     pool,
		Retry:    cfg.Retry,
		Logger:   logger,
	})
	s.sched = scheduler.NewScheduler(s, logger)

	mcpSrv := server.NewMCPServer(
		"parley",
		"1.0.0",
		server.WithToolCapabilities(false),
		server.WithRecovery(),
		server.WithInstructions("Parley runs conversational workflows defined as typed state machines. Use parley.define to register workflows, parley.run to execute them, parley.status to inspect runs, parley.validate to check definitions, parley.schedule for cron jobs, and respond_to_elicitation to answer pending elicitations (get_elicitation_guidance explains how to answer one)."),
	)
	mcpSrv.EnableSampling()
	mcpSrv.AddTools(s.serverTools()...)
	s.registerResources(mcpSrv)
	s.mcpServer = mcpSrv

	elicitor.SetNativeChannel(&nativeElicitation{srv: mcpSrv})
	sampler.SetClient(&samplingBridge{srv: mcpSrv})

	return s, nil
}

// Serve starts the stdio transport, the scheduler, and the event notifier,
// blocking until ctx is cancelled or stdin closes.
func (s *Server) Serve(ctx context.Context) error {
	if err := s.sched.Start(ctx); err != nil {
		return err
	}
	defer func() { _ = s.sched.Stop() }()
	defer s.pool.Shutdown()

	notifier := &eventNotifier{sender: s.mcpServer, hub: s.hub, logger: s.logger}
	if err := notifier.Start(ctx); err != nil {
		return err
	}

	stdio := server.NewStdioServer(s.mcpServer)
	return stdio.Listen(ctx, os.Stdin, os.Stdout)
}

// MCPServer returns the underlying MCPServer for testing or custom transports.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcpServer
}

// Events exposes the run event hub for additional subscribers, such as
// custom transports built on MCPServer.
func (s *Server) Events() streaming.EventHub {
	return s.hub
}

// Elicitations exposes the pending registry, used by the CLI's local run mode.
func (s *Server) Elicitations() *elicit.PendingRegistry {
	return s.elicitor.Registry()
}

// RunWorkflow executes a named library workflow and records the run. This is
// the scheduler's entry point; scheduled runs have no client session, so
// elicitations in them always take the fallback path.
func (s *Server) RunWorkflow(ctx context.Context, name string, vars map[string]any) error {
	wf, err := s.library.Get(name)
	if err != nil {
		return err
	}

	run := s.runs.Begin(name)
	ctx = logging.WithRunID(logging.WithWorkflow(ctx, name), run.ID)

	runCtx, err := s.executor.Execute(ctx, wf, vars)
	s.runs.Finish(run.ID, runCtx, err)
	return err
}
