package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/parley-sh/parley/internal/elicit"
	"github.com/parley-sh/parley/internal/engine"
	"github.com/parley-sh/parley/internal/retry"
	"github.com/parley-sh/parley/internal/sampling"
	"github.com/parley-sh/parley/internal/tools"
	"github.com/parley-sh/parley/internal/validation"
)

var (
	runVars     []string
	runVarsJSON string
)

var runCmd = &cobra.Command{
	Use:   "run <workflow-file>",
	Short: "Run a workflow file locally in the terminal",
	Long: `Executes a workflow definition from a YAML or JSON file. Elicitation
states prompt on the terminal. Sampling states need a connected model client
and are only available in serve mode.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		wf, err := validation.LoadWorkflowFile(args[0])
		if err != nil {
			return err
		}

		vars, err := parseVars(runVars, runVarsJSON)
		if err != nil {
			return err
		}

		cfg := loadConfig()
		logger := newLogger(cfg.LogLevel)

		elicitor := elicit.NewService(elicit.NewPendingRegistry(duration(cfg.ElicitationTimeout, 0)), nil, logger)
		elicitor.SetNativeChannel(&terminalChannel{in: bufio.NewReader(os.Stdin), out: os.Stdout})

		sampler := sampling.NewService(retry.Policy{}, logger)

		registry := tools.NewRegistry()
		if err := tools.RegisterBuiltins(registry); err != nil {
			return err
		}

		pool := engine.NewBranchPool(engine.DefaultBranchConcurrency)
		defer pool.Shutdown()

		executor := engine.NewExecutor(engine.Config{
			Tools:    registry,
			Elicitor: elicitor,
			Sampler:  sampler,
			Pool:     pool,
			Retry: retry.Policy{
				MaxAttempts: cfg.RetryMaxAttempts,
				Delay:       duration(cfg.RetryDelay, 500*time.Millisecond),
				Timeout:     duration(cfg.StateTimeout, 0),
			},
			Logger: logger,
		})

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		runCtx, runErr := executor.Execute(ctx, wf, vars)
		if runCtx != nil {
			printOutcome(runCtx.CurrentState, len(runCtx.History), runCtx.Variables)
		}
		return runErr
	},
}

// parseVars merges --var key=value pairs over an optional --vars JSON object.
// Values that parse as JSON become typed; everything else stays a string.
func parseVars(pairs []string, rawJSON string) (map[string]any, error) {
	vars := make(map[string]any)

	if rawJSON != "" {
		if err := json.Unmarshal([]byte(rawJSON), &vars); err != nil {
			return nil, fmt.Errorf("parse --vars: %w", err)
		}
	}

	for _, pair := range pairs {
		key, value, ok := strings.Cut(pair, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid --var %q, expected key=value", pair)
		}
		var typed any
		if err := json.Unmarshal([]byte(value), &typed); err == nil {
			vars[key] = typed
		} else {
			vars[key] = value
		}
	}
	return vars, nil
}

func printOutcome(finalState string, steps int, vars map[string]any) {
	fmt.Printf("\nfinal state: %s (%d steps)\n", finalState, steps)
	if data, err := json.MarshalIndent(vars, "", "  "); err == nil {
		fmt.Printf("variables: %s\n", data)
	}
}

// terminalChannel answers elicitations from the local terminal. An empty
// answer declines the request.
type terminalChannel struct {
	in  *bufio.Reader
	out io.Writer
}

func (t *terminalChannel) Supported(ctx context.Context) bool { return true }

func (t *terminalChannel) Elicit(ctx context.Context, message string, requestedSchema map[string]any) (*elicit.NativeResult, error) {
	fmt.Fprintln(t.out, message)
	fmt.Fprint(t.out, "> ")

	line, err := t.in.ReadString('\n')
	if err != nil {
		return nil, err
	}

	answer := strings.TrimSpace(line)
	if answer == "" {
		return &elicit.NativeResult{Action: elicit.ActionDecline}, nil
	}
	return &elicit.NativeResult{
		Action:  elicit.ActionAccept,
		Content: map[string]any{"value": answer},
	}, nil
}

func init() {
	runCmd.Flags().StringArrayVar(&runVars, "var", nil, "Initial variable as key=value (repeatable)")
	runCmd.Flags().StringVar(&runVarsJSON, "vars", "", "Initial variables as a JSON object")
	rootCmd.AddCommand(runCmd)
}
