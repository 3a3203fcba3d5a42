package main

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/parley-sh/parley/internal/logging"
	"github.com/parley-sh/parley/internal/retry"
	"github.com/parley-sh/parley/pkg/mcp"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve workflows to MCP clients over stdio",
	Long: `Starts the MCP server on stdin/stdout. Connected clients define and run
workflows through the parley.* tools; elicitation and sampling states use the
client's own capabilities when it declares them.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := loadConfig()
		logger := newLogger(cfg.LogLevel)

		srv, err := mcp.NewServer(mcp.Config{
			ElicitationTimeout: duration(cfg.ElicitationTimeout, 0),
			Retry: retry.Policy{
				MaxAttempts: cfg.RetryMaxAttempts,
				Delay:       duration(cfg.RetryDelay, 500*time.Millisecond),
				Timeout:     duration(cfg.StateTimeout, 0),
			},
			Logger: logger,
		})
		if err != nil {
			return fmt.Errorf("build server: %w", err)
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		logger.Info("parley serving on stdio", "version", version)
		return srv.Serve(ctx)
	},
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	// Logs go to stderr; stdout belongs to the MCP transport.
	inner := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl})
	return slog.New(logging.NewCorrelationHandler(inner))
}

func init() {
	rootCmd.AddCommand(serveCmd)
}
