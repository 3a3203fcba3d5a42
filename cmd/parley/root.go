package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "parley",
	Short: "Parley runs conversational workflows defined as typed state machines",
	Long: `Parley executes workflow definitions whose states respond, elicit input,
sample a language model, call tools, branch, fan out, and loop. It serves
workflows to MCP clients over stdio or runs them locally in the terminal.`,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
