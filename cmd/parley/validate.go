package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/parley-sh/parley/internal/engine"
	"github.com/parley-sh/parley/internal/validation"
)

var validateCmd = &cobra.Command{
	Use:   "validate <workflow-file>",
	Short: "Validate a workflow file without running it",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		wf, err := validation.LoadWorkflowFile(args[0])
		if err != nil {
			return err
		}
		if err := engine.ValidateWorkflow(wf); err != nil {
			return err
		}

		fmt.Printf("%s: valid (%d states, initial %q)\n", args[0], len(wf.States), wf.Initial)
		if unreachable := engine.UnreachableStates(wf); len(unreachable) > 0 {
			fmt.Printf("warning: unreachable states: %s\n", strings.Join(unreachable, ", "))
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(validateCmd)
}
