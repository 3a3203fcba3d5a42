package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/parley-sh/parley/internal/diagram"
	"github.com/parley-sh/parley/internal/validation"
)

var graphCmd = &cobra.Command{
	Use:   "graph <workflow-file>",
	Short: "Render a workflow as a Mermaid flowchart",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		wf, err := validation.LoadWorkflowFile(args[0])
		if err != nil {
			return err
		}
		fmt.Print(diagram.RenderMermaid(wf))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(graphCmd)
}
