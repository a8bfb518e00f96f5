// Package cli implements the agentrail command line: a local dev
// collector, configuration diagnostics, and version info.
package cli

import (
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "agentrail",
	Short: "Telemetry toolkit for agent and LLM workloads",
	Long:  "Records agent sessions (LLM calls, tool invocations, actions, errors) as distributed-tracing spans and ships them to a collector. The CLI runs a local dev collector and diagnoses SDK configuration.",
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
