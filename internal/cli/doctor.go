package cli

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/agentrail/agentrail/internal/api"
	"github.com/agentrail/agentrail/internal/config"
)

var doctorConfigPath string

func init() {
	doctorCmd.Flags().StringVar(&doctorConfigPath, "config", "", "path to agentrail config YAML")
	rootCmd.AddCommand(doctorCmd)
}

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Check SDK configuration and collector reachability",
	RunE:  runDoctor,
}

type checkResult struct {
	label  string
	ok     bool
	detail string
	fix    string
}

var (
	passMark = color.New(color.Bold, color.FgGreen).SprintFunc()
	failMark = color.New(color.Bold, color.FgRed).SprintFunc()
	dim      = color.New(color.Faint).SprintFunc()
)

func runDoctor(cmd *cobra.Command, args []string) error {
	var checks []checkResult

	// 1. Configuration.
	cfg, err := config.Load(doctorConfigPath)
	if err != nil {
		checks = append(checks, checkResult{
			label:  "configuration",
			ok:     false,
			detail: err.Error(),
			fix:    "fix the config file or unset AGENTRAIL_* overrides",
		})
		report(checks)
		return fmt.Errorf("configuration invalid")
	}
	checks = append(checks, checkResult{
		label:  "configuration",
		ok:     true,
		detail: fmt.Sprintf("endpoint %s", cfg.Endpoint),
	})

	// 2. API key presence.
	if cfg.APIKey != "" {
		checks = append(checks, checkResult{label: "api key", ok: true, detail: "configured"})
	} else {
		checks = append(checks, checkResult{
			label:  "api key",
			ok:     false,
			detail: "not set",
			fix:    "set AGENTRAIL_API_KEY or api_key in the config file",
		})
	}

	// 3. Collector health.
	ctx, cancel := context.WithTimeout(cmd.Context(), 5*time.Second)
	defer cancel()
	client := api.New(cfg.Endpoint, cfg.APIKey)
	if err := client.Health(ctx); err != nil {
		checks = append(checks, checkResult{
			label:  "collector",
			ok:     false,
			detail: err.Error(),
			fix:    "start one locally with: agentrail collector",
		})
	} else {
		checks = append(checks, checkResult{label: "collector", ok: true, detail: "healthy"})
	}

	report(checks)
	for _, c := range checks {
		if !c.ok {
			return fmt.Errorf("%d check(s) failed", countFailed(checks))
		}
	}
	return nil
}

func report(checks []checkResult) {
	for _, c := range checks {
		mark := passMark("ok")
		if !c.ok {
			mark = failMark("FAIL")
		}
		fmt.Fprintf(os.Stdout, "%-6s %-14s %s\n", mark, c.label, c.detail)
		if !c.ok && c.fix != "" {
			fmt.Fprintf(os.Stdout, "       %s\n", dim("fix: "+c.fix))
		}
	}
}

func countFailed(checks []checkResult) int {
	n := 0
	for _, c := range checks {
		if !c.ok {
			n++
		}
	}
	return n
}
