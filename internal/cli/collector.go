package cli

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sort"
	"syscall"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/agentrail/agentrail/internal/collector"
	"github.com/agentrail/agentrail/internal/config"
)

var (
	collectorAddr       string
	collectorDB         string
	collectorConfigPath string
)

func init() {
	collectorCmd.Flags().StringVar(&collectorAddr, "addr", ":8040", "listen address")
	collectorCmd.Flags().StringVar(&collectorDB, "db", "agentrail.db", "sqlite database path")
	collectorCmd.Flags().StringVar(&collectorConfigPath, "config", "", "collector config YAML (api_keys are hot-reloaded)")
	rootCmd.AddCommand(collectorCmd)
}

var collectorCmd = &cobra.Command{
	Use:   "collector",
	Short: "Run a local dev collector backed by sqlite",
	Long:  "Serves the agentrail ingest API against a local sqlite database. Duplicate event ids are rejected with 409, which makes it a faithful target for exercising the SDK's duplicate recovery. API keys in the config file are hot-reloaded on change.",
	RunE:  runCollector,
}

func runCollector(cmd *cobra.Command, args []string) error {
	log := slog.New(slog.NewTextHandler(os.Stderr, nil))

	cfg := collector.DefaultConfig()
	cfg.Addr = collectorAddr
	cfg.DBPath = collectorDB
	if collectorConfigPath != "" {
		data, err := os.ReadFile(collectorConfigPath)
		if err != nil {
			return fmt.Errorf("read collector config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return fmt.Errorf("parse collector config: %w", err)
		}
	}

	store, err := collector.OpenStore(cfg.DBPath)
	if err != nil {
		return err
	}
	defer store.Close()

	srv := collector.NewServer(cfg, store, log)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// API-key rotation without restart.
	if collectorConfigPath != "" {
		reloader, err := config.NewReloader(collectorConfigPath, log, func(config.Config) {
			data, err := os.ReadFile(collectorConfigPath)
			if err != nil {
				return
			}
			var fresh collector.Config
			if err := yaml.Unmarshal(data, &fresh); err != nil {
				log.Warn("collector config reload failed", "error", err)
				return
			}
			srv.SetAPIKeys(fresh.APIKeys)
			log.Info("api keys rotated", "keys", len(fresh.APIKeys))
		})
		if err != nil {
			return err
		}
		go func() { _ = reloader.Run(ctx) }()
	}

	err = srv.Run(ctx)

	printSummary(store)
	return err
}

// printSummary renders ingested event counts on shutdown.
func printSummary(store *collector.Store) {
	counts, err := store.CountsByType()
	if err != nil || len(counts) == 0 {
		return
	}

	types := make([]string, 0, len(counts))
	total := 0
	for t, n := range counts {
		types = append(types, t)
		total += n
	}
	sort.Strings(types)

	fmt.Println()
	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"Event Type", "Count"})
	table.SetBorder(false)
	table.SetHeaderLine(false)
	table.SetColumnSeparator("")
	table.SetTablePadding("  ")
	table.SetNoWhiteSpace(true)
	for _, t := range types {
		table.Append([]string{t, fmt.Sprintf("%d", counts[t])})
	}
	table.Append([]string{"total", fmt.Sprintf("%d", total)})
	table.Render()
}
