package cmd

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/crawlkit/crawlkit/internal/frontier"
)

func newStatusCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show frontier queue counts",
		Long: `Prints how many URLs sit in each frontier state. Useful to check
what a resumed crawl would pick up.`,
		RunE: runStatusCommand,
	}
	return cmd
}

func runStatusCommand(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	front, err := frontier.Open(cfg.Frontier.DBPath, frontier.Options{
		SeenCapacity:  cfg.Frontier.SeenCapacity,
		SeenErrorRate: cfg.Frontier.SeenErrorRate,
	}, zap.NewNop())
	if err != nil {
		return fmt.Errorf("open frontier: %w", err)
	}
	defer func() { _ = front.Close() }()

	stats, err := front.Stats()
	if err != nil {
		return fmt.Errorf("collect frontier stats: %w", err)
	}

	statuses := make([]string, 0, len(stats))
	for status := range stats {
		if status != "total" {
			statuses = append(statuses, status)
		}
	}
	sort.Strings(statuses)

	cmd.Printf("frontier %s\n", cfg.Frontier.DBPath)
	for _, status := range statuses {
		cmd.Printf("  %-10s %d\n", status, stats[status])
	}
	cmd.Printf("  %-10s %d\n", "total", stats["total"])
	return nil
}
