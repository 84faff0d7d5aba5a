package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/crawlkit/crawlkit/internal/frontier"
)

func newRequeueCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "requeue",
		Short: "Move failed URLs back to pending",
		Long: `Resets every failed URL in the frontier to pending so the next
crawl run retries it.`,
		RunE: runRequeueCommand,
	}
	return cmd
}

func runRequeueCommand(cmd *cobra.Command, _ []string) error {
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

	n, err := front.RequeueFailed()
	if err != nil {
		return fmt.Errorf("requeue failed urls: %w", err)
	}
	cmd.Printf("requeued %d failed urls\n", n)
	return nil
}
