package cmd

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/crawlkit/crawlkit/internal/api"
	"github.com/crawlkit/crawlkit/internal/config"
	"github.com/crawlkit/crawlkit/internal/crawler"
	"github.com/crawlkit/crawlkit/internal/domain"
	"github.com/crawlkit/crawlkit/internal/engine"
	"github.com/crawlkit/crawlkit/internal/fetcher/collyfetcher"
	"github.com/crawlkit/crawlkit/internal/fetcher/headless"
	"github.com/crawlkit/crawlkit/internal/fetcher/httpclient"
	"github.com/crawlkit/crawlkit/internal/frontier"
	"github.com/crawlkit/crawlkit/internal/sink"
)

func newCrawlCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "crawl [seed-url...]",
		Short: "Start or resume a crawl",
		Long: `Starts a crawl from the seed URLs given as arguments (or from
crawl.seeds in the configuration). If the frontier database already
holds URLs from an earlier run, the crawl resumes from them.`,
		RunE: runCrawlCommand,
	}
	return cmd
}

func runCrawlCommand(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	logger, err := buildLogger(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	seeds := args
	if len(seeds) == 0 {
		seeds = cfg.Crawl.Seeds
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	front, err := frontier.Open(cfg.Frontier.DBPath, frontier.Options{
		SeenCapacity:  cfg.Frontier.SeenCapacity,
		SeenErrorRate: cfg.Frontier.SeenErrorRate,
	}, logger)
	if err != nil {
		return fmt.Errorf("open frontier: %w", err)
	}
	defer func() {
		if cerr := front.Close(); cerr != nil {
			logger.Warn("close frontier", zap.Error(cerr))
		}
	}()

	domains := domain.NewManager(domain.Config{
		UserAgent:     cfg.Politeness.UserAgent,
		DefaultDelay:  cfg.Politeness.Delay(),
		RespectRobots: cfg.Politeness.RespectRobots,
		MaxRetries:    cfg.Politeness.MaxRetries,
		RobotsTTL:     cfg.Politeness.RobotsTTL(),
	}, logger)

	fetch, cleanup, err := buildFetcher(cfg, logger)
	if err != nil {
		return err
	}
	defer cleanup()

	runID := uuid.NewString()
	out, err := sink.New(ctx, cfg.Output, runID, logger)
	if err != nil {
		return fmt.Errorf("init output: %w", err)
	}
	results := sink.NewMulti(out, sink.NewLog(logger))
	defer func() {
		if cerr := results.Close(); cerr != nil {
			logger.Warn("close output", zap.Error(cerr))
		}
	}()

	eng := engine.New(engine.Config{
		RunID:       runID,
		MaxPages:    cfg.Crawl.MaxPages,
		MaxDepth:    cfg.Crawl.MaxDepth,
		SameOrigin:  cfg.Crawl.SameOrigin,
		Concurrency: cfg.Crawl.Concurrency,
		RetryPasses: cfg.Crawl.RetryPasses,
		GlobalRPS:   cfg.Crawl.GlobalRPS,
		Blocklist:   crawler.NewBlocklist(cfg.Crawl.BlockedHosts),
	}, front, domains, fetch, results, logger)

	added, err := eng.Seed(seeds...)
	if err != nil {
		return fmt.Errorf("seed frontier: %w", err)
	}
	logger.Info("crawl starting",
		zap.String("run_id", runID),
		zap.Int("seeds_added", added),
		zap.Int("concurrency", cfg.Crawl.Concurrency),
	)

	if cfg.API.Enabled {
		srv := api.NewServer(cfg.API.Port, eng, logger)
		go func() {
			if serr := srv.Start(); serr != nil {
				logger.Error("api server failed", zap.Error(serr))
			}
		}()
		defer func() {
			if serr := srv.Shutdown(context.Background()); serr != nil {
				logger.Warn("api shutdown", zap.Error(serr))
			}
		}()
	}

	if err := eng.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("run crawl: %w", err)
	}

	printSummary(cmd, eng)
	return nil
}

func buildFetcher(cfg config.Config, logger *zap.Logger) (crawler.Fetcher, func(), error) {
	switch cfg.Fetcher.Kind {
	case config.FetcherHTTP:
		f := httpclient.New(httpclient.Config{
			UserAgent: cfg.Politeness.UserAgent,
			Timeout:   cfg.Fetcher.Timeout(),
		})
		return f, func() {}, nil
	case config.FetcherColly:
		f := collyfetcher.New(collyfetcher.Config{
			UserAgent: cfg.Politeness.UserAgent,
			Timeout:   cfg.Fetcher.Timeout(),
		})
		return f, func() {}, nil
	case config.FetcherHeadless:
		f, err := headless.New(headless.Config{
			UserAgent:   cfg.Politeness.UserAgent,
			Timeout:     cfg.Fetcher.Headless.NavTimeout(),
			MaxParallel: cfg.Fetcher.Headless.MaxParallel,
		}, logger)
		if err != nil {
			return nil, nil, fmt.Errorf("init headless fetcher: %w", err)
		}
		return f, func() {
			if cerr := f.Close(); cerr != nil {
				logger.Warn("close headless fetcher", zap.Error(cerr))
			}
		}, nil
	default:
		return nil, nil, fmt.Errorf("unknown fetcher kind %q", cfg.Fetcher.Kind)
	}
}

func printSummary(cmd *cobra.Command, eng *engine.Engine) {
	stats, err := eng.Stats()
	if err != nil {
		cmd.PrintErrf("collect final stats: %v\n", err)
		return
	}
	cmd.Printf("run %s finished: %d pages processed\n", stats.RunID, stats.Pages)
	for status, n := range stats.Frontier {
		if status == "total" {
			continue
		}
		cmd.Printf("  %-10s %d\n", status, n)
	}
}
