package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/allofdaniel/placecrawl/internal/app"
	"github.com/allofdaniel/placecrawl/internal/config"
	"github.com/allofdaniel/placecrawl/internal/crawler"
)

// Runner is the part of app.App the crawl command drives.
type Runner interface {
	Run(ctx context.Context) (crawler.Report, error)
	Close(ctx context.Context) error
}

// newApp is the application factory, replaced in tests.
var newApp = func(ctx context.Context, cfg config.Config, logger *zap.Logger) (Runner, error) {
	a, err := app.New(ctx, cfg, logger, app.Options{})
	if err != nil {
		return nil, err
	}
	return a, nil
}

const shutdownTimeout = 15 * time.Second

func newCrawlCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "crawl",
		Short: "Resolve websites for every outstanding place in the catalog",
		Long: `Loads the catalog and the result snapshot, then renders the page of every
place without a stored website in fixed-size batches. Results are persisted
after each batch; an interrupted run keeps everything resolved so far.`,
		Args: cobra.NoArgs,
		RunE: runCrawlCommand,
	}
	flags := cmd.Flags()
	flags.Int("concurrency", 0, "maximum concurrent browser sessions (crawler.concurrency_limit)")
	flags.Int("batch-size", 0, "entities per batch (crawler.batch_size)")
	flags.Int("retries", 0, "maximum attempts per entity (crawler.retry_count)")
	flags.Bool("headless", false, "run the browser without a window (renderer.headless)")
	flags.String("api-addr", "", "serve /healthz, /metrics and /v1/status on this address (api.addr)")
	return cmd
}

func runCrawlCommand(cmd *cobra.Command, _ []string) error {
	rt, err := resolveEnv(cmd.Context())
	if err != nil {
		return err
	}
	instance, err := newApp(cmd.Context(), rt.cfg, rt.logger)
	if err != nil {
		return fmt.Errorf("initialize crawl: %w", err)
	}

	report, runErr := instance.Run(cmd.Context())

	closeCtx, cancel := context.WithTimeout(context.WithoutCancel(cmd.Context()), shutdownTimeout)
	defer cancel()
	if err := instance.Close(closeCtx); err != nil {
		rt.logger.Warn("failed to close crawl services", zap.Error(err))
	}

	if runErr != nil {
		return fmt.Errorf("crawl: %w", runErr)
	}
	if cmd.Context().Err() != nil {
		rt.logger.Warn("crawl interrupted; rerun to resume", zap.Int("resolved_total", report.TotalResolved))
	}
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	if err := enc.Encode(report); err != nil {
		return fmt.Errorf("write report: %w", err)
	}
	return nil
}
