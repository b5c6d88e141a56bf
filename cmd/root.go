// Package cmd defines the placecrawl command line: crawl, catalog and backfill.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/allofdaniel/placecrawl/internal/config"
	"github.com/allofdaniel/placecrawl/internal/logging"
)

// flagKeys maps flag names to the configuration keys they override. A flag is
// bound only on commands that define it.
var flagKeys = map[string]string{
	"catalog":     "storage.catalog_path",
	"results":     "storage.results_path",
	"backend":     "storage.backend",
	"dev":         "logging.development",
	"concurrency": "crawler.concurrency_limit",
	"batch-size":  "crawler.batch_size",
	"retries":     "crawler.retry_count",
	"headless":    "renderer.headless",
	"api-addr":    "api.addr",
}

// envKey is the context key for the loaded configuration and logger.
type envKey struct{}

type env struct {
	cfg    config.Config
	logger *zap.Logger
}

// newLogger is swapped in tests to capture output.
var newLogger = logging.New

// newRootCmd creates the root command and its subcommands.
func newRootCmd() *cobra.Command {
	var cfgFile string
	cmd := &cobra.Command{
		Use:   "placecrawl",
		Short: "Resolve place websites with a headless browser.",
		Long: `placecrawl walks a catalog of places, renders each place page in an
isolated browser session and records the website it links to. Runs are
resumable: results are checkpointed after every batch and places that already
have a website are skipped.`,
		SilenceUsage: true,

		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(cfgFile, bindings(cmd)...)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			logger, err := newLogger(cfg.Logging.Development)
			if err != nil {
				return fmt.Errorf("init logger: %w", err)
			}
			zap.ReplaceGlobals(logger)
			cmd.SetContext(context.WithValue(cmd.Context(), envKey{}, &env{cfg: cfg, logger: logger}))
			return nil
		},

		PersistentPostRun: func(cmd *cobra.Command, _ []string) {
			if rt, ok := cmd.Context().Value(envKey{}).(*env); ok {
				_ = rt.logger.Sync()
			}
		},
	}

	flags := cmd.PersistentFlags()
	flags.StringVar(&cfgFile, "config", "", "config file (yaml, json or toml)")
	flags.String("catalog", "", "entity catalog path (storage.catalog_path)")
	flags.String("results", "", "result snapshot path for the local backend (storage.results_path)")
	flags.String("backend", "", "result backend: local or gcs (storage.backend)")
	flags.Bool("dev", false, "human-readable development logging (logging.development)")

	cmd.AddCommand(newCrawlCmd(), newCatalogCmd(), newBackfillCmd())
	return cmd
}

func bindings(cmd *cobra.Command) []config.FlagBinding {
	out := make([]config.FlagBinding, 0, len(flagKeys))
	for name, key := range flagKeys {
		if f := cmd.Flags().Lookup(name); f != nil {
			out = append(out, config.FlagBinding{Key: key, Flag: f})
		}
	}
	return out
}

func resolveEnv(ctx context.Context) (*env, error) {
	rt, ok := ctx.Value(envKey{}).(*env)
	if !ok || rt == nil {
		return nil, errors.New("configuration not loaded")
	}
	return rt, nil
}

// Execute runs the command line. SIGINT and SIGTERM cancel the command
// context; a crawl then stops scheduling batches and persists what it has.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err := newRootCmd().ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
