package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/allofdaniel/placecrawl/internal/catalog"
)

func newCatalogCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "catalog FACILITY_FILE...",
		Short: "Build the crawl catalog from facility data files",
		Long: `Collects every facility without a website whose place URL ends in a numeric
id and writes them, in file order, to the catalog path.`,
		Args: cobra.MinimumNArgs(1),
		RunE: runCatalogCommand,
	}
}

func runCatalogCommand(cmd *cobra.Command, args []string) error {
	rt, err := resolveEnv(cmd.Context())
	if err != nil {
		return err
	}
	entries, err := catalog.DeriveMissing(args...)
	if err != nil {
		return err
	}
	out := rt.cfg.Storage.CatalogPath
	if err := catalog.Write(cmd.Context(), out, entries); err != nil {
		return err
	}
	rt.logger.Info("catalog written",
		zap.String("path", out),
		zap.Int("entries", len(entries)),
		zap.Strings("sources", args),
	)
	fmt.Fprintf(cmd.OutOrStdout(), "%d places without a website written to %s\n", len(entries), out)
	return nil
}
