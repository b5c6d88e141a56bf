package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/allofdaniel/placecrawl/internal/app"
	"github.com/allofdaniel/placecrawl/internal/backfill"
	"github.com/allofdaniel/placecrawl/internal/store"
)

func newBackfillCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "backfill FACILITY_FILE...",
		Short: "Write resolved websites back into facility data files",
		Long: `Reads the result snapshot and sets "website" on every facility that lacks
one and has a resolved place id. Files without changes are left untouched.`,
		Args: cobra.MinimumNArgs(1),
		RunE: runBackfillCommand,
	}
}

func runBackfillCommand(cmd *cobra.Command, args []string) error {
	rt, err := resolveEnv(cmd.Context())
	if err != nil {
		return err
	}
	backend, closeBackend, err := app.OpenBackend(cmd.Context(), rt.cfg.Storage)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := closeBackend(); cerr != nil {
			rt.logger.Warn("failed to close result backend", zap.Error(cerr))
		}
	}()

	results, err := store.Load(cmd.Context(), backend)
	if err != nil {
		return err
	}
	rt.logger.Info("result snapshot loaded", zap.String("uri", results.URI()), zap.Int("resolved", results.Len()))

	files, err := backfill.New(results, rt.logger).Apply(cmd.Context(), args...)
	total := 0
	for _, f := range files {
		total += f.Updated
		fmt.Fprintf(cmd.OutOrStdout(), "%s: %d updated\n", f.Path, f.Updated)
	}
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%d websites backfilled\n", total)
	return nil
}
