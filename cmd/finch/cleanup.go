package main

import (
	"fmt"
	"log/slog"

	"github.com/finchlabs/finch/internal/cache"

	"github.com/spf13/cobra"
)

func cleanupCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cleanup",
		Short: "Delete stale parse-cache entries",
		Long: `Remove durable cache entries that have not been hit recently. The
in-memory tier expires on its own and needs no maintenance.`,
		RunE: runCleanup,
	}

	cmd.Flags().Int("max-age-days", 30, "delete entries unused for longer than this many days")

	return cmd
}

func runCleanup(cmd *cobra.Command, _ []string) error {
	maxAgeDays, _ := cmd.Flags().GetInt("max-age-days")

	store, err := openStorage()
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	ctx := cmd.Context()
	if err := store.Migrate(ctx); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	parseCache := cache.New(store, slog.Default())
	defer parseCache.Close()

	removed, err := parseCache.Cleanup(ctx, maxAgeDays)
	if err != nil {
		return err
	}

	fmt.Printf("Removed %d stale cache entries\n", removed)
	return nil
}
