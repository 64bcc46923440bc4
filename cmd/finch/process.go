package main

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/cobra"
)

func processCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "process",
		Short: "Parse pending events",
		Long: `Sweep pending events through the parse pipeline, oldest first.

Runs once by default; with --interval it keeps sweeping until interrupted.`,
		RunE: runProcess,
	}

	cmd.Flags().String("user", "", "limit the sweep to one user")
	cmd.Flags().Int("limit", 100, "maximum events per sweep")
	cmd.Flags().Duration("interval", 0, "re-sweep interval (0 runs once)")
	cmd.Flags().String("provider", "", "override the configured provider")

	return cmd
}

func runProcess(cmd *cobra.Command, _ []string) error {
	userID, _ := cmd.Flags().GetString("user")
	limit, _ := cmd.Flags().GetInt("limit")
	interval, _ := cmd.Flags().GetDuration("interval")
	providerName, _ := cmd.Flags().GetString("provider")

	application, closeApp, err := buildApp(providerName)
	if err != nil {
		return err
	}
	defer closeApp()

	ctx := cmd.Context()
	if err := application.storage.Migrate(ctx); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	sweep := func() error {
		stats, err := application.orchestrator.ProcessPending(ctx, userID, limit)
		if err != nil {
			slog.Warn("sweep ended early",
				"processed", stats.Processed,
				"error", err)
			return nil
		}
		slog.Info("sweep complete",
			"processed", stats.Processed,
			"parsed", stats.Parsed,
			"skipped", stats.Skipped,
			"failed", stats.Failed)
		return nil
	}

	if err := sweep(); err != nil {
		return err
	}
	if interval <= 0 {
		return nil
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := sweep(); err != nil {
				return err
			}
		}
	}
}
