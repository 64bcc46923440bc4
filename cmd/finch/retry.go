package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func retryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "retry",
		Short: "Reset failed events back to pending",
		RunE:  runRetry,
	}

	cmd.Flags().String("user", "", "limit the reset to one user")

	return cmd
}

func runRetry(cmd *cobra.Command, _ []string) error {
	userID, _ := cmd.Flags().GetString("user")

	store, err := openStorage()
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	ctx := cmd.Context()
	if err := store.Migrate(ctx); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	count, err := store.ResetFailedEvents(ctx, userID)
	if err != nil {
		return fmt.Errorf("failed to reset events: %w", err)
	}

	fmt.Printf("Reset %d failed event(s) to pending\n", count)
	return nil
}
