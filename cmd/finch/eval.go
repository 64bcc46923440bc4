package main

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	"github.com/finchlabs/finch/internal/eval"
	"github.com/finchlabs/finch/internal/storage"

	"github.com/spf13/cobra"
)

func evalCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "eval <labeled-set.json>",
		Short: "Run a labeled set through the parse pipeline",
		Long: `Evaluate parsing accuracy against a labeled set. Each item runs through
the full pipeline against an in-memory database, so evaluation never
touches production data. Amounts match within 1%; merchants match by
case-insensitive substring.`,
		Args: cobra.ExactArgs(1),
		RunE: runEval,
	}

	cmd.Flags().String("provider", "", "override the configured provider (mock, anthropic, openai)")
	cmd.Flags().Bool("json", false, "emit the full report as JSON")

	return cmd
}

func runEval(cmd *cobra.Command, args []string) error {
	providerName, _ := cmd.Flags().GetString("provider")
	asJSON, _ := cmd.Flags().GetBool("json")

	items, err := eval.LoadLabeledSet(args[0])
	if err != nil {
		return err
	}

	// Evaluation runs against a throwaway in-memory database.
	store, err := storage.NewSQLiteStorage(":memory:")
	if err != nil {
		return fmt.Errorf("failed to create eval database: %w", err)
	}
	defer func() { _ = store.Close() }()

	ctx := cmd.Context()
	if err := store.Migrate(ctx); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	orchestrator, closeOrch, err := buildEvalOrchestrator(store, providerName)
	if err != nil {
		return err
	}
	defer closeOrch()

	harness := eval.NewHarness(store, orchestrator, slog.Default())
	report, err := harness.Run(ctx, items)
	if err != nil {
		return fmt.Errorf("evaluation failed: %w", err)
	}

	if asJSON {
		encoder := json.NewEncoder(os.Stdout)
		encoder.SetIndent("", "  ")
		return encoder.Encode(report)
	}

	for _, item := range report.Items {
		if item.Passed {
			continue
		}
		fmt.Printf("FAIL %s (%s)\n", item.ID, item.Provenance)
		for _, mismatch := range item.Mismatches {
			fmt.Printf("     %s\n", mismatch)
		}
	}
	fmt.Printf("%d/%d passed\n", report.Passed, report.Total)

	if report.Failed > 0 {
		return fmt.Errorf("%d item(s) failed", report.Failed)
	}
	return nil
}
