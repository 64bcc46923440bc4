package main

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
)

func usageCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "usage",
		Short: "Show provider spend from the audit log",
		RunE:  runUsage,
	}

	cmd.Flags().Int("days", 7, "how many days back to report")
	cmd.Flags().String("user", "", "limit the report to one user")

	return cmd
}

func runUsage(cmd *cobra.Command, _ []string) error {
	days, _ := cmd.Flags().GetInt("days")
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

	since := time.Now().UTC().AddDate(0, 0, -days)
	records, err := store.GetProviderUsageSince(ctx, since)
	if err != nil {
		return fmt.Errorf("failed to load usage records: %w", err)
	}

	type bucket struct {
		cost         decimal.Decimal
		inputTokens  int
		outputTokens int
		calls        int
	}
	byProvider := make(map[string]*bucket)
	total := bucket{}

	for _, record := range records {
		if userID != "" && record.UserID != userID {
			continue
		}
		b, ok := byProvider[record.Provider]
		if !ok {
			b = &bucket{}
			byProvider[record.Provider] = b
		}
		b.calls++
		b.inputTokens += record.InputTokens
		b.outputTokens += record.OutputTokens
		b.cost = b.cost.Add(record.Cost)

		total.calls++
		total.inputTokens += record.InputTokens
		total.outputTokens += record.OutputTokens
		total.cost = total.cost.Add(record.Cost)
	}

	fmt.Printf("Provider usage since %s\n", since.Format("2006-01-02"))
	for name, b := range byProvider {
		fmt.Printf("  %-12s calls=%-5d in=%-8d out=%-8d cost=%s\n",
			name, b.calls, b.inputTokens, b.outputTokens, b.cost.StringFixed(4))
	}
	fmt.Printf("  %-12s calls=%-5d in=%-8d out=%-8d cost=%s\n",
		"total", total.calls, total.inputTokens, total.outputTokens, total.cost.StringFixed(4))

	return nil
}
