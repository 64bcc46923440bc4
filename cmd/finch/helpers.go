package main

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/finchlabs/finch/internal/cache"
	"github.com/finchlabs/finch/internal/costguard"
	"github.com/finchlabs/finch/internal/engine"
	"github.com/finchlabs/finch/internal/heuristic"
	"github.com/finchlabs/finch/internal/ingest"
	"github.com/finchlabs/finch/internal/provider"
	"github.com/finchlabs/finch/internal/rules"
	"github.com/finchlabs/finch/internal/storage"

	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
)

func databasePath() (string, error) {
	if path := viper.GetString("database.path"); path != "" {
		return path, nil
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(home, ".local", "share", "finch", "finch.db"), nil
}

func openStorage() (*storage.SQLiteStorage, error) {
	dbPath, err := databasePath()
	if err != nil {
		return nil, err
	}

	if dir := filepath.Dir(dbPath); dbPath != ":memory:" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	store, err := storage.NewSQLiteStorage(dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	return store, nil
}

// createProviderClient builds the backend client from configuration. An
// explicit override (e.g. from "finch eval --provider") wins over config.
// This wiring is shared by every command that parses events.
func createProviderClient(override string) (provider.Client, error) {
	name := override
	if name == "" {
		name = viper.GetString("provider.name")
	}
	if name == "" {
		name = "mock"
	}

	cfg := provider.Config{
		Name:        name,
		Model:       viper.GetString("provider.model"),
		BaseURL:     viper.GetString("provider.base_url"),
		MaxTokens:   viper.GetInt("provider.max_tokens"),
		RateLimit:   viper.GetInt("provider.rate_limit"),
		Temperature: viper.GetFloat64("provider.temperature"),
		Timeout:     viper.GetDuration("provider.timeout"),
		MockLatency: viper.GetDuration("provider.mock_latency"),
	}

	switch name {
	case "anthropic":
		cfg.APIKey = viper.GetString("provider.anthropic_api_key")
		if cfg.APIKey == "" {
			cfg.APIKey = os.Getenv("ANTHROPIC_API_KEY")
		}
		if cfg.APIKey == "" {
			return nil, fmt.Errorf("anthropic API key not found in config or ANTHROPIC_API_KEY environment variable")
		}
	case "openai":
		cfg.APIKey = viper.GetString("provider.openai_api_key")
		if cfg.APIKey == "" {
			cfg.APIKey = os.Getenv("OPENAI_API_KEY")
		}
		if cfg.APIKey == "" {
			return nil, fmt.Errorf("OpenAI API key not found in config or OPENAI_API_KEY environment variable")
		}
	}

	return provider.New(cfg)
}

func guardConfig() costguard.Config {
	cfg := costguard.Config{
		FailureThreshold: viper.GetInt("costguard.failure_threshold"),
		OpenTimeout:      viper.GetDuration("costguard.open_timeout"),
	}
	if v := viper.GetString("costguard.global_daily_budget"); v != "" {
		cfg.GlobalDailyBudget, _ = decimal.NewFromString(v)
	}
	if v := viper.GetString("costguard.user_daily_budget"); v != "" {
		cfg.UserDailyBudget, _ = decimal.NewFromString(v)
	}
	if v := viper.GetString("costguard.input_token_rate"); v != "" {
		cfg.InputTokenRate, _ = decimal.NewFromString(v)
	}
	if v := viper.GetString("costguard.output_token_rate"); v != "" {
		cfg.OutputTokenRate, _ = decimal.NewFromString(v)
	}
	return cfg
}

// buildEvalOrchestrator wires a pipeline over a caller-supplied store,
// used by evaluation runs that must not touch the production database.
func buildEvalOrchestrator(store *storage.SQLiteStorage, providerOverride string) (*engine.Orchestrator, func(), error) {
	logger := slog.Default()

	client, err := createProviderClient(providerOverride)
	if err != nil {
		return nil, nil, err
	}

	ruleEngine, err := rules.NewEngine(rules.Config{}, logger)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load category rules: %w", err)
	}

	parseCache := cache.New(store, logger)
	guard := costguard.New(guardConfig(), store, logger)

	orchestrator := engine.New(engine.Config{
		HighConfidence:  viper.GetFloat64("engine.high_confidence"),
		ProviderTimeout: viper.GetDuration("engine.provider_timeout"),
	}, store, parseCache, heuristic.NewExtractor(), ruleEngine, client, guard, logger)

	return orchestrator, parseCache.Close, nil
}

// app bundles the fully wired pipeline for one command invocation.
type app struct {
	storage      *storage.SQLiteStorage
	cache        *cache.ParseCache
	guard        *costguard.Guard
	orchestrator *engine.Orchestrator
	gateway      *ingest.Gateway
}

// buildApp wires storage, cache, guard, rules, provider, orchestrator, and
// gateway. Callers must call close when done.
func buildApp(providerOverride string) (*app, func(), error) {
	store, err := openStorage()
	if err != nil {
		return nil, nil, err
	}

	logger := slog.Default()

	client, err := createProviderClient(providerOverride)
	if err != nil {
		_ = store.Close()
		return nil, nil, err
	}

	ruleEngine, err := rules.NewEngine(rules.Config{}, logger)
	if err != nil {
		_ = store.Close()
		return nil, nil, fmt.Errorf("failed to load category rules: %w", err)
	}

	parseCache := cache.New(store, logger)
	guard := costguard.New(guardConfig(), store, logger)
	extractor := heuristic.NewExtractor()

	orchestrator := engine.New(engine.Config{
		HighConfidence:  viper.GetFloat64("engine.high_confidence"),
		ProviderTimeout: viper.GetDuration("engine.provider_timeout"),
	}, store, parseCache, extractor, ruleEngine, client, guard, logger)

	gateway := ingest.NewGateway(ingest.Config{
		DedupWindow:    viper.GetDuration("ingest.dedup_window"),
		TriggerLimit:   viper.GetInt("ingest.trigger_limit"),
		TriggerTimeout: viper.GetDuration("ingest.trigger_timeout"),
	}, store, orchestrator, logger)

	closeAll := func() {
		gateway.Wait()
		parseCache.Close()
		if err := store.Close(); err != nil {
			logger.Error("failed to close database", "error", err)
		}
	}

	return &app{
		storage:      store,
		cache:        parseCache,
		guard:        guard,
		orchestrator: orchestrator,
		gateway:      gateway,
	}, closeAll, nil
}
