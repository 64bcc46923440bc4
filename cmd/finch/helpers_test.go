package main

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/finchlabs/finch/internal/provider"

	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func resetViper(t *testing.T) {
	t.Helper()
	viper.Reset()
	t.Cleanup(viper.Reset)
}

func TestDatabasePath(t *testing.T) {
	resetViper(t)

	viper.Set("database.path", "/tmp/custom.db")
	path, err := databasePath()
	require.NoError(t, err)
	assert.Equal(t, "/tmp/custom.db", path)

	viper.Set("database.path", "")
	path, err = databasePath()
	require.NoError(t, err)
	assert.True(t, filepath.IsAbs(path))
	assert.Equal(t, "finch.db", filepath.Base(path))
}

func TestCreateProviderClientDefaultsToMock(t *testing.T) {
	resetViper(t)

	client, err := createProviderClient("")
	require.NoError(t, err)
	assert.IsType(t, &provider.MockClient{}, client)
}

func TestCreateProviderClientOverrideWins(t *testing.T) {
	resetViper(t)
	viper.Set("provider.name", "anthropic")

	client, err := createProviderClient("mock")
	require.NoError(t, err)
	assert.IsType(t, &provider.MockClient{}, client)
}

func TestCreateProviderClientRequiresAPIKey(t *testing.T) {
	resetViper(t)
	t.Setenv("ANTHROPIC_API_KEY", "")
	t.Setenv("OPENAI_API_KEY", "")

	_, err := createProviderClient("anthropic")
	assert.Error(t, err)

	_, err = createProviderClient("openai")
	assert.Error(t, err)
}

func TestCreateProviderClientReadsKeyFromEnv(t *testing.T) {
	resetViper(t)
	t.Setenv("ANTHROPIC_API_KEY", "sk-test")

	client, err := createProviderClient("anthropic")
	require.NoError(t, err)
	assert.NotNil(t, client)
	assert.IsNotType(t, &provider.MockClient{}, client)
}

func TestCreateProviderClientAppliesMockLatency(t *testing.T) {
	resetViper(t)
	viper.Set("provider.mock_latency", "40ms")

	client, err := createProviderClient("mock")
	require.NoError(t, err)

	start := time.Now()
	_, _, err = client.ParseTransaction(context.Background(), "Rs.500 debited for Swiggy", provider.ParseContext{})
	require.NoError(t, err)
	assert.GreaterOrEqual(t, time.Since(start), 40*time.Millisecond)
}

func TestGuardConfig(t *testing.T) {
	resetViper(t)
	viper.Set("costguard.failure_threshold", 5)
	viper.Set("costguard.open_timeout", "2m")
	viper.Set("costguard.global_daily_budget", "10.50")
	viper.Set("costguard.user_daily_budget", "0.25")
	viper.Set("costguard.input_token_rate", "0.003")
	viper.Set("costguard.output_token_rate", "0.015")

	cfg := guardConfig()
	assert.Equal(t, 5, cfg.FailureThreshold)
	assert.Equal(t, 2*time.Minute, cfg.OpenTimeout)
	assert.True(t, cfg.GlobalDailyBudget.Equal(decimal.RequireFromString("10.50")))
	assert.True(t, cfg.UserDailyBudget.Equal(decimal.RequireFromString("0.25")))
	assert.True(t, cfg.InputTokenRate.Equal(decimal.RequireFromString("0.003")))
	assert.True(t, cfg.OutputTokenRate.Equal(decimal.RequireFromString("0.015")))
}

func TestGuardConfigEmptyBudgetsStayZero(t *testing.T) {
	resetViper(t)

	cfg := guardConfig()
	assert.True(t, cfg.GlobalDailyBudget.IsZero())
	assert.True(t, cfg.UserDailyBudget.IsZero())
}
