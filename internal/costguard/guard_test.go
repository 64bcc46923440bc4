package costguard

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/finchlabs/finch/internal/common"
	"github.com/finchlabs/finch/internal/model"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memoryAuditStore records usage rows in memory.
type memoryAuditStore struct {
	mu      sync.Mutex
	records []model.UsageRecord
}

func (m *memoryAuditStore) SaveProviderUsage(_ context.Context, record *model.UsageRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = append(m.records, *record)
	return nil
}

func newTestGuard(cfg Config, store AuditStore) (*Guard, *time.Time) {
	guard := New(cfg, store, nil)
	now := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	clock := &now
	guard.now = func() time.Time { return *clock }
	return guard, clock
}

func TestRecordUsageComputesCost(t *testing.T) {
	store := &memoryAuditStore{}
	guard, _ := newTestGuard(Config{}, store)
	ctx := context.Background()

	// 1000 input at 0.003/1k plus 1000 output at 0.015/1k.
	cost, err := guard.RecordUsage(ctx, "user-1", "anthropic", "claude-3-5-haiku-20241022", 1000, 1000)
	require.NoError(t, err)
	assert.Equal(t, "0.018", cost.String())

	require.Len(t, store.records, 1)
	record := store.records[0]
	assert.Equal(t, "anthropic", record.Provider)
	assert.Equal(t, "user-1", record.UserID)
	assert.Equal(t, 1000, record.InputTokens)
	assert.Equal(t, "0.018", record.Cost.String())
	assert.NotEmpty(t, record.ID)
}

func TestCheckBudgetUserLimit(t *testing.T) {
	guard, _ := newTestGuard(Config{
		UserDailyBudget:   decimal.RequireFromString("0.01"),
		GlobalDailyBudget: decimal.NewFromInt(100),
	}, nil)
	ctx := context.Background()

	require.NoError(t, guard.CheckBudget(ctx, "user-1", "mock"))

	_, err := guard.RecordUsage(ctx, "user-1", "mock", "mock-v1", 10000, 0)
	require.NoError(t, err)

	err = guard.CheckBudget(ctx, "user-1", "mock")
	var budgetErr *common.BudgetExceededError
	require.ErrorAs(t, err, &budgetErr)
	assert.Equal(t, common.BudgetScopeUser, budgetErr.Scope)
	assert.Equal(t, "user-1", budgetErr.UserID)

	// Another user is unaffected by this user's exhaustion.
	assert.NoError(t, guard.CheckBudget(ctx, "user-2", "mock"))
}

func TestCheckBudgetGlobalLimit(t *testing.T) {
	guard, _ := newTestGuard(Config{
		UserDailyBudget:   decimal.NewFromInt(100),
		GlobalDailyBudget: decimal.RequireFromString("0.01"),
	}, nil)
	ctx := context.Background()

	_, err := guard.RecordUsage(ctx, "user-1", "mock", "mock-v1", 10000, 0)
	require.NoError(t, err)

	err = guard.CheckBudget(ctx, "user-2", "mock")
	var budgetErr *common.BudgetExceededError
	require.ErrorAs(t, err, &budgetErr)
	assert.Equal(t, common.BudgetScopeGlobal, budgetErr.Scope)
}

func TestBudgetResetsAtMidnightUTC(t *testing.T) {
	guard, clock := newTestGuard(Config{
		UserDailyBudget:   decimal.RequireFromString("0.01"),
		GlobalDailyBudget: decimal.NewFromInt(100),
	}, nil)
	ctx := context.Background()

	_, err := guard.RecordUsage(ctx, "user-1", "mock", "mock-v1", 10000, 0)
	require.NoError(t, err)
	require.Error(t, guard.CheckBudget(ctx, "user-1", "mock"))

	*clock = clock.AddDate(0, 0, 1)
	assert.NoError(t, guard.CheckBudget(ctx, "user-1", "mock"),
		"a new UTC day starts with fresh counters")
}

func TestBreakerOpensAfterThreshold(t *testing.T) {
	guard, _ := newTestGuard(Config{FailureThreshold: 3}, nil)
	ctx := context.Background()

	guard.RecordFailure("anthropic")
	guard.RecordFailure("anthropic")
	require.NoError(t, guard.CheckBudget(ctx, "user-1", "anthropic"),
		"breaker stays closed below the threshold")

	guard.RecordFailure("anthropic")

	err := guard.CheckBudget(ctx, "user-1", "anthropic")
	var circuitErr *common.CircuitOpenError
	require.ErrorAs(t, err, &circuitErr)
	assert.Equal(t, "anthropic", circuitErr.Provider)
	assert.Greater(t, circuitErr.RetryAfter, time.Duration(0))

	// Breakers are per provider.
	assert.NoError(t, guard.CheckBudget(ctx, "user-1", "openai"))
}

func TestBreakerHalfOpenProbe(t *testing.T) {
	guard, clock := newTestGuard(Config{FailureThreshold: 2, OpenTimeout: time.Minute}, nil)
	ctx := context.Background()

	guard.RecordFailure("mock")
	guard.RecordFailure("mock")
	require.Error(t, guard.CheckBudget(ctx, "user-1", "mock"))

	// After the open timeout a single probe is admitted; a concurrent
	// caller is still blocked.
	*clock = clock.Add(61 * time.Second)
	require.NoError(t, guard.CheckBudget(ctx, "user-1", "mock"))
	require.Error(t, guard.CheckBudget(ctx, "user-1", "mock"))

	// Probe success closes the breaker for everyone.
	_, err := guard.RecordUsage(ctx, "user-1", "mock", "mock-v1", 10, 10)
	require.NoError(t, err)
	assert.NoError(t, guard.CheckBudget(ctx, "user-1", "mock"))
}

func TestBreakerHalfOpenProbeFailureReopens(t *testing.T) {
	guard, clock := newTestGuard(Config{FailureThreshold: 2, OpenTimeout: time.Minute}, nil)
	ctx := context.Background()

	guard.RecordFailure("mock")
	guard.RecordFailure("mock")

	*clock = clock.Add(61 * time.Second)
	require.NoError(t, guard.CheckBudget(ctx, "user-1", "mock"))

	// A single probe failure reopens immediately, below the threshold.
	guard.RecordFailure("mock")
	require.Error(t, guard.CheckBudget(ctx, "user-1", "mock"))

	// And the full timeout must elapse again before the next probe.
	*clock = clock.Add(61 * time.Second)
	assert.NoError(t, guard.CheckBudget(ctx, "user-1", "mock"))
}

func TestSpendToday(t *testing.T) {
	guard, _ := newTestGuard(Config{}, nil)
	ctx := context.Background()

	_, err := guard.RecordUsage(ctx, "user-1", "mock", "mock-v1", 1000, 0)
	require.NoError(t, err)
	_, err = guard.RecordUsage(ctx, "user-2", "mock", "mock-v1", 1000, 0)
	require.NoError(t, err)

	userSpend, globalSpend := guard.SpendToday("user-1")
	assert.Equal(t, "0.003", userSpend.String())
	assert.Equal(t, "0.006", globalSpend.String())
}

func TestConcurrentRecordUsageKeepsCountersConsistent(t *testing.T) {
	guard, _ := newTestGuard(Config{GlobalDailyBudget: decimal.NewFromInt(1000), UserDailyBudget: decimal.NewFromInt(1000)}, nil)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = guard.RecordUsage(ctx, "user-1", "mock", "mock-v1", 1000, 0)
		}()
	}
	wg.Wait()

	userSpend, globalSpend := guard.SpendToday("user-1")
	assert.True(t, userSpend.Equal(decimal.RequireFromString("0.15")), "got %s", userSpend)
	assert.True(t, globalSpend.Equal(userSpend))
}
