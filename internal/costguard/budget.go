package costguard

import (
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

// budgetCounters holds day-keyed spend counters. Keys reset implicitly by
// embedding the day, so a new day always starts at zero.
type budgetCounters struct {
	spend     map[string]decimal.Decimal
	lastSweep time.Time
	retention time.Duration
	mu        sync.Mutex
}

func newBudgetCounters(retention time.Duration) *budgetCounters {
	if retention <= 0 {
		retention = 48 * time.Hour
	}
	return &budgetCounters{
		spend:     make(map[string]decimal.Decimal),
		retention: retention,
	}
}

func globalKey(day string) string {
	return "global:" + day
}

func userKey(userID, day string) string {
	return fmt.Sprintf("user:%s:%s", userID, day)
}

func dayOf(t time.Time) string {
	return t.UTC().Format("2006-01-02")
}

// get returns the accumulated spend for a key.
func (c *budgetCounters) get(key string) decimal.Decimal {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.spend[key]
}

// add atomically accumulates spend under the lock, sweeping expired
// day-keys opportunistically.
func (c *budgetCounters) add(keys []string, amount decimal.Decimal, now time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, key := range keys {
		c.spend[key] = c.spend[key].Add(amount)
	}

	if now.Sub(c.lastSweep) > time.Hour {
		c.sweepLocked(now)
		c.lastSweep = now
	}
}

// sweepLocked drops counters for days past the retention window. The day
// suffix is the last 10 bytes of every key.
func (c *budgetCounters) sweepLocked(now time.Time) {
	cutoff := dayOf(now.Add(-c.retention))
	for key := range c.spend {
		if len(key) < 10 {
			continue
		}
		if key[len(key)-10:] < cutoff {
			delete(c.spend, key)
		}
	}
}
