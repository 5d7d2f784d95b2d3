package feed

import (
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

type dailyRecord struct {
	date             string
	balance          decimal.Decimal
	unrealizedProfit decimal.Decimal
}

// DailyTracker derives today's realized PnL from the equity delta against
// a baseline captured at the first observation of each UTC day.
//
// This is a deliberate approximation: deposits, withdrawals and funding
// fees are indistinguishable from realized trading PnL here. The record
// lives in memory only, so a restart resets the baseline and today's
// realized PnL starts from zero again.
type DailyTracker struct {
	mu     sync.Mutex
	record *dailyRecord
	now    func() time.Time
}

// NewDailyTracker creates a tracker using the wall clock.
func NewDailyTracker() *DailyTracker {
	return &DailyTracker{now: time.Now}
}

// Observe feeds the current wallet balance and unrealized profit and
// returns today's realized PnL. On the first call of a UTC day the
// baseline is replaced and 0 is returned.
func (t *DailyTracker) Observe(balance, unrealizedProfit decimal.Decimal) decimal.Decimal {
	t.mu.Lock()
	defer t.mu.Unlock()

	today := t.now().UTC().Format("2006-01-02")
	if t.record == nil || t.record.date != today {
		t.record = &dailyRecord{
			date:             today,
			balance:          balance,
			unrealizedProfit: unrealizedProfit,
		}
		return decimal.Zero
	}

	currentEquity := balance.Sub(unrealizedProfit)
	baselineEquity := t.record.balance.Sub(t.record.unrealizedProfit)
	return currentEquity.Sub(baselineEquity)
}
