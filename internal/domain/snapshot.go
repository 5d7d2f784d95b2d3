package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Snapshot is one immutable, fully-assembled view of the account produced
// by a single refresh cycle. It is replaced wholesale on each refresh and
// never mutated in place, so subscribers may hold it indefinitely.
type Snapshot struct {
	Account          AccountSummary      `json:"account"`
	Positions        []Position          `json:"positions"`
	Orders           []LogicalOrder      `json:"orders"`
	OpenOrdersStats  OpenOrdersStats     `json:"openOrdersStats"`
	OpenOrders       []OpenOrder         `json:"openOrders"`
	TodayRealizedPnl decimal.Decimal     `json:"todayRealizedPnl"`
	Klines           map[string][]Candle `json:"klines"`
	FetchCount       int64               `json:"fetchCount"`
	Timestamp        time.Time           `json:"ts"`
}

// WithTimestamp returns a shallow copy of the snapshot carrying a new
// timestamp. Used when a stale snapshot is re-published after a failed
// refresh.
func (s *Snapshot) WithTimestamp(ts time.Time) *Snapshot {
	c := *s
	c.Timestamp = ts
	return &c
}
