package domain

import "github.com/shopspring/decimal"

// PositionSide is the hedge-mode side reported by the exchange.
type PositionSide string

const (
	PositionSideLong  PositionSide = "LONG"
	PositionSideShort PositionSide = "SHORT"
	PositionSideBoth  PositionSide = "BOTH"
)

// Position is one open futures position.
type Position struct {
	Symbol string `json:"symbol"`
	// Amount is signed: negative for shorts in one-way mode.
	Amount           decimal.Decimal `json:"amount"`
	EntryPrice       decimal.Decimal `json:"entryPrice"`
	MarkPrice        decimal.Decimal `json:"markPrice"`
	UnrealizedProfit decimal.Decimal `json:"unrealizedProfit"`
	LiquidationPrice decimal.Decimal `json:"liquidationPrice"`
	BreakEvenPrice   decimal.Decimal `json:"breakEvenPrice"`
	Leverage         decimal.Decimal `json:"leverage"`
	Side             PositionSide    `json:"side"`
	MarginType       string          `json:"marginType"`
}

// IsFlat reports whether the position holds no amount. Flat positions are
// filtered out before they reach a snapshot.
func (p Position) IsFlat() bool {
	return p.Amount.IsZero()
}
