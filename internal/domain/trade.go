package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Fill is one raw trade execution as reported by the exchange.
type Fill struct {
	TradeID         string          `json:"tradeId"`
	OrderID         string          `json:"orderId"`
	Symbol          string          `json:"symbol"`
	Side            string          `json:"side"`
	Price           decimal.Decimal `json:"price"`
	Quantity        decimal.Decimal `json:"quantity"`
	Commission      decimal.Decimal `json:"commission"`
	CommissionAsset string          `json:"commissionAsset"`
	RealizedPnl     decimal.Decimal `json:"realizedPnl"`
	Time            time.Time       `json:"time"`
	Maker           bool            `json:"maker"`
}

// LogicalOrder is the merged view of all fills sharing one order id.
type LogicalOrder struct {
	OrderID string `json:"orderId"`
	Symbol  string `json:"symbol"`
	Side    string `json:"side"`
	// AvgPrice is the quantity-weighted average price over the
	// constituent fills.
	AvgPrice        decimal.Decimal `json:"avgPrice"`
	Quantity        decimal.Decimal `json:"quantity"`
	Commission      decimal.Decimal `json:"commission"`
	CommissionAsset string          `json:"commissionAsset"`
	RealizedPnl     decimal.Decimal `json:"realizedPnl"`
	Maker           bool            `json:"maker"`
	CreatedAt       time.Time       `json:"createdAt"`
	UpdatedAt       time.Time       `json:"updatedAt"`
}

// OpenOrder is one resting order on the book.
type OpenOrder struct {
	OrderID     string          `json:"orderId"`
	Symbol      string          `json:"symbol"`
	Side        string          `json:"side"`
	Type        string          `json:"type"`
	Price       decimal.Decimal `json:"price"`
	OrigQty     decimal.Decimal `json:"origQty"`
	ExecutedQty decimal.Decimal `json:"executedQty"`
	ReduceOnly  bool            `json:"reduceOnly"`
	Time        time.Time       `json:"time"`
}

// OpenOrdersStats summarises the resting orders for the header widgets.
type OpenOrdersStats struct {
	Total int `json:"total"`
	Buy   int `json:"buy"`
	Sell  int `json:"sell"`
}
