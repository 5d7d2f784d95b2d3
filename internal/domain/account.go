package domain

import "github.com/shopspring/decimal"

// AccountSummary holds the equity figures derived from the futures
// account. All values are denominated in USDT.
type AccountSummary struct {
	// WalletBalance sums all asset wallet balances, non-stable assets
	// converted at their last price.
	WalletBalance decimal.Decimal `json:"walletBalance"`
	// UnrealizedProfit sums unrealized PnL across open positions.
	UnrealizedProfit decimal.Decimal `json:"unrealizedProfit"`
	// Equity = WalletBalance - UnrealizedProfit.
	Equity decimal.Decimal `json:"equity"`
	// AvailableBalance is the balance free for new orders, as reported
	// by the exchange.
	AvailableBalance decimal.Decimal `json:"availableBalance"`
}

// AssetBalance is one asset's wallet entry inside the futures account.
type AssetBalance struct {
	Asset            string          `json:"asset"`
	WalletBalance    decimal.Decimal `json:"walletBalance"`
	UnrealizedProfit decimal.Decimal `json:"unrealizedProfit"`
}

// AccountState is the raw account view returned by an exchange adapter,
// before the feed derives the converted summary.
type AccountState struct {
	Assets           []AssetBalance
	AvailableBalance decimal.Decimal
}
