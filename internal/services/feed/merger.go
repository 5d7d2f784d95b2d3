package feed

import (
	"sort"

	"github.com/zuoban/binance-dashboard-sub000/internal/domain"

	"github.com/shopspring/decimal"
)

// MergeFills merges raw executions into logical orders, grouping by order
// id. The result is deterministic for a given input set regardless of
// input ordering: fills inside a group are sorted by time, and the output
// is newest-first by creation time with order id as tie-break.
func MergeFills(fills []domain.Fill) []domain.LogicalOrder {
	groups := make(map[string][]domain.Fill)
	for _, f := range fills {
		groups[f.OrderID] = append(groups[f.OrderID], f)
	}

	orders := make([]domain.LogicalOrder, 0, len(groups))
	for orderID, group := range groups {
		sort.Slice(group, func(i, j int) bool {
			if group[i].Time.Equal(group[j].Time) {
				return group[i].TradeID < group[j].TradeID
			}
			return group[i].Time.Before(group[j].Time)
		})

		first := group[0]
		last := group[len(group)-1]

		notional := decimal.Zero
		quantity := decimal.Zero
		commission := decimal.Zero
		realizedPnl := decimal.Zero
		for _, f := range group {
			notional = notional.Add(f.Price.Mul(f.Quantity))
			quantity = quantity.Add(f.Quantity)
			commission = commission.Add(f.Commission)
			realizedPnl = realizedPnl.Add(f.RealizedPnl)
		}

		avgPrice := first.Price
		if !quantity.IsZero() {
			avgPrice = notional.Div(quantity)
		}

		orders = append(orders, domain.LogicalOrder{
			OrderID:         orderID,
			Symbol:          first.Symbol,
			Side:            first.Side,
			AvgPrice:        avgPrice,
			Quantity:        quantity,
			Commission:      commission,
			CommissionAsset: first.CommissionAsset,
			RealizedPnl:     realizedPnl,
			Maker:           first.Maker,
			CreatedAt:       first.Time,
			UpdatedAt:       last.Time,
		})
	}

	sort.Slice(orders, func(i, j int) bool {
		if orders[i].CreatedAt.Equal(orders[j].CreatedAt) {
			return orders[i].OrderID > orders[j].OrderID
		}
		return orders[i].CreatedAt.After(orders[j].CreatedAt)
	})

	return orders
}
