package exchange

import (
	"context"
	"strconv"
	"time"

	"github.com/zuoban/binance-dashboard-sub000/internal/domain"

	"github.com/adshao/go-binance/v2/futures"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
)

// Binance adapts the USD-M futures REST API.
type Binance struct {
	client *futures.Client
}

// NewBinance creates a Binance futures adapter.
func NewBinance(client *futures.Client) *Binance {
	return &Binance{client: client}
}

func (b *Binance) Account(ctx context.Context) (domain.AccountState, error) {
	account, err := b.client.NewGetAccountService().Do(ctx)
	if err != nil {
		return domain.AccountState{}, errors.Wrap(err, "failed to fetch futures account")
	}

	state := domain.AccountState{Assets: make([]domain.AssetBalance, 0, len(account.Assets))}

	state.AvailableBalance, err = parseDecimal(account.AvailableBalance, "availableBalance")
	if err != nil {
		return domain.AccountState{}, err
	}

	for _, a := range account.Assets {
		wallet, err := parseDecimal(a.WalletBalance, "walletBalance")
		if err != nil {
			return domain.AccountState{}, errors.Wrapf(err, "asset %s", a.Asset)
		}
		unrealized, err := parseDecimal(a.UnrealizedProfit, "unrealizedProfit")
		if err != nil {
			return domain.AccountState{}, errors.Wrapf(err, "asset %s", a.Asset)
		}
		state.Assets = append(state.Assets, domain.AssetBalance{
			Asset:            a.Asset,
			WalletBalance:    wallet,
			UnrealizedProfit: unrealized,
		})
	}

	return state, nil
}

func (b *Binance) Positions(ctx context.Context) ([]domain.Position, error) {
	risks, err := b.client.NewGetPositionRiskService().Do(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "failed to fetch position risk")
	}

	positions := make([]domain.Position, 0, len(risks))
	for _, r := range risks {
		p, err := positionFromRisk(r)
		if err != nil {
			return nil, errors.Wrapf(err, "position %s", r.Symbol)
		}
		positions = append(positions, p)
	}
	return positions, nil
}

func (b *Binance) OpenOrders(ctx context.Context) ([]domain.OpenOrder, error) {
	orders, err := b.client.NewListOpenOrdersService().Do(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "failed to fetch open orders")
	}

	result := make([]domain.OpenOrder, 0, len(orders))
	for _, o := range orders {
		price, err := parseDecimal(o.Price, "price")
		if err != nil {
			return nil, errors.Wrapf(err, "order %d", o.OrderID)
		}
		origQty, err := parseDecimal(o.OrigQuantity, "origQty")
		if err != nil {
			return nil, errors.Wrapf(err, "order %d", o.OrderID)
		}
		executedQty, err := parseDecimal(o.ExecutedQuantity, "executedQty")
		if err != nil {
			return nil, errors.Wrapf(err, "order %d", o.OrderID)
		}
		result = append(result, domain.OpenOrder{
			OrderID:     strconv.FormatInt(o.OrderID, 10),
			Symbol:      o.Symbol,
			Side:        string(o.Side),
			Type:        string(o.Type),
			Price:       price,
			OrigQty:     origQty,
			ExecutedQty: executedQty,
			ReduceOnly:  o.ReduceOnly,
			Time:        millisToTime(o.Time),
		})
	}
	return result, nil
}

func (b *Binance) RecentFills(ctx context.Context, symbol string, limit int) ([]domain.Fill, error) {
	trades, err := b.client.NewListAccountTradeService().Symbol(symbol).Limit(limit).Do(ctx)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to fetch account trades for %s", symbol)
	}

	fills := make([]domain.Fill, 0, len(trades))
	for _, t := range trades {
		price, err := parseDecimal(t.Price, "price")
		if err != nil {
			return nil, errors.Wrapf(err, "trade %d", t.ID)
		}
		qty, err := parseDecimal(t.Quantity, "qty")
		if err != nil {
			return nil, errors.Wrapf(err, "trade %d", t.ID)
		}
		commission, err := parseDecimal(t.Commission, "commission")
		if err != nil {
			return nil, errors.Wrapf(err, "trade %d", t.ID)
		}
		realizedPnl, err := parseDecimal(t.RealizedPnl, "realizedPnl")
		if err != nil {
			return nil, errors.Wrapf(err, "trade %d", t.ID)
		}
		fills = append(fills, domain.Fill{
			TradeID:         strconv.FormatInt(t.ID, 10),
			OrderID:         strconv.FormatInt(t.OrderID, 10),
			Symbol:          t.Symbol,
			Side:            string(t.Side),
			Price:           price,
			Quantity:        qty,
			Commission:      commission,
			CommissionAsset: t.CommissionAsset,
			RealizedPnl:     realizedPnl,
			Time:            millisToTime(t.Time),
			Maker:           t.Maker,
		})
	}
	return fills, nil
}

func (b *Binance) Klines(ctx context.Context, symbol, interval string, limit int) ([]domain.Candle, error) {
	klines, err := b.client.NewKlinesService().
		Symbol(symbol).
		Interval(interval).
		Limit(limit).
		Do(ctx)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to fetch klines for %s", symbol)
	}

	result := make([]domain.Candle, 0, len(klines))
	for i, k := range klines {
		open, err := parseDecimal(k.Open, "open")
		if err != nil {
			return nil, errors.Wrapf(err, "kline %d", i)
		}
		high, err := parseDecimal(k.High, "high")
		if err != nil {
			return nil, errors.Wrapf(err, "kline %d", i)
		}
		low, err := parseDecimal(k.Low, "low")
		if err != nil {
			return nil, errors.Wrapf(err, "kline %d", i)
		}
		close, err := parseDecimal(k.Close, "close")
		if err != nil {
			return nil, errors.Wrapf(err, "kline %d", i)
		}
		volume, err := parseDecimal(k.Volume, "volume")
		if err != nil {
			return nil, errors.Wrapf(err, "kline %d", i)
		}
		result = append(result, domain.Candle{
			OpenTime:  millisToTime(k.OpenTime),
			Open:      open,
			High:      high,
			Low:       low,
			Close:     close,
			Volume:    volume,
			CloseTime: millisToTime(k.CloseTime),
		})
	}
	return result, nil
}

func (b *Binance) Price(ctx context.Context, symbol string) (decimal.Decimal, error) {
	prices, err := b.client.NewListPricesService().Symbol(symbol).Do(ctx)
	if err != nil {
		return decimal.Decimal{}, errors.Wrapf(err, "failed to fetch price for %s", symbol)
	}
	if len(prices) == 0 {
		return decimal.Decimal{}, errors.Errorf("binance returned no price for %s", symbol)
	}
	return parseDecimal(prices[0].Price, "price")
}

func positionFromRisk(r *futures.PositionRisk) (domain.Position, error) {
	amount, err := parseDecimal(r.PositionAmt, "positionAmt")
	if err != nil {
		return domain.Position{}, err
	}
	entryPrice, err := parseDecimal(r.EntryPrice, "entryPrice")
	if err != nil {
		return domain.Position{}, err
	}
	markPrice, err := parseDecimal(r.MarkPrice, "markPrice")
	if err != nil {
		return domain.Position{}, err
	}
	unrealized, err := parseDecimal(r.UnRealizedProfit, "unRealizedProfit")
	if err != nil {
		return domain.Position{}, err
	}
	liquidation, err := parseDecimal(r.LiquidationPrice, "liquidationPrice")
	if err != nil {
		return domain.Position{}, err
	}
	breakEven, err := parseDecimal(r.BreakEvenPrice, "breakEvenPrice")
	if err != nil {
		return domain.Position{}, err
	}
	leverage, err := parseDecimal(r.Leverage, "leverage")
	if err != nil {
		return domain.Position{}, err
	}

	return domain.Position{
		Symbol:           r.Symbol,
		Amount:           amount,
		EntryPrice:       entryPrice,
		MarkPrice:        markPrice,
		UnrealizedProfit: unrealized,
		LiquidationPrice: liquidation,
		BreakEvenPrice:   breakEven,
		Leverage:         leverage,
		Side:             domain.PositionSide(r.PositionSide),
		MarginType:       r.MarginType,
	}, nil
}

func parseDecimal(s, field string) (decimal.Decimal, error) {
	if s == "" {
		return decimal.Zero, nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Decimal{}, errors.Wrapf(err, "failed to parse %s %q", field, s)
	}
	return d, nil
}

func millisToTime(ms int64) time.Time {
	return time.Unix(0, ms*int64(time.Millisecond))
}
