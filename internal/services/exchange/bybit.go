package exchange

import (
	"context"

	"github.com/zuoban/binance-dashboard-sub000/internal/domain"

	bybit "github.com/hirokisan/bybit/v2"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// bybitIntervals maps Binance-style interval names to Bybit V5 intervals.
var bybitIntervals = map[string]bybit.Interval{
	"1m":  bybit.Interval1,
	"3m":  bybit.Interval3,
	"5m":  bybit.Interval5,
	"15m": bybit.Interval15,
	"30m": bybit.Interval30,
	"1h":  bybit.Interval60,
	"2h":  bybit.Interval120,
	"4h":  bybit.Interval240,
	"1d":  bybit.IntervalD,
}

// Bybit adapts the Bybit V5 unified account API. Only the surfaces the
// dashboard strictly needs for balances and charts are implemented;
// position, open-order and execution listings are not yet supported and
// report empty results so the feed degrades instead of failing.
type Bybit struct {
	client *bybit.Client
	logger *zap.Logger
}

// NewBybit creates a Bybit adapter.
func NewBybit(client *bybit.Client, logger *zap.Logger) *Bybit {
	return &Bybit{client: client, logger: logger}
}

func (b *Bybit) Account(ctx context.Context) (domain.AccountState, error) {
	res, err := b.client.V5().Account().GetWalletBalance(bybit.AccountTypeV5("UNIFIED"), nil)
	if err != nil {
		return domain.AccountState{}, errors.Wrap(err, "failed to fetch bybit wallet balance")
	}
	if len(res.Result.List) == 0 {
		return domain.AccountState{}, errors.New("bybit returned no wallet entries")
	}

	wallet := res.Result.List[0]
	state := domain.AccountState{Assets: make([]domain.AssetBalance, 0, len(wallet.Coin))}

	if wallet.TotalAvailableBalance != "" {
		available, err := decimal.NewFromString(wallet.TotalAvailableBalance)
		if err != nil {
			return domain.AccountState{}, errors.Wrapf(err, "failed to parse totalAvailableBalance %q", wallet.TotalAvailableBalance)
		}
		state.AvailableBalance = available
	}

	for _, coin := range wallet.Coin {
		balance, err := decimal.NewFromString(coin.WalletBalance)
		if err != nil {
			return domain.AccountState{}, errors.Wrapf(err, "failed to parse wallet balance for %s", coin.Coin)
		}
		unrealized := decimal.Zero
		if coin.UnrealisedPnl != "" {
			unrealized, err = decimal.NewFromString(coin.UnrealisedPnl)
			if err != nil {
				return domain.AccountState{}, errors.Wrapf(err, "failed to parse unrealised pnl for %s", coin.Coin)
			}
		}
		state.Assets = append(state.Assets, domain.AssetBalance{
			Asset:            string(coin.Coin),
			WalletBalance:    balance,
			UnrealizedProfit: unrealized,
		})
	}

	return state, nil
}

func (b *Bybit) Positions(ctx context.Context) ([]domain.Position, error) {
	b.logger.Warn("position listing is not supported on bybit yet, showing none")
	return nil, nil
}

func (b *Bybit) OpenOrders(ctx context.Context) ([]domain.OpenOrder, error) {
	b.logger.Warn("open order listing is not supported on bybit yet, showing none")
	return nil, nil
}

func (b *Bybit) RecentFills(ctx context.Context, symbol string, limit int) ([]domain.Fill, error) {
	b.logger.Warn("execution listing is not supported on bybit yet, showing none",
		zap.String("symbol", symbol))
	return nil, nil
}

func (b *Bybit) Klines(ctx context.Context, symbol, interval string, limit int) ([]domain.Candle, error) {
	bybitInterval, ok := bybitIntervals[interval]
	if !ok {
		return nil, errors.Errorf("unsupported kline interval %q for bybit", interval)
	}

	res, err := b.client.V5().Market().GetKline(bybit.V5GetKlineParam{
		Category: bybit.CategoryV5Linear,
		Symbol:   bybit.SymbolV5(symbol),
		Interval: bybitInterval,
		Limit:    &limit,
	})
	if err != nil {
		return nil, errors.Wrapf(err, "failed to fetch bybit klines for %s", symbol)
	}

	// Bybit returns newest-first; the dashboard charts oldest-first.
	list := res.Result.List
	result := make([]domain.Candle, 0, len(list))
	for i := len(list) - 1; i >= 0; i-- {
		candle, err := candleFromBybit(list[i])
		if err != nil {
			return nil, errors.Wrapf(err, "kline %d for %s", i, symbol)
		}
		result = append(result, candle)
	}
	return result, nil
}

func (b *Bybit) Price(ctx context.Context, symbol string) (decimal.Decimal, error) {
	s := bybit.SymbolV5(symbol)
	res, err := b.client.V5().Market().GetTickers(bybit.V5GetTickersParam{
		Category: bybit.CategoryV5Linear,
		Symbol:   &s,
	})
	if err != nil {
		return decimal.Decimal{}, errors.Wrapf(err, "failed to fetch bybit ticker for %s", symbol)
	}
	if res.Result.LinearInverse == nil || len(res.Result.LinearInverse.List) == 0 {
		return decimal.Decimal{}, errors.Errorf("bybit returned no ticker for %s", symbol)
	}
	return decimal.NewFromString(res.Result.LinearInverse.List[0].LastPrice)
}

func candleFromBybit(k bybit.V5GetKlineItem) (domain.Candle, error) {
	start, err := decimal.NewFromString(k.StartTime)
	if err != nil {
		return domain.Candle{}, errors.Wrapf(err, "failed to parse start time %q", k.StartTime)
	}
	open, err := decimal.NewFromString(k.Open)
	if err != nil {
		return domain.Candle{}, errors.Wrapf(err, "failed to parse open price %q", k.Open)
	}
	high, err := decimal.NewFromString(k.High)
	if err != nil {
		return domain.Candle{}, errors.Wrapf(err, "failed to parse high price %q", k.High)
	}
	low, err := decimal.NewFromString(k.Low)
	if err != nil {
		return domain.Candle{}, errors.Wrapf(err, "failed to parse low price %q", k.Low)
	}
	close, err := decimal.NewFromString(k.Close)
	if err != nil {
		return domain.Candle{}, errors.Wrapf(err, "failed to parse close price %q", k.Close)
	}
	volume, err := decimal.NewFromString(k.Volume)
	if err != nil {
		return domain.Candle{}, errors.Wrapf(err, "failed to parse volume %q", k.Volume)
	}

	return domain.Candle{
		OpenTime: millisToTime(start.IntPart()),
		Open:     open,
		High:     high,
		Low:      low,
		Close:    close,
		Volume:   volume,
	}, nil
}
