package feed

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/zuoban/binance-dashboard-sub000/internal/domain"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// stubExchange implements exchange.Exchange with overridable behaviour.
type stubExchange struct {
	accountFn    func(ctx context.Context) (domain.AccountState, error)
	positionsFn  func(ctx context.Context) ([]domain.Position, error)
	openOrdersFn func(ctx context.Context) ([]domain.OpenOrder, error)
	fillsFn      func(ctx context.Context, symbol string, limit int) ([]domain.Fill, error)
	klinesFn     func(ctx context.Context, symbol, interval string, limit int) ([]domain.Candle, error)
	priceFn      func(ctx context.Context, symbol string) (decimal.Decimal, error)
}

func newStubExchange() *stubExchange {
	return &stubExchange{
		accountFn: func(context.Context) (domain.AccountState, error) {
			return domain.AccountState{
				Assets: []domain.AssetBalance{
					{Asset: "USDT", WalletBalance: decimal.NewFromInt(1000)},
				},
				AvailableBalance: decimal.NewFromInt(900),
			}, nil
		},
		positionsFn: func(context.Context) ([]domain.Position, error) {
			return []domain.Position{
				{
					Symbol:           "BTCUSDT",
					Amount:           decimal.NewFromFloat(0.5),
					UnrealizedProfit: decimal.NewFromInt(25),
					Side:             domain.PositionSideLong,
				},
				{Symbol: "ETHUSDT", Amount: decimal.Zero},
			}, nil
		},
		openOrdersFn: func(context.Context) ([]domain.OpenOrder, error) {
			return []domain.OpenOrder{
				{OrderID: "1", Symbol: "BTCUSDT", Side: "BUY"},
				{OrderID: "2", Symbol: "BTCUSDT", Side: "SELL"},
				{OrderID: "3", Symbol: "BTCUSDT", Side: "BUY"},
			}, nil
		},
		fillsFn: func(_ context.Context, symbol string, _ int) ([]domain.Fill, error) {
			return []domain.Fill{{
				TradeID:  "t1",
				OrderID:  "o1",
				Symbol:   symbol,
				Side:     "BUY",
				Price:    decimal.NewFromInt(50000),
				Quantity: decimal.NewFromFloat(0.5),
				Time:     time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
			}}, nil
		},
		klinesFn: func(_ context.Context, _, _ string, _ int) ([]domain.Candle, error) {
			return []domain.Candle{{Close: decimal.NewFromInt(50000)}}, nil
		},
		priceFn: func(_ context.Context, symbol string) (decimal.Decimal, error) {
			return decimal.NewFromInt(100), nil
		},
	}
}

func (s *stubExchange) Account(ctx context.Context) (domain.AccountState, error) {
	return s.accountFn(ctx)
}

func (s *stubExchange) Positions(ctx context.Context) ([]domain.Position, error) {
	return s.positionsFn(ctx)
}

func (s *stubExchange) OpenOrders(ctx context.Context) ([]domain.OpenOrder, error) {
	return s.openOrdersFn(ctx)
}

func (s *stubExchange) RecentFills(ctx context.Context, symbol string, limit int) ([]domain.Fill, error) {
	return s.fillsFn(ctx, symbol, limit)
}

func (s *stubExchange) Klines(ctx context.Context, symbol, interval string, limit int) ([]domain.Candle, error) {
	return s.klinesFn(ctx, symbol, interval, limit)
}

func (s *stubExchange) Price(ctx context.Context, symbol string) (decimal.Decimal, error) {
	return s.priceFn(ctx, symbol)
}

func testOptions() Options {
	return Options{
		RefreshInterval:   20 * time.Millisecond,
		HeartbeatInterval: time.Hour,
		RetryAttempts:     1,
		RetryBaseDelay:    time.Millisecond,
	}
}

func waitForSnapshot(t *testing.T, ch <-chan *domain.Snapshot) *domain.Snapshot {
	t.Helper()
	select {
	case snap := <-ch:
		return snap
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for snapshot")
		return nil
	}
}

func TestFeed_LifecycleStartsAndStops(t *testing.T) {
	f := New(newStubExchange(), zap.NewNop(), testOptions())

	snapshots := make(chan *domain.Snapshot, 16)
	f.Subscribe(func(snap *domain.Snapshot) {
		select {
		case snapshots <- snap:
		default:
		}
	})

	require.Nil(t, f.Snapshot(), "no snapshot before the loop starts")

	f.IncrementRef()
	first := waitForSnapshot(t, snapshots)
	require.NotNil(t, first)
	require.NotNil(t, f.Snapshot())

	f.DecrementRef()
	require.Equal(t, 0, f.Refs())

	// drain anything already in flight, then confirm silence
	time.Sleep(50 * time.Millisecond)
	for len(snapshots) > 0 {
		<-snapshots
	}
	select {
	case <-snapshots:
		t.Fatal("received snapshot after the last viewer left")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestFeed_RefcountClampsAtZero(t *testing.T) {
	f := New(newStubExchange(), zap.NewNop(), testOptions())
	f.DecrementRef()
	require.Equal(t, 0, f.Refs())
}

func TestFeed_SnapshotContents(t *testing.T) {
	f := New(newStubExchange(), zap.NewNop(), testOptions())

	snapshots := make(chan *domain.Snapshot, 1)
	f.Subscribe(func(snap *domain.Snapshot) {
		select {
		case snapshots <- snap:
		default:
		}
	})

	f.IncrementRef()
	defer f.DecrementRef()
	snap := waitForSnapshot(t, snapshots)

	require.True(t, snap.Account.WalletBalance.Equal(decimal.NewFromInt(1000)))
	require.True(t, snap.Account.UnrealizedProfit.Equal(decimal.NewFromInt(25)))
	// equity = balance - unrealized
	require.True(t, snap.Account.Equity.Equal(decimal.NewFromInt(975)))

	require.Len(t, snap.Positions, 1, "flat positions are filtered out")
	require.Equal(t, "BTCUSDT", snap.Positions[0].Symbol)

	require.Equal(t, 3, snap.OpenOrdersStats.Total)
	require.Equal(t, 2, snap.OpenOrdersStats.Buy)
	require.Equal(t, 1, snap.OpenOrdersStats.Sell)

	require.Len(t, snap.Orders, 1)
	require.Equal(t, "o1", snap.Orders[0].OrderID)
	require.Contains(t, snap.Klines, "BTCUSDT")
	require.True(t, snap.TodayRealizedPnl.IsZero(), "first observation of the day is zero")
	require.Positive(t, snap.FetchCount)
}

func TestFeed_ConvertsNonStableAssets(t *testing.T) {
	ex := newStubExchange()
	ex.accountFn = func(context.Context) (domain.AccountState, error) {
		return domain.AccountState{
			Assets: []domain.AssetBalance{
				{Asset: "USDT", WalletBalance: decimal.NewFromInt(1000)},
				{Asset: "BNB", WalletBalance: decimal.NewFromInt(2)},
				{Asset: "DOGE", WalletBalance: decimal.NewFromInt(500)},
			},
		}, nil
	}
	ex.priceFn = func(_ context.Context, symbol string) (decimal.Decimal, error) {
		if symbol == "BNBUSDT" {
			return decimal.NewFromInt(300), nil
		}
		// DOGE lookup fails; its contribution is excluded, not fatal
		return decimal.Decimal{}, errors.New("no such symbol")
	}

	f := New(ex, zap.NewNop(), testOptions())
	snapshots := make(chan *domain.Snapshot, 1)
	f.Subscribe(func(snap *domain.Snapshot) {
		select {
		case snapshots <- snap:
		default:
		}
	})

	f.IncrementRef()
	defer f.DecrementRef()
	snap := waitForSnapshot(t, snapshots)

	// 1000 USDT + 2 BNB * 300
	require.True(t, snap.Account.WalletBalance.Equal(decimal.NewFromInt(1600)),
		"expected 1600, got %s", snap.Account.WalletBalance)
}

func TestFeed_AllSubscribersSeeSameSnapshot(t *testing.T) {
	f := New(newStubExchange(), zap.NewNop(), testOptions())

	channels := make([]chan *domain.Snapshot, 3)
	for i := range channels {
		ch := make(chan *domain.Snapshot, 1)
		channels[i] = ch
		f.Subscribe(func(snap *domain.Snapshot) {
			select {
			case ch <- snap:
			default:
			}
		})
	}

	f.IncrementRef()
	defer f.DecrementRef()

	first := waitForSnapshot(t, channels[0])
	for _, ch := range channels[1:] {
		require.Same(t, first, waitForSnapshot(t, ch))
	}
}

func TestFeed_SubscribeReplaysCurrentSnapshot(t *testing.T) {
	f := New(newStubExchange(), zap.NewNop(), testOptions())

	snapshots := make(chan *domain.Snapshot, 1)
	f.Subscribe(func(snap *domain.Snapshot) {
		select {
		case snapshots <- snap:
		default:
		}
	})
	f.IncrementRef()
	defer f.DecrementRef()
	waitForSnapshot(t, snapshots)

	var mu sync.Mutex
	var replayed *domain.Snapshot
	unsubscribe := f.Subscribe(func(snap *domain.Snapshot) {
		mu.Lock()
		if replayed == nil {
			replayed = snap
		}
		mu.Unlock()
	})
	defer unsubscribe()

	mu.Lock()
	got := replayed
	mu.Unlock()
	require.NotNil(t, got, "late subscriber must receive the current snapshot synchronously")
}

func TestFeed_StaleSnapshotOnRefreshFailure(t *testing.T) {
	var fail atomic.Bool
	ex := newStubExchange()
	base := ex.accountFn
	ex.accountFn = func(ctx context.Context) (domain.AccountState, error) {
		if fail.Load() {
			return domain.AccountState{}, errors.New("exchange down")
		}
		return base(ctx)
	}

	f := New(ex, zap.NewNop(), testOptions())
	snapshots := make(chan *domain.Snapshot, 16)
	f.Subscribe(func(snap *domain.Snapshot) {
		snapshots <- snap
	})

	f.IncrementRef()
	defer f.DecrementRef()

	first := waitForSnapshot(t, snapshots)
	fail.Store(true)

	stale := waitForSnapshot(t, snapshots)
	for stale.FetchCount > first.FetchCount {
		// later successful refreshes may already be buffered; skip to
		// the first republished one
		first = stale
		stale = waitForSnapshot(t, snapshots)
	}

	require.True(t, stale.Account.WalletBalance.Equal(first.Account.WalletBalance),
		"stale data must be served unchanged")
	require.Equal(t, first.FetchCount, stale.FetchCount, "stale republish is not a new fetch")
	require.False(t, stale.Timestamp.Before(first.Timestamp), "stale republish refreshes the timestamp")
}

func TestFeed_NoPublishBeforeFirstSuccess(t *testing.T) {
	ex := newStubExchange()
	ex.accountFn = func(context.Context) (domain.AccountState, error) {
		return domain.AccountState{}, errors.New("exchange down")
	}

	f := New(ex, zap.NewNop(), testOptions())
	snapshots := make(chan *domain.Snapshot, 1)
	f.Subscribe(func(snap *domain.Snapshot) {
		select {
		case snapshots <- snap:
		default:
		}
	})

	f.IncrementRef()
	defer f.DecrementRef()

	select {
	case <-snapshots:
		t.Fatal("nothing must be published before the first successful refresh")
	case <-time.After(150 * time.Millisecond):
	}
	require.Nil(t, f.Snapshot())
}

func TestFeed_PanickingSubscriberIsIsolated(t *testing.T) {
	f := New(newStubExchange(), zap.NewNop(), testOptions())

	f.Subscribe(func(*domain.Snapshot) {
		panic("broken subscriber")
	})
	snapshots := make(chan *domain.Snapshot, 16)
	f.Subscribe(func(snap *domain.Snapshot) {
		select {
		case snapshots <- snap:
		default:
		}
	})

	f.IncrementRef()
	defer f.DecrementRef()

	waitForSnapshot(t, snapshots)
	waitForSnapshot(t, snapshots)
}

func TestFeed_PerSymbolFailureIsIsolated(t *testing.T) {
	ex := newStubExchange()
	ex.positionsFn = func(context.Context) ([]domain.Position, error) {
		return []domain.Position{
			{Symbol: "BTCUSDT", Amount: decimal.NewFromInt(1)},
			{Symbol: "ETHUSDT", Amount: decimal.NewFromInt(1)},
		}, nil
	}
	ex.fillsFn = func(_ context.Context, symbol string, _ int) ([]domain.Fill, error) {
		if symbol == "ETHUSDT" {
			return nil, errors.New("rate limited")
		}
		return []domain.Fill{{TradeID: "t1", OrderID: "o1", Symbol: symbol,
			Price: decimal.NewFromInt(1), Quantity: decimal.NewFromInt(1)}}, nil
	}
	ex.klinesFn = func(_ context.Context, symbol, _ string, _ int) ([]domain.Candle, error) {
		if symbol == "ETHUSDT" {
			return nil, errors.New("rate limited")
		}
		return []domain.Candle{{Close: decimal.NewFromInt(1)}}, nil
	}

	f := New(ex, zap.NewNop(), testOptions())
	snapshots := make(chan *domain.Snapshot, 1)
	f.Subscribe(func(snap *domain.Snapshot) {
		select {
		case snapshots <- snap:
		default:
		}
	})

	f.IncrementRef()
	defer f.DecrementRef()
	snap := waitForSnapshot(t, snapshots)

	require.Len(t, snap.Positions, 2, "both positions survive a failing symbol lookup")
	require.Len(t, snap.Orders, 1, "the healthy symbol's fills are still merged")
	require.Contains(t, snap.Klines, "BTCUSDT")
	require.NotContains(t, snap.Klines, "ETHUSDT")
}

func TestEndToEnd_RegistryDrivesFeedLifecycle(t *testing.T) {
	f := New(newStubExchange(), zap.NewNop(), testOptions())
	registry := NewRegistry(f, 10, zap.NewNop())

	sinksGot := make([]chan *domain.Snapshot, 3)
	unregister := make([]func(), 3)
	for i := range sinksGot {
		ch := make(chan *domain.Snapshot, 16)
		sinksGot[i] = ch
		var err error
		unregister[i], err = registry.Register(string(rune('a'+i)), func(snap *domain.Snapshot) error {
			select {
			case ch <- snap:
			default:
			}
			return nil
		})
		require.NoError(t, err)
	}

	require.Equal(t, 3, f.Refs(), "one refcount per registration")

	first := waitForSnapshot(t, sinksGot[0])
	require.NotNil(t, first)
	waitForSnapshot(t, sinksGot[1])
	waitForSnapshot(t, sinksGot[2])

	unregister[0]()
	unregister[1]()
	require.Equal(t, 1, f.Refs(), "loop keeps running while a viewer remains")
	waitForSnapshot(t, sinksGot[2])

	unregister[2]()
	require.Equal(t, 0, f.Refs())
	require.Equal(t, 0, registry.Count())
}
