// Package feed maintains the authoritative account snapshot and fans it
// out to every connected dashboard viewer. One feed instance exists per
// process; viewers attach through the Registry.
package feed

import (
	"context"
	"sync"
	"time"

	"github.com/zuoban/binance-dashboard-sub000/internal/domain"
	"github.com/zuoban/binance-dashboard-sub000/internal/services/exchange"
	"github.com/zuoban/binance-dashboard-sub000/pkg/retrier"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// stableAssets are counted into the wallet balance at face value; every
// other asset is converted via a best-effort USDT price lookup.
var stableAssets = map[string]bool{
	"USDT":  true,
	"USDC":  true,
	"BUSD":  true,
	"FDUSD": true,
}

// Options configures the feed's refresh behaviour.
type Options struct {
	RefreshInterval   time.Duration
	HeartbeatInterval time.Duration
	KlineInterval     string
	KlineLimit        int
	KlineTTL          time.Duration
	RecentFillsLimit  int
	MaxOrders         int
	RetryAttempts     int
	RetryBaseDelay    time.Duration
}

func (o Options) withDefaults() Options {
	if o.RefreshInterval <= 0 {
		o.RefreshInterval = 5 * time.Second
	}
	if o.HeartbeatInterval <= 0 {
		o.HeartbeatInterval = time.Minute
	}
	if o.KlineInterval == "" {
		o.KlineInterval = "15m"
	}
	if o.KlineLimit <= 0 {
		o.KlineLimit = 60
	}
	if o.RecentFillsLimit <= 0 {
		o.RecentFillsLimit = 50
	}
	if o.MaxOrders <= 0 {
		o.MaxOrders = 20
	}
	if o.RetryAttempts <= 0 {
		o.RetryAttempts = 3
	}
	if o.RetryBaseDelay <= 0 {
		o.RetryBaseDelay = time.Second
	}
	return o
}

// Callback receives every published snapshot. Callbacks run on the
// refresh goroutine and must not block; a panicking callback is isolated
// and logged, never unsubscribed automatically.
type Callback func(*domain.Snapshot)

// Feed polls the exchange on a fixed cadence and publishes immutable
// snapshots to subscribers. The refresh loop starts when the reference
// count goes 0→1 and stops when it returns to zero.
type Feed struct {
	exchange exchange.Exchange
	logger   *zap.Logger
	opts     Options
	retry    *retrier.Retrier
	daily    *DailyTracker
	klines   *KlineCache

	mu          sync.Mutex
	refs        int
	nextSubID   uint64
	subscribers map[uint64]Callback
	current     *domain.Snapshot
	cancel      context.CancelFunc
	fetchCount  int64
	lastRefresh time.Time
}

// New creates a feed. The refresh loop is not started until the first
// IncrementRef call.
func New(ex exchange.Exchange, logger *zap.Logger, opts Options) *Feed {
	opts = opts.withDefaults()

	f := &Feed{
		exchange:    ex,
		logger:      logger,
		opts:        opts,
		daily:       NewDailyTracker(),
		subscribers: make(map[uint64]Callback),
	}
	f.retry = retrier.New(
		retrier.WithBaseDelay(opts.RetryBaseDelay),
		retrier.WithAttempts(opts.RetryAttempts),
		retrier.WithOnRetry(func(attempt int, err error) {
			logger.Warn("refresh failed, retrying",
				zap.Int("attempt", attempt), zap.Error(err))
		}),
	)
	f.klines = NewKlineCache(func(ctx context.Context, symbol string) ([]domain.Candle, error) {
		return ex.Klines(ctx, symbol, opts.KlineInterval, opts.KlineLimit)
	}, opts.KlineTTL, logger)

	return f
}

// IncrementRef adds one active viewer. The first viewer starts the
// refresh loop, which performs an immediate refresh before settling into
// the periodic cadence. Every call must be paired with exactly one
// DecrementRef.
func (f *Feed) IncrementRef() {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.refs++
	if f.refs > 1 {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	f.cancel = cancel
	go f.run(ctx)
}

// DecrementRef removes one active viewer. When the count reaches zero the
// refresh loop stops and the subscriber list is cleared. The count never
// goes negative.
func (f *Feed) DecrementRef() {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.refs == 0 {
		f.logger.Warn("refcount decrement below zero, clamped")
		return
	}

	f.refs--
	if f.refs > 0 {
		return
	}

	if f.cancel != nil {
		f.cancel()
		f.cancel = nil
	}
	f.subscribers = make(map[uint64]Callback)
}

// Refs returns the current viewer count.
func (f *Feed) Refs() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.refs
}

// Subscribe registers cb for every future snapshot. When a snapshot
// already exists, cb is invoked with it synchronously before Subscribe
// returns. The returned function removes the subscription; it is safe to
// call more than once.
func (f *Feed) Subscribe(cb Callback) func() {
	f.mu.Lock()
	id := f.nextSubID
	f.nextSubID++
	f.subscribers[id] = cb
	snap := f.current
	f.mu.Unlock()

	if snap != nil {
		f.deliver(id, cb, snap)
	}

	return func() {
		f.mu.Lock()
		delete(f.subscribers, id)
		f.mu.Unlock()
	}
}

// Snapshot returns the latest snapshot, or nil before the first
// successful refresh.
func (f *Feed) Snapshot() *domain.Snapshot {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.current
}

func (f *Feed) run(ctx context.Context) {
	f.logger.Info("data feed started",
		zap.Duration("refresh_interval", f.opts.RefreshInterval))

	f.refreshAndPublish(ctx)

	// Refreshes run inline on this goroutine, so a tick arriving while a
	// refresh is still in flight is dropped rather than queued.
	refreshTicker := time.NewTicker(f.opts.RefreshInterval)
	defer refreshTicker.Stop()
	heartbeatTicker := time.NewTicker(f.opts.HeartbeatInterval)
	defer heartbeatTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			f.logger.Info("data feed stopped")
			return
		case <-refreshTicker.C:
			f.refreshAndPublish(ctx)
		case <-heartbeatTicker.C:
			f.heartbeat()
		}
	}
}

func (f *Feed) refreshAndPublish(ctx context.Context) {
	snap, err := retrier.DoWithData(f.retry, ctx, f.refreshOnce)
	if err != nil {
		if ctx.Err() != nil {
			return
		}

		f.mu.Lock()
		stale := f.current
		f.mu.Unlock()

		if stale == nil {
			f.logger.Error("refresh failed before first snapshot, viewers keep waiting", zap.Error(err))
			return
		}

		// Viewers always see a snapshot once one has ever succeeded.
		f.logger.Warn("refresh retries exhausted, republishing stale snapshot", zap.Error(err))
		f.publish(stale.WithTimestamp(time.Now()))
		return
	}

	f.mu.Lock()
	f.fetchCount++
	snap.FetchCount = f.fetchCount
	f.lastRefresh = time.Now()
	f.mu.Unlock()

	f.publish(snap)
}

func (f *Feed) refreshOnce(ctx context.Context) (*domain.Snapshot, error) {
	var (
		account    domain.AccountState
		positions  []domain.Position
		openOrders []domain.OpenOrder
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		account, err = f.exchange.Account(gctx)
		return err
	})
	g.Go(func() error {
		var err error
		positions, err = f.exchange.Positions(gctx)
		return err
	})
	g.Go(func() error {
		var err error
		openOrders, err = f.exchange.OpenOrders(gctx)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	balance := f.convertedBalance(ctx, account)

	unrealized := decimal.Zero
	for _, p := range positions {
		unrealized = unrealized.Add(p.UnrealizedProfit)
	}

	todayRealizedPnl := f.daily.Observe(balance, unrealized)

	held := positions[:0:0]
	for _, p := range positions {
		if !p.IsFlat() {
			held = append(held, p)
		}
	}

	fills, klines := f.fetchSymbolData(ctx, held)

	orders := MergeFills(fills)
	if len(orders) > f.opts.MaxOrders {
		orders = orders[:f.opts.MaxOrders]
	}

	stats := domain.OpenOrdersStats{Total: len(openOrders)}
	for _, o := range openOrders {
		switch o.Side {
		case "BUY":
			stats.Buy++
		case "SELL":
			stats.Sell++
		}
	}

	return &domain.Snapshot{
		Account: domain.AccountSummary{
			WalletBalance:    balance,
			UnrealizedProfit: unrealized,
			Equity:           balance.Sub(unrealized),
			AvailableBalance: account.AvailableBalance,
		},
		Positions:        held,
		Orders:           orders,
		OpenOrdersStats:  stats,
		OpenOrders:       openOrders,
		TodayRealizedPnl: todayRealizedPnl,
		Klines:           klines,
		Timestamp:        time.Now(),
	}, nil
}

// convertedBalance sums wallet balances across assets in USDT terms.
// A failed price lookup excludes that asset's contribution instead of
// failing the refresh.
func (f *Feed) convertedBalance(ctx context.Context, account domain.AccountState) decimal.Decimal {
	total := decimal.Zero
	for _, a := range account.Assets {
		if a.WalletBalance.IsZero() {
			continue
		}
		if stableAssets[a.Asset] {
			total = total.Add(a.WalletBalance)
			continue
		}
		price, err := f.exchange.Price(ctx, a.Asset+"USDT")
		if err != nil {
			f.logger.Warn("price lookup failed, excluding asset from balance",
				zap.String("asset", a.Asset), zap.Error(err))
			continue
		}
		total = total.Add(a.WalletBalance.Mul(price))
	}
	return total
}

// fetchSymbolData fetches recent fills and cached klines for every held
// symbol in parallel. A failing symbol degrades to empty output for that
// symbol only.
func (f *Feed) fetchSymbolData(ctx context.Context, held []domain.Position) ([]domain.Fill, map[string][]domain.Candle) {
	symbols := make([]string, 0, len(held))
	seen := make(map[string]bool, len(held))
	for _, p := range held {
		if !seen[p.Symbol] {
			seen[p.Symbol] = true
			symbols = append(symbols, p.Symbol)
		}
	}

	var (
		mu     sync.Mutex
		fills  []domain.Fill
		klines = make(map[string][]domain.Candle, len(symbols))
	)

	var wg sync.WaitGroup
	for _, symbol := range symbols {
		symbol := symbol
		wg.Add(2)
		go func() {
			defer wg.Done()
			symbolFills, err := f.exchange.RecentFills(ctx, symbol, f.opts.RecentFillsLimit)
			if err != nil {
				f.logger.Warn("fills fetch failed, skipping symbol",
					zap.String("symbol", symbol), zap.Error(err))
				return
			}
			mu.Lock()
			fills = append(fills, symbolFills...)
			mu.Unlock()
		}()
		go func() {
			defer wg.Done()
			candles := f.klines.Get(ctx, symbol)
			if len(candles) == 0 {
				return
			}
			mu.Lock()
			klines[symbol] = candles
			mu.Unlock()
		}()
	}
	wg.Wait()

	return fills, klines
}

func (f *Feed) publish(snap *domain.Snapshot) {
	f.mu.Lock()
	f.current = snap
	targets := make(map[uint64]Callback, len(f.subscribers))
	for id, cb := range f.subscribers {
		targets[id] = cb
	}
	f.mu.Unlock()

	for id, cb := range targets {
		f.deliver(id, cb, snap)
	}
}

// deliver invokes one callback, isolating panics so a broken subscriber
// cannot take down the refresh loop or starve the remaining subscribers.
func (f *Feed) deliver(id uint64, cb Callback, snap *domain.Snapshot) {
	defer func() {
		if r := recover(); r != nil {
			f.logger.Error("subscriber callback panicked",
				zap.Uint64("subscriber", id), zap.Any("panic", r))
		}
	}()
	cb(snap)
}

// heartbeat reports liveness independently of the refresh cadence. It
// publishes nothing.
func (f *Feed) heartbeat() {
	f.mu.Lock()
	last := f.lastRefresh
	count := f.fetchCount
	subs := len(f.subscribers)
	f.mu.Unlock()

	if last.IsZero() || time.Since(last) > 3*f.opts.RefreshInterval {
		f.logger.Warn("feed heartbeat: no recent successful refresh",
			zap.Time("last_refresh", last),
			zap.Int64("fetch_count", count),
			zap.Int("subscribers", subs))
		return
	}
	f.logger.Info("feed heartbeat",
		zap.Time("last_refresh", last),
		zap.Int64("fetch_count", count),
		zap.Int("subscribers", subs))
}
