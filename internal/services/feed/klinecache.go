package feed

import (
	"context"
	"sync"
	"time"

	"github.com/zuoban/binance-dashboard-sub000/internal/domain"

	"go.uber.org/zap"
)

// KlineFetcher fetches a candle series for one symbol.
type KlineFetcher func(ctx context.Context, symbol string) ([]domain.Candle, error)

type cachedKlines struct {
	candles  []domain.Candle
	cachedAt time.Time
}

// KlineCache caches per-symbol candle series with a time-to-live.
// A ttl of zero disables caching entirely (every Get refetches).
// When a refetch fails, the previous series is served even if expired;
// an empty series is returned only when nothing was ever cached.
type KlineCache struct {
	fetch  KlineFetcher
	ttl    time.Duration
	logger *zap.Logger
	now    func() time.Time

	mu      sync.Mutex
	entries map[string]cachedKlines
}

// NewKlineCache creates a cache around fetch.
func NewKlineCache(fetch KlineFetcher, ttl time.Duration, logger *zap.Logger) *KlineCache {
	return &KlineCache{
		fetch:   fetch,
		ttl:     ttl,
		logger:  logger,
		now:     time.Now,
		entries: make(map[string]cachedKlines),
	}
}

// Get returns the candle series for symbol, refetching when the cached
// entry is missing or stale.
func (c *KlineCache) Get(ctx context.Context, symbol string) []domain.Candle {
	c.mu.Lock()
	entry, ok := c.entries[symbol]
	c.mu.Unlock()

	if ok && c.ttl > 0 && c.now().Sub(entry.cachedAt) < c.ttl {
		return entry.candles
	}

	candles, err := c.fetch(ctx, symbol)
	if err != nil {
		c.logger.Warn("kline fetch failed, serving cached series",
			zap.String("symbol", symbol), zap.Error(err))
		if ok {
			return entry.candles
		}
		return nil
	}

	c.mu.Lock()
	c.entries[symbol] = cachedKlines{candles: candles, cachedAt: c.now()}
	c.mu.Unlock()

	return candles
}
