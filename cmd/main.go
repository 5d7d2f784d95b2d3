// Command dashboard serves a read-only live view of a futures trading
// account: positions, open orders, merged recent fills and realized /
// unrealized PnL, streamed to browsers over SSE.
//
// Usage:
//
//	dashboard --config config.yaml
//	dashboard (uses CLI flags)
//
// Required environment variables:
//
//	For Binance: BINANCE_API_KEY, BINANCE_API_SECRET
//	For Bybit: BYBIT_API_KEY, BYBIT_API_SECRET
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/zuoban/binance-dashboard-sub000/config"
	"github.com/zuoban/binance-dashboard-sub000/internal/clients"
	"github.com/zuoban/binance-dashboard-sub000/internal/services/exchange"
	"github.com/zuoban/binance-dashboard-sub000/internal/services/feed"
	"github.com/zuoban/binance-dashboard-sub000/internal/web"

	"go.uber.org/zap"
)

func main() {
	conf, err := config.Get()
	if err != nil {
		log.Fatal(err)
	}

	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatal(err)
	}
	defer logger.Sync()

	var ex exchange.Exchange
	switch conf.Platform {
	case "binance":
		apiKey := os.Getenv("BINANCE_API_KEY")
		apiSecret := os.Getenv("BINANCE_API_SECRET")
		if apiKey == "" || apiSecret == "" {
			log.Fatal("BINANCE_API_KEY and BINANCE_API_SECRET environment variables must be set")
		}
		ex = exchange.NewBinance(clients.NewBinanceFuturesClient(apiKey, apiSecret))
	case "bybit":
		apiKey := os.Getenv("BYBIT_API_KEY")
		apiSecret := os.Getenv("BYBIT_API_SECRET")
		if apiKey == "" || apiSecret == "" {
			log.Fatal("BYBIT_API_KEY and BYBIT_API_SECRET environment variables must be set")
		}
		ex = exchange.NewBybit(clients.NewBybitClient(apiKey, apiSecret), logger)
	default:
		log.Fatalf("unsupported platform %q", conf.Platform)
	}

	dataFeed := feed.New(ex, logger, feed.Options{
		RefreshInterval:   conf.RefreshInterval,
		HeartbeatInterval: conf.HeartbeatInterval,
		KlineInterval:     conf.KlineInterval,
		KlineLimit:        conf.KlineLimit,
		KlineTTL:          conf.KlineTTL,
		RecentFillsLimit:  conf.RecentFillsLimit,
		MaxOrders:         conf.MaxOrders,
		RetryAttempts:     conf.RetryAttempts,
		RetryBaseDelay:    conf.RetryBaseDelay,
	})
	registry := feed.NewRegistry(dataFeed, conf.MaxConnections, logger)
	server := web.NewServer(conf.Listen, registry, logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := server.Start(ctx); err != nil {
		logger.Fatal("dashboard server failed", zap.Error(err))
	}
}
