// Package web serves the dashboard page and the SSE snapshot stream.
package web

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/zuoban/binance-dashboard-sub000/internal/domain"
	"github.com/zuoban/binance-dashboard-sub000/internal/services/feed"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

const sseHeartbeatInterval = 30 * time.Second

// Server exposes the HTML UI and an SSE stream backed by the registry.
type Server struct {
	addr     string
	registry *feed.Registry
	logger   *zap.Logger
}

// NewServer creates a web server.
func NewServer(addr string, registry *feed.Registry, logger *zap.Logger) *Server {
	return &Server{addr: addr, registry: registry, logger: logger}
}

// Start runs the HTTP server (blocking) and shuts it down when ctx is
// cancelled.
func (s *Server) Start(ctx context.Context) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleIndex)
	mux.HandleFunc("/stream", s.handleStream)

	server := &http.Server{
		Addr:              s.addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	s.logger.Info("dashboard listening", zap.String("addr", s.addr))
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	fmt.Fprint(w, indexHTML)
}

func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	connID := uuid.NewString()

	// One-slot bridge between the feed goroutine and this writer:
	// a viewer that falls behind sees the newest snapshot, not a backlog.
	snapshots := make(chan *domain.Snapshot, 1)
	sink := func(snap *domain.Snapshot) error {
		for {
			select {
			case snapshots <- snap:
				return nil
			default:
				select {
				case <-snapshots:
				default:
				}
			}
		}
	}

	unregister, err := s.registry.Register(connID, sink)
	if err != nil {
		if errors.Is(err, feed.ErrCapacity) {
			http.Error(w, "dashboard is full, try again later", http.StatusServiceUnavailable)
			return
		}
		s.logger.Error("stream registration failed", zap.String("connection", connID), zap.Error(err))
		http.Error(w, "failed to subscribe", http.StatusInternalServerError)
		return
	}
	defer unregister()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	// comment heartbeat so proxies keep the connection open
	heartbeat := time.NewTicker(sseHeartbeatInterval)
	defer heartbeat.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-heartbeat.C:
			fmt.Fprintf(w, ": ping\n\n")
			flusher.Flush()
		case snap := <-snapshots:
			payload, err := json.Marshal(snap)
			if err != nil {
				s.logger.Error("snapshot marshal failed", zap.Error(err))
				continue
			}
			if _, err := fmt.Fprintf(w, "event: snapshot\ndata: %s\n\n", payload); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

const indexHTML = `<!DOCTYPE html>
<html lang="en">
<head>
  <meta charset="utf-8" />
  <title>Account Dashboard</title>
  <script src="https://cdn.jsdelivr.net/npm/chart.js"></script>
  <style>
    :root { --bg:#ffffff; --ink:#111111; --ink-mid:#4d4d4d; --panel:#f6f6f6; }
    * { box-sizing:border-box; }
    body {
      margin:0; padding:2rem; background:var(--bg); color:var(--ink);
      font-family:'Space Mono','JetBrains Mono',monospace;
    }
    #app {
      max-width:1200px; margin:0 auto; background:var(--panel);
      border:3px solid var(--ink); padding:1.5rem;
      box-shadow:12px 12px 0 rgba(0,0,0,.15);
    }
    header { display:flex; justify-content:space-between; align-items:center; margin-bottom:1.5rem; }
    h1 { font-size:.9rem; text-transform:uppercase; letter-spacing:.2em; margin:0; }
    .status {
      font-size:.65rem; text-transform:uppercase; letter-spacing:.1em;
      border:2px solid var(--ink); padding:.4rem .9rem; background:#fff;
    }
    .cards { display:grid; grid-template-columns:repeat(auto-fit, minmax(180px, 1fr)); gap:1rem; margin-bottom:1.5rem; }
    .card { border:2px solid var(--ink); background:#fff; padding:1rem; }
    .card .label { font-size:.6rem; text-transform:uppercase; letter-spacing:.15em; color:var(--ink-mid); }
    .card .value { margin-top:.5rem; font-size:1.3rem; font-weight:700; }
    .card .value.pos { color:#1b9aaa; }
    .card .value.neg { color:#d7263d; }
    h2 { font-size:.7rem; text-transform:uppercase; letter-spacing:.15em; margin:1.5rem 0 .5rem; }
    table { width:100%; border-collapse:collapse; background:#fff; border:2px solid var(--ink); font-size:.7rem; }
    th, td { padding:.5rem .7rem; text-align:right; border-bottom:1px solid rgba(0,0,0,.1); }
    th { text-transform:uppercase; letter-spacing:.1em; font-size:.6rem; color:var(--ink-mid); }
    th:first-child, td:first-child { text-align:left; }
    .empty { padding:1rem; text-align:center; color:var(--ink-mid); font-size:.7rem; }
  </style>
</head>
<body>
  <div id="app">
    <header>
      <h1>Account Dashboard</h1>
      <div id="status" class="status">Connecting&hellip;</div>
    </header>
    <section class="cards">
      <div class="card"><div class="label">Equity</div><div id="equity" class="value">&mdash;</div></div>
      <div class="card"><div class="label">Wallet balance</div><div id="balance" class="value">&mdash;</div></div>
      <div class="card"><div class="label">Unrealized PnL</div><div id="upnl" class="value">&mdash;</div></div>
      <div class="card"><div class="label">Realized PnL today</div><div id="rpnl" class="value">&mdash;</div></div>
      <div class="card"><div class="label">Open orders</div><div id="openOrders" class="value">&mdash;</div></div>
    </section>
    <h2 id="chartTitle">Price</h2>
    <canvas id="chart" height="120" style="background:#fff;border:2px solid var(--ink)"></canvas>
    <h2>Positions</h2>
    <table>
      <thead><tr><th>Symbol</th><th>Side</th><th>Amount</th><th>Entry</th><th>Mark</th><th>Liq.</th><th>uPnL</th><th>Lev.</th></tr></thead>
      <tbody id="positions"><tr><td colspan="8" class="empty">Waiting for data&hellip;</td></tr></tbody>
    </table>
    <h2>Recent orders</h2>
    <table>
      <thead><tr><th>Symbol</th><th>Side</th><th>Avg price</th><th>Qty</th><th>Realized PnL</th><th>Fee</th><th>Updated</th></tr></thead>
      <tbody id="orders"><tr><td colspan="7" class="empty">Waiting for data&hellip;</td></tr></tbody>
    </table>
  </div>
<script>
const statusEl = document.getElementById('status');
const num = (v) => { const n = parseFloat(v); return Number.isFinite(n) ? n : 0; };
const fmt = (v, digits) => num(v).toFixed(digits === undefined ? 2 : digits);
const setSigned = (el, v) => {
  const n = num(v);
  el.textContent = (n > 0 ? '+' : '') + n.toFixed(2);
  el.classList.toggle('pos', n > 0);
  el.classList.toggle('neg', n < 0);
};
const cell = (text, alignLeft) => '<td' + (alignLeft ? ' style="text-align:left"' : '') + '>' + text + '</td>';

Chart.defaults.font.family = "'Space Mono','JetBrains Mono',monospace";
Chart.defaults.color = '#111111';
const chart = new Chart(document.getElementById('chart').getContext('2d'), {
  type: 'line',
  data: { labels: [], datasets: [{ label:'close', data: [], borderColor:'#111111',
    backgroundColor:'rgba(17,17,17,0.08)', borderWidth:2, pointRadius:0, tension:0.15, fill:true }] },
  options: {
    animation: false,
    plugins: { legend: { display:false } },
    scales: {
      x: { ticks:{ maxRotation:0, autoSkip:true }, grid:{ color:'rgba(0,0,0,0.08)' } },
      y: { grid:{ color:'rgba(0,0,0,0.08)' } }
    }
  }
});

function renderChart(snap){
  const symbols = snap.klines ? Object.keys(snap.klines).sort() : [];
  if(symbols.length === 0){ return; }
  const symbol = symbols[0];
  const candles = snap.klines[symbol];
  document.getElementById('chartTitle').textContent = symbol;
  chart.data.labels = candles.map((c) =>
    new Date(c.openTime).toLocaleTimeString([], { hour12:false, hour:'2-digit', minute:'2-digit' }));
  chart.data.datasets[0].data = candles.map((c) => num(c.close));
  chart.update('none');
}

function render(snap){
  document.getElementById('equity').textContent = fmt(snap.account.equity);
  document.getElementById('balance').textContent = fmt(snap.account.walletBalance);
  setSigned(document.getElementById('upnl'), snap.account.unrealizedProfit);
  setSigned(document.getElementById('rpnl'), snap.todayRealizedPnl);
  document.getElementById('openOrders').textContent =
    snap.openOrdersStats.total + ' (' + snap.openOrdersStats.buy + 'B/' + snap.openOrdersStats.sell + 'S)';

  const positions = document.getElementById('positions');
  if(!snap.positions || snap.positions.length === 0){
    positions.innerHTML = '<tr><td colspan="8" class="empty">No open positions</td></tr>';
  } else {
    positions.innerHTML = snap.positions.map((p) =>
      '<tr>' + cell(p.symbol, true) + cell(p.side) + cell(p.amount) + cell(fmt(p.entryPrice, 4)) +
      cell(fmt(p.markPrice, 4)) + cell(fmt(p.liquidationPrice, 4)) + cell(fmt(p.unrealizedProfit)) +
      cell(p.leverage + 'x') + '</tr>').join('');
  }

  const orders = document.getElementById('orders');
  if(!snap.orders || snap.orders.length === 0){
    orders.innerHTML = '<tr><td colspan="7" class="empty">No recent orders</td></tr>';
  } else {
    orders.innerHTML = snap.orders.map((o) =>
      '<tr>' + cell(o.symbol, true) + cell(o.side) + cell(fmt(o.avgPrice, 4)) + cell(o.quantity) +
      cell(fmt(o.realizedPnl)) + cell(fmt(o.commission, 4) + ' ' + (o.commissionAsset || '')) +
      cell(new Date(o.updatedAt).toLocaleTimeString([], { hour12:false })) + '</tr>').join('');
  }

  renderChart(snap);
  statusEl.textContent = 'Updated ' + new Date(snap.ts).toLocaleTimeString([], { hour12:false });
}

function connect(){
  const source = new EventSource('/stream');
  source.addEventListener('snapshot', (event) => {
    try{
      render(JSON.parse(event.data));
    }catch(err){
      console.error('snapshot parse', err);
    }
  });
  source.addEventListener('error', () => {
    statusEl.textContent = 'Reconnecting…';
    source.close();
    setTimeout(connect, 2000);
  });
}

connect();
</script>
</body>
</html>`
