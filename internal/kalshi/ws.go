package kalshi

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/transdsign-boop/kalshibot/internal/domain"
	"github.com/transdsign-boop/kalshibot/internal/feed"
)

const (
	wsPath      = "/trade-api/ws/v2"
	maxFillsLog = 50
)

// MarketFeed is the authenticated websocket connection to the venue. It
// keeps the live orderbook and ticker state for subscribed markets and a
// short log of recent fills.
type MarketFeed struct {
	wsHost string
	signer *Signer
	logger *zap.Logger

	connected atomic.Bool

	mu      sync.RWMutex
	conn    *websocket.Conn
	msgID   int
	books   map[string]*domain.Orderbook
	tickers map[string]tickerState
	fills   []FillEvent
	subs    map[string]struct{}
}

type tickerState struct {
	Price     int64
	YesBid    int64
	YesAsk    int64
	UpdatedAt time.Time
}

// FillEvent is an execution report pushed over the websocket.
type FillEvent struct {
	Ticker string
	Side   string
	Action string
	Count  int64
	Price  int64
	At     time.Time
}

// NewMarketFeed builds a feed for the given websocket host
// (e.g. wss://api.elections.kalshi.com).
func NewMarketFeed(wsHost string, signer *Signer, logger *zap.Logger) *MarketFeed {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MarketFeed{
		wsHost:  wsHost,
		signer:  signer,
		logger:  logger,
		books:   make(map[string]*domain.Orderbook),
		tickers: make(map[string]tickerState),
		subs:    make(map[string]struct{}),
	}
}

// Connected reports whether the websocket is currently up.
func (f *MarketFeed) Connected() bool {
	return f.connected.Load()
}

// LiveOrderbook returns a copy of the live book for the ticker, or nil when
// no snapshot has arrived yet.
func (f *MarketFeed) LiveOrderbook(ticker string) *domain.Orderbook {
	f.mu.RLock()
	defer f.mu.RUnlock()
	book, ok := f.books[ticker]
	if !ok {
		return nil
	}
	return book.Clone()
}

// LiveTicker returns the last ticker print for the market.
func (f *MarketFeed) LiveTicker(ticker string) (price, yesBid, yesAsk int64, ok bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	ts, ok := f.tickers[ticker]
	if !ok {
		return 0, 0, 0, false
	}
	return ts.Price, ts.YesBid, ts.YesAsk, true
}

// RecentFills returns the fills received since connect, newest last.
func (f *MarketFeed) RecentFills() []FillEvent {
	f.mu.RLock()
	defer f.mu.RUnlock()
	out := make([]FillEvent, len(f.fills))
	copy(out, f.fills)
	return out
}

// SubscribeOrderbook requests snapshot+delta updates for a market. Safe to
// call repeatedly with the same ticker; resubscribed on reconnect.
func (f *MarketFeed) SubscribeOrderbook(ticker string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.subs[ticker]; ok {
		return
	}
	f.subs[ticker] = struct{}{}
	if f.conn != nil {
		if err := f.sendSubscribeLocked([]string{"orderbook_delta"}, []string{ticker}); err != nil {
			f.logger.Warn("orderbook subscribe failed", zap.String("ticker", ticker), zap.Error(err))
		}
	}
}

// Run maintains the connection until ctx is cancelled, reconnecting with
// the same capped exponential backoff the price feeds use.
func (f *MarketFeed) Run(ctx context.Context) {
	delay := feed.ReconnectBaseDelay
	for {
		err := f.runOnce(ctx)
		f.connected.Store(false)
		if ctx.Err() != nil {
			return
		}
		f.logger.Warn("venue websocket dropped",
			zap.Duration("reconnect_in", delay),
			zap.Error(err))
		select {
		case <-ctx.Done():
			return
		case <-time.After(feed.Jittered(delay, feed.ReconnectJitter)):
		}
		delay = feed.NextDelay(delay)
	}
}

func (f *MarketFeed) runOnce(ctx context.Context) error {
	headers, err := f.signer.Headers(http.MethodGet, wsPath)
	if err != nil {
		return err
	}
	h := http.Header{}
	for k, v := range headers {
		h.Set(k, v)
	}

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, f.wsHost+wsPath, h)
	if err != nil {
		return errors.Wrap(err, "dial venue websocket")
	}
	defer conn.Close()

	f.mu.Lock()
	f.conn = conn
	f.msgID = 0
	f.books = make(map[string]*domain.Orderbook)
	tickers := make([]string, 0, len(f.subs))
	for t := range f.subs {
		tickers = append(tickers, t)
	}
	err = f.sendSubscribeLocked([]string{"ticker", "fill"}, nil)
	if err == nil && len(tickers) > 0 {
		err = f.sendSubscribeLocked([]string{"orderbook_delta"}, tickers)
	}
	f.mu.Unlock()
	if err != nil {
		return errors.Wrap(err, "subscribe")
	}

	f.connected.Store(true)
	f.logger.Info("venue websocket connected", zap.Strings("orderbooks", tickers))

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			f.mu.Lock()
			f.conn = nil
			f.mu.Unlock()
			return errors.Wrap(err, "read venue websocket")
		}
		f.handleMessage(raw)
	}
}

func (f *MarketFeed) sendSubscribeLocked(channels, tickers []string) error {
	f.msgID++
	params := map[string]any{"channels": channels}
	if len(tickers) > 0 {
		params["market_tickers"] = tickers
	}
	return f.conn.WriteJSON(map[string]any{
		"id":     f.msgID,
		"cmd":    "subscribe",
		"params": params,
	})
}

type wsEnvelope struct {
	Type string          `json:"type"`
	Msg  json.RawMessage `json:"msg"`
}

type wsOrderbookSnapshot struct {
	MarketTicker string     `json:"market_ticker"`
	Yes          [][2]int64 `json:"yes"`
	No           [][2]int64 `json:"no"`
}

type wsOrderbookDelta struct {
	MarketTicker string `json:"market_ticker"`
	Side         string `json:"side"`
	Price        int64  `json:"price"`
	Delta        int64  `json:"delta"`
}

type wsTicker struct {
	MarketTicker string `json:"market_ticker"`
	Price        int64  `json:"price"`
	YesBid       int64  `json:"yes_bid"`
	YesAsk       int64  `json:"yes_ask"`
}

type wsFill struct {
	MarketTicker string `json:"market_ticker"`
	Side         string `json:"side"`
	Action       string `json:"action"`
	Count        int64  `json:"count"`
	YesPrice     int64  `json:"yes_price"`
	NoPrice      int64  `json:"no_price"`
}

func (f *MarketFeed) handleMessage(raw []byte) {
	var env wsEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return
	}

	switch env.Type {
	case "orderbook_snapshot":
		var snap wsOrderbookSnapshot
		if err := json.Unmarshal(env.Msg, &snap); err != nil {
			return
		}
		book := domain.NewOrderbook(toLevels(snap.Yes), toLevels(snap.No))
		f.mu.Lock()
		f.books[snap.MarketTicker] = book
		f.mu.Unlock()

	case "orderbook_delta":
		var delta wsOrderbookDelta
		if err := json.Unmarshal(env.Msg, &delta); err != nil {
			return
		}
		f.mu.Lock()
		if book, ok := f.books[delta.MarketTicker]; ok {
			book.ApplyDelta(domain.Side(delta.Side), delta.Price, delta.Delta)
		}
		f.mu.Unlock()

	case "ticker":
		var tk wsTicker
		if err := json.Unmarshal(env.Msg, &tk); err != nil {
			return
		}
		f.mu.Lock()
		f.tickers[tk.MarketTicker] = tickerState{
			Price:     tk.Price,
			YesBid:    tk.YesBid,
			YesAsk:    tk.YesAsk,
			UpdatedAt: time.Now(),
		}
		f.mu.Unlock()

	case "fill":
		var fl wsFill
		if err := json.Unmarshal(env.Msg, &fl); err != nil {
			return
		}
		price := fl.YesPrice
		if fl.Side == "no" {
			price = fl.NoPrice
		}
		ev := FillEvent{
			Ticker: fl.MarketTicker,
			Side:   fl.Side,
			Action: fl.Action,
			Count:  fl.Count,
			Price:  price,
			At:     time.Now(),
		}
		f.mu.Lock()
		f.fills = append(f.fills, ev)
		if len(f.fills) > maxFillsLog {
			f.fills = f.fills[len(f.fills)-maxFillsLog:]
		}
		f.mu.Unlock()
		f.logger.Info("fill",
			zap.String("ticker", ev.Ticker),
			zap.String("side", ev.Side),
			zap.String("action", ev.Action),
			zap.Int64("count", ev.Count),
			zap.Int64("price", ev.Price))

	case "error":
		f.logger.Warn("venue websocket error frame", zap.ByteString("msg", env.Msg))
	}
}

func toLevels(raw [][2]int64) []domain.Level {
	levels := make([]domain.Level, 0, len(raw))
	for _, l := range raw {
		levels = append(levels, domain.Level{Price: l[0], Qty: l[1]})
	}
	return levels
}
