package kalshi

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/transdsign-boop/kalshibot/internal/domain"
)

func TestMarketSnapshot(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	m := Market{
		Ticker:      "KXBTC15M-26MAR0112-B83250",
		Title:       "BTC above $83,250 at 12:15 EST?",
		YesSubTitle: "$83,250 or above",
		FloorStrike: 83250,
		CloseTime:   now.Add(9 * time.Minute).Format(time.RFC3339),
		LastPrice:   52,
		Volume:      1400,
	}

	snap, ok := m.Snapshot(now)
	require.True(t, ok)
	require.InDelta(t, 83250, snap.Strike, 0.01)
	require.InDelta(t, 540, snap.SecondsToClose, 0.5)
	require.Equal(t, int64(52), snap.LastPrice)
}

func TestMarketSnapshotStrikeFallsBackToTitle(t *testing.T) {
	now := time.Now()
	m := Market{
		Ticker:    "T",
		Title:     "BTC price above $84,100.50?",
		CloseTime: now.Add(time.Minute).Format(time.RFC3339),
	}
	snap, ok := m.Snapshot(now)
	require.True(t, ok)
	require.InDelta(t, 84100.50, snap.Strike, 0.01)
}

func TestMarketSnapshotNoCloseTime(t *testing.T) {
	_, ok := Market{Ticker: "T"}.Snapshot(time.Now())
	require.False(t, ok)
}

func TestPositionDomain(t *testing.T) {
	tests := []struct {
		name     string
		pos      Position
		wantNil  bool
		wantSide domain.Side
		wantQty  int64
		wantAvg  string
	}{
		{
			name:     "long yes",
			pos:      Position{Ticker: "T", Position: 10, MarketExposure: 450},
			wantSide: domain.SideYes,
			wantQty:  10,
			wantAvg:  "45",
		},
		{
			name:     "long no",
			pos:      Position{Ticker: "T", Position: -4, MarketExposure: 220},
			wantSide: domain.SideNo,
			wantQty:  4,
			wantAvg:  "55",
		},
		{
			name:    "flat",
			pos:     Position{Ticker: "T", Position: 0},
			wantNil: true,
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := tc.pos.Domain()
			if tc.wantNil {
				require.Nil(t, got)
				return
			}
			require.NotNil(t, got)
			require.Equal(t, tc.wantSide, got.Side)
			require.Equal(t, tc.wantQty, got.Quantity)
			require.Equal(t, tc.wantAvg, got.AvgPriceCents.String())
			require.True(t, got.AvgPriceCents.Mul(decimal.NewFromInt(got.Quantity)).Equal(got.ExposureCents))
		})
	}
}

func TestRawOrderbookDomain(t *testing.T) {
	raw := rawOrderbook{
		Yes: [][2]int64{{40, 100}, {45, 50}},
		No:  [][2]int64{{52, 80}, {50, 30}},
	}
	book := raw.domain()
	require.Equal(t, int64(45), book.BestBid())
	require.Equal(t, int64(48), book.BestAsk()) // 100 - 52
	require.Equal(t, int64(3), book.Spread())
}

func TestMarketFeedOrderbookMessages(t *testing.T) {
	feed := NewMarketFeed("wss://example.test", nil, nil)

	snapshot := map[string]any{
		"type": "orderbook_snapshot",
		"msg": map[string]any{
			"market_ticker": "T",
			"yes":           [][2]int64{{40, 10}},
			"no":            [][2]int64{{55, 20}},
		},
	}
	raw, err := json.Marshal(snapshot)
	require.NoError(t, err)
	feed.handleMessage(raw)

	book := feed.LiveOrderbook("T")
	require.NotNil(t, book)
	require.Equal(t, int64(40), book.BestBid())
	require.Equal(t, int64(45), book.BestAsk())

	// A delta replaces one level; qty zero removes it.
	delta := []byte(`{"type":"orderbook_delta","msg":{"market_ticker":"T","side":"yes","price":42,"delta":5}}`)
	feed.handleMessage(delta)
	remove := []byte(`{"type":"orderbook_delta","msg":{"market_ticker":"T","side":"yes","price":40,"delta":0}}`)
	feed.handleMessage(remove)

	book = feed.LiveOrderbook("T")
	require.Equal(t, int64(42), book.BestBid())

	// Deltas for unknown tickers are ignored until a snapshot arrives.
	feed.handleMessage([]byte(`{"type":"orderbook_delta","msg":{"market_ticker":"OTHER","side":"yes","price":10,"delta":1}}`))
	require.Nil(t, feed.LiveOrderbook("OTHER"))
}

func TestMarketFeedTickerAndFills(t *testing.T) {
	feed := NewMarketFeed("wss://example.test", nil, nil)

	feed.handleMessage([]byte(`{"type":"ticker","msg":{"market_ticker":"T","price":48,"yes_bid":47,"yes_ask":49}}`))
	price, bid, ask, ok := feed.LiveTicker("T")
	require.True(t, ok)
	require.Equal(t, int64(48), price)
	require.Equal(t, int64(47), bid)
	require.Equal(t, int64(49), ask)

	feed.handleMessage([]byte(`{"type":"fill","msg":{"market_ticker":"T","side":"no","action":"buy","count":3,"yes_price":48,"no_price":52}}`))
	fills := feed.RecentFills()
	require.Len(t, fills, 1)
	require.Equal(t, int64(52), fills[0].Price, "no-side fills report the no price")
}
