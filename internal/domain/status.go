package domain

import (
	"sync"
	"time"
)

// OrderbookSummary is the per-cycle book digest exposed to external consumers.
type OrderbookSummary struct {
	BestBid  int64 `json:"best_bid"`
	BestAsk  int64 `json:"best_ask"`
	Spread   int64 `json:"spread"`
	YesDepth int64 `json:"yes_depth"`
	NoDepth  int64 `json:"no_depth"`
}

// SignalState is the consensus/signal view captured in the status snapshot.
type SignalState struct {
	WeightedPrice       float64 `json:"weighted_price"`
	LeadLagSpread       float64 `json:"lead_lag_spread"`
	Momentum            float64 `json:"momentum"`
	Baseline            float64 `json:"baseline"`
	ProjectedSettlement float64 `json:"projected_settlement"`
	ExchangesConnected  int     `json:"exchanges_connected"`
	ExchangesTotal      int     `json:"exchanges_total"`
	Override            Action  `json:"override,omitempty"`
	Signal              string  `json:"signal,omitempty"`
	SignalDiff          float64 `json:"signal_diff"`
}

// CycleStatus is the whole-cycle snapshot handed to external collaborators.
// It is rewritten wholesale at the end of every cycle so readers never see a
// half-updated mix of fields.
type CycleStatus struct {
	Running        bool             `json:"running"`
	CycleCount     uint64           `json:"cycle_count"`
	Balance        string           `json:"balance"`
	DayPnL         string           `json:"day_pnl"`
	PositionPnL    string           `json:"position_pnl"`
	ActivePosition *Position        `json:"active_position,omitempty"`
	CurrentMarket  string           `json:"current_market,omitempty"`
	MarketTitle    string           `json:"market_title,omitempty"`
	StrikePrice    float64          `json:"strike_price,omitempty"`
	SecondsToClose float64          `json:"seconds_to_close,omitempty"`
	CloseTime      time.Time        `json:"close_time,omitzero"`
	LastAction     string           `json:"last_action"`
	LastDecision   *Decision        `json:"last_decision,omitempty"`
	Signals        SignalState      `json:"signals"`
	Orderbook      OrderbookSummary `json:"orderbook"`
	Paper          bool             `json:"paper"`
	UpdatedAt      time.Time        `json:"updated_at"`
}

// StatusTracker holds the latest CycleStatus for concurrent readers
// (dashboard, persistence). Writers replace the snapshot atomically.
type StatusTracker struct {
	mu     sync.RWMutex
	latest CycleStatus
}

// Publish replaces the current snapshot.
func (t *StatusTracker) Publish(s CycleStatus) {
	s.UpdatedAt = time.Now()
	t.mu.Lock()
	t.latest = s
	t.mu.Unlock()
}

// Latest returns the most recently published snapshot.
func (t *StatusTracker) Latest() CycleStatus {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.latest
}
