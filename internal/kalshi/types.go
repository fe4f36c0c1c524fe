package kalshi

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/transdsign-boop/kalshibot/internal/domain"
)

// Market is the venue's wire representation of one contract.
type Market struct {
	Ticker                 string  `json:"ticker"`
	Title                  string  `json:"title"`
	YesSubTitle            string  `json:"yes_sub_title"`
	FloorStrike            float64 `json:"floor_strike"`
	StrikePrice            float64 `json:"strike_price"`
	CloseTime              string  `json:"close_time"`
	ExpectedExpirationTime string  `json:"expected_expiration_time"`
	Status                 string  `json:"status"`
	Result                 string  `json:"result"`
	LastPrice              int64   `json:"last_price"`
	Volume                 int64   `json:"volume"`
}

// closeAt resolves the market close timestamp, preferring close_time.
func (m Market) closeAt() (time.Time, bool) {
	for _, raw := range []string{m.CloseTime, m.ExpectedExpirationTime} {
		if raw == "" {
			continue
		}
		if at, err := time.Parse(time.RFC3339, raw); err == nil {
			return at, true
		}
	}
	return time.Time{}, false
}

// Snapshot converts the wire market to the per-cycle domain snapshot.
func (m Market) Snapshot(now time.Time) (domain.Market, bool) {
	closeAt, ok := m.closeAt()
	if !ok {
		return domain.Market{}, false
	}
	return domain.Market{
		Ticker:         m.Ticker,
		Title:          m.Title,
		Strike:         domain.ExtractStrike(m.FloorStrike, m.StrikePrice, m.YesSubTitle, m.Title),
		CloseTime:      closeAt,
		SecondsToClose: closeAt.Sub(now).Seconds(),
		LastPrice:      m.LastPrice,
		Volume:         m.Volume,
	}, true
}

type marketsResponse struct {
	Markets []Market `json:"markets"`
}

type marketResponse struct {
	Market Market `json:"market"`
}

type balanceResponse struct {
	Balance int64 `json:"balance"` // cents
}

// Position is the venue's portfolio position: positive counts are YES
// contracts, negative are NO.
type Position struct {
	Ticker         string `json:"ticker"`
	Position       int64  `json:"position"`
	MarketExposure int64  `json:"market_exposure"` // cents
}

// Domain converts the signed wire position to the domain invariant-keeping
// form. Returns nil for flat positions.
func (p Position) Domain() *domain.Position {
	qty := p.Position
	side := domain.SideYes
	if qty < 0 {
		qty = -qty
		side = domain.SideNo
	}
	if qty == 0 {
		return nil
	}
	// The venue reports exposure directly; derive the average from it so
	// the exposure identity holds for fractional averages too.
	exposure := decimal.NewFromInt(p.MarketExposure)
	return &domain.Position{
		Ticker:        p.Ticker,
		Side:          side,
		Quantity:      qty,
		AvgPriceCents: exposure.Div(decimal.NewFromInt(qty)),
		ExposureCents: exposure,
	}
}

type positionsResponse struct {
	MarketPositions []Position `json:"market_positions"`
}

type orderbookResponse struct {
	Orderbook rawOrderbook `json:"orderbook"`
}

type rawOrderbook struct {
	Yes [][2]int64 `json:"yes"`
	No  [][2]int64 `json:"no"`
}

func (r rawOrderbook) domain() *domain.Orderbook {
	return domain.NewOrderbook(toLevels(r.Yes), toLevels(r.No))
}

// Order is the venue's order record.
type Order struct {
	OrderID        string `json:"order_id"`
	Ticker         string `json:"ticker"`
	Status         string `json:"status"`
	FilledCount    int64  `json:"filled_count"`
	RemainingCount int64  `json:"remaining_count"`
}

type orderResponse struct {
	Order Order `json:"order"`
}

// OrderRequest places a limit order. Exactly one of YesPrice/NoPrice is set
// depending on Side.
type OrderRequest struct {
	Ticker        string `json:"ticker"`
	ClientOrderID string `json:"client_order_id,omitempty"`
	Action        string `json:"action"` // buy | sell
	Side          string `json:"side"`   // yes | no
	Type          string `json:"type"`   // limit
	YesPrice      int64  `json:"yes_price,omitempty"`
	NoPrice       int64  `json:"no_price,omitempty"`
	Count         int64  `json:"count"`
}

// Fill is one execution report from the fills history or websocket.
type Fill struct {
	Ticker   string `json:"ticker"`
	OrderID  string `json:"order_id"`
	Side     string `json:"side"`
	Action   string `json:"action"`
	Count    int64  `json:"count"`
	YesPrice int64  `json:"yes_price"`
	NoPrice  int64  `json:"no_price"`
	TradeID  string `json:"trade_id"`
}

type fillsResponse struct {
	Fills []Fill `json:"fills"`
}
