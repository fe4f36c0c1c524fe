package domain

import (
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
)

// Position is an open holding in one contract. ExposureCents is the exact
// cash cost basis: fills add their cost, reductions subtract the average
// cost of what was sold. AvgPriceCents is derived from it and may round;
// the exposure figure is the authoritative one.
type Position struct {
	Ticker        string
	Side          Side
	Quantity      int64
	AvgPriceCents decimal.Decimal
	ExposureCents decimal.Decimal
}

// NewPosition opens a position from a first fill.
func NewPosition(ticker string, side Side, priceCents, quantity int64) (*Position, error) {
	if quantity <= 0 {
		return nil, errors.New("position quantity must be positive")
	}
	if priceCents <= 0 || priceCents >= 100 {
		return nil, errors.Errorf("contract price %dc outside (0,100)", priceCents)
	}
	price := decimal.NewFromInt(priceCents)
	return &Position{
		Ticker:        ticker,
		Side:          side,
		Quantity:      quantity,
		AvgPriceCents: price,
		ExposureCents: price.Mul(decimal.NewFromInt(quantity)),
	}, nil
}

// AddFill averages a same-side fill into the position. The fill's exact cost
// is added to the exposure; the average is recomputed from it.
func (p *Position) AddFill(priceCents, quantity int64) {
	if quantity <= 0 {
		return
	}
	cost := decimal.NewFromInt(priceCents).Mul(decimal.NewFromInt(quantity))
	p.Quantity += quantity
	p.ExposureCents = p.ExposureCents.Add(cost)
	p.AvgPriceCents = p.ExposureCents.Div(decimal.NewFromInt(p.Quantity))
}

// Reduce removes up to quantity contracts and returns how many were actually
// removed. The sold contracts leave at the average cost; a full reduction
// zeroes the exposure outright so no rounding residue survives. The caller
// deletes the position when Quantity reaches zero.
func (p *Position) Reduce(quantity int64) int64 {
	if quantity <= 0 {
		return 0
	}
	reduced := quantity
	if reduced > p.Quantity {
		reduced = p.Quantity
	}
	p.Quantity -= reduced
	if p.Quantity == 0 {
		p.ExposureCents = decimal.Zero
		return reduced
	}
	p.ExposureCents = p.ExposureCents.Sub(p.AvgPriceCents.Mul(decimal.NewFromInt(reduced)))
	return reduced
}

// MarkToMarket values the position at current best prices: long YES at the
// best bid, long NO at 100 minus the best ask.
func (p *Position) MarkToMarket(bestBid, bestAsk int64) decimal.Decimal {
	if p == nil || p.Quantity == 0 {
		return decimal.Zero
	}
	var per int64
	if p.Side == SideYes {
		per = bestBid
	} else {
		per = 100 - bestAsk
	}
	if per < 0 {
		per = 0
	}
	return decimal.NewFromInt(per).Mul(decimal.NewFromInt(p.Quantity))
}

// UnrealizedPnL is mark-to-market value minus cost basis, in cents.
func (p *Position) UnrealizedPnL(bestBid, bestAsk int64) decimal.Decimal {
	if p == nil || p.Quantity == 0 {
		return decimal.Zero
	}
	return p.MarkToMarket(bestBid, bestAsk).Sub(p.ExposureCents)
}

// GainPct is the percentage gain of the current per-contract value over the
// average entry cost. Zero when the average cost is zero.
func (p *Position) GainPct(currentValueCents int64) decimal.Decimal {
	if p == nil || p.AvgPriceCents.IsZero() {
		return decimal.Zero
	}
	value := decimal.NewFromInt(currentValueCents)
	return value.Sub(p.AvgPriceCents).Div(p.AvgPriceCents).Mul(decimal.NewFromInt(100))
}

// LossPerContract is how many cents per contract the position is under water,
// negative when profitable.
func (p *Position) LossPerContract(bestBid, bestAsk int64) decimal.Decimal {
	if p == nil || p.Quantity == 0 {
		return decimal.Zero
	}
	qty := decimal.NewFromInt(p.Quantity)
	return p.ExposureCents.Sub(p.MarkToMarket(bestBid, bestAsk)).Div(qty)
}
