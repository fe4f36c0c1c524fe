package trading

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/transdsign-boop/kalshibot/config"
	"github.com/transdsign-boop/kalshibot/internal/domain"
)

// guardResult is nil when the guard passes; otherwise it carries the reason
// the cycle stops here.
type guardResult struct {
	Guard  string
	Reason string
}

func blocked(guard, format string, args ...any) *guardResult {
	return &guardResult{Guard: guard, Reason: fmt.Sprintf(format, args...)}
}

// timeGuard blocks entries too close to expiry.
func timeGuard(secondsToClose float64, tun config.Tunables) *guardResult {
	if secondsToClose < float64(tun.MinSecondsToClose) {
		return blocked("time", "%.0fs left, need %ds", secondsToClose, tun.MinSecondsToClose)
	}
	return nil
}

// spreadGuard blocks on an empty book or a two-sided spread wider than the
// limit. A one-sided book passes: the bot places a resting limit order.
func spreadGuard(book *domain.Orderbook, tun config.Tunables) *guardResult {
	if book == nil || book.Empty() {
		return blocked("spread", "empty orderbook")
	}
	if book.TwoSided() {
		if spread := book.Spread(); spread > int64(tun.MaxSpreadCents) {
			return blocked("spread", "%dc spread exceeds %dc", spread, tun.MaxSpreadCents)
		}
	}
	return nil
}

// priceGuard blocks entries outside the tradeable band. The band is expressed
// in YES terms, so a NO order at cost c is judged at 100-c: buying NO for 10c
// is the same 90c-probability bet as buying YES for 90c.
func priceGuard(side domain.Side, priceCents int64, tun config.Tunables) *guardResult {
	effective := priceCents
	if side == domain.SideNo {
		effective = 100 - priceCents
	}
	if effective < int64(tun.MinContractPrice) {
		return blocked("price", "%dc (yes-equivalent) below %dc floor", effective, tun.MinContractPrice)
	}
	if effective > int64(tun.MaxContractPrice) {
		return blocked("price", "%dc (yes-equivalent) above %dc cap", effective, tun.MaxContractPrice)
	}
	return nil
}

// exposureGuard blocks new entries once total open exposure reaches the
// configured share of the balance.
func exposureGuard(totalExposureCents decimal.Decimal, balanceCents int64, tun config.Tunables) *guardResult {
	limit := decimal.NewFromInt(balanceCents).Mul(decimal.NewFromFloat(tun.MaxTotalExposurePct)).Div(decimal.NewFromInt(100))
	if totalExposureCents.GreaterThanOrEqual(limit) {
		return blocked("exposure", "%sc open vs %sc limit", totalExposureCents.StringFixed(0), limit.StringFixed(0))
	}
	return nil
}

// sameSideGuard blocks orders against an existing position on the ticker.
func sameSideGuard(pos *domain.Position, side domain.Side) *guardResult {
	if pos != nil && pos.Quantity > 0 && pos.Side != side {
		return blocked("same-side", "holding %s, blocked %s order", pos.Side, side)
	}
	return nil
}

// orderSize converts percentage budgets into a contract count, bounded by
// the per-ticker position cap. Zero means the cap is already reached.
func orderSize(balanceCents, priceCents, heldQty int64, tun config.Tunables) int64 {
	if priceCents <= 0 {
		return 0
	}
	balance := decimal.NewFromInt(balanceCents)
	price := decimal.NewFromInt(priceCents)

	positionBudget := balance.Mul(decimal.NewFromFloat(tun.MaxPositionPct)).Div(decimal.NewFromInt(100))
	maxPosition := positionBudget.Div(price).IntPart()
	if maxPosition < 1 {
		maxPosition = 1
	}

	capacity := maxPosition - heldQty
	if capacity <= 0 {
		return 0
	}

	orderBudget := balance.Mul(decimal.NewFromFloat(tun.OrderSizePct)).Div(decimal.NewFromInt(100))
	size := orderBudget.Div(price).IntPart()
	if size < 1 {
		size = 1
	}
	if size > capacity {
		size = capacity
	}
	return size
}

// clampPrice keeps a contract price inside the venue's valid 1..99 range.
func clampPrice(priceCents int64) int64 {
	if priceCents < 1 {
		return 1
	}
	if priceCents > 99 {
		return 99
	}
	return priceCents
}
