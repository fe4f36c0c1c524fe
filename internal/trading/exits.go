package trading

import (
	"github.com/shopspring/decimal"

	"github.com/transdsign-boop/kalshibot/config"
	"github.com/transdsign-boop/kalshibot/internal/domain"
)

// exitRule identifies which rule produced an exit order.
type exitRule string

const (
	exitHoldToExpiry exitRule = "hold_to_expiry"
	exitStopLoss     exitRule = "stop_loss"
	exitHitAndRun    exitRule = "hit_and_run"
	exitProfitTake   exitRule = "profit_take"
	exitFreeRoll     exitRule = "free_roll"
)

// exitOrder is what the exit evaluation asks the executor to do. A nil
// order with hold=false means no exit rule fired.
type exitOrder struct {
	Rule       exitRule
	Side       domain.Side
	PriceCents int64
	Quantity   int64
}

// evaluateExit walks the exit rules in their fixed order and returns the
// first that fires. hold=true means the hold-to-expiry window is active and
// all selling is suppressed this cycle.
func evaluateExit(pos *domain.Position, bestBid, bestAsk int64, secondsToClose float64,
	freeRolled bool, tun config.Tunables) (order *exitOrder, hold bool) {
	if pos == nil || pos.Quantity == 0 {
		return nil, false
	}

	// Exit value per contract: long YES sells into the bid, long NO into
	// 100 minus the ask.
	sellPrice := bestBid
	if pos.Side == domain.SideNo {
		sellPrice = 100 - bestAsk
	}
	sellPrice = clampPrice(sellPrice)

	// Hold-to-expiry: ride the final stretch to settlement.
	if secondsToClose < float64(tun.HoldExpirySecs) {
		return nil, true
	}

	// Stop-loss.
	if tun.StopLossCents > 0 {
		loss := pos.LossPerContract(bestBid, bestAsk)
		if loss.GreaterThanOrEqual(decimal.NewFromInt(int64(tun.StopLossCents))) {
			return &exitOrder{Rule: exitStopLoss, Side: pos.Side, PriceCents: sellPrice, Quantity: pos.Quantity}, false
		}
	}

	gainPct := pos.GainPct(sellPrice)

	// Hit-and-run: instant full exit at the target gain, no time condition.
	if tun.HitAndRunPct > 0 && gainPct.GreaterThanOrEqual(decimal.NewFromInt(int64(tun.HitAndRunPct))) {
		return &exitOrder{Rule: exitHitAndRun, Side: pos.Side, PriceCents: sellPrice, Quantity: pos.Quantity}, false
	}

	// Profit-take: full exit, but only with enough time left.
	if gainPct.GreaterThanOrEqual(decimal.NewFromInt(int64(tun.ProfitTakePct))) &&
		secondsToClose > float64(tun.ProfitTakeMinSecs) {
		return &exitOrder{Rule: exitProfitTake, Side: pos.Side, PriceCents: sellPrice, Quantity: pos.Quantity}, false
	}

	// Free-roll: sell half once per ticker to take the cost basis off the
	// table. Needs at least 2 contracts to have a half.
	if sellPrice >= int64(tun.FreeRollPrice) && !freeRolled && pos.Quantity >= 2 {
		half := pos.Quantity / 2
		if half < 1 {
			half = 1
		}
		return &exitOrder{Rule: exitFreeRoll, Side: pos.Side, PriceCents: sellPrice, Quantity: half}, false
	}

	return nil, false
}
