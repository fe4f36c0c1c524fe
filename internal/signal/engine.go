// Package signal combines the consensus price, momentum and settlement
// projection into at most one trading override per poll cycle.
package signal

import (
	"go.uber.org/zap"

	"github.com/transdsign-boop/kalshibot/internal/consensus"
	"github.com/transdsign-boop/kalshibot/internal/domain"
)

// Thresholds are the tunable trigger levels, re-read every cycle.
type Thresholds struct {
	LeadLagEnabled    bool
	LeadLagThreshold  float64 // USD global-vs-strike trigger
	MomentumThreshold float64 // USD front-run trigger
	AnchorSeconds     float64 // near-expiry window for anchor defense
}

// Evaluation is the engine's per-cycle output. Override is ActionHold when
// no rule fired.
type Evaluation struct {
	Override  domain.Action
	Source    string
	Direction consensus.Direction
	Diff      float64
	Momentum  float64
	Baseline  float64
	Projected float64
}

// Engine derives trading overrides from the consensus book.
type Engine struct {
	book   *consensus.Book
	logger *zap.Logger
}

// NewEngine wires the engine to a consensus book.
func NewEngine(book *consensus.Book, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{book: book, logger: logger}
}

// Evaluate applies the strict override precedence:
//  1. lead-lag signal (weighted global price vs strike),
//  2. momentum front-run, only when lead-lag stayed silent,
//  3. anchor defense, which near expiry with a held position may override
//     either of the above to force the position onto the projected winner.
//
// Anchor defense is damage control on an existing position, never a fresh
// entry. Only one action surfaces per cycle.
func (e *Engine) Evaluate(th Thresholds, market domain.Market, pos *domain.Position) Evaluation {
	eval := Evaluation{Override: domain.ActionHold, Direction: consensus.DirectionNeutral}
	if !e.book.PrimaryFeedsConnected() {
		return eval
	}

	eval.Momentum, eval.Baseline = e.book.Momentum()
	eval.Projected = e.book.ProjectedSettlement()

	if th.LeadLagEnabled && market.HasStrike() {
		eval.Direction, eval.Diff = e.book.Signal(market.Strike, th.LeadLagThreshold)
		switch eval.Direction {
		case consensus.DirectionBullish:
			eval.Override = domain.ActionBuyYes
			eval.Source = "lead_lag"
			e.logger.Info("lead-lag override",
				zap.String("action", string(eval.Override)),
				zap.Float64("strike", market.Strike),
				zap.Float64("diff", eval.Diff))
		case consensus.DirectionBearish:
			eval.Override = domain.ActionBuyNo
			eval.Source = "lead_lag"
			e.logger.Info("lead-lag override",
				zap.String("action", string(eval.Override)),
				zap.Float64("strike", market.Strike),
				zap.Float64("diff", eval.Diff))
		}
	}

	// Lead-lag always suppresses momentum when both would fire.
	if eval.Override == domain.ActionHold {
		if eval.Momentum > th.MomentumThreshold {
			eval.Override = domain.ActionBuyYes
			eval.Source = "momentum"
			e.logger.Info("momentum front-run override",
				zap.String("action", string(eval.Override)),
				zap.Float64("momentum", eval.Momentum))
		} else if eval.Momentum < -th.MomentumThreshold {
			eval.Override = domain.ActionBuyNo
			eval.Source = "momentum"
			e.logger.Info("momentum front-run override",
				zap.String("action", string(eval.Override)),
				zap.Float64("momentum", eval.Momentum))
		}
	}

	if market.SecondsToClose < th.AnchorSeconds && pos != nil && pos.Quantity > 0 && market.HasStrike() {
		yesWins, projected := e.book.ProjectSettlement(market.Strike, market.SecondsToClose)
		eval.Projected = projected
		if pos.Side == domain.SideYes && !yesWins {
			eval.Override = domain.ActionBuyNo
			eval.Source = "anchor"
			e.logger.Info("anchor defense override",
				zap.String("action", string(eval.Override)),
				zap.Float64("projected", projected),
				zap.Float64("strike", market.Strike))
		} else if pos.Side == domain.SideNo && yesWins {
			eval.Override = domain.ActionBuyYes
			eval.Source = "anchor"
			e.logger.Info("anchor defense override",
				zap.String("action", string(eval.Override)),
				zap.Float64("projected", projected),
				zap.Float64("strike", market.Strike))
		}
	}

	return eval
}
