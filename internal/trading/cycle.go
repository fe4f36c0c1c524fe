package trading

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/transdsign-boop/kalshibot/config"
	"github.com/transdsign-boop/kalshibot/internal/advisor"
	"github.com/transdsign-boop/kalshibot/internal/consensus"
	"github.com/transdsign-boop/kalshibot/internal/domain"
	"github.com/transdsign-boop/kalshibot/internal/signal"
	"github.com/transdsign-boop/kalshibot/internal/storage/events"
	"github.com/transdsign-boop/kalshibot/internal/storage/trades"
)

const fillWait = 3 * time.Second

// marketData is the venue access the cycle needs besides the executor:
// market discovery and the REST orderbook fallback.
type marketData interface {
	ActiveMarket(ctx context.Context, series string) (*domain.Market, error)
	Orderbook(ctx context.Context, ticker string) (*domain.Orderbook, error)
}

// liveBooks is the optional venue websocket surface.
type liveBooks interface {
	Connected() bool
	SubscribeOrderbook(ticker string)
	LiveOrderbook(ticker string) *domain.Orderbook
}

// Cycle is the per-poll trading state machine.
type Cycle struct {
	series   string
	paper    bool
	venue    marketData
	feed     liveBooks
	executor Executor
	book     *consensus.Book
	signals  *signal.Engine
	advisor  advisor.Advisor
	tunables *config.TunableStore
	status   *domain.StatusTracker
	events   *events.WALStore
	trades   *trades.WALStore
	logger   *zap.Logger

	cycleCount    uint64
	startBalance  decimal.Decimal // cents, captured on first cycle
	startExposure decimal.Decimal
	startCaptured bool
	lossHalted    bool
	freeRolled    map[string]bool
}

// CycleDeps bundles the collaborators for NewCycle. Venue is typically a
// *kalshi.Client and Feed a *kalshi.MarketFeed.
type CycleDeps struct {
	Series   string
	Paper    bool
	Venue    marketData
	Feed     liveBooks
	Executor Executor
	Book     *consensus.Book
	Signals  *signal.Engine
	Advisor  advisor.Advisor
	Tunables *config.TunableStore
	Status   *domain.StatusTracker
	Events   *events.WALStore
	Trades   *trades.WALStore
	Logger   *zap.Logger
}

// NewCycle wires the trading cycle.
func NewCycle(deps CycleDeps) *Cycle {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &Cycle{
		series:     deps.Series,
		paper:      deps.Paper,
		executor:   deps.Executor,
		book:       deps.Book,
		signals:    deps.Signals,
		advisor:    deps.Advisor,
		tunables:   deps.Tunables,
		status:     deps.Status,
		events:     deps.Events,
		trades:     deps.Trades,
		logger:     logger,
		freeRolled: make(map[string]bool),
	}
	c.venue = deps.Venue
	c.feed = deps.Feed
	return c
}

// Run polls until ctx is cancelled. Every cycle error is contained: the
// loop itself never dies.
func (c *Cycle) Run(ctx context.Context) {
	c.logger.Info("trading cycle started", zap.String("series", c.series), zap.Bool("paper", c.paper))
	c.logEvent("INFO", "cycle", "trading bot started")

	for {
		c.safeCycle(ctx)

		interval := c.tunables.Snapshot().PollInterval()
		select {
		case <-ctx.Done():
			c.logEvent("INFO", "cycle", "trading bot stopped")
			c.logger.Info("trading cycle stopped")
			return
		case <-time.After(interval):
		}
	}
}

// safeCycle contains panics and errors from one pass.
func (c *Cycle) safeCycle(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("cycle panic", zap.Any("panic", r))
			c.logEvent("ERROR", "cycle", fmt.Sprintf("panic: %v", r))
		}
	}()
	if err := c.runOnce(ctx); err != nil {
		c.logger.Error("cycle error", zap.Error(err))
		c.logEvent("ERROR", "cycle", err.Error())
	}
}

// cycleState accumulates what one pass learns; the status snapshot is built
// from it at every return point.
type cycleState struct {
	tun        config.Tunables
	balance    int64
	market     *domain.Market
	book       *domain.Orderbook
	position   *domain.Position
	exposure   decimal.Decimal
	dayPnL     decimal.Decimal
	posPnL     decimal.Decimal
	eval       signal.Evaluation
	decision   *domain.Decision
	lastAction string
}

func (c *Cycle) runOnce(ctx context.Context) error {
	c.cycleCount++
	st := &cycleState{tun: c.tunables.Snapshot()}
	defer c.publish(st)

	// Balance.
	balance, err := c.executor.Balance(ctx)
	if err != nil {
		st.lastAction = "balance fetch failed"
		return err
	}
	st.balance = balance

	// Active market.
	market, err := c.venue.ActiveMarket(ctx, c.series)
	if err != nil {
		st.lastAction = "market fetch failed"
		return err
	}
	if market == nil {
		st.lastAction = "no open market"
		c.logger.Info("no active market", zap.String("series", c.series))
		return nil
	}
	st.market = market

	// Settle paper positions left on expired tickers.
	c.executor.SettleExpired(ctx, market.Ticker)

	// Live orderbook subscription for the active contract.
	if c.feed != nil && c.feed.Connected() {
		c.feed.SubscribeOrderbook(market.Ticker)
	}

	// Positions and exposure.
	positions, err := c.executor.Positions(ctx)
	if err != nil {
		st.lastAction = "positions fetch failed"
		return err
	}
	st.exposure = decimal.Zero
	for _, p := range positions {
		st.exposure = st.exposure.Add(p.ExposureCents)
		if p.Ticker == market.Ticker {
			st.position = p
		}
	}

	if !c.startCaptured {
		c.startBalance = decimal.NewFromInt(balance)
		c.startExposure = st.exposure
		c.startCaptured = true
		c.logger.Info("session start captured",
			zap.Int64("balance_cents", balance),
			zap.String("exposure_cents", st.exposure.String()))
	}

	// Realized P&L: money enters and leaves (balance + exposure) only
	// through settlement, so session drift in that sum is realized profit.
	realized := decimal.NewFromInt(balance).Add(st.exposure).
		Sub(c.startBalance.Add(c.startExposure))
	st.dayPnL = realized

	// Daily loss circuit breaker on realized P&L, latched until restart.
	maxLoss := c.startBalance.Mul(decimal.NewFromFloat(st.tun.MaxDailyLossPct)).Div(decimal.NewFromInt(100))
	if c.lossHalted || realized.LessThan(maxLoss.Neg()) {
		if !c.lossHalted {
			c.lossHalted = true
			c.logger.Warn("daily loss limit hit, trading halted",
				zap.String("realized_cents", realized.String()),
				zap.String("limit_cents", maxLoss.String()))
			c.logEvent("GUARD", "daily-loss", fmt.Sprintf("realized %sc beyond -%sc limit", realized.StringFixed(0), maxLoss.StringFixed(0)))
		}
		st.lastAction = "daily loss limit - halted"
		return nil
	}

	// Orderbook: live snapshot when available, REST otherwise.
	var book *domain.Orderbook
	if c.feed != nil {
		book = c.feed.LiveOrderbook(market.Ticker)
	}
	if book == nil {
		book, err = c.venue.Orderbook(ctx, market.Ticker)
		if err != nil {
			st.lastAction = "orderbook fetch failed"
			return err
		}
	}
	st.book = book
	bestBid, bestAsk := book.BestBid(), book.BestAsk()

	if st.position != nil {
		st.posPnL = st.position.UnrealizedPnL(bestBid, bestAsk)
		st.dayPnL = st.dayPnL.Add(st.posPnL)
	}

	// Exit rules, each terminal when it fires.
	if st.position != nil && st.tun.TradingEnabled {
		order, holdToExpiry := evaluateExit(st.position, bestBid, bestAsk,
			market.SecondsToClose, c.freeRolled[market.Ticker], st.tun)
		if holdToExpiry {
			st.lastAction = fmt.Sprintf("holding to expiry (%.0fs left)", market.SecondsToClose)
			return nil
		}
		if order != nil {
			return c.executeExit(ctx, st, order)
		}
	}

	// Entry guards.
	if g := timeGuard(market.SecondsToClose, st.tun); g != nil {
		st.lastAction = "time guard - too close to expiry"
		c.executor.CancelAll(ctx)
		c.logGuard(g)
		return nil
	}
	if g := spreadGuard(book, st.tun); g != nil {
		st.lastAction = "spread guard - holding"
		c.logGuard(g)
		return nil
	}

	// One action per cycle: signal override, else advisor.
	st.eval = c.signals.Evaluate(signal.Thresholds{
		LeadLagEnabled:    st.tun.LeadLagEnabled,
		LeadLagThreshold:  st.tun.LeadLagThreshold,
		MomentumThreshold: st.tun.DeltaThreshold,
		AnchorSeconds:     float64(st.tun.AnchorSecondsThreshold),
	}, *market, st.position)

	decision := c.decide(ctx, st, bestBid, bestAsk)
	st.decision = &decision
	c.recordDecision(market.Ticker, decision, st.eval.Source)

	if !st.tun.TradingEnabled {
		st.lastAction = "trading disabled - dry run"
		return nil
	}

	if decision.Decision == domain.ActionHold {
		st.lastAction = fmt.Sprintf("hold (%.0f%%)", decision.Confidence*100)
		return nil
	}
	if st.eval.Override == domain.ActionHold && decision.Confidence < st.tun.MinAgentConfidence {
		st.lastAction = fmt.Sprintf("advisor confidence %.0f%% below %.0f%%", decision.Confidence*100, st.tun.MinAgentConfidence*100)
		return nil
	}

	return c.executeEntry(ctx, st, decision.Decision.Side(), bestBid, bestAsk)
}

// decide returns the cycle's action: a signal override wins outright, the
// advisor is consulted otherwise.
func (c *Cycle) decide(ctx context.Context, st *cycleState, bestBid, bestAsk int64) domain.Decision {
	if st.eval.Override != domain.ActionHold {
		return domain.Decision{
			Decision:   st.eval.Override,
			Confidence: 1.0,
			Reasoning:  fmt.Sprintf("signal override (%s)", st.eval.Source),
		}
	}

	snap := c.book.Snapshot()
	marketCtx := advisor.MarketContext{
		Ticker:           st.market.Ticker,
		Title:            st.market.Title,
		Strike:           st.market.Strike,
		SecondsToClose:   st.market.SecondsToClose,
		LastPriceCents:   st.market.LastPrice,
		BestBidCents:     bestBid,
		BestAskCents:     bestAsk,
		Volume:           st.market.Volume,
		GlobalPrice:      snap.WeightedGlobalPrice,
		LeadPrice:        snap.LeadPrice,
		SettlementPrice:  snap.SettlementPrice,
		Momentum:         st.eval.Momentum,
		ProjectedSettled: st.eval.Projected,
	}
	var posCtx *advisor.PositionContext
	if st.position != nil {
		posCtx = &advisor.PositionContext{
			Side:          string(st.position.Side),
			Quantity:      st.position.Quantity,
			AvgPriceCents: st.position.AvgPriceCents.StringFixed(2),
			ExposureCents: st.position.ExposureCents.StringFixed(0),
		}
	}
	return c.advisor.Decide(ctx, marketCtx, posCtx)
}

// executeExit sells through the executor and marks free-roll tickers.
func (c *Cycle) executeExit(ctx context.Context, st *cycleState, order *exitOrder) error {
	ticker := st.market.Ticker
	c.logger.Info("exit rule fired",
		zap.String("rule", string(order.Rule)),
		zap.String("ticker", ticker),
		zap.Int64("quantity", order.Quantity),
		zap.Int64("price_cents", order.PriceCents))
	c.logEvent("TRADE", "exit", fmt.Sprintf("%s: selling %d %s @ %dc on %s",
		order.Rule, order.Quantity, order.Side, order.PriceCents, ticker))

	result, err := c.executor.Sell(ctx, ticker, order.Side, order.PriceCents, order.Quantity)
	if err != nil {
		st.lastAction = fmt.Sprintf("%s: sell rejected", order.Rule)
		return err
	}
	if order.Rule == exitFreeRoll {
		c.freeRolled[ticker] = true
	}
	if !c.paper {
		c.recordFill(ticker, string(order.Side), "sell", result.FilledCount, order.PriceCents)
	}
	st.lastAction = fmt.Sprintf("%s: sold %d %s @ %dc", order.Rule, order.Quantity, order.Side, order.PriceCents)
	return nil
}

// executeEntry prices, sizes and places a buy, with one reprice retry for
// unfilled passive orders.
func (c *Cycle) executeEntry(ctx context.Context, st *cycleState, side domain.Side, bestBid, bestAsk int64) error {
	ticker := st.market.Ticker
	tun := st.tun

	// Stale resting orders would double-fill against the new decision.
	c.executor.CancelAll(ctx)

	if g := sameSideGuard(st.position, side); g != nil {
		st.lastAction = fmt.Sprintf("blocked - already holding %s", st.position.Side)
		c.logGuard(g)
		return nil
	}

	// Extreme momentum crosses the spread; otherwise improve the best bid
	// by a cent and rest.
	extreme := st.eval.Momentum > tun.ExtremeDeltaThreshold || st.eval.Momentum < -tun.ExtremeDeltaThreshold
	var priceCents int64
	if extreme && bestAsk < 100 && bestBid > 0 {
		if side == domain.SideYes {
			priceCents = bestAsk
		} else {
			priceCents = 100 - bestBid
		}
		c.logger.Info("extreme momentum, crossing the spread",
			zap.Float64("momentum", st.eval.Momentum),
			zap.Int64("price_cents", priceCents))
	} else {
		if side == domain.SideYes {
			priceCents = bestBid + 1
		} else {
			priceCents = 100 - bestAsk + 1
		}
		priceCents = clampPrice(priceCents)
	}

	if g := priceGuard(side, priceCents, tun); g != nil {
		st.lastAction = "price guard - holding"
		c.logGuard(g)
		return nil
	}
	if g := exposureGuard(st.exposure, st.balance, tun); g != nil {
		st.lastAction = "max exposure reached"
		c.logGuard(g)
		return nil
	}

	// Re-fetch positions after the cancel: fills may have landed since.
	positions, err := c.executor.Positions(ctx)
	if err != nil {
		st.lastAction = "positions refetch failed"
		return err
	}
	var heldQty int64
	st.position = nil
	for _, p := range positions {
		if p.Ticker == ticker {
			st.position = p
			heldQty = p.Quantity
		}
	}

	qty := orderSize(st.balance, priceCents, heldQty, tun)
	if qty <= 0 {
		st.lastAction = fmt.Sprintf("max position reached (%d held)", heldQty)
		c.logGuard(blocked("position", "%d contracts held, no capacity", heldQty))
		return nil
	}

	result, err := c.executor.Buy(ctx, ticker, side, priceCents, qty)
	if err != nil {
		st.lastAction = "order rejected"
		c.logEvent("ERROR", "entry", fmt.Sprintf("order rejected: %v", err))
		return nil
	}
	st.lastAction = fmt.Sprintf("placed %s @ %dc x%d", side, priceCents, qty)
	c.logEvent("TRADE", "entry", fmt.Sprintf("placed %s @ %dc x%d on %s", side, priceCents, qty, ticker))
	if !c.paper {
		c.recordFill(ticker, string(side), "buy", result.FilledCount, priceCents)
	}

	// Passive orders get one shot at a reprice if still resting.
	if !extreme && !result.Filled() && !c.paper {
		c.waitAndReprice(ctx, st, ticker, side, priceCents, result)
	}
	return nil
}

// waitAndReprice waits briefly for a fill, then cancels and re-places one
// cent more aggressive for whatever remains.
func (c *Cycle) waitAndReprice(ctx context.Context, st *cycleState, ticker string, side domain.Side, priceCents int64, placed *OrderResult) {
	select {
	case <-ctx.Done():
		return
	case <-time.After(fillWait):
	}

	order, err := c.executor.Order(ctx, placed.OrderID)
	if err != nil {
		c.logger.Warn("fill check failed", zap.String("order_id", placed.OrderID), zap.Error(err))
		return
	}
	if order.Status != "resting" || order.RemainingCount <= 0 {
		return
	}

	if err := c.executor.Cancel(ctx, placed.OrderID); err != nil {
		c.logger.Warn("cancel before reprice failed", zap.String("order_id", placed.OrderID), zap.Error(err))
	}

	newPrice := clampPrice(priceCents + 1)
	retry, err := c.executor.Buy(ctx, ticker, side, newPrice, order.RemainingCount)
	if err != nil {
		c.logger.Warn("reprice retry rejected", zap.Error(err))
		return
	}
	st.lastAction = fmt.Sprintf("retry %s @ %dc x%d", side, newPrice, order.RemainingCount)
	c.logEvent("TRADE", "entry", fmt.Sprintf("repriced %s @ %dc x%d on %s", side, newPrice, order.RemainingCount, ticker))
	if !c.paper {
		c.recordFill(ticker, string(side), "buy", retry.FilledCount, newPrice)
	}
}

// publish rewrites the whole status snapshot from the cycle state.
func (c *Cycle) publish(st *cycleState) {
	if c.status == nil {
		return
	}

	snap := c.book.Snapshot()
	connected, total := c.book.Connected()
	status := domain.CycleStatus{
		Running:     true,
		CycleCount:  c.cycleCount,
		Balance:     centsToDollars(decimal.NewFromInt(st.balance)),
		DayPnL:      centsToDollars(st.dayPnL),
		PositionPnL: centsToDollars(st.posPnL),
		LastAction:  st.lastAction,
		Paper:       c.paper,
		Signals: domain.SignalState{
			WeightedPrice:       snap.WeightedGlobalPrice,
			LeadLagSpread:       snap.LeadLagSpread,
			Momentum:            st.eval.Momentum,
			Baseline:            st.eval.Baseline,
			ProjectedSettlement: st.eval.Projected,
			ExchangesConnected:  connected,
			ExchangesTotal:      total,
			Override:            st.eval.Override,
			Signal:              string(st.eval.Direction),
			SignalDiff:          st.eval.Diff,
		},
	}
	if st.position != nil {
		status.ActivePosition = st.position
	}
	if st.market != nil {
		status.CurrentMarket = st.market.Ticker
		status.MarketTitle = st.market.Title
		status.StrikePrice = st.market.Strike
		status.SecondsToClose = st.market.SecondsToClose
		status.CloseTime = st.market.CloseTime
	}
	if st.decision != nil {
		status.LastDecision = st.decision
	}
	if st.book != nil {
		yesDepth, noDepth := st.book.Depth()
		status.Orderbook = domain.OrderbookSummary{
			BestBid:  st.book.BestBid(),
			BestAsk:  st.book.BestAsk(),
			Spread:   st.book.Spread(),
			YesDepth: yesDepth,
			NoDepth:  noDepth,
		}
	}
	c.status.Publish(status)
}

func (c *Cycle) logGuard(g *guardResult) {
	c.logger.Info("guard blocked entry", zap.String("guard", g.Guard), zap.String("reason", g.Reason))
	c.logEvent("GUARD", g.Guard, g.Reason)
}

func (c *Cycle) logEvent(level, source, message string) {
	if c.events == nil {
		return
	}
	if err := c.events.Save(events.Event{Level: level, Source: source, Message: message}); err != nil {
		c.logger.Error("event log write failed", zap.Error(err))
	}
}

func (c *Cycle) recordDecision(ticker string, d domain.Decision, source string) {
	if c.trades == nil {
		return
	}
	reasoning := d.Reasoning
	if source != "" {
		reasoning = fmt.Sprintf("[%s] %s", source, reasoning)
	}
	if err := c.trades.SaveDecision(trades.Decision{
		Ticker:     ticker,
		Decision:   string(d.Decision),
		Confidence: d.Confidence,
		Reasoning:  reasoning,
	}); err != nil {
		c.logger.Error("decision record failed", zap.Error(err))
	}
}

// recordFill writes live fills to the trade history; the paper executor
// records its own.
func (c *Cycle) recordFill(ticker, side, action string, filled, priceCents int64) {
	if c.trades == nil || filled <= 0 {
		return
	}
	if err := c.trades.SaveTrade(trades.Trade{
		Ticker:     ticker,
		Side:       side,
		Action:     action,
		Count:      filled,
		PriceCents: priceCents,
	}); err != nil {
		c.logger.Error("trade record failed", zap.Error(err))
	}
}

func centsToDollars(cents decimal.Decimal) string {
	return cents.Div(decimal.NewFromInt(100)).StringFixed(2)
}
