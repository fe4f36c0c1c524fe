package trading

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/transdsign-boop/kalshibot/internal/domain"
	"github.com/transdsign-boop/kalshibot/internal/kalshi"
	"github.com/transdsign-boop/kalshibot/internal/storage/settings"
	"github.com/transdsign-boop/kalshibot/internal/storage/trades"
	"github.com/transdsign-boop/kalshibot/pkg/retrier"
)

const (
	paperStateKey       = "paper_account"
	settleAttempts      = 6 // retries after the first attempt, 7 tries total
	settleRetryInterval = 15 * time.Second
	winnerPayoutCents   = 100
)

// resultResolver fetches a market's settlement result from the venue.
type resultResolver interface {
	MarketByTicker(ctx context.Context, ticker string) (*kalshi.Market, error)
}

// settlementProjector estimates the end-of-minute settlement price when the
// venue has not published a result yet.
type settlementProjector interface {
	ProjectSettlement(strike, secondsRemaining float64) (yesWins bool, projected float64)
}

// PaperExecutor simulates fills at the requested limit price against a
// virtual balance. Real market data drives it; nothing is sent to the venue.
type PaperExecutor struct {
	resolver  resultResolver
	projector settlementProjector
	store     *settings.Store
	trades    *trades.WALStore
	logger    *zap.Logger

	mu        sync.Mutex
	balance   decimal.Decimal // cents
	positions map[string]*domain.Position
}

type paperState struct {
	BalanceCents string                  `json:"balance_cents"`
	Positions    map[string]paperHolding `json:"positions"`
}

type paperHolding struct {
	Side          string `json:"side"`
	Quantity      int64  `json:"quantity"`
	AvgPriceCents string `json:"avg_price_cents"`
	ExposureCents string `json:"exposure_cents"`
}

// NewPaperExecutor builds the simulator with the given starting balance in
// cents, restoring any persisted state first.
func NewPaperExecutor(startingCents int64, resolver resultResolver, projector settlementProjector,
	store *settings.Store, tradeLog *trades.WALStore, logger *zap.Logger) (*PaperExecutor, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	e := &PaperExecutor{
		resolver:  resolver,
		projector: projector,
		store:     store,
		trades:    tradeLog,
		logger:    logger,
		balance:   decimal.NewFromInt(startingCents),
		positions: make(map[string]*domain.Position),
	}
	if err := e.restore(); err != nil {
		return nil, err
	}
	return e, nil
}

func (e *PaperExecutor) restore() error {
	if e.store == nil {
		return nil
	}
	var state paperState
	err := e.store.Get(paperStateKey, &state)
	if err != nil {
		if errors.Is(err, settings.ErrNotFound) {
			return nil
		}
		return errors.Wrap(err, "restore paper state")
	}

	balance, err := decimal.NewFromString(state.BalanceCents)
	if err != nil {
		return errors.Wrap(err, "decode paper balance")
	}
	e.balance = balance

	for ticker, h := range state.Positions {
		avg, err := decimal.NewFromString(h.AvgPriceCents)
		if err != nil {
			return errors.Wrapf(err, "decode paper position %s", ticker)
		}
		exposure, err := decimal.NewFromString(h.ExposureCents)
		if err != nil {
			return errors.Wrapf(err, "decode paper position %s", ticker)
		}
		e.positions[ticker] = &domain.Position{
			Ticker:        ticker,
			Side:          domain.Side(h.Side),
			Quantity:      h.Quantity,
			AvgPriceCents: avg,
			ExposureCents: exposure,
		}
	}

	e.logger.Info("restored paper state",
		zap.String("balance_cents", e.balance.String()),
		zap.Int("positions", len(e.positions)))
	return nil
}

// persistLocked writes the current state through the settings store.
func (e *PaperExecutor) persistLocked() {
	if e.store == nil {
		return
	}
	state := paperState{
		BalanceCents: e.balance.String(),
		Positions:    make(map[string]paperHolding, len(e.positions)),
	}
	for ticker, p := range e.positions {
		state.Positions[ticker] = paperHolding{
			Side:          string(p.Side),
			Quantity:      p.Quantity,
			AvgPriceCents: p.AvgPriceCents.String(),
			ExposureCents: p.ExposureCents.String(),
		}
	}
	if err := e.store.Put(paperStateKey, state); err != nil {
		e.logger.Error("persist paper state failed", zap.Error(err))
	}
}

func (e *PaperExecutor) Balance(ctx context.Context) (int64, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.balance.IntPart(), nil
}

func (e *PaperExecutor) Positions(ctx context.Context) ([]*domain.Position, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]*domain.Position, 0, len(e.positions))
	for _, p := range e.positions {
		clone := *p
		out = append(out, &clone)
	}
	return out, nil
}

// Buy fills instantly at the limit price. An order the balance cannot cover
// is rejected with no state change.
func (e *PaperExecutor) Buy(ctx context.Context, ticker string, side domain.Side, priceCents, count int64) (*OrderResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	cost := decimal.NewFromInt(priceCents * count)
	if cost.GreaterThan(e.balance) {
		return nil, errors.Errorf("insufficient paper balance: need %sc, have %sc", cost, e.balance)
	}
	if count <= 0 || priceCents <= 0 || priceCents >= 100 {
		return nil, errors.Errorf("invalid paper order: %d @ %dc", count, priceCents)
	}

	e.balance = e.balance.Sub(cost)

	pos, held := e.positions[ticker]
	switch {
	case !held:
		opened, err := domain.NewPosition(ticker, side, priceCents, count)
		if err != nil {
			e.balance = e.balance.Add(cost)
			return nil, err
		}
		e.positions[ticker] = opened
	case pos.Side == side:
		pos.AddFill(priceCents, count)
	default:
		// Opposite side nets the position down.
		pos.Reduce(count)
		if pos.Quantity == 0 {
			delete(e.positions, ticker)
		}
	}

	e.persistLocked()
	e.logger.Info("paper buy",
		zap.String("ticker", ticker),
		zap.String("side", string(side)),
		zap.Int64("count", count),
		zap.Int64("price_cents", priceCents),
		zap.String("balance_cents", e.balance.String()))
	e.recordTrade(ticker, string(side), "buy", count, priceCents, "")

	return &OrderResult{
		OrderID:     fmt.Sprintf("paper-%d", time.Now().UnixMilli()),
		Status:      "filled",
		FilledCount: count,
	}, nil
}

// Sell closes min(count, held) contracts at the limit price. Selling with no
// position is an error.
func (e *PaperExecutor) Sell(ctx context.Context, ticker string, side domain.Side, priceCents, count int64) (*OrderResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	pos, held := e.positions[ticker]
	if !held || pos.Quantity <= 0 {
		return nil, errors.Errorf("no paper position to close for %s", ticker)
	}

	sold := pos.Reduce(count)
	proceeds := decimal.NewFromInt(priceCents * sold)
	e.balance = e.balance.Add(proceeds)
	if pos.Quantity == 0 {
		delete(e.positions, ticker)
	}

	e.persistLocked()
	e.logger.Info("paper sell",
		zap.String("ticker", ticker),
		zap.String("side", string(side)),
		zap.Int64("count", sold),
		zap.Int64("price_cents", priceCents),
		zap.String("balance_cents", e.balance.String()))
	e.recordTrade(ticker, string(side), "sell", sold, priceCents, "")

	return &OrderResult{
		OrderID:     fmt.Sprintf("paper-sell-%d", time.Now().UnixMilli()),
		Status:      "filled",
		FilledCount: sold,
	}, nil
}

// Order reports paper orders as already filled.
func (e *PaperExecutor) Order(ctx context.Context, orderID string) (*OrderResult, error) {
	return &OrderResult{OrderID: orderID, Status: "filled"}, nil
}

func (e *PaperExecutor) Cancel(ctx context.Context, orderID string) error { return nil }

func (e *PaperExecutor) CancelAll(ctx context.Context) {}

// SettleExpired resolves every position not on the active ticker. The venue
// takes about a minute to publish a result after close, so the result fetch
// retries on a fixed interval before falling back to the projection.
func (e *PaperExecutor) SettleExpired(ctx context.Context, activeTicker string) {
	e.mu.Lock()
	var expired []string
	for ticker := range e.positions {
		if ticker != activeTicker {
			expired = append(expired, ticker)
		}
	}
	e.mu.Unlock()

	for _, ticker := range expired {
		e.settle(ctx, ticker)
	}
}

func (e *PaperExecutor) settle(ctx context.Context, ticker string) {
	result, market := e.fetchResult(ctx, ticker)

	e.mu.Lock()
	defer e.mu.Unlock()

	pos, ok := e.positions[ticker]
	if !ok {
		return
	}

	var settleCents int64
	switch {
	case result != "":
		if domain.Side(result) == pos.Side {
			settleCents = winnerPayoutCents
		}
	case e.projector != nil && market != nil:
		strike := domain.ExtractStrike(market.FloorStrike, market.StrikePrice, market.YesSubTitle, market.Title)
		if strike > 0 {
			yesWins, projected := e.projector.ProjectSettlement(strike, 0)
			if (yesWins && pos.Side == domain.SideYes) || (!yesWins && pos.Side == domain.SideNo) {
				settleCents = winnerPayoutCents
			}
			e.logger.Info("settling on projection",
				zap.String("ticker", ticker),
				zap.Float64("projected", projected),
				zap.Float64("strike", strike),
				zap.Bool("yes_wins", yesWins))
		}
	}

	payout := decimal.NewFromInt(settleCents * pos.Quantity)
	pnl := payout.Sub(pos.ExposureCents)
	e.balance = e.balance.Add(payout)
	delete(e.positions, ticker)
	e.persistLocked()

	e.logger.Info("paper settled",
		zap.String("ticker", ticker),
		zap.String("side", string(pos.Side)),
		zap.Int64("quantity", pos.Quantity),
		zap.String("result", result),
		zap.String("payout_cents", payout.String()),
		zap.String("pnl_cents", pnl.String()))
	e.recordTrade(ticker, string(pos.Side), "settle", pos.Quantity, settleCents, pnl.String())
}

// fetchResult polls the venue for the market result, returning the raw
// result string ("yes"/"no", empty if never published) and the last market
// payload seen.
func (e *PaperExecutor) fetchResult(ctx context.Context, ticker string) (string, *kalshi.Market) {
	if e.resolver == nil {
		return "", nil
	}

	var market *kalshi.Market
	poll := retrier.New(
		retrier.WithMaxRetries(settleAttempts),
		retrier.WithInitialInterval(settleRetryInterval),
		retrier.WithMultiplier(1),
		retrier.WithJitter(0),
	)
	err := poll.Do(ctx, func(ctx context.Context) error {
		m, err := e.resolver.MarketByTicker(ctx, ticker)
		if err != nil {
			e.logger.Warn("settlement result fetch failed", zap.String("ticker", ticker), zap.Error(err))
			return err
		}
		market = m
		if m.Result == "" {
			return errors.New("result not published yet")
		}
		return nil
	})
	if err != nil || market == nil {
		return "", market
	}
	return market.Result, market
}

func (e *PaperExecutor) recordTrade(ticker, side, action string, count, priceCents int64, pnl string) {
	if e.trades == nil {
		return
	}
	if err := e.trades.SaveTrade(trades.Trade{
		Ticker:     ticker,
		Side:       side,
		Action:     action,
		Count:      count,
		PriceCents: priceCents,
		PnLCents:   pnl,
	}); err != nil {
		e.logger.Error("record paper trade failed", zap.Error(err))
	}
}
