// Package trading runs the per-poll decision cycle and executes orders,
// either live against the venue or simulated on paper.
package trading

import (
	"context"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/transdsign-boop/kalshibot/internal/domain"
	"github.com/transdsign-boop/kalshibot/internal/kalshi"
)

// OrderResult is what an execution attempt reports back to the cycle.
type OrderResult struct {
	OrderID        string
	Status         string
	FilledCount    int64
	RemainingCount int64
}

// Filled reports whether anything remains resting.
func (r *OrderResult) Filled() bool {
	return r != nil && r.RemainingCount == 0
}

// Executor is the order surface the trading cycle drives. Live and paper
// implementations share it so the cycle logic is identical in both modes.
type Executor interface {
	// Balance is the spendable account balance in cents.
	Balance(ctx context.Context) (int64, error)
	// Positions returns all open positions.
	Positions(ctx context.Context) ([]*domain.Position, error)
	// Buy places a limit buy for count contracts of side at priceCents.
	Buy(ctx context.Context, ticker string, side domain.Side, priceCents, count int64) (*OrderResult, error)
	// Sell closes up to count contracts of an existing position.
	Sell(ctx context.Context, ticker string, side domain.Side, priceCents, count int64) (*OrderResult, error)
	// Order fetches the current state of a resting order.
	Order(ctx context.Context, orderID string) (*OrderResult, error)
	// Cancel pulls a resting order.
	Cancel(ctx context.Context, orderID string) error
	// CancelAll pulls every resting order, best effort.
	CancelAll(ctx context.Context)
	// SettleExpired settles positions in markets other than activeTicker.
	// Live positions settle on the venue; only paper needs to act.
	SettleExpired(ctx context.Context, activeTicker string)
}

// LiveExecutor places real orders through the venue REST API.
type LiveExecutor struct {
	client *kalshi.Client
	logger *zap.Logger
}

// NewLiveExecutor wraps a venue client.
func NewLiveExecutor(client *kalshi.Client, logger *zap.Logger) *LiveExecutor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LiveExecutor{client: client, logger: logger}
}

func (e *LiveExecutor) Balance(ctx context.Context) (int64, error) {
	return e.client.Balance(ctx)
}

func (e *LiveExecutor) Positions(ctx context.Context) ([]*domain.Position, error) {
	raw, err := e.client.Positions(ctx)
	if err != nil {
		return nil, err
	}
	positions := make([]*domain.Position, 0, len(raw))
	for _, p := range raw {
		if pos := p.Domain(); pos != nil {
			positions = append(positions, pos)
		}
	}
	return positions, nil
}

func (e *LiveExecutor) Buy(ctx context.Context, ticker string, side domain.Side, priceCents, count int64) (*OrderResult, error) {
	return e.place(ctx, ticker, side, "buy", priceCents, count)
}

func (e *LiveExecutor) Sell(ctx context.Context, ticker string, side domain.Side, priceCents, count int64) (*OrderResult, error) {
	return e.place(ctx, ticker, side, "sell", priceCents, count)
}

func (e *LiveExecutor) place(ctx context.Context, ticker string, side domain.Side, action string, priceCents, count int64) (*OrderResult, error) {
	req := kalshi.OrderRequest{
		Ticker:        ticker,
		ClientOrderID: uuid.NewString(),
		Action:        action,
		Side:          string(side),
		Type:          "limit",
		Count:         count,
	}
	if side == domain.SideYes {
		req.YesPrice = priceCents
	} else {
		req.NoPrice = priceCents
	}

	order, err := e.client.PlaceOrder(ctx, req)
	if err != nil {
		return nil, errors.Wrapf(err, "%s %d %s @ %dc on %s", action, count, side, priceCents, ticker)
	}

	e.logger.Info("order placed",
		zap.String("ticker", ticker),
		zap.String("action", action),
		zap.String("side", string(side)),
		zap.Int64("price_cents", priceCents),
		zap.Int64("count", count),
		zap.String("status", order.Status))

	return &OrderResult{
		OrderID:        order.OrderID,
		Status:         order.Status,
		FilledCount:    order.FilledCount,
		RemainingCount: order.RemainingCount,
	}, nil
}

func (e *LiveExecutor) Order(ctx context.Context, orderID string) (*OrderResult, error) {
	order, err := e.client.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	return &OrderResult{
		OrderID:        order.OrderID,
		Status:         order.Status,
		FilledCount:    order.FilledCount,
		RemainingCount: order.RemainingCount,
	}, nil
}

func (e *LiveExecutor) Cancel(ctx context.Context, orderID string) error {
	return e.client.CancelOrder(ctx, orderID)
}

func (e *LiveExecutor) CancelAll(ctx context.Context) {
	e.client.CancelAllOrders(ctx)
}

// SettleExpired is a no-op live: the venue settles real positions itself.
func (e *LiveExecutor) SettleExpired(ctx context.Context, activeTicker string) {}
