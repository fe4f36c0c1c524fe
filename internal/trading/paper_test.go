package trading

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/transdsign-boop/kalshibot/internal/domain"
	"github.com/transdsign-boop/kalshibot/internal/kalshi"
	"github.com/transdsign-boop/kalshibot/internal/storage/settings"
)

type fakeResolver struct {
	markets map[string]*kalshi.Market
}

func (f *fakeResolver) MarketByTicker(ctx context.Context, ticker string) (*kalshi.Market, error) {
	if m, ok := f.markets[ticker]; ok {
		return m, nil
	}
	return &kalshi.Market{Ticker: ticker}, nil
}

type fakeProjector struct {
	yesWins   bool
	projected float64
}

func (f *fakeProjector) ProjectSettlement(strike, secs float64) (bool, float64) {
	return f.yesWins, f.projected
}

func newPaper(t *testing.T, startCents int64) *PaperExecutor {
	t.Helper()
	exec, err := NewPaperExecutor(startCents, nil, nil, nil, nil, nil)
	require.NoError(t, err)
	return exec
}

func TestPaperBuyDebitsBalance(t *testing.T) {
	exec := newPaper(t, 10000) // $100
	ctx := context.Background()

	result, err := exec.Buy(ctx, "T", domain.SideYes, 50, 10)
	require.NoError(t, err)
	require.Equal(t, "filled", result.Status)

	balance, err := exec.Balance(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(9500), balance) // $95 after 10 x 50c

	positions, err := exec.Positions(ctx)
	require.NoError(t, err)
	require.Len(t, positions, 1)
	require.Equal(t, int64(10), positions[0].Quantity)
	require.Equal(t, "50", positions[0].AvgPriceCents.String())
}

func TestPaperBuyRejectsInsufficientBalance(t *testing.T) {
	exec := newPaper(t, 10000)
	ctx := context.Background()

	_, err := exec.Buy(ctx, "T", domain.SideYes, 50, 1000) // $500 order
	require.Error(t, err)

	// Rejection must not mutate anything.
	balance, _ := exec.Balance(ctx)
	require.Equal(t, int64(10000), balance)
	positions, _ := exec.Positions(ctx)
	require.Empty(t, positions)
}

func TestPaperSameSideAveraging(t *testing.T) {
	exec := newPaper(t, 10000)
	ctx := context.Background()

	_, err := exec.Buy(ctx, "T", domain.SideYes, 40, 10)
	require.NoError(t, err)
	_, err = exec.Buy(ctx, "T", domain.SideYes, 60, 10)
	require.NoError(t, err)

	positions, _ := exec.Positions(ctx)
	require.Len(t, positions, 1)
	require.Equal(t, int64(20), positions[0].Quantity)
	require.Equal(t, "50", positions[0].AvgPriceCents.String())
	require.True(t, positions[0].ExposureCents.Equal(decimal.NewFromInt(1000)))
}

func TestPaperOppositeSideNetting(t *testing.T) {
	exec := newPaper(t, 10000)
	ctx := context.Background()

	_, err := exec.Buy(ctx, "T", domain.SideYes, 40, 10)
	require.NoError(t, err)
	_, err = exec.Buy(ctx, "T", domain.SideNo, 55, 4)
	require.NoError(t, err)

	positions, _ := exec.Positions(ctx)
	require.Len(t, positions, 1)
	require.Equal(t, domain.SideYes, positions[0].Side)
	require.Equal(t, int64(6), positions[0].Quantity)

	// Netting the rest removes the position entirely.
	_, err = exec.Buy(ctx, "T", domain.SideNo, 55, 10)
	require.NoError(t, err)
	positions, _ = exec.Positions(ctx)
	require.Empty(t, positions)
}

func TestPaperSellClosesAtMostHeld(t *testing.T) {
	exec := newPaper(t, 10000)
	ctx := context.Background()

	_, err := exec.Buy(ctx, "T", domain.SideYes, 40, 10)
	require.NoError(t, err)

	result, err := exec.Sell(ctx, "T", domain.SideYes, 60, 25)
	require.NoError(t, err)
	require.Equal(t, int64(10), result.FilledCount, "sell is capped at the held quantity")

	balance, _ := exec.Balance(ctx)
	require.Equal(t, int64(10000-400+600), balance)

	_, err = exec.Sell(ctx, "T", domain.SideYes, 60, 1)
	require.Error(t, err, "selling with no position is rejected")
}

// Buying moves money from balance to exposure, so their sum is unchanged;
// selling changes the sum by exactly the realized profit.
func TestPaperAccountingIdentity(t *testing.T) {
	exec := newPaper(t, 10000)
	ctx := context.Background()

	sum := func() decimal.Decimal {
		balance, err := exec.Balance(ctx)
		require.NoError(t, err)
		total := decimal.NewFromInt(balance)
		positions, err := exec.Positions(ctx)
		require.NoError(t, err)
		for _, p := range positions {
			total = total.Add(p.ExposureCents)
		}
		return total
	}

	start := sum()
	buys := []struct {
		side  domain.Side
		price int64
		count int64
	}{
		{domain.SideYes, 35, 7},
		{domain.SideYes, 45, 3},
		{domain.SideYes, 52, 5},
	}
	for _, b := range buys {
		_, err := exec.Buy(ctx, "T", b.side, b.price, b.count)
		require.NoError(t, err)
		require.True(t, sum().Equal(start), "buys must keep balance+exposure constant")
	}

	// Sell 5 at 60c: realized = (60 - avg) * 5.
	positions, _ := exec.Positions(ctx)
	avg := positions[0].AvgPriceCents
	realized := decimal.NewFromInt(60).Sub(avg).Mul(decimal.NewFromInt(5))

	_, err := exec.Sell(ctx, "T", domain.SideYes, 60, 5)
	require.NoError(t, err)
	require.True(t, sum().Equal(start.Add(realized)),
		"sell must move balance+exposure by exactly the realized P&L")
}

func TestPaperSettleVenueResult(t *testing.T) {
	resolver := &fakeResolver{markets: map[string]*kalshi.Market{
		"OLD": {Ticker: "OLD", Result: "yes", FloorStrike: 83000},
	}}
	exec, err := NewPaperExecutor(10000, resolver, nil, nil, nil, nil)
	require.NoError(t, err)
	ctx := context.Background()

	_, err = exec.Buy(ctx, "OLD", domain.SideYes, 40, 10)
	require.NoError(t, err)

	exec.SettleExpired(ctx, "NEW")

	positions, _ := exec.Positions(ctx)
	require.Empty(t, positions, "settlement always removes the position")
	balance, _ := exec.Balance(ctx)
	// 10000 - 400 cost + 10 x 100c payout.
	require.Equal(t, int64(10600), balance)
}

func TestPaperSettleLoserPaysNothing(t *testing.T) {
	resolver := &fakeResolver{markets: map[string]*kalshi.Market{
		"OLD": {Ticker: "OLD", Result: "no"},
	}}
	exec, err := NewPaperExecutor(10000, resolver, nil, nil, nil, nil)
	require.NoError(t, err)
	ctx := context.Background()

	_, err = exec.Buy(ctx, "OLD", domain.SideYes, 40, 10)
	require.NoError(t, err)

	exec.SettleExpired(ctx, "NEW")

	positions, _ := exec.Positions(ctx)
	require.Empty(t, positions)
	balance, _ := exec.Balance(ctx)
	require.Equal(t, int64(9600), balance)
}

func TestPaperSettleProjectionFallback(t *testing.T) {
	// No result published; the projector says YES wins.
	resolver := &fakeResolver{markets: map[string]*kalshi.Market{
		"OLD": {Ticker: "OLD", FloorStrike: 83000},
	}}
	exec, err := NewPaperExecutor(10000, resolver, &fakeProjector{yesWins: true, projected: 83120}, nil, nil, nil)
	require.NoError(t, err)
	ctx := context.Background()

	_, err = exec.Buy(ctx, "OLD", domain.SideYes, 40, 10)
	require.NoError(t, err)

	// Cancelled context skips the retry waits; the resolver still answers
	// the first attempt, just without a result.
	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	exec.SettleExpired(cancelled, "NEW")

	positions, _ := exec.Positions(ctx)
	require.Empty(t, positions)
	balance, _ := exec.Balance(ctx)
	require.Equal(t, int64(10600), balance)
}

func TestPaperStateSurvivesRestart(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.json")
	store, err := settings.NewStore(path)
	require.NoError(t, err)

	exec, err := NewPaperExecutor(10000, nil, nil, store, nil, nil)
	require.NoError(t, err)
	ctx := context.Background()
	_, err = exec.Buy(ctx, "T", domain.SideYes, 45, 10)
	require.NoError(t, err)

	reopened, err := settings.NewStore(path)
	require.NoError(t, err)
	restored, err := NewPaperExecutor(10000, nil, nil, reopened, nil, nil)
	require.NoError(t, err)

	balance, _ := restored.Balance(ctx)
	require.Equal(t, int64(9550), balance)
	positions, _ := restored.Positions(ctx)
	require.Len(t, positions, 1)
	require.Equal(t, int64(10), positions[0].Quantity)
}
