package domain

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func TestNewPositionRejectsBadInput(t *testing.T) {
	_, err := NewPosition("T", SideYes, 50, 0)
	require.Error(t, err)
	_, err = NewPosition("T", SideYes, 0, 1)
	require.Error(t, err)
	_, err = NewPosition("T", SideYes, 100, 1)
	require.Error(t, err)
}

func TestPositionExposureTracksFillCost(t *testing.T) {
	pos, err := NewPosition("T", SideYes, 40, 10)
	require.NoError(t, err)
	require.Equal(t, "400", pos.ExposureCents.String())

	pos.AddFill(60, 10)
	require.Equal(t, int64(20), pos.Quantity)
	require.Equal(t, "1000", pos.ExposureCents.String())
	require.Equal(t, "50", pos.AvgPriceCents.String())

	require.Equal(t, int64(5), pos.Reduce(5))
	require.Equal(t, "750", pos.ExposureCents.String())

	// Reduce past the holding caps at what is held and clears the exposure.
	require.Equal(t, int64(15), pos.Reduce(100))
	require.Zero(t, pos.Quantity)
	require.True(t, pos.ExposureCents.IsZero())
}

func TestPositionExposureExactWithUnevenAverage(t *testing.T) {
	// 7 at 35c, 3 at 45c, 5 at 52c: the average does not terminate in
	// decimal, but the cost basis stays the exact sum of the fills.
	pos, err := NewPosition("T", SideYes, 35, 7)
	require.NoError(t, err)
	pos.AddFill(45, 3)
	pos.AddFill(52, 5)

	require.Equal(t, int64(15), pos.Quantity)
	require.True(t, decimal.NewFromInt(640).Equal(pos.ExposureCents),
		"exposure %s, want exactly 640", pos.ExposureCents)

	// Closing the whole position leaves no residue.
	require.Equal(t, int64(15), pos.Reduce(15))
	require.True(t, pos.ExposureCents.IsZero())
}

func TestPositionMarkToMarket(t *testing.T) {
	yes, err := NewPosition("T", SideYes, 40, 10)
	require.NoError(t, err)
	require.Equal(t, "600", yes.MarkToMarket(60, 65).String())
	require.Equal(t, "200", yes.UnrealizedPnL(60, 65).String())

	no, err := NewPosition("T", SideNo, 30, 4)
	require.NoError(t, err)
	// NO is worth 100 minus the ask.
	require.Equal(t, "140", no.MarkToMarket(60, 65).String())
	require.Equal(t, "20", no.UnrealizedPnL(60, 65).String())
}

func TestPositionLossAndGain(t *testing.T) {
	pos, err := NewPosition("T", SideYes, 60, 10)
	require.NoError(t, err)

	require.Equal(t, "20", pos.LossPerContract(40, 45).String())
	require.Equal(t, "-10", pos.LossPerContract(70, 75).String(), "profit is negative loss")
	require.Equal(t, "-50", pos.GainPct(30).String())
	require.Equal(t, "50", pos.GainPct(90).String())
}
