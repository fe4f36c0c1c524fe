package consensus

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testSpecs() []ExchangeSpec {
	return []ExchangeSpec{
		{ID: "binance", Label: "Binance Futures", Weight: 0.35, Role: RoleLead},
		{ID: "bybit", Label: "Bybit Futures", Weight: 0.20, Role: RoleLead},
		{ID: "coinbase", Label: "Coinbase Spot", Weight: 0.18, Role: RoleSettlement},
		{ID: "okx", Label: "OKX Perpetual", Weight: 0.12, Role: RoleLead},
		{ID: "kraken", Label: "Kraken Spot", Weight: 0.08, Role: RoleSettlement},
		{ID: "deribit", Label: "Deribit Futures", Weight: 0.07, Role: RoleLead},
	}
}

func TestWeightedGlobalPrice(t *testing.T) {
	tests := []struct {
		name     string
		prices   map[string]float64
		expected float64
	}{
		{
			name:     "no prices",
			prices:   nil,
			expected: 0,
		},
		{
			name:     "single exchange",
			prices:   map[string]float64{"binance": 83000},
			expected: 83000,
		},
		{
			name:   "weights renormalized over connected subset",
			prices: map[string]float64{"binance": 83000, "coinbase": 82000},
			// (83000*0.35 + 82000*0.18) / (0.35+0.18)
			expected: (83000*0.35 + 82000*0.18) / 0.53,
		},
		{
			name: "all exchanges",
			prices: map[string]float64{
				"binance": 83100, "bybit": 83080, "coinbase": 83000,
				"okx": 83090, "kraken": 82990, "deribit": 83070,
			},
			expected: (83100*0.35 + 83080*0.20 + 83000*0.18 + 83090*0.12 + 82990*0.08 + 83070*0.07) / 1.0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			book := NewBook(testSpecs(), nil)
			for ex, p := range tt.prices {
				book.SetPrice(ex, p)
			}
			assert.InDelta(t, tt.expected, book.WeightedGlobalPrice(), 1e-9)
		})
	}
}

func TestLeadVsSettlement(t *testing.T) {
	book := NewBook(testSpecs(), nil)

	// Only lead prices known: spread undefined, everything zero.
	book.SetPrice("binance", 83200)
	lead, settle, spread := book.LeadVsSettlement()
	assert.Zero(t, lead)
	assert.Zero(t, settle)
	assert.Zero(t, spread)

	book.SetPrice("coinbase", 83000)
	lead, settle, spread = book.LeadVsSettlement()
	assert.InDelta(t, 83200, lead, 1e-9)
	assert.InDelta(t, 83000, settle, 1e-9)
	assert.InDelta(t, 200, spread, 1e-9)

	// Second lead venue shifts the weighted lead price.
	book.SetPrice("bybit", 83100)
	lead, _, _ = book.LeadVsSettlement()
	assert.InDelta(t, (83200*0.35+83100*0.20)/0.55, lead, 1e-9)
}

func TestSignalScenario(t *testing.T) {
	// Strike 83000, global 83200, threshold 75 -> BULLISH with diff 200.
	book := NewBook(testSpecs(), nil)
	for _, spec := range testSpecs() {
		book.SetPrice(spec.ID, 83200)
	}

	dir, diff := book.Signal(83000, 75)
	assert.Equal(t, DirectionBullish, dir)
	assert.InDelta(t, 200, diff, 1e-9)

	dir, diff = book.Signal(83400, 75)
	assert.Equal(t, DirectionBearish, dir)
	assert.InDelta(t, -200, diff, 1e-9)

	dir, _ = book.Signal(83250, 75)
	assert.Equal(t, DirectionNeutral, dir)

	empty := NewBook(testSpecs(), nil)
	dir, diff = empty.Signal(83000, 75)
	assert.Equal(t, DirectionNeutral, dir)
	assert.Zero(t, diff)
}

func TestDisconnectDropsContribution(t *testing.T) {
	book := NewBook(testSpecs(), nil)
	book.SetConnected("binance", true)
	book.SetConnected("coinbase", true)
	book.SetPrice("binance", 84000)
	book.SetPrice("coinbase", 82000)

	connected, total := book.Connected()
	assert.Equal(t, 2, connected)
	assert.Equal(t, 6, total)

	book.SetConnected("binance", false)
	assert.InDelta(t, 82000, book.WeightedGlobalPrice(), 1e-9)

	connected, _ = book.Connected()
	assert.Equal(t, 1, connected)
	require.False(t, book.IsConnected("binance"))
}
