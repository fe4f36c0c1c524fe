package consensus

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestProjectionDefaultsToYesWithNoData(t *testing.T) {
	p := NewSettlementProjector()
	yes, _ := p.Project(time.Now(), 83000, 300, 82000)
	assert.True(t, yes, "no bucket data must default to the no-action answer")
}

func TestProjectionBlendsTowardReference(t *testing.T) {
	p := NewSettlementProjector()
	now := time.Date(2026, 3, 1, 12, 30, 0, 0, time.UTC)

	p.Record(now, 82000)
	p.Record(now.Add(10*time.Second), 82000)

	// As seconds_remaining sweeps upward the projection moves monotonically
	// from avg_so_far toward ref_price, staying bounded between them.
	at := now.Add(20 * time.Second)
	prev := -1.0
	for _, secs := range []float64{0, 10, 60, 300, 3600, 86400} {
		_, projected := p.Project(at, 83000, secs, 84000)
		assert.GreaterOrEqual(t, projected, 82000.0)
		assert.LessOrEqual(t, projected, 84000.0)
		assert.GreaterOrEqual(t, projected, prev, "projection must be monotone in seconds_remaining")
		prev = projected
	}

	// With no time remaining the projection equals the accumulated average.
	_, projected := p.Project(at, 83000, 0, 84000)
	assert.InDelta(t, 82000, projected, 1e-9)
}

func TestProjectionVsStrike(t *testing.T) {
	p := NewSettlementProjector()
	now := time.Date(2026, 3, 1, 12, 30, 0, 0, time.UTC)
	p.Record(now, 83500)
	p.Record(now.Add(5*time.Second), 83500)

	yes, _ := p.Project(now.Add(10*time.Second), 83000, 30, 83500)
	assert.True(t, yes)

	no, _ := p.Project(now.Add(10*time.Second), 84000, 30, 83500)
	assert.False(t, no)
}

func TestMinuteRolloverResetsBucket(t *testing.T) {
	p := NewSettlementProjector()
	inMinute := time.Date(2026, 3, 1, 12, 30, 50, 0, time.UTC)
	p.Record(inMinute, 82000)
	p.Record(inMinute.Add(5*time.Second), 82100)

	next := time.Date(2026, 3, 1, 12, 31, 1, 0, time.UTC)
	p.Record(next, 90000)

	// Only the new minute's price remains.
	assert.InDelta(t, 90000, p.Projected(), 1e-9)
}
