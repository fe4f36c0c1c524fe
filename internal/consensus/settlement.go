package consensus

import "time"

type bucketEntry struct {
	at    time.Time
	price float64
}

// SettlementProjector accumulates settlement-role prices into per-UTC-minute
// buckets and projects the time-weighted settlement average against the
// remaining contract time. Not safe for concurrent use; the consensus Book
// serializes access.
type SettlementProjector struct {
	bucket        []bucketEntry
	currentMinute int
	projected     float64
}

// NewSettlementProjector creates an empty projector.
func NewSettlementProjector() *SettlementProjector {
	return &SettlementProjector{currentMinute: -1}
}

// Record appends a settlement-role price to the current minute bucket,
// resetting the bucket on minute rollover.
func (p *SettlementProjector) Record(now time.Time, price float64) {
	minute := now.UTC().Minute()
	if minute != p.currentMinute {
		p.bucket = p.bucket[:0]
		p.currentMinute = minute
	}
	p.bucket = append(p.bucket, bucketEntry{at: now, price: price})

	var sum float64
	for _, e := range p.bucket {
		sum += e.price
	}
	p.projected = sum / float64(len(p.bucket))
}

// Project blends the bucket average so far with the reference price over the
// remaining seconds and reports whether the projected average beats the
// strike (YES wins). With no bucket data or no reference price it returns
// true: a deliberate no-action default, not a directional prediction.
func (p *SettlementProjector) Project(now time.Time, strike, secondsRemaining, refPrice float64) (bool, float64) {
	if len(p.bucket) == 0 || refPrice <= 0 {
		return true, p.projected
	}

	var sum float64
	for _, e := range p.bucket {
		sum += e.price
	}
	avgSoFar := sum / float64(len(p.bucket))

	elapsed := now.Sub(p.bucket[0].at).Seconds()
	if elapsed < 1 {
		elapsed = 1
	}
	remaining := secondsRemaining
	if remaining < 0 {
		remaining = 0
	}
	total := elapsed + remaining
	if total <= 0 {
		total = 1
	}

	projected := (avgSoFar*elapsed + refPrice*remaining) / total
	p.projected = projected
	return projected >= strike, projected
}

// Projected is the most recently computed settlement average.
func (p *SettlementProjector) Projected() float64 { return p.projected }
