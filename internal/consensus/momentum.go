package consensus

import "time"

// DefaultWindow is the trailing window over which the momentum baseline is
// computed.
const DefaultWindow = 60 * time.Second

type windowEntry struct {
	at    time.Time
	value float64
}

// MomentumTracker keeps a trailing time window of lead-lag spread
// observations and derives momentum as the latest value's deviation from the
// window mean. Not safe for concurrent use; the consensus Book serializes
// access.
type MomentumTracker struct {
	window   time.Duration
	entries  []windowEntry
	baseline float64
	momentum float64
}

// NewMomentumTracker creates a tracker over the given trailing window.
func NewMomentumTracker(window time.Duration) *MomentumTracker {
	if window <= 0 {
		window = DefaultWindow
	}
	return &MomentumTracker{window: window}
}

// Observe appends a spread observation, trims entries older than the window,
// and recomputes baseline and momentum. With fewer than two entries the
// baseline equals the latest value and momentum is zero (cold-start safety).
func (m *MomentumTracker) Observe(now time.Time, value float64) {
	m.entries = append(m.entries, windowEntry{at: now, value: value})

	cutoff := now.Add(-m.window)
	keep := m.entries[:0]
	for _, e := range m.entries {
		if !e.at.Before(cutoff) {
			keep = append(keep, e)
		}
	}
	m.entries = keep

	if len(m.entries) < 2 {
		m.baseline = value
		m.momentum = 0
		return
	}

	var sum float64
	for _, e := range m.entries {
		sum += e.value
	}
	m.baseline = sum / float64(len(m.entries))
	m.momentum = value - m.baseline
}

// Momentum is the latest observation minus the rolling baseline. Positive
// means the lead side has moved up relative to its recent average.
func (m *MomentumTracker) Momentum() float64 { return m.momentum }

// Baseline is the mean of the current window.
func (m *MomentumTracker) Baseline() float64 { return m.baseline }

// Len returns the number of entries currently inside the window.
func (m *MomentumTracker) Len() int { return len(m.entries) }
