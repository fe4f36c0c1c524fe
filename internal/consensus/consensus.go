// Package consensus aggregates per-exchange price feeds into a weighted
// reference price and the derived lead-lag, momentum, and settlement
// projection signals.
package consensus

import (
	"sync"
	"time"

	"go.uber.org/zap"
)

// Role marks how an exchange's price is used.
type Role string

const (
	// RoleLead marks high-volume venues whose price moves first.
	RoleLead Role = "lead"
	// RoleSettlement marks venues weighted to approximate the settlement index.
	RoleSettlement Role = "settlement"
)

// Direction is the lead-lag signal relative to a contract strike.
type Direction string

const (
	DirectionBullish Direction = "BULLISH"
	DirectionBearish Direction = "BEARISH"
	DirectionNeutral Direction = "NEUTRAL"
)

// ExchangeSpec is the static per-exchange configuration.
type ExchangeSpec struct {
	ID     string
	Label  string
	Weight float64
	Role   Role
}

// Sample is the latest observation for one exchange. Overwritten on every
// tick, marked disconnected rather than deleted.
type Sample struct {
	Exchange  string
	Label     string
	Price     float64
	Weight    float64
	Role      Role
	Connected bool
}

// Snapshot is the derived consensus view, recomputed on every price tick.
type Snapshot struct {
	WeightedGlobalPrice float64
	LeadPrice           float64
	SettlementPrice     float64
	LeadLagSpread       float64
}

// Book owns every exchange sample and derives the weighted consensus price.
// Feed goroutines are each the sole writer for their own sample; the lock
// only orders individual scalar overwrites against readers, there is no
// cross-feed atomicity and none is required.
type Book struct {
	mu       sync.RWMutex
	samples  map[string]*Sample
	order    []string
	momentum *MomentumTracker
	proj     *SettlementProjector

	// Highest-weight lead and settlement exchanges, used for the legacy
	// two-exchange delta when the role-weighted spread is unavailable.
	primaryLead   string
	primarySettle string

	logger *zap.Logger
}

// NewBook registers the exchange set and wires the derived signal trackers.
func NewBook(specs []ExchangeSpec, logger *zap.Logger) *Book {
	if logger == nil {
		logger = zap.NewNop()
	}
	b := &Book{
		samples:  make(map[string]*Sample, len(specs)),
		momentum: NewMomentumTracker(DefaultWindow),
		proj:     NewSettlementProjector(),
		logger:   logger,
	}
	var bestLead, bestSettle float64
	for _, spec := range specs {
		b.samples[spec.ID] = &Sample{
			Exchange: spec.ID,
			Label:    spec.Label,
			Weight:   spec.Weight,
			Role:     spec.Role,
		}
		b.order = append(b.order, spec.ID)
		switch spec.Role {
		case RoleLead:
			if spec.Weight > bestLead {
				bestLead = spec.Weight
				b.primaryLead = spec.ID
			}
		case RoleSettlement:
			if spec.Weight > bestSettle {
				bestSettle = spec.Weight
				b.primarySettle = spec.ID
			}
		}
	}
	return b
}

// SetPrice overwrites the exchange's sample and refreshes every derived
// signal. Ticks with non-positive prices are dropped.
func (b *Book) SetPrice(exchange string, price float64) {
	if price <= 0 {
		return
	}
	b.setPriceAt(exchange, price, time.Now())
}

func (b *Book) setPriceAt(exchange string, price float64, now time.Time) {
	b.mu.Lock()
	defer b.mu.Unlock()

	s, ok := b.samples[exchange]
	if !ok {
		return
	}
	s.Price = price

	if s.Role == RoleSettlement {
		b.proj.Record(now, price)
	}

	_, _, spread := b.leadVsSettlementLocked()

	// Momentum tracks the lead-lag spread, falling back to the legacy
	// two-exchange delta when a role subset is empty.
	value := spread
	if value == 0 {
		value = b.legacyDeltaLocked()
	}
	if value != 0 {
		b.momentum.Observe(now, value)
	}
}

// SetConnected flips the exchange's connection status. Prices from
// disconnected exchanges stop contributing to the consensus only once they
// go stale to zero; connection status itself is what operators watch.
func (b *Book) SetConnected(exchange string, connected bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if s, ok := b.samples[exchange]; ok {
		s.Connected = connected
		if !connected {
			s.Price = 0
		}
	}
}

// WeightedGlobalPrice is the weight-renormalized consensus over every
// exchange with a positive price. Zero when no exchange contributes.
func (b *Book) WeightedGlobalPrice() float64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.weightedLocked(func(*Sample) bool { return true })
}

func (b *Book) weightedLocked(include func(*Sample) bool) float64 {
	var sum, totalWeight float64
	for _, id := range b.order {
		s := b.samples[id]
		if s.Price <= 0 || !include(s) {
			continue
		}
		sum += s.Price * s.Weight
		totalWeight += s.Weight
	}
	if totalWeight <= 0 {
		return 0
	}
	return sum / totalWeight
}

// LeadVsSettlement returns the weighted lead price, weighted settlement
// price and their spread. All zero when either role subset is empty.
func (b *Book) LeadVsSettlement() (lead, settlement, spread float64) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.leadVsSettlementLocked()
}

func (b *Book) leadVsSettlementLocked() (lead, settlement, spread float64) {
	lead = b.weightedLocked(func(s *Sample) bool { return s.Role == RoleLead })
	settlement = b.weightedLocked(func(s *Sample) bool { return s.Role == RoleSettlement })
	if lead == 0 || settlement == 0 {
		return 0, 0, 0
	}
	return lead, settlement, lead - settlement
}

func (b *Book) legacyDeltaLocked() float64 {
	lead, ok := b.samples[b.primaryLead]
	if !ok || lead.Price <= 0 {
		return 0
	}
	settle, ok := b.samples[b.primarySettle]
	if !ok || settle.Price <= 0 {
		return 0
	}
	return lead.Price - settle.Price
}

// Signal compares the weighted global price to the strike with a USD
// threshold. Neutral when either price is unknown.
func (b *Book) Signal(strike, threshold float64) (Direction, float64) {
	global := b.WeightedGlobalPrice()
	if global == 0 || strike == 0 {
		return DirectionNeutral, 0
	}
	diff := global - strike
	switch {
	case diff > threshold:
		return DirectionBullish, diff
	case diff < -threshold:
		return DirectionBearish, diff
	default:
		return DirectionNeutral, diff
	}
}

// Momentum returns the current momentum and baseline values.
func (b *Book) Momentum() (momentum, baseline float64) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.momentum.Momentum(), b.momentum.Baseline()
}

// ProjectSettlement runs the settlement projector against the strike and
// remaining contract seconds. The reference price is the first connected
// settlement-role price, falling back to any live price.
func (b *Book) ProjectSettlement(strike, secondsRemaining float64) (yesWins bool, projected float64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	ref := 0.0
	for _, id := range b.order {
		s := b.samples[id]
		if s.Role == RoleSettlement && s.Price > 0 {
			ref = s.Price
			break
		}
	}
	if ref == 0 {
		for _, id := range b.order {
			if s := b.samples[id]; s.Price > 0 {
				ref = s.Price
				break
			}
		}
	}
	return b.proj.Project(time.Now(), strike, secondsRemaining, ref)
}

// ProjectedSettlement is the latest projected settlement average.
func (b *Book) ProjectedSettlement() float64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.proj.Projected()
}

// Snapshot returns the current derived consensus view.
func (b *Book) Snapshot() Snapshot {
	b.mu.RLock()
	defer b.mu.RUnlock()
	lead, settlement, spread := b.leadVsSettlementLocked()
	return Snapshot{
		WeightedGlobalPrice: b.weightedLocked(func(*Sample) bool { return true }),
		LeadPrice:           lead,
		SettlementPrice:     settlement,
		LeadLagSpread:       spread,
	}
}

// Connected reports how many exchanges are currently connected, and the
// total registered.
func (b *Book) Connected() (connected, total int) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, s := range b.samples {
		if s.Connected {
			connected++
		}
	}
	return connected, len(b.samples)
}

// IsConnected reports the connection status for one exchange.
func (b *Book) IsConnected(exchange string) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	s, ok := b.samples[exchange]
	return ok && s.Connected
}

// Samples returns a copy of every sample in registration order.
func (b *Book) Samples() []Sample {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]Sample, 0, len(b.order))
	for _, id := range b.order {
		out = append(out, *b.samples[id])
	}
	return out
}

// PrimaryFeedsConnected reports whether the highest-weight lead and
// settlement exchanges are both connected. Overrides stay disabled without
// them so a one-sided view never drives a trade.
func (b *Book) PrimaryFeedsConnected() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	lead, okLead := b.samples[b.primaryLead]
	settle, okSettle := b.samples[b.primarySettle]
	return okLead && okSettle && lead.Connected && settle.Connected
}
