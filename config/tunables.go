package config

import (
	"strconv"
	"strings"
	"sync"

	"github.com/pkg/errors"

	"github.com/transdsign-boop/kalshibot/internal/storage/settings"
)

// Tunables are the trading parameters adjustable at runtime. Updates go
// through Apply, which returns a new value; a Tunables in flight through a
// trading cycle never changes under it.
type Tunables struct {
	TradingEnabled bool `json:"trading_enabled"`

	OrderSizePct        float64 `json:"order_size_pct"`
	MaxPositionPct      float64 `json:"max_position_pct"`
	MaxTotalExposurePct float64 `json:"max_total_exposure_pct"`
	MaxDailyLossPct     float64 `json:"max_daily_loss_pct"`

	MinSecondsToClose  int     `json:"min_seconds_to_close"`
	MaxSpreadCents     int     `json:"max_spread_cents"`
	MinAgentConfidence float64 `json:"min_agent_confidence"`
	MinContractPrice   int     `json:"min_contract_price"`
	MaxContractPrice   int     `json:"max_contract_price"`
	StopLossCents      int     `json:"stop_loss_cents"`

	ProfitTakePct     int `json:"profit_take_pct"`
	HitAndRunPct      int `json:"hit_and_run_pct"`
	FreeRollPrice     int `json:"free_roll_price"`
	ProfitTakeMinSecs int `json:"profit_take_min_secs"`
	HoldExpirySecs    int `json:"hold_expiry_secs"`

	LeadLagEnabled         bool    `json:"lead_lag_enabled"`
	LeadLagThreshold       float64 `json:"lead_lag_threshold"`
	DeltaThreshold         float64 `json:"delta_threshold"`
	ExtremeDeltaThreshold  float64 `json:"extreme_delta_threshold"`
	AnchorSecondsThreshold int     `json:"anchor_seconds_threshold"`

	PaperStartingBalance float64 `json:"paper_starting_balance"`
	PollIntervalSeconds  int     `json:"poll_interval_seconds"`
}

// DefaultTunables returns the shipped defaults.
func DefaultTunables() Tunables {
	return Tunables{
		TradingEnabled:         false,
		OrderSizePct:           5.0,
		MaxPositionPct:         15.0,
		MaxTotalExposurePct:    30.0,
		MaxDailyLossPct:        10.0,
		MinSecondsToClose:      90,
		MaxSpreadCents:         25,
		MinAgentConfidence:     0.75,
		MinContractPrice:       5,
		MaxContractPrice:       85,
		StopLossCents:          15,
		ProfitTakePct:          50,
		HitAndRunPct:           0,
		FreeRollPrice:          90,
		ProfitTakeMinSecs:      300,
		HoldExpirySecs:         120,
		LeadLagEnabled:         true,
		LeadLagThreshold:       75,
		DeltaThreshold:         20,
		ExtremeDeltaThreshold:  50,
		AnchorSecondsThreshold: 60,
		PaperStartingBalance:   100,
		PollIntervalSeconds:    10,
	}
}

type fieldKind int

const (
	kindBool fieldKind = iota
	kindInt
	kindFloat
)

type fieldSpec struct {
	kind     fieldKind
	min, max float64
	set      func(*Tunables, float64, bool)
}

// tunableFields maps update keys to their type, bounds and setter. Numeric
// values outside the bounds are clamped, not rejected.
var tunableFields = map[string]fieldSpec{
	"trading_enabled": {kind: kindBool, set: func(t *Tunables, _ float64, b bool) { t.TradingEnabled = b }},
	"order_size_pct":  {kind: kindFloat, min: 0.5, max: 50, set: func(t *Tunables, v float64, _ bool) { t.OrderSizePct = v }},
	"max_position_pct": {kind: kindFloat, min: 1, max: 100,
		set: func(t *Tunables, v float64, _ bool) { t.MaxPositionPct = v }},
	"max_total_exposure_pct": {kind: kindFloat, min: 1, max: 100,
		set: func(t *Tunables, v float64, _ bool) { t.MaxTotalExposurePct = v }},
	"max_daily_loss_pct": {kind: kindFloat, min: 1, max: 100,
		set: func(t *Tunables, v float64, _ bool) { t.MaxDailyLossPct = v }},
	"min_seconds_to_close": {kind: kindInt, min: 30, max: 600,
		set: func(t *Tunables, v float64, _ bool) { t.MinSecondsToClose = int(v) }},
	"max_spread_cents": {kind: kindInt, min: 1, max: 100,
		set: func(t *Tunables, v float64, _ bool) { t.MaxSpreadCents = int(v) }},
	"min_agent_confidence": {kind: kindFloat, min: 0, max: 1,
		set: func(t *Tunables, v float64, _ bool) { t.MinAgentConfidence = v }},
	"min_contract_price": {kind: kindInt, min: 1, max: 55,
		set: func(t *Tunables, v float64, _ bool) { t.MinContractPrice = int(v) }},
	"max_contract_price": {kind: kindInt, min: 50, max: 99,
		set: func(t *Tunables, v float64, _ bool) { t.MaxContractPrice = int(v) }},
	"stop_loss_cents": {kind: kindInt, min: 0, max: 50,
		set: func(t *Tunables, v float64, _ bool) { t.StopLossCents = int(v) }},
	"profit_take_pct": {kind: kindInt, min: 5, max: 500,
		set: func(t *Tunables, v float64, _ bool) { t.ProfitTakePct = int(v) }},
	"hit_and_run_pct": {kind: kindInt, min: 0, max: 500,
		set: func(t *Tunables, v float64, _ bool) { t.HitAndRunPct = int(v) }},
	"free_roll_price": {kind: kindInt, min: 75, max: 99,
		set: func(t *Tunables, v float64, _ bool) { t.FreeRollPrice = int(v) }},
	"profit_take_min_secs": {kind: kindInt, min: 60, max: 600,
		set: func(t *Tunables, v float64, _ bool) { t.ProfitTakeMinSecs = int(v) }},
	"hold_expiry_secs": {kind: kindInt, min: 30, max: 300,
		set: func(t *Tunables, v float64, _ bool) { t.HoldExpirySecs = int(v) }},
	"lead_lag_enabled": {kind: kindBool, set: func(t *Tunables, _ float64, b bool) { t.LeadLagEnabled = b }},
	"lead_lag_threshold": {kind: kindFloat, min: 5, max: 500,
		set: func(t *Tunables, v float64, _ bool) { t.LeadLagThreshold = v }},
	"delta_threshold": {kind: kindFloat, min: 5, max: 200,
		set: func(t *Tunables, v float64, _ bool) { t.DeltaThreshold = v }},
	"extreme_delta_threshold": {kind: kindFloat, min: 10, max: 500,
		set: func(t *Tunables, v float64, _ bool) { t.ExtremeDeltaThreshold = v }},
	"anchor_seconds_threshold": {kind: kindInt, min: 15, max: 120,
		set: func(t *Tunables, v float64, _ bool) { t.AnchorSecondsThreshold = int(v) }},
	"paper_starting_balance": {kind: kindFloat, min: 10, max: 100000,
		set: func(t *Tunables, v float64, _ bool) { t.PaperStartingBalance = v }},
	"poll_interval_seconds": {kind: kindInt, min: 5, max: 120,
		set: func(t *Tunables, v float64, _ bool) { t.PollIntervalSeconds = int(v) }},
}

// Apply returns a copy with the valid updates applied and the set of keys
// actually changed. Unknown keys and unparseable values are skipped.
func (t Tunables) Apply(updates map[string]string) (Tunables, map[string]string) {
	applied := make(map[string]string)
	for key, raw := range updates {
		spec, ok := tunableFields[key]
		if !ok {
			continue
		}
		switch spec.kind {
		case kindBool:
			b := strings.EqualFold(raw, "true") || raw == "1"
			spec.set(&t, 0, b)
			applied[key] = strconv.FormatBool(b)
		case kindInt:
			v, err := strconv.ParseFloat(raw, 64)
			if err != nil {
				continue
			}
			v = clamp(float64(int(v)), spec.min, spec.max)
			spec.set(&t, v, false)
			applied[key] = strconv.Itoa(int(v))
		case kindFloat:
			v, err := strconv.ParseFloat(raw, 64)
			if err != nil {
				continue
			}
			v = clamp(v, spec.min, spec.max)
			spec.set(&t, v, false)
			applied[key] = strconv.FormatFloat(v, 'f', -1, 64)
		}
	}
	return t, applied
}

func clamp(v, min, max float64) float64 {
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}

// TunableStore keeps the current Tunables value and persists overrides via
// a settings backend so they survive restarts.
type settingsBackend interface {
	Get(key string, out any) error
	Put(key string, value any) error
}

const tunablesKey = "tunable_overrides"

// TunableStore hands out immutable snapshots; Update swaps in a new value.
type TunableStore struct {
	mu        sync.RWMutex
	current   Tunables
	overrides map[string]string
	backend   settingsBackend
}

// NewTunableStore builds a store seeded from base, replaying any overrides
// persisted in the backend. A nil backend keeps overrides in memory only.
func NewTunableStore(base Tunables, backend settingsBackend) (*TunableStore, error) {
	s := &TunableStore{current: base, overrides: make(map[string]string), backend: backend}
	if backend == nil {
		return s, nil
	}

	var saved map[string]string
	err := backend.Get(tunablesKey, &saved)
	if err != nil {
		if errors.Is(err, settings.ErrNotFound) {
			return s, nil
		}
		return nil, errors.Wrap(err, "restore tunables")
	}
	s.current, _ = base.Apply(saved)
	s.overrides = saved
	return s, nil
}

// Snapshot returns the current value.
func (s *TunableStore) Snapshot() Tunables {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

// Update applies and persists the given overrides, returning what was
// actually applied after clamping.
func (s *TunableStore) Update(updates map[string]string) (map[string]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	next, applied := s.current.Apply(updates)
	if len(applied) == 0 {
		return applied, nil
	}
	for k, v := range applied {
		s.overrides[k] = v
	}
	s.current = next

	if s.backend != nil {
		if err := s.backend.Put(tunablesKey, s.overrides); err != nil {
			return applied, errors.Wrap(err, "persist tunables")
		}
	}
	return applied, nil
}
