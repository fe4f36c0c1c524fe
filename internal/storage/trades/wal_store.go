// Package trades persists executed trades and advisor decisions in a WAL so
// the session history survives restarts.
package trades

import (
	"encoding/json"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/vadiminshakov/gowal"
)

const (
	defaultTradesDir   = "./wal/trades"
	tradesSegmentLimit = 500
	tradesMaxSegments  = 10
	tradeKeyPrefix     = "trade_"
	decisionKeyPrefix  = "decision_"
)

// Trade is one executed order, paper or live.
type Trade struct {
	Ticker     string    `json:"ticker"`
	Side       string    `json:"side"`   // yes | no
	Action     string    `json:"action"` // buy | sell | settle
	Count      int64     `json:"count"`
	PriceCents int64     `json:"price_cents"`
	PnLCents   string    `json:"pnl_cents,omitempty"`
	At         time.Time `json:"at"`
}

// Decision is one advisor verdict, recorded whether or not it was acted on.
type Decision struct {
	Ticker     string    `json:"ticker"`
	Decision   string    `json:"decision"`
	Confidence float64   `json:"confidence"`
	Reasoning  string    `json:"reasoning"`
	At         time.Time `json:"at"`
}

// WALStore appends trades and decisions to one WAL, distinguished by key
// prefix.
type WALStore struct {
	wal *gowal.Wal
	mu  sync.RWMutex
}

// NewWALStore opens (or creates) the trade history under dir.
func NewWALStore(dir string) (*WALStore, error) {
	if dir == "" {
		dir = defaultTradesDir
	}

	wal, err := gowal.NewWAL(gowal.Config{
		Dir:              dir,
		Prefix:           "trade_",
		SegmentThreshold: tradesSegmentLimit,
		MaxSegments:      tradesMaxSegments,
		IsInSyncDiskMode: true,
	})
	if err != nil {
		return nil, errors.Wrap(err, "init trade WAL")
	}

	return &WALStore{wal: wal}, nil
}

// SaveTrade appends an executed trade.
func (s *WALStore) SaveTrade(trade Trade) error {
	if trade.Ticker == "" {
		return errors.New("trade ticker is required")
	}
	if trade.At.IsZero() {
		trade.At = time.Now()
	}
	return s.append(tradeKeyPrefix+trade.Ticker, trade)
}

// SaveDecision appends an advisor decision.
func (s *WALStore) SaveDecision(decision Decision) error {
	if decision.Ticker == "" {
		return errors.New("decision ticker is required")
	}
	if decision.At.IsZero() {
		decision.At = time.Now()
	}
	return s.append(decisionKeyPrefix+decision.Ticker, decision)
}

func (s *WALStore) append(key string, v any) error {
	if s == nil || s.wal == nil {
		return errors.New("trade store is not initialized")
	}

	payload, err := json.Marshal(v)
	if err != nil {
		return errors.Wrap(err, "marshal trade record")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	return s.wal.Write(s.wal.CurrentIndex()+1, key, payload)
}

// Trades returns every stored trade, oldest first.
func (s *WALStore) Trades() ([]Trade, error) {
	if s == nil || s.wal == nil {
		return nil, errors.New("trade store is not initialized")
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []Trade
	for idx := uint64(1); idx <= s.wal.CurrentIndex(); idx++ {
		key, payload, err := s.wal.Get(idx)
		if err != nil || payload == nil || !strings.HasPrefix(key, tradeKeyPrefix) {
			continue
		}
		var trade Trade
		if err := json.Unmarshal(payload, &trade); err != nil {
			return nil, errors.Wrap(err, "decode trade")
		}
		out = append(out, trade)
	}
	return out, nil
}

// Decisions returns every stored advisor decision, oldest first.
func (s *WALStore) Decisions() ([]Decision, error) {
	if s == nil || s.wal == nil {
		return nil, errors.New("trade store is not initialized")
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []Decision
	for idx := uint64(1); idx <= s.wal.CurrentIndex(); idx++ {
		key, payload, err := s.wal.Get(idx)
		if err != nil || payload == nil || !strings.HasPrefix(key, decisionKeyPrefix) {
			continue
		}
		var decision Decision
		if err := json.Unmarshal(payload, &decision); err != nil {
			return nil, errors.Wrap(err, "decode decision")
		}
		out = append(out, decision)
	}
	return out, nil
}

// Close closes the underlying WAL.
func (s *WALStore) Close() error {
	if s == nil || s.wal == nil {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	return s.wal.Close()
}
