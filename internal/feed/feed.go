// Package feed maintains one reconnecting streaming connection per exchange
// and pushes last-trade prices into the consensus book.
package feed

import (
	"context"
	"math/rand"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/transdsign-boop/kalshibot/internal/consensus"
)

// Reconnect policy shared by every feed.
const (
	ReconnectBaseDelay = 1 * time.Second
	ReconnectMaxDelay  = 30 * time.Second
	ReconnectJitter    = 0.5 // fraction of the delay added as random jitter
)

// State is the feed connection lifecycle state.
type State int32

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	default:
		return "disconnected"
	}
}

// Handler receives lifecycle and price events from a stream attempt.
type Handler interface {
	// OnConnected fires once per attempt when the stream is established.
	OnConnected()
	// OnPrice delivers a last-trade price. Non-positive prices are dropped
	// upstream.
	OnPrice(price float64)
}

// Stream is the capability interface over one exchange connection: connect,
// deliver prices until the connection drops or ctx is cancelled, return the
// terminal error. Reconnection is the Runner's job, not the stream's.
type Stream interface {
	Exchange() string
	Run(ctx context.Context, h Handler) error
}

// Runner drives a single Stream through the reconnect state machine:
// disconnected -> connecting -> connected -> (error -> disconnected), with
// exponential backoff reset on every successful connect and jittered waits
// so feeds don't reconnect in lockstep.
type Runner struct {
	stream Stream
	book   *consensus.Book
	logger *zap.Logger

	state     atomic.Int32
	connected atomic.Bool // set when the current attempt reached connected

	rng func() float64
}

// NewRunner wires a stream to the consensus book.
func NewRunner(stream Stream, book *consensus.Book, logger *zap.Logger) *Runner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Runner{
		stream: stream,
		book:   book,
		logger: logger.With(zap.String("exchange", stream.Exchange())),
		rng:    rand.Float64,
	}
}

// State returns the current connection state.
func (r *Runner) State() State {
	return State(r.state.Load())
}

// OnConnected implements Handler.
func (r *Runner) OnConnected() {
	r.connected.Store(true)
	r.state.Store(int32(StateConnected))
	r.book.SetConnected(r.stream.Exchange(), true)
	r.logger.Info("feed connected")
}

// OnPrice implements Handler.
func (r *Runner) OnPrice(price float64) {
	r.book.SetPrice(r.stream.Exchange(), price)
}

// Run loops the stream until ctx is cancelled.
func (r *Runner) Run(ctx context.Context) {
	delay := ReconnectBaseDelay

	for {
		if ctx.Err() != nil {
			break
		}

		r.connected.Store(false)
		r.state.Store(int32(StateConnecting))

		err := r.stream.Run(ctx, r)

		r.state.Store(int32(StateDisconnected))
		r.book.SetConnected(r.stream.Exchange(), false)

		if ctx.Err() != nil {
			break
		}

		if r.connected.Load() {
			delay = ReconnectBaseDelay
		}

		wait := Jittered(delay, r.rng())
		r.logger.Warn("feed disconnected, reconnecting",
			zap.Error(err),
			zap.Duration("wait", wait))

		select {
		case <-ctx.Done():
			return
		case <-time.After(wait):
		}

		delay = NextDelay(delay)
	}

	r.state.Store(int32(StateDisconnected))
	r.book.SetConnected(r.stream.Exchange(), false)
}

// NextDelay doubles the reconnect delay up to the cap.
func NextDelay(delay time.Duration) time.Duration {
	delay *= 2
	if delay > ReconnectMaxDelay {
		delay = ReconnectMaxDelay
	}
	return delay
}

// Jittered adds a random fraction (at most ReconnectJitter) of the delay.
// frac must be in [0,1).
func Jittered(delay time.Duration, frac float64) time.Duration {
	return delay + time.Duration(float64(delay)*ReconnectJitter*frac)
}
