package feed

import (
	"context"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"

	"github.com/transdsign-boop/kalshibot/internal/consensus"
)

func TestBackoffSequenceNonDecreasingAndCapped(t *testing.T) {
	// delay_n = min(base * 2^n, cap), ignoring jitter.
	delay := ReconnectBaseDelay
	var seq []time.Duration
	for i := 0; i < 10; i++ {
		seq = append(seq, delay)
		delay = NextDelay(delay)
	}

	for i := 1; i < len(seq); i++ {
		assert.GreaterOrEqual(t, seq[i], seq[i-1])
		assert.LessOrEqual(t, seq[i], ReconnectMaxDelay)
	}
	assert.Equal(t, ReconnectBaseDelay, seq[0])
	assert.Equal(t, 2*ReconnectBaseDelay, seq[1])
	assert.Equal(t, ReconnectMaxDelay, seq[len(seq)-1])
}

func TestJitterBounded(t *testing.T) {
	delay := 8 * time.Second
	assert.Equal(t, delay, Jittered(delay, 0))
	// Jitter is at most 50% of the delay.
	assert.Less(t, Jittered(delay, 0.999), delay+delay/2+time.Millisecond)
	assert.GreaterOrEqual(t, Jittered(delay, 0.5), delay)
}

type scriptedStream struct {
	connects int
	prices   []float64
	failures int
}

func (s *scriptedStream) Exchange() string { return "scripted" }

func (s *scriptedStream) Run(_ context.Context, h Handler) error {
	if s.failures > 0 {
		s.failures--
		return errors.New("connect refused")
	}
	s.connects++
	h.OnConnected()
	for _, p := range s.prices {
		h.OnPrice(p)
	}
	return errors.New("stream closed")
}

func TestRunnerMarksConnectionAndFeedsBook(t *testing.T) {
	book := consensus.NewBook([]consensus.ExchangeSpec{
		{ID: "scripted", Weight: 1, Role: consensus.RoleLead},
	}, nil)
	stream := &scriptedStream{prices: []float64{83000}}
	runner := NewRunner(stream, book, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		runner.Run(ctx)
		close(done)
	}()

	assert.Eventually(t, func() bool {
		return stream.connects >= 1
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("runner did not stop on cancel")
	}

	// Once the runner exits the feed is marked disconnected and its price
	// no longer contributes.
	assert.False(t, book.IsConnected("scripted"))
	assert.Zero(t, book.WeightedGlobalPrice())
	assert.Equal(t, StateDisconnected, runner.State())
}
