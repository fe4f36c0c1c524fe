package feed

import (
	"context"

	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
)

// rawStream is a gorilla/websocket feed for venues without an SDK in the
// stack: dial, optionally send subscribe payloads, then parse every frame
// into a last-trade price. Frames the parser can't use are dropped and the
// stream continues.
type rawStream struct {
	exchange  string
	url       string
	subscribe []any
	parse     func(msg []byte) (float64, bool)
}

func (s *rawStream) Exchange() string { return s.exchange }

func (s *rawStream) Run(ctx context.Context, h Handler) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, s.url, nil)
	if err != nil {
		return errors.Wrapf(err, "dial %s", s.url)
	}
	defer conn.Close()

	for _, payload := range s.subscribe {
		if err := conn.WriteJSON(payload); err != nil {
			return errors.Wrap(err, "send subscribe")
		}
	}

	h.OnConnected()

	// Unblock the read loop when ctx is cancelled.
	watchDone := make(chan struct{})
	defer close(watchDone)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-watchDone:
		}
	}()

	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return errors.Wrap(err, "read message")
		}
		if price, ok := s.parse(msg); ok && price > 0 {
			h.OnPrice(price)
		}
	}
}
