package feed

import (
	"context"

	"github.com/adshao/go-binance/v2/futures"
	"github.com/pkg/errors"
)

// BinanceStream is the highest-weight lead feed, served through the
// exchange SDK's USD-M futures aggregated-trade socket. Futures trades
// lead spot on fast moves, which is the point of the lead price.
type BinanceStream struct {
	symbol string
}

// NewBinanceStream streams BTCUSDT perpetual aggregated trades from Binance.
func NewBinanceStream() *BinanceStream {
	return &BinanceStream{symbol: "BTCUSDT"}
}

func (s *BinanceStream) Exchange() string { return "binance" }

func (s *BinanceStream) Run(ctx context.Context, h Handler) error {
	errC := make(chan error, 1)

	doneC, stopC, err := futures.WsAggTradeServe(s.symbol,
		func(event *futures.WsAggTradeEvent) {
			if price, ok := parsePrice(event.Price); ok {
				h.OnPrice(price)
			}
		},
		func(err error) {
			select {
			case errC <- err:
			default:
			}
		},
	)
	if err != nil {
		return errors.Wrap(err, "open binance aggTrade stream")
	}

	h.OnConnected()

	select {
	case <-ctx.Done():
		close(stopC)
		<-doneC
		return ctx.Err()
	case <-doneC:
		select {
		case err := <-errC:
			return errors.Wrap(err, "binance stream closed")
		default:
			return errors.New("binance stream closed")
		}
	}
}
