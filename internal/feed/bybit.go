package feed

import (
	"context"

	bybit "github.com/hirokisan/bybit/v2"
	"github.com/pkg/errors"
)

// BybitStream streams linear BTCUSDT tickers through the exchange SDK's V5
// public websocket.
type BybitStream struct {
	symbol bybit.SymbolV5
}

// NewBybitStream streams BTCUSDT perpetual tickers from Bybit.
func NewBybitStream() *BybitStream {
	return &BybitStream{symbol: bybit.SymbolV5BTCUSDT}
}

func (s *BybitStream) Exchange() string { return "bybit" }

func (s *BybitStream) Run(ctx context.Context, h Handler) error {
	wsClient := bybit.NewWebsocketClient()
	svc, err := wsClient.V5().Public(bybit.CategoryV5Linear)
	if err != nil {
		return errors.Wrap(err, "open bybit public websocket")
	}

	_, err = svc.SubscribeTicker(
		bybit.V5WebsocketPublicTickerParamKey{Symbol: s.symbol},
		func(resp bybit.V5WebsocketPublicTickerResponse) error {
			if resp.Data.LinearInverse == nil {
				return nil
			}
			if price, ok := parsePrice(resp.Data.LinearInverse.LastPrice); ok {
				h.OnPrice(price)
			}
			return nil
		},
	)
	if err != nil {
		return errors.Wrap(err, "subscribe bybit ticker")
	}

	h.OnConnected()

	if err := svc.Start(ctx, nil); err != nil {
		return errors.Wrap(err, "bybit stream closed")
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return errors.New("bybit stream closed")
}
