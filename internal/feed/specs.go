package feed

import "github.com/transdsign-boop/kalshibot/internal/consensus"

// Specs is the static exchange roster: lead venues carry 74% of the weight
// (price discovery), settlement venues 26% (approximating the reference
// index the contracts settle against).
func Specs() []consensus.ExchangeSpec {
	return []consensus.ExchangeSpec{
		{ID: "binance", Label: "Binance Futures", Weight: 0.35, Role: consensus.RoleLead},
		{ID: "bybit", Label: "Bybit Futures", Weight: 0.20, Role: consensus.RoleLead},
		{ID: "coinbase", Label: "Coinbase Spot", Weight: 0.18, Role: consensus.RoleSettlement},
		{ID: "okx", Label: "OKX Perpetual", Weight: 0.12, Role: consensus.RoleLead},
		{ID: "kraken", Label: "Kraken Spot", Weight: 0.08, Role: consensus.RoleSettlement},
		{ID: "deribit", Label: "Deribit Futures", Weight: 0.07, Role: consensus.RoleLead},
	}
}

// Streams builds the full set of exchange streams.
func Streams() []Stream {
	return []Stream{
		NewBinanceStream(),
		NewBybitStream(),
		NewCoinbaseStream(),
		NewOKXStream(),
		NewKrakenStream(),
		NewDeribitStream(),
	}
}
