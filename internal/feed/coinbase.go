package feed

import "encoding/json"

const coinbaseWSURL = "wss://ws-feed.exchange.coinbase.com"

// NewCoinbaseStream streams BTC-USD spot tickers from Coinbase, the primary
// settlement-role venue.
func NewCoinbaseStream() Stream {
	return &rawStream{
		exchange: "coinbase",
		url:      coinbaseWSURL,
		subscribe: []any{
			map[string]any{
				"type":        "subscribe",
				"product_ids": []string{"BTC-USD"},
				"channels":    []string{"ticker"},
			},
		},
		parse: parseCoinbaseTicker,
	}
}

func parseCoinbaseTicker(msg []byte) (float64, bool) {
	var payload struct {
		Type  string `json:"type"`
		Price string `json:"price"`
	}
	if err := json.Unmarshal(msg, &payload); err != nil || payload.Type != "ticker" {
		return 0, false
	}
	return parsePrice(payload.Price)
}
