package feed

import "encoding/json"

const deribitWSURL = "wss://www.deribit.com/ws/api/v2"

// NewDeribitStream streams BTC-PERPETUAL tickers from Deribit.
func NewDeribitStream() Stream {
	return &rawStream{
		exchange: "deribit",
		url:      deribitWSURL,
		subscribe: []any{
			map[string]any{
				"jsonrpc": "2.0",
				"id":      1,
				"method":  "public/subscribe",
				"params": map[string]any{
					"channels": []string{"ticker.BTC-PERPETUAL.100ms"},
				},
			},
		},
		parse: parseDeribitTicker,
	}
}

func parseDeribitTicker(msg []byte) (float64, bool) {
	var payload struct {
		Method string `json:"method"`
		Params struct {
			Data struct {
				LastPrice float64 `json:"last_price"`
			} `json:"data"`
		} `json:"params"`
	}
	if err := json.Unmarshal(msg, &payload); err != nil || payload.Method != "subscription" {
		return 0, false
	}
	return payload.Params.Data.LastPrice, payload.Params.Data.LastPrice > 0
}
