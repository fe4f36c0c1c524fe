package feed

import "encoding/json"

const okxWSURL = "wss://ws.okx.com:8443/ws/v5/public"

// NewOKXStream streams BTC-USDT-SWAP tickers from OKX.
func NewOKXStream() Stream {
	return &rawStream{
		exchange: "okx",
		url:      okxWSURL,
		subscribe: []any{
			map[string]any{
				"op": "subscribe",
				"args": []map[string]string{
					{"channel": "tickers", "instId": "BTC-USDT-SWAP"},
				},
			},
		},
		parse: parseOKXTicker,
	}
}

func parseOKXTicker(msg []byte) (float64, bool) {
	var payload struct {
		Data []struct {
			Last string `json:"last"`
		} `json:"data"`
	}
	if err := json.Unmarshal(msg, &payload); err != nil || len(payload.Data) == 0 {
		return 0, false
	}
	return parsePrice(payload.Data[0].Last)
}
