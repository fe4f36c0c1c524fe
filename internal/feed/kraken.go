package feed

import "encoding/json"

const krakenWSURL = "wss://ws.kraken.com"

// NewKrakenStream streams XBT/USD spot tickers from Kraken.
func NewKrakenStream() Stream {
	return &rawStream{
		exchange: "kraken",
		url:      krakenWSURL,
		subscribe: []any{
			map[string]any{
				"event":        "subscribe",
				"pair":         []string{"XBT/USD"},
				"subscription": map[string]string{"name": "ticker"},
			},
		},
		parse: parseKrakenTicker,
	}
}

// Kraken ticker frames are arrays: [channelID, {"c": ["price", "lot"]}, "ticker", "XBT/USD"].
func parseKrakenTicker(msg []byte) (float64, bool) {
	var frame []json.RawMessage
	if err := json.Unmarshal(msg, &frame); err != nil || len(frame) < 2 {
		return 0, false
	}
	var body struct {
		Close []string `json:"c"`
	}
	if err := json.Unmarshal(frame[1], &body); err != nil || len(body.Close) == 0 {
		return 0, false
	}
	return parsePrice(body.Close[0])
}
