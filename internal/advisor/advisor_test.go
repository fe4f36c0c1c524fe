package advisor

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/transdsign-boop/kalshibot/internal/domain"
)

func advisorResponding(t *testing.T, text string) *Client {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "test-key", r.Header.Get("x-api-key"))
		require.NotEmpty(t, r.Header.Get("anthropic-version"))
		json.NewEncoder(w).Encode(map[string]any{
			"content": []map[string]string{{"type": "text", "text": text}},
		})
	}))
	t.Cleanup(srv.Close)
	return NewClient(srv.URL, "test-key", "", zap.NewNop())
}

func TestDecideParsesDecision(t *testing.T) {
	client := advisorResponding(t, `{"decision":"BUY_YES","confidence":0.82,"reasoning":"trend up"}`)

	d := client.Decide(context.Background(), MarketContext{Ticker: "T"}, nil)
	require.Equal(t, domain.ActionBuyYes, d.Decision)
	require.InDelta(t, 0.82, d.Confidence, 1e-9)
}

func TestDecideStripsMarkdownFences(t *testing.T) {
	client := advisorResponding(t, "```json\n{\"decision\":\"BUY_NO\",\"confidence\":0.9,\"reasoning\":\"down\"}\n```")

	d := client.Decide(context.Background(), MarketContext{}, nil)
	require.Equal(t, domain.ActionBuyNo, d.Decision)
}

func TestDecideFailsClosed(t *testing.T) {
	tests := []struct {
		name  string
		setup func(t *testing.T) *Client
	}{
		{
			name: "malformed JSON",
			setup: func(t *testing.T) *Client {
				return advisorResponding(t, "the market looks bullish to me")
			},
		},
		{
			name: "invalid action",
			setup: func(t *testing.T) *Client {
				return advisorResponding(t, `{"decision":"SELL_EVERYTHING","confidence":0.9,"reasoning":"x"}`)
			},
		},
		{
			name: "http error",
			setup: func(t *testing.T) *Client {
				srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
					http.Error(w, `{"error":{"type":"overloaded_error","message":"busy"}}`, http.StatusServiceUnavailable)
				}))
				t.Cleanup(srv.Close)
				return NewClient(srv.URL, "test-key", "", zap.NewNop())
			},
		},
		{
			name: "missing api key",
			setup: func(t *testing.T) *Client {
				return NewClient("http://127.0.0.1:1", "", "", zap.NewNop())
			},
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			d := tc.setup(t).Decide(context.Background(), MarketContext{}, nil)
			require.Equal(t, domain.ActionHold, d.Decision)
			require.Zero(t, d.Confidence)
		})
	}
}

func TestDecideClampsConfidence(t *testing.T) {
	client := advisorResponding(t, `{"decision":"BUY_YES","confidence":4.2,"reasoning":"way too sure"}`)

	d := client.Decide(context.Background(), MarketContext{}, nil)
	require.Equal(t, 1.0, d.Confidence)
}

func TestBuildUserPrompt(t *testing.T) {
	prompt := BuildUserPrompt(MarketContext{Ticker: "KXBTC15M-X", Strike: 83250}, &PositionContext{
		Side: "yes", Quantity: 10, AvgPriceCents: "45", ExposureCents: "450",
	})
	require.Contains(t, prompt, "KXBTC15M-X")
	require.Contains(t, prompt, `"quantity":10`)
	require.Contains(t, prompt, `"BUY_YES"|"BUY_NO"|"HOLD"`)

	flat := BuildUserPrompt(MarketContext{}, nil)
	require.True(t, strings.Contains(flat, "Current position: null"))
}
