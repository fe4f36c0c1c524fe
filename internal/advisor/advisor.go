// Package advisor calls the Anthropic messages API for a trading decision on
// the active contract. The advisor is a collaborator, not an authority: any
// failure collapses to HOLD so the cycle proceeds without it.
package advisor

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/transdsign-boop/kalshibot/internal/domain"
)

const (
	defaultAPIURL  = "https://api.anthropic.com/v1/messages"
	defaultModel   = "claude-3-5-haiku-latest"
	defaultTimeout = 60 * time.Second
	apiVersion     = "2023-06-01"
	maxTokens      = 300
)

// MarketContext is the per-cycle snapshot the advisor reasons over.
type MarketContext struct {
	Ticker           string  `json:"ticker"`
	Title            string  `json:"title"`
	Strike           float64 `json:"strike"`
	SecondsToClose   float64 `json:"seconds_to_close"`
	LastPriceCents   int64   `json:"last_price_cents"`
	BestBidCents     int64   `json:"best_bid_cents"`
	BestAskCents     int64   `json:"best_ask_cents"`
	Volume           int64   `json:"volume"`
	GlobalPrice      float64 `json:"global_btc_price"`
	LeadPrice        float64 `json:"lead_exchange_price"`
	SettlementPrice  float64 `json:"settlement_exchange_price"`
	Momentum         float64 `json:"momentum_usd"`
	ProjectedSettled float64 `json:"projected_settlement_price"`
}

// PositionContext describes the held position, nil when flat.
type PositionContext struct {
	Side          string `json:"side"`
	Quantity      int64  `json:"quantity"`
	AvgPriceCents string `json:"avg_price_cents"`
	ExposureCents string `json:"exposure_cents"`
}

// Advisor produces one decision per cycle.
type Advisor interface {
	Decide(ctx context.Context, market MarketContext, position *PositionContext) domain.Decision
}

// Client is the Anthropic messages API advisor.
type Client struct {
	apiURL string
	apiKey string
	model  string
	http   *http.Client
	logger *zap.Logger
}

// NewClient builds an advisor. Empty url and model fall back to the
// Anthropic defaults.
func NewClient(apiURL, apiKey, model string, logger *zap.Logger) *Client {
	if apiURL == "" {
		apiURL = defaultAPIURL
	}
	if model == "" {
		model = defaultModel
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		apiURL: apiURL,
		apiKey: apiKey,
		model:  model,
		http:   &http.Client{Timeout: defaultTimeout},
		logger: logger,
	}
}

type messagesRequest struct {
	Model     string    `json:"model"`
	MaxTokens int       `json:"max_tokens"`
	System    string    `json:"system"`
	Messages  []message `json:"messages"`
}

type message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type messagesResponse struct {
	Content []contentBlock `json:"content"`
	Error   *apiError      `json:"error,omitempty"`
}

type contentBlock struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type apiError struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// Decide asks the model for a decision. Every failure path returns the
// fail-closed HOLD with zero confidence.
func (c *Client) Decide(ctx context.Context, market MarketContext, position *PositionContext) domain.Decision {
	raw, err := c.complete(ctx, BuildUserPrompt(market, position))
	if err != nil {
		c.logger.Error("advisor request failed", zap.Error(err))
		return domain.HoldDecision("Advisor error - defaulting to HOLD.")
	}

	decision, err := domain.ParseDecision(raw)
	if err != nil {
		c.logger.Error("advisor returned invalid decision",
			zap.String("raw", truncate(raw, 200)),
			zap.Error(err))
		return domain.HoldDecision("Advisor error - defaulting to HOLD.")
	}

	c.logger.Info("advisor decision",
		zap.String("ticker", market.Ticker),
		zap.String("decision", string(decision.Decision)),
		zap.Float64("confidence", decision.Confidence),
		zap.String("reasoning", truncate(decision.Reasoning, 120)))
	return decision
}

func (c *Client) complete(ctx context.Context, userPrompt string) (string, error) {
	if c.apiKey == "" {
		return "", errors.New("advisor API key is empty")
	}

	body, err := json.Marshal(messagesRequest{
		Model:     c.model,
		MaxTokens: maxTokens,
		System:    SystemPrompt,
		Messages:  []message{{Role: "user", Content: userPrompt}},
	})
	if err != nil {
		return "", errors.Wrap(err, "marshal advisor request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.apiURL, bytes.NewReader(body))
	if err != nil {
		return "", errors.Wrap(err, "build advisor request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", c.apiKey)
	req.Header.Set("anthropic-version", apiVersion)

	resp, err := c.http.Do(req)
	if err != nil {
		return "", errors.Wrap(err, "advisor request")
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", errors.Wrap(err, "read advisor response")
	}
	if resp.StatusCode != http.StatusOK {
		return "", errors.Errorf("advisor API returned status %d: %s", resp.StatusCode, truncate(string(respBody), 200))
	}

	var parsed messagesResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return "", errors.Wrap(err, "decode advisor response")
	}
	if parsed.Error != nil {
		return "", errors.Errorf("advisor API error: %s (%s)", parsed.Error.Message, parsed.Error.Type)
	}
	for _, block := range parsed.Content {
		if block.Type == "text" {
			return block.Text, nil
		}
	}
	return "", errors.New("advisor response has no text content")
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

// SystemPrompt frames the model as a disciplined binaries trader and pins
// the output contract.
const SystemPrompt = "You are a disciplined crypto derivatives trader. " +
	"The market is Kalshi BTC 15-min binaries. " +
	"We trade trends, not reversals. " +
	"We avoid contracts priced < 55 cents (lottery tickets). " +
	"Always respond with valid JSON only - no markdown, no extra text."

// BuildUserPrompt renders the per-cycle context and the required response
// schema.
func BuildUserPrompt(market MarketContext, position *PositionContext) string {
	marketJSON, _ := json.Marshal(market)
	positionJSON := []byte("null")
	if position != nil {
		positionJSON, _ = json.Marshal(position)
	}
	return fmt.Sprintf(
		"Market data: %s\nCurrent position: %s\n\n"+
			"Return valid JSON with exactly these keys:\n"+
			`{"decision": "BUY_YES"|"BUY_NO"|"HOLD", "confidence": 0.0-1.0, "reasoning": "..."}`,
		marketJSON, positionJSON)
}
