package domain

import (
	"encoding/json"
	"strings"

	"github.com/pkg/errors"
)

// Decision is the advisor's output contract.
type Decision struct {
	Decision   Action  `json:"decision"`
	Confidence float64 `json:"confidence"`
	Reasoning  string  `json:"reasoning"`
}

// HoldDecision is the mandatory fail-closed fallback: no action, zero
// confidence.
func HoldDecision(reason string) Decision {
	return Decision{Decision: ActionHold, Confidence: 0, Reasoning: reason}
}

// ParseDecision validates a raw advisor response. Markdown fences are
// stripped, unknown actions are rejected, confidence is clamped to [0,1].
func ParseDecision(raw string) (Decision, error) {
	payload := sanitizeDecisionPayload(raw)

	var d Decision
	if err := json.Unmarshal([]byte(payload), &d); err != nil {
		return Decision{}, errors.Wrap(err, "decode decision JSON")
	}

	switch d.Decision {
	case ActionBuyYes, ActionBuyNo, ActionHold:
	default:
		return Decision{}, errors.Errorf("invalid decision action: %q", d.Decision)
	}

	if d.Confidence < 0 {
		d.Confidence = 0
	}
	if d.Confidence > 1 {
		d.Confidence = 1
	}
	if d.Reasoning == "" {
		d.Reasoning = "No reasoning provided."
	}
	return d, nil
}

func sanitizeDecisionPayload(raw string) string {
	response := strings.TrimSpace(raw)
	response = strings.TrimPrefix(response, "```json")
	response = strings.TrimPrefix(response, "```")
	response = strings.TrimSuffix(response, "```")
	return strings.TrimSpace(response)
}
