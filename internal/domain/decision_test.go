package domain

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseDecision(t *testing.T) {
	d, err := ParseDecision(`{"decision":"BUY_YES","confidence":0.8,"reasoning":"momentum up"}`)
	require.NoError(t, err)
	require.Equal(t, ActionBuyYes, d.Decision)
	require.Equal(t, 0.8, d.Confidence)
}

func TestParseDecisionStripsFences(t *testing.T) {
	d, err := ParseDecision("```json\n{\"decision\":\"HOLD\",\"confidence\":0.3}\n```")
	require.NoError(t, err)
	require.Equal(t, ActionHold, d.Decision)
	require.Equal(t, "No reasoning provided.", d.Reasoning)
}

func TestParseDecisionRejectsUnknownAction(t *testing.T) {
	_, err := ParseDecision(`{"decision":"SELL_EVERYTHING","confidence":0.9}`)
	require.Error(t, err)
}

func TestParseDecisionClampsConfidence(t *testing.T) {
	d, err := ParseDecision(`{"decision":"BUY_NO","confidence":1.7,"reasoning":"x"}`)
	require.NoError(t, err)
	require.Equal(t, 1.0, d.Confidence)

	d, err = ParseDecision(`{"decision":"BUY_NO","confidence":-2,"reasoning":"x"}`)
	require.NoError(t, err)
	require.Equal(t, 0.0, d.Confidence)
}

func TestActionSide(t *testing.T) {
	require.Equal(t, SideYes, ActionBuyYes.Side())
	require.Equal(t, SideNo, ActionBuyNo.Side())
	require.True(t, ActionBuyYes.IsEntry())
	require.False(t, ActionHold.IsEntry())
	require.Equal(t, SideNo, SideYes.Opposite())
}
