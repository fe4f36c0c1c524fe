package domain

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Market is a read-only snapshot of a single binary contract, refreshed once
// per cycle.
type Market struct {
	Ticker         string
	Title          string
	Strike         float64
	CloseTime      time.Time
	SecondsToClose float64
	LastPrice      int64
	Volume         int64
}

// HasStrike reports whether a usable strike price is known.
func (m Market) HasStrike() bool {
	return m.Strike > 0
}

var dollarAmountRe = regexp.MustCompile(`\$([0-9,.]+)`)

// ExtractStrike resolves the contract strike from structured fields first,
// falling back to dollar amounts embedded in descriptive text
// (e.g. "Price to beat: $83,873.07"). Returns 0 when nothing parses.
func ExtractStrike(floorStrike, strikePrice float64, texts ...string) float64 {
	strike := floorStrike
	if strike == 0 {
		strike = strikePrice
	}
	if strike > 0 {
		// BTC strikes are quoted in dollars; small values are cents leaking
		// in from other market types.
		if strike > 1000 {
			return strike
		}
		return strike / 100.0
	}

	for _, text := range texts {
		match := dollarAmountRe.FindStringSubmatch(text)
		if match == nil {
			continue
		}
		val, err := strconv.ParseFloat(strings.ReplaceAll(match[1], ",", ""), 64)
		if err == nil && val > 0 {
			return val
		}
	}
	return 0
}
