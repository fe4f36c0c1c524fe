package domain

// Action is a single trading instruction surfaced per poll cycle.
type Action string

const (
	ActionBuyYes Action = "BUY_YES"
	ActionBuyNo  Action = "BUY_NO"
	ActionHold   Action = "HOLD"
)

// IsEntry reports whether the action places a buy order.
func (a Action) IsEntry() bool {
	return a == ActionBuyYes || a == ActionBuyNo
}

// Side returns the contract side the action buys. Only meaningful for entries.
func (a Action) Side() Side {
	if a == ActionBuyNo {
		return SideNo
	}
	return SideYes
}

// Side is a binary contract side.
type Side string

const (
	SideYes Side = "yes"
	SideNo  Side = "no"
)

// Opposite returns the other contract side.
func (s Side) Opposite() Side {
	if s == SideYes {
		return SideNo
	}
	return SideYes
}
