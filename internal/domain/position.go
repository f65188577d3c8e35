package domain

import "time"

// Position is a point-in-time snapshot of account inventory. It is read-only
// input to the rebalance policy; an external account collaborator refreshes it.
type Position struct {
	USDC      float64
	YesTokens float64
	NoTokens  float64
	AsOf      time.Time
}

// PairedTokens is the number of complete YES+NO sets held, which can be
// merged back into USDC.
func (p Position) PairedTokens() float64 {
	if p.YesTokens < p.NoTokens {
		return p.YesTokens
	}
	return p.NoTokens
}

// RebalanceActionType enumerates the corrective trades the policy can emit.
type RebalanceActionType string

const (
	RebalanceNone    RebalanceActionType = "NONE"
	RebalanceBuyYes  RebalanceActionType = "BUY_YES"
	RebalanceSellYes RebalanceActionType = "SELL_YES"
	RebalanceBuyNo   RebalanceActionType = "BUY_NO"
	RebalanceSellNo  RebalanceActionType = "SELL_NO"
)

// RebalanceAction is the corrective trade recommended by the policy.
// Amount is USDC notional at the valuation the policy was given; it is 0
// exactly when Type is RebalanceNone.
type RebalanceAction struct {
	ID        string
	Type      RebalanceActionType
	Amount    float64
	Reason    string
	CreatedAt time.Time
}

// IsNeeded reports whether the action requires execution.
func (a RebalanceAction) IsNeeded() bool {
	return a.Type != RebalanceNone
}
