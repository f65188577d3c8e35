// Package rebalance decides corrective trades that keep an account's
// cash-to-inventory ratio inside a configured band.
package rebalance

import (
	"fmt"

	"github.com/paritybot/paritybot/internal/domain"
)

// Bounds is the ratio band the account must stay within; Target is the
// reversion point when the band is breached.
type Bounds struct {
	Min    float64
	Target float64
	Max    float64
}

// Validate enforces 0 <= min <= target <= max <= 1.
func (b Bounds) Validate() error {
	if b.Min < 0 || b.Max > 1 || b.Min > b.Target || b.Target > b.Max {
		return fmt.Errorf("rebalance: invalid bounds min=%v target=%v max=%v", b.Min, b.Target, b.Max)
	}
	return nil
}

// Policy is a stateless, idempotent mapping from a position snapshot to a
// corrective action. Valuation of token inventory is supplied by the caller
// (e.g. current mid-price); the policy never looks at market data itself.
type Policy struct {
	bounds       Bounds
	minTradeSize float64 // actions below this USDC notional collapse to NONE
}

// NewPolicy creates a Policy. minTradeSize guards against economically
// meaningless dust trades; pass 0 to disable the floor.
func NewPolicy(bounds Bounds, minTradeSize float64) (*Policy, error) {
	if err := bounds.Validate(); err != nil {
		return nil, err
	}
	return &Policy{bounds: bounds, minTradeSize: minTradeSize}, nil
}

// Ratio returns usdc / (usdc + inventory value) for the position at the
// given per-token valuation. An empty account reads as perfectly balanced.
func Ratio(pos domain.Position, valuation float64) float64 {
	inventory := (pos.YesTokens + pos.NoTokens) * valuation
	total := pos.USDC + inventory
	if total == 0 {
		return 0.5
	}
	return pos.USDC / total
}

// CalculateAction computes the corrective trade for the position, sized so
// that executing it at the given valuation (no slippage) moves the ratio
// exactly to the target. It returns NONE when the ratio is already inside
// the band. Amounts are USDC notional.
func (p *Policy) CalculateAction(pos domain.Position, valuation float64) domain.RebalanceAction {
	none := func(reason string) domain.RebalanceAction {
		return domain.RebalanceAction{Type: domain.RebalanceNone, Amount: 0, Reason: reason}
	}

	if valuation <= 0 {
		return none("no valuation")
	}
	total := pos.USDC + (pos.YesTokens+pos.NoTokens)*valuation
	if total == 0 {
		return none("no capital")
	}
	ratio := pos.USDC / total

	if ratio >= p.bounds.Min && ratio <= p.bounds.Max {
		return none("within band")
	}

	if ratio < p.bounds.Min {
		// Too much inventory: sell enough to land exactly on target.
		// Trading at valuation leaves total unchanged, so the amount is
		// target*total minus usdc.
		amount := p.bounds.Target*total - pos.USDC

		// Sell out of the larger holding; clamp to what is actually there.
		actionType := domain.RebalanceSellYes
		available := pos.YesTokens * valuation
		if pos.NoTokens > pos.YesTokens {
			actionType = domain.RebalanceSellNo
			available = pos.NoTokens * valuation
		}
		clamped := amount > available
		if clamped {
			amount = available
		}
		if amount < p.minTradeSize || amount <= 0 {
			return none("sell below min trade size")
		}
		reason := fmt.Sprintf("ratio %.3f < min %.3f", ratio, p.bounds.Min)
		if clamped {
			reason += " (clamped to available inventory)"
		}
		return domain.RebalanceAction{Type: actionType, Amount: amount, Reason: reason}
	}

	// Too much idle cash: spend down to target.
	amount := pos.USDC - p.bounds.Target*total
	if amount > pos.USDC {
		amount = pos.USDC
	}
	if amount < p.minTradeSize || amount <= 0 {
		return domain.RebalanceAction{Type: domain.RebalanceNone, Amount: 0, Reason: "buy below min trade size"}
	}

	// Buy the thinner side to keep the YES/NO inventory even.
	actionType := domain.RebalanceBuyYes
	if pos.YesTokens > pos.NoTokens {
		actionType = domain.RebalanceBuyNo
	}
	return domain.RebalanceAction{
		Type:   actionType,
		Amount: amount,
		Reason: fmt.Sprintf("ratio %.3f > max %.3f", pos.USDC/total, p.bounds.Max),
	}
}

// ImbalanceAction is a supplemental risk check used by the rebalance service
// loop before the ratio-band policy: when the YES/NO token counts diverge by
// more than threshold tokens, it proposes selling half the excess. It is not
// part of CalculateAction so the band policy stays a pure function of the
// ratio.
func ImbalanceAction(pos domain.Position, valuation, threshold, minTradeSize float64) domain.RebalanceAction {
	none := domain.RebalanceAction{Type: domain.RebalanceNone, Reason: "balanced"}
	if threshold <= 0 || valuation <= 0 {
		return none
	}
	diff := pos.YesTokens - pos.NoTokens
	switch {
	case diff > threshold:
		amount := diff / 2 * valuation
		if amount < minTradeSize {
			return none
		}
		return domain.RebalanceAction{
			Type:   domain.RebalanceSellYes,
			Amount: amount,
			Reason: fmt.Sprintf("YES exceeds NO by %.2f tokens", diff),
		}
	case -diff > threshold:
		amount := -diff / 2 * valuation
		if amount < minTradeSize {
			return none
		}
		return domain.RebalanceAction{
			Type:   domain.RebalanceSellNo,
			Amount: amount,
			Reason: fmt.Sprintf("NO exceeds YES by %.2f tokens", -diff),
		}
	}
	return none
}
