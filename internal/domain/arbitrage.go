package domain

import "time"

// ArbDirection is the trade direction of a detected opportunity.
type ArbDirection string

const (
	// ArbBuyBoth: buy YES + NO for under $1, merge the pair for $1.
	ArbBuyBoth ArbDirection = "BUY_BOTH"
	// ArbSellBoth: split $1 into YES + NO, sell the pair for over $1.
	ArbSellBoth ArbDirection = "SELL_BOTH"
)

// EffectivePriceSet holds the best achievable price for each action on a
// market, after folding in the mirror-derived quote from the complementary
// book. A nil field means neither the direct nor the mirrored source was
// available.
type EffectivePriceSet struct {
	YesAsk *float64
	YesBid *float64
	NoAsk  *float64
	NoBid  *float64
}

// ArbOpportunity is an ephemeral value object emitted by the detector. It is
// never persisted with identity: recording layers may assign an ID.
type ArbOpportunity struct {
	ID            string
	MarketID      string
	Direction     ArbDirection
	ProfitPercent float64
	// Cost is the buy cost (BUY_BOTH) or the sell proceeds (SELL_BOTH)
	// for one complete redeemable unit.
	Cost       float64
	YesPrice   float64
	NoPrice    float64
	Effective  EffectivePriceSet
	DetectedAt time.Time
}
