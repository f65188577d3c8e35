package domain

import "time"

// Outcome tags one of the two complementary tokens of a binary market.
type Outcome string

const (
	OutcomeYes Outcome = "YES"
	OutcomeNo  Outcome = "NO"
)

// Opposite returns the complementary outcome.
func (o Outcome) Opposite() Outcome {
	if o == OutcomeYes {
		return OutcomeNo
	}
	return OutcomeYes
}

// Token identifies one outcome token within a market. Immutable once created.
type Token struct {
	ID      string
	Outcome Outcome
}

// Side distinguishes the two sides of an orderbook.
type Side string

const (
	SideBid Side = "bid"
	SideAsk Side = "ask"
)

// Quote is a single price level. Price is probability-like, in [0,1].
type Quote struct {
	Price float64
	Size  float64
}

// OutcomeBook holds the best bid and best ask for one outcome token. A nil
// side means no resting orders exist; detection must treat nil as "cannot
// evaluate", never as price 0.
type OutcomeBook struct {
	Token Token
	Bid   *Quote
	Ask   *Quote

	// BidAt / AskAt record when each side was last refreshed, so stale
	// sides can be filtered out of snapshots.
	BidAt time.Time
	AskAt time.Time
}

// MarketBookPair bundles the YES and NO books of one market.
type MarketBookPair struct {
	MarketID  string
	Yes       OutcomeBook
	No        OutcomeBook
	UpdatedAt time.Time
}

// Book returns the book for the given outcome.
func (p MarketBookPair) Book(o Outcome) OutcomeBook {
	if o == OutcomeYes {
		return p.Yes
	}
	return p.No
}

// Mid returns the mid-price of the given outcome's book, or 0 when either
// side is missing.
func Mid(b OutcomeBook) float64 {
	if b.Bid == nil || b.Ask == nil {
		return 0
	}
	return (b.Bid.Price + b.Ask.Price) / 2
}

// Spread returns ask minus bid, or 0 when either side is missing.
func Spread(b OutcomeBook) float64 {
	if b.Bid == nil || b.Ask == nil {
		return 0
	}
	return b.Ask.Price - b.Bid.Price
}
