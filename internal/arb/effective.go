// Package arb implements mirror-parity arbitrage detection for binary
// outcome markets. Buying YES at price P is economically equivalent to
// selling NO at 1−P, so the two orderbooks mirror each other; deviations
// from the mirror identity are what the detector quantifies.
package arb

import "github.com/paritybot/paritybot/internal/domain"

// EffectivePrices computes the best achievable price for each action on the
// pair, folding in the mirror-derived quote from the complementary book:
//
//	yes ask: min(direct YES ask, 1 − NO bid)
//	yes bid: max(direct YES bid, 1 − NO ask)
//
// and symmetrically for NO. When one source is absent the other is used; when
// both are absent the effective price is nil.
func EffectivePrices(pair domain.MarketBookPair) domain.EffectivePriceSet {
	yesAsk := price(pair.Yes.Ask)
	yesBid := price(pair.Yes.Bid)
	noAsk := price(pair.No.Ask)
	noBid := price(pair.No.Bid)

	return domain.EffectivePriceSet{
		YesAsk: minOf(yesAsk, mirror(noBid)),
		YesBid: maxOf(yesBid, mirror(noAsk)),
		NoAsk:  minOf(noAsk, mirror(yesBid)),
		NoBid:  maxOf(noBid, mirror(yesAsk)),
	}
}

func price(q *domain.Quote) *float64 {
	if q == nil {
		return nil
	}
	p := q.Price
	return &p
}

func mirror(p *float64) *float64 {
	if p == nil {
		return nil
	}
	m := 1 - *p
	return &m
}

func minOf(a, b *float64) *float64 {
	if a == nil {
		return b
	}
	if b == nil {
		return a
	}
	if *a < *b {
		return a
	}
	return b
}

func maxOf(a, b *float64) *float64 {
	if a == nil {
		return b
	}
	if b == nil {
		return a
	}
	if *a > *b {
		return a
	}
	return b
}
