package arb

import (
	"time"

	"github.com/paritybot/paritybot/internal/domain"
)

// DefaultThreshold filters quote noise and fee drag: a deviation from the
// $1 parity smaller than this is not tradeable.
const DefaultThreshold = 0.003

// CheckArbitrage evaluates one market book pair against the parity threshold
// and returns the opportunity, or nil when none exists.
//
// The cost test uses the ACTUAL direct quotes, not effective prices: buying
// one complete redeemable unit means lifting both asks, and selling one means
// hitting both bids. Effective prices are attached to the result for
// observability only.
//
// Only one direction can fire per evaluation: under bid ≤ ask per side,
// buy_cost < 1 and sell_proceeds > 1 are mutually exclusive.
func CheckArbitrage(pair domain.MarketBookPair, threshold float64) *domain.ArbOpportunity {
	yesAsk := pair.Yes.Ask
	yesBid := pair.Yes.Bid
	noAsk := pair.No.Ask
	noBid := pair.No.Bid

	if yesAsk != nil && noAsk != nil {
		buyCost := yesAsk.Price + noAsk.Price
		if buyCost > 0 && buyCost < 1-threshold {
			return &domain.ArbOpportunity{
				MarketID:      pair.MarketID,
				Direction:     domain.ArbBuyBoth,
				ProfitPercent: (1 - buyCost) / buyCost,
				Cost:          buyCost,
				YesPrice:      yesAsk.Price,
				NoPrice:       noAsk.Price,
				Effective:     EffectivePrices(pair),
				DetectedAt:    time.Now().UTC(),
			}
		}
	}

	if yesBid != nil && noBid != nil {
		sellProceeds := yesBid.Price + noBid.Price
		if sellProceeds > 1+threshold {
			return &domain.ArbOpportunity{
				MarketID:      pair.MarketID,
				Direction:     domain.ArbSellBoth,
				ProfitPercent: sellProceeds - 1,
				Cost:          sellProceeds,
				YesPrice:      yesBid.Price,
				NoPrice:       noBid.Price,
				Effective:     EffectivePrices(pair),
				DetectedAt:    time.Now().UTC(),
			}
		}
	}

	return nil
}
