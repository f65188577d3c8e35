package arb

import (
	"context"
	"io"
	"log/slog"
	"math"
	"testing"

	"github.com/paritybot/paritybot/internal/domain"
)

func TestCheckArbitrageBuyBoth(t *testing.T) {
	// yes_ask=0.50, no_ask=0.48 -> buy_cost=0.98 < 0.997.
	p := pairOf(quote(0.49), quote(0.50), quote(0.47), quote(0.48))
	opp := CheckArbitrage(p, 0.003)
	if opp == nil {
		t.Fatal("expected BUY_BOTH opportunity")
	}
	if opp.Direction != domain.ArbBuyBoth {
		t.Fatalf("expected BUY_BOTH, got %s", opp.Direction)
	}
	wantProfit := (1 - 0.98) / 0.98 // ≈ 2.04%
	if math.Abs(opp.ProfitPercent-wantProfit) > 1e-9 {
		t.Errorf("profit: expected %v, got %v", wantProfit, opp.ProfitPercent)
	}
	if math.Abs(opp.Cost-0.98) > 1e-9 {
		t.Errorf("cost: expected 0.98, got %v", opp.Cost)
	}
}

func TestCheckArbitrageAskOnlyBook(t *testing.T) {
	// up_ask=0.47, down_ask=0.48 with no bids known -> buy_cost=0.95.
	p := pairOf(nil, quote(0.47), nil, quote(0.48))
	opp := CheckArbitrage(p, 0.003)
	if opp == nil {
		t.Fatal("expected BUY_BOTH opportunity")
	}
	wantProfit := 0.05 / 0.95 // ≈ 5.26%
	if math.Abs(opp.ProfitPercent-wantProfit) > 1e-9 {
		t.Errorf("profit: expected %v, got %v", wantProfit, opp.ProfitPercent)
	}
}

func TestCheckArbitrageSellBoth(t *testing.T) {
	p := pairOf(quote(0.53), quote(0.55), quote(0.52), quote(0.54))
	opp := CheckArbitrage(p, 0.003)
	if opp == nil {
		t.Fatal("expected SELL_BOTH opportunity")
	}
	if opp.Direction != domain.ArbSellBoth {
		t.Fatalf("expected SELL_BOTH, got %s", opp.Direction)
	}
	wantProfit := 0.53 + 0.52 - 1
	if math.Abs(opp.ProfitPercent-wantProfit) > 1e-9 {
		t.Errorf("profit: expected %v, got %v", wantProfit, opp.ProfitPercent)
	}
}

func TestCheckArbitrageNoneWithinThreshold(t *testing.T) {
	cases := []struct {
		name string
		pair domain.MarketBookPair
	}{
		{"fair book", pairOf(quote(0.49), quote(0.51), quote(0.49), quote(0.51))},
		{"bid only low proceeds", pairOf(quote(0.30), nil, quote(0.30), nil)},
		{"cost inside band", pairOf(nil, quote(0.499), nil, quote(0.499))},
		{"proceeds inside band", pairOf(quote(0.501), nil, quote(0.501), nil)},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if opp := CheckArbitrage(tc.pair, 0.003); opp != nil {
				t.Errorf("expected nil, got %+v", opp)
			}
		})
	}
}

func TestCheckArbitrageMissingQuotesSuppress(t *testing.T) {
	// Cheap-looking ask side but the NO ask is absent: cannot buy the set.
	p := pairOf(nil, quote(0.40), quote(0.30), nil)
	if opp := CheckArbitrage(p, 0.003); opp != nil {
		t.Errorf("expected nil with missing quotes, got %+v", opp)
	}
}

func TestCheckArbitrageMirroredBookNeverFires(t *testing.T) {
	// no_ask = 1 − yes_bid and no_bid = 1 − yes_ask: a perfectly efficient
	// market must not produce an opportunity at any threshold >= 0.
	grid := []float64{0.05, 0.2, 0.35, 0.5, 0.65, 0.8, 0.95}
	thresholds := []float64{0, 0.001, 0.003, 0.05}
	for _, yb := range grid {
		for _, ya := range grid {
			if ya < yb {
				continue
			}
			p := pairOf(quote(yb), quote(ya), quote(1-ya), quote(1-yb))
			for _, th := range thresholds {
				if opp := CheckArbitrage(p, th); opp != nil {
					t.Fatalf("mirrored book fired: yes %v/%v threshold %v: %+v", yb, ya, th, opp)
				}
			}
		}
	}
}

func TestDetectorDebouncesUnchangedOpportunity(t *testing.T) {
	var got []domain.ArbOpportunity
	sink := SinkFunc(func(_ context.Context, opp domain.ArbOpportunity) {
		got = append(got, opp)
	})
	d := NewDetector(0.003, 0.001, sink, slog.New(slog.NewTextHandler(io.Discard, nil)))

	p := pairOf(nil, quote(0.47), nil, quote(0.48))
	ctx := context.Background()

	if d.Evaluate(ctx, p) == nil {
		t.Fatal("first evaluation should emit")
	}
	if d.Evaluate(ctx, p) != nil {
		t.Fatal("identical re-evaluation should be debounced")
	}

	// A materially different profit re-emits.
	p2 := pairOf(nil, quote(0.45), nil, quote(0.48))
	if d.Evaluate(ctx, p2) == nil {
		t.Fatal("changed profit should emit")
	}

	// Parity restored clears state; the next deviation fires again.
	flat := pairOf(quote(0.49), quote(0.51), quote(0.49), quote(0.51))
	if d.Evaluate(ctx, flat) != nil {
		t.Fatal("flat book should not emit")
	}
	if d.Evaluate(ctx, p) == nil {
		t.Fatal("re-deviation after reset should emit")
	}

	if len(got) != 3 {
		t.Errorf("expected 3 emissions, got %d", len(got))
	}
}
