package notify

import (
	"fmt"

	"github.com/paritybot/paritybot/internal/domain"
)

// Event types recognised by the notifier's filter.
const (
	EventArbDetected     = "arb_detected"
	EventRebalanceAction = "rebalance_action"
	EventConnectionState = "connection_state"
	EventError           = "error"
)

// FormatOpportunity renders a detected opportunity as a notification
// title/message pair.
func FormatOpportunity(opp domain.ArbOpportunity) (title, message string) {
	switch opp.Direction {
	case domain.ArbBuyBoth:
		title = fmt.Sprintf("Arb: buy both @ %.4f", opp.Cost)
	case domain.ArbSellBoth:
		title = fmt.Sprintf("Arb: sell both @ %.4f", opp.Cost)
	default:
		title = "Arb opportunity"
	}
	message = fmt.Sprintf(
		"market=%s direction=%s profit=%.2f%% yes=%.4f no=%.4f detected=%s",
		opp.MarketID, opp.Direction, opp.ProfitPercent*100,
		opp.YesPrice, opp.NoPrice,
		opp.DetectedAt.Format("15:04:05.000"),
	)
	return title, message
}

// FormatRebalance renders an emitted rebalance action as a notification
// title/message pair.
func FormatRebalance(action domain.RebalanceAction) (title, message string) {
	title = fmt.Sprintf("Rebalance: %s %.2f USDC", action.Type, action.Amount)
	message = fmt.Sprintf("%s (id=%s)", action.Reason, action.ID)
	return title, message
}

// FormatConnectionState renders a feed connection transition as a
// notification title/message pair.
func FormatConnectionState(ev domain.ConnectionStateChanged) (title, message string) {
	title = fmt.Sprintf("Feed: %s", ev.To)
	if ev.Err != nil {
		message = fmt.Sprintf("%s -> %s: %v", ev.From, ev.To, ev.Err)
	} else {
		message = fmt.Sprintf("%s -> %s", ev.From, ev.To)
	}
	return title, message
}
