package domain

import "time"

// ConnectionState is the realtime session's lifecycle state.
type ConnectionState string

const (
	ConnDisconnected ConnectionState = "disconnected"
	ConnConnecting   ConnectionState = "connecting"
	ConnSubscribed   ConnectionState = "subscribed"
)

// OrderbookUpdated is emitted after a delta has been applied to the store.
type OrderbookUpdated struct {
	Pair MarketBookPair
}

// ArbitrageDetected is emitted when the detector finds an opportunity.
type ArbitrageDetected struct {
	Opportunity ArbOpportunity
}

// ConnectionStateChanged is emitted on every session state transition.
type ConnectionStateChanged struct {
	From ConnectionState
	To   ConnectionState
	At   time.Time
	Err  error
}

// SessionListener receives the fixed set of realtime events. Implementations
// must not block: slow consumers are decoupled from the feed read loop by the
// session's bounded dispatch queue.
type SessionListener interface {
	OnOrderbookUpdated(ev OrderbookUpdated)
	OnConnectionStateChanged(ev ConnectionStateChanged)
}
