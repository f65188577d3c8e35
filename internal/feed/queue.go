package feed

import (
	"log/slog"
	"sync"
)

// dispatchQueue holds the set of markets with unprocessed updates. A market
// already in the set absorbs further updates without growing the queue, so
// each dirty market is evaluated at most once per drain. When the set is full
// new markets are dropped rather than blocking the read loop.
type dispatchQueue struct {
	mu      sync.Mutex
	pending map[string]struct{}
	order   []string
	max     int
	dropped uint64
	logger  *slog.Logger

	// wake is signalled (capacity 1) whenever the set goes non-empty.
	wake chan struct{}
}

func newDispatchQueue(max int, logger *slog.Logger) *dispatchQueue {
	return &dispatchQueue{
		pending: make(map[string]struct{}, max),
		max:     max,
		logger:  logger,
		wake:    make(chan struct{}, 1),
	}
}

func (q *dispatchQueue) enqueue(marketID string) {
	q.mu.Lock()
	if _, ok := q.pending[marketID]; ok {
		// Coalesced: the queued entry will pick up the latest snapshot.
		q.mu.Unlock()
		return
	}
	if len(q.order) >= q.max {
		q.dropped++
		dropped := q.dropped
		q.mu.Unlock()
		q.logger.Warn("detection queue saturated, dropping update",
			slog.String("market_id", marketID), slog.Uint64("total_dropped", dropped))
		return
	}
	q.pending[marketID] = struct{}{}
	q.order = append(q.order, marketID)
	q.mu.Unlock()

	select {
	case q.wake <- struct{}{}:
	default:
	}
}

// pop removes and returns the oldest dirty market.
func (q *dispatchQueue) pop() (string, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for len(q.order) > 0 {
		marketID := q.order[0]
		q.order = q.order[1:]
		if _, ok := q.pending[marketID]; ok {
			delete(q.pending, marketID)
			return marketID, true
		}
	}
	return "", false
}

// forget discards any queued work for a market that was unsubscribed.
func (q *dispatchQueue) forget(marketID string) {
	q.mu.Lock()
	defer q.mu.Unlock()
	delete(q.pending, marketID)
}

// len reports the number of markets currently awaiting evaluation.
func (q *dispatchQueue) len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}
