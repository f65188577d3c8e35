// Package book holds live best-bid/best-ask state per outcome token, updated
// from the streaming feed and read by the arbitrage detector.
package book

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/paritybot/paritybot/internal/domain"
)

// Store keeps the current MarketBookPair for every subscribed market. Updates
// use full-replace semantics for the best level of a side and are atomic with
// respect to Snapshot: a reader never observes a half-applied update.
//
// The feed normally drives a Store from a single goroutine, but the mutex
// makes it safe to share across connections and with pollers (the rebalance
// valuation reads mid-prices from here).
type Store struct {
	mu      sync.RWMutex
	markets map[string]*domain.MarketBookPair // marketID -> live pair
	tokens  map[string]tokenRef               // tokenID -> owning market/outcome

	// freshFor is the window after which an un-refreshed side reads as
	// absent. Zero disables staleness filtering.
	freshFor time.Duration

	now    func() time.Time
	logger *slog.Logger
}

type tokenRef struct {
	marketID string
	outcome  domain.Outcome
}

// NewStore creates an empty Store. freshFor bounds how long a side stays
// usable without a refresh; pass 0 to disable the check.
func NewStore(freshFor time.Duration, logger *slog.Logger) *Store {
	return &Store{
		markets:  make(map[string]*domain.MarketBookPair),
		tokens:   make(map[string]tokenRef),
		freshFor: freshFor,
		now:      time.Now,
		logger:   logger.With(slog.String("component", "book_store")),
	}
}

// Register adds a market and its YES/NO token pair. It is called on first
// subscription; re-registering an existing market is a no-op.
func (s *Store) Register(marketID string, yes, no domain.Token) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.markets[marketID]; ok {
		return
	}
	s.markets[marketID] = &domain.MarketBookPair{
		MarketID: marketID,
		Yes:      domain.OutcomeBook{Token: yes},
		No:       domain.OutcomeBook{Token: no},
	}
	s.tokens[yes.ID] = tokenRef{marketID: marketID, outcome: domain.OutcomeYes}
	s.tokens[no.ID] = tokenRef{marketID: marketID, outcome: domain.OutcomeNo}
}

// Unregister removes a market and both its token entries immediately.
func (s *Store) Unregister(marketID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	pair, ok := s.markets[marketID]
	if !ok {
		return
	}
	delete(s.tokens, pair.Yes.Token.ID)
	delete(s.tokens, pair.No.Token.ID)
	delete(s.markets, marketID)
}

// MarketFor returns the market that owns the given token, or "" if unknown.
func (s *Store) MarketFor(tokenID string) string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.tokens[tokenID].marketID
}

// TokenIDs returns every registered token ID, for (re)subscription requests.
func (s *Store) TokenIDs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]string, 0, len(s.tokens))
	for id := range s.tokens {
		ids = append(ids, id)
	}
	return ids
}

// Update applies one delta to a token's side, stamped with the local clock.
// size == 0 removes the side. An update that would leave bid > ask within
// the book is rejected with domain.ErrInvalidQuoteState and prior state is
// kept. On success the updated pair is returned as an immutable copy.
func (s *Store) Update(tokenID string, side domain.Side, price, size float64) (domain.MarketBookPair, error) {
	return s.UpdateAt(tokenID, side, price, size, time.Time{})
}

// UpdateAt is Update with an explicit event time, normally the feed's own
// timestamp, so the freshness window measures feed age rather than local
// receive age. A zero at falls back to the local clock.
func (s *Store) UpdateAt(tokenID string, side domain.Side, price, size float64, at time.Time) (domain.MarketBookPair, error) {
	if price < 0 || price > 1 {
		return domain.MarketBookPair{}, fmt.Errorf("book: token %s: price %v out of range: %w",
			tokenID, price, domain.ErrMalformedMessage)
	}
	if size < 0 {
		return domain.MarketBookPair{}, fmt.Errorf("book: token %s: negative size %v: %w",
			tokenID, size, domain.ErrMalformedMessage)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	ref, ok := s.tokens[tokenID]
	if !ok {
		return domain.MarketBookPair{}, fmt.Errorf("book: token %s: %w", tokenID, domain.ErrNotFound)
	}
	pair := s.markets[ref.marketID]

	ob := &pair.Yes
	if ref.outcome == domain.OutcomeNo {
		ob = &pair.No
	}

	now := s.now()
	stamp := at
	if stamp.IsZero() {
		stamp = now
	}

	var next *domain.Quote
	if size > 0 {
		next = &domain.Quote{Price: price, Size: size}
	}

	// Reject crossed books: an upstream data anomaly, not a valid state.
	switch side {
	case domain.SideBid:
		if next != nil && ob.Ask != nil && next.Price > ob.Ask.Price {
			s.logger.Warn("rejecting crossed bid update",
				slog.String("token_id", tokenID),
				slog.Float64("bid", next.Price),
				slog.Float64("ask", ob.Ask.Price),
			)
			return domain.MarketBookPair{}, fmt.Errorf("book: token %s: bid %v > ask %v: %w",
				tokenID, next.Price, ob.Ask.Price, domain.ErrInvalidQuoteState)
		}
		ob.Bid = next
		ob.BidAt = stamp
	case domain.SideAsk:
		if next != nil && ob.Bid != nil && next.Price < ob.Bid.Price {
			s.logger.Warn("rejecting crossed ask update",
				slog.String("token_id", tokenID),
				slog.Float64("bid", ob.Bid.Price),
				slog.Float64("ask", next.Price),
			)
			return domain.MarketBookPair{}, fmt.Errorf("book: token %s: ask %v < bid %v: %w",
				tokenID, next.Price, ob.Bid.Price, domain.ErrInvalidQuoteState)
		}
		ob.Ask = next
		ob.AskAt = stamp
	default:
		return domain.MarketBookPair{}, fmt.Errorf("book: token %s: unknown side %q: %w",
			tokenID, side, domain.ErrMalformedMessage)
	}

	pair.UpdatedAt = stamp
	return s.copyPairLocked(pair, now), nil
}

// Snapshot returns an immutable copy of the market's current pair. Sides
// older than the freshness window read as absent.
func (s *Store) Snapshot(marketID string) (domain.MarketBookPair, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	pair, ok := s.markets[marketID]
	if !ok {
		return domain.MarketBookPair{}, fmt.Errorf("book: market %s: %w", marketID, domain.ErrNotFound)
	}
	return s.copyPairLocked(pair, s.now()), nil
}

// copyPairLocked deep-copies a pair, dropping sides outside the freshness
// window. Caller must hold at least a read lock.
func (s *Store) copyPairLocked(pair *domain.MarketBookPair, now time.Time) domain.MarketBookPair {
	out := domain.MarketBookPair{
		MarketID:  pair.MarketID,
		UpdatedAt: pair.UpdatedAt,
	}
	out.Yes = s.copyBook(pair.Yes, now)
	out.No = s.copyBook(pair.No, now)
	return out
}

func (s *Store) copyBook(b domain.OutcomeBook, now time.Time) domain.OutcomeBook {
	out := domain.OutcomeBook{Token: b.Token, BidAt: b.BidAt, AskAt: b.AskAt}
	if b.Bid != nil && s.fresh(b.BidAt, now) {
		q := *b.Bid
		out.Bid = &q
	}
	if b.Ask != nil && s.fresh(b.AskAt, now) {
		q := *b.Ask
		out.Ask = &q
	}
	return out
}

func (s *Store) fresh(ts time.Time, now time.Time) bool {
	if s.freshFor <= 0 {
		return true
	}
	return now.Sub(ts) <= s.freshFor
}
