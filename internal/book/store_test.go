package book

import (
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/paritybot/paritybot/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestStore(t *testing.T, freshFor time.Duration) *Store {
	t.Helper()
	s := NewStore(freshFor, testLogger())
	s.Register("mkt-1",
		domain.Token{ID: "yes-1", Outcome: domain.OutcomeYes},
		domain.Token{ID: "no-1", Outcome: domain.OutcomeNo},
	)
	return s
}

func TestUpdateReplacesBestLevel(t *testing.T) {
	s := newTestStore(t, 0)

	if _, err := s.Update("yes-1", domain.SideAsk, 0.55, 100); err != nil {
		t.Fatalf("first update: %v", err)
	}
	pair, err := s.Update("yes-1", domain.SideAsk, 0.52, 40)
	if err != nil {
		t.Fatalf("second update: %v", err)
	}

	ask := pair.Yes.Ask
	if ask == nil {
		t.Fatal("expected yes ask to be present")
	}
	if ask.Price != 0.52 || ask.Size != 40 {
		t.Errorf("expected full replace to 0.52/40, got %v/%v", ask.Price, ask.Size)
	}
}

func TestUpdateSizeZeroRemovesSide(t *testing.T) {
	s := newTestStore(t, 0)

	if _, err := s.Update("no-1", domain.SideBid, 0.45, 10); err != nil {
		t.Fatalf("update: %v", err)
	}
	pair, err := s.Update("no-1", domain.SideBid, 0.45, 0)
	if err != nil {
		t.Fatalf("remove: %v", err)
	}
	if pair.No.Bid != nil {
		t.Errorf("expected removed side to read as nil, got %+v", pair.No.Bid)
	}
}

func TestUpdateRejectsCrossedBook(t *testing.T) {
	s := newTestStore(t, 0)

	if _, err := s.Update("yes-1", domain.SideAsk, 0.50, 10); err != nil {
		t.Fatalf("ask update: %v", err)
	}
	_, err := s.Update("yes-1", domain.SideBid, 0.60, 10)
	if !errors.Is(err, domain.ErrInvalidQuoteState) {
		t.Fatalf("expected ErrInvalidQuoteState, got %v", err)
	}

	// Prior state survives the rejected update.
	pair, err := s.Snapshot("mkt-1")
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if pair.Yes.Bid != nil {
		t.Errorf("expected bid to stay absent after rejected update, got %+v", pair.Yes.Bid)
	}
	if pair.Yes.Ask == nil || pair.Yes.Ask.Price != 0.50 {
		t.Errorf("expected ask to survive, got %+v", pair.Yes.Ask)
	}
}

func TestUpdateRejectsOutOfRange(t *testing.T) {
	s := newTestStore(t, 0)

	cases := []struct {
		name  string
		price float64
		size  float64
	}{
		{"price above one", 1.2, 10},
		{"negative price", -0.1, 10},
		{"negative size", 0.5, -1},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := s.Update("yes-1", domain.SideBid, tc.price, tc.size)
			if !errors.Is(err, domain.ErrMalformedMessage) {
				t.Errorf("expected ErrMalformedMessage, got %v", err)
			}
		})
	}
}

func TestUpdateUnknownToken(t *testing.T) {
	s := newTestStore(t, 0)
	_, err := s.Update("unknown", domain.SideBid, 0.5, 1)
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestSnapshotIsImmutableCopy(t *testing.T) {
	s := newTestStore(t, 0)
	if _, err := s.Update("yes-1", domain.SideBid, 0.40, 5); err != nil {
		t.Fatalf("update: %v", err)
	}

	snap, err := s.Snapshot("mkt-1")
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	snap.Yes.Bid.Price = 0.99

	again, err := s.Snapshot("mkt-1")
	if err != nil {
		t.Fatalf("second snapshot: %v", err)
	}
	if again.Yes.Bid.Price != 0.40 {
		t.Errorf("mutating a snapshot leaked into the store: %v", again.Yes.Bid.Price)
	}
}

func TestStaleSideReadsAsAbsent(t *testing.T) {
	s := newTestStore(t, 5*time.Second)

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return base }
	if _, err := s.Update("yes-1", domain.SideBid, 0.40, 5); err != nil {
		t.Fatalf("update: %v", err)
	}
	if _, err := s.Update("yes-1", domain.SideAsk, 0.45, 5); err != nil {
		t.Fatalf("update: %v", err)
	}

	// Refresh only the ask, then move past the window for the bid.
	s.now = func() time.Time { return base.Add(4 * time.Second) }
	if _, err := s.Update("yes-1", domain.SideAsk, 0.46, 5); err != nil {
		t.Fatalf("refresh ask: %v", err)
	}

	s.now = func() time.Time { return base.Add(7 * time.Second) }
	snap, err := s.Snapshot("mkt-1")
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if snap.Yes.Bid != nil {
		t.Errorf("expected stale bid to read as absent, got %+v", snap.Yes.Bid)
	}
	if snap.Yes.Ask == nil {
		t.Error("expected fresh ask to remain present")
	}
}

func TestUpdateAtStampsEventTime(t *testing.T) {
	s := newTestStore(t, 5*time.Second)

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return base }

	// A quote that was already 4s old when it arrived ages out of the
	// freshness window on feed time, not on receive time.
	at := base.Add(-4 * time.Second)
	pair, err := s.UpdateAt("yes-1", domain.SideBid, 0.40, 5, at)
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if !pair.Yes.BidAt.Equal(at) {
		t.Fatalf("BidAt = %v, want event time %v", pair.Yes.BidAt, at)
	}
	if !pair.UpdatedAt.Equal(at) {
		t.Fatalf("UpdatedAt = %v, want event time %v", pair.UpdatedAt, at)
	}

	s.now = func() time.Time { return base.Add(2 * time.Second) }
	snap, err := s.Snapshot("mkt-1")
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if snap.Yes.Bid != nil {
		t.Errorf("quote aged past the window on feed time should read as absent, got %+v", snap.Yes.Bid)
	}
}

func TestUpdateAtZeroTimeUsesLocalClock(t *testing.T) {
	s := newTestStore(t, 0)

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return base }

	pair, err := s.UpdateAt("yes-1", domain.SideBid, 0.40, 5, time.Time{})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if !pair.Yes.BidAt.Equal(base) {
		t.Fatalf("BidAt = %v, want local clock %v", pair.Yes.BidAt, base)
	}
}

func TestUnregisterRemovesTokensImmediately(t *testing.T) {
	s := newTestStore(t, 0)
	s.Unregister("mkt-1")

	if _, err := s.Snapshot("mkt-1"); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("expected market gone, got %v", err)
	}
	if _, err := s.Update("yes-1", domain.SideBid, 0.4, 1); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("expected token gone, got %v", err)
	}
	if got := len(s.TokenIDs()); got != 0 {
		t.Errorf("expected no tokens after unregister, got %d", got)
	}
}

func TestConcurrentUpdatesWithUnrelatedSubscriptions(t *testing.T) {
	s := newTestStore(t, 0)

	var wg sync.WaitGroup
	const n = 200

	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; i < n; i++ {
			price := 0.30 + float64(i%10)/100
			if _, err := s.Update("yes-1", domain.SideBid, price, float64(i+1)); err != nil {
				t.Errorf("update %d: %v", i, err)
				return
			}
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < n; i++ {
			id := "tmp"
			s.Register(id,
				domain.Token{ID: "tmp-yes", Outcome: domain.OutcomeYes},
				domain.Token{ID: "tmp-no", Outcome: domain.OutcomeNo},
			)
			s.Unregister(id)
		}
	}()
	wg.Wait()

	snap, err := s.Snapshot("mkt-1")
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	// The last applied update wins: arrival order is preserved.
	if snap.Yes.Bid == nil || snap.Yes.Bid.Size != n {
		t.Errorf("expected last update (size %d) to be visible, got %+v", n, snap.Yes.Bid)
	}
}
