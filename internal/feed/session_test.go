package feed

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/paritybot/paritybot/internal/arb"
	"github.com/paritybot/paritybot/internal/book"
	"github.com/paritybot/paritybot/internal/domain"
)

type recordingListener struct {
	books  []domain.OrderbookUpdated
	states []domain.ConnectionStateChanged
}

func (r *recordingListener) OnOrderbookUpdated(ev domain.OrderbookUpdated) {
	r.books = append(r.books, ev)
}

func (r *recordingListener) OnConnectionStateChanged(ev domain.ConnectionStateChanged) {
	r.states = append(r.states, ev)
}

func newTestSession(t *testing.T) (*Session, *book.Store, *[]domain.ArbOpportunity) {
	t.Helper()
	logger := testLogger()
	store := book.NewStore(time.Minute, logger)

	var detected []domain.ArbOpportunity
	sink := arb.SinkFunc(func(ctx context.Context, opp domain.ArbOpportunity) {
		detected = append(detected, opp)
	})
	detector := arb.NewDetector(0.003, 0, sink, logger)

	sess := NewSession(SessionConfig{URL: "ws://unused"}, store, detector, logger)
	return sess, store, &detected
}

func TestSessionStartsDisconnected(t *testing.T) {
	sess, _, _ := newTestSession(t)
	if got := sess.State(); got != domain.ConnDisconnected {
		t.Fatalf("state = %q, want disconnected", got)
	}
}

func TestSessionHoldsSubscriptionsWhileDisconnected(t *testing.T) {
	sess, store, _ := newTestSession(t)

	if err := sess.SubscribeMarket("mkt-1", "tok-yes", "tok-no"); err != nil {
		t.Fatalf("SubscribeMarket: %v", err)
	}

	// The store accepts updates for the registered tokens immediately.
	if _, err := store.Update("tok-yes", domain.SideAsk, 0.55, 100); err != nil {
		t.Fatalf("Update after subscribe: %v", err)
	}

	sess.mu.Lock()
	sub, ok := sess.subs["mkt-1"]
	sess.mu.Unlock()
	if !ok || sub.yesTokenID != "tok-yes" || sub.noTokenID != "tok-no" {
		t.Fatalf("subscription not held for replay: %+v", sub)
	}
}

func TestSessionUnsubscribeUnknownMarket(t *testing.T) {
	sess, _, _ := newTestSession(t)
	if err := sess.UnsubscribeMarket("nope"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestSessionUnsubscribeStopsTracking(t *testing.T) {
	sess, store, _ := newTestSession(t)

	if err := sess.SubscribeMarket("mkt-1", "tok-yes", "tok-no"); err != nil {
		t.Fatalf("SubscribeMarket: %v", err)
	}
	if err := sess.UnsubscribeMarket("mkt-1"); err != nil {
		t.Fatalf("UnsubscribeMarket: %v", err)
	}

	if _, err := store.Update("tok-yes", domain.SideAsk, 0.55, 100); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("update after unsubscribe: err = %v, want ErrNotFound", err)
	}
}

func TestSessionTransitionNotifiesListeners(t *testing.T) {
	sess, _, _ := newTestSession(t)
	lis := &recordingListener{}
	sess.AddListener(lis)

	sess.transition(domain.ConnConnecting, nil)
	sess.transition(domain.ConnSubscribed, nil)
	sess.transition(domain.ConnSubscribed, nil) // no-op, same state
	cause := errors.New("read: connection reset")
	sess.transition(domain.ConnDisconnected, cause)

	if len(lis.states) != 3 {
		t.Fatalf("got %d state events, want 3", len(lis.states))
	}
	if lis.states[0].From != domain.ConnDisconnected || lis.states[0].To != domain.ConnConnecting {
		t.Errorf("first transition = %+v", lis.states[0])
	}
	if lis.states[1].To != domain.ConnSubscribed {
		t.Errorf("second transition = %+v", lis.states[1])
	}
	if lis.states[2].Err == nil {
		t.Error("disconnect event should carry its cause")
	}
}

func TestSessionDropsMalformedMessages(t *testing.T) {
	sess, store, _ := newTestSession(t)
	if err := sess.SubscribeMarket("mkt-1", "tok-yes", "tok-no"); err != nil {
		t.Fatalf("SubscribeMarket: %v", err)
	}
	if _, err := store.Update("tok-yes", domain.SideAsk, 0.60, 50); err != nil {
		t.Fatalf("seed update: %v", err)
	}

	samples := [][]byte{
		[]byte(`not json`),
		[]byte(`{"event_type":"price_change","asset_id":"tok-yes","side":"???","price":"0.5","size":"1"}`),
		[]byte(`{"event_type":"book"`),
		[]byte(`{"event_type":"price_change","asset_id":"tok-yes","side":"SELL","price":"1.5","size":"1"}`),
	}
	for _, raw := range samples {
		sess.handleMessage(raw)
	}

	// Prior state is untouched by any of the dropped messages.
	pair, err := store.Snapshot("mkt-1")
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	if pair.Yes.Ask == nil || pair.Yes.Ask.Price != 0.60 {
		t.Fatalf("yes ask = %+v, want 0.60 preserved", pair.Yes.Ask)
	}
}

func TestSessionMessageFlowTriggersDetection(t *testing.T) {
	sess, _, detected := newTestSession(t)
	lis := &recordingListener{}
	sess.AddListener(lis)

	if err := sess.SubscribeMarket("mkt-1", "tok-yes", "tok-no"); err != nil {
		t.Fatalf("SubscribeMarket: %v", err)
	}

	// An underpriced pair: 0.50 + 0.48 = 0.98 < 1 - threshold.
	sess.handleMessage([]byte(`{"event_type":"price_change","asset_id":"tok-yes","side":"SELL","price":"0.50","size":"100"}`))
	sess.handleMessage([]byte(`{"event_type":"price_change","asset_id":"tok-no","side":"SELL","price":"0.48","size":"100"}`))

	sess.drain()

	if len(lis.books) != 1 {
		t.Fatalf("got %d orderbook events, want 1 (coalesced)", len(lis.books))
	}
	if len(*detected) != 1 {
		t.Fatalf("got %d opportunities, want 1", len(*detected))
	}
	opp := (*detected)[0]
	if opp.Direction != domain.ArbBuyBoth {
		t.Errorf("direction = %q, want BUY_BOTH", opp.Direction)
	}
}

func TestSessionUnknownEventTypeIgnored(t *testing.T) {
	sess, _, _ := newTestSession(t)
	sess.handleMessage([]byte(`{"event_type":"heartbeat"}`))
	if got := sess.queue.len(); got != 0 {
		t.Fatalf("queue len = %d, want 0", got)
	}
}

func TestSessionReplayFailureBacksOff(t *testing.T) {
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer srv.Close()

	sess, _, _ := newTestSession(t)
	sess.cfg.URL = "ws" + strings.TrimPrefix(srv.URL, "http")
	sess.cfg.Backoff = Backoff{Base: 100 * time.Millisecond, Max: time.Second}

	if err := sess.SubscribeMarket("mkt-1", "tok-yes", "tok-no"); err != nil {
		t.Fatalf("SubscribeMarket: %v", err)
	}

	// Every dial succeeds, but the connection is closed underneath the
	// session so replaying the held subscription fails on each attempt.
	dial := sess.dialer
	sess.dialer = func(ctx context.Context) (*websocket.Conn, error) {
		conn, err := dial(ctx)
		if err != nil {
			return nil, err
		}
		conn.Close()
		return conn, nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var delays []time.Duration
	sess.sleep = func(ctx context.Context, d time.Duration) error {
		delays = append(delays, d)
		if len(delays) == 3 {
			cancel()
		}
		return ctx.Err()
	}

	if err := sess.Run(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("Run = %v, want context.Canceled", err)
	}

	if len(delays) != 3 {
		t.Fatalf("got %d reconnect waits, want one per failed attempt (3)", len(delays))
	}
	want := []time.Duration{100 * time.Millisecond, 200 * time.Millisecond, 400 * time.Millisecond}
	for i, d := range delays {
		if d != want[i] {
			t.Fatalf("delays = %v, want %v", delays, want)
		}
	}

	sess.mu.Lock()
	conn := sess.conn
	sess.mu.Unlock()
	if conn != nil {
		t.Error("connection left installed after failed replay")
	}
}
