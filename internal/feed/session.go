// Package feed maintains the real-time market data session: the WebSocket
// lifecycle, subscription replay across reconnects, and a bounded dispatch
// queue that decouples detection work from the read loop.
package feed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/paritybot/paritybot/internal/arb"
	"github.com/paritybot/paritybot/internal/book"
	"github.com/paritybot/paritybot/internal/domain"
)

const (
	// writeWait is the time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// pongWait is the time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// pingPeriod sends pings to the peer at this interval. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	handshakeTimeout = 15 * time.Second

	marketChannel = "market"

	// defaultQueueSize bounds the number of distinct markets awaiting
	// detection at any moment.
	defaultQueueSize = 1024
)

// subscription tracks one market's token pair for replay across reconnects.
type subscription struct {
	marketID   string
	yesTokenID string
	noTokenID  string
}

// SessionConfig carries the tunables for a Session.
type SessionConfig struct {
	URL       string
	Backoff   Backoff
	QueueSize int
}

// Session owns the real-time connection to the market data feed. It keeps the
// orderbook store current, replays subscriptions after every reconnect, and
// hands updated markets to the detector through a bounded, coalescing queue.
//
// The session moves between three states: disconnected, connecting, and
// subscribed. State changes are reported to registered listeners.
type Session struct {
	cfg      SessionConfig
	store    *book.Store
	detector *arb.Detector
	logger   *slog.Logger

	mu        sync.Mutex
	state     domain.ConnectionState
	conn      *websocket.Conn
	subs      map[string]subscription
	listeners []domain.SessionListener

	queue *dispatchQueue

	// dialer and sleep are seams for tests; Run goes through them for
	// every connection attempt and every reconnect wait.
	dialer func(ctx context.Context) (*websocket.Conn, error)
	sleep  func(ctx context.Context, d time.Duration) error
}

// NewSession creates a session against the given feed URL. The session does
// not connect until Run is called; markets may be subscribed beforehand and
// will be replayed on the first successful connect.
func NewSession(cfg SessionConfig, store *book.Store, detector *arb.Detector, logger *slog.Logger) *Session {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = defaultQueueSize
	}
	if cfg.Backoff.Base <= 0 {
		cfg.Backoff = DefaultBackoff()
	}
	l := logger.With(slog.String("component", "feed"))
	s := &Session{
		cfg:      cfg,
		store:    store,
		detector: detector,
		logger:   l,
		state:    domain.ConnDisconnected,
		subs:     make(map[string]subscription),
		queue:    newDispatchQueue(cfg.QueueSize, l),
		sleep:    sleepCtx,
	}
	s.dialer = s.dial
	return s
}

// AddListener registers a listener for orderbook and connection-state events.
// Listeners must be registered before Run starts.
func (s *Session) AddListener(l domain.SessionListener) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = append(s.listeners, l)
}

// State returns the current connection state.
func (s *Session) State() domain.ConnectionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Markets returns the market IDs with active subscriptions, sorted.
func (s *Session) Markets() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]string, 0, len(s.subs))
	for id := range s.subs {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// SubscribeMarket registers a market's YES/NO token pair with the orderbook
// store and queues the feed subscription. Safe to call at any time: while
// disconnected the subscription is held and replayed on the next connect.
func (s *Session) SubscribeMarket(marketID, yesTokenID, noTokenID string) error {
	s.store.Register(marketID,
		domain.Token{ID: yesTokenID, Outcome: domain.OutcomeYes},
		domain.Token{ID: noTokenID, Outcome: domain.OutcomeNo})

	s.mu.Lock()
	defer s.mu.Unlock()
	s.subs[marketID] = subscription{marketID: marketID, yesTokenID: yesTokenID, noTokenID: noTokenID}

	if s.conn != nil {
		cmd := wsCommand{Type: "subscribe", Channel: marketChannel, Assets: []string{yesTokenID, noTokenID}}
		if err := s.sendLocked(cmd); err != nil {
			// The reconnect path will replay the stored subscription.
			s.logger.Warn("subscribe send failed, will replay on reconnect",
				slog.String("market_id", marketID), slog.Any("error", err))
		}
	}
	return nil
}

// UnsubscribeMarket removes a market. Its books stop being tracked
// immediately and its debounce state is discarded.
func (s *Session) UnsubscribeMarket(marketID string) error {
	s.mu.Lock()
	sub, ok := s.subs[marketID]
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("feed: unsubscribe %s: %w", marketID, domain.ErrNotFound)
	}
	delete(s.subs, marketID)

	if s.conn != nil {
		cmd := wsCommand{Type: "unsubscribe", Channel: marketChannel, Assets: []string{sub.yesTokenID, sub.noTokenID}}
		if err := s.sendLocked(cmd); err != nil {
			s.logger.Warn("unsubscribe send failed",
				slog.String("market_id", marketID), slog.Any("error", err))
		}
	}
	s.mu.Unlock()

	s.store.Unregister(marketID)
	s.detector.Forget(marketID)
	s.queue.forget(marketID)
	return nil
}

// Run connects and serves the feed until ctx is cancelled. Transient
// failures reconnect with exponential backoff and full subscription replay;
// only authentication rejection and context cancellation end the loop.
func (s *Session) Run(ctx context.Context) error {
	backoff := s.cfg.Backoff

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		s.dispatchLoop(ctx)
	}()
	defer wg.Wait()

	for {
		s.transition(domain.ConnConnecting, nil)

		conn, err := s.dialer(ctx)
		if err != nil {
			s.transition(domain.ConnDisconnected, err)
			if errors.Is(err, domain.ErrUnauthorized) || ctx.Err() != nil {
				return err
			}
			delay := backoff.Next()
			s.logger.Warn("connect failed, retrying",
				slog.Duration("delay", delay), slog.Any("error", err))
			if err := s.sleep(ctx, delay); err != nil {
				return err
			}
			continue
		}

		if err := s.attach(conn); err != nil {
			s.detach()
			s.transition(domain.ConnDisconnected, err)
			if ctx.Err() != nil {
				return ctx.Err()
			}
			delay := backoff.Next()
			s.logger.Warn("subscription replay failed, reconnecting",
				slog.Duration("delay", delay), slog.Any("error", err))
			if err := s.sleep(ctx, delay); err != nil {
				return err
			}
			continue
		}
		s.transition(domain.ConnSubscribed, nil)
		backoff.Reset()

		err = s.serve(ctx, conn)
		s.detach()
		s.transition(domain.ConnDisconnected, err)
		if ctx.Err() != nil {
			return ctx.Err()
		}

		delay := backoff.Next()
		s.logger.Warn("feed disconnected, reconnecting",
			slog.Duration("delay", delay), slog.Any("error", err))
		if err := s.sleep(ctx, delay); err != nil {
			return err
		}
	}
}

// sleepCtx waits for d or until ctx is cancelled.
func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// dial opens the WebSocket. A 401/403 handshake response is authentication
// rejection and is returned as a fatal error.
func (s *Session) dial(ctx context.Context) (*websocket.Conn, error) {
	dialer := websocket.Dialer{HandshakeTimeout: handshakeTimeout}

	conn, resp, err := dialer.DialContext(ctx, s.cfg.URL, nil)
	if err != nil {
		if resp != nil && (resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden) {
			return nil, fmt.Errorf("feed: connect: status %d: %w", resp.StatusCode, domain.ErrUnauthorized)
		}
		return nil, fmt.Errorf("feed: connect: %w", err)
	}
	return conn, nil
}

// attach installs the connection and replays every held subscription.
func (s *Session) attach(conn *websocket.Conn) error {
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	s.mu.Lock()
	defer s.mu.Unlock()
	s.conn = conn

	for _, sub := range s.subs {
		cmd := wsCommand{Type: "subscribe", Channel: marketChannel, Assets: []string{sub.yesTokenID, sub.noTokenID}}
		if err := s.sendLocked(cmd); err != nil {
			return fmt.Errorf("feed: replay subscription %s: %w", sub.marketID, err)
		}
	}
	return nil
}

func (s *Session) detach() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn != nil {
		s.conn.Close()
		s.conn = nil
	}
}

// serve reads messages until the connection drops or ctx is cancelled.
func (s *Session) serve(ctx context.Context, conn *websocket.Conn) error {
	done := make(chan struct{})
	defer close(done)
	go s.pingLoop(conn, done)

	go func() {
		select {
		case <-ctx.Done():
			conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(writeWait))
			conn.Close()
		case <-done:
		}
	}()

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("feed: read: %v: %w", err, domain.ErrWSDisconnect)
		}
		s.handleMessage(raw)
	}
}

func (s *Session) pingLoop(conn *websocket.Conn, done <-chan struct{}) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			deadline := time.Now().Add(writeWait)
			if err := conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
				return
			}
		}
	}
}

// handleMessage routes one inbound frame. Malformed messages are logged and
// dropped without affecting the connection or stored books.
func (s *Session) handleMessage(raw []byte) {
	var env wsEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		s.logger.Warn("dropping malformed message", slog.Any("error", err))
		return
	}
	eventType := env.EventType
	if eventType == "" {
		eventType = env.MsgType
	}

	switch eventType {
	case "book":
		deltas, err := parseBook(raw)
		if err != nil {
			s.logger.Warn("dropping malformed book message", slog.Any("error", err))
			return
		}
		for _, d := range deltas {
			s.applyDelta(d)
		}
	case "price_change":
		d, err := parsePriceChange(raw)
		if err != nil {
			s.logger.Warn("dropping malformed price_change message", slog.Any("error", err))
			return
		}
		s.applyDelta(d)
	default:
		// Heartbeats, acks and unknown event types are ignored.
	}
}

// applyDelta updates the orderbook store and enqueues the market for
// detection. Rejected updates leave the stored state untouched.
func (s *Session) applyDelta(d Delta) {
	pair, err := s.store.UpdateAt(d.TokenID, d.Side, d.Price, d.Size, d.At)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			// Update for a token that was unsubscribed mid-flight.
			return
		}
		s.logger.Warn("dropping rejected update",
			slog.String("token_id", d.TokenID), slog.Any("error", err))
		return
	}
	s.queue.enqueue(pair.MarketID)
}

// dispatchLoop drains the coalescing queue, evaluating each dirty market at
// most once per pass. On shutdown it drains whatever is already queued.
func (s *Session) dispatchLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			s.drain()
			return
		case <-s.queue.wake:
			for {
				marketID, ok := s.queue.pop()
				if !ok {
					break
				}
				s.evaluate(ctx, marketID)
			}
		}
	}
}

func (s *Session) drain() {
	for {
		marketID, ok := s.queue.pop()
		if !ok {
			return
		}
		s.evaluate(context.Background(), marketID)
	}
}

func (s *Session) evaluate(ctx context.Context, marketID string) {
	pair, err := s.store.Snapshot(marketID)
	if err != nil {
		return
	}

	s.mu.Lock()
	listeners := append([]domain.SessionListener(nil), s.listeners...)
	s.mu.Unlock()
	for _, l := range listeners {
		l.OnOrderbookUpdated(domain.OrderbookUpdated{Pair: pair})
	}

	s.detector.Evaluate(ctx, pair)
}

// sendLocked writes a command on the current connection. Caller holds s.mu.
func (s *Session) sendLocked(cmd wsCommand) error {
	data, err := json.Marshal(cmd)
	if err != nil {
		return fmt.Errorf("marshal command: %w", err)
	}
	s.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return s.conn.WriteMessage(websocket.TextMessage, data)
}

func (s *Session) transition(to domain.ConnectionState, cause error) {
	s.mu.Lock()
	from := s.state
	if from == to {
		s.mu.Unlock()
		return
	}
	s.state = to
	listeners := append([]domain.SessionListener(nil), s.listeners...)
	s.mu.Unlock()

	s.logger.Info("connection state changed",
		slog.String("from", string(from)), slog.String("to", string(to)))

	ev := domain.ConnectionStateChanged{From: from, To: to, At: time.Now().UTC(), Err: cause}
	for _, l := range listeners {
		l.OnConnectionStateChanged(ev)
	}
}
