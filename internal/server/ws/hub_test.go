package ws

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/paritybot/paritybot/internal/domain"
)

// stubBus satisfies domain.SignalBus with channels that never deliver, so hub
// tests exercise the client lifecycle without Redis.
type stubBus struct{}

func (stubBus) Publish(ctx context.Context, channel string, payload []byte) error { return nil }

func (stubBus) Subscribe(ctx context.Context, channel string) (<-chan []byte, error) {
	return make(chan []byte), nil
}

func (stubBus) StreamAppend(ctx context.Context, stream string, payload []byte) error { return nil }

func (stubBus) StreamRead(ctx context.Context, stream string, lastID string, count int) ([]domain.StreamMessage, error) {
	return nil, nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestClient(h *Hub) *client {
	return &client{
		hub:  h,
		send: make(chan []byte, sendBufferSize),
		subs: map[string]bool{"arbs": true},
	}
}

func TestHubRegisterAndBroadcast(t *testing.T) {
	h := NewHub(stubBus{}, "detect", testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ran := make(chan error, 1)
	go func() { ran <- h.Run(ctx) }()

	c := newTestClient(h)
	h.register <- c

	h.broadcast <- broadcastMsg{channel: "arbs", data: []byte(`{"x":1}`)}

	select {
	case got := <-c.send:
		if string(got) != `{"x":1}` {
			t.Fatalf("got %q", got)
		}
	case <-time.After(time.Second):
		t.Fatal("subscribed client never received the broadcast")
	}

	cancel()
	if err := <-ran; !errors.Is(err, context.Canceled) {
		t.Fatalf("Run = %v, want context.Canceled", err)
	}
}

func TestHubUnregisterDoesNotBlockAfterShutdown(t *testing.T) {
	h := NewHub(stubBus{}, "detect", testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	ran := make(chan error, 1)
	go func() { ran <- h.Run(ctx) }()

	c := newTestClient(h)
	h.register <- c

	cancel()
	<-ran

	// A reader exiting after the hub stopped must still be able to hand
	// its client back without hanging.
	released := make(chan struct{})
	go func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
		close(released)
	}()

	select {
	case <-released:
	case <-time.After(time.Second):
		t.Fatal("unregister blocked after hub shutdown")
	}
}

func TestHubShutdownClosesClientSends(t *testing.T) {
	h := NewHub(stubBus{}, "full", testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	ran := make(chan error, 1)
	go func() { ran <- h.Run(ctx) }()

	c := newTestClient(h)
	h.register <- c

	cancel()
	<-ran

	select {
	case _, ok := <-c.send:
		if ok {
			t.Fatal("expected send channel closed, got a message")
		}
	case <-time.After(time.Second):
		t.Fatal("send channel not closed on shutdown")
	}
}
