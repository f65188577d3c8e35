package feed

import (
	"testing"
	"time"
)

func TestBackoffDoublesThenPlateaus(t *testing.T) {
	b := Backoff{Base: 2 * time.Second, Max: 60 * time.Second}

	want := []time.Duration{
		2 * time.Second,
		4 * time.Second,
		8 * time.Second,
		16 * time.Second,
		32 * time.Second,
		60 * time.Second,
		60 * time.Second,
		60 * time.Second,
	}
	for i, w := range want {
		if got := b.Next(); got != w {
			t.Fatalf("attempt %d: got %v, want %v", i, got, w)
		}
	}
}

func TestBackoffReset(t *testing.T) {
	b := Backoff{Base: time.Second, Max: 30 * time.Second}
	b.Next()
	b.Next()
	b.Next()
	b.Reset()

	if got := b.Next(); got != time.Second {
		t.Fatalf("after reset got %v, want %v", got, time.Second)
	}
}

func TestBackoffJitterStaysWithinCap(t *testing.T) {
	b := Backoff{
		Base:       40 * time.Second,
		Max:        60 * time.Second,
		JitterFrac: 0.5,
		rand:       func() float64 { return 1.0 },
	}

	// 40s + 50% jitter would be 60s; the cap holds.
	if got := b.Next(); got != 60*time.Second {
		t.Fatalf("got %v, want 60s", got)
	}
	// Plateau plus maximum jitter is still capped at Max.
	for i := 0; i < 5; i++ {
		if got := b.Next(); got > 60*time.Second {
			t.Fatalf("attempt %d exceeded cap: %v", i, got)
		}
	}
}

func TestBackoffJitterWidensDelay(t *testing.T) {
	b := Backoff{
		Base:       2 * time.Second,
		Max:        60 * time.Second,
		JitterFrac: 0.2,
		rand:       func() float64 { return 0.5 },
	}

	// 2s + 0.2*0.5*2s = 2.2s
	if got, want := b.Next(), 2200*time.Millisecond; got != want {
		t.Fatalf("got %v, want %v", got, want)
	}
}
