package feed

import (
	"math/rand"
	"time"
)

// Backoff produces reconnect delays that double from Base up to Max and then
// plateau. Jitter spreads simultaneous reconnects: each delay is stretched by
// up to JitterFrac of itself.
type Backoff struct {
	Base       time.Duration
	Max        time.Duration
	JitterFrac float64

	attempt int
	rand    func() float64 // nil means math/rand
}

// Next returns the delay to wait before the next attempt and advances the
// sequence.
func (b *Backoff) Next() time.Duration {
	d := b.Base
	for i := 0; i < b.attempt && d < b.Max; i++ {
		d *= 2
	}
	if d > b.Max {
		d = b.Max
	}
	b.attempt++

	if b.JitterFrac > 0 {
		r := b.rand
		if r == nil {
			r = rand.Float64
		}
		d += time.Duration(float64(d) * b.JitterFrac * r())
		if d > b.Max {
			d = b.Max
		}
	}
	return d
}

// DefaultBackoff returns the reconnect schedule used when none is configured:
// 2s doubling up to a 60s plateau, with up to 20% jitter.
func DefaultBackoff() Backoff {
	return Backoff{
		Base:       2 * time.Second,
		Max:        60 * time.Second,
		JitterFrac: 0.2,
	}
}

// Reset restarts the sequence after a successful connection.
func (b *Backoff) Reset() {
	b.attempt = 0
}
