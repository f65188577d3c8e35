package domain

import (
	"context"
	"io"
	"time"
)

// OpportunityStore persists detected arbitrage opportunities.
type OpportunityStore interface {
	Create(ctx context.Context, opp ArbOpportunity) error
	ListRecent(ctx context.Context, limit int) ([]ArbOpportunity, error)
	ListBefore(ctx context.Context, before time.Time) ([]ArbOpportunity, error)
	DeleteBefore(ctx context.Context, before time.Time) (int64, error)
}

// RebalanceStore persists emitted rebalance actions.
type RebalanceStore interface {
	Create(ctx context.Context, action RebalanceAction) error
	ListRecent(ctx context.Context, limit int) ([]RebalanceAction, error)
}

// AccountSource is the boundary to the external account-state collaborator.
// Implementations poll the exchange (or a paper-trading ledger) and return
// the current inventory snapshot.
type AccountSource interface {
	Position(ctx context.Context) (Position, error)
}

// BookMirror mirrors best bid/ask state to a shared cache so out-of-process
// consumers (dashboards, executors) can read it without a feed connection.
type BookMirror interface {
	SetBBO(ctx context.Context, tokenID string, bid, ask *Quote, ts time.Time) error
	GetBBO(ctx context.Context, tokenID string) (bid, ask *Quote, err error)
	Remove(ctx context.Context, tokenID string) error
}

// StreamMessage represents a single entry from a durable stream.
type StreamMessage struct {
	ID      string
	Payload []byte
}

// SignalBus provides pub/sub and durable streams for structured events
// consumed by external executors.
type SignalBus interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	Subscribe(ctx context.Context, channel string) (<-chan []byte, error)
	StreamAppend(ctx context.Context, stream string, payload []byte) error
	StreamRead(ctx context.Context, stream string, lastID string, count int) ([]StreamMessage, error)
}

// RateLimiter bounds request rates per key. Allow reports whether one more
// request fits under the limit for the window, counting it when it does.
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

// LockManager provides distributed locks so only one process runs an
// exclusive job (e.g. a rebalance pass) at a time. Acquire returns
// ErrLockHeld when another holder owns the lock.
type LockManager interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (func(), error)
}

// BlobInfo describes a stored object.
type BlobInfo struct {
	Path         string
	Size         int64
	ContentType  string
	LastModified time.Time
}

// BlobWriter uploads data to object storage.
type BlobWriter interface {
	Put(ctx context.Context, path string, data io.Reader, contentType string) error
	PutMultipart(ctx context.Context, path string, data io.Reader, partSize int64) error
}

// BlobReader retrieves data from object storage.
type BlobReader interface {
	Get(ctx context.Context, path string) (io.ReadCloser, error)
	List(ctx context.Context, prefix string) ([]BlobInfo, error)
	Exists(ctx context.Context, path string) (bool, error)
}

// Archiver moves aged opportunity history from the database to cold storage.
type Archiver interface {
	ArchiveOpportunities(ctx context.Context, before time.Time) (int64, error)
}
