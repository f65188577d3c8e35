package redis

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/paritybot/paritybot/internal/domain"
	"github.com/redis/go-redis/v9"
)

// bboTTL expires mirrored quotes that stop being refreshed, so a crashed
// feed process cannot leave stale prices behind for external readers.
const bboTTL = 5 * time.Minute

// BookMirror implements domain.BookMirror using one Redis hash per token.
//
// Key schema:
//
//	bbo:{tokenID} - hash with fields "bid_price", "bid_size", "ask_price",
//	                "ask_size" and "ts" (unix millis). A side with no quote
//	                has its fields absent.
type BookMirror struct {
	rdb *redis.Client
}

// NewBookMirror creates a BookMirror backed by the given Client.
func NewBookMirror(c *Client) *BookMirror {
	return &BookMirror{rdb: c.raw()}
}

func bboKey(tokenID string) string { return "bbo:" + tokenID }

// SetBBO replaces the mirrored best bid/ask for a token. A nil quote clears
// that side's fields so readers see its absence, not a zero price.
func (m *BookMirror) SetBBO(ctx context.Context, tokenID string, bid, ask *domain.Quote, ts time.Time) error {
	key := bboKey(tokenID)

	fields := map[string]interface{}{
		"ts": ts.UnixMilli(),
	}
	var clear []string
	if bid != nil {
		fields["bid_price"] = strconv.FormatFloat(bid.Price, 'f', -1, 64)
		fields["bid_size"] = strconv.FormatFloat(bid.Size, 'f', -1, 64)
	} else {
		clear = append(clear, "bid_price", "bid_size")
	}
	if ask != nil {
		fields["ask_price"] = strconv.FormatFloat(ask.Price, 'f', -1, 64)
		fields["ask_size"] = strconv.FormatFloat(ask.Size, 'f', -1, 64)
	} else {
		clear = append(clear, "ask_price", "ask_size")
	}

	pipe := m.rdb.TxPipeline()
	pipe.HSet(ctx, key, fields)
	if len(clear) > 0 {
		pipe.HDel(ctx, key, clear...)
	}
	pipe.Expire(ctx, key, bboTTL)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis: set bbo %s: %w", tokenID, err)
	}
	return nil
}

// GetBBO returns the mirrored best bid/ask for a token. A missing side comes
// back nil; a missing key is domain.ErrNotFound.
func (m *BookMirror) GetBBO(ctx context.Context, tokenID string) (*domain.Quote, *domain.Quote, error) {
	vals, err := m.rdb.HGetAll(ctx, bboKey(tokenID)).Result()
	if err != nil {
		return nil, nil, fmt.Errorf("redis: get bbo %s: %w", tokenID, err)
	}
	if len(vals) == 0 {
		return nil, nil, fmt.Errorf("redis: get bbo %s: %w", tokenID, domain.ErrNotFound)
	}

	bid, err := quoteFromFields(vals, "bid_price", "bid_size")
	if err != nil {
		return nil, nil, fmt.Errorf("redis: get bbo %s: %w", tokenID, err)
	}
	ask, err := quoteFromFields(vals, "ask_price", "ask_size")
	if err != nil {
		return nil, nil, fmt.Errorf("redis: get bbo %s: %w", tokenID, err)
	}
	return bid, ask, nil
}

// Remove deletes the mirrored state for a token.
func (m *BookMirror) Remove(ctx context.Context, tokenID string) error {
	if err := m.rdb.Del(ctx, bboKey(tokenID)).Err(); err != nil {
		return fmt.Errorf("redis: remove bbo %s: %w", tokenID, err)
	}
	return nil
}

func quoteFromFields(vals map[string]string, priceField, sizeField string) (*domain.Quote, error) {
	ps, ok := vals[priceField]
	if !ok {
		return nil, nil
	}
	price, err := strconv.ParseFloat(ps, 64)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", priceField, err)
	}
	size, err := strconv.ParseFloat(vals[sizeField], 64)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", sizeField, err)
	}
	return &domain.Quote{Price: price, Size: size}, nil
}

// Compile-time interface check.
var _ domain.BookMirror = (*BookMirror)(nil)
