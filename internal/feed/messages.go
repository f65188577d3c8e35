package feed

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/paritybot/paritybot/internal/domain"
)

// wsCommand is the JSON payload sent to subscribe or unsubscribe tokens.
type wsCommand struct {
	Type    string   `json:"type"` // "subscribe" or "unsubscribe"
	Channel string   `json:"channel,omitempty"`
	Assets  []string `json:"assets_ids,omitempty"`
}

// wsEnvelope carries just enough of an inbound message to route it.
type wsEnvelope struct {
	EventType string `json:"event_type"`
	MsgType   string `json:"msg_type"`
}

// wsPriceLevel is a single level; the feed sends prices and sizes as strings.
type wsPriceLevel struct {
	Price string `json:"price"`
	Size  string `json:"size"`
}

// wsBookMessage is a full snapshot for one token. Only the best level of each
// side is of interest here.
type wsBookMessage struct {
	AssetID   string         `json:"asset_id"`
	Bids      []wsPriceLevel `json:"bids"`
	Asks      []wsPriceLevel `json:"asks"`
	Timestamp string         `json:"timestamp"`
}

// wsPriceChange is an incremental level update. Size "0" removes the level.
type wsPriceChange struct {
	AssetID   string `json:"asset_id"`
	Side      string `json:"side"`
	Price     string `json:"price"`
	Size      string `json:"size"`
	Timestamp string `json:"timestamp"`
}

// Delta is one normalized update ready for the orderbook store.
type Delta struct {
	TokenID string
	Side    domain.Side
	Price   float64
	Size    float64
	At      time.Time
}

// normalizeSide maps the feed's side names ("bid"/"ask" or the exchange's
// "BUY"/"SELL") onto domain sides.
func normalizeSide(s string) (domain.Side, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "bid", "buy":
		return domain.SideBid, nil
	case "ask", "sell":
		return domain.SideAsk, nil
	default:
		return "", fmt.Errorf("feed: side %q: %w", s, domain.ErrMalformedMessage)
	}
}

func parseAmount(field, v string) (float64, error) {
	f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
	if err != nil {
		return 0, fmt.Errorf("feed: %s %q: %w", field, v, domain.ErrMalformedMessage)
	}
	return f, nil
}

// parsePriceChange normalizes an incremental update into a Delta.
func parsePriceChange(raw []byte) (Delta, error) {
	var msg wsPriceChange
	if err := json.Unmarshal(raw, &msg); err != nil {
		return Delta{}, fmt.Errorf("feed: price_change: %v: %w", err, domain.ErrMalformedMessage)
	}
	if msg.AssetID == "" {
		return Delta{}, fmt.Errorf("feed: price_change without asset_id: %w", domain.ErrMalformedMessage)
	}
	side, err := normalizeSide(msg.Side)
	if err != nil {
		return Delta{}, err
	}
	price, err := parseAmount("price", msg.Price)
	if err != nil {
		return Delta{}, err
	}
	size, err := parseAmount("size", msg.Size)
	if err != nil {
		return Delta{}, err
	}
	return Delta{TokenID: msg.AssetID, Side: side, Price: price, Size: size, At: parseTimestamp(msg.Timestamp)}, nil
}

// parseBook normalizes a full snapshot into at most two Deltas: the best bid
// and the best ask. An empty side yields a size-0 delta so the store clears it.
func parseBook(raw []byte) ([]Delta, error) {
	var msg wsBookMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		return nil, fmt.Errorf("feed: book: %v: %w", err, domain.ErrMalformedMessage)
	}
	if msg.AssetID == "" {
		return nil, fmt.Errorf("feed: book without asset_id: %w", domain.ErrMalformedMessage)
	}
	at := parseTimestamp(msg.Timestamp)

	best := func(levels []wsPriceLevel, wantHighest bool) (price, size float64, err error) {
		bestIdx := -1
		for i, lvl := range levels {
			p, perr := parseAmount("price", lvl.Price)
			if perr != nil {
				return 0, 0, perr
			}
			if bestIdx == -1 || (wantHighest && p > price) || (!wantHighest && p < price) {
				bestIdx, price = i, p
			}
		}
		if bestIdx == -1 {
			return 0, 0, nil
		}
		size, err = parseAmount("size", levels[bestIdx].Size)
		return price, size, err
	}

	bidPrice, bidSize, err := best(msg.Bids, true)
	if err != nil {
		return nil, err
	}
	askPrice, askSize, err := best(msg.Asks, false)
	if err != nil {
		return nil, err
	}

	return []Delta{
		{TokenID: msg.AssetID, Side: domain.SideBid, Price: bidPrice, Size: bidSize, At: at},
		{TokenID: msg.AssetID, Side: domain.SideAsk, Price: askPrice, Size: askSize, At: at},
	}, nil
}

// parseTimestamp accepts RFC3339 or unix milliseconds; falls back to now.
func parseTimestamp(s string) time.Time {
	if s == "" {
		return time.Now().UTC()
	}
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t
	}
	if ms, err := strconv.ParseInt(s, 10, 64); err == nil {
		return time.UnixMilli(ms).UTC()
	}
	return time.Now().UTC()
}
