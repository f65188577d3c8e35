// Package account provides implementations of the account-state boundary:
// a static source for paper trading and an HTTP source that polls an
// external balance endpoint.
package account

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/paritybot/paritybot/internal/domain"
)

// StaticSource serves a fixed position, optionally mutated by tests or a
// paper-trading loop.
type StaticSource struct {
	mu  sync.Mutex
	pos domain.Position
}

// NewStaticSource creates a StaticSource with the given starting balances.
func NewStaticSource(usdc, yesTokens, noTokens float64) *StaticSource {
	return &StaticSource{pos: domain.Position{
		USDC:      usdc,
		YesTokens: yesTokens,
		NoTokens:  noTokens,
		AsOf:      time.Now().UTC(),
	}}
}

// Position returns the current position.
func (s *StaticSource) Position(ctx context.Context) (domain.Position, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pos, nil
}

// Set replaces the position.
func (s *StaticSource) Set(pos domain.Position) {
	s.mu.Lock()
	defer s.mu.Unlock()
	pos.AsOf = time.Now().UTC()
	s.pos = pos
}

// HTTPSource polls an external balance endpoint that returns the account
// snapshot as JSON.
type HTTPSource struct {
	url    string
	client *http.Client
}

// NewHTTPSource creates an HTTPSource for the given endpoint URL.
func NewHTTPSource(url string, timeout time.Duration) *HTTPSource {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HTTPSource{
		url:    url,
		client: &http.Client{Timeout: timeout},
	}
}

type positionResponse struct {
	USDC      float64 `json:"usdc"`
	YesTokens float64 `json:"yes_tokens"`
	NoTokens  float64 `json:"no_tokens"`
}

// Position fetches the current account snapshot.
func (s *HTTPSource) Position(ctx context.Context) (domain.Position, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.url, nil)
	if err != nil {
		return domain.Position{}, fmt.Errorf("account: build request: %w", err)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return domain.Position{}, fmt.Errorf("account: fetch position: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return domain.Position{}, fmt.Errorf("account: fetch position: status %d: %w",
			resp.StatusCode, domain.ErrUnauthorized)
	}
	if resp.StatusCode != http.StatusOK {
		return domain.Position{}, fmt.Errorf("account: fetch position: status %d", resp.StatusCode)
	}

	var body positionResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return domain.Position{}, fmt.Errorf("account: decode position: %w", err)
	}

	return domain.Position{
		USDC:      body.USDC,
		YesTokens: body.YesTokens,
		NoTokens:  body.NoTokens,
		AsOf:      time.Now().UTC(),
	}, nil
}

// Compile-time interface checks.
var (
	_ domain.AccountSource = (*StaticSource)(nil)
	_ domain.AccountSource = (*HTTPSource)(nil)
)
