package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/paritybot/paritybot/internal/domain"
)

// RebalanceStore implements domain.RebalanceStore using PostgreSQL.
type RebalanceStore struct {
	pool *pgxpool.Pool
}

// NewRebalanceStore creates a RebalanceStore backed by the given pool.
func NewRebalanceStore(pool *pgxpool.Pool) *RebalanceStore {
	return &RebalanceStore{pool: pool}
}

// Create stores an emitted rebalance action.
func (s *RebalanceStore) Create(ctx context.Context, action domain.RebalanceAction) error {
	const query = `
		INSERT INTO rebalance_actions (id, action_type, amount, reason, created_at)
		VALUES ($1, $2, $3, $4, $5)`

	_, err := s.pool.Exec(ctx, query,
		action.ID, string(action.Type), action.Amount, action.Reason, action.CreatedAt)
	if err != nil {
		return fmt.Errorf("postgres: create rebalance action %s: %w", action.ID, err)
	}
	return nil
}

// ListRecent returns the most recent rebalance actions, newest first.
func (s *RebalanceStore) ListRecent(ctx context.Context, limit int) ([]domain.RebalanceAction, error) {
	const query = `
		SELECT id, action_type, amount, reason, created_at
		FROM rebalance_actions
		ORDER BY created_at DESC
		LIMIT $1`

	rows, err := s.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: list recent rebalance actions: %w", err)
	}
	defer rows.Close()

	var actions []domain.RebalanceAction
	for rows.Next() {
		var (
			a          domain.RebalanceAction
			actionType string
		)
		if err := rows.Scan(&a.ID, &actionType, &a.Amount, &a.Reason, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("postgres: scan rebalance action: %w", err)
		}
		a.Type = domain.RebalanceActionType(actionType)
		actions = append(actions, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: iterate rebalance actions: %w", err)
	}
	return actions, nil
}

// Compile-time interface check.
var _ domain.RebalanceStore = (*RebalanceStore)(nil)
