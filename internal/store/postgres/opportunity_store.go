package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/paritybot/paritybot/internal/domain"
)

// OpportunityStore implements domain.OpportunityStore using PostgreSQL.
type OpportunityStore struct {
	pool *pgxpool.Pool
}

// NewOpportunityStore creates an OpportunityStore backed by the given pool.
func NewOpportunityStore(pool *pgxpool.Pool) *OpportunityStore {
	return &OpportunityStore{pool: pool}
}

const opportunitySelectCols = `id, market_id, direction, profit_percent, cost,
	yes_price, no_price,
	eff_yes_ask, eff_yes_bid, eff_no_ask, eff_no_bid,
	detected_at`

// Create stores a detected opportunity.
func (s *OpportunityStore) Create(ctx context.Context, opp domain.ArbOpportunity) error {
	const query = `
		INSERT INTO opportunities (
			id, market_id, direction, profit_percent, cost,
			yes_price, no_price,
			eff_yes_ask, eff_yes_bid, eff_no_ask, eff_no_bid,
			detected_at
		) VALUES (
			$1, $2, $3, $4, $5,
			$6, $7,
			$8, $9, $10, $11,
			$12
		)`

	_, err := s.pool.Exec(ctx, query,
		opp.ID, opp.MarketID, string(opp.Direction), opp.ProfitPercent, opp.Cost,
		opp.YesPrice, opp.NoPrice,
		opp.Effective.YesAsk, opp.Effective.YesBid, opp.Effective.NoAsk, opp.Effective.NoBid,
		opp.DetectedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: create opportunity %s: %w", opp.ID, err)
	}
	return nil
}

// ListRecent returns the most recently detected opportunities, newest first.
func (s *OpportunityStore) ListRecent(ctx context.Context, limit int) ([]domain.ArbOpportunity, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM opportunities
		ORDER BY detected_at DESC
		LIMIT $1`, opportunitySelectCols)

	rows, err := s.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: list recent opportunities: %w", err)
	}
	defer rows.Close()

	return scanOpportunities(rows)
}

// ListBefore returns all opportunities detected before the given time, oldest
// first, for archival.
func (s *OpportunityStore) ListBefore(ctx context.Context, before time.Time) ([]domain.ArbOpportunity, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM opportunities
		WHERE detected_at < $1
		ORDER BY detected_at ASC`, opportunitySelectCols)

	rows, err := s.pool.Query(ctx, query, before)
	if err != nil {
		return nil, fmt.Errorf("postgres: list opportunities before %s: %w", before.Format(time.RFC3339), err)
	}
	defer rows.Close()

	return scanOpportunities(rows)
}

// DeleteBefore removes opportunities detected before the given time and
// returns how many rows were deleted.
func (s *OpportunityStore) DeleteBefore(ctx context.Context, before time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM opportunities WHERE detected_at < $1`, before)
	if err != nil {
		return 0, fmt.Errorf("postgres: delete opportunities before %s: %w", before.Format(time.RFC3339), err)
	}
	return tag.RowsAffected(), nil
}

func scanOpportunities(rows pgx.Rows) ([]domain.ArbOpportunity, error) {
	var opps []domain.ArbOpportunity
	for rows.Next() {
		var (
			opp       domain.ArbOpportunity
			direction string
		)
		err := rows.Scan(
			&opp.ID, &opp.MarketID, &direction, &opp.ProfitPercent, &opp.Cost,
			&opp.YesPrice, &opp.NoPrice,
			&opp.Effective.YesAsk, &opp.Effective.YesBid, &opp.Effective.NoAsk, &opp.Effective.NoBid,
			&opp.DetectedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan opportunity: %w", err)
		}
		opp.Direction = domain.ArbDirection(direction)
		opps = append(opps, opp)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: iterate opportunities: %w", err)
	}
	return opps, nil
}

// Compile-time interface check.
var _ domain.OpportunityStore = (*OpportunityStore)(nil)
