package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/poolhouse/internal/domain"
)

// BetStore implements domain.BetStore using PostgreSQL.
type BetStore struct {
	pool *pgxpool.Pool
}

var _ domain.BetStore = (*BetStore)(nil)

// NewBetStore creates a BetStore backed by the given connection pool.
func NewBetStore(pool *pgxpool.Pool) *BetStore {
	return &BetStore{pool: pool}
}

const betColumns = `
	id, market_id, outcome_id, user_id, amount, shares,
	price_at_placement, odds_at_placement, status,
	settled_amount, profit_loss, created_at, updated_at, settled_at`

// Create inserts a new bet.
func (s *BetStore) Create(ctx context.Context, b domain.Bet) error {
	const query = `
		INSERT INTO bets (` + betColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`
	_, err := s.pool.Exec(ctx, query,
		b.ID, b.MarketID, b.OutcomeID, b.UserID, b.Amount, b.Shares,
		b.PriceAtPlacement, b.OddsAtPlacement, string(b.Status),
		b.SettledAmount, b.ProfitLoss, b.CreatedAt, b.UpdatedAt, b.SettledAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: create bet %s: %w", b.ID, err)
	}
	return nil
}

// Get returns the bet with the given ID.
func (s *BetStore) Get(ctx context.Context, id string) (domain.Bet, error) {
	const query = `SELECT ` + betColumns + ` FROM bets WHERE id = $1`
	b, err := scanBet(s.pool.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Bet{}, fmt.Errorf("bet %s: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return domain.Bet{}, fmt.Errorf("postgres: get bet %s: %w", id, err)
	}
	return b, nil
}

// Update writes back a bet's mutable fields.
func (s *BetStore) Update(ctx context.Context, b domain.Bet) error {
	const query = `
		UPDATE bets SET
			status = $1, settled_amount = $2, profit_loss = $3,
			updated_at = $4, settled_at = $5
		WHERE id = $6`
	tag, err := s.pool.Exec(ctx, query,
		string(b.Status), b.SettledAmount, b.ProfitLoss,
		b.UpdatedAt, b.SettledAt, b.ID,
	)
	if err != nil {
		return fmt.Errorf("postgres: update bet %s: %w", b.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("bet %s: %w", b.ID, domain.ErrNotFound)
	}
	return nil
}

// UpdateIf writes back a bet only when the stored row still has the
// expected status. The status guard in the WHERE clause makes the claim
// atomic; a zero row count means another resolution path got there first.
func (s *BetStore) UpdateIf(ctx context.Context, b domain.Bet, expected domain.BetStatus) error {
	const query = `
		UPDATE bets SET
			status = $1, settled_amount = $2, profit_loss = $3,
			updated_at = $4, settled_at = $5
		WHERE id = $6 AND status = $7`
	tag, err := s.pool.Exec(ctx, query,
		string(b.Status), b.SettledAmount, b.ProfitLoss,
		b.UpdatedAt, b.SettledAt, b.ID, string(expected),
	)
	if err != nil {
		return fmt.Errorf("postgres: claim bet %s: %w", b.ID, err)
	}
	if tag.RowsAffected() == 0 {
		var cur string
		err := s.pool.QueryRow(ctx, "SELECT status FROM bets WHERE id = $1", b.ID).Scan(&cur)
		if errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("bet %s: %w", b.ID, domain.ErrNotFound)
		}
		if err != nil {
			return fmt.Errorf("postgres: claim bet %s: %w", b.ID, err)
		}
		return fmt.Errorf("bet %s is %s, not %s: %w", b.ID, cur, expected, domain.ErrStaleVersion)
	}
	return nil
}

// ListByMarket returns all bets on a market in placement order.
func (s *BetStore) ListByMarket(ctx context.Context, marketID string) ([]domain.Bet, error) {
	const query = `
		SELECT ` + betColumns + ` FROM bets
		WHERE market_id = $1
		ORDER BY created_at ASC`
	rows, err := s.pool.Query(ctx, query, marketID)
	if err != nil {
		return nil, fmt.Errorf("postgres: list bets for market %s: %w", marketID, err)
	}
	defer rows.Close()
	return collectBets(rows)
}

// ListByUser returns a user's bets, newest first.
func (s *BetStore) ListByUser(ctx context.Context, userID string, opts domain.ListOpts) ([]domain.Bet, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = 50
	}

	const query = `
		SELECT ` + betColumns + ` FROM bets
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3`
	rows, err := s.pool.Query(ctx, query, userID, limit, opts.Offset)
	if err != nil {
		return nil, fmt.Errorf("postgres: list bets for user %s: %w", userID, err)
	}
	defer rows.Close()
	return collectBets(rows)
}

func collectBets(rows pgx.Rows) ([]domain.Bet, error) {
	var out []domain.Bet
	for rows.Next() {
		b, err := scanBet(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan bet: %w", err)
		}
		out = append(out, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: iterate bets: %w", err)
	}
	return out, nil
}

func scanBet(row pgx.Row) (domain.Bet, error) {
	var (
		b      domain.Bet
		status string
	)
	err := row.Scan(
		&b.ID, &b.MarketID, &b.OutcomeID, &b.UserID, &b.Amount, &b.Shares,
		&b.PriceAtPlacement, &b.OddsAtPlacement, &status,
		&b.SettledAmount, &b.ProfitLoss, &b.CreatedAt, &b.UpdatedAt, &b.SettledAt,
	)
	if err != nil {
		return domain.Bet{}, err
	}
	b.Status = domain.BetStatus(status)
	return b, nil
}
