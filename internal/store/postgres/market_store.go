package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/poolhouse/internal/domain"
)

// MarketStore implements domain.MarketStore using PostgreSQL. Outcomes and
// limits are stored as JSONB; the version column backs the optimistic
// concurrency check in Save.
type MarketStore struct {
	pool *pgxpool.Pool
}

var _ domain.MarketStore = (*MarketStore)(nil)

// NewMarketStore creates a MarketStore backed by the given connection pool.
func NewMarketStore(pool *pgxpool.Pool) *MarketStore {
	return &MarketStore{pool: pool}
}

const marketColumns = `
	id, market_type, label, outcomes, liquidity, status, volume, version,
	limits, cash_out_enabled, winning_outcome_id,
	opens_at, closes_at, settled_at, created_at, updated_at`

// Create inserts a new market.
func (s *MarketStore) Create(ctx context.Context, m domain.Market) error {
	outcomes, limits, err := marshalMarketJSON(m)
	if err != nil {
		return err
	}

	const query = `
		INSERT INTO markets (` + marketColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)`
	_, err = s.pool.Exec(ctx, query,
		m.ID, string(m.Type), m.Label, outcomes, m.Liquidity, string(m.Status),
		m.Volume, m.Version, limits, m.CashOutEnabled, m.WinningOutcomeID,
		m.OpensAt, m.ClosesAt, m.SettledAt, m.CreatedAt, m.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: create market %s: %w", m.ID, err)
	}
	return nil
}

// Get returns the market with the given ID.
func (s *MarketStore) Get(ctx context.Context, id string) (domain.Market, error) {
	const query = `SELECT ` + marketColumns + ` FROM markets WHERE id = $1`
	m, err := scanMarket(s.pool.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Market{}, fmt.Errorf("market %s: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return domain.Market{}, fmt.Errorf("postgres: get market %s: %w", id, err)
	}
	return m, nil
}

// Save writes the market state guarded by its previous version. If no row
// matches the id and expectedVersion, another writer got there first and
// ErrStaleVersion is returned.
func (s *MarketStore) Save(ctx context.Context, m domain.Market, expectedVersion int64) error {
	outcomes, limits, err := marshalMarketJSON(m)
	if err != nil {
		return err
	}

	const query = `
		UPDATE markets SET
			outcomes = $1, limits = $2, status = $3, volume = $4,
			version = $5, winning_outcome_id = $6, opens_at = $7,
			closes_at = $8, settled_at = $9, updated_at = $10
		WHERE id = $11 AND version = $12`
	tag, err := s.pool.Exec(ctx, query,
		outcomes, limits, string(m.Status), m.Volume,
		m.Version, m.WinningOutcomeID, m.OpensAt,
		m.ClosesAt, m.SettledAt, m.UpdatedAt,
		m.ID, expectedVersion,
	)
	if err != nil {
		return fmt.Errorf("postgres: save market %s: %w", m.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("market %s not at v%d: %w", m.ID, expectedVersion, domain.ErrStaleVersion)
	}
	return nil
}

// ListByStatus returns markets in the given status, newest first.
func (s *MarketStore) ListByStatus(ctx context.Context, status domain.MarketStatus, opts domain.ListOpts) ([]domain.Market, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = 50
	}

	const query = `
		SELECT ` + marketColumns + `
		FROM markets
		WHERE status = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3`
	rows, err := s.pool.Query(ctx, query, string(status), limit, opts.Offset)
	if err != nil {
		return nil, fmt.Errorf("postgres: list %s markets: %w", status, err)
	}
	defer rows.Close()

	var out []domain.Market
	for rows.Next() {
		m, err := scanMarket(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan market: %w", err)
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list %s markets: %w", status, err)
	}
	return out, nil
}

func marshalMarketJSON(m domain.Market) (outcomes, limits []byte, err error) {
	if outcomes, err = json.Marshal(m.Outcomes); err != nil {
		return nil, nil, fmt.Errorf("postgres: marshal outcomes for %s: %w", m.ID, err)
	}
	if limits, err = json.Marshal(m.Limits); err != nil {
		return nil, nil, fmt.Errorf("postgres: marshal limits for %s: %w", m.ID, err)
	}
	return outcomes, limits, nil
}

func scanMarket(row pgx.Row) (domain.Market, error) {
	var (
		m                domain.Market
		mtype, status    string
		outcomes, limits []byte
	)
	err := row.Scan(
		&m.ID, &mtype, &m.Label, &outcomes, &m.Liquidity, &status, &m.Volume,
		&m.Version, &limits, &m.CashOutEnabled, &m.WinningOutcomeID,
		&m.OpensAt, &m.ClosesAt, &m.SettledAt, &m.CreatedAt, &m.UpdatedAt,
	)
	if err != nil {
		return domain.Market{}, err
	}
	m.Type = domain.MarketType(mtype)
	m.Status = domain.MarketStatus(status)
	if err := json.Unmarshal(outcomes, &m.Outcomes); err != nil {
		return domain.Market{}, fmt.Errorf("unmarshal outcomes: %w", err)
	}
	if err := json.Unmarshal(limits, &m.Limits); err != nil {
		return domain.Market{}, fmt.Errorf("unmarshal limits: %w", err)
	}
	return m, nil
}
