package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/predictr-xyz/predictr/internal/domain"
)

// MarketStore implements domain.MarketStore using PostgreSQL.
type MarketStore struct {
	db DB
}

// NewMarketStore creates a MarketStore backed by the given querier.
func NewMarketStore(db DB) *MarketStore {
	return &MarketStore{db: db}
}

const marketSelectCols = `id, question, contract_market_id, status,
	fee_bps_buy, fee_bps_sell, resolved_outcome, created_at, updated_at`

func scanMarket(row pgx.Row) (domain.Market, error) {
	var m domain.Market
	var resolved *int16
	err := row.Scan(
		&m.ID, &m.Question, &m.ContractMarketID, &m.Status,
		&m.FeeBpsBuy, &m.FeeBpsSell, &resolved, &m.CreatedAt, &m.UpdatedAt,
	)
	if err != nil {
		return domain.Market{}, err
	}
	if resolved != nil {
		o := domain.Outcome(*resolved)
		m.ResolvedOutcome = &o
	}
	return m, nil
}

// Create inserts a new market row.
func (s *MarketStore) Create(ctx context.Context, m domain.Market) error {
	var resolved *int16
	if m.ResolvedOutcome != nil {
		v := int16(*m.ResolvedOutcome)
		resolved = &v
	}
	_, err := s.db.Exec(ctx, `
		INSERT INTO markets (id, question, contract_market_id, status,
			fee_bps_buy, fee_bps_sell, resolved_outcome)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		m.ID, m.Question, m.ContractMarketID, m.Status,
		m.FeeBpsBuy, m.FeeBpsSell, resolved,
	)
	if err != nil {
		return fmt.Errorf("postgres: create market: %w", err)
	}
	return nil
}

// GetByID returns a market by its identifier, or domain.ErrNotFound.
func (s *MarketStore) GetByID(ctx context.Context, id string) (domain.Market, error) {
	m, err := scanMarket(s.db.QueryRow(ctx,
		`SELECT `+marketSelectCols+` FROM markets WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Market{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.Market{}, fmt.Errorf("postgres: get market %s: %w", id, err)
	}
	return m, nil
}

// UpdateStatus transitions a market's lifecycle status.
func (s *MarketStore) UpdateStatus(ctx context.Context, id string, status domain.MarketStatus) error {
	tag, err := s.db.Exec(ctx,
		`UPDATE markets SET status = $2, updated_at = NOW() WHERE id = $1`,
		id, status,
	)
	if err != nil {
		return fmt.Errorf("postgres: update market status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// ListByStatus returns markets in the given lifecycle status.
func (s *MarketStore) ListByStatus(ctx context.Context, status domain.MarketStatus, opts domain.ListOpts) ([]domain.Market, error) {
	query := `SELECT ` + marketSelectCols + ` FROM markets WHERE status = $1 ORDER BY created_at DESC`
	args := []any{status}
	if opts.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", len(args)+1)
		args = append(args, opts.Limit)
	}
	if opts.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", len(args)+1)
		args = append(args, opts.Offset)
	}

	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list markets: %w", err)
	}
	defer rows.Close()

	var markets []domain.Market
	for rows.Next() {
		m, err := scanMarket(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan market: %w", err)
		}
		markets = append(markets, m)
	}
	return markets, rows.Err()
}

// Compile-time interface check.
var _ domain.MarketStore = (*MarketStore)(nil)
