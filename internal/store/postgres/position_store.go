package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/predictr-xyz/predictr/internal/domain"
)

// PositionStore implements domain.PositionStore using PostgreSQL.
type PositionStore struct {
	db DB
}

// NewPositionStore creates a PositionStore backed by the given querier.
func NewPositionStore(db DB) *PositionStore {
	return &PositionStore{db: db}
}

const positionSelectCols = `id, user_id, market_id, outcome, quantity,
	cost_basis, sold_quantity, realized_pnl, created_at, updated_at`

func scanPosition(row pgx.Row) (domain.Position, error) {
	var p domain.Position
	err := row.Scan(
		&p.ID, &p.UserID, &p.MarketID, &p.Outcome, &p.Quantity,
		&p.CostBasis, &p.SoldQuantity, &p.RealizedPnL, &p.CreatedAt, &p.UpdatedAt,
	)
	return p, err
}

// Get returns the position for user+market+outcome, or domain.ErrNotFound.
func (s *PositionStore) Get(ctx context.Context, userID, marketID string, outcome domain.Outcome) (domain.Position, error) {
	p, err := scanPosition(s.db.QueryRow(ctx,
		`SELECT `+positionSelectCols+` FROM positions
		 WHERE user_id = $1 AND market_id = $2 AND outcome = $3`,
		userID, marketID, int16(outcome)))
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Position{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.Position{}, fmt.Errorf("postgres: get position: %w", err)
	}
	return p, nil
}

// ListByUser returns all of a user's positions.
func (s *PositionStore) ListByUser(ctx context.Context, userID string, opts domain.ListOpts) ([]domain.Position, error) {
	query := `SELECT ` + positionSelectCols + ` FROM positions WHERE user_id = $1 ORDER BY updated_at DESC`
	args := []any{userID}
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
		return nil, fmt.Errorf("postgres: list positions: %w", err)
	}
	defer rows.Close()

	var positions []domain.Position
	for rows.Next() {
		p, err := scanPosition(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan position: %w", err)
		}
		positions = append(positions, p)
	}
	return positions, rows.Err()
}

// ApplyBuy upserts the position row, increasing quantity and cost basis by
// the executed trade amounts, and returns the updated position.
func (s *PositionStore) ApplyBuy(ctx context.Context, userID, marketID string, outcome domain.Outcome, shares, cost domain.Amount) (domain.Position, error) {
	p, err := scanPosition(s.db.QueryRow(ctx, `
		INSERT INTO positions (id, user_id, market_id, outcome, quantity, cost_basis)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (user_id, market_id, outcome)
		DO UPDATE SET
			quantity   = positions.quantity + EXCLUDED.quantity,
			cost_basis = positions.cost_basis + EXCLUDED.cost_basis,
			updated_at = NOW()
		RETURNING `+positionSelectCols,
		uuid.New().String(), userID, marketID, int16(outcome), shares, cost))
	if err != nil {
		return domain.Position{}, fmt.Errorf("postgres: apply buy: %w", err)
	}
	return p, nil
}

// ApplySell reduces quantity, retires a proportional slice of the cost
// basis, and books realized P&L from the proceeds. The quantity guard in the
// WHERE clause keeps sold quantity within the lifetime acquired; a miss
// returns domain.ErrInsufficientShares. The retired-basis product is computed
// in NUMERIC: cost_basis * shares can exceed the BIGINT range long before
// either factor does.
func (s *PositionStore) ApplySell(ctx context.Context, userID, marketID string, outcome domain.Outcome, shares, proceeds domain.Amount) (domain.Position, error) {
	p, err := scanPosition(s.db.QueryRow(ctx, `
		UPDATE positions SET
			realized_pnl  = realized_pnl + $5 - (cost_basis::numeric * $4 / quantity)::bigint,
			cost_basis    = cost_basis - (cost_basis::numeric * $4 / quantity)::bigint,
			quantity      = quantity - $4,
			sold_quantity = sold_quantity + $4,
			updated_at    = NOW()
		WHERE user_id = $1 AND market_id = $2 AND outcome = $3 AND quantity >= $4 AND quantity > 0
		RETURNING `+positionSelectCols,
		userID, marketID, int16(outcome), shares, proceeds))
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Position{}, domain.ErrInsufficientShares
	}
	if err != nil {
		return domain.Position{}, fmt.Errorf("postgres: apply sell: %w", err)
	}
	return p, nil
}

// Compile-time interface check.
var _ domain.PositionStore = (*PositionStore)(nil)
