package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/predictr-xyz/predictr/internal/domain"
)

// LiquidityStore implements domain.LiquidityStore using PostgreSQL.
type LiquidityStore struct {
	db DB
}

// NewLiquidityStore creates a LiquidityStore backed by the given querier.
func NewLiquidityStore(db DB) *LiquidityStore {
	return &LiquidityStore{db: db}
}

const liquiditySelectCols = `id, user_id, market_id, lp_tokens, created_at, updated_at`

func scanLiquidity(row pgx.Row) (domain.LiquidityPosition, error) {
	var lp domain.LiquidityPosition
	err := row.Scan(&lp.ID, &lp.UserID, &lp.MarketID, &lp.LPTokens, &lp.CreatedAt, &lp.UpdatedAt)
	return lp, err
}

// Get returns the LP position for user+market, or domain.ErrNotFound.
func (s *LiquidityStore) Get(ctx context.Context, userID, marketID string) (domain.LiquidityPosition, error) {
	lp, err := scanLiquidity(s.db.QueryRow(ctx,
		`SELECT `+liquiditySelectCols+` FROM liquidity_positions
		 WHERE user_id = $1 AND market_id = $2`,
		userID, marketID))
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.LiquidityPosition{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.LiquidityPosition{}, fmt.Errorf("postgres: get liquidity position: %w", err)
	}
	return lp, nil
}

// Credit adds minted LP tokens to the position, creating the row if absent.
func (s *LiquidityStore) Credit(ctx context.Context, userID, marketID string, lpTokens domain.Amount) (domain.LiquidityPosition, error) {
	lp, err := scanLiquidity(s.db.QueryRow(ctx, `
		INSERT INTO liquidity_positions (id, user_id, market_id, lp_tokens)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (user_id, market_id)
		DO UPDATE SET lp_tokens = liquidity_positions.lp_tokens + EXCLUDED.lp_tokens,
		              updated_at = NOW()
		RETURNING `+liquiditySelectCols,
		uuid.New().String(), userID, marketID, lpTokens))
	if err != nil {
		return domain.LiquidityPosition{}, fmt.Errorf("postgres: credit liquidity: %w", err)
	}
	return lp, nil
}

// Debit removes burned LP tokens from the position. The conditional update
// keeps the token count non-negative; a miss reports insufficient shares.
func (s *LiquidityStore) Debit(ctx context.Context, userID, marketID string, lpTokens domain.Amount) (domain.LiquidityPosition, error) {
	lp, err := scanLiquidity(s.db.QueryRow(ctx, `
		UPDATE liquidity_positions
		SET lp_tokens = lp_tokens - $3, updated_at = NOW()
		WHERE user_id = $1 AND market_id = $2 AND lp_tokens >= $3
		RETURNING `+liquiditySelectCols,
		userID, marketID, lpTokens))
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.LiquidityPosition{}, domain.ErrInsufficientShares
	}
	if err != nil {
		return domain.LiquidityPosition{}, fmt.Errorf("postgres: debit liquidity: %w", err)
	}
	return lp, nil
}

// Compile-time interface check.
var _ domain.LiquidityStore = (*LiquidityStore)(nil)
