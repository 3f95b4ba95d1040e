package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/predictr-xyz/predictr/internal/domain"
)

// BalanceStore implements domain.BalanceStore using PostgreSQL.
type BalanceStore struct {
	db DB
}

// NewBalanceStore creates a BalanceStore backed by the given querier.
func NewBalanceStore(db DB) *BalanceStore {
	return &BalanceStore{db: db}
}

// Get returns a user's balance, or domain.ErrNotFound.
func (s *BalanceStore) Get(ctx context.Context, userID string) (domain.Balance, error) {
	var b domain.Balance
	err := s.db.QueryRow(ctx,
		`SELECT user_id, amount, updated_at FROM balances WHERE user_id = $1`,
		userID,
	).Scan(&b.UserID, &b.Amount, &b.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Balance{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.Balance{}, fmt.Errorf("postgres: get balance %s: %w", userID, err)
	}
	return b, nil
}

// Credit adds to a user's balance, creating the row if absent.
func (s *BalanceStore) Credit(ctx context.Context, userID string, amt domain.Amount) error {
	if amt < 0 {
		return fmt.Errorf("postgres: credit amount %s negative", amt)
	}
	_, err := s.db.Exec(ctx, `
		INSERT INTO balances (user_id, amount) VALUES ($1, $2)
		ON CONFLICT (user_id)
		DO UPDATE SET amount = balances.amount + EXCLUDED.amount, updated_at = NOW()`,
		userID, amt,
	)
	if err != nil {
		return fmt.Errorf("postgres: credit balance %s: %w", userID, err)
	}
	return nil
}

// Debit subtracts from a user's balance. The conditional update both takes
// the row lock that serializes concurrent trades on this balance and
// guarantees the amount can never go negative.
func (s *BalanceStore) Debit(ctx context.Context, userID string, amt domain.Amount) error {
	if amt < 0 {
		return fmt.Errorf("postgres: debit amount %s negative", amt)
	}
	tag, err := s.db.Exec(ctx, `
		UPDATE balances SET amount = amount - $2, updated_at = NOW()
		WHERE user_id = $1 AND amount >= $2`,
		userID, amt,
	)
	if err != nil {
		return fmt.Errorf("postgres: debit balance %s: %w", userID, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrInsufficientBalance
	}
	return nil
}

// Compile-time interface check.
var _ domain.BalanceStore = (*BalanceStore)(nil)
