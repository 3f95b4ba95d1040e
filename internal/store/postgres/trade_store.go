package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/predictr-xyz/predictr/internal/domain"
)

// TradeStore implements domain.TradeStore using PostgreSQL.
type TradeStore struct {
	db DB
}

// NewTradeStore creates a TradeStore backed by the given querier.
func NewTradeStore(db DB) *TradeStore {
	return &TradeStore{db: db}
}

const tradeSelectCols = `id, user_id, market_id, outcome, side, mode,
	requested_amount, slippage_bound, caller_address,
	status, tx_hash, executed_amount, fee_amount, failure_reason,
	created_at, updated_at`

func scanTrade(row pgx.Row) (domain.TradeRecord, error) {
	var t domain.TradeRecord
	err := row.Scan(
		&t.ID, &t.UserID, &t.MarketID, &t.Outcome, &t.Side, &t.Mode,
		&t.RequestedAmount, &t.SlippageBound, &t.CallerAddress,
		&t.Status, &t.TxHash, &t.ExecutedAmount, &t.FeeAmount, &t.FailureReason,
		&t.CreatedAt, &t.UpdatedAt,
	)
	return t, err
}

func scanTradeRows(rows pgx.Rows) ([]domain.TradeRecord, error) {
	var trades []domain.TradeRecord
	for rows.Next() {
		t, err := scanTrade(rows)
		if err != nil {
			return nil, err
		}
		trades = append(trades, t)
	}
	return trades, rows.Err()
}

// Create inserts a new pending trade record.
func (s *TradeStore) Create(ctx context.Context, rec domain.TradeRecord) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO trades (id, user_id, market_id, outcome, side, mode,
			requested_amount, slippage_bound, caller_address, status, tx_hash)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		rec.ID, rec.UserID, rec.MarketID, int16(rec.Outcome), rec.Side, rec.Mode,
		rec.RequestedAmount, rec.SlippageBound, rec.CallerAddress, rec.Status, rec.TxHash,
	)
	if err != nil {
		return fmt.Errorf("postgres: create trade: %w", err)
	}
	return nil
}

// GetByID returns a trade record, or domain.ErrNotFound.
func (s *TradeStore) GetByID(ctx context.Context, id string) (domain.TradeRecord, error) {
	t, err := scanTrade(s.db.QueryRow(ctx,
		`SELECT `+tradeSelectCols+` FROM trades WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.TradeRecord{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.TradeRecord{}, fmt.Errorf("postgres: get trade %s: %w", id, err)
	}
	return t, nil
}

// SetTxHash records the ledger transaction identifier on a still-pending
// trade so an indeterminate outcome can be re-verified later.
func (s *TradeStore) SetTxHash(ctx context.Context, id, txHash string) error {
	tag, err := s.db.Exec(ctx,
		`UPDATE trades SET tx_hash = $2, updated_at = NOW() WHERE id = $1`,
		id, txHash,
	)
	if err != nil {
		return fmt.Errorf("postgres: set trade tx hash: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// Settle transitions a trade from pending to the given terminal status and
// reports whether the transition happened. Reconciliation is keyed on this
// compare-and-set: a false return means the record was already settled and
// no balance or position mutation may be applied again.
func (s *TradeStore) Settle(ctx context.Context, id string, status domain.TradeStatus, txHash string, executed, fee domain.Amount, reason string) (bool, error) {
	tag, err := s.db.Exec(ctx, `
		UPDATE trades SET
			status          = $2,
			tx_hash         = CASE WHEN $3 <> '' THEN $3 ELSE tx_hash END,
			executed_amount = $4,
			fee_amount      = $5,
			failure_reason  = $6,
			updated_at      = NOW()
		WHERE id = $1 AND status = 'pending'`,
		id, status, txHash, executed, fee, reason,
	)
	if err != nil {
		return false, fmt.Errorf("postgres: settle trade %s: %w", id, err)
	}
	return tag.RowsAffected() == 1, nil
}

// ListByUser returns a user's trade history, newest first.
func (s *TradeStore) ListByUser(ctx context.Context, userID string, opts domain.ListOpts) ([]domain.TradeRecord, error) {
	query := `SELECT ` + tradeSelectCols + ` FROM trades WHERE user_id = $1`
	args := []any{userID}
	argIdx := 2

	if opts.Since != nil {
		query += fmt.Sprintf(" AND created_at >= $%d", argIdx)
		args = append(args, *opts.Since)
		argIdx++
	}
	if opts.Until != nil {
		query += fmt.Sprintf(" AND created_at <= $%d", argIdx)
		args = append(args, *opts.Until)
		argIdx++
	}

	query += " ORDER BY created_at DESC"

	if opts.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argIdx)
		args = append(args, opts.Limit)
		argIdx++
	}
	if opts.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", argIdx)
		args = append(args, opts.Offset)
	}

	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list trades by user: %w", err)
	}
	defer rows.Close()

	trades, err := scanTradeRows(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan trades by user: %w", err)
	}
	return trades, nil
}

// ListPendingBefore returns pending trades created before the cutoff, for
// the janitor's staleness sweep.
func (s *TradeStore) ListPendingBefore(ctx context.Context, cutoff time.Time) ([]domain.TradeRecord, error) {
	rows, err := s.db.Query(ctx,
		`SELECT `+tradeSelectCols+` FROM trades
		 WHERE status = 'pending' AND created_at < $1
		 ORDER BY created_at ASC`, cutoff)
	if err != nil {
		return nil, fmt.Errorf("postgres: list pending trades: %w", err)
	}
	defer rows.Close()
	return scanTradeRows(rows)
}

// ListSettledBefore returns settled trades older than the cutoff, for
// archiving.
func (s *TradeStore) ListSettledBefore(ctx context.Context, cutoff time.Time) ([]domain.TradeRecord, error) {
	rows, err := s.db.Query(ctx,
		`SELECT `+tradeSelectCols+` FROM trades
		 WHERE status <> 'pending' AND created_at < $1
		 ORDER BY created_at ASC`, cutoff)
	if err != nil {
		return nil, fmt.Errorf("postgres: list settled trades: %w", err)
	}
	defer rows.Close()
	return scanTradeRows(rows)
}

// DeleteSettledBefore deletes settled trades older than the cutoff and
// returns the number deleted. Pending rows are never pruned.
func (s *TradeStore) DeleteSettledBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := s.db.Exec(ctx,
		`DELETE FROM trades WHERE status <> 'pending' AND created_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("postgres: delete settled trades: %w", err)
	}
	return tag.RowsAffected(), nil
}

// Compile-time interface check.
var _ domain.TradeStore = (*TradeStore)(nil)
