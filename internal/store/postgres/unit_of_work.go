package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/predictr-xyz/predictr/internal/domain"
)

// UnitOfWork implements domain.UnitOfWork on a pgx connection pool. It gives
// the reconciler a single database transaction spanning the balance,
// position, liquidity, and trade mutations of one settlement.
type UnitOfWork struct {
	pool *pgxpool.Pool
}

// NewUnitOfWork creates a UnitOfWork backed by the given pool.
func NewUnitOfWork(pool *pgxpool.Pool) *UnitOfWork {
	return &UnitOfWork{pool: pool}
}

// WithinTx begins a transaction, runs fn against stores bound to it, and
// commits. Any error from fn rolls everything back.
func (u *UnitOfWork) WithinTx(ctx context.Context, fn func(tx domain.TxStores) error) error {
	tx, err := u.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("postgres: begin unit of work: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := fn(txStores{tx: tx}); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("postgres: commit unit of work: %w", err)
	}
	return nil
}

// txStores binds the store implementations to one pgx transaction.
type txStores struct {
	tx pgx.Tx
}

func (s txStores) Balances() domain.BalanceStore   { return NewBalanceStore(s.tx) }
func (s txStores) Positions() domain.PositionStore { return NewPositionStore(s.tx) }
func (s txStores) Liquidity() domain.LiquidityStore {
	return NewLiquidityStore(s.tx)
}
func (s txStores) Trades() domain.TradeStore { return NewTradeStore(s.tx) }

// Compile-time interface checks.
var (
	_ domain.UnitOfWork = (*UnitOfWork)(nil)
	_ domain.TxStores   = txStores{}
)
