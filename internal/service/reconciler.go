// Package service contains the trade coordinator: the state machine that
// validates intents, drives ledger execution, and reconciles confirmed
// outcomes into off-chain balances and positions.
package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/predictr-xyz/predictr/internal/domain"
)

// Reconciler applies a known ledger outcome to the off-chain records inside
// one database transaction. Every method is idempotent: the trade row's
// pending→terminal compare-and-set gates all mutations, so replaying a
// settlement (crash recovery, janitor re-verification) is a no-op.
type Reconciler struct {
	uow    domain.UnitOfWork
	logger *slog.Logger
}

// NewReconciler creates a Reconciler on the given unit of work.
func NewReconciler(uow domain.UnitOfWork, logger *slog.Logger) *Reconciler {
	return &Reconciler{
		uow:    uow,
		logger: logger.With(slog.String("component", "reconciler")),
	}
}

// ConfirmBuy settles a confirmed buy: debits the spent amount, credits the
// share position, and marks the trade confirmed. Returns false if the trade
// was already settled, in which case nothing was changed.
func (r *Reconciler) ConfirmBuy(ctx context.Context, rec domain.TradeRecord, sharesOut, fee domain.Amount, txHash string) (bool, error) {
	applied := false
	err := r.uow.WithinTx(ctx, func(tx domain.TxStores) error {
		ok, err := tx.Trades().Settle(ctx, rec.ID, domain.TradeStatusConfirmed, txHash, sharesOut, fee, "")
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}
		applied = true

		if err := tx.Balances().Debit(ctx, rec.UserID, rec.RequestedAmount); err != nil {
			return fmt.Errorf("debit %s for buy %s: %w", rec.UserID, rec.ID, err)
		}
		if _, err := tx.Positions().ApplyBuy(ctx, rec.UserID, rec.MarketID, rec.Outcome, sharesOut, rec.RequestedAmount); err != nil {
			return fmt.Errorf("apply buy %s: %w", rec.ID, err)
		}
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("reconciler: confirm buy %s: %w", rec.ID, err)
	}
	r.logSettled(ctx, rec, applied, sharesOut, txHash)
	return applied, nil
}

// ConfirmSell settles a confirmed sell: reduces the share position and
// credits the net payout to the balance.
func (r *Reconciler) ConfirmSell(ctx context.Context, rec domain.TradeRecord, payout, fee domain.Amount, txHash string) (bool, error) {
	applied := false
	err := r.uow.WithinTx(ctx, func(tx domain.TxStores) error {
		ok, err := tx.Trades().Settle(ctx, rec.ID, domain.TradeStatusConfirmed, txHash, payout, fee, "")
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}
		applied = true

		if _, err := tx.Positions().ApplySell(ctx, rec.UserID, rec.MarketID, rec.Outcome, rec.RequestedAmount, payout); err != nil {
			return fmt.Errorf("apply sell %s: %w", rec.ID, err)
		}
		if err := tx.Balances().Credit(ctx, rec.UserID, payout); err != nil {
			return fmt.Errorf("credit %s for sell %s: %w", rec.UserID, rec.ID, err)
		}
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("reconciler: confirm sell %s: %w", rec.ID, err)
	}
	r.logSettled(ctx, rec, applied, payout, txHash)
	return applied, nil
}

// ConfirmAddLiquidity settles a confirmed deposit: debits the deposited
// amount and credits the minted LP tokens.
func (r *Reconciler) ConfirmAddLiquidity(ctx context.Context, rec domain.TradeRecord, lpMinted domain.Amount, txHash string) (bool, error) {
	applied := false
	err := r.uow.WithinTx(ctx, func(tx domain.TxStores) error {
		ok, err := tx.Trades().Settle(ctx, rec.ID, domain.TradeStatusConfirmed, txHash, lpMinted, 0, "")
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}
		applied = true

		if err := tx.Balances().Debit(ctx, rec.UserID, rec.RequestedAmount); err != nil {
			return fmt.Errorf("debit %s for deposit %s: %w", rec.UserID, rec.ID, err)
		}
		if _, err := tx.Liquidity().Credit(ctx, rec.UserID, rec.MarketID, lpMinted); err != nil {
			return fmt.Errorf("credit lp tokens %s: %w", rec.ID, err)
		}
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("reconciler: confirm add liquidity %s: %w", rec.ID, err)
	}
	r.logSettled(ctx, rec, applied, lpMinted, txHash)
	return applied, nil
}

// ConfirmRemoveLiquidity settles a confirmed withdrawal: burns the LP tokens
// and credits the returned amount.
func (r *Reconciler) ConfirmRemoveLiquidity(ctx context.Context, rec domain.TradeRecord, amountOut domain.Amount, txHash string) (bool, error) {
	applied := false
	err := r.uow.WithinTx(ctx, func(tx domain.TxStores) error {
		ok, err := tx.Trades().Settle(ctx, rec.ID, domain.TradeStatusConfirmed, txHash, amountOut, 0, "")
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}
		applied = true

		if _, err := tx.Liquidity().Debit(ctx, rec.UserID, rec.MarketID, rec.RequestedAmount); err != nil {
			return fmt.Errorf("burn lp tokens %s: %w", rec.ID, err)
		}
		if err := tx.Balances().Credit(ctx, rec.UserID, amountOut); err != nil {
			return fmt.Errorf("credit %s for withdrawal %s: %w", rec.UserID, rec.ID, err)
		}
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("reconciler: confirm remove liquidity %s: %w", rec.ID, err)
	}
	r.logSettled(ctx, rec, applied, amountOut, txHash)
	return applied, nil
}

// MarkFailed settles a trade as failed with no balance or position changes.
// Used when the ledger rejected the transaction or when a pending trade is
// known to have never landed.
func (r *Reconciler) MarkFailed(ctx context.Context, tradeID, txHash, reason string) (bool, error) {
	applied := false
	err := r.uow.WithinTx(ctx, func(tx domain.TxStores) error {
		ok, err := tx.Trades().Settle(ctx, tradeID, domain.TradeStatusFailed, txHash, 0, 0, reason)
		if err != nil {
			return err
		}
		applied = ok
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("reconciler: mark failed %s: %w", tradeID, err)
	}
	if applied {
		r.logger.InfoContext(ctx, "trade marked failed",
			slog.String("trade_id", tradeID),
			slog.String("reason", reason),
		)
	}
	return applied, nil
}

func (r *Reconciler) logSettled(ctx context.Context, rec domain.TradeRecord, applied bool, executed domain.Amount, txHash string) {
	if !applied {
		r.logger.InfoContext(ctx, "trade already settled, skipping",
			slog.String("trade_id", rec.ID),
			slog.String("side", string(rec.Side)),
		)
		return
	}
	r.logger.InfoContext(ctx, "trade confirmed",
		slog.String("trade_id", rec.ID),
		slog.String("side", string(rec.Side)),
		slog.String("executed", executed.String()),
		slog.String("tx_hash", txHash),
	)
}
