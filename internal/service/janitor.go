package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/predictr-xyz/predictr/internal/domain"
	"github.com/predictr-xyz/predictr/internal/pricing"
)

// JanitorConfig tunes the pending-trade sweep.
type JanitorConfig struct {
	// PendingAge is how old a pending trade must be before the sweep touches
	// it, so in-flight trades are never raced.
	PendingAge time.Duration

	// BuildExpiry is how long an unsigned user-mode build may sit without a
	// submission before it is expired to failed.
	BuildExpiry time.Duration
}

// Janitor recovers trades stranded in pending. Records with a transaction
// hash are re-verified against the ledger and reconciled idempotently, which
// makes a crash between submission and settlement harmless. Unsigned builds
// that were never submitted are expired after a grace window.
type Janitor struct {
	markets domain.MarketStore
	trades  domain.TradeStore
	ledger  domain.Ledger
	recon   *Reconciler
	cfg     JanitorConfig
	logger  *slog.Logger
}

// NewJanitor creates a Janitor with all required dependencies.
func NewJanitor(
	markets domain.MarketStore,
	trades domain.TradeStore,
	ledger domain.Ledger,
	recon *Reconciler,
	cfg JanitorConfig,
	logger *slog.Logger,
) *Janitor {
	if cfg.PendingAge <= 0 {
		cfg.PendingAge = 5 * time.Minute
	}
	if cfg.BuildExpiry <= 0 {
		cfg.BuildExpiry = time.Hour
	}
	return &Janitor{
		markets: markets,
		trades:  trades,
		ledger:  ledger,
		recon:   recon,
		cfg:     cfg,
		logger:  logger.With(slog.String("component", "janitor")),
	}
}

// Sweep runs one pass over aged pending trades. Individual trade failures
// are logged and skipped so one bad record cannot stall the rest.
func (j *Janitor) Sweep(ctx context.Context) error {
	cutoff := time.Now().UTC().Add(-j.cfg.PendingAge)

	pending, err := j.trades.ListPendingBefore(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("janitor: list pending trades: %w", err)
	}

	for _, rec := range pending {
		if err := j.sweepOne(ctx, rec); err != nil {
			j.logger.ErrorContext(ctx, "sweep failed for trade",
				slog.String("trade_id", rec.ID),
				slog.String("error", err.Error()),
			)
		}
	}
	return nil
}

func (j *Janitor) sweepOne(ctx context.Context, rec domain.TradeRecord) error {
	if rec.TxHash == "" {
		return j.sweepUnsubmitted(ctx, rec)
	}

	outcome, err := j.ledger.TxOutcome(ctx, rec.TxHash, rec.Side)
	if err != nil {
		return fmt.Errorf("tx outcome %s: %w", rec.TxHash, err)
	}

	switch outcome.Status {
	case domain.TxStatusUnknown:
		// Still not visible on chain. Leave pending; a later sweep decides.
		return nil
	case domain.TxStatusFailed:
		_, err := j.recon.MarkFailed(ctx, rec.ID, rec.TxHash, "transaction reverted on chain")
		return err
	case domain.TxStatusSuccess:
		return j.recover(ctx, rec, outcome)
	default:
		return fmt.Errorf("unexpected tx status %q", outcome.Status)
	}
}

// sweepUnsubmitted handles pending records with no transaction hash. A
// service-mode record without a hash means no transaction ever reached the
// chain, so failing it cannot lose funds. User-mode builds get the longer
// expiry window since the caller signs on their own schedule.
func (j *Janitor) sweepUnsubmitted(ctx context.Context, rec domain.TradeRecord) error {
	if rec.Mode == domain.ExecModeUser {
		if time.Since(rec.CreatedAt) < j.cfg.BuildExpiry {
			return nil
		}
		_, err := j.recon.MarkFailed(ctx, rec.ID, "", "unsigned build expired without submission")
		return err
	}

	_, err := j.recon.MarkFailed(ctx, rec.ID, "", "no transaction submitted")
	return err
}

// recover settles a pending trade whose transaction is now known to have
// succeeded. Reconciliation's compare-and-set makes this safe to race with
// a concurrent settlement of the same record.
func (j *Janitor) recover(ctx context.Context, rec domain.TradeRecord, outcome domain.LedgerOutcome) error {
	market, err := j.markets.GetByID(ctx, rec.MarketID)
	if err != nil {
		return fmt.Errorf("get market %s: %w", rec.MarketID, err)
	}

	switch rec.Side {
	case domain.TradeSideBuy:
		quote := pricing.ComputeBuy(rec.RequestedAmount, outcome.Amount, market.FeeBpsBuy)
		_, err = j.recon.ConfirmBuy(ctx, rec, outcome.Amount, quote.FeeAmount, rec.TxHash)
	case domain.TradeSideSell:
		quote := pricing.ComputeSell(rec.RequestedAmount, outcome.Amount, market.FeeBpsSell)
		_, err = j.recon.ConfirmSell(ctx, rec, outcome.Amount, quote.FeeAmount, rec.TxHash)
	case domain.TradeSideAddLiquidity:
		_, err = j.recon.ConfirmAddLiquidity(ctx, rec, outcome.Amount, rec.TxHash)
	case domain.TradeSideRemoveLiquidity:
		_, err = j.recon.ConfirmRemoveLiquidity(ctx, rec, outcome.Amount, rec.TxHash)
	case domain.TradeSideCreatePool:
		// Pool creation mints LP tokens one-to-one with the seeded amount and
		// emits no transfer event, so the requested amount is the executed
		// amount.
		_, err = j.recon.ConfirmAddLiquidity(ctx, rec, rec.RequestedAmount, rec.TxHash)
	default:
		return fmt.Errorf("unsupported side %q", rec.Side)
	}
	if err != nil {
		return err
	}

	j.logger.InfoContext(ctx, "recovered pending trade",
		slog.String("trade_id", rec.ID),
		slog.String("side", string(rec.Side)),
		slog.String("tx_hash", rec.TxHash),
	)
	return nil
}

// RunInterval runs sweeps on a fixed interval until the context is
// cancelled.
func (j *Janitor) RunInterval(ctx context.Context, interval time.Duration) error {
	j.logger.Info("janitor started", slog.Duration("interval", interval))

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			j.logger.Info("janitor stopped")
			return ctx.Err()
		case <-ticker.C:
			if err := j.Sweep(ctx); err != nil {
				j.logger.Error("sweep failed", slog.String("error", err.Error()))
			}
		}
	}
}
