package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/predictr-xyz/predictr/internal/domain"
	"github.com/predictr-xyz/predictr/internal/pricing"
)

// defaultLockTTL bounds how long one trade can hold a user+market lock.
// It must outlast the ledger's worst-case simulate+submit+poll time.
const defaultLockTTL = 2 * time.Minute

// TradeService is the buy/sell coordinator. Each trade runs the full state
// machine: validate intent, record a pending trade, execute on the ledger,
// and reconcile the outcome into balances and positions.
type TradeService struct {
	markets   domain.MarketStore
	balances  domain.BalanceStore
	positions domain.PositionStore
	trades    domain.TradeStore
	ledger    domain.Ledger
	locks     domain.LockManager
	odds      domain.OddsCache
	recon     *Reconciler
	logger    *slog.Logger
	lockTTL   time.Duration
}

// NewTradeService creates a TradeService with all required dependencies.
func NewTradeService(
	markets domain.MarketStore,
	balances domain.BalanceStore,
	positions domain.PositionStore,
	trades domain.TradeStore,
	ledger domain.Ledger,
	locks domain.LockManager,
	odds domain.OddsCache,
	recon *Reconciler,
	logger *slog.Logger,
) *TradeService {
	return &TradeService{
		markets:   markets,
		balances:  balances,
		positions: positions,
		trades:    trades,
		ledger:    ledger,
		locks:     locks,
		odds:      odds,
		recon:     recon,
		logger:    logger.With(slog.String("component", "trade_service")),
		lockTTL:   defaultLockTTL,
	}
}

// SetLockTTL overrides the default trade lock TTL. Non-positive values are
// ignored.
func (s *TradeService) SetLockTTL(d time.Duration) {
	if d > 0 {
		s.lockTTL = d
	}
}

func tradeLockKey(userID, marketID string) string {
	return "trade:" + userID + ":" + marketID
}

// Buy purchases outcome shares with amountIn of balance. minShares is the
// caller's slippage bound; zero disables it. The returned result reflects the
// ledger's actual execution, and a pending status with a transaction hash
// means the outcome could not be determined in time, not that the trade
// failed.
func (s *TradeService) Buy(ctx context.Context, userID, marketID string, outcome domain.Outcome, amountIn, minShares domain.Amount) (domain.TradeResult, error) {
	if amountIn <= 0 {
		return domain.TradeResult{}, fmt.Errorf("trade_service: buy amount must be positive")
	}
	if !outcome.Valid() {
		return domain.TradeResult{}, fmt.Errorf("trade_service: invalid outcome %d", outcome)
	}

	market, err := s.tradableMarket(ctx, marketID)
	if err != nil {
		return domain.TradeResult{}, err
	}

	// Pre-flight balance check. The authoritative guard is the conditional
	// debit inside reconciliation; this check just fails cheap before any
	// ledger fee is spent.
	bal, err := s.balances.Get(ctx, userID)
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return domain.TradeResult{}, fmt.Errorf("trade_service: get balance: %w", err)
	}
	if bal.Amount < amountIn {
		return domain.TradeResult{}, fmt.Errorf("trade_service: balance %s below buy amount %s: %w",
			bal.Amount, amountIn, domain.ErrInsufficientBalance)
	}

	unlock, err := s.locks.Acquire(ctx, tradeLockKey(userID, marketID), s.lockTTL)
	if err != nil {
		return domain.TradeResult{}, fmt.Errorf("trade_service: lock buy: %w", err)
	}
	defer unlock()

	rec := domain.TradeRecord{
		ID:              uuid.New().String(),
		UserID:          userID,
		MarketID:        marketID,
		Outcome:         outcome,
		Side:            domain.TradeSideBuy,
		Mode:            domain.ExecModeService,
		RequestedAmount: amountIn,
		SlippageBound:   minShares,
		Status:          domain.TradeStatusPending,
	}
	if err := s.trades.Create(ctx, rec); err != nil {
		return domain.TradeResult{}, fmt.Errorf("trade_service: create buy record: %w", err)
	}

	out, err := s.ledger.BuyShares(ctx, market.ContractMarketID, outcome, amountIn, minShares)
	if err != nil {
		return s.resolveTradeError(ctx, rec, err)
	}

	quote := pricing.ComputeBuy(amountIn, out.SharesOut, market.FeeBpsBuy)
	if _, err := s.recon.ConfirmBuy(ctx, rec, out.SharesOut, quote.FeeAmount, out.TxHash); err != nil {
		return domain.TradeResult{}, err
	}
	s.invalidateOdds(ctx, marketID)

	result := domain.TradeResult{
		TradeID:      rec.ID,
		Status:       domain.TradeStatusConfirmed,
		TxHash:       out.TxHash,
		SharesOut:    out.SharesOut,
		FeeAmount:    quote.FeeAmount,
		PricePerUnit: quote.PricePerUnit,
	}
	if pos, err := s.positions.Get(ctx, userID, marketID, outcome); err == nil {
		result.Position = &pos
	}

	s.logger.InfoContext(ctx, "buy executed",
		slog.String("trade_id", rec.ID),
		slog.String("market_id", marketID),
		slog.String("user_id", userID),
		slog.String("amount_in", amountIn.String()),
		slog.String("shares_out", out.SharesOut.String()),
	)

	// The ledger enforces minShares on-chain, but a zero on-chain bound with
	// a local bound still needs the local check. The trade has already
	// settled either way; the violation is surfaced, not rolled back.
	if err := pricing.CheckMinShares(out.SharesOut, minShares); err != nil {
		return result, fmt.Errorf("trade_service: buy %s: %w", rec.ID, err)
	}
	return result, nil
}

// Sell sells previously bought outcome shares for balance. minPayout is the
// caller's slippage bound on the net payout; zero disables it.
func (s *TradeService) Sell(ctx context.Context, userID, marketID string, outcome domain.Outcome, shares, minPayout domain.Amount) (domain.TradeResult, error) {
	if shares <= 0 {
		return domain.TradeResult{}, fmt.Errorf("trade_service: sell shares must be positive")
	}
	if !outcome.Valid() {
		return domain.TradeResult{}, fmt.Errorf("trade_service: invalid outcome %d", outcome)
	}

	market, err := s.tradableMarket(ctx, marketID)
	if err != nil {
		return domain.TradeResult{}, err
	}

	pos, err := s.positions.Get(ctx, userID, marketID, outcome)
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return domain.TradeResult{}, fmt.Errorf("trade_service: get position: %w", err)
	}
	if pos.Quantity < shares {
		return domain.TradeResult{}, fmt.Errorf("trade_service: position %s below sell quantity %s: %w",
			pos.Quantity, shares, domain.ErrInsufficientShares)
	}

	unlock, err := s.locks.Acquire(ctx, tradeLockKey(userID, marketID), s.lockTTL)
	if err != nil {
		return domain.TradeResult{}, fmt.Errorf("trade_service: lock sell: %w", err)
	}
	defer unlock()

	rec := domain.TradeRecord{
		ID:              uuid.New().String(),
		UserID:          userID,
		MarketID:        marketID,
		Outcome:         outcome,
		Side:            domain.TradeSideSell,
		Mode:            domain.ExecModeService,
		RequestedAmount: shares,
		SlippageBound:   minPayout,
		Status:          domain.TradeStatusPending,
	}
	if err := s.trades.Create(ctx, rec); err != nil {
		return domain.TradeResult{}, fmt.Errorf("trade_service: create sell record: %w", err)
	}

	out, err := s.ledger.SellShares(ctx, market.ContractMarketID, outcome, shares, minPayout)
	if err != nil {
		return s.resolveTradeError(ctx, rec, err)
	}

	quote := pricing.ComputeSell(shares, out.Payout, market.FeeBpsSell)
	if _, err := s.recon.ConfirmSell(ctx, rec, out.Payout, quote.FeeAmount, out.TxHash); err != nil {
		return domain.TradeResult{}, err
	}
	s.invalidateOdds(ctx, marketID)

	result := domain.TradeResult{
		TradeID:      rec.ID,
		Status:       domain.TradeStatusConfirmed,
		TxHash:       out.TxHash,
		Payout:       out.Payout,
		FeeAmount:    quote.FeeAmount,
		PricePerUnit: quote.PricePerUnit,
	}
	if pos, err := s.positions.Get(ctx, userID, marketID, outcome); err == nil {
		result.Position = &pos
	}

	s.logger.InfoContext(ctx, "sell executed",
		slog.String("trade_id", rec.ID),
		slog.String("market_id", marketID),
		slog.String("user_id", userID),
		slog.String("shares", shares.String()),
		slog.String("payout", out.Payout.String()),
	)

	if err := pricing.CheckMinPayout(out.Payout, minPayout); err != nil {
		return result, fmt.Errorf("trade_service: sell %s: %w", rec.ID, err)
	}
	return result, nil
}

// GetTrade returns a single trade record.
func (s *TradeService) GetTrade(ctx context.Context, id string) (domain.TradeRecord, error) {
	rec, err := s.trades.GetByID(ctx, id)
	if err != nil {
		return domain.TradeRecord{}, fmt.Errorf("trade_service: get trade %s: %w", id, err)
	}
	return rec, nil
}

// ListTrades returns a user's trade history.
func (s *TradeService) ListTrades(ctx context.Context, userID string, opts domain.ListOpts) ([]domain.TradeRecord, error) {
	recs, err := s.trades.ListByUser(ctx, userID, opts)
	if err != nil {
		return nil, fmt.Errorf("trade_service: list trades for %s: %w", userID, err)
	}
	return recs, nil
}

// tradableMarket loads a market and verifies it accepts trades.
func (s *TradeService) tradableMarket(ctx context.Context, marketID string) (domain.Market, error) {
	market, err := s.markets.GetByID(ctx, marketID)
	if err != nil {
		return domain.Market{}, fmt.Errorf("trade_service: get market %s: %w", marketID, err)
	}
	if !market.Tradable() {
		return domain.Market{}, fmt.Errorf("trade_service: market %s is %s: %w",
			marketID, market.Status, domain.ErrMarketNotOpen)
	}
	return market, nil
}

// resolveTradeError maps a ledger failure onto the trade record. An
// indeterminate outcome records the hash and leaves the trade pending for
// later verification; everything else settles it as failed.
func (s *TradeService) resolveTradeError(ctx context.Context, rec domain.TradeRecord, err error) (domain.TradeResult, error) {
	var indet *domain.IndeterminateError
	if errors.As(err, &indet) {
		if indet.TxHash != "" {
			if setErr := s.trades.SetTxHash(ctx, rec.ID, indet.TxHash); setErr != nil {
				s.logger.ErrorContext(ctx, "failed to record tx hash on indeterminate trade",
					slog.String("trade_id", rec.ID),
					slog.String("error", setErr.Error()),
				)
			}
		}
		s.logger.WarnContext(ctx, "trade outcome indeterminate, left pending",
			slog.String("trade_id", rec.ID),
			slog.String("tx_hash", indet.TxHash),
		)
		return domain.TradeResult{
			TradeID: rec.ID,
			Status:  domain.TradeStatusPending,
			TxHash:  indet.TxHash,
		}, fmt.Errorf("trade_service: trade %s: %w", rec.ID, err)
	}

	if _, markErr := s.recon.MarkFailed(ctx, rec.ID, "", err.Error()); markErr != nil {
		s.logger.ErrorContext(ctx, "failed to mark trade failed",
			slog.String("trade_id", rec.ID),
			slog.String("error", markErr.Error()),
		)
	}
	return domain.TradeResult{
		TradeID: rec.ID,
		Status:  domain.TradeStatusFailed,
	}, fmt.Errorf("trade_service: trade %s: %w", rec.ID, err)
}

func (s *TradeService) invalidateOdds(ctx context.Context, marketID string) {
	if err := s.odds.Invalidate(ctx, marketID); err != nil {
		s.logger.WarnContext(ctx, "odds cache invalidation failed",
			slog.String("market_id", marketID),
			slog.String("error", err.Error()),
		)
	}
}
