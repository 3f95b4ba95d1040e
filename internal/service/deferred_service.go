package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/predictr-xyz/predictr/internal/domain"
	"github.com/predictr-xyz/predictr/internal/pricing"
)

// DeferredService handles trades signed by the caller's own key. BuildTrade
// prepares an unsigned transaction and records the intent; SubmitSigned
// verifies the returned signature against the recorded caller address before
// anything reaches the chain, then reconciles like any other trade.
type DeferredService struct {
	markets   domain.MarketStore
	trades    domain.TradeStore
	balances  domain.BalanceStore
	positions domain.PositionStore
	ledger    domain.Ledger
	odds      domain.OddsCache
	recon     *Reconciler
	logger    *slog.Logger
}

// NewDeferredService creates a DeferredService with all required
// dependencies.
func NewDeferredService(
	markets domain.MarketStore,
	trades domain.TradeStore,
	balances domain.BalanceStore,
	positions domain.PositionStore,
	ledger domain.Ledger,
	odds domain.OddsCache,
	recon *Reconciler,
	logger *slog.Logger,
) *DeferredService {
	return &DeferredService{
		markets:   markets,
		trades:    trades,
		balances:  balances,
		positions: positions,
		ledger:    ledger,
		odds:      odds,
		recon:     recon,
		logger:    logger.With(slog.String("component", "deferred_service")),
	}
}

// BuiltTrade is an unsigned transaction paired with the pending record that
// tracks it.
type BuiltTrade struct {
	TradeID  string
	Unsigned domain.UnsignedTx
}

// BuildBuy prepares an unsigned buy transaction for caller to sign. The
// intent is recorded pending so the signed submission can be matched back.
func (s *DeferredService) BuildBuy(ctx context.Context, userID, marketID, caller string, outcome domain.Outcome, amountIn, minShares domain.Amount) (BuiltTrade, error) {
	return s.build(ctx, userID, marketID, caller, domain.TradeSideBuy, outcome, amountIn, minShares)
}

// BuildSell prepares an unsigned sell transaction for caller to sign.
func (s *DeferredService) BuildSell(ctx context.Context, userID, marketID, caller string, outcome domain.Outcome, shares, minPayout domain.Amount) (BuiltTrade, error) {
	return s.build(ctx, userID, marketID, caller, domain.TradeSideSell, outcome, shares, minPayout)
}

func (s *DeferredService) build(ctx context.Context, userID, marketID, caller string, side domain.TradeSide, outcome domain.Outcome, amount, bound domain.Amount) (BuiltTrade, error) {
	if amount <= 0 {
		return BuiltTrade{}, fmt.Errorf("deferred_service: amount must be positive")
	}
	if !outcome.Valid() {
		return BuiltTrade{}, fmt.Errorf("deferred_service: invalid outcome %d", outcome)
	}
	if caller == "" {
		return BuiltTrade{}, fmt.Errorf("deferred_service: caller address is required")
	}

	market, err := s.markets.GetByID(ctx, marketID)
	if err != nil {
		return BuiltTrade{}, fmt.Errorf("deferred_service: get market %s: %w", marketID, err)
	}
	if !market.Tradable() {
		return BuiltTrade{}, fmt.Errorf("deferred_service: market %s is %s: %w",
			marketID, market.Status, domain.ErrMarketNotOpen)
	}

	// A build that cannot possibly reconcile must not hand out an unsigned
	// transaction: the chain would execute it and settlement would then fail
	// the off-chain debit. Check funds at build time, same as the service-mode
	// pre-flight.
	switch side {
	case domain.TradeSideBuy:
		bal, err := s.balances.Get(ctx, userID)
		if err != nil && !errors.Is(err, domain.ErrNotFound) {
			return BuiltTrade{}, fmt.Errorf("deferred_service: get balance: %w", err)
		}
		if bal.Amount < amount {
			return BuiltTrade{}, fmt.Errorf("deferred_service: balance %s below buy amount %s: %w",
				bal.Amount, amount, domain.ErrInsufficientBalance)
		}
	case domain.TradeSideSell:
		pos, err := s.positions.Get(ctx, userID, marketID, outcome)
		if err != nil && !errors.Is(err, domain.ErrNotFound) {
			return BuiltTrade{}, fmt.Errorf("deferred_service: get position: %w", err)
		}
		if pos.Quantity < amount {
			return BuiltTrade{}, fmt.Errorf("deferred_service: position %s below sell quantity %s: %w",
				pos.Quantity, amount, domain.ErrInsufficientShares)
		}
	}

	var unsigned domain.UnsignedTx
	switch side {
	case domain.TradeSideBuy:
		unsigned, err = s.ledger.BuildBuyTx(ctx, caller, market.ContractMarketID, outcome, amount, bound)
	case domain.TradeSideSell:
		unsigned, err = s.ledger.BuildSellTx(ctx, caller, market.ContractMarketID, outcome, amount, bound)
	default:
		return BuiltTrade{}, fmt.Errorf("deferred_service: unsupported side %s", side)
	}
	if err != nil {
		return BuiltTrade{}, fmt.Errorf("deferred_service: build %s: %w", side, err)
	}

	rec := domain.TradeRecord{
		ID:              uuid.New().String(),
		UserID:          userID,
		MarketID:        marketID,
		Outcome:         outcome,
		Side:            side,
		Mode:            domain.ExecModeUser,
		RequestedAmount: amount,
		SlippageBound:   bound,
		CallerAddress:   caller,
		Status:          domain.TradeStatusPending,
	}
	if err := s.trades.Create(ctx, rec); err != nil {
		return BuiltTrade{}, fmt.Errorf("deferred_service: create build record: %w", err)
	}

	s.logger.InfoContext(ctx, "unsigned trade built",
		slog.String("trade_id", rec.ID),
		slog.String("side", string(side)),
		slog.String("caller", caller),
	)

	return BuiltTrade{TradeID: rec.ID, Unsigned: unsigned}, nil
}

// SubmitSigned submits the caller-signed bytes for a previously built trade.
// The recovered signer must match the address recorded at build time; a
// mismatch is rejected before submission and leaves the record pending so
// the caller can resubmit a correctly signed transaction.
func (s *DeferredService) SubmitSigned(ctx context.Context, tradeID string, rawTx []byte) (domain.TradeResult, error) {
	rec, err := s.trades.GetByID(ctx, tradeID)
	if err != nil {
		return domain.TradeResult{}, fmt.Errorf("deferred_service: get trade %s: %w", tradeID, err)
	}
	if rec.Mode != domain.ExecModeUser {
		return domain.TradeResult{}, fmt.Errorf("deferred_service: trade %s was not built for deferred signing", tradeID)
	}
	if rec.Status != domain.TradeStatusPending {
		return domain.TradeResult{}, fmt.Errorf("deferred_service: trade %s already settled as %s", tradeID, rec.Status)
	}

	market, err := s.markets.GetByID(ctx, rec.MarketID)
	if err != nil {
		return domain.TradeResult{}, fmt.Errorf("deferred_service: get market %s: %w", rec.MarketID, err)
	}

	outcome, txHash, err := s.ledger.SubmitSigned(ctx, rawTx, rec.CallerAddress, rec.Side)
	if err != nil {
		if errors.Is(err, domain.ErrSignerMismatch) {
			s.logger.WarnContext(ctx, "signer mismatch on deferred submission",
				slog.String("trade_id", tradeID),
				slog.String("expected", rec.CallerAddress),
			)
			return domain.TradeResult{}, fmt.Errorf("deferred_service: trade %s: %w", tradeID, err)
		}
		return s.resolveSubmitError(ctx, rec, err)
	}

	result, err := s.settle(ctx, rec, market, outcome.Amount, txHash)
	if err != nil {
		return domain.TradeResult{}, err
	}
	s.invalidateOdds(ctx, rec.MarketID)

	// The bound recorded at build time travels with the unsigned transaction,
	// but a zero on-chain bound still needs the local check. The trade has
	// already settled either way; the violation is surfaced, not rolled back.
	switch rec.Side {
	case domain.TradeSideBuy:
		if err := pricing.CheckMinShares(outcome.Amount, rec.SlippageBound); err != nil {
			return result, fmt.Errorf("deferred_service: trade %s: %w", rec.ID, err)
		}
	case domain.TradeSideSell:
		if err := pricing.CheckMinPayout(outcome.Amount, rec.SlippageBound); err != nil {
			return result, fmt.Errorf("deferred_service: trade %s: %w", rec.ID, err)
		}
	}
	return result, nil
}

func (s *DeferredService) settle(ctx context.Context, rec domain.TradeRecord, market domain.Market, executed domain.Amount, txHash string) (domain.TradeResult, error) {
	result := domain.TradeResult{
		TradeID: rec.ID,
		Status:  domain.TradeStatusConfirmed,
		TxHash:  txHash,
	}

	switch rec.Side {
	case domain.TradeSideBuy:
		quote := pricing.ComputeBuy(rec.RequestedAmount, executed, market.FeeBpsBuy)
		if _, err := s.recon.ConfirmBuy(ctx, rec, executed, quote.FeeAmount, txHash); err != nil {
			return domain.TradeResult{}, err
		}
		result.SharesOut = executed
		result.FeeAmount = quote.FeeAmount
		result.PricePerUnit = quote.PricePerUnit
	case domain.TradeSideSell:
		quote := pricing.ComputeSell(rec.RequestedAmount, executed, market.FeeBpsSell)
		if _, err := s.recon.ConfirmSell(ctx, rec, executed, quote.FeeAmount, txHash); err != nil {
			return domain.TradeResult{}, err
		}
		result.Payout = executed
		result.FeeAmount = quote.FeeAmount
		result.PricePerUnit = quote.PricePerUnit
	default:
		return domain.TradeResult{}, fmt.Errorf("deferred_service: unsupported side %s", rec.Side)
	}

	s.logger.InfoContext(ctx, "deferred trade settled",
		slog.String("trade_id", rec.ID),
		slog.String("side", string(rec.Side)),
		slog.String("executed", executed.String()),
	)
	return result, nil
}

func (s *DeferredService) resolveSubmitError(ctx context.Context, rec domain.TradeRecord, err error) (domain.TradeResult, error) {
	var indet *domain.IndeterminateError
	if errors.As(err, &indet) {
		if indet.TxHash != "" {
			if setErr := s.trades.SetTxHash(ctx, rec.ID, indet.TxHash); setErr != nil {
				s.logger.ErrorContext(ctx, "failed to record tx hash on indeterminate submission",
					slog.String("trade_id", rec.ID),
					slog.String("error", setErr.Error()),
				)
			}
		}
		return domain.TradeResult{
			TradeID: rec.ID,
			Status:  domain.TradeStatusPending,
			TxHash:  indet.TxHash,
		}, fmt.Errorf("deferred_service: trade %s: %w", rec.ID, err)
	}

	if _, markErr := s.recon.MarkFailed(ctx, rec.ID, "", err.Error()); markErr != nil {
		s.logger.ErrorContext(ctx, "failed to mark deferred trade failed",
			slog.String("trade_id", rec.ID),
			slog.String("error", markErr.Error()),
		)
	}
	return domain.TradeResult{
		TradeID: rec.ID,
		Status:  domain.TradeStatusFailed,
	}, fmt.Errorf("deferred_service: trade %s: %w", rec.ID, err)
}

func (s *DeferredService) invalidateOdds(ctx context.Context, marketID string) {
	if err := s.odds.Invalidate(ctx, marketID); err != nil {
		s.logger.WarnContext(ctx, "odds cache invalidation failed",
			slog.String("market_id", marketID),
			slog.String("error", err.Error()),
		)
	}
}
