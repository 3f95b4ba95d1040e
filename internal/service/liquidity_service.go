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

// LiquidityService coordinates pool liquidity operations. Deposits and
// withdrawals run the same pending→ledger→reconcile state machine as trades;
// CreatePool additionally registers the market record.
type LiquidityService struct {
	markets   domain.MarketStore
	balances  domain.BalanceStore
	liquidity domain.LiquidityStore
	trades    domain.TradeStore
	ledger    domain.Ledger
	locks     domain.LockManager
	odds      domain.OddsCache
	recon     *Reconciler
	logger    *slog.Logger
	lockTTL   time.Duration
}

// NewLiquidityService creates a LiquidityService with all required
// dependencies.
func NewLiquidityService(
	markets domain.MarketStore,
	balances domain.BalanceStore,
	liquidity domain.LiquidityStore,
	trades domain.TradeStore,
	ledger domain.Ledger,
	locks domain.LockManager,
	odds domain.OddsCache,
	recon *Reconciler,
	logger *slog.Logger,
) *LiquidityService {
	return &LiquidityService{
		markets:   markets,
		balances:  balances,
		liquidity: liquidity,
		trades:    trades,
		ledger:    ledger,
		locks:     locks,
		odds:      odds,
		recon:     recon,
		logger:    logger.With(slog.String("component", "liquidity_service")),
		lockTTL:   defaultLockTTL,
	}
}

// SetLockTTL overrides the default trade lock TTL. Non-positive values are
// ignored.
func (s *LiquidityService) SetLockTTL(d time.Duration) {
	if d > 0 {
		s.lockTTL = d
	}
}

// Add deposits amount into a market's pool and credits the minted LP tokens.
func (s *LiquidityService) Add(ctx context.Context, userID, marketID string, amount domain.Amount) (domain.LiquidityResult, error) {
	if amount <= 0 {
		return domain.LiquidityResult{}, fmt.Errorf("liquidity_service: deposit amount must be positive")
	}

	market, err := s.markets.GetByID(ctx, marketID)
	if err != nil {
		return domain.LiquidityResult{}, fmt.Errorf("liquidity_service: get market %s: %w", marketID, err)
	}
	if !market.Tradable() {
		return domain.LiquidityResult{}, fmt.Errorf("liquidity_service: market %s is %s: %w",
			marketID, market.Status, domain.ErrMarketNotOpen)
	}

	bal, err := s.balances.Get(ctx, userID)
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return domain.LiquidityResult{}, fmt.Errorf("liquidity_service: get balance: %w", err)
	}
	if bal.Amount < amount {
		return domain.LiquidityResult{}, fmt.Errorf("liquidity_service: balance %s below deposit %s: %w",
			bal.Amount, amount, domain.ErrInsufficientBalance)
	}

	unlock, err := s.locks.Acquire(ctx, tradeLockKey(userID, marketID), s.lockTTL)
	if err != nil {
		return domain.LiquidityResult{}, fmt.Errorf("liquidity_service: lock deposit: %w", err)
	}
	defer unlock()

	rec := domain.TradeRecord{
		ID:              uuid.New().String(),
		UserID:          userID,
		MarketID:        marketID,
		Side:            domain.TradeSideAddLiquidity,
		Mode:            domain.ExecModeService,
		RequestedAmount: amount,
		Status:          domain.TradeStatusPending,
	}
	if err := s.trades.Create(ctx, rec); err != nil {
		return domain.LiquidityResult{}, fmt.Errorf("liquidity_service: create deposit record: %w", err)
	}

	out, err := s.ledger.AddLiquidity(ctx, market.ContractMarketID, amount)
	if err != nil {
		return s.resolveLiquidityError(ctx, rec, err)
	}

	if _, err := s.recon.ConfirmAddLiquidity(ctx, rec, out.LPMinted, out.TxHash); err != nil {
		return domain.LiquidityResult{}, err
	}
	s.invalidateOdds(ctx, marketID)

	s.logger.InfoContext(ctx, "liquidity added",
		slog.String("trade_id", rec.ID),
		slog.String("market_id", marketID),
		slog.String("amount", amount.String()),
		slog.String("lp_minted", out.LPMinted.String()),
	)

	return domain.LiquidityResult{
		TradeID:  rec.ID,
		Status:   domain.TradeStatusConfirmed,
		TxHash:   out.TxHash,
		LPTokens: out.LPMinted,
	}, nil
}

// Remove burns lpTokens and credits the proportional reserve withdrawal.
func (s *LiquidityService) Remove(ctx context.Context, userID, marketID string, lpTokens domain.Amount) (domain.LiquidityResult, error) {
	if lpTokens <= 0 {
		return domain.LiquidityResult{}, fmt.Errorf("liquidity_service: lp token amount must be positive")
	}

	market, err := s.markets.GetByID(ctx, marketID)
	if err != nil {
		return domain.LiquidityResult{}, fmt.Errorf("liquidity_service: get market %s: %w", marketID, err)
	}

	lp, err := s.liquidity.Get(ctx, userID, marketID)
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return domain.LiquidityResult{}, fmt.Errorf("liquidity_service: get lp position: %w", err)
	}
	if lp.LPTokens < lpTokens {
		return domain.LiquidityResult{}, fmt.Errorf("liquidity_service: lp position %s below withdrawal %s: %w",
			lp.LPTokens, lpTokens, domain.ErrInsufficientShares)
	}

	unlock, err := s.locks.Acquire(ctx, tradeLockKey(userID, marketID), s.lockTTL)
	if err != nil {
		return domain.LiquidityResult{}, fmt.Errorf("liquidity_service: lock withdrawal: %w", err)
	}
	defer unlock()

	rec := domain.TradeRecord{
		ID:              uuid.New().String(),
		UserID:          userID,
		MarketID:        marketID,
		Side:            domain.TradeSideRemoveLiquidity,
		Mode:            domain.ExecModeService,
		RequestedAmount: lpTokens,
		Status:          domain.TradeStatusPending,
	}
	if err := s.trades.Create(ctx, rec); err != nil {
		return domain.LiquidityResult{}, fmt.Errorf("liquidity_service: create withdrawal record: %w", err)
	}

	out, err := s.ledger.RemoveLiquidity(ctx, market.ContractMarketID, lpTokens)
	if err != nil {
		return s.resolveLiquidityError(ctx, rec, err)
	}

	if _, err := s.recon.ConfirmRemoveLiquidity(ctx, rec, out.AmountOut, out.TxHash); err != nil {
		return domain.LiquidityResult{}, err
	}
	s.invalidateOdds(ctx, marketID)

	s.logger.InfoContext(ctx, "liquidity removed",
		slog.String("trade_id", rec.ID),
		slog.String("market_id", marketID),
		slog.String("lp_burned", lpTokens.String()),
		slog.String("amount_out", out.AmountOut.String()),
	)

	return domain.LiquidityResult{
		TradeID:   rec.ID,
		Status:    domain.TradeStatusConfirmed,
		TxHash:    out.TxHash,
		LPTokens:  lpTokens,
		YesOut:    out.YesOut,
		NoOut:     out.NoOut,
		AmountOut: out.AmountOut,
	}, nil
}

// CreatePool registers a new market and initializes its on-chain pool with
// initialLiquidity from the creator's balance. The creator's LP position is
// credited with the initial deposit, matching the contract's 1:1 initial
// mint. Returns the post-create odds alongside the liquidity result.
func (s *LiquidityService) CreatePool(ctx context.Context, userID string, market domain.Market, initialLiquidity domain.Amount) (domain.LiquidityResult, domain.Odds, error) {
	if initialLiquidity <= 0 {
		return domain.LiquidityResult{}, domain.Odds{}, fmt.Errorf("liquidity_service: initial liquidity must be positive")
	}
	if market.ID == "" || market.ContractMarketID == "" {
		return domain.LiquidityResult{}, domain.Odds{}, fmt.Errorf("liquidity_service: market id and contract market id are required")
	}

	bal, err := s.balances.Get(ctx, userID)
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return domain.LiquidityResult{}, domain.Odds{}, fmt.Errorf("liquidity_service: get balance: %w", err)
	}
	if bal.Amount < initialLiquidity {
		return domain.LiquidityResult{}, domain.Odds{}, fmt.Errorf("liquidity_service: balance %s below initial liquidity %s: %w",
			bal.Amount, initialLiquidity, domain.ErrInsufficientBalance)
	}

	market.Status = domain.MarketStatusOpen
	if err := s.markets.Create(ctx, market); err != nil {
		return domain.LiquidityResult{}, domain.Odds{}, fmt.Errorf("liquidity_service: create market %s: %w", market.ID, err)
	}

	rec := domain.TradeRecord{
		ID:              uuid.New().String(),
		UserID:          userID,
		MarketID:        market.ID,
		Side:            domain.TradeSideCreatePool,
		Mode:            domain.ExecModeService,
		RequestedAmount: initialLiquidity,
		Status:          domain.TradeStatusPending,
	}
	if err := s.trades.Create(ctx, rec); err != nil {
		return domain.LiquidityResult{}, domain.Odds{}, fmt.Errorf("liquidity_service: create pool record: %w", err)
	}

	out, err := s.ledger.CreatePool(ctx, market.ContractMarketID, initialLiquidity)
	if err != nil {
		res, rerr := s.resolveLiquidityError(ctx, rec, err)
		return res, domain.Odds{}, rerr
	}

	if _, err := s.recon.ConfirmAddLiquidity(ctx, rec, initialLiquidity, out.TxHash); err != nil {
		return domain.LiquidityResult{}, domain.Odds{}, err
	}

	odds := pricing.QuoteOdds(domain.RawOdds{}, out.Reserves)

	s.logger.InfoContext(ctx, "pool created",
		slog.String("market_id", market.ID),
		slog.String("initial_liquidity", initialLiquidity.String()),
		slog.String("tx_hash", out.TxHash),
	)

	return domain.LiquidityResult{
		TradeID:  rec.ID,
		Status:   domain.TradeStatusConfirmed,
		TxHash:   out.TxHash,
		LPTokens: initialLiquidity,
	}, odds, nil
}

// GetPosition returns a user's LP position in one market.
func (s *LiquidityService) GetPosition(ctx context.Context, userID, marketID string) (domain.LiquidityPosition, error) {
	lp, err := s.liquidity.Get(ctx, userID, marketID)
	if err != nil {
		return domain.LiquidityPosition{}, fmt.Errorf("liquidity_service: get lp position: %w", err)
	}
	return lp, nil
}

func (s *LiquidityService) resolveLiquidityError(ctx context.Context, rec domain.TradeRecord, err error) (domain.LiquidityResult, error) {
	var indet *domain.IndeterminateError
	if errors.As(err, &indet) {
		if indet.TxHash != "" {
			if setErr := s.trades.SetTxHash(ctx, rec.ID, indet.TxHash); setErr != nil {
				s.logger.ErrorContext(ctx, "failed to record tx hash on indeterminate operation",
					slog.String("trade_id", rec.ID),
					slog.String("error", setErr.Error()),
				)
			}
		}
		s.logger.WarnContext(ctx, "liquidity outcome indeterminate, left pending",
			slog.String("trade_id", rec.ID),
			slog.String("tx_hash", indet.TxHash),
		)
		return domain.LiquidityResult{
			TradeID: rec.ID,
			Status:  domain.TradeStatusPending,
			TxHash:  indet.TxHash,
		}, fmt.Errorf("liquidity_service: operation %s: %w", rec.ID, err)
	}

	if _, markErr := s.recon.MarkFailed(ctx, rec.ID, "", err.Error()); markErr != nil {
		s.logger.ErrorContext(ctx, "failed to mark operation failed",
			slog.String("trade_id", rec.ID),
			slog.String("error", markErr.Error()),
		)
	}
	return domain.LiquidityResult{
		TradeID: rec.ID,
		Status:  domain.TradeStatusFailed,
	}, fmt.Errorf("liquidity_service: operation %s: %w", rec.ID, err)
}

func (s *LiquidityService) invalidateOdds(ctx context.Context, marketID string) {
	if err := s.odds.Invalidate(ctx, marketID); err != nil {
		s.logger.WarnContext(ctx, "odds cache invalidation failed",
			slog.String("market_id", marketID),
			slog.String("error", err.Error()),
		)
	}
}
