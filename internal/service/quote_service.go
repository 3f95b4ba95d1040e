package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/predictr-xyz/predictr/internal/domain"
	"github.com/predictr-xyz/predictr/internal/pricing"
)

// defaultOddsTTL bounds odds staleness between cache refreshes.
const defaultOddsTTL = 15 * time.Second

// QuoteService serves market odds and pool state. Odds are read from the
// ledger through simulation, derived with the pricing model, and cached with
// a short TTL; cache failures degrade to a direct ledger read.
type QuoteService struct {
	markets domain.MarketStore
	ledger  domain.Ledger
	odds    domain.OddsCache
	logger  *slog.Logger
	oddsTTL time.Duration
}

// NewQuoteService creates a QuoteService with all required dependencies.
func NewQuoteService(
	markets domain.MarketStore,
	ledger domain.Ledger,
	odds domain.OddsCache,
	logger *slog.Logger,
) *QuoteService {
	return &QuoteService{
		markets: markets,
		ledger:  ledger,
		odds:    odds,
		logger:  logger.With(slog.String("component", "quote_service")),
		oddsTTL: defaultOddsTTL,
	}
}

// SetOddsTTL overrides the default odds cache TTL. Non-positive values are
// ignored.
func (s *QuoteService) SetOddsTTL(d time.Duration) {
	if d > 0 {
		s.oddsTTL = d
	}
}

// Odds returns the current odds for a market, from cache when fresh.
func (s *QuoteService) Odds(ctx context.Context, marketID string) (domain.Odds, error) {
	cached, err := s.odds.Get(ctx, marketID)
	if err == nil {
		return cached, nil
	}
	if !errors.Is(err, domain.ErrNotFound) {
		s.logger.WarnContext(ctx, "odds cache read failed, falling through to ledger",
			slog.String("market_id", marketID),
			slog.String("error", err.Error()),
		)
	}

	market, err := s.markets.GetByID(ctx, marketID)
	if err != nil {
		return domain.Odds{}, fmt.Errorf("quote_service: get market %s: %w", marketID, err)
	}

	raw, err := s.ledger.GetOdds(ctx, market.ContractMarketID)
	if err != nil {
		return domain.Odds{}, fmt.Errorf("quote_service: get odds %s: %w", marketID, err)
	}
	reserves, err := s.ledger.GetPoolState(ctx, market.ContractMarketID)
	if err != nil {
		return domain.Odds{}, fmt.Errorf("quote_service: get pool state %s: %w", marketID, err)
	}

	odds := pricing.QuoteOdds(raw, reserves)

	if err := s.odds.Set(ctx, marketID, odds, s.oddsTTL); err != nil {
		s.logger.WarnContext(ctx, "odds cache write failed",
			slog.String("market_id", marketID),
			slog.String("error", err.Error()),
		)
	}
	return odds, nil
}

// PoolState returns a market's live reserves straight from the ledger.
func (s *QuoteService) PoolState(ctx context.Context, marketID string) (domain.PoolReserves, error) {
	market, err := s.markets.GetByID(ctx, marketID)
	if err != nil {
		return domain.PoolReserves{}, fmt.Errorf("quote_service: get market %s: %w", marketID, err)
	}
	reserves, err := s.ledger.GetPoolState(ctx, market.ContractMarketID)
	if err != nil {
		return domain.PoolReserves{}, fmt.Errorf("quote_service: get pool state %s: %w", marketID, err)
	}
	return reserves, nil
}
