package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/predictr-xyz/predictr/internal/domain"
)

// OddsCache implements domain.OddsCache. Each market's odds snapshot is
// stored as a JSON string under the client's "odds" keyspace with a TTL, so
// the quote path serves repeated reads without a ledger round trip.
type OddsCache struct {
	client *Client
}

// NewOddsCache creates an OddsCache backed by the given Client.
func NewOddsCache(c *Client) *OddsCache {
	return &OddsCache{client: c}
}

type cachedOdds struct {
	YesProbability float64       `json:"yes_prob"`
	NoProbability  float64       `json:"no_prob"`
	YesPercent     int           `json:"yes_pct"`
	NoPercent      int           `json:"no_pct"`
	YesLiquidity   domain.Amount `json:"yes_liquidity"`
	NoLiquidity    domain.Amount `json:"no_liquidity"`
	TotalLiquidity domain.Amount `json:"total_liquidity"`
}

// Get returns the cached odds for a market, or domain.ErrNotFound on a miss.
func (oc *OddsCache) Get(ctx context.Context, marketID string) (domain.Odds, error) {
	raw, err := oc.client.rdb.Get(ctx, oc.client.key("odds", marketID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return domain.Odds{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.Odds{}, fmt.Errorf("redis: get odds %s: %w", marketID, err)
	}

	var c cachedOdds
	if err := json.Unmarshal(raw, &c); err != nil {
		return domain.Odds{}, fmt.Errorf("redis: decode odds %s: %w", marketID, err)
	}
	return domain.Odds{
		YesProbability: c.YesProbability,
		NoProbability:  c.NoProbability,
		YesPercent:     c.YesPercent,
		NoPercent:      c.NoPercent,
		YesLiquidity:   c.YesLiquidity,
		NoLiquidity:    c.NoLiquidity,
		TotalLiquidity: c.TotalLiquidity,
	}, nil
}

// Set stores the odds snapshot for a market with the given TTL.
func (oc *OddsCache) Set(ctx context.Context, marketID string, odds domain.Odds, ttl time.Duration) error {
	raw, err := json.Marshal(cachedOdds{
		YesProbability: odds.YesProbability,
		NoProbability:  odds.NoProbability,
		YesPercent:     odds.YesPercent,
		NoPercent:      odds.NoPercent,
		YesLiquidity:   odds.YesLiquidity,
		NoLiquidity:    odds.NoLiquidity,
		TotalLiquidity: odds.TotalLiquidity,
	})
	if err != nil {
		return fmt.Errorf("redis: encode odds %s: %w", marketID, err)
	}
	if err := oc.client.rdb.Set(ctx, oc.client.key("odds", marketID), raw, ttl).Err(); err != nil {
		return fmt.Errorf("redis: set odds %s: %w", marketID, err)
	}
	return nil
}

// Invalidate drops the cached odds for a market, forcing the next quote to
// read fresh pool state. Called after any trade that moved the reserves.
func (oc *OddsCache) Invalidate(ctx context.Context, marketID string) error {
	if err := oc.client.rdb.Del(ctx, oc.client.key("odds", marketID)).Err(); err != nil {
		return fmt.Errorf("redis: invalidate odds %s: %w", marketID, err)
	}
	return nil
}

// Compile-time interface check.
var _ domain.OddsCache = (*OddsCache)(nil)
