package service

import (
	"context"
	"math/big"
	"sync"
	"time"

	"github.com/predictr-xyz/predictr/internal/domain"
)

// memStores is the shared in-memory state behind every store fake. The
// per-interface views below expose it; WithinTx applies mutations directly,
// since transactional atomicity is covered by the postgres layer.
type memStores struct {
	mu        sync.Mutex
	markets   map[string]domain.Market
	balances  map[string]domain.Amount
	positions map[string]domain.Position
	liquidity map[string]domain.LiquidityPosition
	trades    map[string]domain.TradeRecord
}

func newMemStores() *memStores {
	return &memStores{
		markets:   make(map[string]domain.Market),
		balances:  make(map[string]domain.Amount),
		positions: make(map[string]domain.Position),
		liquidity: make(map[string]domain.LiquidityPosition),
		trades:    make(map[string]domain.TradeRecord),
	}
}

func posKey(userID, marketID string, outcome domain.Outcome) string {
	return userID + "|" + marketID + "|" + string('0'+rune(outcome))
}

func lpKey(userID, marketID string) string {
	return userID + "|" + marketID
}

func (m *memStores) Markets() domain.MarketStore      { return memMarkets{m} }
func (m *memStores) BalanceView() domain.BalanceStore { return memBalances{m} }
func (m *memStores) PositionView() domain.PositionStore {
	return memPositions{m}
}
func (m *memStores) LiquidityView() domain.LiquidityStore {
	return memLiquidity{m}
}
func (m *memStores) TradeView() domain.TradeStore { return memTrades{m} }

// UnitOfWork + TxStores

func (m *memStores) WithinTx(ctx context.Context, fn func(tx domain.TxStores) error) error {
	return fn(m)
}

func (m *memStores) Balances() domain.BalanceStore    { return memBalances{m} }
func (m *memStores) Positions() domain.PositionStore  { return memPositions{m} }
func (m *memStores) Liquidity() domain.LiquidityStore { return memLiquidity{m} }
func (m *memStores) Trades() domain.TradeStore        { return memTrades{m} }

// mustTrade fetches a trade record directly, for assertions.
func (m *memStores) mustTrade(id string) domain.TradeRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.trades[id]
}

// onlyTrade returns the single stored trade record, for assertions on
// records created inside the service.
func (m *memStores) onlyTrade() (domain.TradeRecord, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.trades) != 1 {
		return domain.TradeRecord{}, false
	}
	for _, rec := range m.trades {
		return rec, true
	}
	return domain.TradeRecord{}, false
}

type memMarkets struct{ m *memStores }

func (s memMarkets) Create(ctx context.Context, mk domain.Market) error {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	if _, ok := s.m.markets[mk.ID]; ok {
		return domain.ErrAlreadyExists
	}
	s.m.markets[mk.ID] = mk
	return nil
}

func (s memMarkets) GetByID(ctx context.Context, id string) (domain.Market, error) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	mk, ok := s.m.markets[id]
	if !ok {
		return domain.Market{}, domain.ErrNotFound
	}
	return mk, nil
}

func (s memMarkets) UpdateStatus(ctx context.Context, id string, status domain.MarketStatus) error {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	mk, ok := s.m.markets[id]
	if !ok {
		return domain.ErrNotFound
	}
	mk.Status = status
	s.m.markets[id] = mk
	return nil
}

func (s memMarkets) ListByStatus(ctx context.Context, status domain.MarketStatus, opts domain.ListOpts) ([]domain.Market, error) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	var out []domain.Market
	for _, mk := range s.m.markets {
		if mk.Status == status {
			out = append(out, mk)
		}
	}
	return out, nil
}

type memBalances struct{ m *memStores }

func (s memBalances) Get(ctx context.Context, userID string) (domain.Balance, error) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	amt, ok := s.m.balances[userID]
	if !ok {
		return domain.Balance{}, domain.ErrNotFound
	}
	return domain.Balance{UserID: userID, Amount: amt}, nil
}

func (s memBalances) Credit(ctx context.Context, userID string, amt domain.Amount) error {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	s.m.balances[userID] += amt
	return nil
}

func (s memBalances) Debit(ctx context.Context, userID string, amt domain.Amount) error {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	if s.m.balances[userID] < amt {
		return domain.ErrInsufficientBalance
	}
	s.m.balances[userID] -= amt
	return nil
}

type memPositions struct{ m *memStores }

func (s memPositions) Get(ctx context.Context, userID, marketID string, outcome domain.Outcome) (domain.Position, error) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	p, ok := s.m.positions[posKey(userID, marketID, outcome)]
	if !ok {
		return domain.Position{}, domain.ErrNotFound
	}
	return p, nil
}

func (s memPositions) ListByUser(ctx context.Context, userID string, opts domain.ListOpts) ([]domain.Position, error) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	var out []domain.Position
	for _, p := range s.m.positions {
		if p.UserID == userID {
			out = append(out, p)
		}
	}
	return out, nil
}

func (s memPositions) ApplyBuy(ctx context.Context, userID, marketID string, outcome domain.Outcome, shares, cost domain.Amount) (domain.Position, error) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	key := posKey(userID, marketID, outcome)
	p := s.m.positions[key]
	p.UserID, p.MarketID, p.Outcome = userID, marketID, outcome
	p.Quantity += shares
	p.CostBasis += cost
	s.m.positions[key] = p
	return p, nil
}

func (s memPositions) ApplySell(ctx context.Context, userID, marketID string, outcome domain.Outcome, shares, proceeds domain.Amount) (domain.Position, error) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	key := posKey(userID, marketID, outcome)
	p, ok := s.m.positions[key]
	if !ok || p.Quantity < shares {
		return domain.Position{}, domain.ErrInsufficientShares
	}
	// Same widened arithmetic as the postgres store: the product can exceed
	// int64 for large positions.
	costOfSold := domain.Amount(new(big.Int).Div(
		new(big.Int).Mul(big.NewInt(int64(p.CostBasis)), big.NewInt(int64(shares))),
		big.NewInt(int64(p.Quantity)),
	).Int64())
	p.RealizedPnL += proceeds - costOfSold
	p.CostBasis -= costOfSold
	p.Quantity -= shares
	p.SoldQuantity += shares
	s.m.positions[key] = p
	return p, nil
}

type memLiquidity struct{ m *memStores }

func (s memLiquidity) Get(ctx context.Context, userID, marketID string) (domain.LiquidityPosition, error) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	lp, ok := s.m.liquidity[lpKey(userID, marketID)]
	if !ok {
		return domain.LiquidityPosition{}, domain.ErrNotFound
	}
	return lp, nil
}

func (s memLiquidity) Credit(ctx context.Context, userID, marketID string, lpTokens domain.Amount) (domain.LiquidityPosition, error) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	key := lpKey(userID, marketID)
	lp := s.m.liquidity[key]
	lp.UserID, lp.MarketID = userID, marketID
	lp.LPTokens += lpTokens
	s.m.liquidity[key] = lp
	return lp, nil
}

func (s memLiquidity) Debit(ctx context.Context, userID, marketID string, lpTokens domain.Amount) (domain.LiquidityPosition, error) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	key := lpKey(userID, marketID)
	lp, ok := s.m.liquidity[key]
	if !ok || lp.LPTokens < lpTokens {
		return domain.LiquidityPosition{}, domain.ErrInsufficientShares
	}
	lp.LPTokens -= lpTokens
	s.m.liquidity[key] = lp
	return lp, nil
}

type memTrades struct{ m *memStores }

func (s memTrades) Create(ctx context.Context, rec domain.TradeRecord) error {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	s.m.trades[rec.ID] = rec
	return nil
}

func (s memTrades) GetByID(ctx context.Context, id string) (domain.TradeRecord, error) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	rec, ok := s.m.trades[id]
	if !ok {
		return domain.TradeRecord{}, domain.ErrNotFound
	}
	return rec, nil
}

func (s memTrades) SetTxHash(ctx context.Context, id, txHash string) error {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	rec, ok := s.m.trades[id]
	if !ok {
		return domain.ErrNotFound
	}
	rec.TxHash = txHash
	s.m.trades[id] = rec
	return nil
}

func (s memTrades) Settle(ctx context.Context, id string, status domain.TradeStatus, txHash string, executed, fee domain.Amount, reason string) (bool, error) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	rec, ok := s.m.trades[id]
	if !ok || rec.Status != domain.TradeStatusPending {
		return false, nil
	}
	rec.Status = status
	if txHash != "" {
		rec.TxHash = txHash
	}
	rec.ExecutedAmount = executed
	rec.FeeAmount = fee
	rec.FailureReason = reason
	rec.UpdatedAt = time.Now().UTC()
	s.m.trades[id] = rec
	return true, nil
}

func (s memTrades) ListByUser(ctx context.Context, userID string, opts domain.ListOpts) ([]domain.TradeRecord, error) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	var out []domain.TradeRecord
	for _, rec := range s.m.trades {
		if rec.UserID == userID {
			out = append(out, rec)
		}
	}
	return out, nil
}

func (s memTrades) ListPendingBefore(ctx context.Context, cutoff time.Time) ([]domain.TradeRecord, error) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	var out []domain.TradeRecord
	for _, rec := range s.m.trades {
		if rec.Status == domain.TradeStatusPending && rec.CreatedAt.Before(cutoff) {
			out = append(out, rec)
		}
	}
	return out, nil
}

func (s memTrades) ListSettledBefore(ctx context.Context, cutoff time.Time) ([]domain.TradeRecord, error) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	var out []domain.TradeRecord
	for _, rec := range s.m.trades {
		if rec.Status != domain.TradeStatusPending && rec.CreatedAt.Before(cutoff) {
			out = append(out, rec)
		}
	}
	return out, nil
}

func (s memTrades) DeleteSettledBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	var n int64
	for id, rec := range s.m.trades {
		if rec.Status != domain.TradeStatusPending && rec.CreatedAt.Before(cutoff) {
			delete(s.m.trades, id)
			n++
		}
	}
	return n, nil
}

// fakeLedger is a scripted domain.Ledger that records call counts.
type fakeLedger struct {
	buyOut   domain.BuyOutcome
	buyErr   error
	buyCalls int

	sellOut   domain.SellOutcome
	sellErr   error
	sellCalls int

	addOut    domain.AddLiquidityOutcome
	addErr    error
	removeOut domain.RemoveLiquidityOutcome
	removeErr error
	createOut domain.CreatePoolOutcome
	createErr error

	odds      domain.RawOdds
	oddsErr   error
	oddsCalls int
	reserves  domain.PoolReserves

	built      domain.UnsignedTx
	buildErr   error
	buildCalls int

	submitOutcome domain.LedgerOutcome
	submitHash    string
	submitErr     error
	submitCalls   int

	txOutcome    domain.LedgerOutcome
	txOutcomeErr error
}

func (f *fakeLedger) BuyShares(ctx context.Context, marketID string, outcome domain.Outcome, amountIn, minShares domain.Amount) (domain.BuyOutcome, error) {
	f.buyCalls++
	return f.buyOut, f.buyErr
}

func (f *fakeLedger) SellShares(ctx context.Context, marketID string, outcome domain.Outcome, shares, minPayout domain.Amount) (domain.SellOutcome, error) {
	f.sellCalls++
	return f.sellOut, f.sellErr
}

func (f *fakeLedger) AddLiquidity(ctx context.Context, marketID string, amount domain.Amount) (domain.AddLiquidityOutcome, error) {
	return f.addOut, f.addErr
}

func (f *fakeLedger) RemoveLiquidity(ctx context.Context, marketID string, lpTokens domain.Amount) (domain.RemoveLiquidityOutcome, error) {
	return f.removeOut, f.removeErr
}

func (f *fakeLedger) CreatePool(ctx context.Context, marketID string, initialLiquidity domain.Amount) (domain.CreatePoolOutcome, error) {
	return f.createOut, f.createErr
}

func (f *fakeLedger) GetOdds(ctx context.Context, marketID string) (domain.RawOdds, error) {
	f.oddsCalls++
	return f.odds, f.oddsErr
}

func (f *fakeLedger) GetPoolState(ctx context.Context, marketID string) (domain.PoolReserves, error) {
	return f.reserves, nil
}

func (f *fakeLedger) BuildBuyTx(ctx context.Context, caller, marketID string, outcome domain.Outcome, amountIn, minShares domain.Amount) (domain.UnsignedTx, error) {
	f.buildCalls++
	return f.built, f.buildErr
}

func (f *fakeLedger) BuildSellTx(ctx context.Context, caller, marketID string, outcome domain.Outcome, shares, minPayout domain.Amount) (domain.UnsignedTx, error) {
	f.buildCalls++
	return f.built, f.buildErr
}

func (f *fakeLedger) SubmitSigned(ctx context.Context, rawTx []byte, expectedSender string, side domain.TradeSide) (domain.LedgerOutcome, string, error) {
	f.submitCalls++
	return f.submitOutcome, f.submitHash, f.submitErr
}

func (f *fakeLedger) TxOutcome(ctx context.Context, txHash string, side domain.TradeSide) (domain.LedgerOutcome, error) {
	return f.txOutcome, f.txOutcomeErr
}

// fakeLocks hands out locks unless held is set.
type fakeLocks struct {
	held     bool
	acquires int
	releases int
}

func (f *fakeLocks) Acquire(ctx context.Context, key string, ttl time.Duration) (func(), error) {
	if f.held {
		return nil, domain.ErrLockHeld
	}
	f.acquires++
	return func() { f.releases++ }, nil
}

// fakeOddsCache is a map-backed domain.OddsCache that counts invalidations.
type fakeOddsCache struct {
	entries       map[string]domain.Odds
	invalidations int
}

func newFakeOddsCache() *fakeOddsCache {
	return &fakeOddsCache{entries: make(map[string]domain.Odds)}
}

func (f *fakeOddsCache) Get(ctx context.Context, marketID string) (domain.Odds, error) {
	odds, ok := f.entries[marketID]
	if !ok {
		return domain.Odds{}, domain.ErrNotFound
	}
	return odds, nil
}

func (f *fakeOddsCache) Set(ctx context.Context, marketID string, odds domain.Odds, ttl time.Duration) error {
	f.entries[marketID] = odds
	return nil
}

func (f *fakeOddsCache) Invalidate(ctx context.Context, marketID string) error {
	f.invalidations++
	delete(f.entries, marketID)
	return nil
}
