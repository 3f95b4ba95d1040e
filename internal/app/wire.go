package app

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"log/slog"

	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/predictr-xyz/predictr/internal/archive"
	s3blob "github.com/predictr-xyz/predictr/internal/blob/s3"
	"github.com/predictr-xyz/predictr/internal/cache/redis"
	"github.com/predictr-xyz/predictr/internal/config"
	"github.com/predictr-xyz/predictr/internal/crypto"
	"github.com/predictr-xyz/predictr/internal/domain"
	"github.com/predictr-xyz/predictr/internal/ledger/evm"
	"github.com/predictr-xyz/predictr/internal/service"
	"github.com/predictr-xyz/predictr/internal/store/postgres"
)

// Dependencies bundles every constructed component the application runs. It
// is built by Wire and torn down by the returned cleanup function.
type Dependencies struct {
	// Stores
	Markets    domain.MarketStore
	Balances   domain.BalanceStore
	Positions  domain.PositionStore
	Liquidity  domain.LiquidityStore
	Trades     domain.TradeStore
	UnitOfWork domain.UnitOfWork

	// Caches
	OddsCache   domain.OddsCache
	LockManager domain.LockManager

	// Ledger
	Ledger domain.Ledger

	// Services
	TradeService     *service.TradeService
	LiquidityService *service.LiquidityService
	QuoteService     *service.QuoteService
	DeferredService  *service.DeferredService
	Janitor          *service.Janitor

	// Archiver is nil unless archival is enabled in config.
	Archiver *archive.Archiver
}

// Wire constructs all concrete dependency implementations from the given
// configuration and returns them together with a cleanup function that
// should be called on shutdown to release resources.
func Wire(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	deps := &Dependencies{}

	// --- PostgreSQL ---
	pgClient, err := postgres.New(ctx, postgres.ClientConfig{
		DSN:      cfg.Postgres.DSN,
		Host:     cfg.Postgres.Host,
		Port:     cfg.Postgres.Port,
		Database: cfg.Postgres.Database,
		User:     cfg.Postgres.User,
		Password: cfg.Postgres.Password,
		SSLMode:  cfg.Postgres.SSLMode,
		MaxConns: cfg.Postgres.PoolMaxConns,
		MinConns: cfg.Postgres.PoolMinConns,
	})
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: postgres: %w", err)
	}
	closers = append(closers, pgClient.Close)

	if cfg.Postgres.RunMigrations {
		if err := pgClient.RunMigrations(ctx); err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: postgres migrations: %w", err)
		}
	}

	pool := pgClient.Pool()
	deps.Markets = postgres.NewMarketStore(pool)
	deps.Balances = postgres.NewBalanceStore(pool)
	deps.Positions = postgres.NewPositionStore(pool)
	deps.Liquidity = postgres.NewLiquidityStore(pool)
	deps.Trades = postgres.NewTradeStore(pool)
	deps.UnitOfWork = postgres.NewUnitOfWork(pool)

	// --- Redis ---
	redisClient, err := redis.New(ctx, redis.ClientConfig{
		Addr:       cfg.Redis.Addr,
		Password:   cfg.Redis.Password,
		DB:         cfg.Redis.DB,
		PoolSize:   cfg.Redis.PoolSize,
		MaxRetries: cfg.Redis.MaxRetries,
		TLSEnabled: cfg.Redis.TLSEnabled,
	})
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: redis: %w", err)
	}
	closers = append(closers, func() { _ = redisClient.Close() })

	deps.OddsCache = redis.NewOddsCache(redisClient)
	deps.LockManager = redis.NewLockManager(redisClient)

	// --- Signing key (optional; absent key means read-only execution) ---
	var signingKey *ecdsa.PrivateKey
	keyCfg := crypto.KeyConfig{
		RawPrivateKey:    cfg.Wallet.PrivateKey,
		EncryptedKeyPath: cfg.Wallet.EncryptedKeyPath,
		KeyPassword:      cfg.Wallet.KeyPassword,
	}
	if keyCfg.Configured() {
		signingKey, err = crypto.LoadSigningKey(keyCfg)
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: signing key: %w", err)
		}
	} else {
		logger.Warn("no signing key configured, service-signed trades disabled")
	}

	// --- Ledger ---
	eth, err := ethclient.DialContext(ctx, cfg.Ledger.RPCURL)
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: dial rpc: %w", err)
	}
	closers = append(closers, eth.Close)

	ledger, err := evm.NewClient(eth, evm.Config{
		ContractAddress: cfg.Ledger.ContractAddress,
		ChainID:         cfg.Ledger.ChainID,
		PollAttempts:    cfg.Ledger.PollAttempts,
		PollInterval:    cfg.Ledger.PollInterval.Duration,
	}, signingKey, logger)
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: ledger client: %w", err)
	}
	deps.Ledger = ledger

	// --- Services ---
	recon := service.NewReconciler(deps.UnitOfWork, logger)

	deps.TradeService = service.NewTradeService(
		deps.Markets, deps.Balances, deps.Positions, deps.Trades,
		deps.Ledger, deps.LockManager, deps.OddsCache, recon, logger,
	)
	deps.TradeService.SetLockTTL(cfg.Trading.LockTTL.Duration)

	deps.LiquidityService = service.NewLiquidityService(
		deps.Markets, deps.Balances, deps.Liquidity, deps.Trades,
		deps.Ledger, deps.LockManager, deps.OddsCache, recon, logger,
	)
	deps.LiquidityService.SetLockTTL(cfg.Trading.LockTTL.Duration)

	deps.QuoteService = service.NewQuoteService(deps.Markets, deps.Ledger, deps.OddsCache, logger)
	deps.QuoteService.SetOddsTTL(cfg.Trading.OddsTTL.Duration)

	deps.DeferredService = service.NewDeferredService(
		deps.Markets, deps.Trades, deps.Balances, deps.Positions,
		deps.Ledger, deps.OddsCache, recon, logger,
	)

	deps.Janitor = service.NewJanitor(deps.Markets, deps.Trades, deps.Ledger, recon, service.JanitorConfig{
		PendingAge:  cfg.Janitor.PendingAge.Duration,
		BuildExpiry: cfg.Janitor.BuildExpiry.Duration,
	}, logger)

	// --- S3 + archiver (optional) ---
	if cfg.Archiver.Enabled {
		s3Client, err := s3blob.New(ctx, s3blob.ClientConfig{
			Endpoint:       cfg.S3.Endpoint,
			Region:         cfg.S3.Region,
			Bucket:         cfg.S3.Bucket,
			AccessKey:      cfg.S3.AccessKey,
			SecretKey:      cfg.S3.SecretKey,
			UseSSL:         cfg.S3.UseSSL,
			ForcePathStyle: cfg.S3.ForcePathStyle,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: s3: %w", err)
		}
		closers = append(closers, func() { _ = s3Client.Close() })

		deps.Archiver = archive.NewArchiver(deps.Trades, s3blob.NewWriter(s3Client), cfg.Archiver.RetentionDays, logger)
	}

	return deps, cleanup, nil
}
