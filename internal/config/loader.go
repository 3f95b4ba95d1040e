package config

import (
	"os"
	"strconv"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies PREDICTR_* environment variable overrides, and
// returns the final Config. The returned Config has NOT been validated; the
// caller should invoke Config.Validate() after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, err
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known PREDICTR_* environment variables and
// overwrites the corresponding Config fields when a variable is set. This
// lets operators inject secrets at deploy time without touching the TOML
// file.
func applyEnvOverrides(cfg *Config) {
	// ── Wallet ──
	setStr(&cfg.Wallet.PrivateKey, "PREDICTR_WALLET_PRIVATE_KEY")
	setStr(&cfg.Wallet.EncryptedKeyPath, "PREDICTR_WALLET_ENCRYPTED_KEY_PATH")
	setStr(&cfg.Wallet.KeyPassword, "PREDICTR_WALLET_KEY_PASSWORD")

	// ── Ledger ──
	setStr(&cfg.Ledger.RPCURL, "PREDICTR_LEDGER_RPC_URL")
	setStr(&cfg.Ledger.ContractAddress, "PREDICTR_LEDGER_CONTRACT_ADDRESS")
	setInt64(&cfg.Ledger.ChainID, "PREDICTR_LEDGER_CHAIN_ID")
	setInt(&cfg.Ledger.PollAttempts, "PREDICTR_LEDGER_POLL_ATTEMPTS")
	setDuration(&cfg.Ledger.PollInterval, "PREDICTR_LEDGER_POLL_INTERVAL")

	// ── Postgres ──
	setStr(&cfg.Postgres.DSN, "PREDICTR_POSTGRES_DSN")
	setStr(&cfg.Postgres.Host, "PREDICTR_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "PREDICTR_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "PREDICTR_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "PREDICTR_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "PREDICTR_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "PREDICTR_POSTGRES_SSL_MODE")
	setInt(&cfg.Postgres.PoolMaxConns, "PREDICTR_POSTGRES_POOL_MAX_CONNS")
	setInt(&cfg.Postgres.PoolMinConns, "PREDICTR_POSTGRES_POOL_MIN_CONNS")
	setBool(&cfg.Postgres.RunMigrations, "PREDICTR_POSTGRES_RUN_MIGRATIONS")

	// ── Redis ──
	setStr(&cfg.Redis.Addr, "PREDICTR_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "PREDICTR_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "PREDICTR_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "PREDICTR_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "PREDICTR_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "PREDICTR_REDIS_TLS_ENABLED")

	// ── S3 ──
	setStr(&cfg.S3.Endpoint, "PREDICTR_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "PREDICTR_S3_REGION")
	setStr(&cfg.S3.Bucket, "PREDICTR_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "PREDICTR_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "PREDICTR_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "PREDICTR_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "PREDICTR_S3_FORCE_PATH_STYLE")

	// ── Trading ──
	setDuration(&cfg.Trading.LockTTL, "PREDICTR_TRADING_LOCK_TTL")
	setDuration(&cfg.Trading.OddsTTL, "PREDICTR_TRADING_ODDS_TTL")

	// ── Janitor ──
	setBool(&cfg.Janitor.Enabled, "PREDICTR_JANITOR_ENABLED")
	setDuration(&cfg.Janitor.Interval, "PREDICTR_JANITOR_INTERVAL")
	setDuration(&cfg.Janitor.PendingAge, "PREDICTR_JANITOR_PENDING_AGE")
	setDuration(&cfg.Janitor.BuildExpiry, "PREDICTR_JANITOR_BUILD_EXPIRY")

	// ── Archiver ──
	setBool(&cfg.Archiver.Enabled, "PREDICTR_ARCHIVER_ENABLED")
	setDuration(&cfg.Archiver.Interval, "PREDICTR_ARCHIVER_INTERVAL")
	setInt(&cfg.Archiver.RetentionDays, "PREDICTR_ARCHIVER_RETENTION_DAYS")

	// ── Top-level ──
	setStr(&cfg.LogLevel, "PREDICTR_LOG_LEVEL")
}

// ---------------------------------------------------------------------------
// Typed env-var helpers. Each only mutates the target when the environment
// variable is present and non-empty.
// ---------------------------------------------------------------------------

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setInt64(dst *int64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			*dst = n
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			dst.Duration = d
		}
	}
}
