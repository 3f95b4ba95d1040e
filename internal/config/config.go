// Package config defines the top-level configuration for the trade
// coordinator and provides validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"
)

// Config is the root configuration structure. Fields are populated from a
// TOML file and then optionally overridden by PREDICTR_* environment
// variables.
type Config struct {
	Wallet   WalletConfig   `toml:"wallet"`
	Ledger   LedgerConfig   `toml:"ledger"`
	Postgres PostgresConfig `toml:"postgres"`
	Redis    RedisConfig    `toml:"redis"`
	S3       S3Config       `toml:"s3"`
	Trading  TradingConfig  `toml:"trading"`
	Janitor  JanitorConfig  `toml:"janitor"`
	Archiver ArchiverConfig `toml:"archiver"`
	LogLevel string         `toml:"log_level"`
}

// WalletConfig holds the service signing credential. Either a raw private
// key or an encrypted key file may be provided; with neither, the service
// runs in read-only / deferred-signing mode.
type WalletConfig struct {
	PrivateKey       string `toml:"private_key"`
	EncryptedKeyPath string `toml:"encrypted_key_path"`
	KeyPassword      string `toml:"key_password"`
}

// LedgerConfig holds chain endpoint and contract parameters.
type LedgerConfig struct {
	RPCURL          string   `toml:"rpc_url"`
	ContractAddress string   `toml:"contract_address"`
	ChainID         int64    `toml:"chain_id"`
	PollAttempts    int      `toml:"poll_attempts"`
	PollInterval    duration `toml:"poll_interval"`
}

// PostgresConfig holds PostgreSQL connection parameters.
type PostgresConfig struct {
	DSN           string `toml:"dsn"`
	Host          string `toml:"host"`
	Port          int    `toml:"port"`
	Database      string `toml:"database"`
	User          string `toml:"user"`
	Password      string `toml:"password"`
	SSLMode       string `toml:"ssl_mode"`
	PoolMaxConns  int    `toml:"pool_max_conns"`
	PoolMinConns  int    `toml:"pool_min_conns"`
	RunMigrations bool   `toml:"run_migrations"`
}

// RedisConfig holds Redis connection parameters.
type RedisConfig struct {
	Addr       string `toml:"addr"`
	Password   string `toml:"password"`
	DB         int    `toml:"db"`
	PoolSize   int    `toml:"pool_size"`
	MaxRetries int    `toml:"max_retries"`
	TLSEnabled bool   `toml:"tls_enabled"`
}

// S3Config holds S3-compatible object storage parameters for trade archives.
type S3Config struct {
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	UseSSL         bool   `toml:"use_ssl"`
	ForcePathStyle bool   `toml:"force_path_style"`
}

// TradingConfig holds trade coordination parameters.
type TradingConfig struct {
	LockTTL duration `toml:"lock_ttl"`
	OddsTTL duration `toml:"odds_ttl"`
}

// JanitorConfig holds the pending-trade sweep parameters.
type JanitorConfig struct {
	Enabled     bool     `toml:"enabled"`
	Interval    duration `toml:"interval"`
	PendingAge  duration `toml:"pending_age"`
	BuildExpiry duration `toml:"build_expiry"`
}

// ArchiverConfig holds the settled-trade archival parameters.
type ArchiverConfig struct {
	Enabled       bool     `toml:"enabled"`
	Interval      duration `toml:"interval"`
	RetentionDays int      `toml:"retention_days"`
}

// duration is a wrapper around time.Duration that supports TOML string
// decoding (e.g. "5m", "30s").
type duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler so the TOML decoder can
// parse duration strings like "5m" or "30s".
func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// MarshalText implements encoding.TextMarshaler for round-trip encoding.
func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Defaults returns a Config populated with reasonable default values.
// These match the values in config.example.toml.
func Defaults() Config {
	return Config{
		Ledger: LedgerConfig{
			ChainID:      137,
			PollAttempts: 30,
			PollInterval: duration{time.Second},
		},
		Postgres: PostgresConfig{
			Host:          "localhost",
			Port:          5432,
			Database:      "predictr",
			User:          "postgres",
			SSLMode:       "disable",
			PoolMaxConns:  10,
			PoolMinConns:  2,
			RunMigrations: true,
		},
		Redis: RedisConfig{
			Addr:       "localhost:6379",
			DB:         0,
			PoolSize:   20,
			MaxRetries: 3,
			TLSEnabled: false,
		},
		S3: S3Config{
			Endpoint:       "http://localhost:9000",
			Region:         "us-east-1",
			Bucket:         "predictr-archive",
			UseSSL:         false,
			ForcePathStyle: true,
		},
		Trading: TradingConfig{
			LockTTL: duration{2 * time.Minute},
			OddsTTL: duration{15 * time.Second},
		},
		Janitor: JanitorConfig{
			Enabled:     true,
			Interval:    duration{time.Minute},
			PendingAge:  duration{5 * time.Minute},
			BuildExpiry: duration{time.Hour},
		},
		Archiver: ArchiverConfig{
			Enabled:       false,
			Interval:      duration{24 * time.Hour},
			RetentionDays: 90,
		},
		LogLevel: "info",
	}
}

// validLogLevels enumerates the accepted values for Config.LogLevel.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// Validate checks Config for obviously invalid or missing values and returns
// a combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []string

	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	// Wallet — the key sources are optional (read-only mode works without
	// one) but an encrypted key file needs its password.
	if c.Wallet.EncryptedKeyPath != "" && c.Wallet.KeyPassword == "" {
		errs = append(errs, "wallet: key_password is required when encrypted_key_path is set")
	}
	if c.Wallet.PrivateKey != "" && c.Wallet.EncryptedKeyPath != "" {
		errs = append(errs, "wallet: private_key and encrypted_key_path are mutually exclusive")
	}

	// Ledger
	if c.Ledger.RPCURL == "" {
		errs = append(errs, "ledger: rpc_url must not be empty")
	}
	if c.Ledger.ContractAddress == "" {
		errs = append(errs, "ledger: contract_address must not be empty")
	}
	if c.Ledger.ChainID <= 0 {
		errs = append(errs, "ledger: chain_id must be positive")
	}
	if c.Ledger.PollAttempts < 1 {
		errs = append(errs, "ledger: poll_attempts must be >= 1")
	}
	if c.Ledger.PollInterval.Duration <= 0 {
		errs = append(errs, "ledger: poll_interval must be positive")
	}

	// Postgres
	if strings.TrimSpace(c.Postgres.DSN) == "" {
		if c.Postgres.Host == "" {
			errs = append(errs, "postgres: host must not be empty (or set postgres.dsn)")
		}
		if c.Postgres.Port <= 0 || c.Postgres.Port > 65535 {
			errs = append(errs, fmt.Sprintf("postgres: port must be 1-65535, got %d", c.Postgres.Port))
		}
		if c.Postgres.Database == "" {
			errs = append(errs, "postgres: database must not be empty")
		}
	}
	if c.Postgres.PoolMaxConns < 1 {
		errs = append(errs, "postgres: pool_max_conns must be >= 1")
	}
	if c.Postgres.PoolMinConns < 0 {
		errs = append(errs, "postgres: pool_min_conns must be >= 0")
	}
	if c.Postgres.PoolMinConns > c.Postgres.PoolMaxConns {
		errs = append(errs, "postgres: pool_min_conns must not exceed pool_max_conns")
	}

	// Redis
	if c.Redis.Addr == "" {
		errs = append(errs, "redis: addr must not be empty")
	}
	if c.Redis.PoolSize < 1 {
		errs = append(errs, "redis: pool_size must be >= 1")
	}

	// S3 — only needed when the archiver runs.
	if c.Archiver.Enabled {
		if c.S3.Endpoint == "" {
			errs = append(errs, "s3: endpoint must not be empty when archiver is enabled")
		}
		if c.S3.Bucket == "" {
			errs = append(errs, "s3: bucket must not be empty when archiver is enabled")
		}
		if c.Archiver.RetentionDays < 1 {
			errs = append(errs, "archiver: retention_days must be >= 1")
		}
		if c.Archiver.Interval.Duration <= 0 {
			errs = append(errs, "archiver: interval must be positive")
		}
	}

	// Trading
	if c.Trading.LockTTL.Duration <= 0 {
		errs = append(errs, "trading: lock_ttl must be positive")
	}
	if c.Trading.OddsTTL.Duration <= 0 {
		errs = append(errs, "trading: odds_ttl must be positive")
	}

	// Janitor
	if c.Janitor.Enabled {
		if c.Janitor.Interval.Duration <= 0 {
			errs = append(errs, "janitor: interval must be positive")
		}
		if c.Janitor.PendingAge.Duration <= 0 {
			errs = append(errs, "janitor: pending_age must be positive")
		}
		if c.Janitor.BuildExpiry.Duration <= 0 {
			errs = append(errs, "janitor: build_expiry must be positive")
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
