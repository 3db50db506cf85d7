// Package config defines the top-level configuration for the marketplace
// daemon and provides validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// Config is the root configuration structure. Fields are populated from a TOML
// file and then optionally overridden by MARKETD_* environment variables.
type Config struct {
	Operator OperatorConfig `toml:"operator"`
	Chain    ChainConfig    `toml:"chain"`
	Postgres PostgresConfig `toml:"postgres"`
	Redis    RedisConfig    `toml:"redis"`
	S3       S3Config       `toml:"s3"`
	Server   ServerConfig   `toml:"server"`
	Archive  ArchiveConfig  `toml:"archive"`
	Mode     string         `toml:"mode"`
	LogLevel string         `toml:"log_level"`
}

// OperatorConfig holds the marketplace operator identity. The operator address
// is the approval target sellers grant transfer rights to and the escrow
// account buyer payments pass through. In chain mode the private key (raw or
// encrypted-file) signs custody transfers.
type OperatorConfig struct {
	Address          string `toml:"address"`
	PrivateKey       string `toml:"private_key"`
	EncryptedKeyPath string `toml:"encrypted_key_path"`
	KeyPassword      string `toml:"key_password"`
}

// ChainConfig holds Ethereum RPC endpoint and contract parameters for chain
// mode.
type ChainConfig struct {
	RPCURL           string `toml:"rpc_url"`
	ChainID          int64  `toml:"chain_id"`
	UniqueContract   string `toml:"unique_contract"`
	FungibleContract string `toml:"fungible_contract"`
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

// S3Config holds S3-compatible object storage parameters for trade archival.
type S3Config struct {
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	UseSSL         bool   `toml:"use_ssl"`
	ForcePathStyle bool   `toml:"force_path_style"`
}

// ServerConfig holds HTTP server parameters.
type ServerConfig struct {
	Port         int      `toml:"port"`
	CORSOrigins  []string `toml:"cors_origins"`
	APIToken     string   `toml:"api_token"`
	RateLimit    int      `toml:"rate_limit"`
	RateWindow   duration `toml:"rate_window"`
	ReadTimeout  duration `toml:"read_timeout"`
	WriteTimeout duration `toml:"write_timeout"`
}

// ArchiveConfig holds trade-archival parameters. Trades older than the
// retention window are written to S3 as JSONL and pruned from Postgres.
type ArchiveConfig struct {
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
		Chain: ChainConfig{
			RPCURL:  "http://localhost:8545",
			ChainID: 1,
		},
		Postgres: PostgresConfig{
			DSN:           "",
			Host:          "localhost",
			Port:          5432,
			Database:      "marketd",
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
			Bucket:         "marketd-data",
			UseSSL:         false,
			ForcePathStyle: true,
		},
		Server: ServerConfig{
			Port:         8000,
			CORSOrigins:  []string{"http://localhost:3000", "http://localhost:5173"},
			RateLimit:    60,
			RateWindow:   duration{time.Minute},
			ReadTimeout:  duration{15 * time.Second},
			WriteTimeout: duration{30 * time.Second},
		},
		Archive: ArchiveConfig{
			Enabled:       false,
			Interval:      duration{time.Hour},
			RetentionDays: 90,
		},
		Mode:     "memory",
		LogLevel: "info",
	}
}

// validModes enumerates the accepted values for Config.Mode. In memory mode
// asset custody and payment balances live in process; chain mode drives the
// on-chain token contracts through an RPC endpoint.
var validModes = map[string]bool{
	"memory": true,
	"chain":  true,
}

// validLogLevels enumerates the accepted values for Config.LogLevel.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// Validate checks Config for obviously invalid or missing values and returns a
// combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []string

	// Mode
	if !validModes[strings.ToLower(c.Mode)] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: memory, chain)", c.Mode))
	}

	// LogLevel
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	// Operator
	if c.Operator.Address == "" {
		errs = append(errs, "operator: address must not be empty")
	} else if !common.IsHexAddress(c.Operator.Address) {
		errs = append(errs, fmt.Sprintf("operator: address %q is not a valid hex address", c.Operator.Address))
	}
	if c.Operator.EncryptedKeyPath != "" && c.Operator.KeyPassword == "" {
		errs = append(errs, "operator: key_password is required when encrypted_key_path is set")
	}

	// Chain — only binding in chain mode.
	if strings.ToLower(c.Mode) == "chain" {
		if c.Chain.RPCURL == "" {
			errs = append(errs, "chain: rpc_url must not be empty in chain mode")
		}
		if c.Chain.ChainID <= 0 {
			errs = append(errs, fmt.Sprintf("chain: chain_id must be positive, got %d", c.Chain.ChainID))
		}
		if c.Chain.UniqueContract == "" || !common.IsHexAddress(c.Chain.UniqueContract) {
			errs = append(errs, "chain: unique_contract must be a valid hex address in chain mode")
		}
		if c.Chain.FungibleContract == "" || !common.IsHexAddress(c.Chain.FungibleContract) {
			errs = append(errs, "chain: fungible_contract must be a valid hex address in chain mode")
		}
		if c.Operator.PrivateKey == "" && c.Operator.EncryptedKeyPath == "" {
			errs = append(errs, "operator: either private_key or encrypted_key_path must be set in chain mode")
		}
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

	// S3 — only binding when archival is on.
	if c.Archive.Enabled {
		if c.S3.Endpoint == "" {
			errs = append(errs, "s3: endpoint must not be empty when archive is enabled")
		}
		if c.S3.Bucket == "" {
			errs = append(errs, "s3: bucket must not be empty when archive is enabled")
		}
		if c.Archive.RetentionDays < 1 {
			errs = append(errs, "archive: retention_days must be >= 1")
		}
		if c.Archive.Interval.Duration <= 0 {
			errs = append(errs, "archive: interval must be > 0")
		}
	}

	// Server
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Sprintf("server: port must be 1-65535, got %d", c.Server.Port))
	}
	if c.Server.RateLimit < 0 {
		errs = append(errs, "server: rate_limit must be >= 0")
	}
	if c.Server.RateLimit > 0 && c.Server.RateWindow.Duration <= 0 {
		errs = append(errs, "server: rate_window must be > 0 when rate_limit is set")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

// OperatorAddress returns the parsed operator address. Call after Validate.
func (c *Config) OperatorAddress() common.Address {
	return common.HexToAddress(c.Operator.Address)
}
