package app

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"

	s3blob "github.com/DevKavathiya11/marketd/internal/blob/s3"
	"github.com/DevKavathiya11/marketd/internal/cache/redis"
	"github.com/DevKavathiya11/marketd/internal/config"
	"github.com/DevKavathiya11/marketd/internal/crypto"
	"github.com/DevKavathiya11/marketd/internal/custody/evm"
	"github.com/DevKavathiya11/marketd/internal/custody/memory"
	"github.com/DevKavathiya11/marketd/internal/domain"
	"github.com/DevKavathiya11/marketd/internal/market"
	"github.com/DevKavathiya11/marketd/internal/store/postgres"
)

// Dependencies bundles everything the serving layer needs. It is constructed
// by Wire and torn down by the returned cleanup function.
type Dependencies struct {
	// Custody + payments
	Unique   domain.CustodyAdapter
	Fungible domain.CustodyAdapter
	Payments domain.PaymentLedger

	// Core
	Core *market.Marketplace

	// Stores
	ListingStore domain.ListingStore
	AuctionStore domain.AuctionStore
	TradeStore   domain.TradeStore
	AuditStore   domain.AuditStore

	// Caches
	RateLimiter domain.RateLimiter
	SignalBus   domain.SignalBus

	// Blob storage
	Archiver domain.Archiver
}

// Wire constructs all concrete dependency implementations from the given
// configuration and returns them together with a cleanup function that should
// be called on shutdown to release resources.
func Wire(ctx context.Context, cfg *config.Config) (*Dependencies, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	deps := &Dependencies{}

	// --- Custody + payments ---
	// In-process payment escrow in both modes; deposits and withdrawals are
	// out of band. Chain mode swaps only the custody side for on-chain
	// contract adapters.
	deps.Payments = memory.NewPaymentLedger()

	switch strings.ToLower(cfg.Mode) {
	case "chain":
		key, err := crypto.LoadECDSAKey(crypto.KeyConfig{
			RawPrivateKey:    cfg.Operator.PrivateKey,
			EncryptedKeyPath: cfg.Operator.EncryptedKeyPath,
			KeyPassword:      cfg.Operator.KeyPassword,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: operator key: %w", err)
		}

		client, err := ethclient.DialContext(ctx, cfg.Chain.RPCURL)
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: ethclient: %w", err)
		}
		closers = append(closers, client.Close)

		chainID := big.NewInt(cfg.Chain.ChainID)
		unique, err := evm.NewUniqueAdapter(client, common.HexToAddress(cfg.Chain.UniqueContract), key, chainID)
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: unique adapter: %w", err)
		}
		fungible, err := evm.NewFungibleAdapter(client, common.HexToAddress(cfg.Chain.FungibleContract), key, chainID)
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: fungible adapter: %w", err)
		}
		deps.Unique = unique
		deps.Fungible = fungible

	default: // memory
		deps.Unique = memory.NewUniqueLedger()
		deps.Fungible = memory.NewFungibleLedger()
	}

	deps.Core = market.New(deps.Unique, deps.Fungible, deps.Payments, cfg.OperatorAddress())

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

	// Run migrations if enabled.
	if cfg.Postgres.RunMigrations {
		if err := pgClient.RunMigrations(ctx); err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: postgres migrations: %w", err)
		}
	}

	pool := pgClient.Pool()
	tradeStore := postgres.NewTradeStore(pool)
	deps.ListingStore = postgres.NewListingStore(pool)
	deps.AuctionStore = postgres.NewAuctionStore(pool)
	deps.TradeStore = tradeStore
	deps.AuditStore = postgres.NewAuditStore(pool)

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

	deps.RateLimiter = redis.NewRateLimiter(redisClient)
	deps.SignalBus = redis.NewSignalBus(redisClient)

	// --- S3 blob storage (only when archival is enabled) ---
	if cfg.Archive.Enabled {
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

		deps.Archiver = s3blob.NewArchiver(
			s3blob.NewWriter(s3Client),
			tradeStore,
			deps.AuditStore,
		)
	}

	return deps, cleanup, nil
}
