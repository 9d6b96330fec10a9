package app

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"net/http"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"

	s3blob "github.com/alanyoungcy/omentrader/internal/blob/s3"
	"github.com/alanyoungcy/omentrader/internal/cache/redis"
	"github.com/alanyoungcy/omentrader/internal/config"
	"github.com/alanyoungcy/omentrader/internal/contract"
	"github.com/alanyoungcy/omentrader/internal/crypto"
	"github.com/alanyoungcy/omentrader/internal/domain"
	"github.com/alanyoungcy/omentrader/internal/notify"
	"github.com/alanyoungcy/omentrader/internal/params"
	"github.com/alanyoungcy/omentrader/internal/platform/subgraph"
	"github.com/alanyoungcy/omentrader/internal/retry"
	"github.com/alanyoungcy/omentrader/internal/server/handler"
	"github.com/alanyoungcy/omentrader/internal/settlement"
	"github.com/alanyoungcy/omentrader/internal/store/postgres"
	"github.com/alanyoungcy/omentrader/internal/workflow"
)

// recentResults bounds the in-memory result store used without Postgres.
const recentResults = 500

// Dependencies bundles what the modes run. The workflow fields are nil in
// server mode.
type Dependencies struct {
	Params *params.Store

	Agent      common.Address
	Redemption *workflow.Redemption
	Bet        *workflow.BetPlacement
	Decisions  domain.DecisionSource

	Results     domain.ResultStore
	Audit       domain.AuditStore
	RateLimiter domain.RateLimiter
	Locks       domain.LockManager
	SignalBus   domain.SignalBus
	Sink        *settlement.Sink
	Notifier    *notify.Notifier

	Checks map[string]handler.Check
}

func composesRounds(mode string) bool { return mode == "agent" || mode == "once" }

// Wire builds every dependency from cfg and returns them with a cleanup
// function that releases resources in reverse order.
func Wire(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}
	fail := func(stage string, err error) (*Dependencies, func(), error) {
		cleanup()
		return nil, nil, fmt.Errorf("wire: %s: %w", stage, err)
	}

	snap, err := cfg.Trader.Snapshot()
	if err != nil {
		return fail("params", err)
	}
	deps := &Dependencies{
		Params: params.NewStore(snap),
		Checks: map[string]handler.Check{},
	}

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
		return fail("redis", err)
	}
	closers = append(closers, func() { _ = redisClient.Close() })
	deps.RateLimiter = redis.NewRateLimiter(redisClient)
	deps.Locks = redis.NewLockManager(redisClient)
	deps.SignalBus = redis.NewSignalBus(redisClient)
	deps.Checks["redis"] = redisClient.Ping

	// --- PostgreSQL, with an in-memory fallback for results ---
	if cfg.Postgres.Enabled() {
		pg, err := postgres.New(ctx, postgres.ClientConfig{
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
			return fail("postgres", err)
		}
		closers = append(closers, pg.Close)
		if cfg.Postgres.RunMigrations {
			if err := pg.RunMigrations(ctx); err != nil {
				return fail("postgres migrations", err)
			}
		}
		deps.Results = postgres.NewResultStore(pg.Pool())
		deps.Audit = postgres.NewAuditStore(pg.Pool())
		deps.Checks["postgres"] = pg.Ping
	} else {
		logger.WarnContext(ctx, "postgres not configured, results kept in memory", slog.Int("max", recentResults))
		deps.Results = settlement.NewMemoryStore(recentResults)
	}

	// --- S3 payload archive ---
	var archive domain.BlobWriter
	if cfg.S3.Bucket != "" {
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
			return fail("s3", err)
		}
		archive = s3blob.NewWriter(s3Client)
		deps.Checks["s3"] = s3Client.Health
	}

	// --- Notifications ---
	var senders []notify.Sender
	if cfg.Notify.TelegramToken != "" && cfg.Notify.TelegramChatID != "" {
		senders = append(senders, notify.NewTelegramSender(cfg.Notify.TelegramToken, cfg.Notify.TelegramChatID))
	}
	if cfg.Notify.DiscordWebhookURL != "" {
		senders = append(senders, notify.NewDiscordSender(cfg.Notify.DiscordWebhookURL))
	}
	deps.Notifier = notify.NewNotifier(senders, cfg.Notify.Events, logger)

	deps.Sink = &settlement.Sink{
		Bus:      deps.SignalBus,
		Results:  deps.Results,
		Archive:  archive,
		Audit:    deps.Audit,
		Notifier: deps.Notifier,
		Logger:   logger,
	}

	if !composesRounds(strings.ToLower(cfg.Mode)) {
		return deps, cleanup, nil
	}

	// --- Agent identity and chain ---
	identity, err := crypto.LoadIdentity(crypto.KeyConfig{
		RawPrivateKey:    cfg.Wallet.PrivateKey,
		EncryptedKeyPath: cfg.Wallet.EncryptedKeyPath,
		KeyPassword:      cfg.Wallet.KeyPassword,
	})
	if err != nil {
		return fail("identity", err)
	}
	deps.Agent = identity.Address()

	eth, err := ethclient.DialContext(ctx, cfg.Chain.RPCURL)
	if err != nil {
		return fail("ethclient", err)
	}
	closers = append(closers, eth.Close)
	deps.Checks["chain"] = func(ctx context.Context) error {
		_, err := eth.BlockNumber(ctx)
		return err
	}

	chainID := big.NewInt(cfg.Chain.ChainID)
	caller := contract.NewService(eth, chainID, logger)
	ctrl := retry.New(deps.Params.SleepTime, logger)
	composer := workflow.NewComposer(caller, ctrl, workflow.Addresses{
		Safe:              common.HexToAddress(cfg.Chain.SafeAddress),
		MultiSend:         common.HexToAddress(cfg.Chain.MultiSend),
		ConditionalTokens: common.HexToAddress(cfg.Chain.ConditionalTokens),
		Realitio:          common.HexToAddress(cfg.Chain.Realitio),
		RealitioProxy:     common.HexToAddress(cfg.Chain.RealitioProxy),
	}, deps.Agent.Hex(), logger)

	// --- Subgraphs ---
	hc := &http.Client{Timeout: cfg.Subgraph.Timeout.Duration}
	sg := cfg.Subgraph
	tradesClient := subgraph.NewClient(sg.TradesURL, sg.APIKey,
		subgraph.WithHTTPClient(hc),
		subgraph.WithRateLimiter(deps.RateLimiter, "subgraph:trades", sg.RateLimit, sg.RateWindow.Duration))
	blocksClient := subgraph.NewClient(sg.BlocksURL, sg.APIKey,
		subgraph.WithHTTPClient(hc),
		subgraph.WithRateLimiter(deps.RateLimiter, "subgraph:blocks", sg.RateLimit, sg.RateWindow.Duration))

	deps.Redemption = workflow.NewRedemption(composer,
		subgraph.NewTradeSource(tradesClient, sg.MaxRetries, sg.Backoff.Duration, logger),
		subgraph.NewBlockIndex(blocksClient, sg.MaxRetries, sg.Backoff.Duration, logger))
	deps.Bet = workflow.NewBetPlacement(composer)
	deps.Decisions = redis.NewDecisionQueue(redisClient, cfg.Trader.DecisionsStream, logger)

	logger.InfoContext(ctx, "agent wired",
		slog.String("agent", deps.Agent.Hex()),
		slog.String("safe", cfg.Chain.SafeAddress),
		slog.Int64("chain_id", cfg.Chain.ChainID),
	)
	return deps, cleanup, nil
}
