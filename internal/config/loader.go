package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads the TOML file at path on top of Defaults, loads .env when
// present and applies OMENTRADER_* overrides. An empty path skips the file.
// The result is not validated.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if path != "" {
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return nil, fmt.Errorf("config: decode %s: %w", path, err)
		}
	}

	_ = godotenv.Load()

	applyEnvOverrides(&cfg)
	return &cfg, nil
}

// applyEnvOverrides lets operators inject secrets and endpoints at deploy
// time without touching the TOML file.
func applyEnvOverrides(cfg *Config) {
	// Wallet
	setStr(&cfg.Wallet.PrivateKey, "OMENTRADER_WALLET_PRIVATE_KEY")
	setStr(&cfg.Wallet.EncryptedKeyPath, "OMENTRADER_WALLET_ENCRYPTED_KEY_PATH")
	setStr(&cfg.Wallet.KeyPassword, "OMENTRADER_WALLET_KEY_PASSWORD")

	// Chain
	setStr(&cfg.Chain.RPCURL, "OMENTRADER_CHAIN_RPC_URL")
	setInt64(&cfg.Chain.ChainID, "OMENTRADER_CHAIN_CHAIN_ID")
	setStr(&cfg.Chain.SafeAddress, "OMENTRADER_CHAIN_SAFE_ADDRESS")
	setStr(&cfg.Chain.MultiSend, "OMENTRADER_CHAIN_MULTISEND_ADDRESS")
	setStr(&cfg.Chain.ConditionalTokens, "OMENTRADER_CHAIN_CONDITIONAL_TOKENS_ADDRESS")
	setStr(&cfg.Chain.Realitio, "OMENTRADER_CHAIN_REALITIO_ADDRESS")
	setStr(&cfg.Chain.RealitioProxy, "OMENTRADER_CHAIN_REALITIO_PROXY_ADDRESS")

	// Subgraph
	setStr(&cfg.Subgraph.TradesURL, "OMENTRADER_SUBGRAPH_TRADES_URL")
	setStr(&cfg.Subgraph.BlocksURL, "OMENTRADER_SUBGRAPH_BLOCKS_URL")
	setStr(&cfg.Subgraph.APIKey, "OMENTRADER_SUBGRAPH_API_KEY")
	setInt(&cfg.Subgraph.RateLimit, "OMENTRADER_SUBGRAPH_RATE_LIMIT")
	setInt(&cfg.Subgraph.MaxRetries, "OMENTRADER_SUBGRAPH_MAX_RETRIES")
	setDuration(&cfg.Subgraph.Backoff, "OMENTRADER_SUBGRAPH_BACKOFF")

	// Trader
	setStr(&cfg.Trader.DustThreshold, "OMENTRADER_TRADER_DUST_THRESHOLD")
	setInt(&cfg.Trader.RedeemingBatchSize, "OMENTRADER_TRADER_REDEEMING_BATCH_SIZE")
	setDuration(&cfg.Trader.SleepTime, "OMENTRADER_TRADER_SLEEP_TIME")
	setInt(&cfg.Trader.TradesPageSize, "OMENTRADER_TRADER_TRADES_PAGE_SIZE")
	setDuration(&cfg.Trader.RoundInterval, "OMENTRADER_TRADER_ROUND_INTERVAL")
	setDuration(&cfg.Trader.RoundTimeout, "OMENTRADER_TRADER_ROUND_TIMEOUT")
	setStr(&cfg.Trader.DecisionsStream, "OMENTRADER_TRADER_DECISIONS_STREAM")

	// Postgres
	setStr(&cfg.Postgres.DSN, "OMENTRADER_POSTGRES_DSN")
	setStr(&cfg.Postgres.Host, "OMENTRADER_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "OMENTRADER_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "OMENTRADER_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "OMENTRADER_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "OMENTRADER_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "OMENTRADER_POSTGRES_SSL_MODE")
	setBool(&cfg.Postgres.RunMigrations, "OMENTRADER_POSTGRES_RUN_MIGRATIONS")

	// Redis
	setStr(&cfg.Redis.Addr, "OMENTRADER_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "OMENTRADER_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "OMENTRADER_REDIS_DB")
	setBool(&cfg.Redis.TLSEnabled, "OMENTRADER_REDIS_TLS_ENABLED")

	// S3
	setStr(&cfg.S3.Endpoint, "OMENTRADER_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "OMENTRADER_S3_REGION")
	setStr(&cfg.S3.Bucket, "OMENTRADER_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "OMENTRADER_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "OMENTRADER_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "OMENTRADER_S3_USE_SSL")

	// Server
	setBool(&cfg.Server.Enabled, "OMENTRADER_SERVER_ENABLED")
	setInt(&cfg.Server.Port, "OMENTRADER_SERVER_PORT")
	setStr(&cfg.Server.APIKey, "OMENTRADER_SERVER_API_KEY")
	setStr(&cfg.Server.UpdateSecret, "OMENTRADER_SERVER_UPDATE_SECRET")
	setStringSlice(&cfg.Server.CORSOrigins, "OMENTRADER_SERVER_CORS_ORIGINS")

	// Notify
	setStr(&cfg.Notify.TelegramToken, "OMENTRADER_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "OMENTRADER_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "OMENTRADER_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "OMENTRADER_NOTIFY_EVENTS")

	setStr(&cfg.Mode, "OMENTRADER_MODE")
	setStr(&cfg.LogLevel, "OMENTRADER_LOG_LEVEL")
}

// Each helper only touches dst when the variable is set and parses.

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

func setStringSlice(dst *[]string, key string) {
	v := os.Getenv(key)
	if v == "" {
		return
	}
	var cleaned []string
	for _, p := range strings.Split(v, ",") {
		if p = strings.TrimSpace(p); p != "" {
			cleaned = append(cleaned, p)
		}
	}
	if len(cleaned) > 0 {
		*dst = cleaned
	}
}
