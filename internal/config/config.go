// Package config defines the agent configuration and its validation.
package config

import (
	"fmt"
	"math/big"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/omentrader/internal/params"
)

// Config is the root configuration. Fields come from a TOML file and are
// then overridden by OMENTRADER_* environment variables.
type Config struct {
	Wallet   WalletConfig   `toml:"wallet"`
	Chain    ChainConfig    `toml:"chain"`
	Subgraph SubgraphConfig `toml:"subgraph"`
	Trader   TraderConfig   `toml:"trader"`
	Postgres PostgresConfig `toml:"postgres"`
	Redis    RedisConfig    `toml:"redis"`
	S3       S3Config       `toml:"s3"`
	Server   ServerConfig   `toml:"server"`
	Notify   NotifyConfig   `toml:"notify"`
	Mode     string         `toml:"mode"`
	LogLevel string         `toml:"log_level"`
}

// WalletConfig says where the agent key comes from. PrivateKey wins over
// EncryptedKeyPath.
type WalletConfig struct {
	PrivateKey       string `toml:"private_key"`
	EncryptedKeyPath string `toml:"encrypted_key_path"`
	KeyPassword      string `toml:"key_password"`
}

// ChainConfig holds the RPC endpoint and the contracts the workflows use.
type ChainConfig struct {
	RPCURL            string `toml:"rpc_url"`
	ChainID           int64  `toml:"chain_id"`
	SafeAddress       string `toml:"safe_address"`
	MultiSend         string `toml:"multisend_address"`
	ConditionalTokens string `toml:"conditional_tokens_address"`
	Realitio          string `toml:"realitio_address"`
	RealitioProxy     string `toml:"realitio_proxy_address"`
}

// SubgraphConfig holds the trade and block subgraph endpoints.
type SubgraphConfig struct {
	TradesURL  string   `toml:"trades_url"`
	BlocksURL  string   `toml:"blocks_url"`
	APIKey     string   `toml:"api_key"`
	RateLimit  int      `toml:"rate_limit"` // requests per RateWindow, 0 disables
	RateWindow duration `toml:"rate_window"`
	MaxRetries int      `toml:"max_retries"`
	Backoff    duration `toml:"backoff"`
	Timeout    duration `toml:"timeout"`
}

// TraderConfig holds the initial trader parameters and the round schedule.
// Amounts are decimal strings so they can exceed int64.
type TraderConfig struct {
	DustThreshold         string            `toml:"dust_threshold"`
	RedeemingBatchSize    int               `toml:"redeeming_batch_size"`
	SleepTime             duration          `toml:"sleep_time"`
	TradesPageSize        int               `toml:"trades_page_size"`
	BetAmountPerThreshold map[string]string `toml:"bet_amount_per_threshold"`
	RoundInterval         duration          `toml:"round_interval"`
	RoundTimeout          duration          `toml:"round_timeout"`
	DecisionsStream       string            `toml:"decisions_stream"`
	MaxDecisions          int               `toml:"max_decisions"`
}

// PostgresConfig holds the results database connection parameters. An empty
// Host and DSN disables persistence.
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

// Enabled reports whether a database is configured.
func (p PostgresConfig) Enabled() bool { return p.DSN != "" || p.Host != "" }

// RedisConfig holds Redis connection parameters.
type RedisConfig struct {
	Addr       string `toml:"addr"`
	Password   string `toml:"password"`
	DB         int    `toml:"db"`
	PoolSize   int    `toml:"pool_size"`
	MaxRetries int    `toml:"max_retries"`
	TLSEnabled bool   `toml:"tls_enabled"`
}

// S3Config holds the payload archive location. An empty Bucket disables
// archiving.
type S3Config struct {
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	UseSSL         bool   `toml:"use_ssl"`
	ForcePathStyle bool   `toml:"force_path_style"`
}

// ServerConfig holds the HTTP API settings.
type ServerConfig struct {
	Enabled         bool     `toml:"enabled"`
	Port            int      `toml:"port"`
	APIKey          string   `toml:"api_key"`
	UpdateSecret    string   `toml:"update_secret"`
	UpdateRateLimit int      `toml:"update_rate_limit"`
	CORSOrigins     []string `toml:"cors_origins"`
}

// NotifyConfig holds the operator notification channels.
type NotifyConfig struct {
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	Events            []string `toml:"events"`
}

// duration lets TOML carry "30s" style values.
type duration struct {
	time.Duration
}

func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Defaults returns a Config for a Gnosis chain deployment with local
// Redis. Contract addresses and endpoints must still be supplied.
func Defaults() Config {
	return Config{
		Chain: ChainConfig{
			ChainID: 100,
		},
		Subgraph: SubgraphConfig{
			RateWindow: duration{time.Second},
			MaxRetries: 5,
			Backoff:    duration{3 * time.Second},
			Timeout:    duration{30 * time.Second},
		},
		Trader: TraderConfig{
			DustThreshold:      "10000000000000",
			RedeemingBatchSize: 5,
			SleepTime:          duration{5 * time.Second},
			TradesPageSize:     100,
			BetAmountPerThreshold: map[string]string{
				"0.6": "60000000000000000",
				"0.7": "90000000000000000",
				"0.8": "100000000000000000",
				"0.9": "1000000000000000000",
				"1.0": "10000000000000000000",
			},
			RoundInterval:   duration{5 * time.Minute},
			RoundTimeout:    duration{3 * time.Minute},
			DecisionsStream: "decisions",
			MaxDecisions:    10,
		},
		Postgres: PostgresConfig{
			Port:          5432,
			Database:      "postgres",
			User:          "postgres",
			SSLMode:       "disable",
			PoolMaxConns:  10,
			PoolMinConns:  2,
			RunMigrations: true,
		},
		Redis: RedisConfig{
			Addr:       "localhost:6379",
			PoolSize:   20,
			MaxRetries: 3,
		},
		S3: S3Config{
			Endpoint:       "http://localhost:9000",
			Region:         "us-east-1",
			ForcePathStyle: true,
		},
		Server: ServerConfig{
			Enabled:         true,
			Port:            8000,
			UpdateRateLimit: 10,
		},
		Notify: NotifyConfig{
			Events: []string{"payload_ready", "round_failed"},
		},
		Mode:     "agent",
		LogLevel: "info",
	}
}

var validModes = map[string]bool{
	"agent":  true,
	"once":   true,
	"server": true,
}

var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// Validate checks the whole configuration and reports every problem at once.
func (c *Config) Validate() error {
	var errs []string

	mode := strings.ToLower(c.Mode)
	if !validModes[mode] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: agent, once, server)", c.Mode))
	}
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	if mode != "server" {
		if c.Wallet.PrivateKey == "" && c.Wallet.EncryptedKeyPath == "" {
			errs = append(errs, "wallet: private_key or encrypted_key_path is required")
		}
		if c.Wallet.EncryptedKeyPath != "" && c.Wallet.PrivateKey == "" && c.Wallet.KeyPassword == "" {
			errs = append(errs, "wallet: key_password is required with encrypted_key_path")
		}
		if c.Chain.RPCURL == "" {
			errs = append(errs, "chain: rpc_url must not be empty")
		}
		if c.Chain.ChainID <= 0 {
			errs = append(errs, "chain: chain_id must be > 0")
		}
		for name, addr := range map[string]string{
			"safe_address":               c.Chain.SafeAddress,
			"multisend_address":          c.Chain.MultiSend,
			"conditional_tokens_address": c.Chain.ConditionalTokens,
			"realitio_address":           c.Chain.Realitio,
			"realitio_proxy_address":     c.Chain.RealitioProxy,
		} {
			if !common.IsHexAddress(addr) {
				errs = append(errs, fmt.Sprintf("chain: %s %q is not a hex address", name, addr))
			}
		}
		if c.Subgraph.TradesURL == "" {
			errs = append(errs, "subgraph: trades_url must not be empty")
		}
		if c.Subgraph.BlocksURL == "" {
			errs = append(errs, "subgraph: blocks_url must not be empty")
		}
		if c.Subgraph.MaxRetries < 0 {
			errs = append(errs, "subgraph: max_retries must be >= 0")
		}
		if c.Trader.RoundInterval.Duration <= 0 {
			errs = append(errs, "trader: round_interval must be > 0")
		}
		if c.Trader.RoundTimeout.Duration <= 0 {
			errs = append(errs, "trader: round_timeout must be > 0")
		}
		if c.Trader.DecisionsStream == "" {
			errs = append(errs, "trader: decisions_stream must not be empty")
		}
	}

	if _, err := c.Trader.Snapshot(); err != nil {
		errs = append(errs, err.Error())
	}

	if c.Redis.Addr == "" {
		errs = append(errs, "redis: addr must not be empty")
	}
	if c.Redis.PoolSize < 1 {
		errs = append(errs, "redis: pool_size must be >= 1")
	}
	if c.Postgres.Enabled() && c.Postgres.DSN == "" && c.Postgres.Database == "" {
		errs = append(errs, "postgres: database must not be empty")
	}
	if c.S3.Bucket != "" && c.S3.Endpoint == "" && c.S3.Region == "" {
		errs = append(errs, "s3: endpoint or region is required with bucket")
	}

	if c.Server.Enabled || mode == "server" {
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			errs = append(errs, fmt.Sprintf("server: port must be 1-65535, got %d", c.Server.Port))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

// Snapshot converts the initial trader parameters.
func (t TraderConfig) Snapshot() (params.Snapshot, error) {
	dust, ok := new(big.Int).SetString(t.DustThreshold, 10)
	if !ok || dust.Sign() < 0 {
		return params.Snapshot{}, fmt.Errorf("trader: dust_threshold %q must be a non-negative integer", t.DustThreshold)
	}
	if t.RedeemingBatchSize < 1 {
		return params.Snapshot{}, fmt.Errorf("trader: redeeming_batch_size must be >= 1")
	}
	if t.TradesPageSize < 1 {
		return params.Snapshot{}, fmt.Errorf("trader: trades_page_size must be >= 1")
	}
	if t.SleepTime.Duration < 0 {
		return params.Snapshot{}, fmt.Errorf("trader: sleep_time must be >= 0")
	}
	amounts := make(map[string]*big.Int, len(t.BetAmountPerThreshold))
	for k, v := range t.BetAmountPerThreshold {
		f, err := strconv.ParseFloat(k, 64)
		if err != nil {
			return params.Snapshot{}, fmt.Errorf("trader: bet_amount_per_threshold key %q: %w", k, err)
		}
		n, ok := new(big.Int).SetString(v, 10)
		if !ok || n.Sign() < 0 {
			return params.Snapshot{}, fmt.Errorf("trader: bet_amount_per_threshold[%s] %q must be a non-negative integer", k, v)
		}
		amounts[params.ThresholdKey(f)] = n
	}
	return params.Snapshot{
		DustThreshold:         dust,
		RedeemingBatchSize:    t.RedeemingBatchSize,
		SleepTime:             t.SleepTime.Duration,
		TradesPageSize:        t.TradesPageSize,
		BetAmountPerThreshold: amounts,
	}, nil
}
