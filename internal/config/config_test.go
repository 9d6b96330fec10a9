package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleTOML = `
mode = "once"

[wallet]
private_key = "4c0883a69102937d6231471b5dbb6204fe5129617082792ae468d01a3f362318"

[chain]
rpc_url = "http://localhost:8545"
chain_id = 100
safe_address = "0x1111111111111111111111111111111111111111"
multisend_address = "0x2222222222222222222222222222222222222222"
conditional_tokens_address = "0x3333333333333333333333333333333333333333"
realitio_address = "0x4444444444444444444444444444444444444444"
realitio_proxy_address = "0x5555555555555555555555555555555555555555"

[subgraph]
trades_url = "https://subgraph.example/omen"
blocks_url = "https://subgraph.example/blocks"
backoff = "2s"

[trader]
redeeming_batch_size = 7
sleep_time = "1s"

[trader.bet_amount_per_threshold]
"0.8" = "150"
"0.9" = "300"
`

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "omentrader.toml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad_FileOverDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, sampleTOML))
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "once", cfg.Mode)
	assert.Equal(t, 7, cfg.Trader.RedeemingBatchSize)
	assert.Equal(t, 2*time.Second, cfg.Subgraph.Backoff.Duration)
	assert.Equal(t, 100, cfg.Trader.TradesPageSize)
	assert.Equal(t, "localhost:6379", cfg.Redis.Addr)

	snap, err := cfg.Trader.Snapshot()
	require.NoError(t, err)
	assert.Equal(t, time.Second, snap.SleepTime)
	assert.Equal(t, "300", snap.BetAmountPerThreshold["0.9"].String())
	assert.Equal(t, "10000000000000", snap.DustThreshold.String())
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("OMENTRADER_TRADER_REDEEMING_BATCH_SIZE", "3")
	t.Setenv("OMENTRADER_SERVER_UPDATE_SECRET", "topsecret")
	t.Setenv("OMENTRADER_SERVER_CORS_ORIGINS", "https://a.example, ,https://b.example")
	t.Setenv("OMENTRADER_TRADER_ROUND_TIMEOUT", "not-a-duration")

	cfg, err := Load(writeConfig(t, sampleTOML))
	require.NoError(t, err)
	assert.Equal(t, 3, cfg.Trader.RedeemingBatchSize)
	assert.Equal(t, "topsecret", cfg.Server.UpdateSecret)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.Server.CORSOrigins)
	assert.Equal(t, 3*time.Minute, cfg.Trader.RoundTimeout.Duration)
}

func TestValidate_ReportsEveryProblem(t *testing.T) {
	cfg := Defaults()
	cfg.Mode = "trade"
	cfg.Trader.RedeemingBatchSize = 0

	err := cfg.Validate()
	require.Error(t, err)
	msg := err.Error()
	assert.Contains(t, msg, `unknown mode "trade"`)
	assert.Contains(t, msg, "redeeming_batch_size")
	assert.Contains(t, msg, "wallet: private_key or encrypted_key_path is required")
	assert.Contains(t, msg, "chain: rpc_url")
}

func TestValidate_ServerModeNeedsNoChain(t *testing.T) {
	cfg := Defaults()
	cfg.Mode = "server"
	assert.NoError(t, cfg.Validate())
}

func TestRedactedConfig(t *testing.T) {
	cfg, err := Load(writeConfig(t, sampleTOML))
	require.NoError(t, err)
	cfg.Server.UpdateSecret = "s"

	red := RedactedConfig(cfg)
	assert.Equal(t, redacted, red.Wallet.PrivateKey)
	assert.Equal(t, redacted, red.Server.UpdateSecret)
	assert.Empty(t, red.Redis.Password)

	red.Trader.BetAmountPerThreshold["0.8"] = "1"
	assert.Equal(t, "150", cfg.Trader.BetAmountPerThreshold["0.8"])
}
