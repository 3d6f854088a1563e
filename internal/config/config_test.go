package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/curvex-trading/curvex/internal/filter"
)

func writeConfig(t *testing.T, yaml string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o644))
	return path
}

func TestLoadConfig(t *testing.T) {
	yaml := `
general:
  instance_id: "test-node"
  environment: "development"
  dry_run: true
  log_level: "debug"

rpc:
  endpoint: "https://rpc.test.example"
  ws_endpoint: "wss://rpc.test.example"
  rate_limit_rps: 25

stream:
  watch_amm: true
  queue_size: 500

relay:
  tip_sol: 0.002
`
	cfg, err := Load(writeConfig(t, yaml))
	require.NoError(t, err)

	assert.Equal(t, "test-node", cfg.General.InstanceID)
	assert.True(t, cfg.General.DryRun)
	assert.Equal(t, "https://rpc.test.example", cfg.RPC.Endpoint)
	assert.Equal(t, 25.0, cfg.RPC.RateLimitRPS)
	assert.True(t, cfg.Stream.WatchAMM)
	assert.Equal(t, 500, cfg.Stream.QueueSize)
	assert.Equal(t, 0.002, cfg.Relay.TipSOL)
}

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, "general:\n  dry_run: true\n"))
	require.NoError(t, err)

	assert.Equal(t, "curvex-1", cfg.General.InstanceID)
	assert.Equal(t, "info", cfg.General.LogLevel)
	assert.Equal(t, "json", cfg.General.LogFormat)
	assert.Equal(t, "https://api.mainnet-beta.solana.com", cfg.RPC.Endpoint)
	assert.Equal(t, "wss://api.mainnet-beta.solana.com", cfg.RPC.WSEndpoint)
	assert.Equal(t, 1000, cfg.Stream.QueueSize)
	assert.Equal(t, 0.001, cfg.Relay.TipSOL)
	assert.Equal(t, ":8080", cfg.Server.ListenAddr)
	assert.Equal(t, "config.json", cfg.Files.ParamsPath)
	assert.Equal(t, "blacklist.json", cfg.Files.BlacklistPath)
}

func TestLoadConfigEnvExpansion(t *testing.T) {
	os.Setenv("TEST_CURVEX_INSTANCE", "env-node")
	defer os.Unsetenv("TEST_CURVEX_INSTANCE")

	cfg, err := Load(writeConfig(t, "general:\n  instance_id: \"${TEST_CURVEX_INSTANCE}\"\n"))
	require.NoError(t, err)
	assert.Equal(t, "env-node", cfg.General.InstanceID)
}

func TestLoadParams_WritesDefaultsWhenMissing(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")

	params, err := LoadParams(path)
	require.NoError(t, err)
	assert.Equal(t, DefaultParams().LamportAmount, params.LamportAmount)
	assert.True(t, params.Filters.Empty())

	// The normalized file must exist after load.
	_, err = os.Stat(path)
	require.NoError(t, err)
}

func TestParams_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")

	params := DefaultParams()
	params.LamportAmount = 250_000_000
	params.Slippage = 0.25
	params.UseLeaderSend = true
	params.Filters.Add(filter.TagAverageDevMarketCap, filter.Range{Min: 10_000, Max: 100_000})
	params.Filters.Add(filter.TagTokenCount, filter.Range{Min: 0, Max: 5})
	require.NoError(t, SaveParams(path, params))

	loaded, err := LoadParams(path)
	require.NoError(t, err)
	assert.Equal(t, uint64(250_000_000), loaded.LamportAmount)
	assert.Equal(t, 0.25, loaded.Slippage)
	assert.True(t, loaded.UseLeaderSend)
	assert.Equal(t, filter.Range{Min: 10_000, Max: 100_000},
		loaded.Filters.Filters[filter.TagAverageDevMarketCap])
	assert.Len(t, loaded.Filters.Filters, 2)
}

func TestLoadParams_CorruptFileResets(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte("{broken"), 0o644))

	params, err := LoadParams(path)
	require.NoError(t, err)
	assert.Equal(t, DefaultParams().PriorityFee, params.PriorityFee)
}
