package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadYAMLAppliesDefaults(t *testing.T) {
	path := writeFile(t, "intentx.yaml", `
server:
  address: ":9090"
lifecycle:
  seed: 42
events:
  driver: Redis
  redis:
    key: custom:ledger
vaults:
  - id: btc-vault
    name: BTC Vault
    token_symbol: WBTC
    apy: "3.1"
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, ":9090", cfg.Server.Address)
	assert.Equal(t, uint64(42), cfg.Lifecycle.Seed)
	assert.Equal(t, 1500, cfg.Lifecycle.SettlementDelayMs)
	assert.Equal(t, "BlockDAG Testnet", cfg.Lifecycle.Network)
	assert.Equal(t, 100, cfg.Batch.MaxSize)
	assert.Equal(t, DriverRedis, cfg.Events.Driver)
	assert.Equal(t, "custom:ledger", cfg.Events.Redis.Key)
	assert.Equal(t, "127.0.0.1:6379", cfg.Events.Redis.Address)
	require.Len(t, cfg.Vaults, 1)
	assert.Equal(t, "WBTC", cfg.Vaults[0].TokenSymbol)

	base, jitter := cfg.Lifecycle.GaslessDelay()
	assert.Equal(t, 150, int(base.Milliseconds()))
	assert.Equal(t, 100, int(jitter.Milliseconds()))
}

func TestLoadJSON(t *testing.T) {
	path := writeFile(t, "intentx.json", `{"server":{"address":"127.0.0.1:7000"},"batch":{"max_size":10}}`)
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:7000", cfg.Server.Address)
	assert.Equal(t, 10, cfg.Batch.MaxSize)
	assert.NotEmpty(t, cfg.Vaults)
}

func TestLoadRejectsUnknownDriver(t *testing.T) {
	path := writeFile(t, "intentx.yaml", "events:\n  driver: kafka\n")
	_, err := Load(path)
	require.Error(t, err)
}

func TestLoadRejectsDuplicateVaults(t *testing.T) {
	path := writeFile(t, "intentx.yaml", "vaults:\n  - id: a\n  - id: a\n")
	_, err := Load(path)
	require.Error(t, err)
}

func TestLoadRejectsOversizedBatch(t *testing.T) {
	path := writeFile(t, "intentx.yaml", "batch:\n  max_size: 101\n")
	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "batch.max_size")

	path = writeFile(t, "intentx.yaml", "batch:\n  max_size: 100\n")
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 100, cfg.Batch.MaxSize)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
	_, err = Load("")
	require.Error(t, err)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("INTENTX_ADDRESS", ":6060")
	t.Setenv("INTENTX_EVENTS_DRIVER", "memory")
	t.Setenv("INTENTX_SEED", "7")

	cfg, err := LoadOrDefault("")
	require.NoError(t, err)
	assert.Equal(t, ":6060", cfg.Server.Address)
	assert.Equal(t, DriverMemory, cfg.Events.Driver)
	assert.Equal(t, uint64(7), cfg.Lifecycle.Seed)
}

func TestEnvSeedMustBeNumeric(t *testing.T) {
	t.Setenv("INTENTX_SEED", "abc")
	_, err := LoadOrDefault("")
	require.Error(t, err)
}
