package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newViper(t *testing.T) *viper.Viper {
	t.Helper()
	v := viper.New()
	BindEnv(v)
	return v
}

func TestNewConfig_Defaults(t *testing.T) {
	cfg, err := NewConfig(newViper(t))
	require.NoError(t, err)

	assert.Equal(t, "mainnet", cfg.Network)
	assert.Equal(t, int64(1), cfg.ChainID.Int64())
	assert.Equal(t, NetworkPresets["mainnet"].RPCURL, cfg.RPCURL)
	assert.Equal(t, NetworkPresets["mainnet"].EtherscanURL, cfg.EtherscanURL)
	assert.Equal(t, "data", cfg.DataDir)
	assert.Equal(t, 10, cfg.Workers)
	assert.Equal(t, DefaultDuneBaseURL, cfg.DuneBaseURL)
}

func TestNewConfig_FromEnvironment(t *testing.T) {
	t.Setenv("NETWORK", "Sepolia")
	t.Setenv("DUNE_API_KEY", "dune-key")
	t.Setenv("MULTISEND_TRANSACTIONS", "4242")
	t.Setenv("ETHEREUM_RPC_URL", "http://node:8545")
	t.Setenv("WORKERS", "3")

	cfg, err := NewConfig(newViper(t))
	require.NoError(t, err)

	assert.Equal(t, "sepolia", cfg.Network)
	assert.Equal(t, int64(11155111), cfg.ChainID.Int64())
	assert.Equal(t, "dune-key", cfg.DuneAPIKey)
	assert.Equal(t, "4242", cfg.QueryID(DuneQueryMultisend))
	assert.Equal(t, "http://node:8545", cfg.RPCURL)
	assert.Equal(t, 3, cfg.Workers)
}

func TestNewConfig_UnknownNetwork(t *testing.T) {
	v := newViper(t)
	v.Set(Network, "goerli")

	_, err := NewConfig(v)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "holesky, local, mainnet, sepolia")
}

func TestNewConfig_InvalidRate(t *testing.T) {
	v := newViper(t)
	v.Set(RequestsPerSecond, 0)

	_, err := NewConfig(v)
	assert.Error(t, err)
}

func TestRequireDune(t *testing.T) {
	cfg := &Config{Queries: DuneQueries{AllContracts: "1"}}

	err := cfg.RequireDune(DuneQueryAllContracts, DuneQueryMultisend)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "DUNE_API_KEY")
	assert.Contains(t, err.Error(), "MULTISEND_TRANSACTIONS")
	assert.NotContains(t, err.Error(), "ALL_CONTRACTS,")

	cfg.DuneAPIKey = "key"
	cfg.Queries.MultisendTransactions = "2"
	assert.NoError(t, cfg.RequireDune(DuneQueryAllContracts, DuneQueryMultisend))
}

func TestRequireEtherscanAndRPC(t *testing.T) {
	cfg := &Config{}
	assert.ErrorContains(t, cfg.RequireEtherscan(), "ETHERSCAN_API_KEY")
	assert.ErrorContains(t, cfg.RequireRPC(), "ETHEREUM_RPC_URL")

	cfg.EtherscanAPIKey = "key"
	cfg.RPCURL = "http://localhost:8545"
	assert.NoError(t, cfg.RequireEtherscan())
	assert.NoError(t, cfg.RequireRPC())
}

func TestLoadConfig(t *testing.T) {
	dir := t.TempDir()
	envPath := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(envPath, []byte("TOP_CONTRACTS_QUERY=777\n"), 0o600))
	t.Cleanup(func() { os.Unsetenv("TOP_CONTRACTS_QUERY") })

	require.NoError(t, LoadConfig(envPath))
	assert.Equal(t, "777", os.Getenv("TOP_CONTRACTS_QUERY"))

	assert.Error(t, LoadConfig(filepath.Join(dir, "missing.env")))
}

func TestPath(t *testing.T) {
	cfg := &Config{DataDir: "out"}
	assert.Equal(t, filepath.Join("out", "eth_labels", "accounts.csv"), cfg.Path(AccountLabelsFile))
}

func TestListPresets(t *testing.T) {
	assert.Equal(t, []string{"holesky", "local", "mainnet", "sepolia"}, ListPresets())

	p, ok := GetNetworkPreset("MAINNET")
	require.True(t, ok)
	assert.Equal(t, "mainnet", p.Name)
}
