// Package config provides configuration management for the Safe top-protocols
// pipeline with support for .env files, environment variables and network presets.
package config

import (
	"fmt"
	"math/big"
	"path/filepath"
	"sort"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Configuration keys. Each key is bound to the environment variable listed in EnvBindings.
const (
	Debug             = "debug"
	Network           = "network"
	DataDir           = "data-dir"
	Workers           = "workers"
	RequestsPerSecond = "rps"

	DuneAPIKey                  = "dune.api-key"
	DuneBaseURL                 = "dune.base-url"
	DuneQueryAllContracts       = "dune.query.all-contracts"
	DuneQueryMultisend          = "dune.query.multisend-transactions"
	DuneQueryExcludingMultisend = "dune.query.all-contracts-excluding-multisends"
	DuneQueryTopContracts       = "dune.query.top-contracts"

	EtherscanAPIKey = "etherscan.api-key"
	EtherscanURL    = "etherscan.url"

	EthereumRPCURL = "ethereum.rpc-url"
)

// EnvBindings maps configuration keys to the environment variables they are read from
var EnvBindings = map[string]string{
	Debug:                       "DEBUG",
	Network:                     "NETWORK",
	DataDir:                     "DATA_DIR",
	Workers:                     "WORKERS",
	RequestsPerSecond:           "REQUESTS_PER_SECOND",
	DuneAPIKey:                  "DUNE_API_KEY",
	DuneBaseURL:                 "DUNE_BASE_URL",
	DuneQueryAllContracts:       "ALL_CONTRACTS",
	DuneQueryMultisend:          "MULTISEND_TRANSACTIONS",
	DuneQueryExcludingMultisend: "ALL_CONTRACTS_EXCLUDING_MULTISENDS",
	DuneQueryTopContracts:       "TOP_CONTRACTS_QUERY",
	EtherscanAPIKey:             "ETHERSCAN_API_KEY",
	EtherscanURL:                "ETHERSCAN_URL",
	EthereumRPCURL:              "ETHEREUM_RPC_URL",
}

// Data file names, relative to the data directory
const (
	AllContractsFile          = "all_contracts.csv"
	MultisendTransactionsFile = "multisend_transactions.csv"
	ExcludingMultisendsFile   = "all_contracts_excluding_multisends.csv"
	DecodedFile               = "decoded.csv"
	SkippedFile               = "skipped.csv"
	CombinedFile              = "final_combined.csv"
	TopContractsFile          = "top_interacted_contracts.csv"
	LabeledContractsFile      = "top_interacted_contracts_with_labels_and_types.csv"
	SymbolContractsFile       = "top_interacted_contracts_with_labels_and_types_and_symbols.csv"
	AccountLabelsFile         = "eth_labels/accounts.csv"
	TokenLabelsFile           = "eth_labels/tokens.csv"
	FinalDataFile             = "final_data.csv"
	FilteredProtocolsFile     = "filtered_protocols.csv"
)

// DuneQueries holds the saved Dune query IDs
type DuneQueries struct {
	AllContracts          string
	MultisendTransactions string
	ExcludingMultisends   string
	TopContracts          string
}

// Config holds all configuration values
type Config struct {
	Debug             bool
	Network           string
	ChainID           *big.Int
	DataDir           string
	Workers           int
	RequestsPerSecond float64

	DuneAPIKey  string
	DuneBaseURL string
	Queries     DuneQueries

	EtherscanAPIKey string
	EtherscanURL    string

	RPCURL string
}

// NetworkPreset represents a predefined network configuration
type NetworkPreset struct {
	Name         string
	ChainID      *big.Int
	RPCURL       string
	EtherscanURL string
}

// NetworkPresets contains predefined configurations for common networks
var NetworkPresets = map[string]NetworkPreset{
	"local": {
		Name:         "local",
		ChainID:      big.NewInt(31337),
		RPCURL:       "http://localhost:8545",
		EtherscanURL: "http://localhost:8080/api",
	},
	"mainnet": {
		Name:         "mainnet",
		ChainID:      big.NewInt(1),
		RPCURL:       "https://eth.llamarpc.com",
		EtherscanURL: "https://api.etherscan.io/api",
	},
	"sepolia": {
		Name:         "sepolia",
		ChainID:      big.NewInt(11155111),
		RPCURL:       "https://rpc.sepolia.org",
		EtherscanURL: "https://api-sepolia.etherscan.io/api",
	},
	"holesky": {
		Name:         "holesky",
		ChainID:      big.NewInt(17000),
		RPCURL:       "https://rpc.holesky.ethpandaops.io",
		EtherscanURL: "https://api-holesky.etherscan.io/api",
	},
}

// DefaultDuneBaseURL is the Dune Analytics API root
const DefaultDuneBaseURL = "https://api.dune.com"

// LoadConfig loads configuration from .env file
// It silently ignores if the file doesn't exist
func LoadConfig(envPath string) error {
	if envPath != "" {
		return godotenv.Load(envPath)
	}
	// Try to load from current directory, ignore if not exists
	_ = godotenv.Load()
	return nil
}

// BindEnv binds every configuration key to its environment variable and sets defaults
func BindEnv(v *viper.Viper) {
	for key, env := range EnvBindings {
		_ = v.BindEnv(key, env)
	}
	v.SetDefault(Network, "mainnet")
	v.SetDefault(DataDir, "data")
	v.SetDefault(Workers, 10)
	v.SetDefault(RequestsPerSecond, 10.0)
	v.SetDefault(DuneBaseURL, DefaultDuneBaseURL)
}

// NewConfig builds a Config from viper. Values not set explicitly fall back
// to the selected network preset.
func NewConfig(v *viper.Viper) (*Config, error) {
	cfg := &Config{
		Debug:             v.GetBool(Debug),
		Network:           strings.ToLower(v.GetString(Network)),
		DataDir:           v.GetString(DataDir),
		Workers:           v.GetInt(Workers),
		RequestsPerSecond: v.GetFloat64(RequestsPerSecond),
		DuneAPIKey:        v.GetString(DuneAPIKey),
		DuneBaseURL:       v.GetString(DuneBaseURL),
		Queries: DuneQueries{
			AllContracts:          v.GetString(DuneQueryAllContracts),
			MultisendTransactions: v.GetString(DuneQueryMultisend),
			ExcludingMultisends:   v.GetString(DuneQueryExcludingMultisend),
			TopContracts:          v.GetString(DuneQueryTopContracts),
		},
		EtherscanAPIKey: v.GetString(EtherscanAPIKey),
		EtherscanURL:    v.GetString(EtherscanURL),
		RPCURL:          v.GetString(EthereumRPCURL),
	}

	preset, ok := GetNetworkPreset(cfg.Network)
	if !ok {
		return nil, fmt.Errorf("unknown network preset: %s (available: %s)", cfg.Network, strings.Join(ListPresets(), ", "))
	}
	cfg.ChainID = preset.ChainID
	if cfg.RPCURL == "" {
		cfg.RPCURL = preset.RPCURL
	}
	if cfg.EtherscanURL == "" {
		cfg.EtherscanURL = preset.EtherscanURL
	}
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	if cfg.RequestsPerSecond <= 0 {
		return nil, fmt.Errorf("requests per second must be positive, got %v", cfg.RequestsPerSecond)
	}
	if cfg.DuneBaseURL == "" {
		cfg.DuneBaseURL = DefaultDuneBaseURL
	}

	return cfg, nil
}

// Path returns the location of a data file
func (c *Config) Path(name string) string {
	return filepath.Join(c.DataDir, filepath.FromSlash(name))
}

// RequireDune returns an error naming every missing Dune setting
func (c *Config) RequireDune(queries ...string) error {
	missing := []string{}
	if c.DuneAPIKey == "" {
		missing = append(missing, EnvBindings[DuneAPIKey])
	}
	for _, key := range queries {
		if c.QueryID(key) == "" {
			missing = append(missing, EnvBindings[key])
		}
	}
	return missingError(missing)
}

// QueryID returns the saved query ID for a Dune query key
func (c *Config) QueryID(key string) string {
	switch key {
	case DuneQueryAllContracts:
		return c.Queries.AllContracts
	case DuneQueryMultisend:
		return c.Queries.MultisendTransactions
	case DuneQueryExcludingMultisend:
		return c.Queries.ExcludingMultisends
	case DuneQueryTopContracts:
		return c.Queries.TopContracts
	default:
		return ""
	}
}

// RequireEtherscan returns an error when the Etherscan API key is missing
func (c *Config) RequireEtherscan() error {
	if c.EtherscanAPIKey == "" {
		return missingError([]string{EnvBindings[EtherscanAPIKey]})
	}
	return nil
}

// RequireRPC returns an error when no RPC endpoint is configured
func (c *Config) RequireRPC() error {
	if c.RPCURL == "" {
		return missingError([]string{EnvBindings[EthereumRPCURL]})
	}
	return nil
}

func missingError(missing []string) error {
	if len(missing) == 0 {
		return nil
	}
	return fmt.Errorf("please set these environment variables: %s", strings.Join(missing, ", "))
}

// GetNetworkPreset returns a preset by name (case-insensitive)
func GetNetworkPreset(name string) (NetworkPreset, bool) {
	preset, ok := NetworkPresets[strings.ToLower(name)]
	return preset, ok
}

// ListPresets returns all available preset names sorted alphabetically
func ListPresets() []string {
	names := make([]string, 0, len(NetworkPresets))
	for name := range NetworkPresets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// PrintPresets prints all available presets to stdout
func PrintPresets() {
	fmt.Println("Available network presets:")
	names := ListPresets()
	for _, name := range names {
		p := NetworkPresets[name]
		fmt.Printf("  %-10s chainId: %-10s rpc: %s\n", name, p.ChainID.String(), p.RPCURL)
	}
}
