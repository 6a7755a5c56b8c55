// Safe Top Protocols - ranks the contracts Safe wallets interact with, counting
// the calls forwarded through multiSend batches as well as direct calls.
//
// Safe transactions arrive as execTransaction call data. When the inner call
// is a multiSend, the packed batch is decoded and every forwarded destination
// is counted. Destinations are then labelled from Etherscan, token symbols are
// read over RPC and custom label lists are merged in.
//
// Usage:
//
//	safe-top-protocols [command] [flags]
//
// Commands:
//
//	decode        Decode one execTransaction call (hex argument or --tx hash)
//	verify        Decode and re-encode call data, reporting the first mismatch
//	selfcheck     Check codec constants and a known round trip
//	fetch         Run the saved Dune queries and store their CSV results
//	decode-file   Decode every multiSend transaction fetched from Dune
//	combine       Merge direct and forwarded interaction counts
//	top-contracts Download or derive the ranked destination list
//	label         Label top contracts from Etherscan
//	symbols       Read ERC20 symbols for token contracts
//	enrich        Apply custom account and token label lists
//	filter        Drop ERC20 tokens, keeping protocols
//	presets       List available network presets
//
// Global flags:
//
//	--env       Path to .env file (default: .env in current directory)
//	--debug     Development logging at debug level
//	--network   Network preset (local, mainnet, sepolia, holesky)
//	--data-dir  Directory holding pipeline CSV files (default: data)
//	--workers   Concurrent workers for decoding and lookups (default: 10)
//	--rps       Requests per second for Etherscan and RPC lookups (default: 10)
//
// Environment Variables:
//
//	DUNE_API_KEY                        Dune Analytics API key
//	ALL_CONTRACTS                       Dune query: all destination contracts
//	MULTISEND_TRANSACTIONS              Dune query: Safe multiSend transactions
//	ALL_CONTRACTS_EXCLUDING_MULTISENDS  Dune query: direct destination counts
//	TOP_CONTRACTS_QUERY                 Dune query: ranked destinations
//	ETHERSCAN_API_KEY                   Etherscan API key
//	ETHEREUM_RPC_URL                    RPC endpoint (overrides the preset)
//	NETWORK                             Network preset name
package main

import (
	"context"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/mitchhs12/safe-top-protocols/config"
)

func main() {
	// Load .env before the command tree is built so environment defaults apply
	envLoaded := false
	for i, arg := range os.Args[1:] {
		if arg == "--env" && i+1 < len(os.Args)-1 {
			_ = config.LoadConfig(os.Args[i+2])
			envLoaded = true
			break
		} else if strings.HasPrefix(arg, "--env=") {
			_ = config.LoadConfig(strings.TrimPrefix(arg, "--env="))
			envLoaded = true
			break
		}
	}
	if !envLoaded {
		_ = config.LoadConfig("")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := newRootCmd().ExecuteContext(ctx)
	stop()
	if err != nil {
		os.Exit(1)
	}
}
