// Package chain reads transactions and token metadata from an Ethereum node
package chain

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/mitchhs12/safe-top-protocols/backoff"
	"go.uber.org/zap"
)

// erc20MetadataABI covers the string and bytes32 flavours of symbol()
const erc20MetadataABI = `[
	{"constant":true,"inputs":[],"name":"symbol","outputs":[{"name":"","type":"string"}],"stateMutability":"view","type":"function"},
	{"constant":true,"inputs":[],"name":"symbolBytes32","outputs":[{"name":"","type":"bytes32"}],"stateMutability":"view","type":"function"}
]`

var erc20ABI = mustParseABI(erc20MetadataABI)

func mustParseABI(def string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(def))
	if err != nil {
		panic(err)
	}
	return parsed
}

// ErrNoSymbol is returned when a contract has no usable symbol()
var ErrNoSymbol = errors.New("token symbol not found")

// ClientConfig configures a Client
type ClientConfig struct {
	RPCURL string

	// HTTPClient replaces the default transport, mainly for tests
	HTTPClient *http.Client

	// RetryDelays is the wait schedule between attempts
	RetryDelays []time.Duration
}

// Client wraps an RPC connection to one Ethereum node
type Client struct {
	rpc    *rpc.Client
	eth    *ethclient.Client
	delays []time.Duration
	logger *zap.Logger
}

// rpcTransaction is the subset of eth_getTransactionByHash this package reads
type rpcTransaction struct {
	Input hexutil.Bytes `json:"input"`
}

// NewClient dials the node at cfg.RPCURL
func NewClient(ctx context.Context, cfg *ClientConfig, l *zap.Logger) (*Client, error) {
	if cfg.RPCURL == "" {
		return nil, errors.New("rpc url is required")
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}

	rc, err := rpc.DialOptions(ctx, cfg.RPCURL, rpc.WithHTTPClient(httpClient))
	if err != nil {
		return nil, fmt.Errorf("failed to dial %s: %w", cfg.RPCURL, err)
	}

	delays := cfg.RetryDelays
	if delays == nil {
		delays = backoff.DefaultDelays
	}

	return &Client{
		rpc:    rc,
		eth:    ethclient.NewClient(rc),
		delays: delays,
		logger: l,
	}, nil
}

// Close releases the underlying connection
func (c *Client) Close() {
	c.rpc.Close()
}

// ChainID returns the chain ID reported by the node
func (c *Client) ChainID(ctx context.Context) (*big.Int, error) {
	return backoff.Retry(ctx, c.delays, func(ctx context.Context) (*big.Int, error) {
		return c.eth.ChainID(ctx)
	})
}

// TransactionInput returns the call data of a transaction
func (c *Client) TransactionInput(ctx context.Context, hash common.Hash) ([]byte, error) {
	tx, err := backoff.Retry(ctx, c.delays, func(ctx context.Context) (*rpcTransaction, error) {
		var tx *rpcTransaction
		if err := c.rpc.CallContext(ctx, &tx, "eth_getTransactionByHash", hash); err != nil {
			return nil, err
		}
		if tx == nil {
			return nil, backoff.Permanent(ethereum.NotFound)
		}
		return tx, nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to fetch transaction %s: %w", hash.Hex(), err)
	}

	c.logger.Sugar().Debugw("Fetched transaction",
		zap.String("hash", hash.Hex()),
		zap.Int("inputBytes", len(tx.Input)),
	)
	return tx.Input, nil
}

// IsContract reports whether code is deployed at addr
func (c *Client) IsContract(ctx context.Context, addr common.Address) (bool, error) {
	code, err := backoff.Retry(ctx, c.delays, func(ctx context.Context) ([]byte, error) {
		return c.eth.CodeAt(ctx, addr, nil)
	})
	if err != nil {
		return false, err
	}
	return len(code) > 0, nil
}

// TokenSymbol calls symbol() on an ERC20 contract. Tokens that return a
// bytes32 symbol are decoded too.
func (c *Client) TokenSymbol(ctx context.Context, token common.Address) (string, error) {
	input, err := erc20ABI.Pack("symbol")
	if err != nil {
		return "", err
	}

	out, err := backoff.Retry(ctx, c.delays, func(ctx context.Context) ([]byte, error) {
		out, err := c.eth.CallContract(ctx, ethereum.CallMsg{To: &token, Data: input}, nil)
		var rpcErr rpc.Error
		if errors.As(err, &rpcErr) {
			// reverts are final
			return nil, backoff.Permanent(err)
		}
		return out, err
	})
	if err != nil {
		return "", fmt.Errorf("symbol() on %s: %w", token.Hex(), err)
	}

	return decodeSymbol(out)
}

func decodeSymbol(out []byte) (string, error) {
	if len(out) == 0 {
		return "", ErrNoSymbol
	}
	if values, err := erc20ABI.Unpack("symbol", out); err == nil && len(values) == 1 {
		if s, ok := values[0].(string); ok && s != "" {
			return s, nil
		}
	}
	if len(out) == 32 {
		values, err := erc20ABI.Methods["symbolBytes32"].Outputs.Unpack(out)
		if err == nil && len(values) == 1 {
			b := values[0].([32]byte)
			if s := strings.TrimRight(string(b[:]), "\x00"); s != "" {
				return s, nil
			}
		}
	}
	return "", ErrNoSymbol
}
