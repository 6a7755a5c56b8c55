// Package etherscan looks up contract names and classifies contracts by
// their verified ABI, following proxies to their implementation.
package etherscan

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/mitchhs12/safe-top-protocols/backoff"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// ErrResponseParse marks a response that did not have the expected shape
var ErrResponseParse = errors.New("unexpected etherscan response")

// ClientConfig configures a Client
type ClientConfig struct {
	APIKey     string
	URL        string
	HTTPClient *http.Client

	// RequestsPerSecond throttles every request, including proxy follow-ups
	RequestsPerSecond float64
	RetryDelays       []time.Duration
}

// Client queries the Etherscan contract API
type Client struct {
	apiKey     string
	url        string
	httpClient *http.Client
	limiter    *rate.Limiter
	delays     []time.Duration
	logger     *zap.Logger
}

// ContractInfo is the label and classification of one address
type ContractInfo struct {
	Address        common.Address
	Label          string
	Type           ContractType
	Implementation common.Address
}

// Proxy reports whether the contract delegates to an implementation
func (ci *ContractInfo) Proxy() bool {
	return ci.Implementation != (common.Address{})
}

type response struct {
	Status  string          `json:"status"`
	Message string          `json:"message"`
	Result  json.RawMessage `json:"result"`
}

// SourceCode is one entry of a getsourcecode result
type SourceCode struct {
	ContractName   string `json:"ContractName"`
	ABI            string `json:"ABI"`
	Implementation string `json:"Implementation"`
	Proxy          string `json:"Proxy"`
}

// statusError is an API-level failure (status "0")
type statusError struct {
	Message string
}

func (e *statusError) Error() string {
	return e.Message
}

// NewClient creates an Etherscan client
func NewClient(cfg *ClientConfig, l *zap.Logger) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("etherscan api key is required")
	}
	if cfg.URL == "" {
		return nil, errors.New("etherscan url is required")
	}

	rps := cfg.RequestsPerSecond
	if rps <= 0 {
		rps = 4
	}
	c := &Client{
		apiKey:     cfg.APIKey,
		url:        cfg.URL,
		httpClient: cfg.HTTPClient,
		limiter:    rate.NewLimiter(rate.Limit(rps), 1),
		delays:     cfg.RetryDelays,
		logger:     l,
	}
	if c.httpClient == nil {
		c.httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	if c.delays == nil {
		c.delays = backoff.DefaultDelays
	}
	return c, nil
}

// SourceCode fetches the verified source metadata of a contract
func (c *Client) SourceCode(ctx context.Context, addr common.Address) (*SourceCode, error) {
	params := url.Values{}
	params.Set("module", "contract")
	params.Set("action", "getsourcecode")
	params.Set("address", addr.Hex())
	params.Set("apikey", c.apiKey)

	res, err := backoff.Retry(ctx, c.delays, func(ctx context.Context) (*response, error) {
		return c.get(ctx, params)
	})
	if err != nil {
		return nil, err
	}

	if res.Status != "1" {
		var msg string
		if json.Unmarshal(res.Result, &msg) != nil || msg == "" {
			msg = res.Message
		}
		return nil, &statusError{Message: msg}
	}

	var entries []SourceCode
	if err := json.Unmarshal(res.Result, &entries); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrResponseParse, err)
	}
	if len(entries) == 0 {
		return nil, fmt.Errorf("%w: empty result", ErrResponseParse)
	}
	return &entries[0], nil
}

// ContractInfo returns the label and type of a contract. Failures are
// reported both through the error and through the label and type, which
// carry the failure class so a batch can record them and move on.
func (c *Client) ContractInfo(ctx context.Context, addr common.Address) (*ContractInfo, error) {
	info := &ContractInfo{Address: addr, Label: string(TypeUnknown), Type: TypeUnknown}

	src, err := c.SourceCode(ctx, addr)
	if err != nil {
		info.fail(err)
		return info, err
	}

	info.Label = src.ContractName
	if info.Label == "" {
		info.Label = "Label not found"
	}

	if src.Implementation == "" {
		info.Type = ClassifyABI(src.ABI)
		return info, nil
	}

	if !common.IsHexAddress(src.Implementation) {
		info.fail(fmt.Errorf("%w: implementation %q", ErrResponseParse, src.Implementation))
		return info, nil
	}
	info.Implementation = common.HexToAddress(src.Implementation)
	c.logger.Sugar().Debugw("Proxy detected",
		zap.String("address", addr.Hex()),
		zap.String("implementation", info.Implementation.Hex()),
	)

	impl, err := c.SourceCode(ctx, info.Implementation)
	if err != nil {
		var se *statusError
		if errors.As(err, &se) {
			info.Type = TypeUnverifiedProxy
			return info, nil
		}
		info.fail(err)
		return info, err
	}
	info.Type = ClassifyABI(impl.ABI)
	return info, nil
}

func (ci *ContractInfo) fail(err error) {
	var se *statusError
	switch {
	case errors.As(err, &se):
		ci.Label = se.Message
		ci.Type = TypeAPIError
	case errors.Is(err, ErrResponseParse):
		ci.Label = string(TypeResponseParseError)
		ci.Type = TypeResponseParseError
	default:
		ci.Label = string(TypeAPIRequestError)
		ci.Type = TypeAPIRequestError
	}
}

func (c *Client) get(ctx context.Context, params url.Values) (*response, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, backoff.Permanent(err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url+"?"+params.Encode(), nil)
	if err != nil {
		return nil, backoff.Permanent(err)
	}

	res, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer res.Body.Close()

	body, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, err
	}
	if res.StatusCode != http.StatusOK {
		err := fmt.Errorf("etherscan returned %d", res.StatusCode)
		if res.StatusCode >= 500 || res.StatusCode == http.StatusTooManyRequests {
			return nil, err
		}
		return nil, backoff.Permanent(err)
	}

	out := &response{}
	if err := json.Unmarshal(body, out); err != nil {
		return nil, backoff.Permanent(fmt.Errorf("%w: %v", ErrResponseParse, err))
	}
	return out, nil
}
