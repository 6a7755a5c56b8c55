package etherscan

import (
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

// ContractType is the coarse classification of a destination contract
type ContractType string

const (
	TypeNotVerified        ContractType = "Not a Verified Contract"
	TypeERC20              ContractType = "ERC20 Token"
	TypeOther              ContractType = "Other Contract"
	TypeABIParseError      ContractType = "ABI Parse Error"
	TypeUnverifiedProxy    ContractType = "Proxy to Unverified Implementation"
	TypeAPIError           ContractType = "API Error"
	TypeAPIRequestError    ContractType = "API Request Error"
	TypeResponseParseError ContractType = "Response Parse Error"
	TypeUnknown            ContractType = "N/A"
)

// placeholder Etherscan returns in the ABI field of unverified contracts
const unverifiedABI = "Contract source code not verified"

var (
	erc20Functions = []string{"totalSupply", "balanceOf", "transfer", "transferFrom", "approve", "allowance"}
	erc20Events    = []string{"Transfer", "Approval"}
)

// ClassifyABI classifies a contract by its published ABI. A contract is an
// ERC20 token when it declares every ERC20 function and event.
func ClassifyABI(abiJSON string) ContractType {
	abiJSON = strings.TrimSpace(abiJSON)
	if abiJSON == "" || abiJSON == unverifiedABI {
		return TypeNotVerified
	}

	parsed, err := abi.JSON(strings.NewReader(abiJSON))
	if err != nil {
		return TypeABIParseError
	}

	functions := make(map[string]bool, len(parsed.Methods))
	for _, m := range parsed.Methods {
		functions[m.RawName] = true
	}
	events := make(map[string]bool, len(parsed.Events))
	for _, e := range parsed.Events {
		events[e.RawName] = true
	}

	for _, name := range erc20Functions {
		if !functions[name] {
			return TypeOther
		}
	}
	for _, name := range erc20Events {
		if !events[name] {
			return TypeOther
		}
	}
	return TypeERC20
}
