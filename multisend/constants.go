// Package multisend decodes Safe execTransaction calls whose inner call is a
// MultiSend batch, and re-encodes decoded calls for round-trip verification.
// The codec is pure: it performs no I/O, keeps no shared mutable state and is
// safe to call from any number of goroutines.
package multisend

import (
	"encoding/hex"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"golang.org/x/crypto/sha3"
)

// Function signatures
const (
	// ExecTransactionSignature is the canonical signature of the Safe proxy execution function
	ExecTransactionSignature = "execTransaction(address,uint256,bytes,uint8,uint256,uint256,uint256,address,address,bytes)"

	// MultiSendSignature is the canonical signature of the MultiSend batch-dispatch function
	MultiSendSignature = "multiSend(bytes)"
)

// Encoding sizes
const (
	// SelectorSize is the length of a function selector
	SelectorSize = 4

	// WordSize is the length of an ABI slot
	WordSize = 32

	// OperationSize is the length of the operation byte in a packed record
	OperationSize = 1

	// AddressSize is the length of an unpadded address in a packed record
	AddressSize = common.AddressLength

	// RecordHeaderSize is the fixed part of a packed record: operation, to, value, data length (85)
	RecordHeaderSize = OperationSize + AddressSize + WordSize + WordSize

	// ExecTransactionParamCount is the number of execTransaction parameters
	ExecTransactionParamCount = 10
)

// Selector is the first four bytes of the Keccak-256 hash of a function signature
type Selector [SelectorSize]byte

// SelectorOf computes the selector of a canonical function signature
func SelectorOf(signature string) Selector {
	h := sha3.NewLegacyKeccak256()
	h.Write([]byte(signature))

	var s Selector
	copy(s[:], h.Sum(nil))
	return s
}

// selectorFrom copies up to the first four bytes of data
func selectorFrom(data []byte) Selector {
	var s Selector
	copy(s[:], data)
	return s
}

// Hex returns the 0x-prefixed selector
func (s Selector) Hex() string {
	return "0x" + hex.EncodeToString(s[:])
}

func (s Selector) String() string {
	return s.Hex()
}

// Selectors are computed once when the package is initialised.
var (
	// ExecTransactionSelector is 0x6a761202
	ExecTransactionSelector = SelectorOf(ExecTransactionSignature)

	// MultiSendSelector is 0x8d80ff0a
	MultiSendSelector = SelectorOf(MultiSendSignature)
)

// Operation is the call type used by a Safe or a MultiSend record
type Operation uint8

const (
	// OperationCall is a regular CALL (0x00)
	OperationCall Operation = 0x00

	// OperationDelegateCall is a DELEGATECALL (0x01)
	OperationDelegateCall Operation = 0x01
)

// Valid reports whether the operation is CALL or DELEGATECALL
func (o Operation) Valid() bool {
	return o == OperationCall || o == OperationDelegateCall
}

// String returns a human-readable name for the operation
func (o Operation) String() string {
	switch o {
	case OperationCall:
		return "CALL"
	case OperationDelegateCall:
		return "DELEGATECALL"
	default:
		return fmt.Sprintf("Unknown (0x%02x)", uint8(o))
	}
}

// KnownAddresses are mainnet addresses used by examples and tests
var KnownAddresses = struct {
	Zero              common.Address
	MultiSend         common.Address
	MultiSendCallOnly common.Address
	VitalikButerin    common.Address
	SafeProxyFactory  common.Address
	Burn              common.Address
}{
	Zero:              common.Address{},
	MultiSend:         common.HexToAddress("0xA238CBeb142c10Ef7Ad8442C6D1f9E89e07e7761"),
	MultiSendCallOnly: common.HexToAddress("0x40A2aCCbd92BCA938b02010E17A5b8929b49130D"),
	VitalikButerin:    common.HexToAddress("0xAb5801a7D398351b8bE11C439e05C5B3259aeC9B"),
	SafeProxyFactory:  common.HexToAddress("0x5aFE3855358E112B5647B952709E6165e1c1eEEe"),
	Burn:              common.HexToAddress("0x000000000000000000000000000000000000dEaD"),
}
