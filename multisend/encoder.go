package multisend

import (
	"bytes"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

func mustNewType(t string) abi.Type {
	typ, err := abi.NewType(t, "", nil)
	if err != nil {
		panic(fmt.Sprintf("invalid abi type %q: %v", t, err))
	}
	return typ
}

var (
	addressType = mustNewType("address")
	uint256Type = mustNewType("uint256")
	uint8Type   = mustNewType("uint8")
	bytesType   = mustNewType("bytes")

	// multiSendArgs are the arguments of multiSend(bytes)
	multiSendArgs = abi.Arguments{
		{Name: "transactions", Type: bytesType},
	}

	// execTransactionArgs are the arguments of execTransaction in declaration order
	execTransactionArgs = abi.Arguments{
		{Name: "to", Type: addressType},
		{Name: "value", Type: uint256Type},
		{Name: "data", Type: bytesType},
		{Name: "operation", Type: uint8Type},
		{Name: "safeTxGas", Type: uint256Type},
		{Name: "baseGas", Type: uint256Type},
		{Name: "gasPrice", Type: uint256Type},
		{Name: "gasToken", Type: addressType},
		{Name: "refundReceiver", Type: addressType},
		{Name: "signatures", Type: bytesType},
	}
)

// toBig converts a possibly nil value to a big.Int, nil meaning zero
func toBig(v *uint256.Int) *big.Int {
	if v == nil {
		return new(big.Int)
	}
	return v.ToBig()
}

// word32 returns v as a 32-byte big-endian word, nil meaning zero
func word32(v *uint256.Int) []byte {
	if v == nil {
		return make([]byte, WordSize)
	}
	b := v.Bytes32()
	return b[:]
}

// EncodeTransactions packs transactions back to back with no padding:
// operation (1) | to (20) | value (32) | data length (32) | data
func EncodeTransactions(txs []Transaction) []byte {
	size := 0
	for i := range txs {
		size += txs[i].Size()
	}

	var buf bytes.Buffer
	buf.Grow(size)
	for i := range txs {
		tx := &txs[i]
		buf.WriteByte(byte(tx.Operation))
		buf.Write(tx.To.Bytes())
		buf.Write(word32(tx.Value))
		buf.Write(word32(uint256.NewInt(uint64(len(tx.Data)))))
		buf.Write(tx.Data)
	}
	return buf.Bytes()
}

// EncodeMultiSendPayload builds a multiSend call around an already packed list.
// The tail is zero-padded to a 32-byte boundary as in standard ABI encoding.
func EncodeMultiSendPayload(packed []byte) ([]byte, error) {
	if packed == nil {
		packed = []byte{}
	}
	args, err := multiSendArgs.Pack(packed)
	if err != nil {
		return nil, fmt.Errorf("failed to encode multiSend payload: %w", err)
	}
	return append(common.CopyBytes(MultiSendSelector[:]), args...), nil
}

// EncodeMultiSend builds the multiSend call forwarding txs
func EncodeMultiSend(txs []Transaction) ([]byte, error) {
	return EncodeMultiSendPayload(EncodeTransactions(txs))
}

// EncodeExecTransaction builds the execTransaction call data for exec
func EncodeExecTransaction(exec *ExecTransaction) ([]byte, error) {
	if exec == nil {
		return nil, fmt.Errorf("nil execTransaction")
	}
	data := exec.Data
	if data == nil {
		data = []byte{}
	}
	signatures := exec.Signatures
	if signatures == nil {
		signatures = []byte{}
	}

	args, err := execTransactionArgs.Pack(
		exec.To,
		toBig(exec.Value),
		data,
		uint8(exec.Operation),
		toBig(exec.SafeTxGas),
		toBig(exec.BaseGas),
		toBig(exec.GasPrice),
		exec.GasToken,
		exec.RefundReceiver,
		signatures,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to encode execTransaction: %w", err)
	}
	return append(common.CopyBytes(ExecTransactionSelector[:]), args...), nil
}

// Encode rebuilds an execTransaction call whose data is a multiSend of txs.
// exec.Data is ignored and replaced by the freshly encoded multiSend call.
func Encode(exec *ExecTransaction, txs []Transaction) ([]byte, error) {
	if exec == nil {
		return nil, fmt.Errorf("nil execTransaction")
	}
	inner, err := EncodeMultiSend(txs)
	if err != nil {
		return nil, err
	}
	outer := *exec
	outer.Data = inner
	return EncodeExecTransaction(&outer)
}

// Verification is the outcome of a decode/re-encode round trip
type Verification struct {
	Result      *Result
	Diagnostics Diagnostics
	Original    []byte
	Reencoded   []byte

	// Match is true when the re-encoded bytes equal the original
	Match bool

	// MismatchOffset is the first differing byte, or -1 on a match
	MismatchOffset int
}

// Verify decodes raw, re-encodes the result and compares byte for byte.
// Inner calls that are not multiSend are re-encoded from the original data.
// A mismatch means either a decoder defect or a non-canonical original
// encoding; it is reported in the Verification, never dropped.
func Verify(raw []byte) (*Verification, error) {
	result, diags, err := Decode(raw)
	if err != nil {
		return nil, err
	}

	var reencoded []byte
	if result.MultiSend {
		reencoded, err = Encode(result.Exec, result.Transactions)
	} else {
		reencoded, err = EncodeExecTransaction(result.Exec)
	}
	if err != nil {
		return nil, err
	}

	v := &Verification{
		Result:         result,
		Diagnostics:    diags,
		Original:       common.CopyBytes(raw),
		Reencoded:      reencoded,
		MismatchOffset: firstMismatch(raw, reencoded),
	}
	v.Match = v.MismatchOffset < 0
	return v, nil
}

// VerifyHex parses input and verifies it
func VerifyHex(input string) (*Verification, error) {
	raw, err := ParseHex(input)
	if err != nil {
		return nil, err
	}
	return Verify(raw)
}

// firstMismatch returns the first index where a and b differ, or -1
func firstMismatch(a, b []byte) int {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	for i := 0; i < n; i++ {
		if a[i] != b[i] {
			return i
		}
	}
	if len(a) != len(b) {
		return n
	}
	return -1
}

// EqualHex compares two hex strings ignoring case and an optional 0x prefix
func EqualHex(a, b string) bool {
	return strings.EqualFold(trimHexPrefix(a), trimHexPrefix(b))
}

func trimHexPrefix(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		return s[2:]
	}
	return s
}
