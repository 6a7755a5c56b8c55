package multisend

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/holiman/uint256"
)

// ExecTransaction holds the ten decoded execTransaction parameters in
// declaration order. Only To, Value, Data and Operation are interpreted; the
// rest are carried so the call can be re-encoded byte for byte.
type ExecTransaction struct {
	To             common.Address
	Value          *uint256.Int
	Data           []byte
	Operation      Operation
	SafeTxGas      *uint256.Int
	BaseGas        *uint256.Int
	GasPrice       *uint256.Int
	GasToken       common.Address
	RefundReceiver common.Address
	Signatures     []byte
}

// Transaction is one packed MultiSend record
type Transaction struct {
	Operation Operation
	To        common.Address
	Value     *uint256.Int
	Data      []byte

	// Offset is the position of the record in the packed list
	Offset int
}

// Size returns the encoded length of the record
func (t *Transaction) Size() int {
	return RecordHeaderSize + len(t.Data)
}

// Result is a decoded execTransaction call
type Result struct {
	Exec          *ExecTransaction
	InnerSelector Selector

	// MultiSend is true when the inner call data is a multiSend call
	MultiSend bool

	// PackedLength is the length of the packed transaction list
	PackedLength int

	Transactions []Transaction
}

// Destinations returns the To address of every forwarded transaction in order
func (r *Result) Destinations() []common.Address {
	addrs := make([]common.Address, len(r.Transactions))
	for i := range r.Transactions {
		addrs[i] = r.Transactions[i].To
	}
	return addrs
}

// ParseHex converts a hex string with or without 0x prefix into bytes
func ParseHex(input string) ([]byte, error) {
	s := strings.TrimSpace(input)
	if s == "" {
		return nil, &DecodeError{Kind: KindInvalidInput, Cause: hexutil.ErrEmptyString}
	}
	if !strings.HasPrefix(s, "0x") && !strings.HasPrefix(s, "0X") {
		s = "0x" + s
	}
	raw, err := hexutil.Decode(s)
	if err != nil {
		return nil, &DecodeError{Kind: KindInvalidInput, Cause: err}
	}
	return raw, nil
}

// DecodeHex parses a hex string and decodes it
func DecodeHex(input string) (*Result, Diagnostics, error) {
	raw, err := ParseHex(input)
	if err != nil {
		return nil, nil, err
	}
	return Decode(raw)
}

// Decode decodes an execTransaction call and, when its inner call is a
// multiSend, the packed transactions it forwards.
//
// A non-nil error is always a *DecodeError and the result is nil. An inner
// call that is not a multiSend, or a packed list that ends inside a record,
// is reported through Diagnostics together with whatever was recovered.
func Decode(raw []byte) (*Result, Diagnostics, error) {
	if len(raw) < SelectorSize || !bytes.Equal(raw[:SelectorSize], ExecTransactionSelector[:]) {
		return nil, nil, &DecodeError{
			Kind:     KindNotProxyExecutionCall,
			Selector: selectorFrom(raw),
		}
	}

	exec, dataStart, err := decodeExecTransaction(raw[SelectorSize:])
	if err != nil {
		if de, ok := err.(*DecodeError); ok {
			de.Offset += SelectorSize
		}
		return nil, nil, err
	}

	result := &Result{
		Exec:          exec,
		InnerSelector: selectorFrom(exec.Data),
	}

	var diags Diagnostics
	if len(exec.Data) < SelectorSize || result.InnerSelector != MultiSendSelector {
		diags = append(diags, Diagnostic{
			Kind:     DiagInnerCallNotBatch,
			Selector: result.InnerSelector,
			Message:  fmt.Sprintf("nested call is not a multiSend, actual selector: %s", result.InnerSelector),
		})
		return result, diags, nil
	}
	result.MultiSend = true

	packed, err := DecodeMultiSend(exec.Data)
	if err != nil {
		if de, ok := err.(*DecodeError); ok {
			de.Offset += SelectorSize + dataStart
		}
		return nil, nil, err
	}
	result.PackedLength = len(packed)

	txs, txDiags := DecodeTransactions(packed)
	result.Transactions = txs
	diags = append(diags, txDiags...)

	return result, diags, nil
}

// DecodeExecTransaction decodes the execTransaction parameter block (the
// call data without its selector). Offsets in the returned error are
// relative to the parameter block.
func DecodeExecTransaction(params []byte) (*ExecTransaction, error) {
	exec, _, err := decodeExecTransaction(params)
	return exec, err
}

// decodeExecTransaction also returns where the inner call data starts in
// the parameter block
func decodeExecTransaction(params []byte) (*ExecTransaction, int, error) {
	if len(params) < ExecTransactionParamCount*WordSize {
		return nil, 0, abiDecodeError(len(params), fmt.Errorf(
			"parameter block is %d bytes, execTransaction needs at least %d",
			len(params), ExecTransactionParamCount*WordSize))
	}

	a := newABIReader(params)
	exec := &ExecTransaction{}
	var (
		dataStart int
		err       error
	)

	fail := func(err error) (*ExecTransaction, int, error) {
		return nil, 0, abiDecodeError(errorOffset(err, a.r.Offset()), err)
	}

	if exec.To, err = a.address(0); err != nil {
		return fail(err)
	}
	if exec.Value, err = a.word(1); err != nil {
		return fail(err)
	}
	if exec.Data, dataStart, err = a.bytes(2); err != nil {
		return fail(err)
	}
	op, err := a.uint8(3)
	if err != nil {
		return fail(err)
	}
	exec.Operation = Operation(op)
	if exec.SafeTxGas, err = a.word(4); err != nil {
		return fail(err)
	}
	if exec.BaseGas, err = a.word(5); err != nil {
		return fail(err)
	}
	if exec.GasPrice, err = a.word(6); err != nil {
		return fail(err)
	}
	if exec.GasToken, err = a.address(7); err != nil {
		return fail(err)
	}
	if exec.RefundReceiver, err = a.address(8); err != nil {
		return fail(err)
	}
	if exec.Signatures, _, err = a.bytes(9); err != nil {
		return fail(err)
	}

	return exec, dataStart, nil
}

// DecodeMultiSend decodes a multiSend call (selector included) and returns
// the packed transaction list it carries.
func DecodeMultiSend(call []byte) ([]byte, error) {
	if len(call) < SelectorSize || !bytes.Equal(call[:SelectorSize], MultiSendSelector[:]) {
		return nil, &DecodeError{Kind: KindAbiDecode, Selector: selectorFrom(call),
			Cause: fmt.Errorf("inner call selector %s is not multiSend", selectorFrom(call))}
	}
	a := newABIReader(call[SelectorSize:])
	packed, _, err := a.bytes(0)
	if err != nil {
		return nil, abiDecodeError(SelectorSize+errorOffset(err, a.r.Offset()), fmt.Errorf("multiSend payload: %w", err))
	}
	return packed, nil
}

// DecodeTransactions walks a packed MultiSend list. Records are read until
// the buffer is exhausted; a record that does not fit in the remaining bytes
// stops the walk with a TruncatedRecord diagnostic at the record's offset,
// and every record read before it is returned.
func DecodeTransactions(packed []byte) ([]Transaction, Diagnostics) {
	var (
		txs   []Transaction
		diags Diagnostics
	)

	r := newReader(packed)
	for r.Len() > 0 {
		start := r.Offset()
		tx, err := readTransaction(r)
		if err != nil {
			diags = append(diags, Diagnostic{
				Kind:    DiagTruncatedRecord,
				Offset:  start,
				Message: err.Error(),
			})
			break
		}
		if !tx.Operation.Valid() {
			diags = append(diags, Diagnostic{
				Kind:    DiagUnknownOperation,
				Offset:  start,
				Message: fmt.Sprintf("record %d has operation %s", len(txs), tx.Operation),
			})
		}
		txs = append(txs, tx)
	}

	return txs, diags
}

// readTransaction reads one record at the cursor
func readTransaction(r *reader) (Transaction, error) {
	tx := Transaction{Offset: r.Offset()}

	if r.Len() < RecordHeaderSize {
		return tx, fmt.Errorf("incomplete record header: %d of %d bytes", r.Len(), RecordHeaderSize)
	}

	op, err := r.ReadByte()
	if err != nil {
		return tx, err
	}
	tx.Operation = Operation(op)

	if tx.To, err = r.ReadAddress(); err != nil {
		return tx, err
	}
	if tx.Value, err = r.ReadWord(); err != nil {
		return tx, err
	}

	n, err := r.ReadLength()
	if err != nil {
		return tx, err
	}
	data, err := r.Read(n)
	if err != nil {
		return tx, err
	}
	tx.Data = common.CopyBytes(data)

	return tx, nil
}
