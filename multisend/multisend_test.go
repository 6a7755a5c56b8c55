package multisend

import (
	"bytes"
	"errors"
	"math/big"
	"strings"
	"sync"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Hand-built encodings, independent of the encoder under test.

func word(v uint64) []byte {
	return common.LeftPadBytes(new(big.Int).SetUint64(v).Bytes(), WordSize)
}

func addrWord(a common.Address) []byte {
	return common.LeftPadBytes(a.Bytes(), WordSize)
}

func padRight(b []byte) []byte {
	out := make([]byte, (len(b)+WordSize-1)/WordSize*WordSize)
	copy(out, b)
	return out
}

func concat(parts ...[]byte) []byte {
	var out []byte
	for _, p := range parts {
		out = append(out, p...)
	}
	return out
}

func packRecord(op Operation, to common.Address, value uint64, data []byte) []byte {
	return concat([]byte{byte(op)}, to.Bytes(), word(value), word(uint64(len(data))), data)
}

func buildMultiSendCall(packed []byte) []byte {
	return concat(MultiSendSelector[:], word(WordSize), word(uint64(len(packed))), padRight(packed))
}

type execParams struct {
	to         common.Address
	value      uint64
	data       []byte
	op         Operation
	safeTxGas  uint64
	baseGas    uint64
	gasPrice   uint64
	gasToken   common.Address
	refund     common.Address
	signatures []byte
}

func buildExecCall(p execParams) []byte {
	dataOffset := uint64(ExecTransactionParamCount * WordSize)
	sigOffset := dataOffset + WordSize + uint64(len(padRight(p.data)))
	return concat(
		ExecTransactionSelector[:],
		addrWord(p.to),
		word(p.value),
		word(dataOffset),
		word(uint64(p.op)),
		word(p.safeTxGas),
		word(p.baseGas),
		word(p.gasPrice),
		addrWord(p.gasToken),
		addrWord(p.refund),
		word(sigOffset),
		word(uint64(len(p.data))),
		padRight(p.data),
		word(uint64(len(p.signatures))),
		padRight(p.signatures),
	)
}

func sequence(n int) []byte {
	b := make([]byte, n)
	for i := range b {
		b[i] = byte(i)
	}
	return b
}

var (
	destA = common.HexToAddress("0x000000000000000000000000000000000000aaaa")
	destB = common.HexToAddress("0x000000000000000000000000000000000000bbbb")
	destC = common.HexToAddress("0x000000000000000000000000000000000000cccc")
	owner = common.HexToAddress("0x0000000000000000000000000000000000000042")

	withdrawSelector = SelectorOf("withdraw(uint256)")
	approveSelector  = SelectorOf("approve(address,uint256)")
)

// threeRecords returns a packed list with data lengths 0, 36 and 100
func threeRecords() ([]byte, []Transaction) {
	data36 := concat(withdrawSelector[:], word(1000))
	data100 := sequence(100)
	want := []Transaction{
		{Operation: OperationCall, To: destA, Value: uint256.NewInt(0), Data: []byte{}, Offset: 0},
		{Operation: OperationCall, To: destB, Value: uint256.NewInt(1e18), Data: data36, Offset: 85},
		{Operation: OperationDelegateCall, To: destC, Value: uint256.NewInt(7), Data: data100, Offset: 85 + 121},
	}
	packed := concat(
		packRecord(OperationCall, destA, 0, nil),
		packRecord(OperationCall, destB, 1e18, data36),
		packRecord(OperationDelegateCall, destC, 7, data100),
	)
	return packed, want
}

func multiSendExec(packed []byte) execParams {
	return execParams{
		to:         KnownAddresses.MultiSend,
		data:       buildMultiSendCall(packed),
		op:         OperationDelegateCall,
		safeTxGas:  0,
		baseGas:    0,
		gasPrice:   0,
		signatures: bytes.Repeat([]byte{0x11}, 65),
	}
}

func assertTransaction(t *testing.T, want, got Transaction) {
	t.Helper()
	assert.Equal(t, want.Operation, got.Operation)
	assert.Equal(t, want.To, got.To)
	assert.True(t, want.Value.Eq(got.Value), "value = %s, want %s", got.Value.Dec(), want.Value.Dec())
	assert.Equal(t, want.Data, got.Data)
	assert.Equal(t, want.Offset, got.Offset)
}

func TestSelectors(t *testing.T) {
	assert.Equal(t, "0x6a761202", ExecTransactionSelector.Hex())
	assert.Equal(t, "0x8d80ff0a", MultiSendSelector.Hex())

	for _, sig := range []string{ExecTransactionSignature, MultiSendSignature, "approve(address,uint256)"} {
		t.Run(sig, func(t *testing.T) {
			first := SelectorOf(sig)
			second := SelectorOf(sig)
			assert.Equal(t, first, second)
			assert.Equal(t, crypto.Keccak256([]byte(sig))[:SelectorSize], first[:])
		})
	}
}

func TestOperationString(t *testing.T) {
	testCases := []struct {
		op        Operation
		wantName  string
		wantValid bool
	}{
		{OperationCall, "CALL", true},
		{OperationDelegateCall, "DELEGATECALL", true},
		{Operation(0x02), "Unknown (0x02)", false},
		{Operation(0xff), "Unknown (0xff)", false},
	}

	for _, tc := range testCases {
		t.Run(tc.wantName, func(t *testing.T) {
			assert.Equal(t, tc.wantName, tc.op.String())
			assert.Equal(t, tc.wantValid, tc.op.Valid())
		})
	}
}

func TestDecode_NotProxyExecutionCall(t *testing.T) {
	approve := concat(approveSelector[:], addrWord(destA), word(1))

	testCases := []struct {
		name         string
		input        []byte
		wantSelector Selector
	}{
		{"approve_call", approve, approveSelector},
		{"multisend_call", buildMultiSendCall(nil), MultiSendSelector},
		{"short_input", []byte{0x6a, 0x76}, Selector{0x6a, 0x76}},
		{"empty_input", nil, Selector{}},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			result, diags, err := Decode(tc.input)
			require.Error(t, err)
			assert.Nil(t, result)
			assert.Empty(t, diags)
			assert.True(t, errors.Is(err, ErrNotExecTransaction))
			assert.False(t, errors.Is(err, ErrABIDecode))

			var de *DecodeError
			require.True(t, errors.As(err, &de))
			assert.Equal(t, KindNotProxyExecutionCall, de.Kind)
			assert.Equal(t, tc.wantSelector, de.Selector)
		})
	}
}

func TestDecode_InnerCallNotBatch(t *testing.T) {
	inner := concat(approveSelector[:], addrWord(destA), word(1e18))
	raw := buildExecCall(execParams{to: destB, data: inner, op: OperationCall, signatures: []byte{0x01}})

	result, diags, err := Decode(raw)
	require.NoError(t, err)
	require.NotNil(t, result)

	assert.False(t, result.MultiSend)
	assert.Empty(t, result.Transactions)
	assert.Equal(t, approveSelector, result.InnerSelector)
	assert.Equal(t, destB, result.Exec.To)
	assert.Equal(t, inner, result.Exec.Data)

	d, ok := diags.First(DiagInnerCallNotBatch)
	require.True(t, ok)
	assert.Equal(t, approveSelector, d.Selector)
	assert.Contains(t, d.String(), "0x095ea7b3")
}

func TestDecode_InnerCallTooShort(t *testing.T) {
	raw := buildExecCall(execParams{to: destB, data: []byte{0x8d, 0x80}})

	result, diags, err := Decode(raw)
	require.NoError(t, err)
	assert.False(t, result.MultiSend)
	assert.True(t, diags.Has(DiagInnerCallNotBatch))
}

func TestDecode_ThreeRecords(t *testing.T) {
	packed, want := threeRecords()
	require.Len(t, packed, 85+121+185)

	p := multiSendExec(packed)
	raw := buildExecCall(p)

	result, diags, err := Decode(raw)
	require.NoError(t, err)
	assert.Empty(t, diags)

	assert.True(t, result.MultiSend)
	assert.Equal(t, MultiSendSelector, result.InnerSelector)
	assert.Equal(t, KnownAddresses.MultiSend, result.Exec.To)
	assert.Equal(t, OperationDelegateCall, result.Exec.Operation)
	assert.Equal(t, p.signatures, result.Exec.Signatures)
	assert.Equal(t, len(packed), result.PackedLength)

	require.Len(t, result.Transactions, 3)
	for i := range want {
		assertTransaction(t, want[i], result.Transactions[i])
	}
	assert.Equal(t, []common.Address{destA, destB, destC}, result.Destinations())

	assert.Equal(t, packed, EncodeTransactions(result.Transactions))

	reencoded, err := Encode(result.Exec, result.Transactions)
	require.NoError(t, err)
	assert.Equal(t, raw, reencoded)
}

func TestDecode_TruncatedLastRecord(t *testing.T) {
	first := packRecord(OperationCall, destA, 0, nil)
	second := packRecord(OperationCall, destB, 5, sequence(36))
	// third claims 10 more data bytes than the buffer holds
	third := concat([]byte{byte(OperationCall)}, destC.Bytes(), word(0), word(50), sequence(40))
	packed := concat(first, second, third)

	raw := buildExecCall(multiSendExec(packed))
	result, diags, err := Decode(raw)
	require.NoError(t, err)

	require.Len(t, result.Transactions, 2)
	assert.Equal(t, destA, result.Transactions[0].To)
	assert.Equal(t, destB, result.Transactions[1].To)
	assert.Equal(t, sequence(36), result.Transactions[1].Data)

	d, ok := diags.First(DiagTruncatedRecord)
	require.True(t, ok)
	assert.Equal(t, len(first)+len(second), d.Offset)
	assert.Equal(t, 1, diags.Count(DiagTruncatedRecord))
}

func TestDecodeTransactions_RecordLengthInvariant(t *testing.T) {
	packed, _ := threeRecords()
	txs, diags := DecodeTransactions(packed)
	assert.Empty(t, diags)

	total := 0
	for i := range txs {
		assert.Equal(t, total, txs[i].Offset)
		total += txs[i].Size()
	}
	assert.Equal(t, len(packed), total)
}

func TestDecodeTransactions_TruncationSafety(t *testing.T) {
	packed, want := threeRecords()
	boundaries := []int{0, 85, 85 + 121, len(packed)}

	for cut := 0; cut <= len(packed); cut++ {
		txs, diags := DecodeTransactions(packed[:cut])

		complete := 0
		for _, b := range boundaries[1:] {
			if b <= cut {
				complete++
			}
		}
		require.Len(t, txs, complete, "cut %d", cut)
		for i := range txs {
			assertTransaction(t, want[i], txs[i])
		}

		atBoundary := false
		for _, b := range boundaries {
			if b == cut {
				atBoundary = true
			}
		}
		if atBoundary {
			assert.Empty(t, diags, "cut %d", cut)
			continue
		}
		d, ok := diags.First(DiagTruncatedRecord)
		require.True(t, ok, "cut %d", cut)
		assert.Equal(t, boundaries[complete], d.Offset, "cut %d", cut)
	}
}

func TestDecodeTransactions_UnknownOperation(t *testing.T) {
	packed := concat(
		packRecord(OperationCall, destA, 0, nil),
		packRecord(Operation(0x07), destB, 0, sequence(3)),
	)

	txs, diags := DecodeTransactions(packed)
	require.Len(t, txs, 2)
	assert.Equal(t, Operation(0x07), txs[1].Operation)

	d, ok := diags.First(DiagUnknownOperation)
	require.True(t, ok)
	assert.Equal(t, 85, d.Offset)
	assert.False(t, diags.Has(DiagTruncatedRecord))
}

func TestDecodeTransactions_HugeLength(t *testing.T) {
	huge := concat([]byte{0x00}, destA.Bytes(), word(0), bytes.Repeat([]byte{0xff}, WordSize))

	txs, diags := DecodeTransactions(huge)
	assert.Empty(t, txs)
	d, ok := diags.First(DiagTruncatedRecord)
	require.True(t, ok)
	assert.Equal(t, 0, d.Offset)
}

func TestDecode_AbiDecodeErrors(t *testing.T) {
	packed, _ := threeRecords()
	valid := buildExecCall(multiSendExec(packed))

	mutate := func(slot int, w []byte) []byte {
		out := common.CopyBytes(valid)
		copy(out[SelectorSize+slot*WordSize:], w)
		return out
	}

	slot := func(i int) int { return SelectorSize + i*WordSize }
	sigLength := slot(ExecTransactionParamCount) + WordSize + len(padRight(buildMultiSendCall(packed)))

	testCases := []struct {
		name   string
		input  []byte
		offset int
	}{
		{"head_too_short", valid[:slot(9)], slot(9)},
		{"data_offset_beyond_buffer", mutate(2, word(1<<20)), slot(2)},
		{"data_offset_overflows", mutate(2, bytes.Repeat([]byte{0xff}, WordSize)), slot(2)},
		{"signatures_length_beyond_buffer", valid[:len(valid)-WordSize*2], sigLength},
		{"dirty_address_padding", mutate(0, bytes.Repeat([]byte{0x01}, WordSize)), slot(0)},
		{"operation_overflows_uint8", mutate(3, word(256)), slot(3)},
		{"dirty_gas_token_padding", mutate(7, bytes.Repeat([]byte{0x01}, WordSize)), slot(7)},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			result, _, err := Decode(tc.input)
			require.Error(t, err)
			assert.Nil(t, result)
			assert.True(t, errors.Is(err, ErrABIDecode), "err = %v", err)

			var de *DecodeError
			require.True(t, errors.As(err, &de))
			assert.Equal(t, KindAbiDecode, de.Kind)
			assert.Equal(t, tc.offset, de.Offset)
		})
	}
}

func TestDecode_MalformedMultiSendPayload(t *testing.T) {
	inner := concat(MultiSendSelector[:], word(WordSize), word(500), sequence(10))
	raw := buildExecCall(execParams{to: KnownAddresses.MultiSend, data: inner, op: OperationDelegateCall})

	_, _, err := Decode(raw)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrABIDecode))
	assert.Contains(t, err.Error(), "multiSend payload")

	// inner call starts after the head and the data length word; its
	// length word follows the selector and the offset word
	innerStart := SelectorSize + ExecTransactionParamCount*WordSize + WordSize
	var de *DecodeError
	require.True(t, errors.As(err, &de))
	assert.Equal(t, innerStart+SelectorSize+WordSize, de.Offset)
	assert.Equal(t, innerStart, bytes.Index(raw, MultiSendSelector[:]))

	_, err = DecodeMultiSend(inner)
	require.True(t, errors.As(err, &de))
	assert.Equal(t, SelectorSize+WordSize, de.Offset)
}

func TestDecodeHex(t *testing.T) {
	packed, _ := threeRecords()
	raw := buildExecCall(multiSendExec(packed))
	hexInput := common.Bytes2Hex(raw)

	for name, input := range map[string]string{
		"prefixed":   "0x" + hexInput,
		"unprefixed": hexInput,
		"uppercase":  "0X" + strings.ToUpper(hexInput),
		"whitespace": "  0x" + hexInput + "\n",
	} {
		t.Run(name, func(t *testing.T) {
			result, _, err := DecodeHex(input)
			require.NoError(t, err)
			assert.Len(t, result.Transactions, 3)
		})
	}

	t.Run("invalid", func(t *testing.T) {
		for _, input := range []string{"", "0x6a7612", "0xzz", "0x6a7"} {
			_, _, err := DecodeHex(input)
			require.Error(t, err, input)
			if input == "0x6a7612" {
				assert.True(t, errors.Is(err, ErrNotExecTransaction))
				continue
			}
			assert.True(t, errors.Is(err, ErrInvalidInput), "input %q err %v", input, err)
		}
	})
}

func TestConcurrentDecode(t *testing.T) {
	packed, want := threeRecords()
	raw := buildExecCall(multiSendExec(packed))

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			result, _, err := Decode(raw)
			if assert.NoError(t, err) && assert.Len(t, result.Transactions, len(want)) {
				assert.Equal(t, want[2].To, result.Transactions[2].To)
			}
		}()
	}
	wg.Wait()
}

func TestFormatResult(t *testing.T) {
	packed, _ := threeRecords()
	result, diags, err := Decode(buildExecCall(multiSendExec(packed)))
	require.NoError(t, err)

	out := FormatResult(result, diags)
	assert.Contains(t, out, "MULTISEND TRANSACTIONS")
	assert.Contains(t, out, destC.Hex())
	assert.Contains(t, out, "DELEGATECALL")
	assert.Contains(t, out, "value: 1 ETH")
	assert.Contains(t, out, "selector "+withdrawSelector.Hex())
}
