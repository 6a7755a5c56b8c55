package multisend

import (
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeMultiSend_SingleEmptyRecord(t *testing.T) {
	txs := []Transaction{{Operation: OperationCall, To: destA, Value: uint256.NewInt(0)}}

	got, err := EncodeMultiSend(txs)
	require.NoError(t, err)

	want := "8d80ff0a" +
		"0000000000000000000000000000000000000000000000000000000000000020" +
		"0000000000000000000000000000000000000000000000000000000000000055" +
		"00" + "000000000000000000000000000000000000aaaa" +
		strings.Repeat("00", 64) +
		strings.Repeat("00", 11)
	assert.Equal(t, want, common.Bytes2Hex(got))
	assert.Len(t, got, SelectorSize+WordSize*2+96)
}

func TestEncodeMultiSendPayload_PadsTail(t *testing.T) {
	for _, n := range []int{0, 1, 31, 32, 33, 85, 391} {
		packed := sequence(n)
		got, err := EncodeMultiSendPayload(packed)
		require.NoError(t, err)
		assert.Equal(t, buildMultiSendCall(packed), got, "length %d", n)
		assert.Zero(t, (len(got)-SelectorSize)%WordSize, "length %d", n)
	}
}

func TestEncodeTransactions_NilValue(t *testing.T) {
	packed := EncodeTransactions([]Transaction{{To: destB, Data: []byte{0xde, 0xad}}})
	assert.Equal(t, packRecord(OperationCall, destB, 0, []byte{0xde, 0xad}), packed)
}

func TestEncodeExecTransaction_MatchesHandBuilt(t *testing.T) {
	p := execParams{
		to:         destA,
		value:      12345,
		data:       sequence(70),
		op:         OperationCall,
		safeTxGas:  50000,
		baseGas:    21000,
		gasPrice:   3,
		gasToken:   destB,
		refund:     owner,
		signatures: sequence(130),
	}

	got, err := EncodeExecTransaction(&ExecTransaction{
		To:             p.to,
		Value:          uint256.NewInt(p.value),
		Data:           p.data,
		Operation:      p.op,
		SafeTxGas:      uint256.NewInt(p.safeTxGas),
		BaseGas:        uint256.NewInt(p.baseGas),
		GasPrice:       uint256.NewInt(p.gasPrice),
		GasToken:       p.gasToken,
		RefundReceiver: p.refund,
		Signatures:     p.signatures,
	})
	require.NoError(t, err)
	assert.Equal(t, buildExecCall(p), got)
}

func TestEncode_ReencodeExample(t *testing.T) {
	// three plain CALLs with no value or data, wrapped the way the Safe UI builds them
	var txs []Transaction
	for _, to := range []common.Address{KnownAddresses.VitalikButerin, KnownAddresses.SafeProxyFactory, KnownAddresses.Burn} {
		txs = append(txs, Transaction{Operation: OperationCall, To: to, Value: uint256.NewInt(0)})
	}
	exec := &ExecTransaction{
		To:        KnownAddresses.MultiSend,
		Operation: OperationDelegateCall,
	}

	raw, err := Encode(exec, txs)
	require.NoError(t, err)

	// selector + 10 head slots + data (length + 324 bytes padded to 352) + empty signatures
	assert.Len(t, raw, 740)
	assert.Equal(t, ExecTransactionSelector[:], raw[:SelectorSize])

	result, diags, err := Decode(raw)
	require.NoError(t, err)
	assert.Empty(t, diags)
	assert.Equal(t, 255, result.PackedLength)
	assert.Equal(t, []common.Address{KnownAddresses.VitalikButerin, KnownAddresses.SafeProxyFactory, KnownAddresses.Burn}, result.Destinations())
	assert.Empty(t, result.Exec.Signatures)
}

func TestEncode_NilExec(t *testing.T) {
	_, err := Encode(nil, nil)
	assert.Error(t, err)
	_, err = EncodeExecTransaction(nil)
	assert.Error(t, err)
}

func TestVerify_RoundTrip(t *testing.T) {
	packed, _ := threeRecords()
	raw := buildExecCall(multiSendExec(packed))

	v, err := Verify(raw)
	require.NoError(t, err)
	assert.True(t, v.Match)
	assert.Equal(t, -1, v.MismatchOffset)
	assert.True(t, EqualHex("0x"+common.Bytes2Hex(raw), strings.ToUpper(common.Bytes2Hex(v.Reencoded))))
	assert.Contains(t, FormatVerification(v), "[PASS]")
}

func TestVerify_InnerCallNotBatch(t *testing.T) {
	inner := concat(approveSelector[:], addrWord(destA), word(1))
	raw := buildExecCall(execParams{to: destB, data: inner, signatures: sequence(65)})

	v, err := Verify(raw)
	require.NoError(t, err)
	assert.True(t, v.Match)
	assert.True(t, v.Diagnostics.Has(DiagInnerCallNotBatch))
}

func TestVerify_NonCanonicalEncoding(t *testing.T) {
	packed, _ := threeRecords()
	raw := buildExecCall(multiSendExec(packed))

	t.Run("trailing_bytes", func(t *testing.T) {
		padded := concat(raw, word(0))
		v, err := Verify(padded)
		require.NoError(t, err)
		assert.False(t, v.Match)
		assert.Equal(t, len(raw), v.MismatchOffset)
		assert.Contains(t, FormatVerification(v), "[FAIL]")
	})

	t.Run("trailing_garbage_in_packed_list", func(t *testing.T) {
		dirty := concat(packed, []byte{0x00, 0x01, 0x02})
		v, err := Verify(buildExecCall(multiSendExec(dirty)))
		require.NoError(t, err)
		assert.False(t, v.Match)
		assert.True(t, v.Diagnostics.Has(DiagTruncatedRecord))
		assert.Len(t, v.Result.Transactions, 3)
	})
}

func TestVerifyHex_Invalid(t *testing.T) {
	_, err := VerifyHex("0xnothex")
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestEqualHex(t *testing.T) {
	testCases := []struct {
		a, b string
		want bool
	}{
		{"0xABCDEF", "0xabcdef", true},
		{"abcdef", "0xABCDEF", true},
		{"0Xabcdef", "abcdef", true},
		{"0xabcdef", "0xabcdee", false},
		{"0xabcd", "0xabcdef", false},
	}

	for _, tc := range testCases {
		assert.Equal(t, tc.want, EqualHex(tc.a, tc.b), "%s vs %s", tc.a, tc.b)
	}
}
