package multisend

import (
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/holiman/uint256"
	"github.com/shopspring/decimal"
)

// FormatEther renders a wei amount in ether
func FormatEther(wei *uint256.Int) string {
	if wei == nil {
		return "0"
	}
	return decimal.NewFromBigInt(wei.ToBig(), -18).String()
}

// FormatResult formats a decoded call for display
func FormatResult(result *Result, diags Diagnostics) string {
	var sb strings.Builder

	sb.WriteString("=" + strings.Repeat("=", 79) + "\n")
	sb.WriteString("  Safe execTransaction\n")
	sb.WriteString("=" + strings.Repeat("=", 79) + "\n\n")

	exec := result.Exec
	sb.WriteString(fmt.Sprintf("  %-20s %s\n", "To:", exec.To.Hex()))
	sb.WriteString(fmt.Sprintf("  %-20s %s wei (%s ETH)\n", "Value:", exec.Value.Dec(), FormatEther(exec.Value)))
	sb.WriteString(fmt.Sprintf("  %-20s %d bytes, selector %s\n", "Data:", len(exec.Data), result.InnerSelector))
	sb.WriteString(fmt.Sprintf("  %-20s %d (%s)\n", "Operation:", uint8(exec.Operation), exec.Operation))
	sb.WriteString(fmt.Sprintf("  %-20s %s\n", "Safe Tx Gas:", exec.SafeTxGas.Dec()))
	sb.WriteString(fmt.Sprintf("  %-20s %s\n", "Base Gas:", exec.BaseGas.Dec()))
	sb.WriteString(fmt.Sprintf("  %-20s %s\n", "Gas Price:", exec.GasPrice.Dec()))
	sb.WriteString(fmt.Sprintf("  %-20s %s\n", "Gas Token:", exec.GasToken.Hex()))
	sb.WriteString(fmt.Sprintf("  %-20s %s\n", "Refund Receiver:", exec.RefundReceiver.Hex()))
	sb.WriteString(fmt.Sprintf("  %-20s %d bytes\n", "Signatures:", len(exec.Signatures)))

	if result.MultiSend {
		sb.WriteString("\nMULTISEND TRANSACTIONS\n")
		sb.WriteString("-" + strings.Repeat("-", 39) + "\n")
		sb.WriteString(fmt.Sprintf("Packed length: %d bytes, %d transaction(s)\n", result.PackedLength, len(result.Transactions)))
		for i, tx := range result.Transactions {
			sb.WriteString(fmt.Sprintf("  %d. %s %s\n", i+1, tx.Operation, tx.To.Hex()))
			sb.WriteString(fmt.Sprintf("       value: %s ETH, data: %d bytes", FormatEther(tx.Value), len(tx.Data)))
			if len(tx.Data) >= SelectorSize {
				sb.WriteString(fmt.Sprintf(", selector %s", selectorFrom(tx.Data)))
			}
			sb.WriteString("\n")
		}
	}

	if len(diags) > 0 {
		sb.WriteString("\nDIAGNOSTICS\n")
		sb.WriteString("-" + strings.Repeat("-", 39) + "\n")
		for _, d := range diags {
			sb.WriteString(fmt.Sprintf("  [%s] %s\n", d.Kind, d))
		}
	}

	return sb.String()
}

// FormatVerification formats a round-trip verification for display
func FormatVerification(v *Verification) string {
	var sb strings.Builder

	sb.WriteString(FormatResult(v.Result, v.Diagnostics))
	sb.WriteString("\nRE-ENCODING\n")
	sb.WriteString("-" + strings.Repeat("-", 39) + "\n")
	sb.WriteString(fmt.Sprintf("Original:   %d bytes\n", len(v.Original)))
	sb.WriteString(fmt.Sprintf("Re-encoded: %d bytes\n", len(v.Reencoded)))

	if v.Match {
		sb.WriteString("[PASS] Re-encoded data matches the original input\n")
		return sb.String()
	}

	sb.WriteString(fmt.Sprintf("[FAIL] Re-encoded data differs from the original at byte %d\n", v.MismatchOffset))
	sb.WriteString(fmt.Sprintf("       original:   %s\n", window(v.Original, v.MismatchOffset)))
	sb.WriteString(fmt.Sprintf("       re-encoded: %s\n", window(v.Reencoded, v.MismatchOffset)))
	return sb.String()
}

// window returns up to one word of hex starting at the word containing offset
func window(b []byte, offset int) string {
	start := offset - offset%WordSize
	if start >= len(b) {
		return "<end of data>"
	}
	end := start + WordSize
	if end > len(b) {
		end = len(b)
	}
	return fmt.Sprintf("[%d:%d] %s", start, end, hex.EncodeToString(b[start:end]))
}
