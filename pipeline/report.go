package pipeline

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/mitchhs12/safe-top-protocols/dataset"
	"github.com/mitchhs12/safe-top-protocols/multisend"
)

// Summary collects the results of a pipeline run for reporting
type Summary struct {
	Title   string
	Network string
	Decode  *DecodeStats
	Skipped []dataset.SkippedTx
	Verify  []VerifyOutcome
	Top     []dataset.TopContract

	// MaxRows limits the listed top contracts and skipped transactions
	MaxRows int
}

// VerifyCounts tallies verification outcomes
type VerifyCounts struct {
	Total    int
	Passed   int
	Failed   int
	Errors   int
	PassRate float64
}

// CountVerifications tallies a VerifyBatch result
func CountVerifications(outcomes []VerifyOutcome) VerifyCounts {
	c := VerifyCounts{Total: len(outcomes)}
	for i := range outcomes {
		switch outcomes[i].Status() {
		case "PASS":
			c.Passed++
		case "FAIL":
			c.Failed++
		default:
			c.Errors++
		}
	}
	if c.Total > 0 {
		c.PassRate = float64(c.Passed) / float64(c.Total) * 100
	}
	return c
}

func banner(sb *strings.Builder) {
	sb.WriteString("=" + strings.Repeat("=", 79) + "\n")
}

func rule(sb *strings.Builder) {
	sb.WriteString("-" + strings.Repeat("-", 39) + "\n")
}

// FormatSummary formats a pipeline run as a string
func FormatSummary(s *Summary) string {
	var sb strings.Builder

	maxRows := s.MaxRows
	if maxRows <= 0 {
		maxRows = 10
	}

	banner(&sb)
	sb.WriteString(fmt.Sprintf("  %s\n", s.Title))
	if s.Network != "" {
		sb.WriteString(fmt.Sprintf("  Network: %s\n", s.Network))
	}
	banner(&sb)

	if s.Decode != nil {
		sb.WriteString("\nDECODING\n")
		rule(&sb)
		sb.WriteString(fmt.Sprintf("Transactions:        %d\n", s.Decode.Rows))
		sb.WriteString(fmt.Sprintf("multiSend batches:   %d\n", s.Decode.Batches))
		sb.WriteString(fmt.Sprintf("Forwarded calls:     %d\n", s.Decode.Forwarded))
		sb.WriteString(fmt.Sprintf("Skipped:             %d\n", s.Decode.Skipped))
		if s.Decode.NotExecCalls > 0 {
			sb.WriteString(fmt.Sprintf("  not execTransaction: %d\n", s.Decode.NotExecCalls))
		}
		if s.Decode.Truncated > 0 {
			sb.WriteString(fmt.Sprintf("Truncated batches:   %d\n", s.Decode.Truncated))
		}
		if s.Decode.UnknownOps > 0 {
			sb.WriteString(fmt.Sprintf("Unknown operations:  %d\n", s.Decode.UnknownOps))
		}
	}

	if len(s.Skipped) > 0 {
		sb.WriteString("\nSKIPPED TRANSACTIONS\n")
		rule(&sb)
		for i, sk := range s.Skipped {
			if i == maxRows {
				sb.WriteString(fmt.Sprintf("... and %d more\n", len(s.Skipped)-maxRows))
				break
			}
			sb.WriteString(fmt.Sprintf("%s\n       Reason: %s\n", sk.Hash, sk.Reason))
		}
	}

	if len(s.Verify) > 0 {
		counts := CountVerifications(s.Verify)
		sb.WriteString("\nRE-ENCODING\n")
		rule(&sb)
		sb.WriteString(fmt.Sprintf("Total:      %d\n", counts.Total))
		sb.WriteString(fmt.Sprintf("Passed:     %d\n", counts.Passed))
		sb.WriteString(fmt.Sprintf("Failed:     %d\n", counts.Failed))
		sb.WriteString(fmt.Sprintf("Errors:     %d\n", counts.Errors))
		sb.WriteString(fmt.Sprintf("Pass Rate:  %.1f%%\n", counts.PassRate))
		for _, o := range s.Verify {
			switch o.Status() {
			case "FAIL":
				sb.WriteString(fmt.Sprintf("[FAIL] %s first mismatch at byte %d\n", o.TxHash, o.MismatchOffset))
			case "ERROR":
				sb.WriteString(fmt.Sprintf("[ERROR] %s %v\n", o.TxHash, o.Err))
			}
		}
	}

	if len(s.Top) > 0 {
		sb.WriteString("\nTOP CONTRACTS\n")
		rule(&sb)
		for i, row := range s.Top {
			if i == maxRows {
				break
			}
			name := row.CustomLabel
			if name == "" {
				name = row.Label
			}
			sb.WriteString(fmt.Sprintf("%3d. %s %8d  %s", i+1, row.DestinationContract, row.InteractionCount, name))
			if row.ContractType != "" {
				sb.WriteString(fmt.Sprintf(" (%s)", row.ContractType))
			}
			sb.WriteString("\n")
		}
	}

	sb.WriteString("\n")
	banner(&sb)
	return sb.String()
}

// VerificationResult is one self-check of the codec
type VerificationResult struct {
	Component string
	Name      string
	Passed    bool
	Message   string
}

// QuickVerify checks the codec constants and a known batch round trip
func QuickVerify() []VerificationResult {
	results := make([]VerificationResult, 0)

	results = append(results, VerificationResult{
		Component: "Constants",
		Name:      "ExecTransactionSelector",
		Passed:    multisend.ExecTransactionSelector.Hex() == "0x6a761202",
		Message:   fmt.Sprintf("ExecTransactionSelector = %s", multisend.ExecTransactionSelector),
	})

	results = append(results, VerificationResult{
		Component: "Constants",
		Name:      "MultiSendSelector",
		Passed:    multisend.MultiSendSelector.Hex() == "0x8d80ff0a",
		Message:   fmt.Sprintf("MultiSendSelector = %s", multisend.MultiSendSelector),
	})

	results = append(results, VerificationResult{
		Component: "Constants",
		Name:      "RecordHeaderSize",
		Passed:    multisend.RecordHeaderSize == 85,
		Message:   fmt.Sprintf("RecordHeaderSize = %d", multisend.RecordHeaderSize),
	})

	destinations := []common.Address{
		multisend.KnownAddresses.VitalikButerin,
		multisend.KnownAddresses.SafeProxyFactory,
		multisend.KnownAddresses.Burn,
	}
	txs := make([]multisend.Transaction, len(destinations))
	for i, to := range destinations {
		txs[i] = multisend.Transaction{Operation: multisend.OperationCall, To: to, Value: uint256.NewInt(0)}
	}
	exec := &multisend.ExecTransaction{To: multisend.KnownAddresses.MultiSend, Operation: multisend.OperationDelegateCall}

	raw, err := multisend.Encode(exec, txs)
	roundTrip := VerificationResult{Component: "Functions", Name: "EncodeDecodeRoundtrip"}
	if err != nil {
		roundTrip.Message = err.Error()
	} else if result, diags, err := multisend.Decode(raw); err != nil {
		roundTrip.Message = err.Error()
	} else {
		got := result.Destinations()
		roundTrip.Passed = len(diags) == 0 && len(got) == len(destinations)
		for i := 0; roundTrip.Passed && i < len(got); i++ {
			roundTrip.Passed = got[i] == destinations[i]
		}
		roundTrip.Message = fmt.Sprintf("%d destinations recovered from %d bytes", len(got), len(raw))
	}
	results = append(results, roundTrip)

	reencode := VerificationResult{Component: "Functions", Name: "ReencodeMatches"}
	if v, err := multisend.Verify(raw); err != nil {
		reencode.Message = err.Error()
	} else {
		reencode.Passed = v.Match && bytes.Equal(v.Reencoded, raw)
		reencode.Message = fmt.Sprintf("match=%v", v.Match)
	}
	results = append(results, reencode)

	return results
}

// FormatQuickVerify formats self-check results
func FormatQuickVerify(results []VerificationResult) string {
	var sb strings.Builder
	passed := 0
	for _, r := range results {
		sb.WriteString(fmt.Sprintf("[%s] %s/%s: %s\n", statusIcon(r.Passed), r.Component, r.Name, r.Message))
		if r.Passed {
			passed++
		}
	}
	sb.WriteString(fmt.Sprintf("\n%d/%d checks passed\n", passed, len(results)))
	return sb.String()
}

func statusIcon(passed bool) string {
	if passed {
		return "PASS"
	}
	return "FAIL"
}
