// Package pipeline turns raw Safe transactions into ranked, labelled
// destination contracts.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/mitchhs12/safe-top-protocols/dataset"
	"github.com/mitchhs12/safe-top-protocols/multisend"
	"golang.org/x/sync/errgroup"
)

// Skip reasons for batches that decode without error but forward nothing
const (
	ReasonEmptyBatch = "multiSend batch contains no transactions"
)

// DecodeStats summarises one DecodeBatch run
type DecodeStats struct {
	Rows         int
	Batches      int
	Forwarded    int
	Skipped      int
	Truncated    int
	UnknownOps   int
	NotExecCalls int
}

// rowOutcome is the decode result of one input row
type rowOutcome struct {
	forwarded []dataset.ForwardedCall
	skipped   *dataset.SkippedTx
	diags     multisend.Diagnostics
	notExec   bool
}

// DecodeBatch decodes every row concurrently on at most workers goroutines.
// Output keeps the input order: forwarded calls are grouped by transaction
// and listed in batch order.
func DecodeBatch(ctx context.Context, rows []dataset.MultisendTx, workers int) ([]dataset.ForwardedCall, []dataset.SkippedTx, *DecodeStats, error) {
	outcomes := make([]rowOutcome, len(rows))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(workers, 1))
	for i := range rows {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			outcomes[i] = decodeRow(&rows[i])
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil, nil, err
	}

	stats := &DecodeStats{Rows: len(rows)}
	var (
		forwarded []dataset.ForwardedCall
		skipped   []dataset.SkippedTx
	)
	for _, o := range outcomes {
		if o.notExec {
			stats.NotExecCalls++
		}
		stats.Truncated += o.diags.Count(multisend.DiagTruncatedRecord)
		stats.UnknownOps += o.diags.Count(multisend.DiagUnknownOperation)
		if o.skipped != nil {
			skipped = append(skipped, *o.skipped)
			continue
		}
		stats.Batches++
		forwarded = append(forwarded, o.forwarded...)
	}
	stats.Forwarded = len(forwarded)
	stats.Skipped = len(skipped)

	return forwarded, skipped, stats, nil
}

func decodeRow(row *dataset.MultisendTx) rowOutcome {
	skip := func(reason string) rowOutcome {
		return rowOutcome{skipped: &dataset.SkippedTx{Hash: row.TxHash, Reason: reason}}
	}

	result, diags, err := multisend.DecodeHex(row.Input)
	if err != nil {
		out := skip(err.Error())
		out.notExec = errors.Is(err, multisend.ErrNotExecTransaction)
		return out
	}

	if !result.MultiSend {
		out := skip(diags.String())
		out.diags = diags
		return out
	}
	if len(result.Transactions) == 0 {
		reason := ReasonEmptyBatch
		if len(diags) > 0 {
			reason = fmt.Sprintf("%s: %s", reason, diags.String())
		}
		out := skip(reason)
		out.diags = diags
		return out
	}

	out := rowOutcome{diags: diags}
	for _, tx := range result.Transactions {
		out.forwarded = append(out.forwarded, dataset.ForwardedCall{
			TxHash:             row.TxHash,
			ForwardedToAddress: tx.To.Hex(),
		})
	}
	return out
}

// VerifyOutcome is the round-trip check of one input row
type VerifyOutcome struct {
	TxHash         string
	Match          bool
	MismatchOffset int
	Transactions   int
	Err            error
}

// Status returns a short label for reports
func (o *VerifyOutcome) Status() string {
	switch {
	case o.Err != nil:
		return "ERROR"
	case o.Match:
		return "PASS"
	default:
		return "FAIL"
	}
}

// VerifyBatch re-encodes every row and compares it with the original input
func VerifyBatch(ctx context.Context, rows []dataset.MultisendTx, workers int) ([]VerifyOutcome, error) {
	outcomes := make([]VerifyOutcome, len(rows))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(workers, 1))
	for i := range rows {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			outcomes[i] = verifyRow(&rows[i])
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return outcomes, nil
}

func verifyRow(row *dataset.MultisendTx) VerifyOutcome {
	out := VerifyOutcome{TxHash: row.TxHash, MismatchOffset: -1}

	v, err := multisend.VerifyHex(strings.TrimSpace(row.Input))
	if err != nil {
		out.Err = err
		return out
	}
	out.Match = v.Match
	out.MismatchOffset = v.MismatchOffset
	out.Transactions = len(v.Result.Transactions)
	return out
}
