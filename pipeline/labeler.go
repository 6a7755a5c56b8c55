package pipeline

import (
	"context"
	"io"

	"github.com/ethereum/go-ethereum/common"
	"github.com/mitchhs12/safe-top-protocols/dataset"
	"github.com/mitchhs12/safe-top-protocols/etherscan"
	"github.com/schollz/progressbar/v3"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

// Placeholder values written when a lookup does not apply or fails
const (
	SymbolNotApplicable = "N/A"
	SymbolNotFound      = "Symbol not found"
)

// ContractInfoSource resolves the label and type of a contract
type ContractInfoSource interface {
	ContractInfo(ctx context.Context, addr common.Address) (*etherscan.ContractInfo, error)
}

// SymbolSource reads an ERC20 token symbol
type SymbolSource interface {
	TokenSymbol(ctx context.Context, token common.Address) (string, error)
}

func newProgressBar(out io.Writer, total int, description string) *progressbar.ProgressBar {
	if out == nil {
		out = io.Discard
	}
	return progressbar.NewOptions(total,
		progressbar.OptionSetWriter(out),
		progressbar.OptionSetDescription(description),
		progressbar.OptionShowCount(),
		progressbar.OptionSetPredictTime(true),
		progressbar.OptionClearOnFinish(),
	)
}

// Labeler fills Label and ContractType for every row
type Labeler struct {
	source   ContractInfoSource
	workers  int
	progress io.Writer
	logger   *zap.Logger
}

// NewLabeler creates a Labeler. Progress is drawn on progress when it is not nil.
func NewLabeler(source ContractInfoSource, workers int, progress io.Writer, l *zap.Logger) *Labeler {
	return &Labeler{source: source, workers: max(workers, 1), progress: progress, logger: l}
}

// Label looks up every row. Lookup failures are recorded in the row, only
// cancellation aborts the run.
func (lb *Labeler) Label(ctx context.Context, rows []dataset.TopContract) ([]dataset.TopContract, error) {
	out := make([]dataset.TopContract, len(rows))
	copy(out, rows)

	bar := newProgressBar(lb.progress, len(rows), "Labelling contracts")
	defer bar.Close()

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(lb.workers)
	for i := range out {
		g.Go(func() error {
			defer func() { _ = bar.Add(1) }()

			row := &out[i]
			if !common.IsHexAddress(row.DestinationContract) {
				lb.logger.Sugar().Warnw("Skipping invalid address", zap.String("address", row.DestinationContract))
				row.Label = string(etherscan.TypeUnknown)
				row.ContractType = string(etherscan.TypeUnknown)
				return nil
			}

			info, err := lb.source.ContractInfo(gctx, common.HexToAddress(row.DestinationContract))
			if ctxErr := gctx.Err(); ctxErr != nil {
				return ctxErr
			}
			if err != nil {
				lb.logger.Sugar().Warnw("Contract lookup failed",
					zap.String("address", row.DestinationContract),
					zap.Error(err),
				)
			}
			if info != nil {
				row.Label = info.Label
				row.ContractType = string(info.Type)
			}
			lb.logger.Sugar().Debugw("Labelled contract",
				zap.String("address", row.DestinationContract),
				zap.String("label", row.Label),
				zap.String("type", row.ContractType),
			)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// SymbolFetcher fills TokenSymbol for ERC20 rows
type SymbolFetcher struct {
	source   SymbolSource
	limiter  *rate.Limiter
	workers  int
	progress io.Writer
	logger   *zap.Logger
}

// NewSymbolFetcher creates a SymbolFetcher issuing at most rps calls per second
func NewSymbolFetcher(source SymbolSource, workers int, rps float64, progress io.Writer, l *zap.Logger) *SymbolFetcher {
	burst := max(int(rps), 1)
	return &SymbolFetcher{
		source:   source,
		limiter:  rate.NewLimiter(rate.Limit(rps), burst),
		workers:  max(workers, 1),
		progress: progress,
		logger:   l,
	}
}

// Fetch sets TokenSymbol on every row: the symbol for ERC20 tokens,
// SymbolNotFound when the call fails and SymbolNotApplicable otherwise.
func (sf *SymbolFetcher) Fetch(ctx context.Context, rows []dataset.TopContract) ([]dataset.TopContract, error) {
	out := make([]dataset.TopContract, len(rows))
	copy(out, rows)

	bar := newProgressBar(sf.progress, len(rows), "Fetching symbols")
	defer bar.Close()

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(sf.workers)
	for i := range out {
		g.Go(func() error {
			defer func() { _ = bar.Add(1) }()

			row := &out[i]
			if row.ContractType != string(etherscan.TypeERC20) {
				row.TokenSymbol = SymbolNotApplicable
				return nil
			}
			if !common.IsHexAddress(row.DestinationContract) {
				row.TokenSymbol = SymbolNotFound
				return nil
			}

			if err := sf.limiter.Wait(gctx); err != nil {
				return err
			}
			symbol, err := sf.source.TokenSymbol(gctx, common.HexToAddress(row.DestinationContract))
			if ctxErr := gctx.Err(); ctxErr != nil {
				return ctxErr
			}
			if err != nil {
				sf.logger.Sugar().Debugw("Symbol lookup failed",
					zap.String("address", row.DestinationContract),
					zap.Error(err),
				)
				row.TokenSymbol = SymbolNotFound
				return nil
			}
			row.TokenSymbol = symbol
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}
