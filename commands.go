package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/ethereum/go-ethereum/common"
	"github.com/mitchhs12/safe-top-protocols/chain"
	"github.com/mitchhs12/safe-top-protocols/config"
	"github.com/mitchhs12/safe-top-protocols/dataset"
	"github.com/mitchhs12/safe-top-protocols/dune"
	"github.com/mitchhs12/safe-top-protocols/etherscan"
	"github.com/mitchhs12/safe-top-protocols/logger"
	"github.com/mitchhs12/safe-top-protocols/multisend"
	"github.com/mitchhs12/safe-top-protocols/pipeline"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// app holds what every command needs once flags are parsed
type app struct {
	v      *viper.Viper
	cfg    *config.Config
	logger *zap.Logger
}

func newRootCmd() *cobra.Command {
	a := &app{v: viper.New()}

	root := &cobra.Command{
		Use:               "safe-top-protocols",
		Short:             "Rank the contracts Safe wallets interact with, including calls inside multiSend batches",
		SilenceUsage:      true,
		PersistentPreRunE: a.setup,
	}

	flags := root.PersistentFlags()
	flags.String("env", "", "Path to .env file (default: .env in current directory)")
	flags.Bool(config.Debug, false, `"true" or "false"`)
	flags.String(config.Network, "mainnet", "Network preset (local, mainnet, sepolia, holesky)")
	flags.String(config.DataDir, "data", "Directory holding pipeline CSV files")
	flags.Int(config.Workers, 10, "Concurrent workers for decoding and lookups")
	flags.Float64(config.RequestsPerSecond, 10, "Requests per second for Etherscan and RPC lookups")

	config.BindEnv(a.v)
	flags.VisitAll(func(f *pflag.Flag) {
		if f.Name == "env" {
			return
		}
		a.v.BindPFlag(f.Name, f) //nolint:errcheck
	})

	root.AddCommand(
		a.decodeCmd(),
		a.verifyCmd(),
		a.selfcheckCmd(),
		a.fetchCmd(),
		a.decodeFileCmd(),
		a.combineCmd(),
		a.topContractsCmd(),
		a.labelCmd(),
		a.symbolsCmd(),
		a.enrichCmd(),
		a.filterCmd(),
		a.presetsCmd(),
	)
	return root
}

func (a *app) setup(cmd *cobra.Command, _ []string) error {
	cfg, err := config.NewConfig(a.v)
	if err != nil {
		return err
	}
	l, err := logger.NewLogger(&logger.LoggerConfig{Debug: cfg.Debug})
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	a.cfg = cfg
	a.logger = l
	return nil
}

func (a *app) chainClient(ctx context.Context) (*chain.Client, error) {
	if err := a.cfg.RequireRPC(); err != nil {
		return nil, err
	}
	return chain.NewClient(ctx, &chain.ClientConfig{RPCURL: a.cfg.RPCURL}, a.logger)
}

func (a *app) duneClient() (*dune.Client, error) {
	return dune.NewClient(&dune.ClientConfig{
		APIKey:  a.cfg.DuneAPIKey,
		BaseURL: a.cfg.DuneBaseURL,
	}, a.logger)
}

// callData returns the hex argument or, with a transaction hash, the input
// fetched from the node
func (a *app) callData(ctx context.Context, args []string, txHash string) ([]byte, error) {
	if txHash != "" {
		if len(args) > 0 {
			return nil, errors.New("pass either call data or --tx, not both")
		}
		client, err := a.chainClient(ctx)
		if err != nil {
			return nil, err
		}
		defer client.Close()
		return client.TransactionInput(ctx, common.HexToHash(txHash))
	}
	if len(args) != 1 {
		return nil, errors.New("call data argument or --tx is required")
	}
	return multisend.ParseHex(args[0])
}

func (a *app) decodeCmd() *cobra.Command {
	var txHash string
	cmd := &cobra.Command{
		Use:   "decode [calldata]",
		Short: "Decode one execTransaction call and its multiSend batch",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := a.callData(cmd.Context(), args, txHash)
			if err != nil {
				return err
			}
			result, diags, err := multisend.Decode(raw)
			if err != nil {
				return err
			}
			fmt.Fprint(cmd.OutOrStdout(), multisend.FormatResult(result, diags))
			return nil
		},
	}
	cmd.Flags().StringVar(&txHash, "tx", "", "Transaction hash to fetch over RPC")
	return cmd
}

func (a *app) verifyCmd() *cobra.Command {
	var (
		txHash   string
		fromFile bool
	)
	cmd := &cobra.Command{
		Use:   "verify [calldata]",
		Short: "Decode and re-encode call data, reporting the first mismatching byte",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if fromFile {
				return a.verifyFile(cmd.Context(), cmd.OutOrStdout())
			}
			raw, err := a.callData(cmd.Context(), args, txHash)
			if err != nil {
				return err
			}
			v, err := multisend.Verify(raw)
			if err != nil {
				return err
			}
			fmt.Fprint(cmd.OutOrStdout(), multisend.FormatVerification(v))
			if !v.Match {
				return fmt.Errorf("re-encoding differs at byte %d", v.MismatchOffset)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&txHash, "tx", "", "Transaction hash to fetch over RPC")
	cmd.Flags().BoolVar(&fromFile, "file", false, "Verify every row of the fetched multiSend transactions file")
	return cmd
}

func (a *app) verifyFile(ctx context.Context, out io.Writer) error {
	rows, err := dataset.ReadCSV[dataset.MultisendTx](a.cfg.Path(config.MultisendTransactionsFile))
	if err != nil {
		return err
	}
	outcomes, err := pipeline.VerifyBatch(ctx, rows, a.cfg.Workers)
	if err != nil {
		return err
	}
	fmt.Fprint(out, pipeline.FormatSummary(&pipeline.Summary{
		Title:   "multiSend Re-encoding Report",
		Network: a.cfg.Network,
		Verify:  outcomes,
	}))

	counts := pipeline.CountVerifications(outcomes)
	if counts.Failed > 0 {
		return fmt.Errorf("%d of %d transactions did not re-encode to their original bytes", counts.Failed, counts.Total)
	}
	return nil
}

func (a *app) selfcheckCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "selfcheck",
		Short: "Check codec constants and a known round trip",
		RunE: func(cmd *cobra.Command, _ []string) error {
			results := pipeline.QuickVerify()
			fmt.Fprint(cmd.OutOrStdout(), pipeline.FormatQuickVerify(results))
			for _, r := range results {
				if !r.Passed {
					return fmt.Errorf("self check %s failed", r.Name)
				}
			}
			return nil
		},
	}
}

func (a *app) fetchCmd() *cobra.Command {
	var latest bool
	cmd := &cobra.Command{
		Use:   "fetch",
		Short: "Run the saved Dune queries and store their CSV results",
		RunE: func(cmd *cobra.Command, _ []string) error {
			queries := []struct {
				key  string
				file string
			}{
				{config.DuneQueryAllContracts, config.AllContractsFile},
				{config.DuneQueryMultisend, config.MultisendTransactionsFile},
				{config.DuneQueryExcludingMultisend, config.ExcludingMultisendsFile},
			}

			keys := make([]string, len(queries))
			for i, q := range queries {
				keys[i] = q.key
			}
			if err := a.cfg.RequireDune(keys...); err != nil {
				return err
			}
			client, err := a.duneClient()
			if err != nil {
				return err
			}

			for _, q := range queries {
				id := a.cfg.QueryID(q.key)
				var body []byte
				if latest {
					body, err = client.LatestResult(cmd.Context(), id)
				} else {
					body, err = client.RunQuery(cmd.Context(), id)
				}
				if err != nil {
					return err
				}
				path := a.cfg.Path(q.file)
				if err := dataset.WriteRaw(path, body); err != nil {
					return err
				}
				a.logger.Sugar().Infow("Saved query result", zap.String("query", id), zap.String("path", path))
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&latest, "latest", false, "Download the latest cached results instead of executing the queries")
	return cmd
}

func (a *app) decodeFileCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "decode-file",
		Short: "Decode every fetched multiSend transaction into forwarded destinations",
		RunE: func(cmd *cobra.Command, _ []string) error {
			rows, err := dataset.ReadCSV[dataset.MultisendTx](a.cfg.Path(config.MultisendTransactionsFile))
			if err != nil {
				return err
			}
			a.logger.Sugar().Infow("Decoding transactions", zap.Int("rows", len(rows)), zap.Int("workers", a.cfg.Workers))

			forwarded, skipped, stats, err := pipeline.DecodeBatch(cmd.Context(), rows, a.cfg.Workers)
			if err != nil {
				return err
			}
			if err := dataset.WriteCSV(a.cfg.Path(config.DecodedFile), forwarded); err != nil {
				return err
			}
			if err := dataset.WriteCSV(a.cfg.Path(config.SkippedFile), skipped); err != nil {
				return err
			}

			fmt.Fprint(cmd.OutOrStdout(), pipeline.FormatSummary(&pipeline.Summary{
				Title:   "multiSend Decoding Report",
				Network: a.cfg.Network,
				Decode:  stats,
				Skipped: skipped,
			}))
			return nil
		},
	}
}

func (a *app) combineCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "combine",
		Short: "Merge direct interaction counts with forwarded multiSend destinations",
		RunE: func(cmd *cobra.Command, _ []string) error {
			direct, err := dataset.ReadCSV[dataset.ContractCount](a.cfg.Path(config.ExcludingMultisendsFile))
			if err != nil {
				return err
			}
			forwarded, err := dataset.ReadCSV[dataset.ForwardedCall](a.cfg.Path(config.DecodedFile))
			if err != nil {
				return err
			}

			combined := pipeline.Combine(direct, forwarded)
			path := a.cfg.Path(config.CombinedFile)
			if err := dataset.WriteCSV(path, combined); err != nil {
				return err
			}
			a.logger.Sugar().Infow("Combined interaction counts",
				zap.Int("direct", len(direct)),
				zap.Int("forwarded", len(forwarded)),
				zap.Int("addresses", len(combined)),
				zap.String("path", path),
			)
			return nil
		},
	}
}

func (a *app) topContractsCmd() *cobra.Command {
	var (
		fromCombined bool
		limit        int
	)
	cmd := &cobra.Command{
		Use:   "top-contracts",
		Short: "Download the ranked destination list from Dune or derive it from the combined counts",
		RunE: func(cmd *cobra.Command, _ []string) error {
			path := a.cfg.Path(config.TopContractsFile)

			if fromCombined {
				combined, err := dataset.ReadCSV[dataset.CombinedCount](a.cfg.Path(config.CombinedFile))
				if err != nil {
					return err
				}
				return dataset.WriteCSV(path, pipeline.Top(combined, limit))
			}

			if err := a.cfg.RequireDune(config.DuneQueryTopContracts); err != nil {
				return err
			}
			client, err := a.duneClient()
			if err != nil {
				return err
			}
			body, err := client.LatestResult(cmd.Context(), a.cfg.Queries.TopContracts)
			if err != nil {
				return err
			}
			return dataset.WriteRaw(path, body)
		},
	}
	cmd.Flags().BoolVar(&fromCombined, "from-combined", false, "Rank from the local combined counts instead of Dune")
	cmd.Flags().IntVar(&limit, "limit", 100, "Number of contracts to keep with --from-combined (0 keeps all)")
	return cmd
}

func (a *app) labelCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "label",
		Short: "Label top contracts and classify them from Etherscan",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := a.cfg.RequireEtherscan(); err != nil {
				return err
			}
			client, err := etherscan.NewClient(&etherscan.ClientConfig{
				APIKey:            a.cfg.EtherscanAPIKey,
				URL:               a.cfg.EtherscanURL,
				RequestsPerSecond: a.cfg.RequestsPerSecond,
			}, a.logger)
			if err != nil {
				return err
			}

			rows, err := dataset.ReadCSV[dataset.TopContract](a.cfg.Path(config.TopContractsFile))
			if err != nil {
				return err
			}
			labelled, err := pipeline.NewLabeler(client, a.cfg.Workers, os.Stderr, a.logger).Label(cmd.Context(), rows)
			if err != nil {
				return err
			}
			return dataset.WriteCSV(a.cfg.Path(config.LabeledContractsFile), labelled)
		},
	}
}

func (a *app) symbolsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "symbols",
		Short: "Read ERC20 symbols for contracts labelled as tokens",
		RunE: func(cmd *cobra.Command, _ []string) error {
			client, err := a.chainClient(cmd.Context())
			if err != nil {
				return err
			}
			defer client.Close()

			rows, err := dataset.ReadCSV[dataset.TopContract](a.cfg.Path(config.LabeledContractsFile))
			if err != nil {
				return err
			}
			fetcher := pipeline.NewSymbolFetcher(client, a.cfg.Workers, a.cfg.RequestsPerSecond, os.Stderr, a.logger)
			withSymbols, err := fetcher.Fetch(cmd.Context(), rows)
			if err != nil {
				return err
			}
			return dataset.WriteCSV(a.cfg.Path(config.SymbolContractsFile), withSymbols)
		},
	}
}

func (a *app) enrichCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "enrich",
		Short: "Apply custom account and token label lists",
		RunE: func(cmd *cobra.Command, _ []string) error {
			rows, err := dataset.ReadCSV[dataset.TopContract](a.cfg.Path(config.SymbolContractsFile))
			if err != nil {
				return err
			}
			accounts, err := dataset.ReadCSV[dataset.LabelEntry](a.cfg.Path(config.AccountLabelsFile))
			if err != nil {
				return err
			}
			tokens, err := dataset.ReadCSV[dataset.LabelEntry](a.cfg.Path(config.TokenLabelsFile))
			if err != nil {
				return err
			}

			enriched := pipeline.Enrich(rows, accounts, tokens)
			if err := dataset.WriteCSV(a.cfg.Path(config.FinalDataFile), enriched); err != nil {
				return err
			}
			fmt.Fprint(cmd.OutOrStdout(), pipeline.FormatSummary(&pipeline.Summary{
				Title:   "Top Safe Destinations",
				Network: a.cfg.Network,
				Top:     enriched,
			}))
			return nil
		},
	}
}

func (a *app) filterCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "filter",
		Short: "Drop ERC20 token rows, keeping protocols",
		RunE: func(cmd *cobra.Command, _ []string) error {
			rows, err := dataset.ReadCSV[dataset.TopContract](a.cfg.Path(config.FinalDataFile))
			if err != nil {
				return err
			}
			protocols := pipeline.FilterTokens(rows)
			if err := dataset.WriteCSV(a.cfg.Path(config.FilteredProtocolsFile), protocols); err != nil {
				return err
			}
			a.logger.Sugar().Infow("Removed ERC20 tokens",
				zap.Int("removed", len(rows)-len(protocols)),
				zap.Int("remaining", len(protocols)),
			)
			return nil
		},
	}
}

func (a *app) presetsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "presets",
		Short: "List available network presets",
		Run: func(cmd *cobra.Command, _ []string) {
			config.PrintPresets()
		},
	}
}
