package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/jonandersen/etrade-cli/internal/chain"
	"github.com/jonandersen/etrade-cli/internal/market"
	"github.com/jonandersen/etrade-cli/internal/output"
	"github.com/jonandersen/etrade-cli/internal/provider"
)

// chainOptions holds dependencies for the chain commands.
type chainOptions struct {
	selector    *provider.Selector
	hasSession  bool
	dataSource  string
	strikeCount int
	timeout     time.Duration
	log         logrus.FieldLogger
	jsonMode    bool
}

type chainLoader func() (chainOptions, error)

// chainParams holds the flags shared by chain and spx.
type chainParams struct {
	expiry      string
	strikeCount int
	provider    string
}

func (p *chainParams) register(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&p.expiry, "expiry", "e", "", "Expiration date (YYYYMMDD, nearest if omitted)")
	cmd.Flags().IntVarP(&p.strikeCount, "strikes", "n", 0, "Number of strikes around the money (default from config)")
	cmd.Flags().StringVarP(&p.provider, "provider", "p", "", "Data source: AUTO, ETRADE, CBOE or NASDAQ (default from config)")
}

func newChainCmd(load chainLoader) *cobra.Command {
	var params chainParams

	cmd := &cobra.Command{
		Use:   "chain SYMBOL",
		Short: "Show an options chain",
		Long: `Show the options chain for a symbol, calls on the left and puts on the right.

The configured data source is used unless --provider is given. AUTO tries
E*TRADE (when credentials are configured), then CBOE, then Nasdaq.

Examples:
  etr chain AAPL
  etr chain AAPL --expiry 20250117 --strikes 10
  etr chain TSLA --provider cboe --json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts, err := load()
			if err != nil {
				return err
			}
			return runChain(cmd, opts, args[0], params)
		},
	}
	params.register(cmd)
	cmd.SilenceUsage = true
	return cmd
}

func newSPXCmd(load chainLoader) *cobra.Command {
	var params chainParams

	cmd := &cobra.Command{
		Use:   "spx",
		Short: "Show the SPX index options chain",
		Long: `Show the SPX index options chain from the configured data source.

Examples:
  etr spx
  etr spx --expiry 20250321 --strikes 40`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			opts, err := load()
			if err != nil {
				return err
			}
			return runSPX(cmd, opts, params)
		},
	}
	params.register(cmd)
	cmd.SilenceUsage = true
	return cmd
}

func (opts chainOptions) newChain(source string) *chain.Chain {
	if source == "" {
		source = opts.dataSource
	}
	return chain.New(opts.selector, source, opts.hasSession,
		chain.WithTimeout(opts.timeout),
		chain.WithLogger(opts.log),
	)
}

func (opts chainOptions) strikes(flag int) int {
	if flag > 0 {
		return flag
	}
	return opts.strikeCount
}

func runChain(cmd *cobra.Command, opts chainOptions, symbol string, params chainParams) error {
	ctx := commandContext(cmd)

	// The configured source stays bound; --provider only overrides this call.
	c := opts.newChain("")
	result := c.GetOptionsChain(ctx, market.ChainRequest{
		Symbol:      symbol,
		Expiry:      params.expiry,
		StrikeCount: opts.strikes(params.strikeCount),
	}, params.provider)

	return writeChain(cmd, opts, result)
}

func runSPX(cmd *cobra.Command, opts chainOptions, params chainParams) error {
	ctx := commandContext(cmd)

	c := opts.newChain(params.provider)
	return writeChain(cmd, opts, c.SPX(ctx, params.expiry, opts.strikes(params.strikeCount)))
}

// commandContext returns the command's context, which is nil when the
// command is executed directly rather than through ExecuteContext.
func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

func writeChain(cmd *cobra.Command, opts chainOptions, result market.ChainResult) error {
	if err := output.New(cmd.OutOrStdout(), opts.jsonMode).Chain(result); err != nil {
		return err
	}
	if !result.OK() {
		return fmt.Errorf("%s", result.Error)
	}
	return nil
}

func newProvidersCmd(load chainLoader) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "providers",
		Short: "List options chain data sources",
		Long: `List the options chain data sources, whether each is available, and
which one the configured data source resolves to.

Examples:
  etr providers
  etr providers --json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			opts, err := load()
			if err != nil {
				return err
			}
			return runProviders(cmd, opts)
		},
	}
	cmd.SilenceUsage = true
	return cmd
}

func runProviders(cmd *cobra.Command, opts chainOptions) error {
	active := ""
	if p, err := opts.selector.Select(opts.dataSource, opts.hasSession); err == nil {
		active = p.Name()
	}

	var rows [][]string
	for _, p := range opts.selector.Providers() {
		available := p.IsAvailable()
		if p.Name() == provider.NamePrimary {
			available = available && opts.hasSession
		}
		marker := ""
		if p.Name() == active {
			marker = "*"
		}
		rows = append(rows, []string{p.Name(), yesNo(available), marker})
	}

	return output.New(cmd.OutOrStdout(), opts.jsonMode).Table([]string{"Provider", "Available", "Active"}, rows)
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}

func loadChainOptions() (chainOptions, error) {
	rt, err := loadRuntime(defaultStore())
	if err != nil {
		return chainOptions{}, err
	}
	return chainOptions{
		selector:    rt.selector(),
		hasSession:  rt.hasSession(),
		dataSource:  rt.cfg.Options.DataSource,
		strikeCount: rt.cfg.Options.StrikeCount,
		timeout:     rt.chainTimeout(),
		log:         rt.log,
		jsonMode:    GetJSONMode(),
	}, nil
}

func init() {
	rootCmd.AddCommand(newChainCmd(loadChainOptions))
	rootCmd.AddCommand(newSPXCmd(loadChainOptions))
	rootCmd.AddCommand(newProvidersCmd(loadChainOptions))
}
