package cmd

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/jonandersen/etrade-cli/internal/config"
	"github.com/jonandersen/etrade-cli/internal/order"
	"github.com/jonandersen/etrade-cli/internal/output"
)

// orderOptions holds dependencies for the order commands.
type orderOptions struct {
	manager        *order.Manager
	accountID      string
	tradingEnabled bool
	jsonMode       bool
}

type orderLoader func() (orderOptions, error)

// orderParams holds the flags of the placement subcommands.
type orderParams struct {
	quantity   int
	limitPrice string
	term       string
}

var errAccountRequired = errors.New("account ID is required (use --account flag or configure default account)")

func newOrderCmd(load orderLoader) *cobra.Command {
	var accountID string

	cmd := &cobra.Command{
		Use:   "order",
		Short: "Place and manage equity orders",
		Long: `Place, cancel, and list equity orders.

Every placement is previewed first and then placed with the preview ID.
Trading must be enabled in the config file (trading_enabled: true).`,
	}
	cmd.PersistentFlags().StringVarP(&accountID, "account", "a", "", "Account ID key (uses default if not specified)")

	withAccount := func() (orderOptions, error) {
		opts, err := load()
		if err != nil {
			return opts, err
		}
		if accountID != "" {
			opts.accountID = accountID
		}
		return opts, nil
	}

	for _, action := range []order.Action{order.ActionBuy, order.ActionSell, order.ActionBuyToCover, order.ActionSellShort} {
		cmd.AddCommand(newOrderPlaceCmd(action, withAccount))
	}
	cmd.AddCommand(newOrderCancelCmd(withAccount))
	cmd.AddCommand(newOrderListCmd(withAccount))
	cmd.AddCommand(newOrderStatusCmd(withAccount))
	return cmd
}

func newOrderPlaceCmd(action order.Action, load orderLoader) *cobra.Command {
	var params orderParams
	var skipConfirm bool

	use := strings.ToLower(strings.ReplaceAll(string(action), "_", "-"))
	verb := strings.ToLower(strings.ReplaceAll(string(action), "_", " "))

	cmd := &cobra.Command{
		Use:   use + " SYMBOL",
		Short: fmt.Sprintf("Place a %s order", verb),
		Long: fmt.Sprintf(`Preview and place a %s order for an equity.

The order is a MARKET order unless --limit is given.

Examples:
  etr order %[2]s AAPL --quantity 10 --yes
  etr order %[2]s AAPL --quantity 10 --limit 175.00 --term IOC --yes`, verb, use),
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts, err := load()
			if err != nil {
				return err
			}
			return runOrder(cmd, opts, args[0], action, params, skipConfirm)
		},
	}
	cmd.Flags().IntVarP(&params.quantity, "quantity", "q", 0, "Number of shares (required)")
	cmd.Flags().StringVarP(&params.limitPrice, "limit", "l", "", "Limit price (makes this a LIMIT order)")
	cmd.Flags().StringVarP(&params.term, "term", "t", "DAY", "Order term: DAY, IOC or FOK")
	cmd.Flags().BoolVarP(&skipConfirm, "yes", "y", false, "Skip confirmation prompt")
	cmd.SilenceUsage = true
	return cmd
}

func runOrder(cmd *cobra.Command, opts orderOptions, symbol string, action order.Action, params orderParams, skipConfirm bool) error {
	if !opts.tradingEnabled {
		return config.ErrTradingDisabled
	}
	if opts.accountID == "" {
		return errAccountRequired
	}

	term, err := order.ParseTerm(params.term)
	if err != nil {
		return err
	}

	req := order.Request{
		AccountIDKey: opts.accountID,
		Symbol:       symbol,
		Action:       action,
		Quantity:     params.quantity,
		PriceType:    order.PriceMarket,
		Term:         term,
	}
	if params.limitPrice != "" {
		limit, err := decimal.NewFromString(params.limitPrice)
		if err != nil {
			return fmt.Errorf("invalid limit price: %s", params.limitPrice)
		}
		req.PriceType = order.PriceLimit
		req.LimitPrice = &limit
	}

	built, err := order.Build(req)
	if err != nil {
		return err
	}

	if !opts.jsonMode {
		w := cmd.OutOrStdout()
		_, _ = fmt.Fprintf(w, "\nOrder Preview:\n")
		_, _ = fmt.Fprintf(w, "  Action:   %s\n", built.Action)
		_, _ = fmt.Fprintf(w, "  Symbol:   %s\n", built.Symbol)
		_, _ = fmt.Fprintf(w, "  Quantity: %d\n", built.Quantity)
		_, _ = fmt.Fprintf(w, "  Type:     %s\n", built.PriceType)
		if built.LimitPrice != nil {
			_, _ = fmt.Fprintf(w, "  Limit:    $%s\n", built.LimitPrice.StringFixed(2))
		}
		_, _ = fmt.Fprintf(w, "  Term:     %s\n", built.Term)
		_, _ = fmt.Fprintf(w, "  Account:  %s\n\n", built.AccountIDKey)
	}

	if !skipConfirm {
		return fmt.Errorf("order requires confirmation (use --yes to confirm)")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	result := opts.manager.Submit(ctx, req)
	if err := output.New(cmd.OutOrStdout(), opts.jsonMode).OrderResult(result); err != nil {
		return err
	}
	if !result.Success {
		return fmt.Errorf("%s", result.Error)
	}
	return nil
}

func newOrderCancelCmd(load orderLoader) *cobra.Command {
	var skipConfirm bool

	cmd := &cobra.Command{
		Use:   "cancel ORDER_ID",
		Short: "Cancel an open order",
		Long: `Cancel an open order by its order ID.

Examples:
  etr order cancel 1234        # Cancel order (requires confirmation)
  etr order cancel 1234 --yes  # Skip confirmation`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts, err := load()
			if err != nil {
				return err
			}
			return runCancelOrder(cmd, opts, args[0], skipConfirm)
		},
	}
	cmd.Flags().BoolVarP(&skipConfirm, "yes", "y", false, "Skip confirmation prompt")
	cmd.SilenceUsage = true
	return cmd
}

func runCancelOrder(cmd *cobra.Command, opts orderOptions, orderID string, skipConfirm bool) error {
	if !opts.tradingEnabled {
		return config.ErrTradingDisabled
	}
	if opts.accountID == "" {
		return errAccountRequired
	}

	if !opts.jsonMode {
		_, _ = fmt.Fprintf(cmd.OutOrStdout(), "\nCancel Order:\n")
		_, _ = fmt.Fprintf(cmd.OutOrStdout(), "  Order ID: %s\n\n", orderID)
	}

	if !skipConfirm {
		return fmt.Errorf("cancel requires confirmation (use --yes to confirm)")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	result := opts.manager.Cancel(ctx, opts.accountID, orderID)
	if err := output.New(cmd.OutOrStdout(), opts.jsonMode).CancelResult(result); err != nil {
		return err
	}
	if !result.Success {
		return fmt.Errorf("failed to cancel order %s: %s", result.OrderID, result.Error)
	}
	return nil
}

func newOrderListCmd(load orderLoader) *cobra.Command {
	var status string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List orders",
		Long: fmt.Sprintf(`List the account's orders with the given status.

Status values: %s

Examples:
  etr order list                   # List open orders
  etr order list --status executed
  etr order list --json`, strings.Join(order.Statuses, ", ")),
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			opts, err := load()
			if err != nil {
				return err
			}
			return runOrderList(cmd, opts, status)
		},
	}
	cmd.Flags().StringVarP(&status, "status", "s", order.StatusOpen, "Order status to list")
	cmd.SilenceUsage = true
	return cmd
}

func runOrderList(cmd *cobra.Command, opts orderOptions, status string) error {
	if opts.accountID == "" {
		return errAccountRequired
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	return writeOrders(cmd, opts, opts.manager.ListOrders(ctx, opts.accountID, status))
}

func newOrderStatusCmd(load orderLoader) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status ORDER_ID",
		Short: "Check the status of an order",
		Long: `Check the status of an order by its order ID.

Examples:
  etr order status 1234`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts, err := load()
			if err != nil {
				return err
			}
			return runOrderStatus(cmd, opts, args[0])
		},
	}
	cmd.SilenceUsage = true
	return cmd
}

func runOrderStatus(cmd *cobra.Command, opts orderOptions, orderID string) error {
	if opts.accountID == "" {
		return errAccountRequired
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	return writeOrders(cmd, opts, opts.manager.GetOrder(ctx, opts.accountID, orderID))
}

func writeOrders(cmd *cobra.Command, opts orderOptions, result order.OrdersResult) error {
	if err := output.New(cmd.OutOrStdout(), opts.jsonMode).Orders(result); err != nil {
		return err
	}
	if !result.Success {
		return fmt.Errorf("%s", result.Error)
	}
	return nil
}

func loadOrderOptions() (orderOptions, error) {
	rt, err := loadRuntime(defaultStore())
	if err != nil {
		return orderOptions{}, fmt.Errorf("failed to load config: %w", err)
	}
	if !rt.hasSession() {
		return orderOptions{}, errNoCredentials
	}
	return orderOptions{
		manager:        order.NewManager(rt.brokerage, order.WithLogger(rt.log)),
		accountID:      rt.cfg.AccountIDKey,
		tradingEnabled: rt.cfg.TradingEnabled,
		jsonMode:       GetJSONMode(),
	}, nil
}

func init() {
	rootCmd.AddCommand(newOrderCmd(loadOrderOptions))
}
