package output

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/jonandersen/etrade-cli/internal/market"
	"github.com/jonandersen/etrade-cli/internal/order"
)

// ATMMarker prefixes at-the-money strikes in the chain table.
const ATMMarker = "*"

var volumePrinter = message.NewPrinter(language.English)

var chainHeaders = []string{
	"Call Bid", "Call Ask", "Call Last", "Call Vol", "Call OI",
	"Strike",
	"Put Bid", "Put Ask", "Put Last", "Put Vol", "Put OI",
}

// Chain writes an options chain as a straddle table (calls left, puts right)
// or, in JSON mode, as the chain result document.
func (f *Formatter) Chain(r market.ChainResult) error {
	if f.JSONMode {
		return f.Print(r)
	}
	if !r.OK() {
		return fmt.Errorf("%s", r.Error)
	}

	expiry := r.Expiry
	if expiry == "" {
		expiry = "nearest"
	}
	if _, err := fmt.Fprintf(f.Writer, "%s options, expiry %s, underlying %s (source: %s)\n\n",
		r.Symbol, expiry, FormatPrice(r.UnderlyingPrice), r.Provider); err != nil {
		return err
	}

	if len(r.Strikes) == 0 {
		_, err := fmt.Fprintln(f.Writer, "No strikes returned")
		return err
	}

	rows := make([][]string, 0, len(r.Strikes))
	for _, strike := range r.Strikes {
		row := make([]string, 0, len(chainHeaders))
		row = append(row, contractCells(r.Call(strike))...)
		label := strike.String()
		if r.IsATM(strike) {
			label = ATMMarker + label
		}
		row = append(row, label)
		row = append(row, contractCells(r.Put(strike))...)
		rows = append(rows, row)
	}
	if err := f.tableAsText(chainHeaders, rows); err != nil {
		return err
	}

	_, err := fmt.Fprintf(f.Writer, "\n%s at the money (within 1%% of underlying)\n", ATMMarker)
	return err
}

func contractCells(c market.OptionContract, ok bool) []string {
	if !ok {
		return []string{"-", "-", "-", "-", "-"}
	}
	return []string{
		FormatPrice(c.Bid),
		FormatPrice(c.Ask),
		FormatPrice(c.Last),
		FormatVolume(c.Volume),
		FormatVolume(c.OpenInterest),
	}
}

// OrderResult writes the outcome of an order submission.
func (f *Formatter) OrderResult(r order.Result) error {
	if f.JSONMode {
		return f.Print(r)
	}
	if !r.Success {
		return fmt.Errorf("%s", r.Error)
	}

	w := f.Writer
	_, _ = fmt.Fprintf(w, "Order placed successfully\n\n")
	_, _ = fmt.Fprintf(w, "Order ID:        %s\n", r.OrderID)
	_, _ = fmt.Fprintf(w, "Preview ID:      %s\n", r.PreviewID)
	_, _ = fmt.Fprintf(w, "Client Order ID: %s\n", r.ClientOrderID)
	_, _ = fmt.Fprintf(w, "Symbol:          %s\n", r.Symbol)
	_, _ = fmt.Fprintf(w, "Action:          %s\n", r.Action)
	_, _ = fmt.Fprintf(w, "Quantity:        %d\n", r.Quantity)
	if r.EstimatedTotal != nil {
		_, _ = fmt.Fprintf(w, "Est. Total:      %s\n", FormatPrice(*r.EstimatedTotal))
	}
	if r.EstimatedCommission != nil {
		_, _ = fmt.Fprintf(w, "Est. Commission: %s\n", FormatPrice(*r.EstimatedCommission))
	}
	return nil
}

// CancelResult writes the outcome of an order cancellation.
func (f *Formatter) CancelResult(r order.CancelResult) error {
	if f.JSONMode {
		return f.Print(r)
	}
	if !r.Success {
		return fmt.Errorf("failed to cancel order %s: %s", r.OrderID, r.Error)
	}
	_, err := fmt.Fprintf(f.Writer, "Cancellation requested for order %s\n", r.OrderID)
	return err
}

var orderHeaders = []string{"Order ID", "Status", "Symbol", "Action", "Qty", "Filled", "Type", "Limit", "Term"}

// Orders writes an order listing.
func (f *Formatter) Orders(r order.OrdersResult) error {
	if f.JSONMode {
		return f.Print(r)
	}
	if !r.Success {
		return fmt.Errorf("%s", r.Error)
	}
	if len(r.Orders) == 0 {
		status := strings.ToLower(r.Status)
		if status == "" {
			status = "matching"
		}
		_, err := fmt.Fprintf(f.Writer, "No %s orders\n", status)
		return err
	}

	rows := make([][]string, 0, len(r.Orders))
	for _, o := range r.Orders {
		limit := "-"
		if o.LimitPrice != nil {
			limit = FormatPrice(*o.LimitPrice)
		}
		rows = append(rows, []string{
			o.OrderID, o.Status, o.Symbol, o.Action,
			o.Quantity.String(), o.FilledQuantity.String(),
			o.PriceType, limit, o.Term,
		})
	}
	return f.tableAsText(orderHeaders, rows)
}

// FormatPrice renders a price with two decimals, or "-" when zero.
func FormatPrice(d decimal.Decimal) string {
	if d.IsZero() {
		return "-"
	}
	return d.StringFixed(2)
}

// FormatVolume formats a volume number with thousand separators, or "-" when
// zero.
func FormatVolume(vol int64) string {
	if vol == 0 {
		return "-"
	}
	return volumePrinter.Sprintf("%d", vol)
}
