// Package order builds, previews, places and cancels equity orders against
// the brokerage through a signed session.
package order

import (
	"fmt"
	"math/rand/v2"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/jonandersen/etrade-cli/pkg/etradeapi"
)

// Action is the order action.
type Action string

const (
	ActionBuy        Action = "BUY"
	ActionSell       Action = "SELL"
	ActionBuyToCover Action = "BUY_TO_COVER"
	ActionSellShort  Action = "SELL_SHORT"
)

// PriceType is the order price type.
type PriceType string

const (
	PriceMarket PriceType = "MARKET"
	PriceLimit  PriceType = "LIMIT"
)

// Term is the order time in force.
type Term string

const (
	TermGoodForDay        Term = "GOOD_FOR_DAY"
	TermImmediateOrCancel Term = "IMMEDIATE_OR_CANCEL"
	TermFillOrKill        Term = "FILL_OR_KILL"
)

// Request is an equity order. ClientOrderID is assigned by Build and need
// not be set by callers.
type Request struct {
	AccountIDKey  string           `json:"account_id_key"`
	Symbol        string           `json:"symbol"`
	Action        Action           `json:"action"`
	Quantity      int              `json:"quantity"`
	PriceType     PriceType        `json:"price_type"`
	LimitPrice    *decimal.Decimal `json:"limit_price,omitempty"`
	Term          Term             `json:"order_term"`
	ClientOrderID string           `json:"client_order_id,omitempty"`
}

// ParseAction accepts BUY, SELL, BUY_TO_COVER and SELL_SHORT, case-insensitive,
// with dashes or underscores.
func ParseAction(s string) (Action, error) {
	a := Action(normalizeEnum(s))
	switch a {
	case ActionBuy, ActionSell, ActionBuyToCover, ActionSellShort:
		return a, nil
	}
	return "", validationError(fmt.Sprintf("invalid order action %q (use BUY, SELL, BUY_TO_COVER or SELL_SHORT)", s))
}

// ParseTerm accepts the order terms plus the DAY, IOC and FOK shorthands.
func ParseTerm(s string) (Term, error) {
	switch normalizeEnum(s) {
	case "", "DAY", string(TermGoodForDay):
		return TermGoodForDay, nil
	case "IOC", string(TermImmediateOrCancel):
		return TermImmediateOrCancel, nil
	case "FOK", string(TermFillOrKill):
		return TermFillOrKill, nil
	}
	return "", validationError(fmt.Sprintf("invalid order term %q (use GOOD_FOR_DAY, IMMEDIATE_OR_CANCEL or FILL_OR_KILL)", s))
}

// Build validates req and returns a normalized copy (upper-cased symbol and
// enums, MARKET and GOOD_FOR_DAY defaults) with a fresh
// ClientOrderID. It performs no network I/O.
func Build(req Request) (*Request, error) {
	built := req
	built.AccountIDKey = strings.TrimSpace(req.AccountIDKey)
	built.Symbol = strings.ToUpper(strings.TrimSpace(req.Symbol))
	built.Action = Action(normalizeEnum(string(req.Action)))
	built.PriceType = PriceType(normalizeEnum(string(req.PriceType)))
	built.Term = Term(normalizeEnum(string(req.Term)))
	if built.PriceType == "" {
		built.PriceType = PriceMarket
	}
	if built.Term == "" {
		built.Term = TermGoodForDay
	}

	if err := built.validate(); err != nil {
		return nil, err
	}

	built.ClientOrderID = NewClientOrderID()
	return &built, nil
}

func (r *Request) validate() error {
	if r.AccountIDKey == "" {
		return validationError("account ID key is required")
	}
	if r.Symbol == "" {
		return validationError("symbol is required")
	}
	switch r.Action {
	case ActionBuy, ActionSell, ActionBuyToCover, ActionSellShort:
	default:
		return validationError(fmt.Sprintf("invalid order action %q (use BUY, SELL, BUY_TO_COVER or SELL_SHORT)", r.Action))
	}
	if r.Quantity <= 0 {
		return validationError(fmt.Sprintf("quantity must be greater than zero, got %d", r.Quantity))
	}

	switch r.PriceType {
	case PriceMarket:
		if r.LimitPrice != nil {
			return validationError("limit price is only allowed for LIMIT orders")
		}
	case PriceLimit:
		if r.LimitPrice == nil {
			return validationError("limit price is required for LIMIT orders")
		}
		if !r.LimitPrice.IsPositive() {
			return validationError(fmt.Sprintf("limit price must be greater than zero, got %s", r.LimitPrice))
		}
	default:
		return validationError(fmt.Sprintf("invalid price type %q (use MARKET or LIMIT)", r.PriceType))
	}

	switch r.Term {
	case TermGoodForDay, TermImmediateOrCancel, TermFillOrKill:
	default:
		return validationError(fmt.Sprintf("invalid order term %q", r.Term))
	}
	return nil
}

// NewClientOrderID returns a random 10-digit identifier. Collisions are
// unlikely but not impossible.
func NewClientOrderID() string {
	return strconv.FormatInt(1_000_000_000+rand.Int64N(9_000_000_000), 10)
}

func normalizeEnum(s string) string {
	return strings.ReplaceAll(strings.ToUpper(strings.TrimSpace(s)), "-", "_")
}

func validationError(msg string) error {
	return etradeapi.NewError(etradeapi.KindValidation, "", msg, nil)
}
