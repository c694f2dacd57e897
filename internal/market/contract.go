// Package market defines the canonical options-chain shapes every data
// provider normalizes into, plus the strike-window and at-the-money rules
// shared by all of them.
package market

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// ExpiryLayout is the wire format of an expiry date (YYYYMMDD).
const ExpiryLayout = "20060102"

// DefaultStrikeCount is used when a request does not specify a strike count.
const DefaultStrikeCount = 20

// Side is the option side of a contract.
type Side int

const (
	SideUnknown Side = iota
	SideCall
	SidePut
)

// String returns CALL, PUT or an empty string.
func (s Side) String() string {
	switch s {
	case SideCall:
		return "CALL"
	case SidePut:
		return "PUT"
	default:
		return ""
	}
}

// ParseSide maps an explicit type field (CALL, C, PUT, P in any case) to a Side.
func ParseSide(s string) Side {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "CALL", "C":
		return SideCall
	case "PUT", "P":
		return SidePut
	default:
		return SideUnknown
	}
}

// Greeks holds the option sensitivities. Sources that omit them yield zeros.
type Greeks struct {
	Delta decimal.Decimal `json:"delta"`
	Gamma decimal.Decimal `json:"gamma"`
	Theta decimal.Decimal `json:"theta"`
	Vega  decimal.Decimal `json:"vega"`
}

// OptionContract is one call or put at one strike. Values are copied into the
// ChainResult that holds them and are not mutated afterwards.
type OptionContract struct {
	Symbol            string          `json:"symbol"`
	Strike            decimal.Decimal `json:"strike"`
	Bid               decimal.Decimal `json:"bid"`
	Ask               decimal.Decimal `json:"ask"`
	Last              decimal.Decimal `json:"last"`
	Volume            int64           `json:"volume"`
	OpenInterest      int64           `json:"open_interest"`
	ImpliedVolatility decimal.Decimal `json:"iv"`
	Greeks
	TimeValue      *decimal.Decimal `json:"time_value,omitempty"`
	IntrinsicValue *decimal.Decimal `json:"intrinsic_value,omitempty"`
}

// Mid returns the bid/ask midpoint, or Last when either side is missing.
func (c OptionContract) Mid() decimal.Decimal {
	if c.Bid.IsPositive() && c.Ask.IsPositive() {
		return c.Bid.Add(c.Ask).Div(decimal.NewFromInt(2))
	}
	return c.Last
}

// ChainRequest is a request for one symbol's options chain.
type ChainRequest struct {
	Symbol      string
	Expiry      string // YYYYMMDD, optional
	StrikeCount int
}

// Normalize upper-cases the symbol and applies the default strike count.
func (r ChainRequest) Normalize() ChainRequest {
	r.Symbol = strings.ToUpper(strings.TrimSpace(r.Symbol))
	r.Expiry = strings.TrimSpace(r.Expiry)
	if r.StrikeCount <= 0 {
		r.StrikeCount = DefaultStrikeCount
	}
	return r
}

// Validate checks the symbol and the expiry format.
func (r ChainRequest) Validate() error {
	if strings.TrimSpace(r.Symbol) == "" {
		return fmt.Errorf("symbol is required")
	}
	if r.Expiry != "" {
		if _, err := time.Parse(ExpiryLayout, r.Expiry); err != nil {
			return fmt.Errorf("invalid expiry date %q (use YYYYMMDD)", r.Expiry)
		}
	}
	return nil
}

// ExpiryISO returns the expiry as YYYY-MM-DD, or "" when unset or malformed.
func (r ChainRequest) ExpiryISO() string {
	return FormatExpiryISO(r.Expiry)
}

// FormatExpiryISO converts YYYYMMDD to YYYY-MM-DD. Anything that is not
// eight characters long is returned empty.
func FormatExpiryISO(expiry string) string {
	if len(expiry) != 8 {
		return ""
	}
	return expiry[:4] + "-" + expiry[4:6] + "-" + expiry[6:8]
}
