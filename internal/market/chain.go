package market

import (
	"encoding/json"
	"sort"

	"github.com/shopspring/decimal"
)

// ChainResult is the provider-independent options chain returned to callers.
//
// Strikes is sorted ascending without duplicates and contains every strike
// present in Calls or Puts. A result with Error set has no contracts.
type ChainResult struct {
	Symbol          string
	Expiry          string
	UnderlyingPrice decimal.Decimal
	Provider        string
	Strikes         []decimal.Decimal
	Calls           map[string]OptionContract
	Puts            map[string]OptionContract
	Error           string
}

// StrikeKey is the canonical map key for a strike (trailing zeros trimmed,
// so 100, 100.0 and 100.00 share a key).
func StrikeKey(strike decimal.Decimal) string {
	return strike.String()
}

// OK reports whether the result carries data rather than an error.
func (r ChainResult) OK() bool {
	return r.Error == ""
}

// Call returns the call contract at strike, if any.
func (r ChainResult) Call(strike decimal.Decimal) (OptionContract, bool) {
	c, ok := r.Calls[StrikeKey(strike)]
	return c, ok
}

// Put returns the put contract at strike, if any.
func (r ChainResult) Put(strike decimal.Decimal) (OptionContract, bool) {
	c, ok := r.Puts[StrikeKey(strike)]
	return c, ok
}

// IsATM reports whether strike is at the money for this result's underlying.
func (r ChainResult) IsATM(strike decimal.Decimal) bool {
	return IsATM(strike, r.UnderlyingPrice)
}

// ErrorResult builds an error-carrying result with empty contracts.
func ErrorResult(provider string, req ChainRequest, message string) ChainResult {
	return ChainResult{
		Symbol:          req.Symbol,
		Expiry:          req.Expiry,
		UnderlyingPrice: decimal.Zero,
		Provider:        provider,
		Strikes:         []decimal.Decimal{},
		Calls:           map[string]OptionContract{},
		Puts:            map[string]OptionContract{},
		Error:           message,
	}
}

type chainJSON struct {
	Symbol          string            `json:"symbol"`
	Expiry          *string           `json:"expiry_date"`
	UnderlyingPrice decimal.Decimal   `json:"underlying_price"`
	Provider        string            `json:"provider"`
	Strikes         []decimal.Decimal `json:"strikes"`
	Calls           []OptionContract  `json:"calls"`
	Puts            []OptionContract  `json:"puts"`
	Error           string            `json:"error,omitempty"`
}

// MarshalJSON renders calls and puts as arrays ordered by strike.
func (r ChainResult) MarshalJSON() ([]byte, error) {
	out := chainJSON{
		Symbol:          r.Symbol,
		UnderlyingPrice: r.UnderlyingPrice,
		Provider:        r.Provider,
		Strikes:         r.Strikes,
		Calls:           orderedContracts(r.Strikes, r.Calls),
		Puts:            orderedContracts(r.Strikes, r.Puts),
		Error:           r.Error,
	}
	if r.Expiry != "" {
		expiry := r.Expiry
		out.Expiry = &expiry
	}
	if out.Strikes == nil {
		out.Strikes = []decimal.Decimal{}
	}
	return json.Marshal(out)
}

func orderedContracts(strikes []decimal.Decimal, contracts map[string]OptionContract) []OptionContract {
	out := make([]OptionContract, 0, len(contracts))
	for _, strike := range strikes {
		if c, ok := contracts[StrikeKey(strike)]; ok {
			out = append(out, c)
		}
	}
	return out
}

// ChainBuilder accumulates normalized contracts from one source response and
// produces a ChainResult that satisfies the strike invariants.
type ChainBuilder struct {
	provider   string
	req        ChainRequest
	underlying decimal.Decimal
	calls      map[string]OptionContract
	puts       map[string]OptionContract
	order      []decimal.Decimal
	seen       map[string]bool
}

// NewChainBuilder starts a result for the given provider and request.
func NewChainBuilder(provider string, req ChainRequest) *ChainBuilder {
	return &ChainBuilder{
		provider: provider,
		req:      req,
		calls:    make(map[string]OptionContract),
		puts:     make(map[string]OptionContract),
		seen:     make(map[string]bool),
	}
}

// SetUnderlying records the underlying price. Negative values are ignored.
func (b *ChainBuilder) SetUnderlying(price decimal.Decimal) {
	if price.IsNegative() {
		return
	}
	b.underlying = price
}

// SetExpiry overrides the expiry reported in the result.
func (b *ChainBuilder) SetExpiry(expiry string) {
	b.req.Expiry = expiry
}

// Add stores a contract for side. Contracts with an unknown side or a
// non-positive strike are dropped, and the first contract seen for a
// (strike, side) pair wins. It reports whether the contract was kept.
func (b *ChainBuilder) Add(side Side, c OptionContract) bool {
	if !c.Strike.IsPositive() {
		return false
	}

	var target map[string]OptionContract
	switch side {
	case SideCall:
		target = b.calls
	case SidePut:
		target = b.puts
	default:
		return false
	}

	key := StrikeKey(c.Strike)
	if _, exists := target[key]; exists {
		return false
	}
	target[key] = c

	if !b.seen[key] {
		b.seen[key] = true
		b.order = append(b.order, c.Strike)
	}
	return true
}

// Len returns the number of contracts collected so far.
func (b *ChainBuilder) Len() int {
	return len(b.calls) + len(b.puts)
}

// Result windows the collected strikes to the request's strike count and
// returns the finished chain.
func (b *ChainBuilder) Result() ChainResult {
	strikes := WindowStrikes(b.order, b.underlying, b.req.StrikeCount)

	calls := make(map[string]OptionContract, len(strikes))
	puts := make(map[string]OptionContract, len(strikes))
	for _, strike := range strikes {
		key := StrikeKey(strike)
		if c, ok := b.calls[key]; ok {
			calls[key] = c
		}
		if p, ok := b.puts[key]; ok {
			puts[key] = p
		}
	}

	return ChainResult{
		Symbol:          b.req.Symbol,
		Expiry:          b.req.Expiry,
		UnderlyingPrice: b.underlying,
		Provider:        b.provider,
		Strikes:         strikes,
		Calls:           calls,
		Puts:            puts,
	}
}

// SortStrikes returns a sorted copy of strikes with duplicates removed.
func SortStrikes(strikes []decimal.Decimal) []decimal.Decimal {
	out := make([]decimal.Decimal, 0, len(strikes))
	seen := make(map[string]bool, len(strikes))
	for _, s := range strikes {
		key := StrikeKey(s)
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].LessThan(out[j])
	})
	return out
}
