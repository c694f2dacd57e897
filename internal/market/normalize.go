package market

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

// Source field aliases for each canonical contract field, in lookup order.
var (
	symbolKeys       = []string{"symbol", "contractSymbol"}
	strikeKeys       = []string{"strike", "strikePrice"}
	bidKeys          = []string{"bid", "bidPrice"}
	askKeys          = []string{"ask", "askPrice"}
	lastKeys         = []string{"last", "lastPrice", "lastTradePrice"}
	volumeKeys       = []string{"volume", "totalVolume"}
	openInterestKeys = []string{"openInterest", "open_interest"}
	ivKeys           = []string{"impliedVolatility", "iv", "implied_volatility"}
	typeKeys         = []string{"type", "optionType"}
	greeksKeys       = []string{"OptionGreeks", "greeks"}
)

// NoStrike tells NormalizeContract to read the strike from the record itself.
var NoStrike = decimal.Zero

// Record is one decoded JSON object from a source payload.
type Record map[string]any

// DecodeJSON decodes a body into generic JSON values, keeping numbers as
// json.Number so decimals survive without float rounding.
func DecodeJSON(body []byte) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	return v, nil
}

// AsRecord returns v as a Record when it is a JSON object.
func AsRecord(v any) (Record, bool) {
	m, ok := v.(map[string]any)
	if !ok {
		return nil, false
	}
	return Record(m), true
}

// AsList returns v as a slice when it is a JSON array.
func AsList(v any) ([]any, bool) {
	l, ok := v.([]any)
	return l, ok
}

// Value returns the first non-null value among keys.
func (r Record) Value(keys ...string) (any, bool) {
	for _, k := range keys {
		if v, ok := r[k]; ok && v != nil {
			return v, true
		}
	}
	return nil, false
}

// Record returns the first nested object among keys.
func (r Record) Record(keys ...string) (Record, bool) {
	for _, k := range keys {
		if sub, ok := AsRecord(r[k]); ok {
			return sub, true
		}
	}
	return nil, false
}

// List returns the first nested array among keys.
func (r Record) List(keys ...string) ([]any, bool) {
	for _, k := range keys {
		if l, ok := AsList(r[k]); ok {
			return l, true
		}
	}
	return nil, false
}

// String returns the first non-empty string value among keys.
func (r Record) String(keys ...string) string {
	for _, k := range keys {
		switch v := r[k].(type) {
		case string:
			if v != "" {
				return v
			}
		case json.Number:
			return v.String()
		}
	}
	return ""
}

// Decimal returns the first parseable numeric value among keys, or zero.
func (r Record) Decimal(keys ...string) decimal.Decimal {
	for _, k := range keys {
		if d, ok := ToDecimal(r[k]); ok {
			return d
		}
	}
	return decimal.Zero
}

// OptionalDecimal is like Decimal but reports absence with nil.
func (r Record) OptionalDecimal(keys ...string) *decimal.Decimal {
	for _, k := range keys {
		if d, ok := ToDecimal(r[k]); ok {
			return &d
		}
	}
	return nil
}

// Int returns the first parseable integer value among keys, or zero.
func (r Record) Int(keys ...string) int64 {
	d := r.Decimal(keys...)
	return d.IntPart()
}

// ToDecimal converts a JSON scalar (number or numeric string) to a decimal.
// Strings may carry thousands separators, a leading "$" or a trailing "%".
func ToDecimal(v any) (decimal.Decimal, bool) {
	switch n := v.(type) {
	case json.Number:
		d, err := decimal.NewFromString(n.String())
		return d, err == nil
	case float64:
		return decimal.NewFromFloat(n), true
	case int:
		return decimal.NewFromInt(int64(n)), true
	case int64:
		return decimal.NewFromInt(n), true
	case string:
		s := strings.TrimSpace(n)
		s = strings.TrimPrefix(s, "$")
		s = strings.TrimSuffix(s, "%")
		s = strings.ReplaceAll(s, ",", "")
		if s == "" {
			return decimal.Zero, false
		}
		if _, err := strconv.ParseFloat(s, 64); err != nil {
			return decimal.Zero, false
		}
		d, err := decimal.NewFromString(s)
		return d, err == nil
	default:
		return decimal.Zero, false
	}
}

// NormalizeContract reduces a source record to the canonical contract.
// Missing or malformed numbers become zero, and negative prices and counts
// are clamped to zero. The strike is read from the record unless override
// is positive (for sources that carry the strike on a parent object).
func NormalizeContract(r Record, override decimal.Decimal) OptionContract {
	strike := override
	if !strike.IsPositive() {
		strike = r.Decimal(strikeKeys...)
	}

	c := OptionContract{
		Symbol:            r.String(symbolKeys...),
		Strike:            strike,
		Bid:               nonNegative(r.Decimal(bidKeys...)),
		Ask:               nonNegative(r.Decimal(askKeys...)),
		Last:              nonNegative(r.Decimal(lastKeys...)),
		Volume:            nonNegativeInt(r.Int(volumeKeys...)),
		OpenInterest:      nonNegativeInt(r.Int(openInterestKeys...)),
		ImpliedVolatility: nonNegative(r.Decimal(ivKeys...)),
		Greeks:            normalizeGreeks(r),
		TimeValue:         r.OptionalDecimal("timeValue", "time_value"),
		IntrinsicValue:    r.OptionalDecimal("intrinsicValue", "intrinsic_value"),
	}

	if c.ImpliedVolatility.IsZero() {
		if g, ok := r.Record(greeksKeys...); ok {
			c.ImpliedVolatility = nonNegative(g.Decimal(ivKeys...))
		}
	}

	return c
}

// normalizeGreeks reads greeks from the record itself, then from a nested
// OptionGreeks/greeks object.
func normalizeGreeks(r Record) Greeks {
	g := Greeks{
		Delta: r.Decimal("delta"),
		Gamma: r.Decimal("gamma"),
		Theta: r.Decimal("theta"),
		Vega:  r.Decimal("vega"),
	}
	nested, ok := r.Record(greeksKeys...)
	if !ok {
		return g
	}
	if g.Delta.IsZero() {
		g.Delta = nested.Decimal("delta")
	}
	if g.Gamma.IsZero() {
		g.Gamma = nested.Decimal("gamma")
	}
	if g.Theta.IsZero() {
		g.Theta = nested.Decimal("theta")
	}
	if g.Vega.IsZero() {
		g.Vega = nested.Decimal("vega")
	}
	return g
}

// ResolveSide determines a record's side. A known hint (the record came from
// a calls or puts list) wins, then an explicit type field, then the
// contract-symbol heuristic.
func ResolveSide(r Record, hint Side) Side {
	if hint != SideUnknown {
		return hint
	}
	if side := ParseSide(r.String(typeKeys...)); side != SideUnknown {
		return side
	}
	return InferSide(r.String(symbolKeys...))
}

// InferSide guesses the side from the contract symbol: a "C" in the last two
// characters means call, otherwise a "P" there means put. This is a
// best-effort heuristic and misclassifies malformed symbols; callers should
// prefer an explicit type field.
func InferSide(symbol string) Side {
	tail := symbol
	if len(tail) > 2 {
		tail = tail[len(tail)-2:]
	}
	switch {
	case strings.Contains(tail, "C"):
		return SideCall
	case strings.Contains(tail, "P"):
		return SidePut
	default:
		return SideUnknown
	}
}

func nonNegative(d decimal.Decimal) decimal.Decimal {
	if d.IsNegative() {
		return decimal.Zero
	}
	return d
}

func nonNegativeInt(n int64) int64 {
	if n < 0 {
		return 0
	}
	return n
}
