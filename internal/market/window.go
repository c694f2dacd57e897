package market

import (
	"sort"

	"github.com/shopspring/decimal"
)

// atmThreshold is the fraction of the underlying price within which a strike
// counts as at the money.
var atmThreshold = decimal.RequireFromString("0.01")

// WindowStrikes keeps the n strikes closest to the underlying price and
// returns them sorted ascending. When the underlying price is unknown (zero)
// it keeps the first n strikes in source order instead. n <= 0 keeps all.
func WindowStrikes(strikes []decimal.Decimal, underlying decimal.Decimal, n int) []decimal.Decimal {
	unique := make([]decimal.Decimal, 0, len(strikes))
	seen := make(map[string]bool, len(strikes))
	for _, s := range strikes {
		key := StrikeKey(s)
		if seen[key] {
			continue
		}
		seen[key] = true
		unique = append(unique, s)
	}

	if n <= 0 || len(unique) <= n {
		return SortStrikes(unique)
	}

	if !underlying.IsPositive() {
		return SortStrikes(unique[:n])
	}

	byDistance := make([]decimal.Decimal, len(unique))
	copy(byDistance, unique)
	sort.SliceStable(byDistance, func(i, j int) bool {
		di := byDistance[i].Sub(underlying).Abs()
		dj := byDistance[j].Sub(underlying).Abs()
		return di.LessThan(dj)
	})

	return SortStrikes(byDistance[:n])
}

// IsATM reports whether strike lies within 1% of the underlying price.
// An unknown (zero) underlying price is never at the money.
func IsATM(strike, underlying decimal.Decimal) bool {
	if !underlying.IsPositive() {
		return false
	}
	return strike.Sub(underlying).Abs().LessThan(underlying.Mul(atmThreshold))
}
