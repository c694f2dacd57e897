package market

import (
	"encoding/json"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func record(t *testing.T, body string) Record {
	t.Helper()
	v, err := DecodeJSON([]byte(body))
	require.NoError(t, err)
	r, ok := AsRecord(v)
	require.True(t, ok)
	return r
}

func TestNormalizeContract_Aliases(t *testing.T) {
	r := record(t, `{
		"contractSymbol": "AAPL240119C00150000",
		"strikePrice": "150",
		"bidPrice": 1.25,
		"askPrice": "1.35",
		"lastTradePrice": 1.3,
		"totalVolume": "1,200",
		"open_interest": 800,
		"implied_volatility": "24.5%"
	}`)

	c := NormalizeContract(r, decimal.Zero)

	assert.Equal(t, "AAPL240119C00150000", c.Symbol)
	assert.Equal(t, "150", c.Strike.String())
	assert.Equal(t, "1.25", c.Bid.String())
	assert.Equal(t, "1.35", c.Ask.String())
	assert.Equal(t, "1.3", c.Last.String())
	assert.Equal(t, int64(1200), c.Volume)
	assert.Equal(t, int64(800), c.OpenInterest)
	assert.Equal(t, "24.5", c.ImpliedVolatility.String())
	assert.Nil(t, c.TimeValue)
	assert.Nil(t, c.IntrinsicValue)
}

func TestNormalizeContract_MissingAndMalformedBecomeZero(t *testing.T) {
	r := record(t, `{"symbol": "X", "strike": 100, "bid": null, "ask": "n/a", "volume": "--"}`)

	c := NormalizeContract(r, decimal.Zero)

	assert.True(t, c.Bid.IsZero())
	assert.True(t, c.Ask.IsZero())
	assert.True(t, c.Last.IsZero())
	assert.Equal(t, int64(0), c.Volume)
	assert.Equal(t, int64(0), c.OpenInterest)
	assert.True(t, c.Delta.IsZero())
	assert.True(t, c.Vega.IsZero())
}

func TestNormalizeContract_NegativeValuesClamp(t *testing.T) {
	r := record(t, `{"strike": 100, "bid": -1, "volume": -5, "delta": -0.45}`)

	c := NormalizeContract(r, decimal.Zero)

	assert.True(t, c.Bid.IsZero())
	assert.Equal(t, int64(0), c.Volume)
	// Greeks are signed.
	assert.Equal(t, "-0.45", c.Delta.String())
}

func TestNormalizeContract_NestedGreeks(t *testing.T) {
	r := record(t, `{
		"symbol": "SPX",
		"strikePrice": 5000,
		"timeValue": 12.5,
		"OptionGreeks": {"delta": 0.52, "gamma": 0.01, "theta": -1.2, "vega": 3.4, "iv": 0.18}
	}`)

	c := NormalizeContract(r, decimal.Zero)

	assert.Equal(t, "0.52", c.Delta.String())
	assert.Equal(t, "0.01", c.Gamma.String())
	assert.Equal(t, "-1.2", c.Theta.String())
	assert.Equal(t, "3.4", c.Vega.String())
	assert.Equal(t, "0.18", c.ImpliedVolatility.String())
	require.NotNil(t, c.TimeValue)
	assert.Equal(t, "12.5", c.TimeValue.String())
}

func TestNormalizeContract_StrikeOverride(t *testing.T) {
	r := record(t, `{"symbol": "X", "bid": 1}`)

	c := NormalizeContract(r, decimal.NewFromInt(105))

	assert.Equal(t, "105", c.Strike.String())
}

func TestToDecimal(t *testing.T) {
	tests := []struct {
		name     string
		value    any
		expected string
		ok       bool
	}{
		{"json number", json.Number("1.50"), "1.5", true},
		{"float", 2.25, "2.25", true},
		{"int", 3, "3", true},
		{"dollar string", "$1,234.50", "1234.5", true},
		{"percent string", "12%", "12", true},
		{"empty string", "", "0", false},
		{"dashes", "--", "0", false},
		{"nil", nil, "0", false},
		{"bool", true, "0", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, ok := ToDecimal(tt.value)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.expected, d.String())
		})
	}
}

func TestInferSide(t *testing.T) {
	tests := []struct {
		symbol   string
		expected Side
	}{
		{"AAPL240119C00150000", SideUnknown},
		{"SPX-C", SideCall},
		{"SPX-P", SidePut},
		{"XYZ C", SideCall},
		{"XYZ P", SidePut},
		{"SPXW P1", SidePut},
		{"C", SideCall},
		{"abc", SideUnknown},
		{"XYZ c", SideUnknown},
		{"", SideUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.symbol, func(t *testing.T) {
			assert.Equal(t, tt.expected, InferSide(tt.symbol))
		})
	}
}

func TestResolveSide(t *testing.T) {
	t.Run("hint wins", func(t *testing.T) {
		r := Record{"type": "PUT", "symbol": "X-C"}
		assert.Equal(t, SideCall, ResolveSide(r, SideCall))
	})

	t.Run("explicit type before symbol", func(t *testing.T) {
		r := Record{"optionType": "put", "symbol": "X-C"}
		assert.Equal(t, SidePut, ResolveSide(r, SideUnknown))
	})

	t.Run("single letter type", func(t *testing.T) {
		r := Record{"type": "C"}
		assert.Equal(t, SideCall, ResolveSide(r, SideUnknown))
	})

	t.Run("falls back to symbol", func(t *testing.T) {
		r := Record{"symbol": "X-P"}
		assert.Equal(t, SidePut, ResolveSide(r, SideUnknown))
	})

	t.Run("undeterminable", func(t *testing.T) {
		r := Record{"symbol": "XYZ"}
		assert.Equal(t, SideUnknown, ResolveSide(r, SideUnknown))
	})
}

func TestRecord_Lookups(t *testing.T) {
	r := record(t, `{"a": {"b": 1}, "list": [1, 2], "n": 7, "s": ""}`)

	sub, ok := r.Record("missing", "a")
	require.True(t, ok)
	assert.Equal(t, "1", sub.Decimal("b").String())

	l, ok := r.List("list")
	require.True(t, ok)
	assert.Len(t, l, 2)

	assert.Equal(t, "7", r.String("s", "n"))
	_, ok = r.Value("missing")
	assert.False(t, ok)
}

func TestDecodeJSON_Invalid(t *testing.T) {
	_, err := DecodeJSON([]byte("<html>"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to decode response")
}
