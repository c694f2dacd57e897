package cmd

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonandersen/etrade-cli/internal/config"
	"github.com/jonandersen/etrade-cli/internal/order"
	"github.com/jonandersen/etrade-cli/internal/session"
)

const (
	previewOKBody = `{"PreviewOrderResponse": {
		"PreviewIds": [{"previewId": 1001}],
		"Order": [{"estimatedTotalAmount": 1751.95, "estimatedCommission": 0}]
	}}`
	placeOKBody  = `{"PlaceOrderResponse": {"OrderIds": [{"orderId": 42}]}}`
	cancelOKBody = `{"CancelOrderResponse": {"orderId": 42}}`
	ordersBody   = `{"OrdersResponse": {"Order": [{
		"orderId": 42,
		"OrderDetail": [{
			"status": "OPEN",
			"priceType": "LIMIT",
			"orderTerm": "GOOD_FOR_DAY",
			"limitPrice": 175,
			"Instrument": [{"Product": {"symbol": "AAPL"}, "orderAction": "BUY", "orderedQuantity": 10, "filledQuantity": 0}]
		}]
	}]}}`
)

// fakeBrokerage serves the order endpoints for account "acct".
type fakeBrokerage struct {
	mu       sync.Mutex
	routes   map[string]http.HandlerFunc
	requests []string
	bodies   map[string]string
	server   *httptest.Server
}

func newFakeBrokerage(t *testing.T, routes map[string]http.HandlerFunc) *fakeBrokerage {
	t.Helper()
	b := &fakeBrokerage{routes: routes, bodies: map[string]string{}}
	b.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		key := r.Method + " " + r.URL.Path

		b.mu.Lock()
		b.requests = append(b.requests, key)
		b.bodies[key] = string(body)
		b.mu.Unlock()

		if h, ok := b.routes[key]; ok {
			h(w, r)
			return
		}
		w.WriteHeader(http.StatusNotFound)
	}))
	t.Cleanup(b.server.Close)
	return b
}

func reply(status int, body string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}
}

func (b *fakeBrokerage) options() orderOptions {
	return orderOptions{
		manager:        order.NewManager(session.NewStatic(b.server.URL, nil)),
		accountID:      "acct",
		tradingEnabled: true,
	}
}

func staticOrderOptions(opts orderOptions) orderLoader {
	return func() (orderOptions, error) { return opts, nil }
}

func runOrderCmd(t *testing.T, opts orderOptions, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := newOrderCmd(staticOrderOptions(opts))
	cmd.SetOut(&out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func submitRoutes() map[string]http.HandlerFunc {
	return map[string]http.HandlerFunc{
		"POST /v1/accounts/acct/orders/preview.json": reply(http.StatusOK, previewOKBody),
		"POST /v1/accounts/acct/orders/place.json":   reply(http.StatusOK, placeOKBody),
	}
}

func TestOrderBuyCmd_Success(t *testing.T) {
	b := newFakeBrokerage(t, submitRoutes())

	out, err := runOrderCmd(t, b.options(), "buy", "aapl", "--quantity", "10", "--limit", "175", "--yes")
	require.NoError(t, err)

	assert.Contains(t, out, "Order Preview:")
	assert.Contains(t, out, "Symbol:   AAPL")
	assert.Contains(t, out, "Limit:    $175.00")
	assert.Contains(t, out, "Order placed successfully")
	assert.Contains(t, out, "Order ID:        42")
	assert.Contains(t, out, "Preview ID:      1001")
	assert.Contains(t, out, "1751.95")

	assert.Equal(t, []string{
		"POST /v1/accounts/acct/orders/preview.json",
		"POST /v1/accounts/acct/orders/place.json",
	}, b.requests)
	place := b.bodies["POST /v1/accounts/acct/orders/place.json"]
	assert.Contains(t, place, "<previewId>1001</previewId>")
	assert.Contains(t, place, "<priceType>LIMIT</priceType>")
	assert.Contains(t, place, "<limitPrice>175</limitPrice>")
}

func TestOrderPlaceCmd_Actions(t *testing.T) {
	tests := []struct {
		subcommand string
		action     string
	}{
		{"buy", "BUY"},
		{"sell", "SELL"},
		{"buy-to-cover", "BUY_TO_COVER"},
		{"sell-short", "SELL_SHORT"},
	}

	for _, tt := range tests {
		t.Run(tt.subcommand, func(t *testing.T) {
			b := newFakeBrokerage(t, submitRoutes())

			_, err := runOrderCmd(t, b.options(), tt.subcommand, "TSLA", "-q", "3", "--term", "fok", "-y")
			require.NoError(t, err)

			preview := b.bodies["POST /v1/accounts/acct/orders/preview.json"]
			assert.Contains(t, preview, "<orderAction>"+tt.action+"</orderAction>")
			assert.Contains(t, preview, "<orderTerm>FILL_OR_KILL</orderTerm>")
			assert.Contains(t, preview, "<priceType>MARKET</priceType>")
		})
	}
}

func TestOrderBuyCmd_JSON(t *testing.T) {
	b := newFakeBrokerage(t, submitRoutes())
	opts := b.options()
	opts.jsonMode = true

	out, err := runOrderCmd(t, opts, "buy", "AAPL", "--quantity", "10", "--yes")
	require.NoError(t, err)

	var result map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &result))
	assert.Equal(t, true, result["success"])
	assert.Equal(t, "42", result["order_id"])
	assert.Equal(t, "1001", result["preview_id"])
	assert.Equal(t, "PLACED", result["state"])
	assert.NotContains(t, out, "Order Preview")
}

func TestOrderBuyCmd_RequiresConfirmation(t *testing.T) {
	b := newFakeBrokerage(t, submitRoutes())

	out, err := runOrderCmd(t, b.options(), "buy", "AAPL", "--quantity", "10")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "order requires confirmation (use --yes to confirm)")
	assert.Contains(t, out, "Order Preview:")
	assert.Empty(t, b.requests)
}

func TestOrderBuyCmd_TradingDisabled(t *testing.T) {
	b := newFakeBrokerage(t, submitRoutes())
	opts := b.options()
	opts.tradingEnabled = false

	_, err := runOrderCmd(t, opts, "buy", "AAPL", "--quantity", "10", "--yes")
	assert.ErrorIs(t, err, config.ErrTradingDisabled)
	assert.Empty(t, b.requests)
}

func TestOrderBuyCmd_AccountFlag(t *testing.T) {
	b := newFakeBrokerage(t, map[string]http.HandlerFunc{
		"POST /v1/accounts/other/orders/preview.json": reply(http.StatusOK, previewOKBody),
		"POST /v1/accounts/other/orders/place.json":   reply(http.StatusOK, placeOKBody),
	})
	opts := b.options()
	opts.accountID = ""

	_, err := runOrderCmd(t, opts, "buy", "AAPL", "-q", "1", "-y")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "account ID is required")

	_, err = runOrderCmd(t, opts, "buy", "AAPL", "-q", "1", "-y", "--account", "other")
	require.NoError(t, err)
}

func TestOrderBuyCmd_ValidationErrors(t *testing.T) {
	tests := []struct {
		name    string
		args    []string
		wantErr string
	}{
		{"missing quantity", []string{"buy", "AAPL", "-y"}, "quantity must be greater than zero"},
		{"bad limit", []string{"buy", "AAPL", "-q", "1", "--limit", "abc", "-y"}, "invalid limit price"},
		{"zero limit", []string{"buy", "AAPL", "-q", "1", "--limit", "0", "-y"}, "limit price must be greater than zero"},
		{"bad term", []string{"buy", "AAPL", "-q", "1", "--term", "GTC", "-y"}, "invalid order term"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := newFakeBrokerage(t, submitRoutes())

			_, err := runOrderCmd(t, b.options(), tt.args...)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
			assert.Empty(t, b.requests)
		})
	}
}

func TestOrderBuyCmd_PreviewRejected(t *testing.T) {
	b := newFakeBrokerage(t, map[string]http.HandlerFunc{
		"POST /v1/accounts/acct/orders/preview.json": reply(http.StatusBadRequest, `{"Error":{"code":1017,"message":"Insufficient funds"}}`),
	})

	_, err := runOrderCmd(t, b.options(), "buy", "AAPL", "-q", "10", "-y")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Order preview failed: Insufficient funds")
	assert.Equal(t, []string{"POST /v1/accounts/acct/orders/preview.json"}, b.requests)
}

func TestOrderBuyCmd_PlaceRejectedJSON(t *testing.T) {
	b := newFakeBrokerage(t, map[string]http.HandlerFunc{
		"POST /v1/accounts/acct/orders/preview.json": reply(http.StatusOK, previewOKBody),
		"POST /v1/accounts/acct/orders/place.json":   reply(http.StatusServiceUnavailable, ""),
	})
	opts := b.options()
	opts.jsonMode = true

	out, err := runOrderCmd(t, opts, "buy", "AAPL", "-q", "10", "-y")
	require.Error(t, err)

	var result map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &result))
	assert.Equal(t, false, result["success"])
	assert.Equal(t, "FAILED", result["state"])
	assert.Equal(t, "Order placement failed: HTTP 503", result["error"])
}

func TestOrderCancelCmd_Success(t *testing.T) {
	b := newFakeBrokerage(t, map[string]http.HandlerFunc{
		"PUT /v1/accounts/acct/orders/cancel.json": reply(http.StatusOK, cancelOKBody),
	})

	out, err := runOrderCmd(t, b.options(), "cancel", "42", "--yes")
	require.NoError(t, err)
	assert.Contains(t, out, "Cancellation requested for order 42")
	assert.Contains(t, b.bodies["PUT /v1/accounts/acct/orders/cancel.json"], "<orderId>42</orderId>")
}

func TestOrderCancelCmd_RequiresConfirmation(t *testing.T) {
	b := newFakeBrokerage(t, nil)

	out, err := runOrderCmd(t, b.options(), "cancel", "42")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cancel requires confirmation")
	assert.Contains(t, out, "Order ID: 42")
	assert.Empty(t, b.requests)
}

func TestOrderCancelCmd_Rejected(t *testing.T) {
	b := newFakeBrokerage(t, map[string]http.HandlerFunc{
		"PUT /v1/accounts/acct/orders/cancel.json": reply(http.StatusBadRequest, `{"Error":{"code":5001,"message":"Order already filled"}}`),
	})

	_, err := runOrderCmd(t, b.options(), "cancel", "42", "-y")
	require.Error(t, err)
	assert.Equal(t, "failed to cancel order 42: Order already filled", err.Error())
}

func TestOrderCancelCmd_TradingDisabled(t *testing.T) {
	b := newFakeBrokerage(t, nil)
	opts := b.options()
	opts.tradingEnabled = false

	_, err := runOrderCmd(t, opts, "cancel", "42", "-y")
	assert.ErrorIs(t, err, config.ErrTradingDisabled)
}

func TestOrderListCmd(t *testing.T) {
	var status string
	b := newFakeBrokerage(t, map[string]http.HandlerFunc{
		"GET /v1/accounts/acct/orders.json": func(w http.ResponseWriter, r *http.Request) {
			status = r.URL.Query().Get("status")
			_, _ = w.Write([]byte(ordersBody))
		},
	})

	out, err := runOrderCmd(t, b.options(), "list")
	require.NoError(t, err)
	assert.Equal(t, "OPEN", status)
	assert.Contains(t, out, "Order ID")
	assert.Contains(t, out, "42")
	assert.Contains(t, out, "AAPL")
	assert.Contains(t, out, "175.00")
}

func TestOrderListCmd_Empty(t *testing.T) {
	b := newFakeBrokerage(t, map[string]http.HandlerFunc{
		"GET /v1/accounts/acct/orders.json": reply(http.StatusNoContent, ""),
	})

	out, err := runOrderCmd(t, b.options(), "list", "--status", "executed")
	require.NoError(t, err)
	assert.Contains(t, out, "No executed orders")
}

func TestOrderListCmd_InvalidStatus(t *testing.T) {
	b := newFakeBrokerage(t, nil)

	_, err := runOrderCmd(t, b.options(), "list", "--status", "pending")
	require.Error(t, err)
	assert.Contains(t, err.Error(), `invalid order status "PENDING"`)
	assert.Empty(t, b.requests)
}

func TestOrderListCmd_WorksWithTradingDisabled(t *testing.T) {
	b := newFakeBrokerage(t, map[string]http.HandlerFunc{
		"GET /v1/accounts/acct/orders.json": reply(http.StatusOK, ordersBody),
	})
	opts := b.options()
	opts.tradingEnabled = false

	_, err := runOrderCmd(t, opts, "list")
	assert.NoError(t, err)
}

func TestOrderStatusCmd_JSON(t *testing.T) {
	b := newFakeBrokerage(t, map[string]http.HandlerFunc{
		"GET /v1/accounts/acct/orders/42.json": reply(http.StatusOK, ordersBody),
	})
	opts := b.options()
	opts.jsonMode = true

	out, err := runOrderCmd(t, opts, "status", "42")
	require.NoError(t, err)

	var result order.OrdersResult
	require.NoError(t, json.Unmarshal([]byte(out), &result))
	assert.True(t, result.Success)
	require.Len(t, result.Orders, 1)
	assert.Equal(t, "42", result.Orders[0].OrderID)
	assert.Equal(t, "OPEN", result.Orders[0].Status)
	assert.Equal(t, "BUY", result.Orders[0].Action)
}

func TestOrderStatusCmd_NotFound(t *testing.T) {
	b := newFakeBrokerage(t, nil)

	_, err := runOrderCmd(t, b.options(), "status", "99")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "HTTP 404")
}

func TestOrderCmd_LoaderError(t *testing.T) {
	cmd := newOrderCmd(func() (orderOptions, error) { return orderOptions{}, errNoCredentials })
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"list"})

	err := cmd.Execute()
	assert.ErrorIs(t, err, errNoCredentials)
}
