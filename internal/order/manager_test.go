package order

import (
	"context"
	"encoding/xml"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonandersen/etrade-cli/internal/session"
)

// brokerage is a mock order API that records request bodies by path.
type brokerage struct {
	server *httptest.Server
	bodies map[string][]byte
	calls  []string
}

func newBrokerage(t *testing.T, handler http.HandlerFunc) *brokerage {
	t.Helper()
	b := &brokerage{bodies: map[string][]byte{}}
	b.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(r.Body)
		assert.NoError(t, err)
		b.bodies[r.URL.Path] = body
		b.calls = append(b.calls, r.Method+" "+r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		handler(w, r)
	}))
	t.Cleanup(b.server.Close)
	return b
}

func (b *brokerage) manager() *Manager {
	return NewManager(session.NewStatic(b.server.URL, nil))
}

func respond(status int, body string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}
}

func previewAndPlace(preview, place http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/v1/accounts/acct/orders/preview.json":
			preview(w, r)
		case "/v1/accounts/acct/orders/place.json":
			place(w, r)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}
}

var marketBuy = Request{
	AccountIDKey: "acct",
	Symbol:       "AAPL",
	Action:       ActionBuy,
	Quantity:     1,
	PriceType:    PriceMarket,
	Term:         TermGoodForDay,
}

func TestManager_Submit(t *testing.T) {
	b := newBrokerage(t, previewAndPlace(
		respond(http.StatusOK, `{"PreviewOrderResponse": {
			"PreviewIds": [{"previewId": "PID1"}],
			"Order": [{"estimatedTotalAmount": 150.5, "estimatedCommission": 0}]
		}}`),
		respond(http.StatusOK, `{"PlaceOrderResponse": {"OrderIds": [{"orderId": "OID1"}]}}`),
	))

	result := b.manager().Submit(context.Background(), marketBuy)

	require.Empty(t, result.Error)
	assert.True(t, result.Success)
	assert.Equal(t, "OID1", result.OrderID)
	assert.Equal(t, "PID1", result.PreviewID)
	assert.Equal(t, "AAPL", result.Symbol)
	assert.Equal(t, ActionBuy, result.Action)
	assert.Equal(t, 1, result.Quantity)
	assert.Equal(t, StatePlaced, result.State)
	assert.Len(t, result.ClientOrderID, 10)
	require.NotNil(t, result.EstimatedTotal)
	assert.Equal(t, "150.5", result.EstimatedTotal.String())

	assert.Equal(t, []string{
		"POST /v1/accounts/acct/orders/preview.json",
		"POST /v1/accounts/acct/orders/place.json",
	}, b.calls)
}

func TestManager_Submit_PreviewBody(t *testing.T) {
	b := newBrokerage(t, previewAndPlace(
		respond(http.StatusOK, `{"PreviewOrderResponse": {"PreviewIds": [{"previewId": 77}]}}`),
		respond(http.StatusOK, `{"PlaceOrderResponse": {"OrderIds": [{"orderId": 88}]}}`),
	))

	req := marketBuy
	req.Symbol = "msft"
	req.Action = ActionSellShort
	req.Quantity = 10
	req.PriceType = PriceLimit
	req.LimitPrice = price("301.5")
	req.Term = TermImmediateOrCancel

	result := b.manager().Submit(context.Background(), req)
	require.True(t, result.Success, result.Error)
	assert.Equal(t, "77", result.PreviewID)
	assert.Equal(t, "88", result.OrderID)

	var preview previewOrderRequest
	require.NoError(t, xml.Unmarshal(b.bodies["/v1/accounts/acct/orders/preview.json"], &preview))
	assert.Equal(t, "EQ", preview.OrderType)
	assert.Equal(t, result.ClientOrderID, preview.ClientOrderID)
	assert.False(t, preview.Order.AllOrNone)
	assert.Equal(t, "LIMIT", preview.Order.PriceType)
	assert.Equal(t, "IMMEDIATE_OR_CANCEL", preview.Order.OrderTerm)
	assert.Equal(t, "REGULAR", preview.Order.MarketSession)
	assert.Equal(t, "301.5", preview.Order.LimitPrice)
	assert.Equal(t, "EQ", preview.Order.Instrument.Product.SecurityType)
	assert.Equal(t, "MSFT", preview.Order.Instrument.Product.Symbol)
	assert.Equal(t, "SELL_SHORT", preview.Order.Instrument.OrderAction)
	assert.Equal(t, "QUANTITY", preview.Order.Instrument.QuantityType)
	assert.Equal(t, 10, preview.Order.Instrument.Quantity)

	var place placeOrderRequest
	require.NoError(t, xml.Unmarshal(b.bodies["/v1/accounts/acct/orders/place.json"], &place))
	assert.Equal(t, "77", place.PreviewID)
	assert.Equal(t, result.ClientOrderID, place.ClientOrderID)
	assert.Equal(t, "MSFT", place.Order.Instrument.Product.Symbol)
}

func TestManager_Submit_MarketOrderHasEmptyLimit(t *testing.T) {
	b := newBrokerage(t, previewAndPlace(
		respond(http.StatusOK, `{"PreviewOrderResponse": {"PreviewIds": [{"previewId": "P"}]}}`),
		respond(http.StatusOK, `{"PlaceOrderResponse": {"OrderIds": [{"orderId": "O"}]}}`),
	))

	result := b.manager().Submit(context.Background(), marketBuy)
	require.True(t, result.Success)

	body := string(b.bodies["/v1/accounts/acct/orders/preview.json"])
	assert.Contains(t, body, "<limitPrice></limitPrice>")
	assert.Contains(t, body, "<priceType>MARKET</priceType>")
}

func TestManager_Submit_Failures(t *testing.T) {
	okPreview := respond(http.StatusOK, `{"PreviewOrderResponse": {"PreviewIds": [{"previewId": "PID1"}]}}`)
	okPlace := respond(http.StatusOK, `{"PlaceOrderResponse": {"OrderIds": [{"orderId": "OID1"}]}}`)

	tests := []struct {
		name      string
		preview   http.HandlerFunc
		place     http.HandlerFunc
		wantErr   string
		wantState State
		previewID string
		calls     int
	}{
		{
			name:      "preview rejected with message",
			preview:   respond(http.StatusBadRequest, `{"Error": {"code": 1017, "message": "Insufficient funds"}}`),
			place:     okPlace,
			wantErr:   "Order preview failed: Insufficient funds",
			wantState: StateFailed,
			calls:     1,
		},
		{
			name:      "preview rejected without body",
			preview:   respond(http.StatusServiceUnavailable, ``),
			place:     okPlace,
			wantErr:   "Order preview failed: HTTP 503",
			wantState: StateFailed,
			calls:     1,
		},
		{
			name:      "preview 200 without id",
			preview:   respond(http.StatusOK, `{"Error": {"message": "Symbol not tradable"}}`),
			place:     okPlace,
			wantErr:   "Order preview failed: Symbol not tradable",
			wantState: StateFailed,
			calls:     1,
		},
		{
			name:      "preview 200 with empty ids",
			preview:   respond(http.StatusOK, `{"PreviewOrderResponse": {"PreviewIds": []}}`),
			place:     okPlace,
			wantErr:   "Order preview failed: response has no preview ID",
			wantState: StateFailed,
			calls:     1,
		},
		{
			name:      "place rejected",
			preview:   okPreview,
			place:     respond(http.StatusBadRequest, `{"Error": {"message": "Market closed"}}`),
			wantErr:   "Order placement failed: Market closed",
			wantState: StateFailed,
			previewID: "PID1",
			calls:     2,
		},
		{
			name:      "place 500 without body",
			preview:   okPreview,
			place:     respond(http.StatusInternalServerError, `oops`),
			wantErr:   "Order placement failed: HTTP 500",
			wantState: StateFailed,
			previewID: "PID1",
			calls:     2,
		},
		{
			name:      "place 200 without order id",
			preview:   okPreview,
			place:     respond(http.StatusOK, `{"PlaceOrderResponse": {}}`),
			wantErr:   "Order placement failed: response has no order ID",
			wantState: StateFailed,
			previewID: "PID1",
			calls:     2,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := newBrokerage(t, previewAndPlace(tt.preview, tt.place))

			result := b.manager().Submit(context.Background(), marketBuy)

			assert.False(t, result.Success)
			assert.Equal(t, tt.wantErr, result.Error)
			assert.Equal(t, tt.wantState, result.State)
			assert.Equal(t, tt.previewID, result.PreviewID)
			assert.Empty(t, result.OrderID)
			assert.Equal(t, "AAPL", result.Symbol)
			assert.Len(t, b.calls, tt.calls, "no retries")
		})
	}
}

func TestManager_Submit_ValidationMakesNoRequest(t *testing.T) {
	b := newBrokerage(t, respond(http.StatusOK, `{}`))

	req := marketBuy
	req.Quantity = 0
	result := b.manager().Submit(context.Background(), req)

	assert.False(t, result.Success)
	assert.Equal(t, StateFailed, result.State)
	assert.Contains(t, result.Error, "quantity must be greater than zero")
	assert.Empty(t, b.calls)
}

func TestManager_Submit_TransportError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	server.Close()

	result := NewManager(session.NewStatic(server.URL, nil)).Submit(context.Background(), marketBuy)

	assert.False(t, result.Success)
	assert.Equal(t, StateFailed, result.State)
	assert.Contains(t, result.Error, "Order preview failed: request failed")
}

func TestManager_NilSession(t *testing.T) {
	m := NewManager(nil)

	result := m.Submit(context.Background(), marketBuy)
	assert.False(t, result.Success)
	assert.Equal(t, "no brokerage session available", result.Error)

	cancel := m.Cancel(context.Background(), "acct", "OID1")
	assert.False(t, cancel.Success)
	assert.Equal(t, "no brokerage session available", cancel.Error)

	orders := m.ListOrders(context.Background(), "acct", "")
	assert.False(t, orders.Success)
	assert.Equal(t, "no brokerage session available", orders.Error)
}

func TestManager_Cancel(t *testing.T) {
	tests := []struct {
		name        string
		status      int
		body        string
		wantSuccess bool
		wantErr     string
	}{
		{"accepted", http.StatusOK, `{"CancelOrderResponse": {"orderId": 1}}`, true, ""},
		{"already filled", http.StatusBadRequest, `{"Error":{"message":"Order already filled"}}`, false, "Order already filled"},
		{"no message", http.StatusNotFound, ``, false, "HTTP 404"},
		{"xml error", http.StatusBadRequest, `<Error><code>5001</code><message>Order not found</message></Error>`, false, "Order not found"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := newBrokerage(t, func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, http.MethodPut, r.Method)
				assert.Equal(t, "/v1/accounts/acct/orders/cancel.json", r.URL.Path)
				assert.Equal(t, "application/xml", r.Header.Get("Content-Type"))
				respond(tt.status, tt.body)(w, r)
			})

			result := b.manager().Cancel(context.Background(), "acct", "OID1")

			assert.Equal(t, tt.wantSuccess, result.Success)
			assert.Equal(t, tt.wantErr, result.Error)
			assert.Equal(t, "OID1", result.OrderID)

			var req cancelOrderRequest
			require.NoError(t, xml.Unmarshal(b.bodies["/v1/accounts/acct/orders/cancel.json"], &req))
			assert.Equal(t, "OID1", req.OrderID)
		})
	}
}

func TestManager_Cancel_Validation(t *testing.T) {
	b := newBrokerage(t, respond(http.StatusOK, `{}`))
	m := b.manager()

	assert.Equal(t, "order ID is required", m.Cancel(context.Background(), "acct", " ").Error)
	assert.Equal(t, "account ID key is required", m.Cancel(context.Background(), "", "OID1").Error)
	assert.Empty(t, b.calls)
}

func TestManager_ListOrders(t *testing.T) {
	b := newBrokerage(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/v1/accounts/acct/orders.json", r.URL.Path)
		assert.Equal(t, "EXECUTED", r.URL.Query().Get("status"))
		_, _ = w.Write([]byte(`{"OrdersResponse": {"Order": [
			{"orderId": 12345, "orderType": "EQ", "OrderDetail": [{
				"placedTime": 1700000000000,
				"status": "EXECUTED",
				"priceType": "LIMIT",
				"orderTerm": "GOOD_FOR_DAY",
				"limitPrice": 150.25,
				"Instrument": [{
					"Product": {"symbol": "AAPL", "securityType": "EQ"},
					"orderAction": "BUY",
					"orderedQuantity": 10,
					"filledQuantity": 10
				}]
			}]},
			{"orderId": "67890", "OrderDetail": []}
		]}}`))
	})

	result := b.manager().ListOrders(context.Background(), "acct", "executed")

	require.True(t, result.Success, result.Error)
	assert.Equal(t, "EXECUTED", result.Status)
	require.Len(t, result.Orders, 2)

	first := result.Orders[0]
	assert.Equal(t, "12345", first.OrderID)
	assert.Equal(t, "AAPL", first.Symbol)
	assert.Equal(t, "BUY", first.Action)
	assert.Equal(t, "10", first.Quantity.String())
	assert.Equal(t, "10", first.FilledQuantity.String())
	require.NotNil(t, first.LimitPrice)
	assert.Equal(t, "150.25", first.LimitPrice.String())
	assert.Equal(t, int64(1700000000000), first.PlacedTime)

	assert.Equal(t, "67890", result.Orders[1].OrderID)
	assert.Empty(t, result.Orders[1].Symbol)
}

func TestManager_ListOrders_DefaultsAndErrors(t *testing.T) {
	t.Run("empty status is open", func(t *testing.T) {
		b := newBrokerage(t, func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "OPEN", r.URL.Query().Get("status"))
			w.WriteHeader(http.StatusNoContent)
		})
		result := b.manager().ListOrders(context.Background(), "acct", "")
		assert.True(t, result.Success)
		assert.Empty(t, result.Orders)
	})

	t.Run("invalid status", func(t *testing.T) {
		b := newBrokerage(t, respond(http.StatusOK, `{}`))
		result := b.manager().ListOrders(context.Background(), "acct", "pending")
		assert.False(t, result.Success)
		assert.Contains(t, result.Error, `invalid order status "PENDING"`)
		assert.Empty(t, b.calls)
	})

	t.Run("server error", func(t *testing.T) {
		b := newBrokerage(t, respond(http.StatusUnauthorized, `{"Error": {"message": "oauth_problem=token_expired"}}`))
		result := b.manager().ListOrders(context.Background(), "acct", "OPEN")
		assert.False(t, result.Success)
		assert.Equal(t, "oauth_problem=token_expired", result.Error)
	})
}

func TestManager_GetOrder(t *testing.T) {
	b := newBrokerage(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/accounts/acct/orders/555.json", r.URL.Path)
		_, _ = w.Write([]byte(`{"OrdersResponse": {"Order": [{"orderId": 555, "OrderDetail": [{"status": "OPEN"}]}]}}`))
	})

	result := b.manager().GetOrder(context.Background(), "acct", "555")

	require.True(t, result.Success, result.Error)
	require.Len(t, result.Orders, 1)
	assert.Equal(t, "555", result.Orders[0].OrderID)
	assert.Equal(t, "OPEN", result.Orders[0].Status)

	assert.Equal(t, "order ID is required", b.manager().GetOrder(context.Background(), "acct", "").Error)
}
