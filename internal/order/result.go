package order

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// State is the lifecycle state of a single submission.
type State string

const (
	StateBuilt     State = "BUILT"
	StatePreviewed State = "PREVIEWED"
	StatePlaced    State = "PLACED"
	StateFailed    State = "FAILED"
	StateCancelled State = "CANCELLED"
)

// transitions lists the states reachable from each state.
var transitions = map[State][]State{
	StateBuilt:     {StatePreviewed, StateFailed},
	StatePreviewed: {StatePlaced, StateFailed},
	StatePlaced:    {StateCancelled},
}

// CanTransition reports whether from may advance to to.
func CanTransition(from, to State) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// submission tracks one Build -> Preview -> Place run. It lives only for the
// duration of Manager.Submit.
type submission struct {
	req       *Request
	state     State
	previewID string
	orderID   string
}

func newSubmission(req *Request) *submission {
	return &submission{req: req, state: StateBuilt}
}

func (s *submission) advance(to State) error {
	if !CanTransition(s.state, to) {
		return fmt.Errorf("invalid order state transition %s -> %s", s.state, to)
	}
	s.state = to
	return nil
}

// Result is the outcome of Manager.Submit. Error is empty on success.
type Result struct {
	Success             bool             `json:"success"`
	OrderID             string           `json:"order_id,omitempty"`
	PreviewID           string           `json:"preview_id,omitempty"`
	ClientOrderID       string           `json:"client_order_id,omitempty"`
	Symbol              string           `json:"symbol,omitempty"`
	Action              Action           `json:"action,omitempty"`
	Quantity            int              `json:"quantity,omitempty"`
	EstimatedTotal      *decimal.Decimal `json:"estimated_total,omitempty"`
	EstimatedCommission *decimal.Decimal `json:"estimated_commission,omitempty"`
	State               State            `json:"state"`
	Error               string           `json:"error,omitempty"`
}

func (s *submission) result() Result {
	r := Result{
		Success:   s.state == StatePlaced,
		OrderID:   s.orderID,
		PreviewID: s.previewID,
		State:     s.state,
	}
	if s.req != nil {
		r.ClientOrderID = s.req.ClientOrderID
		r.Symbol = s.req.Symbol
		r.Action = s.req.Action
		r.Quantity = s.req.Quantity
	}
	return r
}

// CancelResult is the outcome of Manager.Cancel.
type CancelResult struct {
	Success bool   `json:"success"`
	OrderID string `json:"order_id"`
	State   State  `json:"state,omitempty"`
	Error   string `json:"error,omitempty"`
}

// Summary is a flattened view of one brokerage order.
type Summary struct {
	OrderID        string           `json:"order_id"`
	Status         string           `json:"status"`
	Symbol         string           `json:"symbol"`
	Action         string           `json:"action"`
	Quantity       decimal.Decimal  `json:"quantity"`
	FilledQuantity decimal.Decimal  `json:"filled_quantity"`
	PriceType      string           `json:"price_type"`
	LimitPrice     *decimal.Decimal `json:"limit_price,omitempty"`
	Term           string           `json:"order_term"`
	PlacedTime     int64            `json:"placed_time,omitempty"`
}

// OrdersResult is the outcome of Manager.ListOrders and Manager.GetOrder.
type OrdersResult struct {
	Success bool      `json:"success"`
	Status  string    `json:"status,omitempty"`
	Orders  []Summary `json:"orders"`
	Error   string    `json:"error,omitempty"`
}

// ordersResponse is the brokerage order list envelope.
type ordersResponse struct {
	OrdersResponse *struct {
		Order []orderModel `json:"Order"`
	} `json:"OrdersResponse"`
}

type orderModel struct {
	OrderID     flexID `json:"orderId"`
	OrderType   string `json:"orderType"`
	OrderDetail []struct {
		PlacedTime int64            `json:"placedTime"`
		Status     string           `json:"status"`
		PriceType  string           `json:"priceType"`
		OrderTerm  string           `json:"orderTerm"`
		LimitPrice *decimal.Decimal `json:"limitPrice"`
		Instrument []struct {
			Product struct {
				Symbol       string `json:"symbol"`
				SecurityType string `json:"securityType"`
			} `json:"Product"`
			OrderAction     string          `json:"orderAction"`
			OrderedQuantity decimal.Decimal `json:"orderedQuantity"`
			FilledQuantity  decimal.Decimal `json:"filledQuantity"`
		} `json:"Instrument"`
	} `json:"OrderDetail"`
}

func (o orderModel) summary() Summary {
	s := Summary{OrderID: string(o.OrderID)}
	if len(o.OrderDetail) == 0 {
		return s
	}
	d := o.OrderDetail[0]
	s.Status = d.Status
	s.PriceType = d.PriceType
	s.Term = d.OrderTerm
	s.PlacedTime = d.PlacedTime
	if d.LimitPrice != nil && d.LimitPrice.IsPositive() {
		s.LimitPrice = d.LimitPrice
	}
	if len(d.Instrument) > 0 {
		in := d.Instrument[0]
		s.Symbol = in.Product.Symbol
		s.Action = in.OrderAction
		s.Quantity = in.OrderedQuantity
		s.FilledQuantity = in.FilledQuantity
	}
	return s
}
