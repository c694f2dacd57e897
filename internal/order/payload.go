package order

import (
	"bytes"
	"encoding/json"
	"encoding/xml"
	"fmt"
	"strconv"

	"github.com/shopspring/decimal"
)

const (
	orderTypeEquity    = "EQ"
	securityTypeEquity = "EQ"
	marketSessionReg   = "REGULAR"
	quantityTypeShares = "QUANTITY"
)

type previewOrderRequest struct {
	XMLName       xml.Name `xml:"PreviewOrderRequest"`
	OrderType     string   `xml:"orderType"`
	ClientOrderID string   `xml:"clientOrderId"`
	Order         orderXML `xml:"Order"`
}

type placeOrderRequest struct {
	XMLName       xml.Name `xml:"PlaceOrderRequest"`
	OrderType     string   `xml:"orderType"`
	ClientOrderID string   `xml:"clientOrderId"`
	PreviewID     string   `xml:"previewId"`
	Order         orderXML `xml:"Order"`
}

type cancelOrderRequest struct {
	XMLName xml.Name `xml:"CancelOrderRequest"`
	OrderID string   `xml:"orderId"`
}

type orderXML struct {
	AllOrNone     bool          `xml:"allOrNone"`
	PriceType     string        `xml:"priceType"`
	OrderTerm     string        `xml:"orderTerm"`
	MarketSession string        `xml:"marketSession"`
	StopPrice     string        `xml:"stopPrice"`
	LimitPrice    string        `xml:"limitPrice"`
	Instrument    instrumentXML `xml:"Instrument"`
}

type instrumentXML struct {
	Product      productXML `xml:"Product"`
	OrderAction  string     `xml:"orderAction"`
	QuantityType string     `xml:"quantityType"`
	Quantity     int        `xml:"quantity"`
}

type productXML struct {
	SecurityType string `xml:"securityType"`
	Symbol       string `xml:"symbol"`
}

func newOrderXML(req *Request) orderXML {
	o := orderXML{
		PriceType:     string(req.PriceType),
		OrderTerm:     string(req.Term),
		MarketSession: marketSessionReg,
		Instrument: instrumentXML{
			Product:      productXML{SecurityType: securityTypeEquity, Symbol: req.Symbol},
			OrderAction:  string(req.Action),
			QuantityType: quantityTypeShares,
			Quantity:     req.Quantity,
		},
	}
	if req.PriceType == PriceLimit && req.LimitPrice != nil {
		o.LimitPrice = req.LimitPrice.String()
	}
	return o
}

func marshalPreview(req *Request) ([]byte, error) {
	return marshalXML(previewOrderRequest{
		OrderType:     orderTypeEquity,
		ClientOrderID: req.ClientOrderID,
		Order:         newOrderXML(req),
	})
}

func marshalPlace(req *Request, previewID string) ([]byte, error) {
	return marshalXML(placeOrderRequest{
		OrderType:     orderTypeEquity,
		ClientOrderID: req.ClientOrderID,
		PreviewID:     previewID,
		Order:         newOrderXML(req),
	})
}

func marshalCancel(orderID string) ([]byte, error) {
	return marshalXML(cancelOrderRequest{OrderID: orderID})
}

func marshalXML(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := xml.NewEncoder(&buf)
	enc.Indent("", "  ")
	if err := enc.Encode(v); err != nil {
		return nil, fmt.Errorf("failed to encode order request: %w", err)
	}
	return buf.Bytes(), nil
}

// flexID accepts identifiers sent either as JSON numbers or strings.
type flexID string

// UnmarshalJSON implements json.Unmarshaler.
func (f *flexID) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*f = ""
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*f = flexID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("invalid identifier %s", data)
	}
	if i, err := n.Int64(); err == nil {
		*f = flexID(strconv.FormatInt(i, 10))
		return nil
	}
	*f = flexID(n.String())
	return nil
}

type previewResponse struct {
	PreviewOrderResponse *struct {
		PreviewIDs []struct {
			PreviewID flexID `json:"previewId"`
		} `json:"PreviewIds"`
		Order []struct {
			EstimatedTotalAmount *decimal.Decimal `json:"estimatedTotalAmount"`
			EstimatedCommission  *decimal.Decimal `json:"estimatedCommission"`
		} `json:"Order"`
	} `json:"PreviewOrderResponse"`
}

func (r *previewResponse) previewID() string {
	if r.PreviewOrderResponse == nil || len(r.PreviewOrderResponse.PreviewIDs) == 0 {
		return ""
	}
	return string(r.PreviewOrderResponse.PreviewIDs[0].PreviewID)
}

// estimates returns the quoted total and commission of the first order leg.
func (r *previewResponse) estimates() (total, commission *decimal.Decimal) {
	if r.PreviewOrderResponse == nil || len(r.PreviewOrderResponse.Order) == 0 {
		return nil, nil
	}
	o := r.PreviewOrderResponse.Order[0]
	return o.EstimatedTotalAmount, o.EstimatedCommission
}

type placeResponse struct {
	PlaceOrderResponse *struct {
		OrderIDs []struct {
			OrderID flexID `json:"orderId"`
		} `json:"OrderIds"`
	} `json:"PlaceOrderResponse"`
}

func (r *placeResponse) orderID() string {
	if r.PlaceOrderResponse == nil || len(r.PlaceOrderResponse.OrderIDs) == 0 {
		return ""
	}
	return string(r.PlaceOrderResponse.OrderIDs[0].OrderID)
}
