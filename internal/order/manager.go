package order

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/jonandersen/etrade-cli/internal/logging"
	"github.com/jonandersen/etrade-cli/internal/session"
	"github.com/jonandersen/etrade-cli/pkg/etradeapi"
)

// Order statuses accepted by ListOrders.
const (
	StatusOpen            = "OPEN"
	StatusExecuted        = "EXECUTED"
	StatusCancelled       = "CANCELLED"
	StatusCancelRequested = "CANCEL_REQUESTED"
	StatusIndividualFills = "INDIVIDUAL_FILLS"
	StatusRejected        = "REJECTED"
	StatusExpired         = "EXPIRED"
)

// Statuses lists the order statuses accepted by ListOrders.
var Statuses = []string{
	StatusOpen, StatusExecuted, StatusCancelled, StatusCancelRequested,
	StatusIndividualFills, StatusRejected, StatusExpired,
}

// Manager drives orders through preview, place and cancel. It holds no
// order state between calls; the brokerage is authoritative.
type Manager struct {
	session session.Session
	log     logrus.FieldLogger
}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithLogger sets the logger.
func WithLogger(log logrus.FieldLogger) ManagerOption {
	return func(m *Manager) {
		if log != nil {
			m.log = log
		}
	}
}

// NewManager creates a Manager that borrows sess for every request.
func NewManager(sess session.Session, opts ...ManagerOption) *Manager {
	m := &Manager{session: sess, log: logging.Discard()}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Submit builds req, previews it and places it using the fresh preview ID,
// all in one call. Any failure ends the submission in StateFailed with the
// reason in Result.Error; nothing is retried.
func (m *Manager) Submit(ctx context.Context, req Request) Result {
	built, err := Build(req)
	if err != nil {
		return Result{
			Symbol:   strings.ToUpper(strings.TrimSpace(req.Symbol)),
			Action:   req.Action,
			Quantity: req.Quantity,
			State:    StateFailed,
			Error:    err.Error(),
		}
	}

	sub := newSubmission(built)
	log := m.log.WithFields(logrus.Fields{
		"submission_id":   uuid.NewString(),
		"client_order_id": built.ClientOrderID,
		"symbol":          built.Symbol,
		"action":          built.Action,
		"quantity":        built.Quantity,
	})

	if m.session == nil {
		return m.fail(log, sub, etradeapi.NewError(etradeapi.KindConfiguration, "", "no brokerage session available", nil))
	}

	preview, err := m.preview(ctx, built)
	if err != nil {
		return m.fail(log, sub, err)
	}
	sub.previewID = preview.previewID()
	if err := sub.advance(StatePreviewed); err != nil {
		return m.fail(log, sub, err)
	}
	log.WithField("preview_id", sub.previewID).Info("order previewed")

	orderID, err := m.place(ctx, built, sub.previewID)
	if err != nil {
		return m.fail(log, sub, err)
	}
	sub.orderID = orderID
	if err := sub.advance(StatePlaced); err != nil {
		return m.fail(log, sub, err)
	}
	log.WithFields(logrus.Fields{
		"preview_id": sub.previewID,
		"order_id":   sub.orderID,
	}).Info("order placed")

	result := sub.result()
	result.EstimatedTotal, result.EstimatedCommission = preview.estimates()
	return result
}

func (m *Manager) fail(log logrus.FieldLogger, sub *submission, err error) Result {
	sub.state = StateFailed
	log.WithError(err).Warn("order submission failed")
	result := sub.result()
	result.Error = err.Error()
	return result
}

func (m *Manager) preview(ctx context.Context, req *Request) (*previewResponse, error) {
	body, err := marshalPreview(req)
	if err != nil {
		return nil, err
	}

	resp, err := m.session.Post(ctx, accountPath(req.AccountIDKey, "/orders/preview.json"), body, nil)
	if err != nil {
		return nil, stepError(etradeapi.KindTransport, "Order preview failed", err.Error(), err)
	}
	if msg, failed := failureMessage(resp); failed {
		return nil, stepError(etradeapi.KindUpstream, "Order preview failed", msg, nil)
	}

	var pr previewResponse
	if err := etradeapi.DecodeJSON(resp.Body, &pr); err != nil {
		return nil, stepError(etradeapi.KindParse, "Order preview failed", err.Error(), err)
	}
	if pr.previewID() == "" {
		return nil, stepError(etradeapi.KindUpstream, "Order preview failed", missingIDMessage(resp.Body, "preview"), nil)
	}
	return &pr, nil
}

func (m *Manager) place(ctx context.Context, req *Request, previewID string) (string, error) {
	body, err := marshalPlace(req, previewID)
	if err != nil {
		return "", err
	}

	resp, err := m.session.Post(ctx, accountPath(req.AccountIDKey, "/orders/place.json"), body, nil)
	if err != nil {
		return "", stepError(etradeapi.KindTransport, "Order placement failed", err.Error(), err)
	}
	if msg, failed := failureMessage(resp); failed {
		return "", stepError(etradeapi.KindUpstream, "Order placement failed", msg, nil)
	}

	var pr placeResponse
	if err := etradeapi.DecodeJSON(resp.Body, &pr); err != nil {
		return "", stepError(etradeapi.KindParse, "Order placement failed", err.Error(), err)
	}
	if pr.orderID() == "" {
		return "", stepError(etradeapi.KindUpstream, "Order placement failed", missingIDMessage(resp.Body, "order"), nil)
	}
	return pr.orderID(), nil
}

// Cancel asks the brokerage to cancel orderID. It does not need the
// submission that placed the order.
func (m *Manager) Cancel(ctx context.Context, accountIDKey, orderID string) CancelResult {
	result := CancelResult{OrderID: strings.TrimSpace(orderID)}
	accountIDKey = strings.TrimSpace(accountIDKey)

	switch {
	case accountIDKey == "":
		result.Error = validationError("account ID key is required").Error()
		return result
	case result.OrderID == "":
		result.Error = validationError("order ID is required").Error()
		return result
	case m.session == nil:
		result.Error = etradeapi.NewError(etradeapi.KindConfiguration, "", "no brokerage session available", nil).Error()
		return result
	}

	log := m.log.WithFields(logrus.Fields{"order_id": result.OrderID})

	body, err := marshalCancel(result.OrderID)
	if err != nil {
		result.Error = err.Error()
		return result
	}

	resp, err := m.session.Put(ctx, accountPath(accountIDKey, "/orders/cancel.json"), body, nil)
	if err != nil {
		log.WithError(err).Warn("order cancel failed")
		result.Error = err.Error()
		return result
	}
	if msg, failed := failureMessage(resp); failed {
		log.WithField("status", resp.StatusCode).Warn("order cancel rejected")
		result.Error = msg
		return result
	}

	log.Info("order cancelled")
	result.Success = true
	result.State = StateCancelled
	return result
}

// ListOrders returns the account's orders with the given status. An empty
// status means OPEN.
func (m *Manager) ListOrders(ctx context.Context, accountIDKey, status string) OrdersResult {
	status = strings.ToUpper(strings.TrimSpace(status))
	if status == "" {
		status = StatusOpen
	}
	result := OrdersResult{Status: status, Orders: []Summary{}}

	if !validStatus(status) {
		result.Error = validationError(fmt.Sprintf("invalid order status %q (use %s)", status, strings.Join(Statuses, ", "))).Error()
		return result
	}

	params := url.Values{}
	params.Set("status", status)
	return m.fetchOrders(ctx, accountIDKey, "/orders.json", params, result)
}

// GetOrder returns a single order by ID.
func (m *Manager) GetOrder(ctx context.Context, accountIDKey, orderID string) OrdersResult {
	result := OrdersResult{Orders: []Summary{}}
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		result.Error = validationError("order ID is required").Error()
		return result
	}
	return m.fetchOrders(ctx, accountIDKey, "/orders/"+url.PathEscape(orderID)+".json", nil, result)
}

func (m *Manager) fetchOrders(ctx context.Context, accountIDKey, suffix string, params url.Values, result OrdersResult) OrdersResult {
	accountIDKey = strings.TrimSpace(accountIDKey)
	if accountIDKey == "" {
		result.Error = validationError("account ID key is required").Error()
		return result
	}
	if m.session == nil {
		result.Error = etradeapi.NewError(etradeapi.KindConfiguration, "", "no brokerage session available", nil).Error()
		return result
	}

	resp, err := m.session.Get(ctx, accountPath(accountIDKey, suffix), params, nil)
	if err != nil {
		result.Error = err.Error()
		return result
	}
	// The order list answers 204 when nothing matches.
	if resp.StatusCode == http.StatusNoContent {
		result.Success = true
		return result
	}
	if msg, failed := failureMessage(resp); failed {
		result.Error = msg
		return result
	}

	var or ordersResponse
	if err := etradeapi.DecodeJSON(resp.Body, &or); err != nil {
		result.Error = err.Error()
		return result
	}
	if or.OrdersResponse != nil {
		for _, o := range or.OrdersResponse.Order {
			result.Orders = append(result.Orders, o.summary())
		}
	}
	result.Success = true
	return result
}

func validStatus(status string) bool {
	for _, s := range Statuses {
		if s == status {
			return true
		}
	}
	return false
}

func accountPath(accountIDKey, suffix string) string {
	return "/v1/accounts/" + url.PathEscape(accountIDKey) + suffix
}

// failureMessage returns the server-reported message for a non-200 response,
// or "HTTP <status>" when the body has none.
func failureMessage(resp *session.Response) (string, bool) {
	if resp.OK() {
		return "", false
	}
	msg, _ := etradeapi.ErrorMessage(resp.Body)
	if msg == "" {
		msg = (&etradeapi.APIError{StatusCode: resp.StatusCode}).Text()
	}
	return msg, true
}

// missingIDMessage describes a 200 response that lacked the expected ID.
func missingIDMessage(body []byte, what string) string {
	if msg, _ := etradeapi.ErrorMessage(body); msg != "" {
		return msg
	}
	return "response has no " + what + " ID"
}

func stepError(kind etradeapi.Kind, step, msg string, err error) error {
	return etradeapi.NewError(kind, step, msg, err)
}
