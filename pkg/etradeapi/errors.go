// Package etradeapi provides error types and response helpers shared by the
// E*TRADE client packages.
//
// This package can be imported by external projects that talk to the same
// endpoints and want the same error classification.
package etradeapi

import (
	"encoding/json"
	"encoding/xml"
	"fmt"
	"net/http"
	"strings"
)

// Kind classifies a failure so callers can decide whether it is terminal.
type Kind int

const (
	// KindConfiguration means no provider is reachable or a required
	// credential or session is missing.
	KindConfiguration Kind = iota + 1
	// KindValidation means the caller supplied a malformed request.
	KindValidation
	// KindTransport covers network failures, timeouts and non-200 responses
	// without a parseable body.
	KindTransport
	// KindUpstream means the source answered but reported an application error.
	KindUpstream
	// KindParse means the body did not match any known schema.
	KindParse
)

// String returns the human-readable name of the kind.
func (k Kind) String() string {
	switch k {
	case KindConfiguration:
		return "configuration"
	case KindValidation:
		return "validation"
	case KindTransport:
		return "transport"
	case KindUpstream:
		return "upstream"
	case KindParse:
		return "parse"
	default:
		return "unknown"
	}
}

// Sentinels for errors.Is checks against a Kind.
var (
	ErrConfiguration = &Error{Kind: KindConfiguration}
	ErrValidation    = &Error{Kind: KindValidation}
	ErrTransport     = &Error{Kind: KindTransport}
	ErrUpstream      = &Error{Kind: KindUpstream}
	ErrParse         = &Error{Kind: KindParse}
)

// Error is a classified failure attributed to a source (a provider name,
// "preview", "place", ...).
type Error struct {
	Kind    Kind
	Source  string
	Message string
	Err     error
}

// NewError creates a classified error.
func NewError(kind Kind, source, message string, err error) *Error {
	return &Error{Kind: kind, Source: source, Message: message, Err: err}
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	if msg == "" {
		msg = e.Kind.String() + " error"
	}
	if e.Source != "" {
		return e.Source + ": " + msg
	}
	return msg
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether target is the sentinel for e's kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Source == "" && t.Message == "" && t.Err == nil && t.Kind == e.Kind
}

// APIError represents an error response from the E*TRADE API.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
}

// Error implements the error interface.
func (e *APIError) Error() string {
	return fmt.Sprintf("API error (%d): %s", e.StatusCode, e.Text())
}

// Text returns the server-reported message, or "HTTP <status>" when the body
// carried none.
func (e *APIError) Text() string {
	if e.Message != "" {
		return e.Message
	}
	return fmt.Sprintf("HTTP %d", e.StatusCode)
}

// IsNotFound returns true if the error is a 404 Not Found.
func (e *APIError) IsNotFound() bool {
	return e.StatusCode == http.StatusNotFound
}

// IsUnauthorized returns true if the error is a 401 Unauthorized.
func (e *APIError) IsUnauthorized() bool {
	return e.StatusCode == http.StatusUnauthorized
}

// IsRateLimited returns true if the error is a 429 Too Many Requests.
func (e *APIError) IsRateLimited() bool {
	return e.StatusCode == http.StatusTooManyRequests
}

// errorBody is the JSON error envelope, {"Error":{"code":..,"message":..}}.
// Some gateways answer with flat {"error": ..} or {"message": ..} instead.
type errorBody struct {
	Error *struct {
		Code    json.RawMessage `json:"code"`
		Message string          `json:"message"`
	} `json:"Error"`
	FlatError   string `json:"error"`
	FlatMessage string `json:"message"`
}

type xmlErrorBody struct {
	XMLName xml.Name `xml:"Error"`
	Code    string   `xml:"code"`
	Message string   `xml:"message"`
}

// ErrorMessage extracts the server-reported error message and code from a
// response body. It returns empty strings when the body carries none.
func ErrorMessage(body []byte) (message, code string) {
	trimmed := strings.TrimSpace(string(body))
	if trimmed == "" {
		return "", ""
	}

	if strings.HasPrefix(trimmed, "<") {
		var xe xmlErrorBody
		if err := xml.Unmarshal([]byte(trimmed), &xe); err != nil {
			return "", ""
		}
		return xe.Message, xe.Code
	}

	var eb errorBody
	if err := json.Unmarshal([]byte(trimmed), &eb); err != nil {
		// Body is not JSON, ignore parsing error
		return "", ""
	}
	if eb.Error != nil {
		return eb.Error.Message, strings.Trim(string(eb.Error.Code), `"`)
	}
	if eb.FlatError != "" {
		return eb.FlatError, ""
	}
	return eb.FlatMessage, ""
}

// CheckResponse checks a response status and body for errors.
// If the status code is not 2xx it returns an *APIError carrying the
// server-reported message when one is present. Otherwise, returns nil.
func CheckResponse(statusCode int, body []byte) error {
	if statusCode >= 200 && statusCode < 300 {
		return nil
	}

	msg, code := ErrorMessage(body)
	return &APIError{
		StatusCode: statusCode,
		Code:       code,
		Message:    msg,
	}
}

// DecodeJSON decodes a JSON response body into the given target.
func DecodeJSON(body []byte, target any) error {
	if err := json.Unmarshal(body, target); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
