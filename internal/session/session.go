// Package session provides the HTTP sessions used to reach the brokerage
// and the public market-data sources.
//
// A Session is borrowed by providers and the order manager; it is never
// closed by them. Both implementations wrap an *http.Client and are safe for
// concurrent use.
package session

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/dghubble/oauth1"
)

// DefaultTimeout bounds a single request when the caller's context has no
// earlier deadline.
const DefaultTimeout = 30 * time.Second

// maxBodySize caps how much of a response body is read into memory.
const maxBodySize = 10 << 20

// Response is a fully read HTTP response.
type Response struct {
	StatusCode int
	Body       []byte
}

// OK reports whether the status code is 200.
func (r *Response) OK() bool {
	return r.StatusCode == http.StatusOK
}

// Session performs requests against a base URL. Paths that are already
// absolute URLs are used as-is.
type Session interface {
	BaseURL() string
	Get(ctx context.Context, path string, params url.Values, headers http.Header) (*Response, error)
	Post(ctx context.Context, path string, body []byte, headers http.Header) (*Response, error)
	Put(ctx context.Context, path string, body []byte, headers http.Header) (*Response, error)
}

// Credentials are the already-issued OAuth 1.0a consumer and access tokens.
type Credentials struct {
	ConsumerKey       string
	ConsumerSecret    string
	AccessToken       string
	AccessTokenSecret string
}

// Complete reports whether every credential is present.
func (c Credentials) Complete() bool {
	return c.ConsumerKey != "" && c.ConsumerSecret != "" &&
		c.AccessToken != "" && c.AccessTokenSecret != ""
}

// client is the request plumbing shared by OAuth1 and Static.
type client struct {
	baseURL    string
	httpClient *http.Client
	headers    http.Header
}

func newClient(baseURL string, httpClient *http.Client) client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: DefaultTimeout}
	}
	return client{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		httpClient: httpClient,
		headers:    http.Header{},
	}
}

// BaseURL returns the base URL requests are resolved against.
func (c *client) BaseURL() string {
	return c.baseURL
}

// Get performs a GET request with optional query parameters.
func (c *client) Get(ctx context.Context, path string, params url.Values, headers http.Header) (*Response, error) {
	target := c.resolve(path)
	if len(params) > 0 {
		sep := "?"
		if strings.Contains(target, "?") {
			sep = "&"
		}
		target = target + sep + params.Encode()
	}
	return c.do(ctx, http.MethodGet, target, nil, headers)
}

// Post performs a POST request with the given body.
func (c *client) Post(ctx context.Context, path string, body []byte, headers http.Header) (*Response, error) {
	return c.do(ctx, http.MethodPost, c.resolve(path), body, headers)
}

// Put performs a PUT request with the given body.
func (c *client) Put(ctx context.Context, path string, body []byte, headers http.Header) (*Response, error) {
	return c.do(ctx, http.MethodPut, c.resolve(path), body, headers)
}

func (c *client) resolve(path string) string {
	if strings.HasPrefix(path, "http://") || strings.HasPrefix(path, "https://") {
		return path
	}
	if path != "" && !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return c.baseURL + path
}

// do performs a single HTTP request and reads the whole body.
func (c *client) do(ctx context.Context, method, target string, bodyBytes []byte, headers http.Header) (*Response, error) {
	var body io.Reader
	if bodyBytes != nil {
		body = bytes.NewReader(bodyBytes)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Accept", "application/json")
	if bodyBytes != nil {
		req.Header.Set("Content-Type", "application/xml")
	}
	for k, v := range c.headers {
		req.Header[k] = v
	}
	for k, v := range headers {
		req.Header[http.CanonicalHeaderKey(k)] = v
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	return &Response{StatusCode: resp.StatusCode, Body: data}, nil
}

// OAuth1 is a brokerage session that signs every request with OAuth 1.0a
// HMAC-SHA1 using already-issued access tokens.
type OAuth1 struct {
	client
}

// NewOAuth1 creates a signed session against baseURL.
func NewOAuth1(baseURL string, creds Credentials) (*OAuth1, error) {
	if !creds.Complete() {
		return nil, fmt.Errorf("incomplete credentials: consumer key, consumer secret, access token and access token secret are required")
	}

	config := oauth1.NewConfig(creds.ConsumerKey, creds.ConsumerSecret)
	httpClient := config.Client(oauth1.NoContext, oauth1.NewToken(creds.AccessToken, creds.AccessTokenSecret))
	httpClient.Timeout = DefaultTimeout

	c := newClient(baseURL, httpClient)
	c.headers.Set("consumerkey", creds.ConsumerKey)
	return &OAuth1{client: c}, nil
}

// Static is an unsigned session. It reaches the public market-data sources
// and serves as a brokerage stand-in in tests.
type Static struct {
	client
}

// NewStatic creates an unsigned session. A nil httpClient gets a client with
// DefaultTimeout.
func NewStatic(baseURL string, httpClient *http.Client) *Static {
	return &Static{client: newClient(baseURL, httpClient)}
}
