// Package provider retrieves options chains from the brokerage and from
// public market-data sources, normalizing each source into market.ChainResult.
package provider

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/jonandersen/etrade-cli/internal/logging"
	"github.com/jonandersen/etrade-cli/internal/market"
	"github.com/jonandersen/etrade-cli/internal/session"
	"github.com/jonandersen/etrade-cli/pkg/etradeapi"
)

// Provider names as reported in ChainResult.Provider.
const (
	NamePrimary   = "ETRADE"
	NameSecondary = "CBOE"
	NameTertiary  = "NASDAQ"
	NameAuto      = "AUTO"
)

// DefaultAttemptTimeout bounds each network attempt of a probing provider.
const DefaultAttemptTimeout = 5 * time.Second

// Provider retrieves one source's options chain. GetOptionsChain never
// returns a Go error: failures are reported through ChainResult.Error.
type Provider interface {
	// Name identifies the provider.
	Name() string
	// IsAvailable checks local preconditions only and performs no I/O.
	IsAvailable() bool
	GetOptionsChain(ctx context.Context, req market.ChainRequest) market.ChainResult
}

// browserHeaders are sent to public sources that reject non-browser clients.
func browserHeaders(accept string) http.Header {
	return http.Header{
		"User-Agent":      {"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0 Safari/537.36"},
		"Accept":          {accept},
		"Accept-Language": {"en-US,en;q=0.9"},
	}
}

func loggerOrDiscard(log logrus.FieldLogger) logrus.FieldLogger {
	if log == nil {
		return logging.Discard()
	}
	return log
}

// attempt is one candidate request in a probing sequence.
type attempt struct {
	url     string
	params  url.Values
	headers http.Header
	// parse turns a 200 body into a result. ok=false means "no data here".
	parse func(body []byte) (market.ChainResult, bool)
}

// prober runs attempts sequentially and stops at the first one that parses.
// A 429 from a host skips every later attempt against the same host for the
// rest of the invocation.
type prober struct {
	name    string
	http    session.Session
	timeout time.Duration
	log     logrus.FieldLogger
}

// probeOutcome summarizes a failed probing sequence.
type probeOutcome struct {
	tried       int
	rateLimited []string
	parseFailed bool
	lastErr     error
}

// failure converts an exhausted probe into a classified error.
func (o probeOutcome) failure(source, message string) *etradeapi.Error {
	kind := etradeapi.KindTransport
	if o.parseFailed {
		kind = etradeapi.KindParse
	}
	if len(o.rateLimited) > 0 {
		message += " (rate limited by " + strings.Join(o.rateLimited, ", ") + ")"
	}
	if o.lastErr != nil {
		message += ": " + o.lastErr.Error()
	}
	return etradeapi.NewError(kind, source, message, o.lastErr)
}

func (p *prober) run(ctx context.Context, attempts []attempt, limited map[string]bool) (market.ChainResult, bool, probeOutcome) {
	var out probeOutcome

	for _, a := range attempts {
		if ctx.Err() != nil {
			out.lastErr = ctx.Err()
			break
		}

		host := hostOf(a.url)
		log := p.log.WithFields(logrus.Fields{"provider": p.name, "url": a.url})
		if limited[host] {
			log.Debug("skipping rate-limited source")
			continue
		}

		out.tried++
		log.Debug("probing options source")

		resp, err := p.get(ctx, a)
		if err != nil {
			log.WithError(err).Debug("options source request failed")
			out.lastErr = err
			continue
		}

		switch {
		case resp.StatusCode == http.StatusTooManyRequests:
			log.Warn("options source rate limited, not retrying this source")
			limited[host] = true
			out.rateLimited = append(out.rateLimited, host)
			continue
		case !resp.OK():
			log.WithField("status", resp.StatusCode).Debug("options source returned non-200")
			out.lastErr = &etradeapi.APIError{StatusCode: resp.StatusCode}
			continue
		}

		result, ok := a.parse(resp.Body)
		if !ok {
			log.Debug("options source returned no usable data")
			out.parseFailed = true
			continue
		}

		log.WithField("contracts", len(result.Calls)+len(result.Puts)).Info("options source answered")
		return result, true, out
	}

	return market.ChainResult{}, false, out
}

func (p *prober) get(ctx context.Context, a attempt) (*session.Response, error) {
	timeout := p.timeout
	if timeout <= 0 {
		timeout = DefaultAttemptTimeout
	}
	attemptCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	return p.http.Get(attemptCtx, a.url, a.params, a.headers)
}

func hostOf(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return raw
	}
	return u.Host
}
