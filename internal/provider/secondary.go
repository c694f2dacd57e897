package provider

import (
	"context"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/jonandersen/etrade-cli/internal/market"
	"github.com/jonandersen/etrade-cli/internal/session"
)

// NameSecondaryFallback labels results served by the secondary provider's
// fallback source.
const NameSecondaryFallback = "Yahoo Finance (via CBOE)"

// SecondaryConfig locates the exchange endpoints. Empty URLs are skipped.
type SecondaryConfig struct {
	Enabled bool
	// APIURL is the exchange website base (https://www.cboe.com).
	APIURL string
	// DataAPIURL is the exchange data API base (https://api.cboe.com).
	DataAPIURL string
	// FallbackURL is the unauthenticated fallback source base
	// (https://query1.finance.yahoo.com).
	FallbackURL string
	// AttemptTimeout bounds each request; zero means DefaultAttemptTimeout.
	AttemptTimeout time.Duration
}

// Secondary reads options chains from unauthenticated exchange endpoints,
// falling back to one public quote source.
type Secondary struct {
	cfg   SecondaryConfig
	probe prober
}

// NewSecondary creates the exchange provider. httpSession is an unsigned
// session used with absolute URLs.
func NewSecondary(cfg SecondaryConfig, httpSession session.Session, log logrus.FieldLogger) *Secondary {
	if httpSession == nil {
		httpSession = session.NewStatic("", nil)
	}
	return &Secondary{
		cfg: cfg,
		probe: prober{
			name:    NameSecondary,
			http:    httpSession,
			timeout: cfg.AttemptTimeout,
			log:     loggerOrDiscard(log),
		},
	}
}

// Name implements Provider.
func (s *Secondary) Name() string { return NameSecondary }

// IsAvailable reports whether the provider is enabled and has at least one
// endpoint configured.
func (s *Secondary) IsAvailable() bool {
	return s.cfg.Enabled && (s.cfg.APIURL != "" || s.cfg.DataAPIURL != "" || s.cfg.FallbackURL != "")
}

// GetOptionsChain probes the exchange endpoints in order, then the fallback
// source.
func (s *Secondary) GetOptionsChain(ctx context.Context, req market.ChainRequest) market.ChainResult {
	req = req.Normalize()
	if !s.IsAvailable() {
		return market.ErrorResult(NameSecondary, req, NameSecondary+": provider is disabled or has no endpoints configured")
	}

	limited := make(map[string]bool)

	result, ok, primaryOutcome := s.probe.run(ctx, s.exchangeAttempts(req), limited)
	if ok {
		return result
	}

	s.probe.log.WithField("symbol", req.Symbol).Info("exchange endpoints not accessible, trying fallback source")

	result, ok, fallbackOutcome := s.probe.run(ctx, s.fallbackAttempts(req), limited)
	if ok {
		return result
	}

	outcome := mergeOutcomes(primaryOutcome, fallbackOutcome)
	err := outcome.failure(NameSecondary, "no options data from exchange endpoints or fallback source")
	return market.ErrorResult(NameSecondary, req, err.Error())
}

func (s *Secondary) exchangeAttempts(req market.ChainRequest) []attempt {
	params := url.Values{}
	params.Set("symbol", req.Symbol)
	if iso := req.ExpiryISO(); iso != "" {
		params.Set("expiry", iso)
	}
	headers := browserHeaders("application/json")
	symbol := url.PathEscape(req.Symbol)

	var urls []string
	if base := trimBase(s.cfg.APIURL); base != "" {
		urls = append(urls,
			base+"/us/options/market_statistics/options_chain",
			base+"/api/option_chain/v1/"+symbol,
		)
	}
	if base := trimBase(s.cfg.DataAPIURL); base != "" {
		urls = append(urls, base+"/v1/market/options/chains/"+symbol)
	}

	attempts := make([]attempt, 0, len(urls))
	for _, u := range urls {
		attempts = append(attempts, attempt{
			url:     u,
			params:  params,
			headers: headers,
			parse: func(body []byte) (market.ChainResult, bool) {
				return parseExchange(body, req)
			},
		})
	}
	return attempts
}

func (s *Secondary) fallbackAttempts(req market.ChainRequest) []attempt {
	base := trimBase(s.cfg.FallbackURL)
	if base == "" {
		return nil
	}

	params := url.Values{}
	if req.Expiry != "" {
		if t, err := time.Parse(market.ExpiryLayout, req.Expiry); err == nil {
			params.Set("date", strconv.FormatInt(t.Unix(), 10))
		}
	}

	return []attempt{{
		url:     base + "/v7/finance/options/" + url.PathEscape(req.Symbol),
		params:  params,
		headers: browserHeaders("application/json"),
		parse: func(body []byte) (market.ChainResult, bool) {
			return parseFallbackQuote(body, req)
		},
	}}
}

// parseExchange reads {data:[{strike, type, ...}], underlying_price}.
func parseExchange(body []byte, req market.ChainRequest) (market.ChainResult, bool) {
	v, err := market.DecodeJSON(body)
	if err != nil {
		return market.ChainResult{}, false
	}
	root, ok := market.AsRecord(v)
	if !ok {
		return market.ChainResult{}, false
	}
	data, ok := root.List("data")
	if !ok {
		return market.ChainResult{}, false
	}

	b := market.NewChainBuilder(NameSecondary, req)
	b.SetUnderlying(root.Decimal("underlying_price", "underlyingPrice"))
	for _, item := range data {
		r, ok := market.AsRecord(item)
		if !ok {
			continue
		}
		b.Add(market.ResolveSide(r, market.SideUnknown), market.NormalizeContract(r, market.NoStrike))
	}
	if b.Len() == 0 {
		return market.ChainResult{}, false
	}
	return b.Result(), true
}

// parseFallbackQuote reads optionChain.result[0] with its quote, expiration
// dates and first options block.
func parseFallbackQuote(body []byte, req market.ChainRequest) (market.ChainResult, bool) {
	v, err := market.DecodeJSON(body)
	if err != nil {
		return market.ChainResult{}, false
	}
	root, ok := market.AsRecord(v)
	if !ok {
		return market.ChainResult{}, false
	}
	chain, ok := root.Record("optionChain")
	if !ok {
		return market.ChainResult{}, false
	}
	results := recordList(chain, "result")
	if len(results) == 0 {
		return market.ChainResult{}, false
	}
	first := results[0]

	b := market.NewChainBuilder(NameSecondaryFallback, req)
	if quote, ok := first.Record("quote"); ok {
		b.SetUnderlying(quote.Decimal("regularMarketPrice"))
	}
	if req.Expiry == "" {
		if dates, ok := first.List("expirationDates"); ok && len(dates) > 0 {
			if secs, ok := market.ToDecimal(dates[0]); ok {
				b.SetExpiry(time.Unix(secs.IntPart(), 0).UTC().Format(market.ExpiryLayout))
			}
		}
	}

	options := recordList(first, "options")
	if len(options) > 0 {
		for _, call := range recordList(options[0], "calls") {
			b.Add(market.SideCall, market.NormalizeContract(call, market.NoStrike))
		}
		for _, put := range recordList(options[0], "puts") {
			b.Add(market.SidePut, market.NormalizeContract(put, market.NoStrike))
		}
	}
	if b.Len() == 0 {
		return market.ChainResult{}, false
	}
	return b.Result(), true
}

func mergeOutcomes(outcomes ...probeOutcome) probeOutcome {
	var merged probeOutcome
	for _, o := range outcomes {
		merged.tried += o.tried
		merged.rateLimited = append(merged.rateLimited, o.rateLimited...)
		merged.parseFailed = merged.parseFailed || o.parseFailed
		if o.lastErr != nil {
			merged.lastErr = o.lastErr
		}
	}
	return merged
}

func trimBase(base string) string {
	return strings.TrimSuffix(strings.TrimSpace(base), "/")
}
