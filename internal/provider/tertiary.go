package provider

import (
	"context"
	"net/url"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/jonandersen/etrade-cli/internal/market"
	"github.com/jonandersen/etrade-cli/internal/session"
)

// TertiaryConfig locates the quote-site endpoints. Empty URLs are skipped.
type TertiaryConfig struct {
	Enabled bool
	// APIURL is the quote API base (https://api.nasdaq.com).
	APIURL string
	// WWWURL is the public website base (https://www.nasdaq.com), used for
	// the alternative endpoints and the page scrape.
	WWWURL string
	// AttemptTimeout bounds each request; zero means DefaultAttemptTimeout.
	AttemptTimeout time.Duration
}

// Tertiary is the lowest-trust provider: a handful of quote-site JSON
// endpoints, then a scrape of the option-chain page for embedded JSON.
// Every parse failure is treated as "no data" and the next candidate runs.
type Tertiary struct {
	cfg   TertiaryConfig
	probe prober
}

// NewTertiary creates the quote-site provider.
func NewTertiary(cfg TertiaryConfig, httpSession session.Session, log logrus.FieldLogger) *Tertiary {
	if httpSession == nil {
		httpSession = session.NewStatic("", nil)
	}
	return &Tertiary{
		cfg: cfg,
		probe: prober{
			name:    NameTertiary,
			http:    httpSession,
			timeout: cfg.AttemptTimeout,
			log:     loggerOrDiscard(log),
		},
	}
}

// Name implements Provider.
func (t *Tertiary) Name() string { return NameTertiary }

// IsAvailable reports whether the provider is enabled and has an endpoint.
func (t *Tertiary) IsAvailable() bool {
	return t.cfg.Enabled && (t.cfg.APIURL != "" || t.cfg.WWWURL != "")
}

// GetOptionsChain tries the main API, the alternative endpoints and finally
// the page scrape.
func (t *Tertiary) GetOptionsChain(ctx context.Context, req market.ChainRequest) market.ChainResult {
	req = req.Normalize()
	if !t.IsAvailable() {
		return market.ErrorResult(NameTertiary, req, NameTertiary+": provider is disabled or has no endpoints configured")
	}

	result, ok, outcome := t.probe.run(ctx, t.attempts(req), make(map[string]bool))
	if ok {
		return result
	}

	err := outcome.failure(NameTertiary, "no options data from quote endpoints or page scrape")
	return market.ErrorResult(NameTertiary, req, err.Error())
}

func (t *Tertiary) attempts(req market.ChainRequest) []attempt {
	api := trimBase(t.cfg.APIURL)
	www := trimBase(t.cfg.WWWURL)
	symbol := url.PathEscape(req.Symbol)

	jsonHeaders := browserHeaders("application/json, text/plain, */*")
	if www != "" {
		jsonHeaders.Set("Referer", www+"/")
	}
	parseJSON := func(body []byte) (market.ChainResult, bool) {
		return parseQuoteSite(body, req)
	}

	var attempts []attempt

	if api != "" {
		params := url.Values{}
		params.Set("assetclass", "stocks")
		params.Set("limit", strconv.Itoa(req.StrikeCount))
		if iso := req.ExpiryISO(); iso != "" {
			params.Set("expiry", iso)
		}
		attempts = append(attempts, attempt{
			url:     api + "/api/quote/" + symbol + "/options",
			params:  params,
			headers: jsonHeaders,
			parse:   parseJSON,
		})
	}

	var alternatives []string
	if www != "" {
		alternatives = append(alternatives, www+"/api/v1/options/"+symbol)
	}
	if api != "" {
		alternatives = append(alternatives, api+"/api/v1/options/"+symbol)
	}
	if www != "" {
		alternatives = append(alternatives, www+"/api/quote/"+symbol+"/options")
	}
	if api != "" {
		alternatives = append(alternatives, api+"/api/quote/"+symbol+"/options")
	}
	for _, u := range alternatives {
		attempts = append(attempts, attempt{url: u, headers: jsonHeaders, parse: parseJSON})
	}

	if www != "" {
		attempts = append(attempts, attempt{
			url:     www + "/market-activity/stocks/" + symbol + "/option-chain",
			headers: browserHeaders("text/html,application/xhtml+xml"),
			parse: func(body []byte) (market.ChainResult, bool) {
				return parseOptionChainPage(body, req)
			},
		})
	}

	return attempts
}

// parseQuoteSite accepts the quote-site layouts: data.options,
// data.optionChain, a bare data list, or options/optionChain at the root.
// Options are either one list (side from type or symbol) or {calls, puts}.
func parseQuoteSite(body []byte, req market.ChainRequest) (market.ChainResult, bool) {
	v, err := market.DecodeJSON(body)
	if err != nil {
		return market.ChainResult{}, false
	}
	root, ok := market.AsRecord(v)
	if !ok {
		return market.ChainResult{}, false
	}
	return chainFromQuoteSite(root, req)
}

func chainFromQuoteSite(root market.Record, req market.ChainRequest) (market.ChainResult, bool) {
	var options any
	if data, ok := root.Value("data"); ok {
		options = data
		if rec, ok := market.AsRecord(data); ok {
			options, _ = rec.Value("options", "optionChain")
		}
	}
	if options == nil {
		options, _ = root.Value("options", "optionChain")
	}

	b := market.NewChainBuilder(NameTertiary, req)
	b.SetUnderlying(quoteSiteUnderlying(root))

	if list, ok := market.AsList(options); ok {
		for _, item := range list {
			if r, ok := market.AsRecord(item); ok {
				b.Add(market.ResolveSide(r, market.SideUnknown), market.NormalizeContract(r, market.NoStrike))
			}
		}
	} else if rec, ok := market.AsRecord(options); ok {
		for _, call := range recordList(rec, "calls") {
			b.Add(market.ResolveSide(call, market.SideCall), market.NormalizeContract(call, market.NoStrike))
		}
		for _, put := range recordList(rec, "puts") {
			b.Add(market.ResolveSide(put, market.SidePut), market.NormalizeContract(put, market.NoStrike))
		}
	}

	if b.Len() == 0 {
		return market.ChainResult{}, false
	}
	return b.Result(), true
}

func quoteSiteUnderlying(root market.Record) decimal.Decimal {
	for _, r := range []market.Record{root, nestedData(root)} {
		if r == nil {
			continue
		}
		if quote, ok := r.Record("quote"); ok {
			return quote.Decimal("lastSalePrice", "price", "last")
		}
		if underlying, ok := r.Record("underlying"); ok {
			return underlying.Decimal("price", "last")
		}
	}
	return decimal.Zero
}

func nestedData(root market.Record) market.Record {
	data, _ := root.Record("data")
	return data
}
