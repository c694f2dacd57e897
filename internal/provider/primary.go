package provider

import (
	"context"
	"errors"
	"net/url"
	"strconv"

	"github.com/sirupsen/logrus"

	"github.com/jonandersen/etrade-cli/internal/market"
	"github.com/jonandersen/etrade-cli/internal/session"
	"github.com/jonandersen/etrade-cli/pkg/etradeapi"
)

const optionChainsPath = "/v1/market/optionchains.json"

// Primary reads options chains from the brokerage through a signed session.
type Primary struct {
	session session.Session
	log     logrus.FieldLogger
}

// NewPrimary creates the brokerage provider. A nil session leaves it
// unavailable.
func NewPrimary(sess session.Session, log logrus.FieldLogger) *Primary {
	return &Primary{session: sess, log: loggerOrDiscard(log)}
}

// Name implements Provider.
func (p *Primary) Name() string { return NamePrimary }

// IsAvailable reports whether a session with a base URL was supplied.
func (p *Primary) IsAvailable() bool {
	return p.session != nil && p.session.BaseURL() != ""
}

// GetOptionsChain queries the brokerage option chain endpoint.
func (p *Primary) GetOptionsChain(ctx context.Context, req market.ChainRequest) market.ChainResult {
	req = req.Normalize()
	if !p.IsAvailable() {
		err := etradeapi.NewError(etradeapi.KindConfiguration, NamePrimary, "no signed session available", nil)
		return market.ErrorResult(NamePrimary, req, err.Error())
	}

	params := url.Values{}
	params.Set("symbol", req.Symbol)
	params.Set("strikeCount", strconv.Itoa(req.StrikeCount))
	params.Set("includeWeekly", "true")
	if req.Expiry != "" {
		params.Set("expiryDate", req.Expiry)
	}

	log := p.log.WithFields(logrus.Fields{"provider": NamePrimary, "symbol": req.Symbol})
	log.Debug("requesting option chain")

	resp, err := p.session.Get(ctx, optionChainsPath, params, nil)
	if err != nil {
		log.WithError(err).Warn("option chain request failed")
		e := etradeapi.NewError(etradeapi.KindTransport, NamePrimary, "", err)
		return market.ErrorResult(NamePrimary, req, e.Error())
	}

	if err := etradeapi.CheckResponse(resp.StatusCode, resp.Body); err != nil {
		var apiErr *etradeapi.APIError
		msg := err.Error()
		if errors.As(err, &apiErr) {
			msg = apiErr.Text()
		}
		log.WithField("status", resp.StatusCode).Warn("option chain request rejected")
		e := etradeapi.NewError(etradeapi.KindUpstream, NamePrimary, msg, err)
		return market.ErrorResult(NamePrimary, req, e.Error())
	}

	result, err := parsePrimary(resp.Body, req)
	if err != nil {
		log.WithError(err).Warn("option chain response not understood")
		return market.ErrorResult(NamePrimary, req, err.Error())
	}
	return result
}

// parsePrimary reads OptionChainResponse{underlyingPrice, OptionPair[]}.
// The strike lives on the pair and applies to both legs.
func parsePrimary(body []byte, req market.ChainRequest) (market.ChainResult, error) {
	v, err := market.DecodeJSON(body)
	if err != nil {
		return market.ChainResult{}, etradeapi.NewError(etradeapi.KindParse, NamePrimary, "", err)
	}
	root, ok := market.AsRecord(v)
	if !ok {
		return market.ChainResult{}, etradeapi.NewError(etradeapi.KindParse, NamePrimary, "unexpected response shape", nil)
	}

	chain, ok := root.Record("OptionChainResponse")
	if !ok {
		if msg, _ := etradeapi.ErrorMessage(body); msg != "" {
			return market.ChainResult{}, etradeapi.NewError(etradeapi.KindUpstream, NamePrimary, msg, nil)
		}
		return market.ChainResult{}, etradeapi.NewError(etradeapi.KindParse, NamePrimary, "response has no OptionChainResponse", nil)
	}

	b := market.NewChainBuilder(NamePrimary, req)
	b.SetUnderlying(chain.Decimal("underlyingPrice", "nearPrice"))

	for _, item := range recordList(chain, "OptionPair") {
		strike := item.Decimal("strikePrice", "strike")
		if call, ok := item.Record("Call"); ok {
			b.Add(market.SideCall, market.NormalizeContract(call, strike))
		}
		if put, ok := item.Record("Put"); ok {
			b.Add(market.SidePut, market.NormalizeContract(put, strike))
		}
	}

	return b.Result(), nil
}

// recordList returns the objects under key, accepting a lone object in place
// of a one-element array.
func recordList(r market.Record, keys ...string) []market.Record {
	if l, ok := r.List(keys...); ok {
		out := make([]market.Record, 0, len(l))
		for _, item := range l {
			if rec, ok := market.AsRecord(item); ok {
				out = append(out, rec)
			}
		}
		return out
	}
	if rec, ok := r.Record(keys...); ok {
		return []market.Record{rec}
	}
	return nil
}
