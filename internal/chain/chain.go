// Package chain is the single entry point for options chain retrieval. It
// binds a provider chosen by provider.Selector and lets callers rebind it at
// runtime.
package chain

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/jonandersen/etrade-cli/internal/logging"
	"github.com/jonandersen/etrade-cli/internal/market"
	"github.com/jonandersen/etrade-cli/internal/provider"
	"github.com/jonandersen/etrade-cli/pkg/etradeapi"
)

// SPXSymbol is the index symbol used by SPX.
const SPXSymbol = "SPX"

// Chain delegates to the active provider. A provider that returns an error
// result is reported as-is; Chain never retries with another provider.
type Chain struct {
	selector *provider.Selector
	timeout  time.Duration
	log      logrus.FieldLogger

	mu         sync.RWMutex
	active     provider.Provider
	requested  string
	hasSession bool
	selectErr  error
}

// Option configures a Chain.
type Option func(*Chain)

// WithTimeout bounds each GetOptionsChain call, including every fallback
// attempt inside the provider. Zero disables the bound.
func WithTimeout(d time.Duration) Option {
	return func(c *Chain) { c.timeout = d }
}

// WithLogger sets the logger.
func WithLogger(log logrus.FieldLogger) Option {
	return func(c *Chain) {
		if log != nil {
			c.log = log
		}
	}
}

// New binds the provider selected for name. A selection failure does not
// fail construction; it is reported by every call until SwitchProvider
// succeeds.
func New(selector *provider.Selector, name string, hasSession bool, opts ...Option) *Chain {
	c := &Chain{selector: selector, log: logging.Discard()}
	for _, opt := range opts {
		opt(c)
	}

	if err := c.SwitchProvider(name, hasSession); err != nil {
		c.requested = displayName(name)
		c.hasSession = hasSession
		c.selectErr = err
		c.log.WithError(err).Warn("no options chain provider bound")
	}
	return c
}

// Provider returns the name of the active provider, or "" when none is bound.
func (c *Chain) Provider() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.active == nil {
		return ""
	}
	return c.active.Name()
}

// SwitchProvider rebinds the active provider. On failure the previous
// binding is kept.
func (c *Chain) SwitchProvider(name string, hasSession bool) error {
	p, err := c.selector.Select(name, hasSession)
	if err != nil {
		return err
	}

	c.mu.Lock()
	c.active = p
	c.requested = displayName(name)
	c.hasSession = hasSession
	c.selectErr = nil
	c.mu.Unlock()

	c.log.WithFields(logrus.Fields{
		"requested": displayName(name),
		"provider":  p.Name(),
	}).Info("using options chain provider")
	return nil
}

// GetOptionsChain fetches a chain from the active provider, or from the
// provider selected for override when it is non-empty. Every failure,
// including selection and validation, is returned as an error result.
func (c *Chain) GetOptionsChain(ctx context.Context, req market.ChainRequest, override string) market.ChainResult {
	req = req.Normalize()

	c.mu.RLock()
	p, requested, hasSession, selectErr := c.active, c.requested, c.hasSession, c.selectErr
	c.mu.RUnlock()

	if override != "" {
		var err error
		requested = displayName(override)
		p, err = c.selector.Select(override, hasSession)
		if err != nil {
			return market.ErrorResult(requested, req, err.Error())
		}
	} else if p == nil {
		if selectErr == nil {
			selectErr = etradeapi.NewError(etradeapi.KindConfiguration, "", "no options chain provider bound", nil)
		}
		return market.ErrorResult(requested, req, selectErr.Error())
	}

	if err := req.Validate(); err != nil {
		e := etradeapi.NewError(etradeapi.KindValidation, "", err.Error(), err)
		return market.ErrorResult(p.Name(), req, e.Error())
	}

	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	log := c.log.WithFields(logrus.Fields{
		"symbol":    req.Symbol,
		"expiry":    req.Expiry,
		"requested": requested,
		"provider":  p.Name(),
	})

	start := time.Now()
	result := p.GetOptionsChain(ctx, req)
	log = log.WithField("duration", time.Since(start).Round(time.Millisecond))

	if !result.OK() {
		log.WithField("error", result.Error).Warn("options chain request failed")
		return result
	}
	log.WithField("strikes", len(result.Strikes)).Info("options chain retrieved")
	return result
}

// SPX fetches the SPX index chain from the active provider.
func (c *Chain) SPX(ctx context.Context, expiry string, strikeCount int) market.ChainResult {
	return c.GetOptionsChain(ctx, market.ChainRequest{
		Symbol:      SPXSymbol,
		Expiry:      expiry,
		StrikeCount: strikeCount,
	}, "")
}

func displayName(name string) string {
	canonical, err := provider.CanonicalName(name)
	if err != nil {
		return name
	}
	return canonical
}
