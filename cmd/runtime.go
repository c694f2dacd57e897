package cmd

import (
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/jonandersen/etrade-cli/internal/config"
	"github.com/jonandersen/etrade-cli/internal/keyring"
	"github.com/jonandersen/etrade-cli/internal/logging"
	"github.com/jonandersen/etrade-cli/internal/provider"
	"github.com/jonandersen/etrade-cli/internal/session"
)

// errNoCredentials is returned by commands that need a signed session.
var errNoCredentials = errors.New("brokerage credentials not found (run 'etr configure' or set ETR_CONSUMER_KEY, ETR_CONSUMER_SECRET, ETR_ACCESS_TOKEN and ETR_ACCESS_TOKEN_SECRET)")

// runtime is everything a command needs from the environment: the config,
// a logger and, when credentials exist, a signed brokerage session.
type runtime struct {
	cfg       *config.Config
	log       *logrus.Logger
	brokerage session.Session
}

// loadRuntime reads the dotenv file, the config file and the stored
// credentials. Missing credentials are not an error; brokerage is left nil.
func loadRuntime(store keyring.Store) (*runtime, error) {
	if err := config.LoadEnvFile(config.EnvFilePath()); err != nil {
		return nil, err
	}

	cfg, err := config.Load(config.ConfigPath())
	if err != nil {
		return nil, err
	}

	level := cfg.LogLevel
	if logLevel != "" {
		level = logLevel
	}
	rt := &runtime{cfg: cfg, log: logging.New(level, nil)}

	creds, err := keyring.LoadCredentials(store)
	switch {
	case errors.Is(err, keyring.ErrNotFound):
		rt.log.Debug("no brokerage credentials, using public market data only")
		return rt, nil
	case err != nil:
		return nil, fmt.Errorf("failed to load credentials: %w", err)
	}

	sess, err := session.NewOAuth1(cfg.BaseURL(), creds)
	if err != nil {
		return nil, err
	}
	rt.brokerage = sess
	return rt, nil
}

func (rt *runtime) hasSession() bool {
	return rt.brokerage != nil
}

// selector wires the three providers from the config. The public providers
// share one unsigned session.
func (rt *runtime) selector() *provider.Selector {
	opts := rt.cfg.Options
	public := session.NewStatic("", nil)

	var primary provider.Provider
	if rt.brokerage != nil {
		primary = provider.NewPrimary(rt.brokerage, rt.log)
	}

	return provider.NewSelector(provider.SelectorOptions{
		Primary: primary,
		Secondary: provider.NewSecondary(provider.SecondaryConfig{
			Enabled:        opts.CBOE.IsEnabled(),
			APIURL:         opts.CBOE.APIURL,
			DataAPIURL:     opts.CBOE.DataAPIURL,
			FallbackURL:    opts.CBOE.YahooURL,
			AttemptTimeout: opts.AttemptTimeout,
		}, public, rt.log),
		Tertiary: provider.NewTertiary(provider.TertiaryConfig{
			Enabled:        opts.Nasdaq.IsEnabled(),
			APIURL:         opts.Nasdaq.APIURL,
			WWWURL:         opts.Nasdaq.WWWURL,
			AttemptTimeout: opts.AttemptTimeout,
		}, public, rt.log),
		DefaultName: opts.DataSource,
		Logger:      rt.log,
	})
}

// chainTimeout converts the configured aggregate deadline to the chain
// option value, where zero means no deadline.
func (rt *runtime) chainTimeout() time.Duration {
	if rt.cfg.Options.ChainTimeout < 0 {
		return 0
	}
	return rt.cfg.Options.ChainTimeout
}

func defaultStore() keyring.Store {
	return keyring.NewEnvStore(keyring.NewSystemStore())
}
