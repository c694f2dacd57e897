package provider

import (
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/jonandersen/etrade-cli/pkg/etradeapi"
)

// Selector maps a provider name to a configured Provider. Selection only
// checks local availability and never performs network I/O.
type Selector struct {
	primary     Provider
	secondary   Provider
	tertiary    Provider
	defaultName string
	log         logrus.FieldLogger
}

// SelectorOptions supplies the three variants and the configured default
// name used when Select is called with "".
type SelectorOptions struct {
	Primary     Provider
	Secondary   Provider
	Tertiary    Provider
	DefaultName string
	Logger      logrus.FieldLogger
}

// NewSelector creates a selector over the given providers. Nil providers are
// treated as unavailable.
func NewSelector(opts SelectorOptions) *Selector {
	def := opts.DefaultName
	if def == "" {
		def = NameAuto
	}
	return &Selector{
		primary:     opts.Primary,
		secondary:   opts.Secondary,
		tertiary:    opts.Tertiary,
		defaultName: def,
		log:         loggerOrDiscard(opts.Logger),
	}
}

// CanonicalName maps a provider alias to its canonical name: PRIMARY and
// ETRADE to ETRADE, SECONDARY and CBOE to CBOE, TERTIARY and NASDAQ to
// NASDAQ, and "" or AUTO to AUTO.
func CanonicalName(name string) (string, error) {
	switch strings.ToUpper(strings.TrimSpace(name)) {
	case "", NameAuto:
		return NameAuto, nil
	case "PRIMARY", NamePrimary, "E*TRADE":
		return NamePrimary, nil
	case "SECONDARY", NameSecondary:
		return NameSecondary, nil
	case "TERTIARY", NameTertiary:
		return NameTertiary, nil
	default:
		return "", etradeapi.NewError(etradeapi.KindConfiguration, "", fmt.Sprintf("unknown provider %q (use AUTO, ETRADE, CBOE or NASDAQ)", name), nil)
	}
}

// Select picks a provider. An explicit name selects that provider only,
// except that an unusable PRIMARY falls back to SECONDARY. AUTO tries
// PRIMARY (only with a session), then SECONDARY, then TERTIARY, and returns
// the first available one.
func (s *Selector) Select(name string, hasSession bool) (Provider, error) {
	if strings.TrimSpace(name) == "" {
		name = s.defaultName
	}
	canonical, err := CanonicalName(name)
	if err != nil {
		return nil, err
	}

	switch canonical {
	case NamePrimary:
		if hasSession && available(s.primary) {
			return s.primary, nil
		}
		s.log.WithField("requested", NamePrimary).Warn("brokerage provider unavailable, falling back to " + NameSecondary)
		if available(s.secondary) {
			return s.secondary, nil
		}
		return nil, unavailable(NamePrimary)
	case NameSecondary:
		if available(s.secondary) {
			return s.secondary, nil
		}
		return nil, unavailable(NameSecondary)
	case NameTertiary:
		if available(s.tertiary) {
			return s.tertiary, nil
		}
		return nil, unavailable(NameTertiary)
	}

	candidates := []Provider{s.secondary, s.tertiary}
	if hasSession {
		candidates = append([]Provider{s.primary}, candidates...)
	}
	for i, p := range candidates {
		if !available(p) {
			continue
		}
		if i > 0 {
			s.log.WithField("provider", p.Name()).Info("using fallback options chain provider")
		}
		return p, nil
	}
	return nil, etradeapi.NewError(etradeapi.KindConfiguration, "", "no available options chain provider", nil)
}

// Providers returns the configured variants in fallback order.
func (s *Selector) Providers() []Provider {
	var out []Provider
	for _, p := range []Provider{s.primary, s.secondary, s.tertiary} {
		if p != nil {
			out = append(out, p)
		}
	}
	return out
}

func available(p Provider) bool {
	return p != nil && p.IsAvailable()
}

func unavailable(name string) error {
	return etradeapi.NewError(etradeapi.KindConfiguration, name, "provider is not available", nil)
}
