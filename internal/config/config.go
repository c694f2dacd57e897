// Package config loads and saves the etr configuration file.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	// DefaultAPIBaseURL is the production brokerage API.
	DefaultAPIBaseURL = "https://api.etrade.com"
	// SandboxAPIBaseURL is the brokerage sandbox API.
	SandboxAPIBaseURL = "https://apisb.etrade.com"

	DefaultLogLevel       = "warn"
	DefaultDataSource     = "AUTO"
	DefaultStrikeCount    = 20
	DefaultAttemptTimeout = 5 * time.Second
	DefaultChainTimeout   = 30 * time.Second

	DefaultCBOEAPIURL     = "https://www.cboe.com"
	DefaultCBOEDataAPIURL = "https://cdn.cboe.com"
	DefaultYahooURL       = "https://query2.finance.yahoo.com"
	DefaultNasdaqAPIURL   = "https://api.nasdaq.com"
	DefaultNasdaqWWWURL   = "https://www.nasdaq.com"
)

// Environment variables that override the file.
const (
	EnvAccountIDKey = "ETR_ACCOUNT_ID_KEY"
	EnvAPIBaseURL   = "ETR_API_BASE_URL"
	EnvLogLevel     = "ETR_LOG_LEVEL"
)

// ErrTradingDisabled is returned by order commands when trading_enabled is false.
var ErrTradingDisabled = errors.New("trading is disabled; set trading_enabled: true in the config file to place or cancel orders")

// Config holds the CLI configuration.
type Config struct {
	AccountIDKey   string  `yaml:"account_id_key"`
	APIBaseURL     string  `yaml:"api_base_url"`
	Sandbox        bool    `yaml:"sandbox"`
	TradingEnabled bool    `yaml:"trading_enabled"`
	LogLevel       string  `yaml:"log_level"`
	Options        Options `yaml:"options"`
}

// Options configures options chain retrieval.
type Options struct {
	DataSource     string        `yaml:"data_source"`
	StrikeCount    int           `yaml:"strike_count"`
	AttemptTimeout time.Duration `yaml:"attempt_timeout"`
	ChainTimeout   time.Duration `yaml:"chain_timeout"`
	CBOE           CBOE          `yaml:"cboe"`
	Nasdaq         Nasdaq        `yaml:"nasdaq"`
}

// CBOE configures the exchange provider and its quote fallback.
type CBOE struct {
	Enabled    *bool  `yaml:"enabled,omitempty"`
	APIURL     string `yaml:"api_url"`
	DataAPIURL string `yaml:"data_api_url"`
	YahooURL   string `yaml:"yahoo_url"`
}

// Nasdaq configures the quote-site provider.
type Nasdaq struct {
	Enabled *bool  `yaml:"enabled,omitempty"`
	APIURL  string `yaml:"api_url"`
	WWWURL  string `yaml:"www_url"`
}

// IsEnabled reports whether the exchange provider is enabled. Unset means enabled.
func (c CBOE) IsEnabled() bool { return c.Enabled == nil || *c.Enabled }

// IsEnabled reports whether the quote-site provider is enabled. Unset means enabled.
func (n Nasdaq) IsEnabled() bool { return n.Enabled == nil || *n.Enabled }

// DefaultConfig returns a Config with default values.
func DefaultConfig() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

// BaseURL returns the brokerage API base URL, honouring the sandbox flag when
// no explicit URL was configured.
func (c *Config) BaseURL() string {
	if c.Sandbox && (c.APIBaseURL == "" || c.APIBaseURL == DefaultAPIBaseURL) {
		return SandboxAPIBaseURL
	}
	if c.APIBaseURL == "" {
		return DefaultAPIBaseURL
	}
	return c.APIBaseURL
}

func (c *Config) applyDefaults() {
	if c.APIBaseURL == "" {
		c.APIBaseURL = DefaultAPIBaseURL
	}
	if c.LogLevel == "" {
		c.LogLevel = DefaultLogLevel
	}

	o := &c.Options
	if o.DataSource == "" {
		o.DataSource = DefaultDataSource
	}
	if o.StrikeCount <= 0 {
		o.StrikeCount = DefaultStrikeCount
	}
	if o.AttemptTimeout <= 0 {
		o.AttemptTimeout = DefaultAttemptTimeout
	}
	// A negative chain timeout disables the aggregate deadline.
	if o.ChainTimeout == 0 {
		o.ChainTimeout = DefaultChainTimeout
	}
	if o.CBOE.APIURL == "" {
		o.CBOE.APIURL = DefaultCBOEAPIURL
	}
	if o.CBOE.DataAPIURL == "" {
		o.CBOE.DataAPIURL = DefaultCBOEDataAPIURL
	}
	if o.CBOE.YahooURL == "" {
		o.CBOE.YahooURL = DefaultYahooURL
	}
	if o.Nasdaq.APIURL == "" {
		o.Nasdaq.APIURL = DefaultNasdaqAPIURL
	}
	if o.Nasdaq.WWWURL == "" {
		o.Nasdaq.WWWURL = DefaultNasdaqWWWURL
	}
}

func (c *Config) applyEnv() {
	if v := os.Getenv(EnvAccountIDKey); v != "" {
		c.AccountIDKey = v
	}
	if v := os.Getenv(EnvAPIBaseURL); v != "" {
		c.APIBaseURL = v
	}
	if v := os.Getenv(EnvLogLevel); v != "" {
		c.LogLevel = v
	}
}

// Load reads the config file at path. A missing file yields defaults;
// missing fields are filled with defaults. Environment overrides apply last.
func Load(path string) (*Config, error) {
	cfg := &Config{}

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return nil, fmt.Errorf("failed to read config: %w", err)
	default:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	}

	cfg.applyEnv()
	cfg.applyDefaults()
	return cfg, nil
}

// Save writes cfg to path with 0600 permissions, creating parent directories
// with 0700.
func Save(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// ConfigDir returns the etr configuration directory.
func ConfigDir() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "etr")
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config", "etr")
}

// ConfigPath returns the default config file path.
func ConfigPath() string {
	return filepath.Join(ConfigDir(), "config.yaml")
}

// EnvFilePath returns the path of the optional dotenv file.
func EnvFilePath() string {
	return filepath.Join(ConfigDir(), ".env")
}

// LoadEnvFile loads ETR_* variables from a dotenv file. Variables already set
// in the environment win. A missing file is not an error.
func LoadEnvFile(path string) error {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("failed to load %s: %w", path, err)
	}
	return nil
}
