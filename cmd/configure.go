package cmd

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/jonandersen/etrade-cli/internal/config"
	"github.com/jonandersen/etrade-cli/internal/keyring"
	"github.com/jonandersen/etrade-cli/internal/session"
)

// passwordReader abstracts terminal password input for testing.
type passwordReader interface {
	ReadPassword() (string, error)
	IsTerminal() bool
}

// terminalReader reads passwords from the terminal using golang.org/x/term.
type terminalReader struct {
	fd int
}

// newTerminalReader creates a reader for the given file descriptor.
func newTerminalReader(fd int) *terminalReader {
	return &terminalReader{fd: fd}
}

func (r *terminalReader) ReadPassword() (string, error) {
	password, err := term.ReadPassword(r.fd)
	if err != nil {
		return "", err
	}
	return string(password), nil
}

func (r *terminalReader) IsTerminal() bool {
	return term.IsTerminal(r.fd)
}

// prompter abstracts interactive menu selection for testing.
type prompter interface {
	SelectOption(options []string) (int, error)
	ReadLine(prompt string) (string, error)
}

// terminalPrompter implements prompter using stdin.
type terminalPrompter struct {
	scanner *bufio.Scanner
	writer  io.Writer
}

func newTerminalPrompter(r io.Reader, w io.Writer) *terminalPrompter {
	return &terminalPrompter{scanner: bufio.NewScanner(r), writer: w}
}

func (p *terminalPrompter) SelectOption(options []string) (int, error) {
	for {
		if !p.scanner.Scan() {
			if err := p.scanner.Err(); err != nil {
				return 0, err
			}
			return 0, fmt.Errorf("no input")
		}
		idx, err := strconv.Atoi(strings.TrimSpace(p.scanner.Text()))
		if err != nil || idx < 1 || idx > len(options) {
			_, _ = fmt.Fprintf(p.writer, "Please enter a number between 1 and %d: ", len(options))
			continue
		}
		return idx - 1, nil // Convert to 0-indexed
	}
}

func (p *terminalPrompter) ReadLine(prompt string) (string, error) {
	_, _ = fmt.Fprint(p.writer, prompt)
	if !p.scanner.Scan() {
		return "", p.scanner.Err()
	}
	return strings.TrimSpace(p.scanner.Text()), nil
}

// configureOptions holds dependencies for the configure command.
// This allows for dependency injection in tests.
type configureOptions struct {
	configPath     string
	store          keyring.Store
	passwordReader passwordReader
	prompt         prompter
}

// configureFlags holds the values given on the command line.
type configureFlags struct {
	accountID string
	baseURL   string
	sandbox   bool
}

// newConfigureCmd creates the configure command with the given options.
func newConfigureCmd(opts configureOptions) *cobra.Command {
	var flags configureFlags

	cmd := &cobra.Command{
		Use:   "configure",
		Short: "Configure CLI credentials",
		Long: `Configure the CLI with your E*TRADE API credentials.

You will be prompted for the consumer key and secret of your E*TRADE
developer application and for an already-issued access token and secret.
Secrets are read without echo and stored in the system keyring.

Example:
  etr configure
  etr configure --account YOUR_ACCOUNT_ID_KEY --sandbox`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConfigure(cmd, opts, flags)
		},
	}

	cmd.Flags().StringVar(&flags.accountID, "account", "", "Default account ID key (optional)")
	cmd.Flags().StringVar(&flags.baseURL, "base-url", "", "API base URL (default "+config.DefaultAPIBaseURL+")")
	cmd.Flags().BoolVar(&flags.sandbox, "sandbox", false, "Use the E*TRADE sandbox API")

	// Don't show usage info on validation errors - just show the error
	cmd.SilenceUsage = true

	return cmd
}

// reconfigureMenuOptions defines the menu options when already configured.
var reconfigureMenuOptions = []string{
	"Set default account",
	"Enter new credentials",
	"View current configuration",
	"Toggle trading",
	"Clear credentials",
}

func runConfigure(cmd *cobra.Command, opts configureOptions, flags configureFlags) error {
	if !opts.passwordReader.IsTerminal() {
		return fmt.Errorf("configure requires an interactive terminal\nRun this command directly in your terminal (not piped or in a script)")
	}

	if _, err := keyring.LoadCredentials(opts.store); err == nil {
		return runReconfigureMenu(cmd, opts)
	}

	return runInitialSetup(cmd, opts, flags, cmd.Flags().Changed("sandbox"))
}

// runReconfigureMenu shows the reconfigure menu when already configured.
func runReconfigureMenu(cmd *cobra.Command, opts configureOptions) error {
	_, _ = fmt.Fprintln(cmd.OutOrStdout(), "CLI is already configured. What would you like to do?")
	_, _ = fmt.Fprintln(cmd.OutOrStdout())

	for i, opt := range reconfigureMenuOptions {
		_, _ = fmt.Fprintf(cmd.OutOrStdout(), "  %d. %s\n", i+1, opt)
	}
	_, _ = fmt.Fprintln(cmd.OutOrStdout())
	_, _ = fmt.Fprint(cmd.OutOrStdout(), "Select option: ")

	choice, err := opts.prompt.SelectOption(reconfigureMenuOptions)
	if err != nil {
		return fmt.Errorf("failed to read selection: %w", err)
	}

	switch choice {
	case 0:
		return runSelectAccount(cmd, opts)
	case 1:
		return runInitialSetup(cmd, opts, configureFlags{}, false)
	case 2:
		return runViewConfiguration(cmd, opts)
	case 3:
		return runToggleTrading(cmd, opts)
	case 4:
		return runClearCredentials(cmd, opts)
	default:
		return fmt.Errorf("invalid selection")
	}
}

// runInitialSetup reads all four credentials, stores them in the keyring and
// writes the config file.
func runInitialSetup(cmd *cobra.Command, opts configureOptions, flags configureFlags, sandboxSet bool) error {
	w := cmd.OutOrStdout()
	var creds session.Credentials
	var err error

	if creds.ConsumerKey, err = opts.prompt.ReadLine("Consumer key: "); err != nil {
		return fmt.Errorf("failed to read consumer key: %w", err)
	}
	if creds.ConsumerSecret, err = readSecret(w, opts.passwordReader, "Consumer secret: "); err != nil {
		return fmt.Errorf("failed to read consumer secret: %w", err)
	}
	if creds.AccessToken, err = opts.prompt.ReadLine("Access token: "); err != nil {
		return fmt.Errorf("failed to read access token: %w", err)
	}
	if creds.AccessTokenSecret, err = readSecret(w, opts.passwordReader, "Access token secret: "); err != nil {
		return fmt.Errorf("failed to read access token secret: %w", err)
	}

	if !creds.Complete() {
		return fmt.Errorf("consumer key, consumer secret, access token and access token secret cannot be empty")
	}

	if err := keyring.SaveCredentials(opts.store, creds); err != nil {
		return fmt.Errorf("failed to store credentials in keyring: %w", err)
	}

	cfg, err := config.Load(opts.configPath)
	if err != nil {
		cfg = config.DefaultConfig()
	}

	if sandboxSet {
		cfg.Sandbox = flags.sandbox
	}
	if flags.baseURL != "" {
		cfg.APIBaseURL = flags.baseURL
	}
	if flags.accountID != "" {
		cfg.AccountIDKey = flags.accountID
	} else if cfg.AccountIDKey == "" {
		account, err := opts.prompt.ReadLine("Default account ID key (optional): ")
		if err == nil && account != "" {
			cfg.AccountIDKey = account
		}
	}

	if err := config.Save(opts.configPath, cfg); err != nil {
		return fmt.Errorf("failed to save configuration: %w", err)
	}

	_, _ = fmt.Fprintln(w, "Configuration saved successfully!")
	return nil
}

func readSecret(w io.Writer, r passwordReader, prompt string) (string, error) {
	_, _ = fmt.Fprint(w, prompt)
	secret, err := r.ReadPassword()
	if err != nil {
		return "", err
	}
	_, _ = fmt.Fprintln(w) // Print newline after hidden input
	return strings.TrimSpace(secret), nil
}

// runSelectAccount sets the default account.
func runSelectAccount(cmd *cobra.Command, opts configureOptions) error {
	account, err := opts.prompt.ReadLine("Default account ID key: ")
	if err != nil {
		return fmt.Errorf("failed to read account: %w", err)
	}
	if account == "" {
		_, _ = fmt.Fprintln(cmd.OutOrStdout(), "No account selected.")
		return nil
	}

	cfg, err := config.Load(opts.configPath)
	if err != nil {
		cfg = config.DefaultConfig()
	}
	cfg.AccountIDKey = account

	if err := config.Save(opts.configPath, cfg); err != nil {
		return fmt.Errorf("failed to save configuration: %w", err)
	}

	_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Default account set to: %s\n", account)
	return nil
}

// runViewConfiguration displays the current configuration.
func runViewConfiguration(cmd *cobra.Command, opts configureOptions) error {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		cfg = config.DefaultConfig()
	}

	w := cmd.OutOrStdout()
	_, _ = fmt.Fprintln(w)
	_, _ = fmt.Fprintln(w, "Current Configuration:")
	_, _ = fmt.Fprintln(w, "----------------------")

	if _, err := keyring.LoadCredentials(opts.store); err == nil {
		_, _ = fmt.Fprintln(w, "Credentials: Configured")
	} else {
		_, _ = fmt.Fprintln(w, "Credentials: Not configured")
	}

	if cfg.AccountIDKey != "" {
		_, _ = fmt.Fprintf(w, "Default account: %s\n", cfg.AccountIDKey)
	} else {
		_, _ = fmt.Fprintln(w, "Default account: Not set")
	}

	_, _ = fmt.Fprintf(w, "API base URL: %s\n", cfg.BaseURL())
	_, _ = fmt.Fprintf(w, "Trading: %s\n", enabledText(cfg.TradingEnabled))
	_, _ = fmt.Fprintf(w, "Options data source: %s\n", cfg.Options.DataSource)

	return nil
}

// runToggleTrading flips trading_enabled.
func runToggleTrading(cmd *cobra.Command, opts configureOptions) error {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		cfg = config.DefaultConfig()
	}
	cfg.TradingEnabled = !cfg.TradingEnabled

	if err := config.Save(opts.configPath, cfg); err != nil {
		return fmt.Errorf("failed to save configuration: %w", err)
	}

	_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Trading %s.\n", strings.ToLower(enabledText(cfg.TradingEnabled)))
	return nil
}

// runClearCredentials removes the stored credentials.
func runClearCredentials(cmd *cobra.Command, opts configureOptions) error {
	if err := keyring.DeleteCredentials(opts.store); err != nil {
		return fmt.Errorf("failed to clear credentials: %w", err)
	}

	_, _ = fmt.Fprintln(cmd.OutOrStdout(), "Credentials cleared successfully.")
	return nil
}

func enabledText(enabled bool) string {
	if enabled {
		return "Enabled"
	}
	return "Disabled"
}

func init() {
	// Create configure command with production dependencies
	configureCmd := newConfigureCmd(configureOptions{
		configPath:     config.ConfigPath(),
		store:          keyring.NewEnvStore(keyring.NewSystemStore()),
		passwordReader: newTerminalReader(int(os.Stdin.Fd())),
		prompt:         newTerminalPrompter(os.Stdin, os.Stdout),
	})
	rootCmd.AddCommand(configureCmd)
}
