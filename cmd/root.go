package cmd

import (
	"os"

	"github.com/spf13/cobra"
)

var Version = "dev"

// jsonOutput controls whether output is formatted as JSON
var jsonOutput bool

// logLevel overrides the configured log level when set
var logLevel string

var rootCmd = &cobra.Command{
	Use:   "etr",
	Short: "E*TRADE options and trading CLI",
	Long: `A CLI for options chains and equity orders via the E*TRADE API.

Options chains come from E*TRADE when credentials are configured, otherwise
from public market data (CBOE, then Nasdaq).`,
	Version: Version,
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&jsonOutput, "json", "j", false, "Output in JSON format")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level (debug, info, warn, error)")
}

// GetJSONMode returns whether JSON output mode is enabled.
func GetJSONMode() bool {
	return jsonOutput
}

func Execute() {
	rootCmd.Version = Version
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
