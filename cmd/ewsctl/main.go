package main

import (
	"fmt"
	"os"

	"github.com/go-logr/logr"
	"github.com/go-logr/logr/funcr"
	"github.com/spf13/cobra"

	"github.com/nhle/ews-client/internal/config"
)

var version = "0.1.0"

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, errorStyle.Render("Error:"), err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "ewsctl",
	Short: "Exchange Web Services request tool",
	Long: `ewsctl sends SOAP operations to an Exchange Web Services endpoint and
reports the classified outcome.

Examples:
  ewsctl config init --url https://mail.example.com/EWS/Exchange.asmx --username alice
  ewsctl login
  ewsctl exec GetFolder get-inbox.xml
  ewsctl exec GetFolder get-inbox.xml --async --trace request,response
  ewsctl journal list`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Global flags
var (
	flagConfig    string
	flagURL       string
	flagVerbosity int
)

func init() {
	rootCmd.PersistentFlags().StringVarP(&flagConfig, "config", "c", config.DefaultConfigPath(), "Config file")
	rootCmd.PersistentFlags().StringVar(&flagURL, "url", "", "Override the endpoint URL")
	rootCmd.PersistentFlags().IntVarP(&flagVerbosity, "verbosity", "v", 0, "Log verbosity (1 shows traces)")

	rootCmd.AddCommand(execCmd)
	rootCmd.AddCommand(journalCmd)
	rootCmd.AddCommand(loginCmd)
	rootCmd.AddCommand(logoutCmd)
	rootCmd.AddCommand(configCmd)
}

// loadConfig reads the config file and applies the --url override.
func loadConfig() (*config.ClientConfig, error) {
	cfg, err := config.Load(flagConfig)
	if err != nil {
		return nil, err
	}
	if flagURL != "" {
		cfg.URL = flagURL
	}
	return cfg, nil
}

func newLogger() logr.Logger {
	return funcr.New(func(prefix, args string) {
		if prefix != "" {
			fmt.Fprintln(os.Stderr, subtleStyle.Render(prefix), args)
			return
		}
		fmt.Fprintln(os.Stderr, args)
	}, funcr.Options{Verbosity: flagVerbosity}).WithName("ewsctl")
}
