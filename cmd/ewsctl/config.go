package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/nhle/ews-client/internal/config"
)

var (
	flagInitUsername string
	flagInitHTTP2    bool
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage the configuration file",
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a configuration file",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if flagInitUsername != "" {
			cfg.Username = flagInitUsername
		}
		if cmd.Flags().Changed("http2") {
			cfg.HTTP2 = flagInitHTTP2
		}
		if err := cfg.Validate(); err != nil {
			return err
		}
		if err := config.Save(flagConfig, cfg); err != nil {
			return err
		}
		fmt.Println(classStyle("success").Render("Wrote " + flagConfig))
		return nil
	},
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		fmt.Println(field("URL", cfg.URL))
		fmt.Println(field("Username", cfg.Username))
		fmt.Println(field("Timeout", cfg.Timeout().String()))
		fmt.Println(field("HTTP/2", fmt.Sprint(cfg.HTTP2)))
		fmt.Println(field("Version", cfg.ServerVersion))
		fmt.Println(field("Trace", fmt.Sprint(cfg.Trace)))
		fmt.Println(field("Journal", cfg.JournalPath))
		return nil
	},
}

func init() {
	configInitCmd.Flags().StringVar(&flagInitUsername, "username", "", "Basic auth username")
	configInitCmd.Flags().BoolVar(&flagInitHTTP2, "http2", false, "Negotiate HTTP/2")

	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configShowCmd)
}
