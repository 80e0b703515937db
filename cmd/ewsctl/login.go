package main

import (
	"errors"
	"fmt"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"

	"github.com/nhle/ews-client/internal/credential"
)

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Store the basic auth password in the system keyring",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if cfg.Username == "" {
			return errors.New("no username configured; run 'ewsctl config init --username <name>' first")
		}

		password, err := promptPassword(cfg.Username)
		if err != nil {
			return err
		}

		store, err := credential.Open()
		if err != nil {
			return err
		}
		if err := store.SetPassword(cfg.Username, password); err != nil {
			return err
		}
		fmt.Println(classStyle("success").Render("Password stored for " + cfg.Username))
		return nil
	},
}

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Remove the stored password",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		store, err := credential.Open()
		if err != nil {
			return err
		}
		if err := store.Forget(cfg.Username); err != nil {
			return err
		}
		fmt.Println(subtleStyle.Render("Password removed for " + cfg.Username))
		return nil
	},
}

func promptPassword(username string) (string, error) {
	var password string
	err := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Password").
				Description("Exchange password for "+username).
				EchoMode(huh.EchoModePassword).
				Value(&password).
				Validate(func(s string) error {
					if s == "" {
						return errors.New("password is required")
					}
					return nil
				}),
		),
	).Run()
	if err != nil {
		return "", fmt.Errorf("reading password: %w", err)
	}
	return password, nil
}
