package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/fyrsmithlabs/codemage/internal/config"
	"github.com/fyrsmithlabs/codemage/internal/installer"
)

var (
	credentialsConfig   string
	credentialsURL      string
	credentialsUsername string
	credentialsPassword string
)

var credentialsCmd = &cobra.Command{
	Use:   "credentials",
	Short: "Manage host admin API credentials",
	Long: `Manage the credentials codemaged uses to install plugins on the host.

They are stored in the file named by installer.credentials_file and read by
the daemon on each install, so no restart is needed.`,
}

var credentialsSetCmd = &cobra.Command{
	Use:   "set",
	Short: "Store host URL, username and password",
	Long: `Store host URL, username and password. The password is saved as an md5
digest, the form the host admin API expects.

Examples:
  codemage credentials set --password secret
  codemage credentials set --url 192.168.1.5:6185 --username admin --password secret`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := credentialStore()
		if err != nil {
			return err
		}
		creds, err := store.SetCredentials(credentialsURL, credentialsUsername, credentialsPassword)
		if err != nil {
			return fmt.Errorf("saving credentials: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Saved credentials for %s@%s to %s\n", creds.Username, creds.URL, store.Path())
		return nil
	},
}

var credentialsShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show stored credentials without the password",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := credentialStore()
		if err != nil {
			return err
		}
		creds, err := store.Load()
		if err != nil {
			return fmt.Errorf("loading credentials: %w", err)
		}
		if jsonOutput {
			creds.PasswordMD5 = ""
			return printJSON(cmd.OutOrStdout(), creds)
		}
		out := cmd.OutOrStdout()
		fmt.Fprintln(out, field("File", store.Path()))
		fmt.Fprintln(out, field("URL", creds.URL))
		fmt.Fprintln(out, field("Username", creds.Username))
		if creds.Configured() {
			fmt.Fprintln(out, field("Password", okStyle.Render("set")))
		} else {
			fmt.Fprintln(out, field("Password", warnStyle.Render("not set")))
		}
		return nil
	},
}

func init() {
	credentialsCmd.PersistentFlags().StringVar(&credentialsConfig, "config", "", "codemaged config file (default ~/.config/codemage/config.yaml)")
	credentialsSetCmd.Flags().StringVar(&credentialsURL, "url", installer.DefaultURL, "host admin API URL")
	credentialsSetCmd.Flags().StringVar(&credentialsUsername, "username", installer.DefaultUsername, "host admin username")
	credentialsSetCmd.Flags().StringVar(&credentialsPassword, "password", "", "host admin password")
	_ = credentialsSetCmd.MarkFlagRequired("password")
	credentialsCmd.AddCommand(credentialsSetCmd, credentialsShowCmd)
}

func credentialStore() (*installer.CredentialStore, error) {
	cfg, err := config.LoadWithFile(credentialsConfig)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	if cfg.Installer.CredentialsFile == "" {
		return nil, errors.New("installer.credentials_file is not set")
	}
	return installer.NewCredentialStore(cfg.Installer.CredentialsFile), nil
}
