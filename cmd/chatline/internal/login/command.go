package login

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/tinyland-inc/chatline/cmd/chatline/internal"
	"github.com/tinyland-inc/chatline/pkg/auth"
	"github.com/tinyland-inc/chatline/pkg/config"
)

type options struct {
	baseURL  string
	userID   string
	username string
	fullName string
}

func NewLoginCommand() *cobra.Command {
	var opts options

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Store the browser session used to reach the chat server",
		Args:  cobra.NoArgs,
		Example: `  chatline login --username alice --user-id 7
  chatline login --server https://chat.example.com`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := internal.LoadConfig()
			if err != nil {
				return fmt.Errorf("error loading config: %w", err)
			}
			if err := login(cfg, opts, cmd.InOrStdin(), cmd.OutOrStdout()); err != nil {
				return err
			}
			if err := config.SaveConfig(internal.GetConfigPath(), cfg); err != nil {
				return fmt.Errorf("error saving config: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s Session saved to %s\n", internal.Logo, internal.GetConfigPath())
			return nil
		},
	}

	cmd.Flags().StringVar(&opts.baseURL, "server", "", "Chat server base URL")
	cmd.Flags().StringVar(&opts.userID, "user-id", "", "Your numeric user id")
	cmd.Flags().StringVar(&opts.username, "username", "", "Your username")
	cmd.Flags().StringVar(&opts.fullName, "full-name", "", "Your display name")

	return cmd
}

// login reads the pasted session into cfg and applies the identity flags.
func login(cfg *config.Config, opts options, in io.Reader, out io.Writer) error {
	creds, err := auth.LoginPasteCookies(in, out)
	if err != nil {
		return err
	}
	cfg.Auth.SessionID = creds.SessionID
	cfg.Auth.CSRFToken = creds.CSRFToken

	if opts.baseURL != "" {
		cfg.Server.BaseURL = opts.baseURL
	}
	if opts.userID != "" {
		cfg.Identity.UserID = opts.userID
	}
	if opts.username != "" {
		cfg.Identity.Username = opts.username
	}
	if opts.fullName != "" {
		cfg.Identity.FullName = opts.fullName
	}
	return cfg.Validate()
}
