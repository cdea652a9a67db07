package cli

import (
	"bufio"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

// NewLoginCommand creates the login command.
func NewLoginCommand(opts *RootOptions) *cobra.Command {
	var password string
	var register bool

	cmd := &cobra.Command{
		Use:   "login <email>",
		Short: "Authenticate against the relay and store the session token",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := setup(cmd, opts)
			if err != nil {
				return err
			}
			email := args[0]

			if password == "" {
				// Read one line from stdin so passwords stay out of
				// shell history: echo "$PASS" | relaychat login me@x
				reader := bufio.NewReader(cmd.InOrStdin())
				line, err := reader.ReadString('\n')
				if err != nil && line == "" {
					return NewExitError(ExitCommandError, "no password given (use --password or stdin)")
				}
				password = strings.TrimRight(line, "\r\n")
			}

			login := e.relay.Login
			if register {
				login = e.relay.Register
			}
			creds, err := login(cmd.Context(), email, password)
			if err != nil {
				e.out.Error(err.Error())
				return WrapExitError(ExitFailure, "login failed", err)
			}
			if err := e.session.SetCredentials(creds.Token, creds.Email); err != nil {
				return WrapExitError(ExitCommandError, "store session", err)
			}
			return e.out.Success(fmt.Sprintf("logged in as %s", creds.Email))
		},
	}

	cmd.Flags().StringVar(&password, "password", "", "password (reads stdin when omitted)")
	cmd.Flags().BoolVar(&register, "register", false, "create the account first")
	return cmd
}

// NewLogoutCommand creates the logout command.
func NewLogoutCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Forget the stored session token",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := setup(cmd, opts)
			if err != nil {
				return err
			}
			if err := e.session.Clear(); err != nil {
				return WrapExitError(ExitCommandError, "clear session", err)
			}
			return e.out.Success("logged out")
		},
	}
}
