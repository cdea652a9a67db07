package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

type statusData struct {
	APIBase       string `json:"api_base"`
	Reachable     bool   `json:"reachable"`
	Authenticated bool   `json:"authenticated"`
	Email         string `json:"email,omitempty"`
	TokenExpired  bool   `json:"token_expired"`
}

func (s statusData) String() string {
	reach := "unreachable"
	if s.Reachable {
		reach = "reachable"
	}
	auth := "not logged in"
	if s.Authenticated {
		auth = "logged in as " + s.Email
		if s.TokenExpired {
			auth += " (token expired)"
		}
	}
	return fmt.Sprintf("relay %s (%s), %s", s.APIBase, reach, auth)
}

// NewStatusCommand creates the status command.
func NewStatusCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show relay reachability and session state",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := setup(cmd, opts)
			if err != nil {
				return err
			}

			data := statusData{
				APIBase:       e.cfg.APIBase,
				Authenticated: e.session.Authenticated() || e.cfg.Token != "",
				Email:         e.session.Email(),
				TokenExpired:  e.session.Expired(time.Now()),
			}
			if err := e.relay.Ping(cmd.Context()); err == nil {
				data.Reachable = true
			} else {
				e.out.VerboseLog("ping: %v", err)
			}

			if err := e.out.Success(data); err != nil {
				return err
			}
			if !data.Reachable {
				return NewExitError(ExitFailure, "relay unreachable")
			}
			return nil
		},
	}
}
