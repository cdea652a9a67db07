package cli

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"relaychat/internal/relay"
)

// NewSendCommand creates the send command.
func NewSendCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "send <chat-id> <message...>",
		Short: "Send one message",
		Long: "Sends a message to a conversation. 1:1 conversations are\n" +
			"addressed by the contact's handle, groups by their chat id;\n" +
			"the right form is chosen from the conversation listing.",
		Args: cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := setupApp(cmd, opts)
			if err != nil {
				return err
			}
			defer e.close()

			ctx := cmd.Context()
			chatID := args[0]
			body := strings.Join(args[1:], " ")

			// The listing tells us whether this is a group or a 1:1.
			if err := e.client.RefreshConversations(ctx); err != nil {
				e.out.VerboseLog("conversation refresh failed, sending by chat id: %v", err)
			}

			if err := e.client.SendMessage(ctx, chatID, body); err != nil {
				e.out.Error(err.Error())
				switch {
				case errors.Is(err, relay.ErrEmptyBody), errors.Is(err, relay.ErrNoRecipient):
					return WrapExitError(ExitCommandError, "invalid send", err)
				case errors.Is(err, relay.ErrUnauthenticated):
					return WrapExitError(ExitFailure, "not logged in", err)
				default:
					return WrapExitError(ExitFailure, "send failed", err)
				}
			}
			return e.out.Success(fmt.Sprintf("sent to %s", chatID))
		},
	}
	return cmd
}
