package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"relaychat/internal/app"
)

type conversationRow struct {
	ChatID      string `json:"chat_id"`
	DisplayName string `json:"display_name"`
	Bucket      string `json:"bucket"`
	Unread      bool   `json:"unread"`
	LastMessage string `json:"last_message,omitempty"`
	LastAt      string `json:"last_at,omitempty"`
}

type conversationListing []conversationRow

func (l conversationListing) String() string {
	if len(l) == 0 {
		return "no conversations"
	}
	var b strings.Builder
	for _, row := range l {
		marker := " "
		if row.Unread {
			marker = "*"
		}
		fmt.Fprintf(&b, "%s %-10s %-24s [%s] %s\n",
			marker, row.ChatID, row.DisplayName, row.Bucket, row.LastMessage)
	}
	return strings.TrimRight(b.String(), "\n")
}

// NewConversationsCommand creates the conversations command.
func NewConversationsCommand(opts *RootOptions) *cobra.Command {
	var tab, bucket, query string
	var unreadOnly bool

	cmd := &cobra.Command{
		Use:     "conversations",
		Aliases: []string{"ls"},
		Short:   "List conversations",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := setupApp(cmd, opts)
			if err != nil {
				return err
			}
			defer e.close()

			// --tab is shorthand for the two built-in buckets.
			switch tab {
			case "":
			case "open", "done":
				if bucket != "" && bucket != tab {
					return NewExitError(ExitCommandError, "--tab and --bucket disagree")
				}
				bucket = tab
			default:
				return NewExitError(ExitCommandError,
					fmt.Sprintf("invalid tab %q: must be open or done", tab))
			}

			ctx := cmd.Context()
			if err := e.client.RefreshConversations(ctx); err != nil {
				e.out.Error(err.Error())
				return WrapExitError(ExitFailure, "refresh conversations", err)
			}

			views, err := e.client.Conversations(ctx, app.Filter{
				Bucket:     bucket,
				Query:      query,
				UnreadOnly: unreadOnly,
			})
			if err != nil {
				return WrapExitError(ExitCommandError, "list conversations", err)
			}

			rows := make(conversationListing, 0, len(views))
			for _, v := range views {
				row := conversationRow{
					ChatID:      v.ChatID,
					DisplayName: v.DisplayName,
					Bucket:      v.Bucket,
					Unread:      v.Unread,
					LastMessage: v.LastMessage,
				}
				if !v.LastMessageTime.IsZero() {
					row.LastAt = v.LastMessageTime.Local().Format("2006-01-02 15:04")
				}
				rows = append(rows, row)
			}
			return e.out.Success(rows)
		},
	}

	cmd.Flags().StringVar(&tab, "tab", "", "open or done tab")
	cmd.Flags().StringVar(&bucket, "bucket", "", "only this bucket (open, done, ...)")
	cmd.Flags().StringVar(&query, "search", "", "substring filter on name, handle, or last message")
	cmd.Flags().BoolVar(&unreadOnly, "unread", false, "only unread conversations")
	return cmd
}
