package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"relaychat/internal/relay"
)

type noteRow struct {
	ID        string `json:"id"`
	ChatID    string `json:"chat_id"`
	MessageID string `json:"message_id,omitempty"`
	Content   string `json:"content"`
	Author    string `json:"author,omitempty"`
	CreatedAt string `json:"created_at,omitempty"`
}

type noteListing []noteRow

func (l noteListing) String() string {
	if len(l) == 0 {
		return "no notes"
	}
	var b strings.Builder
	for _, row := range l {
		target := "thread"
		if row.MessageID != "" {
			target = "msg " + row.MessageID
		}
		fmt.Fprintf(&b, "%-12s (%s) %s\n", row.ID, target, row.Content)
	}
	return strings.TrimRight(b.String(), "\n")
}

// NewNotesCommand creates the notes command group.
func NewNotesCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "notes",
		Short: "Manage private notes on conversations and messages",
	}
	cmd.AddCommand(newNotesListCommand(opts))
	cmd.AddCommand(newNotesAddCommand(opts))
	cmd.AddCommand(newNotesEditCommand(opts))
	cmd.AddCommand(newNotesRmCommand(opts))
	return cmd
}

func newNotesListCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "list <chat-id>",
		Short: "List a conversation's notes",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := setup(cmd, opts)
			if err != nil {
				return err
			}
			notes, err := e.relay.ListNotes(cmd.Context(), args[0])
			if err != nil {
				e.out.Error(err.Error())
				return WrapExitError(ExitFailure, "list notes", err)
			}
			rows := make(noteListing, 0, len(notes))
			for _, n := range notes {
				row := noteRow{
					ID:        n.ID,
					ChatID:    n.ChatID,
					MessageID: n.MessageID,
					Content:   n.Content,
					Author:    n.Author,
				}
				if !n.CreatedAt.IsZero() {
					row.CreatedAt = n.CreatedAt.Local().Format("2006-01-02 15:04")
				}
				rows = append(rows, row)
			}
			return e.out.Success(rows)
		},
	}
}

func newNotesAddCommand(opts *RootOptions) *cobra.Command {
	var messageID, color string

	cmd := &cobra.Command{
		Use:   "add <chat-id> <content...>",
		Short: "Add a note to a conversation or a message",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := setup(cmd, opts)
			if err != nil {
				return err
			}
			draft := relay.NoteDraft{
				ChatID:    args[0],
				Content:   strings.Join(args[1:], " "),
				MessageID: messageID,
				Color:     color,
				IsThread:  messageID == "",
				Author:    e.session.Email(),
			}
			created, err := e.relay.CreateNote(cmd.Context(), draft)
			if err != nil {
				e.out.Error(err.Error())
				return WrapExitError(ExitFailure, "create note", err)
			}
			return e.out.Success(fmt.Sprintf("note %s created", created.ID))
		},
	}

	cmd.Flags().StringVar(&messageID, "message", "", "attach to this message instead of the thread")
	cmd.Flags().StringVar(&color, "color", "", "note color")
	return cmd
}

func newNotesEditCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "edit <note-id> <content...>",
		Short: "Rewrite a note's content",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := setup(cmd, opts)
			if err != nil {
				return err
			}
			updated, err := e.relay.UpdateNote(cmd.Context(), args[0], strings.Join(args[1:], " "))
			if err != nil {
				e.out.Error(err.Error())
				return WrapExitError(ExitFailure, "update note", err)
			}
			return e.out.Success(fmt.Sprintf("note %s updated", updated.ID))
		},
	}
}

func newNotesRmCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "rm <note-id>",
		Short: "Delete a note",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := setup(cmd, opts)
			if err != nil {
				return err
			}
			if err := e.relay.DeleteNote(cmd.Context(), args[0]); err != nil {
				e.out.Error(err.Error())
				return WrapExitError(ExitFailure, "delete note", err)
			}
			return e.out.Success(fmt.Sprintf("note %s deleted", args[0]))
		},
	}
}
