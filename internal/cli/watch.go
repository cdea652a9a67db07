package cli

import (
	"bufio"
	"errors"
	"fmt"
	"log/slog"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"relaychat/internal/reconcile"
	"relaychat/internal/relay"
)

// NewWatchCommand creates the watch command.
func NewWatchCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "watch <chat-id>",
		Short: "Follow one conversation, printing messages as they arrive",
		Long: "Selects a conversation and polls it: the steady cadence plus a\n" +
			"short burst after each send keeps the view fresh. Lines typed\n" +
			"on stdin are sent to the conversation. Runs until interrupted\n" +
			"or the session expires.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := setupApp(cmd, opts)
			if err != nil {
				return err
			}
			defer e.close()
			chatID := args[0]

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			if e.cfg.MetricsAddr != "" {
				go func() {
					if err := e.mets.Serve(ctx, e.cfg.MetricsAddr, slog.Default()); err != nil {
						slog.Warn("metrics server failed", "error", err)
					}
				}()
			}

			runDone := make(chan error, 1)
			go func() { runDone <- e.client.Run(ctx) }()

			if err := e.client.Select(ctx, chatID); err != nil {
				return WrapExitError(ExitCommandError, "select conversation", err)
			}

			// Lines from stdin become sends. The scanner goroutine is
			// abandoned at exit; reading stdin is not interruptible.
			lines := make(chan string)
			go func() {
				defer close(lines)
				scanner := bufio.NewScanner(cmd.InOrStdin())
				for scanner.Scan() {
					lines <- scanner.Text()
				}
			}()

			printed := make(map[string]bool)
			ticker := time.NewTicker(300 * time.Millisecond)
			defer ticker.Stop()

			for {
				select {
				case err := <-runDone:
					if errors.Is(err, relay.ErrUnauthenticated) {
						// Presenting this token again is pointless.
						if clearErr := e.session.Clear(); clearErr != nil {
							slog.Warn("session clear failed", "error", clearErr)
						}
						e.out.Error("session expired, log in again")
						return WrapExitError(ExitFailure, "session expired", err)
					}
					return err
				case line, ok := <-lines:
					if !ok {
						lines = nil // stdin closed; keep watching
						continue
					}
					if strings.TrimSpace(line) == "" {
						continue
					}
					e.client.SetCompose(line)
					if err := e.client.Send(ctx); err != nil {
						e.out.Error(err.Error())
					}
				case <-ticker.C:
					for _, m := range e.client.Messages() {
						if printed[m.ID] {
							continue
						}
						printed[m.ID] = true
						printMessage(cmd, e, m)
					}
				}
			}
		},
	}
	return cmd
}

func printMessage(cmd *cobra.Command, e *appEnv, m reconcile.Message) {
	who := m.FromName
	if who == "" {
		who = m.From
	}
	if m.FromMe {
		who = "me"
	}
	suffix := ""
	if m.Pending {
		suffix = " (sending)"
	}
	for _, n := range e.client.Notes().NotesFor(m.ID) {
		suffix += fmt.Sprintf(" [note: %s]", n.Content)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s %s: %s%s\n",
		m.Timestamp.Local().Format("15:04"), who, m.Body, suffix)
}
