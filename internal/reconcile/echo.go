package reconcile

import (
	"fmt"
	"time"
)

// EchoTracker creates provisional local messages ("echoes") the instant a
// user submits text, before the server confirms the send.
//
// The tracker only mints echoes; recognizing when an echo has been
// superseded by its authoritative counterpart is the Reconciler's job,
// and removing an echo after a failed send is the caller's (see Remove).
type EchoTracker struct {
	tokens *TokenSource
}

// NewEchoTracker creates a tracker drawing provisional ids from tokens.
func NewEchoTracker(tokens *TokenSource) *EchoTracker {
	return &EchoTracker{tokens: tokens}
}

// NewEcho mints a pending message for text submitted to a conversation.
//
// The echo is from-me, marked read (the user wrote it), and stamped with
// the submission time so it sorts into the visible sequence immediately.
func (t *EchoTracker) NewEcho(chatID, body string, now time.Time) Message {
	return Message{
		ID:        fmt.Sprintf("%s%d", PendingPrefix, t.tokens.Next()),
		Body:      body,
		FromMe:    true,
		Timestamp: now,
		ChatID:    chatID,
		Read:      true,
		Pending:   true,
	}
}
