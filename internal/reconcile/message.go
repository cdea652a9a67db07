package reconcile

import (
	"strings"
	"time"
)

// PendingPrefix marks provisional ids assigned to local echoes before the
// server confirms the send. Confirmed messages carry server-assigned ids
// that never use this prefix.
const PendingPrefix = "pending-"

// Message is a single entry in a conversation's visible sequence.
//
// Identity is either a server-assigned id (confirmed) or a provisional
// "pending-<token>" id (local echo). From is the sender identifier and is
// empty for the user's own messages in 1:1 chats.
type Message struct {
	ID             string
	Body           string
	From           string
	FromName       string
	FromMe         bool
	Timestamp      time.Time
	ChatID         string
	Read           bool
	Pending        bool
	HasAttachments bool
}

// IsPendingID reports whether id is a provisional echo id.
func IsPendingID(id string) bool {
	return strings.HasPrefix(id, PendingPrefix)
}

// Remove drops the message with the given id from seq and returns the
// shortened sequence plus the removed message's body. The body is what a
// caller restores to the compose field when a send fails. Returns ok=false
// and seq unchanged when no entry matches.
func Remove(seq []Message, id string) (out []Message, body string, ok bool) {
	for i, m := range seq {
		if m.ID == id {
			out = make([]Message, 0, len(seq)-1)
			out = append(out, seq[:i]...)
			out = append(out, seq[i+1:]...)
			return out, m.Body, true
		}
	}
	return seq, "", false
}

// Insert adds m to seq keeping ascending timestamp order. Equal timestamps
// keep arrival order: the new message lands after existing equals.
func Insert(seq []Message, m Message) []Message {
	i := len(seq)
	for i > 0 && seq[i-1].Timestamp.After(m.Timestamp) {
		i--
	}
	out := make([]Message, 0, len(seq)+1)
	out = append(out, seq[:i]...)
	out = append(out, m)
	out = append(out, seq[i:]...)
	return out
}
