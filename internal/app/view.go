package app

import (
	"context"
	"sort"
	"strings"

	"relaychat/internal/relay"
	"relaychat/internal/state"
)

// ConversationView is one conversation with the client-side metadata
// folded in.
type ConversationView struct {
	relay.Conversation
	DisplayName string
	Bucket      string
	Unread      bool
}

// Filter narrows the conversation listing. Zero value lists everything.
type Filter struct {
	// Bucket keeps only conversations in the named bucket.
	Bucket string
	// Query keeps conversations whose display name, identifier, or last
	// message contains it, case-insensitively.
	Query string
	// UnreadOnly keeps conversations with unseen activity.
	UnreadOnly bool
}

// Conversations returns the current listing, filtered and sorted by
// last activity, newest first.
func (c *Client) Conversations(ctx context.Context, f Filter) ([]ConversationView, error) {
	readSet, err := c.store.ReadSet(ctx)
	if err != nil {
		return nil, err
	}
	doneSet, err := c.store.DoneSet(ctx)
	if err != nil {
		return nil, err
	}
	assignments, err := c.store.Assignments(ctx)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	convs := make([]relay.Conversation, len(c.conversations))
	copy(convs, c.conversations)
	c.mu.Unlock()

	query := strings.ToLower(strings.TrimSpace(f.Query))
	out := make([]ConversationView, 0, len(convs))
	for _, conv := range convs {
		view := ConversationView{
			Conversation: conv,
			DisplayName:  DisplayName(conv),
			Bucket:       bucketOf(conv.ChatID, doneSet, assignments),
			Unread:       conv.UnreadCount > 0 && !readSet[conv.ChatID],
		}
		if f.Bucket != "" && view.Bucket != f.Bucket {
			continue
		}
		if f.UnreadOnly && !view.Unread {
			continue
		}
		if query != "" && !matchesQuery(view, query) {
			continue
		}
		out = append(out, view)
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].LastMessageTime.After(out[j].LastMessageTime)
	})
	return out, nil
}

func bucketOf(chatID string, doneSet map[string]bool, assignments map[string]string) string {
	if doneSet[chatID] {
		return state.BucketDone
	}
	if b, ok := assignments[chatID]; ok {
		return b
	}
	return state.BucketOpen
}

func matchesQuery(v ConversationView, query string) bool {
	for _, field := range []string{v.DisplayName, v.ChatIdentifier, v.LastMessage, v.Name} {
		if strings.Contains(strings.ToLower(field), query) {
			return true
		}
	}
	return false
}

// DisplayName picks the friendliest available label: the contact name,
// a group's own name, a formatted phone number, or the raw chat id.
func DisplayName(conv relay.Conversation) string {
	if conv.ContactName != "" {
		return conv.ContactName
	}
	if conv.IsGroup && conv.Name != "" {
		return conv.Name
	}
	if conv.ChatIdentifier != "" {
		return FormatPhone(conv.ChatIdentifier)
	}
	if conv.Name != "" {
		return conv.Name
	}
	return conv.ChatID
}

// FormatPhone renders US-style numbers as (XXX) XXX-XXXX and leaves
// anything else (email handles, short codes, international) untouched.
func FormatPhone(identifier string) string {
	if strings.Contains(identifier, "@") {
		return identifier
	}
	digits := strings.Builder{}
	for _, r := range identifier {
		if r >= '0' && r <= '9' {
			digits.WriteRune(r)
		}
	}
	d := digits.String()
	switch {
	case len(d) == 11 && d[0] == '1':
		d = d[1:]
	case len(d) == 10:
	default:
		return identifier
	}
	return "(" + d[:3] + ") " + d[3:6] + "-" + d[6:]
}
