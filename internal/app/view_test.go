package app

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"relaychat/internal/relay"
	"relaychat/internal/state"
)

func TestDisplayName(t *testing.T) {
	tests := []struct {
		name string
		conv relay.Conversation
		want string
	}{
		{
			"contact name wins",
			relay.Conversation{ChatID: "1", ContactName: "Ada", Name: "chat1", ChatIdentifier: "+15551234567"},
			"Ada",
		},
		{
			"group name",
			relay.Conversation{ChatID: "g1", IsGroup: true, Name: "weekend plans"},
			"weekend plans",
		},
		{
			"formatted phone",
			relay.Conversation{ChatID: "2", ChatIdentifier: "+15551234567"},
			"(555) 123-4567",
		},
		{
			"email handle untouched",
			relay.Conversation{ChatID: "3", ChatIdentifier: "friend@example.com"},
			"friend@example.com",
		},
		{
			"chat id as last resort",
			relay.Conversation{ChatID: "9"},
			"9",
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, DisplayName(tc.conv))
		})
	}
}

func TestFormatPhone(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"+15551234567", "(555) 123-4567"},
		{"5551234567", "(555) 123-4567"},
		{"555-123-4567", "(555) 123-4567"},
		{"+442071234567", "+442071234567"}, // international left alone
		{"86753", "86753"},                 // short code left alone
		{"friend@example.com", "friend@example.com"},
	}
	for _, tc := range tests {
		assert.Equal(t, tc.want, FormatPhone(tc.in), tc.in)
	}
}

func TestConversationsFiltering(t *testing.T) {
	r := newFakeRelay()
	now := time.Now()
	r.convs = []relay.Conversation{
		{ChatID: "1", ContactName: "Ada", LastMessage: "see you", LastMessageTime: now, UnreadCount: 2},
		{ChatID: "2", ContactName: "Grace", LastMessageTime: now.Add(-time.Hour)},
		{ChatID: "3", ContactName: "Linus", LastMessageTime: now.Add(-2 * time.Hour)},
	}
	c := newTestClient(t, r)
	ctx := context.Background()
	require.NoError(t, c.RefreshConversations(ctx))

	// Everything starts open, newest first.
	views, err := c.Conversations(ctx, Filter{})
	require.NoError(t, err)
	require.Len(t, views, 3)
	assert.Equal(t, "Ada", views[0].DisplayName)
	assert.Equal(t, state.BucketOpen, views[0].Bucket)
	assert.True(t, views[0].Unread)
	assert.False(t, views[1].Unread)

	// Done moves a conversation out of open.
	_, err = c.State().ToggleDone(ctx, "2")
	require.NoError(t, err)

	views, err = c.Conversations(ctx, Filter{Bucket: state.BucketOpen})
	require.NoError(t, err)
	require.Len(t, views, 2)

	views, err = c.Conversations(ctx, Filter{Bucket: state.BucketDone})
	require.NoError(t, err)
	require.Len(t, views, 1)
	assert.Equal(t, "Grace", views[0].DisplayName)

	// Custom buckets.
	require.NoError(t, c.State().AddBucket(ctx, "work"))
	require.NoError(t, c.State().AssignBucket(ctx, "3", "work"))
	views, err = c.Conversations(ctx, Filter{Bucket: "work"})
	require.NoError(t, err)
	require.Len(t, views, 1)
	assert.Equal(t, "Linus", views[0].DisplayName)

	// Search by name and by last message.
	views, err = c.Conversations(ctx, Filter{Query: "ada"})
	require.NoError(t, err)
	require.Len(t, views, 1)

	views, err = c.Conversations(ctx, Filter{Query: "see you"})
	require.NoError(t, err)
	require.Len(t, views, 1)

	// Unread only; marking read clears it.
	views, err = c.Conversations(ctx, Filter{UnreadOnly: true})
	require.NoError(t, err)
	require.Len(t, views, 1)

	require.NoError(t, c.State().MarkRead(ctx, "1"))
	views, err = c.Conversations(ctx, Filter{UnreadOnly: true})
	require.NoError(t, err)
	assert.Empty(t, views)
}
