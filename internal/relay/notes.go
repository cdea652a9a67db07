package relay

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
)

// NoteDraft is the payload for creating a note. MessageID empty means a
// thread-level note on the conversation itself.
type NoteDraft struct {
	ChatID    string
	Content   string
	MessageID string
	Color     string
	IsThread  bool
	Author    string
}

// ListNotes fetches all notes for a conversation, thread-level and
// per-message alike.
func (c *Client) ListNotes(ctx context.Context, chatID string) ([]Note, error) {
	q := url.Values{"chat_id": {chatID}}
	var raw []wireNote
	if err := c.getJSON(ctx, "/notes", q, &raw); err != nil {
		return nil, fmt.Errorf("list notes for chat %s: %w", chatID, err)
	}
	return decodeNotes(raw)
}

// ListMessageNotes fetches the notes attached to a single message.
func (c *Client) ListMessageNotes(ctx context.Context, messageID string) ([]Note, error) {
	var raw []wireNote
	path := "/messages/" + url.PathEscape(messageID) + "/notes"
	if err := c.getJSON(ctx, path, nil, &raw); err != nil {
		return nil, fmt.Errorf("list notes for message %s: %w", messageID, err)
	}
	return decodeNotes(raw)
}

// CreateNote stores a new note and returns the server's copy (with the
// assigned id and creation time).
func (c *Client) CreateNote(ctx context.Context, draft NoteDraft) (Note, error) {
	if draft.Content == "" {
		return Note{}, fmt.Errorf("create note: %w", ErrEmptyBody)
	}
	payload := map[string]any{
		"chat_id":   draft.ChatID,
		"content":   draft.Content,
		"color":     draft.Color,
		"is_thread": draft.IsThread,
		"author":    draft.Author,
	}
	if draft.MessageID != "" {
		payload["message_id"] = draft.MessageID
	}
	var w wireNote
	if err := c.postJSON(ctx, "/notes", payload, &w); err != nil {
		return Note{}, fmt.Errorf("create note: %w", err)
	}
	n, err := w.toNote()
	if err != nil {
		return Note{}, fmt.Errorf("create note: %w", err)
	}
	return n, nil
}

// UpdateNote replaces a note's content and returns the updated copy.
func (c *Client) UpdateNote(ctx context.Context, id, content string) (Note, error) {
	if content == "" {
		return Note{}, fmt.Errorf("update note %s: %w", id, ErrEmptyBody)
	}
	var w wireNote
	path := "/notes/" + url.PathEscape(id)
	if err := c.writeJSON(ctx, http.MethodPut, path, map[string]any{"content": content}, &w); err != nil {
		return Note{}, fmt.Errorf("update note %s: %w", id, err)
	}
	n, err := w.toNote()
	if err != nil {
		return Note{}, fmt.Errorf("update note %s: %w", id, err)
	}
	return n, nil
}

// DeleteNote removes a note. Notes are deleted independently of the
// messages they annotate.
func (c *Client) DeleteNote(ctx context.Context, id string) error {
	path := "/notes/" + url.PathEscape(id)
	if err := c.writeJSON(ctx, http.MethodDelete, path, nil, nil); err != nil {
		return fmt.Errorf("delete note %s: %w", id, err)
	}
	return nil
}

func decodeNotes(raw []wireNote) ([]Note, error) {
	out := make([]Note, 0, len(raw))
	for i := range raw {
		n, err := raw[i].toNote()
		if err != nil {
			return nil, fmt.Errorf("note %d: %w", i, err)
		}
		out = append(out, n)
	}
	return out, nil
}
