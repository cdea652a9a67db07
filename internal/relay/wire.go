package relay

import (
	"encoding/json"
	"fmt"
	"time"

	"relaychat/internal/reconcile"
)

// flexID absorbs ids the relay serializes as either JSON strings or
// numbers. Internally ids are always strings.
type flexID string

func (f *flexID) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*f = flexID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("id is neither string nor number: %w", err)
	}
	*f = flexID(n.String())
	return nil
}

// wireMessage is the raw message payload. Pointer fields are optional;
// toMessage enforces the required set (id, timestamp, fromMe).
type wireMessage struct {
	ID             *flexID `json:"id"`
	Body           *string `json:"body"`
	Timestamp      *string `json:"timestamp"`
	FromMe         *bool   `json:"fromMe"`
	From           *string `json:"from"`
	FromName       *string `json:"fromName"`
	ChatID         *flexID `json:"chat_id"`
	IsRead         *bool   `json:"is_read"`
	HasAttachments *bool   `json:"has_attachments"`
}

func (w *wireMessage) toMessage() (reconcile.Message, error) {
	var m reconcile.Message
	if w.ID == nil || *w.ID == "" {
		return m, fmt.Errorf("message missing id")
	}
	if w.Timestamp == nil {
		return m, fmt.Errorf("message %s missing timestamp", *w.ID)
	}
	t, err := time.Parse(time.RFC3339Nano, *w.Timestamp)
	if err != nil {
		return m, fmt.Errorf("message %s: bad timestamp %q: %w", *w.ID, *w.Timestamp, err)
	}
	if w.FromMe == nil {
		return m, fmt.Errorf("message %s missing fromMe", *w.ID)
	}

	m = reconcile.Message{
		ID:        string(*w.ID),
		Timestamp: t,
		FromMe:    *w.FromMe,
	}
	if w.Body != nil {
		m.Body = *w.Body
	}
	if w.From != nil {
		m.From = *w.From
	}
	if w.FromName != nil {
		m.FromName = *w.FromName
	}
	if w.ChatID != nil {
		m.ChatID = string(*w.ChatID)
	}
	if w.IsRead != nil {
		m.Read = *w.IsRead
	}
	if w.HasAttachments != nil {
		m.HasAttachments = *w.HasAttachments
	}
	return m, nil
}

// Batch is one change-detected fetch result: the authoritative messages,
// the server-computed fingerprint of the set, and whether the set differs
// from the fingerprint the caller supplied.
type Batch struct {
	Messages    []reconcile.Message
	Fingerprint string
	Changed     bool
}

type wireBatch struct {
	Messages []wireMessage `json:"messages"`
	Hash     *string       `json:"hash"`
	Changed  *bool         `json:"changed"`
}

// toBatch validates the fetch payload. The fingerprint is required; the
// changed flag defaults to a client-side comparison when the server omits
// it (changed is true whenever no previous fingerprint exists).
func (w *wireBatch) toBatch(lastFingerprint string) (Batch, error) {
	if w.Hash == nil || *w.Hash == "" {
		return Batch{}, fmt.Errorf("fetch result missing hash")
	}
	b := Batch{
		Messages:    make([]reconcile.Message, 0, len(w.Messages)),
		Fingerprint: *w.Hash,
	}
	for i := range w.Messages {
		m, err := w.Messages[i].toMessage()
		if err != nil {
			return Batch{}, fmt.Errorf("message %d: %w", i, err)
		}
		b.Messages = append(b.Messages, m)
	}
	if w.Changed != nil {
		b.Changed = *w.Changed
	} else {
		b.Changed = lastFingerprint == "" || *w.Hash != lastFingerprint
	}
	return b, nil
}

// Participant is one member of a group conversation.
type Participant struct {
	ContactName string
	Phone       string
}

// The relay serializes participants either as objects or as bare handle
// strings; accept both.
func (p *Participant) UnmarshalJSON(b []byte) error {
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		p.Phone = s
		return nil
	}
	var obj struct {
		ContactName *string `json:"contact_name"`
		Phone       *string `json:"phone"`
	}
	if err := json.Unmarshal(b, &obj); err != nil {
		return fmt.Errorf("participant is neither string nor object: %w", err)
	}
	if obj.ContactName != nil {
		p.ContactName = *obj.ContactName
	}
	if obj.Phone != nil {
		p.Phone = *obj.Phone
	}
	return nil
}

// Service distinguishes the transport backing a 1:1 conversation. Empty
// when the relay doesn't know.
type Service string

const (
	ServiceUnknown  Service = ""
	ServiceIMessage Service = "imessage"
	ServiceSMS      Service = "sms"
)

// Conversation is a chat thread as the relay reports it. Never created
// locally; populated by the periodic full-list refresh.
type Conversation struct {
	ChatID          string
	Name            string
	ContactName     string
	ChatIdentifier  string
	IsGroup         bool
	Service         Service
	Participants    []Participant
	LastMessage     string
	LastMessageTime time.Time
	LastMessageSent bool
	LastMessageRead bool
	UnreadCount     int
}

type wireConversation struct {
	ChatID          *flexID       `json:"chat_id"`
	Name            *string       `json:"name"`
	ContactName     *string       `json:"contact_name"`
	ChatIdentifier  *string       `json:"chat_identifier"`
	IsGroup         *bool         `json:"is_group"`
	IsIMessage      *bool         `json:"is_imessage"`
	Participants    []Participant `json:"participants"`
	LastMessage     *string       `json:"lastMessage"`
	LastMessageTime *string       `json:"lastMessageTime"`
	LastMessageSent *bool         `json:"lastMessageSent"`
	LastMessageRead *bool         `json:"lastMessageRead"`
	UnreadCount     *int          `json:"unreadCount"`
}

func (w *wireConversation) toConversation() (Conversation, error) {
	var c Conversation
	if w.ChatID == nil || *w.ChatID == "" {
		return c, fmt.Errorf("conversation missing chat_id")
	}
	c.ChatID = string(*w.ChatID)
	if w.Name != nil {
		c.Name = *w.Name
	}
	if w.ContactName != nil {
		c.ContactName = *w.ContactName
	}
	if w.ChatIdentifier != nil {
		c.ChatIdentifier = *w.ChatIdentifier
	}
	if w.IsGroup != nil {
		c.IsGroup = *w.IsGroup
	}
	// is_imessage is tri-state on the wire: true, false, or null/absent.
	if w.IsIMessage != nil {
		if *w.IsIMessage {
			c.Service = ServiceIMessage
		} else {
			c.Service = ServiceSMS
		}
	}
	c.Participants = w.Participants
	if w.LastMessage != nil {
		c.LastMessage = *w.LastMessage
	}
	if w.LastMessageTime != nil && *w.LastMessageTime != "" {
		t, err := time.Parse(time.RFC3339Nano, *w.LastMessageTime)
		if err != nil {
			return c, fmt.Errorf("conversation %s: bad lastMessageTime %q: %w", c.ChatID, *w.LastMessageTime, err)
		}
		c.LastMessageTime = t
	}
	if w.LastMessageSent != nil {
		c.LastMessageSent = *w.LastMessageSent
	}
	if w.LastMessageRead != nil {
		c.LastMessageRead = *w.LastMessageRead
	}
	if w.UnreadCount != nil {
		c.UnreadCount = *w.UnreadCount
	}
	return c, nil
}

// Note is a freeform annotation attached to a message or, when MessageID
// is empty, to the conversation as a whole.
type Note struct {
	ID        string
	ChatID    string
	Content   string
	Author    string
	Color     string
	CreatedAt time.Time
	MessageID string
	IsThread  bool
}

type wireNote struct {
	ID        *flexID `json:"id"`
	ChatID    *flexID `json:"chat_id"`
	Content   *string `json:"content"`
	Author    *string `json:"author"`
	Color     *string `json:"color"`
	CreatedAt *string `json:"created_at"`
	MessageID *flexID `json:"message_id"`
	IsThread  *bool   `json:"is_thread"`
}

func (w *wireNote) toNote() (Note, error) {
	var n Note
	if w.ID == nil || *w.ID == "" {
		return n, fmt.Errorf("note missing id")
	}
	if w.Content == nil {
		return n, fmt.Errorf("note %s missing content", *w.ID)
	}
	n.ID = string(*w.ID)
	n.Content = *w.Content
	if w.ChatID != nil {
		n.ChatID = string(*w.ChatID)
	}
	if w.Author != nil {
		n.Author = *w.Author
	}
	if w.Color != nil {
		n.Color = *w.Color
	}
	if w.CreatedAt != nil && *w.CreatedAt != "" {
		t, err := time.Parse(time.RFC3339Nano, *w.CreatedAt)
		if err != nil {
			return n, fmt.Errorf("note %s: bad created_at %q: %w", n.ID, *w.CreatedAt, err)
		}
		n.CreatedAt = t
	}
	if w.MessageID != nil {
		n.MessageID = string(*w.MessageID)
	}
	if w.IsThread != nil {
		n.IsThread = *w.IsThread
	}
	return n, nil
}
