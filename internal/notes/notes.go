// Package notes keeps a local overlay of annotations for the selected
// conversation.
//
// Notes live beside the message sequence, never inside it: reconciliation
// replaces messages wholesale and must not disturb annotations. Edits are
// applied optimistically - the overlay changes first, the server call
// follows, and a failure rolls the overlay back.
package notes

import (
	"context"
	"log/slog"
	"slices"
	"sync"

	"github.com/google/uuid"

	"relaychat/internal/reconcile"
	"relaychat/internal/relay"
)

// Service is the slice of the relay API the overlay needs.
type Service interface {
	ListNotes(ctx context.Context, chatID string) ([]relay.Note, error)
	ListMessageNotes(ctx context.Context, messageID string) ([]relay.Note, error)
	CreateNote(ctx context.Context, draft relay.NoteDraft) (relay.Note, error)
	UpdateNote(ctx context.Context, id, content string) (relay.Note, error)
	DeleteNote(ctx context.Context, id string) error
}

// Overlay holds the notes for one conversation at a time, keyed by the
// message they annotate. Thread-level notes (no message) are kept apart.
//
// Reads are best-effort: a failed load logs and leaves the overlay as it
// was. Writes return their error after rolling back the optimistic
// change.
type Overlay struct {
	mu     sync.Mutex
	svc    Service
	logger *slog.Logger

	chatID    string
	byMessage map[string][]relay.Note
	thread    []relay.Note
	loaded    map[string]bool // message ids already fetched
}

// NewOverlay creates an empty overlay backed by svc.
func NewOverlay(svc Service, logger *slog.Logger) *Overlay {
	if logger == nil {
		logger = slog.Default()
	}
	return &Overlay{
		svc:       svc,
		logger:    logger,
		byMessage: make(map[string][]relay.Note),
		loaded:    make(map[string]bool),
	}
}

// SetConversation clears the overlay and loads chatID's notes. A load
// failure leaves an empty overlay; per-message loads fill gaps later.
func (o *Overlay) SetConversation(ctx context.Context, chatID string) {
	o.mu.Lock()
	o.chatID = chatID
	o.byMessage = make(map[string][]relay.Note)
	o.thread = nil
	o.loaded = make(map[string]bool)
	o.mu.Unlock()

	if chatID == "" {
		return
	}
	all, err := o.svc.ListNotes(ctx, chatID)
	if err != nil {
		o.logger.Warn("note load failed", "chat_id", chatID, "error", err)
		return
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	if o.chatID != chatID {
		return // selection moved on while loading
	}
	for _, n := range all {
		o.insertLocked(n)
	}
}

// LoadMessageNotes fetches notes for any of the given messages not yet
// loaded. Pending echoes are skipped - they have no server identity yet.
// Failures are swallowed; the overlay simply stays sparse.
func (o *Overlay) LoadMessageNotes(ctx context.Context, messageIDs []string) {
	o.mu.Lock()
	chatID := o.chatID
	var todo []string
	for _, id := range messageIDs {
		if reconcile.IsPendingID(id) || o.loaded[id] {
			continue
		}
		o.loaded[id] = true
		todo = append(todo, id)
	}
	o.mu.Unlock()

	for _, id := range todo {
		got, err := o.svc.ListMessageNotes(ctx, id)
		if err != nil {
			o.logger.Debug("message note load failed", "message_id", id, "error", err)
			continue
		}
		o.mu.Lock()
		if o.chatID == chatID {
			o.byMessage[id] = nil
			for _, n := range got {
				o.insertLocked(n)
			}
		}
		o.mu.Unlock()
	}
}

// NotesFor returns the loaded notes for one message.
func (o *Overlay) NotesFor(messageID string) []relay.Note {
	o.mu.Lock()
	defer o.mu.Unlock()
	return slices.Clone(o.byMessage[messageID])
}

// ThreadNotes returns the conversation-level notes.
func (o *Overlay) ThreadNotes() []relay.Note {
	o.mu.Lock()
	defer o.mu.Unlock()
	return slices.Clone(o.thread)
}

// Create stores a new note. The overlay shows a provisional copy
// immediately; on success the server's copy (with its id and creation
// time) replaces it, on failure the provisional copy is removed.
func (o *Overlay) Create(ctx context.Context, draft relay.NoteDraft) (relay.Note, error) {
	provisional := relay.Note{
		ID:        "pending-note-" + uuid.NewString(),
		ChatID:    draft.ChatID,
		Content:   draft.Content,
		Author:    draft.Author,
		Color:     draft.Color,
		MessageID: draft.MessageID,
		IsThread:  draft.IsThread,
	}
	o.mu.Lock()
	o.insertLocked(provisional)
	o.mu.Unlock()

	created, err := o.svc.CreateNote(ctx, draft)

	o.mu.Lock()
	defer o.mu.Unlock()
	o.removeLocked(provisional.ID)
	if err != nil {
		return relay.Note{}, err
	}
	o.insertLocked(created)
	return created, nil
}

// Update rewrites a note's content, rolling back on failure.
func (o *Overlay) Update(ctx context.Context, id, content string) error {
	o.mu.Lock()
	prev, ok := o.findLocked(id)
	if !ok {
		o.mu.Unlock()
		_, err := o.svc.UpdateNote(ctx, id, content)
		return err
	}
	edited := prev
	edited.Content = content
	o.removeLocked(id)
	o.insertLocked(edited)
	o.mu.Unlock()

	updated, err := o.svc.UpdateNote(ctx, id, content)

	o.mu.Lock()
	defer o.mu.Unlock()
	o.removeLocked(id)
	if err != nil {
		o.insertLocked(prev)
		return err
	}
	o.insertLocked(updated)
	return nil
}

// Delete removes a note, restoring it if the server refuses.
func (o *Overlay) Delete(ctx context.Context, id string) error {
	o.mu.Lock()
	prev, ok := o.findLocked(id)
	if ok {
		o.removeLocked(id)
	}
	o.mu.Unlock()

	err := o.svc.DeleteNote(ctx, id)
	if err != nil && ok {
		o.mu.Lock()
		o.insertLocked(prev)
		o.mu.Unlock()
	}
	return err
}

// insertLocked files a note. A note is thread-level when it says so or
// when it names no message; is_thread wins even with a message id set.
func (o *Overlay) insertLocked(n relay.Note) {
	if n.IsThread || n.MessageID == "" {
		o.thread = append(o.thread, n)
		return
	}
	o.byMessage[n.MessageID] = append(o.byMessage[n.MessageID], n)
}

func (o *Overlay) findLocked(id string) (relay.Note, bool) {
	for _, n := range o.thread {
		if n.ID == id {
			return n, true
		}
	}
	for _, ns := range o.byMessage {
		for _, n := range ns {
			if n.ID == id {
				return n, true
			}
		}
	}
	return relay.Note{}, false
}

func (o *Overlay) removeLocked(id string) {
	o.thread = slices.DeleteFunc(o.thread, func(n relay.Note) bool { return n.ID == id })
	for mid, ns := range o.byMessage {
		o.byMessage[mid] = slices.DeleteFunc(ns, func(n relay.Note) bool { return n.ID == id })
	}
}
