package notes

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"relaychat/internal/relay"
)

// fakeService serves canned notes and records writes. Any method whose
// name appears in failing returns an error.
type fakeService struct {
	notesByChat    map[string][]relay.Note
	notesByMessage map[string][]relay.Note
	failing        map[string]bool
	nextID         int

	created []relay.NoteDraft
	updated []string
	deleted []string
}

func newFakeService() *fakeService {
	return &fakeService{
		notesByChat:    make(map[string][]relay.Note),
		notesByMessage: make(map[string][]relay.Note),
		failing:        make(map[string]bool),
	}
}

func (f *fakeService) ListNotes(ctx context.Context, chatID string) ([]relay.Note, error) {
	if f.failing["list"] {
		return nil, errors.New("list failed")
	}
	return f.notesByChat[chatID], nil
}

func (f *fakeService) ListMessageNotes(ctx context.Context, messageID string) ([]relay.Note, error) {
	if f.failing["listMessage"] {
		return nil, errors.New("list failed")
	}
	return f.notesByMessage[messageID], nil
}

func (f *fakeService) CreateNote(ctx context.Context, draft relay.NoteDraft) (relay.Note, error) {
	if f.failing["create"] {
		return relay.Note{}, errors.New("create failed")
	}
	f.created = append(f.created, draft)
	f.nextID++
	return relay.Note{
		ID:        fmt.Sprintf("n%d", f.nextID),
		ChatID:    draft.ChatID,
		Content:   draft.Content,
		MessageID: draft.MessageID,
		IsThread:  draft.IsThread,
	}, nil
}

func (f *fakeService) UpdateNote(ctx context.Context, id, content string) (relay.Note, error) {
	if f.failing["update"] {
		return relay.Note{}, errors.New("update failed")
	}
	f.updated = append(f.updated, id)
	return relay.Note{ID: id, Content: content}, nil
}

func (f *fakeService) DeleteNote(ctx context.Context, id string) error {
	if f.failing["delete"] {
		return errors.New("delete failed")
	}
	f.deleted = append(f.deleted, id)
	return nil
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestSetConversationPartitionsNotes(t *testing.T) {
	svc := newFakeService()
	svc.notesByChat["42"] = []relay.Note{
		{ID: "n1", ChatID: "42", Content: "thread note", IsThread: true},
		{ID: "n2", ChatID: "42", Content: "about m1", MessageID: "m1"},
		{ID: "n3", ChatID: "42", Content: "also m1", MessageID: "m1"},
	}
	o := NewOverlay(svc, quietLogger())

	o.SetConversation(context.Background(), "42")

	require.Len(t, o.ThreadNotes(), 1)
	assert.Len(t, o.NotesFor("m1"), 2)
	assert.Empty(t, o.NotesFor("m9"))
}

func TestThreadFlagWinsOverMessageID(t *testing.T) {
	svc := newFakeService()
	svc.notesByChat["42"] = []relay.Note{
		{ID: "n1", ChatID: "42", Content: "thread-wide", MessageID: "m1", IsThread: true},
		{ID: "n2", ChatID: "42", Content: "just m1", MessageID: "m1"},
	}
	o := NewOverlay(svc, quietLogger())

	o.SetConversation(context.Background(), "42")

	thread := o.ThreadNotes()
	require.Len(t, thread, 1)
	assert.Equal(t, "n1", thread[0].ID)

	perMessage := o.NotesFor("m1")
	require.Len(t, perMessage, 1)
	assert.Equal(t, "n2", perMessage[0].ID)
}

func TestSetConversationClearsPrevious(t *testing.T) {
	svc := newFakeService()
	svc.notesByChat["42"] = []relay.Note{{ID: "n1", Content: "old", MessageID: "m1"}}
	o := NewOverlay(svc, quietLogger())

	o.SetConversation(context.Background(), "42")
	require.Len(t, o.NotesFor("m1"), 1)

	o.SetConversation(context.Background(), "99")
	assert.Empty(t, o.NotesFor("m1"), "switching conversations drops the old overlay")
}

func TestSetConversationLoadFailureIsBestEffort(t *testing.T) {
	svc := newFakeService()
	svc.failing["list"] = true
	o := NewOverlay(svc, quietLogger())

	o.SetConversation(context.Background(), "42")
	assert.Empty(t, o.ThreadNotes())
}

func TestLoadMessageNotes(t *testing.T) {
	svc := newFakeService()
	svc.notesByMessage["m1"] = []relay.Note{{ID: "n1", Content: "note", MessageID: "m1"}}
	o := NewOverlay(svc, quietLogger())
	o.SetConversation(context.Background(), "42")

	o.LoadMessageNotes(context.Background(), []string{"m1", "m2", "pending-3"})

	assert.Len(t, o.NotesFor("m1"), 1)
	assert.Empty(t, o.NotesFor("m2"))
	assert.Empty(t, o.NotesFor("pending-3"), "echoes have no server identity to query")
}

func TestLoadMessageNotesOncePerMessage(t *testing.T) {
	svc := newFakeService()
	svc.notesByMessage["m1"] = []relay.Note{{ID: "n1", Content: "note", MessageID: "m1"}}
	o := NewOverlay(svc, quietLogger())
	o.SetConversation(context.Background(), "42")

	o.LoadMessageNotes(context.Background(), []string{"m1"})
	o.LoadMessageNotes(context.Background(), []string{"m1"})

	assert.Len(t, o.NotesFor("m1"), 1, "repeat loads must not duplicate notes")
}

func TestCreateReplacesProvisionalWithServerCopy(t *testing.T) {
	svc := newFakeService()
	o := NewOverlay(svc, quietLogger())
	o.SetConversation(context.Background(), "42")

	created, err := o.Create(context.Background(), relay.NoteDraft{
		ChatID: "42", Content: "remember this", MessageID: "m1",
	})
	require.NoError(t, err)
	assert.Equal(t, "n1", created.ID)

	got := o.NotesFor("m1")
	require.Len(t, got, 1)
	assert.Equal(t, "n1", got[0].ID, "provisional id replaced by the server's")
	assert.False(t, strings.HasPrefix(got[0].ID, "pending-note-"))
}

func TestCreateRollsBackOnFailure(t *testing.T) {
	svc := newFakeService()
	svc.failing["create"] = true
	o := NewOverlay(svc, quietLogger())
	o.SetConversation(context.Background(), "42")

	_, err := o.Create(context.Background(), relay.NoteDraft{ChatID: "42", Content: "x", MessageID: "m1"})
	require.Error(t, err)
	assert.Empty(t, o.NotesFor("m1"), "failed create leaves no provisional note behind")
}

func TestCreateThreadNote(t *testing.T) {
	svc := newFakeService()
	o := NewOverlay(svc, quietLogger())
	o.SetConversation(context.Background(), "42")

	_, err := o.Create(context.Background(), relay.NoteDraft{ChatID: "42", Content: "thread", IsThread: true})
	require.NoError(t, err)
	assert.Len(t, o.ThreadNotes(), 1)
	assert.Empty(t, o.NotesFor(""))
}

func TestUpdateRollsBackOnFailure(t *testing.T) {
	svc := newFakeService()
	svc.notesByChat["42"] = []relay.Note{{ID: "n1", Content: "original", MessageID: "m1"}}
	o := NewOverlay(svc, quietLogger())
	o.SetConversation(context.Background(), "42")

	svc.failing["update"] = true
	err := o.Update(context.Background(), "n1", "edited")
	require.Error(t, err)

	got := o.NotesFor("m1")
	require.Len(t, got, 1)
	assert.Equal(t, "original", got[0].Content)
}

func TestUpdateAppliesServerCopy(t *testing.T) {
	svc := newFakeService()
	svc.notesByChat["42"] = []relay.Note{{ID: "n1", Content: "original", MessageID: "m1"}}
	o := NewOverlay(svc, quietLogger())
	o.SetConversation(context.Background(), "42")

	require.NoError(t, o.Update(context.Background(), "n1", "edited"))
	assert.Equal(t, []string{"n1"}, svc.updated)
}

func TestDeleteRestoresOnFailure(t *testing.T) {
	svc := newFakeService()
	svc.notesByChat["42"] = []relay.Note{{ID: "n1", Content: "keep me", MessageID: "m1"}}
	o := NewOverlay(svc, quietLogger())
	o.SetConversation(context.Background(), "42")

	svc.failing["delete"] = true
	require.Error(t, o.Delete(context.Background(), "n1"))
	assert.Len(t, o.NotesFor("m1"), 1, "refused delete restores the note")

	svc.failing["delete"] = false
	require.NoError(t, o.Delete(context.Background(), "n1"))
	assert.Empty(t, o.NotesFor("m1"))
}
