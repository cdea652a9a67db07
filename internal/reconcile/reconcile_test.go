package reconcile

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ts(sec int64) time.Time {
	return time.Unix(sec, 0).UTC()
}

// Test helper to create an authoritative message.
func confirmed(id, body string, sec int64, fromMe bool) Message {
	return Message{
		ID:        id,
		Body:      body,
		FromMe:    fromMe,
		Timestamp: ts(sec),
		ChatID:    "42",
	}
}

func sameSlice(a, b []Message) bool {
	if len(a) != len(b) {
		return false
	}
	if len(a) == 0 {
		return true
	}
	return &a[0] == &b[0]
}

func TestReconcile_NoopUnchangedFingerprint(t *testing.T) {
	r := NewReconciler()
	prev := []Message{confirmed("1", "hi", 100, false)}

	// First cycle establishes the fingerprint.
	first := r.Reconcile("42", nil, prev, "f1", true, false)
	require.True(t, first.Updated)

	// A no-op poll returns the previous sequence object unchanged.
	res := r.Reconcile("42", prev, prev, "f1", false, false)
	assert.False(t, res.Updated)
	assert.True(t, sameSlice(prev, res.Messages), "no-op must return the same slice, not a copy")

	// Idempotent: calling again yields the same result.
	again := r.Reconcile("42", res.Messages, prev, "f1", false, false)
	assert.False(t, again.Updated)
	assert.True(t, sameSlice(res.Messages, again.Messages))
}

func TestReconcile_NoStoredFingerprintAlwaysApplies(t *testing.T) {
	r := NewReconciler()
	batch := []Message{confirmed("1", "hi", 100, false)}

	// changed=false but no fingerprint has ever been observed for this
	// conversation: the batch must still be applied.
	res := r.Reconcile("42", nil, batch, "f1", false, false)
	assert.True(t, res.Updated)
	assert.Len(t, res.Messages, 1)
}

func TestReconcile_ForcedCycleBypassesShortCircuit(t *testing.T) {
	r := NewReconciler()
	batch := []Message{confirmed("1", "hi", 100, false)}
	r.Reconcile("42", nil, batch, "f1", true, false)

	res := r.Reconcile("42", nil, batch, "f1", false, true)
	assert.True(t, res.Updated, "forced cycle must apply even with an unchanged fingerprint")
	assert.Len(t, res.Messages, 1)
}

// Scenario A: a pending echo is superseded by its authoritative
// counterpart and the reconciled sequence carries no duplicate.
func TestReconcile_EchoSuperseded(t *testing.T) {
	r := NewReconciler()
	tracker := NewEchoTracker(NewTokenSource())

	batch1 := []Message{confirmed("1", "hi", 100, false)}
	res := r.Reconcile("42", nil, batch1, "f1", true, false)
	require.True(t, res.Updated)

	echo := tracker.NewEcho("42", "yo", ts(103))
	seq := Insert(res.Messages, echo)
	require.Len(t, seq, 2)

	batch2 := []Message{
		confirmed("1", "hi", 100, false),
		confirmed("2", "yo", 105, true),
	}
	res = r.Reconcile("42", seq, batch2, "f2", true, false)
	require.True(t, res.Updated)
	require.Len(t, res.Messages, 2)
	assert.Equal(t, "1", res.Messages[0].ID)
	assert.Equal(t, "2", res.Messages[1].ID)
	assert.False(t, res.Messages[1].Pending)
	assert.Equal(t, 1, res.Superseded)
	assert.Equal(t, 0, res.Retained)
}

func TestReconcile_SupersessionIgnoresCaseAndWhitespace(t *testing.T) {
	r := NewReconciler()
	tracker := NewEchoTracker(NewTokenSource())

	echo := tracker.NewEcho("42", "  On My Way ", ts(100))
	batch := []Message{confirmed("9", "on my way", 101, true)}

	res := r.Reconcile("42", []Message{echo}, batch, "f1", true, false)
	require.Len(t, res.Messages, 1)
	assert.Equal(t, "9", res.Messages[0].ID)
}

func TestReconcile_EchoNotSupersededByOtherParty(t *testing.T) {
	r := NewReconciler()
	tracker := NewEchoTracker(NewTokenSource())

	// Identical body from the other party must not consume the echo.
	echo := tracker.NewEcho("42", "ok", ts(100))
	batch := []Message{confirmed("7", "ok", 101, false)}

	res := r.Reconcile("42", []Message{echo}, batch, "f1", true, false)
	require.Len(t, res.Messages, 2)
	assert.Equal(t, 1, res.Retained)
	assert.True(t, res.Messages[1].Pending)
}

// Scenario D: two identical echoes, one authoritative confirmation -
// exactly one echo is consumed, the other remains pending.
func TestReconcile_DuplicateTextsConsumeOneEchoEach(t *testing.T) {
	r := NewReconciler()
	tracker := NewEchoTracker(NewTokenSource())

	echo1 := tracker.NewEcho("42", "ok", ts(100))
	echo2 := tracker.NewEcho("42", "ok", ts(101))
	prev := []Message{echo1, echo2}

	batch := []Message{confirmed("5", "ok", 102, true)}
	res := r.Reconcile("42", prev, batch, "f1", true, false)
	require.Len(t, res.Messages, 2)
	assert.Equal(t, 1, res.Superseded)
	assert.Equal(t, 1, res.Retained)
	assert.Equal(t, "5", res.Messages[0].ID)
	assert.Equal(t, echo2.ID, res.Messages[1].ID, "second echo stays pending until its own confirmation")

	// The second confirmation resolves the remaining echo.
	batch = append(batch, confirmed("6", "ok", 103, true))
	res = r.Reconcile("42", res.Messages, batch, "f2", true, false)
	require.Len(t, res.Messages, 2)
	assert.Equal(t, 1, res.Superseded)
	assert.Equal(t, 0, res.Retained)
}

func TestReconcile_OrderPreservation(t *testing.T) {
	r := NewReconciler()

	// Server may return messages in any order; the reconciled sequence is
	// always ascending by timestamp.
	batch := []Message{
		confirmed("3", "third", 300, false),
		confirmed("1", "first", 100, true),
		confirmed("2", "second", 200, false),
	}
	res := r.Reconcile("42", nil, batch, "f1", true, false)
	require.Len(t, res.Messages, 3)
	assert.Equal(t, "first", res.Messages[0].Body)
	assert.Equal(t, "second", res.Messages[1].Body)
	assert.Equal(t, "third", res.Messages[2].Body)
}

func TestReconcile_StableSortKeepsArrivalOrderOnTies(t *testing.T) {
	r := NewReconciler()

	batch := []Message{
		confirmed("a", "one", 100, false),
		confirmed("b", "two", 100, false),
		confirmed("c", "three", 100, false),
	}
	res := r.Reconcile("42", nil, batch, "f1", true, false)
	require.Len(t, res.Messages, 3)
	assert.Equal(t, "a", res.Messages[0].ID)
	assert.Equal(t, "b", res.Messages[1].ID)
	assert.Equal(t, "c", res.Messages[2].ID)
}

func TestReconcile_DuplicateServerIDsDropped(t *testing.T) {
	r := NewReconciler()

	batch := []Message{
		confirmed("1", "hi", 100, false),
		confirmed("1", "hi again", 105, false),
		confirmed("2", "bye", 110, false),
	}
	res := r.Reconcile("42", nil, batch, "f1", true, false)
	require.Len(t, res.Messages, 2)
	assert.Equal(t, "hi", res.Messages[0].Body, "first occurrence wins")
	assert.Equal(t, "2", res.Messages[1].ID)
}

func TestReconcile_NonPendingPreviousEntriesDiscarded(t *testing.T) {
	r := NewReconciler()

	// A confirmed message present in prev but absent from the fresh batch
	// does not survive: the batch is authoritative.
	prev := []Message{
		confirmed("1", "hi", 100, false),
		confirmed("2", "stale", 105, false),
	}
	batch := []Message{confirmed("1", "hi", 100, false)}
	res := r.Reconcile("42", prev, batch, "f2", true, false)
	require.Len(t, res.Messages, 1)
	assert.Equal(t, "1", res.Messages[0].ID)
}

func TestReconcile_FingerprintPerConversation(t *testing.T) {
	r := NewReconciler()
	r.Reconcile("42", nil, nil, "f-42", true, false)
	r.Reconcile("43", nil, nil, "f-43", true, false)

	fp, ok := r.Fingerprint("42")
	require.True(t, ok)
	assert.Equal(t, "f-42", fp)

	fp, ok = r.Fingerprint("43")
	require.True(t, ok)
	assert.Equal(t, "f-43", fp)

	r.Forget("42")
	_, ok = r.Fingerprint("42")
	assert.False(t, ok)
	_, ok = r.Fingerprint("43")
	assert.True(t, ok)
}

func TestReconcile_SeededFingerprintShortCircuits(t *testing.T) {
	r := NewReconciler()
	r.Seed("42", "f-restored")

	prev := []Message{confirmed("1", "hi", 100, false)}
	res := r.Reconcile("42", prev, prev, "f-restored", false, false)
	assert.False(t, res.Updated)
	assert.True(t, sameSlice(prev, res.Messages))
}

func TestReconcile_IndependentReconcilersDoNotShareState(t *testing.T) {
	a := NewReconciler()
	b := NewReconciler()

	a.Reconcile("42", nil, nil, "f1", true, false)
	_, ok := b.Fingerprint("42")
	assert.False(t, ok)
}
