package reconcile

import (
	"slices"
)

// Result is the outcome of one reconciliation pass.
//
// When Updated is false, Messages is the exact slice the caller passed in
// as the previous sequence - not a copy - so callers can compare
// references to suppress re-renders.
type Result struct {
	Messages    []Message
	Fingerprint string
	Updated     bool

	// Superseded counts pending echoes dropped because a matching
	// authoritative message arrived in this batch.
	Superseded int
	// Retained counts pending echoes that survived the pass.
	Retained int
}

// Reconciler merges authoritative batches with surviving local echoes and
// tracks the last-observed server fingerprint per conversation.
//
// The fingerprint map is explicit per-Reconciler state, never package
// level: independent client sessions construct independent Reconcilers.
// It exists purely to short-circuit redundant updates - ordering and
// correctness of the message set never depend on it.
//
// Not safe for concurrent use. A Reconciler belongs to the single logical
// task that applies poll results for a session.
type Reconciler struct {
	fingerprints map[string]string
}

// NewReconciler creates a Reconciler with no observed fingerprints.
func NewReconciler() *Reconciler {
	return &Reconciler{fingerprints: make(map[string]string)}
}

// Fingerprint returns the last-observed fingerprint for a conversation.
func (r *Reconciler) Fingerprint(chatID string) (string, bool) {
	fp, ok := r.fingerprints[chatID]
	return fp, ok
}

// Seed records a fingerprint without reconciling, for state restored at
// startup. A seeded fingerprint only suppresses updates once a non-forced
// cycle reports the same value with changed=false.
func (r *Reconciler) Seed(chatID, fingerprint string) {
	r.fingerprints[chatID] = fingerprint
}

// Forget drops the stored fingerprint for a conversation. Used on logout
// and when a conversation's cached state is invalidated.
func (r *Reconciler) Forget(chatID string) {
	delete(r.fingerprints, chatID)
}

// Reconcile combines the previous visible sequence with a fresh
// authoritative batch.
//
// If changed is false, the cycle was not forced, and the stored
// fingerprint already equals the new one, the previous sequence is
// returned unchanged (same slice) with Updated=false. A no-op poll must
// never disturb in-flight UI state.
//
// Otherwise:
//   - pending echoes are retained from prev; everything else is discarded
//     as superseded by the batch
//   - an echo is dropped when an authoritative from-me message with an
//     equal normalized body is present; each authoritative message
//     consumes at most one echo (first match), so duplicate texts in
//     flight resolve one send per confirmation
//   - batch entries sharing a confirmed id are deduplicated (first
//     occurrence wins)
//   - the result is the batch plus surviving echoes, stable-sorted
//     ascending by timestamp
//
// O(A*P) per cycle for batch size A and pending count P; both are bounded
// by the visible window, so the quadratic corner never matters in
// practice.
func (r *Reconciler) Reconcile(chatID string, prev, batch []Message, fingerprint string, changed, force bool) Result {
	stored, seen := r.fingerprints[chatID]
	if !changed && !force && seen && stored == fingerprint {
		return Result{Messages: prev, Fingerprint: stored, Updated: false}
	}

	// Drop duplicate confirmed ids from the batch. The server owns
	// authoritative identity; first occurrence wins.
	authoritative := make([]Message, 0, len(batch))
	byID := make(map[string]struct{}, len(batch))
	for _, m := range batch {
		if m.ID != "" {
			if _, dup := byID[m.ID]; dup {
				continue
			}
			byID[m.ID] = struct{}{}
		}
		m.Pending = false
		authoritative = append(authoritative, m)
	}

	// Retain pending echoes from the previous sequence, minus any that a
	// batch entry supersedes. consumed ensures one confirmation resolves
	// exactly one echo.
	consumed := make([]bool, len(authoritative))
	var survivors []Message
	var superseded int
	for _, m := range prev {
		if !m.Pending {
			continue
		}
		key := Normalize(m.Body)
		matched := false
		for i, a := range authoritative {
			if consumed[i] || !a.FromMe {
				continue
			}
			if Normalize(a.Body) == key {
				consumed[i] = true
				matched = true
				break
			}
		}
		if matched {
			superseded++
			continue
		}
		survivors = append(survivors, m)
	}

	merged := make([]Message, 0, len(authoritative)+len(survivors))
	merged = append(merged, authoritative...)
	merged = append(merged, survivors...)
	slices.SortStableFunc(merged, func(a, b Message) int {
		return a.Timestamp.Compare(b.Timestamp)
	})

	r.fingerprints[chatID] = fingerprint
	return Result{
		Messages:    merged,
		Fingerprint: fingerprint,
		Updated:     true,
		Superseded:  superseded,
		Retained:    len(survivors),
	}
}
