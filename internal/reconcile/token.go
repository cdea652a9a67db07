package reconcile

import "sync/atomic"

// TokenSource is a monotonic counter for provisional message ids.
//
// Every echo created during a process lifetime gets a strictly increasing
// token, so provisional ids are never reused even when sends fail and
// their echoes are removed.
//
// Thread-safety: TokenSource is safe for concurrent use (atomic
// operations), though the client's single-owner design means one logical
// task typically calls Next().
type TokenSource struct {
	seq atomic.Int64
}

// NewTokenSource creates a token source starting at 0.
// The first call to Next() returns 1.
func NewTokenSource() *TokenSource {
	return &TokenSource{}
}

// NewTokenSourceAt creates a token source starting at a specific value.
// Used by tests that need predictable provisional ids mid-sequence.
func NewTokenSourceAt(start int64) *TokenSource {
	t := &TokenSource{}
	t.seq.Store(start)
	return t
}

// Next returns the next token and increments the counter.
// Calls are linearizable - each call returns a unique, increasing value.
func (t *TokenSource) Next() int64 {
	return t.seq.Add(1)
}

// Current returns the current token without incrementing.
func (t *TokenSource) Current() int64 {
	return t.seq.Load()
}
