// Package app assembles the client: the relay API, the reconciler, the
// poll scheduler, the note overlay, and the local state store, behind
// one Client facade the CLI drives.
//
// The Client is the poll scheduler's sink: fetch results land in Apply
// on the scheduler goroutine, are reconciled into the per-conversation
// message view, and the resulting fingerprint is persisted so change
// detection survives restarts. Sends are optimistic - a pending echo
// enters the view immediately and a later poll's server copy supersedes
// it; a failed send removes the echo and restores the compose text.
package app
