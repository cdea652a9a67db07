// Package poller schedules change-detected message fetches for the
// currently selected conversation.
//
// A single goroutine (Run) owns all scheduling state. Selection changes,
// send notifications, and fetch results arrive as commands on one queue,
// so no state is ever touched from two goroutines. Fetches themselves run
// off-loop; at most one is in flight at a time, and triggers that land
// while one is running are skipped rather than queued - the next tick
// observes the same server state anyway.
//
// Selecting a conversation fires an immediate forced fetch and restarts
// the steady cadence. A successful send schedules a short burst of forced
// fetches at fixed offsets so the pending echo is confirmed quickly
// without tightening the steady interval.
package poller
