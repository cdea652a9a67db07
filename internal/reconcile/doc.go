// Package reconcile implements the message synchronization core.
//
// The reconciler merges the latest authoritative message batch for a
// conversation with any locally-originated echoes still awaiting server
// confirmation, producing one ordered, duplicate-free sequence. It also
// owns the per-conversation fingerprint map used to short-circuit no-op
// poll cycles.
//
// ARCHITECTURE:
//
// Single-Owner Mutable State:
// A Reconciler's fingerprint map and the visible message sequence it
// produces are mutated only by the component that drives it (one logical
// task per client session). All other components read the results. This
// keeps reconciliation deterministic and lets independent sessions (and
// tests) run without cross-contamination.
//
// Reconciliation Flow:
//  1. A poll cycle fetches the authoritative batch plus a server-computed
//     fingerprint and changed flag.
//  2. If nothing changed and the cycle was not forced, the previous
//     sequence is returned untouched - same slice, no re-render.
//  3. Otherwise pending echoes are retained from the previous sequence,
//     superseded echoes are dropped, and the rest is rebuilt from the
//     fresh batch.
//
// Supersession matches by normalized body text because the relay issues
// no correlation ids at send time. This is a deliberate approximation:
// identical texts sent in quick succession can match the wrong echo. An
// authoritative message consumes at most one echo, so a duplicate send
// keeps its second echo pending rather than dropping both.
package reconcile
