// Package store provides the SQLite page journal.
//
// The journal records every page a watched view fetched, grouped by the
// engine activity that requested it:
//   - Activities: one row per initial fetch or refresh sweep
//   - Pages: the request position, the returned continue token and the
//     returned objects as JSON
//
// Recorder writes the journal as a source.Source decorator; ReplaySource
// serves it back so a recorded session can be re-run deterministically.
//
// # Ordering
//
// All reads use ORDER BY seq ASC. seq is the insertion order, never a
// timestamp, so reading the journal twice yields identical results.
//
// # Idempotency
//
// Re-recording the same activity or the same (activity, namespace,
// continue_in) page is a no-op via ON CONFLICT DO NOTHING.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
package store
