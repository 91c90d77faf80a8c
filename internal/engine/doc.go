// Package engine implements the collection sync engine.
//
// The engine mirrors a remote, paginated collection of objects into a
// locally held list plus its filtered view. It is a pure transition
// function: Machine.Reduce takes the previous State and an Action and
// returns the next State. The previous State is never mutated.
//
// ARCHITECTURE:
//
// Machine:
// Reduce dispatches on the sealed Action type. Side effects are limited to
// the current Activity: its cancellation flag and its refresh timer, which
// is scheduled through an injected Scheduler. The machine never fetches.
//
// Driver:
// The embedding event loop. It owns one State, applies actions one at a
// time in a single goroutine, asks State.NextRequest what to fetch next and
// feeds pages back as PageArrived actions.
//
// Page Arrival:
//  1. Pages for a stale or cancelled activity are dropped.
//  2. In initial mode the pruned batch is appended and the filter applied
//     to the new objects only.
//  3. In refresh mode the batch is spliced into the existing list between
//     the previous and the new refresh cursor (see refresh.go).
//  4. When paging is exhausted or the limit is met, a refresh timer is armed.
//
// Ordering:
// Refresh progress is tracked by (namespace, name), the order in which the
// server returns objects. Every committed transition is stamped with a
// monotonic Seq from Clock. Wall-clock time is only used by RealScheduler.
package engine
