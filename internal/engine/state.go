package engine

import (
	"time"

	"github.com/roach88/listsync/internal/object"
	"github.com/roach88/listsync/internal/source"
)

// State is one committed snapshot of the sync engine.
//
// States are immutable once returned by Reduce: slices are never written
// in place, so consumers may hold on to them. Filter and Prune survive
// every transition unless an action replaces them explicitly.
type State struct {
	// Items is the pruned list in arrival order, unique by UID.
	Items []object.Tracked

	// FilteredItems is Items restricted to Filter, in the same order.
	FilteredItems []object.Tracked

	// Continue is the token for the next page of CurrentNamespace.
	Continue string

	// Namespaces is the sorted, de-duplicated sweep order.
	Namespaces []string

	// CurrentNamespace is the namespace being paged.
	CurrentNamespace string

	// NamespaceQueue holds the namespaces still to visit after CurrentNamespace.
	NamespaceQueue []string

	// HasMore is true while a page of CurrentNamespace is still to be
	// fetched, either its first page or the one Continue points at.
	HasMore bool

	// Limit caps FilteredItems for paging purposes; 0 means unlimited.
	Limit int

	// PageSize is the per-request page size; 0 lets the source decide.
	PageSize int

	// RefreshInterval is the delay before a refresh sweep; 0 disables refresh.
	RefreshInterval time.Duration

	// Finished is true once paging is exhausted.
	Finished bool

	// Refreshing is true while a refresh sweep is running.
	Refreshing bool

	// Activity is the current fetch or sweep.
	Activity *Activity

	// Sweep is the refresh bookkeeping, zero outside a sweep.
	Sweep Sweep

	Filter object.Predicate
	Prune  object.Projection

	// Seq is the logical clock value of the transition that produced this state.
	Seq int64
}

// Sweep tracks the progress of a refresh sweep.
type Sweep struct {
	// Cursor is the last object refreshed so far, nil before the first page.
	Cursor *object.Tracked

	// Until is the last object known when the sweep started, nil for an empty list.
	Until *object.Tracked
}

// Snapshot is the consumer view of a State.
type Snapshot struct {
	Seq           int64            `json:"seq"`
	ActivityID    string           `json:"activity_id,omitempty"`
	Items         []object.Tracked `json:"items"`
	FilteredItems []object.Tracked `json:"filtered_items"`
	Finished      bool             `json:"finished"`
	Refreshing    bool             `json:"refreshing"`
	CanContinue   bool             `json:"can_continue"`
	WantsFetch    bool             `json:"wants_fetch"`
}

// CanContinue reports whether another page exists in the current namespace
// or another namespace remains to be visited.
func (s *State) CanContinue() bool {
	return s != nil && s.HasMore
}

// LimitSatisfied reports whether the filtered view has reached the limit.
func (s *State) LimitSatisfied() bool {
	return s != nil && s.Limit > 0 && len(s.FilteredItems) >= s.Limit
}

// WantsFetch reports whether the embedding loop should fetch another page.
//
// A sweep always pages until it completes. Initial paging stops once the
// source is exhausted or the limit is met.
func (s *State) WantsFetch() bool {
	if s == nil || s.Activity.Canceled() {
		return false
	}
	if s.Refreshing {
		return true
	}
	return !s.Finished && !s.LimitSatisfied()
}

// NextRequest returns the page to fetch next, and false when none is wanted.
func (s *State) NextRequest() (source.Request, bool) {
	if !s.WantsFetch() {
		return source.Request{}, false
	}
	return source.Request{
		Namespace: s.CurrentNamespace,
		Continue:  s.Continue,
		Limit:     s.PageSize,
	}, true
}

// ActivityID returns the current activity ID, or "" before StartFetch.
func (s *State) ActivityID() string {
	if s == nil || s.Activity == nil {
		return ""
	}
	return s.Activity.ID
}

// Snapshot returns the consumer view of s. A nil state yields an empty
// snapshot.
func (s *State) Snapshot() Snapshot {
	if s == nil {
		return Snapshot{
			Items:         []object.Tracked{},
			FilteredItems: []object.Tracked{},
		}
	}
	return Snapshot{
		Seq:           s.Seq,
		ActivityID:    s.ActivityID(),
		Items:         s.Items,
		FilteredItems: s.FilteredItems,
		Finished:      s.Finished,
		Refreshing:    s.Refreshing,
		CanContinue:   s.CanContinue(),
		WantsFetch:    s.WantsFetch(),
	}
}

// clone returns a shallow copy. Slices are shared; transitions replace
// them instead of writing into them.
func (s *State) clone() *State {
	next := *s
	return &next
}
