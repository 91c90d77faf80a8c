package engine

import (
	"time"

	"github.com/roach88/listsync/internal/object"
)

// Action is a transition input. The set of actions is closed.
type Action interface {
	// Kind returns the action name used in logs, scenarios and the journal.
	Kind() string
	isAction()
}

// Action kinds.
const (
	KindStartFetch   = "start"
	KindPageArrived  = "page"
	KindModify       = "modify"
	KindRemoveItems  = "remove"
	KindUpdateItems  = "update"
	KindRefreshSweep = "refresh"
	KindCancel       = "cancel"
)

// StartFetch begins a new fetch, discarding any previous state.
type StartFetch struct {
	// Namespaces to sweep; empty means all namespaces.
	Namespaces      []string
	Filter          object.Predicate
	Prune           object.Projection
	Limit           int
	PageSize        int
	RefreshInterval time.Duration
}

// PageArrived delivers one page fetched for an activity.
type PageArrived struct {
	ActivityID string

	// Refresh must match whether the activity is a refresh sweep.
	Refresh  bool
	Items    []object.Tracked
	Continue string
}

// ModifyFilterOrLimit replaces the filter, the limit, or both.
type ModifyFilterOrLimit struct {
	// Filter replaces the current filter when non-nil.
	Filter object.Predicate

	// ClearFilter removes the current filter.
	ClearFilter bool

	// Limit replaces the current limit when non-nil.
	Limit *int
}

// RemoveItems drops objects by UID, typically after a confirmed delete.
type RemoveItems struct {
	UIDs []string
}

// UpdateItems merges objects by UID, keeping the newer resource version.
// Objects whose UID is not tracked are ignored.
type UpdateItems struct {
	Items []object.Tracked
}

// StartRefreshSweep begins a refresh sweep.
//
// ActivityID is the activity that armed the timer; a sweep requested for a
// stale or cancelled activity is ignored. An empty ActivityID requests a
// sweep unconditionally.
type StartRefreshSweep struct {
	ActivityID string
}

// Cancel cancels the current activity and its pending refresh timer.
type Cancel struct{}

func (StartFetch) Kind() string          { return KindStartFetch }
func (PageArrived) Kind() string         { return KindPageArrived }
func (ModifyFilterOrLimit) Kind() string { return KindModify }
func (RemoveItems) Kind() string         { return KindRemoveItems }
func (UpdateItems) Kind() string         { return KindUpdateItems }
func (StartRefreshSweep) Kind() string   { return KindRefreshSweep }
func (Cancel) Kind() string              { return KindCancel }

func (StartFetch) isAction()          {}
func (PageArrived) isAction()         {}
func (ModifyFilterOrLimit) isAction() {}
func (RemoveItems) isAction()         {}
func (UpdateItems) isAction()         {}
func (StartRefreshSweep) isAction()   {}
func (Cancel) isAction()              {}

// ParseAction returns the zero value of the action named kind.
func ParseAction(kind string) (Action, error) {
	switch kind {
	case KindStartFetch:
		return StartFetch{}, nil
	case KindPageArrived:
		return PageArrived{}, nil
	case KindModify:
		return ModifyFilterOrLimit{}, nil
	case KindRemoveItems:
		return RemoveItems{}, nil
	case KindUpdateItems:
		return UpdateItems{}, nil
	case KindRefreshSweep:
		return StartRefreshSweep{}, nil
	case KindCancel:
		return Cancel{}, nil
	default:
		return nil, NewInvalidTransitionError(kind)
	}
}
