package engine

import (
	"log/slog"
	"slices"

	"github.com/roach88/listsync/internal/object"
	"github.com/roach88/listsync/internal/source"
)

// Machine is the collection sync transition function.
//
// A Machine holds only injected capabilities (scheduler, activity IDs,
// clock, refresh callback); all sync state lives in the State values it
// produces. Reduce must be called from one goroutine at a time.
type Machine struct {
	scheduler    Scheduler
	ids          ActivityIDGenerator
	clock        *Clock
	onRefreshDue func(activityID string)
	logger       *slog.Logger
}

// MachineOption configures a Machine.
type MachineOption func(*Machine)

// WithScheduler sets the scheduler used for refresh timers.
// Default: RealScheduler.
func WithScheduler(s Scheduler) MachineOption {
	return func(m *Machine) {
		m.scheduler = s
	}
}

// WithActivityIDs sets the activity ID generator.
// Default: UUIDv7Generator.
func WithActivityIDs(g ActivityIDGenerator) MachineOption {
	return func(m *Machine) {
		m.ids = g
	}
}

// WithRefreshHandler sets the callback invoked when a refresh timer fires.
// Without a handler no refresh timer is ever armed.
//
// The callback runs on the scheduler's goroutine. It should only enqueue a
// StartRefreshSweep{ActivityID: id}; it must not call Reduce directly.
func WithRefreshHandler(f func(activityID string)) MachineOption {
	return func(m *Machine) {
		m.onRefreshDue = f
	}
}

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(l *slog.Logger) MachineOption {
	return func(m *Machine) {
		m.logger = l
	}
}

// NewMachine creates a Machine.
func NewMachine(opts ...MachineOption) *Machine {
	m := &Machine{
		scheduler: RealScheduler{},
		ids:       UUIDv7Generator{},
		clock:     NewClock(),
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Reduce applies action to prev and returns the next state.
//
// prev may be nil before the first StartFetch. On error the returned state
// is prev, unchanged. Actions that do not apply (a page for a stale
// activity, a refresh for a cancelled one) return prev and no error.
func (m *Machine) Reduce(prev *State, action Action) (*State, error) {
	switch a := action.(type) {
	case StartFetch:
		return m.startFetch(prev, a)
	case PageArrived:
		return m.pageArrived(prev, a)
	case ModifyFilterOrLimit:
		return m.modify(prev, a)
	case RemoveItems:
		return m.removeItems(prev, a)
	case UpdateItems:
		return m.updateItems(prev, a)
	case StartRefreshSweep:
		return m.startRefreshSweep(prev, a)
	case Cancel:
		return m.cancel(prev)
	case nil:
		return prev, NewInvalidTransitionError("<nil>")
	default:
		return prev, NewInvalidTransitionError(action.Kind())
	}
}

func (m *Machine) startFetch(prev *State, a StartFetch) (*State, error) {
	if a.Limit < 0 {
		return prev, newInvalidArgumentError(KindStartFetch, "limit must not be negative", prev.ActivityID())
	}
	if a.PageSize < 0 {
		return prev, newInvalidArgumentError(KindStartFetch, "page size must not be negative", prev.ActivityID())
	}
	if a.RefreshInterval < 0 {
		return prev, newInvalidArgumentError(KindStartFetch, "refresh interval must not be negative", prev.ActivityID())
	}

	if prev != nil {
		prev.Activity.cancel()
	}

	ns := normalizeNamespaces(a.Namespaces)
	next := &State{
		Items:            []object.Tracked{},
		FilteredItems:    []object.Tracked{},
		Namespaces:       ns,
		CurrentNamespace: ns[0],
		NamespaceQueue:   ns[1:],
		HasMore:          true,
		Limit:            a.Limit,
		PageSize:         a.PageSize,
		RefreshInterval:  a.RefreshInterval,
		Activity:         newActivity(m.ids.Generate(), false),
		Filter:           a.Filter,
		Prune:            a.Prune,
		Seq:              m.clock.Next(),
	}

	m.logger.Debug("fetch started",
		"activity", next.Activity.ID,
		"namespaces", ns,
		"limit", a.Limit,
		"page_size", a.PageSize,
		"seq", next.Seq,
	)
	return next, nil
}

func (m *Machine) pageArrived(prev *State, a PageArrived) (*State, error) {
	if prev == nil || prev.Activity == nil || prev.Activity.ID != a.ActivityID || prev.Activity.Canceled() {
		m.logger.Debug("page dropped: stale activity",
			"activity", a.ActivityID,
			"current", prev.ActivityID(),
		)
		return prev, nil
	}
	if a.Refresh != prev.Refreshing {
		m.logger.Debug("page dropped: mode mismatch",
			"activity", a.ActivityID,
			"refresh", a.Refresh,
		)
		return prev, nil
	}

	batch := project(a.Items, prev.Prune)
	next := prev.clone()
	advance(next, a.Continue)
	canContinue := next.CanContinue()

	if prev.Refreshing {
		m.splice(prev, next, batch, canContinue)
	} else {
		next.Items, next.FilteredItems = appendBatch(prev.Items, prev.FilteredItems, batch, prev.Filter)
		next.Finished = !canContinue
	}

	m.maybeArmRefresh(next)
	next.Seq = m.clock.Next()

	m.logger.Debug("page applied",
		"activity", a.ActivityID,
		"refresh", a.Refresh,
		"batch", len(batch),
		"items", len(next.Items),
		"filtered", len(next.FilteredItems),
		"finished", next.Finished,
		"refreshing", next.Refreshing,
		"seq", next.Seq,
	)
	return next, nil
}

func (m *Machine) modify(prev *State, a ModifyFilterOrLimit) (*State, error) {
	if prev == nil {
		return prev, newNoStateError(KindModify)
	}
	if a.Limit != nil && *a.Limit < 0 {
		return prev, newInvalidArgumentError(KindModify, "limit must not be negative", prev.ActivityID())
	}

	next := prev.clone()
	if a.ClearFilter {
		next.Filter = nil
	}
	if a.Filter != nil {
		next.Filter = a.Filter
	}
	if a.Limit != nil {
		next.Limit = *a.Limit
	}
	next.FilteredItems = object.FilterSlice(next.Items, next.Filter)

	// Paging resumes; no refresh may be pending meanwhile.
	if !next.Refreshing && next.WantsFetch() {
		next.Activity.disarm()
	} else {
		m.maybeArmRefresh(next)
	}
	next.Seq = m.clock.Next()
	return next, nil
}

func (m *Machine) removeItems(prev *State, a RemoveItems) (*State, error) {
	if prev == nil {
		return prev, newNoStateError(KindRemoveItems)
	}

	drop := make(map[string]bool, len(a.UIDs))
	for _, uid := range a.UIDs {
		drop[uid] = true
	}
	keep := func(o object.Tracked) bool { return !drop[o.UID] }

	next := prev.clone()
	next.Items = object.FilterSlice(prev.Items, keep)
	next.FilteredItems = object.FilterSlice(prev.FilteredItems, keep)
	next.Seq = m.clock.Next()
	return next, nil
}

func (m *Machine) updateItems(prev *State, a UpdateItems) (*State, error) {
	if prev == nil {
		return prev, newNoStateError(KindUpdateItems)
	}

	items := slices.Clone(prev.Items)
	idx := object.IndexByUID(items)
	for _, o := range project(a.Items, prev.Prune) {
		i, ok := idx[o.UID]
		if !ok {
			continue
		}
		if object.Newer(o, items[i]) {
			items[i] = o
		}
	}

	next := prev.clone()
	next.Items = items
	next.FilteredItems = object.FilterSlice(items, prev.Filter)
	next.Seq = m.clock.Next()
	return next, nil
}

func (m *Machine) startRefreshSweep(prev *State, a StartRefreshSweep) (*State, error) {
	if prev == nil {
		return prev, newNoStateError(KindRefreshSweep)
	}
	if a.ActivityID != "" && (prev.Activity == nil || prev.Activity.ID != a.ActivityID || prev.Activity.Canceled()) {
		m.logger.Debug("refresh ignored: stale activity",
			"activity", a.ActivityID,
			"current", prev.ActivityID(),
		)
		return prev, nil
	}

	prev.Activity.cancel()

	next := prev.clone()
	next.Activity = newActivity(m.ids.Generate(), true)
	next.Refreshing = true
	next.Continue = ""
	next.CurrentNamespace = next.Namespaces[0]
	next.NamespaceQueue = next.Namespaces[1:]
	next.HasMore = true
	next.Sweep = Sweep{}
	if last, ok := object.Max(prev.Items); ok {
		next.Sweep.Until = &last
	}
	next.Seq = m.clock.Next()

	m.logger.Debug("refresh sweep started",
		"activity", next.Activity.ID,
		"previous", prev.ActivityID(),
		"items", len(prev.Items),
		"seq", next.Seq,
	)
	return next, nil
}

func (m *Machine) cancel(prev *State) (*State, error) {
	if prev == nil || !prev.Activity.cancel() {
		return prev, nil
	}

	next := prev.clone()
	next.Seq = m.clock.Next()
	m.logger.Debug("activity cancelled", "activity", prev.Activity.ID, "seq", next.Seq)
	return next, nil
}

// maybeArmRefresh schedules the next sweep once the current activity has
// nothing left to fetch.
func (m *Machine) maybeArmRefresh(s *State) {
	if m.onRefreshDue == nil || s.RefreshInterval <= 0 || s.Refreshing || s.Activity.Canceled() {
		return
	}
	if s.CanContinue() && !s.LimitSatisfied() {
		return
	}
	if s.Activity.TimerArmed() {
		return
	}

	id := s.Activity.ID
	fire := m.onRefreshDue
	s.Activity.arm(m.scheduler, s.RefreshInterval, func() { fire(id) })
	m.logger.Debug("refresh armed", "activity", id, "after", s.RefreshInterval)
}

// advance moves the paging position past the page whose token is cont.
// Paging can continue when the page carried a token or another namespace
// is queued.
func advance(s *State, cont string) {
	switch {
	case cont != "":
		s.Continue = cont
		s.HasMore = true
	case len(s.NamespaceQueue) > 0:
		s.Continue = ""
		s.CurrentNamespace = s.NamespaceQueue[0]
		s.NamespaceQueue = s.NamespaceQueue[1:]
		s.HasMore = true
	default:
		s.Continue = ""
		s.HasMore = false
	}
}

// appendBatch appends batch to items and its filtered subset to filtered.
// An object whose UID is already tracked replaces the tracked copy in place
// when its version is at least as new.
func appendBatch(items, filtered, batch []object.Tracked, pred object.Predicate) ([]object.Tracked, []object.Tracked) {
	out := make([]object.Tracked, len(items), len(items)+len(batch))
	copy(out, items)
	idx := object.IndexByUID(out)

	replaced := false
	for _, o := range batch {
		if i, ok := idx[o.UID]; ok {
			if object.Newer(o, out[i]) {
				out[i] = o
			}
			replaced = true
			continue
		}
		idx[o.UID] = len(out)
		out = append(out, o)
	}
	if replaced {
		return out, object.FilterSlice(out, pred)
	}

	outFiltered := make([]object.Tracked, len(filtered), len(filtered)+len(batch))
	copy(outFiltered, filtered)
	for _, o := range out[len(items):] {
		if pred == nil || pred(o) {
			outFiltered = append(outFiltered, o)
		}
	}
	return out, outFiltered
}

func project(objs []object.Tracked, prune object.Projection) []object.Tracked {
	out := make([]object.Tracked, len(objs))
	for i, o := range objs {
		if prune != nil {
			o = prune(o)
		}
		out[i] = o
	}
	return out
}

// normalizeNamespaces sorts and de-duplicates ns. An empty list, or one
// naming AllNamespaces, collapses to the single all-namespaces entry.
func normalizeNamespaces(ns []string) []string {
	if len(ns) == 0 || slices.Contains(ns, source.AllNamespaces) {
		return []string{source.AllNamespaces}
	}
	out := slices.Clone(ns)
	slices.Sort(out)
	return slices.Compact(out)
}
