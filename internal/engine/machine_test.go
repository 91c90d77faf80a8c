package engine_test

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/listsync/internal/engine"
	"github.com/roach88/listsync/internal/object"
	"github.com/roach88/listsync/internal/testutil"
)

func obj(uid, ns, name, rv string) object.Tracked {
	return object.Tracked{UID: uid, Namespace: ns, Name: name, ResourceVersion: rv}
}

type fixture struct {
	m       *engine.Machine
	sched   *testutil.FakeScheduler
	refresh []string
}

func newFixture(t *testing.T, withRefresh bool) *fixture {
	t.Helper()
	f := &fixture{sched: testutil.NewFakeScheduler()}
	opts := []engine.MachineOption{
		engine.WithScheduler(f.sched),
		engine.WithActivityIDs(testutil.NewSequentialIDs("act")),
	}
	if withRefresh {
		opts = append(opts, engine.WithRefreshHandler(func(id string) {
			f.refresh = append(f.refresh, id)
		}))
	}
	f.m = engine.NewMachine(opts...)
	return f
}

func (f *fixture) reduce(t *testing.T, s *engine.State, a engine.Action) *engine.State {
	t.Helper()
	next, err := f.m.Reduce(s, a)
	require.NoError(t, err)
	return next
}

func (f *fixture) page(t *testing.T, s *engine.State, cont string, items ...object.Tracked) *engine.State {
	t.Helper()
	return f.reduce(t, s, engine.PageArrived{
		ActivityID: s.ActivityID(),
		Refresh:    s.Refreshing,
		Items:      items,
		Continue:   cont,
	})
}

func assertUnique(t *testing.T, s *engine.State) {
	t.Helper()
	seen := make(map[string]bool)
	for _, o := range s.Items {
		require.False(t, seen[o.UID], "duplicate uid %s", o.UID)
		seen[o.UID] = true
	}
}

func assertFilterConsistent(t *testing.T, s *engine.State) {
	t.Helper()
	assert.Equal(t, object.UIDs(object.FilterSlice(s.Items, s.Filter)), object.UIDs(s.FilteredItems))
}

func TestReduce_StartFetchFromNil(t *testing.T) {
	f := newFixture(t, false)

	s := f.reduce(t, nil, engine.StartFetch{PageSize: 50})

	assert.Equal(t, "act-1", s.ActivityID())
	assert.Equal(t, []string{""}, s.Namespaces)
	assert.Empty(t, s.NamespaceQueue)
	assert.NotNil(t, s.Items)
	assert.NotNil(t, s.FilteredItems)
	assert.False(t, s.Finished)
	assert.True(t, s.CanContinue())
	assert.Equal(t, int64(1), s.Seq)

	req, ok := s.NextRequest()
	require.True(t, ok)
	assert.Equal(t, "", req.Namespace)
	assert.Equal(t, "", req.Continue)
	assert.Equal(t, 50, req.Limit)
}

func TestReduce_StartFetchNormalizesNamespaces(t *testing.T) {
	f := newFixture(t, false)

	s := f.reduce(t, nil, engine.StartFetch{Namespaces: []string{"user-b", "user-a", "user-b"}})
	assert.Equal(t, []string{"user-a", "user-b"}, s.Namespaces)
	assert.Equal(t, "user-a", s.CurrentNamespace)
	assert.Equal(t, []string{"user-b"}, s.NamespaceQueue)

	all := f.reduce(t, nil, engine.StartFetch{Namespaces: []string{"user-a", ""}})
	assert.Equal(t, []string{""}, all.Namespaces, "an all-namespaces entry subsumes the rest")
}

func TestReduce_StartFetchRejectsNegativeLimit(t *testing.T) {
	f := newFixture(t, false)
	prev := f.reduce(t, nil, engine.StartFetch{})

	next, err := f.m.Reduce(prev, engine.StartFetch{Limit: -1})
	require.Error(t, err)
	assert.Same(t, prev, next, "refused transition returns the previous state")
	assert.False(t, prev.Activity.Canceled(), "refused transition does not cancel")
}

func TestReduce_SinglePageFinishes(t *testing.T) {
	f := newFixture(t, false)
	s := f.reduce(t, nil, engine.StartFetch{Limit: 2})

	s = f.page(t, s, "", obj("a", "ns", "a", "1"), obj("b", "ns", "b", "1"), obj("c", "ns", "c", "1"))

	assert.Len(t, s.Items, 3)
	assert.Len(t, s.FilteredItems, 3)
	assert.True(t, s.Finished)
	assert.False(t, s.CanContinue())
	assert.False(t, s.WantsFetch())
}

func TestReduce_PagesAcrossNamespaces(t *testing.T) {
	f := newFixture(t, false)
	s := f.reduce(t, nil, engine.StartFetch{Namespaces: []string{"ns-a", "ns-b"}})

	s = f.page(t, s, "t1", obj("1", "ns-a", "x", "1"))
	assert.Equal(t, "t1", s.Continue)
	assert.Equal(t, "ns-a", s.CurrentNamespace)
	assert.False(t, s.Finished)

	s = f.page(t, s, "", obj("2", "ns-a", "y", "1"))
	assert.Equal(t, "ns-b", s.CurrentNamespace)
	assert.Equal(t, "", s.Continue)
	assert.True(t, s.CanContinue(), "ns-b has not been fetched yet")
	assert.False(t, s.Finished)

	req, ok := s.NextRequest()
	require.True(t, ok)
	assert.Equal(t, "ns-b", req.Namespace)

	s = f.page(t, s, "", obj("3", "ns-b", "z", "1"))
	assert.True(t, s.Finished)
	assert.Equal(t, []string{"1", "2", "3"}, object.UIDs(s.Items))
}

func TestReduce_LimitPausesPaging(t *testing.T) {
	f := newFixture(t, false)
	s := f.reduce(t, nil, engine.StartFetch{Limit: 2, PageSize: 2})

	s = f.page(t, s, "t1", obj("a", "ns", "a", "1"), obj("b", "ns", "b", "1"))
	assert.False(t, s.Finished)
	assert.True(t, s.CanContinue())
	assert.True(t, s.LimitSatisfied())
	assert.False(t, s.WantsFetch(), "limit reached: paging pauses")

	limit := 4
	s = f.reduce(t, s, engine.ModifyFilterOrLimit{Limit: &limit})
	req, ok := s.NextRequest()
	require.True(t, ok, "raising the limit resumes paging")
	assert.Equal(t, "t1", req.Continue)
}

func TestReduce_FilterAppliesToNewObjectsOnly(t *testing.T) {
	f := newFixture(t, false)
	onlyX := func(o object.Tracked) bool { return strings.HasPrefix(o.Name, "x") }
	s := f.reduce(t, nil, engine.StartFetch{Filter: onlyX})

	s = f.page(t, s, "t1", obj("1", "ns", "x1", "1"), obj("2", "ns", "y1", "1"))
	s = f.page(t, s, "", obj("3", "ns", "x2", "1"))

	assert.Equal(t, []string{"1", "2", "3"}, object.UIDs(s.Items))
	assert.Equal(t, []string{"1", "3"}, object.UIDs(s.FilteredItems))
	assertFilterConsistent(t, s)
}

func TestReduce_PruneAppliedBeforeStorage(t *testing.T) {
	f := newFixture(t, false)
	dropPayload := func(o object.Tracked) object.Tracked {
		o.Payload = nil
		return o
	}
	s := f.reduce(t, nil, engine.StartFetch{Prune: dropPayload})

	raw := obj("a", "ns", "a", "1")
	raw.Payload = map[string]any{"spec": "big"}
	s = f.page(t, s, "", raw)

	require.Len(t, s.Items, 1)
	assert.Nil(t, s.Items[0].Payload)
}

func TestReduce_ModifyFilter(t *testing.T) {
	f := newFixture(t, false)
	s := f.reduce(t, nil, engine.StartFetch{})
	s = f.page(t, s, "", obj("1", "ns", "x1", "1"), obj("2", "ns", "y1", "1"))
	before := s.Items

	s = f.reduce(t, s, engine.ModifyFilterOrLimit{
		Filter: func(o object.Tracked) bool { return strings.HasPrefix(o.Name, "x") },
	})

	assert.Equal(t, []string{"x1"}, names(s.FilteredItems))
	assert.Equal(t, before, s.Items, "items unchanged")

	s = f.reduce(t, s, engine.ModifyFilterOrLimit{ClearFilter: true})
	assert.Equal(t, []string{"x1", "y1"}, names(s.FilteredItems))
}

func names(objs []object.Tracked) []string {
	out := make([]string, len(objs))
	for i, o := range objs {
		out[i] = o.Name
	}
	return out
}

func TestReduce_RemoveItems(t *testing.T) {
	f := newFixture(t, false)
	s := f.reduce(t, nil, engine.StartFetch{})
	s = f.page(t, s, "", obj("a", "ns", "a", "1"), obj("b", "ns", "b", "1"))

	s = f.reduce(t, s, engine.RemoveItems{UIDs: []string{"a"}})

	assert.Equal(t, []string{"b"}, object.UIDs(s.Items))
	assert.Equal(t, []string{"b"}, object.UIDs(s.FilteredItems))
}

func TestReduce_UpdateItemsNewerWins(t *testing.T) {
	f := newFixture(t, false)
	s := f.reduce(t, nil, engine.StartFetch{})
	s = f.page(t, s, "", obj("a", "ns", "a", "5"), obj("b", "ns", "b", "5"))

	s = f.reduce(t, s, engine.UpdateItems{Items: []object.Tracked{
		obj("a", "ns", "a", "6"),
		obj("b", "ns", "b", "4"),
		obj("z", "ns", "z", "1"),
	}})

	assert.Equal(t, []string{"a", "b"}, object.UIDs(s.Items), "unknown uids ignored")
	assert.Equal(t, "6", s.Items[0].ResourceVersion)
	assert.Equal(t, "5", s.Items[1].ResourceVersion, "older version does not overwrite")
}

func TestReduce_DuplicateUIDAcrossPagesStaysUnique(t *testing.T) {
	f := newFixture(t, false)
	s := f.reduce(t, nil, engine.StartFetch{})

	s = f.page(t, s, "t1", obj("a", "ns", "a", "1"), obj("b", "ns", "b", "1"))
	s = f.page(t, s, "", obj("b", "ns", "b", "2"), obj("c", "ns", "c", "1"))

	assertUnique(t, s)
	assert.Equal(t, []string{"a", "b", "c"}, object.UIDs(s.Items))
	assert.Equal(t, "2", s.Items[1].ResourceVersion)
	assertFilterConsistent(t, s)
}

func TestReduce_OperationsRequireState(t *testing.T) {
	f := newFixture(t, false)
	for _, a := range []engine.Action{
		engine.ModifyFilterOrLimit{},
		engine.RemoveItems{},
		engine.UpdateItems{},
		engine.StartRefreshSweep{},
	} {
		s, err := f.m.Reduce(nil, a)
		assert.Nil(t, s)
		assert.True(t, engine.IsNoState(err), "%s should require state", a.Kind())
	}

	s, err := f.m.Reduce(nil, engine.PageArrived{ActivityID: "act-9"})
	assert.NoError(t, err, "page without state is dropped")
	assert.Nil(t, s)

	s, err = f.m.Reduce(nil, engine.Cancel{})
	assert.NoError(t, err)
	assert.Nil(t, s)
}

func TestReduce_NilActionIsInvalid(t *testing.T) {
	f := newFixture(t, false)
	prev := f.reduce(t, nil, engine.StartFetch{})

	next, err := f.m.Reduce(prev, nil)
	require.Error(t, err)
	assert.True(t, engine.IsInvalidTransition(err))
	assert.Same(t, prev, next)
}

func TestParseAction(t *testing.T) {
	for _, kind := range []string{"start", "page", "modify", "remove", "update", "refresh", "cancel"} {
		a, err := engine.ParseAction(kind)
		require.NoError(t, err)
		assert.Equal(t, kind, a.Kind())
	}

	_, err := engine.ParseAction("explode")
	require.Error(t, err)
	assert.True(t, engine.IsInvalidTransition(err))
	assert.Contains(t, err.Error(), "explode")
}

func TestReduce_CancelIsIdempotent(t *testing.T) {
	f := newFixture(t, false)
	s := f.reduce(t, nil, engine.StartFetch{})
	id := s.ActivityID()

	once := f.reduce(t, s, engine.Cancel{})
	twice := f.reduce(t, once, engine.Cancel{})

	assert.Same(t, once, twice, "second cancel is a no-op")
	assert.True(t, once.Activity.Canceled())
	assert.False(t, once.WantsFetch())

	after := f.reduce(t, twice, engine.PageArrived{ActivityID: id, Items: []object.Tracked{obj("a", "ns", "a", "1")}})
	assert.Same(t, twice, after, "pages for a cancelled activity are dropped")
}

func TestReduce_StalePageDropped(t *testing.T) {
	f := newFixture(t, false)
	first := f.reduce(t, nil, engine.StartFetch{})
	second := f.reduce(t, first, engine.StartFetch{})

	assert.True(t, first.Activity.Canceled(), "starting a fetch cancels the previous activity")

	next := f.reduce(t, second, engine.PageArrived{ActivityID: first.ActivityID(), Items: []object.Tracked{obj("a", "ns", "a", "1")}})
	assert.Same(t, second, next)
	assert.Empty(t, next.Items)
}

func TestReduce_RestartIsIdempotent(t *testing.T) {
	f := newFixture(t, false)
	args := engine.StartFetch{Namespaces: []string{"ns"}, Limit: 10, PageSize: 5}

	once := f.reduce(t, nil, args)
	want := once.Snapshot()
	wantReq, _ := once.NextRequest()

	twice := f.reduce(t, once, args)
	twice = f.reduce(t, twice, engine.PageArrived{ActivityID: once.ActivityID(), Items: []object.Tracked{obj("a", "ns", "a", "1")}})

	got := twice.Snapshot()
	want.Seq, got.Seq = 0, 0
	want.ActivityID, got.ActivityID = "", ""
	assert.Equal(t, want, got)

	gotReq, _ := twice.NextRequest()
	assert.Equal(t, wantReq, gotReq)
}

func TestReduce_PreviousStateNotMutated(t *testing.T) {
	f := newFixture(t, false)
	s := f.reduce(t, nil, engine.StartFetch{})
	s = f.page(t, s, "t1", obj("a", "ns", "a", "1"), obj("b", "ns", "b", "1"))
	snapshot := append([]object.Tracked(nil), s.Items...)

	next := f.page(t, s, "", obj("a", "ns", "a", "2"))
	_ = f.reduce(t, next, engine.RemoveItems{UIDs: []string{"b"}})

	assert.Equal(t, snapshot, s.Items)
	assert.Equal(t, "t1", s.Continue)
}

func TestReduce_SeqIsMonotonic(t *testing.T) {
	f := newFixture(t, false)
	s := f.reduce(t, nil, engine.StartFetch{})
	last := s.Seq
	for _, a := range []engine.Action{
		engine.PageArrived{ActivityID: s.ActivityID(), Continue: "t1"},
		engine.RemoveItems{},
		engine.ModifyFilterOrLimit{},
		engine.Cancel{},
	} {
		s = f.reduce(t, s, a)
		assert.Greater(t, s.Seq, last, "after %s", a.Kind())
		last = s.Seq
	}
}

func TestReduce_RefreshTimerArmedWhenExhausted(t *testing.T) {
	f := newFixture(t, true)
	s := f.reduce(t, nil, engine.StartFetch{RefreshInterval: 30 * time.Second})

	s = f.page(t, s, "t1", obj("a", "ns", "a", "1"))
	assert.Equal(t, 0, f.sched.Pending(), "no timer while pages remain")

	s = f.page(t, s, "", obj("b", "ns", "b", "1"))
	assert.Equal(t, 1, f.sched.Pending())

	f.sched.Advance(29 * time.Second)
	assert.Empty(t, f.refresh)
	f.sched.Advance(time.Second)
	assert.Equal(t, []string{s.ActivityID()}, f.refresh)
}

func TestReduce_RefreshTimerArmedWhenLimitMet(t *testing.T) {
	f := newFixture(t, true)
	s := f.reduce(t, nil, engine.StartFetch{Limit: 1, RefreshInterval: time.Second})

	s = f.page(t, s, "t1", obj("a", "ns", "a", "1"))
	assert.Equal(t, 1, f.sched.Pending())

	limit := 5
	s = f.reduce(t, s, engine.ModifyFilterOrLimit{Limit: &limit})
	assert.Equal(t, 0, f.sched.Pending(), "resumed paging stops the pending refresh")
	assert.True(t, s.WantsFetch())
}

func TestReduce_CancelStopsRefreshTimer(t *testing.T) {
	f := newFixture(t, true)
	s := f.reduce(t, nil, engine.StartFetch{RefreshInterval: time.Second})
	s = f.page(t, s, "", obj("a", "ns", "a", "1"))
	require.Equal(t, 1, f.sched.Pending())

	f.reduce(t, s, engine.Cancel{})
	assert.Equal(t, 0, f.sched.Pending())
	f.sched.Advance(time.Minute)
	assert.Empty(t, f.refresh)
}

func TestReduce_NoTimerWithoutHandler(t *testing.T) {
	f := newFixture(t, false)
	s := f.reduce(t, nil, engine.StartFetch{RefreshInterval: time.Second})
	f.page(t, s, "", obj("a", "ns", "a", "1"))
	assert.Equal(t, 0, f.sched.Pending())
}

func TestReduce_DroppedActionsDoNotAdvanceSeq(t *testing.T) {
	f := newFixture(t, false)
	first := f.reduce(t, nil, engine.StartFetch{})
	s := f.reduce(t, first, engine.Cancel{})
	require.Equal(t, int64(2), s.Seq)

	s = f.reduce(t, s, engine.Cancel{})
	s = f.reduce(t, s, engine.PageArrived{ActivityID: first.ActivityID(), Items: []object.Tracked{obj("a", "ns", "a", "1")}})
	assert.Equal(t, int64(2), s.Seq)

	s = f.reduce(t, s, engine.StartFetch{})
	assert.Equal(t, int64(3), s.Seq, "next commit follows without a gap")
}
