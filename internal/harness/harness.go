package harness

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"maps"
	"time"

	"github.com/roach88/listsync/internal/engine"
	"github.com/roach88/listsync/internal/filter"
	"github.com/roach88/listsync/internal/object"
	"github.com/roach88/listsync/internal/testutil"
)

// Harness is the scenario execution engine.
// It runs one machine with a fake scheduler and sequential activity IDs.
type Harness struct {
	machine *engine.Machine
	sched   *testutil.FakeScheduler
	state   *engine.State
	due     []string
	logger  *slog.Logger
}

func newHarness() *Harness {
	h := &Harness{
		sched:  testutil.NewFakeScheduler(),
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	h.machine = engine.NewMachine(
		engine.WithScheduler(h.sched),
		engine.WithActivityIDs(testutil.NewSequentialIDs("act")),
		engine.WithRefreshHandler(func(id string) { h.due = append(h.due, id) }),
		engine.WithLogger(h.logger),
	)
	return h
}

// Run executes a scenario and returns the result.
//
// Each run starts from a nil state. Expect clauses that do not match are
// collected in Result.Errors; a refused transition without an expected
// error code is a failure too. The returned error is reserved for steps
// that cannot be executed at all.
func Run(scenario *Scenario) (*Result, error) {
	h := newHarness()
	result := NewResult()

	for i, step := range scenario.Steps {
		event, err := h.apply(step)
		if err != nil {
			return nil, fmt.Errorf("steps[%d]: %w", i, err)
		}
		event.Step = i + 1
		result.Trace = append(result.Trace, event)

		exp := Expect{}
		if step.Expect != nil {
			exp = *step.Expect
		}
		for _, failure := range checkExpect(event, exp, h.state) {
			result.AddError(failure.Error())
		}
	}
	return result, nil
}

func (h *Harness) apply(step Step) (TraceEvent, error) {
	event := TraceEvent{Kind: step.Kind()}

	var action engine.Action
	switch {
	case step.Start != nil:
		s := step.Start
		var interval time.Duration
		if s.RefreshInterval != "" {
			d, err := time.ParseDuration(s.RefreshInterval)
			if err != nil {
				return event, err
			}
			interval = d
		}
		action = engine.StartFetch{
			Namespaces:      s.Namespaces,
			Filter:          buildFilter(s.Keywords, s.Fuzzy, s.Labels),
			Prune:           filter.KeepFields(s.Keep...),
			Limit:           s.Limit,
			PageSize:        s.PageSize,
			RefreshInterval: interval,
		}

	case step.Page != nil:
		p := step.Page
		id := p.Activity
		if id == "" {
			id = h.state.ActivityID()
		}
		refresh := h.state != nil && h.state.Refreshing
		if p.Refresh != nil {
			refresh = *p.Refresh
		}
		action = engine.PageArrived{
			ActivityID: id,
			Refresh:    refresh,
			Items:      toTracked(p.Items),
			Continue:   p.Continue,
		}

	case step.Modify != nil:
		m := step.Modify
		action = engine.ModifyFilterOrLimit{
			Filter:      buildFilter(m.Keywords, m.Fuzzy, m.Labels),
			ClearFilter: m.ClearFilter,
			Limit:       m.Limit,
		}

	case step.Remove != nil:
		action = engine.RemoveItems{UIDs: step.Remove.UIDs}

	case step.Update != nil:
		action = engine.UpdateItems{Items: toTracked(step.Update.Items)}

	case step.Refresh != nil:
		id := step.Refresh.Activity
		if id == "current" {
			id = h.state.ActivityID()
		}
		action = engine.StartRefreshSweep{ActivityID: id}

	case step.Cancel != nil:
		action = engine.Cancel{}

	case step.Advance != "":
		d, err := time.ParseDuration(step.Advance)
		if err != nil {
			return event, err
		}
		h.due = nil
		event.Fired = h.sched.Advance(d)
		for _, id := range h.due {
			if code := h.reduce(engine.StartRefreshSweep{ActivityID: id}); code != "" {
				event.Error = code
			}
		}
		h.fill(&event)
		return event, nil

	default:
		return event, fmt.Errorf("no action")
	}

	event.Error = h.reduce(action)
	h.fill(&event)
	return event, nil
}

// reduce applies action and returns the transition error code, if any.
func (h *Harness) reduce(action engine.Action) string {
	next, err := h.machine.Reduce(h.state, action)
	h.state = next
	if err == nil {
		return ""
	}
	var te *engine.TransitionError
	if errors.As(err, &te) {
		return string(te.Code)
	}
	return err.Error()
}

func (h *Harness) fill(event *TraceEvent) {
	snap := h.state.Snapshot()
	event.Seq = snap.Seq
	event.Activity = snap.ActivityID
	event.Items = object.UIDs(snap.Items)
	event.Filtered = object.UIDs(snap.FilteredItems)
	event.Finished = snap.Finished
	event.Refreshing = snap.Refreshing
	event.CanContinue = snap.CanContinue
	event.WantsFetch = snap.WantsFetch
	if h.state != nil {
		event.TimerArmed = h.state.Activity.TimerArmed()
	}
}

func buildFilter(keywords []string, fuzzy string, labels map[string]string) object.Predicate {
	return filter.All(
		filter.Keywords(keywords),
		filter.Fuzzy(fuzzy),
		filter.Labels(labels),
	)
}

func toTracked(items []Item) []object.Tracked {
	out := make([]object.Tracked, len(items))
	for i, it := range items {
		payload := maps.Clone(it.Payload)
		if payload == nil {
			payload = map[string]any{}
		}
		if len(it.Labels) > 0 {
			labels := make(map[string]any, len(it.Labels))
			for k, v := range it.Labels {
				labels[k] = v
			}
			meta, _ := payload["metadata"].(map[string]any)
			meta = maps.Clone(meta)
			if meta == nil {
				meta = map[string]any{}
			}
			meta["labels"] = labels
			payload["metadata"] = meta
		}
		if len(payload) == 0 {
			payload = nil
		}
		out[i] = object.Tracked{
			UID:             it.UID,
			Namespace:       it.Namespace,
			Name:            it.Name,
			ResourceVersion: it.RV,
			Payload:         payload,
		}
	}
	return out
}
