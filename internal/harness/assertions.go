package harness

import (
	"fmt"
	"slices"

	"github.com/roach88/listsync/internal/engine"
)

// AssertionError is returned when an expect clause does not match.
type AssertionError struct {
	Step     int    // 1-based step number
	Kind     string // step kind
	Field    string // expect field that failed
	Expected string
	Actual   string
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	return fmt.Sprintf("step %d (%s): %s: expected %s, got %s",
		e.Step, e.Kind, e.Field, e.Expected, e.Actual)
}

// checkExpect compares the state after a step against exp.
// A refused transition fails unless exp names its error code.
func checkExpect(event TraceEvent, exp Expect, st *engine.State) []*AssertionError {
	var failures []*AssertionError
	fail := func(field string, expected, actual any) {
		failures = append(failures, &AssertionError{
			Step:     event.Step,
			Kind:     event.Kind,
			Field:    field,
			Expected: fmt.Sprint(expected),
			Actual:   fmt.Sprint(actual),
		})
	}

	if exp.Error != event.Error {
		fail("error", quoted(exp.Error), quoted(event.Error))
	}
	if exp.Items != nil && !slices.Equal(exp.Items, event.Items) {
		fail("items", exp.Items, event.Items)
	}
	if exp.Filtered != nil && !slices.Equal(exp.Filtered, event.Filtered) {
		fail("filtered", exp.Filtered, event.Filtered)
	}
	checkBool := func(field string, want *bool, got bool) {
		if want != nil && *want != got {
			fail(field, *want, got)
		}
	}
	checkBool("finished", exp.Finished, event.Finished)
	checkBool("refreshing", exp.Refreshing, event.Refreshing)
	checkBool("can_continue", exp.CanContinue, event.CanContinue)
	checkBool("wants_fetch", exp.WantsFetch, event.WantsFetch)
	checkBool("timer_armed", exp.TimerArmed, event.TimerArmed)

	if exp.Activity != "" && exp.Activity != event.Activity {
		fail("activity", exp.Activity, quoted(event.Activity))
	}

	if exp.Request != nil {
		req, ok := st.NextRequest()
		switch {
		case !ok:
			fail("request", fmt.Sprintf("%q/%q", exp.Request.Namespace, exp.Request.Continue), "no request")
		case req.Namespace != exp.Request.Namespace || req.Continue != exp.Request.Continue:
			fail("request",
				fmt.Sprintf("%q/%q", exp.Request.Namespace, exp.Request.Continue),
				fmt.Sprintf("%q/%q", req.Namespace, req.Continue))
		}
	}
	return failures
}

func quoted(s string) string {
	return fmt.Sprintf("%q", s)
}
