package engine

import (
	"errors"
	"fmt"
)

// TransitionError represents a transition the machine refused to apply.
//
// Transition errors are programming errors on the caller's side:
//   - Invalid transition: nil or unknown action kind
//   - No state: an action that needs an existing state was sent before StartFetch
//   - Invalid argument: a negative limit or page size
//
// A refused transition never modifies the previous state.
type TransitionError struct {
	// Code identifies the error category.
	Code TransitionErrorCode

	// Message is a human-readable description.
	Message string

	// Action names the refused action kind, if known.
	Action string

	// ActivityID identifies the activity current at the time, if any.
	ActivityID string
}

// TransitionErrorCode categorizes transition errors.
type TransitionErrorCode string

const (
	// ErrCodeInvalidTransition indicates an unrecognized or nil action.
	ErrCodeInvalidTransition TransitionErrorCode = "INVALID_TRANSITION"

	// ErrCodeNoState indicates an action that requires a started state.
	ErrCodeNoState TransitionErrorCode = "NO_STATE"

	// ErrCodeInvalidArgument indicates an action carrying an out-of-range value.
	ErrCodeInvalidArgument TransitionErrorCode = "INVALID_ARGUMENT"
)

// Error implements the error interface.
func (e *TransitionError) Error() string {
	if e.Action != "" && e.ActivityID != "" {
		return fmt.Sprintf("%s: %s (action=%s, activity=%s)", e.Code, e.Message, e.Action, e.ActivityID)
	}
	if e.Action != "" {
		return fmt.Sprintf("%s: %s (action=%s)", e.Code, e.Message, e.Action)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// IsInvalidTransition returns true if the error is an invalid transition error.
// Uses errors.As to handle wrapped errors.
func IsInvalidTransition(err error) bool {
	var te *TransitionError
	if errors.As(err, &te) {
		return te.Code == ErrCodeInvalidTransition
	}
	return false
}

// IsNoState returns true if the error reports a missing state.
func IsNoState(err error) bool {
	var te *TransitionError
	if errors.As(err, &te) {
		return te.Code == ErrCodeNoState
	}
	return false
}

// NewInvalidTransitionError creates a TransitionError for an unknown action.
func NewInvalidTransitionError(action string) *TransitionError {
	return &TransitionError{
		Code:    ErrCodeInvalidTransition,
		Message: "unrecognized action",
		Action:  action,
	}
}

func newNoStateError(action string) *TransitionError {
	return &TransitionError{
		Code:    ErrCodeNoState,
		Message: "action requires a started fetch state",
		Action:  action,
	}
}

func newInvalidArgumentError(action, message string, activityID string) *TransitionError {
	return &TransitionError{
		Code:       ErrCodeInvalidArgument,
		Message:    message,
		Action:     action,
		ActivityID: activityID,
	}
}
