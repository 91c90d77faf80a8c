package engine

import (
	"errors"
	"fmt"
)

// DefaultMaxPages is the default page budget per activity.
const DefaultMaxPages = 10000

// PageBudget counts the pages requested by one activity and enforces a
// maximum, so a source that never stops returning continuation tokens
// cannot keep the driver fetching forever.
//
// The budget complements ContinueCycleDetector:
//   - Cycle detection: catches a source handing back a token it already gave
//   - Page budget: catches a source producing endless fresh tokens
type PageBudget struct {
	maxPages int
	current  int
}

// NewPageBudget creates a page budget with the given limit.
func NewPageBudget(maxPages int) *PageBudget {
	return &PageBudget{maxPages: maxPages}
}

// Check counts one page and validates against the limit.
// Returns PageBudgetError once the limit is exceeded.
func (b *PageBudget) Check(activityID string) error {
	b.current++
	if b.current > b.maxPages {
		return &PageBudgetError{
			ActivityID: activityID,
			Pages:      b.current,
			Limit:      b.maxPages,
		}
	}
	return nil
}

// Current returns the number of pages counted so far.
func (b *PageBudget) Current() int {
	return b.current
}

// PageBudgetError is returned when an activity exceeds its page budget.
// The driver cancels the activity.
type PageBudgetError struct {
	ActivityID string
	Pages      int
	Limit      int
}

// Error implements the error interface.
func (e *PageBudgetError) Error() string {
	return fmt.Sprintf("activity %s exceeded page budget: %d pages > %d limit",
		e.ActivityID, e.Pages, e.Limit)
}

// IsPageBudgetError returns true if the error is a PageBudgetError.
// Uses errors.As to handle wrapped errors.
func IsPageBudgetError(err error) bool {
	var pe *PageBudgetError
	return errors.As(err, &pe)
}

// ContinueCycleDetector tracks the (namespace, continue) positions each
// activity has requested.
//
// Within one activity the paging position only moves forward, so asking
// for the same position twice means the source returned a token that
// leads back to a page already fetched:
//
//	ns-a "" -> "t1" -> "t2" -> "t1" <- CYCLE DETECTED
//
// The first page of every namespace has an empty token and is recorded
// like any other position.
type ContinueCycleDetector struct {
	history map[string]map[string]bool // activity -> position
}

// NewContinueCycleDetector creates a new detector.
func NewContinueCycleDetector() *ContinueCycleDetector {
	return &ContinueCycleDetector{
		history: make(map[string]map[string]bool),
	}
}

// Record marks the position as requested. It returns ContinueCycleError if
// the activity already requested it.
func (c *ContinueCycleDetector) Record(activityID, namespace, cont string) error {
	key := namespace + "\x00" + cont
	seen := c.history[activityID]
	if seen == nil {
		seen = make(map[string]bool)
		c.history[activityID] = seen
	}
	if seen[key] {
		return &ContinueCycleError{
			ActivityID: activityID,
			Namespace:  namespace,
			Continue:   cont,
		}
	}
	seen[key] = true
	return nil
}

// Clear removes all history for an activity.
func (c *ContinueCycleDetector) Clear(activityID string) {
	delete(c.history, activityID)
}

// HistorySize returns the number of activities with tracked history.
func (c *ContinueCycleDetector) HistorySize() int {
	return len(c.history)
}

// ContinueCycleError is returned when a source leads an activity back to a
// position it already fetched.
type ContinueCycleError struct {
	ActivityID string
	Namespace  string
	Continue   string
}

// Error implements the error interface.
func (e *ContinueCycleError) Error() string {
	return fmt.Sprintf("activity %s revisited namespace %q at continue token %q",
		e.ActivityID, e.Namespace, e.Continue)
}

// IsContinueCycleError returns true if the error is a ContinueCycleError.
func IsContinueCycleError(err error) bool {
	var ce *ContinueCycleError
	return errors.As(err, &ce)
}
