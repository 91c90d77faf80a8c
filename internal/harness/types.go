package harness

// TraceEvent summarises the state after one scenario step.
type TraceEvent struct {
	Step        int      `json:"step"`
	Kind        string   `json:"kind"`
	Seq         int64    `json:"seq"`
	Activity    string   `json:"activity"`
	Items       []string `json:"items"`
	Filtered    []string `json:"filtered"`
	Finished    bool     `json:"finished"`
	Refreshing  bool     `json:"refreshing"`
	CanContinue bool     `json:"can_continue"`
	WantsFetch  bool     `json:"wants_fetch"`
	TimerArmed  bool     `json:"timer_armed"`

	// Fired counts refresh timers fired by an advance step.
	Fired int `json:"fired,omitempty"`

	// Error is the transition error code, if the step was refused.
	Error string `json:"error,omitempty"`
}

// Result is the outcome of a test scenario execution.
type Result struct {
	// Pass indicates overall test success.
	// True if all expect clauses match.
	Pass bool `json:"pass"`

	// Trace contains one event per step, in order.
	Trace []TraceEvent `json:"trace"`

	// Errors contains validation error messages.
	// Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Trace:  []TraceEvent{},
		Errors: []string{},
	}
}

// AddError adds a validation error and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}
