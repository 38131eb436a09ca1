package harness

// TraceEvent is one message the pipeline emitted during a scenario.
type TraceEvent struct {
	Seq      int64          `json:"seq"`
	Step     int            `json:"step"` // scenario step whose drain produced the message
	Pipeline string         `json:"pipeline"`
	Channel  string         `json:"channel"`
	Type     string         `json:"type"`
	GUID     string         `json:"guid"`
	Payload  map[string]any `json:"payload,omitempty"`
}

// Result is the outcome of a test scenario execution.
type Result struct {
	// Pass indicates overall test success.
	// True if every assertion holds.
	Pass bool `json:"pass"`

	// Trace contains every emitted message in order.
	Trace []TraceEvent `json:"trace"`

	// Errors contains assertion failures.
	// Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`

	// State is the pipeline's processing state after the last step.
	State string `json:"state"`

	// Counters holds each stage's counters after the last step, keyed by
	// stage name.
	Counters map[string]map[string]uint64 `json:"counters"`
}

// NewResult creates a new passing result.
// Used as the starting point for test execution.
func NewResult() *Result {
	return &Result{
		Pass:     true,
		Trace:    []TraceEvent{},
		Errors:   []string{},
		Counters: make(map[string]map[string]uint64),
	}
}

// AddError adds an assertion failure and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// AddOutput appends an emitted message to the trace and assigns its seq.
func (r *Result) AddOutput(e TraceEvent) {
	e.Seq = int64(len(r.Trace) + 1)
	r.Trace = append(r.Trace, e)
}
