package harness

// Result is the outcome of a scenario execution.
type Result struct {
	// Pass indicates overall test success.
	// True if every expect clause and assertion holds.
	Pass bool `json:"pass"`

	// Transcript is the buffered follower output, in order, including the
	// lines emitted when the follower was closed.
	Transcript []string `json:"transcript"`

	// Console holds what was printed directly to the console (kernel dumps).
	Console []string `json:"console,omitempty"`

	// Sections are the ids of the sections started, in order.
	Sections []string `json:"sections"`

	// Fatal is the fatal condition that ended the scenario, if any:
	// "timeout" or "known_issue".
	Fatal string `json:"fatal,omitempty"`

	// Errors contains validation error messages.
	// Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:       true,
		Transcript: []string{},
		Sections:   []string{},
		Errors:     []string{},
	}
}

// AddError adds a validation error and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}
