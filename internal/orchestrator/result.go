package orchestrator

// Outcome classifies a single attempt
type Outcome int

const (
	OutcomeSuccess Outcome = iota
	OutcomeRetryableFailure
	OutcomeFatalFailure
)

func (o Outcome) String() string {
	switch o {
	case OutcomeSuccess:
		return "success"
	case OutcomeRetryableFailure:
		return "retryableFailure"
	case OutcomeFatalFailure:
		return "fatalFailure"
	}
	return "unknown"
}

// AttemptResult is created once per attempt and consumed immediately to
// decide whether the loop continues.
type AttemptResult struct {
	Outcome     Outcome
	FilledCount int
	Diagnostic  string
	Err         error

	// Submitted is false on success when no submit control was found
	Submitted bool
}

// Terminal statuses
const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// Result is the one terminal answer of a fill
type Result struct {
	Status       string `json:"status"`
	FieldsFilled int    `json:"fieldsFilled"`
	Message      string `json:"message"`
	Attempts     int    `json:"attempts,omitempty"`
	RunID        string `json:"runId,omitempty"`
}

// OK reports whether the fill succeeded
func (r Result) OK() bool {
	return r.Status == StatusSuccess
}
