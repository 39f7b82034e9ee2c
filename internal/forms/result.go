package forms

import "time"

// Status is the terminal outcome of one form target.
type Status int

const (
	// StatusSucceeded: the confirmation redirect was observed.
	StatusSucceeded Status = iota
	// StatusFailed: the last attempt failed but retries were not exhausted
	// (only seen mid-run; results carry Exhausted instead).
	StatusFailed
	// StatusExhausted: every attempt failed and the retry cap was hit.
	StatusExhausted
	// StatusClosed: the form no longer accepts responses. Never retried.
	StatusClosed
)

func (s Status) String() string {
	switch s {
	case StatusSucceeded:
		return "succeeded"
	case StatusFailed:
		return "failed"
	case StatusExhausted:
		return "exhausted"
	case StatusClosed:
		return "closed"
	default:
		return "unknown"
	}
}

func (s Status) OK() bool { return s == StatusSucceeded }

// Result is the finalized outcome for one target.
type Result struct {
	Target   Target
	Status   Status
	Attempts int

	// Screenshot is the failure screenshot path, if one was captured.
	Screenshot string
	// Err is the last error message for failed targets.
	Err string

	// SubmitSkew records how far past the shared target instant the submit
	// click fired (exact-submit mode only).
	SubmitSkew time.Duration
}

// Summary aggregates all Results of one run.
type Summary struct {
	Mode     string
	TargetAt time.Time
	Started  time.Time
	Finished time.Time
	Results  []Result
}

func (s Summary) OKCount() int {
	n := 0
	for _, r := range s.Results {
		if r.Status.OK() {
			n++
		}
	}
	return n
}

func (s Summary) FailCount() int { return len(s.Results) - s.OKCount() }
