package harness

import (
	"context"
	"fmt"
	"time"

	"github.com/roach88/camconform/internal/analyze"
)

// Status is the lifecycle state of a test case result.
type Status int

const (
	Pending Status = iota
	Running
	Passed
	Failed
)

func (s Status) String() string {
	switch s {
	case Pending:
		return "PENDING"
	case Running:
		return "RUNNING"
	case Passed:
		return "PASSED"
	case Failed:
		return "FAILED"
	default:
		return fmt.Sprintf("Status(%d)", int(s))
	}
}

// MarshalText renders the status name in JSON output.
func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// ParseStatus is the inverse of Status.String for terminal states.
func ParseStatus(s string) (Status, error) {
	switch s {
	case "PASSED":
		return Passed, nil
	case "FAILED":
		return Failed, nil
	default:
		return Pending, fmt.Errorf("unknown status %q", s)
	}
}

// TestCase is one registered conformance check. Run drives the daemon through
// env and returns nil when the command had the expected effect.
type TestCase struct {
	Name        string
	Description string
	Run         func(ctx context.Context, env *Env) error
}

// Result is the outcome of one test case.
type Result struct {
	Name     string        `json:"name"`
	Status   Status        `json:"status"`
	Message  string        `json:"message"`
	Duration time.Duration `json:"duration_ns"`

	// Verdicts are the analyzer comparisons the case made, in order.
	Verdicts []analyze.Verdict `json:"verdicts,omitempty"`
}

// NewResult creates a pending result for the named case.
func NewResult(name string) *Result {
	return &Result{Name: name, Status: Pending}
}

// Passed reports whether the case passed.
func (r Result) Passed() bool {
	return r.Status == Passed
}

// transition moves the result to the next status. Only
// Pending→Running and Running→Passed|Failed are allowed.
func (r *Result) transition(to Status) error {
	ok := false
	switch r.Status {
	case Pending:
		ok = to == Running
	case Running:
		ok = to == Passed || to == Failed
	}
	if !ok {
		return fmt.Errorf("result %s: invalid transition %s -> %s", r.Name, r.Status, to)
	}
	r.Status = to
	return nil
}
