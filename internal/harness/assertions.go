package harness

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/roach88/camconform/internal/analyze"
	"github.com/roach88/camconform/internal/channel"
)

// AssertionError is returned when an analyzer did not detect the expected
// change. Error returns the one-line report message; Detail adds the numbers.
type AssertionError struct {
	Message  string
	Expected string
	Actual   string
	Verdict  analyze.Verdict
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	return e.Message
}

// Detail renders the verdict for logs and verbose output.
func (e *AssertionError) Detail() string {
	var buf strings.Builder
	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Verdict.Analyzer)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)
	return buf.String()
}

// newAssertionError builds the error for an undetected verdict.
func newAssertionError(v analyze.Verdict, message string) *AssertionError {
	e := &AssertionError{
		Message: message,
		Verdict: v,
	}
	if v.Analyzer == analyze.NameWhiteBalance {
		e.Expected = fmt.Sprintf("some channel mean to change by at least %.2f", v.Threshold)
		e.Actual = fmt.Sprintf("channel changes %.2f", v.Deltas)
	} else {
		e.Expected = fmt.Sprintf("%s change of at least %.2f", v.Analyzer, v.Threshold)
		e.Actual = fmt.Sprintf("%.2f (before %.2f, after %.2f)", v.Delta, v.Before, v.After)
	}
	return e
}

// Failure is a case failure with a fixed report message. The underlying cause
// (a missing or unreadable artifact) is kept for logging.
type Failure struct {
	Message string
	Err     error
}

func (f *Failure) Error() string {
	return f.Message
}

func (f *Failure) Unwrap() error {
	return f.Err
}

// fail wraps err as a Failure with message. Channel and context errors are
// returned unchanged so their own wording reaches the report.
func fail(message string, err error) error {
	if err == nil {
		return &Failure{Message: message}
	}
	if errors.Is(err, channel.ErrUnavailable) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return &Failure{Message: message, Err: err}
}
