// Package report renders run results as the plain-text conformance report
// and decides the process exit code.
package report

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/roach88/camconform/internal/harness"
)

// Exit codes returned by Finalize.
const (
	ExitAllPassed = 0
	ExitAnyFailed = 1
)

// Summary counts results by outcome.
type Summary struct {
	Passed int `json:"passed"`
	Failed int `json:"failed"`
	Total  int `json:"total"`
}

// Summarize counts results.
func Summarize(results []harness.Result) Summary {
	s := Summary{Total: len(results)}
	for _, r := range results {
		if r.Passed() {
			s.Passed++
		} else {
			s.Failed++
		}
	}
	return s
}

// ExitCode is ExitAnyFailed when any result failed and ExitAllPassed
// otherwise, including for an empty run.
func (s Summary) ExitCode() int {
	if s.Failed > 0 {
		return ExitAnyFailed
	}
	return ExitAllPassed
}

// Aggregator collects results in execution order and writes the report once.
type Aggregator struct {
	w         io.Writer
	console   io.Writer
	results   []harness.Result
	finalized bool
}

// New creates an Aggregator writing the report to w and status lines to
// console. Either writer may be nil.
func New(w, console io.Writer) *Aggregator {
	return &Aggregator{w: w, console: console}
}

// Record appends a result.
func (a *Aggregator) Record(r harness.Result) {
	a.results = append(a.results, r)
}

// Results returns the recorded results.
func (a *Aggregator) Results() []harness.Result {
	return a.results
}

// Summary counts the recorded results.
func (a *Aggregator) Summary() Summary {
	return Summarize(a.results)
}

// Finalize writes the report and the console status lines and returns the
// exit code. Later calls write nothing and return the same code.
func (a *Aggregator) Finalize() (int, error) {
	code := a.Summary().ExitCode()
	if a.finalized {
		return code, nil
	}
	a.finalized = true

	if a.w != nil {
		if _, err := a.w.Write(Format(a.results)); err != nil {
			return code, fmt.Errorf("write report: %w", err)
		}
	}
	if a.console != nil {
		for _, r := range a.results {
			if _, err := fmt.Fprintf(a.console, "%s: %s\n", r.Name, r.Status); err != nil {
				return code, fmt.Errorf("write console: %w", err)
			}
		}
	}
	return code, nil
}

// Format renders the report body: a status line per result followed by its
// message indented by two spaces. Multi-line messages keep the indent.
func Format(results []harness.Result) []byte {
	var buf bytes.Buffer
	for _, r := range results {
		fmt.Fprintf(&buf, "%s: %s\n", r.Name, r.Status)
		sc := bufio.NewScanner(strings.NewReader(r.Message))
		wrote := false
		for sc.Scan() {
			fmt.Fprintf(&buf, "  %s\n", sc.Text())
			wrote = true
		}
		if !wrote {
			buf.WriteString("  \n")
		}
	}
	return buf.Bytes()
}

// WriteFile writes the report for results to path, replacing any previous
// report, and returns the exit code.
func WriteFile(path string, results []harness.Result) (int, error) {
	code := Summarize(results).ExitCode()
	if err := os.WriteFile(path, Format(results), 0o644); err != nil {
		return code, fmt.Errorf("write report %s: %w", path, err)
	}
	return code, nil
}
