package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/roach88/camconform/internal/analyze"
	"github.com/roach88/camconform/internal/harness"
)

// ErrRunNotFound is returned when no run matches an id or id prefix.
var ErrRunNotFound = errors.New("run not found")

// Run is one recorded harness run.
type Run struct {
	ID         string    `json:"id"`
	Suite      string    `json:"suite,omitempty"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at,omitzero"`
	Passed     int       `json:"passed"`
	Failed     int       `json:"failed"`
	ExitCode   int       `json:"exit_code"`
}

// Finished reports whether FinishRun was called for the run. A run left
// unfinished was interrupted before its report was written.
func (r Run) Finished() bool {
	return !r.FinishedAt.IsZero()
}

// Difference is one case whose outcome differs between two runs. A status of
// "" means the case did not run in that run.
type Difference struct {
	Name     string `json:"name"`
	StatusA  string `json:"status_a"`
	StatusB  string `json:"status_b"`
	MessageA string `json:"message_a,omitempty"`
	MessageB string `json:"message_b,omitempty"`
}

// BeginRun records the start of a run and returns it with a fresh id.
func (s *Store) BeginRun(ctx context.Context, suite string) (Run, error) {
	run := Run{
		ID:        s.ids.Generate(),
		Suite:     suite,
		StartedAt: s.now().UTC(),
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO runs (id, suite, started_at)
		VALUES (?, ?, ?)
	`, run.ID, run.Suite, run.StartedAt.UnixNano())
	if err != nil {
		return Run{}, fmt.Errorf("begin run: %w", err)
	}
	return run, nil
}

// WriteResult stores the result of the case at position seq in the run.
// Writing the same seq twice is an error; results are append-only.
func (s *Store) WriteResult(ctx context.Context, runID string, seq int, r harness.Result) error {
	if r.Status != harness.Passed && r.Status != harness.Failed {
		return fmt.Errorf("write result %s: status %s is not terminal", r.Name, r.Status)
	}
	verdicts := r.Verdicts
	if verdicts == nil {
		verdicts = []analyze.Verdict{}
	}
	verdictsJSON, err := json.Marshal(verdicts)
	if err != nil {
		return fmt.Errorf("write result %s: %w", r.Name, err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO results (run_id, seq, name, status, message, duration_ns, verdicts)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`,
		runID,
		seq,
		r.Name,
		r.Status.String(),
		r.Message,
		int64(r.Duration),
		string(verdictsJSON),
	)
	if err != nil {
		return fmt.Errorf("write result %s: %w", r.Name, err)
	}
	return nil
}

// FinishRun stamps the end time and exit code and counts the stored results.
func (s *Store) FinishRun(ctx context.Context, runID string, exitCode int) (Run, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE runs SET
			finished_at = ?,
			exit_code = ?,
			passed = (SELECT COUNT(*) FROM results WHERE run_id = runs.id AND status = 'PASSED'),
			failed = (SELECT COUNT(*) FROM results WHERE run_id = runs.id AND status = 'FAILED')
		WHERE id = ?
	`, s.now().UTC().UnixNano(), exitCode, runID)
	if err != nil {
		return Run{}, fmt.Errorf("finish run: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return Run{}, fmt.Errorf("finish run: %w", err)
	}
	if n == 0 {
		return Run{}, fmt.Errorf("finish run %s: %w", runID, ErrRunNotFound)
	}
	return s.GetRun(ctx, runID)
}

// GetRun returns the run whose id starts with idOrPrefix. A prefix matching
// more than one run is an error.
func (s *Store) GetRun(ctx context.Context, idOrPrefix string) (Run, error) {
	if idOrPrefix == "" {
		return Run{}, fmt.Errorf("get run: empty id")
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, suite, started_at, finished_at, passed, failed, exit_code
		FROM runs
		WHERE substr(id, 1, ?) = ?
		ORDER BY id COLLATE BINARY ASC
		LIMIT 2
	`, len(idOrPrefix), idOrPrefix)
	if err != nil {
		return Run{}, fmt.Errorf("get run: %w", err)
	}
	defer rows.Close()

	runs, err := scanRuns(rows)
	if err != nil {
		return Run{}, fmt.Errorf("get run: %w", err)
	}
	switch len(runs) {
	case 0:
		return Run{}, fmt.Errorf("get run %s: %w", idOrPrefix, ErrRunNotFound)
	case 1:
		return runs[0], nil
	default:
		return Run{}, fmt.Errorf("get run: prefix %q matches more than one run", idOrPrefix)
	}
}

// ListRuns returns up to limit runs, newest first. A limit <= 0 returns all.
func (s *Store) ListRuns(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, suite, started_at, finished_at, passed, failed, exit_code
		FROM runs
		ORDER BY started_at DESC, id COLLATE BINARY DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	runs, err := scanRuns(rows)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	return runs, nil
}

// ReadResults returns the results of a run in execution order.
// Returns an empty slice (not nil) for a run with no results.
func (s *Store) ReadResults(ctx context.Context, runID string) ([]harness.Result, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT name, status, message, duration_ns, verdicts
		FROM results
		WHERE run_id = ?
		ORDER BY seq ASC
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("query results: %w", err)
	}
	defer rows.Close()

	results := []harness.Result{}
	for rows.Next() {
		var (
			r            harness.Result
			status       string
			durationNS   int64
			verdictsJSON string
		)
		if err := rows.Scan(&r.Name, &status, &r.Message, &durationNS, &verdictsJSON); err != nil {
			return nil, fmt.Errorf("scan result: %w", err)
		}
		if r.Status, err = harness.ParseStatus(status); err != nil {
			return nil, fmt.Errorf("scan result %s: %w", r.Name, err)
		}
		r.Duration = time.Duration(durationNS)
		if err := json.Unmarshal([]byte(verdictsJSON), &r.Verdicts); err != nil {
			return nil, fmt.Errorf("scan result %s verdicts: %w", r.Name, err)
		}
		if len(r.Verdicts) == 0 {
			r.Verdicts = nil
		}
		results = append(results, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate results: %w", err)
	}
	return results, nil
}

// DiffRuns compares the case statuses of two runs. Cases are reported in the
// order they ran in a, followed by cases only b ran. An empty result means
// both runs had identical outcomes.
func (s *Store) DiffRuns(ctx context.Context, a, b string) ([]Difference, error) {
	left, err := s.ReadResults(ctx, a)
	if err != nil {
		return nil, fmt.Errorf("diff runs: %w", err)
	}
	right, err := s.ReadResults(ctx, b)
	if err != nil {
		return nil, fmt.Errorf("diff runs: %w", err)
	}

	byName := make(map[string]harness.Result, len(right))
	for _, r := range right {
		byName[r.Name] = r
	}

	diffs := []Difference{}
	seen := make(map[string]bool, len(left))
	for _, l := range left {
		seen[l.Name] = true
		r, ok := byName[l.Name]
		if ok && r.Status == l.Status {
			continue
		}
		d := Difference{Name: l.Name, StatusA: l.Status.String(), MessageA: l.Message}
		if ok {
			d.StatusB = r.Status.String()
			d.MessageB = r.Message
		}
		diffs = append(diffs, d)
	}
	for _, r := range right {
		if seen[r.Name] {
			continue
		}
		diffs = append(diffs, Difference{Name: r.Name, StatusB: r.Status.String(), MessageB: r.Message})
	}
	return diffs, nil
}

func scanRuns(rows *sql.Rows) ([]Run, error) {
	runs := []Run{}
	for rows.Next() {
		var (
			run      Run
			started  int64
			finished sql.NullInt64
			exitCode sql.NullInt64
		)
		if err := rows.Scan(&run.ID, &run.Suite, &started, &finished, &run.Passed, &run.Failed, &exitCode); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		run.StartedAt = time.Unix(0, started).UTC()
		if finished.Valid {
			run.FinishedAt = time.Unix(0, finished.Int64).UTC()
		}
		run.ExitCode = int(exitCode.Int64)
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate runs: %w", err)
	}
	return runs, nil
}
