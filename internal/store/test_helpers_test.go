package store

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/roach88/camconform/internal/analyze"
	"github.com/roach88/camconform/internal/harness"
	"github.com/roach88/camconform/internal/testutil"
)

var epoch = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

// createTestStore creates a store in a temp dir with sequential run ids and a
// clock that advances one minute per reading.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "history.db")

	tick := 0
	clock := func() time.Time {
		tick++
		return epoch.Add(time.Duration(tick) * time.Minute)
	}

	s, err := Open(path,
		WithIDGenerator(testutil.NewSequentialIDs("run")),
		WithClock(clock),
	)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func passed(name string) harness.Result {
	return harness.Result{Name: name, Status: harness.Passed, Message: "Test passed", Duration: 2 * time.Second}
}

func failed(name, msg string) harness.Result {
	return harness.Result{
		Name:     name,
		Status:   harness.Failed,
		Message:  msg,
		Duration: 4 * time.Second,
		Verdicts: []analyze.Verdict{{
			Analyzer:  analyze.NameBrightness,
			Before:    100,
			After:     101,
			Delta:     1,
			Threshold: 5,
		}},
	}
}
