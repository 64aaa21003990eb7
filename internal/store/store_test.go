package store

import (
	"database/sql"
	"os"
	"path/filepath"
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpen_CreatesNewDatabase(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.db")

	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	defer s.Close()

	if _, err := os.Stat(path); os.IsNotExist(err) {
		t.Error("database file was not created")
	}
}

func TestOpen_Idempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.db")

	for i := 0; i < 3; i++ {
		s, err := Open(path)
		if err != nil {
			t.Fatalf("Open() iteration %d failed: %v", i, err)
		}
		s.Close()
	}

	s, err := Open(path)
	require.NoError(t, err)
	defer s.Close()

	for _, table := range []string{"runs", "results"} {
		var name string
		err := s.db.QueryRow(
			"SELECT name FROM sqlite_master WHERE type='table' AND name=?",
			table,
		).Scan(&name)
		assert.NoError(t, err, "table %q not found after idempotent opens", table)
	}
}

func TestOpen_InvalidPath(t *testing.T) {
	_, err := Open("/nonexistent/dir/history.db")
	assert.Error(t, err)
}

func TestClose_NilDB(t *testing.T) {
	s := &Store{db: nil}
	assert.NoError(t, s.Close())
}

func TestPragmas(t *testing.T) {
	s := createTestStore(t)

	tests := []struct {
		name     string
		expected string
	}{
		{"journal_mode", "wal"},
		{"synchronous", "1"}, // NORMAL
		{"busy_timeout", "5000"},
		{"foreign_keys", "1"},
		{"user_version", "1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.NoError(t, s.verifyPragma(tt.name, tt.expected))
		})
	}
}

func TestSchema_Columns(t *testing.T) {
	s := createTestStore(t)

	runs := getTableColumns(t, s.db, "runs")
	for _, col := range []string{"id", "suite", "started_at", "finished_at", "passed", "failed", "exit_code"} {
		assert.Contains(t, runs, col)
	}

	results := getTableColumns(t, s.db, "results")
	for _, col := range []string{"run_id", "seq", "name", "status", "message", "duration_ns", "verdicts"} {
		assert.Contains(t, results, col)
	}
}

func TestSchema_Indexes(t *testing.T) {
	s := createTestStore(t)
	assert.True(t, slices.Contains(getTableIndexes(t, s.db, "runs"), "idx_runs_started"))
}

func TestOpen_RejectsNewerSchema(t *testing.T) {
	path := filepath.Join(t.TempDir(), "newer.db")

	db, err := sql.Open("sqlite3", path)
	require.NoError(t, err)
	_, err = db.Exec("PRAGMA user_version = 2")
	require.NoError(t, err)
	require.NoError(t, db.Close())

	_, err = Open(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "schema version 2 is newer than supported version 1")
}

func TestOpen_ReopenKeepsRuns(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.db")

	s, err := Open(path)
	require.NoError(t, err)
	run, err := s.BeginRun(t.Context(), "nightly")
	require.NoError(t, err)
	require.NoError(t, s.Close())

	s, err = Open(path)
	require.NoError(t, err)
	defer s.Close()

	assert.NoError(t, s.verifyPragma("user_version", "1"))
	got, err := s.GetRun(t.Context(), run.ID)
	require.NoError(t, err)
	assert.Equal(t, "nightly", got.Suite)
}

func TestSchema_RejectsNonTerminalStatus(t *testing.T) {
	s := createTestStore(t)
	_, err := s.db.Exec(`INSERT INTO runs (id, started_at) VALUES ('r', 1)`)
	require.NoError(t, err)

	_, err = s.db.Exec(`INSERT INTO results (run_id, seq, name, status) VALUES ('r', 0, 'im', 'RUNNING')`)
	assert.Error(t, err)
}

func TestSchema_ResultsRequireRun(t *testing.T) {
	s := createTestStore(t)

	_, err := s.db.Exec(`INSERT INTO results (run_id, seq, name, status) VALUES ('missing', 0, 'im', 'PASSED')`)
	assert.Error(t, err, "foreign key must reject results without a run")
}

// Helper functions

func getTableColumns(t *testing.T, db *sql.DB, table string) []string {
	t.Helper()

	rows, err := db.Query("PRAGMA table_info(" + table + ")")
	if err != nil {
		t.Fatalf("failed to get table info for %q: %v", table, err)
	}
	defer rows.Close()

	var columns []string
	for rows.Next() {
		var cid int
		var name, ctype string
		var notnull, pk int
		var dfltValue any
		if err := rows.Scan(&cid, &name, &ctype, &notnull, &dfltValue, &pk); err != nil {
			t.Fatalf("failed to scan column info: %v", err)
		}
		columns = append(columns, name)
	}
	return columns
}

func getTableIndexes(t *testing.T, db *sql.DB, table string) []string {
	t.Helper()

	rows, err := db.Query("SELECT name FROM sqlite_master WHERE type='index' AND tbl_name=?", table)
	if err != nil {
		t.Fatalf("failed to get indexes for %q: %v", table, err)
	}
	defer rows.Close()

	var indexes []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			t.Fatalf("failed to scan index name: %v", err)
		}
		indexes = append(indexes, name)
	}
	return indexes
}
