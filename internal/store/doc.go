// Package store keeps the history of harness runs in SQLite.
//
// Each run gets a UUIDv7 id and one row per executed case holding its status,
// message, duration and analyzer verdicts. Two runs against the same daemon
// build can be diffed to check that results are repeatable.
//
// # Database Configuration
//
//   - WAL mode: readers (history, show) do not block a running harness
//   - synchronous=NORMAL
//   - busy_timeout=5000: wait for locks up to 5 seconds
//   - foreign_keys=ON: results are deleted with their run
//
// Results within a run are ordered by seq, the position of the case in the
// run. Runs are listed newest first by start time, then id.
package store
