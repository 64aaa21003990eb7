package cli

import (
	"errors"
	"os"
	"os/signal"
	"path/filepath"
	"regexp"
	"strconv"
	"syscall"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"

	"github.com/roach88/camconform/internal/config"
)

// envHelperDaemon marks a re-executed test binary that stands in for the
// camera daemon. The pipe itself is served by the in-process fake daemon.
const envHelperDaemon = "CAMCONFORM_HELPER_DAEMON"

// TestMain lets the test binary double as the launched daemon. The daemon
// flags would be rejected by the test flag parser, so this runs before it.
func TestMain(m *testing.M) {
	if os.Getenv(envHelperDaemon) == "1" {
		sigs := make(chan os.Signal, 1)
		signal.Notify(sigs, syscall.SIGTERM)
		<-sigs
		os.Exit(0)
	}
	os.Exit(m.Run())
}

var daemonPID = regexp.MustCompile(`msg="daemon started".* pid=(\d+)`)

// launchedPID extracts the daemon's pid from the run's log output.
func launchedPID(t *testing.T, stderr string) int {
	t.Helper()
	m := daemonPID.FindStringSubmatch(stderr)
	require.NotNil(t, m, "no daemon start logged in:\n%s", stderr)
	pid, err := strconv.Atoi(m[1])
	require.NoError(t, err)
	return pid
}

func assertReaped(t *testing.T, pid int) {
	t.Helper()
	err := unix.Kill(pid, 0)
	assert.True(t, errors.Is(err, unix.ESRCH), "daemon pid %d still present: %v", pid, err)
}

// withLaunchedDaemon makes the run launch this test binary as the daemon.
func withLaunchedDaemon(t *testing.T, opts *RunOptions) {
	t.Helper()
	t.Setenv(config.EnvDaemon, os.Args[0])
	t.Setenv(envHelperDaemon, "1")
	opts.NoDaemon = false
}

func TestRun_LaunchedDaemonStoppedAfterRun(t *testing.T) {
	f := newRunFixture(t)
	opts := f.options("text")
	opts.Filter = "sc"
	withLaunchedDaemon(t, opts)

	out, stderr, err := execute(t, opts)
	require.NoError(t, err)
	assert.Contains(t, out, "sc: PASSED")
	assert.Equal(t, []string{"sc"}, f.daemon.Commands())

	assertReaped(t, launchedPID(t, stderr))
}

func TestRun_LaunchedDaemonStoppedOnReportFailure(t *testing.T) {
	f := newRunFixture(t)
	opts := f.options("text")
	opts.Filter = "sc"
	opts.Report = filepath.Join(t.TempDir(), "missing", "testing_report.txt")
	withLaunchedDaemon(t, opts)

	out, stderr, err := execute(t, opts)
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, out, "Error [E_REPORT]: failed to create report")
	assert.Empty(t, f.daemon.Commands(), "no case runs without a report")

	assertReaped(t, launchedPID(t, stderr))
}
