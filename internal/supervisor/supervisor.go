// Package supervisor launches the camera daemon as a child process and
// guarantees it is stopped and reaped exactly once.
package supervisor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"sync"
	"time"

	"golang.org/x/sys/unix"

	"github.com/roach88/camconform/internal/config"
)

// DefaultStopTimeout is how long Stop waits after SIGTERM before SIGKILL.
const DefaultStopTimeout = 5 * time.Second

// LaunchError reports that the daemon could not be started.
type LaunchError struct {
	Path string
	Err  error
}

func (e *LaunchError) Error() string {
	return fmt.Sprintf("launch %s: %v", e.Path, e.Err)
}

func (e *LaunchError) Unwrap() error {
	return e.Err
}

// Options describe how to launch the daemon.
type Options struct {
	// Path is the daemon executable.
	Path string
	// Args are appended after the path flags.
	Args []string
	// Paths supply the artifact and control flags.
	Paths config.Paths
	// Env is appended to the inherited environment.
	Env []string

	Stdout io.Writer
	Stderr io.Writer

	StopTimeout time.Duration
	Logger      *slog.Logger
}

// LaunchArgs returns the daemon's command-line arguments for opts.
func LaunchArgs(opts Options) []string {
	args := []string{
		"--video_path", opts.Paths.Video,
		"--image_path", opts.Paths.Still,
		"--preview_path", opts.Paths.Preview,
		"--control_file", opts.Paths.Channel,
	}
	return append(args, opts.Args...)
}

// Process is a running daemon.
type Process struct {
	cmd     *exec.Cmd
	done    chan struct{}
	waitErr error
	timeout time.Duration
	logger  *slog.Logger

	stopOnce sync.Once
	stopErr  error
}

// Start launches the daemon. The context is only consulted before launch;
// the process outlives it until Stop is called.
func Start(ctx context.Context, opts Options) (*Process, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if opts.Path == "" {
		return nil, &LaunchError{Path: opts.Path, Err: errors.New("no executable configured")}
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	timeout := opts.StopTimeout
	if timeout <= 0 {
		timeout = DefaultStopTimeout
	}

	cmd := exec.Command(opts.Path, LaunchArgs(opts)...)
	cmd.Stdout = opts.Stdout
	cmd.Stderr = opts.Stderr
	if len(opts.Env) > 0 {
		cmd.Env = append(os.Environ(), opts.Env...)
	}
	if err := cmd.Start(); err != nil {
		return nil, &LaunchError{Path: opts.Path, Err: err}
	}

	p := &Process{
		cmd:     cmd,
		done:    make(chan struct{}),
		timeout: timeout,
		logger:  logger,
	}
	go func() {
		p.waitErr = cmd.Wait()
		close(p.done)
	}()

	logger.Info("daemon started", slog.String("path", opts.Path), slog.Int("pid", cmd.Process.Pid))
	return p, nil
}

// PID returns the daemon's process id.
func (p *Process) PID() int {
	return p.cmd.Process.Pid
}

// Exited reports whether the daemon has exited and been reaped.
func (p *Process) Exited() bool {
	select {
	case <-p.done:
		return true
	default:
		return false
	}
}

// ExitErr returns the error from waiting on the process once it has exited.
func (p *Process) ExitErr() error {
	if !p.Exited() {
		return nil
	}
	return p.waitErr
}

// Stop terminates the daemon: SIGTERM, then SIGKILL if it is still running
// after the stop timeout. It blocks until the process is reaped and is safe
// to call more than once.
func (p *Process) Stop() error {
	p.stopOnce.Do(func() {
		p.stopErr = p.stop()
	})
	return p.stopErr
}

func (p *Process) stop() error {
	if p.Exited() {
		p.logger.Info("daemon already exited", slog.Any("status", p.waitErr))
		return nil
	}

	if err := p.cmd.Process.Signal(unix.SIGTERM); err != nil && !errors.Is(err, os.ErrProcessDone) {
		p.logger.Warn("sigterm failed", slog.Any("error", err))
	}

	timer := time.NewTimer(p.timeout)
	defer timer.Stop()
	select {
	case <-p.done:
		p.logger.Info("daemon terminated", slog.Int("pid", p.PID()))
		return nil
	case <-timer.C:
	}

	p.logger.Warn("daemon ignored SIGTERM, killing", slog.Int("pid", p.PID()), slog.Duration("timeout", p.timeout))
	if err := p.cmd.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
		return fmt.Errorf("kill daemon: %w", err)
	}
	<-p.done
	return nil
}
