// Package channel implements the one-way command channel to the camera
// daemon: a named pipe that accepts one textual command per line.
//
// There is no acknowledgement. A successful Send only means the line reached
// the pipe; callers wait a fixed interval before relying on any side effect.
package channel

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"golang.org/x/sys/unix"
)

// ErrUnavailable matches every UnavailableError via errors.Is.
var ErrUnavailable = errors.New("control channel unavailable")

// UnavailableError reports that the channel path is missing, not writable, or
// has no reader attached within the open timeout.
type UnavailableError struct {
	Path string
	Err  error
}

func (e *UnavailableError) Error() string {
	return fmt.Sprintf("control channel %s unavailable: %v", e.Path, e.Err)
}

func (e *UnavailableError) Unwrap() error {
	return e.Err
}

// Is lets errors.Is(err, ErrUnavailable) match.
func (e *UnavailableError) Is(target error) bool {
	return target == ErrUnavailable
}

// Channel writes commands to the daemon's control path.
type Channel struct {
	path          string
	openTimeout   time.Duration
	retryInterval time.Duration
	logger        *slog.Logger
}

// Option configures a Channel.
type Option func(*Channel)

// WithOpenTimeout bounds how long Send waits for the daemon to open the read
// end of the pipe.
func WithOpenTimeout(d time.Duration) Option {
	return func(c *Channel) { c.openTimeout = d }
}

// WithLogger sets the logger used to narrate sent commands.
func WithLogger(l *slog.Logger) Option {
	return func(c *Channel) { c.logger = l }
}

// New creates a channel bound to path.
func New(path string, opts ...Option) *Channel {
	c := &Channel{
		path:          path,
		openTimeout:   5 * time.Second,
		retryInterval: 50 * time.Millisecond,
		logger:        slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Path returns the control path.
func (c *Channel) Path() string {
	return c.path
}

// Send opens the channel, writes cmd as one line and closes it.
func (c *Channel) Send(ctx context.Context, cmd Command) error {
	line, err := cmd.Encode()
	if err != nil {
		return err
	}

	c.logger.Info("sending command", "command", cmd.String(), "channel", c.path)

	f, err := c.open(ctx)
	if err != nil {
		return err
	}
	if _, err := f.Write(line); err != nil {
		f.Close()
		return &UnavailableError{Path: c.path, Err: err}
	}
	if err := f.Close(); err != nil {
		return &UnavailableError{Path: c.path, Err: err}
	}
	return nil
}

// open opens the path for writing. A FIFO is opened non-blocking so a daemon
// that never opens its read end cannot hang the run; ENXIO (no reader yet) is
// retried until the open timeout passes.
func (c *Channel) open(ctx context.Context) (*os.File, error) {
	info, err := os.Stat(c.path)
	if err != nil {
		return nil, &UnavailableError{Path: c.path, Err: err}
	}

	fifo := info.Mode()&os.ModeNamedPipe != 0
	flags := os.O_WRONLY | os.O_APPEND
	if fifo {
		flags = os.O_WRONLY | unix.O_NONBLOCK
	}

	deadline := time.Now().Add(c.openTimeout)
	for {
		f, err := os.OpenFile(c.path, flags, 0)
		if err == nil {
			return f, nil
		}
		if !fifo || !errors.Is(err, unix.ENXIO) {
			return nil, &UnavailableError{Path: c.path, Err: err}
		}
		if !time.Now().Before(deadline) {
			return nil, &UnavailableError{
				Path: c.path,
				Err:  fmt.Errorf("no reader attached after %s", c.openTimeout),
			}
		}

		select {
		case <-ctx.Done():
			return nil, &UnavailableError{Path: c.path, Err: ctx.Err()}
		case <-time.After(c.retryInterval):
		}
	}
}

// Check reports whether path exists and can carry commands (a named pipe or a
// writable regular file).
func Check(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return &UnavailableError{Path: path, Err: err}
	}
	if info.IsDir() {
		return &UnavailableError{Path: path, Err: errors.New("is a directory")}
	}
	if err := unix.Access(path, unix.W_OK); err != nil {
		return &UnavailableError{Path: path, Err: err}
	}
	return nil
}

// Ensure creates a named pipe at path with the given permissions if nothing
// exists there yet. An existing named pipe is left untouched; any other file
// type is an error.
func Ensure(path string, perm os.FileMode) error {
	info, err := os.Stat(path)
	switch {
	case err == nil:
		if info.Mode()&os.ModeNamedPipe == 0 {
			return fmt.Errorf("%s exists and is not a named pipe", path)
		}
		return nil
	case !errors.Is(err, os.ErrNotExist):
		return fmt.Errorf("stat %s: %w", path, err)
	}

	if err := unix.Mkfifo(path, uint32(perm.Perm())); err != nil {
		return fmt.Errorf("create fifo %s: %w", path, err)
	}
	// mkfifo honors the umask; the daemon usually runs as another user.
	if err := os.Chmod(path, perm.Perm()); err != nil {
		return fmt.Errorf("chmod fifo %s: %w", path, err)
	}
	return nil
}
