// Package artifact reads the files the daemon writes: the still capture, the
// recorded video, the live preview frame and the motion-detection output.
//
// The daemon never signals completion, so every read is preceded by Await,
// which either sleeps for a fixed window or polls until the file looks
// finished.
package artifact

import (
	"context"
	"errors"
	"fmt"
	"image"
	"os"
	"time"

	// Registered image decoders. The daemon writes JPEG; the rest cover
	// test fixtures and alternative builds.
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/webp"

	"github.com/roach88/camconform/internal/config"
	"github.com/roach88/camconform/internal/wait"
)

// Kind identifies one of the daemon's output files.
type Kind int

const (
	Still Kind = iota
	Video
	Preview
	Motion
)

func (k Kind) String() string {
	switch k {
	case Still:
		return "still"
	case Video:
		return "video"
	case Preview:
		return "preview"
	case Motion:
		return "motion"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// IsImage reports whether the kind is decoded as an image.
func (k Kind) IsImage() bool {
	return k == Still || k == Preview
}

// Accessor binds artifact kinds to their configured paths.
type Accessor struct {
	paths        config.Paths
	sleeper      wait.Sleeper
	poll         bool
	pollInterval time.Duration
}

// Option configures an Accessor.
type Option func(*Accessor)

// WithSleeper replaces the real timer used by Await.
func WithSleeper(s wait.Sleeper) Option {
	return func(a *Accessor) { a.sleeper = s }
}

// WithPolling switches Await from a flat sleep to a bounded poll.
func WithPolling(interval time.Duration) Option {
	return func(a *Accessor) {
		a.poll = true
		a.pollInterval = interval
	}
}

// NewAccessor returns an Accessor for the given paths.
func NewAccessor(paths config.Paths, opts ...Option) *Accessor {
	a := &Accessor{
		paths:   paths,
		sleeper: wait.Timer{},
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Path returns the configured path for kind.
func (a *Accessor) Path(k Kind) string {
	switch k {
	case Still:
		return a.paths.Still
	case Video:
		return a.paths.Video
	case Preview:
		return a.paths.Preview
	case Motion:
		return a.paths.Motion
	default:
		return ""
	}
}

// Reset deletes the artifact so the next read observes a fresh capture.
// An absent file is not an error.
func (a *Accessor) Reset(k Kind) error {
	path := a.Path(k)
	if path == "" {
		return nil
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("reset %s artifact: %w", k, err)
	}
	return nil
}

// Exists reports whether the artifact is present as a regular file.
func (a *Accessor) Exists(k Kind) bool {
	info, err := os.Stat(a.Path(k))
	return err == nil && info.Mode().IsRegular()
}

// SizeBytes returns the artifact's size on disk.
func (a *Accessor) SizeBytes(k Kind) (int64, error) {
	path := a.Path(k)
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return 0, &MissingError{Kind: k, Path: path}
		}
		return 0, fmt.Errorf("stat %s artifact: %w", k, err)
	}
	return info.Size(), nil
}

// Load decodes an image artifact. The whole image is decoded, so a truncated
// file fails here rather than during analysis.
func (a *Accessor) Load(k Kind) (image.Image, error) {
	if !k.IsImage() {
		return nil, fmt.Errorf("%s artifact is not an image", k)
	}
	path := a.Path(k)
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, &MissingError{Kind: k, Path: path}
		}
		return nil, fmt.Errorf("open %s artifact: %w", k, err)
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		return nil, &DecodeError{Kind: k, Path: path, Err: err}
	}
	return img, nil
}

// CheckVideo verifies the recording exists and is non-empty. Container
// contents are not inspected.
func (a *Accessor) CheckVideo() (int64, error) {
	size, err := a.SizeBytes(Video)
	if err != nil {
		return 0, err
	}
	if size == 0 {
		return 0, &DecodeError{Kind: Video, Path: a.Path(Video), Err: errors.New("empty file")}
	}
	return size, nil
}

// Await waits for the daemon to finish writing kind.
//
// In fixed mode it sleeps for window. In poll mode it returns once the file
// exists with a non-zero size that did not change between two consecutive
// polls, or when window has elapsed. Either way the caller must still check
// the artifact; Await only fails when ctx is done.
func (a *Accessor) Await(ctx context.Context, k Kind, window time.Duration) error {
	if !a.poll {
		return a.sleeper.Sleep(ctx, window)
	}

	last := int64(-1)
	_, err := wait.Until(ctx, a.sleeper, window, a.pollInterval, func() bool {
		size, err := a.SizeBytes(k)
		if err != nil || size == 0 {
			last = -1
			return false
		}
		stable := size == last
		last = size
		return stable
	})
	return err
}

// AwaitAfter is Await for an artifact that cannot be complete before floor
// has passed, such as a recording of known length. It always sleeps floor
// first and polls only for the rest of window.
func (a *Accessor) AwaitAfter(ctx context.Context, k Kind, floor, window time.Duration) error {
	if !a.poll || floor >= window {
		return a.sleeper.Sleep(ctx, window)
	}
	if err := a.sleeper.Sleep(ctx, floor); err != nil {
		return err
	}
	return a.Await(ctx, k, window-floor)
}
