package testutil

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"testing"

	"github.com/disintegration/imaging"
	"golang.org/x/sys/unix"

	"github.com/roach88/camconform/internal/channel"
	"github.com/roach88/camconform/internal/config"
)

// Paths returns daemon paths rooted in a fresh temp directory. The preview
// directory is created; no artifact exists yet.
func Paths(t testing.TB) config.Paths {
	t.Helper()
	dir := t.TempDir()
	must(t, os.MkdirAll(filepath.Join(dir, "mjpeg"), 0o755))
	return config.Paths{
		Channel: filepath.Join(dir, "FIFO"),
		Still:   filepath.Join(dir, "cam.jpg"),
		Video:   filepath.Join(dir, "cam.mp4"),
		Preview: filepath.Join(dir, "mjpeg", "cam.jpg"),
		Motion:  filepath.Join(dir, "motion_output.txt"),
	}
}

// Daemon is an in-process stand-in for rpicam-mjpeg. It owns the read end of
// a real FIFO and applies each command to a State, rendering artifacts from
// Render.
//
// Commands are processed only when Drain is called, so tests decide exactly
// when the daemon "catches up". Pair it with Sleeper.OnSleep.
type Daemon struct {
	mu       sync.Mutex
	paths    config.Paths
	fd       int
	pending  []byte
	state    State
	commands []string
	disabled map[string]bool
	errs     []error

	// MotionDetected makes "md 1" write the motion output file.
	MotionDetected bool
}

// NewDaemon creates the FIFO at paths.Channel and opens its read end. The
// FIFO is opened read-write so writers never see ENXIO and reads never report
// EOF between writers. The daemon is closed on test cleanup.
func NewDaemon(t testing.TB, paths config.Paths) *Daemon {
	t.Helper()
	must(t, channel.Ensure(paths.Channel, 0o777))
	fd, err := unix.Open(paths.Channel, unix.O_RDWR|unix.O_NONBLOCK|unix.O_CLOEXEC, 0)
	must(t, err)

	d := &Daemon{
		paths:    paths,
		fd:       fd,
		state:    DefaultState(),
		disabled: make(map[string]bool),
	}
	t.Cleanup(func() { _ = d.Close() })
	return d
}

// Close releases the FIFO read end.
func (d *Daemon) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.fd < 0 {
		return nil
	}
	err := unix.Close(d.fd)
	d.fd = -1
	return err
}

// Disable makes the daemon accept op but ignore it, simulating a command that
// has no effect.
func (d *Daemon) Disable(op string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.disabled[op] = true
}

// Drain reads every command currently buffered in the FIFO and applies it.
// Errors from applying commands are collected and reported by Errors.
func (d *Daemon) Drain() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.fd < 0 {
		return
	}

	buf := make([]byte, 4096)
	for {
		n, err := unix.Read(d.fd, buf)
		if n > 0 {
			d.pending = append(d.pending, buf[:n]...)
		}
		if err != nil || n <= 0 {
			if err != nil && !errors.Is(err, unix.EAGAIN) {
				d.errs = append(d.errs, fmt.Errorf("read fifo: %w", err))
			}
			break
		}
	}

	for {
		i := bytes.IndexByte(d.pending, '\n')
		if i < 0 {
			return
		}
		line := string(d.pending[:i])
		d.pending = d.pending[i+1:]
		d.commands = append(d.commands, line)
		if err := d.apply(line); err != nil {
			d.errs = append(d.errs, err)
		}
	}
}

// Commands returns every line received so far.
func (d *Daemon) Commands() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]string, len(d.commands))
	copy(out, d.commands)
	return out
}

// State returns the current parameter state.
func (d *Daemon) State() State {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.state
}

// Errors returns problems encountered while applying commands.
func (d *Daemon) Errors() []error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]error(nil), d.errs...)
}

func (d *Daemon) apply(line string) error {
	cmd, err := channel.Parse(line)
	if err != nil {
		return err
	}
	if d.disabled[cmd.Op] {
		return nil
	}

	s := &d.state
	switch cmd.Op {
	case "im":
		return d.capture()
	case "br":
		return intArg(cmd, 0, &s.Brightness)
	case "co":
		return intArg(cmd, 0, &s.Contrast)
	case "sa":
		return intArg(cmd, 0, &s.Saturation)
	case "sh":
		return intArg(cmd, 0, &s.Sharpness)
	case "ro":
		return intArg(cmd, 0, &s.Rotation)
	case "fl":
		return intArg(cmd, 0, &s.Flip)
	case "ec":
		return intArg(cmd, 0, &s.Exposure)
	case "qu":
		return intArg(cmd, 0, &s.Quality)
	case "bi":
		return intArg(cmd, 0, &s.Bitrate)
	case "is":
		return intArg(cmd, 0, &s.ISO)
	case "ag":
		if err := intArg(cmd, 0, &s.AnalogGain[0]); err != nil {
			return err
		}
		return intArg(cmd, 1, &s.AnalogGain[1])
	case "wb":
		return strArg(cmd, 0, &s.WhiteBalance)
	case "mm":
		return strArg(cmd, 0, &s.Metering)
	case "pv":
		for i, dst := range []*int{&s.Preview.Quality, &s.Preview.Width, &s.Preview.Divider} {
			if err := intArg(cmd, i, dst); err != nil {
				return err
			}
		}
		return d.writePreview()
	case "px":
		v := &s.Video
		for i, dst := range []*int{&v.Width, &v.Height, &v.FPS, &v.BoxFPS, &v.ImageWidth, &v.ImageHeight, &v.Divider} {
			if err := intArg(cmd, i, dst); err != nil {
				return err
			}
		}
		return nil
	case "ca":
		return d.record(cmd)
	case "md":
		var on int
		if err := intArg(cmd, 0, &on); err != nil {
			return err
		}
		s.Motion = on == 1
		if s.Motion && d.MotionDetected {
			return os.WriteFile(d.paths.Motion, []byte("motion detected\n"), 0o644)
		}
		return nil
	case "sc":
		return nil
	default:
		return fmt.Errorf("unknown command %q", cmd.Op)
	}
}

func (d *Daemon) capture() error {
	img := Render(d.state, SceneWidth, SceneHeight)
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.JPEG, imaging.JPEGQuality(d.state.Quality)); err != nil {
		return err
	}
	if err := writeAtomic(d.paths.Still, buf.Bytes()); err != nil {
		return err
	}
	return d.writePreview()
}

func (d *Daemon) writePreview() error {
	img := Render(d.state, SceneWidth, SceneHeight)
	if w := d.state.Preview.Width; w > 0 && w != SceneWidth {
		img = imaging.Resize(img, w, 0, imaging.Box)
	}
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.JPEG, imaging.JPEGQuality(d.state.Preview.Quality)); err != nil {
		return err
	}
	return writeAtomic(d.paths.Preview, buf.Bytes())
}

// record starts or stops a recording. A started recording writes its whole
// payload immediately: one byte per 8000 bits of bitrate per second of
// requested duration, behind an mp4 ftyp header.
func (d *Daemon) record(cmd channel.Command) error {
	var on int
	if err := intArg(cmd, 0, &on); err != nil {
		return err
	}
	if on != 1 {
		d.state.Recording = false
		return nil
	}
	if d.state.Recording {
		return fmt.Errorf("recording already active")
	}
	seconds := 1
	if len(cmd.Args) > 1 {
		if err := intArg(cmd, 1, &seconds); err != nil {
			return err
		}
	}
	d.state.Recording = true

	size := d.state.Bitrate / 8000 * seconds
	if size < 1 {
		size = 1
	}
	payload := append([]byte("\x00\x00\x00\x18ftypmp42"), bytes.Repeat([]byte{0}, size)...)
	return writeAtomic(d.paths.Video, payload)
}

func intArg(cmd channel.Command, i int, dst *int) error {
	if i >= len(cmd.Args) {
		return fmt.Errorf("%s: missing argument %d", cmd.Op, i+1)
	}
	v, err := strconv.Atoi(cmd.Args[i])
	if err != nil {
		return fmt.Errorf("%s: argument %d: %w", cmd.Op, i+1, err)
	}
	*dst = v
	return nil
}

func strArg(cmd channel.Command, i int, dst *string) error {
	if i >= len(cmd.Args) {
		return fmt.Errorf("%s: missing argument %d", cmd.Op, i+1)
	}
	*dst = cmd.Args[i]
	return nil
}

func writeAtomic(path string, data []byte) error {
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

func must(t testing.TB, err error) {
	t.Helper()
	if err != nil {
		t.Fatalf("testutil: %v", err)
	}
}
