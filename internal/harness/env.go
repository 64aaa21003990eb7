package harness

import (
	"context"
	"fmt"
	"image"
	"io"
	"log/slog"
	"time"

	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/roach88/camconform/internal/analyze"
	"github.com/roach88/camconform/internal/artifact"
	"github.com/roach88/camconform/internal/channel"
	"github.com/roach88/camconform/internal/config"
	"github.com/roach88/camconform/internal/wait"
)

// Sender delivers one command to the daemon.
type Sender interface {
	Send(ctx context.Context, cmd channel.Command) error
}

// Env is everything a test case may touch. One Env is shared by all cases of
// a run; the Runner clears per-case state between cases.
type Env struct {
	Channel    Sender
	Artifacts  *artifact.Accessor
	Sleeper    wait.Sleeper
	Waits      config.Waits
	Thresholds config.Thresholds
	Motion     config.MotionConfig
	Defaults   config.Defaults

	// Out receives human-readable progress narration. Nil discards it.
	Out    io.Writer
	Logger *slog.Logger

	restores []restore
	verdicts []analyze.Verdict
	printer  *message.Printer
}

type restore struct {
	cmd  channel.Command
	wait time.Duration
}

// NewEnv builds an Env from cfg around an already constructed channel and
// accessor.
func NewEnv(cfg config.Config, ch Sender, artifacts *artifact.Accessor, sleeper wait.Sleeper) *Env {
	return &Env{
		Channel:    ch,
		Artifacts:  artifacts,
		Sleeper:    sleeper,
		Waits:      cfg.Waits,
		Thresholds: cfg.Thresholds,
		Motion:     cfg.Motion,
		Defaults:   cfg.Defaults,
	}
}

func (e *Env) logger() *slog.Logger {
	if e.Logger == nil {
		return slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return e.Logger
}

// Sayf writes one line of narration. Numbers are grouped for readability.
func (e *Env) Sayf(format string, args ...any) {
	if e.Out == nil {
		return
	}
	if e.printer == nil {
		e.printer = message.NewPrinter(language.English)
	}
	e.printer.Fprintf(e.Out, format+"\n", args...)
}

// Say writes msg verbatim as one line of narration.
func (e *Env) Say(msg string) {
	if e.Out == nil {
		return
	}
	fmt.Fprintln(e.Out, msg)
}

// Send formats and sends one command.
func (e *Env) Send(ctx context.Context, op string, args ...any) error {
	return e.SendCommand(ctx, channel.Cmd(op, args...))
}

// SendCommand sends cmd as is.
func (e *Env) SendCommand(ctx context.Context, cmd channel.Command) error {
	e.Sayf("Sending command: %s", cmd)
	return e.Channel.Send(ctx, cmd)
}

// Apply sends a parameter command and waits for it to settle.
func (e *Env) Apply(ctx context.Context, op string, args ...any) error {
	if err := e.Send(ctx, op, args...); err != nil {
		return err
	}
	return e.Sleep(ctx, e.Waits.Settle)
}

// Sleep pauses for d.
func (e *Env) Sleep(ctx context.Context, d time.Duration) error {
	return e.Sleeper.Sleep(ctx, d)
}

// Restore registers a command that puts a parameter back. Restores run after
// the case body returns, whether it passed or not, in reverse order of
// registration, each followed by the settle wait.
func (e *Env) Restore(op string, args ...any) {
	e.RestoreWait(e.Waits.Settle, op, args...)
}

// RestoreWait is Restore with an explicit wait after the command.
func (e *Env) RestoreWait(d time.Duration, op string, args ...any) {
	e.restores = append(e.restores, restore{cmd: channel.Cmd(op, args...), wait: d})
}

// CaptureFile deletes the still, requests a new one and waits for it. It
// returns the size of the fresh capture.
func (e *Env) CaptureFile(ctx context.Context) (int64, error) {
	if err := e.Artifacts.Reset(artifact.Still); err != nil {
		return 0, err
	}
	if err := e.Send(ctx, "im"); err != nil {
		return 0, err
	}
	if err := e.Artifacts.Await(ctx, artifact.Still, e.Waits.Capture); err != nil {
		return 0, err
	}
	return e.Artifacts.SizeBytes(artifact.Still)
}

// CaptureImage is CaptureFile followed by a full decode.
func (e *Env) CaptureImage(ctx context.Context) (image.Image, error) {
	if _, err := e.CaptureFile(ctx); err != nil {
		return nil, err
	}
	return e.Artifacts.Load(artifact.Still)
}

// CaptureSnapshot captures a fresh still and computes its statistics.
func (e *Env) CaptureSnapshot(ctx context.Context) (analyze.Snapshot, error) {
	img, err := e.CaptureImage(ctx)
	if err != nil {
		return analyze.Snapshot{}, err
	}
	return analyze.TakeSnapshot(img), nil
}

// Record starts a recording of the given length, waits out the record window
// and checks the video. The recording is stopped by a registered restore.
func (e *Env) Record(ctx context.Context, seconds int) (int64, error) {
	if err := e.Artifacts.Reset(artifact.Video); err != nil {
		return 0, err
	}
	e.RestoreWait(e.Waits.Stop, "ca", 0)
	if err := e.Send(ctx, "ca", 1, seconds); err != nil {
		return 0, err
	}
	e.Sayf("Started video recording...")
	length := time.Duration(seconds) * time.Second
	if err := e.Artifacts.AwaitAfter(ctx, artifact.Video, length, e.Waits.Record); err != nil {
		return 0, err
	}
	return e.Artifacts.CheckVideo()
}

// Expect records v and fails with message when it was not detected.
func (e *Env) Expect(v analyze.Verdict, message string) error {
	e.verdicts = append(e.verdicts, v)
	e.logger().Debug("verdict", slog.String("verdict", v.String()))
	if !v.Detected {
		return newAssertionError(v, message)
	}
	return nil
}

// takeRestores returns and clears the registered restores, newest first.
func (e *Env) takeRestores() []restore {
	out := make([]restore, len(e.restores))
	for i, r := range e.restores {
		out[len(e.restores)-1-i] = r
	}
	e.restores = nil
	return out
}

func (e *Env) takeVerdicts() []analyze.Verdict {
	out := e.verdicts
	e.verdicts = nil
	return out
}
