package harness

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/camconform/internal/artifact"
	"github.com/roach88/camconform/internal/channel"
	"github.com/roach88/camconform/internal/config"
	"github.com/roach88/camconform/internal/testutil"
)

type fixture struct {
	env     *Env
	daemon  *testutil.Daemon
	sleeper *testutil.Sleeper
	out     *bytes.Buffer
	paths   config.Paths
	cfg     config.Config
}

func newFixture(t *testing.T, mutate ...func(*config.Config)) *fixture {
	t.Helper()
	paths := testutil.Paths(t)
	cfg := config.Default()
	cfg.Paths = paths
	for _, m := range mutate {
		m(&cfg)
	}

	d := testutil.NewDaemon(t, paths)
	sleeper := &testutil.Sleeper{OnSleep: d.Drain}
	opts := []artifact.Option{artifact.WithSleeper(sleeper)}
	if cfg.Waits.Poll {
		opts = append(opts, artifact.WithPolling(cfg.Waits.PollInterval))
	}
	ch := channel.New(paths.Channel, channel.WithOpenTimeout(time.Second))
	env := NewEnv(cfg, ch, artifact.NewAccessor(paths, opts...), sleeper)
	out := &bytes.Buffer{}
	env.Out = out

	return &fixture{env: env, daemon: d, sleeper: sleeper, out: out, paths: paths, cfg: cfg}
}

func (f *fixture) run(t *testing.T, names ...string) []Result {
	t.Helper()
	cases := Registry()
	if len(names) > 0 {
		var err error
		cases, err = Select(names)
		require.NoError(t, err)
	}
	return NewRunner(f.env, nil).Run(context.Background(), cases)
}

func byName(results []Result) map[string]Result {
	m := make(map[string]Result, len(results))
	for _, r := range results {
		m[r.Name] = r
	}
	return m
}

func TestRunner_AllCasesPassAgainstFakeDaemon(t *testing.T) {
	f := newFixture(t)

	results := f.run(t)

	require.Len(t, results, 19)
	names := make([]string, len(results))
	for i, r := range results {
		names[i] = r.Name
		assert.Equal(t, Passed, r.Status, "%s: %s", r.Name, r.Message)
		assert.Equal(t, "Test passed", r.Message)
	}
	assert.Equal(t, Names(), names)
	assert.Empty(t, f.daemon.Errors())

	// Every changed parameter is back at its default.
	s := f.daemon.State()
	assert.Equal(t, 50, s.Brightness)
	assert.Equal(t, 0, s.Contrast)
	assert.Equal(t, 0, s.Saturation)
	assert.Equal(t, 0, s.Sharpness)
	assert.Equal(t, "auto", s.WhiteBalance)
	assert.Equal(t, 0, s.Rotation)
	assert.Equal(t, 0, s.Flip)
	assert.Equal(t, 0, s.Exposure)
	assert.Equal(t, "average", s.Metering)
	assert.Equal(t, 100, s.Quality)
	assert.Equal(t, 100, s.ISO)
	assert.Equal(t, [2]int{100, 100}, s.AnalogGain)
	assert.Equal(t, f.cfg.Defaults.Bitrate, s.Bitrate)
	assert.Equal(t, testutil.VideoParams(f.cfg.Defaults.Video), s.Video)
	assert.Equal(t, testutil.PreviewParams(f.cfg.Defaults.Preview), s.Preview)
	assert.False(t, s.Recording)
	assert.False(t, s.Motion)
}

func TestRunner_RegistryTwiceSameVerdicts(t *testing.T) {
	f := newFixture(t)

	statuses := func(results []Result) map[string]Status {
		m := make(map[string]Status, len(results))
		for _, r := range results {
			m[r.Name] = r.Status
		}
		return m
	}

	first := statuses(f.run(t))
	afterFirst := f.daemon.State()
	second := statuses(f.run(t))
	afterSecond := f.daemon.State()

	assert.Len(t, first, 19)
	assert.Equal(t, first, second)
	assert.Equal(t, afterFirst, afterSecond)
	assert.Empty(t, f.daemon.Errors())
}

func TestRunner_StreamSettingsRestored(t *testing.T) {
	f := newFixture(t, func(c *config.Config) {
		c.Defaults.Preview = config.PreviewDefaults{Quality: 30, Width: 80, Divider: 2}
		c.Defaults.Bitrate = 12000000
	})

	results := f.run(t, "pv", "px", "bi")

	for _, r := range results {
		assert.True(t, r.Passed(), "%s: %s", r.Name, r.Message)
	}
	assert.Equal(t, []string{
		"pv 100 640 1", "pv 30 80 2",
		"px 1280 720 30 30 640 480 1", "ca 1 5", "ca 0", "px 1920 1080 25 25 1920 1080 1",
		"bi 5000000", "ca 1 5", "ca 0", "bi 12000000",
	}, f.daemon.Commands())

	s := f.daemon.State()
	assert.Equal(t, testutil.PreviewParams{Quality: 30, Width: 80, Divider: 2}, s.Preview)
	assert.Equal(t, testutil.VideoParams(f.cfg.Defaults.Video), s.Video)
	assert.Equal(t, 12000000, s.Bitrate)
}

func TestRunner_VerdictsAttached(t *testing.T) {
	f := newFixture(t)

	results := byName(f.run(t, "br", "wb", "sh"))

	require.Len(t, results["br"].Verdicts, 1)
	assert.Equal(t, "brightness", results["br"].Verdicts[0].Analyzer)
	assert.True(t, results["br"].Verdicts[0].Detected)
	require.Len(t, results["wb"].Verdicts, 1)
	require.Len(t, results["sh"].Verdicts, 1)
}

func TestRunner_IneffectiveCommandFails(t *testing.T) {
	tests := []struct {
		op      string
		message string
	}{
		{"br", "Brightness change did not affect the image as expected."},
		{"co", "Contrast change did not affect the image as expected."},
		{"sa", "Saturation change did not affect the image as expected."},
		{"sh", "Sharpness change did not affect the image as expected."},
		{"wb", "White balance change did not affect the image as expected."},
	}
	for _, tt := range tests {
		t.Run(tt.op, func(t *testing.T) {
			f := newFixture(t)
			f.daemon.Disable(tt.op)

			results := f.run(t, "im", tt.op)

			require.Len(t, results, 2)
			assert.True(t, results[0].Passed())
			assert.Equal(t, Failed, results[1].Status)
			assert.Equal(t, tt.message, results[1].Message)
			require.Len(t, results[1].Verdicts, 1)
			assert.False(t, results[1].Verdicts[0].Detected)
		})
	}
}

func TestRunner_RestoreSentAfterFailure(t *testing.T) {
	f := newFixture(t)
	f.daemon.Disable("wb")

	results := f.run(t, "wb")

	require.Len(t, results, 1)
	assert.Equal(t, Failed, results[0].Status)
	assert.Equal(t, []string{"im", "wb cloudy", "im", "wb auto"}, f.daemon.Commands())
}

func TestRunner_MissingCaptureFailsDependentCases(t *testing.T) {
	f := newFixture(t)
	f.daemon.Disable("im")

	results := byName(f.run(t))

	assert.Equal(t, "Failed to capture image.", results["im"].Message)
	assert.Equal(t, "Failed to capture image for rotation verification.", results["ro"].Message)
	assert.Equal(t, "Failed to capture default image for white balance test.", results["wb"].Message)
	assert.Equal(t, "Failed to capture default image for brightness test.", results["br"].Message)
	assert.Equal(t, "Failed to capture image.", results["qu"].Message)

	// Cases that never read a still are unaffected.
	for _, name := range []string{"ca", "pv", "sc", "md", "px", "bi"} {
		assert.True(t, results[name].Passed(), "%s: %s", name, results[name].Message)
	}
}

func TestRunner_MissingVideoFails(t *testing.T) {
	f := newFixture(t)
	f.daemon.Disable("ca")

	results := byName(f.run(t, "ca", "px", "bi"))

	assert.Equal(t, "Failed to record video.", results["ca"].Message)
	assert.Equal(t, "Failed to record video at new resolution.", results["px"].Message)
	assert.Equal(t, "Failed to record video.", results["bi"].Message)
}

func TestRunner_MissingPreviewFails(t *testing.T) {
	f := newFixture(t)
	f.daemon.Disable("pv")

	results := f.run(t, "pv")

	assert.Equal(t, "Failed to update preview image.", results[0].Message)
}

func TestRunner_MotionOutputAdvisoryByDefault(t *testing.T) {
	f := newFixture(t)

	results := f.run(t, "md")

	assert.True(t, results[0].Passed())
	assert.Contains(t, f.out.String(), "No motion detected or motion output not generated.")
	assert.Equal(t, []string{"md 1", "md 0"}, f.daemon.Commands())
}

func TestRunner_MotionOutputRequired(t *testing.T) {
	f := newFixture(t, func(c *config.Config) { c.Motion.RequireOutput = true })

	results := f.run(t, "md")
	assert.Equal(t, "No motion detected or motion output not generated.", results[0].Message)

	f.daemon.MotionDetected = true
	results = f.run(t, "md")
	assert.True(t, results[0].Passed())
}

func TestRunner_WaitWindows(t *testing.T) {
	f := newFixture(t)

	f.run(t, "im")
	assert.Equal(t, []time.Duration{2 * time.Second}, f.sleeper.Slept())

	f.sleeper.Reset()
	f.run(t, "ca")
	// Record window, then the stop wait after "ca 0".
	assert.Equal(t, []time.Duration{6 * time.Second, 2 * time.Second}, f.sleeper.Slept())

	f.sleeper.Reset()
	f.run(t, "md")
	assert.Equal(t, []time.Duration{5 * time.Second, 10 * time.Second, 2 * time.Second}, f.sleeper.Slept())
}

func TestRunner_PollModeReturnsEarly(t *testing.T) {
	f := newFixture(t, func(c *config.Config) {
		c.Waits.Poll = true
		c.Waits.PollInterval = 250 * time.Millisecond
	})

	results := f.run(t, "im")

	assert.True(t, results[0].Passed())
	assert.Less(t, f.sleeper.Total(), 2*time.Second)
}

func TestRunner_PollModeWaitsOutRecording(t *testing.T) {
	f := newFixture(t, func(c *config.Config) {
		c.Waits.Poll = true
		c.Waits.PollInterval = 250 * time.Millisecond
	})

	results := f.run(t, "ca")

	assert.True(t, results[0].Passed(), results[0].Message)
	// The full recording length passes before the file is polled, and
	// "ca 0" only follows after that.
	assert.Equal(t, []time.Duration{5 * time.Second, 250 * time.Millisecond, 2 * time.Second}, f.sleeper.Slept())
	assert.Equal(t, []string{"ca 1 5", "ca 0"}, f.daemon.Commands())
}

func TestRunner_Narration(t *testing.T) {
	f := newFixture(t)

	f.run(t, "br", "bi")

	out := f.out.String()
	assert.Contains(t, out, "Testing 'br' command (set brightness)...")
	assert.Contains(t, out, "Sending command: br 70")
	assert.Contains(t, out, "Brightness change detected successfully.")
	assert.Contains(t, out, "Set bitrate to 5,000,000 bps")
	assert.Contains(t, out, "'bi' command test completed.")
}

func TestRunner_PanicBecomesFailure(t *testing.T) {
	f := newFixture(t)
	cases := []TestCase{
		{Name: "boom", Run: func(ctx context.Context, env *Env) error {
			env.Restore("br", 50)
			panic("boom")
		}},
		{Name: "after", Run: func(ctx context.Context, env *Env) error { return nil }},
	}

	results := NewRunner(f.env, nil).Run(context.Background(), cases)

	require.Len(t, results, 2)
	assert.Equal(t, Failed, results[0].Status)
	assert.Equal(t, "panic: boom", results[0].Message)
	assert.True(t, results[1].Passed())
	// The restore registered before the panic was still sent.
	assert.Equal(t, []string{"br 50"}, f.daemon.Commands())
}

func TestRunner_RestoresRunNewestFirst(t *testing.T) {
	f := newFixture(t)
	cases := []TestCase{{Name: "pair", Run: func(ctx context.Context, env *Env) error {
		env.Restore("br", 50)
		env.Restore("co", 0)
		return nil
	}}}

	NewRunner(f.env, nil).Run(context.Background(), cases)

	assert.Equal(t, []string{"co 0", "br 50"}, f.daemon.Commands())
}

type failingSender struct {
	inner Sender
	fail  string
}

func (s failingSender) Send(ctx context.Context, cmd channel.Command) error {
	if cmd.String() == s.fail {
		return &channel.UnavailableError{Path: "FIFO", Err: errors.New("broken pipe")}
	}
	return s.inner.Send(ctx, cmd)
}

func TestRunner_RestoreErrorFailsPassingCase(t *testing.T) {
	f := newFixture(t)
	f.env.Channel = failingSender{inner: f.env.Channel, fail: "br 50"}

	results := f.run(t, "br")

	require.Len(t, results, 1)
	assert.Equal(t, Failed, results[0].Status)
	assert.Contains(t, results[0].Message, `restore "br 50"`)
}

func TestRunner_ChannelErrorReported(t *testing.T) {
	f := newFixture(t)
	f.env.Channel = channel.New(f.paths.Channel+".missing", channel.WithOpenTimeout(10*time.Millisecond))

	results := f.run(t, "im", "sc")

	for _, r := range results {
		assert.Equal(t, Failed, r.Status)
		assert.Contains(t, r.Message, "unavailable")
	}
}

func TestRunner_CancelStopsAfterCurrentCase(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ran := 0
	body := func(ctx context.Context, env *Env) error {
		ran++
		cancel()
		return nil
	}
	cases := []TestCase{{Name: "a", Run: body}, {Name: "b", Run: body}}

	results := NewRunner(f.env, nil).Run(ctx, cases)

	assert.Len(t, results, 1)
	assert.Equal(t, 1, ran)
}

func TestRunner_Observer(t *testing.T) {
	f := newFixture(t)
	var seen []string
	r := NewRunner(f.env, nil)
	r.Observer = func(res Result) { seen = append(seen, res.Name+":"+res.Status.String()) }

	r.Run(context.Background(), []TestCase{
		{Name: "ok", Run: func(context.Context, *Env) error { return nil }},
		{Name: "bad", Run: func(context.Context, *Env) error { return errors.New("nope") }},
	})

	assert.Equal(t, []string{"ok:PASSED", "bad:FAILED"}, seen)
}

func TestResult_Transitions(t *testing.T) {
	r := NewResult("x")
	assert.Error(t, r.transition(Passed))
	require.NoError(t, r.transition(Running))
	assert.Error(t, r.transition(Pending))
	require.NoError(t, r.transition(Failed))
	assert.Error(t, r.transition(Passed))
	assert.False(t, r.Passed())
}

func TestStatus_StringAndParse(t *testing.T) {
	assert.Equal(t, "PASSED", Passed.String())
	assert.Equal(t, "FAILED", Failed.String())
	s, err := ParseStatus("FAILED")
	require.NoError(t, err)
	assert.Equal(t, Failed, s)
	_, err = ParseStatus("RUNNING")
	assert.Error(t, err)
}
