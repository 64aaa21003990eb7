package harness

import (
	"context"
	"fmt"

	"github.com/roach88/camconform/internal/analyze"
	"github.com/roach88/camconform/internal/artifact"
	"github.com/roach88/camconform/internal/config"
)

// recordSeconds is the duration passed to "ca 1" by the recording cases.
const recordSeconds = 5

// Registry returns the conformance cases in execution order.
func Registry() []TestCase {
	return []TestCase{
		{Name: "im", Description: "capture image", Run: testImage},
		{Name: "ca", Description: "start/stop video recording", Run: testCapture},
		{Name: "pv", Description: "set preview parameters", Run: testPreview},
		{Name: "ro", Description: "set rotation", Run: smoke(rotation)},
		{Name: "fl", Description: "set flipping", Run: smoke(flipping)},
		{Name: "sc", Description: "set counts", Run: testCounts},
		{Name: "md", Description: "motion detection", Run: testMotion},
		{Name: "wb", Description: "set white balance", Run: testWhiteBalance},
		{Name: "mm", Description: "set metering mode", Run: smoke(metering)},
		{Name: "ec", Description: "set exposure compensation", Run: smoke(exposure)},
		{Name: "ag", Description: "set analog gain", Run: smoke(analogGain)},
		{Name: "is", Description: "set ISO", Run: smoke(iso)},
		{Name: "px", Description: "set video resolution", Run: testVideoResolution},
		{Name: "co", Description: "set contrast", Run: compare(contrast)},
		{Name: "br", Description: "set brightness", Run: compare(brightness)},
		{Name: "sa", Description: "set saturation", Run: compare(saturation)},
		{Name: "qu", Description: "set image quality", Run: testQuality},
		{Name: "bi", Description: "set bitrate", Run: testBitrate},
		{Name: "sh", Description: "set sharpness", Run: compare(sharpness)},
	}
}

var (
	rotation = smokeCase{
		op:    "ro",
		desc:  "set rotation",
		args:  []any{180},
		reset: []any{0},
		set:   "Set rotation to 180 degrees",
		fail:  "Failed to capture image for rotation verification.",
		ok:    "Captured image for rotation verification.",
	}
	flipping = smokeCase{
		op:    "fl",
		desc:  "set flipping",
		args:  []any{3},
		reset: []any{0},
		set:   "Set horizontal and vertical flip",
		fail:  "Failed to capture image for flipping verification.",
		ok:    "Captured image for flipping verification.",
	}
	metering = smokeCase{
		op:    "mm",
		desc:  "set metering mode",
		args:  []any{"spot"},
		reset: []any{"average"},
		set:   "Set metering mode to 'spot'",
		fail:  "Failed to capture image for metering mode verification.",
		ok:    "Captured image for metering mode verification.",
	}
	exposure = smokeCase{
		op:    "ec",
		desc:  "set exposure compensation",
		args:  []any{2},
		reset: []any{0},
		set:   "Set exposure compensation to +2",
		fail:  "Failed to capture image for exposure compensation verification.",
		ok:    "Captured image for exposure compensation verification.",
	}
	analogGain = smokeCase{
		op:    "ag",
		desc:  "set analog gain",
		args:  []any{150, 150},
		reset: []any{100, 100},
		set:   "Set analog gain to red=150%, blue=150%",
		fail:  "Failed to capture image for analog gain verification.",
		ok:    "Captured image for analog gain verification.",
	}
	iso = smokeCase{
		op:    "is",
		desc:  "set ISO",
		args:  []any{800},
		reset: []any{100},
		set:   "Set ISO to 800",
		fail:  "Failed to capture image for ISO verification.",
		ok:    "Captured image for ISO verification.",
	}
)

var (
	contrast = compareCase{
		op:          "co",
		desc:        "set contrast",
		subject:     "Contrast",
		baseline:    []any{0},
		args:        []any{50},
		reset:       []any{0},
		set:         "Set contrast to +50",
		failBefore:  "Failed to capture default image for contrast test.",
		failAfter:   "Failed to capture image with increased contrast.",
		failVerdict: "Contrast change did not affect the image as expected.",
		analyze: func(th config.Thresholds, b, a analyze.Snapshot) (analyze.Verdict, error) {
			return analyze.Contrast(b, a, th.Contrast), nil
		},
	}
	brightness = compareCase{
		op:          "br",
		desc:        "set brightness",
		subject:     "Brightness",
		args:        []any{70},
		reset:       []any{50},
		set:         "Set brightness to 70%",
		failBefore:  "Failed to capture default image for brightness test.",
		failAfter:   "Failed to capture image with increased brightness.",
		failVerdict: "Brightness change did not affect the image as expected.",
		analyze: func(th config.Thresholds, b, a analyze.Snapshot) (analyze.Verdict, error) {
			return analyze.Brightness(b, a, th.Brightness), nil
		},
	}
	saturation = compareCase{
		op:          "sa",
		desc:        "set saturation",
		subject:     "Saturation",
		args:        []any{-50},
		reset:       []any{0},
		set:         "Set saturation to -50",
		failBefore:  "Failed to capture default image for saturation test.",
		failAfter:   "Failed to capture image with decreased saturation.",
		failVerdict: "Saturation change did not affect the image as expected.",
		analyze: func(th config.Thresholds, b, a analyze.Snapshot) (analyze.Verdict, error) {
			return analyze.Saturation(b, a, th.Saturation), nil
		},
	}
	sharpness = compareCase{
		op:          "sh",
		desc:        "set sharpness",
		subject:     "Sharpness",
		baseline:    []any{0},
		args:        []any{50},
		reset:       []any{0},
		set:         "Set sharpness to +50",
		failBefore:  "Failed to capture default image for sharpness test.",
		failAfter:   "Failed to capture image with increased sharpness.",
		failVerdict: "Sharpness change did not affect the image as expected.",
		analyze: func(th config.Thresholds, b, a analyze.Snapshot) (analyze.Verdict, error) {
			return analyze.Sharpness(b, a, th.Sharpness)
		},
	}
)

func intro(env *Env, op, description string) {
	env.Sayf("Testing '%s' command (%s)...", op, description)
}

func done(env *Env, op string) {
	env.Sayf("'%s' command test completed.\n", op)
}

func testImage(ctx context.Context, env *Env) error {
	intro(env, "im", "capture image")
	if _, err := env.CaptureImage(ctx); err != nil {
		return fail("Failed to capture image.", err)
	}
	env.Say("Image captured successfully.")
	done(env, "im")
	return nil
}

func testCapture(ctx context.Context, env *Env) error {
	intro(env, "ca", "start/stop video recording")
	if _, err := env.Record(ctx, recordSeconds); err != nil {
		return fail("Failed to record video.", err)
	}
	env.Say("Video recorded successfully.")
	done(env, "ca")
	return nil
}

func testPreview(ctx context.Context, env *Env) error {
	intro(env, "pv", "set preview parameters")
	if err := env.Artifacts.Reset(artifact.Preview); err != nil {
		return err
	}
	env.Restore("pv", env.Defaults.Preview.Args()...)
	if err := env.Send(ctx, "pv", 100, 640, 1); err != nil {
		return err
	}
	env.Say("Set preview parameters to quality=100, width=640, divider=1")
	if err := env.Artifacts.Await(ctx, artifact.Preview, env.Waits.Settle); err != nil {
		return err
	}
	if _, err := env.Artifacts.Load(artifact.Preview); err != nil {
		return fail("Failed to update preview image.", err)
	}
	env.Say("Preview image updated successfully.")
	done(env, "pv")
	return nil
}

func testCounts(ctx context.Context, env *Env) error {
	intro(env, "sc", "set counts")
	if err := env.Apply(ctx, "sc"); err != nil {
		return err
	}
	env.Say("Set counts command sent.")
	done(env, "sc")
	return nil
}

func testMotion(ctx context.Context, env *Env) error {
	intro(env, "md", "motion detection")
	if err := env.Artifacts.Reset(artifact.Motion); err != nil {
		return err
	}
	env.Restore("md", 0)
	if err := env.Send(ctx, "md", 1); err != nil {
		return err
	}
	env.Say("Enabled motion detection")
	if err := env.Sleep(ctx, env.Waits.MotionWarmup); err != nil {
		return err
	}
	env.Say("Waiting for motion detection (please move in front of the camera)...")
	if err := env.Sleep(ctx, env.Waits.MotionObserve); err != nil {
		return err
	}

	const missing = "No motion detected or motion output not generated."
	if !env.Artifacts.Exists(artifact.Motion) {
		if env.Motion.RequireOutput {
			return fail(missing, nil)
		}
		env.Say(missing)
	} else {
		env.Say("Motion detected and output generated.")
	}
	done(env, "md")
	return nil
}

func testWhiteBalance(ctx context.Context, env *Env) error {
	intro(env, "wb", "set white balance")
	before, err := env.CaptureSnapshot(ctx)
	if err != nil {
		return fail("Failed to capture default image for white balance test.", err)
	}
	env.Restore("wb", "auto")
	if err := env.Apply(ctx, "wb", "cloudy"); err != nil {
		return err
	}
	env.Say("Set white balance to 'cloudy'")

	after, err := env.CaptureSnapshot(ctx)
	if err != nil {
		return fail("Failed to capture image with 'cloudy' white balance.", err)
	}
	v := analyze.WhiteBalance(before, after, env.Thresholds.WhiteBalance)
	if err := env.Expect(v, "White balance change did not affect the image as expected."); err != nil {
		return err
	}
	env.Say("White balance change detected successfully.")
	done(env, "wb")
	return nil
}

func testVideoResolution(ctx context.Context, env *Env) error {
	intro(env, "px", "set video resolution")
	env.Restore("px", env.Defaults.Video.Args()...)
	if err := env.Apply(ctx, "px", 1280, 720, 30, 30, 640, 480, 1); err != nil {
		return err
	}
	env.Say("Set video resolution to 1280x720 at 30fps")
	if _, err := env.Record(ctx, recordSeconds); err != nil {
		return fail("Failed to record video at new resolution.", err)
	}
	env.Say("Video recorded successfully at new resolution.")
	done(env, "px")
	return nil
}

func testQuality(ctx context.Context, env *Env) error {
	intro(env, "qu", "set image quality")
	env.Restore("qu", 100)
	if err := env.Apply(ctx, "qu", 10); err != nil {
		return err
	}
	env.Say("Set image quality to 10%")

	size, err := env.CaptureFile(ctx)
	if err != nil {
		return fail("Failed to capture image.", err)
	}
	env.Sayf("Image captured with size: %d bytes (low quality expected).", size)
	done(env, "qu")
	return nil
}

func testBitrate(ctx context.Context, env *Env) error {
	intro(env, "bi", "set bitrate")
	env.Restore("bi", env.Defaults.Bitrate)
	if err := env.Apply(ctx, "bi", 5000000); err != nil {
		return err
	}
	env.Sayf("Set bitrate to %d bps", 5000000)

	size, err := env.Record(ctx, recordSeconds)
	if err != nil {
		return fail("Failed to record video.", err)
	}
	env.Sayf("Video recorded with size: %d bytes (bitrate applied).", size)
	done(env, "bi")
	return nil
}

// smokeCase sets a parameter, captures a still and requires only that the
// capture is readable. The effect itself is not measured.
type smokeCase struct {
	op    string
	desc  string
	args  []any
	reset []any
	set   string
	fail  string
	ok    string
}

func smoke(p smokeCase) func(context.Context, *Env) error {
	return func(ctx context.Context, env *Env) error {
		intro(env, p.op, p.desc)
		env.Restore(p.op, p.reset...)
		if err := env.Apply(ctx, p.op, p.args...); err != nil {
			return err
		}
		env.Say(p.set)

		if _, err := env.CaptureImage(ctx); err != nil {
			return fail(p.fail, err)
		}
		env.Say(p.ok)
		done(env, p.op)
		return nil
	}
}

// compareCase captures before and after a parameter change and asks an
// analyzer whether the change is visible. A non-nil baseline is applied
// first so the "before" capture starts from a known value.
type compareCase struct {
	op          string
	desc        string
	subject     string
	baseline    []any
	args        []any
	reset       []any
	set         string
	failBefore  string
	failAfter   string
	failVerdict string
	analyze     func(th config.Thresholds, before, after analyze.Snapshot) (analyze.Verdict, error)
}

func compare(c compareCase) func(context.Context, *Env) error {
	return func(ctx context.Context, env *Env) error {
		intro(env, c.op, c.desc)
		if c.baseline != nil {
			if err := env.Apply(ctx, c.op, c.baseline...); err != nil {
				return err
			}
		}
		before, err := env.CaptureSnapshot(ctx)
		if err != nil {
			return fail(c.failBefore, err)
		}

		env.Restore(c.op, c.reset...)
		if err := env.Apply(ctx, c.op, c.args...); err != nil {
			return err
		}
		env.Say(c.set)

		after, err := env.CaptureSnapshot(ctx)
		if err != nil {
			return fail(c.failAfter, err)
		}

		v, err := c.analyze(env.Thresholds, before, after)
		if err != nil {
			return fmt.Errorf("compare %s captures: %w", c.op, err)
		}
		if err := env.Expect(v, c.failVerdict); err != nil {
			return err
		}
		env.Sayf("%s change detected successfully.", c.subject)
		done(env, c.op)
		return nil
	}
}
