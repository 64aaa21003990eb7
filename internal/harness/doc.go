// Package harness runs the rpicam-mjpeg conformance cases.
//
// Each case drives the daemon through its command channel, waits for the
// daemon to act (it never acknowledges anything), reads the artifacts it
// wrote and, for the image-parameter cases, compares statistics of a capture
// taken before and after the change.
//
// # Cases
//
// Registry returns the cases in their fixed execution order:
//
//	im ca pv ro fl sc md wb mm ec ag is px co br sa qu bi sh
//
// Cases that change a camera parameter register the command that puts it
// back with Env.Restore. The Runner sends those after the case body returns,
// newest first, whether the case passed or not, so one failing case never
// leaks its settings into the next.
//
// # Suite Format
//
// A suite file selects a subset of cases and may override thresholds:
//
//	name: color
//	description: "Color pipeline checks"
//	cases: [wb, sa, br]
//	thresholds:
//	  saturation: 8
//
// # Usage
//
//	env := harness.NewEnv(cfg, ch, artifacts, wait.Timer{})
//	runner := harness.NewRunner(env, logger)
//	results := runner.Run(ctx, harness.Registry())
package harness
