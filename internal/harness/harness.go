package harness

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"
)

// Runner executes test cases strictly one after another against a shared
// Env. Each case gets a fresh Result; failures never stop the run, a
// cancelled context does.
type Runner struct {
	Env    *Env
	Logger *slog.Logger

	// Observer, when set, is called with each finished result in order.
	Observer func(Result)

	now func() time.Time
}

// NewRunner creates a Runner for env.
func NewRunner(env *Env, logger *slog.Logger) *Runner {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if env.Logger == nil {
		env.Logger = logger
	}
	return &Runner{Env: env, Logger: logger, now: time.Now}
}

// Run executes cases in order and returns one result per case that ran.
// When ctx is cancelled the current case finishes (its restores included)
// and the remaining cases are skipped.
func (r *Runner) Run(ctx context.Context, cases []TestCase) []Result {
	results := make([]Result, 0, len(cases))
	for _, tc := range cases {
		if ctx.Err() != nil {
			r.Logger.Warn("run cancelled", slog.Int("skipped", len(cases)-len(results)))
			break
		}
		res := r.runCase(ctx, tc)
		results = append(results, res)
		if r.Observer != nil {
			r.Observer(res)
		}
	}
	return results
}

func (r *Runner) runCase(ctx context.Context, tc TestCase) Result {
	now := r.now
	if now == nil {
		now = time.Now
	}
	res := NewResult(tc.Name)
	must(res.transition(Running))
	start := now()
	r.Logger.Info("case started", slog.String("case", tc.Name))

	err := r.invoke(ctx, tc)
	if rerr := r.restore(tc.Name); rerr != nil && err == nil {
		err = rerr
	}
	res.Verdicts = r.Env.takeVerdicts()
	res.Duration = now().Sub(start)

	if err != nil {
		must(res.transition(Failed))
		res.Message = err.Error()
		r.logFailure(tc.Name, err)
	} else {
		must(res.transition(Passed))
		res.Message = "Test passed"
		r.Logger.Info("case passed", slog.String("case", tc.Name), slog.Duration("duration", res.Duration))
	}
	return *res
}

// invoke runs the case body, converting a panic into an error.
func (r *Runner) invoke(ctx context.Context, tc TestCase) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("panic: %v", p)
		}
	}()
	if tc.Run == nil {
		return fmt.Errorf("case %s has no body", tc.Name)
	}
	return tc.Run(ctx, r.Env)
}

// restore sends every registered reset command. It keeps going after a
// failure and uses a context detached from cancellation so an interrupted
// case still leaves the daemon in its default state.
func (r *Runner) restore(name string) error {
	ctx := context.Background()
	var errs []error
	for _, rs := range r.Env.takeRestores() {
		if err := r.Env.SendCommand(ctx, rs.cmd); err != nil {
			r.Logger.Error("restore failed", slog.String("case", name), slog.String("command", rs.cmd.String()), slog.Any("error", err))
			errs = append(errs, fmt.Errorf("restore %q: %w", rs.cmd.String(), err))
			continue
		}
		if err := r.Env.Sleep(ctx, rs.wait); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (r *Runner) logFailure(name string, err error) {
	attrs := []any{slog.String("case", name), slog.String("message", err.Error())}
	var ae *AssertionError
	var f *Failure
	switch {
	case errors.As(err, &ae):
		attrs = append(attrs, slog.String("verdict", ae.Verdict.String()))
	case errors.As(err, &f) && f.Err != nil:
		attrs = append(attrs, slog.Any("cause", f.Err))
	}
	r.Logger.Warn("case failed", attrs...)
}

// must panics on a programming error in result bookkeeping.
func must(err error) {
	if err != nil {
		panic(err)
	}
}
