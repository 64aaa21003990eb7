package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/roach88/camconform/internal/archive"
	"github.com/roach88/camconform/internal/artifact"
	"github.com/roach88/camconform/internal/channel"
	"github.com/roach88/camconform/internal/config"
	"github.com/roach88/camconform/internal/harness"
	"github.com/roach88/camconform/internal/report"
	"github.com/roach88/camconform/internal/store"
	"github.com/roach88/camconform/internal/supervisor"
	"github.com/roach88/camconform/internal/wait"
)

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions
	Filter        string
	Suite         string
	Report        string
	CreateChannel bool
	NoDaemon      bool

	// Sleeper overrides the real wait timer (for testing).
	Sleeper wait.Sleeper

	// IDs overrides the UUIDv7 run id generator (for testing).
	IDs store.IDGenerator
}

// RunResult is the JSON payload of the run command.
type RunResult struct {
	RunID   string           `json:"run_id,omitempty"`
	Suite   string           `json:"suite,omitempty"`
	Report  string           `json:"report"`
	Results []harness.Result `json:"results"`
	report.Summary
	ExitCode    int      `json:"exit_code"`
	Interrupted bool     `json:"interrupted,omitempty"`
	Archived    []string `json:"archived,omitempty"`
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the conformance cases against the daemon",
		Long: `Launch the daemon, drive every registered test case through its control
pipe, then stop the daemon and write the report.

The control pipe must exist before the run starts; pass --create-channel to
create it. With --no-daemon the harness talks to a daemon that is already
running.

Exit codes:
  0 - All cases passed
  1 - One or more cases failed, or the run was interrupted
  2 - Command error (invalid config, launch failure, channel unavailable)

Examples:
  camconform run
  camconform run --filter "b*"
  camconform run --suite suites/image.yaml --report /tmp/report.txt
  camconform run --no-daemon --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runHarness(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Filter, "filter", "", "run only cases whose name matches the glob pattern")
	cmd.Flags().StringVar(&opts.Suite, "suite", "", "suite file selecting and ordering cases")
	cmd.Flags().StringVar(&opts.Report, "report", "", "report path (overrides report.path)")
	cmd.Flags().BoolVar(&opts.CreateChannel, "create-channel", false, "create the control pipe if it does not exist")
	cmd.Flags().BoolVar(&opts.NoDaemon, "no-daemon", false, "do not launch the daemon; use one that is already running")

	return cmd
}

func runHarness(opts *RunOptions, cmd *cobra.Command) error {
	f := opts.formatter(cmd)
	logger := opts.newLogger(cmd.ErrOrStderr())
	slog.SetDefault(logger)

	cfg, err := opts.loadConfig()
	if err != nil {
		return f.Fail(ExitCommandError, ErrCodeConfig, "invalid configuration", err)
	}

	cases, suiteName, err := selectCases(opts, &cfg)
	if err != nil {
		return f.Fail(ExitCommandError, ErrCodeSuite, "failed to select test cases", err)
	}

	reportPath := cfg.Report.Path
	if opts.Report != "" {
		reportPath = opts.Report
	}

	if opts.CreateChannel {
		if err := channel.Ensure(cfg.Paths.Channel, 0o777); err != nil {
			return f.Fail(ExitCommandError, ErrCodeChannel, "failed to create control channel", err)
		}
	}
	if err := channel.Check(cfg.Paths.Channel); err != nil {
		return f.Fail(ExitCommandError, ErrCodeChannel, "control channel unavailable", err)
	}

	// Use command's context if available (for testing), otherwise create one
	parentCtx := cmd.Context()
	if parentCtx == nil {
		parentCtx = context.Background()
	}
	ctx, cancel := context.WithCancel(parentCtx)
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	go func() {
		select {
		case sig := <-sigChan:
			logger.Info("received signal, stopping after the current case", "signal", sig)
			cancel()
		case <-ctx.Done():
		}
	}()

	if !opts.NoDaemon {
		proc, err := supervisor.Start(ctx, supervisor.Options{
			Path:        cfg.Daemon.Path,
			Args:        cfg.Daemon.Args,
			Paths:       cfg.Paths,
			Stdout:      cmd.ErrOrStderr(),
			Stderr:      cmd.ErrOrStderr(),
			StopTimeout: cfg.Daemon.StopTimeout,
			Logger:      logger,
		})
		if err != nil {
			return f.Fail(ExitCommandError, ErrCodeLaunch, "failed to launch daemon", err)
		}
		defer func() {
			if err := proc.Stop(); err != nil {
				logger.Error("error stopping daemon", "error", err)
			}
		}()
	}

	ids := opts.IDs
	if ids == nil {
		ids = store.UUIDv7{}
	}
	runID := ""
	var hist *store.Store
	if cfg.History.Path != "" {
		st, err := store.Open(cfg.History.Path, store.WithIDGenerator(ids))
		if err != nil {
			return f.Fail(ExitCommandError, ErrCodeHistory, "failed to open history database", err)
		}
		defer func() {
			if closeErr := st.Close(); closeErr != nil {
				logger.Error("error closing history database", "error", closeErr)
			}
		}()
		run, err := st.BeginRun(ctx, suiteName)
		if err != nil {
			return f.Fail(ExitCommandError, ErrCodeHistory, "failed to record run", err)
		}
		hist, runID = st, run.ID
	} else if cfg.Archive.Enabled() {
		runID = ids.Generate()
	}

	reportFile, err := os.Create(reportPath)
	if err != nil {
		return f.Fail(ExitCommandError, ErrCodeReport, "failed to create report", err)
	}
	defer reportFile.Close()

	// JSON output carries the results itself; narration and status lines go
	// to stderr or nowhere so stdout stays parseable.
	var narration, console io.Writer = cmd.OutOrStdout(), cmd.OutOrStdout()
	if f.JSON() {
		narration, console = cmd.ErrOrStderr(), nil
	}

	sleeper := opts.Sleeper
	if sleeper == nil {
		sleeper = wait.Timer{}
	}
	env := newEnv(cfg, sleeper, logger)
	env.Out = narration

	agg := report.New(reportFile, console)
	runner := harness.NewRunner(env, logger)
	seq := 0
	runner.Observer = func(r harness.Result) {
		agg.Record(r)
		if hist != nil {
			if err := hist.WriteResult(context.WithoutCancel(ctx), runID, seq, r); err != nil {
				logger.Error("failed to record result", "case", r.Name, "error", err)
			}
		}
		seq++
	}

	logger.Info("run starting", "cases", len(cases), "run_id", runID, "suite", suiteName)
	runner.Run(ctx, cases)
	interrupted := ctx.Err() != nil && seq < len(cases)

	code, err := agg.Finalize()
	if err != nil {
		return f.Fail(ExitCommandError, ErrCodeReport, "failed to write report", err)
	}
	if err := reportFile.Close(); err != nil {
		return f.Fail(ExitCommandError, ErrCodeReport, "failed to write report", err)
	}
	if interrupted {
		code = ExitFailure
	}

	// Bookkeeping below must finish even when the run was interrupted.
	bg := context.WithoutCancel(ctx)
	if hist != nil {
		if _, err := hist.FinishRun(bg, runID, code); err != nil {
			logger.Error("failed to finish run record", "run_id", runID, "error", err)
		}
	}

	var archived []string
	if cfg.Archive.Enabled() {
		archived = archiveRun(bg, cfg, runID, reportPath, logger)
	}

	summary := agg.Summary()
	result := RunResult{
		RunID:       runID,
		Suite:       suiteName,
		Report:      reportPath,
		Results:     agg.Results(),
		Summary:     summary,
		ExitCode:    code,
		Interrupted: interrupted,
		Archived:    archived,
	}
	if f.JSON() {
		if err := outputRunJSON(cmd, result); err != nil {
			return err
		}
	} else {
		outputRunText(cmd, result)
	}

	switch {
	case interrupted:
		return NewExitError(ExitFailure, fmt.Sprintf("run interrupted after %d of %d case(s)", seq, len(cases)))
	case code != ExitSuccess:
		return NewExitError(ExitFailure, fmt.Sprintf("%d test case(s) failed", summary.Failed))
	}
	return nil
}

// selectCases applies --suite and --filter. A suite may also override
// thresholds in cfg.
func selectCases(opts *RunOptions, cfg *config.Config) ([]harness.TestCase, string, error) {
	cases := harness.Registry()
	suiteName := ""
	if opts.Suite != "" {
		suite, err := harness.LoadSuite(opts.Suite)
		if err != nil {
			return nil, "", err
		}
		if cases, err = suite.TestCases(); err != nil {
			return nil, "", err
		}
		cfg.Thresholds = suite.Apply(cfg.Thresholds)
		suiteName = suite.Name
	}

	cases, err := harness.Filter(cases, opts.Filter)
	if err != nil {
		return nil, "", err
	}
	if len(cases) == 0 {
		return nil, "", fmt.Errorf("no test cases match %q", opts.Filter)
	}
	return cases, suiteName, nil
}

func newEnv(cfg config.Config, sleeper wait.Sleeper, logger *slog.Logger) *harness.Env {
	accOpts := []artifact.Option{artifact.WithSleeper(sleeper)}
	if cfg.Waits.Poll {
		accOpts = append(accOpts, artifact.WithPolling(cfg.Waits.PollInterval))
	}
	ch := channel.New(cfg.Paths.Channel,
		channel.WithOpenTimeout(cfg.Waits.ChannelOpen),
		channel.WithLogger(logger),
	)
	env := harness.NewEnv(cfg, ch, artifact.NewAccessor(cfg.Paths, accOpts...), sleeper)
	env.Logger = logger
	return env
}

func archiveRun(ctx context.Context, cfg config.Config, runID, reportPath string, logger *slog.Logger) []string {
	s3, err := archive.New(cfg.Archive, logger)
	if err != nil {
		logger.Error("archive disabled", "error", err)
		return nil
	}
	keys, err := s3.UploadRun(ctx, runID, archive.RunFiles(cfg.Paths, reportPath))
	if err != nil {
		logger.Error("failed to archive run", "run_id", runID, "error", err)
	}
	return keys
}

func outputRunJSON(cmd *cobra.Command, result RunResult) error {
	response := CLIResponse{
		Status: "ok",
		Data:   result,
		RunID:  result.RunID,
	}
	if result.ExitCode != ExitSuccess {
		response.Status = "error"
		response.Error = &CLIError{
			Code:    ErrCodeCasesFail,
			Message: fmt.Sprintf("%d test case(s) failed", result.Failed),
		}
	}

	encoder := json.NewEncoder(cmd.OutOrStdout())
	encoder.SetIndent("", "  ")
	return encoder.Encode(response)
}

func outputRunText(cmd *cobra.Command, result RunResult) {
	w := cmd.OutOrStdout()

	fmt.Fprintln(w)
	fmt.Fprintf(w, "Test Summary: %d passed, %d failed, %d total\n", result.Passed, result.Failed, result.Total)
	fmt.Fprintf(w, "Report written to %s\n", result.Report)
	if result.RunID != "" {
		fmt.Fprintf(w, "Run ID: %s\n", result.RunID)
	}
	if result.Interrupted {
		fmt.Fprintln(w, "Run interrupted; remaining cases were not run.")
		return
	}
	if result.Failed == 0 {
		fmt.Fprintln(w, "All cases passed")
	}
}
