package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/camconform/internal/harness"
	"github.com/roach88/camconform/internal/report"
	"github.com/roach88/camconform/internal/store"
)

// HistoryOptions holds flags shared by the history commands.
type HistoryOptions struct {
	*RootOptions
	Database string
	Limit    int
}

// ShowResult is the JSON payload of history show.
type ShowResult struct {
	Run     store.Run        `json:"run"`
	Results []harness.Result `json:"results"`
}

// DiffResult is the JSON payload of history diff.
type DiffResult struct {
	RunA        string             `json:"run_a"`
	RunB        string             `json:"run_b"`
	Differences []store.Difference `json:"differences"`
	Identical   bool               `json:"identical"`
}

// NewHistoryCommand creates the history command and its subcommands.
func NewHistoryCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &HistoryOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recorded runs",
		Long: `List the runs recorded in the history database, newest first.

Run ids may be abbreviated to any unique prefix in show and diff.

Examples:
  camconform history --limit 5
  camconform history show 0192f3c4
  camconform history diff 0192f3c4 0192f3d9`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runHistoryList(opts, cmd)
		},
	}

	cmd.PersistentFlags().StringVar(&opts.Database, "db", "", "history database (overrides history.path)")
	cmd.Flags().IntVarP(&opts.Limit, "limit", "n", 20, "maximum number of runs to list (0 lists all)")

	cmd.AddCommand(&cobra.Command{
		Use:           "show <run-id>",
		Short:         "Show the results of one run",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runHistoryShow(opts, args[0], cmd)
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "diff <run-a> <run-b>",
		Short: "Compare case outcomes between two runs",
		Long: `Compare the case outcomes of two runs. Exits 1 when any case changed
status, so two runs against the same build can check repeatability.`,
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runHistoryDiff(opts, args[0], args[1], cmd)
		},
	})

	return cmd
}

func (o *HistoryOptions) open() (*store.Store, error) {
	path := o.Database
	if path == "" {
		cfg, err := o.loadConfig()
		if err != nil {
			return nil, err
		}
		path = cfg.History.Path
	}
	if path == "" {
		return nil, fmt.Errorf("history is disabled (history.path is empty)")
	}
	return store.Open(path)
}

func historyContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

func runHistoryList(opts *HistoryOptions, cmd *cobra.Command) error {
	f := opts.formatter(cmd)

	st, err := opts.open()
	if err != nil {
		return f.Fail(ExitCommandError, ErrCodeHistory, "failed to open history database", err)
	}
	defer st.Close()

	runs, err := st.ListRuns(historyContext(cmd), opts.Limit)
	if err != nil {
		return f.Fail(ExitCommandError, ErrCodeHistory, "failed to list runs", err)
	}

	if f.JSON() {
		return f.Success(runs)
	}
	w := cmd.OutOrStdout()
	if len(runs) == 0 {
		fmt.Fprintln(w, "No runs recorded.")
		return nil
	}
	for _, r := range runs {
		fmt.Fprintln(w, formatRun(r))
	}
	return nil
}

func runHistoryShow(opts *HistoryOptions, id string, cmd *cobra.Command) error {
	f := opts.formatter(cmd)
	ctx := historyContext(cmd)

	st, err := opts.open()
	if err != nil {
		return f.Fail(ExitCommandError, ErrCodeHistory, "failed to open history database", err)
	}
	defer st.Close()

	run, err := st.GetRun(ctx, id)
	if err != nil {
		return f.Fail(ExitCommandError, ErrCodeHistory, "failed to find run", err)
	}
	results, err := st.ReadResults(ctx, run.ID)
	if err != nil {
		return f.Fail(ExitCommandError, ErrCodeHistory, "failed to read results", err)
	}

	if f.JSON() {
		return f.Success(ShowResult{Run: run, Results: results})
	}

	w := cmd.OutOrStdout()
	fmt.Fprintln(w, formatRun(run))
	fmt.Fprintln(w)
	w.Write(report.Format(results))
	if opts.Verbose {
		for _, r := range results {
			for _, v := range r.Verdicts {
				fmt.Fprintf(w, "%s: %s\n", r.Name, v)
			}
		}
	}
	return nil
}

func runHistoryDiff(opts *HistoryOptions, a, b string, cmd *cobra.Command) error {
	f := opts.formatter(cmd)
	ctx := historyContext(cmd)

	st, err := opts.open()
	if err != nil {
		return f.Fail(ExitCommandError, ErrCodeHistory, "failed to open history database", err)
	}
	defer st.Close()

	runA, err := st.GetRun(ctx, a)
	if err != nil {
		return f.Fail(ExitCommandError, ErrCodeHistory, "failed to find run", err)
	}
	runB, err := st.GetRun(ctx, b)
	if err != nil {
		return f.Fail(ExitCommandError, ErrCodeHistory, "failed to find run", err)
	}

	diffs, err := st.DiffRuns(ctx, runA.ID, runB.ID)
	if err != nil {
		return f.Fail(ExitCommandError, ErrCodeHistory, "failed to diff runs", err)
	}

	result := DiffResult{RunA: runA.ID, RunB: runB.ID, Differences: diffs, Identical: len(diffs) == 0}
	if f.JSON() {
		if err := f.Success(result); err != nil {
			return err
		}
	} else {
		w := cmd.OutOrStdout()
		if result.Identical {
			fmt.Fprintf(w, "Runs %s and %s have identical outcomes.\n", runA.ID, runB.ID)
		}
		for _, d := range diffs {
			fmt.Fprintf(w, "%s: %s -> %s\n", d.Name, orNotRun(d.StatusA), orNotRun(d.StatusB))
			if opts.Verbose {
				fmt.Fprintf(w, "  a: %s\n  b: %s\n", d.MessageA, d.MessageB)
			}
		}
	}

	if !result.Identical {
		return NewExitError(ExitFailure, fmt.Sprintf("%d case(s) changed between runs", len(diffs)))
	}
	return nil
}

func formatRun(r store.Run) string {
	status := "unfinished"
	if r.Finished() {
		status = fmt.Sprintf("exit %d", r.ExitCode)
	}
	line := fmt.Sprintf("%s  %s  %d passed, %d failed  %s",
		r.ID, r.StartedAt.Local().Format(time.DateTime), r.Passed, r.Failed, status)
	if r.Suite != "" {
		line += "  suite=" + r.Suite
	}
	return line
}

func orNotRun(status string) string {
	if status == "" {
		return "NOT RUN"
	}
	return status
}
