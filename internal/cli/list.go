package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/camconform/internal/harness"
)

// CaseInfo describes one registered case.
type CaseInfo struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

// NewListCommand creates the list command.
func NewListCommand(rootOpts *RootOptions) *cobra.Command {
	var filter string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List the registered test cases in execution order",
		Example: `  camconform list
  camconform list --filter "s*" --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runList(rootOpts, filter, cmd)
		},
	}

	cmd.Flags().StringVar(&filter, "filter", "", "list only cases whose name matches the glob pattern")
	return cmd
}

func runList(opts *RootOptions, filter string, cmd *cobra.Command) error {
	f := opts.formatter(cmd)

	cases, err := harness.Filter(harness.Registry(), filter)
	if err != nil {
		return f.Fail(ExitCommandError, ErrCodeSuite, "invalid filter", err)
	}

	infos := make([]CaseInfo, len(cases))
	for i, tc := range cases {
		infos[i] = CaseInfo{Name: tc.Name, Description: tc.Description}
	}

	if f.JSON() {
		return f.Success(infos)
	}
	w := cmd.OutOrStdout()
	for _, info := range infos {
		fmt.Fprintf(w, "%-3s %s\n", info.Name, info.Description)
	}
	return nil
}
