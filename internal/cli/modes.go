package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/camconform/internal/camera"
)

// ModesResult is the JSON payload of the modes command.
type ModesResult struct {
	Modes   []camera.Mode `json:"modes"`
	Highest *camera.Mode  `json:"highest,omitempty"`
}

// NewModesCommand creates the modes command.
func NewModesCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "modes",
		Short: "List the camera's video modes and the highest resolution",
		Long: `Run the camera listing tool (camera.list_command, by default
"libcamera-hello --list-cameras") and report the video modes it prints.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runModes(rootOpts, cmd)
		},
	}
}

func runModes(opts *RootOptions, cmd *cobra.Command) error {
	f := opts.formatter(cmd)

	cfg, err := opts.loadConfig()
	if err != nil {
		return f.Fail(ExitCommandError, ErrCodeConfig, "invalid configuration", err)
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	modes, err := camera.ListModes(ctx, cfg.Camera.ListCommand)
	if err != nil {
		return f.Fail(ExitCommandError, ErrCodeCamera, "failed to list camera modes", err)
	}

	result := ModesResult{Modes: modes}
	best, err := camera.Highest(modes)
	if err == nil {
		result.Highest = &best
	}

	if f.JSON() {
		if result.Modes == nil {
			result.Modes = []camera.Mode{}
		}
		if err := f.Success(result); err != nil {
			return err
		}
	} else {
		w := cmd.OutOrStdout()
		fmt.Fprintln(w, "Available Video Modes:")
		for _, m := range modes {
			fmt.Fprintf(w, "  %s\n", m)
		}
		if result.Highest != nil {
			fmt.Fprintf(w, "Highest resolution: %dx%d\n", best.Width, best.Height)
		}
	}

	if errors.Is(err, camera.ErrNoModes) {
		if !f.JSON() {
			fmt.Fprintln(cmd.OutOrStdout(), "No valid video resolutions found.")
		}
		return NewExitError(ExitFailure, camera.ErrNoModes.Error())
	}
	return nil
}
